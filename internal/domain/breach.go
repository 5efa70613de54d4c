package domain

import "time"

// BreachKind names the threshold a ticket crossed.
type BreachKind string

const (
	BreachApproachingResponse   BreachKind = "APPROACHING_RESPONSE"
	BreachApproachingResolution BreachKind = "APPROACHING_RESOLUTION"
	BreachBreachedResponse      BreachKind = "BREACHED_RESPONSE"
	BreachBreachedResolution    BreachKind = "BREACHED_RESOLUTION"
)

// IsBreached reports whether the kind is a deadline miss rather than a warning.
func (k BreachKind) IsBreached() bool {
	return k == BreachBreachedResponse || k == BreachBreachedResolution
}

// IsValid reports whether the kind is known.
func (k BreachKind) IsValid() bool {
	switch k {
	case BreachApproachingResponse, BreachApproachingResolution, BreachBreachedResponse, BreachBreachedResolution:
		return true
	}
	return false
}

// BreachEvent records one threshold crossing for a ticket on a given day.
type BreachEvent struct {
	ID         string
	TicketID   string
	PolicyID   string
	Priority   TicketPriority
	Kind       BreachKind
	DueAt      time.Time
	FiredOn    string // YYYY-MM-DD, part of the dedup key
	FiredAt    time.Time
	Notified   bool
	NotifiedAt *time.Time
	Suppressed bool
	Attempts   int
	LastError  string
}

// DedupKey identifies the (ticket, kind, day) tuple an event is unique on.
func (e BreachEvent) DedupKey() string {
	return e.TicketID + ":" + string(e.Kind) + ":" + e.FiredOn
}

// BreachFilter narrows breach listings for reporting.
type BreachFilter struct {
	TicketID *string
	Kinds    []BreachKind
	From     *time.Time
	To       *time.Time
	Notified *bool
	Limit    int
	Offset   int
}
