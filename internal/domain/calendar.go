package domain

import "time"

// CalendarKind selects how a calendar counts time.
type CalendarKind string

const (
	CalendarKindContinuous    CalendarKind = "CONTINUOUS"
	CalendarKindBusinessHours CalendarKind = "BUSINESS_HOURS"
)

// BusinessWindow is an open interval on one weekday, in minutes from local midnight.
type BusinessWindow struct {
	Weekday     time.Weekday `json:"weekday" yaml:"weekday"`
	OpenMinute  int          `json:"open_minute" yaml:"open_minute"`
	CloseMinute int          `json:"close_minute" yaml:"close_minute"`
}

// Holiday closes a full local day. Recurring holidays repeat on the same month and day.
type Holiday struct {
	Date      string `json:"date" yaml:"date"` // YYYY-MM-DD
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Recurring bool   `json:"recurring,omitempty" yaml:"recurring,omitempty"`
}

// Calendar is a named operational time model.
type Calendar struct {
	ID        string
	Name      string
	Kind      CalendarKind
	Timezone  string
	Windows   []BusinessWindow
	Holidays  []Holiday
	CreatedAt time.Time
	UpdatedAt time.Time
}
