package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStateNotFound is returned when a ticket has no SLA state yet.
	ErrStateNotFound = errors.New("sla state not found")
	// ErrTicketNotFound is returned when the ticket mirror has no such ticket.
	ErrTicketNotFound = errors.New("ticket not found")
	// ErrPolicyNotFound is returned when a policy id is unknown.
	ErrPolicyNotFound = errors.New("sla policy not found")
	// ErrCalendarNotFound is returned when a calendar id is unknown.
	ErrCalendarNotFound = errors.New("calendar not found")
	// ErrStaffNotFound is returned when an escalation contact id is unknown.
	ErrStaffNotFound = errors.New("staff member not found")
	// ErrSweepInProgress is returned when a sweep is requested while one is running.
	ErrSweepInProgress = errors.New("breach sweep already in progress")
	// ErrInvariant marks a due-date computation that broke an engine invariant.
	ErrInvariant = errors.New("sla invariant violated")
)

// InvalidCalendarError rejects a calendar configuration.
type InvalidCalendarError struct {
	CalendarID string
	Reason     string
}

func (e *InvalidCalendarError) Error() string {
	if e.CalendarID == "" {
		return "invalid calendar: " + e.Reason
	}
	return fmt.Sprintf("invalid calendar %s: %s", e.CalendarID, e.Reason)
}

// NoApplicablePolicyError means the catalog cannot guarantee a policy for every ticket.
type NoApplicablePolicyError struct {
	Reason string
}

func (e *NoApplicablePolicyError) Error() string {
	return "no applicable sla policy: " + e.Reason
}

// InvalidPolicyError rejects a policy configuration.
type InvalidPolicyError struct {
	PolicyID string
	Reason   string
}

func (e *InvalidPolicyError) Error() string {
	if e.PolicyID == "" {
		return "invalid sla policy: " + e.Reason
	}
	return fmt.Sprintf("invalid sla policy %s: %s", e.PolicyID, e.Reason)
}

// NotificationDeliveryError wraps a failed escalation delivery. It is recoverable.
type NotificationDeliveryError struct {
	TicketID string
	Kind     BreachKind
	Err      error
}

func (e *NotificationDeliveryError) Error() string {
	return fmt.Sprintf("deliver %s notification for ticket %s: %v", e.Kind, e.TicketID, e.Err)
}

func (e *NotificationDeliveryError) Unwrap() error {
	return e.Err
}
