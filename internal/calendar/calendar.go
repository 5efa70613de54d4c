// Package calendar implements business-time arithmetic over SLA calendars.
//
// A continuous calendar counts wall-clock time. A business-hours calendar only
// counts time inside its weekly open windows, skipping holidays, evaluated in
// the calendar's own timezone.
package calendar

import (
	"fmt"
	"sort"
	"time"

	"github.com/spec-kit/sla-engine/internal/domain"
)

const (
	minutesPerDay = 24 * 60
	dateLayout    = "2006-01-02"
	// searchHorizonDays bounds the forward walk for calendars whose holidays
	// leave no reachable open window.
	searchHorizonDays = 3660
)

type window struct {
	open  int
	close int
}

type interval struct {
	start time.Time
	end   time.Time
}

// Schedule is a validated, precomputed calendar ready for arithmetic.
type Schedule struct {
	id        string
	kind      domain.CalendarKind
	loc       *time.Location
	weekdays  [7][]window
	holidays  map[string]struct{}
	recurring map[string]struct{}
}

// Compile validates a calendar and prepares it for arithmetic.
func Compile(cal domain.Calendar) (*Schedule, error) {
	if err := Validate(cal); err != nil {
		return nil, err
	}

	loc, _ := loadLocation(cal.Timezone)
	s := &Schedule{
		id:        cal.ID,
		kind:      cal.Kind,
		loc:       loc,
		holidays:  make(map[string]struct{}),
		recurring: make(map[string]struct{}),
	}
	if cal.Kind == domain.CalendarKindContinuous {
		return s, nil
	}

	for _, w := range cal.Windows {
		s.weekdays[w.Weekday] = append(s.weekdays[w.Weekday], window{open: w.OpenMinute, close: w.CloseMinute})
	}
	for day := range s.weekdays {
		sort.Slice(s.weekdays[day], func(i, j int) bool {
			return s.weekdays[day][i].open < s.weekdays[day][j].open
		})
	}
	for _, h := range cal.Holidays {
		d, _ := time.Parse(dateLayout, h.Date)
		if h.Recurring {
			s.recurring[d.Format("01-02")] = struct{}{}
			continue
		}
		s.holidays[d.Format(dateLayout)] = struct{}{}
	}
	return s, nil
}

// Validate checks a calendar configuration. Business-hours calendars without
// any open window are rejected because arithmetic over them cannot terminate.
func Validate(cal domain.Calendar) error {
	invalid := func(format string, args ...any) error {
		return &domain.InvalidCalendarError{CalendarID: cal.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if _, err := loadLocation(cal.Timezone); err != nil {
		return invalid("unknown timezone %q", cal.Timezone)
	}

	switch cal.Kind {
	case domain.CalendarKindContinuous:
		return nil
	case domain.CalendarKindBusinessHours:
	default:
		return invalid("unknown kind %q", cal.Kind)
	}

	if len(cal.Windows) == 0 {
		return invalid("business hours calendar has no open windows")
	}

	var perDay [7][]window
	for _, w := range cal.Windows {
		if w.Weekday < time.Sunday || w.Weekday > time.Saturday {
			return invalid("weekday %d out of range", w.Weekday)
		}
		if w.OpenMinute < 0 || w.CloseMinute > minutesPerDay || w.OpenMinute >= w.CloseMinute {
			return invalid("window %s %d-%d must satisfy 0 <= open < close <= %d",
				w.Weekday, w.OpenMinute, w.CloseMinute, minutesPerDay)
		}
		perDay[w.Weekday] = append(perDay[w.Weekday], window{open: w.OpenMinute, close: w.CloseMinute})
	}
	for day, windows := range perDay {
		sort.Slice(windows, func(i, j int) bool { return windows[i].open < windows[j].open })
		for i := 1; i < len(windows); i++ {
			if windows[i].open < windows[i-1].close {
				return invalid("overlapping windows on %s", time.Weekday(day))
			}
		}
	}

	for _, h := range cal.Holidays {
		if _, err := time.Parse(dateLayout, h.Date); err != nil {
			return invalid("holiday date %q is not YYYY-MM-DD", h.Date)
		}
	}
	return nil
}

// ID returns the calendar id the schedule was compiled from.
func (s *Schedule) ID() string {
	return s.id
}

// Kind returns the calendar kind.
func (s *Schedule) Kind() domain.CalendarKind {
	return s.kind
}

// Location returns the timezone windows are evaluated in.
func (s *Schedule) Location() *time.Location {
	return s.loc
}

// AddBusinessMinutes returns the instant reached after consuming minutes of
// open time from start. Closed periods and holidays are skipped. A start
// outside any window first jumps to the next opening.
func (s *Schedule) AddBusinessMinutes(start time.Time, minutes int) (time.Time, error) {
	if minutes < 0 {
		return time.Time{}, fmt.Errorf("%w: negative minutes %d", domain.ErrInvariant, minutes)
	}
	if s.kind == domain.CalendarKindContinuous {
		return start.Add(time.Duration(minutes) * time.Minute), nil
	}
	if minutes == 0 {
		return start, nil
	}

	remaining := time.Duration(minutes) * time.Minute
	cursor := start
	day := midnight(start.In(s.loc))
	for i := 0; i < searchHorizonDays; i++ {
		for _, iv := range s.intervalsOn(day) {
			if !iv.end.After(cursor) {
				continue
			}
			from := iv.start
			if cursor.After(from) {
				from = cursor
			}
			available := iv.end.Sub(from)
			if remaining <= available {
				return from.Add(remaining), nil
			}
			remaining -= available
			cursor = iv.end
		}
		day = nextDay(day)
	}
	return time.Time{}, &domain.InvalidCalendarError{CalendarID: s.id, Reason: "no open window within search horizon"}
}

// ElapsedBusinessMinutes counts whole minutes of open time in [start, end).
// It is the inverse of AddBusinessMinutes.
func (s *Schedule) ElapsedBusinessMinutes(start, end time.Time) int {
	if !end.After(start) {
		return 0
	}
	if s.kind == domain.CalendarKindContinuous {
		return int(end.Sub(start) / time.Minute)
	}

	var total time.Duration
	day := midnight(start.In(s.loc))
	for i := 0; i < searchHorizonDays && day.Before(end); i++ {
		for _, iv := range s.intervalsOn(day) {
			from, to := iv.start, iv.end
			if start.After(from) {
				from = start
			}
			if end.Before(to) {
				to = end
			}
			if to.After(from) {
				total += to.Sub(from)
			}
		}
		day = nextDay(day)
	}
	return int(total / time.Minute)
}

// IsOpen reports whether the instant falls inside an open window.
func (s *Schedule) IsOpen(at time.Time) bool {
	if s.kind == domain.CalendarKindContinuous {
		return true
	}
	for _, iv := range s.intervalsOn(midnight(at.In(s.loc))) {
		if !at.Before(iv.start) && at.Before(iv.end) {
			return true
		}
	}
	return false
}

func (s *Schedule) intervalsOn(day time.Time) []interval {
	if s.isHoliday(day) {
		return nil
	}
	windows := s.weekdays[day.Weekday()]
	if len(windows) == 0 {
		return nil
	}
	y, m, d := day.Date()
	out := make([]interval, 0, len(windows))
	for _, w := range windows {
		out = append(out, interval{
			start: time.Date(y, m, d, w.open/60, w.open%60, 0, 0, s.loc),
			end:   time.Date(y, m, d, w.close/60, w.close%60, 0, 0, s.loc),
		})
	}
	return out
}

func (s *Schedule) isHoliday(day time.Time) bool {
	if _, ok := s.holidays[day.Format(dateLayout)]; ok {
		return true
	}
	_, ok := s.recurring[day.Format("01-02")]
	return ok
}

// AddBusinessMinutes compiles cal and adds minutes of business time to start.
func AddBusinessMinutes(cal domain.Calendar, start time.Time, minutes int) (time.Time, error) {
	s, err := Compile(cal)
	if err != nil {
		return time.Time{}, err
	}
	return s.AddBusinessMinutes(start, minutes)
}

// ElapsedBusinessMinutes compiles cal and counts business minutes between start and end.
func ElapsedBusinessMinutes(cal domain.Calendar, start, end time.Time) (int, error) {
	s, err := Compile(cal)
	if err != nil {
		return 0, err
	}
	return s.ElapsedBusinessMinutes(start, end), nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(name)
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func nextDay(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, day.Location())
}
