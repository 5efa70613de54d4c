package calendar

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/domain"
)

func weekdayCalendar() domain.Calendar {
	cal := domain.Calendar{ID: "office", Kind: domain.CalendarKindBusinessHours, Timezone: "UTC"}
	for d := time.Monday; d <= time.Friday; d++ {
		cal.Windows = append(cal.Windows, domain.BusinessWindow{Weekday: d, OpenMinute: 9 * 60, CloseMinute: 17 * 60})
	}
	return cal
}

func mustCompile(t *testing.T, cal domain.Calendar) *Schedule {
	t.Helper()
	s, err := Compile(cal)
	require.NoError(t, err)
	return s
}

func ts(t *testing.T, value string) time.Time {
	t.Helper()
	parsed, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return parsed
}

func TestAddBusinessMinutesCarriesOverWeekend(t *testing.T) {
	s := mustCompile(t, weekdayCalendar())

	// Friday 16:30, 60 minutes: 30 on Friday, 30 on Monday morning.
	due, err := s.AddBusinessMinutes(ts(t, "2024-01-05T16:30:00Z"), 60)
	require.NoError(t, err)
	assert.Equal(t, ts(t, "2024-01-08T09:30:00Z"), due)
}

func TestAddBusinessMinutesStartOutsideWindow(t *testing.T) {
	s := mustCompile(t, weekdayCalendar())

	tests := []struct {
		name  string
		start string
		mins  int
		want  string
	}{
		{name: "before opening", start: "2024-01-08T07:15:00Z", mins: 30, want: "2024-01-08T09:30:00Z"},
		{name: "after closing", start: "2024-01-08T18:00:00Z", mins: 60, want: "2024-01-09T10:00:00Z"},
		{name: "saturday", start: "2024-01-06T12:00:00Z", mins: 480, want: "2024-01-08T17:00:00Z"},
		{name: "ends on close boundary", start: "2024-01-08T16:00:00Z", mins: 60, want: "2024-01-08T17:00:00Z"},
		{name: "multiple days", start: "2024-01-08T09:00:00Z", mins: 3 * 480, want: "2024-01-10T17:00:00Z"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.AddBusinessMinutes(ts(t, tt.start), tt.mins)
			require.NoError(t, err)
			assert.Equal(t, ts(t, tt.want), got)
		})
	}
}

func TestAddBusinessMinutesSkipsHolidays(t *testing.T) {
	cal := weekdayCalendar()
	cal.Holidays = []domain.Holiday{
		{Date: "2024-01-08", Name: "one-off"},
		{Date: "2020-01-09", Name: "anniversary", Recurring: true},
	}
	s := mustCompile(t, cal)

	due, err := s.AddBusinessMinutes(ts(t, "2024-01-05T16:30:00Z"), 60)
	require.NoError(t, err)
	assert.Equal(t, ts(t, "2024-01-10T09:30:00Z"), due)
}

func TestAddBusinessMinutesSplitWindows(t *testing.T) {
	cal := domain.Calendar{ID: "split", Kind: domain.CalendarKindBusinessHours, Timezone: "UTC", Windows: []domain.BusinessWindow{
		{Weekday: time.Monday, OpenMinute: 13 * 60, CloseMinute: 17 * 60},
		{Weekday: time.Monday, OpenMinute: 9 * 60, CloseMinute: 12 * 60},
	}}
	s := mustCompile(t, cal)

	due, err := s.AddBusinessMinutes(ts(t, "2024-01-08T11:30:00Z"), 60)
	require.NoError(t, err)
	assert.Equal(t, ts(t, "2024-01-08T13:30:00Z"), due)
	assert.Equal(t, 60, s.ElapsedBusinessMinutes(ts(t, "2024-01-08T11:30:00Z"), due))
}

func TestAddBusinessMinutesHonoursTimezone(t *testing.T) {
	cal := weekdayCalendar()
	cal.Timezone = "America/New_York"
	s := mustCompile(t, cal)

	// 16:30 New York is 21:30 UTC in January.
	due, err := s.AddBusinessMinutes(ts(t, "2024-01-05T21:30:00Z"), 60)
	require.NoError(t, err)
	assert.Equal(t, ts(t, "2024-01-08T14:30:00Z"), due)
}

func TestContinuousCalendarIdentity(t *testing.T) {
	s := mustCompile(t, domain.Calendar{ID: "24x7", Kind: domain.CalendarKindContinuous})
	start := ts(t, "2024-01-01T10:00:00Z")

	due, err := s.AddBusinessMinutes(start, 480)
	require.NoError(t, err)
	assert.Equal(t, ts(t, "2024-01-01T18:00:00Z"), due)

	for _, m := range []int{0, 1, 59, 1440, 100000} {
		got, err := s.AddBusinessMinutes(start, m)
		require.NoError(t, err)
		assert.Equal(t, start.Add(time.Duration(m)*time.Minute), got)
		assert.Equal(t, m, s.ElapsedBusinessMinutes(start, got))
	}
}

func TestRoundTripAndMonotonicity(t *testing.T) {
	cal := weekdayCalendar()
	cal.Windows = append(cal.Windows, domain.BusinessWindow{Weekday: time.Saturday, OpenMinute: 10 * 60, CloseMinute: 12*60 + 30})
	cal.Holidays = []domain.Holiday{{Date: "2024-02-14"}, {Date: "2000-03-01", Recurring: true}}
	cal.Timezone = "Europe/Berlin"
	s := mustCompile(t, cal)

	rng := rand.New(rand.NewSource(42))
	base := ts(t, "2024-01-01T00:00:00Z")
	for i := 0; i < 500; i++ {
		start := base.Add(time.Duration(rng.Int63n(int64(120 * 24 * time.Hour))))
		m1 := rng.Intn(5000)
		m2 := m1 + rng.Intn(500)

		end1, err := s.AddBusinessMinutes(start, m1)
		require.NoError(t, err)
		end2, err := s.AddBusinessMinutes(start, m2)
		require.NoError(t, err)

		assert.Equal(t, m1, s.ElapsedBusinessMinutes(start, end1), "start=%s minutes=%d", start, m1)
		assert.False(t, end2.Before(end1), "start=%s m1=%d m2=%d", start, m1, m2)
	}
}

func TestElapsedBusinessMinutes(t *testing.T) {
	s := mustCompile(t, weekdayCalendar())

	assert.Equal(t, 0, s.ElapsedBusinessMinutes(ts(t, "2024-01-08T12:00:00Z"), ts(t, "2024-01-08T11:00:00Z")))
	assert.Equal(t, 0, s.ElapsedBusinessMinutes(ts(t, "2024-01-06T00:00:00Z"), ts(t, "2024-01-07T23:59:00Z")))
	assert.Equal(t, 5*480, s.ElapsedBusinessMinutes(ts(t, "2024-01-08T00:00:00Z"), ts(t, "2024-01-13T00:00:00Z")))
	assert.Equal(t, 90, s.ElapsedBusinessMinutes(ts(t, "2024-01-05T16:30:00Z"), ts(t, "2024-01-08T10:00:00Z")))
}

func TestIsOpen(t *testing.T) {
	s := mustCompile(t, weekdayCalendar())

	assert.True(t, s.IsOpen(ts(t, "2024-01-08T09:00:00Z")))
	assert.False(t, s.IsOpen(ts(t, "2024-01-08T17:00:00Z")))
	assert.False(t, s.IsOpen(ts(t, "2024-01-07T12:00:00Z")))
}

func TestValidateRejectsBadCalendars(t *testing.T) {
	tests := []struct {
		name string
		cal  domain.Calendar
	}{
		{name: "no windows", cal: domain.Calendar{ID: "empty", Kind: domain.CalendarKindBusinessHours}},
		{name: "unknown kind", cal: domain.Calendar{ID: "x", Kind: "LUNAR"}},
		{name: "bad timezone", cal: domain.Calendar{ID: "tz", Kind: domain.CalendarKindContinuous, Timezone: "Mars/Olympus"}},
		{name: "open after close", cal: domain.Calendar{ID: "inv", Kind: domain.CalendarKindBusinessHours, Windows: []domain.BusinessWindow{
			{Weekday: time.Monday, OpenMinute: 600, CloseMinute: 540},
		}}},
		{name: "close past midnight", cal: domain.Calendar{ID: "late", Kind: domain.CalendarKindBusinessHours, Windows: []domain.BusinessWindow{
			{Weekday: time.Monday, OpenMinute: 600, CloseMinute: 1500},
		}}},
		{name: "overlap", cal: domain.Calendar{ID: "ovl", Kind: domain.CalendarKindBusinessHours, Windows: []domain.BusinessWindow{
			{Weekday: time.Monday, OpenMinute: 540, CloseMinute: 720},
			{Weekday: time.Monday, OpenMinute: 700, CloseMinute: 900},
		}}},
		{name: "bad holiday", cal: domain.Calendar{ID: "hol", Kind: domain.CalendarKindBusinessHours,
			Windows:  []domain.BusinessWindow{{Weekday: time.Monday, OpenMinute: 540, CloseMinute: 1020}},
			Holidays: []domain.Holiday{{Date: "01/02/2024"}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.cal)
			var calErr *domain.InvalidCalendarError
			require.True(t, errors.As(err, &calErr), "got %v", err)
			assert.Equal(t, tt.cal.ID, calErr.CalendarID)
		})
	}
}

func TestPackageLevelHelpers(t *testing.T) {
	start := ts(t, "2024-01-05T16:30:00Z")
	due, err := AddBusinessMinutes(weekdayCalendar(), start, 60)
	require.NoError(t, err)
	elapsed, err := ElapsedBusinessMinutes(weekdayCalendar(), start, due)
	require.NoError(t, err)
	assert.Equal(t, 60, elapsed)

	_, err = AddBusinessMinutes(domain.Calendar{ID: "empty", Kind: domain.CalendarKindBusinessHours}, start, 10)
	var calErr *domain.InvalidCalendarError
	assert.ErrorAs(t, err, &calErr)

	_, err = AddBusinessMinutes(weekdayCalendar(), start, -1)
	assert.ErrorIs(t, err, domain.ErrInvariant)
}

type staticSource []domain.Calendar

func (s staticSource) ListCalendars(context.Context) ([]domain.Calendar, error) {
	return s, nil
}

func TestRegistrySkipsInvalidCalendars(t *testing.T) {
	reg := NewRegistry(staticSource{
		weekdayCalendar(),
		{ID: "broken", Kind: domain.CalendarKindBusinessHours},
	}, nil)
	require.NoError(t, reg.Reload(context.Background()))

	_, ok := reg.Get("office")
	assert.True(t, ok)
	_, ok = reg.Get("broken")
	assert.False(t, ok)
	assert.Equal(t, 1, reg.Len())
}
