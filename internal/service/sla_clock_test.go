package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/sla-engine/internal/config"
	"github.com/spec-kit/sla-engine/internal/domain"
)

func TestOnCreateCarriesAcrossWeekend(t *testing.T) {
	h := newHarness(t)

	// Friday 16:30: 30 minutes on Friday, 30 carried into Monday.
	state := h.create(t, ticket("t-1", domain.TicketPriorityUrgent, at(1, 16, 30)))

	assert.Equal(t, at(4, 9, 30), state.FirstResponseDueAt)
	assert.Equal(t, at(4, 12, 30), state.ResolutionDueAt)
	assert.Equal(t, "standard", state.PolicyID)
	assert.Equal(t, "office", state.CalendarID)
	assert.Equal(t, domain.ClockRunning, state.ClockState)
}

func TestOnCreateContinuousCalendar(t *testing.T) {
	h := newHarness(t)
	created := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	tk := ticket("t-1", domain.TicketPriorityMedium, created)
	tk.Tags = []string{"vip"}

	state := h.create(t, tk)

	assert.Equal(t, time.Date(2024, 1, 1, 18, 0, 0, 0, time.UTC), state.ResolutionDueAt)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), state.FirstResponseDueAt)
}

func TestOnCreateIsIdempotent(t *testing.T) {
	h := newHarness(t)
	first := h.create(t, ticket("t-1", domain.TicketPriorityHigh, monday))

	tk := ticket("t-1", domain.TicketPriorityLow, monday.Add(time.Hour))
	second, err := h.clock.OnCreate(context.Background(), tk)

	require.NoError(t, err)
	assert.Equal(t, first.ResolutionDueAt, second.ResolutionDueAt)
	assert.Equal(t, domain.TicketPriorityHigh, second.Priority)
}

func TestPauseForThreeBusinessDays(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))
	require.Equal(t, at(4, 13, 0), state.FirstResponseDueAt)
	require.Equal(t, at(5, 17, 0), state.ResolutionDueAt)

	paused, err := h.clock.OnPause(ctx, "t-1", at(4, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, domain.ClockPaused, paused.ClockState)
	assert.False(t, paused.Tracks())

	resumed, err := h.clock.OnResume(ctx, "t-1", at(7, 10, 0))
	require.NoError(t, err)

	assert.Equal(t, 3*480, resumed.AccumulatedPauseMinutes)
	assert.Equal(t, at(7, 13, 0), resumed.FirstResponseDueAt)
	assert.Equal(t, at(8, 17, 0), resumed.ResolutionDueAt)
	assert.Nil(t, resumed.PausedAt)
	assert.Equal(t, domain.ClockRunning, resumed.ClockState)
}

func TestPauseOutsideBusinessHoursDoesNotShift(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	state := h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))

	_, err := h.clock.OnPause(ctx, "t-1", at(4, 18, 0))
	require.NoError(t, err)
	resumed, err := h.clock.OnResume(ctx, "t-1", at(5, 8, 0))
	require.NoError(t, err)

	assert.Zero(t, resumed.AccumulatedPauseMinutes)
	assert.Equal(t, state.ResolutionDueAt, resumed.ResolutionDueAt)
}

func TestRepeatedPauseAndResumeAreIgnored(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))

	_, err := h.clock.OnResume(ctx, "t-1", at(4, 10, 0))
	require.NoError(t, err)
	_, err = h.clock.OnPause(ctx, "t-1", at(4, 10, 0))
	require.NoError(t, err)
	second, err := h.clock.OnPause(ctx, "t-1", at(4, 11, 0))
	require.NoError(t, err)

	assert.Equal(t, at(4, 10, 0), *second.PausedAt)
}

func TestFirstResponseLeavesResolutionAlone(t *testing.T) {
	h := newHarness(t)
	state := h.create(t, ticket("t-1", domain.TicketPriorityHigh, monday))

	responded, err := h.clock.OnFirstResponse(context.Background(), "t-1", at(4, 9, 45))
	require.NoError(t, err)

	assert.Equal(t, domain.ClockResponded, responded.ClockState)
	require.NotNil(t, responded.FirstRespondedAt)
	assert.Equal(t, at(4, 9, 45), *responded.FirstRespondedAt)
	assert.Equal(t, state.ResolutionDueAt, responded.ResolutionDueAt)
}

func TestResolveWhilePausedClosesPause(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))

	_, err := h.clock.OnPause(ctx, "t-1", at(4, 10, 0))
	require.NoError(t, err)
	resolved, err := h.clock.OnResolve(ctx, "t-1", at(4, 12, 0))
	require.NoError(t, err)

	assert.Nil(t, resolved.PausedAt)
	assert.Equal(t, 120, resolved.AccumulatedPauseMinutes)
	assert.Equal(t, domain.ClockResolved, resolved.ClockState)
	assert.True(t, resolved.IsFrozen())
}

func TestResolvedStateIsFrozen(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))
	resolved, err := h.clock.OnResolve(ctx, "t-1", at(4, 11, 0))
	require.NoError(t, err)

	_, err = h.clock.OnPause(ctx, "t-1", at(4, 12, 0))
	require.NoError(t, err)
	_, err = h.clock.OnFirstResponse(ctx, "t-1", at(4, 12, 0))
	require.NoError(t, err)
	tk := ticket("t-1", domain.TicketPriorityUrgent, monday)
	_, err = h.clock.OnPriorityOrPolicyChange(ctx, tk, at(4, 12, 0))
	require.NoError(t, err)

	after, err := h.clock.GetSLAState(ctx, "t-1")
	require.NoError(t, err)
	assert.Nil(t, after.PausedAt)
	assert.Nil(t, after.FirstRespondedAt)
	assert.Equal(t, domain.TicketPriorityMedium, after.Priority)
	assert.Equal(t, resolved.ResolutionDueAt, after.ResolutionDueAt)
	assert.Equal(t, *resolved.ResolvedAt, *after.ResolvedAt)
}

func TestReopenPreservesElapsedTime(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))

	// 120 of 960 resolution minutes and 120 of 240 response minutes used.
	_, err := h.clock.OnResolve(ctx, "t-1", at(4, 11, 0))
	require.NoError(t, err)
	reopened, err := h.clock.OnReopen(ctx, "t-1", at(6, 9, 0))
	require.NoError(t, err)

	assert.Nil(t, reopened.ResolvedAt)
	assert.Equal(t, 1, reopened.ReopenCount)
	assert.Equal(t, domain.ClockRunning, reopened.ClockState)
	assert.Equal(t, at(6, 11, 0), reopened.FirstResponseDueAt)
	assert.Equal(t, at(7, 15, 0), reopened.ResolutionDueAt)
	assert.True(t, reopened.Tracks())
}

func TestReopenAfterDeadlineIsImmediatelyDue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityUrgent, monday))
	_, err := h.clock.OnFirstResponse(ctx, "t-1", at(4, 9, 30))
	require.NoError(t, err)

	_, err = h.clock.OnResolve(ctx, "t-1", at(5, 12, 0))
	require.NoError(t, err)
	reopened, err := h.clock.OnReopen(ctx, "t-1", at(6, 10, 0))
	require.NoError(t, err)

	assert.Equal(t, at(6, 10, 0), reopened.ResolutionDueAt)
	assert.Equal(t, domain.ClockResponded, reopened.ClockState)
	assert.Equal(t, at(4, 10, 0), reopened.FirstResponseDueAt)
}

func TestPriorityChangeModes(t *testing.T) {
	cases := []struct {
		name       string
		mode       config.PriorityChangeMode
		wantFirst  time.Time
		wantResolv time.Time
	}{
		{"from creation", config.PriorityChangeFromCreation, at(4, 10, 0), at(4, 13, 0)},
		{"from change", config.PriorityChangeFromChange, at(4, 11, 0), at(4, 14, 0)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, withMode(tc.mode))
			h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))

			tk := ticket("t-1", domain.TicketPriorityUrgent, monday)
			state, err := h.clock.OnPriorityOrPolicyChange(context.Background(), tk, at(4, 10, 0))
			require.NoError(t, err)

			assert.Equal(t, domain.TicketPriorityUrgent, state.Priority)
			assert.Equal(t, 60, state.FirstResponseMinutes)
			assert.Equal(t, tc.wantFirst, state.FirstResponseDueAt)
			assert.Equal(t, tc.wantResolv, state.ResolutionDueAt)
		})
	}
}

func TestPriorityChangeFromChangeDuringPause(t *testing.T) {
	h := newHarness(t, withMode(config.PriorityChangeFromChange))
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityLow, monday))
	_, err := h.clock.OnPause(ctx, "t-1", at(4, 10, 0))
	require.NoError(t, err)

	state, err := h.clock.OnPriorityOrPolicyChange(ctx, ticket("t-1", domain.TicketPriorityHigh, monday), at(6, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, at(6, 12, 0), state.FirstResponseDueAt)
	assert.Equal(t, at(7, 10, 0), state.ResolutionDueAt)
	require.NotNil(t, state.PausedAt)
	assert.Equal(t, at(6, 10, 0), *state.PausedAt)

	// Only the day held after the change pushes the new deadlines.
	state, err = h.clock.OnResume(ctx, "t-1", at(7, 10, 0))
	require.NoError(t, err)
	assert.Equal(t, at(7, 12, 0), state.FirstResponseDueAt)
	assert.Equal(t, at(8, 10, 0), state.ResolutionDueAt)
	assert.Equal(t, 1440, state.AccumulatedPauseMinutes)
}

func TestPriorityChangeCountsPastPauses(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))
	_, err := h.clock.OnPause(ctx, "t-1", at(4, 9, 30))
	require.NoError(t, err)
	_, err = h.clock.OnResume(ctx, "t-1", at(4, 10, 30))
	require.NoError(t, err)

	state, err := h.clock.OnPriorityOrPolicyChange(ctx, ticket("t-1", domain.TicketPriorityHigh, monday), at(4, 11, 0))
	require.NoError(t, err)

	assert.Equal(t, at(4, 12, 0), state.FirstResponseDueAt)
	assert.Equal(t, at(5, 10, 0), state.ResolutionDueAt)
}

func TestPriorityChangeRebindsPolicy(t *testing.T) {
	h := newHarness(t)
	h.create(t, ticket("t-1", domain.TicketPriorityLow, monday))

	tk := ticket("t-1", domain.TicketPriorityLow, monday)
	tk.Tags = []string{"vip"}
	state, err := h.clock.OnPriorityOrPolicyChange(context.Background(), tk, at(4, 10, 0))
	require.NoError(t, err)

	assert.Equal(t, "vip", state.PolicyID)
	assert.Equal(t, "always", state.CalendarID)
	assert.Equal(t, monday.Add(960*time.Minute), state.ResolutionDueAt)
}

func TestMissingCalendarPanicsWhenStrict(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	paused := monday
	require.NoError(t, h.store.States().SaveState(ctx, &domain.TicketSLAState{
		TicketID: "t-1", PolicyID: "standard", CalendarID: "ghost", Priority: domain.TicketPriorityLow,
		ClockState: domain.ClockPaused, TicketCreatedAt: monday, PausedAt: &paused,
		FirstResponseDueAt: monday, ResolutionDueAt: monday,
	}))

	assert.Panics(t, func() {
		_, _ = h.clock.OnResume(ctx, "t-1", at(5, 9, 0))
	})
}

func TestMissingCalendarDegradesWhenLenient(t *testing.T) {
	h := newHarness(t, lenient())
	ctx := context.Background()
	paused := monday
	require.NoError(t, h.store.States().SaveState(ctx, &domain.TicketSLAState{
		TicketID: "t-1", PolicyID: "standard", CalendarID: "ghost", Priority: domain.TicketPriorityLow,
		ClockState: domain.ClockPaused, TicketCreatedAt: monday, PausedAt: &paused,
		FirstResponseDueAt: monday, ResolutionDueAt: monday,
	}))

	state, err := h.clock.OnResume(ctx, "t-1", at(5, 9, 0))
	require.NoError(t, err)
	assert.True(t, state.NoSLA)
	assert.False(t, state.Tracks())

	resolved, err := h.clock.OnResolve(ctx, "t-1", at(5, 10, 0))
	require.NoError(t, err)
	assert.True(t, resolved.IsFrozen())
}

func storeDegraded(t *testing.T, h *harness, calendarID string) {
	t.Helper()
	ctx := context.Background()
	tk := ticket("t-1", domain.TicketPriorityUrgent, monday)
	require.NoError(t, h.store.Tickets().Upsert(ctx, &tk))
	require.NoError(t, h.store.States().SaveState(ctx, &domain.TicketSLAState{
		TicketID: "t-1", PolicyID: "standard", CalendarID: calendarID, Priority: domain.TicketPriorityUrgent,
		ClockState: domain.ClockRunning, TicketCreatedAt: monday, NoSLA: true,
		FirstResponseDueAt: monday, ResolutionDueAt: monday,
	}))
}

func TestDegradedTicketKeepsFirstResponse(t *testing.T) {
	h := newHarness(t, lenient())
	ctx := context.Background()
	storeDegraded(t, h, "ghost")

	state, err := h.clock.OnFirstResponse(ctx, "t-1", at(4, 9, 30))
	require.NoError(t, err)
	require.NotNil(t, state.FirstRespondedAt)
	assert.Equal(t, domain.ClockResponded, state.ClockState)
	assert.True(t, state.NoSLA)

	state, err = h.clock.OnPriorityOrPolicyChange(ctx, ticket("t-1", domain.TicketPriorityUrgent, monday), at(4, 9, 45))
	require.NoError(t, err)
	assert.False(t, state.NoSLA)
	require.NotNil(t, state.FirstRespondedAt)
	assert.Equal(t, at(4, 9, 30), *state.FirstRespondedAt)
	assert.Equal(t, at(4, 13, 0), state.ResolutionDueAt)

	result, err := h.monitor(nil).Sweep(ctx, at(5, 12, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, result.Recorded)
	events := h.breaches(t)
	require.Len(t, events, 1)
	assert.Equal(t, domain.BreachBreachedResolution, events[0].Kind)
}

func TestDegradedTicketRecordsPauses(t *testing.T) {
	h := newHarness(t, lenient())
	ctx := context.Background()
	storeDegraded(t, h, "office")

	state, err := h.clock.OnPause(ctx, "t-1", at(4, 10, 0))
	require.NoError(t, err)
	assert.True(t, state.IsPaused())
	assert.Equal(t, domain.ClockPaused, state.ClockState)

	state, err = h.clock.OnResume(ctx, "t-1", at(4, 11, 0))
	require.NoError(t, err)
	assert.False(t, state.IsPaused())
	assert.Equal(t, 60, state.AccumulatedPauseMinutes)
	assert.Equal(t, monday, state.ResolutionDueAt)

	state, err = h.clock.OnPriorityOrPolicyChange(ctx, ticket("t-1", domain.TicketPriorityMedium, monday), at(4, 11, 30))
	require.NoError(t, err)
	assert.False(t, state.NoSLA)
	assert.Equal(t, at(4, 14, 0), state.FirstResponseDueAt)
	assert.Equal(t, at(6, 10, 0), state.ResolutionDueAt)
}

func TestTransitionsOnUnknownTicket(t *testing.T) {
	h := newHarness(t)
	_, err := h.clock.OnPause(context.Background(), "missing", monday)
	assert.ErrorIs(t, err, domain.ErrStateNotFound)
}

func TestConcurrentTransitionsStaySerialized(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		pauseAt := monday.Add(time.Duration(i) * time.Minute)
		go func() {
			defer wg.Done()
			_, err := h.clock.OnPause(ctx, "t-1", pauseAt)
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := h.clock.OnResume(ctx, "t-1", pauseAt.Add(30*time.Second))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	state, err := h.clock.GetSLAState(ctx, "t-1")
	require.NoError(t, err)
	assert.GreaterOrEqual(t, state.AccumulatedPauseMinutes, 0)
	assert.Equal(t, state.IsPaused(), state.ClockState == domain.ClockPaused)
}

func TestViewClassifiesMilestones(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.create(t, ticket("t-1", domain.TicketPriorityMedium, monday))

	view, err := h.clock.View(ctx, "t-1", at(4, 12, 30))
	require.NoError(t, err)
	assert.Equal(t, MilestoneApproaching, view.FirstResponse.Status)
	assert.Equal(t, 30, view.FirstResponse.RemainingMinutes)
	assert.Equal(t, MilestoneOnTrack, view.Resolution.Status)

	view, err = h.clock.View(ctx, "t-1", at(4, 14, 0))
	require.NoError(t, err)
	assert.Equal(t, MilestoneBreached, view.FirstResponse.Status)
	assert.Equal(t, -60, view.FirstResponse.RemainingMinutes)

	_, err = h.clock.OnFirstResponse(ctx, "t-1", at(4, 12, 0))
	require.NoError(t, err)
	view, err = h.clock.View(ctx, "t-1", at(4, 14, 0))
	require.NoError(t, err)
	assert.Equal(t, MilestoneMet, view.FirstResponse.Status)
	assert.Equal(t, 60, view.FirstResponse.RemainingMinutes)

	_, err = h.clock.OnPause(ctx, "t-1", at(4, 15, 0))
	require.NoError(t, err)
	view, err = h.clock.View(ctx, "t-1", at(6, 15, 0))
	require.NoError(t, err)
	assert.Equal(t, MilestonePaused, view.Resolution.Status)
	assert.Equal(t, 960-360, view.Resolution.RemainingMinutes)
}
