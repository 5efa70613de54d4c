package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/spec-kit/sla-engine/internal/domain"
	"github.com/spec-kit/sla-engine/pkg/util/durationutil"
)

// Seed is the YAML catalog applied when the policy store is empty.
type Seed struct {
	Calendars []SeedCalendar `yaml:"calendars"`
	Policies  []SeedPolicy   `yaml:"policies"`
}

// SeedCalendar describes a calendar with human friendly windows.
type SeedCalendar struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Kind     string           `yaml:"kind"`
	Timezone string           `yaml:"timezone"`
	Windows  []SeedWindow     `yaml:"windows"`
	Holidays []domain.Holiday `yaml:"holidays"`
}

// SeedWindow opens the listed weekdays between Open and Close (HH:MM).
type SeedWindow struct {
	Days  []string `yaml:"days"`
	Open  string   `yaml:"open"`
	Close string   `yaml:"close"`
}

// SeedPolicy describes a policy with shorthand targets keyed by priority.
type SeedPolicy struct {
	ID          string                  `yaml:"id"`
	Name        string                  `yaml:"name"`
	Description string                  `yaml:"description"`
	Default     bool                    `yaml:"default"`
	Active      *bool                   `yaml:"active"`
	Conditions  domain.PolicyConditions `yaml:"conditions"`
	Targets     map[string]SeedTarget   `yaml:"targets"`
}

// SeedTarget uses shorthand durations such as "30m", "6h" or "1d".
type SeedTarget struct {
	FirstResponse string `yaml:"first_response"`
	Resolution    string `yaml:"resolution"`
	Calendar      string `yaml:"calendar"`
	Escalation    bool   `yaml:"escalation"`
}

var weekdayNames = map[string]time.Weekday{
	"sun": time.Sunday, "mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday,
	"thu": time.Thursday, "fri": time.Friday, "sat": time.Saturday,
}

// LoadSeed reads a seed catalog from disk.
func LoadSeed(path string) (*Seed, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(raw, &seed); err != nil {
		return nil, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return &seed, nil
}

// DomainCalendars converts seed calendars into domain calendars.
func (s *Seed) DomainCalendars() ([]domain.Calendar, error) {
	out := make([]domain.Calendar, 0, len(s.Calendars))
	for _, sc := range s.Calendars {
		cal := domain.Calendar{
			ID:       sc.ID,
			Name:     sc.Name,
			Kind:     domain.CalendarKind(strings.ToUpper(sc.Kind)),
			Timezone: sc.Timezone,
			Holidays: sc.Holidays,
		}
		for _, w := range sc.Windows {
			open, err := parseClock(w.Open)
			if err != nil {
				return nil, fmt.Errorf("calendar %s: %w", sc.ID, err)
			}
			closing, err := parseClock(w.Close)
			if err != nil {
				return nil, fmt.Errorf("calendar %s: %w", sc.ID, err)
			}
			for _, day := range w.Days {
				weekday, ok := weekdayNames[strings.ToLower(day)[:min(3, len(day))]]
				if !ok {
					return nil, fmt.Errorf("calendar %s: unknown weekday %q", sc.ID, day)
				}
				cal.Windows = append(cal.Windows, domain.BusinessWindow{Weekday: weekday, OpenMinute: open, CloseMinute: closing})
			}
		}
		out = append(out, cal)
	}
	return out, nil
}

// DomainPolicies converts seed policies into domain policies, keeping file order.
func (s *Seed) DomainPolicies() ([]domain.SLAPolicy, error) {
	out := make([]domain.SLAPolicy, 0, len(s.Policies))
	for i, sp := range s.Policies {
		policy := domain.SLAPolicy{
			ID:          sp.ID,
			Name:        sp.Name,
			Description: sp.Description,
			IsDefault:   sp.Default,
			IsActive:    sp.Active == nil || *sp.Active,
			Position:    i + 1,
			Conditions:  sp.Conditions,
			Targets:     make(map[domain.TicketPriority]domain.SLATarget, len(sp.Targets)),
		}
		for key, st := range sp.Targets {
			priority := domain.TicketPriority(strings.ToUpper(key))
			target, err := st.toDomain(priority)
			if err != nil {
				return nil, fmt.Errorf("policy %s: %w", sp.ID, err)
			}
			policy.Targets[priority] = target
		}
		out = append(out, policy)
	}
	return out, nil
}

func (t SeedTarget) toDomain(priority domain.TicketPriority) (domain.SLATarget, error) {
	response, err := durationutil.ParseMinutes(t.FirstResponse)
	if err != nil {
		return domain.SLATarget{}, fmt.Errorf("%s first_response: %w", priority, err)
	}
	resolution, err := durationutil.ParseMinutes(t.Resolution)
	if err != nil {
		return domain.SLATarget{}, fmt.Errorf("%s resolution: %w", priority, err)
	}
	return domain.SLATarget{
		Priority:             priority,
		FirstResponseMinutes: response,
		ResolutionMinutes:    resolution,
		CalendarRef:          t.Calendar,
		EscalationEnabled:    t.Escalation,
	}, nil
}

// parseClock reads HH:MM into minutes after midnight; "24:00" closes a day.
func parseClock(value string) (int, error) {
	parts := strings.Split(strings.TrimSpace(value), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 || h < 0 || h > 24 || (h == 24 && m != 0) {
		return 0, fmt.Errorf("invalid time %q", value)
	}
	return h*60 + m, nil
}
