// Package durationutil parses the shorthand durations admins type into SLA
// target fields.
package durationutil

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseMinutes converts shorthand such as "30m", "6h" or "1d" into minutes.
// A bare number is read as hours.
func ParseMinutes(input string) (int, error) {
	value := strings.ToLower(strings.TrimSpace(input))
	if value == "" {
		return 0, fmt.Errorf("empty duration")
	}

	multiplier := 60
	switch value[len(value)-1] {
	case 'm':
		multiplier = 1
		value = value[:len(value)-1]
	case 'h':
		value = value[:len(value)-1]
	case 'd':
		multiplier = 24 * 60
		value = value[:len(value)-1]
	}

	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", input)
	}
	if n < 0 {
		return 0, fmt.Errorf("negative duration %q", input)
	}
	return n * multiplier, nil
}

// FormatMinutes renders minutes back into the largest exact shorthand unit.
func FormatMinutes(minutes int) string {
	switch {
	case minutes > 0 && minutes%(24*60) == 0:
		return strconv.Itoa(minutes/(24*60)) + "d"
	case minutes > 0 && minutes%60 == 0:
		return strconv.Itoa(minutes/60) + "h"
	default:
		return strconv.Itoa(minutes) + "m"
	}
}
