package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RateRule is a parsed "<count>/<unit>" limit.
type RateRule struct {
	Count int
	Per   time.Duration
}

// String renders the rule back into its config form.
func (r RateRule) String() string {
	for unit, d := range rateUnits {
		if d == r.Per {
			return fmt.Sprintf("%d/%s", r.Count, unit)
		}
	}
	return fmt.Sprintf("%d/%s", r.Count, r.Per)
}

var rateUnits = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseRateLimit parses rules such as "200/hour" or "5 per minute".
func ParseRateLimit(s string) (RateRule, error) {
	norm := strings.ToLower(strings.TrimSpace(s))
	norm = strings.Replace(norm, " per ", "/", 1)

	countStr, unit, ok := strings.Cut(norm, "/")
	if !ok {
		return RateRule{}, fmt.Errorf("rate limit must look like '<count>/<unit>', got %q", s)
	}
	count, err := strconv.Atoi(strings.TrimSpace(countStr))
	if err != nil || count <= 0 {
		return RateRule{}, fmt.Errorf("rate limit count must be a positive integer, got %q", s)
	}
	unit = strings.TrimSuffix(strings.TrimSpace(unit), "s")
	per, ok := rateUnits[unit]
	if !ok {
		return RateRule{}, fmt.Errorf("rate limit unit must be second, minute, hour or day, got %q", s)
	}
	return RateRule{Count: count, Per: per}, nil
}

// ParseRateLimits parses every rule, stopping at the first bad one.
func ParseRateLimits(rules []string) ([]RateRule, error) {
	out := make([]RateRule, 0, len(rules))
	for _, r := range rules {
		rule, err := ParseRateLimit(r)
		if err != nil {
			return nil, err
		}
		out = append(out, rule)
	}
	return out, nil
}
