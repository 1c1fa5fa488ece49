package middleware

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Limit admits Count requests per Window.
type Limit struct {
	Count  int
	Window time.Duration
}

func (l Limit) String() string {
	return fmt.Sprintf("%d per %s", l.Count, l.Window)
}

var units = map[string]time.Duration{
	"second": time.Second,
	"minute": time.Minute,
	"hour":   time.Hour,
	"day":    24 * time.Hour,
}

// ParseLimits reads limit strings such as "100 per hour;20 per minute" or
// "10/minute". Items may be separated by ';' or ','.
func ParseLimits(s string) ([]Limit, error) {
	var limits []Limit
	for _, item := range strings.FieldsFunc(s, func(r rune) bool { return r == ';' || r == ',' }) {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		limit, err := parseLimit(item)
		if err != nil {
			return nil, err
		}
		limits = append(limits, limit)
	}
	if len(limits) == 0 {
		return nil, fmt.Errorf("rate limit %q: no limits", s)
	}
	return limits, nil
}

func parseLimit(item string) (Limit, error) {
	var count, unit string
	if before, after, ok := strings.Cut(item, "/"); ok {
		count, unit = before, after
	} else {
		fields := strings.Fields(item)
		if len(fields) != 3 || strings.ToLower(fields[1]) != "per" {
			return Limit{}, fmt.Errorf("rate limit %q: want \"N per unit\"", item)
		}
		count, unit = fields[0], fields[2]
	}

	n, err := strconv.Atoi(strings.TrimSpace(count))
	if err != nil || n <= 0 {
		return Limit{}, fmt.Errorf("rate limit %q: count must be a positive integer", item)
	}
	unit = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(unit)), "s")
	window, ok := units[unit]
	if !ok {
		return Limit{}, fmt.Errorf("rate limit %q: unknown unit %q", item, unit)
	}
	return Limit{Count: n, Window: window}, nil
}
