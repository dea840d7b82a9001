package config

import (
	"fmt"
	"strconv"
	"time"
)

// ParseLifetime parses token lifetimes of the form "<integer><unit>",
// unit one of s, m, h, d. The "d" unit is why time.ParseDuration alone
// is not enough.
func ParseLifetime(v string) (time.Duration, error) {
	if len(v) < 2 {
		return 0, fmt.Errorf("invalid lifetime %q", v)
	}

	n, err := strconv.Atoi(v[:len(v)-1])
	if err != nil {
		return 0, fmt.Errorf("invalid lifetime %q: %w", v, err)
	}
	if n <= 0 {
		return 0, fmt.Errorf("invalid lifetime %q: must be positive", v)
	}

	var unit time.Duration
	switch v[len(v)-1] {
	case 's':
		unit = time.Second
	case 'm':
		unit = time.Minute
	case 'h':
		unit = time.Hour
	case 'd':
		unit = 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid lifetime %q: unknown unit %q", v, v[len(v)-1:])
	}

	return time.Duration(n) * unit, nil
}

// MustLifetime is for startup wiring: a bad lifetime is a configuration
// error, never a per-request one.
func MustLifetime(v string) time.Duration {
	d, err := ParseLifetime(v)
	if err != nil {
		panic(err)
	}
	return d
}
