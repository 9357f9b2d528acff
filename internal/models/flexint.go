package models

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// FlexInt is an integer that decodes from a JSON number, a numeric string, or
// an "HH:MM:SS" interval (as seconds). The server is not consistent about which
// form it uses, remaining_time in particular.
type FlexInt int64

// Int64 returns the value as an int64.
func (f FlexInt) Int64() int64 { return int64(f) }

// Int returns the value as an int.
func (f FlexInt) Int() int { return int(f) }

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexInt) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = 0
		return nil
	}
	s := strings.TrimSpace(strings.Trim(string(b), `"`))
	if s == "" {
		*f = 0
		return nil
	}
	n, err := parseFlexInt(s)
	if err != nil {
		return err
	}
	*f = FlexInt(n)
	return nil
}

func parseFlexInt(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	if strings.Contains(s, ":") {
		return parseClock(s)
	}
	fl, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q: %w", s, err)
	}
	return int64(fl), nil
}

// parseClock turns "HH:MM:SS" or "MM:SS" (optionally with fractional seconds)
// into whole seconds.
func parseClock(s string) (int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) > 3 {
		return 0, fmt.Errorf("invalid interval %q", s)
	}
	var total time.Duration
	for i, p := range parts {
		unit := time.Second
		switch len(parts) - i {
		case 3:
			unit = time.Hour
		case 2:
			unit = time.Minute
		}
		v, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, fmt.Errorf("invalid interval %q: %w", s, err)
		}
		total += time.Duration(v * float64(unit))
	}
	return int64(total / time.Second), nil
}
