/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// DaySet is a set of weekday indices, 0=Sunday through 6=Saturday.
// It is stored as a JSON array string such as "[1,3,5]".
type DaySet uint8

const allDays DaySet = 1<<7 - 1

// NewDaySet builds a set from weekday indices. Indices outside 0..6 are rejected.
func NewDaySet(days ...int) (DaySet, error) {
	var s DaySet
	for _, d := range days {
		if d < 0 || d > 6 {
			return 0, fmt.Errorf("weekday index %d out of range 0-6", d)
		}
		s |= 1 << uint(d)
	}
	return s, nil
}

// MustDaySet is NewDaySet for constant input.
func MustDaySet(days ...int) DaySet {
	s, err := NewDaySet(days...)
	if err != nil {
		panic(err)
	}
	return s
}

// ParseDaySet parses the stored form. Empty input yields the empty set.
// Both "[1,3,5]" and "1,3,5" are accepted.
func ParseDaySet(raw string) (DaySet, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" || raw == "null" {
		return 0, nil
	}
	if !strings.HasPrefix(raw, "[") {
		raw = "[" + raw + "]"
	}
	var days []int
	if err := json.Unmarshal([]byte(raw), &days); err != nil {
		return 0, fmt.Errorf("parse custom days %q: %w", raw, err)
	}
	return NewDaySet(days...)
}

// Has reports whether the weekday is in the set.
func (s DaySet) Has(day time.Weekday) bool {
	if day < time.Sunday || day > time.Saturday {
		return false
	}
	return s&(1<<uint(day)) != 0
}

// Intersects reports whether the two sets share a weekday.
func (s DaySet) Intersects(other DaySet) bool {
	return s&other&allDays != 0
}

// Empty reports whether the set holds no weekday.
func (s DaySet) Empty() bool {
	return s&allDays == 0
}

// Days returns the weekday indices in ascending order.
func (s DaySet) Days() []int {
	days := make([]int, 0, 7)
	for d := 0; d <= 6; d++ {
		if s&(1<<uint(d)) != 0 {
			days = append(days, d)
		}
	}
	sort.Ints(days)
	return days
}

// Weekdays returns the set as time.Weekday values.
func (s DaySet) Weekdays() []time.Weekday {
	days := s.Days()
	out := make([]time.Weekday, len(days))
	for i, d := range days {
		out[i] = time.Weekday(d)
	}
	return out
}

// String returns the stored form, e.g. "[1,3,5]".
func (s DaySet) String() string {
	days := s.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = fmt.Sprint(d)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// Value implements driver.Valuer. The empty set is stored as NULL.
func (s DaySet) Value() (driver.Value, error) {
	if s.Empty() {
		return nil, nil
	}
	return s.String(), nil
}

// Scan implements sql.Scanner.
func (s *DaySet) Scan(value interface{}) error {
	var raw string
	switch v := value.(type) {
	case nil:
		*s = 0
		return nil
	case []byte:
		raw = string(v)
	case string:
		raw = v
	default:
		return fmt.Errorf("failed to scan DaySet from %T", value)
	}
	parsed, err := ParseDaySet(raw)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalJSON encodes the set as an array of weekday indices.
func (s DaySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Days())
}

// UnmarshalJSON accepts an array of indices, null, or the stored string form.
func (s *DaySet) UnmarshalJSON(data []byte) error {
	trimmed := strings.TrimSpace(string(data))
	if trimmed == "null" {
		*s = 0
		return nil
	}
	if strings.HasPrefix(trimmed, `"`) {
		var raw string
		if err := json.Unmarshal(data, &raw); err != nil {
			return err
		}
		parsed, err := ParseDaySet(raw)
		if err != nil {
			return err
		}
		*s = parsed
		return nil
	}
	var days []int
	if err := json.Unmarshal(data, &days); err != nil {
		return fmt.Errorf("custom days must be an array of weekday indices: %w", err)
	}
	parsed, err := NewDaySet(days...)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
