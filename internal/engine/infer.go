package engine

import (
	"strconv"
	"strings"
	"time"
)

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// inferColumn picks the narrowest storage that parses every non-null value:
// int64, float64, bool, timestamp, then utf8. An all-null column is float64.
func inferColumn(name string, raw []string, valid []bool, forceText bool) *Column {
	valid = compactValid(valid)
	n := len(raw)

	present := 0
	for i := 0; i < n; i++ {
		if valid == nil || valid[i] {
			present++
		}
	}
	if forceText || n == 0 {
		return NewStringColumn(name, raw, valid)
	}
	if present == 0 {
		return NewFloatColumn(name, make([]float64, n), valid)
	}

	if ints, ok := parseAll(raw, valid, func(s string) (int64, error) {
		return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	}); ok {
		return NewIntColumn(name, ints, valid)
	}
	if floats, ok := parseAll(raw, valid, func(s string) (float64, error) {
		return strconv.ParseFloat(strings.TrimSpace(s), 64)
	}); ok {
		return NewFloatColumn(name, floats, valid)
	}
	if bools, ok := parseAll(raw, valid, parseBool); ok {
		return NewBoolColumn(name, bools, valid)
	}
	if times, ok := parseAll(raw, valid, parseTime); ok {
		return NewTimeColumn(name, times, valid)
	}
	return NewStringColumn(name, raw, valid)
}

func parseAll[T any](raw []string, valid []bool, parse func(string) (T, error)) ([]T, bool) {
	out := make([]T, len(raw))
	for i, s := range raw {
		if valid != nil && !valid[i] {
			continue
		}
		v, err := parse(s)
		if err != nil {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// parseBool accepts only true/false spellings; 0/1 stay numeric.
func parseBool(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	}
	return false, strconv.ErrSyntax
}

func parseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	var err error
	for _, layout := range timeLayouts {
		var ts time.Time
		if ts, err = time.Parse(layout, s); err == nil {
			return ts, nil
		}
	}
	return time.Time{}, err
}
