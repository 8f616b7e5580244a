package store

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// parseXSDDateTime parses an xsd:dateTime lexical form, reporting whether a
// timezone was present and, if so, its offset in minutes (needed because
// "2011-01-01T00:00:00" and "2011-01-01T00:00:00Z" are distinct values under
// SPARQL comparison semantics).
func parseXSDDateTime(value string) (t time.Time, hasTZ bool, offsetMin int, err error) {
	v := strings.TrimSpace(value)
	if strings.HasSuffix(v, "Z") || hasExplicitOffset(v) {
		t, err = time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return time.Time{}, false, 0, fmt.Errorf("store: invalid dateTime literal %q: %w", value, err)
		}
		_, offSec := t.Zone()
		return t.UTC(), true, offSec / 60, nil
	}
	t, err = time.Parse("2006-01-02T15:04:05.999999999", v)
	if err != nil {
		return time.Time{}, false, 0, fmt.Errorf("store: invalid dateTime literal %q: %w", value, err)
	}
	return t.UTC(), false, 0, nil
}

// hasExplicitOffset reports whether v ends in a +HH:MM or -HH:MM timezone
// offset, distinguishing that from a plain "2011-05-01T10:20:30" value (the
// sign characters also appear in the date portion, so only the tail matters).
func hasExplicitOffset(v string) bool {
	if len(v) < 6 {
		return false
	}
	tail := v[len(v)-6:]
	return (tail[0] == '+' || tail[0] == '-') && tail[3] == ':'
}

// parseXSDDuration parses an xsd:duration lexical form (PnYnMnDTnHnMnS) into
// its month and second components.
func parseXSDDuration(value string) (months int64, seconds float64, err error) {
	v := strings.TrimSpace(value)
	sign := int64(1)
	if strings.HasPrefix(v, "-") {
		sign, v = -1, v[1:]
	}
	if !strings.HasPrefix(v, "P") {
		return 0, 0, fmt.Errorf("store: invalid duration literal %q", value)
	}
	v = v[1:]

	datePart, timePart, hasTime := strings.Cut(v, "T")

	years, datePart, err := takeComponent(datePart, 'Y')
	if err != nil {
		return 0, 0, err
	}
	monthsPart, datePart, err := takeComponent(datePart, 'M')
	if err != nil {
		return 0, 0, err
	}
	days, _, err := takeComponent(datePart, 'D')
	if err != nil {
		return 0, 0, err
	}

	var hours, minutes, secs float64
	if hasTime {
		hours, timePart, err = takeComponentF(timePart, 'H')
		if err != nil {
			return 0, 0, err
		}
		minutes, timePart, err = takeComponentF(timePart, 'M')
		if err != nil {
			return 0, 0, err
		}
		secs, _, err = takeComponentF(timePart, 'S')
		if err != nil {
			return 0, 0, err
		}
	}

	months = sign * (years*12 + monthsPart)
	seconds = float64(sign) * (days*86400 + hours*3600 + minutes*60 + secs)
	return months, seconds, nil
}

func takeComponent(s string, unit byte) (int64, string, error) {
	idx := strings.IndexByte(s, unit)
	if idx < 0 {
		return 0, s, nil
	}
	n, err := strconv.ParseInt(s[:idx], 10, 64)
	if err != nil {
		return 0, s, fmt.Errorf("store: invalid duration component %q: %w", s[:idx+1], err)
	}
	return n, s[idx+1:], nil
}

func takeComponentF(s string, unit byte) (float64, string, error) {
	idx := strings.IndexByte(s, unit)
	if idx < 0 {
		return 0, s, nil
	}
	n, err := strconv.ParseFloat(s[:idx], 64)
	if err != nil {
		return 0, s, fmt.Errorf("store: invalid duration component %q: %w", s[:idx+1], err)
	}
	return n, s[idx+1:], nil
}
