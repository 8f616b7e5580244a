package expr

import (
	"strconv"
	"strings"
	"time"
)

func parseInt(s string, out *int64) (int64, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, err
	}
	*out = v
	return v, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}

// xsdInstantLayouts covers the lexical forms comparePartialOrder needs to
// order: full dateTime, date-only, and time-only, each optionally carrying
// a timezone offset. The zoneless dateTime entries match the lexical form
// pkg/store/decoding.go reconstructs for a stored no-offset dateTime (the
// same layout pkg/store/temporal.go's parseXSDDateTime accepts), so a value
// round-tripped through the store parses here too.
var xsdInstantLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
	"2006-01-02Z07:00",
	"2006-01-02",
	"15:04:05Z07:00",
	"15:04:05",
}

func parseXSDInstant(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range xsdInstantLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		} else {
			lastErr = err
		}
	}
	return time.Time{}, lastErr
}

// xsdInstantHasTimezone reports whether value's lexical form carries an
// explicit timezone offset (a trailing "Z" or "+HH:MM"/"-HH:MM"), mirroring
// pkg/store/temporal.go's hasExplicitOffset check. parseXSDInstant alone
// can't answer this: a floating dateTime and one with an explicit "Z" both
// parse to the same UTC time.Time.
func xsdInstantHasTimezone(value string) bool {
	v := strings.TrimSpace(value)
	if strings.HasSuffix(v, "Z") {
		return true
	}
	if len(v) < 6 {
		return false
	}
	tail := v[len(v)-6:]
	return (tail[0] == '+' || tail[0] == '-') && tail[3] == ':'
}
