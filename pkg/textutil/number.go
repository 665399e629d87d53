package textutil

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

// SafeFloat parses text as a float64, returning def when it cannot. NaN and
// infinities count as unparsable since they cannot be encoded as JSON.
func SafeFloat(text string, def *float64) *float64 {
	value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return def
	}
	return &value
}

// SafeFloatOr is SafeFloat with a non-nil default.
func SafeFloatOr(text string, def float64) float64 {
	return *SafeFloat(text, &def)
}

var numberRegex = regexp.MustCompile(`[0-9]+(\.[0-9]+)?`)

// ExtractNumber returns the first run of digits (with an optional fractional
// part) found in text, or nil if there is none.
func ExtractNumber(text string) *float64 {
	match := numberRegex.FindString(text)
	if match == "" {
		return nil
	}
	value, err := strconv.ParseFloat(match, 64)
	if err != nil {
		return nil
	}
	return &value
}
