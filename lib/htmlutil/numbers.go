package htmlutil

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var countRegex = regexp.MustCompile(`(?i)(\d[\d,.]*)\s*([kmb])?\b`)

// ErrNoNumber is returned when the text does not contain a count at all, as opposed to
// containing one that does not parse.
var ErrNoNumber = fmt.Errorf("no number in text")

// ParseCount parses display counts like "1,234", "1.2K followers" or "3M".
func ParseCount(text string) (int64, error) {
	text = strings.TrimSpace(text)
	match := countRegex.FindStringSubmatch(text)
	if match == nil {
		return 0, ErrNoNumber
	}

	digits := strings.ReplaceAll(match[1], ",", "")
	digits = strings.TrimRight(digits, ".")
	value, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return 0, fmt.Errorf("parse count %q: %w", match[0], err)
	}

	switch strings.ToUpper(match[2]) {
	case "K":
		value *= 1_000
	case "M":
		value *= 1_000_000
	case "B":
		value *= 1_000_000_000
	}
	if value < 0 || value > math.MaxInt64/2 {
		return 0, fmt.Errorf("count out of range %q", match[0])
	}
	return int64(math.Round(value)), nil
}

// CountNear finds the count that precedes keyword in text, e.g. CountNear("12,345 followers
// · 500 employees", "follower") is 12345.
func CountNear(text, keyword string) (int64, bool, error) {
	lower := strings.ToLower(text)
	idx := strings.Index(lower, strings.ToLower(keyword))
	if idx < 0 {
		return 0, false, nil
	}
	prefix := text[:idx]
	// the count belongs to the last segment before the keyword
	if sep := strings.LastIndexAny(prefix, "·|•"); sep >= 0 {
		prefix = prefix[sep:]
	}
	n, err := ParseCount(prefix)
	if err == ErrNoNumber {
		return 0, false, nil
	}
	if err != nil {
		return 0, true, err
	}
	return n, true, nil
}

var relativeAgeRegex = regexp.MustCompile(`(?i)^(\d+)\s*(s|m|min|mins|h|hr|hrs|d|w|wk|mo|mos|y|yr|yrs)\b`)

// ParseRelativeAge parses the short ages shown on posts ("5m", "3d", "2w", "1mo", "1yr")
// into the absolute time relative to now. Months and years are approximate.
func ParseRelativeAge(text string, now time.Time) (time.Time, error) {
	text = strings.TrimSpace(text)
	lower := strings.ToLower(text)
	if lower == "now" || strings.HasPrefix(lower, "just now") {
		return now, nil
	}

	match := relativeAgeRegex.FindStringSubmatch(text)
	if match == nil {
		return time.Time{}, fmt.Errorf("unrecognized relative age %q", text)
	}
	n, err := strconv.Atoi(match[1])
	if err != nil {
		return time.Time{}, err
	}

	var unit time.Duration
	switch strings.ToLower(match[2]) {
	case "s":
		unit = time.Second
	case "m", "min", "mins":
		unit = time.Minute
	case "h", "hr", "hrs":
		unit = time.Hour
	case "d":
		unit = 24 * time.Hour
	case "w", "wk":
		unit = 7 * 24 * time.Hour
	case "mo", "mos":
		return now.AddDate(0, -n, 0), nil
	case "y", "yr", "yrs":
		return now.AddDate(-n, 0, 0), nil
	}
	return now.Add(-time.Duration(n) * unit), nil
}
