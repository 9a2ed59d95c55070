package linkedin

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"insights-backend/internal/components/telemetry"
	"insights-backend/internal/record"
	"insights-backend/lib/htmlutil"

	"github.com/PuerkitoBio/goquery"
)

const report_field = "extract-field"

// fields records what each field extraction produced. A field no strategy found is
// absent, a field that was found but could not be parsed is an extraction error.
type fields struct {
	section record.Section
	missing *record.Missing
	tel     telemetry.API
}

func (f fields) absent(field string) {
	f.missing.Add(f.section, field, record.ReasonAbsent)
}

func (f fields) broken(field string, err error) {
	f.missing.Add(f.section, field, record.ReasonExtractionError)
	f.tel.ReportWarning(report_field, fmt.Sprintf("%s.%s", f.section, field), err)
}

// firstText returns the first non-empty text among selectors, evaluated in order.
func firstText(root *goquery.Selection, selectors ...string) string {
	for _, selector := range selectors {
		var found string
		root.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			found = htmlutil.SelectionText(sel)
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// firstAttr returns the first non-empty attribute value among selectors.
func firstAttr(root *goquery.Selection, attr string, selectors ...string) string {
	for _, selector := range selectors {
		var found string
		root.Find(selector).EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			value, _ := sel.Attr(attr)
			found = strings.TrimSpace(value)
			return found == ""
		})
		if found != "" {
			return found
		}
	}
	return ""
}

// firstMatch returns the first capture group of the first pattern matching body.
func firstMatch(body string, patterns ...*regexp.Regexp) string {
	for _, pattern := range patterns {
		match := pattern.FindStringSubmatch(body)
		if len(match) > 1 && strings.TrimSpace(match[1]) != "" {
			return strings.TrimSpace(match[1])
		}
	}
	return ""
}

func (f fields) text(field, value string) *string {
	if value == "" {
		f.absent(field)
		return nil
	}
	return &value
}

// count parses a display count, an empty text means the field was not found.
func (f fields) count(field, text string) *int64 {
	if text == "" {
		f.absent(field)
		return nil
	}
	n, err := htmlutil.ParseCount(text)
	if err != nil {
		f.broken(field, err)
		return nil
	}
	return &n
}

// optionalCount is for counters the target omits when they are zero, like reactions
// on a fresh post.
func (f fields) optionalCount(field, text string) *int64 {
	if text == "" {
		var zero int64
		return &zero
	}
	return f.count(field, text)
}

// timestamp parses either an absolute datetime attribute or a relative age shown next to
// the author.
func (f fields) timestamp(field, datetime, relative string, now time.Time) *time.Time {
	if datetime != "" {
		t, err := time.Parse(time.RFC3339, datetime)
		if err == nil {
			t = t.UTC()
			return &t
		}
		if relative == "" {
			f.broken(field, err)
			return nil
		}
	}
	if relative == "" {
		f.absent(field)
		return nil
	}
	// "3d • Edited •" only the leading age matters
	relative = strings.TrimSpace(strings.SplitN(relative, "•", 2)[0])
	t, err := htmlutil.ParseRelativeAge(relative, now)
	if err != nil {
		f.broken(field, err)
		return nil
	}
	return &t
}

var genericTitles = map[string]struct{}{
	"linkedin":            {},
	"join linkedin":       {},
	"sign up":             {},
	"welcome to linkedin": {},
	"log in":              {},
}

func isGenericTitle(s string) bool {
	_, ok := genericTitles[strings.ToLower(strings.TrimSpace(s))]
	return ok
}

func trimTitleSuffix(s string) string {
	s = strings.TrimSpace(s)
	for _, suffix := range []string{"| LinkedIn", "- LinkedIn"} {
		s = strings.TrimSpace(strings.TrimSuffix(s, suffix))
	}
	return s
}

type unparsableError struct {
	what string
	text string
}

func (e unparsableError) Error() string {
	return fmt.Sprintf("could not parse %s from %q", e.what, e.text)
}

func errUnparsable(what, text string) error {
	return unparsableError{what: what, text: text}
}
