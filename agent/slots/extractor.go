// Package slots pulls booking details out of free-form user text. Extraction
// is purely lexical; anything it finds is a hint for prompts, never a
// substitute for what the tools validate.
package slots

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// Slots are the date and time mentioned in a message, both optional.
// Date is normalized to YYYY-MM-DD and TimeOfDay to HH:MM.
type Slots struct {
	Date      string
	TimeOfDay string
}

func (s Slots) Empty() bool {
	return s.Date == "" && s.TimeOfDay == ""
}

var (
	isoDatePattern    = regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`)
	dottedDatePattern = regexp.MustCompile(`\b(\d{1,2})\.(\d{1,2})(?:\.(\d{4}))?\b`)
	clockPattern      = regexp.MustCompile(`\b(\d{1,2}):(\d{2})\b`)
)

// ExtractAt scans text for a date and a time relative to now.
func ExtractAt(text string, now time.Time) Slots {
	var out Slots
	lower := strings.ToLower(text)

	switch {
	case strings.Contains(lower, "tomorrow"):
		out.Date = now.AddDate(0, 0, 1).Format("2006-01-02")
	case strings.Contains(lower, "today"):
		out.Date = now.Format("2006-01-02")
	}

	if out.Date == "" {
		if m := isoDatePattern.FindStringSubmatch(text); m != nil {
			if t, err := time.Parse("2006-01-02", m[0]); err == nil {
				out.Date = t.Format("2006-01-02")
			}
		}
	}
	if out.Date == "" {
		if m := dottedDatePattern.FindStringSubmatch(text); m != nil {
			day, _ := strconv.Atoi(m[1])
			month, _ := strconv.Atoi(m[2])
			year := now.Year()
			if m[3] != "" {
				year, _ = strconv.Atoi(m[3])
			}
			candidate := fmt.Sprintf("%02d.%02d.%04d", day, month, year)
			if t, err := time.Parse("02.01.2006", candidate); err == nil {
				out.Date = t.Format("2006-01-02")
			}
		}
	}

	if m := clockPattern.FindStringSubmatch(text); m != nil {
		hour, _ := strconv.Atoi(m[1])
		if t, err := time.Parse("15:04", fmt.Sprintf("%02d:%s", hour, m[2])); err == nil {
			out.TimeOfDay = t.Format("15:04")
		}
	}
	return out
}

// Merge overlays any newly heard values on top of previously known ones.
func Merge(known, heard Slots) Slots {
	if heard.Date != "" {
		known.Date = heard.Date
	}
	if heard.TimeOfDay != "" {
		known.TimeOfDay = heard.TimeOfDay
	}
	return known
}
