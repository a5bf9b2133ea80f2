// Package ics parses busy-calendar feeds in iCalendar text format.
//
// The parser is deliberately small: it extracts VEVENT blocks and the handful
// of fields the availability pipeline needs. Timezone handling is binary — a
// value suffixed with Z is UTC, anything else is local wall-clock time. TZID
// parameters are ignored; the deployment assumes a single practice timezone.
package ics

import (
	"strings"
	"time"
)

// Event is one busy interval from the feed.
type Event struct {
	UID         string
	Summary     string
	Description string
	Location    string
	Start       time.Time
	End         time.Time
	AllDay      bool
}

const (
	beginEvent = "BEGIN:VEVENT"
	endEvent   = "END:VEVENT"
)

// Parse extracts events from raw iCalendar text. Events missing UID, DTSTART
// or DTEND are dropped; malformed single fields never fail the whole parse.
func Parse(data []byte) []Event {
	return ParseString(string(data))
}

func ParseString(raw string) []Event {
	lines := unfold(raw)

	var events []Event
	var cur *Event
	var curAllDayStart, curAllDayEnd bool

	for _, line := range lines {
		switch {
		case line == beginEvent:
			cur = &Event{}
			curAllDayStart, curAllDayEnd = false, false
		case line == endEvent:
			if cur != nil && cur.UID != "" && !cur.Start.IsZero() && !cur.End.IsZero() && cur.Start.Before(cur.End) {
				cur.AllDay = curAllDayStart && curAllDayEnd
				events = append(events, *cur)
			}
			cur = nil
		case cur != nil:
			name, params, value, ok := splitProperty(line)
			if !ok {
				continue
			}
			switch name {
			case "UID":
				cur.UID = value
			case "SUMMARY":
				cur.Summary = unescape(value)
			case "DESCRIPTION":
				cur.Description = unescape(value)
			case "LOCATION":
				cur.Location = unescape(value)
			case "DTSTART":
				cur.Start, curAllDayStart = parseDateTime(value, params)
			case "DTEND":
				cur.End, curAllDayEnd = parseDateTime(value, params)
			}
		}
	}

	return events
}

// unfold joins folded continuation lines (RFC 5545 §3.1) before field parsing.
func unfold(raw string) []string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	in := strings.Split(raw, "\n")

	var out []string
	for _, line := range in {
		if len(line) > 0 && (line[0] == ' ' || line[0] == '\t') && len(out) > 0 {
			out[len(out)-1] += line[1:]
			continue
		}
		out = append(out, line)
	}
	return out
}

// splitProperty breaks "NAME;PARAM=X;PARAM=Y:value" into its parts.
func splitProperty(line string) (name string, params []string, value string, ok bool) {
	key, value, found := strings.Cut(line, ":")
	if !found || key == "" {
		return "", nil, "", false
	}

	parts := strings.Split(key, ";")
	name = strings.ToUpper(strings.TrimSpace(parts[0]))
	if len(parts) > 1 {
		params = parts[1:]
	}
	return name, params, value, true
}

const (
	layoutDateTimeUTC   = "20060102T150405Z"
	layoutDateTimeLocal = "20060102T150405"
	layoutDate          = "20060102"
)

// fallbackLayouts is the best-effort pass for values that miss the iCalendar
// shapes. A field that fails all of these counts as absent.
var fallbackLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// parseDateTime handles the two value shapes the feed uses: date-only (a local
// all-day boundary) and date-time (UTC when Z-suffixed, local otherwise).
func parseDateTime(value string, params []string) (t time.Time, dateOnly bool) {
	value = strings.TrimSpace(value)

	if hasParam(params, "VALUE=DATE") || len(value) == len(layoutDate) {
		if t, err := time.ParseInLocation(layoutDate, value, time.Local); err == nil {
			return t, true
		}
	}

	if strings.HasSuffix(value, "Z") {
		if t, err := time.Parse(layoutDateTimeUTC, value); err == nil {
			return t, false
		}
	}

	if t, err := time.ParseInLocation(layoutDateTimeLocal, value, time.Local); err == nil {
		return t, false
	}

	for _, layout := range fallbackLayouts {
		if t, err := time.ParseInLocation(layout, value, time.Local); err == nil {
			return t, len(layout) == len("2006-01-02")
		}
	}

	return time.Time{}, false
}

func hasParam(params []string, want string) bool {
	for _, p := range params {
		if strings.EqualFold(strings.TrimSpace(p), want) {
			return true
		}
	}
	return false
}

// unescape reverses iCalendar text escaping for the fields shown to users.
func unescape(s string) string {
	r := strings.NewReplacer(`\n`, "\n", `\N`, "\n", `\,`, ",", `\;`, ";", `\\`, `\`)
	return r.Replace(s)
}
