package ics

import (
	"crypto/sha1"
	"encoding/hex"
	"strings"
	"time"
)

const timeLayout = "20060102T150405Z"

// Build produces a minimal single-event iCalendar file (RFC 5545) for
// attaching to an email. The function is pure: identical inputs produce
// identical bytes, including the event UID.
func Build(summary string, startUTC time.Time, durationMin int, description, location string) []byte {
	start := startUTC.UTC()
	end := start.Add(time.Duration(durationMin) * time.Minute)

	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\r\n")
	}

	line("BEGIN:VCALENDAR")
	line("PRODID:-//Notifications Service//EN")
	line("VERSION:2.0")
	line("BEGIN:VEVENT")
	line("UID:" + eventUID(summary, start))
	line("DTSTAMP:" + start.Format(timeLayout))
	line("DTSTART:" + start.Format(timeLayout))
	line("DTEND:" + end.Format(timeLayout))
	line("SUMMARY:" + escapeText(summary))
	if description != "" {
		line("DESCRIPTION:" + escapeText(description))
	}
	if location != "" {
		line("LOCATION:" + escapeText(location))
	}
	line("END:VEVENT")
	line("END:VCALENDAR")

	return []byte(b.String())
}

// eventUID derives a stable identifier from the event contents so repeated
// builds of the same invite are byte-identical.
func eventUID(summary string, start time.Time) string {
	sum := sha1.Sum([]byte(summary + "|" + start.Format(timeLayout)))
	return hex.EncodeToString(sum[:]) + "@notifications"
}

// escapeText escapes TEXT values per RFC 5545 §3.3.11.
func escapeText(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		";", `\;`,
		",", `\,`,
		"\r\n", `\n`,
		"\n", `\n`,
	)
	return r.Replace(s)
}

// Filename is the attachment name used for generated invites.
const Filename = "invite.ics"

// ContentType is the MIME type for calendar attachments.
const ContentType = "text/calendar"
