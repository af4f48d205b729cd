// Package origin recovers the first sender and timestamp of a quoted thread.
package origin

import (
	"strings"
	"time"

	"complaint_server/core/domain"
	"complaint_server/core/service/pattern"
)

// DefaultLookahead is how many lines after a "From:" line are searched for
// the matching sent label.
const DefaultLookahead = 10

// Extractor is pure: the same text always yields the same record for a
// given reference time and location.
type Extractor struct {
	lib       *pattern.Library
	dates     dateParser
	lookahead int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithLocation sets the zone for timestamps without an explicit offset.
func WithLocation(loc *time.Location) Option {
	return func(e *Extractor) {
		if loc != nil {
			e.dates.loc = loc
		}
	}
}

// WithReferenceTime sets the instant two-digit years are resolved against.
func WithReferenceTime(ref time.Time) Option {
	return func(e *Extractor) { e.dates.ref = ref }
}

// WithLookahead overrides DefaultLookahead.
func WithLookahead(n int) Option {
	return func(e *Extractor) {
		if n > 0 {
			e.lookahead = n
		}
	}
}

// New creates an extractor. Without WithReferenceTime the construction time
// is used, fixed for the extractor's lifetime.
func New(lib *pattern.Library, opts ...Option) *Extractor {
	e := &Extractor{
		lib:       lib,
		dates:     dateParser{lib: lib, loc: time.UTC, ref: time.Now()},
		lookahead: DefaultLookahead,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Extract tries the header-block scan, then the inline scan. A header block
// beats any inline attribution.
func (e *Extractor) Extract(text string) domain.OriginRecord {
	if strings.TrimSpace(text) == "" {
		return domain.UnresolvedOrigin()
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")

	if rec, ok := e.scanHeaders(text); ok {
		return rec
	}
	if rec, ok := e.scanInline(text); ok {
		return rec
	}
	return domain.UnresolvedOrigin()
}

// ParseDate exposes the grammar chain for callers that hold a bare phrase.
func (e *Extractor) ParseDate(s string) (time.Time, bool) {
	return e.dates.parse(s, false)
}

// scanHeaders keeps the last header block in the text, the deepest quote.
func (e *Extractor) scanHeaders(text string) (domain.OriginRecord, bool) {
	lines := strings.Split(text, "\n")
	fromLine := e.lib.FromLine()
	sentLine := e.lib.SentLine()

	var (
		rec   domain.OriginRecord
		found bool
	)
	for i, line := range lines {
		m := fromLine.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		sender := e.firstEmail(m[2])

		var sentAt *time.Time
		for j := i + 1; j < len(lines) && j <= i+e.lookahead; j++ {
			if fromLine.MatchString(lines[j]) {
				break
			}
			sm := sentLine.FindStringSubmatch(lines[j])
			if sm == nil {
				continue
			}
			// Unparseable timestamps are dropped; the sender is kept.
			if t, ok := e.dates.parse(sm[2], e.lib.DayFirst(sm[1])); ok {
				sentAt = &t
			}
			break
		}

		if sender == "" && sentAt == nil {
			continue
		}
		rec = domain.OriginRecord{Sender: sender, SentAt: sentAt, Confidence: domain.OriginHeaderParsed}
		found = true
	}
	return rec, found
}

// scanInline keeps the last inline attribution carrying an address, found in
// the phrase or after the verb.
func (e *Extractor) scanInline(text string) (domain.OriginRecord, bool) {
	var (
		rec   domain.OriginRecord
		found bool
	)
	for _, m := range e.lib.InlineReply().FindAllStringSubmatch(text, -1) {
		lead, phrase, afterVerb, tail := m[1], m[2], m[3], m[4]

		sender := e.lastEmail(phrase)
		if sender == "" {
			sender = e.firstEmail(afterVerb)
		}
		if sender == "" {
			sender = e.firstEmail(tail)
		}
		if sender == "" {
			continue
		}

		datePart := e.lib.Email().ReplaceAllString(phrase, " ")
		datePart = strings.NewReplacer("<", " ", ">", " ", "\"", " ", "mailto:", " ").Replace(datePart)

		var sentAt *time.Time
		if t, ok := e.dates.parseLeading(datePart, e.lib.DayFirst(lead)); ok {
			sentAt = &t
		}
		rec = domain.OriginRecord{Sender: sender, SentAt: sentAt, Confidence: domain.OriginInlineParsed}
		found = true
	}
	return rec, found
}

func (e *Extractor) firstEmail(s string) string {
	return strings.ToLower(e.lib.Email().FindString(s))
}

func (e *Extractor) lastEmail(s string) string {
	all := e.lib.Email().FindAllString(s, -1)
	if len(all) == 0 {
		return ""
	}
	return strings.ToLower(all[len(all)-1])
}
