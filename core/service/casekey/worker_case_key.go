// Package casekey derives the deduplication key that groups threads about
// the same complaint.
package casekey

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"complaint_server/core/domain"
	"complaint_server/core/service/pattern"
)

const (
	// DefaultMaxLength bounds a generated key.
	DefaultMaxLength = 80

	subjectSlugLength = 30
	digestLength      = 8
	unknownDomain     = "unknown"
	noSubject         = "no-subject"
)

// ExternalID is a formal identifier found in message text.
type ExternalID struct {
	Kind  string // ncmr, scar, dmr, ncr, car, po, so
	Value string // normalized capture, e.g. "2024-00123"
}

// String renders the key component, e.g. "ncmr-2024-00123".
func (id ExternalID) String() string {
	return id.Kind + "-" + id.Value
}

// Generator builds case keys. It is pure and safe for concurrent use.
type Generator struct {
	lib    *pattern.Library
	maxLen int
}

// New creates a generator with DefaultMaxLength.
func New(lib *pattern.Library) *Generator {
	return &Generator{lib: lib, maxLen: DefaultMaxLength}
}

// WithMaxLength returns a copy bounded to n characters.
func (g *Generator) WithMaxLength(n int) *Generator {
	c := *g
	if n > 0 {
		c.maxLen = n
	}
	return &c
}

// ExternalID returns the first identifier pattern that matches text.
func (g *Generator) ExternalID(text string) (ExternalID, bool) {
	for _, p := range g.lib.CaseIDPatterns() {
		m := p.Re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if v := normalizeComponent(m[1]); v != "" {
			return ExternalID{Kind: p.Kind, Value: v}, true
		}
	}
	return ExternalID{}, false
}

// Generate assembles domain-partNumber[-externalId]. Without a part number or
// identifier the first line of searchableText (the subject) is slugged instead.
func (g *Generator) Generate(senderDomain, normalizedPartNumber, searchableText string) domain.CaseKey {
	dom := normalizeComponent(senderDomain)
	if dom == "" {
		dom = unknownDomain
	}

	var pn string
	if normalizedPartNumber != domain.MissingPartNumber {
		pn = normalizeComponent(normalizedPartNumber)
	}

	var ext string
	if id, ok := g.ExternalID(searchableText); ok {
		ext = normalizeComponent(id.String())
	}

	parts := []string{dom}
	switch {
	case pn != "" || ext != "":
		if pn != "" {
			parts = append(parts, pn)
		}
		if ext != "" {
			parts = append(parts, ext)
		}
	default:
		parts = append(parts, subjectSlug(searchableText))
	}

	return domain.CaseKey(fit(parts, g.maxLen))
}

// normalizeComponent lowercases and collapses every non-alphanumeric run into
// a single '-', trimming separators at both ends.
func normalizeComponent(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	sep := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			if sep && b.Len() > 0 {
				b.WriteByte('-')
			}
			sep = false
			b.WriteRune(r)
			continue
		}
		sep = true
	}
	return b.String()
}

func subjectSlug(text string) string {
	first := text
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		first = text[:i]
	}
	slug := normalizeComponent(first)
	if len(slug) > subjectSlugLength {
		slug = strings.TrimRight(slug[:subjectSlugLength], "-")
	}
	if slug == "" {
		return noSubject
	}
	return slug
}

// fit shortens components right to left until the joined key fits. A
// shortened component keeps a digest of its full value, so two keys that
// differ only past the cut never collide.
func fit(parts []string, max int) string {
	key := strings.Join(parts, "-")
	for i := len(parts) - 1; i >= 0 && len(key) > max; i-- {
		budget := len(parts[i]) - (len(key) - max)
		parts[i] = shorten(parts[i], budget)
		key = strings.Join(parts, "-")
	}
	if len(key) > max {
		key = strings.TrimRight(key[:max], "-")
	}
	return key
}

func shorten(component string, budget int) string {
	if budget >= len(component) {
		return component
	}
	d := digest(component)
	if budget <= len(d)+1 {
		return d
	}
	head := strings.TrimRight(component[:budget-len(d)-1], "-")
	if head == "" {
		return d
	}
	return head + "-" + d
}

func digest(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:digestLength]
}
