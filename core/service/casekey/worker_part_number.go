package casekey

import (
	"strings"

	"complaint_server/core/domain"
	"complaint_server/core/service/pattern"
)

// PartSource says where a resolved part number came from.
type PartSource string

const (
	PartFromMaster     PartSource = "master"
	PartFromText       PartSource = "text"
	PartFromClassifier PartSource = "classifier"
	PartMissing        PartSource = "missing"
)

// PartNumber is a resolved part number in display and key form.
type PartNumber struct {
	Display    string // token as written, or domain.MissingPartNumber
	Normalized string // uppercase key form, empty when missing
	Source     PartSource
}

// PartResolver finds part numbers in message text.
type PartResolver struct {
	lib *pattern.Library
}

// NewPartResolver creates a resolver over the library's patterns and master list.
func NewPartResolver(lib *pattern.Library) *PartResolver {
	return &PartResolver{lib: lib}
}

// candidates returns the first master-list hit and the first plain hit in text.
func (r *PartResolver) candidates(text string) (master, fallback string) {
	for _, re := range r.lib.PartNumberPatterns() {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			token := strings.Trim(strings.TrimSpace(m[1]), ".,;:)]}")
			if !r.lib.ValidPartToken(token) {
				continue
			}
			if r.lib.IsMasterPart(pattern.NormalizePartNumber(token)) {
				if master == "" {
					master = token
				}
			} else if fallback == "" {
				fallback = token
			}
		}
	}
	return master, fallback
}

// Resolve picks a part number. Master-list hits beat plain hits, and the
// latest reply beats the quoted tail. A classifier suggestion is used only
// when nothing was found and it is in the master list or literally present
// in the text.
func (r *PartResolver) Resolve(subject, latestReply, quotedTail, suggested string) PartNumber {
	head := subject + "  " + latestReply
	m1, f1 := r.candidates(head)
	var m2, f2 string
	if m1 == "" && f1 == "" && quotedTail != "" {
		m2, f2 = r.candidates(quotedTail)
	}

	switch {
	case m1 != "":
		return found(m1, PartFromMaster)
	case m2 != "":
		return found(m2, PartFromMaster)
	case f1 != "":
		return found(f1, PartFromText)
	case f2 != "":
		return found(f2, PartFromText)
	}

	suggested = strings.TrimSpace(suggested)
	if suggested != "" && r.lib.ValidPartToken(suggested) {
		norm := pattern.NormalizePartNumber(suggested)
		alnum := pattern.Alnum(suggested)
		if r.lib.IsMasterPart(norm) ||
			(alnum != "" && (strings.Contains(pattern.Alnum(head), alnum) || strings.Contains(pattern.Alnum(quotedTail), alnum))) {
			return found(suggested, PartFromClassifier)
		}
	}

	return PartNumber{Display: domain.MissingPartNumber, Source: PartMissing}
}

func found(token string, src PartSource) PartNumber {
	return PartNumber{Display: token, Normalized: pattern.NormalizePartNumber(token), Source: src}
}
