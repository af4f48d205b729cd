// Package filter decides whether a message is worth classifying.
package filter

import (
	"strings"

	"complaint_server/core/domain"
	"complaint_server/core/service/pattern"
)

type action int

const (
	actionReject action = iota // match ends evaluation with rejection
	actionAccept               // match ends evaluation with acceptance
	actionNote                 // match is recorded, evaluation continues
)

// input is the normalized view every layer sees.
type input struct {
	sender  string
	domain  string
	subject string
	text    string // subject + body, lowercased
}

// layer is one tagged matcher in the chain.
type layer struct {
	name   string
	action action
	match  func(in *input) []string
}

// NoiseFilter is an ordered, first-match-wins rule chain. It is stateless and
// safe for concurrent use.
type NoiseFilter struct {
	layers []layer
}

// New builds the filter from the library's vocabularies.
func New(lib *pattern.Library) *NoiseFilter {
	return &NoiseFilter{
		layers: []layer{
			{name: domain.RuleSenderBlocklist, action: actionReject, match: senderBlocked(lib)},
			{name: domain.RuleDomainBlocklist, action: actionReject, match: domainBlocked(lib)},
			{name: domain.RuleSubjectPhrase, action: actionReject, match: subjectPhrase(lib)},
			{name: domain.RuleKeyword, action: actionNote, match: keywords(lib)},
			{name: domain.RuleStrongSignal, action: actionAccept, match: strongSignals(lib)},
		},
	}
}

// Evaluate runs the chain over msg. Empty or undecodable content falls through
// to the keyword gate and is rejected there.
func (f *NoiseFilter) Evaluate(msg *domain.RawMessage) domain.FilterVerdict {
	in := normalize(msg)

	v := domain.FilterVerdict{}
	for _, l := range f.layers {
		evidence := l.match(in)
		if len(evidence) == 0 {
			continue
		}
		v.MatchedRules = append(v.MatchedRules, l.name)
		v.Evidence = append(v.Evidence, evidence...)

		switch l.action {
		case actionReject:
			v.Accepted = false
			v.Terminal = l.name
			return v
		case actionAccept:
			v.Accepted = true
			v.Terminal = l.name
			return v
		}
	}

	// Keyword gate: a recorded keyword match is the accepting rule.
	if v.Matched(domain.RuleKeyword) {
		v.Accepted = true
		v.Terminal = domain.RuleKeyword
		return v
	}
	v.Accepted = false
	v.Terminal = domain.RuleKeywordGate
	v.MatchedRules = append(v.MatchedRules, domain.RuleKeywordGate)
	return v
}

func normalize(msg *domain.RawMessage) *input {
	if msg == nil {
		return &input{}
	}
	subject := strings.ToLower(strings.ToValidUTF8(msg.Subject, " "))
	body := strings.ToLower(strings.ToValidUTF8(msg.Body, " "))
	return &input{
		sender:  strings.ToLower(strings.TrimSpace(msg.From)),
		domain:  domain.DomainOf(msg.From),
		subject: subject,
		text:    subject + " " + body,
	}
}

func senderBlocked(lib *pattern.Library) func(*input) []string {
	return func(in *input) []string {
		if in.sender != "" && lib.IsBlockedSender(in.sender) {
			return []string{"sender:" + in.sender}
		}
		return nil
	}
}

func domainBlocked(lib *pattern.Library) func(*input) []string {
	return func(in *input) []string {
		if in.domain != "" && lib.IsBlockedDomain(in.domain) {
			return []string{"domain:" + in.domain}
		}
		return nil
	}
}

func subjectPhrase(lib *pattern.Library) func(*input) []string {
	return func(in *input) []string {
		for _, p := range lib.SubjectBlockPhrases() {
			if strings.Contains(in.subject, p) {
				return []string{"phrase:" + p}
			}
		}
		return nil
	}
}

func keywords(lib *pattern.Library) func(*input) []string {
	return func(in *input) []string {
		var hits []string
		for _, kw := range lib.KeywordPatterns() {
			if kw.Re.MatchString(in.text) {
				hits = append(hits, "keyword:"+kw.Kind)
			}
		}
		return hits
	}
}

func strongSignals(lib *pattern.Library) func(*input) []string {
	return func(in *input) []string {
		for _, sig := range lib.StrongSignals() {
			if sig.Re.MatchString(in.text) {
				return []string{"signal:" + sig.Kind}
			}
		}
		return nil
	}
}
