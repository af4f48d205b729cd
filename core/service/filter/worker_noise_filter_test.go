package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint_server/core/domain"
	"complaint_server/core/service/pattern"
)

func TestEvaluate(t *testing.T) {
	f := New(pattern.Default())

	tests := []struct {
		name     string
		msg      *domain.RawMessage
		accepted bool
		terminal string
		rules    []string
	}{
		{
			name:     "blocked sender wins over keywords",
			msg:      &domain.RawMessage{From: "No-Reply@culturewise.com", Subject: "defect report", Body: "defect"},
			terminal: domain.RuleSenderBlocklist,
			rules:    []string{domain.RuleSenderBlocklist},
		},
		{
			name:     "blocked parent domain",
			msg:      &domain.RawMessage{From: "hr@news.culturewise.com", Subject: "defect", Body: ""},
			terminal: domain.RuleDomainBlocklist,
			rules:    []string{domain.RuleDomainBlocklist},
		},
		{
			name:     "subject phrase is case-insensitive",
			msg:      &domain.RawMessage{From: "qa@acme.com", Subject: "Automatic Reply: NCMR 2024-0113", Body: "NCMR"},
			terminal: domain.RuleSubjectPhrase,
			rules:    []string{domain.RuleSubjectPhrase},
		},
		{
			name:     "keyword accepts",
			msg:      &domain.RawMessage{From: "qa@acme.com", Subject: "Lot 7", Body: "Several units arrived damaged."},
			accepted: true,
			terminal: domain.RuleKeyword,
			rules:    []string{domain.RuleKeyword},
		},
		{
			name:     "strong signal without keyword",
			msg:      &domain.RawMessage{From: "qa@acme.com", Subject: "NCR 55012", Body: "Please see attached."},
			accepted: true,
			terminal: domain.RuleStrongSignal,
			rules:    []string{domain.RuleStrongSignal},
		},
		{
			name:     "keyword then strong signal",
			msg:      &domain.RawMessage{From: "qa@acme.com", Subject: "SCAR 2024-118", Body: "scar opened"},
			accepted: true,
			terminal: domain.RuleStrongSignal,
			rules:    []string{domain.RuleKeyword, domain.RuleStrongSignal},
		},
		{
			name:     "nothing relevant",
			msg:      &domain.RawMessage{From: "sales@acme.com", Subject: "Lunch", Body: "See you at noon."},
			terminal: domain.RuleKeywordGate,
			rules:    []string{domain.RuleKeywordGate},
		},
		{
			name:     "empty message",
			msg:      &domain.RawMessage{},
			terminal: domain.RuleKeywordGate,
			rules:    []string{domain.RuleKeywordGate},
		},
		{
			name:     "invalid utf-8 is not an error",
			msg:      &domain.RawMessage{From: "qa@acme.com", Subject: "\xff\xfe", Body: "\xc3\x28"},
			terminal: domain.RuleKeywordGate,
			rules:    []string{domain.RuleKeywordGate},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := f.Evaluate(tt.msg)
			assert.Equal(t, tt.accepted, v.Accepted)
			assert.Equal(t, tt.terminal, v.Terminal)
			assert.Equal(t, tt.rules, v.MatchedRules)
		})
	}
}

func TestEvaluateNilMessage(t *testing.T) {
	v := New(pattern.Default()).Evaluate(nil)
	assert.False(t, v.Accepted)
	assert.Equal(t, domain.RuleKeywordGate, v.Terminal)
}

func TestAcceptedVerdictNamesAcceptingRule(t *testing.T) {
	f := New(pattern.Default())
	bodies := []string{
		"the housing shows cracking",
		"RMA 4471 issued",
		"DMR 2023-0042 attached",
		"missing parts on PO 451200",
		"8D requested",
	}
	for _, body := range bodies {
		v := f.Evaluate(&domain.RawMessage{From: "qa@acme.com", Subject: "Status", Body: body})
		require.True(t, v.Accepted, body)
		assert.True(t, v.Matched(v.Terminal), body)
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	f := New(pattern.Default())
	msg := &domain.RawMessage{From: "qa@acme.com", Subject: "Re: defect", Body: "NCMR 2024-0113 rework"}
	assert.Equal(t, f.Evaluate(msg), f.Evaluate(msg))
}

func TestKeywordsMatchWholeWords(t *testing.T) {
	f := New(pattern.Default())

	v := f.Evaluate(&domain.RawMessage{
		From:    "buyer@acme.com",
		Subject: "Supply update",
		Body:    "Sharing information on supplier performance; resin is scarce this quarter.",
	})
	assert.False(t, v.Accepted)
	assert.Equal(t, domain.RuleKeywordGate, v.Terminal)
	assert.Empty(t, v.Evidence)

	v = f.Evaluate(&domain.RawMessage{
		From:    "qa@acme.com",
		Subject: "Lot 12",
		Body:    "Two rejected lots and several defects found at receiving.",
	})
	assert.True(t, v.Accepted)
	assert.Equal(t, domain.RuleKeyword, v.Terminal)
	assert.Contains(t, v.Evidence, "keyword:reject")
	assert.Contains(t, v.Evidence, "keyword:defect")
}
