package domain

// Noise filter rule names, in evaluation order.
const (
	RuleSenderBlocklist = "sender_blocklist"
	RuleDomainBlocklist = "domain_blocklist"
	RuleSubjectPhrase   = "subject_phrase"
	RuleKeyword         = "keyword"
	RuleStrongSignal    = "strong_signal"
	RuleKeywordGate     = "keyword_gate"
)

// FilterVerdict is the outcome of the noise filter for one message.
type FilterVerdict struct {
	Accepted     bool     `json:"accepted"`
	MatchedRules []string `json:"matched_rules"`
	Terminal     string   `json:"terminal"`
	Evidence     []string `json:"evidence,omitempty"` // e.g. "keyword:defect"
}

// Matched reports whether rule appears in MatchedRules.
func (v FilterVerdict) Matched(rule string) bool {
	for _, r := range v.MatchedRules {
		if r == rule {
			return true
		}
	}
	return false
}
