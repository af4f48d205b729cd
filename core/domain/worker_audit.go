package domain

import "time"

// BuildEvent records one builder decision for audit and case history.
type BuildEvent struct {
	ID             string           `json:"id" bson:"_id"`
	RunID          string           `json:"run_id" bson:"run_id"`
	ConversationID string           `json:"conversation_id" bson:"conversation_id"`
	CaseKey        CaseKey          `json:"case_key" bson:"case_key"`
	Action         MergeAction      `json:"action" bson:"action"`
	MatchedRules   []string         `json:"matched_rules,omitempty" bson:"matched_rules,omitempty"`
	Record         *ComplaintRecord `json:"record" bson:"record"`
	OccurredAt     time.Time        `json:"occurred_at" bson:"occurred_at"`
}
