package pipeline

import (
	"context"
	"fmt"
	"sort"

	"complaint_server/core/domain"
)

// OutcomeKind is the per-message result of a run.
type OutcomeKind string

const (
	OutcomeCreated   OutcomeKind = "created"
	OutcomeUpdated   OutcomeKind = "updated"
	OutcomeMerged    OutcomeKind = "merged"
	OutcomeFiltered  OutcomeKind = "filtered"
	OutcomeUnchanged OutcomeKind = "unchanged"
	OutcomeFailed    OutcomeKind = "failed"
	OutcomeSkipped   OutcomeKind = "skipped"
)

// Outcome describes what happened to one message.
type Outcome struct {
	ConversationID string
	Subject        string
	Kind           OutcomeKind
	CaseKey        domain.CaseKey
	PartNumber     string
	PartCaptured   bool // stored part was missing and this message supplied one
	Err            error
}

// ProcessFunc handles one message.
type ProcessFunc func(ctx context.Context, msg *domain.RawMessage) Outcome

// Executor runs process over msgs and returns outcomes aligned with msgs.
type Executor interface {
	Execute(ctx context.Context, msgs []*domain.RawMessage, process ProcessFunc) []Outcome
}

// sequential processes one message at a time and stops between messages
// once ctx is done.
type sequential struct{}

func (sequential) Execute(ctx context.Context, msgs []*domain.RawMessage, process ProcessFunc) []Outcome {
	outcomes := make([]Outcome, len(msgs))
	for i, msg := range msgs {
		if ctx.Err() != nil {
			outcomes[i] = Skipped(msg, ctx.Err())
			continue
		}
		outcomes[i] = process(ctx, msg)
	}
	return outcomes
}

// Skipped is the outcome for a message the run never reached.
func Skipped(msg *domain.RawMessage, err error) Outcome {
	return Outcome{ConversationID: msg.ConversationID, Subject: msg.Subject, Kind: OutcomeSkipped, Err: err}
}

// Tally folds outcomes into s.
func Tally(s *domain.BatchSummary, outcomes []Outcome) {
	for _, o := range outcomes {
		switch o.Kind {
		case OutcomeCreated:
			s.New++
			s.Updates = append(s.Updates, fmt.Sprintf("Added new case: %s (PN: %s)", o.Subject, o.PartNumber))
		case OutcomeUpdated:
			s.Updated++
			if o.PartCaptured {
				s.Updates = append(s.Updates, fmt.Sprintf("Updated thread (PN captured): %s (PN: %s)", o.Subject, o.PartNumber))
			} else {
				s.Updates = append(s.Updates, fmt.Sprintf("Updated thread: %s (PN: %s)", o.Subject, o.PartNumber))
			}
		case OutcomeMerged:
			s.Merged++
			s.Updates = append(s.Updates, fmt.Sprintf("Merged duplicate: %s → %s", o.Subject, o.CaseKey))
		case OutcomeFiltered:
			s.FilteredOut++
		case OutcomeUnchanged:
			s.Unchanged++
		case OutcomeFailed:
			s.Failed++
			s.Errors = append(s.Errors, fmt.Sprintf("%s: %v", o.ConversationID, o.Err))
		}
	}
}

// LatestPerConversation keeps the newest message of each conversation and
// the oldest fetched one, returning the newest ordered by received time.
func LatestPerConversation(msgs []*domain.RawMessage) (latest []*domain.RawMessage, first map[string]*domain.RawMessage) {
	byConv := make(map[string]*domain.RawMessage)
	first = make(map[string]*domain.RawMessage)
	for _, m := range msgs {
		if m == nil || m.ConversationID == "" || m.ReceivedAt.IsZero() {
			continue
		}
		if prev, ok := first[m.ConversationID]; !ok || m.ReceivedAt.Before(prev.ReceivedAt) {
			first[m.ConversationID] = m
		}
		if prev, ok := byConv[m.ConversationID]; !ok || m.ReceivedAt.After(prev.ReceivedAt) {
			byConv[m.ConversationID] = m
		}
	}
	latest = make([]*domain.RawMessage, 0, len(byConv))
	for _, m := range byConv {
		latest = append(latest, m)
	}
	sort.Slice(latest, func(i, j int) bool {
		if !latest[i].ReceivedAt.Equal(latest[j].ReceivedAt) {
			return latest[i].ReceivedAt.Before(latest[j].ReceivedAt)
		}
		return latest[i].ConversationID < latest[j].ConversationID
	})
	return latest, first
}
