// Package record merges one processed message into the stored complaint
// records.
package record

import (
	"sort"
	"strings"
	"time"

	"complaint_server/core/domain"
)

// Input is everything the builder needs about one message.
type Input struct {
	Message        *domain.RawMessage
	Verdict        domain.FilterVerdict
	Origin         domain.OriginRecord
	CaseKey        domain.CaseKey
	Classification domain.ClassificationResult
	// PartNumber is the resolved display form, or domain.MissingPartNumber.
	PartNumber string
	// Subject is the cleaned subject line. Falls back to Message.Subject.
	Subject string
	// FirstSeenAt and Initiator come from the earliest known message in the
	// conversation, when the caller has one.
	FirstSeenAt time.Time
	Initiator   string
}

// Build returns the record to persist and what happened to it. Existing
// records are never mutated. The earliest first-seen record in byCaseKey is
// the canonical thread.
func Build(in Input, byConversation map[string]*domain.ComplaintRecord, byCaseKey map[domain.CaseKey][]*domain.ComplaintRecord) (*domain.ComplaintRecord, domain.MergeAction) {
	if existing := byConversation[in.Message.ConversationID]; existing != nil {
		return update(existing, in), domain.MergeUpdated
	}

	rec := create(in)
	if canonical := canonicalOf(byCaseKey[in.CaseKey], in.Message.ConversationID); canonical != "" {
		rec.DuplicateOf = canonical
		return rec, domain.MergeDuplicate
	}
	return rec, domain.MergeCreated
}

func create(in Input) *domain.ComplaintRecord {
	msg := in.Message
	received := normTime(msg.ReceivedAt)

	rec := &domain.ComplaintRecord{
		ConversationID: msg.ConversationID,
		CaseKey:        in.CaseKey,
		PartNumber:     partOrMissing(in.PartNumber),
		FromEmail:      strings.ToLower(strings.TrimSpace(msg.From)),
		Subject:        subjectOf(in),
		ReceivedAt:     received,
		ThreadURL:      msg.WebLink,
		MatchedRules:   append([]string(nil), in.Verdict.MatchedRules...),
		FirstSeenAt:    earliest(received, in.FirstSeenAt),
	}
	applyClassification(rec, in.Classification)
	setOrigin(rec, domain.OriginRecord{Confidence: domain.OriginUnresolved})
	setOrigin(rec, mergeOrigin(rec.Origin(), in.Origin))
	if rec.OriginSentAt != nil {
		rec.FirstSeenAt = earliest(rec.FirstSeenAt, *rec.OriginSentAt)
	}
	rec.InitiatorEmail = coalesce(in.Initiator, rec.OriginSender, rec.FromEmail)
	return rec
}

// update merges in into a copy of existing. A usable classification always
// replaces the stored one. Sender, subject, rules and link change only for a
// newer message. A stored part number and its case key survive a message
// without one.
func update(existing *domain.ComplaintRecord, in Input) *domain.ComplaintRecord {
	rec := existing.Clone()
	msg := in.Message
	received := normTime(msg.ReceivedAt)

	if in.Classification.Usable() {
		applyClassification(rec, in.Classification)
	}

	// A later reply that lost the part number keeps the stored part and key.
	part := partOrMissing(in.PartNumber)
	if part != domain.MissingPartNumber || rec.PartNumber == "" || rec.PartNumber == domain.MissingPartNumber {
		rec.PartNumber = part
		if in.CaseKey != "" {
			rec.CaseKey = in.CaseKey
		}
	}

	if received.After(rec.ReceivedAt) {
		rec.ReceivedAt = received
		rec.FromEmail = strings.ToLower(strings.TrimSpace(msg.From))
		rec.Subject = subjectOf(in)
		rec.MatchedRules = append([]string(nil), in.Verdict.MatchedRules...)
		if msg.WebLink != "" {
			rec.ThreadURL = msg.WebLink
		}
	}

	setOrigin(rec, mergeOrigin(existing.Origin(), in.Origin))
	rec.FirstSeenAt = earliest(rec.FirstSeenAt, in.FirstSeenAt)
	rec.FirstSeenAt = earliest(rec.FirstSeenAt, received)
	if rec.OriginSentAt != nil {
		rec.FirstSeenAt = earliest(rec.FirstSeenAt, *rec.OriginSentAt)
	}
	rec.InitiatorEmail = coalesce(rec.InitiatorEmail, in.Initiator, rec.OriginSender)
	return rec
}

func applyClassification(rec *domain.ComplaintRecord, c domain.ClassificationResult) {
	rec.ClassificationStatus = c.Status
	rec.IsComplaint = c.IsComplaint
	rec.Summary = c.Summary
	rec.Category = c.Category
	if rec.Category == "" {
		rec.Category = domain.CategoryUnclassified
	}
}

// mergeOrigin decides whether incoming replaces stored. An unresolved origin
// never replaces anything; otherwise higher confidence or a strictly earlier
// timestamp wins, and a missing stored timestamp is filled at equal or
// higher confidence.
func mergeOrigin(stored, incoming domain.OriginRecord) domain.OriginRecord {
	incoming.SentAt = normTimePtr(incoming.SentAt)
	if !incoming.Resolved() {
		return stored
	}
	if !stored.Resolved() {
		return incoming
	}

	sRank, iRank := stored.Confidence.Rank(), incoming.Confidence.Rank()
	switch {
	case iRank > sRank:
		if incoming.SentAt == nil {
			incoming.SentAt = stored.SentAt
		}
		if incoming.Sender == "" {
			incoming.Sender = stored.Sender
		}
		return incoming
	case incoming.SentAt != nil && stored.SentAt != nil && incoming.SentAt.Before(*stored.SentAt):
		if incoming.Sender == "" {
			incoming.Sender = stored.Sender
		}
		return incoming
	case incoming.SentAt != nil && stored.SentAt == nil && iRank >= sRank:
		return incoming
	}
	return stored
}

func setOrigin(rec *domain.ComplaintRecord, o domain.OriginRecord) {
	rec.OriginSender = strings.ToLower(o.Sender)
	rec.OriginSentAt = normTimePtr(o.SentAt)
	rec.OriginConfidence = o.Confidence
	if rec.OriginConfidence == "" {
		rec.OriginConfidence = domain.OriginUnresolved
	}
}

// canonicalOf returns the conversation id of the earliest first-seen record,
// ignoring self. Duplicates point at the thread their canonical points at.
func canonicalOf(records []*domain.ComplaintRecord, self string) string {
	var candidates []*domain.ComplaintRecord
	for _, r := range records {
		if r != nil && r.ConversationID != self {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return ""
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if !a.FirstSeenAt.Equal(b.FirstSeenAt) {
			return a.FirstSeenAt.Before(b.FirstSeenAt)
		}
		return a.ConversationID < b.ConversationID
	})
	if first := candidates[0]; first.DuplicateOf != "" && first.DuplicateOf != self {
		return first.DuplicateOf
	}
	return candidates[0].ConversationID
}

func subjectOf(in Input) string {
	if in.Subject != "" {
		return in.Subject
	}
	return strings.TrimSpace(in.Message.Subject)
}

func partOrMissing(p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return domain.MissingPartNumber
	}
	return p
}

// normTime stores instants in UTC at the precision the database keeps.
func normTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

func normTimePtr(t *time.Time) *time.Time {
	if t == nil || t.IsZero() {
		return nil
	}
	n := normTime(*t)
	return &n
}

func earliest(a, b time.Time) time.Time {
	b = normTime(b)
	switch {
	case a.IsZero():
		return b
	case b.IsZero():
		return a
	case b.Before(a):
		return b
	}
	return a
}

func coalesce(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return strings.ToLower(v)
		}
	}
	return ""
}
