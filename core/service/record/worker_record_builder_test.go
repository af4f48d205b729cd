package record

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint_server/core/domain"
)

func ts(s string) time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return t
}

func tsPtr(s string) *time.Time {
	t := ts(s)
	return &t
}

func message(conv, from, received string) *domain.RawMessage {
	return &domain.RawMessage{
		ID:             conv + "-msg",
		ConversationID: conv,
		From:           from,
		Subject:        "RE: NCMR 1001 cracked housing",
		Body:           "Housing cracked on arrival.",
		ReceivedAt:     ts(received),
		WebLink:        "https://outlook.example/" + conv,
	}
}

func complaint(category domain.Category, summary string) domain.ClassificationResult {
	return domain.ClassificationResult{
		Status:      domain.ClassificationParsed,
		IsComplaint: true,
		Category:    category,
		Summary:     summary,
	}
}

func input(msg *domain.RawMessage, key domain.CaseKey) Input {
	return Input{
		Message:        msg,
		Verdict:        domain.FilterVerdict{Accepted: true, MatchedRules: []string{domain.RuleKeyword, domain.RuleStrongSignal}, Terminal: domain.RuleStrongSignal},
		Origin:         domain.UnresolvedOrigin(),
		CaseKey:        key,
		Classification: complaint(domain.CategoryProduct, "Cracked housing."),
		PartNumber:     "HX-2210",
		Subject:        "NCMR 1001 cracked housing",
	}
}

func TestBuildCreatesNewRecord(t *testing.T) {
	in := input(message("conv-1", "QA@Customer.com", "2024-03-05T14:00:00Z"), "customer-com-hx2210-ncmr-1001")
	in.Origin = domain.OriginRecord{Sender: "buyer@customer.com", SentAt: tsPtr("2024-03-03T10:00:00Z"), Confidence: domain.OriginHeaderParsed}

	rec, action := Build(in, nil, nil)

	require.Equal(t, domain.MergeCreated, action)
	assert.Equal(t, "conv-1", rec.ConversationID)
	assert.Equal(t, domain.CaseKey("customer-com-hx2210-ncmr-1001"), rec.CaseKey)
	assert.Equal(t, "HX-2210", rec.PartNumber)
	assert.Equal(t, domain.CategoryProduct, rec.Category)
	assert.Equal(t, "qa@customer.com", rec.FromEmail)
	assert.Equal(t, "buyer@customer.com", rec.OriginSender)
	assert.Equal(t, domain.OriginHeaderParsed, rec.OriginConfidence)
	assert.Equal(t, ts("2024-03-03T10:00:00Z"), rec.FirstSeenAt)
	assert.Equal(t, "buyer@customer.com", rec.InitiatorEmail)
	assert.Equal(t, []string{domain.RuleKeyword, domain.RuleStrongSignal}, rec.MatchedRules)
	assert.Empty(t, rec.DuplicateOf)
}

func TestBuildDuplicateThreadSharesCaseKey(t *testing.T) {
	key := domain.CaseKey("customer-com-hx2210")

	first, action := Build(input(message("conv-1", "qa@customer.com", "2024-03-05T14:00:00Z"), key), nil, nil)
	require.Equal(t, domain.MergeCreated, action)

	byConv := map[string]*domain.ComplaintRecord{first.ConversationID: first}
	byKey := map[domain.CaseKey][]*domain.ComplaintRecord{key: {first}}

	second, action := Build(input(message("conv-2", "ops@customer.com", "2024-03-06T09:00:00Z"), key), byConv, byKey)

	require.Equal(t, domain.MergeDuplicate, action)
	assert.NotEqual(t, first.ConversationID, second.ConversationID)
	assert.Equal(t, first.CaseKey, second.CaseKey)
	assert.Equal(t, "conv-1", second.DuplicateOf)
}

func TestBuildDuplicatePointsAtEarliestThread(t *testing.T) {
	key := domain.CaseKey("customer-com-hx2210")
	older := &domain.ComplaintRecord{ConversationID: "conv-a", CaseKey: key, FirstSeenAt: ts("2024-01-01T00:00:00Z")}
	newer := &domain.ComplaintRecord{ConversationID: "conv-b", CaseKey: key, FirstSeenAt: ts("2024-02-01T00:00:00Z"), DuplicateOf: "conv-a"}

	rec, action := Build(input(message("conv-c", "qa@customer.com", "2024-03-01T00:00:00Z"), key), nil,
		map[domain.CaseKey][]*domain.ComplaintRecord{key: {newer, older}})

	require.Equal(t, domain.MergeDuplicate, action)
	assert.Equal(t, "conv-a", rec.DuplicateOf)
}

func TestBuildUpdateLatestWinsForContent(t *testing.T) {
	key := domain.CaseKey("customer-com-hx2210")
	stored, _ := Build(input(message("conv-1", "qa@customer.com", "2024-03-05T14:00:00Z"), key), nil, nil)
	snapshot := stored.Clone()

	in := input(message("conv-1", "Ops@Customer.com", "2024-03-07T08:00:00Z"), key)
	in.Classification = complaint(domain.CategoryShipping, "Replacement shipped late.")
	rec, action := Build(in, map[string]*domain.ComplaintRecord{"conv-1": stored}, nil)

	require.Equal(t, domain.MergeUpdated, action)
	assert.Equal(t, domain.CategoryShipping, rec.Category)
	assert.Equal(t, "Replacement shipped late.", rec.Summary)
	assert.Equal(t, "ops@customer.com", rec.FromEmail)
	assert.Equal(t, ts("2024-03-07T08:00:00Z"), rec.ReceivedAt)
	assert.Equal(t, ts("2024-03-05T14:00:00Z"), rec.FirstSeenAt)
	assert.Equal(t, "qa@customer.com", rec.InitiatorEmail)
	assert.Equal(t, snapshot, stored, "existing record must not be mutated")
}

func TestBuildUpdateKeepsContentWhenClassifierUnavailable(t *testing.T) {
	key := domain.CaseKey("customer-com-hx2210")
	stored, _ := Build(input(message("conv-1", "qa@customer.com", "2024-03-05T14:00:00Z"), key), nil, nil)

	in := input(message("conv-1", "qa@customer.com", "2024-03-06T14:00:00Z"), key)
	in.Classification = domain.Unclassified(domain.ClassificationUnavailable)
	rec, _ := Build(in, map[string]*domain.ComplaintRecord{"conv-1": stored}, nil)

	assert.Equal(t, domain.CategoryProduct, rec.Category)
	assert.Equal(t, "Cracked housing.", rec.Summary)
	assert.Equal(t, domain.ClassificationParsed, rec.ClassificationStatus)
}

func TestBuildUnavailableClassificationStillCreates(t *testing.T) {
	in := input(message("conv-1", "qa@customer.com", "2024-03-05T14:00:00Z"), "customer-com-hx2210")
	in.Classification = domain.Unclassified(domain.ClassificationUnavailable)

	rec, action := Build(in, nil, nil)

	require.Equal(t, domain.MergeCreated, action)
	assert.False(t, rec.IsComplaint)
	assert.Equal(t, domain.CategoryUnclassified, rec.Category)
	assert.Empty(t, rec.Summary)
	assert.Equal(t, domain.ClassificationUnavailable, rec.ClassificationStatus)
}

func TestBuildUpdateKeepsKnownPartNumber(t *testing.T) {
	stored, _ := Build(input(message("conv-1", "qa@customer.com", "2024-03-05T14:00:00Z"), "customer-com-hx2210"), nil, nil)

	in := input(message("conv-1", "qa@customer.com", "2024-03-06T14:00:00Z"), "customer-com-cracked-housing")
	in.PartNumber = domain.MissingPartNumber
	rec, _ := Build(in, map[string]*domain.ComplaintRecord{"conv-1": stored}, nil)

	assert.Equal(t, "HX-2210", rec.PartNumber)
	assert.Equal(t, domain.CaseKey("customer-com-hx2210"), rec.CaseKey)
}

func TestBuildUpdateOlderMessageKeepsStoredContent(t *testing.T) {
	key := domain.CaseKey("customer-com-hx2210")
	stored, _ := Build(input(message("conv-1", "ops@customer.com", "2024-03-07T08:00:00Z"), key), nil, nil)

	older := message("conv-1", "qa@customer.com", "2024-03-05T14:00:00Z")
	older.WebLink = "https://outlook.example/older"
	in := input(older, key)
	in.Subject = "cracked housing"
	in.Verdict.MatchedRules = []string{domain.RuleKeyword}
	in.Classification = complaint(domain.CategoryShipping, "Late delivery.")
	rec, action := Build(in, map[string]*domain.ComplaintRecord{"conv-1": stored}, nil)

	require.Equal(t, domain.MergeUpdated, action)
	assert.Equal(t, "ops@customer.com", rec.FromEmail)
	assert.Equal(t, "NCMR 1001 cracked housing", rec.Subject)
	assert.Equal(t, ts("2024-03-07T08:00:00Z"), rec.ReceivedAt)
	assert.Equal(t, "https://outlook.example/conv-1", rec.ThreadURL)
	assert.Equal(t, []string{domain.RuleKeyword, domain.RuleStrongSignal}, rec.MatchedRules)
	assert.Equal(t, "HX-2210", rec.PartNumber)
	// Classification and first-seen still take the replayed message into account.
	assert.Equal(t, domain.CategoryShipping, rec.Category)
	assert.Equal(t, ts("2024-03-05T14:00:00Z"), rec.FirstSeenAt)
}

func TestMergeOrigin(t *testing.T) {
	header := domain.OriginRecord{Sender: "a@x.com", SentAt: tsPtr("2024-03-03T10:00:00Z"), Confidence: domain.OriginHeaderParsed}
	headerNoTime := domain.OriginRecord{Sender: "a@x.com", Confidence: domain.OriginHeaderParsed}
	inline := domain.OriginRecord{Sender: "b@y.com", SentAt: tsPtr("2024-03-04T10:00:00Z"), Confidence: domain.OriginInlineParsed}
	inlineEarlier := domain.OriginRecord{Sender: "c@y.com", SentAt: tsPtr("2024-03-01T10:00:00Z"), Confidence: domain.OriginInlineParsed}
	unresolved := domain.UnresolvedOrigin()

	tests := []struct {
		name     string
		stored   domain.OriginRecord
		incoming domain.OriginRecord
		expected domain.OriginRecord
	}{
		{"unresolved never overwrites", header, unresolved, header},
		{"anything beats unresolved", unresolved, inline, inline},
		{"higher confidence wins", inline, header, header},
		{"later lower confidence loses", header, inline, header},
		{"strictly earlier wins", header, inlineEarlier, inlineEarlier},
		{"equal time keeps stored", header, header, header},
		{"fills missing time", headerNoTime, header, header},
		{"lower confidence cannot fill time", headerNoTime, inline, headerNoTime},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeOrigin(tt.stored, tt.incoming)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestBuildNormalizesTimes(t *testing.T) {
	loc := time.FixedZone("EST", -5*3600)
	msg := message("conv-1", "qa@customer.com", "2024-03-05T14:00:00Z")
	msg.ReceivedAt = time.Date(2024, 3, 5, 9, 0, 0, 123456789, loc)

	rec, _ := Build(input(msg, "k"), nil, nil)

	assert.Equal(t, time.UTC, rec.ReceivedAt.Location())
	assert.Equal(t, 123456000, rec.ReceivedAt.Nanosecond())
}
