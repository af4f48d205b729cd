package pipeline

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/core/service/origin"
	"complaint_server/core/service/pattern"
	"complaint_server/pkg/apperr"
)

// =============================================================================
// Fakes
// =============================================================================

type memStore struct {
	mu      sync.Mutex
	records map[string]*domain.ComplaintRecord
	failOn  map[string]bool
	touched map[string]time.Time
}

func newMemStore() *memStore {
	return &memStore{
		records: map[string]*domain.ComplaintRecord{},
		failOn:  map[string]bool{},
		touched: map[string]time.Time{},
	}
}

func (m *memStore) GetByConversation(ctx context.Context, id string) (*domain.ComplaintRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.records[id].Clone(), nil
}

func (m *memStore) FindByCaseKey(ctx context.Context, key domain.CaseKey) ([]*domain.ComplaintRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ComplaintRecord
	for _, r := range m.records {
		if r.CaseKey == key {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ReceivedAt.After(out[j].ReceivedAt) })
	return out, nil
}

func (m *memStore) Upsert(ctx context.Context, rec *domain.ComplaintRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn[rec.ConversationID] {
		return apperr.PersistenceConflict(rec.ConversationID, errors.New("duplicate key value violates unique constraint"))
	}
	m.records[rec.ConversationID] = rec.Clone()
	return nil
}

func (m *memStore) Touch(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touched[id] = at
	if r, ok := m.records[id]; ok && at.After(r.ReceivedAt) {
		r.ReceivedAt = at
	}
	return nil
}

func (m *memStore) List(ctx context.Context, f out.ListFilter) ([]*domain.ComplaintRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.ComplaintRecord
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	return out, nil
}

type fakeSource struct {
	msgs []*domain.RawMessage
}

func (f *fakeSource) FetchSince(ctx context.Context, since time.Time) ([]*domain.RawMessage, error) {
	var out []*domain.RawMessage
	for _, m := range f.msgs {
		if !m.ReceivedAt.Before(since) {
			out = append(out, m)
		}
	}
	return out, nil
}

type failingSource struct{}

func (failingSource) FetchSince(ctx context.Context, since time.Time) ([]*domain.RawMessage, error) {
	return nil, errors.New("graph: 503")
}

// stubClassifier answers by subject substring.
type stubClassifier struct {
	answers map[string]domain.ClassificationResult
	err     error
	calls   int
}

func (s *stubClassifier) Classify(ctx context.Context, req out.ClassifyRequest) (domain.ClassificationResult, error) {
	s.calls++
	if s.err != nil {
		return domain.Unclassified(domain.ClassificationUnavailable), s.err
	}
	for k, v := range s.answers {
		if strings.Contains(req.Subject, k) {
			return v, nil
		}
	}
	return domain.ClassificationResult{Status: domain.ClassificationParsed, IsComplaint: true, Category: domain.CategoryProduct, Summary: "Defect reported."}, nil
}

type memCursor struct {
	at  time.Time
	set int
}

func (c *memCursor) GetCursor(ctx context.Context, mailbox string) (time.Time, bool, error) {
	return c.at, !c.at.IsZero(), nil
}

func (c *memCursor) SetCursor(ctx context.Context, mailbox string, at time.Time) error {
	c.at = at
	c.set++
	return nil
}

type countingLocker struct {
	locked, released int
}

func (l *countingLocker) LockCase(ctx context.Context, key domain.CaseKey) (func(), error) {
	l.locked++
	return func() { l.released++ }, nil
}

type captureAudit struct {
	events []*domain.BuildEvent
}

func (c *captureAudit) PublishBuild(ctx context.Context, e *domain.BuildEvent) error {
	c.events = append(c.events, e)
	return nil
}

// =============================================================================
// Fixtures
// =============================================================================

var base = time.Date(2024, 3, 5, 14, 0, 0, 0, time.UTC)

func msg(conv, from, subject, body string, offset time.Duration) *domain.RawMessage {
	return &domain.RawMessage{
		ID:             conv + "-" + offset.String(),
		ConversationID: conv,
		From:           from,
		Subject:        subject,
		Body:           body,
		ReceivedAt:     base.Add(offset),
		WebLink:        "https://outlook.example/" + conv,
	}
}

func fixtures() []*domain.RawMessage {
	return []*domain.RawMessage{
		msg("conv-1", "qa@acme.com", "Cracked housing HX-2210",
			"P/N HX-2210 housing has a defect, we need a replacement.", 0),
		msg("conv-2", "ops@acme.com", "RE: housing defect again",
			"Another lot of P/N HX-2210 with the same defect. Please issue an RMA.", time.Hour),
		msg("conv-3", "news@culturewise.com", "Lesson of the week",
			"Our weekly newsletter about defect prevention.", 2*time.Hour),
		msg("conv-4", "buyer@acme.com", "Quote for brackets",
			"Can you quote 500 units? We will return the signed order.", 3*time.Hour),
	}
}

func newService(src out.MessageSource, store *memStore, cls out.Classifier, deps ...func(*Deps)) *Service {
	d := Deps{Source: src, Store: store, Classifier: cls}
	for _, f := range deps {
		f(&d)
	}
	lib := pattern.Default()
	return NewService(lib, origin.New(lib, origin.WithReferenceTime(base)), d, Settings{
		StartDate:         base.Add(-24 * time.Hour),
		ClassifyTimeout:   time.Second,
		MaxRetries:        3,
		BackoffMultiplier: 1.8,
	})
}

func notComplaint() domain.ClassificationResult {
	return domain.ClassificationResult{Status: domain.ClassificationParsed, IsComplaint: false, Category: domain.CategoryOther}
}

// =============================================================================
// Tests
// =============================================================================

func TestRunBuildsAndMerges(t *testing.T) {
	store := newMemStore()
	cursor := &memCursor{}
	locker := &countingLocker{}
	cls := &stubClassifier{answers: map[string]domain.ClassificationResult{"Quote": notComplaint()}}

	svc := newService(&fakeSource{msgs: fixtures()}, store, cls, func(d *Deps) {
		d.Cursor = cursor
		d.Locker = locker
	})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, summary.Checked)
	assert.Equal(t, 1, summary.New)
	assert.Equal(t, 1, summary.Merged)
	assert.Equal(t, 2, summary.FilteredOut)
	assert.Zero(t, summary.Failed)
	assert.True(t, summary.Changed())
	assert.NotEmpty(t, summary.RunID)
	assert.Len(t, summary.Updates, 2)

	require.Len(t, store.records, 2)
	first, second := store.records["conv-1"], store.records["conv-2"]
	assert.Equal(t, first.CaseKey, second.CaseKey)
	assert.Equal(t, "conv-1", second.DuplicateOf)
	assert.Equal(t, "HX-2210", first.PartNumber)

	assert.Equal(t, 3, cls.calls, "blocked mail never reaches the classifier")
	assert.Equal(t, 2, locker.locked)
	assert.Equal(t, locker.locked, locker.released)
	assert.Equal(t, base.Add(3*time.Hour), cursor.at)
}

func TestRunSecondPassIsUnchanged(t *testing.T) {
	store := newMemStore()
	cls := &stubClassifier{answers: map[string]domain.ClassificationResult{"Quote": notComplaint()}}
	svc := newService(&fakeSource{msgs: fixtures()}, store, cls)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Unchanged)
	assert.Equal(t, 2, summary.FilteredOut)
	assert.False(t, summary.Changed())
}

func TestRunUpdateCapturesPartNumber(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{msgs: []*domain.RawMessage{
		msg("conv-1", "qa@acme.com", "Housing defect", "The housing has a defect, need a replacement.", 0),
	}}
	svc := newService(src, store, &stubClassifier{})

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, summary.New)
	assert.Equal(t, domain.MissingPartNumber, store.records["conv-1"].PartNumber)

	src.msgs = append(src.msgs, msg("conv-1", "qa@acme.com", "RE: Housing defect", "Sorry, it is P/N HX-2210.", time.Hour))
	summary, err = svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Updated)
	require.Len(t, summary.Updates, 1)
	assert.Contains(t, summary.Updates[0], "PN captured")
	assert.Equal(t, "HX-2210", store.records["conv-1"].PartNumber)
	assert.Equal(t, base, store.records["conv-1"].FirstSeenAt)
}

func TestRunFilteredReplyTouchesExisting(t *testing.T) {
	store := newMemStore()
	src := &fakeSource{msgs: fixtures()[:1]}
	cls := &stubClassifier{answers: map[string]domain.ClassificationResult{"Thanks": notComplaint()}}
	svc := newService(src, store, cls)

	_, err := svc.Run(context.Background())
	require.NoError(t, err)

	src.msgs = append(src.msgs, msg("conv-1", "qa@acme.com", "RE: Thanks", "Thanks, the return label arrived.", 2*time.Hour))
	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.FilteredOut)
	assert.Equal(t, base.Add(2*time.Hour), store.touched["conv-1"])
	assert.Equal(t, domain.CategoryProduct, store.records["conv-1"].Category)
}

func TestRunClassifierUnavailableStillBuilds(t *testing.T) {
	store := newMemStore()
	cls := &stubClassifier{err: apperr.ClassificationUnavailable(3, errors.New("503"))}
	svc := newService(&fakeSource{msgs: fixtures()[:1]}, store, cls)

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.New)
	assert.Zero(t, summary.Failed)
	rec := store.records["conv-1"]
	require.NotNil(t, rec)
	assert.False(t, rec.IsComplaint)
	assert.Equal(t, domain.CategoryUnclassified, rec.Category)
	assert.Equal(t, domain.ClassificationUnavailable, rec.ClassificationStatus)
}

func TestRunPersistenceConflictDoesNotAbortBatch(t *testing.T) {
	store := newMemStore()
	store.failOn["conv-2"] = true
	cursor := &memCursor{}
	cls := &stubClassifier{answers: map[string]domain.ClassificationResult{"Quote": notComplaint()}}
	svc := newService(&fakeSource{msgs: fixtures()}, store, cls, func(d *Deps) { d.Cursor = cursor })

	summary, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.New)
	require.Len(t, summary.Errors, 1)
	assert.Contains(t, summary.Errors[0], "conv-2")
	assert.Zero(t, cursor.set, "cursor must not advance past a failed message")
}

func TestRunSourceFailure(t *testing.T) {
	svc := newService(failingSource{}, newMemStore(), &stubClassifier{})

	_, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.True(t, apperr.IsCode(err, apperr.CodeSourceUnavailable))
}

func TestRunCancelledBetweenMessages(t *testing.T) {
	store := newMemStore()
	cursor := &memCursor{}
	svc := newService(&fakeSource{msgs: fixtures()}, store, &stubClassifier{}, func(d *Deps) { d.Cursor = cursor })

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, store.records)
	assert.Zero(t, cursor.set)
}

func TestRoundTripMatchesBuiltRecord(t *testing.T) {
	store := newMemStore()
	audit := &captureAudit{}
	svc := newService(&fakeSource{msgs: fixtures()[:2]}, store, &stubClassifier{}, func(d *Deps) { d.Audit = audit })

	_, err := svc.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, audit.events, 2)

	for _, ev := range audit.events {
		stored, err := store.GetByConversation(context.Background(), ev.ConversationID)
		require.NoError(t, err)
		assert.Equal(t, ev.Record, stored)
	}
}

func TestLatestPerConversation(t *testing.T) {
	msgs := []*domain.RawMessage{
		msg("b", "x@a.com", "s", "", 2*time.Hour),
		msg("a", "x@a.com", "s", "", time.Hour),
		msg("b", "y@a.com", "s", "", 0),
		msg("a", "z@a.com", "s", "", 3*time.Hour),
		{ConversationID: "", ReceivedAt: base},
	}

	latest, first := LatestPerConversation(msgs)

	require.Len(t, latest, 2)
	assert.Equal(t, "b", latest[0].ConversationID)
	assert.Equal(t, base.Add(2*time.Hour), latest[0].ReceivedAt)
	assert.Equal(t, "a", latest[1].ConversationID)
	assert.Equal(t, base.Add(3*time.Hour), latest[1].ReceivedAt)
	assert.Equal(t, "y@a.com", first["b"].From)
	assert.Equal(t, "x@a.com", first["a"].From)
}
