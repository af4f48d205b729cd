package complaint

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/pkg/apperr"
)

type listStore struct {
	records []*domain.ComplaintRecord
	lastF   out.ListFilter
}

func (l *listStore) GetByConversation(ctx context.Context, id string) (*domain.ComplaintRecord, error) {
	for _, r := range l.records {
		if r.ConversationID == id {
			return r, nil
		}
	}
	return nil, nil
}

func (l *listStore) FindByCaseKey(ctx context.Context, key domain.CaseKey) ([]*domain.ComplaintRecord, error) {
	var out []*domain.ComplaintRecord
	for _, r := range l.records {
		if r.CaseKey == key {
			out = append(out, r)
		}
	}
	return out, nil
}

func (l *listStore) Upsert(ctx context.Context, r *domain.ComplaintRecord) error { return nil }

func (l *listStore) Touch(ctx context.Context, id string, at time.Time) error { return nil }

func (l *listStore) List(ctx context.Context, f out.ListFilter) ([]*domain.ComplaintRecord, error) {
	l.lastF = f
	return l.records, nil
}

type mapColumns struct {
	values map[string]map[string]string
}

func (m *mapColumns) ListColumns(ctx context.Context) ([]string, error) { return nil, nil }

func (m *mapColumns) SetCustomValue(ctx context.Context, id, column, value string) error {
	if m.values[id] == nil {
		m.values[id] = map[string]string{}
	}
	m.values[id][column] = value
	return nil
}

func (m *mapColumns) CustomValues(ctx context.Context, id string) (map[string]string, error) {
	return m.values[id], nil
}

var t0 = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func rec(conv string, key domain.CaseKey, offset time.Duration) *domain.ComplaintRecord {
	return &domain.ComplaintRecord{ConversationID: conv, CaseKey: key, ReceivedAt: t0.Add(offset)}
}

func TestDedupeKeepsLatestPerCase(t *testing.T) {
	records := []*domain.ComplaintRecord{
		rec("a1", "acme-com-hx-2210", 0),
		rec("a2", "acme-com-hx-2210", 2*time.Hour),
		rec("b1", "globex-com-br-100", time.Hour),
	}

	got := Dedupe(records)

	require.Len(t, got, 2)
	assert.Equal(t, "b1", got[0].ConversationID)
	assert.Equal(t, "a2", got[1].ConversationID)
}

func TestExportIgnoresPaging(t *testing.T) {
	store := &listStore{records: []*domain.ComplaintRecord{rec("a1", "k", 0)}}
	svc := NewQueryService(store, nil, nil)

	_, err := svc.Export(context.Background(), out.ListFilter{Limit: 5, Offset: 10})
	require.NoError(t, err)
	assert.Zero(t, store.lastF.Limit)
	assert.Zero(t, store.lastF.Offset)
}

func TestListClampsLimit(t *testing.T) {
	store := &listStore{}
	svc := NewQueryService(store, nil, nil)

	_, _ = svc.List(context.Background(), out.ListFilter{})
	assert.Equal(t, DefaultLimit, store.lastF.Limit)

	_, _ = svc.List(context.Background(), out.ListFilter{Limit: 50000})
	assert.Equal(t, MaxLimit, store.lastF.Limit)
}

func TestGetAndCustomColumns(t *testing.T) {
	store := &listStore{records: []*domain.ComplaintRecord{rec("a1", "k", 0)}}
	cols := &mapColumns{values: map[string]map[string]string{}}
	svc := NewQueryService(store, cols, nil)
	ctx := context.Background()

	require.NoError(t, svc.SetCustom(ctx, "a1", "Owner", "Dana"))

	d, err := svc.Get(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Dana", d.Custom["Owner"])

	_, err = svc.Get(ctx, "missing")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))

	err = svc.SetCustom(ctx, "a1", "  ", "x")
	assert.True(t, apperr.IsCode(err, apperr.CodeInvalidInput))

	err = svc.SetCustom(ctx, "missing", "Owner", "x")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}

func TestCaseNotFound(t *testing.T) {
	svc := NewQueryService(&listStore{}, nil, nil)
	_, err := svc.Case(context.Background(), "nope")
	assert.True(t, apperr.IsCode(err, apperr.CodeNotFound))
}
