// Package complaint serves read access to stored complaint records.
package complaint

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/pkg/apperr"
)

const (
	DefaultLimit = 100
	MaxLimit     = 1000
)

// Detail is a record together with its custom column values.
type Detail struct {
	*domain.ComplaintRecord
	Custom map[string]string `json:"custom,omitempty"`
}

// Case groups every thread stamped with one case key.
type Case struct {
	CaseKey domain.CaseKey            `json:"case_key"`
	Threads []*domain.ComplaintRecord `json:"threads"`
}

type QueryService struct {
	store   out.ComplaintStore
	columns out.CustomColumnStore
	archive out.ComplaintArchive
}

// NewQueryService creates the read service. columns and archive may be nil.
func NewQueryService(store out.ComplaintStore, columns out.CustomColumnStore, archive out.ComplaintArchive) *QueryService {
	return &QueryService{store: store, columns: columns, archive: archive}
}

func (s *QueryService) List(ctx context.Context, f out.ListFilter) ([]*domain.ComplaintRecord, error) {
	if f.Limit <= 0 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return s.store.List(ctx, f)
}

func (s *QueryService) Get(ctx context.Context, conversationID string) (*Detail, error) {
	rec, err := s.store.GetByConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, apperr.NotFound("complaint")
	}
	d := &Detail{ComplaintRecord: rec}
	if s.columns != nil {
		if d.Custom, err = s.columns.CustomValues(ctx, conversationID); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func (s *QueryService) Case(ctx context.Context, key domain.CaseKey) (*Case, error) {
	threads, err := s.store.FindByCaseKey(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(threads) == 0 {
		return nil, apperr.NotFound("case")
	}
	return &Case{CaseKey: key, Threads: threads}, nil
}

func (s *QueryService) History(ctx context.Context, key domain.CaseKey, limit int) ([]*domain.BuildEvent, error) {
	if s.archive == nil {
		return nil, apperr.New(apperr.CodeConfigError, "case history is not configured", http.StatusNotImplemented)
	}
	if limit <= 0 || limit > MaxLimit {
		limit = DefaultLimit
	}
	return s.archive.CaseHistory(ctx, key, limit)
}

// Export enumerates records deduplicated by case key, keeping the most
// recently received thread of each case, oldest case first.
func (s *QueryService) Export(ctx context.Context, f out.ListFilter) ([]*domain.ComplaintRecord, error) {
	f.Limit, f.Offset = 0, 0
	all, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	return Dedupe(all), nil
}

// Dedupe keeps the latest received record per case key.
func Dedupe(records []*domain.ComplaintRecord) []*domain.ComplaintRecord {
	latest := make(map[domain.CaseKey]*domain.ComplaintRecord, len(records))
	for _, r := range records {
		cur, ok := latest[r.CaseKey]
		if !ok || r.ReceivedAt.After(cur.ReceivedAt) ||
			(r.ReceivedAt.Equal(cur.ReceivedAt) && r.ConversationID > cur.ConversationID) {
			latest[r.CaseKey] = r
		}
	}
	out := make([]*domain.ComplaintRecord, 0, len(latest))
	for _, r := range latest {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ReceivedAt.Equal(out[j].ReceivedAt) {
			return out[i].ReceivedAt.Before(out[j].ReceivedAt)
		}
		return out[i].CaseKey < out[j].CaseKey
	})
	return out
}

// Columns lists the user-defined column names.
func (s *QueryService) Columns(ctx context.Context) ([]string, error) {
	if s.columns == nil {
		return []string{}, nil
	}
	return s.columns.ListColumns(ctx)
}

// SetCustom stores a value in a user-defined column, creating the column on
// first use.
func (s *QueryService) SetCustom(ctx context.Context, conversationID, column, value string) error {
	if s.columns == nil {
		return apperr.New(apperr.CodeConfigError, "custom columns are not configured", 501)
	}
	column = strings.TrimSpace(column)
	if column == "" || len(column) > 64 {
		return apperr.InvalidInput("column", "must be 1-64 characters")
	}
	rec, err := s.store.GetByConversation(ctx, conversationID)
	if err != nil {
		return err
	}
	if rec == nil {
		return apperr.NotFound("complaint")
	}
	return s.columns.SetCustomValue(ctx, conversationID, column, value)
}
