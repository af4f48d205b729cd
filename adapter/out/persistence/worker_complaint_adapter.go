package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
)

// =============================================================================
// ComplaintAdapter - complaints table
// =============================================================================

type ComplaintAdapter struct {
	db *sqlx.DB
}

var _ out.ComplaintStore = (*ComplaintAdapter)(nil)

func NewComplaintAdapter(db *sqlx.DB) *ComplaintAdapter {
	return &ComplaintAdapter{db: db}
}

// =============================================================================
// Entity
// =============================================================================

type complaintRow struct {
	ConversationID       string         `db:"conversation_id"`
	CaseKey              string         `db:"case_key"`
	PartNumber           string         `db:"part_number"`
	Category             string         `db:"category"`
	Summary              string         `db:"summary"`
	IsComplaint          bool           `db:"is_complaint"`
	ClassificationStatus string         `db:"classification_status"`
	FromEmail            string         `db:"from_email"`
	Subject              string         `db:"subject"`
	ReceivedAt           time.Time      `db:"received_at"`
	OriginSender         sql.NullString `db:"origin_sender"`
	OriginSentAt         sql.NullTime   `db:"origin_sent_at"`
	OriginConfidence     string         `db:"origin_confidence"`
	InitiatorEmail       sql.NullString `db:"initiator_email"`
	FirstSeenAt          time.Time      `db:"first_seen_at"`
	ThreadURL            sql.NullString `db:"thread_url"`
	MatchedRules         pq.StringArray `db:"matched_rules"`
	DuplicateOf          sql.NullString `db:"duplicate_of"`
}

const complaintColumns = `conversation_id, case_key, part_number, category, summary, is_complaint,
	classification_status, from_email, subject, received_at, origin_sender, origin_sent_at,
	origin_confidence, initiator_email, first_seen_at, thread_url, matched_rules, duplicate_of`

func (r *complaintRow) toEntity() *domain.ComplaintRecord {
	rec := &domain.ComplaintRecord{
		ConversationID:       r.ConversationID,
		CaseKey:              domain.CaseKey(r.CaseKey),
		PartNumber:           r.PartNumber,
		Category:             domain.Category(r.Category),
		Summary:              r.Summary,
		IsComplaint:          r.IsComplaint,
		ClassificationStatus: domain.ClassificationStatus(r.ClassificationStatus),
		FromEmail:            r.FromEmail,
		Subject:              r.Subject,
		ReceivedAt:           r.ReceivedAt.UTC(),
		OriginSender:         r.OriginSender.String,
		OriginConfidence:     domain.OriginConfidence(r.OriginConfidence),
		InitiatorEmail:       r.InitiatorEmail.String,
		FirstSeenAt:          r.FirstSeenAt.UTC(),
		ThreadURL:            r.ThreadURL.String,
		DuplicateOf:          r.DuplicateOf.String,
	}
	if r.OriginSentAt.Valid {
		t := r.OriginSentAt.Time.UTC()
		rec.OriginSentAt = &t
	}
	if len(r.MatchedRules) > 0 {
		rec.MatchedRules = []string(r.MatchedRules)
	}
	return rec
}

func fromEntity(rec *domain.ComplaintRecord) *complaintRow {
	row := &complaintRow{
		ConversationID:       rec.ConversationID,
		CaseKey:              string(rec.CaseKey),
		PartNumber:           rec.PartNumber,
		Category:             string(rec.Category),
		Summary:              rec.Summary,
		IsComplaint:          rec.IsComplaint,
		ClassificationStatus: string(rec.ClassificationStatus),
		FromEmail:            rec.FromEmail,
		Subject:              rec.Subject,
		ReceivedAt:           rec.ReceivedAt.UTC(),
		OriginSender:         nullString(rec.OriginSender),
		OriginConfidence:     string(rec.OriginConfidence),
		InitiatorEmail:       nullString(rec.InitiatorEmail),
		FirstSeenAt:          rec.FirstSeenAt.UTC(),
		ThreadURL:            nullString(rec.ThreadURL),
		MatchedRules:         pq.StringArray(rec.MatchedRules),
		DuplicateOf:          nullString(rec.DuplicateOf),
	}
	if row.MatchedRules == nil {
		row.MatchedRules = pq.StringArray{}
	}
	if row.OriginConfidence == "" {
		row.OriginConfidence = string(domain.OriginUnresolved)
	}
	if rec.OriginSentAt != nil {
		row.OriginSentAt = sql.NullTime{Time: rec.OriginSentAt.UTC(), Valid: true}
	}
	return row
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// =============================================================================
// Reads
// =============================================================================

func (a *ComplaintAdapter) GetByConversation(ctx context.Context, conversationID string) (*domain.ComplaintRecord, error) {
	var row complaintRow
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE conversation_id = $1`
	if err := a.db.GetContext(ctx, &row, query, conversationID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get complaint: %w", err)
	}
	return row.toEntity(), nil
}

func (a *ComplaintAdapter) FindByCaseKey(ctx context.Context, key domain.CaseKey) ([]*domain.ComplaintRecord, error) {
	var rows []complaintRow
	query := `SELECT ` + complaintColumns + ` FROM complaints WHERE case_key = $1 ORDER BY received_at DESC, conversation_id`
	if err := a.db.SelectContext(ctx, &rows, query, string(key)); err != nil {
		return nil, fmt.Errorf("failed to find complaints by case key: %w", err)
	}
	return toEntities(rows), nil
}

func (a *ComplaintAdapter) List(ctx context.Context, f out.ListFilter) ([]*domain.ComplaintRecord, error) {
	var (
		where []string
		args  []interface{}
	)
	if f.Since != nil {
		args = append(args, f.Since.UTC())
		where = append(where, fmt.Sprintf("received_at >= $%d", len(args)))
	}
	if f.Category != "" {
		args = append(args, string(f.Category))
		where = append(where, fmt.Sprintf("category = $%d", len(args)))
	}
	if f.CaseKey != "" {
		args = append(args, string(f.CaseKey))
		where = append(where, fmt.Sprintf("case_key = $%d", len(args)))
	}

	query := `SELECT ` + complaintColumns + ` FROM complaints`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY received_at DESC, conversation_id`
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	var rows []complaintRow
	if err := a.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list complaints: %w", err)
	}
	return toEntities(rows), nil
}

func toEntities(rows []complaintRow) []*domain.ComplaintRecord {
	out := make([]*domain.ComplaintRecord, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toEntity())
	}
	return out
}

// =============================================================================
// Writes
// =============================================================================

// Upsert writes the full record. first_seen_at never moves later and a
// stored initiator is never replaced.
func (a *ComplaintAdapter) Upsert(ctx context.Context, rec *domain.ComplaintRecord) error {
	query := `
		INSERT INTO complaints (` + complaintColumns + `)
		VALUES (:conversation_id, :case_key, :part_number, :category, :summary, :is_complaint,
			:classification_status, :from_email, :subject, :received_at, :origin_sender, :origin_sent_at,
			:origin_confidence, :initiator_email, :first_seen_at, :thread_url, :matched_rules, :duplicate_of)
		ON CONFLICT (conversation_id) DO UPDATE SET
			case_key              = EXCLUDED.case_key,
			part_number           = EXCLUDED.part_number,
			category              = EXCLUDED.category,
			summary               = EXCLUDED.summary,
			is_complaint          = EXCLUDED.is_complaint,
			classification_status = EXCLUDED.classification_status,
			from_email            = EXCLUDED.from_email,
			subject               = EXCLUDED.subject,
			received_at           = EXCLUDED.received_at,
			origin_sender         = EXCLUDED.origin_sender,
			origin_sent_at        = EXCLUDED.origin_sent_at,
			origin_confidence     = EXCLUDED.origin_confidence,
			initiator_email       = COALESCE(complaints.initiator_email, EXCLUDED.initiator_email),
			first_seen_at         = LEAST(complaints.first_seen_at, EXCLUDED.first_seen_at),
			thread_url            = EXCLUDED.thread_url,
			matched_rules         = EXCLUDED.matched_rules,
			duplicate_of          = EXCLUDED.duplicate_of,
			updated_at            = NOW()`

	_, err := a.db.NamedExecContext(ctx, query, fromEntity(rec))
	return wrapWrite(rec.ConversationID, "upsert complaint", err)
}

func (a *ComplaintAdapter) Touch(ctx context.Context, conversationID string, receivedAt time.Time) error {
	query := `
		UPDATE complaints
		SET received_at = GREATEST(received_at, $2), updated_at = NOW()
		WHERE conversation_id = $1`
	_, err := a.db.ExecContext(ctx, query, conversationID, receivedAt.UTC())
	return wrapWrite(conversationID, "touch complaint", err)
}
