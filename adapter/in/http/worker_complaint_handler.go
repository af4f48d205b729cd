package http

import (
	"context"
	"encoding/csv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/core/service/complaint"
	"complaint_server/pkg/response"
)

// ComplaintReader is the read side served over HTTP.
type ComplaintReader interface {
	List(ctx context.Context, f out.ListFilter) ([]*domain.ComplaintRecord, error)
	Get(ctx context.Context, conversationID string) (*complaint.Detail, error)
	Case(ctx context.Context, key domain.CaseKey) (*complaint.Case, error)
	History(ctx context.Context, key domain.CaseKey, limit int) ([]*domain.BuildEvent, error)
	Export(ctx context.Context, f out.ListFilter) ([]*domain.ComplaintRecord, error)
	Columns(ctx context.Context) ([]string, error)
	SetCustom(ctx context.Context, conversationID, column, value string) error
}

// ComplaintHandler handles complaint and case requests.
type ComplaintHandler struct {
	query ComplaintReader
}

func NewComplaintHandler(query ComplaintReader) *ComplaintHandler {
	return &ComplaintHandler{query: query}
}

// Register registers complaint routes.
func (h *ComplaintHandler) Register(router fiber.Router) {
	complaints := router.Group("/complaints")
	complaints.Get("/", h.List)
	complaints.Get("/export", h.Export)
	complaints.Get("/:conversationId", h.Get)
	complaints.Put("/:conversationId/custom/:column", h.SetCustom)

	cases := router.Group("/cases")
	cases.Get("/:caseKey", h.Case)
	cases.Get("/:caseKey/history", h.History)

	router.Get("/custom-columns", h.Columns)
}

// =============================================================================
// Handlers
// =============================================================================

func (h *ComplaintHandler) List(c *fiber.Ctx) error {
	f, err := listFilter(c)
	if err != nil {
		return err
	}
	records, err := h.query.List(c.UserContext(), f)
	if err != nil {
		return err
	}
	return response.OKWithMeta(c, records, &response.Meta{
		Total:   len(records),
		HasMore: f.Limit > 0 && len(records) == f.Limit,
	})
}

func (h *ComplaintHandler) Get(c *fiber.Ctx) error {
	id, err := param(c, "conversationId")
	if err != nil {
		return err
	}
	detail, err := h.query.Get(c.UserContext(), id)
	if err != nil {
		return err
	}
	return response.OK(c, detail)
}

func (h *ComplaintHandler) Case(c *fiber.Ctx) error {
	key, err := param(c, "caseKey")
	if err != nil {
		return err
	}
	cs, err := h.query.Case(c.UserContext(), domain.CaseKey(key))
	if err != nil {
		return err
	}
	return response.OK(c, cs)
}

func (h *ComplaintHandler) History(c *fiber.Ctx) error {
	key, err := param(c, "caseKey")
	if err != nil {
		return err
	}
	events, err := h.query.History(c.UserContext(), domain.CaseKey(key), c.QueryInt("limit", 0))
	if err != nil {
		return err
	}
	return response.OK(c, events)
}

func (h *ComplaintHandler) Columns(c *fiber.Ctx) error {
	cols, err := h.query.Columns(c.UserContext())
	if err != nil {
		return err
	}
	return response.OK(c, cols)
}

type setCustomRequest struct {
	Value string `json:"value"`
}

func (h *ComplaintHandler) SetCustom(c *fiber.Ctx) error {
	id, err := param(c, "conversationId")
	if err != nil {
		return err
	}
	column, err := param(c, "column")
	if err != nil {
		return err
	}
	var req setCustomRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := h.query.SetCustom(c.UserContext(), id, column, req.Value); err != nil {
		return err
	}
	return response.NoContent(c)
}

// Export returns one record per case key. format=csv streams a spreadsheet.
func (h *ComplaintHandler) Export(c *fiber.Ctx) error {
	f, err := listFilter(c)
	if err != nil {
		return err
	}
	records, err := h.query.Export(c.UserContext(), f)
	if err != nil {
		return err
	}

	if !strings.EqualFold(c.Query("format"), "csv") {
		return response.OKWithMeta(c, records, &response.Meta{Total: len(records)})
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, `attachment; filename="complaints.csv"`)

	w := csv.NewWriter(c.Response().BodyWriter())
	if err := w.Write(exportHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := w.Write(exportRow(r)); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

var exportHeader = []string{
	"case_key", "conversation_id", "part_number", "category", "summary",
	"from_email", "subject", "received_at", "first_seen_at",
	"initiator_email", "origin_sender", "origin_sent_at", "origin_confidence",
	"duplicate_of", "thread_url",
}

func exportRow(r *domain.ComplaintRecord) []string {
	originSent := ""
	if r.OriginSentAt != nil {
		originSent = r.OriginSentAt.UTC().Format(time.RFC3339)
	}
	return []string{
		string(r.CaseKey),
		r.ConversationID,
		r.PartNumber,
		string(r.Category),
		r.Summary,
		r.FromEmail,
		r.Subject,
		r.ReceivedAt.UTC().Format(time.RFC3339),
		r.FirstSeenAt.UTC().Format(time.RFC3339),
		r.InitiatorEmail,
		r.OriginSender,
		originSent,
		string(r.OriginConfidence),
		r.DuplicateOf,
		r.ThreadURL,
	}
}
