package http

import (
	"net/url"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/pkg/apperr"
)

// param returns a path parameter with percent-escapes decoded.
func param(c *fiber.Ctx, name string) (string, error) {
	raw := c.Params(name)
	v, err := url.PathUnescape(raw)
	if err != nil || strings.TrimSpace(v) == "" {
		return "", apperr.InvalidInput(name, "must be a non-empty path segment")
	}
	return v, nil
}

// parseTime accepts RFC3339 or YYYY-MM-DD (UTC midnight).
func parseTime(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		t = t.UTC()
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		return nil, apperr.InvalidInput(field, "expected RFC3339 or YYYY-MM-DD")
	}
	return &t, nil
}

// listFilter reads since, category, case_key, limit and offset.
func listFilter(c *fiber.Ctx) (out.ListFilter, error) {
	since, err := parseTime("since", c.Query("since"))
	if err != nil {
		return out.ListFilter{}, err
	}

	f := out.ListFilter{
		Since:   since,
		CaseKey: domain.CaseKey(c.Query("case_key")),
		Limit:   c.QueryInt("limit", 0),
		Offset:  c.QueryInt("offset", 0),
	}
	if f.Limit < 0 || f.Offset < 0 {
		return out.ListFilter{}, apperr.InvalidInput("limit", "limit and offset must be non-negative")
	}
	if cat := c.Query("category"); cat != "" {
		f.Category = domain.ParseCategory(cat)
		if f.Category == domain.CategoryOther && !strings.EqualFold(cat, string(domain.CategoryOther)) {
			return out.ListFilter{}, apperr.InvalidInput("category", "unknown category")
		}
	}
	return f, nil
}
