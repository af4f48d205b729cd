package llm

import (
	"strings"
	"testing"

	"complaint_server/core/domain"
)

func TestTruncateBody(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		maxLen   int
		expected string
	}{
		{
			name:     "short body",
			body:     "Hello world",
			maxLen:   100,
			expected: "Hello world",
		},
		{
			name:     "exact length",
			body:     "Hello",
			maxLen:   5,
			expected: "Hello",
		},
		{
			name:     "truncated",
			body:     "Hello world, this is a long message",
			maxLen:   10,
			expected: "Hello worl...",
		},
		{
			name:     "empty body",
			body:     "",
			maxLen:   100,
			expected: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := truncateBody(tt.body, tt.maxLen)
			if result != tt.expected {
				t.Errorf("expected %q, got %q", tt.expected, result)
			}
		})
	}
}

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		status      domain.ClassificationStatus
		isComplaint bool
		category    domain.Category
		part        string
	}{
		{
			name:        "direct object",
			raw:         `{"is_complaint": true, "category": "Product", "summary": "Cracked housing.", "part_number": "AB-1234"}`,
			status:      domain.ClassificationParsed,
			isComplaint: true,
			category:    domain.CategoryProduct,
			part:        "AB-1234",
		},
		{
			name:        "embedded in prose",
			raw:         `Here is the result: {"is_complaint": true, "category": "Shipping", "summary": "late"} done`,
			status:      domain.ClassificationParsed,
			isComplaint: true,
			category:    domain.CategoryShipping,
		},
		{
			name:        "code fence",
			raw:         "```json\n{\"is_complaint\": false, \"category\": \"Other\"}\n```",
			status:      domain.ClassificationParsed,
			isComplaint: false,
			category:    domain.CategoryOther,
		},
		{
			name:        "array takes first element",
			raw:         `[{"is_complaint": true, "category": "Missing Parts"}, {"is_complaint": false}]`,
			status:      domain.ClassificationParsed,
			isComplaint: true,
			category:    domain.CategoryMissingParts,
		},
		{
			name:        "brace inside string",
			raw:         `note {"is_complaint": "yes", "category": "Damage/Transit", "summary": "box {crushed}"} end`,
			status:      domain.ClassificationParsed,
			isComplaint: true,
			category:    domain.CategoryDamage,
		},
		{
			name:        "legacy category key",
			raw:         `{"is_complaint": true, "category_suggested": "supplier/scar"}`,
			status:      domain.ClassificationParsed,
			isComplaint: true,
			category:    domain.CategorySupplier,
		},
		{
			name:        "unknown category",
			raw:         `{"is_complaint": true, "category": "Weather"}`,
			status:      domain.ClassificationParsed,
			isComplaint: true,
			category:    domain.CategoryOther,
		},
		{
			name:     "garbage",
			raw:      "I cannot help with that.",
			status:   domain.ClassificationParseFailed,
			category: domain.CategoryUnclassified,
		},
		{
			name:     "unbalanced",
			raw:      `{"is_complaint": true`,
			status:   domain.ClassificationParseFailed,
			category: domain.CategoryUnclassified,
		},
		{
			name:     "empty",
			raw:      "",
			status:   domain.ClassificationParseFailed,
			category: domain.CategoryUnclassified,
		},
		{
			name:     "array of scalars",
			raw:      `[1, 2, 3]`,
			status:   domain.ClassificationParseFailed,
			category: domain.CategoryUnclassified,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseResponse(tt.raw)
			if got.Status != tt.status {
				t.Errorf("status: expected %q, got %q", tt.status, got.Status)
			}
			if got.IsComplaint != tt.isComplaint {
				t.Errorf("is_complaint: expected %v, got %v", tt.isComplaint, got.IsComplaint)
			}
			if got.Category != tt.category {
				t.Errorf("category: expected %q, got %q", tt.category, got.Category)
			}
			if got.PartNumber != tt.part {
				t.Errorf("part: expected %q, got %q", tt.part, got.PartNumber)
			}
		})
	}
}

func TestParseResponseFailureIsEmpty(t *testing.T) {
	got := ParseResponse("nope")
	if got.IsComplaint || got.Summary != "" || got.PartNumber != "" {
		t.Errorf("expected empty result, got %+v", got)
	}
}

func TestTightenSummary(t *testing.T) {
	long := strings.Repeat("word ", 60)
	got := TightenSummary(long, MaxSummaryWords)
	if n := len(strings.Fields(got)); n != MaxSummaryWords {
		t.Errorf("expected %d words, got %d", MaxSummaryWords, n)
	}
	if got := TightenSummary("  two \n words ", 45); got != "two words" {
		t.Errorf("expected %q, got %q", "two words", got)
	}
}

func TestSystemPromptListsCategories(t *testing.T) {
	for _, c := range domain.Categories {
		if !strings.Contains(systemPrompt, string(c)) {
			t.Errorf("system prompt missing category %q", c)
		}
	}
}
