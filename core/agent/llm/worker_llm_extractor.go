package llm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/goccy/go-json"

	"complaint_server/core/domain"
)

// MaxSummaryWords bounds stored summaries.
const MaxSummaryWords = 45

// ParseResponse turns raw model output into a ClassificationResult. Output
// that cannot be read yields a parse_failed result.
func ParseResponse(raw string) domain.ClassificationResult {
	text := stripFences(strings.TrimSpace(raw))

	if v, ok := decode(text); ok {
		if r, ok := fromValue(v); ok {
			return r
		}
	}
	if region, ok := firstObject(text); ok {
		if v, ok := decode(region); ok {
			if r, ok := fromValue(v); ok {
				return r
			}
		}
	}
	return domain.Unclassified(domain.ClassificationParseFailed)
}

func stripFences(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

func decode(s string) (any, bool) {
	if s == "" {
		return nil, false
	}
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, false
	}
	return v, true
}

// firstObject returns the first balanced brace region, skipping braces that
// appear inside JSON strings.
func firstObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}

func fromValue(v any) (domain.ClassificationResult, bool) {
	switch t := v.(type) {
	case map[string]any:
		return fromObject(t), true
	case []any:
		if len(t) == 0 {
			return domain.ClassificationResult{}, false
		}
		if obj, ok := t[0].(map[string]any); ok {
			return fromObject(obj), true
		}
	}
	return domain.ClassificationResult{}, false
}

func fromObject(obj map[string]any) domain.ClassificationResult {
	category := stringField(obj, "category")
	if category == "" {
		category = stringField(obj, "category_suggested")
	}
	return domain.ClassificationResult{
		Status:      domain.ClassificationParsed,
		IsComplaint: boolField(obj["is_complaint"]),
		Category:    domain.ParseCategory(category),
		Summary:     TightenSummary(stringField(obj, "summary"), MaxSummaryWords),
		PartNumber:  strings.TrimSpace(stringField(obj, "part_number")),
	}
}

func stringField(obj map[string]any, key string) string {
	switch v := obj[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}

func boolField(v any) bool {
	switch t := v.(type) {
	case bool:
		return t
	case string:
		switch strings.ToLower(strings.TrimSpace(t)) {
		case "true", "yes", "y", "1":
			return true
		}
	case float64:
		return t != 0
	}
	return false
}

// TightenSummary keeps at most maxWords whitespace-separated words.
func TightenSummary(s string, maxWords int) string {
	words := strings.Fields(s)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}
