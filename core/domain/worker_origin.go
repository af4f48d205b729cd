package domain

import "time"

// OriginConfidence tells how an origin record was recovered.
type OriginConfidence string

const (
	OriginHeaderParsed OriginConfidence = "header-parsed"
	OriginInlineParsed OriginConfidence = "inline-parsed"
	OriginUnresolved   OriginConfidence = "unresolved"
)

// Rank orders confidences; higher is more trustworthy.
func (c OriginConfidence) Rank() int {
	switch c {
	case OriginHeaderParsed:
		return 2
	case OriginInlineParsed:
		return 1
	default:
		return 0
	}
}

// OriginRecord is the earliest sender and timestamp found in a quoted thread.
type OriginRecord struct {
	Sender     string           `json:"sender,omitempty"`
	SentAt     *time.Time       `json:"sent_at,omitempty"`
	Confidence OriginConfidence `json:"confidence"`
}

// UnresolvedOrigin is the result for text without recognizable quoting.
func UnresolvedOrigin() OriginRecord {
	return OriginRecord{Confidence: OriginUnresolved}
}

func (o OriginRecord) Resolved() bool {
	return o.Confidence != OriginUnresolved && o.Confidence != ""
}
