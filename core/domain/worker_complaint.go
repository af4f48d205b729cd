package domain

import (
	"strings"
	"time"
)

// CaseKey groups records that describe the same underlying complaint.
type CaseKey string

func (k CaseKey) String() string { return string(k) }

// MissingPartNumber is stored when no part number could be resolved.
const MissingPartNumber = "No part number provided"

// Category is a complaint category.
type Category string

const (
	CategoryProduct       Category = "Product"
	CategoryShipping      Category = "Shipping"
	CategoryDocumentation Category = "Documentation/Revision"
	CategoryInvoicing     Category = "Invoicing/RTV"
	CategorySupplier      Category = "Supplier/SCAR"
	CategoryDamage        Category = "Damage/Transit"
	CategoryMissingParts  Category = "Missing Parts"
	CategoryOther         Category = "Other"
	CategoryUnclassified  Category = "unclassified"
)

// Categories lists the values a classifier may return.
var Categories = []Category{
	CategoryProduct,
	CategoryShipping,
	CategoryDocumentation,
	CategoryInvoicing,
	CategorySupplier,
	CategoryDamage,
	CategoryMissingParts,
	CategoryOther,
}

// ParseCategory validates a classifier category. Empty input is unclassified;
// anything outside the fixed set becomes Other.
func ParseCategory(s string) Category {
	s = strings.TrimSpace(s)
	if s == "" {
		return CategoryUnclassified
	}
	for _, c := range Categories {
		if strings.EqualFold(s, string(c)) {
			return c
		}
	}
	return CategoryOther
}

// ClassificationStatus says where a ClassificationResult came from.
type ClassificationStatus string

const (
	ClassificationParsed      ClassificationStatus = "parsed"
	ClassificationParseFailed ClassificationStatus = "parse_failed"
	ClassificationUnavailable ClassificationStatus = "unavailable"
)

// ClassificationResult is advisory output from the classifier.
type ClassificationResult struct {
	Status      ClassificationStatus `json:"status"`
	IsComplaint bool                 `json:"is_complaint"`
	Category    Category             `json:"category"`
	Summary     string               `json:"summary"`
	PartNumber  string               `json:"part_number,omitempty"`
}

// Unclassified returns the degraded result used when no usable output exists.
func Unclassified(status ClassificationStatus) ClassificationResult {
	return ClassificationResult{
		Status:   status,
		Category: CategoryUnclassified,
	}
}

// Usable reports whether the result came from a parsed response.
func (r ClassificationResult) Usable() bool {
	return r.Status == ClassificationParsed
}

// MergeAction reports what the record builder did.
type MergeAction string

const (
	MergeCreated   MergeAction = "created"
	MergeUpdated   MergeAction = "updated"
	MergeDuplicate MergeAction = "merged-as-duplicate-thread"
)

// ComplaintRecord is the persisted complaint, keyed by conversation.
type ComplaintRecord struct {
	ConversationID       string               `json:"conversation_id" bson:"conversation_id"`
	CaseKey              CaseKey              `json:"case_key" bson:"case_key"`
	PartNumber           string               `json:"part_number" bson:"part_number"`
	Category             Category             `json:"category" bson:"category"`
	Summary              string               `json:"summary" bson:"summary"`
	IsComplaint          bool                 `json:"is_complaint" bson:"is_complaint"`
	ClassificationStatus ClassificationStatus `json:"classification_status" bson:"classification_status"`
	FromEmail            string               `json:"from_email" bson:"from_email"`
	Subject              string               `json:"subject" bson:"subject"`
	ReceivedAt           time.Time            `json:"received_at" bson:"received_at"`
	OriginSender         string               `json:"origin_sender,omitempty" bson:"origin_sender,omitempty"`
	OriginSentAt         *time.Time           `json:"origin_sent_at,omitempty" bson:"origin_sent_at,omitempty"`
	OriginConfidence     OriginConfidence     `json:"origin_confidence" bson:"origin_confidence"`
	InitiatorEmail       string               `json:"initiator_email,omitempty" bson:"initiator_email,omitempty"`
	FirstSeenAt          time.Time            `json:"first_seen_at" bson:"first_seen_at"`
	ThreadURL            string               `json:"thread_url,omitempty" bson:"thread_url,omitempty"`
	MatchedRules         []string             `json:"matched_rules,omitempty" bson:"matched_rules,omitempty"`
	DuplicateOf          string               `json:"duplicate_of,omitempty" bson:"duplicate_of,omitempty"`
}

// Origin returns the stored origin as an OriginRecord.
func (r *ComplaintRecord) Origin() OriginRecord {
	conf := r.OriginConfidence
	if conf == "" {
		conf = OriginUnresolved
	}
	return OriginRecord{Sender: r.OriginSender, SentAt: r.OriginSentAt, Confidence: conf}
}

// Clone returns a deep copy.
func (r *ComplaintRecord) Clone() *ComplaintRecord {
	if r == nil {
		return nil
	}
	c := *r
	if r.OriginSentAt != nil {
		t := *r.OriginSentAt
		c.OriginSentAt = &t
	}
	if r.MatchedRules != nil {
		c.MatchedRules = append([]string(nil), r.MatchedRules...)
	}
	return &c
}

// BatchSummary aggregates one pipeline run.
type BatchSummary struct {
	RunID       string    `json:"run_id"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
	Checked     int       `json:"checked"`
	New         int       `json:"new"`
	Updated     int       `json:"updated"`
	Merged      int       `json:"merged"`
	FilteredOut int       `json:"filtered_out"`
	Unchanged   int       `json:"unchanged"`
	Failed      int       `json:"failed"`
	Updates     []string  `json:"updates,omitempty"`
	Errors      []string  `json:"errors,omitempty"`
}

// Changed reports whether the run created or modified any record.
func (s *BatchSummary) Changed() bool {
	return s.New > 0 || s.Updated > 0 || s.Merged > 0
}
