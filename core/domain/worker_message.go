package domain

import (
	"strings"
	"time"
)

// RawMessage is one fetched email, HTML already reduced to plain text.
// Body carries the full quoted history.
type RawMessage struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	From           string    `json:"from"`
	FromName       string    `json:"from_name,omitempty"`
	Subject        string    `json:"subject"`
	Body           string    `json:"body"`
	ReceivedAt     time.Time `json:"received_at"`
	WebLink        string    `json:"web_link,omitempty"`
}

// SenderDomain returns the lowercased domain of the sender address.
func (m *RawMessage) SenderDomain() string {
	return DomainOf(m.From)
}

// DomainOf returns the lowercased part after the last '@', or "" when absent.
func DomainOf(address string) string {
	address = strings.TrimSpace(strings.ToLower(address))
	i := strings.LastIndex(address, "@")
	if i < 0 || i == len(address)-1 {
		return ""
	}
	return strings.Trim(address[i+1:], "<>. ")
}
