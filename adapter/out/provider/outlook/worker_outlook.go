// Package outlook reads a Microsoft Graph mailbox as the pipeline's message source.
package outlook

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/oauth2/microsoft"

	"complaint_server/core/domain"
	"complaint_server/core/port/out"
	"complaint_server/pkg/apperr"
	"complaint_server/pkg/httputil"
	"complaint_server/pkg/logger"
)

const (
	graphBaseURL    = "https://graph.microsoft.com/v1.0"
	graphScope      = "https://graph.microsoft.com/.default"
	messageFields   = "id,conversationId,subject,from,body,receivedDateTime,webLink"
	defaultPageSize = 50
	maxErrorBody    = 512
)

// Config selects the mailbox and credentials. AccessToken wins over client
// credentials when both are set.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	AccessToken  string
	Mailbox      string
	PageSize     int
	BaseURL      string
}

// =============================================================================
// Graph Source
// =============================================================================

// Source implements out.MessageSource and out.ConversationHistory.
type Source struct {
	client   *http.Client
	baseURL  string
	mailbox  string
	pageSize int
	log      zerolog.Logger
}

var (
	_ out.MessageSource       = (*Source)(nil)
	_ out.ConversationHistory = (*Source)(nil)
)

// NewSource builds an authenticated Graph client on a pooled transport.
func NewSource(ctx context.Context, cfg Config) *Source {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, httputil.NewClient(httputil.GraphClientConfig()))

	var ts oauth2.TokenSource
	if cfg.AccessToken != "" {
		ts = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.AccessToken, TokenType: "Bearer"})
	} else {
		cc := &clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     microsoft.AzureADEndpoint(cfg.TenantID).TokenURL,
			Scopes:       []string{graphScope},
		}
		ts = cc.TokenSource(ctx)
	}
	return NewSourceWithClient(oauth2.NewClient(ctx, ts), cfg)
}

// NewSourceWithClient uses client as is.
func NewSourceWithClient(client *http.Client, cfg Config) *Source {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = graphBaseURL
	}
	size := cfg.PageSize
	if size <= 0 {
		size = defaultPageSize
	}
	return &Source{
		client:   client,
		baseURL:  base,
		mailbox:  cfg.Mailbox,
		pageSize: size,
		log:      logger.Component("graph-source"),
	}
}

func (s *Source) messagesURL() string {
	if s.mailbox == "" || s.mailbox == "me" {
		return s.baseURL + "/me/messages"
	}
	return s.baseURL + "/users/" + url.PathEscape(s.mailbox) + "/messages"
}

// FetchSince returns every message received at or after since, oldest first.
func (s *Source) FetchSince(ctx context.Context, since time.Time) ([]*domain.RawMessage, error) {
	params := url.Values{}
	params.Set("$filter", "receivedDateTime ge "+since.UTC().Format(time.RFC3339))
	params.Set("$orderby", "receivedDateTime asc")
	params.Set("$top", fmt.Sprintf("%d", s.pageSize))
	params.Set("$select", messageFields)

	var messages []*domain.RawMessage
	next := s.messagesURL() + "?" + params.Encode()
	pages := 0
	for next != "" {
		var page graphPage
		if err := s.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for i := range page.Value {
			messages = append(messages, page.Value[i].toDomain())
		}
		next = page.NextLink
		pages++
	}

	s.log.Debug().Int("pages", pages).Int("messages", len(messages)).Time("since", since).Msg("fetched mailbox")
	return messages, nil
}

// EarliestInConversation returns the first message of a conversation, or nil.
func (s *Source) EarliestInConversation(ctx context.Context, conversationID string) (*domain.RawMessage, error) {
	params := url.Values{}
	params.Set("$filter", fmt.Sprintf("conversationId eq '%s'", strings.ReplaceAll(conversationID, "'", "''")))
	params.Set("$top", "50")
	params.Set("$select", messageFields)

	var earliest *domain.RawMessage
	next := s.messagesURL() + "?" + params.Encode()
	for next != "" {
		var page graphPage
		if err := s.get(ctx, next, &page); err != nil {
			return nil, err
		}
		for i := range page.Value {
			m := page.Value[i].toDomain()
			if earliest == nil || m.ReceivedAt.Before(earliest.ReceivedAt) {
				earliest = m
			}
		}
		next = page.NextLink
	}
	return earliest, nil
}

func (s *Source) get(ctx context.Context, rawURL string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build graph request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return apperr.ExternalError("graph", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return apperr.ExternalError("graph", fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))).
			WithDetail("status", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode graph response: %w", err)
	}
	return nil
}

// =============================================================================
// Graph API types
// =============================================================================

type graphPage struct {
	Value    []graphMessage `json:"value"`
	NextLink string         `json:"@odata.nextLink"`
}

type graphMessage struct {
	ID               string         `json:"id"`
	ConversationID   string         `json:"conversationId"`
	Subject          string         `json:"subject"`
	Body             graphBody      `json:"body"`
	From             graphRecipient `json:"from"`
	ReceivedDateTime string         `json:"receivedDateTime"`
	WebLink          string         `json:"webLink"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type graphRecipient struct {
	EmailAddress graphEmailAddress `json:"emailAddress"`
}

type graphEmailAddress struct {
	Name    string `json:"name"`
	Address string `json:"address"`
}

func (m *graphMessage) toDomain() *domain.RawMessage {
	body := m.Body.Content
	if strings.EqualFold(m.Body.ContentType, "html") {
		body = HTMLToText(body)
	}

	msg := &domain.RawMessage{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		From:           strings.ToLower(strings.TrimSpace(m.From.EmailAddress.Address)),
		FromName:       m.From.EmailAddress.Name,
		Subject:        m.Subject,
		Body:           body,
		WebLink:        m.WebLink,
	}
	if msg.ConversationID == "" {
		msg.ConversationID = m.ID
	}
	if t, err := time.Parse(time.RFC3339, m.ReceivedDateTime); err == nil {
		msg.ReceivedAt = t.UTC()
	}
	return msg
}
