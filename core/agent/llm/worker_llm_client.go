package llm

import (
	"context"
	"errors"
	"math"

	openai "github.com/sashabaranov/go-openai"

	"complaint_server/core/port/out"
	"complaint_server/pkg/httputil"
)

const DefaultModel = "gpt-4o-mini"

// zeroTemperature is the smallest temperature the request can carry.
// Temperature is omitempty on the wire, so a literal 0 means "server default".
const zeroTemperature = math.SmallestNonzeroFloat32

var errEmptyResponse = errors.New("llm returned no choices")

type CompleterConfig struct {
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// OpenAICompleter sends one deterministic chat completion that must answer
// with a JSON object.
type OpenAICompleter struct {
	client    *openai.Client
	model     string
	maxTokens int
}

var _ out.TextCompleter = (*OpenAICompleter)(nil)

func NewOpenAICompleter(cfg CompleterConfig) *OpenAICompleter {
	oc := openai.DefaultConfig(cfg.APIKey)
	oc.HTTPClient = httputil.NewClient(httputil.OpenAIClientConfig())
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 512
	}
	return &OpenAICompleter{
		client:    openai.NewClientWithConfig(oc),
		model:     model,
		maxTokens: maxTokens,
	}
}

func (c *OpenAICompleter) Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: zeroTemperature,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: systemPrompt,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: userPrompt,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", errEmptyResponse
	}

	return resp.Choices[0].Message.Content, nil
}

// isPermanent reports request errors that a retry cannot fix.
func isPermanent(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return permanentStatus(apiErr.HTTPStatusCode)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return permanentStatus(reqErr.HTTPStatusCode)
	}
	return false
}

func permanentStatus(code int) bool {
	switch code {
	case 400, 401, 403, 404, 422:
		return true
	}
	return false
}
