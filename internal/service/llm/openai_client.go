package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"callagent/internal/domain/services"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/packages/param"
)

// DefaultModel is used when Config.Model is empty
const DefaultModel = "gpt-4o-mini"

// ErrEmptyCompletion is returned when the model answers with no content
var ErrEmptyCompletion = errors.New("empty completion")

// Config configures the OpenAI-compatible endpoint
type Config struct {
	APIKey     string
	BaseURL    string // optional, for OpenAI-compatible providers
	Model      string
	HTTPClient *http.Client
}

// Client calls a chat-completions endpoint for the three analysis roles.
// It implements services.IntentClassifier, services.EmergencyDetector and
// services.ReplyGenerator.
type Client struct {
	client *openai.Client
	model  string
}

var (
	_ services.IntentClassifier  = (*Client)(nil)
	_ services.EmergencyDetector = (*Client)(nil)
	_ services.ReplyGenerator    = (*Client)(nil)
)

// NewClient creates a client. Requests are never retried: a failed call
// falls back to the keyword engine immediately.
func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}
	client := openai.NewClient(opts...)

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Client{client: &client, model: model}
}

type completionRequest struct {
	system      string
	user        string
	temperature float64
	maxTokens   int64
	jsonObject  bool
}

func (c *Client) complete(ctx context.Context, req completionRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: c.model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.system),
			openai.UserMessage(req.user),
		},
		Temperature:         param.NewOpt(req.temperature),
		MaxCompletionTokens: param.NewOpt(req.maxTokens),
	}
	if req.jsonObject {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &openai.ResponseFormatJSONObjectParam{},
		}
	}

	resp, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	content := strings.TrimSpace(resp.Choices[0].Message.Content)
	if content == "" {
		return "", ErrEmptyCompletion
	}
	return content, nil
}

// stripCodeFence unwraps ```json ... ``` blocks some models emit despite
// JSON mode
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
