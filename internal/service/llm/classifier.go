package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"callagent/internal/domain/models"
	"callagent/internal/domain/services"
)

type intentResponse struct {
	Intent     string  `json:"intent"`
	Confidence float64 `json:"confidence"`
	Reasoning  string  `json:"reasoning"`
}

// ClassifyIntent asks the model for the caller's intent
func (c *Client) ClassifyIntent(ctx context.Context, transcript string) (*services.IntentResult, error) {
	content, err := c.complete(ctx, completionRequest{
		system:      intentSystemPrompt,
		user:        fmt.Sprintf(intentPromptTemplate, transcript),
		temperature: 0.3,
		maxTokens:   200,
		jsonObject:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("classify intent: %w", err)
	}

	var resp intentResponse
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &resp); err != nil {
		return nil, fmt.Errorf("classify intent: malformed response: %w", err)
	}
	if strings.TrimSpace(resp.Intent) == "" {
		return nil, fmt.Errorf("classify intent: malformed response: missing intent")
	}

	return &services.IntentResult{
		Intent:     models.ParseIntent(strings.ToLower(strings.TrimSpace(resp.Intent))),
		Confidence: clamp(resp.Confidence, 0, 100),
		Reasoning:  resp.Reasoning,
	}, nil
}

type emergencyResponse struct {
	IsEmergency *bool    `json:"isEmergency"`
	Severity    string   `json:"severity"`
	Keywords    []string `json:"keywords"`
	Reasoning   string   `json:"reasoning"`
}

// DetectEmergency asks the model for an emergency severity tier. A critical
// severity always counts as an emergency.
func (c *Client) DetectEmergency(ctx context.Context, transcript string) (*services.EmergencyResult, error) {
	content, err := c.complete(ctx, completionRequest{
		system:      emergencySystemPrompt,
		user:        fmt.Sprintf(emergencyPromptTemplate, transcript),
		temperature: 0.2,
		maxTokens:   250,
		jsonObject:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("detect emergency: %w", err)
	}

	var resp emergencyResponse
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &resp); err != nil {
		return nil, fmt.Errorf("detect emergency: malformed response: %w", err)
	}
	if resp.IsEmergency == nil || resp.Severity == "" {
		return nil, fmt.Errorf("detect emergency: malformed response: missing fields")
	}

	severity := models.ParseSeverity(strings.ToLower(strings.TrimSpace(resp.Severity)))
	keywords := resp.Keywords
	if keywords == nil {
		keywords = []string{}
	}
	return &services.EmergencyResult{
		IsEmergency: *resp.IsEmergency || severity == models.SeverityCritical,
		Severity:    severity,
		Keywords:    keywords,
		Reasoning:   resp.Reasoning,
	}, nil
}

// GenerateReply asks the model for the spoken reply
func (c *Client) GenerateReply(ctx context.Context, req *services.ReplyRequest) (string, error) {
	emergency := "No"
	if req.IsEmergency {
		emergency = "Yes"
	}

	var grounding strings.Builder
	if req.PriorTranscript != "" {
		fmt.Fprintf(&grounding, "Previous caller utterance: %q\n", req.PriorTranscript)
	}
	if req.AuxiliaryContext != "" {
		fmt.Fprintf(&grounding, "Context:\n%s\n", req.AuxiliaryContext)
	}

	content, err := c.complete(ctx, completionRequest{
		system:      replySystemPrompt,
		user:        fmt.Sprintf(replyPromptTemplate, req.Transcript, req.Intent, emergency, req.Language, grounding.String()),
		temperature: 0.7,
		maxTokens:   150,
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}
	return content, nil
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
