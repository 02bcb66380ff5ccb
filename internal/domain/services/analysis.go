package services

import (
	"context"

	"callagent/internal/domain/models"
)

// IntentResult is an external classifier's verdict
type IntentResult struct {
	Intent     models.Intent
	Confidence float64 // 0-100
	Reasoning  string
}

// EmergencyResult is an external detector's verdict
type EmergencyResult struct {
	IsEmergency bool
	Severity    models.Severity
	Keywords    []string
	Reasoning   string
}

// ReplyRequest carries everything the generator may ground its reply on
type ReplyRequest struct {
	Transcript       string
	Intent           models.Intent
	IsEmergency      bool
	Language         string
	AuxiliaryContext string
	PriorTranscript  string
}

// IntentClassifier classifies a transcript with an external model
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, transcript string) (*IntentResult, error)
}

// EmergencyDetector assesses emergency severity with an external model
type EmergencyDetector interface {
	DetectEmergency(ctx context.Context, transcript string) (*EmergencyResult, error)
}

// ReplyGenerator writes the spoken reply with an external model
type ReplyGenerator interface {
	GenerateReply(ctx context.Context, req *ReplyRequest) (string, error)
}

// Analyzer runs one turn's transcript through the full analysis pipeline.
// Analyze never fails: every dependency error is absorbed by a fallback.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string, prior *models.CallSession) *models.Analysis
}
