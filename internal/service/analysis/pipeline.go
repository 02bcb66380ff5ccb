package analysis

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"callagent/internal/domain/models"
	"callagent/internal/domain/repositories"
	"callagent/internal/domain/services"
	"callagent/internal/triage"
)

// DefaultTimeout bounds one turn's external calls
const DefaultTimeout = 8 * time.Second

// Config wires the pipeline. Any of the AI roles may be nil, in which case
// the keyword engine answers for that role. Directory may be nil to skip
// provider lookups.
type Config struct {
	Registry  *triage.Registry
	Intent    services.IntentClassifier
	Emergency services.EmergencyDetector
	Reply     services.ReplyGenerator
	Directory repositories.ProviderDirectory
	Gazetteer *Gazetteer
	Timeout   time.Duration
	Logger    *slog.Logger
}

// pipeline implements services.Analyzer
type pipeline struct {
	registry  *triage.Registry
	intent    services.IntentClassifier
	emergency services.EmergencyDetector
	reply     services.ReplyGenerator
	directory repositories.ProviderDirectory
	gazetteer *Gazetteer
	timeout   time.Duration
	logger    *slog.Logger
}

// NewPipeline creates the turn analyzer
func NewPipeline(cfg Config) (services.Analyzer, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("analysis pipeline requires a keyword registry")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Gazetteer == nil && cfg.Directory != nil {
		g, err := NewGazetteer()
		if err != nil {
			return nil, err
		}
		cfg.Gazetteer = g
	}

	return &pipeline{
		registry:  cfg.Registry,
		intent:    cfg.Intent,
		emergency: cfg.Emergency,
		reply:     cfg.Reply,
		directory: cfg.Directory,
		gazetteer: cfg.Gazetteer,
		timeout:   cfg.Timeout,
		logger:    cfg.Logger,
	}, nil
}

// Analyze classifies intent and emergency concurrently, optionally looks up
// nearby providers, then writes the reply. It never fails.
func (p *pipeline) Analyze(ctx context.Context, transcript string, prior *models.CallSession) *models.Analysis {
	locale := ""
	callSid := ""
	priorTranscript := ""
	if prior != nil {
		locale = prior.Language
		callSid = prior.ProviderCallID
		priorTranscript = prior.Transcript
	}
	engine := p.registry.Engine(locale)
	logger := p.logger.With("call_sid", callSid, "locale", engine.Locale())

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	a := engine.Analyze(transcript)

	var (
		intentRes    *services.IntentResult
		emergencyRes *services.EmergencyResult
		g            errgroup.Group
	)
	if p.intent != nil {
		g.Go(func() error {
			defer recoverRole(logger, "intent")
			res, err := p.intent.ClassifyIntent(ctx, transcript)
			if err != nil {
				logger.Warn("intent classification failed, using keywords", "error", err)
				return nil
			}
			intentRes = res
			return nil
		})
	}
	if p.emergency != nil {
		g.Go(func() error {
			defer recoverRole(logger, "emergency")
			res, err := p.emergency.DetectEmergency(ctx, transcript)
			if err != nil {
				logger.Warn("emergency detection failed, using keywords", "error", err)
				return nil
			}
			emergencyRes = res
			return nil
		})
	}
	_ = g.Wait()

	if intentRes != nil {
		a.Intent = intentRes.Intent
		a.IntentConfidence = intentRes.Confidence
		a.Sources.Intent = models.SourceAI
	}
	if emergencyRes != nil {
		a.IsEmergency = emergencyRes.IsEmergency
		a.Severity = emergencyRes.Severity
		a.Keywords = emergencyRes.Keywords
		a.Sources.Severity = models.SourceAI
	}
	if a.Severity == models.SeverityCritical {
		a.IsEmergency = true
	}

	a.Priority = engine.CalculatePriority(transcript, a.IsEmergency)
	if a.Severity == models.SeverityCritical {
		a.Priority = models.PriorityCritical
	}
	a.EmergencyContext = triage.EmergencyContext(a.Keywords)
	a.FollowUpInstructions = triage.FollowUpInstructions(a.Intent, a.IsEmergency)

	if a.RequiresTransfer() {
		a.ReplyText = engine.Phrase(triage.PhraseTransfer)
		a.Sources.Reply = models.SourceTemplate
		return a
	}

	var nearby []models.NearbyProvider
	if p.wantsProviders(a.Intent, transcript) {
		a.AuxiliaryContext, nearby = p.locate(ctx, logger, engine, transcript)
	}

	a.ReplyText = engine.Reply(a.Intent)
	a.Sources.Reply = models.SourceTemplate
	if len(nearby) > 0 {
		a.ReplyText = describeProviders(nearby)
	}

	if p.reply != nil {
		text, err := p.reply.GenerateReply(ctx, &services.ReplyRequest{
			Transcript:       transcript,
			Intent:           a.Intent,
			IsEmergency:      a.IsEmergency,
			Language:         engine.Locale(),
			AuxiliaryContext: a.AuxiliaryContext,
			PriorTranscript:  priorTranscript,
		})
		switch {
		case err != nil:
			logger.Warn("reply generation failed, using template", "error", err)
		case strings.TrimSpace(text) == "":
			logger.Warn("reply generation returned nothing, using template")
		default:
			a.ReplyText = strings.TrimSpace(text)
			a.Sources.Reply = models.SourceAI
		}
	}

	logger.Debug("turn analyzed",
		"intent", a.Intent,
		"intent_source", a.Sources.Intent,
		"severity", a.Severity,
		"severity_source", a.Sources.Severity,
		"reply_source", a.Sources.Reply,
		"priority", a.Priority,
	)
	return a
}

// recoverRole keeps a panicking AI call from taking the process down. Its
// result stays unset, so the keyword answer is used for that role.
func recoverRole(logger *slog.Logger, role string) {
	if r := recover(); r != nil {
		logger.Error("analysis role panicked, using keywords",
			"role", role,
			"panic", r,
			"stack", string(debug.Stack()),
		)
	}
}

func (p *pipeline) wantsProviders(intent models.Intent, transcript string) bool {
	if p.directory == nil || p.gazetteer == nil {
		return false
	}
	return intent == models.IntentFindDoctor || p.gazetteer.Mentioned(transcript)
}

// locate resolves the caller's place and queries the directory. The returned
// context string is handed to the reply generator.
func (p *pipeline) locate(ctx context.Context, logger *slog.Logger, engine *triage.Engine, transcript string) (string, []models.NearbyProvider) {
	place, ok := p.gazetteer.Locate(transcript)
	if !ok {
		return engine.Phrase(triage.PhraseAskLocation), nil
	}

	nearby, err := p.directory.FindNearby(ctx, place.Longitude, place.Latitude, p.gazetteer.RadiusMeters, p.gazetteer.Limit)
	if err != nil {
		logger.Warn("provider lookup failed", "place", place.Name, "error", err)
		return fmt.Sprintf("Caller location: %s.", place.Name), nil
	}
	if len(nearby) == 0 {
		logger.Info("no providers near caller", "place", place.Name)
		return fmt.Sprintf("Caller location: %s. No registered providers were found within %.0f km.",
			place.Name, p.gazetteer.RadiusMeters/1000), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Caller location: %s.\nNearby providers:", place.Name)
	for i, np := range nearby {
		fmt.Fprintf(&b, "\n%d. %s (%s), %.1f km, phone %s, %s",
			i+1, np.Name, np.Specialization, np.DistanceMeters/1000, np.Phone, np.Address)
	}
	return b.String(), nearby
}

// describeProviders is the spoken template used when no generator is available
func describeProviders(nearby []models.NearbyProvider) string {
	parts := make([]string, 0, len(nearby))
	for _, np := range nearby {
		parts = append(parts, fmt.Sprintf("%s, %s, phone %s", np.Name, np.Specialization, np.Phone))
	}
	return "The nearest providers I found are: " + strings.Join(parts, "; ") + "."
}
