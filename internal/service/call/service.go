// Package call drives one phone conversation turn by turn. No state is held
// between webhooks; everything a later turn needs lives on the call record.
package call

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strings"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/google/uuid"

	"callagent/internal/domain"
	"callagent/internal/domain/models"
	"callagent/internal/domain/repositories"
	"callagent/internal/domain/services"
	"callagent/internal/telephony/twiml"
	"callagent/internal/triage"
)

// State is the orchestrator's position in a call. It is derived per webhook
// and only used for logging.
type State string

const (
	StateStarted      State = "STARTED"
	StateListening    State = "LISTENING"
	StateAnalyzing    State = "ANALYZING"
	StateResponding   State = "RESPONDING"
	StateTransferring State = "TRANSFERRING"
	StateEnding       State = "ENDING"
)

// Defaults applied by NewCallService
const (
	DefaultGatherTimeout   = 5 * time.Second
	DefaultMaxEmptyTurns   = 2
	DefaultEmergencyNumber = "911"
	DefaultListLimit       = 50
	MaxListLimit           = 200
)

// languageDigits maps the keypad language menu to locales
var languageDigits = map[string]string{
	"1": "en-US",
	"2": "ur-PK",
}

// Config holds the conversation knobs
type Config struct {
	// TurnURL is the absolute URL of the speech webhook, used as the gather action
	TurnURL       string
	Voice         string
	DefaultLocale string
	BargeIn       bool
	GatherTimeout time.Duration
	// MaxEmptyTurns is how many consecutive silent turns get a reprompt
	// before the call is ended
	MaxEmptyTurns int
	// MinConfidence (0-1) re-asks instead of analyzing; 0 disables it
	MinConfidence   float64
	EmergencyNumber string
}

// callService implements services.CallService
type callService struct {
	calls       repositories.CallRepository
	analyzer    services.Analyzer
	registry    *triage.Registry
	broadcaster services.Broadcaster
	cfg         Config
	logger      *slog.Logger
	now         func() time.Time
}

// NewCallService creates the call orchestrator
func NewCallService(
	calls repositories.CallRepository,
	analyzer services.Analyzer,
	registry *triage.Registry,
	broadcaster services.Broadcaster,
	cfg Config,
	logger *slog.Logger,
) services.CallService {
	if cfg.GatherTimeout <= 0 {
		cfg.GatherTimeout = DefaultGatherTimeout
	}
	if cfg.MaxEmptyTurns <= 0 {
		cfg.MaxEmptyTurns = DefaultMaxEmptyTurns
	}
	if cfg.EmergencyNumber == "" {
		cfg.EmergencyNumber = DefaultEmergencyNumber
	}
	if cfg.DefaultLocale == "" {
		cfg.DefaultLocale = triage.DefaultLocale
	}
	return &callService{
		calls:       calls,
		analyzer:    analyzer,
		registry:    registry,
		broadcaster: broadcaster,
		cfg:         cfg,
		logger:      logger,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// StartCall creates the call record (once, however often the provider
// retries) and greets the caller.
func (s *callService) StartCall(ctx context.Context, req *services.StartCallRequest) (resp *twiml.Response, err error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.CallSid, validation.Required, validation.Length(1, 64)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	logger := s.logger.With("call_sid", req.CallSid)
	engine := s.registry.Engine(s.cfg.DefaultLocale)
	defer s.recoverTurn(logger, engine, &resp)

	direction := models.ParseDirection(req.Direction)
	initiatedBy := "caller"
	if direction == models.DirectionOutbound {
		initiatedBy = "system"
	}

	call := &models.CallSession{
		ID:             uuid.NewString(),
		ProviderCallID: req.CallSid,
		Direction:      direction,
		CallerNumber:   req.From,
		CalleeNumber:   req.To,
		CallerCountry:  strings.ToUpper(req.CallerCountry),
		Language:       engine.Locale(),
		Status:         models.CallStatusInProgress,
		StartTime:      s.now(),
		Intent:         models.IntentUnknown,
		Priority:       models.PriorityLow,
		InitiatedBy:    initiatedBy,
	}

	created, upsertErr := s.calls.UpsertOnStart(ctx, call)
	switch {
	case upsertErr != nil:
		logger.Error("failed to create call record", "error", upsertErr)
	case created:
		logger.Info("call started", "state", StateStarted, "direction", call.Direction, "from", call.CallerNumber)
		s.broadcaster.Publish(ctx, models.EventCallCreated, call)
	default:
		logger.Debug("duplicate call-start delivery", "state", StateStarted)
		if call.Status.IsTerminal() {
			return s.goodbyeDocument(engine), nil
		}
		engine = s.registry.Engine(call.Language)
	}

	logger.Debug("state transition", "from", StateStarted, "to", StateListening)
	return s.listenDocument(engine, "", engine.Phrase(triage.PhraseGreeting), 0), nil
}

// ProcessTurn runs one caller utterance through the state machine
func (s *callService) ProcessTurn(ctx context.Context, req *services.TurnRequest) (resp *twiml.Response, err error) {
	if err := validation.ValidateStruct(req,
		validation.Field(&req.CallSid, validation.Required, validation.Length(1, 64)),
	); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrValidation, err)
	}

	logger := s.logger.With("call_sid", req.CallSid)
	req = normalizeTurn(logger, req)
	engine := s.registry.Engine(s.cfg.DefaultLocale)
	defer s.recoverTurn(logger, engine, &resp)

	call := s.loadCall(ctx, logger, req)
	if call.Status.IsTerminal() {
		logger.Info("turn for terminated call", "status", call.Status, "state", StateEnding)
		return s.goodbyeDocument(s.registry.Engine(call.Language)), nil
	}
	engine = s.registry.Engine(call.Language)
	logger = logger.With("locale", engine.Locale())

	if locale, ok := languageDigits[req.Digits]; ok && s.registry.Supports(locale) {
		return s.selectLanguage(ctx, logger, call, locale), nil
	}

	transcript := strings.TrimSpace(req.SpeechResult)
	if transcript == "" {
		return s.emptyTurn(ctx, logger, engine, call, req.EmptyTurns, triage.PhraseReprompt), nil
	}

	logger.Debug("state transition", "from", StateListening, "to", StateAnalyzing)

	var analysis *models.Analysis
	if hit, keywords := engine.ZeroLatencyOverride(transcript); hit {
		logger.Warn("zero-latency emergency override", "keywords", keywords)
		analysis = engine.Override(keywords)
	} else {
		if s.cfg.MinConfidence > 0 && req.Confidence != nil && *req.Confidence < s.cfg.MinConfidence {
			logger.Info("low transcription confidence, asking again", "confidence", *req.Confidence)
			return s.emptyTurn(ctx, logger, engine, call, req.EmptyTurns, triage.PhraseLowConfidence), nil
		}
		analysis = s.analyzer.Analyze(ctx, transcript, call)
	}

	country := strings.ToUpper(strings.TrimSpace(req.CallerCountry))
	if country == "" {
		country = call.CallerCountry
	}
	zero := 0
	update := &models.TurnUpdate{
		Transcript:           &transcript,
		TranscriptConfidence: req.Confidence,
		CallerCountry:        &country,
		IncrementTurn:        true,
		EmptyTurns:           &zero,
		Analysis:             analysis,
	}
	if _, terminated := s.applyTurn(ctx, logger, req.CallSid, update); terminated {
		return s.goodbyeDocument(engine), nil
	}

	if analysis.RequiresTransfer() {
		number, known := EmergencyNumber(country, s.cfg.EmergencyNumber)
		if !known {
			logger.Warn("no emergency number for caller country, using default", "country", country, "number", number)
		}
		logger.Warn("transferring to emergency services",
			"state", StateTransferring,
			"severity", analysis.Severity,
			"keywords", analysis.Keywords,
			"number", number,
		)
		return s.transferDocument(engine, analysis.ReplyText, number), nil
	}

	logger.Info("turn answered",
		"state", StateResponding,
		"intent", analysis.Intent,
		"severity", analysis.Severity,
		"priority", analysis.Priority,
	)
	return s.listenDocument(engine, analysis.ReplyText, engine.Phrase(triage.PhraseAnythingElse), 0), nil
}

// maxDigits bounds keypad input; anything longer is not a menu choice
const maxDigits = 8

// normalizeTurn pulls optional provider fields back into range instead of
// failing the turn. The caller's request is not modified.
func normalizeTurn(logger *slog.Logger, req *services.TurnRequest) *services.TurnRequest {
	r := *req
	if c := r.Confidence; c != nil && (*c < 0 || *c > 1) {
		clamped := min(max(*c, 0), 1)
		logger.Warn("confidence out of range, clamping", "confidence", *c, "clamped", clamped)
		r.Confidence = &clamped
	}
	if len(r.Digits) > maxDigits {
		logger.Warn("ignoring oversized keypad input", "length", len(r.Digits))
		r.Digits = ""
	}
	if r.EmptyTurns < 0 {
		r.EmptyTurns = 0
	}
	return &r
}

// loadCall fetches the record for a turn. A missing record (the call-start
// webhook was lost) is created on the spot; a failing store yields a
// transient record so the caller is still answered.
func (s *callService) loadCall(ctx context.Context, logger *slog.Logger, req *services.TurnRequest) *models.CallSession {
	call, err := s.calls.FindByProviderCallID(ctx, req.CallSid)
	if err == nil {
		return call
	}

	transient := &models.CallSession{
		ProviderCallID: req.CallSid,
		CallerCountry:  strings.ToUpper(req.CallerCountry),
		Language:       s.registry.Engine(s.cfg.DefaultLocale).Locale(),
		Status:         models.CallStatusInProgress,
		Intent:         models.IntentUnknown,
		Priority:       models.PriorityLow,
		InitiatedBy:    "caller",
	}
	if !errors.Is(err, domain.ErrNotFound) {
		logger.Error("failed to load call record", "error", err)
		return transient
	}

	logger.Warn("turn for unknown call, creating record")
	transient.ID = uuid.NewString()
	transient.StartTime = s.now()
	created, err := s.calls.UpsertOnStart(ctx, transient)
	if err != nil {
		logger.Error("failed to create call record", "error", err)
		return transient
	}
	if created {
		s.broadcaster.Publish(ctx, models.EventCallCreated, transient)
	}
	return transient
}

// applyTurn persists a turn merge and publishes the result. Store failures
// are logged only. terminated reports that the call ended underneath us.
func (s *callService) applyTurn(ctx context.Context, logger *slog.Logger, callSid string, update *models.TurnUpdate) (*models.CallSession, bool) {
	call, err := s.calls.ApplyTurnUpdate(ctx, callSid, update)
	switch {
	case errors.Is(err, domain.ErrTerminal):
		logger.Info("call terminated during turn, not updating", "state", StateEnding)
		return call, true
	case err != nil:
		logger.Error("failed to persist turn", "error", err)
		return nil, false
	}
	s.broadcaster.Publish(ctx, models.EventCallUpdated, call)
	return call, false
}

// emptyTurn handles silence (and rejected low-confidence speech): reprompt
// up to MaxEmptyTurns times in a row, then end the call. seen is the count
// the provider echoed back; it wins when the stored count is stale or lost.
func (s *callService) emptyTurn(ctx context.Context, logger *slog.Logger, engine *triage.Engine, call *models.CallSession, seen int, phrase string) *twiml.Response {
	empty := max(call.EmptyTurns, seen) + 1
	if _, terminated := s.applyTurn(ctx, logger, call.ProviderCallID, &models.TurnUpdate{EmptyTurns: &empty}); terminated {
		return s.goodbyeDocument(engine)
	}

	if empty > s.cfg.MaxEmptyTurns {
		logger.Info("no usable input, ending call", "state", StateEnding, "empty_turns", empty)
		return s.goodbyeDocument(engine)
	}

	logger.Debug("reprompting", "state", StateListening, "empty_turns", empty)
	return s.listenDocument(engine, "", engine.Phrase(phrase), empty)
}

// selectLanguage switches the call's locale from the keypad menu and greets
// again in the new language.
func (s *callService) selectLanguage(ctx context.Context, logger *slog.Logger, call *models.CallSession, locale string) *twiml.Response {
	engine := s.registry.Engine(locale)
	zero := 0
	if _, terminated := s.applyTurn(ctx, logger, call.ProviderCallID, &models.TurnUpdate{
		Language:   &locale,
		EmptyTurns: &zero,
	}); terminated {
		return s.goodbyeDocument(engine)
	}

	logger.Info("language selected", "state", StateListening, "language", locale)
	return s.listenDocument(engine, "", engine.Phrase(triage.PhraseGreeting), 0)
}

// recoverTurn turns a panic anywhere in a turn into a spoken apology
func (s *callService) recoverTurn(logger *slog.Logger, engine *triage.Engine, resp **twiml.Response) {
	if r := recover(); r != nil {
		logger.Error("panic during turn",
			"state", StateEnding,
			"error", r,
			"stack", string(debug.Stack()),
		)
		*resp = s.apologyDocument(engine)
	}
}
