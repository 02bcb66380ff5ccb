package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"callagent/internal/domain"
	"callagent/internal/domain/services"
	"callagent/internal/httputil"
	"callagent/internal/telephony/twiml"
)

// fallbackDocument is served if a document fails to render
var fallbackDocument = twiml.NewResponse().
	Say("I apologize, something went wrong. Please call again.", "", "").
	Hangup()

// TwilioHandler serves the telephony provider's webhooks. Conversation
// endpoints always answer with a response document; notification callbacks
// are acknowledged with 204.
type TwilioHandler struct {
	calls  services.CallService
	logger *slog.Logger
}

// NewTwilioHandler creates a new webhook handler
func NewTwilioHandler(calls services.CallService, logger *slog.Logger) *TwilioHandler {
	return &TwilioHandler{
		calls:  calls,
		logger: logger,
	}
}

// Voice handles the call-start webhook
// POST /api/twilio/voice
func (h *TwilioHandler) Voice(w http.ResponseWriter, r *http.Request) {
	req := &services.StartCallRequest{
		CallSid:       formValue(r, "CallSid"),
		From:          formValue(r, "From"),
		To:            formValue(r, "To"),
		Direction:     formValue(r, "Direction"),
		CallerCountry: formValue(r, "CallerCountry"),
	}

	resp, err := h.calls.StartCall(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	h.respondDocument(w, req.CallSid, resp)
}

// ProcessSpeech handles one turn of speech or keypad input
// POST /api/twilio/process-speech
func (h *TwilioHandler) ProcessSpeech(w http.ResponseWriter, r *http.Request) {
	req := &services.TurnRequest{
		CallSid:       formValue(r, "CallSid"),
		SpeechResult:  formValue(r, "SpeechResult"),
		CallerCountry: formValue(r, "CallerCountry"),
		Digits:        formValue(r, "Digits"),
	}
	// A bad optional field must not cut the caller off mid-call; it is
	// dropped and the turn proceeds without it.
	if raw := formValue(r, "Confidence"); raw != "" {
		if c, err := strconv.ParseFloat(raw, 64); err == nil {
			req.Confidence = &c
		} else {
			h.logger.Warn("ignoring malformed confidence", "call_sid", req.CallSid, "value", raw)
		}
	}
	if raw := r.URL.Query().Get("empty"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			req.EmptyTurns = n
		}
	}

	resp, err := h.calls.ProcessTurn(r.Context(), req)
	if err != nil {
		handleError(w, err)
		return
	}
	h.respondDocument(w, req.CallSid, resp)
}

// Status handles call status callbacks
// POST /api/twilio/status
func (h *TwilioHandler) Status(w http.ResponseWriter, r *http.Request) {
	req := &services.StatusCallback{
		CallSid:      formValue(r, "CallSid"),
		CallStatus:   formValue(r, "CallStatus"),
		RecordingURL: formValue(r, "RecordingUrl"),
		RecordingSid: formValue(r, "RecordingSid"),
	}
	if raw := formValue(r, "CallDuration"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "CallDuration must be an integer")
			return
		}
		req.CallDuration = &d
	}

	h.acknowledge(w, req.CallSid, "status", h.calls.HandleStatus(r.Context(), req))
}

// Recording handles recording-ready callbacks
// POST /api/twilio/recording
func (h *TwilioHandler) Recording(w http.ResponseWriter, r *http.Request) {
	req := &services.RecordingCallback{
		CallSid:      formValue(r, "CallSid"),
		RecordingSid: formValue(r, "RecordingSid"),
		RecordingURL: formValue(r, "RecordingUrl"),
	}
	if raw := formValue(r, "RecordingDuration"); raw != "" {
		d, err := strconv.Atoi(raw)
		if err != nil {
			httputil.RespondError(w, http.StatusBadRequest, "RecordingDuration must be an integer")
			return
		}
		req.RecordingDuration = d
	}

	h.acknowledge(w, req.CallSid, "recording", h.calls.HandleRecording(r.Context(), req))
}

// Transcribe handles asynchronous transcription callbacks
// POST /api/twilio/transcribe
func (h *TwilioHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	req := &services.TranscriptionCallback{
		CallSid:             formValue(r, "CallSid"),
		TranscriptionText:   formValue(r, "TranscriptionText"),
		TranscriptionStatus: formValue(r, "TranscriptionStatus"),
	}

	h.acknowledge(w, req.CallSid, "transcription", h.calls.HandleTranscription(r.Context(), req))
}

// acknowledge answers a notification callback. Only malformed requests are
// reported back; anything else would just make the provider retry.
func (h *TwilioHandler) acknowledge(w http.ResponseWriter, callSid, kind string, err error) {
	if err != nil {
		if errors.Is(err, domain.ErrValidation) {
			handleError(w, err)
			return
		}
		h.logger.Warn("callback not applied",
			"call_sid", callSid,
			"callback", kind,
			"error", err,
		)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *TwilioHandler) respondDocument(w http.ResponseWriter, callSid string, resp *twiml.Response) {
	body, err := resp.Render()
	if err != nil {
		h.logger.Error("response document failed to render",
			"call_sid", callSid,
			"verbs", resp.Verbs(),
			"error", err,
		)
		body, _ = fallbackDocument.Render()
	}
	httputil.RespondXML(w, http.StatusOK, twiml.ContentType, body)
}

func formValue(r *http.Request, key string) string {
	return strings.TrimSpace(r.PostFormValue(key))
}
