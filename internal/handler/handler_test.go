package handler

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"callagent/internal/broadcast"
	"callagent/internal/domain"
	"callagent/internal/domain/models"
	"callagent/internal/domain/services"
	"callagent/internal/handler/sse"
	"callagent/internal/telephony/twiml"

	"github.com/gorilla/websocket"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// mockCallService records requests and returns canned results
type mockCallService struct {
	mu sync.Mutex

	document *twiml.Response
	err      error
	calls    []models.CallSession

	started     []*services.StartCallRequest
	turns       []*services.TurnRequest
	statuses    []*services.StatusCallback
	recordings  []*services.RecordingCallback
	transcripts []*services.TranscriptionCallback
	listLimits  []int
}

func (m *mockCallService) StartCall(ctx context.Context, req *services.StartCallRequest) (*twiml.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.started = append(m.started, req)
	return m.document, m.err
}

func (m *mockCallService) ProcessTurn(ctx context.Context, req *services.TurnRequest) (*twiml.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turns = append(m.turns, req)
	return m.document, m.err
}

func (m *mockCallService) HandleStatus(ctx context.Context, req *services.StatusCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, req)
	return m.err
}

func (m *mockCallService) HandleRecording(ctx context.Context, req *services.RecordingCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recordings = append(m.recordings, req)
	return m.err
}

func (m *mockCallService) HandleTranscription(ctx context.Context, req *services.TranscriptionCallback) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transcripts = append(m.transcripts, req)
	return m.err
}

func (m *mockCallService) GetCall(ctx context.Context, callSid string) (*models.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	for i := range m.calls {
		if m.calls[i].ProviderCallID == callSid {
			c := m.calls[i]
			return &c, nil
		}
	}
	return nil, &domain.NotFoundError{Message: "call not found: " + callSid}
}

func (m *mockCallService) ListCalls(ctx context.Context, limit int) ([]models.CallSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.listLimits = append(m.listLimits, limit)
	return m.calls, m.err
}

func postForm(target string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func listenDocument() *twiml.Response {
	g := &twiml.Gather{Input: "dtmf speech", Action: "https://example.test/api/twilio/process-speech"}
	g.Say("How can I help you today?", "", "en-US")
	return twiml.NewResponse().
		Gather(g).
		Say("Goodbye.", "", "en-US").
		Hangup()
}

func TestTwilioHandler_Voice(t *testing.T) {
	svc := &mockCallService{document: listenDocument()}
	h := NewTwilioHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Voice(rec, postForm("/api/twilio/voice", url.Values{
		"CallSid":       {"CA100"},
		"From":          {"+923001234567"},
		"To":            {"+15550100"},
		"Direction":     {"inbound"},
		"CallerCountry": {"PK"},
	}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != twiml.ContentType {
		t.Errorf("Content-Type = %q, want %q", ct, twiml.ContentType)
	}
	if !strings.Contains(rec.Body.String(), "<Gather") {
		t.Errorf("body missing Gather: %s", rec.Body.String())
	}

	if len(svc.started) != 1 {
		t.Fatalf("StartCall called %d times, want 1", len(svc.started))
	}
	got := svc.started[0]
	if got.CallSid != "CA100" || got.From != "+923001234567" || got.CallerCountry != "PK" {
		t.Errorf("request = %+v", got)
	}
}

func TestTwilioHandler_VoiceValidationError(t *testing.T) {
	svc := &mockCallService{err: fmt.Errorf("%w: CallSid: cannot be blank", domain.ErrValidation)}
	h := NewTwilioHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Voice(rec, postForm("/api/twilio/voice", url.Values{}))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestTwilioHandler_ProcessSpeech(t *testing.T) {
	tests := []struct {
		name           string
		target         string
		form           url.Values
		err            error
		wantStatus     int
		wantConfidence *float64
		wantEmpty      int
	}{
		{
			name:           "speech with confidence",
			form:           url.Values{"CallSid": {"CA1"}, "SpeechResult": {" I need a doctor "}, "Confidence": {"0.91"}},
			wantStatus:     http.StatusOK,
			wantConfidence: func() *float64 { c := 0.91; return &c }(),
		},
		{
			name:       "empty speech",
			form:       url.Values{"CallSid": {"CA1"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "malformed confidence is dropped",
			form:       url.Values{"CallSid": {"CA1"}, "SpeechResult": {"hello"}, "Confidence": {"high"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "silent-turn count from action url",
			target:     "/api/twilio/process-speech?empty=2",
			form:       url.Values{"CallSid": {"CA1"}},
			wantStatus: http.StatusOK,
			wantEmpty:  2,
		},
		{
			name:       "garbage silent-turn count",
			target:     "/api/twilio/process-speech?empty=lots",
			form:       url.Values{"CallSid": {"CA1"}},
			wantStatus: http.StatusOK,
		},
		{
			name:       "missing call sid",
			form:       url.Values{"SpeechResult": {"hello"}},
			err:        fmt.Errorf("%w: CallSid: cannot be blank", domain.ErrValidation),
			wantStatus: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCallService{document: listenDocument(), err: tt.err}
			h := NewTwilioHandler(svc, testLogger())

			target := tt.target
			if target == "" {
				target = "/api/twilio/process-speech"
			}
			rec := httptest.NewRecorder()
			h.ProcessSpeech(rec, postForm(target, tt.form))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if len(svc.turns) != 1 {
				t.Fatalf("service called %d times, want 1", len(svc.turns))
			}

			req := svc.turns[0]
			if req.SpeechResult != strings.TrimSpace(tt.form.Get("SpeechResult")) {
				t.Errorf("SpeechResult = %q", req.SpeechResult)
			}
			if req.EmptyTurns != tt.wantEmpty {
				t.Errorf("EmptyTurns = %d, want %d", req.EmptyTurns, tt.wantEmpty)
			}
			switch {
			case tt.wantConfidence == nil && req.Confidence != nil:
				t.Errorf("Confidence = %v, want nil", *req.Confidence)
			case tt.wantConfidence != nil && (req.Confidence == nil || *req.Confidence != *tt.wantConfidence):
				t.Errorf("Confidence = %v, want %v", req.Confidence, *tt.wantConfidence)
			}
		})
	}
}

func TestTwilioHandler_RenderFailureFallsBack(t *testing.T) {
	svc := &mockCallService{document: twiml.NewResponse()}
	h := NewTwilioHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.ProcessSpeech(rec, postForm("/api/twilio/process-speech", url.Values{"CallSid": {"CA1"}}))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, "<Say") || !strings.Contains(body, "<Hangup") {
		t.Errorf("fallback body = %s", body)
	}
}

func TestTwilioHandler_Callbacks(t *testing.T) {
	tests := []struct {
		name       string
		serve      func(h *TwilioHandler) http.HandlerFunc
		form       url.Values
		err        error
		wantStatus int
	}{
		{
			name:       "status",
			serve:      func(h *TwilioHandler) http.HandlerFunc { return h.Status },
			form:       url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"42"}},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "status with malformed duration",
			serve:      func(h *TwilioHandler) http.HandlerFunc { return h.Status },
			form:       url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}, "CallDuration": {"forever"}},
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "status rejected by validation",
			serve:      func(h *TwilioHandler) http.HandlerFunc { return h.Status },
			form:       url.Values{"CallSid": {"CA1"}, "CallStatus": {"exploded"}},
			err:        fmt.Errorf("%w: CallStatus: unknown", domain.ErrValidation),
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "store failure is still acknowledged",
			serve:      func(h *TwilioHandler) http.HandlerFunc { return h.Status },
			form:       url.Values{"CallSid": {"CA1"}, "CallStatus": {"completed"}},
			err:        fmt.Errorf("update call status: connection reset"),
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "recording",
			serve:      func(h *TwilioHandler) http.HandlerFunc { return h.Recording },
			form:       url.Values{"CallSid": {"CA1"}, "RecordingSid": {"RE1"}, "RecordingUrl": {"https://rec.test/RE1"}, "RecordingDuration": {"30"}},
			wantStatus: http.StatusNoContent,
		},
		{
			name:       "transcription",
			serve:      func(h *TwilioHandler) http.HandlerFunc { return h.Transcribe },
			form:       url.Values{"CallSid": {"CA1"}, "TranscriptionText": {"hello"}, "TranscriptionStatus": {"completed"}},
			wantStatus: http.StatusNoContent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &mockCallService{err: tt.err}
			h := NewTwilioHandler(svc, testLogger())

			rec := httptest.NewRecorder()
			tt.serve(h)(rec, postForm("/api/twilio/callback", tt.form))

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
		})
	}
}

func TestTwilioHandler_StatusParsesDuration(t *testing.T) {
	svc := &mockCallService{}
	h := NewTwilioHandler(svc, testLogger())

	rec := httptest.NewRecorder()
	h.Status(rec, postForm("/api/twilio/status", url.Values{
		"CallSid":      {"CA1"},
		"CallStatus":   {"completed"},
		"CallDuration": {"42"},
		"RecordingUrl": {"https://rec.test/RE1"},
	}))

	if len(svc.statuses) != 1 {
		t.Fatalf("HandleStatus called %d times, want 1", len(svc.statuses))
	}
	got := svc.statuses[0]
	if got.CallDuration == nil || *got.CallDuration != 42 {
		t.Errorf("CallDuration = %v, want 42", got.CallDuration)
	}
	if got.RecordingURL != "https://rec.test/RE1" {
		t.Errorf("RecordingURL = %q", got.RecordingURL)
	}
}

func TestCallHandler(t *testing.T) {
	svc := &mockCallService{calls: []models.CallSession{
		{ID: "1", ProviderCallID: "CA1", Status: models.CallStatusActive},
	}}
	h := NewCallHandler(svc, testLogger())

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/calls", h.ListCalls)
	mux.HandleFunc("GET /api/calls/{callSid}", h.GetCall)
	mux.HandleFunc("GET /health", h.HealthCheck)

	tests := []struct {
		name       string
		target     string
		wantStatus int
		wantBody   string
	}{
		{"list default", "/api/calls", http.StatusOK, `"provider_call_id":"CA1"`},
		{"list with limit", "/api/calls?limit=5", http.StatusOK, `"CA1"`},
		{"list bad limit", "/api/calls?limit=abc", http.StatusBadRequest, ""},
		{"get existing", "/api/calls/CA1", http.StatusOK, `"status":"active"`},
		{"get missing", "/api/calls/CA404", http.StatusNotFound, ""},
		{"health", "/health", http.StatusOK, `"status":"ok"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.target, nil))

			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantBody != "" && !strings.Contains(rec.Body.String(), tt.wantBody) {
				t.Errorf("body %s does not contain %s", rec.Body.String(), tt.wantBody)
			}
		})
	}

	if got := svc.listLimits; len(got) != 2 || got[0] != 0 || got[1] != 5 {
		t.Errorf("list limits = %v, want [0 5]", got)
	}
}

func waitForSubscribers(t *testing.T, hub *broadcast.Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for hub.SubscriberCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d subscribers", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestStreamHandler_DeliversEvents(t *testing.T) {
	hub := broadcast.NewHub(4, testLogger())
	h := NewStreamHandler(hub, &sse.Config{KeepAliveInterval: time.Hour}, testLogger())

	srv := httptest.NewServer(http.HandlerFunc(h.StreamCalls))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	waitForSubscribers(t, hub, 1)
	hub.Publish(context.Background(), models.EventCallUpdated, &models.CallSession{ProviderCallID: "CA7"})

	lines := make(chan string, 64)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	var sawEvent, sawData bool
	timeout := time.After(2 * time.Second)
	for !(sawEvent && sawData) {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before event arrived")
			}
			if line == "event: "+models.EventCallUpdated {
				sawEvent = true
			}
			if strings.HasPrefix(line, "data: ") && strings.Contains(line, `"CA7"`) {
				sawData = true
			}
		case <-timeout:
			t.Fatal("timed out waiting for event")
		}
	}

	resp.Body.Close()
	srv.Close()
	if n := hub.SubscriberCount(); n != 0 {
		t.Errorf("subscribers after disconnect = %d, want 0", n)
	}
}

func TestSocketHandler_DeliversEvents(t *testing.T) {
	hub := broadcast.NewHub(4, testLogger())
	h := NewSocketHandler(hub, nil, testLogger())

	srv := httptest.NewServer(http.HandlerFunc(h.Serve))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	waitForSubscribers(t, hub, 1)
	hub.Publish(context.Background(), models.EventCallCreated, &models.CallSession{ProviderCallID: "CA8"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var event models.CallEvent
	if err := conn.ReadJSON(&event); err != nil {
		t.Fatalf("read: %v", err)
	}
	if event.Name != models.EventCallCreated {
		t.Errorf("event = %q, want %q", event.Name, models.EventCallCreated)
	}
	if event.Call == nil || event.Call.ProviderCallID != "CA8" {
		t.Errorf("call = %+v", event.Call)
	}
}

func TestOriginChecker(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no list allows all", nil, "https://evil.test", true},
		{"wildcard", []string{"*"}, "https://evil.test", true},
		{"listed origin", []string{"https://dash.test"}, "https://dash.test", true},
		{"trailing slash ignored", []string{"https://dash.test/"}, "https://dash.test", true},
		{"unlisted origin", []string{"https://dash.test"}, "https://evil.test", false},
		{"missing origin", []string{"https://dash.test"}, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/socket", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			if got := originChecker(tt.allowed)(r); got != tt.want {
				t.Errorf("originChecker(%v)(%q) = %v, want %v", tt.allowed, tt.origin, got, tt.want)
			}
		})
	}
}
