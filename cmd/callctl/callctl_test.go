package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"callagent/internal/telephony"
)

const listenXML = `<?xml version="1.0" encoding="UTF-8"?>
<Response><Say voice="Polly.Joanna">Hello.</Say><Gather input="dtmf speech" action="/x"><Say>How can I help?</Say></Gather><Say>Goodbye.</Say><Hangup></Hangup></Response>`

const transferXML = `<?xml version="1.0" encoding="UTF-8"?>
<Response><Say>Connecting you to emergency services now.</Say><Dial>1122</Dial></Response>`

func TestParseParams(t *testing.T) {
	params, err := parseParams([]string{"CallSid=CA1", "SpeechResult=a=b", "Digits="})
	if err != nil {
		t.Fatalf("parseParams() error = %v", err)
	}
	if got := params.Get("SpeechResult"); got != "a=b" {
		t.Errorf("SpeechResult = %q, want a=b", got)
	}
	if _, ok := params["Digits"]; !ok {
		t.Error("empty value should still be present")
	}

	if _, err := parseParams([]string{"novalue"}); err == nil {
		t.Error("expected error for argument without '='")
	}
}

func TestPrintDocument(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		want      []string
		notWant   []string
		wantEnded bool
	}{
		{
			name:    "listen",
			body:    listenXML,
			want:    []string{"agent: Hello.", "agent: How can I help?"},
			notWant: []string{"Goodbye", "[call ended]"},
		},
		{
			name:      "transfer",
			body:      transferXML,
			want:      []string{"agent: Connecting you", "[transferred to 1122]"},
			wantEnded: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, err := parseDocument([]byte(tt.body))
			if err != nil {
				t.Fatalf("parseDocument() error = %v", err)
			}
			if doc.ended() != tt.wantEnded {
				t.Errorf("ended() = %v, want %v", doc.ended(), tt.wantEnded)
			}

			var out bytes.Buffer
			printDocument(&out, doc)
			for _, w := range tt.want {
				if !strings.Contains(out.String(), w) {
					t.Errorf("output missing %q:\n%s", w, out.String())
				}
			}
			for _, nw := range tt.notWant {
				if strings.Contains(out.String(), nw) {
					t.Errorf("output should not contain %q:\n%s", nw, out.String())
				}
			}
		})
	}
}

func TestTriageCommand(t *testing.T) {
	jsonOutput = false
	cmd := newTriageCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"I", "have", "chest", "pain"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !strings.Contains(out.String(), "transfer:  true") {
		t.Errorf("expected transfer for chest pain:\n%s", out.String())
	}
}

func TestSimulator_Run(t *testing.T) {
	const token = "test-token"

	var mu sync.Mutex
	var paths []string
	var badSignatures int

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Errorf("ParseForm: %v", err)
		}
		target := "http://" + r.Host + r.URL.RequestURI()
		sig := r.Header.Get(telephony.SignatureHeader)

		mu.Lock()
		paths = append(paths, r.URL.Path)
		if telephony.VerifySignature(token, sig, target, r.PostForm) != nil {
			badSignatures++
		}
		mu.Unlock()

		switch r.URL.Path {
		case "/api/twilio/voice":
			w.Write([]byte(listenXML))
		case "/api/twilio/process-speech":
			w.Write([]byte(transferXML))
		default:
			w.WriteHeader(http.StatusNoContent)
		}
	}))
	defer srv.Close()

	sim := &simulator{
		baseURL: srv.URL,
		token:   token,
		callSid: "CA1",
		country: "PK",
		client:  srv.Client(),
	}

	var out bytes.Buffer
	in := strings.NewReader("my chest hurts\nthis line is never sent\n")
	if err := sim.run(context.Background(), in, &out); err != nil {
		t.Fatalf("run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"/api/twilio/voice", "/api/twilio/process-speech", "/api/twilio/status"}
	if strings.Join(paths, ",") != strings.Join(want, ",") {
		t.Errorf("paths = %v, want %v", paths, want)
	}
	if badSignatures != 0 {
		t.Errorf("%d requests had invalid signatures", badSignatures)
	}
	if !strings.Contains(out.String(), "[transferred to 1122]") {
		t.Errorf("output missing transfer:\n%s", out.String())
	}
}
