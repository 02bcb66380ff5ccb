package main

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"callagent/internal/telephony"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

// simulator plays the telephony provider against a running server
type simulator struct {
	baseURL string
	token   string
	callSid string
	from    string
	country string
	client  *http.Client
}

func newSimulateCmd() *cobra.Command {
	sim := &simulator{client: &http.Client{Timeout: 30 * time.Second}}

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Place a simulated call; each stdin line is one caller turn",
		Long: `Simulate posts the call-start webhook, then one speech webhook per
line read from stdin. An empty line is a silent turn; a line of "#1" or
"#2" is sent as keypad digits. The agent's spoken text is printed after
each turn until the document ends the call.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if sim.token == "" {
				sim.token = os.Getenv("TWILIO_AUTH_TOKEN")
			}
			if sim.callSid == "" {
				sim.callSid = "CA" + strings.ReplaceAll(uuid.NewString(), "-", "")
			}
			sim.baseURL = strings.TrimRight(sim.baseURL, "/")
			return sim.run(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&sim.baseURL, "base-url", "http://localhost:8080", "Server origin")
	cmd.Flags().StringVar(&sim.token, "token", "", "Auth token used to sign requests (defaults to TWILIO_AUTH_TOKEN)")
	cmd.Flags().StringVar(&sim.callSid, "call-sid", "", "Call id (random when empty)")
	cmd.Flags().StringVar(&sim.from, "from", "+923001234567", "Caller number")
	cmd.Flags().StringVar(&sim.country, "country", "PK", "Caller country (ISO 3166-1 alpha-2)")
	return cmd
}

func (s *simulator) run(ctx context.Context, in io.Reader, out io.Writer) error {
	doc, err := s.post(ctx, "/api/twilio/voice", url.Values{
		"CallSid":       {s.callSid},
		"From":          {s.from},
		"To":            {"+15550100"},
		"Direction":     {"inbound"},
		"CallStatus":    {"ringing"},
		"CallerCountry": {s.country},
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "call %s\n", s.callSid)
	printDocument(out, doc)

	scanner := bufio.NewScanner(in)
	for !doc.ended() {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())

		form := url.Values{"CallSid": {s.callSid}, "CallerCountry": {s.country}}
		if digits, ok := strings.CutPrefix(line, "#"); ok {
			form.Set("Digits", digits)
		} else if line != "" {
			form.Set("SpeechResult", line)
			form.Set("Confidence", "0.9")
		}

		doc, err = s.post(ctx, "/api/twilio/process-speech", form)
		if err != nil {
			return err
		}
		printDocument(out, doc)
	}

	_, err = s.post(ctx, "/api/twilio/status", url.Values{
		"CallSid":    {s.callSid},
		"CallStatus": {"completed"},
	})
	return err
}

func (s *simulator) post(ctx context.Context, path string, form url.Values) (*document, error) {
	target := s.baseURL + path
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if s.token != "" {
		req.Header.Set(telephony.SignatureHeader, telephony.Sign(s.token, target, form))
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 300 {
		return nil, fmt.Errorf("POST %s: %s: %s", path, resp.Status, strings.TrimSpace(string(body)))
	}
	if resp.StatusCode == http.StatusNoContent || len(body) == 0 {
		return &document{}, nil
	}
	return parseDocument(body)
}

// document is the subset of a response document the simulator reads back
type document struct {
	Says   []string `xml:"Say"`
	Gather *struct {
		Says []string `xml:"Say"`
	} `xml:"Gather"`
	Dial   *string   `xml:"Dial"`
	Hangup *struct{} `xml:"Hangup"`
}

func parseDocument(body []byte) (*document, error) {
	var doc document
	if err := xml.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode response document: %w", err)
	}
	return &doc, nil
}

// ended reports whether the provider would leave the conversation after
// playing the document: no Gather to listen with.
func (d *document) ended() bool {
	return d.Gather == nil
}

func printDocument(out io.Writer, doc *document) {
	if doc.Gather != nil {
		// The last top-level Say is the fallback played only on silence
		for _, say := range doc.Says[:max(0, len(doc.Says)-1)] {
			fmt.Fprintf(out, "agent: %s\n", say)
		}
		for _, say := range doc.Gather.Says {
			fmt.Fprintf(out, "agent: %s\n", say)
		}
		return
	}
	for _, say := range doc.Says {
		fmt.Fprintf(out, "agent: %s\n", say)
	}
	if doc.Dial != nil {
		fmt.Fprintf(out, "[transferred to %s]\n", strings.TrimSpace(*doc.Dial))
	}
	if doc.Hangup != nil {
		fmt.Fprintln(out, "[call ended]")
	}
}
