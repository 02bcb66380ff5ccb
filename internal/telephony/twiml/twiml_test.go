package twiml

import (
	"encoding/xml"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"
)

func TestRender_SayHangup(t *testing.T) {
	doc := NewResponse().
		Say("Hello & welcome", "Polly.Joanna-Neural", "").
		Hangup()

	got, err := doc.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	want := xml.Header + `<Response><Say voice="Polly.Joanna-Neural">Hello &amp; welcome</Say><Hangup></Hangup></Response>`
	if string(got) != want {
		t.Errorf("Render() =\n%s\nwant\n%s", got, want)
	}
}

func TestRender_Gather(t *testing.T) {
	g := &Gather{
		Input:               "speech",
		Action:              "https://example.com/api/twilio/process-speech",
		Method:              "POST",
		Timeout:             5 * time.Second,
		SpeechTimeout:       "auto",
		Language:            "en-US",
		BargeIn:             true,
		ActionOnEmptyResult: true,
	}
	g.Say("How can I help?", "", "en-US")

	doc := NewResponse().
		Gather(g).
		Say("Goodbye", "", "en-US").
		Hangup()

	got, err := doc.Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}

	s := string(got)
	for _, want := range []string{
		`<Gather input="speech" action="https://example.com/api/twilio/process-speech" method="POST" timeout="5" speechTimeout="auto" language="en-US" bargeIn="true" actionOnEmptyResult="true">`,
		`<Say language="en-US">How can I help?</Say></Gather>`,
		`<Say language="en-US">Goodbye</Say><Hangup></Hangup></Response>`,
	} {
		if !strings.Contains(s, want) {
			t.Errorf("rendered document missing %s\n%s", want, s)
		}
	}
}

func TestRender_Dial(t *testing.T) {
	got, err := NewResponse().Say("Connecting you", "", "").Dial("1122").Render()
	if err != nil {
		t.Fatalf("Render() error = %v", err)
	}
	if !strings.HasSuffix(string(got), `<Say>Connecting you</Say><Dial>1122</Dial></Response>`) {
		t.Errorf("unexpected document: %s", got)
	}
}

func gatherWith(children ...Node) *Gather {
	return &Gather{Input: "speech", Action: "/next", Children: children}
}

func TestValidate(t *testing.T) {
	say := func(s string) Node { return &Say{Text: s} }

	tests := []struct {
		name    string
		doc     *Response
		wantErr bool
	}{
		{
			name: "say hangup",
			doc:  &Response{Children: []Node{say("bye"), &Hangup{}}},
		},
		{
			name: "say dial",
			doc:  &Response{Children: []Node{say("connecting"), &Dial{Number: "911"}}},
		},
		{
			name: "gather with fallback",
			doc:  &Response{Children: []Node{gatherWith(say("hi")), say("bye"), &Hangup{}}},
		},
		{
			name: "say redirect",
			doc:  &Response{Children: []Node{say("sorry"), &Redirect{URL: "/voice"}}},
		},
		{
			name:    "empty",
			doc:     &Response{},
			wantErr: true,
		},
		{
			name:    "gather and dial",
			doc:     &Response{Children: []Node{gatherWith(say("hi")), say("bye"), &Dial{Number: "911"}}},
			wantErr: true,
		},
		{
			name:    "two gathers",
			doc:     &Response{Children: []Node{gatherWith(), say("again"), gatherWith(), say("bye"), &Hangup{}}},
			wantErr: true,
		},
		{
			name:    "gather without fallback say",
			doc:     &Response{Children: []Node{gatherWith(say("hi")), &Hangup{}}},
			wantErr: true,
		},
		{
			name:    "gather without hangup",
			doc:     &Response{Children: []Node{gatherWith(say("hi")), say("bye")}},
			wantErr: true,
		},
		{
			name:    "gather ends in redirect",
			doc:     &Response{Children: []Node{gatherWith(say("hi")), say("bye"), &Redirect{URL: "/voice"}}},
			wantErr: true,
		},
		{
			name:    "nested dial",
			doc:     &Response{Children: []Node{gatherWith(&Dial{Number: "911"}), say("bye"), &Hangup{}}},
			wantErr: true,
		},
		{
			name:    "dial not last",
			doc:     &Response{Children: []Node{&Dial{Number: "911"}, &Hangup{}}},
			wantErr: true,
		},
		{
			name:    "ends with say",
			doc:     &Response{Children: []Node{say("hello")}},
			wantErr: true,
		},
		{
			name:    "empty say",
			doc:     &Response{Children: []Node{say(""), &Hangup{}}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.doc.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidDocument) {
				t.Errorf("error should wrap ErrInvalidDocument: %v", err)
			}
		})
	}
}

func TestRender_RejectsInvalid(t *testing.T) {
	if _, err := NewResponse().Say("hi", "", "").Render(); err == nil {
		t.Error("Render() should fail validation")
	}
}

func TestVerbsAndFind(t *testing.T) {
	doc := NewResponse().Say("a", "", "").Dial("999")

	if got := doc.Verbs(); !reflect.DeepEqual(got, []string{"Say", "Dial"}) {
		t.Errorf("Verbs() = %v", got)
	}
	d, ok := Find[*Dial](doc)
	if !ok || d.Number != "999" {
		t.Errorf("Find[*Dial]() = %v, %v", d, ok)
	}
	if _, ok := Find[*Gather](doc); ok {
		t.Error("Find[*Gather]() should not match")
	}
}
