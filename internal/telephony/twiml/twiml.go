// Package twiml builds the IVR response documents returned to the telephony
// provider on every webhook.
package twiml

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"strconv"
	"time"
)

// ContentType is the media type of a rendered document
const ContentType = "text/xml; charset=utf-8"

// Node is one instruction (verb) in a response document
type Node interface {
	verb() string
}

// Response is an ordered list of verbs
type Response struct {
	Children []Node
}

// Say speaks Text. Voice takes precedence over Language when both are set.
type Say struct {
	Text     string
	Voice    string
	Language string
}

// Gather collects the caller's next input and posts it to Action. Nested
// Say/Pause children are played while listening.
type Gather struct {
	Input         string // "speech", "dtmf" or "dtmf speech"
	Action        string
	Method        string
	Timeout       time.Duration
	SpeechTimeout string // "auto" or seconds
	SpeechModel   string
	NumDigits     int
	Language      string
	BargeIn       bool
	// ActionOnEmptyResult posts to Action even when nothing was heard
	ActionOnEmptyResult bool
	Children            []Node
}

// Dial bridges the call to Number
type Dial struct {
	Number   string
	CallerID string
	Timeout  time.Duration
}

// Redirect restarts the flow at URL
type Redirect struct {
	URL    string
	Method string
}

// Pause waits silently
type Pause struct {
	Length time.Duration
}

// Hangup ends the call
type Hangup struct{}

func (*Say) verb() string      { return "Say" }
func (*Gather) verb() string   { return "Gather" }
func (*Dial) verb() string     { return "Dial" }
func (*Redirect) verb() string { return "Redirect" }
func (*Pause) verb() string    { return "Pause" }
func (*Hangup) verb() string   { return "Hangup" }

// NewResponse returns an empty document
func NewResponse() *Response {
	return &Response{}
}

// Say appends a Say verb
func (r *Response) Say(text, voice, language string) *Response {
	r.Children = append(r.Children, &Say{Text: text, Voice: voice, Language: language})
	return r
}

// Gather appends g
func (r *Response) Gather(g *Gather) *Response {
	r.Children = append(r.Children, g)
	return r
}

// Dial appends a Dial to number
func (r *Response) Dial(number string) *Response {
	r.Children = append(r.Children, &Dial{Number: number})
	return r
}

// Redirect appends a POST redirect to url
func (r *Response) Redirect(url string) *Response {
	r.Children = append(r.Children, &Redirect{URL: url, Method: "POST"})
	return r
}

// Pause appends a silent pause
func (r *Response) Pause(d time.Duration) *Response {
	r.Children = append(r.Children, &Pause{Length: d})
	return r
}

// Hangup appends a Hangup
func (r *Response) Hangup() *Response {
	r.Children = append(r.Children, &Hangup{})
	return r
}

// Say adds a prompt spoken while the gather listens
func (g *Gather) Say(text, voice, language string) *Gather {
	g.Children = append(g.Children, &Say{Text: text, Voice: voice, Language: language})
	return g
}

// Verbs lists top-level verb names in order, e.g. ["Say", "Dial"]
func (r *Response) Verbs() []string {
	out := make([]string, len(r.Children))
	for i, n := range r.Children {
		out[i] = n.verb()
	}
	return out
}

// Find returns the first top-level node of type T
func Find[T Node](r *Response) (T, bool) {
	for _, n := range r.Children {
		if t, ok := n.(T); ok {
			return t, true
		}
	}
	var zero T
	return zero, false
}

// Render validates the document and encodes it as XML
func (r *Response) Render() ([]byte, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	if err := xml.NewEncoder(&buf).Encode(r); err != nil {
		return nil, fmt.Errorf("failed to encode response: %w", err)
	}
	return buf.Bytes(), nil
}

// String renders the document, returning the error text on failure
func (r *Response) String() string {
	b, err := r.Render()
	if err != nil {
		return err.Error()
	}
	return string(b)
}

// MarshalXML implements xml.Marshaler
func (r *Response) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return encodeParent(e, xml.StartElement{Name: xml.Name{Local: "Response"}}, r.Children)
}

func (s *Say) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := element("Say")
	start.Attr = attr(start.Attr, "voice", s.Voice)
	start.Attr = attr(start.Attr, "language", s.Language)
	return e.EncodeElement(s.Text, start)
}

func (g *Gather) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := element("Gather")
	start.Attr = attr(start.Attr, "input", g.Input)
	start.Attr = attr(start.Attr, "action", g.Action)
	start.Attr = attr(start.Attr, "method", g.Method)
	if g.Timeout > 0 {
		start.Attr = attr(start.Attr, "timeout", seconds(g.Timeout))
	}
	start.Attr = attr(start.Attr, "speechTimeout", g.SpeechTimeout)
	start.Attr = attr(start.Attr, "speechModel", g.SpeechModel)
	if g.NumDigits > 0 {
		start.Attr = attr(start.Attr, "numDigits", strconv.Itoa(g.NumDigits))
	}
	start.Attr = attr(start.Attr, "language", g.Language)
	start.Attr = attr(start.Attr, "bargeIn", strconv.FormatBool(g.BargeIn))
	if g.ActionOnEmptyResult {
		start.Attr = attr(start.Attr, "actionOnEmptyResult", "true")
	}
	return encodeParent(e, start, g.Children)
}

func (d *Dial) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := element("Dial")
	start.Attr = attr(start.Attr, "callerId", d.CallerID)
	if d.Timeout > 0 {
		start.Attr = attr(start.Attr, "timeout", seconds(d.Timeout))
	}
	return e.EncodeElement(d.Number, start)
}

func (rd *Redirect) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := element("Redirect")
	start.Attr = attr(start.Attr, "method", rd.Method)
	return e.EncodeElement(rd.URL, start)
}

func (p *Pause) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	start := element("Pause")
	if p.Length > 0 {
		start.Attr = attr(start.Attr, "length", seconds(p.Length))
	}
	return encodeParent(e, start, nil)
}

func (h *Hangup) MarshalXML(e *xml.Encoder, _ xml.StartElement) error {
	return encodeParent(e, element("Hangup"), nil)
}

func element(name string) xml.StartElement {
	return xml.StartElement{Name: xml.Name{Local: name}}
}

func attr(attrs []xml.Attr, name, value string) []xml.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, xml.Attr{Name: xml.Name{Local: name}, Value: value})
}

func seconds(d time.Duration) string {
	return strconv.Itoa(int(d.Round(time.Second) / time.Second))
}

func encodeParent(e *xml.Encoder, start xml.StartElement, children []Node) error {
	if err := e.EncodeToken(start); err != nil {
		return err
	}
	for _, child := range children {
		if err := e.Encode(child); err != nil {
			return err
		}
	}
	return e.EncodeToken(start.End())
}
