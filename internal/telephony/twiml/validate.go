package twiml

import (
	"errors"
	"fmt"
)

// ErrInvalidDocument is wrapped by every Validate failure
var ErrInvalidDocument = errors.New("invalid response document")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidDocument, fmt.Sprintf(format, args...))
}

// Validate enforces the document policy:
//   - a document has at most one Gather and never both a Gather and a Dial
//   - a Gather only nests Say and Pause
//   - a Gather is followed by a fallback Say and ends in Hangup
//   - the last verb is Hangup, Dial or Redirect
func (r *Response) Validate() error {
	if len(r.Children) == 0 {
		return invalid("empty response")
	}

	gatherAt, dials := -1, 0
	for i, n := range r.Children {
		switch v := n.(type) {
		case *Gather:
			if gatherAt >= 0 {
				return invalid("more than one Gather")
			}
			gatherAt = i
			if v.Action == "" {
				return invalid("Gather without action")
			}
			for _, child := range v.Children {
				switch child.(type) {
				case *Say, *Pause:
				default:
					return invalid("Gather cannot nest %s", child.verb())
				}
			}
		case *Dial:
			dials++
			if v.Number == "" {
				return invalid("Dial without number")
			}
			if i != len(r.Children)-1 {
				return invalid("Dial must be the last verb")
			}
		case *Say:
			if v.Text == "" {
				return invalid("empty Say")
			}
		}
	}

	if gatherAt >= 0 && dials > 0 {
		return invalid("Gather and Dial in one document")
	}

	if gatherAt >= 0 {
		fallbackSay := false
		for _, n := range r.Children[gatherAt+1:] {
			if _, ok := n.(*Say); ok {
				fallbackSay = true
			}
		}
		if !fallbackSay {
			return invalid("Gather without fallback Say")
		}
	}

	switch last := r.Children[len(r.Children)-1].(type) {
	case *Hangup, *Dial, *Redirect:
	default:
		return invalid("document ends with %s", last.verb())
	}
	if gatherAt >= 0 {
		if _, ok := r.Children[len(r.Children)-1].(*Hangup); !ok {
			return invalid("Gather fallback must end in Hangup")
		}
	}
	return nil
}
