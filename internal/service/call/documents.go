package call

import (
	"net/url"
	"strconv"

	"callagent/internal/telephony/twiml"
	"callagent/internal/triage"
)

// voice picks the TTS voice for the engine's locale. A configured voice only
// replaces locales that name one; the rest speak with the provider's default
// voice for their language.
func (s *callService) voice(engine *triage.Engine) string {
	v := engine.Voice()
	if v != "" && s.cfg.Voice != "" {
		return s.cfg.Voice
	}
	return v
}

func (s *callService) say(r *twiml.Response, engine *triage.Engine, text string) *twiml.Response {
	return r.Say(text, s.voice(engine), engine.Locale())
}

// turnURL is the gather action. A non-zero silent-turn count rides along in
// the query so the next webhook can enforce the budget without the store.
func (s *callService) turnURL(empty int) string {
	if empty <= 0 {
		return s.cfg.TurnURL
	}
	u, err := url.Parse(s.cfg.TurnURL)
	if err != nil {
		return s.cfg.TurnURL
	}
	q := u.Query()
	q.Set("empty", strconv.Itoa(empty))
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *callService) gather(engine *triage.Engine, empty int) *twiml.Gather {
	return &twiml.Gather{
		Input:               "dtmf speech",
		Action:              s.turnURL(empty),
		Method:              "POST",
		Timeout:             s.cfg.GatherTimeout,
		SpeechTimeout:       "auto",
		SpeechModel:         "phone_call",
		NumDigits:           1,
		Language:            engine.Locale(),
		BargeIn:             s.cfg.BargeIn,
		ActionOnEmptyResult: true,
	}
}

// listenDocument speaks lead (if any), then listens while playing prompt.
// Silence posts back to the turn endpoint, which owns the retry budget;
// the trailing goodbye only plays if that callback never happens.
func (s *callService) listenDocument(engine *triage.Engine, lead, prompt string, empty int) *twiml.Response {
	r := twiml.NewResponse()
	if lead != "" {
		s.say(r, engine, lead)
	}
	r.Gather(s.gather(engine, empty).Say(prompt, s.voice(engine), engine.Locale()))
	s.say(r, engine, engine.Phrase(triage.PhraseGoodbye))
	return r.Hangup()
}

func (s *callService) goodbyeDocument(engine *triage.Engine) *twiml.Response {
	return s.say(twiml.NewResponse(), engine, engine.Phrase(triage.PhraseGoodbye)).Hangup()
}

func (s *callService) transferDocument(engine *triage.Engine, notice, number string) *twiml.Response {
	if notice == "" {
		notice = engine.Phrase(triage.PhraseTransfer)
	}
	return s.say(twiml.NewResponse(), engine, notice).Dial(number)
}

func (s *callService) apologyDocument(engine *triage.Engine) *twiml.Response {
	return s.say(twiml.NewResponse(), engine, engine.Phrase(triage.PhraseApology)).Hangup()
}
