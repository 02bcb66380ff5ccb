package triage

import (
	"math"
	"strings"

	"callagent/internal/domain/models"
)

// Engine is the keyword-only classifier for one locale. It performs no I/O
// and is safe for concurrent use.
type Engine struct {
	locale string
	voice  string

	intents         []intentKeywords
	emergencyIntent []string

	critical []string
	high     []string

	zeroLatency []string

	priorityHigh   []string
	priorityMedium []string

	replies map[string]string
	phrases map[string]string
}

// intentKeywords keeps the scored intents in tie-break order
type intentKeywords struct {
	intent   models.Intent
	keywords []string
}

// newEngine builds an engine from set, merging base lists underneath it when
// base is non-nil.
func newEngine(set, base *KeywordSet) *Engine {
	if base == nil {
		base = &KeywordSet{}
	}
	return &Engine{
		locale: set.Locale,
		voice:  set.Voice,
		intents: []intentKeywords{
			{models.IntentAppointment, merge(set.Intents.Appointment, base.Intents.Appointment)},
			{models.IntentPrescription, merge(set.Intents.Prescription, base.Intents.Prescription)},
			{models.IntentGeneralInquiry, merge(set.Intents.GeneralInquiry, base.Intents.GeneralInquiry)},
		},
		emergencyIntent: merge(set.Intents.Emergency, base.Intents.Emergency),
		critical:        merge(set.Emergency.Critical, base.Emergency.Critical),
		high:            merge(set.Emergency.High, base.Emergency.High),
		zeroLatency:     merge(set.ZeroLatency, base.ZeroLatency),
		priorityHigh:    merge(set.Priority.High, base.Priority.High),
		priorityMedium:  merge(set.Priority.Medium, base.Priority.Medium),
		replies:         overlay(set.Replies, base.Replies),
		phrases:         overlay(set.Phrases, base.Phrases),
	}
}

// merge concatenates keyword lists, lowercased and de-duplicated
func merge(lists ...[]string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, list := range lists {
		for _, kw := range list {
			kw = normalize(kw)
			if kw == "" {
				continue
			}
			if _, dup := seen[kw]; dup {
				continue
			}
			seen[kw] = struct{}{}
			out = append(out, kw)
		}
	}
	return out
}

func overlay(top, base map[string]string) map[string]string {
	out := make(map[string]string, len(top)+len(base))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range top {
		if v != "" {
			out[k] = v
		}
	}
	return out
}

// normalize lowercases text and folds typographic apostrophes so that
// "can’t" from speech recognition matches "can't".
func normalize(text string) string {
	text = strings.ToLower(strings.TrimSpace(text))
	return strings.NewReplacer("’", "'", "‘", "'").Replace(text)
}

// matches returns every keyword contained in text, in list order
func matches(text string, keywords []string) []string {
	var found []string
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			found = append(found, kw)
		}
	}
	return found
}

func containsAny(text string, keywords []string) bool {
	for _, kw := range keywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	return false
}

// Locale returns the locale this engine was built for
func (e *Engine) Locale() string { return e.locale }

// Voice returns the TTS voice configured for the locale, or ""
func (e *Engine) Voice() string { return e.voice }

// Phrase returns a fixed IVR phrase by key (see Phrase* constants)
func (e *Engine) Phrase(key string) string { return e.phrases[key] }

// Reply returns the template reply for intent, or the unknown-intent reply
func (e *Engine) Reply(intent models.Intent) string {
	if r, ok := e.replies[string(intent)]; ok {
		return r
	}
	return e.replies[string(models.IntentUnknown)]
}

// ClassifyIntent scores each intent by keyword hits. Any emergency keyword
// wins outright. Ties go to the earlier intent (appointment, prescription,
// general_inquiry) and no hits at all default to general_inquiry.
func (e *Engine) ClassifyIntent(text string) models.Intent {
	text = normalize(text)

	if containsAny(text, e.emergencyIntent) {
		return models.IntentEmergency
	}

	best, bestScore := models.IntentGeneralInquiry, 0
	for _, ik := range e.intents {
		if score := len(matches(text, ik.keywords)); score > bestScore {
			best, bestScore = ik.intent, score
		}
	}
	return best
}

// IntentConfidence estimates 0-100 confidence for intent as keyword hits
// relative to a tenth of the utterance's word count.
func (e *Engine) IntentConfidence(text string, intent models.Intent) float64 {
	var keywords []string
	if intent == models.IntentEmergency {
		keywords = e.emergencyIntent
	}
	for _, ik := range e.intents {
		if ik.intent == intent {
			keywords = ik.keywords
		}
	}

	hits := float64(len(matches(normalize(text), keywords)))
	words := float64(len(strings.Fields(text)))
	return math.Min(hits/math.Max(words*0.1, 1)*100, 100)
}

// DetectEmergencyKeywords returns every emergency keyword found in text
func (e *Engine) DetectEmergencyKeywords(text string) (bool, []string) {
	text = normalize(text)
	found := append(matches(text, e.critical), matches(text, e.high)...)
	return len(found) > 0, found
}

// EmergencySeverity grades text by the most severe emergency keyword tier it hits
func (e *Engine) EmergencySeverity(text string) models.Severity {
	text = normalize(text)
	switch {
	case containsAny(text, e.critical):
		return models.SeverityCritical
	case containsAny(text, e.high):
		return models.SeverityHigh
	}
	return models.SeverityNone
}

// CalculatePriority: an emergency is always critical, then the high and
// medium lists are checked in turn.
func (e *Engine) CalculatePriority(text string, isEmergency bool) models.Priority {
	if isEmergency {
		return models.PriorityCritical
	}
	text = normalize(text)
	switch {
	case containsAny(text, e.priorityHigh):
		return models.PriorityHigh
	case containsAny(text, e.priorityMedium):
		return models.PriorityMedium
	}
	return models.PriorityLow
}

// ZeroLatencyOverride checks only the short unambiguous list. It must stay
// independent of every other classifier.
func (e *Engine) ZeroLatencyOverride(text string) (bool, []string) {
	found := matches(normalize(text), e.zeroLatency)
	return len(found) > 0, found
}

// Analyze runs the whole keyword engine over text. The result is what the
// analysis pipeline returns when every external call has failed.
func (e *Engine) Analyze(text string) *models.Analysis {
	intent := e.ClassifyIntent(text)
	isEmergency, keywords := e.DetectEmergencyKeywords(text)
	if keywords == nil {
		keywords = []string{}
	}

	a := &models.Analysis{
		Intent:           intent,
		IntentConfidence: e.IntentConfidence(text, intent),
		IsEmergency:      isEmergency,
		Severity:         e.EmergencySeverity(text),
		Keywords:         keywords,
		Priority:         e.CalculatePriority(text, isEmergency),
		EmergencyContext: EmergencyContext(keywords),
		ReplyText:        e.Reply(intent),
		Sources: models.AnalysisSources{
			Intent:   models.SourceKeyword,
			Severity: models.SourceKeyword,
			Reply:    models.SourceTemplate,
		},
	}
	a.FollowUpInstructions = FollowUpInstructions(intent, isEmergency)
	if a.RequiresTransfer() {
		a.ReplyText = e.Phrase(PhraseTransfer)
	}
	return a
}

// Override builds the critical decision for a zero-latency hit
func (e *Engine) Override(keywords []string) *models.Analysis {
	return &models.Analysis{
		Intent:               models.IntentEmergency,
		IntentConfidence:     100,
		Priority:             models.PriorityCritical,
		IsEmergency:          true,
		Severity:             models.SeverityCritical,
		Keywords:             keywords,
		EmergencyContext:     EmergencyContext(keywords),
		ReplyText:            e.Phrase(PhraseTransfer),
		FollowUpInstructions: FollowUpInstructions(models.IntentEmergency, true),
		Sources: models.AnalysisSources{
			Intent:   models.SourceOverride,
			Severity: models.SourceOverride,
			Reply:    models.SourceTemplate,
		},
	}
}
