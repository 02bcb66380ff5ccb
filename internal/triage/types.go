package triage

// KeywordSet is the contents of one embedded locale file
type KeywordSet struct {
	Locale string `yaml:"locale"`
	// Voice is the provider TTS voice for this locale. Empty means the
	// provider's default voice for the language.
	Voice string `yaml:"voice"`

	Intents     IntentKeywords    `yaml:"intents"`
	Emergency   EmergencyKeywords `yaml:"emergency"`
	ZeroLatency []string          `yaml:"zero_latency"`
	Priority    PriorityKeywords  `yaml:"priority"`

	Replies map[string]string `yaml:"replies"`
	Phrases map[string]string `yaml:"phrases"`
}

// IntentKeywords lists the substrings that score each intent
type IntentKeywords struct {
	Appointment    []string `yaml:"appointment"`
	Prescription   []string `yaml:"prescription"`
	GeneralInquiry []string `yaml:"general_inquiry"`
	Emergency      []string `yaml:"emergency"`
}

// EmergencyKeywords are split by the severity a match implies
type EmergencyKeywords struct {
	Critical []string `yaml:"critical"`
	High     []string `yaml:"high"`
}

// PriorityKeywords drive non-emergency priority
type PriorityKeywords struct {
	High   []string `yaml:"high"`
	Medium []string `yaml:"medium"`
}

// Phrase keys used by the IVR flow
const (
	PhraseGreeting      = "greeting"
	PhraseReprompt      = "reprompt"
	PhraseLowConfidence = "low_confidence"
	PhraseAnythingElse  = "anything_else"
	PhraseGoodbye       = "goodbye"
	PhraseTransfer      = "transfer"
	PhraseApology       = "apology"
	PhraseAskLocation   = "ask_location"
)
