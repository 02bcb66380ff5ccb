package models

// Intent is the caller's classified purpose for a turn
type Intent string

const (
	IntentAppointment    Intent = "appointment"
	IntentPrescription   Intent = "prescription"
	IntentGeneralInquiry Intent = "general_inquiry"
	IntentEmergency      Intent = "emergency"
	IntentFindDoctor     Intent = "find_doctor"
	IntentUnknown        Intent = "unknown"
)

// ParseIntent normalizes a classifier label. Unrecognized labels become IntentUnknown.
func ParseIntent(raw string) Intent {
	switch i := Intent(raw); i {
	case IntentAppointment, IntentPrescription, IntentGeneralInquiry,
		IntentEmergency, IntentFindDoctor, IntentUnknown:
		return i
	}
	return IntentUnknown
}

// Priority factors emergency and non-emergency signals
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// Severity is the emergency detector's output tier
type Severity string

const (
	SeverityNone     Severity = "none"
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes a detector label. Unrecognized labels become SeverityNone.
func ParseSeverity(raw string) Severity {
	switch s := Severity(raw); s {
	case SeverityNone, SeverityLow, SeverityMedium, SeverityHigh, SeverityCritical:
		return s
	}
	return SeverityNone
}

// Analysis is the outcome of running one transcript through the pipeline.
// It is always complete: fallbacks fill anything the external AI could not.
type Analysis struct {
	Intent               Intent   `json:"intent"`
	IntentConfidence     float64  `json:"intent_confidence"`
	Priority             Priority `json:"priority"`
	IsEmergency          bool     `json:"is_emergency"`
	Severity             Severity `json:"severity"`
	Keywords             []string `json:"keywords"`
	EmergencyContext     string   `json:"emergency_context,omitempty"`
	ReplyText            string   `json:"reply_text"`
	AuxiliaryContext     string   `json:"auxiliary_context,omitempty"`
	FollowUpInstructions string   `json:"follow_up_instructions,omitempty"`

	// Sources records which stage produced each field ("ai", "keyword",
	// "template", "override") for logging and dashboards.
	Sources AnalysisSources `json:"sources"`
}

// AnalysisSources tracks provenance of the intent, severity and reply
type AnalysisSources struct {
	Intent   string `json:"intent"`
	Severity string `json:"severity"`
	Reply    string `json:"reply"`
}

// Analysis source labels
const (
	SourceAI       = "ai"
	SourceKeyword  = "keyword"
	SourceTemplate = "template"
	SourceOverride = "override"
)

// RequiresTransfer reports whether the turn must be bridged to emergency services
func (a *Analysis) RequiresTransfer() bool {
	return a != nil && a.Severity == SeverityCritical
}
