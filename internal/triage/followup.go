package triage

import (
	"strings"

	"callagent/internal/domain/models"
)

var followUps = map[models.Intent]string{
	models.IntentAppointment:    "Schedule appointment in system, send confirmation, add to calendar with reminder.",
	models.IntentPrescription:   "Verify prescription details, check patient history, contact pharmacy for refill authorization.",
	models.IntentGeneralInquiry: "Provide requested information, offer additional assistance, document inquiry in patient record.",
	models.IntentEmergency:      "Transfer to emergency line immediately, document all details, follow emergency protocol.",
	models.IntentFindDoctor:     "Confirm the caller's area, share nearby provider contact details, offer to book a visit.",
}

// FollowUpInstructions returns the staff-facing action list for a call
func FollowUpInstructions(intent models.Intent, isEmergency bool) string {
	if isEmergency {
		return "IMMEDIATE ACTION REQUIRED: Contact emergency services, notify on-call physician, prepare emergency response team."
	}
	if s, ok := followUps[intent]; ok {
		return s
	}
	return "Document call details, follow up within 24 hours, update patient record."
}

// EmergencyContext summarizes matched emergency keywords for staff, or ""
func EmergencyContext(keywords []string) string {
	if len(keywords) == 0 {
		return ""
	}
	return "Emergency detected: Keywords found - " + strings.Join(keywords, ", ")
}
