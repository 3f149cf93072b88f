package entities

import (
	"time"

	"github.com/google/uuid"
)

// PatientEventType represents the type of session event
type PatientEventType string

const (
	PatientEventTypeSessionSaved        PatientEventType = "session_saved"
	PatientEventTypePersistenceDegraded PatientEventType = "persistence_degraded"
)

// PatientEvent is published on the event bus. It carries ids and counts only,
// never patient details.
type PatientEvent struct {
	ID            string                 `json:"id"`
	SessionDate   string                 `json:"session_date"`
	EventType     PatientEventType       `json:"event_type"`
	Timestamp     time.Time              `json:"timestamp"`
	ChangedFields map[string]interface{} `json:"changed_fields,omitempty"`
}

// NewPatientEvent creates a new session event
func NewPatientEvent(sessionDate string, eventType PatientEventType, changedFields map[string]interface{}) *PatientEvent {
	return &PatientEvent{
		ID:            uuid.NewString(),
		SessionDate:   sessionDate,
		EventType:     eventType,
		Timestamp:     time.Now(),
		ChangedFields: changedFields,
	}
}
