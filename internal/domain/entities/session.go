package entities

import "time"

// SessionSnapshot is the mirrored state of one clinic day
type SessionSnapshot struct {
	SessionDate string     `json:"session_date"`
	Patients    []*Patient `json:"patients"`
	IsEncrypted bool       `json:"is_encrypted"`
	KeyVersion  int        `json:"key_version,omitempty"`
	SavedAt     time.Time  `json:"saved_at"`
}
