package entities

import "time"

// ClockMode describes the active time source
type ClockMode struct {
	Simulated      bool      `json:"simulated"`
	CurrentInstant time.Time `json:"current_instant"`
}
