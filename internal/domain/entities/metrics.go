package entities

import "time"

// Metrics is the dashboard summary computed from a store snapshot
type Metrics struct {
	TotalPatients   int           `json:"total_patients"`
	WaitingPatients int           `json:"waiting_patients"`
	AverageWait     time.Duration `json:"average_wait"`
	MaxWait         time.Duration `json:"max_wait"`
}
