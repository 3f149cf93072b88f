package entities

import (
	"fmt"
	"time"
)

// AppointmentType represents the kind of visit
type AppointmentType string

const (
	AppointmentTypeOfficeVisit AppointmentType = "Office Visit"
	AppointmentTypeLabs        AppointmentType = "LABS"
	AppointmentTypeNewPatient  AppointmentType = "New Patient"
	AppointmentTypeFollowUp    AppointmentType = "Follow Up"
	AppointmentTypeProcedure   AppointmentType = "Procedure"
	AppointmentTypeTelehealth  AppointmentType = "Telehealth"
)

// ParseAppointmentType accepts the empty string as "not set".
func ParseAppointmentType(s string) (AppointmentType, error) {
	switch t := AppointmentType(s); t {
	case "", AppointmentTypeOfficeVisit, AppointmentTypeLabs, AppointmentTypeNewPatient,
		AppointmentTypeFollowUp, AppointmentTypeProcedure, AppointmentTypeTelehealth:
		return t, nil
	}
	return "", fmt.Errorf("unknown appointment type %q", s)
}

// Patient represents one scheduled visit on the clinic dashboard
type Patient struct {
	ID              string          `json:"id"`
	Name            string          `json:"name"`
	DateOfBirth     string          `json:"dob"`
	AppointmentTime time.Time       `json:"appointment_time"`
	AppointmentType AppointmentType `json:"appointment_type,omitempty"`
	ChiefComplaint  string          `json:"chief_complaint,omitempty"`
	Provider        string          `json:"provider"`
	Room            string          `json:"room,omitempty"`
	Status          PatientStatus   `json:"status"`

	CheckInTime    *time.Time `json:"check_in_time,omitempty"`
	WithDoctorTime *time.Time `json:"with_doctor_time,omitempty"`
	CompletedTime  *time.Time `json:"completed_time,omitempty"`

	// ExternalID is the appointment id from the schedule feed.
	ExternalID string `json:"external_id,omitempty"`
	// ImportedHistoryUnknown marks records imported mid-visit whose earlier
	// stage timestamps were never observed.
	ImportedHistoryUnknown bool       `json:"imported_history_unknown,omitempty"`
	StatusChangedAt        *time.Time `json:"status_changed_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StageTime returns the timestamp recorded for stage, or nil.
func (p *Patient) StageTime(stage Stage) *time.Time {
	switch stage {
	case StageCheckIn:
		return p.CheckInTime
	case StageWithDoctor:
		return p.WithDoctorTime
	case StageCompleted:
		return p.CompletedTime
	}
	return nil
}

// Clone returns a deep copy safe to hand out of the store.
func (p *Patient) Clone() *Patient {
	if p == nil {
		return nil
	}
	c := *p
	c.CheckInTime = cloneTime(p.CheckInTime)
	c.WithDoctorTime = cloneTime(p.WithDoctorTime)
	c.CompletedTime = cloneTime(p.CompletedTime)
	c.StatusChangedAt = cloneTime(p.StatusChangedAt)
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// PatientInput carries the fields accepted when a patient is added
type PatientInput struct {
	ID              string     `json:"id,omitempty"`
	Name            string     `json:"name"`
	DateOfBirth     string     `json:"dob"`
	AppointmentTime time.Time  `json:"appointment_time"`
	AppointmentType string     `json:"appointment_type,omitempty"`
	ChiefComplaint  string     `json:"chief_complaint,omitempty"`
	Provider        string     `json:"provider"`
	Room            string     `json:"room,omitempty"`
	Status          string     `json:"status,omitempty"`
	ExternalID      string     `json:"external_id,omitempty"`
	CheckInTime     *time.Time `json:"check_in_time,omitempty"`
}
