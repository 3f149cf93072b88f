package entities

import (
	"fmt"
)

// PatientStatus is a single flat enumeration covering both the internal clinic
// workflow and the statuses received from the external schedule feed.
type PatientStatus string

const (
	// Internal lane
	StatusScheduled  PatientStatus = "scheduled"
	StatusArrived    PatientStatus = "arrived"
	StatusApptPrep   PatientStatus = "appt-prep"
	StatusReadyForMD PatientStatus = "ready-for-md"
	StatusWithDoctor PatientStatus = "with-doctor"
	StatusSeenByMD   PatientStatus = "seen-by-md"
	StatusCompleted  PatientStatus = "completed"

	// External lane
	StatusExtScheduled       PatientStatus = "Scheduled"
	StatusExtReminderSent    PatientStatus = "Reminder Sent"
	StatusExtConfirmed       PatientStatus = "Confirmed"
	StatusExtArrived         PatientStatus = "Arrived"
	StatusExtCheckedIn       PatientStatus = "Checked In"
	StatusExtRoomed          PatientStatus = "Roomed"
	StatusExtApptPrepStarted PatientStatus = "Appt Prep Started"
	StatusExtReadyForMD      PatientStatus = "Ready for MD"
	StatusExtSeenByMD        PatientStatus = "Seen by MD"
	StatusExtCheckedOut      PatientStatus = "Checked Out"
	StatusExtNoShow          PatientStatus = "No Show"
	StatusExtRescheduled     PatientStatus = "Rescheduled"
	StatusExtCancelled       PatientStatus = "Cancelled"
)

// Lane identifies where a status originates.
type Lane string

const (
	LaneInternal Lane = "internal"
	LaneExternal Lane = "external"
)

// Stage is a timestamped milestone on the patient record.
type Stage string

const (
	StageNone       Stage = ""
	StageCheckIn    Stage = "check_in"
	StageWithDoctor Stage = "with_doctor"
	StageCompleted  Stage = "completed"
)

type statusInfo struct {
	lane  Lane
	rank  int // -1 means outside the forward progression
	stage Stage
}

var statusTable = map[PatientStatus]statusInfo{
	StatusScheduled:  {LaneInternal, 0, StageNone},
	StatusArrived:    {LaneInternal, 1, StageCheckIn},
	StatusApptPrep:   {LaneInternal, 2, StageNone},
	StatusReadyForMD: {LaneInternal, 3, StageNone},
	StatusWithDoctor: {LaneInternal, 4, StageWithDoctor},
	StatusSeenByMD:   {LaneInternal, 5, StageNone},
	StatusCompleted:  {LaneInternal, 6, StageCompleted},

	StatusExtScheduled:       {LaneExternal, 0, StageNone},
	StatusExtReminderSent:    {LaneExternal, 0, StageNone},
	StatusExtConfirmed:       {LaneExternal, 0, StageNone},
	StatusExtArrived:         {LaneExternal, 1, StageCheckIn},
	StatusExtCheckedIn:       {LaneExternal, 1, StageCheckIn},
	StatusExtApptPrepStarted: {LaneExternal, 2, StageNone},
	StatusExtReadyForMD:      {LaneExternal, 3, StageNone},
	StatusExtRoomed:          {LaneExternal, 4, StageWithDoctor},
	StatusExtSeenByMD:        {LaneExternal, 5, StageNone},
	StatusExtCheckedOut:      {LaneExternal, 6, StageCompleted},
	StatusExtNoShow:          {LaneExternal, -1, StageNone},
	StatusExtRescheduled:     {LaneExternal, -1, StageNone},
	StatusExtCancelled:       {LaneExternal, -1, StageNone},
}

// allStatuses keeps declaration order for listings.
var allStatuses = []PatientStatus{
	StatusScheduled, StatusArrived, StatusApptPrep, StatusReadyForMD,
	StatusWithDoctor, StatusSeenByMD, StatusCompleted,
	StatusExtScheduled, StatusExtReminderSent, StatusExtConfirmed, StatusExtArrived,
	StatusExtCheckedIn, StatusExtRoomed, StatusExtApptPrepStarted, StatusExtReadyForMD,
	StatusExtSeenByMD, StatusExtCheckedOut, StatusExtNoShow, StatusExtRescheduled,
	StatusExtCancelled,
}

// AllStatuses returns every known status in declaration order.
func AllStatuses() []PatientStatus {
	out := make([]PatientStatus, len(allStatuses))
	copy(out, allStatuses)
	return out
}

// ParsePatientStatus matches the wire value exactly.
func ParsePatientStatus(s string) (PatientStatus, error) {
	st := PatientStatus(s)
	if _, ok := statusTable[st]; !ok {
		return "", fmt.Errorf("unknown patient status %q", s)
	}
	return st, nil
}

func (s PatientStatus) IsValid() bool {
	_, ok := statusTable[s]
	return ok
}

func (s PatientStatus) Lane() Lane {
	return statusTable[s].lane
}

// Rank is the position in the forward progression, or -1 for statuses that
// take the patient out of the visit (no show, rescheduled, cancelled).
func (s PatientStatus) Rank() int {
	info, ok := statusTable[s]
	if !ok {
		return -1
	}
	return info.rank
}

// Stamps returns the stage timestamp set when a patient enters this status.
func (s PatientStatus) Stamps() Stage {
	return statusTable[s].stage
}

// IsCompletionClass reports statuses after which the patient is no longer waiting.
func (s PatientStatus) IsCompletionClass() bool {
	switch s {
	case StatusCompleted, StatusSeenByMD, StatusExtSeenByMD, StatusExtCheckedOut:
		return true
	}
	return false
}

func (s PatientStatus) IsCancelledClass() bool {
	switch s {
	case StatusExtNoShow, StatusExtRescheduled, StatusExtCancelled:
		return true
	}
	return false
}

// FreezesWait reports whether the wait time stops accruing in this status.
func (s PatientStatus) FreezesWait() bool {
	return s.IsCompletionClass() || s.IsCancelledClass()
}
