package services

import (
	"time"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// WaitingSet is the set of statuses counted as waiting
type WaitingSet map[entities.PatientStatus]struct{}

// NewWaitingSet parses status names; unknown names are a validation error.
func NewWaitingSet(statuses []string) (WaitingSet, error) {
	set := make(WaitingSet, len(statuses))
	for _, s := range statuses {
		st, err := entities.ParsePatientStatus(s)
		if err != nil {
			return nil, apperrors.NewValidationError(err.Error())
		}
		set[st] = struct{}{}
	}
	return set, nil
}

func (w WaitingSet) Contains(s entities.PatientStatus) bool {
	_, ok := w[s]
	return ok
}

// ComputeMetrics summarises patients at now. Averages cover waiting patients only;
// records whose wait cannot be computed are counted but not averaged.
func ComputeMetrics(patients []*entities.Patient, now time.Time, waiting WaitingSet, calc *WaitTimeCalculator) entities.Metrics {
	m := entities.Metrics{TotalPatients: len(patients)}

	var total time.Duration
	measured := 0
	for _, p := range patients {
		if !waiting.Contains(p.Status) {
			continue
		}
		m.WaitingPatients++

		wait, err := calc.WaitTime(p, now)
		if err != nil {
			continue
		}
		measured++
		total += wait
		if wait > m.MaxWait {
			m.MaxWait = wait
		}
	}

	if measured > 0 {
		m.AverageWait = total / time.Duration(measured)
	}
	return m
}
