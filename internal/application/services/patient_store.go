package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// PatientStore is the authoritative in-memory state for one clinic session.
// All mutations are serialized; readers always receive copies.
type PatientStore struct {
	mu       sync.RWMutex
	order    []string
	byID     map[string]*entities.Patient
	clock    Clock
	workflow *StatusWorkflow
	calc     *WaitTimeCalculator
	waiting  WaitingSet
	waits    WaitRecorder
	logger   zerolog.Logger
	onChange []func([]*entities.Patient)
}

// NewPatientStore creates an empty store
func NewPatientStore(clock Clock, workflow *StatusWorkflow, waiting WaitingSet, logger zerolog.Logger) *PatientStore {
	return &PatientStore{
		byID:     make(map[string]*entities.Patient),
		clock:    clock,
		workflow: workflow,
		calc:     NewWaitTimeCalculator(),
		waiting:  waiting,
		waits:    noopRecorder{},
		logger:   logger,
	}
}

// SetWaitRecorder reports each patient's final wait when it freezes
func (s *PatientStore) SetWaitRecorder(r WaitRecorder) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r == nil {
		r = noopRecorder{}
	}
	s.waits = r
}

// OnChange registers fn to receive a snapshot after every mutation. fn runs while
// the store lock is held, so it must be quick and must not call the store.
func (s *PatientStore) OnChange(fn func([]*entities.Patient)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// AddPatient validates input and appends a new patient
func (s *PatientStore) AddPatient(ctx context.Context, in entities.PatientInput) (*entities.Patient, error) {
	return s.add(ctx, in, SourceStaff)
}

func (s *PatientStore) add(ctx context.Context, in entities.PatientInput, source TransitionSource) (*entities.Patient, error) {
	p, target, err := buildPatient(in)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[p.ID]; exists {
		return nil, apperrors.NewValidationError("patient " + p.ID + " already exists")
	}

	now := s.clock.GetCurrentTime()
	p.CreatedAt = now
	p.UpdatedAt = now
	changed := now
	p.StatusChangedAt = &changed

	if target != entities.StatusScheduled {
		if _, err := s.workflow.Apply(ctx, p, target, now, source); err != nil {
			return nil, err
		}
	}

	s.byID[p.ID] = p
	s.order = append(s.order, p.ID)
	s.changedLocked()

	s.logger.Debug().Str("patient_id", p.ID).Str("status", string(p.Status)).Msg("patient added")
	return p.Clone(), nil
}

func buildPatient(in entities.PatientInput) (*entities.Patient, entities.PatientStatus, error) {
	name := strings.TrimSpace(in.Name)
	provider := strings.TrimSpace(in.Provider)
	switch {
	case name == "":
		return nil, "", apperrors.NewValidationError("name is required")
	case provider == "":
		return nil, "", apperrors.NewValidationError("provider is required")
	case in.AppointmentTime.IsZero():
		return nil, "", apperrors.NewValidationError("appointment time is required")
	}

	apptType, err := entities.ParseAppointmentType(in.AppointmentType)
	if err != nil {
		return nil, "", apperrors.NewValidationError(err.Error())
	}

	target := entities.StatusScheduled
	if in.Status != "" {
		if target, err = entities.ParsePatientStatus(in.Status); err != nil {
			return nil, "", apperrors.NewValidationError(err.Error())
		}
	}

	id := strings.TrimSpace(in.ID)
	if id == "" {
		id = uuid.New().String()
	}

	p := &entities.Patient{
		ID:              id,
		Name:            name,
		DateOfBirth:     in.DateOfBirth,
		AppointmentTime: in.AppointmentTime,
		AppointmentType: apptType,
		ChiefComplaint:  in.ChiefComplaint,
		Provider:        provider,
		Room:            in.Room,
		Status:          entities.StatusScheduled,
		ExternalID:      in.ExternalID,
	}
	if in.CheckInTime != nil {
		t := *in.CheckInTime
		p.CheckInTime = &t
	}
	return p, target, nil
}

// UpdateStatus applies a staff status change
func (s *PatientStore) UpdateStatus(ctx context.Context, id string, status entities.PatientStatus) (*entities.Patient, error) {
	p, _, err := s.updateStatus(ctx, id, status, SourceStaff)
	return p, err
}

func (s *PatientStore) updateStatus(ctx context.Context, id string, status entities.PatientStatus, source TransitionSource) (*entities.Patient, TransitionResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, TransitionResult{}, apperrors.NewNotFoundError("patient " + id + " not found")
	}

	// apply to a copy so a rejected transition leaves the record untouched
	next := p.Clone()
	result, err := s.workflow.Apply(ctx, next, status, s.clock.GetCurrentTime(), source)
	if err != nil {
		return nil, result, err
	}
	if result.From == result.To {
		return p.Clone(), result, nil
	}

	s.byID[id] = next
	if result.To.FreezesWait() && !result.From.FreezesWait() {
		if wait, err := s.calc.WaitTime(next, s.clock.GetCurrentTime()); err == nil {
			s.waits.RecordWaitTime(ctx, wait)
		}
	}
	s.changedLocked()
	return next.Clone(), result, nil
}

// AssignRoom sets the room without any workflow checks
func (s *PatientStore) AssignRoom(ctx context.Context, id, room string) (*entities.Patient, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("patient " + id + " not found")
	}
	p.Room = strings.TrimSpace(room)
	p.UpdatedAt = s.clock.GetCurrentTime()
	s.changedLocked()
	return p.Clone(), nil
}

// RemovePatient deletes a patient from the session
func (s *PatientStore) RemovePatient(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[id]; !ok {
		return apperrors.NewNotFoundError("patient " + id + " not found")
	}
	delete(s.byID, id)
	for i, pid := range s.order {
		if pid == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	s.changedLocked()
	return nil
}

func (s *PatientStore) GetPatient(id string) (*entities.Patient, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.byID[id]
	if !ok {
		return nil, apperrors.NewNotFoundError("patient " + id + " not found")
	}
	return p.Clone(), nil
}

// FindByExternalID looks a patient up by schedule feed id
func (s *PatientStore) FindByExternalID(externalID string) (*entities.Patient, bool) {
	if externalID == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, id := range s.order {
		if p := s.byID[id]; p.ExternalID == externalID {
			return p.Clone(), true
		}
	}
	return nil, false
}

// ListPatients returns copies of all patients in insertion order
func (s *PatientStore) ListPatients() []*entities.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// GetPatientsByStatus filters in insertion order
func (s *PatientStore) GetPatientsByStatus(status entities.PatientStatus) []*entities.Patient {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*entities.Patient, 0)
	for _, id := range s.order {
		if p := s.byID[id]; p.Status == status {
			out = append(out, p.Clone())
		}
	}
	return out
}

// WaitTime computes the wait for one patient at the clock's current time
func (s *PatientStore) WaitTime(id string) (time.Duration, error) {
	p, err := s.GetPatient(id)
	if err != nil {
		return 0, err
	}
	return s.calc.WaitTime(p, s.clock.GetCurrentTime())
}

// GetMetrics recomputes the dashboard metrics from the live state
func (s *PatientStore) GetMetrics() entities.Metrics {
	patients := s.ListPatients()
	return ComputeMetrics(patients, s.clock.GetCurrentTime(), s.waiting, s.calc)
}

// Replace swaps the whole state for patients, keeping their order. Used when a
// session is restored; change hooks are not called.
func (s *PatientStore) Replace(patients []*entities.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.byID = make(map[string]*entities.Patient, len(patients))
	s.order = make([]string, 0, len(patients))
	for _, p := range patients {
		if p == nil || p.ID == "" {
			continue
		}
		if _, dup := s.byID[p.ID]; dup {
			s.logger.Warn().Str("patient_id", p.ID).Msg("duplicate patient in restored session skipped")
			continue
		}
		s.byID[p.ID] = p.Clone()
		s.order = append(s.order, p.ID)
	}
}

func (s *PatientStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *PatientStore) snapshotLocked() []*entities.Patient {
	out := make([]*entities.Patient, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id].Clone())
	}
	return out
}

func (s *PatientStore) changedLocked() {
	if len(s.onChange) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for _, fn := range s.onChange {
		fn(snap)
	}
}
