package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
	"github.com/luknerlumina/patientflow/pkg/retry"
	"github.com/luknerlumina/patientflow/pkg/secrets"
)

// PersistWarning is emitted when a save exhausted its retries
type PersistWarning struct {
	SessionDate     string    `json:"session_date"`
	Error           string    `json:"error"`
	FellBackToLocal bool      `json:"fell_back_to_local"`
	At              time.Time `json:"at"`
}

// PersistenceOptions configures a PersistenceService
type PersistenceOptions struct {
	SessionDate string
	Encrypt     bool
	Debounce    time.Duration
	Retry       retry.Config
	Backend     string
}

// PersistenceService mirrors store changes to the gateway. Changes are debounced
// into a single pending snapshot; a newer snapshot replaces an older pending one
// and at most one save runs at a time.
type PersistenceService struct {
	store    *PatientStore
	primary  providers.PersistenceGateway
	fallback providers.PersistenceGateway
	bus      providers.EventBus
	opts     PersistenceOptions
	recorder PersistRecorder
	logger   zerolog.Logger

	mu         sync.Mutex
	pending    []*entities.Patient
	hasPending bool
	timer      *time.Timer
	armed      bool
	inFlight   bool
	wg         sync.WaitGroup

	degraded atomic.Bool
	warnings chan PersistWarning
}

// NewPersistenceService wires the service to store changes. fallback (the local
// tier) and bus may be nil.
func NewPersistenceService(
	store *PatientStore,
	primary providers.PersistenceGateway,
	fallback providers.PersistenceGateway,
	bus providers.EventBus,
	opts PersistenceOptions,
	recorder PersistRecorder,
	logger zerolog.Logger,
) *PersistenceService {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	if opts.Retry.MaxAttempts == 0 {
		opts.Retry = retry.PersistConfig()
	}
	if opts.Backend == "" {
		opts.Backend = "primary"
	}

	s := &PersistenceService{
		store:    store,
		primary:  primary,
		fallback: fallback,
		bus:      bus,
		opts:     opts,
		recorder: recorder,
		logger:   logger,
		warnings: make(chan PersistWarning, 16),
	}
	store.OnChange(s.Schedule)
	return s
}

// Schedule records patients as the latest pending snapshot and restarts the debounce timer.
func (s *PersistenceService) Schedule(patients []*entities.Patient) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending = patients
	s.hasPending = true

	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed = true
	s.timer = time.AfterFunc(s.opts.Debounce, s.fire)
}

func (s *PersistenceService) fire() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.armed = false
	if s.inFlight || !s.hasPending {
		return
	}
	s.dispatchLocked()
}

func (s *PersistenceService) dispatchLocked() {
	snapshot := s.pending
	s.pending = nil
	s.hasPending = false
	s.inFlight = true

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		_ = s.save(context.Background(), snapshot)

		s.mu.Lock()
		defer s.mu.Unlock()
		s.inFlight = false
		if s.hasPending && !s.armed {
			s.dispatchLocked()
		}
	}()
}

// save writes to the primary gateway with retries, then falls back to the local tier.
func (s *PersistenceService) save(ctx context.Context, patients []*entities.Patient) error {
	start := time.Now()
	err := retry.DoWithLog(ctx, s.opts.Retry, "session save", func() error {
		err := s.primary.Save(ctx, s.opts.SessionDate, patients, s.opts.Encrypt)
		if err != nil && (!apperrors.IsPersist(err) || errors.Is(err, secrets.ErrKeyUnavailable)) {
			return retry.Permanent(err)
		}
		return err
	}, func(attempt int, err error, next time.Duration) {
		s.logger.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("session save failed, retrying")
	})
	s.recorder.RecordPersist(ctx, s.opts.Backend, time.Since(start), err)
	if err == nil {
		if s.degraded.CompareAndSwap(true, false) {
			s.logger.Info().Str("session_date", s.opts.SessionDate).Str("backend", s.opts.Backend).Msg("session persistence recovered")
		}
		return nil
	}

	warning := PersistWarning{SessionDate: s.opts.SessionDate, Error: err.Error(), At: time.Now()}
	if s.fallback != nil {
		ferr := s.fallback.Save(ctx, s.opts.SessionDate, patients, s.opts.Encrypt)
		s.recorder.RecordPersist(ctx, "local", time.Since(start), ferr)
		if ferr == nil {
			warning.FellBackToLocal = true
		} else {
			err = errors.Join(err, ferr)
		}
	}
	s.degraded.Store(true)
	s.warn(ctx, warning)
	return err
}

func (s *PersistenceService) warn(ctx context.Context, w PersistWarning) {
	s.logger.Warn().
		Str("session_date", w.SessionDate).
		Str("error", w.Error).
		Bool("fell_back_to_local", w.FellBackToLocal).
		Msg("session persistence degraded")

	select {
	case s.warnings <- w:
	default:
	}

	if s.bus != nil {
		event := entities.NewPatientEvent(w.SessionDate, entities.PatientEventTypePersistenceDegraded, map[string]interface{}{
			"fell_back_to_local": w.FellBackToLocal,
		})
		if err := s.bus.Publish(ctx, providers.EventChannelWarnings, event); err != nil {
			s.logger.Debug().Err(err).Msg("failed to publish persistence warning")
		}
	}
}

// Warnings delivers persistence warnings. Delivery is best effort; warnings are
// dropped when nobody is reading.
func (s *PersistenceService) Warnings() <-chan PersistWarning {
	return s.warnings
}

// Degraded reports whether the latest save missed the primary backend. It clears
// on the next successful primary save.
func (s *PersistenceService) Degraded() bool {
	return s.degraded.Load()
}

// Cancel drops the pending snapshot. A save already running is left to finish.
func (s *PersistenceService) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed = false
	s.pending = nil
	s.hasPending = false
}

// Flush waits for the running save and then writes any pending snapshot immediately.
func (s *PersistenceService) Flush(ctx context.Context) error {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
	}
	s.armed = false
	s.mu.Unlock()

	s.wg.Wait()

	s.mu.Lock()
	if !s.hasPending {
		s.mu.Unlock()
		return nil
	}
	snapshot := s.pending
	s.pending = nil
	s.hasPending = false
	s.inFlight = true
	s.mu.Unlock()

	err := s.save(ctx, snapshot)

	s.mu.Lock()
	s.inFlight = false
	if s.hasPending && !s.armed {
		s.dispatchLocked()
	}
	s.mu.Unlock()
	return err
}

// Restore loads the session into the store. With a local tier configured both
// tiers are read and the snapshot saved last wins, so a save that only reached
// the local tier survives a restart. A session that exists nowhere leaves the
// store empty.
func (s *PersistenceService) Restore(ctx context.Context) (int, error) {
	snap, err := s.primary.Load(ctx, s.opts.SessionDate)
	tier := s.opts.Backend
	if s.fallback != nil {
		local, lerr := s.fallback.Load(ctx, s.opts.SessionDate)
		switch {
		case lerr != nil:
			if !apperrors.IsNotFound(lerr) {
				s.logger.Warn().Err(lerr).Msg("local session load failed")
			}
			if err != nil && apperrors.IsNotFound(err) {
				err = lerr
			}
		case err != nil:
			if !apperrors.IsNotFound(err) {
				s.logger.Warn().Err(err).Msg("primary session load failed, using local tier")
			}
			snap, err, tier = local, nil, "local"
		case local.SavedAt.After(snap.SavedAt):
			s.logger.Warn().
				Time("primary_saved_at", snap.SavedAt).
				Time("local_saved_at", local.SavedAt).
				Msg("local tier is newer than primary")
			snap, tier = local, "local"
		}
	}
	if err != nil {
		if apperrors.IsNotFound(err) {
			return 0, nil
		}
		return 0, err
	}

	s.store.Replace(snap.Patients)
	s.logger.Info().
		Str("session_date", s.opts.SessionDate).
		Str("tier", tier).
		Time("saved_at", snap.SavedAt).
		Int("patients", len(snap.Patients)).
		Bool("encrypted", snap.IsEncrypted).
		Msg("session restored")
	return len(snap.Patients), nil
}
