package persistence

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
	"github.com/luknerlumina/patientflow/internal/infrastructure/encryption"
	"github.com/luknerlumina/patientflow/internal/infrastructure/observability"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
	"github.com/luknerlumina/patientflow/pkg/secrets"
)

const envelopeVersion = 1

// envelope is the stored form of a session. IsEncrypted is a pointer so a
// missing flag (older envelopes) can be told apart from false.
type envelope struct {
	Version      int                 `json:"version"`
	SessionDate  string              `json:"session_date"`
	IsEncrypted  *bool               `json:"is_encrypted,omitempty"`
	KeyVersion   int                 `json:"key_version,omitempty"`
	SavedAt      time.Time           `json:"saved_at"`
	PatientCount int                 `json:"patient_count"`
	Payload      string              `json:"payload,omitempty"`
	Patients     []*entities.Patient `json:"patients,omitempty"`
}

// SessionGateway implements PersistenceGateway over any SnapshotStore.
type SessionGateway struct {
	store  providers.SnapshotStore
	codec  *encryption.SessionCodec
	bus    providers.EventBus
	logger zerolog.Logger
	now    func() time.Time
}

// NewSessionGateway creates a gateway. codec may be nil when no key is
// configured, in which case encrypted saves fail. bus may be nil.
func NewSessionGateway(store providers.SnapshotStore, codec *encryption.SessionCodec, bus providers.EventBus, logger zerolog.Logger) *SessionGateway {
	return &SessionGateway{
		store:  store,
		codec:  codec,
		bus:    bus,
		logger: logger.With().Str("component", "session_gateway").Logger(),
		now:    time.Now,
	}
}

// SessionKey is the snapshot store key for a clinic day
func SessionKey(sessionDate string) string {
	return "session:" + sessionDate
}

// Save stores the session and announces it on the session channel
func (g *SessionGateway) Save(ctx context.Context, sessionDate string, patients []*entities.Patient, isEncrypted bool) error {
	ctx, span := observability.StartSpan(ctx, "SessionGateway.Save")
	defer span.End()
	observability.SetSpanAttributes(span,
		attribute.String("session.date", sessionDate),
		attribute.Int("session.patients", len(patients)),
		attribute.Bool("session.encrypted", isEncrypted),
	)

	if sessionDate == "" {
		return apperrors.NewValidationError("session date is required")
	}

	env := envelope{
		Version:      envelopeVersion,
		SessionDate:  sessionDate,
		IsEncrypted:  &isEncrypted,
		SavedAt:      g.now().UTC(),
		PatientCount: len(patients),
	}

	if isEncrypted {
		if g.codec == nil {
			err := apperrors.NewPersistError("session encryption failed", secrets.ErrKeyUnavailable)
			observability.RecordError(span, err)
			return err
		}
		plaintext, err := json.Marshal(patients)
		if err != nil {
			return apperrors.NewInternalError("failed to encode patients", err)
		}
		sealed, err := g.codec.Seal(plaintext, []byte(sessionDate))
		if err != nil {
			return apperrors.NewInternalError("failed to encrypt session", err)
		}
		env.Payload = sealed
		env.KeyVersion = g.codec.Version()
	} else {
		env.Patients = patients
		if env.Patients == nil {
			env.Patients = []*entities.Patient{}
		}
	}

	data, err := json.Marshal(env)
	if err != nil {
		return apperrors.NewInternalError("failed to encode session envelope", err)
	}
	if err := g.store.Set(ctx, SessionKey(sessionDate), data); err != nil {
		observability.RecordError(span, err)
		return err
	}

	g.publishSaved(ctx, sessionDate, len(patients))
	return nil
}

func (g *SessionGateway) publishSaved(ctx context.Context, sessionDate string, count int) {
	if g.bus == nil {
		return
	}
	event := entities.NewPatientEvent(sessionDate, entities.PatientEventTypeSessionSaved, map[string]interface{}{
		"patient_count": count,
	})
	if err := g.bus.Publish(ctx, providers.GetSessionChannel(sessionDate), event); err != nil {
		g.logger.Warn().Err(err).Str("session_date", sessionDate).Msg("failed to publish session saved event")
	}
}

// Load reads the session, decrypting it only when the envelope says it is encrypted
func (g *SessionGateway) Load(ctx context.Context, sessionDate string) (*entities.SessionSnapshot, error) {
	ctx, span := observability.StartSpan(ctx, "SessionGateway.Load")
	defer span.End()

	env, err := g.readEnvelope(ctx, sessionDate)
	if err != nil {
		return nil, err
	}

	snap := &entities.SessionSnapshot{
		SessionDate: sessionDate,
		KeyVersion:  env.KeyVersion,
		SavedAt:     env.SavedAt,
		IsEncrypted: env.IsEncrypted != nil && *env.IsEncrypted,
	}

	if snap.IsEncrypted {
		if g.codec == nil {
			return nil, apperrors.NewPersistError("session encryption failed", secrets.ErrKeyUnavailable)
		}
		plaintext, err := g.codec.Open(env.Payload, []byte(sessionDate))
		if err != nil {
			observability.RecordError(span, err)
			return nil, apperrors.NewPersistError("failed to decrypt session", err)
		}
		if err := json.Unmarshal(plaintext, &snap.Patients); err != nil {
			return nil, apperrors.NewPersistError("failed to decode session patients", err)
		}
	} else {
		snap.Patients = env.Patients
	}
	if snap.Patients == nil {
		snap.Patients = []*entities.Patient{}
	}
	return snap, nil
}

func (g *SessionGateway) readEnvelope(ctx context.Context, sessionDate string) (*envelope, error) {
	if sessionDate == "" {
		return nil, apperrors.NewValidationError("session date is required")
	}
	data, err := g.store.Get(ctx, SessionKey(sessionDate))
	if err != nil {
		return nil, err
	}
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, apperrors.NewPersistError("failed to decode session envelope", err)
	}
	return &env, nil
}

// Subscribe reloads the session every time a save is announced for it.
// The returned channel closes when ctx is done.
func (g *SessionGateway) Subscribe(ctx context.Context, sessionDate string) (<-chan *entities.SessionSnapshot, error) {
	if g.bus == nil {
		return nil, apperrors.NewInvalidStateError("session updates are not available without an event bus")
	}
	events, err := g.bus.Subscribe(ctx, providers.GetSessionChannel(sessionDate))
	if err != nil {
		return nil, apperrors.NewInternalError("failed to subscribe to session updates", err)
	}

	out := make(chan *entities.SessionSnapshot, 1)
	go func() {
		defer close(out)
		for event := range events {
			if event.EventType != entities.PatientEventTypeSessionSaved {
				continue
			}
			snap, err := g.Load(ctx, sessionDate)
			if err != nil {
				g.logger.Warn().Err(err).Str("session_date", sessionDate).Msg("failed to reload announced session")
				continue
			}
			select {
			case out <- snap:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Rekey re-seals a stored session with the current key version. It reports
// whether anything was rewritten.
func (g *SessionGateway) Rekey(ctx context.Context, sessionDate string) (bool, error) {
	if g.codec == nil {
		return false, apperrors.NewPersistError("session encryption failed", secrets.ErrKeyUnavailable)
	}
	env, err := g.readEnvelope(ctx, sessionDate)
	if err != nil {
		return false, err
	}
	if env.IsEncrypted == nil || !*env.IsEncrypted || !g.codec.NeedsRotation(env.Payload) {
		return false, nil
	}

	rotated, err := g.codec.Rotate(env.Payload, []byte(sessionDate))
	if err != nil {
		return false, apperrors.NewPersistError("failed to rotate session key", err)
	}
	env.Payload = rotated
	env.KeyVersion = g.codec.Version()

	data, err := json.Marshal(env)
	if err != nil {
		return false, apperrors.NewInternalError("failed to encode session envelope", err)
	}
	if err := g.store.Set(ctx, SessionKey(sessionDate), data); err != nil {
		return false, err
	}
	g.logger.Info().Str("session_date", sessionDate).Int("key_version", env.KeyVersion).Msg("session re-encrypted")
	return true, nil
}
