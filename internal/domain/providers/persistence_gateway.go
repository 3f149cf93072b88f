package providers

import (
	"context"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
)

// PersistenceGateway mirrors the patient store to durable storage
type PersistenceGateway interface {
	// Save stores the session. isEncrypted controls whether the payload is encrypted
	// and is recorded on the stored envelope.
	Save(ctx context.Context, sessionDate string, patients []*entities.Patient, isEncrypted bool) error

	// Load returns the stored session, honoring its recorded encryption flag
	Load(ctx context.Context, sessionDate string) (*entities.SessionSnapshot, error)

	// Subscribe streams freshly loaded snapshots whenever the session is saved
	Subscribe(ctx context.Context, sessionDate string) (<-chan *entities.SessionSnapshot, error)
}
