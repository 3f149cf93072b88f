package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"

	"github.com/luknerlumina/patientflow/internal/domain/providers"
	"github.com/luknerlumina/patientflow/internal/infrastructure/clients/postgres"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

const sessionsTable = "patient_sessions"

// PostgresStore implements SnapshotStore on the patient_sessions table
type PostgresStore struct {
	client *postgres.Client
	db     *goqu.Database
	now    func() time.Time
}

// NewPostgresStore creates a new Postgres snapshot store
func NewPostgresStore(client *postgres.Client) providers.SnapshotStore {
	return &PostgresStore{
		client: client,
		db:     goqu.New("postgres", client.DB()),
		now:    time.Now,
	}
}

// Get retrieves a snapshot blob
func (s *PostgresStore) Get(ctx context.Context, key string) ([]byte, error) {
	query, args, err := s.db.From(sessionsTable).Prepared(true).
		Select("payload").
		Where(goqu.C("session_key").Eq(key)).
		ToSQL()
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build snapshot select query", err)
	}

	var payload []byte
	if err := s.client.DB().QueryRowContext(ctx, query, args...).Scan(&payload); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError("snapshot not found: " + key)
		}
		return nil, apperrors.NewPersistError("failed to read snapshot", err)
	}
	return payload, nil
}

// Set upserts a snapshot blob
func (s *PostgresStore) Set(ctx context.Context, key string, value []byte) error {
	record := goqu.Record{
		"session_key": key,
		"payload":     value,
		"updated_at":  s.now().UTC(),
	}

	query, args, err := s.db.Insert(sessionsTable).Prepared(true).
		Rows(record).
		OnConflict(goqu.DoUpdate("session_key", goqu.Record{
			"payload":    goqu.L("EXCLUDED.payload"),
			"updated_at": goqu.L("EXCLUDED.updated_at"),
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build snapshot upsert query", err)
	}

	if _, err := s.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewPersistError("failed to write snapshot", err)
	}
	return nil
}

// Delete removes a snapshot
func (s *PostgresStore) Delete(ctx context.Context, key string) error {
	query, args, err := s.db.Delete(sessionsTable).Prepared(true).
		Where(goqu.C("session_key").Eq(key)).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build snapshot delete query", err)
	}

	if _, err := s.client.DB().ExecContext(ctx, query, args...); err != nil {
		return apperrors.NewPersistError("failed to delete snapshot", err)
	}
	return nil
}

// Exists checks if a snapshot exists
func (s *PostgresStore) Exists(ctx context.Context, key string) (bool, error) {
	query, args, err := s.db.From(sessionsTable).Prepared(true).
		Select(goqu.COUNT(goqu.Star())).
		Where(goqu.C("session_key").Eq(key)).
		ToSQL()
	if err != nil {
		return false, apperrors.NewInternalError("failed to build snapshot count query", err)
	}

	var count int
	if err := s.client.DB().QueryRowContext(ctx, query, args...).Scan(&count); err != nil {
		return false, apperrors.NewPersistError("failed to check snapshot", err)
	}
	return count > 0, nil
}
