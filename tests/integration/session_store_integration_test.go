//go:build integration

package integration

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/adapters/events"
	"github.com/luknerlumina/patientflow/internal/adapters/persistence"
	"github.com/luknerlumina/patientflow/internal/adapters/storage"
	"github.com/luknerlumina/patientflow/internal/domain/providers"
	"github.com/luknerlumina/patientflow/internal/infrastructure/encryption"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

func exerciseStore(t *testing.T, store providers.SnapshotStore) {
	t.Helper()
	ctx := context.Background()
	key := persistence.SessionKey(uniqueDate())
	t.Cleanup(func() { _ = store.Delete(context.Background(), key) })

	_, err := store.Get(ctx, key)
	assert.True(t, apperrors.IsNotFound(err))

	require.NoError(t, store.Set(ctx, key, []byte("first")))
	require.NoError(t, store.Set(ctx, key, []byte("second")))

	got, err := store.Get(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), got)

	exists, err := store.Exists(ctx, key)
	require.NoError(t, err)
	assert.True(t, exists)

	require.NoError(t, store.Delete(ctx, key))
	exists, err = store.Exists(ctx, key)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRedisStoreIntegration(t *testing.T) {
	exerciseStore(t, storage.NewRedisStore(newTestRedisClient(t), time.Hour))
}

func TestPostgresStoreIntegration(t *testing.T) {
	exerciseStore(t, storage.NewPostgresStore(newTestPostgresClient(t)))
}

func TestSessionGateway_RedisMirrorIntegration(t *testing.T) {
	redisClient := newTestRedisClient(t)
	eventBus := events.NewRedisEventBus(redisClient, zerolog.Nop())
	defer eventBus.Close()

	codec, err := encryption.NewSessionCodec(testKey(1))
	require.NoError(t, err)

	store := storage.NewRedisStore(redisClient, time.Hour)
	writer := persistence.NewSessionGateway(store, codec, eventBus, zerolog.Nop())
	reader := persistence.NewSessionGateway(store, codec, eventBus, zerolog.Nop())

	date := uniqueDate()
	t.Cleanup(func() { _ = store.Delete(context.Background(), persistence.SessionKey(date)) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	snapshots, err := reader.Subscribe(ctx, date)
	require.NoError(t, err)
	time.Sleep(50 * time.Millisecond)

	patients := testPatients(date)
	require.NoError(t, writer.Save(ctx, date, patients, true))

	select {
	case snap := <-snapshots:
		require.NotNil(t, snap)
		assert.True(t, snap.IsEncrypted)
		assert.Len(t, snap.Patients, len(patients))
		assert.Equal(t, patients[0].Name, snap.Patients[0].Name)
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for mirrored session")
	}
}

func TestSessionGateway_PostgresRotationIntegration(t *testing.T) {
	store := storage.NewPostgresStore(newTestPostgresClient(t))
	ctx := context.Background()
	date := uniqueDate()
	t.Cleanup(func() { _ = store.Delete(context.Background(), persistence.SessionKey(date)) })

	oldCodec, err := encryption.NewSessionCodec(testKey(1))
	require.NoError(t, err)
	require.NoError(t, persistence.NewSessionGateway(store, oldCodec, nil, zerolog.Nop()).Save(ctx, date, testPatients(date), true))

	newCodec, err := encryption.NewSessionCodec(testKey(2), testKey(1))
	require.NoError(t, err)
	gw := persistence.NewSessionGateway(store, newCodec, nil, zerolog.Nop())

	rotated, err := gw.Rekey(ctx, date)
	require.NoError(t, err)
	assert.True(t, rotated)

	currentOnly, err := encryption.NewSessionCodec(testKey(2))
	require.NoError(t, err)
	snap, err := persistence.NewSessionGateway(store, currentOnly, nil, zerolog.Nop()).Load(ctx, date)
	require.NoError(t, err)
	assert.Len(t, snap.Patients, 3)
}
