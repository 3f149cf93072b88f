//go:build integration || integration_vault

package integration

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/domain/entities"
	"github.com/luknerlumina/patientflow/internal/infrastructure/clients/postgres"
	"github.com/luknerlumina/patientflow/internal/infrastructure/clients/redis"
	"github.com/luknerlumina/patientflow/pkg/config"
	"github.com/luknerlumina/patientflow/pkg/secrets"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	if os.Getenv("TEST_REDIS_HOST") == "" {
		t.Skip("Skipping integration test: TEST_REDIS_HOST not set")
	}

	cfg := &config.RedisConfig{
		Host:     getEnv("TEST_REDIS_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_REDIS_PORT", 6379),
		Password: getEnv("TEST_REDIS_PASSWORD", ""),
		DB:       getEnvAsInt("TEST_REDIS_DB", 0),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := redis.NewClient(ctx, cfg)
	require.NoError(t, err, "Failed to create redis client")
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func newTestPostgresClient(t *testing.T) *postgres.Client {
	t.Helper()
	if os.Getenv("TEST_DB_HOST") == "" {
		t.Skip("Skipping integration test: TEST_DB_HOST not set")
	}

	cfg := &config.DatabaseConfig{
		Host:     getEnv("TEST_DB_HOST", "localhost"),
		Port:     getEnvAsInt("TEST_DB_PORT", 5432),
		User:     getEnv("TEST_DB_USER", "postgres"),
		Password: getEnv("TEST_DB_PASSWORD", "postgres"),
		Database: getEnv("TEST_DB_NAME", "patientflow_test"),
		SSLMode:  getEnv("TEST_DB_SSLMODE", "disable"),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	client, err := postgres.NewClient(ctx, cfg)
	require.NoError(t, err, "Failed to create postgres client")
	require.NoError(t, client.EnsureSchema(ctx))
	t.Cleanup(func() { _ = client.Close() })
	return client
}

// uniqueDate returns a session date unlikely to collide with other runs
func uniqueDate() string {
	offset := time.Duration(time.Now().UnixNano()%100000) * 24 * time.Hour
	return time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC).Add(offset).Format("2006-01-02")
}

func testKey(version int) secrets.Key {
	material := make([]byte, 32)
	for i := range material {
		material[i] = byte(version*31 + i)
	}
	return secrets.Key{Version: version, Material: material}
}

func testPatients(sessionDate string) []*entities.Patient {
	day, _ := time.Parse("2006-01-02", sessionDate)
	appt := day.Add(9 * time.Hour)
	checkIn := appt.Add(-5 * time.Minute)
	var out []*entities.Patient
	for i := 0; i < 3; i++ {
		out = append(out, &entities.Patient{
			ID:              fmt.Sprintf("it-%d", i),
			Name:            fmt.Sprintf("Integration Patient %d", i),
			AppointmentTime: appt.Add(time.Duration(i) * 15 * time.Minute),
			Provider:        "Dr. Lukner",
			Status:          entities.StatusArrived,
			CheckInTime:     &checkIn,
			CreatedAt:       checkIn,
			UpdatedAt:       checkIn,
		})
	}
	return out
}

func waitForEvent(t *testing.T, ch <-chan *entities.PatientEvent) *entities.PatientEvent {
	t.Helper()
	select {
	case event := <-ch:
		require.NotNil(t, event)
		return event
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for patient event")
		return nil
	}
}
