package services_test

import (
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/application/services"
	"github.com/luknerlumina/patientflow/internal/domain/entities"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock(t time.Time) *testClock { return &testClock{now: t} }

func (c *testClock) GetCurrentTime() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	c.now = t
	c.mu.Unlock()
}

func (c *testClock) Add(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// at returns 2026-10-19 hh:mm UTC
func at(hh, mm int) time.Time {
	return time.Date(2026, 10, 19, hh, mm, 0, 0, time.UTC)
}

func newTestStore(t *testing.T, clock services.Clock) *services.PatientStore {
	t.Helper()
	waiting, err := services.NewWaitingSet([]string{"arrived", "appt-prep", "ready-for-md", "Arrived", "Checked In", "Appt Prep Started", "Ready for MD"})
	require.NoError(t, err)
	workflow := services.NewStatusWorkflow(zerolog.Nop(), nil)
	return services.NewPatientStore(clock, workflow, waiting, zerolog.Nop())
}

func input(id, name string, appt time.Time) entities.PatientInput {
	return entities.PatientInput{
		ID:              id,
		Name:            name,
		DateOfBirth:     "1970-01-01",
		AppointmentTime: appt,
		Provider:        "Dr. Lukner",
	}
}
