package handlers_test

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/api/handlers"
	"github.com/luknerlumina/patientflow/internal/application/services"
)

func newClockHandler() (*handlers.ClockHandler, *services.ClockService) {
	wall := time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC)
	clock := services.NewClockService(time.UTC, services.WithWallClock(func() time.Time { return wall }))
	return handlers.NewClockHandler(clock), clock
}

func TestClockHandler_ToggleAndAdvance(t *testing.T) {
	handler, clock := newClockHandler()

	w := httptest.NewRecorder()
	handler.ToggleSimulation(w, httptest.NewRequest(http.MethodPost, "/api/clock/toggle", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, true, body["simulated"])
	assert.Equal(t, "2:00 PM", body["display"])

	w = httptest.NewRecorder()
	handler.Advance(w, httptest.NewRequest(http.MethodPost, "/api/clock/advance", bytes.NewBufferString(`{"minutes":10}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2:10 PM", decodeBody(t, w)["display"])

	w = httptest.NewRecorder()
	handler.Advance(w, httptest.NewRequest(http.MethodPost, "/api/clock/advance", bytes.NewBufferString(`{"duration":"1h5m"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, time.Date(2026, 10, 19, 15, 15, 0, 0, time.UTC), clock.GetCurrentTime())
}

func TestClockHandler_AdvanceIgnoredInRealTime(t *testing.T) {
	handler, clock := newClockHandler()

	w := httptest.NewRecorder()
	handler.Advance(w, httptest.NewRequest(http.MethodPost, "/api/clock/advance", bytes.NewBufferString(`{"minutes":30}`)))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, decodeBody(t, w)["simulated"])
	assert.Equal(t, time.Date(2026, 10, 19, 14, 0, 0, 0, time.UTC), clock.GetCurrentTime())
}

func TestClockHandler_AdvanceRejectsOutOfRange(t *testing.T) {
	handler, clock := newClockHandler()
	handler.ToggleSimulation(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/clock/toggle", nil))
	start := clock.GetCurrentTime()

	for _, body := range []string{
		`{"duration":"-2h"}`,
		`{"minutes":-15}`,
		`{"minutes":9223372036854775807}`,
		`{"duration":"200h"}`,
	} {
		w := httptest.NewRecorder()
		handler.Advance(w, httptest.NewRequest(http.MethodPost, "/api/clock/advance", bytes.NewBufferString(body)))
		assert.Equal(t, http.StatusBadRequest, w.Code, body)
	}
	assert.Equal(t, start, clock.GetCurrentTime())
}

func TestClockHandler_SetTime(t *testing.T) {
	handler, _ := newClockHandler()

	w := httptest.NewRecorder()
	handler.SetTime(w, httptest.NewRequest(http.MethodPost, "/api/clock/set", bytes.NewBufferString(`{"time":"2026-10-19T08:30:00Z"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code, "setting time requires simulation")

	handler.ToggleSimulation(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/api/clock/toggle", nil))

	w = httptest.NewRecorder()
	handler.SetTime(w, httptest.NewRequest(http.MethodPost, "/api/clock/set", bytes.NewBufferString(`{"time":"2026-10-19T08:30:00Z"}`)))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "8:30 AM", decodeBody(t, w)["display"])

	w = httptest.NewRecorder()
	handler.Advance(w, httptest.NewRequest(http.MethodPost, "/api/clock/advance", bytes.NewBufferString(`{"duration":"soon"}`)))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
