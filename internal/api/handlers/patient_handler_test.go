package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/luknerlumina/patientflow/internal/api/handlers"
	"github.com/luknerlumina/patientflow/internal/domain/entities"
	apperrors "github.com/luknerlumina/patientflow/pkg/errors"
)

// MockPatientService mocks the patient store
type MockPatientService struct {
	mock.Mock
}

func (m *MockPatientService) AddPatient(ctx context.Context, in entities.PatientInput) (*entities.Patient, error) {
	args := m.Called(ctx, in)
	if p := args.Get(0); p != nil {
		return p.(*entities.Patient), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPatientService) UpdateStatus(ctx context.Context, id string, status entities.PatientStatus) (*entities.Patient, error) {
	args := m.Called(ctx, id, status)
	if p := args.Get(0); p != nil {
		return p.(*entities.Patient), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPatientService) AssignRoom(ctx context.Context, id, room string) (*entities.Patient, error) {
	args := m.Called(ctx, id, room)
	if p := args.Get(0); p != nil {
		return p.(*entities.Patient), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPatientService) RemovePatient(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockPatientService) GetPatient(id string) (*entities.Patient, error) {
	args := m.Called(id)
	if p := args.Get(0); p != nil {
		return p.(*entities.Patient), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockPatientService) ListPatients() []*entities.Patient {
	return m.Called().Get(0).([]*entities.Patient)
}

func (m *MockPatientService) GetPatientsByStatus(status entities.PatientStatus) []*entities.Patient {
	return m.Called(status).Get(0).([]*entities.Patient)
}

func (m *MockPatientService) WaitTime(id string) (time.Duration, error) {
	args := m.Called(id)
	return args.Get(0).(time.Duration), args.Error(1)
}

func (m *MockPatientService) GetMetrics() entities.Metrics {
	return m.Called().Get(0).(entities.Metrics)
}

type degradedFlag bool

func (d degradedFlag) Degraded() bool { return bool(d) }

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestPatientHandler_AddPatient(t *testing.T) {
	t.Run("creates patient", func(t *testing.T) {
		svc := new(MockPatientService)
		handler := handlers.NewPatientHandler(svc, nil)

		created := &entities.Patient{ID: "p-1", Name: "Ada Lovelace", Provider: "Dr. Lukner", Status: entities.StatusScheduled}
		svc.On("AddPatient", mock.Anything, mock.MatchedBy(func(in entities.PatientInput) bool {
			return in.Name == "Ada Lovelace" && in.Provider == "Dr. Lukner"
		})).Return(created, nil)
		svc.On("WaitTime", "p-1").Return(12*time.Minute, nil)

		payload := `{"name":"Ada Lovelace","dob":"1815-12-10","provider":"Dr. Lukner","appointment_time":"2026-10-19T09:00:00Z"}`
		req := httptest.NewRequest(http.MethodPost, "/api/patients", bytes.NewBufferString(payload))
		w := httptest.NewRecorder()

		handler.AddPatient(w, req)

		assert.Equal(t, http.StatusCreated, w.Code)
		body := decodeBody(t, w)
		assert.Equal(t, "p-1", body["id"])
		assert.Equal(t, float64(12), body["wait_minutes"])
		svc.AssertExpectations(t)
	})

	t.Run("rejects malformed json", func(t *testing.T) {
		handler := handlers.NewPatientHandler(new(MockPatientService), nil)

		req := httptest.NewRequest(http.MethodPost, "/api/patients", bytes.NewBufferString("invalid-json"))
		w := httptest.NewRecorder()
		handler.AddPatient(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("maps validation errors to 400", func(t *testing.T) {
		svc := new(MockPatientService)
		handler := handlers.NewPatientHandler(svc, nil)
		svc.On("AddPatient", mock.Anything, mock.Anything).Return(nil, apperrors.NewValidationError("name is required"))

		req := httptest.NewRequest(http.MethodPost, "/api/patients", bytes.NewBufferString(`{}`))
		w := httptest.NewRecorder()
		handler.AddPatient(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "name is required", decodeBody(t, w)["error"])
	})
}

func TestPatientHandler_UpdateStatus(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(*MockPatientService)
		wantStatus int
	}{
		{
			name: "valid transition",
			body: `{"status":"arrived"}`,
			setup: func(m *MockPatientService) {
				m.On("UpdateStatus", mock.Anything, "p-1", entities.StatusArrived).
					Return(&entities.Patient{ID: "p-1", Status: entities.StatusArrived}, nil)
				m.On("WaitTime", "p-1").Return(time.Duration(0), nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "unknown status",
			body:       `{"status":"teleported"}`,
			setup:      func(m *MockPatientService) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "unknown patient",
			body: `{"status":"arrived"}`,
			setup: func(m *MockPatientService) {
				m.On("UpdateStatus", mock.Anything, "p-1", entities.StatusArrived).
					Return(nil, apperrors.NewNotFoundError("patient not found: p-1"))
			},
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := new(MockPatientService)
			tt.setup(svc)
			handler := handlers.NewPatientHandler(svc, nil)

			req := httptest.NewRequest(http.MethodPatch, "/api/patients/p-1/status", bytes.NewBufferString(tt.body))
			req.SetPathValue("id", "p-1")
			w := httptest.NewRecorder()
			handler.UpdateStatus(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			svc.AssertExpectations(t)
		})
	}
}

func TestPatientHandler_ListPatientsByStatus(t *testing.T) {
	svc := new(MockPatientService)
	handler := handlers.NewPatientHandler(svc, nil)

	svc.On("GetPatientsByStatus", entities.StatusExtCheckedIn).Return([]*entities.Patient{
		{ID: "p-1", Status: entities.StatusExtCheckedIn},
		{ID: "p-2", Status: entities.StatusExtCheckedIn},
	})
	svc.On("WaitTime", mock.Anything).Return(5*time.Minute, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/patients?status=Checked+In", nil)
	w := httptest.NewRecorder()
	handler.ListPatients(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(2), body["count"])
	patients := body["patients"].([]interface{})
	assert.Equal(t, "p-1", patients[0].(map[string]interface{})["id"])
	assert.Equal(t, "p-2", patients[1].(map[string]interface{})["id"])
	svc.AssertNotCalled(t, "ListPatients")
}

func TestPatientHandler_GetWaitTime(t *testing.T) {
	t.Run("reports minutes", func(t *testing.T) {
		svc := new(MockPatientService)
		svc.On("WaitTime", "p-1").Return(25*time.Minute, nil)
		handler := handlers.NewPatientHandler(svc, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/patients/p-1/wait-time", nil)
		req.SetPathValue("id", "p-1")
		w := httptest.NewRecorder()
		handler.GetWaitTime(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, float64(25), decodeBody(t, w)["wait_minutes"])
	})

	t.Run("missing appointment time is a conflict", func(t *testing.T) {
		svc := new(MockPatientService)
		svc.On("WaitTime", "p-1").Return(time.Duration(0), apperrors.NewInvalidStateError("patient has no appointment time"))
		handler := handlers.NewPatientHandler(svc, nil)

		req := httptest.NewRequest(http.MethodGet, "/api/patients/p-1/wait-time", nil)
		req.SetPathValue("id", "p-1")
		w := httptest.NewRecorder()
		handler.GetWaitTime(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}

func TestPatientHandler_GetMetrics(t *testing.T) {
	svc := new(MockPatientService)
	svc.On("GetMetrics").Return(entities.Metrics{
		TotalPatients:   4,
		WaitingPatients: 2,
		AverageWait:     20 * time.Minute,
		MaxWait:         25 * time.Minute,
	})
	handler := handlers.NewPatientHandler(svc, degradedFlag(true))

	w := httptest.NewRecorder()
	handler.GetMetrics(w, httptest.NewRequest(http.MethodGet, "/api/metrics", nil))

	require.Equal(t, http.StatusOK, w.Code)
	body := decodeBody(t, w)
	assert.Equal(t, float64(4), body["total_patients"])
	assert.Equal(t, float64(2), body["waiting_patients"])
	assert.Equal(t, float64(20), body["average_wait_minutes"])
	assert.Equal(t, float64(25), body["max_wait_minutes"])
	assert.Equal(t, true, body["persistence_degraded"])
}

func TestPatientHandler_PersistErrorIsUnavailable(t *testing.T) {
	svc := new(MockPatientService)
	svc.On("RemovePatient", mock.Anything, "p-1").Return(apperrors.NewPersistError("backend down", nil))
	handler := handlers.NewPatientHandler(svc, nil)

	req := httptest.NewRequest(http.MethodDelete, "/api/patients/p-1", nil)
	req.SetPathValue("id", "p-1")
	w := httptest.NewRecorder()
	handler.RemovePatient(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
