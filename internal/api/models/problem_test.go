package models_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrx-map/webrx/internal/api/models"
)

func TestProblem_Builders(t *testing.T) {
	p := models.NewProblem(models.ProblemTypeValidation, "Validation error", http.StatusBadRequest, "req_1").
		WithDetail("zoom must be no greater than 19").
		WithInstance("/tiles/a/25/0/0.png")

	assert.Equal(t, models.ProblemTypeValidation, p.Type)
	assert.Equal(t, http.StatusBadRequest, p.Status)
	assert.Equal(t, "req_1", p.TraceID)
	assert.Equal(t, "zoom must be no greater than 19", p.Detail)
	assert.Equal(t, "/tiles/a/25/0/0.png", p.Instance)
}

func TestProblem_Write(t *testing.T) {
	w := httptest.NewRecorder()
	w.Header().Set("Cache-Control", "public, max-age=86400")

	models.NewNotFound("req_2", "tile not found").WithInstance("/tiles/a/1/0/0.png").Write(w)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_2", w.Header().Get("X-Request-Id"))
	assert.Empty(t, w.Header().Get("Cache-Control"), "errors must not be cached by browsers")

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, models.ProblemTypeNotFound, body["type"])
	assert.Equal(t, "Not found", body["title"])
	assert.Equal(t, float64(404), body["status"])
	assert.Equal(t, "tile not found", body["detail"])
	assert.Equal(t, "/tiles/a/1/0/0.png", body["instance"])
	assert.Equal(t, "req_2", body["traceId"])
}

func TestProblemConstructors(t *testing.T) {
	tests := []struct {
		problem *models.Problem
		status  int
		typ     string
	}{
		{models.NewBadRequest("r", "d"), http.StatusBadRequest, models.ProblemTypeValidation},
		{models.NewNotFound("r", "d"), http.StatusNotFound, models.ProblemTypeNotFound},
		{models.NewTooManyRequests("r", "d"), http.StatusTooManyRequests, models.ProblemTypeTooManyRequests},
		{models.NewInternalError("r", "d"), http.StatusInternalServerError, models.ProblemTypeInternal},
		{models.NewServiceUnavailable("r", "d"), http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			assert.Equal(t, tt.status, tt.problem.Status)
			assert.Equal(t, tt.typ, tt.problem.Type)
			assert.Equal(t, "d", tt.problem.Detail)
		})
	}
}

func TestTimestamp_JSON(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 0, 0, time.FixedZone("CET", 3600))

	data, err := json.Marshal(models.Timestamp(at))
	require.NoError(t, err)
	assert.Equal(t, `"2026-03-01T11:30:00Z"`, string(data))

	var back models.Timestamp
	require.NoError(t, json.Unmarshal(data, &back))
	assert.True(t, at.Equal(back.Time()))

	assert.Nil(t, models.NewTimestamp(time.Time{}))
	assert.NotNil(t, models.NewTimestamp(at))
}
