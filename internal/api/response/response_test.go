package response_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webrx-map/webrx/internal/api/middleware"
	"github.com/webrx-map/webrx/internal/api/models"
	"github.com/webrx-map/webrx/internal/api/response"
)

// withRequestID runs fn behind the RequestID middleware with a fixed ID.
func withRequestID(t *testing.T, method, path string, fn http.HandlerFunc) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, http.NoBody)
	req.Header.Set(middleware.RequestIDHeader, "req_fixed")
	w := httptest.NewRecorder()
	middleware.RequestID(fn).ServeHTTP(w, req)
	return w
}

func TestJSON_IncludesRequestID(t *testing.T) {
	w := withRequestID(t, http.MethodGet, "/api/sdrs", func(w http.ResponseWriter, r *http.Request) {
		response.JSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, "req_fixed", w.Header().Get(middleware.RequestIDHeader))
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestJSON_NilData(t *testing.T) {
	w := httptest.NewRecorder()
	response.JSON(w, httptest.NewRequest(http.MethodGet, "/", http.NoBody), http.StatusAccepted, nil)

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Empty(t, w.Body.String())
	assert.Empty(t, w.Header().Get(middleware.RequestIDHeader))
}

func TestBytes(t *testing.T) {
	body := []byte{0x89, 'P', 'N', 'G'}

	w := withRequestID(t, http.MethodGet, "/tiles/a/0/0/0.png", func(w http.ResponseWriter, r *http.Request) {
		response.Bytes(w, r, "image/png", "public, max-age=86400", body)
	})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.Equal(t, "public, max-age=86400", w.Header().Get("Cache-Control"))
	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Equal(t, body, w.Body.Bytes())
}

func TestBytes_HeadOmitsBody(t *testing.T) {
	w := withRequestID(t, http.MethodHead, "/tiles/a/0/0/0.png", func(w http.ResponseWriter, r *http.Request) {
		response.Bytes(w, r, "image/png", "", []byte("data"))
	})

	assert.Equal(t, "4", w.Header().Get("Content-Length"))
	assert.Empty(t, w.Header().Get("Cache-Control"))
	assert.Empty(t, w.Body.Bytes())
}

func TestProblemHelpers(t *testing.T) {
	tests := []struct {
		name   string
		write  func(http.ResponseWriter, *http.Request)
		status int
		typ    string
	}{
		{"bad request", func(w http.ResponseWriter, r *http.Request) { response.BadRequest(w, r, "bad zoom") }, http.StatusBadRequest, models.ProblemTypeValidation},
		{"not found", func(w http.ResponseWriter, r *http.Request) { response.NotFound(w, r, "no tile") }, http.StatusNotFound, models.ProblemTypeNotFound},
		{"internal", func(w http.ResponseWriter, r *http.Request) { response.InternalError(w, r, "boom") }, http.StatusInternalServerError, models.ProblemTypeInternal},
		{"unavailable", func(w http.ResponseWriter, r *http.Request) { response.ServiceUnavailable(w, r, "no data") }, http.StatusServiceUnavailable, models.ProblemTypeUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := withRequestID(t, http.MethodGet, "/api/sdrs", tt.write)

			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, "application/problem+json", w.Header().Get("Content-Type"))

			var problem models.Problem
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &problem))
			assert.Equal(t, tt.typ, problem.Type)
			assert.Equal(t, "/api/sdrs", problem.Instance)
			assert.Equal(t, "req_fixed", problem.TraceID)
		})
	}
}
