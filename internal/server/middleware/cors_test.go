package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func corsRequest(t *testing.T, origins []string, method, origin string) *httptest.ResponseRecorder {
	t.Helper()
	h := CORS(origins)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	req := httptest.NewRequest(method, "/api/markets", nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestCORS_AllowsConfiguredOrigin(t *testing.T) {
	rr := corsRequest(t, []string{"https://dash.example.com"}, http.MethodGet, "https://dash.example.com")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "https://dash.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "Origin", rr.Header().Get("Vary"))
	// Nothing in the API deletes; the verb surface must not advertise it.
	assert.NotContains(t, rr.Header().Get("Access-Control-Allow-Methods"), "DELETE")
}

func TestCORS_RejectsUnknownOrigin(t *testing.T) {
	rr := corsRequest(t, []string{"https://dash.example.com"}, http.MethodGet, "https://evil.example.com")

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_EmptyListAllowsAll(t *testing.T) {
	rr := corsRequest(t, nil, http.MethodGet, "https://anywhere.example.com")

	assert.Equal(t, "https://anywhere.example.com", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestCORS_PreflightShortCircuits(t *testing.T) {
	rr := corsRequest(t, nil, http.MethodOptions, "https://dash.example.com")

	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Zero(t, rr.Body.Len())
}
