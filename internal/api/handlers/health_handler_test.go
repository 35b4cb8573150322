package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/pressdeck/engine/internal/api/types"
	"github.com/pressdeck/engine/pkg/logger"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	if _, err := logger.Init("error", "json"); err != nil {
		panic("failed to init logger: " + err.Error())
	}
	os.Exit(m.Run())
}

func TestLiveness(t *testing.T) {
	h := NewHealthHandler()
	rec := httptest.NewRecorder()

	h.Liveness(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Success)
}

func TestReadinessAllChecksPass(t *testing.T) {
	h := NewHealthHandler(func() error { return nil }, func() error { return nil })
	rec := httptest.NewRecorder()

	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthRefreshNotImplemented(t *testing.T) {
	h := NewAuthHandler(nil)
	rec := httptest.NewRecorder()

	h.Refresh(rec, httptest.NewRequest(http.MethodPost, "/api/v1/auth/refresh", nil))

	require.Equal(t, http.StatusNotImplemented, rec.Code)
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
}

func TestReadinessFailingCheck(t *testing.T) {
	h := NewHealthHandler(func() error { return errors.New("database unreachable") })
	rec := httptest.NewRecorder()

	h.Readiness(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var resp types.APIResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.False(t, resp.Success)
	require.Equal(t, "database unreachable", resp.Error.Message)
}
