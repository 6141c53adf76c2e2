package monitoring_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/monitoring"
	"github.com/ocx/meshrpc/internal/service"
	"github.com/ocx/meshrpc/internal/sessiongroup"
)

func TestServer_MethodsListsRoutedNames(t *testing.T) {
	b := service.NewBuilder()
	require.NoError(t, b.Route("echo", func(msg string) string { return msg }))
	table := b.Build()

	srv := monitoring.NewServer(table, nil)
	req := httptest.NewRequest(http.MethodGet, "/debug/methods", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Methods []string `json:"methods"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, []string{"echo"}, body.Methods)
}

func TestServer_SessionsEmptyGroupReportsNoSessions(t *testing.T) {
	srv := monitoring.NewServer(nil, sessiongroup.New())
	req := httptest.NewRequest(http.MethodGet, "/debug/sessions", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sessions []any `json:"sessions"`
		GroupLen int    `json:"group_len"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Empty(t, body.Sessions)
	require.Equal(t, 0, body.GroupLen)
}

func TestServer_HealthzReportsOkay(t *testing.T) {
	srv := monitoring.NewServer(nil, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", rec.Body.String())
}
