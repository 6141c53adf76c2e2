package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ocx/meshrpc/internal/config"
)

func writeManagerFixtures(t *testing.T) (masterPath, tenantsPath string) {
	t.Helper()
	dir := t.TempDir()

	masterPath = filepath.Join(dir, "master.yaml")
	require.NoError(t, os.WriteFile(masterPath, []byte(`
session:
  request_timeout_sec: 30
monitor:
  backend: "slog"
`), 0o644))

	tenantsPath = filepath.Join(dir, "tenants.yaml")
	require.NoError(t, os.WriteFile(tenantsPath, []byte(`
tenants:
  acme:
    session:
      request_timeout_sec: 90
      default_tenant_id: "acme"
    monitor:
      backend: "prometheus"
      prometheus_listen_addr: ":9999"
`), 0o644))

	return masterPath, tenantsPath
}

func TestManager_GetAppliesTenantOverride(t *testing.T) {
	masterPath, tenantsPath := writeManagerFixtures(t)

	mgr, err := config.NewManager(masterPath, tenantsPath)
	require.NoError(t, err)

	effective := mgr.Get("acme")
	require.Equal(t, 90, effective.Session.RequestTimeoutSec)
	require.Equal(t, "acme", effective.Session.DefaultTenantID)
	require.Equal(t, "prometheus", effective.Monitor.Backend)
	require.Equal(t, ":9999", effective.Monitor.PrometheusListenAddr)
}

func TestManager_GetUnknownTenantReturnsGlobal(t *testing.T) {
	masterPath, tenantsPath := writeManagerFixtures(t)

	mgr, err := config.NewManager(masterPath, tenantsPath)
	require.NoError(t, err)

	effective := mgr.Get("unknown")
	require.Equal(t, 30, effective.Session.RequestTimeoutSec)
	require.Equal(t, "slog", effective.Monitor.Backend)
}

func TestManager_MissingTenantsFileIsNotAnError(t *testing.T) {
	masterPath, _ := writeManagerFixtures(t)

	mgr, err := config.NewManager(masterPath, filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)

	effective := mgr.Get("anyone")
	require.Equal(t, 30, effective.Session.RequestTimeoutSec)
}
