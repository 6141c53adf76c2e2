package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadConfig_ReadsYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
server:
  addr: ":9999"
transport:
  kind: "grpc"
  grpc_listen_addr: ":7777"
`), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, ":9999", cfg.Server.Addr)
	require.Equal(t, "grpc", cfg.Transport.Kind)
	require.Equal(t, ":7777", cfg.Transport.GRPCListenAddr)
}

func TestLoadConfig_MissingFileErrors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestConfig_ApplyDefaultsFillsZeroValues(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()

	require.Equal(t, ":8080", cfg.Server.Addr)
	require.Equal(t, "tcp", cfg.Transport.Kind)
	require.Equal(t, ":7070", cfg.Transport.TCPListenAddr)
	require.Equal(t, ":7071", cfg.Transport.WebSocketListenAddr)
	require.Equal(t, "/rpc", cfg.Transport.WebSocketPath)
	require.Equal(t, ":7072", cfg.Transport.GRPCListenAddr)
	require.Equal(t, 30, cfg.Session.RequestTimeoutSec)
	require.Equal(t, "slog", cfg.Monitor.Backend)
	require.Equal(t, "goroutine", cfg.EventProc.Backend)
	require.Equal(t, "meshrpc-events", cfg.EventProc.PubSubTopicID)
	require.Equal(t, "meshrpc-group-notify", cfg.SessionGroup.Channel)
}

func TestConfig_ApplyEnvOverrides(t *testing.T) {
	t.Setenv("MESHRPC_SERVER_ADDR", ":6060")
	t.Setenv("MESHRPC_TRANSPORT_KIND", "websocket")
	t.Setenv("MESHRPC_MONITOR_BACKEND", "prometheus")

	cfg := &Config{}
	cfg.applyEnvOverrides()

	require.Equal(t, ":6060", cfg.Server.Addr)
	require.Equal(t, "websocket", cfg.Transport.Kind)
	require.Equal(t, "prometheus", cfg.Monitor.Backend)
}

func TestConfig_IsProductionAndIsDevelopment(t *testing.T) {
	prod := &Config{Server: ServerConfig{Env: "production"}}
	require.True(t, prod.IsProduction())
	require.False(t, prod.IsDevelopment())

	dev := &Config{Server: ServerConfig{Env: "development"}}
	require.True(t, dev.IsDevelopment())
	require.False(t, dev.IsProduction())
}
