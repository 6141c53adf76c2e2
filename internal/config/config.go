package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"sync"

	"gopkg.in/yaml.v2"
)

// =============================================================================
// meshrpc configuration, with environment overrides
// =============================================================================

// Config is the ambient configuration for a meshrpc host: how its debug
// server listens, which ByteStream transport it accepts connections on,
// how its ProtocolAdapter archives values, session-level defaults, and
// which Monitor/EventProc/SessionGroup backends it wires up.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Transport   TransportConfig   `yaml:"transport"`
	Protocol    ProtocolConfig    `yaml:"protocol"`
	Session     SessionConfig     `yaml:"session"`
	Monitor     MonitorConfig     `yaml:"monitor"`
	EventProc   EventProcConfig   `yaml:"event_proc"`
	SessionGroup SessionGroupConfig `yaml:"session_group"`
}

// ServerConfig configures the optional gorilla/mux debug/introspection
// HTTP server (internal/monitoring), not the RPC transport itself.
type ServerConfig struct {
	Addr             string   `yaml:"addr"`
	Env              string   `yaml:"env"`
	ReadTimeoutSec   int      `yaml:"read_timeout_sec"`
	WriteTimeoutSec  int      `yaml:"write_timeout_sec"`
	IdleTimeoutSec   int      `yaml:"idle_timeout_sec"`
	ShutdownTimeoutSec int    `yaml:"shutdown_timeout_sec"`
	CORSAllowOrigins []string `yaml:"cors_allow_origins"`
}

// TransportConfig selects and configures the ByteStream a Session's
// transport slot is built against. Kind picks among the reference
// implementations in internal/bytestream; the other fields are read only
// by the matching Kind.
type TransportConfig struct {
	Kind string `yaml:"kind"` // "tcp", "websocket", "grpc", "pipe"

	TCPListenAddr string `yaml:"tcp_listen_addr"`

	WebSocketListenAddr string `yaml:"websocket_listen_addr"`
	WebSocketPath       string `yaml:"websocket_path"`

	GRPCListenAddr string `yaml:"grpc_listen_addr"`
}

// ProtocolConfig maps onto archive.Config (the reader/writer behavior
// every ProtocolAdapter constructs with) plus the optional authenticated
// framing mode.
type ProtocolConfig struct {
	UseIntegerKey        bool `yaml:"use_integer_key"`
	AllowMissingArgument bool `yaml:"allow_missing_argument"`
	AllowUnknownArgument bool `yaml:"allow_unknown_argument"`
	MergeOnRead          bool `yaml:"merge_on_read"`

	// Authenticated and AuthKeyHex are loaded and merged per tenant, but
	// cmd/server does not read them: it always builds a plain MsgpackRPC (or
	// GRPCAdapter). protocoladapter.NewAuthenticatedMsgpackRPC takes the
	// 32-byte key directly.
	Authenticated bool   `yaml:"authenticated"`
	AuthKeyHex    string `yaml:"auth_key_hex"`
}

// SessionConfig carries per-session defaults a SessionBuilder applies
// unless overridden at construction time.
type SessionConfig struct {
	RequestTimeoutSec int    `yaml:"request_timeout_sec"`
	Autoflush         bool   `yaml:"autoflush"`
	DefaultTenantID   string `yaml:"default_tenant_id"`
}

// MonitorConfig selects and configures the Monitor implementation a host
// wires into every Session it builds.
type MonitorConfig struct {
	Backend string `yaml:"backend"` // "slog", "prometheus", "postgres"

	PrometheusListenAddr string `yaml:"prometheus_listen_addr"`

	PostgresDSN string `yaml:"postgres_dsn"`
}

// EventProcConfig selects and configures the EventProc implementation
// (internal/eventproc) a host runs handler callbacks through.
type EventProcConfig struct {
	Backend string `yaml:"backend"` // "goroutine", "pubsub", "cloudtasks"

	GCPProjectID string `yaml:"gcp_project_id"`

	PubSubTopicID     string `yaml:"pubsub_topic_id"`
	PubSubOrderingKey string `yaml:"pubsub_ordering_key"`

	CloudTasksLocationID string `yaml:"cloud_tasks_location_id"`
	CloudTasksQueueID    string `yaml:"cloud_tasks_queue_id"`
	CloudTasksCallbackURL string `yaml:"cloud_tasks_callback_url"`
}

// SessionGroupConfig configures the optional RedisGroupBackend a
// sessiongroup.Group publishes notify fan-out onto.
type SessionGroupConfig struct {
	Enabled  bool   `yaml:"enabled"`
	RedisAddr string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB  int    `yaml:"redis_db"`
	Channel  string `yaml:"channel"`
}

// =============================================================================
// Singleton pattern with environment overrides
// =============================================================================

var (
	instance *Config
	once     sync.Once
)

// Get returns the singleton config instance, loaded from CONFIG_PATH (or
// "config.yaml" if unset) the first time it's called.
func Get() *Config {
	once.Do(func() {
		cfg, err := LoadConfig(getEnv("CONFIG_PATH", "config.yaml"))
		if err != nil {
			slog.Warn("config: failed to load config file, using defaults", "error", err)
		}
		if cfg == nil {
			cfg = &Config{}
		}
		cfg.applyEnvOverrides()
		instance = cfg
	})
	return instance
}

// LoadConfig loads a Config from a YAML file at path.
func LoadConfig(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// applyEnvOverrides applies environment variable overrides, then fills in
// defaults for whatever is still zero-valued.
func (c *Config) applyEnvOverrides() {
	c.Server.Addr = getEnv("MESHRPC_SERVER_ADDR", c.Server.Addr)
	c.Server.Env = getEnv("MESHRPC_ENV", c.Server.Env)
	if v := getEnvInt("MESHRPC_SERVER_READ_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ReadTimeoutSec = v
	}
	if v := getEnvInt("MESHRPC_SERVER_WRITE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.WriteTimeoutSec = v
	}
	if v := getEnvInt("MESHRPC_SERVER_IDLE_TIMEOUT_SEC", 0); v > 0 {
		c.Server.IdleTimeoutSec = v
	}
	if v := getEnvInt("MESHRPC_SERVER_SHUTDOWN_TIMEOUT_SEC", 0); v > 0 {
		c.Server.ShutdownTimeoutSec = v
	}
	if origins := getEnv("MESHRPC_CORS_ALLOW_ORIGINS", ""); origins != "" {
		c.Server.CORSAllowOrigins = splitCSV(origins)
	}

	c.Transport.Kind = getEnv("MESHRPC_TRANSPORT_KIND", c.Transport.Kind)
	c.Transport.TCPListenAddr = getEnv("MESHRPC_TCP_LISTEN_ADDR", c.Transport.TCPListenAddr)
	c.Transport.WebSocketListenAddr = getEnv("MESHRPC_WEBSOCKET_LISTEN_ADDR", c.Transport.WebSocketListenAddr)
	c.Transport.WebSocketPath = getEnv("MESHRPC_WEBSOCKET_PATH", c.Transport.WebSocketPath)
	c.Transport.GRPCListenAddr = getEnv("MESHRPC_GRPC_LISTEN_ADDR", c.Transport.GRPCListenAddr)

	c.Protocol.Authenticated = getEnvBool("MESHRPC_PROTOCOL_AUTHENTICATED", c.Protocol.Authenticated)
	c.Protocol.AuthKeyHex = getEnv("MESHRPC_PROTOCOL_AUTH_KEY_HEX", c.Protocol.AuthKeyHex)

	if v := getEnvInt("MESHRPC_SESSION_REQUEST_TIMEOUT_SEC", 0); v > 0 {
		c.Session.RequestTimeoutSec = v
	}
	c.Session.DefaultTenantID = getEnv("MESHRPC_SESSION_DEFAULT_TENANT_ID", c.Session.DefaultTenantID)

	c.Monitor.Backend = getEnv("MESHRPC_MONITOR_BACKEND", c.Monitor.Backend)
	c.Monitor.PrometheusListenAddr = getEnv("MESHRPC_PROMETHEUS_LISTEN_ADDR", c.Monitor.PrometheusListenAddr)
	c.Monitor.PostgresDSN = getEnv("MESHRPC_POSTGRES_DSN", c.Monitor.PostgresDSN)

	c.EventProc.Backend = getEnv("MESHRPC_EVENTPROC_BACKEND", c.EventProc.Backend)
	if projectID := getEnv("GCP_PROJECT_ID", ""); projectID != "" {
		c.EventProc.GCPProjectID = projectID
	}
	c.EventProc.PubSubTopicID = getEnv("MESHRPC_PUBSUB_TOPIC_ID", c.EventProc.PubSubTopicID)
	c.EventProc.CloudTasksLocationID = getEnv("MESHRPC_CLOUD_TASKS_LOCATION", c.EventProc.CloudTasksLocationID)
	c.EventProc.CloudTasksQueueID = getEnv("MESHRPC_CLOUD_TASKS_QUEUE", c.EventProc.CloudTasksQueueID)

	c.SessionGroup.Enabled = getEnvBool("MESHRPC_SESSION_GROUP_REDIS_ENABLED", c.SessionGroup.Enabled)
	c.SessionGroup.RedisAddr = getEnv("MESHRPC_REDIS_ADDR", c.SessionGroup.RedisAddr)
	c.SessionGroup.RedisPassword = getEnv("MESHRPC_REDIS_PASSWORD", c.SessionGroup.RedisPassword)
	c.SessionGroup.Channel = getEnv("MESHRPC_SESSION_GROUP_CHANNEL", c.SessionGroup.Channel)

	c.applyDefaults()
}

// applyDefaults sets sensible defaults for zero-valued config fields.
func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeoutSec == 0 {
		c.Server.ReadTimeoutSec = 15
	}
	if c.Server.WriteTimeoutSec == 0 {
		c.Server.WriteTimeoutSec = 15
	}
	if c.Server.IdleTimeoutSec == 0 {
		c.Server.IdleTimeoutSec = 60
	}
	if c.Server.ShutdownTimeoutSec == 0 {
		c.Server.ShutdownTimeoutSec = 30
	}
	if len(c.Server.CORSAllowOrigins) == 0 {
		c.Server.CORSAllowOrigins = []string{"*"}
	}

	if c.Transport.Kind == "" {
		c.Transport.Kind = "tcp"
	}
	if c.Transport.TCPListenAddr == "" {
		c.Transport.TCPListenAddr = ":7070"
	}
	if c.Transport.WebSocketListenAddr == "" {
		c.Transport.WebSocketListenAddr = ":7071"
	}
	if c.Transport.WebSocketPath == "" {
		c.Transport.WebSocketPath = "/rpc"
	}
	if c.Transport.GRPCListenAddr == "" {
		c.Transport.GRPCListenAddr = ":7072"
	}

	if c.Session.RequestTimeoutSec == 0 {
		c.Session.RequestTimeoutSec = 30
	}

	if c.Monitor.Backend == "" {
		c.Monitor.Backend = "slog"
	}
	if c.Monitor.PrometheusListenAddr == "" {
		c.Monitor.PrometheusListenAddr = ":9090"
	}

	if c.EventProc.Backend == "" {
		c.EventProc.Backend = "goroutine"
	}
	if c.EventProc.PubSubTopicID == "" {
		c.EventProc.PubSubTopicID = "meshrpc-events"
	}
	if c.EventProc.CloudTasksLocationID == "" {
		c.EventProc.CloudTasksLocationID = "us-central1"
	}
	if c.EventProc.CloudTasksQueueID == "" {
		c.EventProc.CloudTasksQueueID = "meshrpc-callbacks"
	}

	if c.SessionGroup.Channel == "" {
		c.SessionGroup.Channel = "meshrpc-group-notify"
	}
}

// =============================================================================
// Helper functions
// =============================================================================

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		return val == "true" || val == "1"
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func splitCSV(s string) []string {
	parts := make([]string, 0)
	for _, p := range strings.Split(s, ",") {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			parts = append(parts, trimmed)
		}
	}
	return parts
}

// =============================================================================
// Convenience methods
// =============================================================================

func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}
