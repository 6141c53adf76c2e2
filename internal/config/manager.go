package config

import (
	"os"
	"sync"

	"gopkg.in/yaml.v2"
)

// TenantsConfig holds a map of per-tenant config overrides.
type TenantsConfig struct {
	Tenants map[string]Config `yaml:"tenants"`
}

// Manager resolves the effective Config for a tenant, merging that
// tenant's overrides (session, protocol and monitor sections; transport
// stays host-wide) on top of a shared global Config.
type Manager struct {
	globalConfig  *Config
	tenantConfigs map[string]Config
	mu            sync.RWMutex
}

// NewManager loads both the master config and the tenant overrides file.
// A missing tenants file is not an error: Get then always returns the
// global config unmodified.
func NewManager(masterPath, tenantsPath string) (*Manager, error) {
	master, err := LoadConfig(masterPath)
	if err != nil {
		return nil, err
	}
	master.applyEnvOverrides()

	f, err := os.Open(tenantsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return &Manager{globalConfig: master, tenantConfigs: make(map[string]Config)}, nil
		}
		return nil, err
	}
	defer f.Close()

	var tc TenantsConfig
	if err := yaml.NewDecoder(f).Decode(&tc); err != nil {
		return nil, err
	}

	return &Manager{
		globalConfig:  master,
		tenantConfigs: tc.Tenants,
	}, nil
}

// Get returns the effective config for tenantID: the global config, with
// that tenant's session and protocol overrides applied on top where
// present, and the tenant's whole monitor section in place of the global
// one when it names a backend.
func (m *Manager) Get(tenantID string) *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()

	effective := *m.globalConfig

	if override, ok := m.tenantConfigs[tenantID]; ok {
		if override.Session.RequestTimeoutSec != 0 {
			effective.Session.RequestTimeoutSec = override.Session.RequestTimeoutSec
		}
		if override.Session.DefaultTenantID != "" {
			effective.Session.DefaultTenantID = override.Session.DefaultTenantID
		}

		if override.Protocol.Authenticated {
			effective.Protocol.Authenticated = override.Protocol.Authenticated
			effective.Protocol.AuthKeyHex = override.Protocol.AuthKeyHex
		}
		if override.Protocol.UseIntegerKey {
			effective.Protocol.UseIntegerKey = override.Protocol.UseIntegerKey
		}

		if override.Monitor.Backend != "" {
			effective.Monitor = override.Monitor
		}
	}

	return &effective
}
