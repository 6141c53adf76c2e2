package monitor

import "log/slog"

// SlogMonitor logs every event through a *slog.Logger, following the
// package-level slog.Info/Warn/Error call style used throughout this
// codebase's other subsystems.
type SlogMonitor struct {
	Logger *slog.Logger
}

func NewSlogMonitor(logger *slog.Logger) *SlogMonitor {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogMonitor{Logger: logger}
}

func (m *SlogMonitor) OnSessionCreated(p Profile) {
	m.Logger.Info("session created", "local_id", p.LocalID, "remote_id", p.RemoteID, "tenant_id", p.TenantID)
}

func (m *SlogMonitor) OnSessionExpired(p Profile) {
	m.Logger.Info("session expired", "local_id", p.LocalID, "remote_id", p.RemoteID)
}

func (m *SlogMonitor) OnReceiveWarning(p Profile, detail string) {
	m.Logger.Warn("protocol warning", "local_id", p.LocalID, "remote_id", p.RemoteID, "detail", detail)
}

func (m *SlogMonitor) OnHandlerError(p Profile, method string, err error) {
	m.Logger.Error("handler error", "local_id", p.LocalID, "remote_id", p.RemoteID, "method", method, "err", err)
}
