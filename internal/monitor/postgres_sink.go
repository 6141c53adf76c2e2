package monitor

import (
	"context"
	"database/sql"
	"time"

	_ "github.com/lib/pq" // Postgres driver
)

// PostgresAuditSink persists every event to the meshrpc_audit_log table, for
// deployments that need a durable record rather than a metrics snapshot.
// Construct db with sql.Open("postgres", dsn); the sink never owns the
// connection's lifecycle.
type PostgresAuditSink struct {
	db *sql.DB
}

func NewPostgresAuditSink(db *sql.DB) *PostgresAuditSink {
	return &PostgresAuditSink{db: db}
}

func (s *PostgresAuditSink) insert(localID, remoteID, tenantID, event, detail string) {
	_, _ = s.db.ExecContext(context.Background(),
		`INSERT INTO meshrpc_audit_log (local_id, remote_id, tenant_id, event, detail, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		localID, remoteID, tenantID, event, detail, time.Now().UTC())
}

func (s *PostgresAuditSink) OnSessionCreated(p Profile) {
	s.insert(p.LocalID, p.RemoteID, p.TenantID, "session_created", "")
}

func (s *PostgresAuditSink) OnSessionExpired(p Profile) {
	s.insert(p.LocalID, p.RemoteID, p.TenantID, "session_expired", "")
}

func (s *PostgresAuditSink) OnReceiveWarning(p Profile, detail string) {
	s.insert(p.LocalID, p.RemoteID, p.TenantID, "receive_warning", detail)
}

func (s *PostgresAuditSink) OnHandlerError(p Profile, method string, err error) {
	s.insert(p.LocalID, p.RemoteID, p.TenantID, "handler_error", method+": "+err.Error())
}
