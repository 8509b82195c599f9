package audit

import (
	"context"
	"database/sql"
)

const auditMigration = `
CREATE TABLE IF NOT EXISTS auth_events (
    id bigserial PRIMARY KEY,
    kind text NOT NULL,
    subject text NOT NULL DEFAULT '',
    client_ip text NOT NULL DEFAULT '',
    detail text NOT NULL DEFAULT '',
    occurred_at timestamptz NOT NULL
);

CREATE INDEX IF NOT EXISTS auth_events_kind_idx
ON auth_events (kind, occurred_at);
`

// RunMigration creates the audit schema. Idempotent.
func RunMigration(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, auditMigration)
	return err
}

// PostgresRecorder appends auth events to postgres.
type PostgresRecorder struct {
	db *sql.DB
}

func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

func (r *PostgresRecorder) Record(ctx context.Context, e Event) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO auth_events (kind, subject, client_ip, detail, occurred_at)
		VALUES ($1, $2, $3, $4, $5)
	`,
		e.Kind,
		e.Subject,
		e.ClientIP,
		e.Detail,
		e.At,
	)
	return err
}
