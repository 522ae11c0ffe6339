package audit

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresRepo appends audit events to the audit_events table. The table
// is INSERT-only; no update or delete statements exist anywhere in this
// package.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

func (r *PostgresRepo) Append(ctx context.Context, e Event) error {
	const q = `
INSERT INTO audit_events (id, type, actor_email, actor_role, ip_address, account_id, leg_id, message, metadata, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`
	if _, err := r.db.ExecContext(ctx, q,
		e.ID, string(e.Type), e.ActorEmail, e.ActorRole, e.IPAddress,
		nullable(e.AccountID), nullable(e.LegID), e.Message, nullable(e.Metadata), e.CreatedAt,
	); err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
