package account

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"prepaid-gateway/internal/calls"

	"github.com/jackc/pgx/v5/pgconn"
)

// NOTE: This repository assumes the tables created by migrations/0001_init.sql:
// - accounts  (unique: pin, phone, email, referral_code)
// - plans     (append-only grants; seconds_remaining drained in place)
// - call_legs (settlement dedup; leg_id primary key)

const pgUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}

// uniqueConstraintName identifies which uniqueness constraint an insert hit,
// so provisioning can distinguish a duplicate email from a PIN collision.
func uniqueConstraintName(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return pgErr.ConstraintName
	}
	return ""
}

func scanAccount(row *sql.Row) (Account, error) {
	var a Account
	err := row.Scan(
		&a.ID,
		&a.PIN,
		&a.Phone,
		&a.Email,
		&a.WalletCents,
		&a.TotalSecondsUsed,
		&a.ReferralCode,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Account{}, ErrNotFound
		}
		return Account{}, err
	}
	return a, nil
}

const accountColumns = `id, pin, phone, email, wallet_cents, total_seconds_used, referral_code, created_at, updated_at`

func getAccountByPhone(ctx context.Context, db *sql.DB, phone string) (Account, error) {
	const q = `
SELECT ` + accountColumns + `
FROM accounts
WHERE phone = $1
`
	return scanAccount(db.QueryRowContext(ctx, q, phone))
}

func getAccountByEmail(ctx context.Context, db *sql.DB, email string) (Account, error) {
	const q = `
SELECT ` + accountColumns + `
FROM accounts
WHERE email = $1
`
	return scanAccount(db.QueryRowContext(ctx, q, email))
}

func lockAccountByPhone(ctx context.Context, tx *sql.Tx, phone string) (Account, error) {
	// Lock the account row to serialize concurrent money operations per account.
	const q = `
SELECT ` + accountColumns + `
FROM accounts
WHERE phone = $1
FOR UPDATE
`
	return scanAccount(tx.QueryRowContext(ctx, q, phone))
}

func lockAccountByEmail(ctx context.Context, tx *sql.Tx, email string) (Account, error) {
	const q = `
SELECT ` + accountColumns + `
FROM accounts
WHERE email = $1
FOR UPDATE
`
	return scanAccount(tx.QueryRowContext(ctx, q, email))
}

func insertAccount(ctx context.Context, tx *sql.Tx, a Account) error {
	const q = `
INSERT INTO accounts (
  id, pin, phone, email, wallet_cents, total_seconds_used, referral_code, created_at, updated_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := tx.ExecContext(ctx, q,
		a.ID,
		a.PIN,
		a.Phone,
		a.Email,
		a.WalletCents,
		a.TotalSecondsUsed,
		a.ReferralCode,
		a.CreatedAt,
		a.UpdatedAt,
	)
	return err
}

func setWallet(ctx context.Context, tx *sql.Tx, accountID string, walletCents int64, now time.Time) error {
	const q = `
UPDATE accounts
SET wallet_cents = $2, updated_at = $3
WHERE id = $1
`
	_, err := tx.ExecContext(ctx, q, accountID, walletCents, now)
	return err
}

// applySettlement writes the post-settlement wallet balance and bumps the
// monotonic usage counter in one statement. Callers must hold the row lock.
func applySettlement(ctx context.Context, tx *sql.Tx, accountID string, walletCents, usageDeltaSeconds int64, now time.Time) error {
	const q = `
UPDATE accounts
SET wallet_cents = $2,
    total_seconds_used = total_seconds_used + $3,
    updated_at = $4
WHERE id = $1
`
	_, err := tx.ExecContext(ctx, q, accountID, walletCents, usageDeltaSeconds, now)
	return err
}

func listAccounts(ctx context.Context, db *sql.DB) ([]Account, error) {
	const q = `
SELECT ` + accountColumns + `
FROM accounts
ORDER BY created_at
`
	rows, err := db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Account
	for rows.Next() {
		var a Account
		if err := rows.Scan(
			&a.ID,
			&a.PIN,
			&a.Phone,
			&a.Email,
			&a.WalletCents,
			&a.TotalSecondsUsed,
			&a.ReferralCode,
			&a.CreatedAt,
			&a.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const planColumns = `id, account_id, name, seconds_remaining, purchased_at, expires_at`

func scanPlans(rows *sql.Rows) ([]Plan, error) {
	defer rows.Close()
	var out []Plan
	for rows.Next() {
		var p Plan
		if err := rows.Scan(
			&p.ID,
			&p.AccountID,
			&p.Name,
			&p.SecondsRemaining,
			&p.PurchasedAt,
			&p.ExpiresAt,
		); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func listPlans(ctx context.Context, db *sql.DB, accountID string) ([]Plan, error) {
	const q = `
SELECT ` + planColumns + `
FROM plans
WHERE account_id = $1
ORDER BY expires_at
`
	rows, err := db.QueryContext(ctx, q, accountID)
	if err != nil {
		return nil, err
	}
	return scanPlans(rows)
}

// listConsumablePlansForUpdate locks the plans a settlement may drain,
// ordered so minutes closest to expiry are consumed first.
func listConsumablePlansForUpdate(ctx context.Context, tx *sql.Tx, accountID string, now time.Time) ([]Plan, error) {
	const q = `
SELECT ` + planColumns + `
FROM plans
WHERE account_id = $1 AND expires_at > $2 AND seconds_remaining > 0
ORDER BY expires_at
FOR UPDATE
`
	rows, err := tx.QueryContext(ctx, q, accountID, now)
	if err != nil {
		return nil, err
	}
	return scanPlans(rows)
}

func insertPlan(ctx context.Context, tx *sql.Tx, p Plan) error {
	const q = `
INSERT INTO plans (
  id, account_id, name, seconds_remaining, purchased_at, expires_at
) VALUES (
  $1,$2,$3,$4,$5,$6
)
`
	_, err := tx.ExecContext(ctx, q,
		p.ID,
		p.AccountID,
		p.Name,
		p.SecondsRemaining,
		p.PurchasedAt,
		p.ExpiresAt,
	)
	return err
}

func setPlanSeconds(ctx context.Context, tx *sql.Tx, planID string, secondsRemaining int64) error {
	const q = `
UPDATE plans
SET seconds_remaining = $2
WHERE id = $1
`
	_, err := tx.ExecContext(ctx, q, planID, secondsRemaining)
	return err
}

func findCallLeg(ctx context.Context, tx *sql.Tx, legID string) (calls.CallLeg, bool, error) {
	const q = `
SELECT leg_id, account_id, caller_phone, destination, status, duration_seconds,
       plan_seconds_used, wallet_cents_charged, settled_at
FROM call_legs
WHERE leg_id = $1
LIMIT 1
`
	var l calls.CallLeg
	err := tx.QueryRowContext(ctx, q, legID).Scan(
		&l.LegID,
		&l.AccountID,
		&l.CallerPhone,
		&l.Destination,
		&l.Status,
		&l.DurationSeconds,
		&l.PlanSecondsUsed,
		&l.WalletCentsCharged,
		&l.SettledAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return calls.CallLeg{}, false, nil
		}
		return calls.CallLeg{}, false, err
	}
	return l, true, nil
}

// insertCallLeg records a settled leg. Returns ErrDuplicateLeg when the leg
// was already settled by a concurrent or earlier completion event.
func insertCallLeg(ctx context.Context, tx *sql.Tx, l calls.CallLeg) error {
	const q = `
INSERT INTO call_legs (
  leg_id, account_id, caller_phone, destination, status, duration_seconds,
  plan_seconds_used, wallet_cents_charged, settled_at
) VALUES (
  $1,$2,$3,$4,$5,$6,$7,$8,$9
)
`
	_, err := tx.ExecContext(ctx, q,
		l.LegID,
		l.AccountID,
		l.CallerPhone,
		l.Destination,
		l.Status,
		l.DurationSeconds,
		l.PlanSecondsUsed,
		l.WalletCentsCharged,
		l.SettledAt,
	)
	if isUniqueViolation(err) {
		return ErrDuplicateLeg
	}
	return err
}

func listSettledLegs(ctx context.Context, db *sql.DB, accountID string, from, to time.Time) ([]calls.CallLeg, error) {
	const q = `
SELECT leg_id, account_id, caller_phone, destination, status, duration_seconds,
       plan_seconds_used, wallet_cents_charged, settled_at
FROM call_legs
WHERE account_id = $1 AND settled_at >= $2 AND settled_at < $3
ORDER BY settled_at
`
	rows, err := db.QueryContext(ctx, q, accountID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []calls.CallLeg
	for rows.Next() {
		var l calls.CallLeg
		if err := rows.Scan(
			&l.LegID,
			&l.AccountID,
			&l.CallerPhone,
			&l.Destination,
			&l.Status,
			&l.DurationSeconds,
			&l.PlanSecondsUsed,
			&l.WalletCentsCharged,
			&l.SettledAt,
		); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}
