package account

import (
	"context"
	"database/sql"
	"time"

	"prepaid-gateway/internal/calls"
	"prepaid-gateway/pkg/utils"
)

// Ledger exposes the transactional primitives the billing engine composes.
// All mutating methods must be called inside a WithTx unit of work while
// holding the account row lock; the lock is what serializes concurrent
// settlements and admin top-ups on the same account.
type Ledger struct {
	db *sql.DB
}

func NewLedger(db *sql.DB) *Ledger {
	return &Ledger{db: db}
}

func (l *Ledger) WithTx(ctx context.Context, fn func(ctx context.Context, tx *sql.Tx) error) error {
	return utils.WithTx(ctx, l.db, &sql.TxOptions{}, fn)
}

func (l *Ledger) LockAccountByPhone(ctx context.Context, tx *sql.Tx, phone string) (Account, error) {
	return lockAccountByPhone(ctx, tx, phone)
}

// ConsumablePlans returns the locked, unexpired, non-empty plans ordered by
// expiry ascending (minutes closest to expiry drain first).
func (l *Ledger) ConsumablePlans(ctx context.Context, tx *sql.Tx, accountID string, now time.Time) ([]Plan, error) {
	return listConsumablePlansForUpdate(ctx, tx, accountID, now)
}

func (l *Ledger) SetPlanSeconds(ctx context.Context, tx *sql.Tx, planID string, secondsRemaining int64) error {
	return setPlanSeconds(ctx, tx, planID, secondsRemaining)
}

func (l *Ledger) ApplySettlement(ctx context.Context, tx *sql.Tx, accountID string, walletCents, usageDeltaSeconds int64, now time.Time) error {
	return applySettlement(ctx, tx, accountID, walletCents, usageDeltaSeconds, now)
}

// RecordLeg inserts the settlement dedup row. Returns ErrDuplicateLeg when
// the leg has already been settled.
func (l *Ledger) RecordLeg(ctx context.Context, tx *sql.Tx, leg calls.CallLeg) error {
	return insertCallLeg(ctx, tx, leg)
}

func (l *Ledger) FindLeg(ctx context.Context, tx *sql.Tx, legID string) (calls.CallLeg, bool, error) {
	return findCallLeg(ctx, tx, legID)
}
