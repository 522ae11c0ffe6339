package account

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"prepaid-gateway/internal/calls"
	"prepaid-gateway/internal/notify"
	"prepaid-gateway/internal/pricing"
	"prepaid-gateway/pkg/utils"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("account not found")
	ErrInvalidArgument = errors.New("invalid argument")
	ErrDuplicateEmail  = errors.New("email already registered")
	ErrDuplicatePhone  = errors.New("phone already registered")
	ErrInvalidPlan     = errors.New("invalid plan")
	ErrDuplicateLeg    = errors.New("call leg already settled")
)

// provisionRetries bounds PIN/referral-code regeneration on collision.
const provisionRetries = 5

// Service owns administrative account operations: provisioning, top-ups and
// plan grants. Settlement debits live in the billing engine, which shares the
// same row-lock discipline through Ledger.
type Service struct {
	db       *sql.DB
	notifier notify.Notifier

	walletCapCents     int64
	defaultCountryCode string

	// clock is injectable for deterministic tests.
	clock func() time.Time
}

type ServiceConfig struct {
	// WalletCapCents bounds the balance after a top-up. 0 disables the cap.
	WalletCapCents     int64
	DefaultCountryCode string
}

func NewService(db *sql.DB, notifier notify.Notifier, cfg ServiceConfig) *Service {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Service{
		db:                 db,
		notifier:           notifier,
		walletCapCents:     cfg.WalletCapCents,
		defaultCountryCode: cfg.DefaultCountryCode,
		clock:              time.Now,
	}
}

type ProvisionRequest struct {
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	InitialCents int64  `json:"initial_cents"`
	PlanName     string `json:"plan_name,omitempty"`
}

type Provisioned struct {
	Account Account `json:"account"`
	Plan    *Plan   `json:"plan,omitempty"`
}

func (r ProvisionRequest) validate() error {
	if strings.TrimSpace(r.Email) == "" {
		return ErrInvalidArgument
	}
	if strings.TrimSpace(r.Phone) == "" {
		return ErrInvalidArgument
	}
	if r.InitialCents < 0 {
		return ErrInvalidArgument
	}
	return nil
}

// Provision creates a subscriber: unique PIN and referral code, optional
// starting wallet balance, optional initial plan grant.
func (s *Service) Provision(ctx context.Context, req ProvisionRequest) (Provisioned, error) {
	if err := req.validate(); err != nil {
		return Provisioned{}, err
	}

	phone := NormalizePhone(req.Phone, s.defaultCountryCode)
	if phone == "" {
		return Provisioned{}, ErrInvalidArgument
	}
	email := strings.ToLower(strings.TrimSpace(req.Email))

	var planDef pricing.PlanDefinition
	grantPlan := strings.TrimSpace(req.PlanName) != ""
	if grantPlan {
		def, ok := pricing.FindPlan(req.PlanName)
		if !ok {
			return Provisioned{}, ErrInvalidPlan
		}
		planDef = def
	}

	now := s.clock().UTC()

	var out Provisioned
	var lastErr error
	for attempt := 0; attempt < provisionRetries; attempt++ {
		pin, err := generatePIN()
		if err != nil {
			return Provisioned{}, err
		}
		code, err := generateReferralCode()
		if err != nil {
			return Provisioned{}, err
		}

		a := Account{
			ID:           uuid.NewString(),
			PIN:          pin,
			Phone:        phone,
			Email:        email,
			WalletCents:  req.InitialCents,
			ReferralCode: code,
			CreatedAt:    now,
			UpdatedAt:    now,
		}

		err = utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
			if err := insertAccount(ctx, tx, a); err != nil {
				return err
			}
			out = Provisioned{Account: a}
			if grantPlan {
				p := Plan{
					ID:               uuid.NewString(),
					AccountID:        a.ID,
					Name:             planDef.Name,
					SecondsRemaining: planDef.Seconds(),
					PurchasedAt:      now,
					ExpiresAt:        now.Add(planDef.Validity),
				}
				if err := insertPlan(ctx, tx, p); err != nil {
					return err
				}
				out.Plan = &p
			}
			return nil
		})
		if err == nil {
			s.sendProvisioned(ctx, out)
			return out, nil
		}

		switch uniqueConstraintName(err) {
		case "accounts_email_key":
			return Provisioned{}, ErrDuplicateEmail
		case "accounts_phone_key":
			return Provisioned{}, ErrDuplicatePhone
		case "accounts_pin_key", "accounts_referral_code_key":
			// Collision on a generated value; regenerate and retry.
			lastErr = err
			continue
		default:
			return Provisioned{}, err
		}
	}
	return Provisioned{}, fmt.Errorf("account: provisioning exhausted retries: %w", lastErr)
}

// TopUp credits the wallet, clamped to the configured cap.
func (s *Service) TopUp(ctx context.Context, email string, amountCents int64) (Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || amountCents <= 0 {
		return Account{}, ErrInvalidArgument
	}

	now := s.clock().UTC()

	var out Account
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		a, err := lockAccountByEmail(ctx, tx, email)
		if err != nil {
			return err
		}

		balance := a.WalletCents + amountCents
		if s.walletCapCents > 0 && balance > s.walletCapCents {
			balance = s.walletCapCents
		}
		if err := setWallet(ctx, tx, a.ID, balance, now); err != nil {
			return err
		}
		a.WalletCents = balance
		a.UpdatedAt = now
		out = a
		return nil
	})
	if err != nil {
		return Account{}, err
	}

	_ = s.notifier.Send(ctx, out.Email, "Wallet Top-up", notify.Data{
		Title: "Wallet Top-up",
		Message: fmt.Sprintf("Your account has been topped up by %s. Current balance: %s.",
			pricing.FormatCents(amountCents), pricing.FormatCents(out.WalletCents)),
		Fields: []notify.Field{
			{Label: "Balance", Value: pricing.FormatCents(out.WalletCents)},
		},
	})
	return out, nil
}

// GrantPlan appends a plan row to the account. Existing plans are untouched:
// grants accumulate as an ordered set and drain by expiry at settlement.
func (s *Service) GrantPlan(ctx context.Context, email, planName string) (Plan, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Plan{}, ErrInvalidArgument
	}
	def, ok := pricing.FindPlan(planName)
	if !ok {
		return Plan{}, ErrInvalidPlan
	}

	now := s.clock().UTC()

	var granted Plan
	var recipient string
	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		a, err := lockAccountByEmail(ctx, tx, email)
		if err != nil {
			return err
		}
		granted = Plan{
			ID:               uuid.NewString(),
			AccountID:        a.ID,
			Name:             def.Name,
			SecondsRemaining: def.Seconds(),
			PurchasedAt:      now,
			ExpiresAt:        now.Add(def.Validity),
		}
		recipient = a.Email
		return insertPlan(ctx, tx, granted)
	})
	if err != nil {
		return Plan{}, err
	}

	_ = s.notifier.Send(ctx, recipient, "Plan Activated", notify.Data{
		Title: "Plan Activated",
		Message: fmt.Sprintf("Your plan %s is now active with %d minutes.",
			def.Name, def.Minutes),
		Fields: []notify.Field{
			{Label: "Plan", Value: def.Name},
			{Label: "Minutes", Value: fmt.Sprintf("%d", def.Minutes)},
			{Label: "Expires", Value: granted.ExpiresAt.Format(time.RFC1123)},
		},
	})
	return granted, nil
}

// GetByPhone resolves a subscriber and their plans for the call flow.
func (s *Service) GetByPhone(ctx context.Context, phone string) (Account, []Plan, error) {
	if phone == "" {
		return Account{}, nil, ErrInvalidArgument
	}
	a, err := getAccountByPhone(ctx, s.db, phone)
	if err != nil {
		return Account{}, nil, err
	}
	plans, err := listPlans(ctx, s.db, a.ID)
	if err != nil {
		return Account{}, nil, err
	}
	return a, plans, nil
}

// GetByEmail resolves a subscriber for admin reporting.
func (s *Service) GetByEmail(ctx context.Context, email string) (Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return Account{}, ErrInvalidArgument
	}
	return getAccountByEmail(ctx, s.db, email)
}

// AccountWithPlans is the admin listing shape.
type AccountWithPlans struct {
	Account Account `json:"account"`
	Plans   []Plan  `json:"plans"`
}

func (s *Service) List(ctx context.Context) ([]AccountWithPlans, error) {
	accounts, err := listAccounts(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]AccountWithPlans, 0, len(accounts))
	for _, a := range accounts {
		plans, err := listPlans(ctx, s.db, a.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, AccountWithPlans{Account: a, Plans: plans})
	}
	return out, nil
}

// SettledLegs lists an account's settlements in [from, to) for reporting.
func (s *Service) SettledLegs(ctx context.Context, accountID string, from, to time.Time) ([]calls.CallLeg, error) {
	if accountID == "" {
		return nil, ErrInvalidArgument
	}
	return listSettledLegs(ctx, s.db, accountID, from, to)
}

func (s *Service) sendProvisioned(ctx context.Context, p Provisioned) {
	planName := "Wallet Only"
	planMinutes := "0"
	if p.Plan != nil {
		planName = p.Plan.Name
		planMinutes = fmt.Sprintf("%d", p.Plan.SecondsRemaining/60)
	}
	_ = s.notifier.Send(ctx, p.Account.Email, "Account Created", notify.Data{
		Title:   "Account Created",
		Message: "Your calling account is ready.",
		Fields: []notify.Field{
			{Label: "PIN", Value: p.Account.PIN},
			{Label: "Balance", Value: pricing.FormatCents(p.Account.WalletCents)},
			{Label: "Plan", Value: planName},
			{Label: "Plan Minutes", Value: planMinutes},
			{Label: "Referral Code", Value: p.Account.ReferralCode},
		},
	})
}
