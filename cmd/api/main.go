package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"prepaid-gateway/internal/account"
	"prepaid-gateway/internal/audit"
	"prepaid-gateway/internal/auth"
	"prepaid-gateway/internal/billing"
	"prepaid-gateway/internal/config"
	"prepaid-gateway/internal/ivr"
	"prepaid-gateway/internal/notify"
	"prepaid-gateway/internal/otp"
	"prepaid-gateway/internal/reporting"
	"prepaid-gateway/internal/session"
	"prepaid-gateway/internal/telephony"
	"prepaid-gateway/pkg/logger"
	"prepaid-gateway/pkg/utils"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local-only convenience; env vars win over .env entries.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	// Notifications: admin/settlement mail is fire-and-forget; the
	// verification code mail stays synchronous because the flow must
	// fail closed when the code cannot be delivered.
	smtp := notify.NewSMTPSender(cfg.SMTPAddr(), cfg.SMTP.Host, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
	asyncNotifier := notify.NewAsync(smtp, log, 15*time.Second)

	ledger := account.NewLedger(db)
	accounts := account.NewService(db, asyncNotifier, account.ServiceConfig{
		WalletCapCents:     cfg.Billing.WalletCapCents,
		DefaultCountryCode: cfg.Billing.DefaultCountryCode,
	})
	billingSvc := billing.NewService(ledger, asyncNotifier, cfg.Billing.RatePerMinuteCents)
	auditSvc := audit.NewService(audit.NewPostgresRepo(db))
	reportingSvc := reporting.NewService(accounts)

	sessions := session.NewStore(rdb)
	otpSvc := otp.NewService(rdb, otp.Config{
		CodeTTL:     cfg.IVR.OTPWindowTTL,
		IssueLimit:  cfg.IVR.OTPIssueLimit,
		IssueWindow: cfg.IVR.OTPIssueWindow,
	})
	flow := ivr.NewService(sessions, otpSvc, accounts, billingSvc, notify.NewCodeMailer(smtp), log, ivr.Config{
		PinEntryTTL:        cfg.IVR.PinEntryTTL,
		OTPWindowTTL:       cfg.IVR.OTPWindowTTL,
		DestinationTTL:     cfg.IVR.DestinationTTL,
		InCallGrace:        cfg.IVR.InCallGrace,
		MaxPinAttempts:     cfg.IVR.MaxPinAttempts,
		RatePerMinuteCents: cfg.Billing.RatePerMinuteCents,
		DefaultCountryCode: cfg.Billing.DefaultCountryCode,
		GatewayNumber:      cfg.Carrier.GatewayNumber,
	})

	webhooks := telephony.WebhookHandler{
		Flow:          flow,
		Audit:         auditSvc,
		PublicBaseURL: cfg.Carrier.PublicBaseURL,
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, routeDeps{
		cfg:       cfg,
		db:        db,
		rdb:       rdb,
		auth:      authManager,
		accounts:  accounts,
		reporting: reportingSvc,
		audit:     auditSvc,
		webhooks:  webhooks,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}
}
