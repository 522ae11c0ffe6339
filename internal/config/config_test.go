package config

import (
	"testing"
	"time"
)

func validConfig() Config {
	return Config{
		App:   AppConfig{Env: "local", Port: 8080},
		DB:    DBConfig{Host: "localhost", Port: 5432, User: "postgres", Password: "x", Name: "gateway"},
		Redis: RedisConfig{Host: "localhost", Port: 6379},
		Auth:  AuthConfig{JWTSecret: "secret", AdminAPIKey: "adminkey"},
		Carrier: CarrierConfig{
			GatewayNumber: "+15550001111",
			PublicBaseURL: "https://gateway.example.com",
		},
		SMTP:    SMTPConfig{Host: "smtp.example.com", Port: 465, From: "noreply@example.com"},
		Billing: BillingConfig{RatePerMinuteCents: 10, DefaultCountryCode: "1"},
	}
}

func TestValidate_ReportsMissingRequired(t *testing.T) {
	c := Config{}
	if err := c.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}
}

func TestValidate_AcceptsLocalConfigAndAppliesDefaults(t *testing.T) {
	c := validConfig()
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if c.DB.SSLMode != "disable" {
		t.Fatalf("expected sslmode disable default, got %q", c.DB.SSLMode)
	}
	if c.IVR.MaxPinAttempts != 3 {
		t.Fatalf("expected default pin attempt budget, got %d", c.IVR.MaxPinAttempts)
	}
	if c.IVR.OTPWindowTTL != 5*time.Minute {
		t.Fatalf("expected default otp window, got %v", c.IVR.OTPWindowTTL)
	}
}

func TestValidate_ProductionRequiresSignatureValidation(t *testing.T) {
	c := validConfig()
	c.App.Env = "production"
	c.DB.SSLMode = "require"
	c.Auth.JWTIssuer = "gateway"
	c.Auth.JWTAudience = "admin"
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for production without signature validation")
	}

	c.Carrier.ValidateSignature = true
	c.Carrier.AuthToken = "token"
	if err := c.Validate(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
}

func TestValidate_RejectsZeroRate(t *testing.T) {
	c := validConfig()
	c.Billing.RatePerMinuteCents = 0
	if err := c.Validate(); err == nil {
		t.Fatalf("expected error for zero per-minute rate")
	}
}
