package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the gateway process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Carrier CarrierConfig
	SMTP    SMTPConfig
	Billing BillingConfig
	IVR     IVRConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for AWS-ready posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// AdminAPIKey is the shared secret exchanged for admin tokens at login.
	AdminAPIKey string
}

type CarrierConfig struct {
	AccountSID    string
	AuthToken     string
	GatewayNumber string

	// PublicBaseURL is the externally reachable base for webhook callback URLs.
	PublicBaseURL string

	// ValidateSignature toggles X-Twilio-Signature verification on webhooks.
	// Must be enabled in production.
	ValidateSignature bool
}

type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type BillingConfig struct {
	// RatePerMinuteCents is the wallet overflow rate once plan minutes are drained.
	RatePerMinuteCents int64

	// WalletCapCents bounds admin top-ups. 0 means uncapped.
	WalletCapCents int64

	// DefaultCountryCode is prefixed to national destination numbers (e.g. "1").
	DefaultCountryCode string
}

type IVRConfig struct {
	PinEntryTTL    time.Duration
	OTPWindowTTL   time.Duration
	DestinationTTL time.Duration

	// InCallGrace pads the in-call session TTL past the dial duration cap.
	InCallGrace time.Duration

	MaxPinAttempts int

	OTPIssueLimit  int
	OTPIssueWindow time.Duration
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate() based on env.
	c.Auth.AccessTokenTTL = mustDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = mustDuration("JWT_REFRESH_TTL")
	c.Auth.AdminAPIKey = os.Getenv("ADMIN_API_KEY")

	c.Carrier.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Carrier.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")
	c.Carrier.GatewayNumber = strings.TrimSpace(os.Getenv("TWILIO_PHONE_NUMBER"))
	c.Carrier.PublicBaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("PUBLIC_BASE_URL")), "/")
	c.Carrier.ValidateSignature = mustBool("TWILIO_VALIDATE_SIGNATURE")

	c.SMTP.Host = strings.TrimSpace(os.Getenv("SMTP_HOST"))
	{
		n, err := mustInt("SMTP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.SMTP.Port = n
	}
	c.SMTP.Username = strings.TrimSpace(os.Getenv("SMTP_USERNAME"))
	c.SMTP.Password = os.Getenv("SMTP_PASSWORD")
	c.SMTP.From = strings.TrimSpace(os.Getenv("EMAIL_FROM"))

	c.Billing.RatePerMinuteCents = mustInt64(os.Getenv("RATE_PER_MINUTE_CENTS"))
	c.Billing.WalletCapCents = mustInt64(os.Getenv("WALLET_CAP_CENTS"))
	c.Billing.DefaultCountryCode = strings.TrimSpace(os.Getenv("DEFAULT_COUNTRY_CODE"))

	c.IVR.PinEntryTTL = mustDuration("IVR_PIN_ENTRY_TTL")
	c.IVR.OTPWindowTTL = mustDuration("IVR_OTP_WINDOW_TTL")
	c.IVR.DestinationTTL = mustDuration("IVR_DESTINATION_TTL")
	c.IVR.InCallGrace = mustDuration("IVR_IN_CALL_GRACE")
	c.IVR.MaxPinAttempts = optionalInt("IVR_MAX_PIN_ATTEMPTS")
	c.IVR.OTPIssueLimit = optionalInt("IVR_OTP_ISSUE_LIMIT")
	c.IVR.OTPIssueWindow = mustDuration("IVR_OTP_ISSUE_WINDOW")

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.App.Env == "" {
		errs = append(errs, errors.New("APP_ENV is required"))
	} else if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local, dev, staging, production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, fmt.Errorf("APP_PORT must be a valid port, got %d", c.App.Port))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.Port <= 0 || c.DB.Port > 65535 {
		errs = append(errs, fmt.Errorf("DB_PORT must be a valid port, got %d", c.DB.Port))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if strings.TrimSpace(c.DB.SSLMode) == "" {
		if c.IsProduction() {
			errs = append(errs, errors.New("DB_SSLMODE is required in production"))
		} else {
			// Local-friendly default; production must be explicit.
			c.DB.SSLMode = "disable"
		}
	}
	if c.DB.SSLMode != "" && !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable, require, verify-ca, verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}
	if c.Redis.Port <= 0 || c.Redis.Port > 65535 {
		errs = append(errs, fmt.Errorf("REDIS_PORT must be a valid port, got %d", c.Redis.Port))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.AdminAPIKey == "" {
		errs = append(errs, errors.New("ADMIN_API_KEY is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
		if !c.Carrier.ValidateSignature {
			errs = append(errs, errors.New("TWILIO_VALIDATE_SIGNATURE must be enabled in production"))
		}
	}

	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Carrier.GatewayNumber == "" {
		errs = append(errs, errors.New("TWILIO_PHONE_NUMBER is required"))
	}
	if c.Carrier.PublicBaseURL == "" {
		errs = append(errs, errors.New("PUBLIC_BASE_URL is required"))
	}
	if c.Carrier.ValidateSignature && c.Carrier.AuthToken == "" {
		errs = append(errs, errors.New("TWILIO_AUTH_TOKEN is required when signature validation is enabled"))
	}

	if c.SMTP.Host == "" {
		errs = append(errs, errors.New("SMTP_HOST is required"))
	}
	if c.SMTP.Port <= 0 || c.SMTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("SMTP_PORT must be a valid port, got %d", c.SMTP.Port))
	}
	if c.SMTP.From == "" {
		errs = append(errs, errors.New("EMAIL_FROM is required"))
	}

	// A zero rate makes wallet airtime computation meaningless and every
	// overflow minute free; require an explicit positive rate.
	if c.Billing.RatePerMinuteCents <= 0 {
		errs = append(errs, errors.New("RATE_PER_MINUTE_CENTS must be > 0"))
	}
	if c.Billing.WalletCapCents < 0 {
		errs = append(errs, errors.New("WALLET_CAP_CENTS must be >= 0"))
	}
	if c.Billing.DefaultCountryCode == "" {
		errs = append(errs, errors.New("DEFAULT_COUNTRY_CODE is required"))
	}

	// Session window defaults keep half-finished flows short-lived.
	if c.IVR.PinEntryTTL <= 0 {
		c.IVR.PinEntryTTL = 60 * time.Second
	}
	if c.IVR.OTPWindowTTL <= 0 {
		c.IVR.OTPWindowTTL = 5 * time.Minute
	}
	if c.IVR.DestinationTTL <= 0 {
		c.IVR.DestinationTTL = 60 * time.Second
	}
	if c.IVR.InCallGrace <= 0 {
		c.IVR.InCallGrace = 5 * time.Minute
	}
	if c.IVR.MaxPinAttempts <= 0 {
		c.IVR.MaxPinAttempts = 3
	}
	if c.IVR.OTPIssueLimit <= 0 {
		c.IVR.OTPIssueLimit = 5
	}
	if c.IVR.OTPIssueWindow <= 0 {
		c.IVR.OTPIssueWindow = 10 * time.Minute
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func (c Config) SMTPAddr() string {
	return fmt.Sprintf("%s:%d", c.SMTP.Host, c.SMTP.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalInt(key string) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0
	}
	return n
}

func mustInt64(raw string) int64 {
	v := strings.TrimSpace(raw)
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0
	}
	return n
}

func mustBool(key string) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return false
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false
	}
	return b
}

func mustDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	b.WriteString("config errors:\n")
	for _, e := range errs {
		b.WriteString("- ")
		b.WriteString(e.Error())
		b.WriteString("\n")
	}
	return errors.New(strings.TrimSpace(b.String()))
}
