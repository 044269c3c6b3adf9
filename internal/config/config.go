package config

import (
	"crypto/aes"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// DeploymentMode selects which variant of the booking flow is active.
// It is resolved once at startup and injected into the components that
// branch on it; domain code never reads the environment directly.
type DeploymentMode int

const (
	// ModeTurnosWeb is the general citizen-facing booking flow.
	ModeTurnosWeb DeploymentMode = iota
	// ModeOralidadCivil is the civil-hearing agenda: applicants are court
	// organisms and slots carry equipment/remote-session flags.
	ModeOralidadCivil
	// ModeTurnosMPE is the public defender variant of the web flow.
	ModeTurnosMPE
)

func (m DeploymentMode) String() string {
	switch m {
	case ModeOralidadCivil:
		return "oralidad_civil"
	case ModeTurnosMPE:
		return "turnos_mpe"
	default:
		return "turnos_web"
	}
}

// Config holds application configuration.
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string

	Mode DeploymentMode

	// SecretKey feeds the credential codec. It must be at least as long
	// as the cipher IV or startup fails.
	SecretKey string

	// DraftTTL bounds how long an in-progress wizard draft survives
	// between steps.
	DraftTTL time.Duration

	// RejectionReason is the default text offered when staff reject a
	// booking.
	RejectionReason string

	ActorJWTSecret string

	MailFrom          string
	MailFromName      string
	SendGridAPIKey    string
	ReceiptExpiryDays int

	CORSAllowedOrigins []string
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		Port:              getEnv("PORT", "8080"),
		Env:               getEnv("ENV", "development"),
		LogLevel:          getEnv("LOG_LEVEL", "info"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		RedisAddr:         getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:     getEnv("REDIS_PASSWORD", ""),
		Mode:              parseMode(getEnv("SISTEMA", "turnos_web")),
		SecretKey:         getEnv("APP_SECRET", ""),
		DraftTTL:          getEnvAsDuration("DRAFT_TTL", 30*time.Minute),
		RejectionReason:   getEnv("MOTIVO_RECHAZO", "La Oficina no podrá atenderlo en el horario oportunamente otorgado"),
		ActorJWTSecret:    getEnv("ACTOR_JWT_SECRET", ""),
		MailFrom:          getEnv("MAIL_FROM", ""),
		MailFromName:      getEnv("MAIL_FROM_NAME", "Poder Judicial Santa Fe"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		ReceiptExpiryDays: getEnvAsInt("RECEIPT_EXPIRY_DAYS", 7),

		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS"),
	}
}

func getEnvAsSlice(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate rejects configurations the service must not start with.
func (c *Config) Validate() error {
	if len(c.SecretKey) < aes.BlockSize {
		return fmt.Errorf("config: APP_SECRET must be at least %d bytes for the credential cipher IV, got %d", aes.BlockSize, len(c.SecretKey))
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required")
	}
	return nil
}

func parseMode(raw string) DeploymentMode {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "oralidad_civil", "oralidad":
		return ModeOralidadCivil
	case "turnos_mpe", "mpe":
		return ModeTurnosMPE
	default:
		return ModeTurnosWeb
	}
}

// getEnv retrieves an environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
