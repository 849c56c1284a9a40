// Package config loads runtime configuration for the identity broker.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	envPrefix               = "BROKER"
	defaultHTTPAddress      = "0.0.0.0:3001"
	defaultLogLevel         = "info"
	defaultDatabaseDriver   = "sqlite"
	defaultDatabaseDSN      = "identity-broker.db"
	defaultIssuer           = "identity-broker"
	defaultTokenTTL         = 30 * time.Minute
	defaultDirectoryTimeout = 10 * time.Second
	defaultAuditStream      = "identity-broker:audit"
)

var structValidator = validator.New()

// AppConfig captures runtime configuration for the broker.
type AppConfig struct {
	HTTPAddress       string        `validate:"required"`
	LogLevel          string        `validate:"omitempty,oneof=debug info warn warning error"`
	DatabaseDriver    string        `validate:"required,oneof=sqlite postgres"`
	DatabaseDSN       string        `validate:"required"`
	Issuer            string        `validate:"required"`
	ProviderSecret    string        `validate:"required"`
	SessionSecret     string        `validate:"required,nefield=ProviderSecret"`
	TokenTTL          time.Duration `validate:"gt=0"`
	LoginURL          string        `validate:"required,url"`
	LoginReturnURL    string        `validate:"required,url"`
	LogoutURL         string        `validate:"required,url"`
	DirectoryAPIURL   string        `validate:"required,url"`
	DirectoryAPIToken string
	DirectoryTimeout  time.Duration `validate:"gt=0"`
	AuditRedisAddress string        `validate:"omitempty,hostname_port"`
	AuditRedisDB      int           `validate:"gte=0"`
	AuditStream       string        `validate:"required"`
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.dsn", defaultDatabaseDSN)
	configViper.SetDefault("auth.issuer", defaultIssuer)
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("directory.timeout", defaultDirectoryTimeout)
	configViper.SetDefault("audit.redis_db", 0)
	configViper.SetDefault("audit.stream", defaultAuditStream)
}

// LoadDotEnv loads variables from the given .env files into the process
// environment without overriding variables that are already set. Missing
// files are skipped.
func LoadDotEnv(paths ...string) error {
	for _, path := range paths {
		if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", path, err)
		}
	}
	return nil
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:       configViper.GetString("http.address"),
		LogLevel:          strings.ToLower(strings.TrimSpace(configViper.GetString("log.level"))),
		DatabaseDriver:    strings.ToLower(strings.TrimSpace(configViper.GetString("database.driver"))),
		DatabaseDSN:       configViper.GetString("database.dsn"),
		Issuer:            configViper.GetString("auth.issuer"),
		ProviderSecret:    configViper.GetString("auth.provider_secret"),
		SessionSecret:     configViper.GetString("auth.session_secret"),
		TokenTTL:          configViper.GetDuration("auth.token_ttl"),
		LoginURL:          configViper.GetString("login.url"),
		LoginReturnURL:    configViper.GetString("login.return_url"),
		LogoutURL:         configViper.GetString("logout.url"),
		DirectoryAPIURL:   strings.TrimRight(configViper.GetString("directory.api_url"), "/"),
		DirectoryAPIToken: configViper.GetString("directory.api_token"),
		DirectoryTimeout:  configViper.GetDuration("directory.timeout"),
		AuditRedisAddress: configViper.GetString("audit.redis_address"),
		AuditRedisDB:      configViper.GetInt("audit.redis_db"),
		AuditStream:       configViper.GetString("audit.stream"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

var fieldKeys = map[string]string{
	"HTTPAddress":       "http.address",
	"LogLevel":          "log.level",
	"DatabaseDriver":    "database.driver",
	"DatabaseDSN":       "database.dsn",
	"Issuer":            "auth.issuer",
	"ProviderSecret":    "auth.provider_secret",
	"SessionSecret":     "auth.session_secret",
	"TokenTTL":          "auth.token_ttl",
	"LoginURL":          "login.url",
	"LoginReturnURL":    "login.return_url",
	"LogoutURL":         "logout.url",
	"DirectoryAPIURL":   "directory.api_url",
	"DirectoryTimeout":  "directory.timeout",
	"AuditRedisAddress": "audit.redis_address",
	"AuditRedisDB":      "audit.redis_db",
	"AuditStream":       "audit.stream",
}

func (c AppConfig) validate() error {
	err := structValidator.Struct(c)
	if err == nil {
		return nil
	}
	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return err
	}
	problems := make([]string, 0, len(validationErrors))
	for _, fieldErr := range validationErrors {
		key := fieldKeys[fieldErr.Field()]
		switch fieldErr.Tag() {
		case "required":
			problems = append(problems, fmt.Sprintf("%s is required", key))
		case "oneof":
			problems = append(problems, fmt.Sprintf("%s must be one of: %s", key, fieldErr.Param()))
		case "url":
			problems = append(problems, fmt.Sprintf("%s must be an absolute url", key))
		case "nefield":
			problems = append(problems, fmt.Sprintf("%s must differ from %s", key, fieldKeys[fieldErr.Param()]))
		default:
			problems = append(problems, fmt.Sprintf("%s is invalid", key))
		}
	}
	return errors.New("config: " + strings.Join(problems, "; "))
}
