package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/gregtusar/thstrader/pkg/secrets"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Ths     ThsConfig     `mapstructure:"ths"`
	Bridge  BridgeConfig  `mapstructure:"bridge"`
	Trader  TraderConfig  `mapstructure:"trader"`
	Quote   QuoteConfig   `mapstructure:"quote"`
	Journal JournalConfig `mapstructure:"journal"`
	Logging LoggingConfig `mapstructure:"logging"`
	GCP     GCPConfig     `mapstructure:"gcp"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// ThsConfig holds what the login dialog of the THS client asks for.
type ThsConfig struct {
	Account  string `mapstructure:"account"`
	Password string `mapstructure:"password"`
	ExePath  string `mapstructure:"exe_path"`
}

type BridgeConfig struct {
	URL        string        `mapstructure:"url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	AuthType   string        `mapstructure:"auth_type"` // "none" or "jwt"
	SigningKey string        `mapstructure:"signing_key"`
	RateLimit  float64       `mapstructure:"rate_limit"` // requests per second, 0 disables
	RateBurst  int           `mapstructure:"rate_burst"`
}

type TraderConfig struct {
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RetryAttempts     int           `mapstructure:"retry_attempts"`
	RetryDelay        time.Duration `mapstructure:"retry_delay"`
}

type QuoteConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	URL            string        `mapstructure:"url"`
	ReconnectDelay time.Duration `mapstructure:"reconnect_delay"`
	MaxReconnects  int           `mapstructure:"max_reconnects"`
}

type JournalConfig struct {
	Driver     string `mapstructure:"driver"` // "memory" or "postgres"
	DSN        string `mapstructure:"dsn"`
	MaxEntries int    `mapstructure:"max_entries"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

type GCPConfig struct {
	ProjectID       string      `mapstructure:"project_id"`
	CredentialsFile string      `mapstructure:"credentials_file"`
	UseSecrets      bool        `mapstructure:"use_secrets"`
	SecretNames     SecretNames `mapstructure:"secret_names"`
}

// SecretNames maps credential fields to secret ids in Secret Manager.
type SecretNames struct {
	ThsAccount       string `mapstructure:"ths_account"`
	ThsPassword      string `mapstructure:"ths_password"`
	BridgeSigningKey string `mapstructure:"bridge_signing_key"`
	JournalDSN       string `mapstructure:"journal_dsn"`
}

func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error loading .env: %w", err)
	}

	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/thstrader")
	}

	v.SetEnvPrefix("THS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; use defaults and environment
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	overrideFromEnv(&config)

	if config.GCP.UseSecrets && config.GCP.ProjectID != "" {
		ctx := context.Background()
		logger := logrus.New()
		if err := loadSecretsFromGCP(ctx, &config, logger); err != nil {
			return nil, fmt.Errorf("error loading secrets from GCP: %w", err)
		}
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("ths.exe_path", `C:\同花顺软件\同花顺\xiadan.exe`)

	v.SetDefault("bridge.url", "http://127.0.0.1:1430")
	v.SetDefault("bridge.timeout", "30s")
	v.SetDefault("bridge.auth_type", "none")
	v.SetDefault("bridge.rate_limit", 5.0)
	v.SetDefault("bridge.rate_burst", 1)

	v.SetDefault("trader.heartbeat_interval", "60s")
	v.SetDefault("trader.retry_attempts", 3)
	v.SetDefault("trader.retry_delay", "500ms")

	v.SetDefault("quote.enabled", false)
	v.SetDefault("quote.url", "ws://127.0.0.1:1431/quotes")
	v.SetDefault("quote.reconnect_delay", "5s")
	v.SetDefault("quote.max_reconnects", 10)

	v.SetDefault("journal.driver", "memory")
	v.SetDefault("journal.dsn", "")
	v.SetDefault("journal.max_entries", 1000)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file", "")

	v.SetDefault("gcp.use_secrets", false)
	v.SetDefault("gcp.project_id", "")
	v.SetDefault("gcp.credentials_file", "")

	v.SetDefault("gcp.secret_names.ths_account", "ths-account")
	v.SetDefault("gcp.secret_names.ths_password", "ths-password")
	v.SetDefault("gcp.secret_names.bridge_signing_key", "ths-bridge-signing-key")
	v.SetDefault("gcp.secret_names.journal_dsn", "ths-journal-dsn")
}

// Validate rejects combinations the trader can't start with.
func (c *Config) Validate() error {
	switch c.Bridge.AuthType {
	case "", "none":
	case "jwt":
		if c.Bridge.SigningKey == "" {
			return fmt.Errorf("bridge.signing_key is required for jwt auth")
		}
	default:
		return fmt.Errorf("unknown bridge.auth_type %q", c.Bridge.AuthType)
	}

	switch c.Journal.Driver {
	case "", "memory":
	case "postgres":
		if c.Journal.DSN == "" {
			return fmt.Errorf("journal.dsn is required for the postgres journal")
		}
	default:
		return fmt.Errorf("unknown journal.driver %q", c.Journal.Driver)
	}

	return nil
}

func overrideFromEnv(config *Config) {
	if account := os.Getenv("THS_ACCOUNT"); account != "" {
		config.Ths.Account = account
	}
	if password := os.Getenv("THS_PASSWORD"); password != "" {
		config.Ths.Password = password
	}
	if exePath := os.Getenv("THS_EXE_PATH"); exePath != "" {
		config.Ths.ExePath = exePath
	}
	if key := os.Getenv("THS_BRIDGE_SIGNING_KEY"); key != "" {
		config.Bridge.SigningKey = key
	}
	if dsn := os.Getenv("THS_JOURNAL_DSN"); dsn != "" {
		config.Journal.DSN = dsn
	}

	if projectID := os.Getenv("GCP_PROJECT_ID"); projectID != "" {
		config.GCP.ProjectID = projectID
	}
	if useSecrets := os.Getenv("GCP_USE_SECRETS"); useSecrets == "true" {
		config.GCP.UseSecrets = true
	}
}

func loadSecretsFromGCP(ctx context.Context, config *Config, logger *logrus.Logger) error {
	store, err := secrets.NewStore(ctx, config.GCP.ProjectID, config.GCP.CredentialsFile, logger)
	if err != nil {
		return fmt.Errorf("failed to create secret store: %w", err)
	}
	defer store.Close()

	filled := applySecrets(ctx, config, store)

	logger.WithField("filled", filled).Info("Loaded secrets from GCP Secret Manager")
	return nil
}

// applySecrets only fills values that are not already set.
func applySecrets(ctx context.Context, config *Config, src secrets.Source) int {
	names := config.GCP.SecretNames
	return secrets.Fill(ctx, src, map[string]*string{
		names.ThsAccount:       &config.Ths.Account,
		names.ThsPassword:      &config.Ths.Password,
		names.BridgeSigningKey: &config.Bridge.SigningKey,
		names.JournalDSN:       &config.Journal.DSN,
	})
}
