// Package config loads nirvana's configuration from a YAML file, the
// environment and command-line flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/daviddao/nirvana/internal/store"
)

// DefaultConfigFileName is searched for (as nirvana.yaml) in Dir() and the
// working directory.
const DefaultConfigFileName = "nirvana"

// Config is the full configuration.
type Config struct {
	// User is the identity whose namespace commands operate on.
	User     string         `mapstructure:"user"`
	Database DatabaseConfig `mapstructure:"database"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Jira     JiraConfig     `mapstructure:"jira"`
	Gmail    GmailConfig    `mapstructure:"gmail"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type DatabaseConfig struct {
	Backend          string        `mapstructure:"backend"`
	DSN              string        `mapstructure:"dsn"`
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	Name             string        `mapstructure:"name"`
	SSLMode          string        `mapstructure:"sslmode"`
	DataDir          string        `mapstructure:"data_dir"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
}

type LLMConfig struct {
	AnthropicAPIKey string `mapstructure:"anthropic_api_key"`
	Model           string `mapstructure:"model"`
	MaxTokens       int    `mapstructure:"max_tokens"`
}

type JiraConfig struct {
	CloudID     string `mapstructure:"cloud_id"`
	AccessToken string `mapstructure:"access_token"`
	BaseURL     string `mapstructure:"base_url"`
}

type GmailConfig struct {
	// Credentials is the path to the OAuth client credentials.json; the
	// token is read from token.json beside it.
	Credentials string `mapstructure:"credentials"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Dir is nirvana's home directory, $NIRVANA_HOME or ~/.nirvana.
func Dir() string {
	if d := os.Getenv("NIRVANA_HOME"); d != "" {
		return d
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".nirvana"
	}
	return filepath.Join(home, ".nirvana")
}

// envAliases are environment variables read in addition to NIRVANA_*.
var envAliases = map[string][]string{
	"database.host":         {"DB_HOST"},
	"database.port":         {"DB_PORT"},
	"database.user":         {"DB_USER"},
	"database.password":     {"DB_PASSWORD"},
	"database.name":         {"DB_NAME"},
	"llm.anthropic_api_key": {"ANTHROPIC_API_KEY"},
}

// New returns a viper instance with defaults and environment bindings.
// Callers may bind flags to it before Load.
func New() *viper.Viper {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("NIRVANA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	keys := make([]string, 0, len(envAliases))
	for k := range envAliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		names := append([]string{"NIRVANA_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))}, envAliases[key]...)
		_ = v.BindEnv(append([]string{key}, names...)...)
	}
	return v
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("user", "")

	v.SetDefault("database.backend", store.BackendSQLite)
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "postgres")
	v.SetDefault("database.sslmode", "prefer")
	v.SetDefault("database.data_dir", filepath.Join(Dir(), "data"))
	v.SetDefault("database.statement_timeout", store.DefaultStatementTimeout)
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("llm.anthropic_api_key", "")
	v.SetDefault("llm.model", "claude-sonnet-4-5")
	v.SetDefault("llm.max_tokens", 2048)

	v.SetDefault("jira.cloud_id", "")
	v.SetDefault("jira.access_token", "")
	v.SetDefault("jira.base_url", "")

	v.SetDefault("gmail.credentials", filepath.Join(Dir(), "credentials.json"))

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "console")
}

// Load reads cfgFile, or nirvana.yaml from the standard locations when
// cfgFile is empty, and returns the merged configuration. A missing
// default config file is not an error.
func Load(v *viper.Viper, cfgFile string) (*Config, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(Dir())
		v.AddConfigPath(".")
		v.SetConfigName(DefaultConfigFileName)
		v.SetConfigType("yaml")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file %s: %w", v.ConfigFileUsed(), err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

// Validate checks the settings every command needs.
func (c *Config) Validate() error {
	d := c.Database
	switch d.Backend {
	case store.BackendSQLite:
		if d.DataDir == "" {
			return fmt.Errorf("database.data_dir is required for the sqlite backend")
		}
	case store.BackendPostgres:
		if d.DSN == "" && d.Host == "" {
			return fmt.Errorf("database.dsn or database.host is required for the postgres backend")
		}
	default:
		return fmt.Errorf("database.backend must be %q or %q, got %q", store.BackendSQLite, store.BackendPostgres, d.Backend)
	}
	if d.StatementTimeout <= 0 {
		return fmt.Errorf("database.statement_timeout must be positive")
	}
	return nil
}

// PostgresDSN returns DSN if set, otherwise a key/value connection string
// built from the individual fields.
func (d DatabaseConfig) PostgresDSN() string {
	if d.DSN != "" {
		return d.DSN
	}
	parts := []string{
		"host=" + quoteDSN(d.Host),
		fmt.Sprintf("port=%d", d.Port),
		"user=" + quoteDSN(d.User),
		"dbname=" + quoteDSN(d.Name),
		"sslmode=" + quoteDSN(d.SSLMode),
	}
	if d.Password != "" {
		parts = append(parts, "password="+quoteDSN(d.Password))
	}
	return strings.Join(parts, " ")
}

func quoteDSN(s string) string {
	if s != "" && !strings.ContainsAny(s, ` '\`) {
		return s
	}
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `'`, `\'`)
	return "'" + s + "'"
}

// Store returns the store configuration.
func (d DatabaseConfig) Store() store.Config {
	return store.Config{
		Backend:          d.Backend,
		DSN:              d.PostgresDSN(),
		DataDir:          d.DataDir,
		StatementTimeout: d.StatementTimeout,
		MaxOpenConns:     d.MaxOpenConns,
	}
}
