/*
Package config loads server configuration.

PRECEDENCE (lowest to highest):
  1. Defaults (applyDefaults)
  2. ticketbooth.yaml in the working directory or /etc/ticketbooth
  3. TICKET_* environment variables (TICKET_DATABASE_DSN for database.dsn)
  4. Command-line flags

KEYS:
  server.port                     HTTP port (8080)
  database.driver                 sqlite3 | pgx (sqlite3)
  database.dsn                    SQLite path or Postgres DSN (tickets.db)
  session.ttl                     Login timeout (2h)
  session.secret                  HS256 signing secret (required)
  admin.username, admin.password  Default admin kept present (admin/admin123)
  tickets.total                   Ticket cap for the summary (20000)
  correction.enforce_quota        Apply the per-employee cap to corrections
  correction.retain_zero_totals   Keep zero totals instead of deleting
  kafka.brokers, kafka.topic      Event publishing (disabled when empty)
  log.level, log.format           zap level and encoder
*/
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Session    SessionConfig
	Admin      AdminConfig
	Tickets    TicketsConfig
	Correction CorrectionConfig
	Kafka      KafkaConfig
	Log        LogConfig
}

type ServerConfig struct {
	Port int
}

type DatabaseConfig struct {
	Driver string // sqlite3, pgx
	DSN    string
}

type SessionConfig struct {
	TTL    time.Duration
	Secret string
}

type AdminConfig struct {
	Username string
	Password string
}

type TicketsConfig struct {
	Total int
}

type CorrectionConfig struct {
	EnforceQuota     bool
	RetainZeroTotals bool
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// Enabled reports whether events should be published to Kafka.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type LogConfig struct {
	Level  string // debug, info, warn, error
	Format string // json, console
	Output string // stdout, stderr, or file path
}

// Flags declares the command-line overrides on fs.
func Flags(fs *pflag.FlagSet) {
	fs.Int("port", 0, "HTTP server port")
	fs.String("db-driver", "", "database driver: sqlite3 or pgx")
	fs.String("db", "", "SQLite path (\":memory:\" for in-memory) or Postgres DSN")
	fs.String("config", "", "path to a config file")
	fs.String("log-level", "", "log level: debug, info, warn, error")
	fs.String("log-format", "", "log format: json or console")
	fs.StringSlice("kafka-brokers", nil, "Kafka brokers for sale events")
}

var flagKeys = map[string]string{
	"port":          "server.port",
	"db-driver":     "database.driver",
	"db":            "database.dsn",
	"log-level":     "log.level",
	"log-format":    "log.format",
	"kafka-brokers": "kafka.brokers",
}

// Load resolves and validates the configuration. fs may be nil; it must
// already be parsed.
func Load(fs *pflag.FlagSet) (*Config, error) {
	cfg, err := Resolve(fs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Resolve merges every source without validating the result. Tools that
// only touch the database check the sections they use.
func Resolve(fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	applyDefaults(v)

	v.SetConfigName("ticketbooth")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/ticketbooth")
	if fs != nil {
		if f := fs.Lookup("config"); f != nil && f.Value.String() != "" {
			v.SetConfigFile(f.Value.String())
		}
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix("TICKET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if fs != nil {
		for name, key := range flagKeys {
			if f := fs.Lookup(name); f != nil && f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("server.port"),
		},
		Database: DatabaseConfig{
			Driver: v.GetString("database.driver"),
			DSN:    v.GetString("database.dsn"),
		},
		Session: SessionConfig{
			TTL:    v.GetDuration("session.ttl"),
			Secret: v.GetString("session.secret"),
		},
		Admin: AdminConfig{
			Username: v.GetString("admin.username"),
			Password: v.GetString("admin.password"),
		},
		Tickets: TicketsConfig{
			Total: v.GetInt("tickets.total"),
		},
		Correction: CorrectionConfig{
			EnforceQuota:     v.GetBool("correction.enforce_quota"),
			RetainZeroTotals: v.GetBool("correction.retain_zero_totals"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(v.GetStringSlice("kafka.brokers")),
			Topic:   v.GetString("kafka.topic"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
	}
	return cfg, nil
}

func applyDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("database.driver", "sqlite3")
	v.SetDefault("database.dsn", "tickets.db")
	v.SetDefault("session.ttl", "2h")
	v.SetDefault("session.secret", "")
	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password", "admin123")
	v.SetDefault("tickets.total", 20000)
	v.SetDefault("correction.enforce_quota", false)
	v.SetDefault("correction.retain_zero_totals", false)
	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "ticket_sales")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("log.output", "stdout")
}

// Validate checks the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.Session.TTL <= 0 {
		return errors.New("session.ttl must be positive")
	}
	if c.Session.Secret == "" {
		return errors.New("session.secret is required (TICKET_SESSION_SECRET)")
	}
	if c.Admin.Username == "" || c.Admin.Password == "" {
		return errors.New("admin.username and admin.password are required")
	}
	if c.Tickets.Total <= 0 {
		return errors.New("tickets.total must be positive")
	}
	if c.Kafka.Enabled() && c.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when kafka.brokers is set")
	}
	return nil
}

func (d DatabaseConfig) Validate() error {
	switch d.Driver {
	case "sqlite3", "sqlite", "pgx", "postgres", "postgresql":
	default:
		return fmt.Errorf("database.driver %q is not supported", d.Driver)
	}
	if d.DSN == "" {
		return errors.New("database.dsn is required")
	}
	return nil
}

// splitList accepts both list values and a comma separated env string.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
