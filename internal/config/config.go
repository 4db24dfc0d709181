package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Email      EmailConfig      `yaml:"email"`
	JWT        JWTConfig        `yaml:"jwt"`
	Dispatcher DispatcherConfig `yaml:"dispatcher"`
	Leads      LeadsConfig      `yaml:"leads"`
	Log        LogConfig        `yaml:"log"`
	Scheduler  SchedulerConfig  `yaml:"scheduler"`
	Admin      AdminConfig      `yaml:"admin"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host                string `yaml:"host"`
	Port                int    `yaml:"port"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// DatabaseConfig contains PostgreSQL connection settings
type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // "postgres" or "memory"
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	Database        string `yaml:"database"`
	SSLMode         string `yaml:"ssl_mode"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime_minutes"`
	AutoMigrate     bool   `yaml:"auto_migrate"`
}

// RedisConfig contains read-cache settings
type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	CacheTTLMs int    `yaml:"cache_ttl_ms"`
}

// EmailConfig contains SendGrid settings
type EmailConfig struct {
	Enabled  bool   `yaml:"enabled"`
	APIKey   string `yaml:"api_key"`
	From     string `yaml:"from"`
	FromName string `yaml:"from_name"`
	// AlertTo receives ledger mismatch alerts.
	AlertTo string `yaml:"alert_to"`
}

// JWTConfig contains JWT token settings
type JWTConfig struct {
	Secret            string `yaml:"secret"`
	AccessTokenExpiry int    `yaml:"access_token_expiry_minutes"`
}

// DispatcherConfig contains notification worker settings
type DispatcherConfig struct {
	Workers       int `yaml:"workers"`
	QueueSize     int `yaml:"queue_size"`
	MaxRetries    int `yaml:"max_retries"`
	BaseBackoffMs int `yaml:"base_backoff_ms"`
}

// LeadsConfig contains inventory settings
type LeadsConfig struct {
	DefaultExpiryDays int `yaml:"default_expiry_days"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "text"
}

// SchedulerConfig contains cron schedule settings
type SchedulerConfig struct {
	ReconcileLedgers   string `yaml:"reconcile_ledgers"`
	ExpireLeads        string `yaml:"expire_leads"`
	RetryNotifications string `yaml:"retry_notifications"`
}

// AdminConfig seeds an administrator account at startup when both fields
// are set. Existing accounts are left untouched.
type AdminConfig struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
}

// Load reads configuration from a YAML file
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a configuration from raw YAML, then applies environment
// overrides, defaults and validation.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.overrideWithEnv()
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// overrideWithEnv overrides config values with environment variables
func (c *Config) overrideWithEnv() {
	// Database
	if val := os.Getenv("DB_DRIVER"); val != "" {
		c.Database.Driver = val
	}
	if val := os.Getenv("DB_HOST"); val != "" {
		c.Database.Host = val
	}
	if val := os.Getenv("DB_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Database.Port)
	}
	if val := os.Getenv("DB_USER"); val != "" {
		c.Database.User = val
	}
	if val := os.Getenv("DB_PASSWORD"); val != "" {
		c.Database.Password = val
	}
	if val := os.Getenv("DB_NAME"); val != "" {
		c.Database.Database = val
	}
	if val := os.Getenv("DB_SSL_MODE"); val != "" {
		c.Database.SSLMode = val
	}

	// Redis
	if val := os.Getenv("REDIS_ADDR"); val != "" {
		c.Redis.Addr = val
		c.Redis.Enabled = true
	}
	if val := os.Getenv("REDIS_PASSWORD"); val != "" {
		c.Redis.Password = val
	}

	// Email
	if val := os.Getenv("SENDGRID_API_KEY"); val != "" {
		c.Email.APIKey = val
	}
	if val := os.Getenv("EMAIL_FROM"); val != "" {
		c.Email.From = val
	}
	if val := os.Getenv("EMAIL_ALERT_TO"); val != "" {
		c.Email.AlertTo = val
	}

	// JWT
	if val := os.Getenv("JWT_SECRET"); val != "" {
		c.JWT.Secret = val
	}

	// Admin bootstrap
	if val := os.Getenv("ADMIN_EMAIL"); val != "" {
		c.Admin.Email = val
	}
	if val := os.Getenv("ADMIN_PASSWORD"); val != "" {
		c.Admin.Password = val
	}

	// Server
	if val := os.Getenv("SERVER_HOST"); val != "" {
		c.Server.Host = val
	}
	if val := os.Getenv("SERVER_PORT"); val != "" {
		fmt.Sscanf(val, "%d", &c.Server.Port)
	}

	// Log
	if val := os.Getenv("LOG_LEVEL"); val != "" {
		c.Log.Level = val
	}
	if val := os.Getenv("LOG_FORMAT"); val != "" {
		c.Log.Format = val
	}
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.SSLMode == "" {
		c.Database.SSLMode = "disable"
	}
	if c.Database.MaxOpenConns == 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns == 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Database.ConnMaxLifetime == 0 {
		c.Database.ConnMaxLifetime = 5
	}
	if c.Server.ReadTimeoutSeconds == 0 {
		c.Server.ReadTimeoutSeconds = 15
	}
	if c.Server.WriteTimeoutSeconds == 0 {
		c.Server.WriteTimeoutSeconds = 15
	}
	if c.Redis.CacheTTLMs == 0 {
		c.Redis.CacheTTLMs = 500
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "Lead Market"
	}
	if c.JWT.AccessTokenExpiry == 0 {
		c.JWT.AccessTokenExpiry = 60
	}
	if c.Dispatcher.Workers == 0 {
		c.Dispatcher.Workers = 4
	}
	if c.Dispatcher.QueueSize == 0 {
		c.Dispatcher.QueueSize = 256
	}
	if c.Dispatcher.MaxRetries == 0 {
		c.Dispatcher.MaxRetries = 3
	}
	if c.Dispatcher.BaseBackoffMs == 0 {
		c.Dispatcher.BaseBackoffMs = 1000
	}
	if c.Leads.DefaultExpiryDays == 0 {
		c.Leads.DefaultExpiryDays = 30
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Scheduler.ReconcileLedgers == "" {
		c.Scheduler.ReconcileLedgers = "0 0 3 * * *" // 3 AM UTC
	}
	if c.Scheduler.ExpireLeads == "" {
		c.Scheduler.ExpireLeads = "0 */15 * * * *" // every 15 minutes
	}
	if c.Scheduler.RetryNotifications == "" {
		c.Scheduler.RetryNotifications = "0 */5 * * * *" // every 5 minutes
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Database.Driver {
	case "postgres":
		if c.Database.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Database.User == "" {
			return fmt.Errorf("database user is required")
		}
		if c.Database.Database == "" {
			return fmt.Errorf("database name is required")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported database driver: %q", c.Database.Driver)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis addr is required when redis is enabled")
	}

	if c.Email.Enabled {
		if c.Email.APIKey == "" {
			return fmt.Errorf("sendgrid api key is required when email is enabled")
		}
		if c.Email.From == "" {
			return fmt.Errorf("email from address is required when email is enabled")
		}
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("JWT secret is required")
	}
	if len(c.JWT.Secret) < 32 {
		return fmt.Errorf("JWT secret must be at least 32 characters")
	}

	if c.Dispatcher.Workers < 0 || c.Dispatcher.QueueSize < 0 || c.Dispatcher.MaxRetries < 0 {
		return fmt.Errorf("dispatcher settings must not be negative")
	}

	return nil
}

// GetDatabaseConnectionString returns a PostgreSQL connection string
func (c *Config) GetDatabaseConnectionString() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Database.User,
		c.Database.Password,
		c.Database.Host,
		c.Database.Port,
		c.Database.Database,
		c.Database.SSLMode,
	)
}

// GetServerAddress returns the HTTP server address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Redis.CacheTTLMs) * time.Millisecond
}

func (c *Config) AccessTokenTTL() time.Duration {
	return time.Duration(c.JWT.AccessTokenExpiry) * time.Minute
}

func (c *Config) DispatcherBackoff() time.Duration {
	return time.Duration(c.Dispatcher.BaseBackoffMs) * time.Millisecond
}

func (c *Config) LeadExpiry() time.Duration {
	return time.Duration(c.Leads.DefaultExpiryDays) * 24 * time.Hour
}
