package config

import (
	"fmt"
	"log/slog"
	"os"
	"reflect"
	"regexp"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config captures the runtime configuration for the dashboard backend.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Redis         RedisConfig         `mapstructure:"redis"`
	Billing       BillingConfig       `mapstructure:"billing"`
	Pricing       PricingConfig       `mapstructure:"pricing"`
	Agents        AgentsConfig        `mapstructure:"agents"`
	Reporting     ReportingConfig     `mapstructure:"reporting"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Log           LogConfig           `mapstructure:"log"`
}

type ServerConfig struct {
	ListenAddr            string        `mapstructure:"listen_addr"`
	Port                  int           `mapstructure:"port"`
	BodyLimitMB           int           `mapstructure:"body_limit_mb"`
	ReadTimeout           time.Duration `mapstructure:"read_timeout"`
	IdleTimeout           time.Duration `mapstructure:"idle_timeout"`
	GracefulShutdownDelay time.Duration `mapstructure:"graceful_shutdown_delay"`
	CORSAllowOrigins      string        `mapstructure:"cors_allow_origins"`
	StaticDir             string        `mapstructure:"static_dir"`
}

type DatabaseConfig struct {
	URL             string        `mapstructure:"url"`
	RunMigrations   bool          `mapstructure:"run_migrations"`
	MigrationsDir   string        `mapstructure:"migrations_dir"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MinConns        int32         `mapstructure:"min_conns"`
	QueryTimeout    time.Duration `mapstructure:"query_timeout"`
}

// Configured reports whether a relational store was provided. Without one the
// dashboard serves mock card metrics.
func (d DatabaseConfig) Configured() bool {
	return strings.TrimSpace(d.URL) != ""
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

func (r RedisConfig) Enabled() bool {
	return strings.TrimSpace(r.URL) != ""
}

// BillingConfig controls access to the provider's organization billing API.
type BillingConfig struct {
	AdminKey       string        `mapstructure:"admin_key"`
	OrganizationID string        `mapstructure:"organization_id"`
	BaseURL        string        `mapstructure:"base_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	MaxPages       int           `mapstructure:"max_pages"`
	CacheTTL       time.Duration `mapstructure:"cache_ttl"`
	// WarmSchedule is a cron spec for refreshing cached snapshots; empty disables it.
	WarmSchedule   string        `mapstructure:"warm_schedule"`
}

// Configured reports whether an admin credential is present.
func (b BillingConfig) Configured() bool {
	return strings.TrimSpace(b.AdminKey) != ""
}

// PricingConfig holds per-million-token prices used to estimate local cost.
type PricingConfig struct {
	DefaultInput  float64      `mapstructure:"default_input"`
	DefaultOutput float64      `mapstructure:"default_output"`
	Models        []PriceEntry `mapstructure:"models"`
}

type PriceEntry struct {
	Model  string  `mapstructure:"model"`
	Input  float64 `mapstructure:"input"`
	Output float64 `mapstructure:"output"`
}

// AgentsConfig lists the pipeline agents whose recent activity is reported as health.
type AgentsConfig struct {
	Threshold time.Duration `mapstructure:"threshold"`
	List      []AgentEntry  `mapstructure:"list"`
}

type AgentEntry struct {
	Name  string `mapstructure:"name"`
	Table string `mapstructure:"table"`
}

type ReportingConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type ObservabilityConfig struct {
	OTLPEndpoint  string `mapstructure:"otlp_endpoint"`
	EnableOTLP    bool   `mapstructure:"enable_otlp"`
	EnableMetrics bool   `mapstructure:"enable_metrics"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// SlogLevel maps the configured level onto slog.
func (l LogConfig) SlogLevel() slog.Level {
	switch strings.ToLower(strings.TrimSpace(l.Level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Options controls the config loader behavior.
type Options struct {
	ConfigFile string
	EnvFile    string
}

// legacyEnv maps config keys to the environment names used by earlier deployments.
var legacyEnv = map[string][]string{
	"billing.admin_key":       {"DASHBOARD_BILLING_ADMIN_KEY", "OPENAI_ADMIN_KEY"},
	"billing.organization_id": {"DASHBOARD_BILLING_ORGANIZATION_ID", "OPENAI_ORG_ID"},
	"database.url":            {"DASHBOARD_DATABASE_URL", "SUPABASE_DB_URL"},
	"server.port":             {"DASHBOARD_SERVER_PORT", "PORT"},
	"redis.url":               {"DASHBOARD_REDIS_URL"},
	"server.static_dir":       {"DASHBOARD_SERVER_STATIC_DIR"},
}

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Load returns the merged configuration sourced from YAML and environment variables.
func Load(opts Options) (*Config, error) {
	if opts.EnvFile != "" {
		_ = godotenv.Load(opts.EnvFile)
	} else {
		_ = godotenv.Load()
	}

	v := viper.New()
	setDefaults(v)

	explicitFile := false
	if opts.ConfigFile != "" {
		v.SetConfigFile(opts.ConfigFile)
		explicitFile = true
	} else {
		if cfg := os.Getenv("DASHBOARD_CONFIG_FILE"); cfg != "" {
			v.SetConfigFile(cfg)
			explicitFile = true
		}
	}

	if !explicitFile {
		v.SetConfigName("dashboard")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("DASHBOARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, names := range legacyEnv {
		args := append([]string{key}, names...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(timeStringToDurationHook())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate normalizes values and rejects inconsistent settings.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.ListenAddr) == "" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			return fmt.Errorf("server.port must be between 1 and 65535")
		}
		c.Server.ListenAddr = fmt.Sprintf(":%d", c.Server.Port)
	}
	if c.Server.BodyLimitMB <= 0 {
		c.Server.BodyLimitMB = 1
	}
	if c.Server.GracefulShutdownDelay <= 0 {
		c.Server.GracefulShutdownDelay = 5 * time.Second
	}
	if strings.TrimSpace(c.Server.CORSAllowOrigins) == "" {
		c.Server.CORSAllowOrigins = "*"
	}

	if c.Database.RunMigrations && c.Database.MigrationsDir == "" {
		return fmt.Errorf("database.migrations_dir must be provided when run_migrations is true")
	}
	if c.Database.MaxConns < 0 {
		return fmt.Errorf("database.max_conns must be >= 0")
	}
	if c.Database.QueryTimeout <= 0 {
		c.Database.QueryTimeout = 5 * time.Second
	}
	if c.Redis.PoolSize < 0 {
		return fmt.Errorf("redis.pool_size must be >= 0")
	}

	if err := c.Billing.validate(); err != nil {
		return err
	}
	if err := c.Pricing.validate(); err != nil {
		return err
	}
	if err := c.Agents.validate(); err != nil {
		return err
	}

	reportingTZ := strings.TrimSpace(c.Reporting.Timezone)
	if reportingTZ == "" {
		reportingTZ = "UTC"
	}
	if _, err := time.LoadLocation(reportingTZ); err != nil {
		return fmt.Errorf("invalid reporting.timezone: %w", err)
	}
	c.Reporting.Timezone = reportingTZ

	switch strings.ToLower(strings.TrimSpace(c.Log.Format)) {
	case "", "text":
		c.Log.Format = "text"
	case "json":
		c.Log.Format = "json"
	default:
		return fmt.Errorf("log.format must be text or json")
	}
	return nil
}

func (b *BillingConfig) validate() error {
	b.AdminKey = strings.TrimSpace(b.AdminKey)
	b.OrganizationID = strings.TrimSpace(b.OrganizationID)
	b.BaseURL = strings.TrimRight(strings.TrimSpace(b.BaseURL), "/")
	if b.BaseURL == "" {
		b.BaseURL = "https://api.openai.com/v1"
	}
	if b.RequestTimeout <= 0 {
		b.RequestTimeout = 10 * time.Second
	}
	if b.MaxPages <= 0 {
		b.MaxPages = 1
	}
	if b.CacheTTL < 0 {
		return fmt.Errorf("billing.cache_ttl must be >= 0")
	}
	b.WarmSchedule = strings.TrimSpace(b.WarmSchedule)
	if b.WarmSchedule != "" && b.CacheTTL == 0 {
		return fmt.Errorf("billing.warm_schedule requires billing.cache_ttl > 0")
	}
	return nil
}

func (p *PricingConfig) validate() error {
	if p.DefaultInput < 0 || p.DefaultOutput < 0 {
		return fmt.Errorf("pricing.default_input and pricing.default_output must be >= 0")
	}
	for i, entry := range p.Models {
		if strings.TrimSpace(entry.Model) == "" {
			return fmt.Errorf("pricing.models[%d].model must be provided", i)
		}
		if entry.Input < 0 || entry.Output < 0 {
			return fmt.Errorf("pricing.models[%d] input and output must be >= 0", i)
		}
		p.Models[i].Model = strings.TrimSpace(entry.Model)
	}
	return nil
}

func (a *AgentsConfig) validate() error {
	if a.Threshold <= 0 {
		a.Threshold = 15 * time.Minute
	}
	if len(a.List) == 0 {
		a.List = DefaultAgents()
	}
	for i, agent := range a.List {
		if strings.TrimSpace(agent.Name) == "" {
			return fmt.Errorf("agents.list[%d].name must be provided", i)
		}
		if !tableNamePattern.MatchString(strings.TrimSpace(agent.Table)) {
			return fmt.Errorf("agents.list[%d].table must be a plain table name", i)
		}
		a.List[i].Name = strings.TrimSpace(agent.Name)
		a.List[i].Table = strings.TrimSpace(agent.Table)
	}
	return nil
}

// DefaultAgents returns the pipeline agents tracked when none are configured.
func DefaultAgents() []AgentEntry {
	return []AgentEntry{
		{Name: "Router", Table: "documents_intake"},
		{Name: "Admisor", Table: "documents_intake"},
		{Name: "Informador", Table: "documents_referral"},
		{Name: "Derivador", Table: "documents_closer"},
	}
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.listen_addr", "")
	v.SetDefault("server.port", 3001)
	v.SetDefault("server.body_limit_mb", 1)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.graceful_shutdown_delay", "5s")
	v.SetDefault("server.cors_allow_origins", "*")

	v.SetDefault("database.run_migrations", false)
	v.SetDefault("database.migrations_dir", "./migrations")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 0)
	v.SetDefault("database.max_conn_idle_time", "30s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.query_timeout", "5s")

	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("billing.base_url", "https://api.openai.com/v1")
	v.SetDefault("billing.request_timeout", "10s")
	v.SetDefault("billing.max_pages", 4)
	v.SetDefault("billing.cache_ttl", "0s")
	v.SetDefault("billing.warm_schedule", "")

	v.SetDefault("pricing.default_input", 3.0)
	v.SetDefault("pricing.default_output", 3.0)

	v.SetDefault("agents.threshold", "15m")

	v.SetDefault("reporting.timezone", "UTC")

	v.SetDefault("observability.enable_otlp", false)
	v.SetDefault("observability.enable_metrics", true)
	v.SetDefault("observability.otlp_endpoint", "http://localhost:4317")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

func timeStringToDurationHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case time.Duration:
			return v, nil
		case string:
			d, err := time.ParseDuration(v)
			if err != nil {
				return nil, err
			}
			return d, nil
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		default:
			return nil, fmt.Errorf("cannot decode %T into time.Duration", data)
		}
	}
}
