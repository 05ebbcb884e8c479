package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	Tracker      TrackerConfig      `yaml:"tracker"`
	Engine       EngineConfig       `yaml:"engine"`
	Notification NotificationConfig `yaml:"notification"`
	Log          LogConfig          `yaml:"log"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Security     SecurityConfig     `yaml:"security"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type DatabaseConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Name            string        `yaml:"name"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type TrackerConfig struct {
	BaseURL    string        `yaml:"base_url"`
	APIToken   string        `yaml:"api_token"`
	Timeout    time.Duration `yaml:"timeout"`
	MaxRetries int           `yaml:"max_retries"`
	RetryDelay time.Duration `yaml:"retry_delay"`
}

type EngineConfig struct {
	ExecutionTimeout time.Duration `yaml:"execution_timeout"`
}

type NotificationConfig struct {
	Email             EmailConfig      `yaml:"email"`
	AdminRecipients   []string         `yaml:"admin_recipients"`
	ManagerRecipients []string         `yaml:"manager_recipients"`
	IncidentProject   string           `yaml:"incident_project"`
	Escalation        EscalationConfig `yaml:"escalation"`
}

type EmailConfig struct {
	From     string `yaml:"from"`
	SMTPHost string `yaml:"smtp_host"`
	SMTPPort int    `yaml:"smtp_port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// EscalationConfig 失败通知后默认升级策略
type EscalationConfig struct {
	Enabled      bool `yaml:"enabled"`
	DelayMinutes int  `yaml:"delay_minutes"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"` // json, text
	Output     string `yaml:"output"` // stdout, file, both
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

type MonitoringConfig struct {
	Enabled bool          `yaml:"enabled"`
	Tracing TracingConfig `yaml:"tracing"`
}

type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	ServiceName string  `yaml:"service_name"`
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

type SecurityConfig struct {
	APIToken     string          `yaml:"api_token"`
	RateLimiting RateLimitConfig `yaml:"rate_limiting"`
}

type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requests_per_minute"`
	Burst             int  `yaml:"burst"`
}

// Load 从 viper 读取配置（viper 已在入口处初始化）
func Load() *Config {
	cfg := &Config{}

	cfg.Server.Host = viper.GetString("server.host")
	cfg.Server.Port = viper.GetInt("server.port")
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	cfg.Database.Host = viper.GetString("database.host")
	cfg.Database.Port = viper.GetInt("database.port")
	cfg.Database.User = viper.GetString("database.user")
	cfg.Database.Password = viper.GetString("database.password")
	cfg.Database.Name = viper.GetString("database.name")
	cfg.Database.MaxOpenConns = viper.GetInt("database.max_open_conns")
	cfg.Database.MaxIdleConns = viper.GetInt("database.max_idle_conns")
	cfg.Database.ConnMaxLifetime = viper.GetDuration("database.conn_max_lifetime")
	if cfg.Database.Host == "" {
		cfg.Database.Host = "localhost"
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}

	cfg.Tracker.BaseURL = viper.GetString("tracker.base_url")
	cfg.Tracker.APIToken = viper.GetString("tracker.api_token")
	cfg.Tracker.Timeout = viper.GetDuration("tracker.timeout")
	cfg.Tracker.MaxRetries = viper.GetInt("tracker.max_retries")
	cfg.Tracker.RetryDelay = viper.GetDuration("tracker.retry_delay")
	if cfg.Tracker.Timeout == 0 {
		cfg.Tracker.Timeout = 15 * time.Second
	}
	if cfg.Tracker.RetryDelay == 0 {
		cfg.Tracker.RetryDelay = 500 * time.Millisecond
	}

	cfg.Engine.ExecutionTimeout = viper.GetDuration("engine.execution_timeout")
	if cfg.Engine.ExecutionTimeout == 0 {
		cfg.Engine.ExecutionTimeout = 30 * time.Second
	}

	cfg.Notification.Email.From = viper.GetString("notification.email.from")
	cfg.Notification.Email.SMTPHost = viper.GetString("notification.email.smtp_host")
	cfg.Notification.Email.SMTPPort = viper.GetInt("notification.email.smtp_port")
	cfg.Notification.Email.Username = viper.GetString("notification.email.username")
	cfg.Notification.Email.Password = viper.GetString("notification.email.password")
	cfg.Notification.AdminRecipients = viper.GetStringSlice("notification.admin_recipients")
	cfg.Notification.ManagerRecipients = viper.GetStringSlice("notification.manager_recipients")
	cfg.Notification.IncidentProject = viper.GetString("notification.incident_project")
	cfg.Notification.Escalation.Enabled = viper.GetBool("notification.escalation.enabled")
	cfg.Notification.Escalation.DelayMinutes = viper.GetInt("notification.escalation.delay_minutes")
	if cfg.Notification.Email.SMTPPort == 0 {
		cfg.Notification.Email.SMTPPort = 587
	}
	if cfg.Notification.Escalation.DelayMinutes == 0 {
		cfg.Notification.Escalation.DelayMinutes = 15
	}

	cfg.Log.Level = viper.GetString("log.level")
	cfg.Log.Format = viper.GetString("log.format")
	cfg.Log.Output = viper.GetString("log.output")
	cfg.Log.FilePath = viper.GetString("log.file_path")
	cfg.Log.MaxSize = viper.GetInt("log.max_size")
	cfg.Log.MaxBackups = viper.GetInt("log.max_backups")
	cfg.Log.MaxAge = viper.GetInt("log.max_age")
	cfg.Log.Compress = viper.GetBool("log.compress")
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.FilePath == "" {
		cfg.Log.FilePath = "logs/autoflow.log"
	}

	cfg.Monitoring.Enabled = viper.GetBool("monitoring.enabled")
	cfg.Monitoring.Tracing.Enabled = viper.GetBool("monitoring.tracing.enabled")
	cfg.Monitoring.Tracing.ServiceName = viper.GetString("monitoring.tracing.service_name")
	cfg.Monitoring.Tracing.Endpoint = viper.GetString("monitoring.tracing.endpoint")
	cfg.Monitoring.Tracing.Insecure = viper.GetBool("monitoring.tracing.insecure")
	cfg.Monitoring.Tracing.SampleRatio = viper.GetFloat64("monitoring.tracing.sample_ratio")

	cfg.Security.APIToken = viper.GetString("security.api_token")
	cfg.Security.RateLimiting.Enabled = viper.GetBool("security.rate_limiting.enabled")
	cfg.Security.RateLimiting.RequestsPerMinute = viper.GetInt("security.rate_limiting.requests_per_minute")
	cfg.Security.RateLimiting.Burst = viper.GetInt("security.rate_limiting.burst")

	return cfg
}
