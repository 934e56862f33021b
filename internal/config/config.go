// File: internal/config/config.go
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/viper"

	"github.com/xkilldash9x/consentscan/api/schemas"
)

// AppName names the config directory, data directory and env prefix.
const AppName = "consentscan"

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverNone     = "none"
)

// Report formats.
const (
	FormatJSON     = "json"
	FormatMarkdown = "markdown"
)

// Config holds the entire application configuration.
type Config struct {
	Logger   LoggerConfig   `mapstructure:"logger" yaml:"logger"`
	Browser  BrowserConfig  `mapstructure:"browser" yaml:"browser"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	Report   ReportConfig   `mapstructure:"report" yaml:"report"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// BrowserConfig holds settings for the headless browser.
type BrowserConfig struct {
	Headless    bool              `mapstructure:"headless" yaml:"headless"`
	DisableGPU  bool              `mapstructure:"disable_gpu" yaml:"disable_gpu"`
	NoSandbox   bool              `mapstructure:"no_sandbox" yaml:"no_sandbox"`
	Args        []string          `mapstructure:"args" yaml:"args"`
	ExecPath    string            `mapstructure:"exec_path" yaml:"exec_path"`
	UserAgent   string            `mapstructure:"user_agent" yaml:"user_agent"`
	NetworkIdle NetworkIdleConfig `mapstructure:"network_idle" yaml:"network_idle"`
}

// NetworkIdleConfig defines when a page counts as quiescent: at most
// MaxInflight requests outstanding for QuietPeriod.
type NetworkIdleConfig struct {
	MaxInflight int           `mapstructure:"max_inflight" yaml:"max_inflight"`
	QuietPeriod time.Duration `mapstructure:"quiet_period" yaml:"quiet_period"`
}

// ScanConfig holds crawl defaults. Request options override MaxPages and
// NavigationTimeout per scan.
type ScanConfig struct {
	MaxPages          int           `mapstructure:"max_pages" yaml:"max_pages"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
	LinksPerPage      int           `mapstructure:"links_per_page" yaml:"links_per_page"`
	RespectRobots     bool          `mapstructure:"respect_robots" yaml:"respect_robots"`
	HostDelay         time.Duration `mapstructure:"host_delay" yaml:"host_delay"`
	RulesFile         string        `mapstructure:"rules_file" yaml:"rules_file"`
	AnalyticsCookies  []string      `mapstructure:"analytics_cookies" yaml:"analytics_cookies"`
}

// Options fills the unset fields of opts from the configured defaults.
func (s ScanConfig) Options(opts schemas.ScanOptions) schemas.ScanOptions {
	if opts.MaxPages <= 0 {
		opts.MaxPages = s.MaxPages
	}
	if opts.NavigationTimeoutMs <= 0 {
		opts.NavigationTimeoutMs = int(s.NavigationTimeout / time.Millisecond)
	}
	return opts.WithDefaults()
}

// ServerConfig configures the HTTP and websocket transport.
type ServerConfig struct {
	ListenAddr         string        `mapstructure:"listen_addr" yaml:"listen_addr"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	MaxConcurrentScans int           `mapstructure:"max_concurrent_scans" yaml:"max_concurrent_scans"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`
	RetainJobs         int           `mapstructure:"retain_jobs" yaml:"retain_jobs"`
}

// DatabaseConfig selects and configures the result store.
type DatabaseConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver"`
	URL        string `mapstructure:"url" yaml:"url"`
	SQLitePath string `mapstructure:"sqlite_path" yaml:"sqlite_path"`
}

// ReportConfig controls file reports.
type ReportConfig struct {
	Format string `mapstructure:"format" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output"`
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", AppName)
	v.SetDefault("logger.log_file", "")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Browser --
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.disable_gpu", true)
	v.SetDefault("browser.no_sandbox", true)
	v.SetDefault("browser.network_idle.max_inflight", 2)
	v.SetDefault("browser.network_idle.quiet_period", "500ms")

	// -- Scan --
	v.SetDefault("scan.max_pages", schemas.DefaultMaxPages)
	v.SetDefault("scan.navigation_timeout", time.Duration(schemas.DefaultNavigationTimeoutMs)*time.Millisecond)
	v.SetDefault("scan.links_per_page", schemas.DefaultLinksPerPage)
	v.SetDefault("scan.respect_robots", false)
	v.SetDefault("scan.host_delay", "0s")

	// -- Server --
	v.SetDefault("server.listen_addr", ":8080")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:5173"})
	v.SetDefault("server.max_concurrent_scans", 4)
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.retain_jobs", 256)

	// -- Database --
	v.SetDefault("database.driver", DriverSQLite)
	v.SetDefault("database.sqlite_path", DefaultSQLitePath())

	// -- Report --
	v.SetDefault("report.format", FormatJSON)
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// DATABASE_URL is the conventional name on most hosting platforms.
	_ = v.BindEnv("database.url", "CONSENTSCAN_DATABASE_URL", "DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Scan.MaxPages <= 0 {
		return fmt.Errorf("scan.max_pages must be a positive integer")
	}
	if c.Scan.NavigationTimeout <= 0 {
		return fmt.Errorf("scan.navigation_timeout must be a positive duration")
	}
	if c.Scan.LinksPerPage <= 0 {
		return fmt.Errorf("scan.links_per_page must be a positive integer")
	}
	if c.Browser.NetworkIdle.MaxInflight < 0 {
		return fmt.Errorf("browser.network_idle.max_inflight must not be negative")
	}
	if c.Server.MaxConcurrentScans <= 0 {
		return fmt.Errorf("server.max_concurrent_scans must be a positive integer")
	}

	switch strings.ToLower(c.Database.Driver) {
	case DriverSQLite:
		if c.Database.SQLitePath == "" {
			return fmt.Errorf("database.sqlite_path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for the postgres driver")
		}
	case DriverNone:
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	switch c.Report.Format {
	case FormatJSON, FormatMarkdown:
	default:
		return fmt.Errorf("unsupported report.format %q", c.Report.Format)
	}

	switch c.Logger.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unsupported logger.format %q", c.Logger.Format)
	}
	return nil
}

// DefaultSQLitePath is the history database under the XDG data directory.
func DefaultSQLitePath() string {
	return filepath.Join(xdg.DataHome, AppName, "history.db")
}

// SearchPaths lists the directories searched for config.yaml, in order.
func SearchPaths() []string {
	return []string{".", filepath.Join(xdg.ConfigHome, AppName)}
}

// ExpandPath resolves a leading "~" to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "" {
		return "", nil
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return "", fmt.Errorf("failed to expand path %q: %w", path, err)
	}
	return expanded, nil
}
