package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Site     SiteConfig     `mapstructure:"site"`
	Webpack  WebpackConfig  `mapstructure:"webpack"`
	Dev      DevConfig      `mapstructure:"dev"`
	State    StateConfig    `mapstructure:"state"`
	Settings SettingsConfig `mapstructure:"settings"`
	Server   ServerConfig   `mapstructure:"server"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Debug    bool           `mapstructure:"debug"`
	LogLevel string         `mapstructure:"log_level"`
}

// SiteConfig describes the CMS site the bundles are built for
type SiteConfig struct {
	Root       string   `mapstructure:"root"`
	PublicPath string   `mapstructure:"public_path"`
	TempPath   string   `mapstructure:"temp_path"`
	Extensions []string `mapstructure:"extensions"` // active extensions; empty means all discovered
}

// WebpackConfig contains bundler invocation settings
type WebpackConfig struct {
	OutputPath         string        `mapstructure:"output_path"`
	Filename           string        `mapstructure:"filename"`
	Mode               string        `mapstructure:"mode"` // empty derives the mode from the command
	BuildCommand       []string      `mapstructure:"build_command"`
	ServeCommand       []string      `mapstructure:"serve_command"`
	ResolveNodeModules bool          `mapstructure:"resolve_node_modules"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// DevConfig controls how the dev server is detected at request time
type DevConfig struct {
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ProbeCacheTTL  time.Duration `mapstructure:"probe_cache_ttl"`
	VerifyLiveness bool          `mapstructure:"verify_liveness"`
}

// StateConfig selects the runtime key-value backend
type StateConfig struct {
	Backend     string `mapstructure:"backend"` // local, memory, redis, postgres
	Path        string `mapstructure:"path"`
	RedisURL    string `mapstructure:"redis_url"`
	DatabaseURL string `mapstructure:"database_url"`
}

// SettingsConfig locates the versioned configuration directory
type SettingsConfig struct {
	Dir string `mapstructure:"dir"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Address      string        `mapstructure:"address"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	// AllowedNetworks are CIDRs or IPs allowed besides loopback; empty allows all
	AllowedNetworks []string `mapstructure:"allowed_networks"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

// TracingConfig contains OpenTelemetry settings
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	Endpoint    string  `mapstructure:"endpoint"`
	ServiceName string  `mapstructure:"service_name"`
	Environment string  `mapstructure:"environment"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
}

// Load loads configuration from file and environment variables.
// An empty configFile searches the default locations.
func Load(configFile string) (*Config, error) {
	// Load .env file if it exists (for local development)
	if err := loadEnvFile(); err != nil {
		log.Debug().Err(err).Msg("No .env file loaded")
	}

	v := viper.New()
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("webpackbridge")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/webpackbridge")
	}

	setDefaults(v)

	v.AutomaticEnv()
	v.SetEnvPrefix("WEBPACKBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		log.Debug().Msg("No config file found, using environment variables and defaults")
	} else {
		log.Debug().Str("file", v.ConfigFileUsed()).Msg("Config file loaded")
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	config.Webpack.BuildCommand = splitCommand(config.Webpack.BuildCommand)
	config.Webpack.ServeCommand = splitCommand(config.Webpack.ServeCommand)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// splitCommand turns a command given as one string, as environment variables
// provide it ("yarn webpack"), into argv. Lists with several elements are
// already argv and are kept.
func splitCommand(argv []string) []string {
	if len(argv) != 1 {
		return argv
	}
	return strings.Fields(argv[0])
}

// loadEnvFile loads environment variables from .env file
func loadEnvFile() error {
	locations := []string{
		".env",
		".env.local",
	}

	for _, location := range locations {
		if _, err := os.Stat(location); err == nil {
			if err := godotenv.Load(location); err != nil {
				return fmt.Errorf("error loading .env file from %s: %w", location, err)
			}
			log.Debug().Str("file", location).Msg(".env file loaded")
			return nil
		}
	}

	return fmt.Errorf("no .env file found")
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Site defaults
	v.SetDefault("site.root", ".")
	v.SetDefault("site.public_path", "sites/default/files")
	v.SetDefault("site.temp_path", "")
	v.SetDefault("site.extensions", []string{})

	// Webpack defaults
	v.SetDefault("webpack.output_path", "public://webpack")
	v.SetDefault("webpack.filename", "[name].bundle.js")
	v.SetDefault("webpack.mode", "")
	v.SetDefault("webpack.build_command", []string{"yarn", "webpack"})
	v.SetDefault("webpack.serve_command", []string{"yarn", "webpack-dev-server"})
	v.SetDefault("webpack.resolve_node_modules", true)
	v.SetDefault("webpack.timeout", "10m")

	// Dev server detection defaults
	v.SetDefault("dev.probe_timeout", "250ms")
	v.SetDefault("dev.probe_cache_ttl", "2s")
	v.SetDefault("dev.verify_liveness", true)

	// State defaults
	v.SetDefault("state.backend", "local")
	v.SetDefault("state.path", ".webpackbridge/state.json")
	v.SetDefault("state.redis_url", "")
	v.SetDefault("state.database_url", "")

	v.SetDefault("settings.dir", "config/sync")

	// Server defaults
	v.SetDefault("server.address", ":8787")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.allowed_networks", []string{})

	v.SetDefault("metrics.enabled", true)

	// Tracing defaults
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.endpoint", "localhost:4317")
	v.SetDefault("tracing.service_name", "webpackbridge")
	v.SetDefault("tracing.environment", "development")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.insecure", true)

	v.SetDefault("debug", false)
	v.SetDefault("log_level", "info")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Site.Root == "" {
		return fmt.Errorf("site.root cannot be empty")
	}

	if err := c.Webpack.Validate(); err != nil {
		return err
	}

	if err := c.State.Validate(); err != nil {
		return err
	}

	for _, entry := range c.Server.AllowedNetworks {
		if _, _, err := net.ParseCIDR(entry); err != nil && net.ParseIP(entry) == nil {
			return fmt.Errorf("server.allowed_networks: invalid network %q", entry)
		}
	}

	if c.Dev.ProbeTimeout <= 0 {
		return fmt.Errorf("dev.probe_timeout must be positive")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0 and 1")
	}

	return nil
}

// Validate validates the bundler settings
func (wc *WebpackConfig) Validate() error {
	if len(wc.BuildCommand) == 0 {
		return fmt.Errorf("webpack.build_command cannot be empty")
	}
	if len(wc.ServeCommand) == 0 {
		return fmt.Errorf("webpack.serve_command cannot be empty")
	}
	if wc.Filename == "" {
		return fmt.Errorf("webpack.filename cannot be empty")
	}
	switch wc.Mode {
	case "", "development", "production", "none":
	default:
		return fmt.Errorf("webpack.mode must be one of: development, production, none")
	}
	return nil
}

// Validate validates the state backend settings
func (sc *StateConfig) Validate() error {
	switch sc.Backend {
	case "local", "":
		if sc.Path == "" {
			return fmt.Errorf("state.path is required for local state backend")
		}
	case "memory":
	case "redis":
		if sc.RedisURL == "" {
			return fmt.Errorf("state.redis_url is required for redis state backend")
		}
	case "postgres":
		if sc.DatabaseURL == "" {
			return fmt.Errorf("state.database_url is required for postgres state backend")
		}
	default:
		return fmt.Errorf("unknown state backend: %s (valid options: local, memory, redis, postgres)", sc.Backend)
	}
	return nil
}
