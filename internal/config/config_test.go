package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() Config {
	return Config{
		Site: SiteConfig{Root: "."},
		Webpack: WebpackConfig{
			OutputPath:   "public://webpack",
			Filename:     "[name].bundle.js",
			BuildCommand: []string{"yarn", "webpack"},
			ServeCommand: []string{"yarn", "webpack-dev-server"},
		},
		Dev:   DevConfig{ProbeTimeout: 250 * time.Millisecond},
		State: StateConfig{Backend: "local", Path: "state.json"},
		Tracing: TracingConfig{
			SampleRate: 1.0,
		},
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
		errMsg  string
	}{
		{
			name:   "valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty site root",
			mutate:  func(c *Config) { c.Site.Root = "" },
			wantErr: true,
			errMsg:  "site.root cannot be empty",
		},
		{
			name:    "empty build command",
			mutate:  func(c *Config) { c.Webpack.BuildCommand = nil },
			wantErr: true,
			errMsg:  "webpack.build_command cannot be empty",
		},
		{
			name:    "unknown webpack mode",
			mutate:  func(c *Config) { c.Webpack.Mode = "fast" },
			wantErr: true,
			errMsg:  "webpack.mode must be one of",
		},
		{
			name:    "zero probe timeout",
			mutate:  func(c *Config) { c.Dev.ProbeTimeout = 0 },
			wantErr: true,
			errMsg:  "dev.probe_timeout must be positive",
		},
		{
			name:   "allowed networks",
			mutate: func(c *Config) { c.Server.AllowedNetworks = []string{"10.0.0.0/8", "192.168.1.5"} },
		},
		{
			name:    "invalid allowed network",
			mutate:  func(c *Config) { c.Server.AllowedNetworks = []string{"intranet"} },
			wantErr: true,
			errMsg:  `server.allowed_networks: invalid network "intranet"`,
		},
		{
			name:    "sample rate out of range",
			mutate:  func(c *Config) { c.Tracing.SampleRate = 2 },
			wantErr: true,
			errMsg:  "tracing.sample_rate must be between 0 and 1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestStateConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  StateConfig
		wantErr bool
		errMsg  string
	}{
		{name: "local with path", config: StateConfig{Backend: "local", Path: "s.json"}},
		{name: "memory", config: StateConfig{Backend: "memory"}},
		{name: "redis with url", config: StateConfig{Backend: "redis", RedisURL: "redis://localhost:6379"}},
		{
			name:    "redis without url",
			config:  StateConfig{Backend: "redis"},
			wantErr: true,
			errMsg:  "state.redis_url is required",
		},
		{
			name:    "postgres without url",
			config:  StateConfig{Backend: "postgres"},
			wantErr: true,
			errMsg:  "state.database_url is required",
		},
		{
			name:    "unknown backend",
			config:  StateConfig{Backend: "etcd"},
			wantErr: true,
			errMsg:  "unknown state backend: etcd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.errMsg)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	t.Run("reads file and applies defaults", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "webpackbridge.yaml")
		content := `
site:
  root: /srv/site
webpack:
  output_path: dist/webpack
state:
  backend: memory
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0600))

		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "/srv/site", cfg.Site.Root)
		assert.Equal(t, "dist/webpack", cfg.Webpack.OutputPath)
		assert.Equal(t, "[name].bundle.js", cfg.Webpack.Filename)
		assert.Equal(t, []string{"yarn", "webpack"}, cfg.Webpack.BuildCommand)
		assert.Equal(t, "memory", cfg.State.Backend)
		assert.Equal(t, 250*time.Millisecond, cfg.Dev.ProbeTimeout)
		assert.Equal(t, 10*time.Minute, cfg.Webpack.Timeout)
	})

	t.Run("environment overrides file", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "webpackbridge.yaml")
		require.NoError(t, os.WriteFile(path, []byte("webpack:\n  output_path: dist\n"), 0600))

		t.Setenv("WEBPACKBRIDGE_WEBPACK_OUTPUT_PATH", "public://bundles")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "public://bundles", cfg.Webpack.OutputPath)
	})

	t.Run("command from environment is split into argv", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "webpackbridge.yaml")
		require.NoError(t, os.WriteFile(path, []byte("webpack:\n  serve_command: [npx, webpack, serve]\n"), 0600))

		t.Setenv("WEBPACKBRIDGE_WEBPACK_BUILD_COMMAND", "npx webpack  --bail")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, []string{"npx", "webpack", "--bail"}, cfg.Webpack.BuildCommand)
		assert.Equal(t, []string{"npx", "webpack", "serve"}, cfg.Webpack.ServeCommand)
	})

	t.Run("invalid file is rejected", func(t *testing.T) {
		dir := t.TempDir()
		path := filepath.Join(dir, "webpackbridge.yaml")
		require.NoError(t, os.WriteFile(path, []byte("state:\n  backend: etcd\n"), 0600))

		_, err := Load(path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		name string
		in   []string
		want []string
	}{
		{"single string", []string{"yarn webpack"}, []string{"yarn", "webpack"}},
		{"single word", []string{"webpack"}, []string{"webpack"}},
		{"argv kept", []string{"node", "my scripts/build.js"}, []string{"node", "my scripts/build.js"}},
		{"empty", nil, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, splitCommand(tt.in))
		})
	}
}
