package cmd

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/webpackbridge/cli/output"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the configuration",
	Long:  `View and check the webpackbridge configuration file and environment overrides.`,
}

var configViewCmd = &cobra.Command{
	Use:   "view",
	Short: "Display the effective configuration",
	Long: `Show the configuration after defaults, the config file and
WEBPACKBRIDGE_* environment variables are applied.

Examples:
  webpackbridge config view
  webpackbridge config view --output json`,
	Args: cobra.NoArgs,
	RunE: runConfigView,
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the configuration",
	Long: `Load the configuration and report the first problem found.

Examples:
  webpackbridge config validate --config ./config/webpackbridge.yaml`,
	Args: cobra.NoArgs,
	RunE: runConfigValidate,
}

func init() {
	configCmd.AddCommand(configViewCmd)
	configCmd.AddCommand(configValidateCmd)
}

func runConfigView(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	// connection URLs may embed credentials
	view := *cfg
	view.State.RedisURL = redact(view.State.RedisURL)
	view.State.DatabaseURL = redact(view.State.DatabaseURL)

	formatter := GetFormatter()
	if formatter.Format != output.FormatTable {
		return formatter.Print(view)
	}

	rows := [][]string{
		{"site.root", cfg.Site.Root},
		{"site.public_path", cfg.Site.PublicPath},
		{"site.temp_path", cfg.Site.TempPath},
		{"site.extensions", strings.Join(cfg.Site.Extensions, ", ")},
		{"webpack.output_path", cfg.Webpack.OutputPath},
		{"webpack.filename", cfg.Webpack.Filename},
		{"webpack.mode", cfg.Webpack.Mode},
		{"webpack.build_command", strings.Join(cfg.Webpack.BuildCommand, " ")},
		{"webpack.serve_command", strings.Join(cfg.Webpack.ServeCommand, " ")},
		{"webpack.timeout", cfg.Webpack.Timeout.String()},
		{"dev.probe_timeout", cfg.Dev.ProbeTimeout.String()},
		{"dev.probe_cache_ttl", cfg.Dev.ProbeCacheTTL.String()},
		{"state.backend", cfg.State.Backend},
		{"settings.dir", cfg.Settings.Dir},
		{"server.address", cfg.Server.Address},
	}
	formatter.PrintTable(output.TableData{
		Headers: []string{"KEY", "VALUE"},
		Rows:    rows,
	})
	return nil
}

func redact(value string) string {
	if value == "" {
		return ""
	}
	return "********"
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		return err
	}
	GetFormatter().PrintSuccess("Configuration is valid.")
	return nil
}
