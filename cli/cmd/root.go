// Package cmd provides the Cobra commands for the webpackbridge CLI.
package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/webpackbridge/cli/output"
	"github.com/fluxbase-eu/webpackbridge/internal/app"
	"github.com/fluxbase-eu/webpackbridge/internal/config"
	"github.com/fluxbase-eu/webpackbridge/internal/logging"
)

var (
	// Version information (set via ldflags during build)
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"

	// Global flags
	cfgFile   string
	outputFmt string
	noHeaders bool
	quiet     bool
	debug     bool

	// Shared across commands
	formatter *output.Formatter
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "webpackbridge",
	Short: "Bundle CMS libraries with webpack",
	Long: `webpackbridge builds the JavaScript libraries of a Drupal site with
webpack and records which bundle files replace which library files.

Get started:
  webpackbridge libraries list --bundled   Show the libraries that get bundled
  webpackbridge build                      Build every bundled library
  webpackbridge serve                      Run the webpack dev server`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// Silence errors only when --quiet is used
		cmd.SilenceErrors = quiet

		level := "warn"
		if debug {
			level = "debug"
		}
		logging.Setup(logging.Options{Level: level, Out: cmd.ErrOrStderr()})

		format, err := output.ParseFormat(outputFmt)
		if err != nil {
			return err
		}
		formatter = output.NewFormatter(format, noHeaders, quiet)
		formatter.Writer = cmd.OutOrStdout()
		formatter.ErrWriter = cmd.ErrOrStderr()
		return nil
	},
}

// Execute runs the CLI
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default is ./webpackbridge.yaml)")
	rootCmd.PersistentFlags().StringVarP(&outputFmt, "output", "o", "table",
		"output format: table, json, yaml")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false,
		"hide table headers")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false,
		"minimal output")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false,
		"enable debug output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(completionCmd)
	rootCmd.AddCommand(buildCmd)
	rootCmd.AddCommand(buildSingleCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(librariesCmd)
	rootCmd.AddCommand(mappingCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(settingsCmd)
}

// loadConfig reads the configuration named by --config
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if debug {
		cfg.Debug = true
	}
	return cfg, nil
}

// loadServices wires the services for commands that touch the site. The
// caller closes the returned app.
func loadServices(ctx context.Context) (*app.App, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return app.New(ctx, cfg, nil)
}

// GetFormatter returns the output formatter (for use by subcommands)
func GetFormatter() *output.Formatter {
	if formatter == nil {
		format, _ := output.ParseFormat(outputFmt)
		formatter = output.NewFormatter(format, noHeaders, quiet)
	}
	return formatter
}
