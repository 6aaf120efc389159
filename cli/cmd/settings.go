package cmd

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/webpackbridge/cli/output"
	"github.com/fluxbase-eu/webpackbridge/internal/app"
	"github.com/fluxbase-eu/webpackbridge/internal/settings"
	"github.com/fluxbase-eu/webpackbridge/internal/sitepath"
)

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage the versioned webpack settings",
	Long: `View and modify the webpack settings kept in the site's configuration
directory. These are meant to be committed and deployed with the code.`,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all settings",
	Long: `List the stored webpack settings.

Examples:
  webpackbridge settings list`,
	Args: cobra.NoArgs,
	RunE: runSettingsList,
}

var settingsGetCmd = &cobra.Command{
	Use:   "get [key]",
	Short: "Get a setting value",
	Long: `Get a webpack setting. output_path falls back to webpack.output_path
from the configuration when it was never set.

Examples:
  webpackbridge settings get output_path`,
	Args: cobra.ExactArgs(1),
	RunE: runSettingsGet,
}

var settingsSetCmd = &cobra.Command{
	Use:   "set [key] [value]",
	Short: "Set a setting value",
	Long: `Set a webpack setting.

Available keys:
  output_path - Directory bundles are written to, as a stream URI
                (public://webpack) or a path relative to the site root

Examples:
  webpackbridge settings set output_path public://webpack
  webpackbridge settings set output_path themes/custom/mytheme/dist`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsSet,
}

func init() {
	settingsCmd.AddCommand(settingsListCmd)
	settingsCmd.AddCommand(settingsGetCmd)
	settingsCmd.AddCommand(settingsSetCmd)
}

func openSettings() (*settings.Store, string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, "", err
	}
	paths, err := sitepath.New(cfg.Site.Root, cfg.Site.PublicPath, cfg.Site.TempPath)
	if err != nil {
		return nil, "", err
	}
	return app.SettingsStore(cfg, paths), cfg.Webpack.OutputPath, nil
}

func runSettingsList(cmd *cobra.Command, args []string) error {
	store, fallback, err := openSettings()
	if err != nil {
		return err
	}

	obj, err := store.Get(settings.WebpackSettings)
	if err != nil {
		return err
	}
	data := obj.Data()
	if _, ok := data[settings.OutputPathKey]; !ok {
		data[settings.OutputPathKey] = fallback
	}

	formatter := GetFormatter()
	if formatter.Format != output.FormatTable {
		return formatter.Print(data)
	}

	keys := make([]string, 0, len(data))
	for key := range data {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	rows := make([][]string, 0, len(keys))
	for _, key := range keys {
		rows = append(rows, []string{key, fmt.Sprintf("%v", data[key])})
	}
	formatter.PrintTable(output.TableData{
		Headers: []string{"KEY", "VALUE"},
		Rows:    rows,
	})
	return nil
}

func runSettingsGet(cmd *cobra.Command, args []string) error {
	key := args[0]

	store, fallback, err := openSettings()
	if err != nil {
		return err
	}

	if key == settings.OutputPathKey {
		value, err := settings.OutputPath(store, fallback)
		if err != nil {
			return err
		}
		GetFormatter().PrintKeyValue(key, value)
		return nil
	}

	obj, err := store.Get(settings.WebpackSettings)
	if err != nil {
		return err
	}
	value := obj.Get(key)
	if value == nil {
		return fmt.Errorf("setting '%s' not found", key)
	}
	GetFormatter().PrintKeyValue(key, fmt.Sprintf("%v", value))
	return nil
}

func runSettingsSet(cmd *cobra.Command, args []string) error {
	key, value := args[0], args[1]
	if key != settings.OutputPathKey {
		return fmt.Errorf("unknown setting '%s' (available: %s)", key, settings.OutputPathKey)
	}

	store, _, err := openSettings()
	if err != nil {
		return err
	}
	if err := settings.SetOutputPath(store, value); err != nil {
		return err
	}

	GetFormatter().PrintSuccess(fmt.Sprintf("Setting '%s' updated to '%s'.", key, value))
	return nil
}
