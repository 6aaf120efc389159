package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/webpackbridge/cli/output"
	"github.com/fluxbase-eu/webpackbridge/internal/assets"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve [library-id...]",
	Short: "Show the JS assets a page attaching the libraries would load",
	Long: `Resolve the JS assets of the given libraries and their dependencies the
way pages load them: from the dev server while it runs, from the stored
bundle mapping otherwise.

Examples:
  webpackbridge resolve mymodule/widget
  webpackbridge resolve mymodule/widget core/drupal --already-loaded core/once -o json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runResolve,
}

var (
	resolveAlreadyLoaded []string
	resolveOptimize      bool
)

func init() {
	resolveCmd.Flags().StringArrayVar(&resolveAlreadyLoaded, "already-loaded", nil, "library already present on the page (repeatable)")
	resolveCmd.Flags().BoolVar(&resolveOptimize, "optimize", false, "request aggregated assets")
}

func runResolve(cmd *cobra.Command, args []string) error {
	services, err := loadServices(cmd.Context())
	if err != nil {
		return err
	}
	defer services.Close()

	result, err := services.Rewriter.JSAssets(cmd.Context(), &assets.AttachedAssets{
		Libraries:     args,
		AlreadyLoaded: resolveAlreadyLoaded,
	}, resolveOptimize)
	if err != nil {
		return err
	}

	formatter := GetFormatter()
	if formatter.Format != output.FormatTable {
		if result.Header == nil {
			result.Header = assets.NewCollection()
		}
		if result.Footer == nil {
			result.Footer = assets.NewCollection()
		}
		// yaml cannot use the collections' JSON form
		return formatter.Print(map[string][]assets.Descriptor{
			assets.ScopeHeader: descriptors(result.Header),
			assets.ScopeFooter: descriptors(result.Footer),
		})
	}

	var rows [][]string
	for _, scope := range []string{assets.ScopeHeader, assets.ScopeFooter} {
		c := result.Scope(scope)
		for _, key := range c.Keys() {
			d, _ := c.Get(key)
			rows = append(rows, []string{scope, key, fmt.Sprint(d["data"]), fmt.Sprint(d["type"])})
		}
	}
	formatter.PrintTable(output.TableData{
		Headers: []string{"SCOPE", "KEY", "DATA", "TYPE"},
		Rows:    rows,
	})
	return nil
}

func descriptors(c *assets.Collection) []assets.Descriptor {
	out := make([]assets.Descriptor, 0, c.Len())
	for _, key := range c.Keys() {
		d, _ := c.Get(key)
		item := make(assets.Descriptor, len(d)+1)
		for k, v := range d {
			item[k] = v
		}
		item["key"] = key
		out = append(out, item)
	}
	return out
}
