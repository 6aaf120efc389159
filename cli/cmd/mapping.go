package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/webpackbridge/cli/output"
	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
)

var mappingCmd = &cobra.Command{
	Use:   "mapping",
	Short: "Inspect the bundle mapping",
}

var mappingShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the stored bundle mapping",
	Long: `Show which bundle files the last build produced for each file id, and
where the mapping is stored.

Examples:
  webpackbridge mapping show
  webpackbridge mapping show -o yaml`,
	Args: cobra.NoArgs,
	RunE: runMappingShow,
}

func init() {
	mappingCmd.AddCommand(mappingShowCmd)
}

type mappingView struct {
	Storage    bundleinfo.Storage `json:"storage" yaml:"storage"`
	OutputPath string             `json:"output_path" yaml:"output_path"`
	Mapping    bundleinfo.Mapping `json:"mapping" yaml:"mapping"`
}

func runMappingShow(cmd *cobra.Command, args []string) error {
	services, err := loadServices(cmd.Context())
	if err != nil {
		return err
	}
	defer services.Close()

	mapping, err := services.Info.BundleMapping(cmd.Context())
	if err != nil {
		return err
	}

	formatter := GetFormatter()
	if formatter.Format != output.FormatTable {
		return formatter.Print(mappingView{
			Storage:    services.Info.MappingStorage(),
			OutputPath: services.Info.OutputPath(),
			Mapping:    mapping,
		})
	}

	formatter.PrintLine(fmt.Sprintf("Storage: %s (%s)", services.Info.MappingStorage(), services.Info.OutputPath()))
	if len(mapping) == 0 {
		formatter.PrintWarning("No bundle mapping stored. Run `webpackbridge build` to create one.")
		return nil
	}

	fileIDs := make([]string, 0, len(mapping))
	for fileID := range mapping {
		fileIDs = append(fileIDs, fileID)
	}
	sort.Strings(fileIDs)

	rows := make([][]string, 0, len(fileIDs))
	for _, fileID := range fileIDs {
		rows = append(rows, []string{fileID, strings.Join(mapping[fileID], ", ")})
	}
	formatter.PrintTable(output.TableData{
		Headers: []string{"FILE ID", "FILES"},
		Rows:    rows,
	})
	return nil
}
