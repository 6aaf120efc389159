package cmd

import (
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/webpackbridge/cli/output"
	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
)

var librariesCmd = &cobra.Command{
	Use:     "libraries",
	Aliases: []string{"libs"},
	Short:   "Inspect the libraries of the active extensions",
}

var librariesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List libraries",
	Long: `List the libraries declared by the active extensions.

Examples:
  webpackbridge libraries list
  webpackbridge libraries list --bundled -o json`,
	Args: cobra.NoArgs,
	RunE: runLibrariesList,
}

var librariesEntrypointsCmd = &cobra.Command{
	Use:   "entrypoints",
	Short: "List the webpack entry points",
	Long: `List the files handed to webpack as entry points, with their file ids.

Examples:
  webpackbridge libraries entrypoints`,
	Args: cobra.NoArgs,
	RunE: runLibrariesEntrypoints,
}

var librariesBundledOnly bool

func init() {
	librariesListCmd.Flags().BoolVar(&librariesBundledOnly, "bundled", false, "only list libraries bundled with webpack")

	librariesCmd.AddCommand(librariesListCmd)
	librariesCmd.AddCommand(librariesEntrypointsCmd)
}

func runLibrariesList(cmd *cobra.Command, args []string) error {
	services, err := loadServices(cmd.Context())
	if err != nil {
		return err
	}
	defer services.Close()

	all, err := services.Catalog.ListAllLibraries(cmd.Context())
	if err != nil {
		return err
	}

	var libraries []catalog.Library
	for _, byName := range all {
		for _, lib := range byName {
			if librariesBundledOnly && !catalog.IsBundledLibrary(lib) {
				continue
			}
			libraries = append(libraries, lib)
		}
	}
	sort.Slice(libraries, func(i, j int) bool { return libraries[i].ID() < libraries[j].ID() })

	formatter := GetFormatter()
	if formatter.Format != output.FormatTable {
		if libraries == nil {
			libraries = []catalog.Library{}
		}
		return formatter.Print(libraries)
	}

	rows := make([][]string, 0, len(libraries))
	for _, lib := range libraries {
		rows = append(rows, []string{
			lib.ID(),
			strconv.FormatBool(lib.Webpack),
			lib.Scope(),
			strconv.Itoa(len(lib.JS)),
			strings.Join(lib.Dependencies, ", "),
		})
	}
	formatter.PrintTable(output.TableData{
		Headers: []string{"ID", "WEBPACK", "SCOPE", "JS", "DEPENDENCIES"},
		Rows:    rows,
	})
	return nil
}

func runLibrariesEntrypoints(cmd *cobra.Command, args []string) error {
	services, err := loadServices(cmd.Context())
	if err != nil {
		return err
	}
	defer services.Close()

	entries, err := services.Catalog.ListEntryPoints(cmd.Context())
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{entry.FileID, entry.LibraryID, entry.Path})
	}
	GetFormatter().PrintTable(output.TableData{
		Headers: []string{"FILE ID", "LIBRARY", "PATH"},
		Rows:    rows,
	})
	return nil
}
