package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/fluxbase-eu/webpackbridge/internal/bundler"
)

// ErrBuildFailed is returned to make the process exit non-zero after the
// failure was reported
var ErrBuildFailed = errors.New("build failed")

var buildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build all bundled libraries",
	Long: `Build every library marked webpack: true and store the bundle mapping.

Examples:
  webpackbridge build
  webpackbridge build --debug`,
	Args: cobra.NoArgs,
	RunE: runBuild,
}

var buildSingleCmd = &cobra.Command{
	Use:   "build-single [library-id]",
	Short: "Build one library into a standalone file",
	Long: `Build a single bundled library with exactly one JS file. A file with a
source path is compiled from the source into its declared location, other
files are written to the output directory. The bundle mapping is left
untouched.

Examples:
  webpackbridge build-single mymodule/widget`,
	Args: cobra.ExactArgs(1),
	RunE: runBuildSingle,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webpack dev server",
	Long: `Start the webpack dev server and record where it listens so pages load
the served bundles. Stop it with Ctrl+C.

Examples:
  webpackbridge serve
  webpackbridge serve --port 8081 --docker --dev-server-host node
  webpackbridge serve --lagoon`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var (
	servePort          int
	serveDocker        bool
	serveDevServerHost string
	serveLagoon        bool
	serveTimeout       time.Duration
)

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", bundler.DefaultServePort, "port the dev server listens on")
	serveCmd.Flags().BoolVar(&serveDocker, "docker", false, "listen on all interfaces")
	serveCmd.Flags().StringVar(&serveDevServerHost, "dev-server-host", bundler.DefaultDevServerHost, "host the web server uses to reach the dev server")
	serveCmd.Flags().BoolVar(&serveLagoon, "lagoon", false, "shortcut for --docker --dev-server-host="+bundler.LagoonDevServerHost)
	serveCmd.Flags().DurationVar(&serveTimeout, "timeout", 0, "stop the dev server after this long (0 runs until interrupted)")
}

func runBuild(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer services.Close()

	f := GetFormatter()
	f.PrintLine("Hey! Building the libs for you.")

	result, err := services.Runner.Build(ctx, printChunk)
	return reportBuild(result, err)
}

func runBuildSingle(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	services, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer services.Close()

	f := GetFormatter()
	f.PrintLine("Hey! Building the libs for you.")

	result, err := services.Runner.BuildSingle(ctx, args[0], printChunk)
	return reportBuild(result, err)
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if serveTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, serveTimeout)
		defer cancel()
	}

	services, err := loadServices(ctx)
	if err != nil {
		return err
	}
	defer services.Close()

	f := GetFormatter()
	f.PrintLine("Hey! Starting the dev server.")

	info, err := services.Runner.Serve(ctx, bundler.ServeOptions{
		Port:          servePort,
		Docker:        serveDocker,
		DevServerHost: serveDevServerHost,
		Lagoon:        serveLagoon,
	}, printChunk)
	if err != nil {
		f.PrintError(err.Error())
		f.PrintError("Build failed")
		return ErrBuildFailed
	}

	if info.Address != "" {
		f.PrintLine(fmt.Sprintf("Dev server stopped (was listening on %s)", info.Address))
	}
	return nil
}

func printChunk(chunk bundler.Chunk) {
	GetFormatter().PrintLine(chunk.Text)
}

// reportBuild prints the outcome of a build. Tool failures were already
// streamed, so only their cause is repeated.
func reportBuild(result *bundler.Result, err error) error {
	f := GetFormatter()

	if err != nil {
		var toolErr *bundler.ToolError
		if errors.As(err, &toolErr) {
			f.PrintError(toolErr.Err.Error())
		} else {
			f.PrintError(err.Error())
		}
		f.PrintError("Build failed")
		return ErrBuildFailed
	}

	for _, message := range result.Messages {
		f.PrintLine(message)
	}
	if result.Err != nil {
		f.PrintError("Build failed")
		return ErrBuildFailed
	}

	f.PrintSuccess("Build successful")
	return nil
}
