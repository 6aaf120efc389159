// Package bundler runs the external bundler: one-shot builds whose output is
// parsed into the bundle mapping, and long-running dev server sessions.
package bundler

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
	"github.com/fluxbase-eu/webpackbridge/internal/buildspec"
	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
	"github.com/fluxbase-eu/webpackbridge/internal/logging"
	"github.com/fluxbase-eu/webpackbridge/internal/observability"
	"github.com/fluxbase-eu/webpackbridge/internal/sitepath"
	"github.com/fluxbase-eu/webpackbridge/internal/specwriter"
)

// ConfigStorageWarning is appended to build messages when the mapping is
// kept in versioned configuration
const ConfigStorageWarning = "WARNING: The output directory is outside of the public files directory. The config needs to be exported in order for the files to be loaded on other environments."

// Options configures the bundler commands
type Options struct {
	OutputPath   string
	Filename     string
	Mode         string
	BuildCommand []string
	ServeCommand []string
	// Timeout bounds build and build-single; zero means no limit
	Timeout time.Duration
}

// Listener receives every output chunk of the bundler
type Listener func(Chunk)

// Result is the outcome of a build or build-single run
type Result struct {
	Success    bool
	Output     []string
	Messages   []string
	Mapping    bundleinfo.Mapping
	ConfigPath string
	// Err carries non-fatal problems such as ErrNoFilesWritten
	Err error
}

// OutputText returns the captured output as one string
func (r *Result) OutputText() string {
	return strings.Join(r.Output, "\n")
}

// Runner invokes the bundler
type Runner struct {
	builder  *buildspec.Builder
	writer   *specwriter.Writer
	info     *bundleinfo.Store
	catalog  *catalog.Catalog
	paths    *sitepath.Paths
	opts     Options
	executor Executor
	metrics  *observability.Metrics
	logOut   *logging.Writer
}

// New creates a runner using the os/exec executor
func New(builder *buildspec.Builder, writer *specwriter.Writer, info *bundleinfo.Store, c *catalog.Catalog, paths *sitepath.Paths, opts Options) *Runner {
	if opts.Filename == "" {
		opts.Filename = buildspec.DefaultFilename
	}
	return &Runner{
		builder:  builder,
		writer:   writer,
		info:     info,
		catalog:  c,
		paths:    paths,
		opts:     opts,
		executor: NewExecExecutor(),
		logOut:   logging.NewWriter(log.Logger, "webpack", zerolog.DebugLevel),
	}
}

// WithExecutor replaces the process executor
func (r *Runner) WithExecutor(e Executor) *Runner {
	r.executor = e
	return r
}

// WithMetrics records run metrics on m
func (r *Runner) WithMetrics(m *observability.Metrics) *Runner {
	r.metrics = m
	return r
}

// Build runs a production build of every bundled library and stores the
// resulting mapping.
func (r *Runner) Build(ctx context.Context, listener Listener) (result *Result, err error) {
	start := time.Now()
	ctx, span := observability.StartBundlerSpan(ctx, string(buildspec.CommandBuild), r.opts.BuildCommand)
	defer func() {
		entries := 0
		if result != nil {
			entries = len(result.Mapping)
		}
		r.metrics.RecordBundlerRun(string(buildspec.CommandBuild), entries, time.Since(start), err)
		observability.SetBundlerResult(span, entries, time.Since(start), err)
		span.End()
	}()

	spec, err := r.builder.Build(ctx, buildspec.Context{Command: buildspec.CommandBuild}, buildspec.Options{
		OutputPath: r.opts.OutputPath,
		Filename:   r.opts.Filename,
		Mode:       r.opts.Mode,
	})
	if err != nil {
		return nil, err
	}

	configPath, err := r.writer.Write(spec)
	if err != nil {
		return nil, err
	}

	output, err := r.runOnce(ctx, r.opts.BuildCommand, configPath, listener)
	if err != nil {
		return &Result{Output: output, ConfigPath: configPath}, err
	}

	mapping, entryLines := ParseMapping(output, r.opts.OutputPath)
	if len(mapping) == 0 {
		log.Warn().Str("config", configPath).Msg("Bundler finished without reporting any entrypoint")
		return &Result{
			Output:     output,
			Messages:   []string{"No files were written"},
			ConfigPath: configPath,
			Err:        ErrNoFilesWritten,
		}, nil
	}

	if err := r.info.SetBundleMapping(ctx, mapping); err != nil {
		return &Result{Output: output, ConfigPath: configPath}, err
	}

	messages := append([]string{fmt.Sprintf("Files written to '%s':", r.opts.OutputPath)}, entryLines...)
	if r.info.MappingStorage() == bundleinfo.StorageConfig {
		messages = append(messages, "", ConfigStorageWarning)
	}

	log.Info().Int("entrypoints", len(mapping)).Str("output", r.opts.OutputPath).Msg("Build finished")

	return &Result{
		Success:    true,
		Output:     output,
		Messages:   messages,
		Mapping:    mapping,
		ConfigPath: configPath,
	}, nil
}

// BuildSingle builds one library into a standalone artifact. A JS file with
// a source path is built from the source into its declared path, others go
// to the configured output directory. The stored mapping is not touched.
func (r *Runner) BuildSingle(ctx context.Context, libraryID string, listener Listener) (result *Result, err error) {
	start := time.Now()
	command := string(buildspec.CommandBuildSingle)
	ctx, span := observability.StartBundlerSpan(ctx, command, r.opts.BuildCommand)
	defer func() {
		r.metrics.RecordBundlerRun(command, 1, time.Since(start), err)
		observability.SetBundlerResult(span, 1, time.Since(start), err)
		span.End()
	}()

	lib, err := r.catalog.ResolveLibraryByID(ctx, libraryID)
	if err != nil {
		return nil, err
	}
	if !catalog.IsBundledLibrary(lib) {
		return nil, fmt.Errorf("%w: %s", ErrNotABundledLibrary, libraryID)
	}
	if len(lib.JS) != 1 {
		return nil, fmt.Errorf("%w: %s has %d", ErrInvalidEntryCount, libraryID, len(lib.JS))
	}

	entries, err := catalog.EntryPointsOf(lib)
	if err != nil {
		return nil, err
	}

	outputPath, filename := r.opts.OutputPath, r.opts.Filename
	if asset := lib.JS[0]; asset.Source != "" {
		outputPath, filename = path.Dir(asset.Data), path.Base(asset.Data)
	}

	spec, err := r.builder.Build(ctx, buildspec.Context{Command: buildspec.CommandBuildSingle, LibraryID: libraryID}, buildspec.Options{
		OutputPath: outputPath,
		Filename:   filename,
		Mode:       r.opts.Mode,
		Entries:    entries,
	})
	if err != nil {
		return nil, err
	}

	configPath, err := r.writer.Write(spec)
	if err != nil {
		return nil, err
	}

	output, err := r.runOnce(ctx, r.opts.BuildCommand, configPath, listener)
	if err != nil {
		return &Result{Output: output, ConfigPath: configPath}, err
	}

	_, entryLines := ParseMapping(output, outputPath)
	messages := append([]string{fmt.Sprintf("Files written to '%s':", outputPath)}, entryLines...)

	return &Result{
		Success:    true,
		Output:     output,
		Messages:   messages,
		ConfigPath: configPath,
	}, nil
}

// runOnce runs command with --config and waits for it, collecting output
func (r *Runner) runOnce(ctx context.Context, command []string, configPath string, listener Listener) ([]string, error) {
	if r.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.opts.Timeout)
		defer cancel()
	}

	argv, err := r.argv(command, "--config", configPath)
	if err != nil {
		return nil, err
	}

	proc, err := r.executor.Start(ctx, r.paths.Root, argv, observability.TraceContextEnv(ctx))
	if err != nil {
		return nil, &ToolError{Args: argv, ExitCode: -1, Err: err}
	}

	var output []string
	for chunk := range proc.Chunks() {
		output = append(output, chunk.Text)
		r.forward(chunk, listener)
	}
	r.logOut.Flush()

	if err := proc.Wait(); err != nil {
		cause := ErrBuildFailed
		if ctxErr := ctx.Err(); ctxErr != nil {
			cause = fmt.Errorf("%w: %v", ErrBuildFailed, ctxErr)
		}
		return output, &ToolError{
			Args:     argv,
			ExitCode: exitCode(err),
			Output:   strings.Join(output, "\n"),
			Err:      cause,
		}
	}

	return output, nil
}

func (r *Runner) forward(chunk Chunk, listener Listener) {
	_, _ = r.logOut.Write([]byte(chunk.Text + "\n"))
	if listener != nil {
		listener(chunk)
	}
}

// argv resolves the executable of command and appends args
func (r *Runner) argv(command []string, args ...string) ([]string, error) {
	if len(command) == 0 {
		return nil, errors.New("bundler command is empty")
	}
	tool, err := LookupTool(r.paths.Root, command[0])
	if err != nil {
		return nil, &ToolError{Args: command, ExitCode: -1, Err: err}
	}

	argv := make([]string, 0, len(command)+len(args))
	argv = append(argv, tool)
	argv = append(argv, command[1:]...)
	return append(argv, args...), nil
}
