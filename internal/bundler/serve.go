package bundler

import (
	"context"
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shirou/gopsutil/v3/process"
	"golang.org/x/sync/errgroup"

	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
	"github.com/fluxbase-eu/webpackbridge/internal/buildspec"
	"github.com/fluxbase-eu/webpackbridge/internal/observability"
)

// Serve defaults
const (
	DefaultServePort     = 1234
	DefaultDevServerHost = "localhost"
	LagoonDevServerHost  = "cli"
)

// ServeOptions configures a dev server session
type ServeOptions struct {
	Port int
	// Docker makes the dev server listen on all interfaces
	Docker bool
	// DevServerHost is how the web server reaches this machine
	DevServerHost string
	// Lagoon implies Docker and DevServerHost "cli"
	Lagoon bool
}

func (o ServeOptions) normalized() ServeOptions {
	if o.Lagoon {
		o.Docker = true
		o.DevServerHost = LagoonDevServerHost
	}
	if o.DevServerHost == "" {
		o.DevServerHost = DefaultDevServerHost
	}
	if o.Port <= 0 {
		o.Port = DefaultServePort
	}
	return o
}

// Serve runs the dev server until ctx ends. Cancellation or deadline is the
// normal way out and returns the last DevServerInfo with a nil error. The dev
// server stopping by itself is an error wrapping ErrDevServerExited.
func (r *Runner) Serve(ctx context.Context, opts ServeOptions, listener Listener) (info bundleinfo.DevServerInfo, err error) {
	opts = opts.normalized()
	start := time.Now()
	command := string(buildspec.CommandServe)

	spanCtx, span := observability.StartBundlerSpan(ctx, command, r.opts.ServeCommand)
	defer func() {
		r.metrics.RecordBundlerRun(command, len(info.Files), time.Since(start), err)
		observability.SetBundlerResult(span, len(info.Files), time.Since(start), err)
		span.End()
	}()

	// state writes must survive the cancellation that ends the session
	stateCtx := context.WithoutCancel(spanCtx)

	if err := r.info.ResetDevServer(stateCtx); err != nil {
		return bundleinfo.DevServerInfo{}, err
	}

	spec, err := r.builder.Build(spanCtx, buildspec.Context{Command: buildspec.CommandServe}, buildspec.Options{
		OutputPath: r.opts.OutputPath,
		Filename:   r.opts.Filename,
		Mode:       r.opts.Mode,
	})
	if err != nil {
		return bundleinfo.DevServerInfo{}, err
	}

	configPath, err := r.writer.Write(spec)
	if err != nil {
		return bundleinfo.DevServerInfo{}, err
	}

	args := []string{"--config", configPath, "--port", strconv.Itoa(opts.Port)}
	if opts.Docker {
		args = append(args, "--host", "0.0.0.0", "--disable-host-check")
	}
	argv, err := r.argv(r.opts.ServeCommand, args...)
	if err != nil {
		return bundleinfo.DevServerInfo{}, err
	}

	proc, err := r.executor.Start(spanCtx, r.paths.Root, argv, observability.TraceContextEnv(spanCtx))
	if err != nil {
		return bundleinfo.DevServerInfo{}, &ToolError{Args: argv, ExitCode: -1, Err: err}
	}

	session := newSession(proc.PID())
	if err := r.info.SetSession(stateCtx, session); err != nil {
		log.Warn().Err(err).Msg("Failed to record dev server session")
	}
	log.Info().Int("pid", proc.PID()).Int("port", opts.Port).Str("host", opts.DevServerHost).Msg("Dev server started")

	parser := NewOutputParser(r.info, opts.DevServerHost)

	var g errgroup.Group
	var output []string
	g.Go(func() error {
		var firstErr error
		for chunk := range proc.Chunks() {
			output = append(output, chunk.Text)
			r.metrics.RecordDevServerOutput()
			r.forward(chunk, listener)
			// keep draining after a failure so the process is never blocked
			if err := parser.Feed(stateCtx, chunk.Text); err != nil && firstErr == nil {
				log.Error().Err(err).Msg("Failed to record dev server state")
				firstErr = err
			}
		}
		r.logOut.Flush()
		return firstErr
	})
	var waitErr error
	g.Go(func() error {
		waitErr = proc.Wait()
		return nil
	})
	stateErr := g.Wait()

	info, infoErr := r.info.DevServer(stateCtx)
	if infoErr != nil {
		info = bundleinfo.DevServerInfo{Address: parser.Address(), Files: parser.Files()}
	}

	if ctx.Err() != nil {
		log.Info().Msg("Dev server stopped")
		return info, nil
	}

	if stateErr != nil {
		return info, stateErr
	}

	cause := ErrDevServerExited
	if waitErr != nil {
		cause = errors.Join(ErrDevServerExited, waitErr)
	}
	return info, &ToolError{
		Args:     argv,
		ExitCode: exitCode(waitErr),
		Output:   joinTail(output, 50),
		Err:      cause,
	}
}

// newSession describes the dev server process for liveness checks
func newSession(pid int) bundleinfo.Session {
	session := bundleinfo.Session{
		Token: uuid.NewString(),
		PID:   int32(pid),
	}
	if host, err := os.Hostname(); err == nil {
		session.Hostname = host
	}
	if p, err := process.NewProcess(int32(pid)); err == nil {
		if created, err := p.CreateTime(); err == nil {
			session.ProcessStart = created
		}
	}
	return session
}

func joinTail(lines []string, n int) string {
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
