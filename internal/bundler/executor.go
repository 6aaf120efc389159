package bundler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// Stream names the pipe a chunk was read from
type Stream string

const (
	Stdout Stream = "stdout"
	Stderr Stream = "stderr"
)

// Chunk is one line of process output, without the trailing newline
type Chunk struct {
	Stream Stream
	Text   string
}

// Process is a started bundler process. Chunks must be drained, before or
// while calling Wait.
type Process interface {
	Chunks() <-chan Chunk
	Wait() error
	PID() int
}

// Executor starts processes from an argv, without a shell
type Executor interface {
	Start(ctx context.Context, dir string, argv []string, env []string) (Process, error)
}

// ExecExecutor runs processes with os/exec. Cancelling ctx kills the process.
type ExecExecutor struct {
	// WaitDelay bounds how long output is read after the process is killed
	WaitDelay time.Duration
}

// NewExecExecutor creates the default executor
func NewExecExecutor() *ExecExecutor {
	return &ExecExecutor{WaitDelay: 5 * time.Second}
}

// Start launches argv in dir with env appended to the current environment
func (e *ExecExecutor) Start(ctx context.Context, dir string, argv []string, env []string) (Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("empty command")
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), env...)
	cmd.WaitDelay = e.WaitDelay

	stdoutR, stdoutW := io.Pipe()
	stderrR, stderrW := io.Pipe()
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW

	if err := cmd.Start(); err != nil {
		stdoutW.Close()
		stderrW.Close()
		return nil, err
	}

	p := &execProcess{
		cmd:    cmd,
		chunks: make(chan Chunk, 64),
		exited: make(chan struct{}),
	}

	go func() {
		p.waitErr = cmd.Wait()
		stdoutW.Close()
		stderrW.Close()
		close(p.exited)
	}()

	var readers errgroup.Group
	readers.Go(func() error { return p.read(stdoutR, Stdout) })
	readers.Go(func() error { return p.read(stderrR, Stderr) })
	go func() {
		_ = readers.Wait()
		close(p.chunks)
	}()

	return p, nil
}

type execProcess struct {
	cmd     *exec.Cmd
	chunks  chan Chunk
	exited  chan struct{}
	waitErr error
}

func (p *execProcess) Chunks() <-chan Chunk {
	return p.chunks
}

func (p *execProcess) Wait() error {
	<-p.exited
	return p.waitErr
}

func (p *execProcess) PID() int {
	if p.cmd.Process == nil {
		return 0
	}
	return p.cmd.Process.Pid
}

func (p *execProcess) read(r io.Reader, stream Stream) error {
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			p.chunks <- Chunk{Stream: stream, Text: strings.TrimRight(line, "\r\n")}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}

// commonToolDirs are searched when a tool is not on PATH, as happens under
// process managers with a minimal environment
var commonToolDirs = []string{
	"/usr/local/bin",
	"/usr/bin",
	"/opt/homebrew/bin",
	"/opt/local/bin",
}

// LookupTool finds an executable by name: PATH first, then node_modules/.bin
// in root and its parents, then common install locations.
func LookupTool(root, name string) (string, error) {
	if path, err := exec.LookPath(name); err == nil {
		return path, nil
	}
	if strings.ContainsRune(name, filepath.Separator) {
		return "", fmt.Errorf("%w: %s", ErrExecutableNotFound, name)
	}

	var candidates []string
	if dir, err := filepath.Abs(root); err == nil {
		for {
			candidates = append(candidates, filepath.Join(dir, "node_modules", ".bin", name))
			parent := filepath.Dir(dir)
			if parent == dir {
				break
			}
			dir = parent
		}
	}
	for _, dir := range commonToolDirs {
		candidates = append(candidates, filepath.Join(dir, name))
	}

	for _, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() && info.Mode()&0111 != 0 {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%w: couldn't find the %s executable", ErrExecutableNotFound, name)
}

// exitCode extracts the process exit code from a Wait error
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}
