package bundler

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrBuildFailed is returned when the bundler exits with a non-zero code
	ErrBuildFailed = errors.New("the npm script has failed")
	// ErrNoFilesWritten is reported when a clean build printed no entrypoints
	ErrNoFilesWritten = errors.New("no files were written")
	// ErrNotABundledLibrary is returned by BuildSingle for libraries without webpack: true
	ErrNotABundledLibrary = errors.New("library is not bundled with webpack")
	// ErrInvalidEntryCount is returned by BuildSingle for libraries without exactly one JS file
	ErrInvalidEntryCount = errors.New("library must have exactly one JS file")
	// ErrDevServerExited is returned when the dev server stops on its own
	ErrDevServerExited = errors.New("dev server exited")
	// ErrExecutableNotFound is returned when the bundler command cannot be located
	ErrExecutableNotFound = errors.New("executable not found")
)

// ToolError describes a failed bundler process
type ToolError struct {
	Args     []string
	ExitCode int // -1 when the process did not start or was killed
	Output   string
	Err      error
}

func (e *ToolError) Error() string {
	cmd := strings.Join(e.Args, " ")
	if e.ExitCode >= 0 {
		return fmt.Sprintf("%s (exit code %d): %v", cmd, e.ExitCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", cmd, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}
