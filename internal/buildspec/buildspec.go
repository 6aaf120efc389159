// Package buildspec assembles the webpack configuration for one build,
// serve or build-single invocation.
package buildspec

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
	"github.com/fluxbase-eu/webpackbridge/internal/sitepath"
)

var (
	// ErrConfigNotValid is returned when the assembled spec cannot be used
	ErrConfigNotValid = errors.New("webpack config is not valid")
	// ErrOutputDirNotWritable is returned when the output directory cannot be prepared
	ErrOutputDirNotWritable = errors.New("output directory is not writable")
)

// Command names the invocation mode
type Command string

const (
	CommandBuild       Command = "build"
	CommandServe       Command = "serve"
	CommandBuildSingle Command = "build-single"
)

// DefaultFilename is the output filename pattern
const DefaultFilename = "[name].bundle.js"

// Spec is the bundler configuration as nested key-value data
type Spec map[string]any

// Context describes the invocation a spec is built for
type Context struct {
	Command   Command
	LibraryID string // build-single only
}

// Processor contributes fields to a spec. Processors run in ascending
// weight order and may override what earlier ones wrote.
type Processor interface {
	Name() string
	Weight() int
	ProcessConfig(spec Spec, bctx Context) error
}

// AlterFunc is a final hook run after every processor
type AlterFunc func(spec Spec, bctx Context) error

// Registry holds processors and alter hooks in registration order
type Registry struct {
	mu         sync.RWMutex
	processors []Processor
	alters     []AlterFunc
}

// NewRegistry creates a registry with the given processors
func NewRegistry(processors ...Processor) *Registry {
	r := &Registry{}
	for _, p := range processors {
		r.Register(p)
	}
	return r
}

// Register appends a processor
func (r *Registry) Register(p Processor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.processors = append(r.processors, p)
}

// Alter appends an alter hook
func (r *Registry) Alter(fn AlterFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alters = append(r.alters, fn)
}

// Sorted returns the processors by ascending weight, ties in registration order
func (r *Registry) Sorted() []Processor {
	r.mu.RLock()
	out := make([]Processor, len(r.processors))
	copy(out, r.processors)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool { return out[i].Weight() < out[j].Weight() })
	return out
}

func (r *Registry) alterHooks() []AlterFunc {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]AlterFunc, len(r.alters))
	copy(out, r.alters)
	return out
}

// Options are the per-invocation inputs of Build
type Options struct {
	OutputPath string // URI or site-relative path
	Filename   string
	Mode       string // overrides the mode derived from the command
	// Entries overrides the catalog's entry points when non-nil
	Entries []catalog.EntryPoint
}

// Builder produces validated specs
type Builder struct {
	catalog  *catalog.Catalog
	paths    *sitepath.Paths
	registry *Registry
}

// NewBuilder creates a builder
func NewBuilder(c *catalog.Catalog, paths *sitepath.Paths, registry *Registry) *Builder {
	if registry == nil {
		registry = NewRegistry()
	}
	return &Builder{
		catalog:  c,
		paths:    paths,
		registry: registry,
	}
}

// Registry returns the processor registry
func (b *Builder) Registry() *Registry {
	return b.registry
}

// Build seeds the spec, prepares the output directory, runs processors and
// alter hooks and validates the result.
func (b *Builder) Build(ctx context.Context, bctx Context, opts Options) (Spec, error) {
	entries := opts.Entries
	if entries == nil {
		var err error
		entries, err = b.defaultEntries(ctx, bctx)
		if err != nil {
			return nil, err
		}
	}

	outputDir, err := b.paths.Prepare(opts.OutputPath)
	if err != nil {
		log.Error().Err(err).Str("dir", opts.OutputPath).Msg("Webpack output directory is not writable")
		return nil, fmt.Errorf("%w: %s: %v", ErrOutputDirNotWritable, opts.OutputPath, err)
	}

	filename := opts.Filename
	if filename == "" {
		filename = DefaultFilename
	}

	entry := make(map[string]any, len(entries))
	for _, e := range entries {
		p := e.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(b.paths.Root, filepath.FromSlash(p))
		}
		entry[e.FileID] = p
	}

	spec := Spec{
		"mode":  modeFor(bctx.Command, opts.Mode),
		"entry": entry,
		"output": map[string]any{
			"path":     outputDir,
			"filename": filename,
		},
	}

	for _, p := range b.registry.Sorted() {
		if err := p.ProcessConfig(spec, bctx); err != nil {
			return nil, fmt.Errorf("processor %s: %w", p.Name(), err)
		}
		log.Debug().Str("processor", p.Name()).Int("weight", p.Weight()).Msg("Applied config processor")
	}

	for _, alter := range b.registry.alterHooks() {
		if err := alter(spec, bctx); err != nil {
			return nil, fmt.Errorf("config alter hook: %w", err)
		}
	}

	if err := Validate(spec); err != nil {
		return nil, err
	}

	return spec, nil
}

func (b *Builder) defaultEntries(ctx context.Context, bctx Context) ([]catalog.EntryPoint, error) {
	if bctx.Command != CommandBuildSingle {
		return b.catalog.ListEntryPoints(ctx)
	}

	lib, err := b.catalog.ResolveLibraryByID(ctx, bctx.LibraryID)
	if err != nil {
		return nil, err
	}
	return catalog.EntryPointsOf(lib)
}

// Validate checks that the spec has at least one entry
func Validate(spec Spec) error {
	entry, ok := spec["entry"]
	if !ok || isEmpty(entry) {
		return fmt.Errorf("%w: there are no files to process", ErrConfigNotValid)
	}
	return nil
}

func isEmpty(v any) bool {
	switch e := v.(type) {
	case nil:
		return true
	case map[string]any:
		return len(e) == 0
	case map[string]string:
		return len(e) == 0
	case []any:
		return len(e) == 0
	case []string:
		return len(e) == 0
	case string:
		return e == ""
	default:
		return false
	}
}

func modeFor(cmd Command, override string) string {
	if override != "" {
		return override
	}
	if cmd == CommandServe {
		return "development"
	}
	return "production"
}

// Section returns the nested map under key, creating it when missing or
// when the existing value is not a map.
func (s Spec) Section(key string) map[string]any {
	if m, ok := s[key].(map[string]any); ok {
		return m
	}
	m := map[string]any{}
	s[key] = m
	return m
}
