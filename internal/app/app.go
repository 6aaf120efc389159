// Package app wires the services shared by the server and the CLI from one
// configuration.
package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/assets"
	"github.com/fluxbase-eu/webpackbridge/internal/buildspec"
	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
	"github.com/fluxbase-eu/webpackbridge/internal/bundler"
	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
	"github.com/fluxbase-eu/webpackbridge/internal/config"
	"github.com/fluxbase-eu/webpackbridge/internal/extension"
	"github.com/fluxbase-eu/webpackbridge/internal/observability"
	"github.com/fluxbase-eu/webpackbridge/internal/settings"
	"github.com/fluxbase-eu/webpackbridge/internal/sitepath"
	"github.com/fluxbase-eu/webpackbridge/internal/specwriter"
	"github.com/fluxbase-eu/webpackbridge/internal/state"
)

// App holds the wired services
type App struct {
	Config     *config.Config
	Paths      *sitepath.Paths
	Catalog    *catalog.Catalog
	State      state.Store
	Settings   *settings.Store
	Info       *bundleinfo.Store
	Builder    *buildspec.Builder
	Runner     *bundler.Runner
	Probe      *assets.DevProbe
	Rewriter   *assets.Rewriter
	Metrics    *observability.Metrics
	OutputPath string
}

// New builds every service from cfg. metrics may be nil.
func New(ctx context.Context, cfg *config.Config, metrics *observability.Metrics) (*App, error) {
	paths, err := sitepath.New(cfg.Site.Root, cfg.Site.PublicPath, cfg.Site.TempPath)
	if err != nil {
		return nil, fmt.Errorf("invalid site paths: %w", err)
	}

	st, err := state.NewStore(ctx, &cfg.State)
	if err != nil {
		return nil, err
	}

	cfgStore := SettingsStore(cfg, paths)
	outputPath, err := settings.OutputPath(cfgStore, cfg.Webpack.OutputPath)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("failed to read webpack settings: %w", err)
	}

	c := catalog.New(extension.NewFileRegistry(paths.Root, cfg.Site.Extensions))
	info := bundleinfo.New(st, cfgStore, outputPath)

	registry := buildspec.NewRegistry(&buildspec.DevServerProcessor{})
	if cfg.Webpack.ResolveNodeModules {
		registry.Register(&buildspec.NodeModulesProcessor{Root: paths.Root})
	}
	builder := buildspec.NewBuilder(c, paths, registry)

	runner := bundler.New(builder, specwriter.New(paths), info, c, paths, bundler.Options{
		OutputPath:   outputPath,
		Filename:     cfg.Webpack.Filename,
		Mode:         cfg.Webpack.Mode,
		BuildCommand: cfg.Webpack.BuildCommand,
		ServeCommand: cfg.Webpack.ServeCommand,
		Timeout:      cfg.Webpack.Timeout,
	}).WithMetrics(metrics)

	probe := assets.NewDevProbe(assets.ProbeOptions{
		Timeout:        cfg.Dev.ProbeTimeout,
		CacheTTL:       cfg.Dev.ProbeCacheTTL,
		VerifyLiveness: cfg.Dev.VerifyLiveness,
	}).WithMetrics(metrics)

	rewriter := assets.NewRewriter(assets.NewCatalogResolver(c), c, info, paths, probe).
		WithFilename(cfg.Webpack.Filename).
		WithMetrics(metrics)

	log.Debug().
		Str("root", paths.Root).
		Str("output_path", outputPath).
		Str("state", cfg.State.Backend).
		Msg("Services initialized")

	return &App{
		Config:     cfg,
		Paths:      paths,
		Catalog:    c,
		State:      st,
		Settings:   cfgStore,
		Info:       info,
		Builder:    builder,
		Runner:     runner,
		Probe:      probe,
		Rewriter:   rewriter,
		Metrics:    metrics,
		OutputPath: outputPath,
	}, nil
}

// Close releases the state backend
func (a *App) Close() error {
	return a.State.Close()
}

// SettingsStore opens the versioned settings directory, relative to the
// site root unless absolute. It needs no state backend.
func SettingsStore(cfg *config.Config, paths *sitepath.Paths) *settings.Store {
	dir := cfg.Settings.Dir
	if !filepath.IsAbs(dir) {
		dir = filepath.Join(paths.Root, dir)
	}
	return settings.NewStore(dir)
}
