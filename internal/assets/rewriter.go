package assets

import (
	"context"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
	"github.com/fluxbase-eu/webpackbridge/internal/buildspec"
	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
	"github.com/fluxbase-eu/webpackbridge/internal/observability"
	"github.com/fluxbase-eu/webpackbridge/internal/sitepath"
)

// Rewrite modes
const (
	ModePassthrough = "passthrough"
	ModeDev         = "dev"
	ModeProd        = "prod"
)

// Rewriter wraps a Resolver and serves bundled libraries from the dev server
// or from the last build instead of their source files.
type Rewriter struct {
	resolver Resolver
	catalog  *catalog.Catalog
	info     *bundleinfo.Store
	paths    *sitepath.Paths
	probe    *DevProbe
	filename string
	metrics  *observability.Metrics
}

// NewRewriter creates a rewriter. A nil probe uses the default options.
func NewRewriter(resolver Resolver, c *catalog.Catalog, info *bundleinfo.Store, paths *sitepath.Paths, probe *DevProbe) *Rewriter {
	if probe == nil {
		probe = NewDevProbe(ProbeOptions{})
	}
	return &Rewriter{
		resolver: resolver,
		catalog:  c,
		info:     info,
		paths:    paths,
		probe:    probe,
		filename: buildspec.DefaultFilename,
	}
}

// WithFilename sets the bundle filename pattern used to guess dev server
// files before the dev server reported them
func (r *Rewriter) WithFilename(pattern string) *Rewriter {
	if pattern != "" {
		r.filename = pattern
	}
	return r
}

// WithMetrics records rewrites on m
func (r *Rewriter) WithMetrics(m *observability.Metrics) *Rewriter {
	r.metrics = m
	return r
}

// CSSAssets delegates to the wrapped resolver
func (r *Rewriter) CSSAssets(ctx context.Context, assets *AttachedAssets, optimize bool) (*Collection, error) {
	return r.resolver.CSSAssets(ctx, assets, optimize)
}

// LibrariesToLoad delegates to the wrapped resolver
func (r *Rewriter) LibrariesToLoad(ctx context.Context, assets *AttachedAssets) ([]string, error) {
	return r.resolver.LibrariesToLoad(ctx, assets)
}

// JSAssets resolves the scripts of assets. Without a dev server and without
// a bundle mapping the wrapped resolver's result is returned as is.
// Otherwise bundled libraries are taken out before delegating and their
// scripts are replaced by bundles. Problems with single scripts are logged
// and the script is left out.
func (r *Rewriter) JSAssets(ctx context.Context, assets *AttachedAssets, optimize bool) (result JSAssets, err error) {
	ctx, span := observability.StartRewriteSpan(ctx, len(assets.Libraries))
	defer func() { observability.EndSpan(span, err) }()

	dev, devMode := r.devServer(ctx)

	var mapping bundleinfo.Mapping
	if !devMode {
		mapping, err = r.info.BundleMapping(ctx)
		if err != nil {
			log.Error().Err(err).Msg("Failed to read bundle mapping, serving library files")
			mapping, err = nil, nil
		}
	}

	if !devMode && len(mapping) == 0 {
		r.metrics.RecordRewrite(ModePassthrough)
		return r.resolver.JSAssets(ctx, assets, optimize)
	}

	mode := ModeProd
	if devMode {
		mode = ModeDev
	}
	r.metrics.RecordRewrite(mode)

	libraries, err := r.resolver.LibrariesToLoad(ctx, assets)
	if err != nil {
		return JSAssets{}, err
	}

	var bundled []catalog.Library
	remaining := make([]string, 0, len(libraries))
	for _, id := range libraries {
		lib, ok, err := r.catalog.GetLibrary(ctx, id)
		if err != nil {
			return JSAssets{}, err
		}
		if !ok || !catalog.IsBundledLibrary(lib) {
			remaining = append(remaining, id)
			continue
		}
		bundled = append(bundled, lib)
	}

	delegated := assets.Clone()
	delegated.Libraries = remaining
	result, err = r.resolver.JSAssets(ctx, delegated, optimize)
	if err != nil {
		return JSAssets{}, err
	}

	for _, lib := range bundled {
		scope := lib.Scope()
		target := result.Scope(scope)

		for _, asset := range lib.JS {
			if asset.Type != catalog.AssetTypeFile {
				log.Warn().Str("library", lib.ID()).Str("asset", asset.Data).Str("type", asset.Type).
					Msg("Only file assets of bundled libraries are supported, skipping")
				r.metrics.RecordSkip(observability.SkipUnsupportedAssetType)
				continue
			}

			source := asset.Data
			if asset.Source != "" {
				source = asset.Source
			}
			fileID, err := catalog.ComputeFileID(lib.ID(), source)
			if err != nil {
				log.Error().Err(err).Str("library", lib.ID()).Msg("Failed to compute file id, skipping")
				continue
			}

			var data []string
			if devMode {
				data = r.devFiles(dev, fileID)
			} else {
				data = r.prodFiles(mapping, fileID)
			}

			for i, d := range data {
				key := asset.Data
				if i > 0 {
					key += strconv.Itoa(i)
				}
				existing, _ := target.Get(key)
				target.Set(key, bundleDescriptor(scope, d, existing))
				r.metrics.RecordDescriptor(mode, scope)
			}
		}
	}

	return result, nil
}

// devServer returns the recorded dev server when it can be used
func (r *Rewriter) devServer(ctx context.Context) (bundleinfo.DevServerInfo, bool) {
	info, err := r.info.DevServer(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to read dev server state")
		return bundleinfo.DevServerInfo{}, false
	}
	if info.Address == "" {
		return info, false
	}
	return info, r.probe.Available(ctx, info)
}

// devFiles returns the dev server URLs of fileID. Until the dev server
// printed its entrypoints the name is derived from the filename pattern.
func (r *Rewriter) devFiles(dev bundleinfo.DevServerInfo, fileID string) []string {
	files := dev.Files[fileID]
	if len(files) == 0 {
		files = []string{strings.ReplaceAll(r.filename, "[name]", fileID)}
	}

	urls := make([]string, len(files))
	for i, f := range files {
		urls[i] = dev.URL + "/" + strings.TrimLeft(f, "/")
	}
	return urls
}

// prodFiles returns the artifacts of fileID that exist on disk
func (r *Rewriter) prodFiles(mapping bundleinfo.Mapping, fileID string) []string {
	artifacts, ok := mapping[fileID]
	if !ok {
		log.Error().Str("file_id", fileID).Msg("Missing bundle mapping. Run `webpackbridge build` to fix.")
		r.metrics.RecordSkip(observability.SkipMissingBundleMapping)
		return nil
	}

	existing := make([]string, 0, len(artifacts))
	for _, artifact := range artifacts {
		if !r.paths.Exists(artifact) {
			log.Error().Str("file_id", fileID).Str("artifact", artifact).Msg("Bundle file not found. Run `webpackbridge build` to fix.")
			r.metrics.RecordSkip(observability.SkipStaleArtifact)
			continue
		}
		existing = append(existing, artifact)
	}
	return existing
}

// bundleDescriptor builds the descriptor of one bundle file. Fields the
// resolver already produced for the slot win over the defaults.
func bundleDescriptor(scope, data string, existing Descriptor) Descriptor {
	d := Descriptor{
		"type":       catalog.AssetTypeFile,
		"group":      JSDefault,
		"weight":     0,
		"cache":      false,
		"preprocess": false,
		"attributes": map[string]any{},
		"version":    nil,
		"browsers":   map[string]any{},
		"scope":      scope,
		"minified":   true,
	}
	for k, v := range existing {
		d[k] = v
	}
	d["data"] = data
	d["scope"] = scope
	return d
}
