package assets

import (
	"context"
	"fmt"

	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
)

// cssWeights orders stylesheets by SMACSS category
var cssWeights = map[string]int{
	"base":      -200,
	"layout":    -100,
	"component": 0,
	"state":     100,
	"theme":     200,
}

// CSS groups
const (
	CSSAggregateDefault = 0
	CSSAggregateTheme   = 100
)

// CatalogResolver resolves assets straight from library definitions. It
// stands in for the CMS resolver when the service runs on its own and does
// no aggregation, so optimize is ignored.
type CatalogResolver struct {
	catalog *catalog.Catalog
}

// NewCatalogResolver creates a resolver over c
func NewCatalogResolver(c *catalog.Catalog) *CatalogResolver {
	return &CatalogResolver{catalog: c}
}

// LibrariesToLoad returns the requested libraries preceded by their
// dependencies. Libraries already loaded, and their dependencies, are left out.
func (r *CatalogResolver) LibrariesToLoad(ctx context.Context, assets *AttachedAssets) ([]string, error) {
	loaded := map[string]bool{}
	var discard []string
	for _, id := range assets.AlreadyLoaded {
		if err := r.expand(ctx, id, loaded, &discard); err != nil {
			return nil, err
		}
	}

	visited := map[string]bool{}
	var ordered []string
	for _, id := range assets.Libraries {
		if err := r.expand(ctx, id, visited, &ordered); err != nil {
			return nil, err
		}
	}

	result := make([]string, 0, len(ordered))
	for _, id := range ordered {
		if !loaded[id] {
			result = append(result, id)
		}
	}
	return result, nil
}

func (r *CatalogResolver) expand(ctx context.Context, id string, visited map[string]bool, out *[]string) error {
	if visited[id] {
		return nil
	}
	visited[id] = true

	lib, ok, err := r.catalog.GetLibrary(ctx, id)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrLibraryNotFound, id)
	}

	for _, dep := range lib.Dependencies {
		if err := r.expand(ctx, dep, visited, out); err != nil {
			return err
		}
	}
	*out = append(*out, id)
	return nil
}

// JSAssets returns one descriptor per script, keyed by its path
func (r *CatalogResolver) JSAssets(ctx context.Context, assets *AttachedAssets, optimize bool) (JSAssets, error) {
	result := NewJSAssets()

	libraries, err := r.LibrariesToLoad(ctx, assets)
	if err != nil {
		return result, err
	}

	for _, id := range libraries {
		lib, _, err := r.catalog.GetLibrary(ctx, id)
		if err != nil {
			return result, err
		}

		scope := lib.Scope()
		for _, asset := range lib.JS {
			d := Descriptor{
				"type":       asset.Type,
				"group":      JSDefault,
				"weight":     0,
				"cache":      true,
				"preprocess": true,
				"attributes": map[string]any{},
				"version":    nil,
				"browsers":   map[string]any{},
				"minified":   false,
			}
			for k, v := range asset.Options {
				d[k] = v
			}
			d["scope"] = scope
			d["data"] = asset.Data
			result.Scope(scope).Set(asset.Data, d)
		}
	}

	return result, nil
}

// CSSAssets returns one descriptor per stylesheet, keyed by its path
func (r *CatalogResolver) CSSAssets(ctx context.Context, assets *AttachedAssets, optimize bool) (*Collection, error) {
	result := NewCollection()

	libraries, err := r.LibrariesToLoad(ctx, assets)
	if err != nil {
		return result, err
	}

	for _, id := range libraries {
		lib, _, err := r.catalog.GetLibrary(ctx, id)
		if err != nil {
			return result, err
		}

		for _, asset := range lib.CSS {
			group := CSSAggregateDefault
			if asset.Category == "theme" {
				group = CSSAggregateTheme
			}
			d := Descriptor{
				"type":       asset.Type,
				"group":      group,
				"weight":     cssWeights[asset.Category],
				"media":      "all",
				"preprocess": true,
				"browsers":   map[string]any{},
			}
			for k, v := range asset.Options {
				d[k] = v
			}
			d["data"] = asset.Data
			result.Set(asset.Data, d)
		}
	}

	return result, nil
}
