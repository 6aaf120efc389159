package catalog

import (
	"context"
	"errors"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// Catalog derives bundling information from a live Registry. It keeps no
// state between calls.
type Catalog struct {
	registry Registry
}

// New creates a catalog over registry
func New(registry Registry) *Catalog {
	return &Catalog{registry: registry}
}

// ListAllLibraries returns every library of every active extension, keyed by
// extension name and library name.
func (c *Catalog) ListAllLibraries(ctx context.Context) (map[string]map[string]Library, error) {
	extensions, err := c.registry.Extensions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list extensions: %w", err)
	}

	result := make(map[string]map[string]Library, len(extensions))
	owners := make(map[string]ExtensionType, len(extensions))
	for _, ext := range extensions {
		// a module shadows a theme of the same name
		if prev, ok := owners[ext.Name]; ok && (prev == ExtensionModule || ext.Type != ExtensionModule) {
			continue
		}
		owners[ext.Name] = ext.Type

		libraries, err := c.registry.Libraries(ctx, ext.Name)
		if err != nil {
			return nil, fmt.Errorf("failed to load libraries of %s: %w", ext.Name, err)
		}
		resolved := make(map[string]Library, len(libraries))
		for name, lib := range libraries {
			resolved[name] = withSourcePaths(lib, ext)
		}
		result[ext.Name] = resolved
	}

	return result, nil
}

// IsBundledLibrary reports whether the library opted into webpack
func IsBundledLibrary(lib Library) bool {
	return lib.Webpack
}

// ComputeFileID derives the id of a JS file: extension-library-basename,
// with a trailing .js removed.
func ComputeFileID(libraryID, filePath string) (string, error) {
	extension, name, err := SplitLibraryID(libraryID)
	if err != nil {
		return "", err
	}

	filename := strings.TrimSuffix(path.Base(filePath), ".js")
	return extension + "-" + name + "-" + filename, nil
}

// SplitLibraryID splits "extension/name"
func SplitLibraryID(libraryID string) (string, string, error) {
	parts := strings.Split(libraryID, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidIdentifier, libraryID)
	}
	return parts[0], parts[1], nil
}

// EntryPointsOf lists the entry points of one library. Source paths take
// precedence over served paths. Only local files are bundled; other asset
// types are skipped with a warning.
func EntryPointsOf(lib Library) ([]EntryPoint, error) {
	entries := make([]EntryPoint, 0, len(lib.JS))
	for _, asset := range lib.JS {
		if asset.Type != "" && asset.Type != AssetTypeFile {
			log.Warn().
				Str("library", lib.ID()).
				Str("asset", asset.Data).
				Str("type", asset.Type).
				Msg("Skipping non-file asset of bundled library")
			continue
		}
		p := asset.Data
		if asset.Source != "" {
			p = asset.Source
		}
		id, err := ComputeFileID(lib.ID(), p)
		if err != nil {
			return nil, err
		}
		entries = append(entries, EntryPoint{FileID: id, Path: p, LibraryID: lib.ID()})
	}
	return entries, nil
}

// ListEntryPoints returns every JS file of every bundled library, sorted by
// file id. Two files mapping to the same id fail with ErrFileIDCollision.
func (c *Catalog) ListEntryPoints(ctx context.Context) ([]EntryPoint, error) {
	all, err := c.ListAllLibraries(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]EntryPoint)
	for _, libraries := range all {
		for _, lib := range libraries {
			if !IsBundledLibrary(lib) {
				continue
			}
			entries, err := EntryPointsOf(lib)
			if err != nil {
				return nil, err
			}
			for _, entry := range entries {
				if prev, ok := seen[entry.FileID]; ok {
					return nil, fmt.Errorf("%w: %s is produced by both %s (%s) and %s (%s)",
						ErrFileIDCollision, entry.FileID, prev.Path, prev.LibraryID, entry.Path, entry.LibraryID)
				}
				seen[entry.FileID] = entry
			}
		}
	}

	result := make([]EntryPoint, 0, len(seen))
	for _, entry := range seen {
		result = append(result, entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].FileID < result[j].FileID })

	return result, nil
}

// GetLibrary returns one library as the registry declares it, without
// source path resolution. The boolean is false when it does not exist.
func (c *Catalog) GetLibrary(ctx context.Context, libraryID string) (Library, bool, error) {
	extension, name, err := SplitLibraryID(libraryID)
	if err != nil {
		return Library{}, false, err
	}

	libraries, err := c.registry.Libraries(ctx, extension)
	if err != nil {
		if errors.Is(err, ErrExtensionNotFound) {
			return Library{}, false, nil
		}
		return Library{}, false, err
	}

	lib, ok := libraries[name]
	return lib, ok, nil
}

// ResolveLibraryByID looks up one library and prefixes its source paths with
// the owning extension's path.
func (c *Catalog) ResolveLibraryByID(ctx context.Context, libraryID string) (Library, error) {
	extName, name, err := SplitLibraryID(libraryID)
	if err != nil {
		return Library{}, err
	}

	ext, err := c.registry.Extension(ctx, extName)
	if err != nil {
		if errors.Is(err, ErrExtensionNotFound) {
			return Library{}, fmt.Errorf("%w: %s", ErrLibraryNotFound, libraryID)
		}
		return Library{}, err
	}

	libraries, err := c.registry.Libraries(ctx, ext.Name)
	if err != nil {
		return Library{}, fmt.Errorf("failed to load libraries of %s: %w", ext.Name, err)
	}

	lib, ok := libraries[name]
	if !ok {
		return Library{}, fmt.Errorf("%w: %s", ErrLibraryNotFound, libraryID)
	}

	log.Debug().Str("library", libraryID).Str("extension_path", ext.Path).Msg("Resolved library")
	return withSourcePaths(lib, ext), nil
}

// withSourcePaths returns a copy of lib whose source paths are relative to
// the site root instead of the extension.
func withSourcePaths(lib Library, ext Extension) Library {
	js := make([]JSAsset, len(lib.JS))
	for i, asset := range lib.JS {
		if asset.Source != "" {
			asset.Source = path.Join(ext.Path, asset.Source)
		}
		js[i] = asset
	}
	lib.JS = js
	return lib
}
