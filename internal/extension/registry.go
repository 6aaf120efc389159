// Package extension discovers modules and themes of a site on disk and
// parses their *.libraries.yml definitions.
package extension

import (
	"context"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
)

// DefaultSearchPatterns are the locations scanned for *.info.yml files,
// relative to the site root.
var DefaultSearchPatterns = []string{
	"core/modules/**/*.info.yml",
	"core/themes/**/*.info.yml",
	"modules/**/*.info.yml",
	"themes/**/*.info.yml",
	"profiles/**/*.info.yml",
	"sites/*/modules/**/*.info.yml",
	"sites/*/themes/**/*.info.yml",
}

// FileRegistry implements catalog.Registry over a site directory
type FileRegistry struct {
	root     string
	active   map[string]bool // nil means every discovered extension is active
	patterns []string
}

// NewFileRegistry creates a registry rooted at the site root. When active is
// non-empty only the named extensions are reported.
func NewFileRegistry(root string, active []string) *FileRegistry {
	r := &FileRegistry{
		root:     root,
		patterns: DefaultSearchPatterns,
	}
	if len(active) > 0 {
		r.active = make(map[string]bool, len(active))
		for _, name := range active {
			r.active[name] = true
		}
	}
	return r
}

type infoFile struct {
	Name   string `yaml:"name"`
	Type   string `yaml:"type"`
	Hidden bool   `yaml:"hidden"`
}

// Extensions scans the site for active modules and themes
func (r *FileRegistry) Extensions(ctx context.Context) ([]catalog.Extension, error) {
	fsys := os.DirFS(r.root)
	seen := make(map[string]bool)
	var extensions []catalog.Extension

	if _, err := os.Stat(filepath.Join(r.root, "core", "core.libraries.yml")); err == nil && r.isActive("core") {
		extensions = append(extensions, catalog.Extension{Name: "core", Type: catalog.ExtensionModule, Path: "core"})
		seen["module:core"] = true
	}

	for _, pattern := range r.patterns {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		matches, err := doublestar.Glob(fsys, pattern)
		if err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", pattern, err)
		}
		sort.Strings(matches)

		for _, match := range matches {
			if strings.Contains(match, "/node_modules/") || strings.Contains(match, "/tests/") {
				continue
			}

			ext, ok, err := r.readInfo(match)
			if err != nil {
				log.Warn().Err(err).Str("file", match).Msg("Skipping unreadable extension info file")
				continue
			}
			if !ok || !r.isActive(ext.Name) {
				continue
			}

			key := string(ext.Type) + ":" + ext.Name
			if seen[key] {
				continue
			}
			seen[key] = true
			extensions = append(extensions, ext)
		}
	}

	return extensions, nil
}

// Extension returns a module by name, or a theme when no module matches
func (r *FileRegistry) Extension(ctx context.Context, name string) (catalog.Extension, error) {
	extensions, err := r.Extensions(ctx)
	if err != nil {
		return catalog.Extension{}, err
	}

	var theme *catalog.Extension
	for i := range extensions {
		if extensions[i].Name != name {
			continue
		}
		if extensions[i].Type == catalog.ExtensionModule {
			return extensions[i], nil
		}
		theme = &extensions[i]
	}
	if theme != nil {
		return *theme, nil
	}

	return catalog.Extension{}, fmt.Errorf("%w: %s", catalog.ErrExtensionNotFound, name)
}

// Libraries parses <extension>.libraries.yml. A missing file yields no libraries.
func (r *FileRegistry) Libraries(ctx context.Context, name string) (map[string]catalog.Library, error) {
	ext, err := r.Extension(ctx, name)
	if err != nil {
		return nil, err
	}

	file := filepath.Join(r.root, filepath.FromSlash(ext.Path), ext.Name+".libraries.yml")
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]catalog.Library{}, nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", file, err)
	}

	libraries, err := ParseLibraries(ext, data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", file, err)
	}
	return libraries, nil
}

func (r *FileRegistry) isActive(name string) bool {
	return r.active == nil || r.active[name]
}

func (r *FileRegistry) readInfo(rel string) (catalog.Extension, bool, error) {
	data, err := os.ReadFile(filepath.Join(r.root, filepath.FromSlash(rel)))
	if err != nil {
		return catalog.Extension{}, false, err
	}

	var info infoFile
	if err := yaml.Unmarshal(data, &info); err != nil {
		return catalog.Extension{}, false, err
	}
	if info.Hidden {
		return catalog.Extension{}, false, nil
	}

	var extType catalog.ExtensionType
	switch info.Type {
	case "module", "profile":
		extType = catalog.ExtensionModule
	case "theme":
		extType = catalog.ExtensionTheme
	default:
		return catalog.Extension{}, false, nil
	}

	return catalog.Extension{
		Name: strings.TrimSuffix(path.Base(rel), ".info.yml"),
		Type: extType,
		Path: path.Dir(rel),
	}, true, nil
}
