// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
)

// MockRegistry implements catalog.Registry for testing
type MockRegistry struct {
	mu         sync.RWMutex
	extensions []catalog.Extension
	libraries  map[string]map[string]catalog.Library // extension -> name -> library

	// Callbacks for custom behavior
	OnExtensions func(ctx context.Context) ([]catalog.Extension, error)
	OnLibraries  func(ctx context.Context, extension string) (map[string]catalog.Library, error)

	librariesCalls int
}

// NewMockRegistry creates an empty mock registry
func NewMockRegistry() *MockRegistry {
	return &MockRegistry{
		libraries: make(map[string]map[string]catalog.Library),
	}
}

// AddExtension registers an extension. Adding a theme with the name of a
// module keeps both; Extension prefers the module.
func (m *MockRegistry) AddExtension(ext catalog.Extension) *MockRegistry {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.extensions = append(m.extensions, ext)
	if _, ok := m.libraries[ext.Name]; !ok {
		m.libraries[ext.Name] = make(map[string]catalog.Library)
	}
	return m
}

// AddLibrary registers a library on an already added extension
func (m *MockRegistry) AddLibrary(lib catalog.Library) *MockRegistry {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.libraries[lib.Extension]; !ok {
		m.libraries[lib.Extension] = make(map[string]catalog.Library)
	}
	m.libraries[lib.Extension][lib.Name] = lib
	return m
}

func (m *MockRegistry) Extensions(ctx context.Context) ([]catalog.Extension, error) {
	if m.OnExtensions != nil {
		return m.OnExtensions(ctx)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]catalog.Extension, len(m.extensions))
	copy(out, m.extensions)
	return out, nil
}

func (m *MockRegistry) Extension(ctx context.Context, name string) (catalog.Extension, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var theme *catalog.Extension
	for i, ext := range m.extensions {
		if ext.Name != name {
			continue
		}
		if ext.Type == catalog.ExtensionModule {
			return ext, nil
		}
		theme = &m.extensions[i]
	}
	if theme != nil {
		return *theme, nil
	}
	return catalog.Extension{}, fmt.Errorf("%w: %s", catalog.ErrExtensionNotFound, name)
}

func (m *MockRegistry) Libraries(ctx context.Context, extension string) (map[string]catalog.Library, error) {
	m.mu.Lock()
	m.librariesCalls++
	m.mu.Unlock()

	if m.OnLibraries != nil {
		return m.OnLibraries(ctx, extension)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	libs, ok := m.libraries[extension]
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrExtensionNotFound, extension)
	}

	out := make(map[string]catalog.Library, len(libs))
	for name, lib := range libs {
		out[name] = lib
	}
	return out, nil
}

// LibrariesCalls returns how many times Libraries was called
func (m *MockRegistry) LibrariesCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.librariesCalls
}

// JSFiles builds file assets for the given site-relative paths
func JSFiles(paths ...string) []catalog.JSAsset {
	assets := make([]catalog.JSAsset, len(paths))
	for i, p := range paths {
		assets[i] = catalog.JSAsset{Data: p, Type: catalog.AssetTypeFile}
	}
	return assets
}

// WriteStubBundler writes an executable shell script standing in for the
// bundler. The script receives the bundler's arguments as "$@".
func WriteStubBundler(t *testing.T, dir, body string) string {
	t.Helper()

	path := filepath.Join(dir, "stub-bundler.sh")
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0755); err != nil {
		t.Fatalf("failed to write stub bundler: %v", err)
	}
	return path
}

// WriteFiles creates files (and their directories) below root
func WriteFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		path := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to create %s: %v", filepath.Dir(path), err)
		}
		content := strings.TrimLeft(files[name], "\n")
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to write %s: %v", path, err)
		}
	}
}
