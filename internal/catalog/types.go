// Package catalog answers which JavaScript files of the active extensions
// are handed to webpack and what they are called.
package catalog

import (
	"context"
	"errors"
)

var (
	// ErrInvalidIdentifier is returned for library ids that are not "extension/name"
	ErrInvalidIdentifier = errors.New("the provided library id is not valid, expected format: [extension_name]/[library_name]")
	// ErrLibraryNotFound is returned when the extension or the library does not exist
	ErrLibraryNotFound = errors.New("library not found")
	// ErrExtensionNotFound is returned by registries for unknown extensions
	ErrExtensionNotFound = errors.New("extension not found")
	// ErrFileIDCollision is returned when two entry points would share a file id
	ErrFileIDCollision = errors.New("file id collision")
)

// ExtensionType distinguishes modules from themes
type ExtensionType string

const (
	ExtensionModule ExtensionType = "module"
	ExtensionTheme  ExtensionType = "theme"
)

// Asset types as declared in library definitions
const (
	AssetTypeFile     = "file"
	AssetTypeExternal = "external"
)

// Extension is an installable unit that can declare libraries
type Extension struct {
	Name string        `json:"name" yaml:"name"`
	Type ExtensionType `json:"type" yaml:"type"`
	Path string        `json:"path" yaml:"path"` // relative to the site root
}

// JSAsset is one script of a library
type JSAsset struct {
	Data    string         `json:"data" yaml:"data"`                         // path relative to the site root
	Type    string         `json:"type" yaml:"type"`                         // file or external
	Source  string         `json:"source,omitempty" yaml:"source,omitempty"` // unbuilt source, used for entry points when set
	Options map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// CSSAsset is one stylesheet of a library
type CSSAsset struct {
	Data     string         `json:"data" yaml:"data"`
	Type     string         `json:"type" yaml:"type"`
	Category string         `json:"category" yaml:"category"` // base, layout, component, state or theme
	Options  map[string]any `json:"options,omitempty" yaml:"options,omitempty"`
}

// Library is a named group of assets declared by an extension
type Library struct {
	Extension    string     `json:"extension" yaml:"extension"`
	Name         string     `json:"name" yaml:"name"`
	JS           []JSAsset  `json:"js" yaml:"js"`
	CSS          []CSSAsset `json:"css,omitempty" yaml:"css,omitempty"`
	Webpack      bool       `json:"webpack" yaml:"webpack"`
	Header       bool       `json:"header" yaml:"header"`
	Dependencies []string   `json:"dependencies,omitempty" yaml:"dependencies,omitempty"`
}

// ID returns "extension/name"
func (l Library) ID() string {
	return l.Extension + "/" + l.Name
}

// Scope returns the placement of the library's scripts
func (l Library) Scope() string {
	if l.Header {
		return "header"
	}
	return "footer"
}

// EntryPoint is one JS file handed to the bundler
type EntryPoint struct {
	FileID    string `json:"file_id"`
	Path      string `json:"path"` // relative to the site root
	LibraryID string `json:"library_id"`
}

// Registry is the CMS extension and library discovery service
type Registry interface {
	// Extensions lists the active modules and themes
	Extensions(ctx context.Context) ([]Extension, error)

	// Extension looks up one active extension, preferring modules over themes.
	// Returns ErrExtensionNotFound when absent.
	Extension(ctx context.Context, name string) (Extension, error)

	// Libraries returns the library definitions of one extension keyed by name
	Libraries(ctx context.Context, extension string) (map[string]Library, error)
}
