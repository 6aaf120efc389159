// Package sitepath resolves CMS stream URIs (public://, temporary://) and
// site-relative paths to filesystem paths.
package sitepath

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// PublicScheme is the prefix of URIs that live in the public files directory.
	PublicScheme = "public://"
	// TemporaryScheme is the prefix of URIs that live in the scratch directory.
	TemporaryScheme = "temporary://"
)

// Paths maps URIs onto the filesystem of one site.
type Paths struct {
	Root       string // site root, absolute
	PublicPath string // public files directory, relative to Root unless absolute
	TempPath   string // scratch directory, absolute
}

// New returns Paths with Root made absolute and TempPath defaulted to the OS temp dir.
func New(root, publicPath, tempPath string) (*Paths, error) {
	if root == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve site root %q: %w", root, err)
	}
	if tempPath == "" {
		tempPath = os.TempDir()
	}
	return &Paths{
		Root:       abs,
		PublicPath: publicPath,
		TempPath:   tempPath,
	}, nil
}

// IsPublic reports whether uri is under the public files scheme.
func IsPublic(uri string) bool {
	return strings.HasPrefix(uri, PublicScheme)
}

// Resolve turns a stream URI or a site-relative path into an absolute path.
func (p *Paths) Resolve(uri string) (string, error) {
	switch {
	case strings.HasPrefix(uri, PublicScheme):
		return filepath.Join(p.publicDir(), strings.TrimPrefix(uri, PublicScheme)), nil
	case strings.HasPrefix(uri, TemporaryScheme):
		return filepath.Join(p.TempPath, strings.TrimPrefix(uri, TemporaryScheme)), nil
	case strings.Contains(uri, "://"):
		return "", fmt.Errorf("unsupported stream wrapper in %q", uri)
	case filepath.IsAbs(uri):
		return filepath.Clean(uri), nil
	default:
		return filepath.Join(p.Root, uri), nil
	}
}

// Prepare resolves uri as a directory, creates it when missing and checks
// that it is writable. It returns the absolute directory path.
func (p *Paths) Prepare(uri string) (string, error) {
	dir, err := p.Resolve(uri)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write-check-*")
	if err != nil {
		return "", fmt.Errorf("directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)

	return dir, nil
}

// Exists reports whether the file behind uri is present.
func (p *Paths) Exists(uri string) bool {
	path, err := p.Resolve(uri)
	if err != nil {
		return false
	}
	_, err = os.Stat(path)
	return err == nil
}

func (p *Paths) publicDir() string {
	if filepath.IsAbs(p.PublicPath) {
		return p.PublicPath
	}
	return filepath.Join(p.Root, p.PublicPath)
}
