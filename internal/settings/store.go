// Package settings stores versioned configuration objects as YAML files, one
// file per object, in a directory meant to be committed with the site.
package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

var (
	// ErrInvalidName is returned for object names that cannot be used as file names
	ErrInvalidName = errors.New("invalid configuration object name")
	// ErrImmutable is returned when writing to an object opened with Get
	ErrImmutable = errors.New("configuration object is read-only")
)

var namePattern = regexp.MustCompile(`^[a-z0-9_]+(\.[a-z0-9_]+)+$`)

// ValidateName checks that name looks like "owner.object"
func ValidateName(name string) error {
	if !namePattern.MatchString(name) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Store reads and writes configuration objects below dir
type Store struct {
	dir string
	mu  sync.Mutex
}

// NewStore creates a store rooted at dir. The directory is created on first save.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// Dir returns the directory holding the YAML files
func (s *Store) Dir() string {
	return s.dir
}

// Get opens an object for reading. A missing object is empty.
func (s *Store) Get(name string) (*Object, error) {
	return s.open(name, false)
}

// Editable opens an object for modification. Changes are persisted by Save.
func (s *Store) Editable(name string) (*Object, error) {
	return s.open(name, true)
}

// Names lists the stored objects
func (s *Store) Names() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".yml" {
			continue
		}
		names = append(names, entry.Name()[:len(entry.Name())-len(".yml")])
	}
	sort.Strings(names)
	return names, nil
}

func (s *Store) open(name string, editable bool) (*Object, error) {
	if err := ValidateName(name); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	data := make(map[string]any)
	raw, err := os.ReadFile(s.path(name))
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read %s: %w", name, err)
	default:
		if err := yaml.Unmarshal(raw, &data); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", name, err)
		}
		if data == nil {
			data = make(map[string]any)
		}
	}

	return &Object{name: name, data: data, store: s, editable: editable}, nil
}

func (s *Store) save(o *Object) error {
	raw, err := yaml.Marshal(o.data)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", o.name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create settings directory: %w", err)
	}
	if err := os.WriteFile(s.path(o.name), raw, 0644); err != nil {
		return fmt.Errorf("failed to save %s: %w", o.name, err)
	}

	log.Debug().Str("object", o.name).Str("dir", s.dir).Msg("Configuration saved")
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".yml")
}

// Object is one configuration object: a flat set of top-level keys
type Object struct {
	name     string
	data     map[string]any
	store    *Store
	editable bool
}

// Name returns the object name
func (o *Object) Name() string {
	return o.name
}

// Get returns the value of key, nil when unset
func (o *Object) Get(key string) any {
	return o.data[key]
}

// String returns the value of key when it is a string
func (o *Object) String(key string) string {
	s, _ := o.data[key].(string)
	return s
}

// StringListMap returns the value of key as a map of string lists
func (o *Object) StringListMap(key string) map[string][]string {
	out := make(map[string][]string)
	switch m := o.data[key].(type) {
	case map[string]any:
		for k, v := range m {
			out[k] = toStrings(v)
		}
	case map[string][]string:
		for k, v := range m {
			out[k] = append([]string(nil), v...)
		}
	}
	return out
}

func toStrings(v any) []string {
	switch t := v.(type) {
	case []any:
		out := make([]string, 0, len(t))
		for _, item := range t {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case []string:
		return append([]string(nil), t...)
	case string:
		return []string{t}
	}
	return nil
}

// Data returns a shallow copy of all keys
func (o *Object) Data() map[string]any {
	out := make(map[string]any, len(o.data))
	for k, v := range o.data {
		out[k] = v
	}
	return out
}

// Set changes key in memory
func (o *Object) Set(key string, value any) error {
	if !o.editable {
		return fmt.Errorf("%w: %s", ErrImmutable, o.name)
	}
	o.data[key] = value
	return nil
}

// Save persists the object
func (o *Object) Save() error {
	if !o.editable {
		return fmt.Errorf("%w: %s", ErrImmutable, o.name)
	}
	return o.store.save(o)
}
