// Package bundleinfo persists what the bundler produced: the production
// bundle mapping and the state of a running dev server.
package bundleinfo

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/settings"
	"github.com/fluxbase-eu/webpackbridge/internal/sitepath"
	"github.com/fluxbase-eu/webpackbridge/internal/state"
)

// State keys
const (
	KeyBundleMapping = "webpack_bundle_mapping"
	KeyServeURL      = "webpack_serve_url"
	KeyServeFiles    = "webpack_serve_files"
	KeyServeSession  = "webpack_serve_session"
)

// Configuration object holding the mapping when it is versioned with the site
const (
	BuildMetadataObject = "webpack.build_metadata"
	BundleMappingKey    = "bundle_mapping"
)

// Storage says where the bundle mapping lives
type Storage string

const (
	// StorageState keeps the mapping in the runtime state store. Used when
	// bundles are written to public files, which are not deployed with code.
	StorageState Storage = "state"
	// StorageConfig keeps the mapping in versioned configuration, next to
	// bundles committed with the code.
	StorageConfig Storage = "config"
)

// Mapping is FileID -> artifact URIs, entry chunk and shared chunks in the
// order the bundler reported them
type Mapping map[string][]string

// Session identifies the process running a dev server
type Session struct {
	Token        string `json:"token"`
	PID          int32  `json:"pid"`
	Hostname     string `json:"hostname"`
	ProcessStart int64  `json:"process_start"` // process create time, ms since epoch
}

// DevServerInfo describes the dev server as last recorded
type DevServerInfo struct {
	Address string              `json:"address"`
	URL     string              `json:"url"`
	Files   map[string][]string `json:"files"`
	Session *Session            `json:"session,omitempty"`
}

// Store reads and writes bundle information
type Store struct {
	state      state.Store
	config     *settings.Store
	outputPath string

	// serializes read-modify-write of served files
	mu sync.Mutex
}

// New creates a store. outputPath decides the mapping storage.
func New(st state.Store, config *settings.Store, outputPath string) *Store {
	return &Store{state: st, config: config, outputPath: outputPath}
}

// OutputPath returns the configured output path, in URI form
func (s *Store) OutputPath() string {
	return s.outputPath
}

// MappingStorage returns StorageState for public:// output paths and
// StorageConfig otherwise.
func (s *Store) MappingStorage() Storage {
	if sitepath.IsPublic(s.outputPath) {
		return StorageState
	}
	return StorageConfig
}

// SetBundleMapping replaces the stored mapping
func (s *Store) SetBundleMapping(ctx context.Context, mapping Mapping) error {
	if mapping == nil {
		mapping = Mapping{}
	}

	switch s.MappingStorage() {
	case StorageState:
		if err := state.SetJSON(ctx, s.state, KeyBundleMapping, mapping); err != nil {
			return fmt.Errorf("failed to store bundle mapping: %w", err)
		}
	default:
		obj, err := s.config.Editable(BuildMetadataObject)
		if err != nil {
			return err
		}
		if err := obj.Set(BundleMappingKey, map[string][]string(mapping)); err != nil {
			return err
		}
		if err := obj.Save(); err != nil {
			return fmt.Errorf("failed to store bundle mapping: %w", err)
		}
	}

	log.Debug().Str("storage", string(s.MappingStorage())).Int("files", len(mapping)).Msg("Bundle mapping stored")
	return nil
}

// BundleMapping returns the stored mapping, empty when none was stored
func (s *Store) BundleMapping(ctx context.Context) (Mapping, error) {
	mapping := Mapping{}

	switch s.MappingStorage() {
	case StorageState:
		if _, err := state.GetJSON(ctx, s.state, KeyBundleMapping, &mapping); err != nil {
			return nil, err
		}
		if mapping == nil {
			mapping = Mapping{}
		}
	default:
		obj, err := s.config.Get(BuildMetadataObject)
		if err != nil {
			return nil, err
		}
		mapping = Mapping(obj.StringListMap(BundleMappingKey))
	}

	return mapping, nil
}

// ServeURL returns http://host:port of the recorded dev server, or ""
func (s *Store) ServeURL(ctx context.Context) (string, error) {
	var address string
	if _, err := state.GetJSON(ctx, s.state, KeyServeURL, &address); err != nil {
		return "", err
	}
	return addressToURL(address), nil
}

// ResetDevServer forgets the dev server address, served files and session
func (s *Store) ResetDevServer(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range []string{KeyServeURL, KeyServeFiles, KeyServeSession} {
		if err := s.state.Delete(ctx, key); err != nil {
			return fmt.Errorf("failed to reset %s: %w", key, err)
		}
	}
	return nil
}

// SetServeAddress records the host:port the dev server listens on
func (s *Store) SetServeAddress(ctx context.Context, address string) error {
	return state.SetJSON(ctx, s.state, KeyServeURL, address)
}

// SetSession records the process running the dev server
func (s *Store) SetSession(ctx context.Context, session Session) error {
	return state.SetJSON(ctx, s.state, KeyServeSession, session)
}

// AddServedFiles appends filenames served for fileID, ignoring duplicates
func (s *Store) AddServedFiles(ctx context.Context, fileID string, files []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	served := map[string][]string{}
	if _, err := state.GetJSON(ctx, s.state, KeyServeFiles, &served); err != nil {
		return err
	}
	if served == nil {
		served = map[string][]string{}
	}

	existing := served[fileID]
	for _, f := range files {
		if !slices.Contains(existing, f) {
			existing = append(existing, f)
		}
	}
	served[fileID] = existing

	return state.SetJSON(ctx, s.state, KeyServeFiles, served)
}

// DevServer returns everything recorded about the dev server
func (s *Store) DevServer(ctx context.Context) (DevServerInfo, error) {
	info := DevServerInfo{Files: map[string][]string{}}

	if _, err := state.GetJSON(ctx, s.state, KeyServeURL, &info.Address); err != nil {
		return DevServerInfo{}, err
	}
	info.URL = addressToURL(info.Address)

	if _, err := state.GetJSON(ctx, s.state, KeyServeFiles, &info.Files); err != nil {
		return DevServerInfo{}, err
	}
	if info.Files == nil {
		info.Files = map[string][]string{}
	}

	var session Session
	found, err := state.GetJSON(ctx, s.state, KeyServeSession, &session)
	if err != nil {
		return DevServerInfo{}, err
	}
	if found {
		info.Session = &session
	}

	return info, nil
}

// FileIDs returns the served file ids in order
func (i DevServerInfo) FileIDs() []string {
	ids := make([]string, 0, len(i.Files))
	for id := range i.Files {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func addressToURL(address string) string {
	if address == "" {
		return ""
	}
	if strings.HasPrefix(address, "http://") || strings.HasPrefix(address, "https://") {
		return address
	}
	return "http://" + address
}
