package bundleinfo

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/webpackbridge/internal/settings"
	"github.com/fluxbase-eu/webpackbridge/internal/state"
)

func newStore(t *testing.T, outputPath string) (*Store, state.Store, *settings.Store) {
	t.Helper()
	st := state.NewMemoryStore()
	t.Cleanup(func() { st.Close() })
	cfg := settings.NewStore(filepath.Join(t.TempDir(), "sync"))
	return New(st, cfg, outputPath), st, cfg
}

func TestMappingStorage(t *testing.T) {
	s, _, _ := newStore(t, "public://webpack")
	assert.Equal(t, StorageState, s.MappingStorage())

	s, _, _ = newStore(t, "dist/webpack")
	assert.Equal(t, StorageConfig, s.MappingStorage())

	s, _, _ = newStore(t, "temporary://webpack")
	assert.Equal(t, StorageConfig, s.MappingStorage())
}

func TestBundleMapping_State(t *testing.T) {
	ctx := context.Background()
	s, st, _ := newStore(t, "public://webpack")

	empty, err := s.BundleMapping(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	first := Mapping{"a": {"public://webpack/a.bundle.js"}, "b": {"public://webpack/b.bundle.js"}}
	require.NoError(t, s.SetBundleMapping(ctx, first))

	second := Mapping{"c": {"public://webpack/vendors.bundle.js", "public://webpack/c.bundle.js"}}
	require.NoError(t, s.SetBundleMapping(ctx, second))

	got, err := s.BundleMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, got, "set replaces the whole mapping")

	raw, err := st.Get(ctx, KeyBundleMapping)
	require.NoError(t, err)
	assert.JSONEq(t, `{"c":["public://webpack/vendors.bundle.js","public://webpack/c.bundle.js"]}`, string(raw))
}

func TestBundleMapping_Config(t *testing.T) {
	ctx := context.Background()
	s, st, cfg := newStore(t, "dist/webpack")

	m := Mapping{"a": {"dist/webpack/a.bundle.js", "dist/webpack/shared.bundle.js"}}
	require.NoError(t, s.SetBundleMapping(ctx, m))

	got, err := s.BundleMapping(ctx)
	require.NoError(t, err)
	assert.Equal(t, m, got)

	obj, err := cfg.Get(BuildMetadataObject)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string(m), obj.StringListMap(BundleMappingKey))

	raw, err := st.Get(ctx, KeyBundleMapping)
	require.NoError(t, err)
	assert.Nil(t, raw, "state is untouched")
}

func TestDevServer(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newStore(t, "public://webpack")

	url, err := s.ServeURL(ctx)
	require.NoError(t, err)
	assert.Empty(t, url)

	info, err := s.DevServer(ctx)
	require.NoError(t, err)
	assert.Empty(t, info.Address)
	assert.Empty(t, info.Files)
	assert.Nil(t, info.Session)

	require.NoError(t, s.SetServeAddress(ctx, "localhost:1234"))
	require.NoError(t, s.SetSession(ctx, Session{Token: "tok", PID: 42, Hostname: "box"}))
	require.NoError(t, s.AddServedFiles(ctx, "myext-mylib-a", []string{"myext-mylib-a.bundle.js"}))
	require.NoError(t, s.AddServedFiles(ctx, "myext-mylib-a", []string{"myext-mylib-a.bundle.js", "vendors.bundle.js"}))
	require.NoError(t, s.AddServedFiles(ctx, "myext-mylib-b", []string{"myext-mylib-b.bundle.js"}))

	url, err = s.ServeURL(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:1234", url)

	info, err = s.DevServer(ctx)
	require.NoError(t, err)
	assert.Equal(t, "localhost:1234", info.Address)
	assert.Equal(t, "http://localhost:1234", info.URL)
	assert.Equal(t, []string{"myext-mylib-a.bundle.js", "vendors.bundle.js"}, info.Files["myext-mylib-a"])
	assert.Equal(t, []string{"myext-mylib-a", "myext-mylib-b"}, info.FileIDs())
	require.NotNil(t, info.Session)
	assert.Equal(t, int32(42), info.Session.PID)

	require.NoError(t, s.ResetDevServer(ctx))
	info, err = s.DevServer(ctx)
	require.NoError(t, err)
	assert.Empty(t, info.Address)
	assert.Empty(t, info.Files)
	assert.Nil(t, info.Session)
}
