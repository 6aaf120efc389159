package sitepath

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	root := t.TempDir()
	tmp := t.TempDir()
	p, err := New(root, "sites/default/files", tmp)
	require.NoError(t, err)

	tests := []struct {
		name    string
		uri     string
		want    string
		wantErr bool
	}{
		{name: "public scheme", uri: "public://webpack", want: filepath.Join(root, "sites/default/files/webpack")},
		{name: "temporary scheme", uri: "temporary://webpack.config.js", want: filepath.Join(tmp, "webpack.config.js")},
		{name: "relative path", uri: "dist/js", want: filepath.Join(root, "dist/js")},
		{name: "absolute path", uri: "/var/www/dist", want: "/var/www/dist"},
		{name: "unknown scheme", uri: "private://x", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := p.Resolve(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestIsPublic(t *testing.T) {
	assert.True(t, IsPublic("public://webpack"))
	assert.False(t, IsPublic("dist/webpack"))
	assert.False(t, IsPublic("temporary://webpack"))
}

func TestPrepare(t *testing.T) {
	root := t.TempDir()
	p, err := New(root, "files", "")
	require.NoError(t, err)

	t.Run("creates missing directory", func(t *testing.T) {
		dir, err := p.Prepare("public://webpack/bundles")
		require.NoError(t, err)

		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("fails when path is a file", func(t *testing.T) {
		blocker := filepath.Join(root, "blocker")
		require.NoError(t, os.WriteFile(blocker, []byte("x"), 0644))

		_, err := p.Prepare("blocker/sub")
		assert.Error(t, err)
	})
}

func TestExists(t *testing.T) {
	root := t.TempDir()
	p, err := New(root, "files", "")
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(root, "files"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "files", "a.js"), []byte("x"), 0644))

	assert.True(t, p.Exists("public://a.js"))
	assert.False(t, p.Exists("public://b.js"))
}
