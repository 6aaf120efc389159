package settings

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{name: "owner and object", key: "webpack.settings"},
		{name: "nested", key: "webpack.build_metadata"},
		{name: "no owner", key: "settings", wantErr: true},
		{name: "path traversal", key: "../etc.passwd", wantErr: true},
		{name: "uppercase", key: "Webpack.Settings", wantErr: true},
		{name: "empty", key: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateName(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidName)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestStore_MissingObjectIsEmpty(t *testing.T) {
	store := NewStore(filepath.Join(t.TempDir(), "sync"))

	obj, err := store.Get("webpack.build_metadata")
	require.NoError(t, err)
	assert.Nil(t, obj.Get("bundle_mapping"))
	assert.Empty(t, obj.StringListMap("bundle_mapping"))
}

func TestStore_EditableRoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "sync")
	store := NewStore(dir)

	obj, err := store.Editable("webpack.build_metadata")
	require.NoError(t, err)
	require.NoError(t, obj.Set("bundle_mapping", map[string][]string{
		"myext-mylib-a": {"dist/vendors.bundle.js", "dist/myext-mylib-a.bundle.js"},
	}))

	// nothing is written before Save
	_, err = os.Stat(filepath.Join(dir, "webpack.build_metadata.yml"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, obj.Save())

	reread, err := NewStore(dir).Get("webpack.build_metadata")
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		"myext-mylib-a": {"dist/vendors.bundle.js", "dist/myext-mylib-a.bundle.js"},
	}, reread.StringListMap("bundle_mapping"))

	names, err := store.Names()
	require.NoError(t, err)
	assert.Equal(t, []string{"webpack.build_metadata"}, names)
}

func TestStore_ReadOnlyObject(t *testing.T) {
	store := NewStore(t.TempDir())

	obj, err := store.Get("webpack.settings")
	require.NoError(t, err)
	assert.ErrorIs(t, obj.Set("output_path", "dist"), ErrImmutable)
	assert.ErrorIs(t, obj.Save(), ErrImmutable)
}

func TestStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "webpack.settings.yml"), []byte("output_path: [unclosed"), 0644))

	_, err := NewStore(dir).Get("webpack.settings")
	assert.Error(t, err)
}

func TestValidateOutputPath(t *testing.T) {
	assert.NoError(t, ValidateOutputPath("public://webpack"))
	assert.NoError(t, ValidateOutputPath("dist/webpack"))
	assert.ErrorIs(t, ValidateOutputPath("/var/www/dist"), ErrAbsoluteOutputPath)
	assert.Error(t, ValidateOutputPath("  "))
}

func TestOutputPath(t *testing.T) {
	store := NewStore(t.TempDir())

	got, err := OutputPath(store, "public://webpack")
	require.NoError(t, err)
	assert.Equal(t, "public://webpack", got, "falls back when unset")

	require.NoError(t, SetOutputPath(store, "dist"))
	got, err = OutputPath(store, "public://webpack")
	require.NoError(t, err)
	assert.Equal(t, "dist", got)

	assert.ErrorIs(t, SetOutputPath(store, "/abs"), ErrAbsoluteOutputPath)
	got, err = OutputPath(store, "public://webpack")
	require.NoError(t, err)
	assert.Equal(t, "dist", got, "rejected value is not stored")
}
