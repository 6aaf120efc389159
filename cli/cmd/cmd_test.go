package cmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/webpackbridge/internal/bundler"
	"github.com/fluxbase-eu/webpackbridge/internal/settings"
	"github.com/fluxbase-eu/webpackbridge/internal/testutil"
)

// site writes a site with one bundled library and a config file using
// script as the bundler. It returns the site root and the config path.
func site(t *testing.T, script string) (string, string) {
	t.Helper()

	root := t.TempDir()
	testutil.WriteFiles(t, root, map[string]string{
		"modules/myext/myext.info.yml": "name: My extension\ntype: module\n",
		"modules/myext/myext.libraries.yml": `
mylib:
  webpack: true
  js:
    js/a.js: {}
plain:
  js:
    js/plain.js: {}
`,
	})

	stub := testutil.WriteStubBundler(t, t.TempDir(), strings.ReplaceAll(script, "$ROOT", root))

	configPath := filepath.Join(t.TempDir(), "webpackbridge.yaml")
	config := fmt.Sprintf(`
site:
  root: %[1]s
  public_path: files
  temp_path: %[2]s
webpack:
  build_command: [%[3]s]
  serve_command: [%[3]s]
  resolve_node_modules: false
state:
  backend: local
  path: %[1]s/state.json
settings:
  dir: config/sync
`, root, t.TempDir(), stub)
	require.NoError(t, os.WriteFile(configPath, []byte(config), 0644))

	return root, configPath
}

const successfulBuild = `
mkdir -p "$ROOT/files/webpack"
touch "$ROOT/files/webpack/myext-mylib-a.bundle.js"
echo "Entrypoint myext-mylib-a = myext-mylib-a.bundle.js"
`

// execute runs the root command with fresh flag values
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cfgFile, outputFmt, noHeaders, quiet, debug = "", "table", false, false, false
	librariesBundledOnly = false
	resolveAlreadyLoaded, resolveOptimize = nil, false
	servePort, serveDocker, serveDevServerHost, serveLagoon, serveTimeout = bundler.DefaultServePort, false, bundler.DefaultDevServerHost, false, 0
	formatter = nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), errOut.String(), err
}

func TestVersion(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "webpackbridge dev")
	assert.Contains(t, out, "Commit: unknown")
}

func TestBuild(t *testing.T) {
	_, configPath := site(t, successfulBuild)

	_, errOut, err := execute(t, "build", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Hey! Building the libs for you.")
	assert.Contains(t, errOut, "Files written to 'public://webpack':")
	assert.Contains(t, errOut, "Build successful")

	out, _, err := execute(t, "mapping", "show", "--config", configPath, "-o", "json")
	require.NoError(t, err)

	var view struct {
		Storage string              `json:"storage"`
		Mapping map[string][]string `json:"mapping"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &view))
	assert.Equal(t, "state", view.Storage)
	assert.Equal(t, map[string][]string{
		"myext-mylib-a": {"public://webpack/myext-mylib-a.bundle.js"},
	}, view.Mapping)
}

func TestBuild_Failure(t *testing.T) {
	_, configPath := site(t, `
echo "ERROR in ./js/a.js"
exit 2
`)

	_, errOut, err := execute(t, "build", "--config", configPath)
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, errOut, "ERROR in ./js/a.js")
	assert.Contains(t, errOut, "Build failed")
	assert.NotContains(t, errOut, "Build successful")
}

func TestBuild_NoFilesWritten(t *testing.T) {
	_, configPath := site(t, `echo "compiled nothing"`)

	_, errOut, err := execute(t, "build", "--config", configPath)
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, errOut, "No files were written")
	assert.Contains(t, errOut, "Build failed")
}

func TestBuildSingle_NotBundled(t *testing.T) {
	_, configPath := site(t, successfulBuild)

	_, errOut, err := execute(t, "build-single", "myext/plain", "--config", configPath)
	assert.ErrorIs(t, err, ErrBuildFailed)
	assert.Contains(t, errOut, bundler.ErrNotABundledLibrary.Error())
}

func TestLibraries(t *testing.T) {
	_, configPath := site(t, successfulBuild)

	t.Run("list", func(t *testing.T) {
		out, _, err := execute(t, "libraries", "list", "--config", configPath)
		require.NoError(t, err)
		assert.Contains(t, out, "myext/mylib")
		assert.Contains(t, out, "myext/plain")
	})

	t.Run("list bundled as json", func(t *testing.T) {
		out, _, err := execute(t, "libraries", "list", "--bundled", "--config", configPath, "-o", "json")
		require.NoError(t, err)

		var libs []map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &libs))
		require.Len(t, libs, 1)
		assert.Equal(t, "mylib", libs[0]["name"])
	})

	t.Run("entrypoints", func(t *testing.T) {
		out, _, err := execute(t, "libraries", "entrypoints", "--config", configPath, "--no-headers")
		require.NoError(t, err)
		assert.Contains(t, out, "myext-mylib-a")
		assert.Contains(t, out, "modules/myext/js/a.js")
		assert.NotContains(t, out, "FILE ID")
	})
}

func TestResolve(t *testing.T) {
	_, configPath := site(t, successfulBuild)

	decode := func(out string) map[string][]map[string]any {
		var result map[string][]map[string]any
		require.NoError(t, json.Unmarshal([]byte(out), &result))
		return result
	}

	t.Run("without a mapping the library files are used", func(t *testing.T) {
		out, _, err := execute(t, "resolve", "myext/mylib", "--config", configPath, "-o", "json")
		require.NoError(t, err)

		footer := decode(out)["footer"]
		require.Len(t, footer, 1)
		assert.Equal(t, "modules/myext/js/a.js", footer[0]["data"])
	})

	_, _, err := execute(t, "build", "--config", configPath)
	require.NoError(t, err)

	t.Run("after a build the bundle is used", func(t *testing.T) {
		out, _, err := execute(t, "resolve", "myext/mylib", "--config", configPath, "-o", "json")
		require.NoError(t, err)

		footer := decode(out)["footer"]
		require.Len(t, footer, 1)
		assert.Equal(t, "modules/myext/js/a.js", footer[0]["key"])
		assert.Equal(t, "public://webpack/myext-mylib-a.bundle.js", footer[0]["data"])
		assert.Equal(t, true, footer[0]["minified"])
	})

	t.Run("unknown library", func(t *testing.T) {
		_, _, err := execute(t, "resolve", "myext/missing", "--config", configPath)
		assert.Error(t, err)
	})
}

func TestSettings(t *testing.T) {
	root, configPath := site(t, successfulBuild)

	out, _, err := execute(t, "settings", "get", "output_path", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "output_path: public://webpack\n", out)

	_, _, err = execute(t, "settings", "set", "output_path", "/var/www/dist", "--config", configPath)
	assert.ErrorIs(t, err, settings.ErrAbsoluteOutputPath)

	_, _, err = execute(t, "settings", "set", "mode", "production", "--config", configPath)
	assert.Error(t, err)

	_, errOut, err := execute(t, "settings", "set", "output_path", "themes/custom/dist", "--config", configPath)
	require.NoError(t, err)
	assert.Contains(t, errOut, "Setting 'output_path' updated to 'themes/custom/dist'.")
	assert.FileExists(t, filepath.Join(root, "config", "sync", settings.WebpackSettings+".yml"))

	out, _, err = execute(t, "settings", "get", "output_path", "--config", configPath)
	require.NoError(t, err)
	assert.Equal(t, "output_path: themes/custom/dist\n", out)

	out, _, err = execute(t, "mapping", "show", "--config", configPath, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"storage": "config"`)
}

func TestConfigView_RedactsURLs(t *testing.T) {
	_, configPath := site(t, successfulBuild)
	t.Setenv("WEBPACKBRIDGE_STATE_DATABASE_URL", "postgres://user:secret@db/site")

	out, _, err := execute(t, "config", "view", "--config", configPath, "-o", "yaml")
	require.NoError(t, err)
	assert.NotContains(t, out, "secret")
	assert.Contains(t, out, "********")
}

func TestInvalidOutputFormat(t *testing.T) {
	_, _, err := execute(t, "version", "-o", "xml")
	assert.Error(t, err)
}
