package buildspec_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/webpackbridge/internal/buildspec"
	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
	"github.com/fluxbase-eu/webpackbridge/internal/sitepath"
	"github.com/fluxbase-eu/webpackbridge/internal/testutil"
)

func setup(t *testing.T) (*buildspec.Builder, *sitepath.Paths) {
	t.Helper()

	reg := testutil.NewMockRegistry()
	reg.AddExtension(catalog.Extension{Name: "myext", Type: catalog.ExtensionModule, Path: "modules/myext"})
	reg.AddLibrary(catalog.Library{
		Extension: "myext",
		Name:      "mylib",
		Webpack:   true,
		JS:        testutil.JSFiles("modules/myext/js/a.js", "modules/myext/js/b.js"),
	})
	reg.AddLibrary(catalog.Library{
		Extension: "myext",
		Name:      "single",
		Webpack:   true,
		JS:        testutil.JSFiles("modules/myext/js/single.js"),
	})

	paths, err := sitepath.New(t.TempDir(), "files", t.TempDir())
	require.NoError(t, err)

	return buildspec.NewBuilder(catalog.New(reg), paths, nil), paths
}

func TestBuilder_Build(t *testing.T) {
	b, paths := setup(t)

	spec, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuild}, buildspec.Options{
		OutputPath: "public://webpack",
	})
	require.NoError(t, err)

	assert.Equal(t, "production", spec["mode"])
	assert.Equal(t, map[string]any{
		"myext-mylib-a":       filepath.Join(paths.Root, "modules/myext/js/a.js"),
		"myext-mylib-b":       filepath.Join(paths.Root, "modules/myext/js/b.js"),
		"myext-single-single": filepath.Join(paths.Root, "modules/myext/js/single.js"),
	}, spec["entry"])

	output := spec["output"].(map[string]any)
	assert.Equal(t, filepath.Join(paths.Root, "files", "webpack"), output["path"])
	assert.Equal(t, buildspec.DefaultFilename, output["filename"])

	info, err := os.Stat(filepath.Join(paths.Root, "files", "webpack"))
	require.NoError(t, err)
	assert.True(t, info.IsDir(), "output directory is created")
}

func TestBuilder_ServeMode(t *testing.T) {
	b, _ := setup(t)

	spec, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandServe}, buildspec.Options{OutputPath: "public://webpack"})
	require.NoError(t, err)
	assert.Equal(t, "development", spec["mode"])

	spec, err = b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandServe}, buildspec.Options{OutputPath: "public://webpack", Mode: "none"})
	require.NoError(t, err)
	assert.Equal(t, "none", spec["mode"])
}

func TestBuilder_BuildSingle(t *testing.T) {
	b, paths := setup(t)

	spec, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuildSingle, LibraryID: "myext/single"}, buildspec.Options{
		OutputPath: "dist",
		Filename:   "[name].js",
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{
		"myext-single-single": filepath.Join(paths.Root, "modules/myext/js/single.js"),
	}, spec["entry"])
	assert.Equal(t, "[name].js", spec["output"].(map[string]any)["filename"])
}

func TestBuilder_Deterministic(t *testing.T) {
	b, _ := setup(t)
	bctx := buildspec.Context{Command: buildspec.CommandBuild}
	opts := buildspec.Options{OutputPath: "public://webpack"}

	first, err := b.Build(context.Background(), bctx, opts)
	require.NoError(t, err)
	second, err := b.Build(context.Background(), bctx, opts)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestBuilder_ProcessorOrder(t *testing.T) {
	b, _ := setup(t)

	var order []string
	record := func(name string, weight int, value string) buildspec.Processor {
		return buildspec.ProcessorFunc{
			ProcessorName:   name,
			ProcessorWeight: weight,
			Fn: func(spec buildspec.Spec, bctx buildspec.Context) error {
				order = append(order, name)
				spec["devtool"] = value
				return nil
			},
		}
	}

	b.Registry().Register(record("late", 5, "late"))
	b.Registry().Register(record("tie-first", 0, "tie-first"))
	b.Registry().Register(record("early", -5, "early"))
	b.Registry().Register(record("tie-second", 0, "tie-second"))

	spec, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuild}, buildspec.Options{OutputPath: "public://webpack"})
	require.NoError(t, err)

	assert.Equal(t, []string{"early", "tie-first", "tie-second", "late"}, order)
	assert.Equal(t, "late", spec["devtool"], "last processor wins")
}

func TestBuilder_AlterHookRunsLast(t *testing.T) {
	b, _ := setup(t)

	b.Registry().Register(buildspec.ProcessorFunc{
		ProcessorName:   "devtool",
		ProcessorWeight: 100,
		Fn: func(spec buildspec.Spec, bctx buildspec.Context) error {
			spec["devtool"] = "source-map"
			return nil
		},
	})
	b.Registry().Alter(func(spec buildspec.Spec, bctx buildspec.Context) error {
		spec["devtool"] = false
		return nil
	})

	spec, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuild}, buildspec.Options{OutputPath: "public://webpack"})
	require.NoError(t, err)
	assert.Equal(t, false, spec["devtool"])
}

func TestBuilder_Errors(t *testing.T) {
	t.Run("alter hook emptying entries fails validation", func(t *testing.T) {
		b, _ := setup(t)
		b.Registry().Alter(func(spec buildspec.Spec, bctx buildspec.Context) error {
			spec["entry"] = map[string]any{}
			return nil
		})

		_, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuild}, buildspec.Options{OutputPath: "public://webpack"})
		assert.ErrorIs(t, err, buildspec.ErrConfigNotValid)
	})

	t.Run("processor failure aborts the build", func(t *testing.T) {
		b, _ := setup(t)
		b.Registry().Register(buildspec.ProcessorFunc{
			ProcessorName: "strict",
			Fn: func(spec buildspec.Spec, bctx buildspec.Context) error {
				return buildspec.ErrConfigNotValid
			},
		})

		_, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuild}, buildspec.Options{OutputPath: "public://webpack"})
		assert.ErrorIs(t, err, buildspec.ErrConfigNotValid)
		assert.Contains(t, err.Error(), "strict")
	})

	t.Run("unwritable output directory", func(t *testing.T) {
		b, paths := setup(t)
		require.NoError(t, os.WriteFile(filepath.Join(paths.Root, "blocker"), []byte("x"), 0644))

		_, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuild}, buildspec.Options{OutputPath: "blocker/out"})
		assert.ErrorIs(t, err, buildspec.ErrOutputDirNotWritable)
	})

	t.Run("no bundled libraries", func(t *testing.T) {
		paths, err := sitepath.New(t.TempDir(), "files", "")
		require.NoError(t, err)
		b := buildspec.NewBuilder(catalog.New(testutil.NewMockRegistry()), paths, nil)

		_, err = b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuild}, buildspec.Options{OutputPath: "public://webpack"})
		assert.ErrorIs(t, err, buildspec.ErrConfigNotValid)
	})

	t.Run("unknown library for build-single", func(t *testing.T) {
		b, _ := setup(t)

		_, err := b.Build(context.Background(), buildspec.Context{Command: buildspec.CommandBuildSingle, LibraryID: "myext/missing"}, buildspec.Options{OutputPath: "public://webpack"})
		assert.ErrorIs(t, err, catalog.ErrLibraryNotFound)
	})
}

func TestValidate(t *testing.T) {
	assert.Error(t, buildspec.Validate(buildspec.Spec{}))
	assert.Error(t, buildspec.Validate(buildspec.Spec{"entry": map[string]any{}}))
	assert.NoError(t, buildspec.Validate(buildspec.Spec{"entry": map[string]any{"a": "/a.js"}}))
	assert.NoError(t, buildspec.Validate(buildspec.Spec{"entry": "/a.js"}))
}

func TestNodeModulesProcessor(t *testing.T) {
	root := t.TempDir()
	site := filepath.Join(root, "web")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "node_modules"), 0755))
	require.NoError(t, os.MkdirAll(site, 0755))

	p := &buildspec.NodeModulesProcessor{Root: site}
	spec := buildspec.Spec{}
	require.NoError(t, p.ProcessConfig(spec, buildspec.Context{Command: buildspec.CommandBuild}))

	want := []any{filepath.Join(root, "node_modules"), "node_modules"}
	assert.Equal(t, want, spec["resolve"].(map[string]any)["modules"])
	assert.Equal(t, want, spec["resolveLoader"].(map[string]any)["modules"])
}

func TestFindNodeModules_NotFound(t *testing.T) {
	dir := t.TempDir()
	if _, err := buildspec.FindNodeModules(dir); err == nil {
		// a node_modules directory above the temp dir is outside the test's control
		t.Skip("node_modules exists above the temp directory")
	} else {
		assert.True(t, errors.Is(err, buildspec.ErrNodeModulesNotFound))
	}
}

func TestDevServerProcessor(t *testing.T) {
	p := &buildspec.DevServerProcessor{}

	spec := buildspec.Spec{}
	require.NoError(t, p.ProcessConfig(spec, buildspec.Context{Command: buildspec.CommandBuild}))
	assert.NotContains(t, spec, "devServer")

	require.NoError(t, p.ProcessConfig(spec, buildspec.Context{Command: buildspec.CommandServe}))
	headers := spec["devServer"].(map[string]any)["headers"].(map[string]any)
	assert.Equal(t, "*", headers["Access-Control-Allow-Origin"])
}
