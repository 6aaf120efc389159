package buildspec

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNodeModulesNotFound is returned when no node_modules directory exists
// above the site root
var ErrNodeModulesNotFound = errors.New("couldn't find node_modules anywhere up the directory tree")

// NodeModulesProcessor points module and loader resolution at the closest
// node_modules directory above the site root.
type NodeModulesProcessor struct {
	Root string
}

func (p *NodeModulesProcessor) Name() string { return "node_modules" }

func (p *NodeModulesProcessor) Weight() int { return -1 }

func (p *NodeModulesProcessor) ProcessConfig(spec Spec, bctx Context) error {
	dir, err := FindNodeModules(p.Root)
	if err != nil {
		return err
	}

	spec.Section("resolve")["modules"] = []any{dir, "node_modules"}
	spec.Section("resolveLoader")["modules"] = []any{dir, "node_modules"}
	return nil
}

// FindNodeModules walks up from start until a node_modules directory is found
func FindNodeModules(start string) (string, error) {
	dir, err := filepath.Abs(start)
	if err != nil {
		return "", err
	}

	for {
		candidate := filepath.Join(dir, "node_modules")
		if info, err := os.Stat(candidate); err == nil && info.IsDir() {
			return candidate, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("%w (started at %s)", ErrNodeModulesNotFound, start)
		}
		dir = parent
	}
}

// DevServerProcessor lets pages served from the CMS origin load bundles
// from the dev server.
type DevServerProcessor struct{}

func (p *DevServerProcessor) Name() string { return "dev_server" }

func (p *DevServerProcessor) Weight() int { return 10 }

func (p *DevServerProcessor) ProcessConfig(spec Spec, bctx Context) error {
	if bctx.Command != CommandServe {
		return nil
	}

	devServer := spec.Section("devServer")
	headers, ok := devServer["headers"].(map[string]any)
	if !ok {
		headers = map[string]any{}
		devServer["headers"] = headers
	}
	headers["Access-Control-Allow-Origin"] = "*"
	return nil
}

// ProcessorFunc adapts a function to the Processor interface
type ProcessorFunc struct {
	ProcessorName   string
	ProcessorWeight int
	Fn              func(spec Spec, bctx Context) error
}

func (p ProcessorFunc) Name() string { return p.ProcessorName }

func (p ProcessorFunc) Weight() int { return p.ProcessorWeight }

func (p ProcessorFunc) ProcessConfig(spec Spec, bctx Context) error {
	return p.Fn(spec, bctx)
}
