package extension

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/fluxbase-eu/webpackbridge/internal/catalog"
)

type libraryDefinition struct {
	Webpack      bool      `yaml:"webpack"`
	Header       bool      `yaml:"header"`
	Dependencies []string  `yaml:"dependencies"`
	JS           yaml.Node `yaml:"js"`
	CSS          yaml.Node `yaml:"css"`
}

// ParseLibraries decodes a *.libraries.yml document for ext. Script order
// follows the document.
func ParseLibraries(ext catalog.Extension, data []byte) (map[string]catalog.Library, error) {
	var doc map[string]libraryDefinition
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	libraries := make(map[string]catalog.Library, len(doc))
	for name, def := range doc {
		js, err := parseJS(ext, &def.JS)
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", name, err)
		}
		css, err := parseCSS(ext, &def.CSS)
		if err != nil {
			return nil, fmt.Errorf("library %s: %w", name, err)
		}
		libraries[name] = catalog.Library{
			Extension:    ext.Name,
			Name:         name,
			JS:           js,
			CSS:          css,
			Webpack:      def.Webpack,
			Header:       def.Header,
			Dependencies: def.Dependencies,
		}
	}
	return libraries, nil
}

func parseJS(ext catalog.Extension, node *yaml.Node) ([]catalog.JSAsset, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("js must be a mapping of file paths to options")
	}

	assets := make([]catalog.JSAsset, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		file := node.Content[i].Value

		options := map[string]any{}
		if err := node.Content[i+1].Decode(&options); err != nil {
			return nil, fmt.Errorf("options of %s: %w", file, err)
		}
		if options == nil {
			options = map[string]any{}
		}

		asset := catalog.JSAsset{Type: catalog.AssetTypeFile}
		if t, ok := options["type"].(string); ok && t != "" {
			asset.Type = t
		}
		if src, ok := options["source"].(string); ok {
			asset.Source = src
		}
		delete(options, "type")
		delete(options, "source")
		if len(options) > 0 {
			asset.Options = options
		}

		switch {
		case isExternal(file):
			asset.Type = catalog.AssetTypeExternal
			asset.Data = file
		case strings.HasPrefix(file, "/"):
			asset.Data = strings.TrimPrefix(file, "/")
		case asset.Type == catalog.AssetTypeExternal:
			asset.Data = file
		default:
			asset.Data = path.Join(ext.Path, file)
		}

		assets = append(assets, asset)
	}
	return assets, nil
}

// parseCSS reads the category -> file -> options nesting of css sections
func parseCSS(ext catalog.Extension, node *yaml.Node) ([]catalog.CSSAsset, error) {
	if node.Kind == 0 {
		return nil, nil
	}
	if node.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("css must be a mapping of categories")
	}

	var assets []catalog.CSSAsset
	for i := 0; i+1 < len(node.Content); i += 2 {
		category := node.Content[i].Value
		files := node.Content[i+1]
		if files.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("css category %s must be a mapping of file paths to options", category)
		}

		for j := 0; j+1 < len(files.Content); j += 2 {
			file := files.Content[j].Value

			options := map[string]any{}
			if err := files.Content[j+1].Decode(&options); err != nil {
				return nil, fmt.Errorf("options of %s: %w", file, err)
			}

			asset := catalog.CSSAsset{Type: catalog.AssetTypeFile, Category: category}
			if t, ok := options["type"].(string); ok && t != "" {
				asset.Type = t
			}
			delete(options, "type")
			if len(options) > 0 {
				asset.Options = options
			}

			switch {
			case isExternal(file):
				asset.Type = catalog.AssetTypeExternal
				asset.Data = file
			case strings.HasPrefix(file, "/"):
				asset.Data = strings.TrimPrefix(file, "/")
			default:
				asset.Data = path.Join(ext.Path, file)
			}
			assets = append(assets, asset)
		}
	}
	return assets, nil
}

func isExternal(file string) bool {
	return strings.HasPrefix(file, "//") || strings.Contains(file, "://")
}
