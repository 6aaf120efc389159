// Package specwriter renders a build spec as a webpack.config.js file.
//
// Strings wrapped in backticks are raw JavaScript: they are emitted without
// quotes, so `/\.js$/` becomes a regular expression and `require('x')` a call.
package specwriter

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/buildspec"
	"github.com/fluxbase-eu/webpackbridge/internal/sitepath"
)

// ErrConfigWriteError is returned when the config file cannot be written
var ErrConfigWriteError = errors.New("failed to write webpack config")

const (
	// LinesBeforeKey holds lines emitted before module.exports
	LinesBeforeKey = "#lines_before"
	// DefaultLocation is where the config file is written
	DefaultLocation = sitepath.TemporaryScheme + "webpack.config.js"

	rawMarker = "`"
)

// Writer serializes specs to disk
type Writer struct {
	paths    *sitepath.Paths
	location string
}

// New creates a writer targeting DefaultLocation
func New(paths *sitepath.Paths) *Writer {
	return &Writer{paths: paths, location: DefaultLocation}
}

// WithLocation returns a copy writing to uri instead
func (w *Writer) WithLocation(uri string) *Writer {
	cp := *w
	cp.location = uri
	return &cp
}

// IsRawCode reports whether s follows the raw code convention
func IsRawCode(s string) bool {
	return len(s) >= 2 && strings.HasPrefix(s, rawMarker) && strings.HasSuffix(s, rawMarker)
}

// Render returns the config file content for spec. The spec is not modified.
func Render(spec buildspec.Spec) (string, error) {
	var prefix string
	body := make(map[string]any, len(spec))
	for k, v := range spec {
		if k == LinesBeforeKey {
			lines, err := toLines(v)
			if err != nil {
				return "", err
			}
			if len(lines) > 0 {
				prefix = strings.Join(lines, "\n") + "\n"
			}
			continue
		}
		body[k] = v
	}

	raw := make(map[string]string)
	extracted := extractRaw(body, raw)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(extracted); err != nil {
		return "", fmt.Errorf("failed to encode webpack config: %w", err)
	}

	encoded := strings.TrimRight(buf.String(), "\n")
	for placeholder, code := range raw {
		encoded = strings.ReplaceAll(encoded, placeholder, code)
	}

	return prefix + "module.exports = " + encoded, nil
}

// Render is the package level Render
func (w *Writer) Render(spec buildspec.Spec) (string, error) {
	return Render(spec)
}

// Location returns the URI the writer saves to
func (w *Writer) Location() string {
	return w.location
}

// Write renders spec and saves it, replacing any previous file. It returns
// the absolute path of the written file.
func (w *Writer) Write(spec buildspec.Spec) (string, error) {
	content, err := Render(spec)
	if err != nil {
		return "", err
	}

	path, err := w.paths.Resolve(w.location)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigWriteError, err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigWriteError, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("%w: %v", ErrConfigWriteError, err)
	}

	log.Debug().Str("path", path).Int("bytes", len(content)).Msg("Webpack config written")
	return path, nil
}

// extractRaw copies v, replacing raw code strings by their sha256 digest and
// recording `"digest"` -> code in raw.
func extractRaw(v any, raw map[string]string) any {
	switch t := v.(type) {
	case buildspec.Spec:
		return extractRaw(map[string]any(t), raw)
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = extractRaw(item, raw)
		}
		return out
	case map[string]string:
		out := make(map[string]any, len(t))
		for k, item := range t {
			out[k] = extractRaw(item, raw)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = extractRaw(item, raw)
		}
		return out
	case []string:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = extractRaw(item, raw)
		}
		return out
	case string:
		if !IsRawCode(t) {
			return t
		}
		sum := sha256.Sum256([]byte(t))
		digest := hex.EncodeToString(sum[:])
		raw[`"`+digest+`"`] = strings.TrimSuffix(strings.TrimPrefix(t, rawMarker), rawMarker)
		return digest
	default:
		return extractReflect(reflect.ValueOf(v), raw, v)
	}
}

// extractReflect walks the typed maps and slices processors may put in a
// spec, such as []map[string]any or map[string][]any.
func extractReflect(rv reflect.Value, raw map[string]string, orig any) any {
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() || rv.Type().Key().Kind() != reflect.String {
			return orig
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			out[iter.Key().String()] = extractRaw(iter.Value().Interface(), raw)
		}
		return out
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return orig
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return orig
		}
		out := make([]any, rv.Len())
		for i := range out {
			out[i] = extractRaw(rv.Index(i).Interface(), raw)
		}
		return out
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return orig
		}
		return extractReflect(rv.Elem(), raw, rv.Elem().Interface())
	case reflect.String:
		return extractRaw(rv.String(), raw)
	default:
		return orig
	}
}

func toLines(v any) ([]string, error) {
	switch t := v.(type) {
	case nil:
		return nil, nil
	case string:
		return []string{t}, nil
	case []string:
		return t, nil
	case []any:
		lines := make([]string, 0, len(t))
		for _, item := range t {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s must contain strings, got %T", LinesBeforeKey, item)
			}
			lines = append(lines, s)
		}
		return lines, nil
	default:
		return nil, fmt.Errorf("%s must be a list of strings, got %T", LinesBeforeKey, v)
	}
}
