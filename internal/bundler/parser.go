package bundler

import (
	"context"
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"unicode"

	"github.com/rs/zerolog/log"

	"github.com/fluxbase-eu/webpackbridge/internal/bundleinfo"
)

var (
	entrypointPattern = regexp.MustCompile(`^Entrypoint (.*) = (.*)`)
	// webpack-dev-server 3 prints "Project is running at http://localhost:1234/",
	// version 4 prints "Loopback: http://localhost:1234/" below a header line
	runningPatterns = []*regexp.Regexp{
		regexp.MustCompile(`Project is running at .*:(\d+)`),
		regexp.MustCompile(`Loopback: https?://.*:(\d+)`),
	}
	ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]|\x1b\][^\x07]*\x07`)
)

// sizeUnits are the size annotations webpack 5 prints next to file names
var sizeUnits = map[string]bool{"bytes": true, "B": true, "KiB": true, "MiB": true, "GiB": true}

// StripControl removes terminal escape sequences and control characters
func StripControl(s string) string {
	s = ansiPattern.ReplaceAllString(s, "")
	return strings.Map(func(r rune) rune {
		if r != '\t' && unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}

// ParseEntrypoint matches an "Entrypoint <id> = <file> <file>..." line. Size
// annotations and markers such as [big] are dropped.
func ParseEntrypoint(line string) (string, []string, bool) {
	m := entrypointPattern.FindStringSubmatch(StripControl(line))
	if m == nil {
		return "", nil, false
	}

	nameFields := strings.Fields(m[1])
	if len(nameFields) == 0 {
		return "", nil, false
	}

	var files []string
	for _, token := range strings.Fields(m[2]) {
		if isAnnotation(token) {
			continue
		}
		files = append(files, token)
	}
	return nameFields[0], files, len(files) > 0
}

func isAnnotation(token string) bool {
	if sizeUnits[token] {
		return true
	}
	if strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]") {
		return true
	}
	_, err := strconv.ParseFloat(token, 64)
	return err == nil
}

// ParsePort extracts the dev server port from a startup line
func ParsePort(line string) (string, bool) {
	clean := StripControl(line)
	for _, pattern := range runningPatterns {
		if m := pattern.FindStringSubmatch(clean); m != nil {
			return m[1], true
		}
	}
	return "", false
}

// ParseMapping collects every entrypoint line of a finished build into a
// mapping whose paths are prefixed with outputDir
func ParseMapping(output []string, outputDir string) (bundleinfo.Mapping, []string) {
	outputDir = strings.TrimRight(outputDir, "/")
	mapping := bundleinfo.Mapping{}
	var lines []string

	for _, line := range output {
		id, files, ok := ParseEntrypoint(line)
		if !ok {
			continue
		}
		for _, f := range files {
			mapping[id] = append(mapping[id], outputDir+"/"+f)
		}
		lines = append(lines, StripControl(line))
	}
	return mapping, lines
}

// OutputParser follows the output of a dev server and records its address
// and served files as they appear
type OutputParser struct {
	info          *bundleinfo.Store
	devServerHost string

	address string
	files   map[string][]string
}

// NewOutputParser creates a parser that reports the dev server as reachable
// on devServerHost, whatever host the tool prints
func NewOutputParser(info *bundleinfo.Store, devServerHost string) *OutputParser {
	return &OutputParser{
		info:          info,
		devServerHost: devServerHost,
		files:         map[string][]string{},
	}
}

// Feed inspects one chunk. Chunks may hold several lines.
func (p *OutputParser) Feed(ctx context.Context, chunk string) error {
	for _, line := range strings.Split(chunk, "\n") {
		if err := p.feedLine(ctx, line); err != nil {
			return err
		}
	}
	return nil
}

func (p *OutputParser) feedLine(ctx context.Context, line string) error {
	if port, ok := ParsePort(line); ok {
		address := net.JoinHostPort(p.devServerHost, port)
		if address != p.address {
			p.address = address
			log.Info().Str("address", address).Msg("Dev server is running")
			if err := p.info.SetServeAddress(ctx, address); err != nil {
				return err
			}
		}
		return nil
	}

	if id, files, ok := ParseEntrypoint(line); ok {
		p.files[id] = appendUnique(p.files[id], files...)
		log.Debug().Str("file_id", id).Strs("files", files).Msg("Dev server entrypoint")
		return p.info.AddServedFiles(ctx, id, files)
	}

	return nil
}

// Address returns the last recorded host:port, empty before startup
func (p *OutputParser) Address() string {
	return p.address
}

// Files returns the served files seen so far
func (p *OutputParser) Files() map[string][]string {
	out := make(map[string][]string, len(p.files))
	for k, v := range p.files {
		out[k] = append([]string(nil), v...)
	}
	return out
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if !slices.Contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}
