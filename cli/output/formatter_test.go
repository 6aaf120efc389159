package output

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFormatter(format Format) (*Formatter, *bytes.Buffer, *bytes.Buffer) {
	var out, errOut bytes.Buffer
	f := NewFormatter(format, false, false)
	f.Writer = &out
	f.ErrWriter = &errOut
	return f, &out, &errOut
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    Format
		wantErr bool
	}{
		{"", FormatTable, false},
		{"table", FormatTable, false},
		{"JSON", FormatJSON, false},
		{"yml", FormatYAML, false},
		{"xml", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseFormat(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPrintTable(t *testing.T) {
	data := TableData{
		Headers: []string{"FILE ID", "FILES"},
		Rows:    [][]string{{"myext-mylib-a", "public://webpack/a.js"}},
	}

	t.Run("table", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		f.PrintTable(data)
		assert.Contains(t, out.String(), "FILE ID")
		assert.Contains(t, out.String(), "myext-mylib-a")
	})

	t.Run("no headers", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatTable)
		f.NoHeaders = true
		f.PrintTable(data)
		assert.NotContains(t, out.String(), "FILE ID")
		assert.Contains(t, out.String(), "myext-mylib-a")
	})

	t.Run("json", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatJSON)
		f.PrintTable(data)
		assert.JSONEq(t, `[{"file id":"myext-mylib-a","files":"public://webpack/a.js"}]`, out.String())
	})

	t.Run("yaml", func(t *testing.T) {
		f, out, _ := newTestFormatter(FormatYAML)
		f.PrintTable(data)
		assert.Contains(t, out.String(), "file id: myext-mylib-a")
	})
}

func TestQuiet(t *testing.T) {
	f, out, errOut := newTestFormatter(FormatTable)
	f.Quiet = true

	f.PrintLine("Hey! Building the libs for you.")
	f.PrintSuccess("Build successful")
	f.PrintKeyValue("output_path", "public://webpack")
	require.NoError(t, f.Print(map[string]string{"a": "b"}))
	assert.Empty(t, out.String())
	assert.Empty(t, errOut.String())

	f.PrintError("Build failed")
	assert.Equal(t, "Build failed", strings.TrimSpace(errOut.String()))
}

func TestPrintKeyValue(t *testing.T) {
	f, out, _ := newTestFormatter(FormatTable)
	f.PrintKeyValue("output_path", "public://webpack")
	assert.Equal(t, "output_path: public://webpack\n", out.String())

	f, out, _ = newTestFormatter(FormatJSON)
	f.PrintKeyValue("output_path", "public://webpack")
	assert.JSONEq(t, `{"output_path":"public://webpack"}`, out.String())
}
