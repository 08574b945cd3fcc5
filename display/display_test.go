package display

import (
	"bytes"
	"io"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	Task  string `json:"task" yaml:"task"`
	Count int    `json:"count" yaml:"count"`
}

func TestParseFormat(t *testing.T) {
	for in, want := range map[string]Format{"": FormatText, "TEXT": FormatText, "json": FormatJSON, "yaml": FormatYAML} {
		got, err := ParseFormat(in)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFormat("xml")
	assert.Error(t, err)
}

func TestOutput(t *testing.T) {
	v := sample{Task: "edition", Count: 3}
	tests := []struct {
		format Format
		want   string
	}{
		{FormatJSON, "{\n  \"task\": \"edition\",\n  \"count\": 3\n}\n"},
		{FormatYAML, "task: edition\ncount: 3\n"},
		{FormatText, "edition: 3\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.format), func(t *testing.T) {
			var buf bytes.Buffer
			err := Output(&buf, tt.format, v, func(w io.Writer) error {
				_, err := io.WriteString(w, "edition: 3\n")
				return err
			})
			require.NoError(t, err)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestFormatFor(t *testing.T) {
	root := &cobra.Command{Use: "root"}
	root.PersistentFlags().Bool("json", false, "")
	child := &cobra.Command{Use: "child", Run: func(*cobra.Command, []string) {}}
	child.Flags().String("format", "text", "")
	root.AddCommand(child)

	f, err := FormatFor(child)
	require.NoError(t, err)
	assert.Equal(t, FormatText, f)

	require.NoError(t, child.Flags().Set("format", "yaml"))
	f, err = FormatFor(child)
	require.NoError(t, err)
	assert.Equal(t, FormatYAML, f)

	require.NoError(t, root.PersistentFlags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(child))
	f, err = FormatFor(child)
	require.NoError(t, err)
	assert.Equal(t, FormatJSON, f)

	assert.False(t, ShouldOutputJSON(nil))
}
