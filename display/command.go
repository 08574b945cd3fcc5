// Package display renders command results as text, JSON or YAML.
package display

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/backfill/errors"
)

// Format is an output format.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
	FormatYAML Format = "yaml"
)

// ParseFormat parses a --format value. Empty means text.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case "", FormatText:
		return FormatText, nil
	case FormatJSON, FormatYAML:
		return f, nil
	}
	return "", errors.WithHint(errors.Newf("unsupported format: %s", s), "supported: text, json, yaml")
}

// ShouldOutputJSON reports whether the command's --json flag is set,
// locally or on the root command.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	if f := cmd.Flags().Lookup("json"); f != nil && f.Changed {
		v, _ := cmd.Flags().GetBool("json")
		return v
	}
	v, _ := cmd.Root().PersistentFlags().GetBool("json")
	return v
}

// FormatFor resolves the output format of cmd: --json wins over --format.
func FormatFor(cmd *cobra.Command) (Format, error) {
	if ShouldOutputJSON(cmd) {
		return FormatJSON, nil
	}
	var s string
	if f := cmd.Flags().Lookup("format"); f != nil {
		s = f.Value.String()
	}
	return ParseFormat(s)
}

// Output writes v to w in format. Text output calls text.
func Output(w io.Writer, format Format, v interface{}, text func(io.Writer) error) error {
	switch format {
	case FormatJSON:
		data, err := MarshalJSON(v)
		if err != nil {
			return errors.Wrap(err, "failed to marshal JSON")
		}
		_, err = fmt.Fprintln(w, string(data))
		return err
	case FormatYAML:
		data, err := yaml.Marshal(v)
		if err != nil {
			return errors.Wrap(err, "failed to marshal YAML")
		}
		_, err = w.Write(data)
		return err
	default:
		return text(w)
	}
}

// OutputJSON writes v as indented JSON to the command's stdout.
func OutputJSON(cmd *cobra.Command, v interface{}) error {
	return Output(cmd.OutOrStdout(), FormatJSON, v, nil)
}
