package crates

import (
	"bytes"
	"strconv"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/backfill/errors"
)

// Manifest is the subset of Cargo.toml the backfill tasks read.
type Manifest struct {
	Package  *Package            `toml:"package"`
	Lib      *Target             `toml:"lib"`
	Bin      []Target            `toml:"bin"`
	Features map[string][]string `toml:"features"`
}

// Package is the [package] table.
type Package struct {
	Name          string   `toml:"name"`
	Version       string   `toml:"version"`
	Edition       *string  `toml:"edition"`
	Description   *string  `toml:"description"`
	Homepage      *string  `toml:"homepage"`
	Documentation *string  `toml:"documentation"`
	Repository    *string  `toml:"repository"`
	Categories    []string `toml:"categories"`
	Keywords      []string `toml:"keywords"`
	Links         *string  `toml:"links"`
	AutoBins      *bool    `toml:"autobins"`
	AutoLib       *bool    `toml:"autolib"`
}

// Target is a [lib] or [[bin]] table.
type Target struct {
	Name *string `toml:"name"`
	Path *string `toml:"path"`
}

// ParseManifest decodes a Cargo.toml. Unknown keys are ignored.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	dec := toml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&m); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return nil, errors.WrapParseFailure(err, "Cargo.toml:"+strconv.Itoa(row)+":"+strconv.Itoa(col))
		}
		return nil, errors.WrapParseFailure(err, "Cargo.toml")
	}
	if m.Package == nil {
		return nil, errors.WrapParseFailure(errors.New("missing [package] table"), "Cargo.toml")
	}
	return &m, nil
}
