// Package crates reads .crate artifacts: gzipped tarballs holding a
// package's Cargo.toml and sources under a "<name>-<version>/" prefix.
package crates

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/dustin/go-humanize"

	"github.com/teranos/backfill/errors"
)

// Crate is what the inspector extracts from one artifact.
type Crate struct {
	Manifest *Manifest
	HasLib   bool
	BinNames []string
	Size     int64 // compressed artifact size in bytes
}

// Inspector opens and parses .crate files. The zero value has no size limit.
type Inspector struct {
	// MaxSize bounds both the artifact and its unpacked contents; 0 disables it.
	MaxSize int64
}

// Stat returns the artifact size without opening it.
func (in Inspector) Stat(artifact string) (int64, error) {
	info, err := os.Stat(artifact)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, errors.NewNotFoundError("artifact %s does not exist", artifact)
		}
		return 0, errors.WrapParseFailure(err, "stat "+artifact)
	}
	if info.IsDir() {
		return 0, errors.WrapParseFailure(errors.New("is a directory"), artifact)
	}
	if in.MaxSize > 0 && info.Size() > in.MaxSize {
		return 0, errors.NewTooLargeError("artifact %s is %s, limit %s",
			artifact, humanize.IBytes(uint64(info.Size())), humanize.IBytes(uint64(in.MaxSize)))
	}
	return info.Size(), nil
}

// Inspect reads the artifact at path for name@version.
func (in Inspector) Inspect(ctx context.Context, artifact, name, version string) (*Crate, error) {
	size, err := in.Stat(artifact)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(artifact)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFoundError("artifact %s does not exist", artifact)
		}
		return nil, errors.WrapParseFailure(err, "open "+artifact)
	}
	defer f.Close()

	crate, err := in.read(ctx, f, PackageName(name, version))
	if err != nil {
		return nil, err
	}
	crate.Size = size

	if err := checkVersion(crate.Manifest.Package.Version, version); err != nil {
		return nil, err
	}
	return crate, nil
}

func (in Inspector) read(ctx context.Context, r io.Reader, pkg string) (*Crate, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, errors.WrapParseFailure(err, "gunzip")
	}
	defer gz.Close()

	var src io.Reader = gz
	if in.MaxSize > 0 {
		src = io.LimitReader(gz, in.MaxSize+1)
	}
	counter := &countingReader{r: src}
	tr := tar.NewReader(counter)
	tooLarge := func() bool { return in.MaxSize > 0 && counter.n > in.MaxSize }

	prefix := pkg + "/"
	var manifest []byte
	var lowerManifest []byte
	files := make(map[string]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if tooLarge() {
				return nil, errors.NewTooLargeError("unpacked %s exceeds %s", pkg, humanize.IBytes(uint64(in.MaxSize)))
			}
			return nil, errors.WrapParseFailure(err, "read tar entry")
		}

		switch hdr.Typeflag {
		case tar.TypeReg, tar.TypeDir:
		default:
			// pax global headers (git archive), links and devices name no package file
			continue
		}
		rel, err := relativeEntry(hdr.Name, prefix)
		if err != nil {
			return nil, err
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		files[rel] = true

		switch {
		case rel == "Cargo.toml":
			manifest, err = readEntry(tr, rel)
		case strings.EqualFold(rel, "Cargo.toml"):
			// Some early crates shipped a lowercase cargo.toml
			lowerManifest, err = readEntry(tr, rel)
		}
		if err != nil {
			if tooLarge() {
				return nil, errors.NewTooLargeError("unpacked %s exceeds %s", pkg, humanize.IBytes(uint64(in.MaxSize)))
			}
			return nil, err
		}
	}
	if tooLarge() {
		return nil, errors.NewTooLargeError("unpacked %s exceeds %s", pkg, humanize.IBytes(uint64(in.MaxSize)))
	}

	if manifest == nil {
		manifest = lowerManifest
	}
	if manifest == nil {
		return nil, errors.WrapParseFailure(errors.New("no Cargo.toml"), pkg)
	}

	m, err := ParseManifest(manifest)
	if err != nil {
		return nil, err
	}
	return &Crate{
		Manifest: m,
		HasLib:   hasLib(m, files),
		BinNames: binNames(m, files),
	}, nil
}

// relativeEntry strips prefix from a tar entry name, rejecting entries
// that would land outside the package directory.
func relativeEntry(name, prefix string) (string, error) {
	clean := path.Clean(strings.TrimPrefix(name, "./"))
	if !strings.HasPrefix(clean+"/", prefix) {
		return "", errors.WrapParseFailure(errors.Newf("entry %q is outside %s", name, prefix), "tarball")
	}
	rel := strings.TrimPrefix(clean, strings.TrimSuffix(prefix, "/"))
	return strings.TrimPrefix(rel, "/"), nil
}

func readEntry(r io.Reader, name string) ([]byte, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapParseFailure(err, "read "+name)
	}
	return data, nil
}

func hasLib(m *Manifest, files map[string]bool) bool {
	if m.Lib != nil {
		return true
	}
	if m.Package.AutoLib != nil && !*m.Package.AutoLib {
		return false
	}
	return files["src/lib.rs"]
}

// binNames lists explicit [[bin]] names followed by the binaries cargo
// would discover on its own (src/main.rs, src/bin/*.rs, src/bin/*/main.rs).
func binNames(m *Manifest, files map[string]bool) []string {
	var names []string
	seen := make(map[string]bool)
	paths := make(map[string]bool)
	for _, b := range m.Bin {
		if b.Path != nil {
			paths[path.Clean(*b.Path)] = true
		}
		if b.Name == nil || seen[*b.Name] {
			continue
		}
		seen[*b.Name] = true
		names = append(names, *b.Name)
	}

	if m.Package.AutoBins != nil && !*m.Package.AutoBins {
		return names
	}

	var discovered []string
	add := func(name, file string) {
		if seen[name] || paths[file] {
			return
		}
		seen[name] = true
		discovered = append(discovered, name)
	}
	if files["src/main.rs"] {
		add(m.Package.Name, "src/main.rs")
	}
	for f := range files {
		if !strings.HasPrefix(f, "src/bin/") {
			continue
		}
		rest := strings.TrimPrefix(f, "src/bin/")
		switch {
		case !strings.Contains(rest, "/") && strings.HasSuffix(rest, ".rs"):
			add(strings.TrimSuffix(rest, ".rs"), f)
		case strings.Count(rest, "/") == 1 && strings.HasSuffix(rest, "/main.rs"):
			add(strings.TrimSuffix(rest, "/main.rs"), f)
		}
	}
	sort.Strings(discovered)
	return append(names, discovered...)
}

// checkVersion requires the manifest to describe the version the store
// recorded. Versions that are not valid semver are compared verbatim.
func checkVersion(manifestVersion, want string) error {
	if manifestVersion == want {
		return nil
	}
	got, err1 := semver.NewVersion(manifestVersion)
	exp, err2 := semver.NewVersion(want)
	if err1 == nil && err2 == nil && got.Equal(exp) && got.Metadata() == exp.Metadata() {
		return nil
	}
	return errors.WrapParseFailure(
		errors.Newf("manifest version %q does not match %q", manifestVersion, want), "Cargo.toml")
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
