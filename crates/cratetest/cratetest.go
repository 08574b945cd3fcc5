// Package cratetest builds .crate fixtures for tests.
package cratetest

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

// Write writes a gzipped tarball holding files (tarball-relative paths) to
// path, creating parent directories.
func Write(t testing.TB, path string, files map[string]string) {
	t.Helper()
	write(t, path, nil, files)
}

// WriteGitArchive is Write with the pax global header `git archive`
// puts first, recording commit.
func WriteGitArchive(t testing.TB, path, commit string, files map[string]string) {
	t.Helper()
	write(t, path, &tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": commit},
	}, files)
}

func write(t testing.TB, path string, first *tar.Header, files map[string]string) {
	t.Helper()

	names := make([]string, 0, len(files))
	for name := range files {
		names = append(names, name)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	if first != nil {
		require.NoError(t, tw.WriteHeader(first))
	}
	for _, name := range names {
		body := files[name]
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())

	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0644))
}

// Manifest returns a Cargo.toml for name@version with extra appended to
// the [package] table.
func Manifest(name, version, extra string) string {
	return fmt.Sprintf("[package]\nname = %q\nversion = %q\n%s", name, version, extra)
}

// Files returns a file set holding the manifest under the package prefix,
// plus any extra files given relative to the package directory.
func Files(name, version, manifest string, extra map[string]string) map[string]string {
	prefix := name + "-" + version + "/"
	files := map[string]string{prefix + "Cargo.toml": manifest}
	for p, body := range extra {
		files[prefix+p] = body
	}
	return files
}
