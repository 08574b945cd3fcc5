package crates

import (
	"path/filepath"
	"strings"
)

// IndexDir returns the directory a crate lives in under a registry index
// or a get-all-crates mirror: 1/, 2/, 3/<c>/ for short names and
// <ab>/<cd>/ otherwise. The directory is derived from the lowercased name.
func IndexDir(name string) string {
	lower := strings.ToLower(name)
	switch len(lower) {
	case 0:
		return ""
	case 1:
		return filepath.Join("1", lower)
	case 2:
		return filepath.Join("2", lower)
	case 3:
		return filepath.Join("3", lower[:1], lower)
	default:
		return filepath.Join(lower[:2], lower[2:4], lower)
	}
}

// PackageName is the "<name>-<version>" prefix every entry of the crate
// tarball lives under.
func PackageName(name, version string) string {
	return name + "-" + version
}

// ArtifactPath returns the location of the .crate file for name@version
// below root.
func ArtifactPath(root, name, version string) string {
	return filepath.Join(root, IndexDir(name), PackageName(name, version)+".crate")
}
