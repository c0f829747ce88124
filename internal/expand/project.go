package expand

import (
	"os"
	"path/filepath"
)

// projectMarkers identify a directory as a project root, checked in order.
var projectMarkers = []string{
	".git",
	".flakewatch.yaml",
	".flakewatch.json",
	"pyproject.toml",
	"setup.cfg",
	"tox.ini",
}

// FindProjectRoot walks up from dir looking for a project marker and
// returns the first directory that carries one. Returns "" when no
// marker is found before the filesystem root.
func FindProjectRoot(dir string) string {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return ""
	}

	for {
		for _, marker := range projectMarkers {
			if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
				return dir
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
