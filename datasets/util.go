package datasets

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// DefaultSourcePatterns are the locations searched by AutoFindSource, in
// order.
var DefaultSourcePatterns = []string{
	"data/preprocessed.json",
	"data/*.parquet",
	"data/*.json",
	"data/*.csv",
	"../data/preprocessed.json",
}

// sourceExtensions are the table formats molecules.Load understands, in the
// order FindSource prefers them.
var sourceExtensions = []string{".json", ".parquet", ".pq", ".csv"}

// AutoFindSource returns the first file matching one of patterns.
func AutoFindSource(patterns []string) (string, error) {
	for _, pattern := range patterns {
		matches, err := filepath.Glob(pattern)
		if err == nil && len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", errors.Errorf("no molecule table found in %s", strings.Join(patterns, ", "))
}

// FindSource finds a molecule table in dir. preprocessed.json wins when
// present, otherwise the first table by extension preference.
func FindSource(dir string) (string, error) {
	preferred := filepath.Join(dir, "preprocessed.json")
	if _, err := os.Stat(preferred); err == nil {
		return preferred, nil
	}
	for _, ext := range sourceExtensions {
		matches, err := filepath.Glob(filepath.Join(dir, "*"+ext))
		if err != nil {
			return "", err
		}
		if len(matches) > 0 {
			return matches[0], nil
		}
	}
	return "", errors.Errorf("no molecule table found in %s", dir)
}

// ResolveSource returns path itself, or the table found inside it when path
// is a directory.
func ResolveSource(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to stat %s", path)
	}
	if info.IsDir() {
		return FindSource(path)
	}
	return path, nil
}
