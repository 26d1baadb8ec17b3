package datasets

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func touch(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, nil, 0o644))
}

func TestFindSource(t *testing.T) {
	dir := t.TempDir()
	_, err := FindSource(dir)
	assert.Error(t, err)

	touch(t, filepath.Join(dir, "b.csv"))
	got, err := FindSource(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "b.csv"), got)

	touch(t, filepath.Join(dir, "a.parquet"))
	got, err = FindSource(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "a.parquet"), got)

	touch(t, filepath.Join(dir, "preprocessed.json"))
	got, err = FindSource(dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "preprocessed.json"), got)
}

func TestAutoFindSource(t *testing.T) {
	dir := t.TempDir()
	touch(t, filepath.Join(dir, "qm8.parquet"))

	got, err := AutoFindSource([]string{
		filepath.Join(dir, "preprocessed.json"),
		filepath.Join(dir, "*.parquet"),
	})
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "qm8.parquet"), got)

	_, err = AutoFindSource([]string{filepath.Join(dir, "*.csv")})
	assert.Error(t, err)
}
