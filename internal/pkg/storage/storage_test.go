package storage

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirectoryLayout(t *testing.T) {
	s := NewStorage("uploads")
	assert.Equal(t,
		filepath.Join("uploads", "spreadsheets", "acme", "4020", "2024"),
		s.SpreadsheetDir("acme", "4020", 2024))
	assert.Equal(t,
		filepath.Join("uploads", "converted_spreadsheets", "acme", "4020", "2024", "jan"),
		s.ConvertedDir("acme", "4020", 2024, "jan"))
	assert.Equal(t,
		filepath.Join("uploads", "signed_xmls", "acme", "4020", "2024", "jan"),
		s.SignedDir("acme", "4020", 2024, "jan"))
	assert.Equal(t,
		filepath.Join("a", "b", "lots"),
		LotDir(filepath.Join("a", "b")))
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deep", "nested", "event.xml")
	require.NoError(t, WriteFile(path, []byte("<Reinf/>")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "<Reinf/>", string(data))

	// idempotent re-create
	require.NoError(t, EnsureDir(filepath.Dir(path)))
}

func TestZipDirectory(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.xml"), []byte("<b/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.xml"), []byte("<a/>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("no"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "lots"), 0o755))

	data, err := ZipDirectory(dir)
	require.NoError(t, err)

	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	require.NoError(t, err)
	require.Len(t, r.File, 2)
	assert.Equal(t, "a.xml", r.File[0].Name)
	assert.Equal(t, "b.xml", r.File[1].Name)
}

func TestZipDirectoryEmpty(t *testing.T) {
	_, err := ZipDirectory(t.TempDir())
	assert.ErrorContains(t, err, "contains no XML files")
}
