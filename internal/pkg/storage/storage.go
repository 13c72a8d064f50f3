package storage

import (
	"archive/zip"
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/reinfweb/ReinfWeb/internal/pkg/env"
)

// Storage resolves and prepares the on-disk layout of the pipeline:
//
//	{base}/spreadsheets/{company}/{event}/{year}/...
//	{base}/converted_spreadsheets/{company}/{event}/{year}/{name}/...
//	{base}/signed_xmls/{company}/{event}/{year}/{name}/...
//	{base}/.../lots/...
type Storage struct {
	Base string
}

// NewStorage creates a storage rooted at base.
func NewStorage(base string) *Storage {
	return &Storage{Base: base}
}

// NewStorageFromEnv roots the storage at UPLOAD_FOLDER (default "uploads").
func NewStorageFromEnv() *Storage {
	return NewStorage(env.GetEnv("UPLOAD_FOLDER", "uploads"))
}

// SpreadsheetDir is where an uploaded spreadsheet lands.
func (s *Storage) SpreadsheetDir(companyID, event string, year int) string {
	return filepath.Join(s.Base, "spreadsheets", companyID, event, strconv.Itoa(year))
}

// ConvertedDir is where the XML events generated from one spreadsheet land.
func (s *Storage) ConvertedDir(companyID, event string, year int, name string) string {
	return filepath.Join(s.Base, "converted_spreadsheets", companyID, event, strconv.Itoa(year), name)
}

// SignedDir is where signed copies of generated events land.
func (s *Storage) SignedDir(companyID, event string, year int, name string) string {
	return filepath.Join(s.Base, "signed_xmls", companyID, event, strconv.Itoa(year), name)
}

// LotDir is where rendered lot documents for one conversion land.
func LotDir(convertedDir string) string {
	return filepath.Join(convertedDir, "lots")
}

// EnsureDir creates the directory (and parents) when missing.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", dir, err)
	}
	return nil
}

// WriteFile ensures the parent directory exists and writes the file.
func WriteFile(path string, data []byte) error {
	if err := EnsureDir(filepath.Dir(path)); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ZipDirectory packs the .xml files directly under dir into an in-memory zip
// archive, in name order. Subdirectories are not descended into.
func ZipDirectory(dir string) ([]byte, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(strings.ToLower(e.Name()), ".xml") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("directory %s contains no XML files", dir)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		member, err := w.Create(name)
		if err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", name, err)
		}
		if _, err := member.Write(data); err != nil {
			return nil, fmt.Errorf("write %s to archive: %w", name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("finish archive: %w", err)
	}
	return buf.Bytes(), nil
}
