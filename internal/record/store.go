package record

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store persists server records as one JSON file per server in a directory.
type Store struct {
	dir string
}

func NewStore(dir string) *Store { return &Store{dir: dir} }

func (s *Store) Dir() string { return s.dir }

// List returns the paths of all record files in the directory, creating
// the directory when missing.
func (s *Store) List() ([]string, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		files = append(files, filepath.Join(s.dir, e.Name()))
	}
	return files, nil
}

// Load reads and decodes one record file. The record remembers its path.
func (s *Store) Load(path string) (Record, error) {
	b, err := os.ReadFile(path) // #nosec G304 -- paths come from the managed records dir
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return Record{}, fmt.Errorf("decode %s: %w", path, err)
	}
	rec.File = path
	return rec, nil
}

// Save writes the record to its file, deriving a path from the id when the
// record has none yet.
func (s *Store) Save(rec *Record) error {
	if rec.File == "" {
		if err := os.MkdirAll(s.dir, 0o750); err != nil {
			return err
		}
		rec.File = filepath.Join(s.dir, rec.ID+".json")
	}
	b, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(rec.File, b, 0o600)
}

// Delete removes the record file; missing files are not an error.
func (s *Store) Delete(rec *Record) error {
	if rec.File == "" {
		return nil
	}
	if err := os.Remove(rec.File); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
