// Package artifacts persists a run's evidence files under its own directory.
package artifacts

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
)

// Artifact file names.
const (
	FormHTML         = "form.html"
	FormRetryHTML    = "form_retry.html"
	HiddenFieldsJSON = "hidden_fields.json"
	PayloadJSON      = "payload.json"
	FormDataJSON     = "form_data.json"
	RequestInfoJSON  = "request_info.json"
	ResponseHTML     = "response.html"
	ResponseInfoJSON = "response_info.json"
	SummaryCSV       = "summary.csv"
	DetailedCSV      = "detailed.csv"
	FailedParseHTML  = "failed_parse.html"
	OutcomeJSON      = "outcome.json"
	DebugLog         = "scraper_debug.log"
)

// Error is a failed store operation.
type Error struct {
	Op      string
	Path    string
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("artifact %s %s: %s: %v", e.Op, e.Path, e.Message, e.Cause)
	}
	return fmt.Sprintf("artifact %s %s: %s", e.Op, e.Path, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Store writes named artifacts into <root>/<runID>/. Writing a name twice overwrites it.
// A Store is safe for concurrent use, but each run owns its own Store.
type Store struct {
	dir   string
	mu    sync.Mutex
	names map[string]struct{}
}

// Open creates the run directory under root and returns its store. The run id must be a
// single path element so runs can never share or escape the root.
func Open(root, runID string) (*Store, error) {
	if err := validRunID(runID); err != nil {
		return nil, err
	}
	dir := filepath.Join(root, runID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &Error{Op: "open", Path: dir, Message: "failed to create run directory", Cause: err}
	}
	return &Store{dir: dir, names: make(map[string]struct{})}, nil
}

// OpenExisting returns a store over an existing run directory without creating it.
func OpenExisting(dir string) (*Store, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &Error{Op: "open", Path: dir, Message: "run directory not accessible", Cause: err}
	}
	if !info.IsDir() {
		return nil, &Error{Op: "open", Path: dir, Message: "not a directory"}
	}
	s := &Store{dir: dir, names: make(map[string]struct{})}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &Error{Op: "open", Path: dir, Message: "failed to list run directory", Cause: err}
	}
	for _, e := range entries {
		if !e.IsDir() {
			s.names[e.Name()] = struct{}{}
		}
	}
	return s, nil
}

func validRunID(runID string) error {
	switch {
	case runID == "", runID == ".", runID == "..":
		return &Error{Op: "open", Path: runID, Message: "invalid run id"}
	case strings.ContainsAny(runID, `/\`):
		return &Error{Op: "open", Path: runID, Message: "run id must not contain path separators"}
	}
	return nil
}

// Dir returns the run directory.
func (s *Store) Dir() string {
	return s.dir
}

// Path returns the absolute location of a named artifact.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name)
}

// Reset removes everything in the run directory so a rerun under the same id starts clean.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &Error{Op: "reset", Path: s.dir, Message: "failed to list run directory", Cause: err}
	}
	var errs []error
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(s.dir, e.Name())); err != nil {
			errs = append(errs, err)
		}
	}
	clear(s.names)
	if len(errs) > 0 {
		return &Error{Op: "reset", Path: s.dir, Message: "failed to clear run directory", Cause: errors.Join(errs...)}
	}
	return nil
}

// Persist writes content under name, replacing any previous content.
func (s *Store) Persist(name string, content []byte) error {
	if name == "" || filepath.Base(name) != name {
		return &Error{Op: "persist", Path: name, Message: "artifact name must be a plain file name"}
	}
	path := s.Path(name)
	if err := os.WriteFile(path, content, 0644); err != nil {
		return &Error{Op: "persist", Path: path, Message: "failed to write artifact", Cause: err}
	}

	s.mu.Lock()
	s.names[name] = struct{}{}
	s.mu.Unlock()
	return nil
}

// Track records name as an artifact written to the run directory by another writer, such as
// the run's debug log.
func (s *Store) Track(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.names[name] = struct{}{}
}

// Remove deletes a named artifact. Removing an artifact that does not exist is not an error.
func (s *Store) Remove(name string) error {
	path := s.Path(name)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &Error{Op: "remove", Path: path, Message: "failed to remove artifact", Cause: err}
	}
	s.mu.Lock()
	delete(s.names, name)
	s.mu.Unlock()
	return nil
}

// PersistText writes a string artifact.
func (s *Store) PersistText(name, content string) error {
	return s.Persist(name, []byte(content))
}

// PersistJSON writes v as indented JSON.
func (s *Store) PersistJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &Error{Op: "persist", Path: name, Message: "failed to encode JSON", Cause: err}
	}
	return s.Persist(name, data)
}

// PersistCSV writes a header row followed by rows.
func (s *Store) PersistCSV(name string, header []string, rows [][]string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(header); err != nil {
		return &Error{Op: "persist", Path: name, Message: "failed to encode CSV header", Cause: err}
	}
	if err := w.WriteAll(rows); err != nil {
		return &Error{Op: "persist", Path: name, Message: "failed to encode CSV rows", Cause: err}
	}
	return s.Persist(name, buf.Bytes())
}

// Load reads a named artifact.
func (s *Store) Load(name string) ([]byte, error) {
	path := s.Path(name)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &Error{Op: "load", Path: path, Message: "failed to read artifact", Cause: err}
	}
	return data, nil
}

// LoadJSON decodes a named JSON artifact into v.
func (s *Store) LoadJSON(name string, v any) error {
	data, err := s.Load(name)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &Error{Op: "load", Path: s.Path(name), Message: "failed to decode JSON", Cause: err}
	}
	return nil
}

// Has reports whether name has been written through this store.
func (s *Store) Has(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.names[name]
	return ok
}

// Names lists the artifacts written so far in sorted order.
func (s *Store) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	names := make([]string, 0, len(s.names))
	for name := range s.names {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}
