package pattern

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Library is the set of pattern documents found in a directory, in file name order.
type Library struct {
	dir      string
	patterns []*Pattern
	byName   map[string]*Pattern
}

// LoadFile reads and parses a single pattern document. A pattern without a
// name is named after its file.
func LoadFile(path string) (*Pattern, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	p, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return p, nil
}

// LoadDir loads every *.json, *.yaml and *.yml document in dir. Documents that
// fail to parse are logged and skipped; their errors are returned alongside
// the library so callers can surface them.
func LoadDir(dir string) (*Library, []error) {
	lib := &Library{dir: dir, byName: make(map[string]*Pattern)}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return lib, []error{err}
	}

	var errs []error
	for _, entry := range entries {
		if entry.IsDir() || !isDocument(entry.Name()) {
			continue
		}
		p, err := LoadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", entry.Name()).Msg("Skipping invalid pattern document")
			errs = append(errs, err)
			continue
		}
		if _, dup := lib.byName[p.Name]; dup {
			log.Warn().Str("file", entry.Name()).Str("pattern", p.Name).Msg("Duplicate pattern name, keeping the first")
			continue
		}
		lib.patterns = append(lib.patterns, p)
		lib.byName[p.Name] = p
	}

	log.Info().Str("dir", dir).Int("patterns", len(lib.patterns)).Int("invalid", len(errs)).Msg("Pattern library loaded")
	return lib, errs
}

func isDocument(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}

// Get returns a pattern by name.
func (l *Library) Get(name string) (*Pattern, bool) {
	p, ok := l.byName[name]
	return p, ok
}

// Names lists pattern names in file order.
func (l *Library) Names() []string {
	names := make([]string, len(l.patterns))
	for i, p := range l.patterns {
		names[i] = p.Name
	}
	return names
}

// Len returns the number of loaded patterns.
func (l *Library) Len() int {
	return len(l.patterns)
}

// Dir returns the directory the library was loaded from.
func (l *Library) Dir() string {
	return l.dir
}
