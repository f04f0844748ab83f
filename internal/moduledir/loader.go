package moduledir

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"gopkg.in/yaml.v3"
)

// Entry is a parsed manifest with where it came from.
type Entry struct {
	Manifest Manifest
	Dir      string // module directory, root of its resources
	Digest   uint64 // xxhash of the raw manifest, changes trigger a reload
}

// Loader handles scanning the modules directory
type Loader struct {
	dir string
}

// NewLoader creates a new module directory loader
func NewLoader(dir string) *Loader {
	return &Loader{dir: dir}
}

// Dir returns the scanned directory.
func (l *Loader) Dir() string { return l.dir }

// Load reads every <dir>/<module>/module.yaml. Broken manifests are skipped
// and reported in the returned error; the valid ones are still returned.
func (l *Loader) Load() ([]Entry, error) {
	dirents, err := os.ReadDir(l.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read modules directory: %w", err)
	}

	var (
		entries []Entry
		errs    []error
		seen    = make(map[string]string)
	)
	for _, de := range dirents {
		if !de.IsDir() || strings.HasPrefix(de.Name(), ".") {
			continue
		}
		moduleDir := filepath.Join(l.dir, de.Name())
		e, err := LoadEntry(moduleDir)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if other, dup := seen[e.Manifest.Name]; dup {
			errs = append(errs, fmt.Errorf("module %q declared in both %s and %s", e.Manifest.Name, other, moduleDir))
			continue
		}
		seen[e.Manifest.Name] = moduleDir
		entries = append(entries, e)
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Manifest.Name < entries[j].Manifest.Name })
	return entries, errors.Join(errs...)
}

// LoadEntry parses the manifest of a single module directory. The module
// name defaults to the directory name. ${VAR} references are expanded from
// the environment.
func LoadEntry(moduleDir string) (Entry, error) {
	data, err := os.ReadFile(filepath.Join(moduleDir, ManifestFile))
	if err != nil {
		return Entry{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &m); err != nil {
		return Entry{}, fmt.Errorf("failed to parse manifest %s: %w", moduleDir, err)
	}
	if m.Name == "" {
		m.Name = filepath.Base(moduleDir)
	}
	for i, s := range m.Services {
		if s.Factory == "" {
			return Entry{}, fmt.Errorf("manifest %s: service #%d has no factory", moduleDir, i)
		}
		if s.Impl == "" {
			m.Services[i].Impl = m.Name + "." + s.Factory
		}
	}

	return Entry{
		Manifest: m,
		Dir:      moduleDir,
		Digest:   xxhash.Sum64(data),
	}, nil
}
