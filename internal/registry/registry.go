// Package registry persists the set of registered node directories and
// reads per-node manifests from disk. It is grounded on the original
// daemon's registry store: a flat JSON document under the user's home
// directory, tolerant of a missing file, written atomically.
package registry

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/bubbaloop/bubbaloopd/cmn/cos"
	"github.com/bubbaloop/bubbaloopd/cmn/nlog"
	"github.com/bubbaloop/bubbaloopd/internal/errs"
	"github.com/bubbaloop/bubbaloopd/internal/manifest"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Entry is one registered node: its canonicalised directory and the time
// it was added (epoch milliseconds, kept as a string for wire stability
// with the original JSON shape).
type Entry struct {
	Path    string `json:"path"`
	AddedAt string `json:"addedAt"`
}

type document struct {
	Nodes []Entry `json:"nodes"`
}

// Store is the JSON-backed registry of node directories.
type Store struct {
	mu   sync.Mutex
	file string
}

// Home returns <user-home>/.bubbaloop, creating no directories by itself.
func Home() string {
	h, err := os.UserHomeDir()
	if err != nil {
		h = "/tmp"
	}
	return filepath.Join(h, ".bubbaloop")
}

func NodesFile() string { return filepath.Join(Home(), "nodes.json") }

// Open returns a Store backed by the default nodes.json location.
func Open() *Store { return &Store{file: NodesFile()} }

// OpenAt is used by tests to point the store at a scratch file.
func OpenAt(file string) *Store { return &Store{file: file} }

func (s *Store) load() (document, error) {
	b, err := os.ReadFile(s.file)
	if os.IsNotExist(err) {
		return document{}, nil
	}
	if err != nil {
		return document{}, errs.Wrap(errs.KindRegistryCorrupt, err, "reading %s", s.file)
	}
	var doc document
	if err := json.Unmarshal(b, &doc); err != nil {
		nlog.Warningf("registry: %s is corrupt, treating as empty for reads: %v", s.file, err)
		return document{}, nil
	}
	return doc, nil
}

func (s *Store) save(doc document) error {
	if err := os.MkdirAll(filepath.Dir(s.file), 0o755); err != nil {
		return errs.Wrap(errs.KindRegistryCorrupt, err, "creating %s", filepath.Dir(s.file))
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return errs.Wrap(errs.KindRegistryCorrupt, err, "encoding registry")
	}
	tmp := s.file + ".tmp-" + cos.GenRequestID()
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return errs.Wrap(errs.KindRegistryCorrupt, err, "writing %s", tmp)
	}
	if err := os.Rename(tmp, s.file); err != nil {
		os.Remove(tmp)
		return errs.Wrap(errs.KindRegistryCorrupt, err, "renaming %s", tmp)
	}
	return nil
}

// NodeRef pairs a registered path with its manifest, when readable.
type NodeRef struct {
	Path     string
	Manifest *manifest.Manifest // nil if the manifest failed to read/validate
	ReadErr  error
}

// List returns every registered path along with its manifest (or the
// error encountered reading it) — manifest failures never abort the
// listing, matching the tolerant read path of the source.
func (s *Store) List() ([]NodeRef, error) {
	s.mu.Lock()
	doc, err := s.load()
	s.mu.Unlock()
	if err != nil {
		return nil, err
	}
	out := make([]NodeRef, 0, len(doc.Nodes))
	for _, e := range doc.Nodes {
		m, rerr := manifest.Read(e.Path)
		out = append(out, NodeRef{Path: e.Path, Manifest: m, ReadErr: rerr})
	}
	return out, nil
}

// Register validates and adds a node directory, rejecting duplicates by
// canonical path.
func (s *Store) Register(path string) (*manifest.Manifest, error) {
	abs, err := canonical(path)
	if err != nil {
		return nil, errs.Wrap(errs.KindInvalidInput, err, "resolving %s", path)
	}
	if _, err := os.Stat(abs); err != nil {
		return nil, errs.InvalidInput("node directory does not exist: %s", abs)
	}
	m, err := manifest.Read(abs)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return nil, err
	}
	for _, e := range doc.Nodes {
		if ep, eerr := canonical(e.Path); eerr == nil && ep == abs {
			return nil, errs.InvalidInput("node already registered: %s", abs)
		}
	}
	if err := s.validateDependsOn(doc, m); err != nil {
		return nil, err
	}
	doc.Nodes = append(doc.Nodes, Entry{Path: abs, AddedAt: nowMillis()})
	if err := s.save(doc); err != nil {
		return nil, err
	}
	return m, nil
}

// Unregister removes a node directory by canonical path.
func (s *Store) Unregister(path string) error {
	abs, err := canonical(path)
	if err != nil {
		return errs.Wrap(errs.KindInvalidInput, err, "resolving %s", path)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.load()
	if err != nil {
		return err
	}
	kept := doc.Nodes[:0]
	found := false
	for _, e := range doc.Nodes {
		if ep, eerr := canonical(e.Path); eerr == nil && ep == abs {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return errs.NotFound("node not registered: %s", abs)
	}
	doc.Nodes = kept
	return s.save(doc)
}

// validateDependsOn rejects registration of a node whose depends_on list
// names a sibling that isn't already registered (§3 supplemental rule,
// SPEC_FULL.md §3 / original_source registry.rs::validate_manifest).
func (s *Store) validateDependsOn(doc document, m *manifest.Manifest) error {
	if len(m.DependsOn) == 0 {
		return nil
	}
	known := make(map[string]struct{}, len(doc.Nodes))
	for _, e := range doc.Nodes {
		if dm, err := manifest.Read(e.Path); err == nil {
			known[dm.Name] = struct{}{}
		}
	}
	for _, dep := range m.DependsOn {
		if _, ok := known[dep]; !ok {
			return errs.InvalidInput("unknown dependency: %s", dep)
		}
	}
	return nil
}

// CheckIsBuilt is a thin forward to manifest.IsBuilt, kept on the store so
// callers that only have a Store handy don't need a second import.
func CheckIsBuilt(nodePath string, m *manifest.Manifest) bool {
	return manifest.IsBuilt(nodePath, m)
}

func canonical(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved, nil
	}
	// EvalSymlinks fails for not-yet-existing paths; fall back to the
	// cleaned absolute path so Register's own not-exist check can fire.
	return filepath.Clean(abs), nil
}

func nowMillis() string {
	return strconv.FormatInt(time.Now().UnixMilli(), 10)
}
