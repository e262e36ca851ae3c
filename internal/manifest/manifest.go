// Package manifest loads the capability list an author declares for their
// code. The audited tree can declare capabilities in three places, checked
// in priority order: an explicit --manifest path, a warden.yml at the root,
// or a "capabilities" array in package.json. A tree that declares nothing
// gets an empty manifest, which is not an error.
package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Manifest source labels recorded in run metadata.
const (
	SourceNone        = "none"
	SourceFlag        = "flag"
	SourceWardenYAML  = "warden.yml"
	SourcePackageJSON = "package.json"
)

const descriptorFile = "package.json"

var wardenFiles = []string{"warden.yml", "warden.yaml"}

// Manifest is the author-declared capability set. Names keep their
// declaration order with duplicates collapsed, and lookups are
// case-sensitive. Unknown names are inert; they can only ever surface in
// the declared-but-unused list.
type Manifest struct {
	names    []string
	index    map[string]struct{}
	source   string
	path     string
	declared bool
}

// ConfigError marks a manifest that exists but cannot be trusted. A run
// never consumes a partial or malformed manifest.
type ConfigError struct {
	Path string
	Msg  string
}

func (e ConfigError) Error() string {
	return fmt.Sprintf("manifest %s: %s", e.Path, e.Msg)
}

func configError(path, format string, args ...any) error {
	return ConfigError{Path: path, Msg: fmt.Sprintf(format, args...)}
}

// IsConfigError reports whether err originated from manifest loading.
func IsConfigError(err error) bool {
	var target ConfigError
	return errors.As(err, &target)
}

// New builds a manifest from raw declared names. Blank entries are dropped
// and repeated names keep their first position.
func New(names []string, source, path string) Manifest {
	m := Manifest{
		index:    map[string]struct{}{},
		source:   source,
		path:     path,
		declared: true,
	}
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		if name == "" {
			continue
		}
		if _, ok := m.index[name]; ok {
			continue
		}
		m.index[name] = struct{}{}
		m.names = append(m.names, name)
	}
	return m
}

// Empty is the manifest of a tree that declares nothing.
func Empty() Manifest {
	return Manifest{source: SourceNone}
}

// Declares reports whether the author declared the exact capability name.
func (m Manifest) Declares(name string) bool {
	_, ok := m.index[name]
	return ok
}

// Names returns the declared capability names in declaration order.
func (m Manifest) Names() []string {
	return append([]string(nil), m.names...)
}

func (m Manifest) Len() int { return len(m.names) }

// Declared reports whether any source declared a manifest at all. A
// declared-empty manifest (capabilities: []) still counts as declared,
// which is what the require_manifest policy gate checks.
func (m Manifest) Declared() bool { return m.declared }

// Source names where the manifest came from.
func (m Manifest) Source() string {
	if m.source == "" {
		return SourceNone
	}
	return m.source
}

// Path is the file the manifest was read from, empty when undeclared.
func (m Manifest) Path() string { return m.path }

// Resolve finds and loads the manifest for an audited root. An explicit
// path wins over discovery; discovery checks warden.yml then the
// package.json capabilities field. Neither existing yields Empty.
func Resolve(explicit, root string) (Manifest, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return LoadFile(p)
	}
	for _, name := range wardenFiles {
		m, ok, err := loadWardenYAML(filepath.Join(root, name))
		if err != nil {
			return Manifest{}, err
		}
		if ok {
			return m, nil
		}
	}
	m, ok, err := loadDescriptor(filepath.Join(root, descriptorFile))
	if err != nil {
		return Manifest{}, err
	}
	if ok {
		return m, nil
	}
	return Empty(), nil
}

// LoadFile loads an explicitly named manifest file. A .json file is read as
// a package descriptor and must carry a capabilities array; anything else is
// read as YAML and must carry a capabilities list. Pointing at a file that
// declares nothing is a configuration error, unlike discovery.
func LoadFile(path string) (Manifest, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return Manifest{}, configError(path, "manifest path is required")
	}
	if _, err := os.Stat(path); err != nil {
		return Manifest{}, configError(path, "read manifest: %v", err)
	}
	if strings.EqualFold(filepath.Ext(path), ".json") {
		m, ok, err := loadDescriptor(path)
		if err != nil {
			return Manifest{}, err
		}
		if !ok {
			return Manifest{}, configError(path, "descriptor has no capabilities field")
		}
		m.source = SourceFlag
		return m, nil
	}
	m, ok, err := loadWardenYAML(path)
	if err != nil {
		return Manifest{}, err
	}
	if !ok {
		return Manifest{}, configError(path, "no capabilities list found")
	}
	m.source = SourceFlag
	return m, nil
}

// wardenDoc is the subset of warden.yml the manifest loader cares about.
// The raw node distinguishes a missing capabilities key from a declared
// empty list, and keeps entry tags observable for strict decoding.
type wardenDoc struct {
	// A value (not pointer) Node: yaml.v3 only decodes non-scalar values
	// into yaml.Node directly, and a zero Kind still marks a missing key.
	Capabilities yaml.Node `yaml:"capabilities"`
}

func loadWardenYAML(path string) (Manifest, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, configError(path, "read manifest: %v", err)
	}
	var doc wardenDoc
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return Manifest{}, false, configError(path, "parse manifest: %v", err)
	}
	if doc.Capabilities.Kind == 0 || doc.Capabilities.Tag == "!!null" {
		return Manifest{}, false, nil
	}
	names, listErr := stringListNode(&doc.Capabilities)
	if listErr != nil {
		return Manifest{}, false, configError(path, "capabilities must be a list of strings: %v", listErr)
	}
	return New(names, SourceWardenYAML, path), true, nil
}

// stringListNode decodes a YAML sequence whose entries are all strings.
// yaml.v3 would coerce `capabilities: [fs, 42]` to ["fs","42"]; a declared
// bare number is a typo, and a half-understood manifest must not be
// consumed.
func stringListNode(node *yaml.Node) ([]string, error) {
	if node.Kind == yaml.AliasNode && node.Alias != nil {
		node = node.Alias
	}
	if node.Kind != yaml.SequenceNode {
		return nil, fmt.Errorf("expected a sequence, got %s", node.Tag)
	}
	out := make([]string, 0, len(node.Content))
	for i, item := range node.Content {
		if item.Kind == yaml.AliasNode && item.Alias != nil {
			item = item.Alias
		}
		if item.Kind != yaml.ScalarNode || item.Tag != "!!str" {
			return nil, fmt.Errorf("entry %d is not a string (%s)", i+1, item.Tag)
		}
		out = append(out, item.Value)
	}
	return out, nil
}

// descriptorDoc reads the capabilities field of package.json without
// touching the rest of the descriptor. RawMessage keeps field presence
// observable so "capabilities": [] stays distinct from no field at all.
type descriptorDoc struct {
	Capabilities json.RawMessage `json:"capabilities"`
}

func loadDescriptor(path string) (Manifest, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Manifest{}, false, nil
		}
		return Manifest{}, false, configError(path, "read manifest: %v", err)
	}
	var doc descriptorDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return Manifest{}, false, configError(path, "parse %s: %v", filepath.Base(path), err)
	}
	if doc.Capabilities == nil || string(doc.Capabilities) == "null" {
		return Manifest{}, false, nil
	}
	var names []string
	if err := json.Unmarshal(doc.Capabilities, &names); err != nil {
		return Manifest{}, false, configError(path, "capabilities must be an array of strings")
	}
	return New(names, SourcePackageJSON, path), true, nil
}
