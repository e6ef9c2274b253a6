// Package manifest describes what the bundle stage must embed: data files,
// hidden imports the freezing tool cannot discover on its own, and modules
// to exclude. Manifests are declared in YAML and resolved against an
// explicit project root before any stage runs.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Error reports a manifest that cannot be resolved.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "manifest: " + e.Reason
}

// DataEntry maps a source path (relative to the project root) to a
// destination directory inside the bundle.
type DataEntry struct {
	Source string `yaml:"source"`
	Dest   string `yaml:"dest"`
}

// Manifest declares the bundle contents for one application release.
type Manifest struct {
	AppName    string `yaml:"app_name"`
	Version    string `yaml:"version"`
	EntryPoint string `yaml:"entry_point"`
	Icon       string `yaml:"icon,omitempty"`

	Data          []DataEntry `yaml:"data,omitempty"`
	HiddenImports []string    `yaml:"hidden_imports,omitempty"`
	CollectAll    []string    `yaml:"collect_all,omitempty"`
	Exclude       []string    `yaml:"exclude,omitempty"`

	root string
}

// Load reads a manifest declaration from disk. The result is unresolved;
// call Resolve before handing it to a stage.
func Load(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest %s: %w", path, err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse manifest %s: %w", path, err)
	}
	return &m, nil
}

// Resolve validates the manifest against the project tree and returns a
// copy with all data sources resolved to absolute paths. It is a pure
// function of the project tree: no side effects, and the returned manifest
// is immutable for the rest of the pipeline run. Resolution fails when a
// declared data source does not exist or when a module appears both in the
// include lists and the exclude list.
func (m *Manifest) Resolve(projectRoot string) (*Manifest, error) {
	if m.AppName == "" {
		return nil, &Error{Reason: "app_name is required"}
	}
	if m.EntryPoint == "" {
		return nil, &Error{Reason: "entry_point is required"}
	}

	root, err := filepath.Abs(projectRoot)
	if err != nil {
		return nil, fmt.Errorf("resolve project root: %w", err)
	}

	if overlap := intersect(append(append([]string(nil), m.HiddenImports...), m.CollectAll...), m.Exclude); len(overlap) > 0 {
		return nil, &Error{Reason: fmt.Sprintf("module %q is both included and excluded", overlap[0])}
	}

	resolved := Manifest{
		AppName:       m.AppName,
		Version:       m.Version,
		EntryPoint:    filepath.Join(root, m.EntryPoint),
		HiddenImports: append([]string(nil), m.HiddenImports...),
		CollectAll:    append([]string(nil), m.CollectAll...),
		Exclude:       append([]string(nil), m.Exclude...),
		root:          root,
	}

	if m.Icon != "" {
		resolved.Icon = filepath.Join(root, m.Icon)
		if _, err := os.Stat(resolved.Icon); err != nil {
			return nil, &Error{Reason: fmt.Sprintf("icon %s does not exist", m.Icon)}
		}
	}

	for _, entry := range m.Data {
		source := filepath.Join(root, entry.Source)
		if _, err := os.Stat(source); err != nil {
			return nil, &Error{Reason: fmt.Sprintf("data source %s does not exist", entry.Source)}
		}
		dest := entry.Dest
		if dest == "" {
			dest = entry.Source
		}
		resolved.Data = append(resolved.Data, DataEntry{Source: source, Dest: dest})
	}

	return &resolved, nil
}

// Resolved reports whether the manifest has been resolved against a
// project root.
func (m *Manifest) Resolved() bool {
	return m.root != ""
}

// Root returns the project root the manifest was resolved against, empty
// for unresolved manifests.
func (m *Manifest) Root() string {
	return m.root
}

func intersect(include, exclude []string) []string {
	excluded := make(map[string]struct{}, len(exclude))
	for _, name := range exclude {
		excluded[name] = struct{}{}
	}

	var overlap []string
	for _, name := range include {
		if _, ok := excluded[name]; ok {
			overlap = append(overlap, name)
		}
	}
	return overlap
}
