package installer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cbecquet/testgui-release/internal/wizard"
)

// UninstallManifestName is the record the installer leaves behind so that
// uninstall reverses exactly what installation created.
const UninstallManifestName = "uninstall-manifest.yaml"

// UninstallManifest lists everything Apply created. Revert deletes this
// set, plus the declared runtime directories, and nothing else.
type UninstallManifest struct {
	Files       []string        `yaml:"files"`
	Dirs        []string        `yaml:"dirs"`
	Registry    []RegistryEntry `yaml:"registry,omitempty"`
	RuntimeDirs []string        `yaml:"runtime_dirs,omitempty"`
	MutexName   string          `yaml:"mutex_name,omitempty"`
}

// RegistryWriter applies and reverses file-association entries. The
// Windows installer delegates this to the compiled package; the portable
// install path and the tests use a file-backed table.
type RegistryWriter interface {
	Set(entry RegistryEntry) error
	Delete(entry RegistryEntry) error
}

// Apply executes the declarative effect tables: it copies every file group
// from sourceDir into destRoot, writes the registry entries, and records
// an uninstall manifest at destRoot. It corresponds to the wizard's
// Ready→Installing transition and must not run before it.
func Apply(cfg *Config, sourceDir, destRoot string, registry RegistryWriter) (*UninstallManifest, error) {
	manifest := &UninstallManifest{
		RuntimeDirs: append([]string(nil), cfg.RuntimeDirs...),
		MutexName:   cfg.MutexName,
	}
	createdDirs := map[string]struct{}{}

	for _, group := range cfg.Files {
		matches, err := filepath.Glob(filepath.Join(sourceDir, group.Source))
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", group.Source, err)
		}
		if len(matches) == 0 {
			return nil, fmt.Errorf("file group %s matched nothing under %s", group.Source, sourceDir)
		}

		destDir := filepath.Join(destRoot, group.Dest)
		if err := os.MkdirAll(destDir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s: %w", destDir, err)
		}
		if rel, err := filepath.Rel(destRoot, destDir); err == nil && rel != "." {
			// Record every ancestor, not just the leaf: a nested dest
			// creates the whole chain, and uninstall must remove exactly
			// what installation created.
			for dir := rel; dir != "." && dir != string(filepath.Separator); dir = filepath.Dir(dir) {
				createdDirs[dir] = struct{}{}
			}
		}

		for _, match := range matches {
			info, err := os.Stat(match)
			if err != nil {
				return nil, fmt.Errorf("stat %s: %w", match, err)
			}
			if info.IsDir() {
				continue
			}

			dest := filepath.Join(destDir, filepath.Base(match))
			if err := copyFile(match, dest, info.Mode()); err != nil {
				return nil, err
			}
			rel, err := filepath.Rel(destRoot, dest)
			if err != nil {
				return nil, fmt.Errorf("relativize %s: %w", dest, err)
			}
			manifest.Files = append(manifest.Files, rel)
		}
	}

	for _, entry := range cfg.Registry {
		if registry == nil {
			break
		}
		if err := registry.Set(entry); err != nil {
			return nil, fmt.Errorf("set registry %s: %w", entry.Key, err)
		}
		manifest.Registry = append(manifest.Registry, entry)
	}

	for dir := range createdDirs {
		manifest.Dirs = append(manifest.Dirs, dir)
	}
	sort.Strings(manifest.Files)
	// Deeper directories first so removal can proceed leaf-up.
	sort.Slice(manifest.Dirs, func(i, j int) bool {
		return strings.Count(manifest.Dirs[i], string(filepath.Separator)) > strings.Count(manifest.Dirs[j], string(filepath.Separator))
	})

	if err := writeUninstallManifest(destRoot, manifest); err != nil {
		return nil, err
	}
	return manifest, nil
}

// Revert undoes an installation recorded at destRoot. The uninstall is
// refused while the application holds its instance handle.
func Revert(destRoot string, probe wizard.InstanceProbe, registry RegistryWriter) error {
	manifest, err := ReadUninstallManifest(destRoot)
	if err != nil {
		return err
	}

	if err := wizard.GuardUninstall(probe, manifest.MutexName); err != nil {
		return err
	}

	for _, rel := range manifest.Files {
		path := filepath.Join(destRoot, rel)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove %s: %w", path, err)
		}
	}

	for _, entry := range manifest.Registry {
		if registry == nil {
			break
		}
		if err := registry.Delete(entry); err != nil {
			return fmt.Errorf("delete registry %s: %w", entry.Key, err)
		}
	}

	for _, dir := range manifest.RuntimeDirs {
		if err := os.RemoveAll(filepath.Join(destRoot, dir)); err != nil {
			return fmt.Errorf("remove runtime dir %s: %w", dir, err)
		}
	}

	for _, dir := range manifest.Dirs {
		// Only remove directories the install created and that are now
		// empty; anything the user put there stays.
		if err := os.Remove(filepath.Join(destRoot, dir)); err != nil && !os.IsNotExist(err) {
			continue
		}
	}

	if err := os.Remove(filepath.Join(destRoot, UninstallManifestName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove uninstall manifest: %w", err)
	}

	// Drop the install root itself when nothing is left.
	if entries, err := os.ReadDir(destRoot); err == nil && len(entries) == 0 {
		_ = os.Remove(destRoot)
	}
	return nil
}

// ReadUninstallManifest loads the record left by Apply.
func ReadUninstallManifest(destRoot string) (*UninstallManifest, error) {
	path := filepath.Join(destRoot, UninstallManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read uninstall manifest %s: %w", path, err)
	}

	var manifest UninstallManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse uninstall manifest %s: %w", path, err)
	}
	return &manifest, nil
}

func writeUninstallManifest(destRoot string, manifest *UninstallManifest) error {
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("encode uninstall manifest: %w", err)
	}
	path := filepath.Join(destRoot, UninstallManifestName)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write uninstall manifest: %w", err)
	}
	return nil
}

func copyFile(src, dest string, mode os.FileMode) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("read %s: %w", src, err)
	}
	if err := os.WriteFile(dest, data, mode.Perm()); err != nil {
		return fmt.Errorf("write %s: %w", dest, err)
	}
	return nil
}

// FileRegistry is a file-backed registry table used by the portable
// install path and by tests.
type FileRegistry struct {
	Path string

	entries map[string]string
}

func (r *FileRegistry) load() error {
	if r.entries != nil {
		return nil
	}
	r.entries = map[string]string{}

	data, err := os.ReadFile(r.Path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read registry table %s: %w", r.Path, err)
	}
	return yaml.Unmarshal(data, &r.entries)
}

func (r *FileRegistry) save() error {
	data, err := yaml.Marshal(r.entries)
	if err != nil {
		return fmt.Errorf("encode registry table: %w", err)
	}
	return os.WriteFile(r.Path, data, 0o644)
}

func (r *FileRegistry) Set(entry RegistryEntry) error {
	if err := r.load(); err != nil {
		return err
	}
	r.entries[registryKey(entry)] = entry.Value
	return r.save()
}

func (r *FileRegistry) Delete(entry RegistryEntry) error {
	if err := r.load(); err != nil {
		return err
	}
	delete(r.entries, registryKey(entry))
	return r.save()
}

// Entries returns the current table contents.
func (r *FileRegistry) Entries() (map[string]string, error) {
	if err := r.load(); err != nil {
		return nil, err
	}
	snapshot := make(map[string]string, len(r.entries))
	for key, value := range r.entries {
		snapshot[key] = value
	}
	return snapshot, nil
}

func registryKey(entry RegistryEntry) string {
	return entry.Root + `\` + entry.Key + `\` + entry.Name
}
