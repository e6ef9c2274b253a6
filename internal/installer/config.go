// Package installer produces the signed Windows installer: it renders the
// installer compiler script from a declarative configuration, invokes the
// external compiler, and models the install/uninstall effect tables.
package installer

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cbecquet/testgui-release/internal/wizard"
)

// License gate policies selectable in the config.
const (
	LicenseModeOff     = "off"
	LicenseModeFormat  = "format"
	LicenseModeKeyring = "keyring"
)

// Identity names the application being installed.
type Identity struct {
	Name      string `yaml:"name"`
	Version   string `yaml:"version"`
	Publisher string `yaml:"publisher"`
	URL       string `yaml:"url,omitempty"`
}

// FileGroup declares one payload table row: files matching Source (a glob
// relative to the bundle output) are installed into Dest (relative to the
// install directory).
type FileGroup struct {
	Source string   `yaml:"source"`
	Dest   string   `yaml:"dest,omitempty"`
	Flags  []string `yaml:"flags,omitempty"`
}

// RegistryEntry declares one file-association row.
type RegistryEntry struct {
	Root  string `yaml:"root"`
	Key   string `yaml:"key"`
	Name  string `yaml:"name,omitempty"`
	Value string `yaml:"value"`
}

// Shortcut declares a start menu or desktop shortcut.
type Shortcut struct {
	Name      string `yaml:"name"`
	Target    string `yaml:"target"`
	StartMenu bool   `yaml:"start_menu"`
	Desktop   bool   `yaml:"desktop"`
}

// LicensePolicy selects the wizard's key validation predicate. The real
// trust policy is injected by the surrounding product; these modes cover
// the shipped placeholder (format) and an offline keyring.
type LicensePolicy struct {
	Mode string   `yaml:"mode"`
	Keys []string `yaml:"keys,omitempty"`
}

// Config is the declarative installer description consumed by the wizard
// state machine and the script generator.
type Config struct {
	App        Identity `yaml:"app"`
	InstallDir string   `yaml:"install_dir"`
	OutputBase string   `yaml:"output_base,omitempty"`
	// MutexName is the mutual-exclusion handle the running application
	// holds; uninstall is refused while it is held.
	MutexName   string          `yaml:"mutex_name,omitempty"`
	LicenseFile string          `yaml:"license_file,omitempty"`
	Files       []FileGroup     `yaml:"files"`
	Registry    []RegistryEntry `yaml:"registry,omitempty"`
	Shortcuts   []Shortcut      `yaml:"shortcuts,omitempty"`
	// RuntimeDirs are directories the application creates at runtime
	// (logs, data, model caches) that uninstall must remove in addition
	// to what the installer itself created.
	RuntimeDirs []string      `yaml:"runtime_dirs,omitempty"`
	Pages       []string      `yaml:"pages,omitempty"`
	License     LicensePolicy `yaml:"license"`
}

// LoadConfig reads and validates an installer configuration.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read installer config %s: %w", path, err)
	}

	var cfg Config
	decoder := yaml.NewDecoder(strings.NewReader(string(data)))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse installer config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration for the mistakes the compiler would
// otherwise surface much later.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("installer config: app.name is required")
	}
	if c.App.Version == "" {
		return fmt.Errorf("installer config: app.version is required")
	}
	if c.InstallDir == "" {
		return fmt.Errorf("installer config: install_dir is required")
	}
	if len(c.Files) == 0 {
		return fmt.Errorf("installer config: at least one file group is required")
	}
	for i, group := range c.Files {
		if group.Source == "" {
			return fmt.Errorf("installer config: files[%d].source is required", i)
		}
	}
	switch c.License.Mode {
	case "", LicenseModeOff, LicenseModeFormat:
	case LicenseModeKeyring:
		if len(c.License.Keys) == 0 {
			return fmt.Errorf("installer config: license.keys is required for keyring mode")
		}
	default:
		return fmt.Errorf("installer config: unknown license mode %q", c.License.Mode)
	}
	return nil
}

// OutputFilename returns the installer's output file name, e.g.
// TestingGUI_Setup_v3.0.0.exe.
func (c *Config) OutputFilename() string {
	base := c.OutputBase
	if base == "" {
		base = fmt.Sprintf("%s_Setup_v%s", strings.ReplaceAll(c.App.Name, " ", ""), c.App.Version)
	}
	return base + ".exe"
}

// Flow builds the wizard flow this configuration declares. The validator
// parameter overrides the config-selected predicate; pass nil to use it.
func (c *Config) Flow(validate wizard.KeyValidator) (wizard.Flow, error) {
	flow := wizard.Flow{
		CustomPages: append([]string(nil), c.Pages...),
		RequireKey:  c.License.Mode != "" && c.License.Mode != LicenseModeOff,
	}

	if !flow.RequireKey {
		return flow, nil
	}
	if validate != nil {
		flow.Validate = validate
		return flow, nil
	}

	switch c.License.Mode {
	case LicenseModeFormat:
		flow.Validate = wizard.FormatValidator
	case LicenseModeKeyring:
		flow.Validate = wizard.KeyringValidator(c.License.Keys)
	}
	return flow, nil
}
