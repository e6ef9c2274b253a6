// Package setup prepares a project directory for release builds: it
// creates the directories and companion files the later stages expect.
// It is essentially a collection of scripts and constants, and is therefore
// the only package that is allowed to call a package-global logger.
package setup

import (
	"fmt"
	"os"
	"path/filepath"
)

// Directories every release build expects to exist under the project root.
var scaffoldDirs = [...]string{
	"resources",
	"installer_output",
}

// Companion files shipped next to the executable. Existing files are never
// overwritten; Scaffold only fills gaps.
const (
	LicenseFileName = "LICENSE.txt"
	ReadmeFileName  = "README.txt"
)

const defaultLicense = `MIT License

Copyright (c) 2025 Charlie Becquet

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
`

const defaultReadme = `Standardized Testing GUI v3.0.0

Professional data analysis software for standardized test workflows.

SYSTEM REQUIREMENTS:
- Windows 10 or later (64-bit)
- 4GB RAM minimum (8GB recommended)
- 500MB available disk space

SUPPORT:
See the application's Help menu or contact the publisher.
`

// Scaffold prepares projectRoot for release builds. It is idempotent:
// directories and files that already exist are left untouched.
func Scaffold(projectRoot string) error {
	logger := getLogger()

	for _, dir := range scaffoldDirs {
		path := filepath.Join(projectRoot, dir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", path, err)
		}
		logger.Info("directory ready", "path", path)
	}

	files := map[string]string{
		LicenseFileName: defaultLicense,
		ReadmeFileName:  defaultReadme,
	}
	for name, content := range files {
		path := filepath.Join(projectRoot, name)
		if _, err := os.Stat(path); err == nil {
			logger.Info("file already exists", "path", path)
			continue
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		logger.Info("file created", "path", path)
	}

	// The icon is binary content the user must provide; report, never paint.
	iconPath := filepath.Join(projectRoot, "resources", "icon.ico")
	if _, err := os.Stat(iconPath); err != nil {
		logger.Warn("no application icon found, the bundle will use the tool default", "expected", iconPath)
	}

	return nil
}

// Verify checks that projectRoot carries everything Scaffold would create.
func Verify(projectRoot string) error {
	var paths []string
	for _, dir := range scaffoldDirs {
		paths = append(paths, filepath.Join(projectRoot, dir))
	}
	paths = append(paths,
		filepath.Join(projectRoot, LicenseFileName),
		filepath.Join(projectRoot, ReadmeFileName),
	)

	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("file %s does not exist", path)
		}
	}
	return nil
}
