package installer

import (
	"fmt"
	"strings"
	"text/template"
)

// The compiler script is rendered from the declarative config instead of
// being maintained as an inline script with embedded wizard code. The
// AppMutex directive carries the running-application uninstall guard into
// the compiled installer.
const scriptTemplate = `; Generated by tgrel. Do not edit; change installer.yaml instead.

[Setup]
AppName={{.App.Name}}
AppVersion={{.App.Version}}
AppPublisher={{.App.Publisher}}
{{- if .App.URL}}
AppPublisherURL={{.App.URL}}
{{- end}}
DefaultDirName={{.InstallDir}}
DefaultGroupName={{.App.Name}}
{{- if .LicenseFile}}
LicenseFile={{.LicenseFile}}
{{- end}}
{{- if .MutexName}}
AppMutex={{.MutexName}}
{{- end}}
OutputDir={{.OutputDir}}
OutputBaseFilename={{.OutputBaseName}}
Compression=lzma2
SolidCompression=yes
ArchitecturesInstallIn64BitMode=x64compatible

[Files]
{{- range .Files}}
Source: "{{$.SourceDir}}\{{.Source}}"; DestDir: "{app}{{with .Dest}}\{{.}}{{end}}"{{with .Flags}}; Flags: {{join .}}{{end}}
{{- end}}

{{- if .Registry}}

[Registry]
{{- range .Registry}}
Root: {{.Root}}; Subkey: "{{.Key}}"; ValueType: string; ValueName: "{{.Name}}"; ValueData: "{{.Value}}"; Flags: uninsdeletekey
{{- end}}
{{- end}}

{{- if .Shortcuts}}

[Icons]
{{- range .Shortcuts}}
{{- if .StartMenu}}
Name: "{group}\{{.Name}}"; Filename: "{app}\{{.Target}}"
{{- end}}
{{- if .Desktop}}
Name: "{autodesktop}\{{.Name}}"; Filename: "{app}\{{.Target}}"
{{- end}}
{{- end}}
{{- end}}

{{- if .RuntimeDirs}}

[UninstallDelete]
{{- range .RuntimeDirs}}
Type: filesandordirs; Name: "{app}\{{.}}"
{{- end}}
{{- end}}
`

type scriptData struct {
	*Config
	SourceDir      string
	OutputDir      string
	OutputBaseName string
}

var scriptTmpl = template.Must(template.New("installer-script").
	Funcs(template.FuncMap{"join": func(items []string) string { return strings.Join(items, " ") }}).
	Parse(scriptTemplate))

// Script renders the installer compiler script. sourceDir is the bundle
// output directory holding the payload, outputDir is where the compiler
// writes the finished installer.
func (c *Config) Script(sourceDir, outputDir string) (string, error) {
	data := scriptData{
		Config:         c,
		SourceDir:      sourceDir,
		OutputDir:      outputDir,
		OutputBaseName: strings.TrimSuffix(c.OutputFilename(), ".exe"),
	}

	var builder strings.Builder
	if err := scriptTmpl.Execute(&builder, data); err != nil {
		return "", fmt.Errorf("render installer script: %w", err)
	}
	return builder.String(), nil
}
