// Package tui is the terminal front-end for the installer wizard. It
// follows the bubbletea Model/Update/View loop; all flow decisions live in
// the wizard state machine, the model only renders pages and feeds input
// through.
package tui

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/cbecquet/testgui-release/internal/installer"
	"github.com/cbecquet/testgui-release/internal/wizard"
)

// Installer performs the install effects when the wizard reaches its
// installing page. It runs once per wizard session.
type Installer func() error

// ErrNotATerminal is returned by Run when stdout is not an interactive
// terminal; the wizard has no non-interactive mode.
var ErrNotATerminal = errors.New("the install wizard needs an interactive terminal")

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#5B8DEF")).
			MarginBottom(1)
	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 2)
	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))
	hintStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#888888")).
			MarginTop(1)
	stepStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#AAAAAA"))
)

type installDoneMsg struct {
	err error
}

// Model drives one wizard session.
type Model struct {
	machine *wizard.Machine
	cfg     *installer.Config
	install Installer

	keyInput    textinput.Model
	licenseText string
	installing  bool
	installErr  error
	aborted     bool

	width int
}

// New builds the wizard model for the given installer configuration. The
// validator parameter overrides the config-selected key predicate; pass
// nil to use it. The install callback runs on the installing page and may
// be nil for a dry walk-through of the flow.
func New(cfg *installer.Config, validate wizard.KeyValidator, install Installer) (*Model, error) {
	flow, err := cfg.Flow(validate)
	if err != nil {
		return nil, err
	}
	machine, err := wizard.NewMachine(flow)
	if err != nil {
		return nil, err
	}

	keyInput := textinput.New()
	keyInput.Placeholder = "XXXX-XXXX-XXXX-XXXX"
	keyInput.CharLimit = 64
	keyInput.Width = 30

	licenseText := ""
	if cfg.LicenseFile != "" {
		if data, err := os.ReadFile(cfg.LicenseFile); err == nil {
			licenseText = strings.TrimSpace(string(data))
		}
	}

	return &Model{
		machine:     machine,
		cfg:         cfg,
		install:     install,
		keyInput:    keyInput,
		licenseText: licenseText,
	}, nil
}

// Aborted reports whether the user quit before the flow finished.
func (m *Model) Aborted() bool {
	return m.aborted
}

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case installDoneMsg:
		m.installing = false
		m.installErr = msg.err
		if msg.err == nil {
			_ = m.machine.Advance("")
		}
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if !m.machine.Done() {
				m.aborted = true
			}
			return m, tea.Quit
		case "esc", "left":
			if m.machine.Current() != wizard.PageInstalling {
				_ = m.machine.Back()
			}
			return m, nil
		case "enter":
			return m.advance()
		}
	}

	if m.machine.Current() == wizard.PageLicenseKey {
		var cmd tea.Cmd
		m.keyInput, cmd = m.keyInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

// advance feeds the current page's input to the machine and kicks off the
// install when the flow enters the installing page.
func (m *Model) advance() (tea.Model, tea.Cmd) {
	if m.installing {
		return m, nil
	}
	if m.machine.Done() {
		return m, tea.Quit
	}
	if m.installErr != nil && m.machine.Current() == wizard.PageInstalling {
		// A failed install ends the session; rerunning the wizard retries.
		m.aborted = true
		return m, tea.Quit
	}

	input := ""
	if m.machine.Current() == wizard.PageLicenseKey {
		input = m.keyInput.Value()
	}

	if err := m.machine.Advance(input); err != nil {
		// Rejection keeps the machine on the gate; Message() carries the
		// user-visible reason.
		return m, nil
	}
	m.keyInput.SetValue("")

	if m.machine.Current() == wizard.PageInstalling {
		m.installing = true
		return m, m.runInstall()
	}
	if m.machine.Current() == wizard.PageLicenseKey {
		return m, m.keyInput.Focus()
	}
	return m, nil
}

func (m *Model) runInstall() tea.Cmd {
	return func() tea.Msg {
		if m.install == nil {
			return installDoneMsg{}
		}
		return installDoneMsg{err: m.install()}
	}
}

func (m *Model) View() string {
	var body string
	switch page := m.machine.Current(); page {
	case wizard.PageWelcome:
		body = fmt.Sprintf("Welcome to the %s %s setup wizard.\n\nPublisher: %s\nInstall directory: %s",
			m.cfg.App.Name, m.cfg.App.Version, m.cfg.App.Publisher, m.cfg.InstallDir)
	case wizard.PageLicense:
		text := m.licenseText
		if text == "" {
			text = "No license text provided."
		}
		body = "License agreement:\n\n" + text + "\n\nPress Enter to accept."
	case wizard.PageLicenseKey:
		body = "Enter your license key:\n\n" + m.keyInput.View()
		if msg := m.machine.Message(); msg != "" {
			body += "\n\n" + errorStyle.Render(msg)
		}
	case wizard.PageReady:
		body = fmt.Sprintf("Ready to install %s into %s.\n\nPress Enter to begin.",
			m.cfg.App.Name, m.cfg.InstallDir)
	case wizard.PageInstalling:
		switch {
		case m.installing:
			body = "Installing, please wait..."
		case m.installErr != nil:
			body = errorStyle.Render("Installation failed: " + m.installErr.Error())
		default:
			body = "Installing..."
		}
	case wizard.PageFinished:
		body = fmt.Sprintf("%s %s has been installed.\n\nPress Enter to close.",
			m.cfg.App.Name, m.cfg.App.Version)
	default:
		body = "Configure: " + strings.TrimPrefix(string(page), "custom:") + "\n\nPress Enter to continue."
	}

	title := titleStyle.Render(fmt.Sprintf("%s Setup", m.cfg.App.Name))
	steps := m.renderSteps()
	hint := hintStyle.Render("Enter → next    Esc → back    Ctrl+C → quit")

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		boxStyle.Render(body),
		steps,
		hint,
	)
}

// renderSteps shows the page order with the current page marked.
func (m *Model) renderSteps() string {
	var parts []string
	for _, page := range m.machine.Pages() {
		label := pageLabel(page)
		if page == m.machine.Current() {
			label = "[" + label + "]"
		}
		parts = append(parts, label)
	}
	return stepStyle.Render(strings.Join(parts, " > "))
}

func pageLabel(page wizard.Page) string {
	if name := strings.TrimPrefix(string(page), "custom:"); name != string(page) {
		return name
	}
	return string(page)
}

// Run walks the wizard to completion on the controlling terminal. It
// returns an error when the session is aborted or the install fails.
func Run(cfg *installer.Config, validate wizard.KeyValidator, install Installer) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return ErrNotATerminal
	}

	model, err := New(cfg, validate, install)
	if err != nil {
		return err
	}

	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return fmt.Errorf("run install wizard: %w", err)
	}

	result, ok := final.(*Model)
	if !ok {
		return nil
	}
	if result.installErr != nil {
		return result.installErr
	}
	if result.Aborted() {
		return errors.New("installation aborted")
	}
	return nil
}
