// Package wizard implements the installer's sequential page flow as a
// plain state machine. Pages and the license gate are declared by the
// installer configuration; the key validation predicate is an injected
// capability, not a fixed rule.
package wizard

import (
	"errors"
	"fmt"
)

// Page identifies one wizard screen.
type Page string

const (
	PageWelcome    Page = "welcome"
	PageLicense    Page = "license"
	PageLicenseKey Page = "license-key"
	PageReady      Page = "ready"
	PageInstalling Page = "installing"
	PageFinished   Page = "finished"
)

// CustomPage builds the Page value for a config-declared extra page.
func CustomPage(name string) Page {
	return Page("custom:" + name)
}

// ErrKeyRejected wraps validator rejections so callers can distinguish
// them from flow misuse.
var ErrKeyRejected = errors.New("license key rejected")

// Flow declares the page sequence for one installation attempt.
type Flow struct {
	// CustomPages are inserted between the license gate and the ready
	// page, in order.
	CustomPages []string
	// RequireKey inserts the license key gate immediately after the
	// license page.
	RequireKey bool
	// Validate is the injected trust policy. Required when RequireKey is
	// set. It must be a pure function of the key.
	Validate KeyValidator
}

// Machine walks the wizard page flow. Advancing past the license key gate
// requires a key the validator accepts; rejection keeps the machine on the
// gate with a user-visible message and no retry limit. The entered key is
// handed to the validator and never retained.
type Machine struct {
	pages    []Page
	index    int
	validate KeyValidator
	message  string
}

// NewMachine builds a machine for the declared flow.
func NewMachine(flow Flow) (*Machine, error) {
	if flow.RequireKey && flow.Validate == nil {
		return nil, errors.New("wizard: license gate requires a key validator")
	}

	pages := []Page{PageWelcome, PageLicense}
	if flow.RequireKey {
		pages = append(pages, PageLicenseKey)
	}
	for _, name := range flow.CustomPages {
		pages = append(pages, CustomPage(name))
	}
	pages = append(pages, PageReady, PageInstalling, PageFinished)

	return &Machine{pages: pages, validate: flow.Validate}, nil
}

// Current returns the page the machine is on.
func (m *Machine) Current() Page {
	return m.pages[m.index]
}

// Pages returns the full declared page order.
func (m *Machine) Pages() []Page {
	return append([]Page(nil), m.pages...)
}

// Message returns the user-visible message from the last rejected advance,
// empty when the last advance succeeded.
func (m *Machine) Message() string {
	return m.message
}

// Done reports whether the flow has reached its final page.
func (m *Machine) Done() bool {
	return m.Current() == PageFinished
}

// Advance moves to the next page. On the license key gate, input is the
// entered key: the machine advances only when the validator accepts it,
// and otherwise stays put, records the rejection message, and returns
// ErrKeyRejected. Rejection never mutates any other installer state.
func (m *Machine) Advance(input string) error {
	if m.Done() {
		return errors.New("wizard: already finished")
	}

	if m.Current() == PageLicenseKey {
		if err := m.validate(input); err != nil {
			m.message = err.Error()
			return fmt.Errorf("%w: %s", ErrKeyRejected, err.Error())
		}
	}

	m.message = ""
	m.index++
	return nil
}

// Back returns to the previous page. Installation cannot be rewound once
// it has started.
func (m *Machine) Back() error {
	if m.index == 0 {
		return errors.New("wizard: already on the first page")
	}
	if page := m.Current(); page == PageInstalling || page == PageFinished {
		return fmt.Errorf("wizard: cannot go back from %s", page)
	}
	m.message = ""
	m.index--
	return nil
}

// InstanceProbe reports whether the named application instance currently
// holds its mutual-exclusion handle.
type InstanceProbe func(name string) (bool, error)

// ErrAppRunning is returned when an uninstall is attempted while the
// application is still running.
var ErrAppRunning = errors.New("the application is running; close it before uninstalling")

// GuardUninstall refuses the uninstall transition while the application
// holds its instance handle. This is a guard, not a retry.
func GuardUninstall(probe InstanceProbe, name string) error {
	if probe == nil || name == "" {
		return nil
	}
	held, err := probe(name)
	if err != nil {
		return fmt.Errorf("probe application instance %s: %w", name, err)
	}
	if held {
		return ErrAppRunning
	}
	return nil
}
