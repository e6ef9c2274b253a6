package wizard

import (
	"errors"
	"fmt"
	"strings"
)

// KeyValidator is the license trust policy. Implementations must be pure:
// identical keys always yield identical accept/reject decisions.
type KeyValidator func(key string) error

// License keys are four dash-separated groups of four characters, e.g.
// FULL-7A2B-9C1D-MJSW.
const (
	keyGroups    = 4
	keyGroupSize = 4
	keySeparator = "-"
)

// FormatValidator accepts keys matching the product's key format. It
// checks shape only; it makes no trust decision beyond that and is the
// shipped placeholder until a real policy is injected.
func FormatValidator(key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("a license key is required")
	}

	parts := strings.Split(key, keySeparator)
	if len(parts) != keyGroups {
		return fmt.Errorf("license key must have %d groups separated by %q", keyGroups, keySeparator)
	}
	for _, part := range parts {
		if len(part) != keyGroupSize {
			return fmt.Errorf("each license key group must be %d characters", keyGroupSize)
		}
		for _, r := range part {
			if !isKeyRune(r) {
				return fmt.Errorf("license key contains invalid character %q", r)
			}
		}
	}
	return nil
}

// KeyringValidator accepts only keys present in the known set. Comparison
// is case-insensitive on the normalized key.
func KeyringValidator(known []string) KeyValidator {
	keyring := make(map[string]struct{}, len(known))
	for _, key := range known {
		keyring[normalizeKey(key)] = struct{}{}
	}

	return func(key string) error {
		if err := FormatValidator(key); err != nil {
			return err
		}
		if _, ok := keyring[normalizeKey(key)]; !ok {
			return errors.New("license key is not recognized")
		}
		return nil
	}
}

func normalizeKey(key string) string {
	return strings.ToUpper(strings.TrimSpace(key))
}

func isKeyRune(r rune) bool {
	switch {
	case r >= 'A' && r <= 'Z':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= '0' && r <= '9':
		return true
	}
	return false
}
