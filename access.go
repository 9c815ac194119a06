package keysafe

import (
	"fmt"
	"strings"
)

// Accessibility controls when the platform allows an entry to be read.
type Accessibility int

const (
	WhenUnlocked Accessibility = iota
	AfterFirstUnlock
	Always
)

func (a Accessibility) String() string {
	switch a {
	case WhenUnlocked:
		return "when-unlocked"
	case AfterFirstUnlock:
		return "after-first-unlock"
	case Always:
		return "always"
	}
	return fmt.Sprintf("accessibility(%d)", int(a))
}

// ParseAccessibility accepts the names returned by Accessibility.String.
func ParseAccessibility(s string) (Accessibility, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "when-unlocked", "":
		return WhenUnlocked, nil
	case "after-first-unlock":
		return AfterFirstUnlock, nil
	case "always":
		return Always, nil
	}
	return 0, fmt.Errorf("unknown accessibility %q", s)
}

// AccessPolicy is stored with every entry. PerDevice entries must not be
// migrated or synced to other devices.
type AccessPolicy struct {
	Accessibility Accessibility
	PerDevice     bool
}

// DefaultAccessPolicy: readable only while unlocked, never leaves the device.
var DefaultAccessPolicy = AccessPolicy{Accessibility: WhenUnlocked, PerDevice: true}

// String returns the tag persisted by backends, e.g. "when-unlocked-this-device-only".
func (p AccessPolicy) String() string {
	if p.PerDevice {
		return p.Accessibility.String() + "-this-device-only"
	}
	return p.Accessibility.String()
}

// ParseAccessPolicy is the inverse of AccessPolicy.String.
func ParseAccessPolicy(tag string) (AccessPolicy, error) {
	base, perDevice := strings.CutSuffix(strings.TrimSpace(tag), "-this-device-only")
	a, err := ParseAccessibility(base)
	if err != nil {
		return AccessPolicy{}, err
	}
	return AccessPolicy{Accessibility: a, PerDevice: perDevice}, nil
}
