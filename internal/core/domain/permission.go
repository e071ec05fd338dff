package domain

import "fmt"

type Capability string

const (
	CapabilityCamera     Capability = "camera"
	CapabilityMicrophone Capability = "microphone"
)

// Capabilities lists the permission-guarded capabilities in a stable order.
var Capabilities = []Capability{CapabilityCamera, CapabilityMicrophone}

func ParseCapability(s string) (Capability, error) {
	switch Capability(s) {
	case CapabilityCamera, CapabilityMicrophone:
		return Capability(s), nil
	}
	return "", fmt.Errorf("unknown capability %q", s)
}

type PermissionState string

const (
	PermissionUnknown           PermissionState = "unknown"
	PermissionGranted           PermissionState = "granted"
	PermissionDenied            PermissionState = "denied"
	PermissionPermanentlyDenied PermissionState = "permanently_denied"
)

func (s PermissionState) String() string {
	return string(s)
}

// AuthorizationStatus is the raw value reported by the OS.
type AuthorizationStatus int

const (
	AuthorizationNotDetermined AuthorizationStatus = iota
	AuthorizationAuthorized
	AuthorizationDenied
	AuthorizationRestricted
)

func (s AuthorizationStatus) String() string {
	switch s {
	case AuthorizationNotDetermined:
		return "not_determined"
	case AuthorizationAuthorized:
		return "authorized"
	case AuthorizationDenied:
		return "denied"
	case AuthorizationRestricted:
		return "restricted"
	default:
		return "unknown"
	}
}

// Redirect tells the caller where an enable request was routed when it could not proceed directly.
type Redirect string

const (
	RedirectNone     Redirect = "none"
	RedirectPrompt   Redirect = "prompt"
	RedirectSettings Redirect = "settings"
)

type ToggleResult struct {
	Enabled    bool
	Redirect   Redirect
	Permission PermissionState
}

type MediaToggles struct {
	Camera      bool
	Microphone  bool
	ScreenShare bool
}

// Snapshot is a read-only view of a bridge.
type Snapshot struct {
	Session     *CallSession
	Permissions map[Capability]PermissionState
	Toggles     MediaToggles
	Generation  uint64
}
