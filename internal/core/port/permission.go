package port

import (
	"context"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// PermissionProbe is the OS authorization surface.
type PermissionProbe interface {
	// Status reads the raw authorization value without prompting.
	Status(ctx context.Context, c domain.Capability) (domain.AuthorizationStatus, error)
	// Request shows the OS prompt and blocks until the user answers.
	Request(ctx context.Context, c domain.Capability) (granted bool, err error)
	// ShouldShowRationale is false once the platform will no longer prompt.
	ShouldShowRationale(ctx context.Context, c domain.Capability) (bool, error)
	// OpenSettings sends the user to the app's settings page. Returns domain.ErrNoSettings when impossible.
	OpenSettings(ctx context.Context, c domain.Capability) error
	// RequestCaptureGrant asks for a one-shot screen capture grant.
	// A refusal is reported as domain.ErrCaptureRefused.
	RequestCaptureGrant(ctx context.Context, preferredExtension string) (domain.CaptureToken, error)
}
