package port

import (
	"context"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// Engine is the platform video SDK: transport, capture and rendering live behind it.
// Join and StartScreenShare may block; the rest are expected to return quickly.
// Join must give up without taking over the call once ctx is done.
type Engine interface {
	Join(ctx context.Context, creds domain.Credentials) error
	Leave(ctx context.Context) error
	SetCameraEnabled(ctx context.Context, enabled bool) error
	SetMicrophoneEnabled(ctx context.Context, enabled bool) error
	StartScreenShare(ctx context.Context, token domain.CaptureToken) error
	StopScreenShare(ctx context.Context) error
	// SetTerminationCallback registers the hook invoked when the engine ends a call on its own.
	// attempt is the Credentials.Attempt the call was joined with.
	SetTerminationCallback(cb func(callID string, attempt uint64, reason error))
}
