package service

import (
	"context"
	"fmt"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/port"
)

// MediaControl mirrors the engine's camera, microphone and screen share switches.
// It refuses to enable a capability whose permission is not granted.
type MediaControl struct {
	engine     port.Engine
	permission func(domain.Capability) domain.PermissionState

	toggles      domain.MediaToggles
	sharePending bool
}

func NewMediaControl(engine port.Engine, permission func(domain.Capability) domain.PermissionState) *MediaControl {
	return &MediaControl{
		engine:     engine,
		permission: permission,
	}
}

func (m *MediaControl) Toggles() domain.MediaToggles {
	return m.toggles
}

func (m *MediaControl) Enabled(c domain.Capability) bool {
	switch c {
	case domain.CapabilityCamera:
		return m.toggles.Camera
	case domain.CapabilityMicrophone:
		return m.toggles.Microphone
	}
	return false
}

func (m *MediaControl) Set(ctx context.Context, c domain.Capability, enabled bool) error {
	if enabled && m.permission(c) != domain.PermissionGranted {
		return &domain.PermissionError{Capability: c}
	}

	var err error
	switch c {
	case domain.CapabilityCamera:
		err = m.engine.SetCameraEnabled(ctx, enabled)
	case domain.CapabilityMicrophone:
		err = m.engine.SetMicrophoneEnabled(ctx, enabled)
	default:
		return fmt.Errorf("unknown capability %q", c)
	}
	if err != nil {
		return &domain.EngineError{Op: fmt.Sprintf("set %s enabled", c), Err: err}
	}

	switch c {
	case domain.CapabilityCamera:
		m.toggles.Camera = enabled
	case domain.CapabilityMicrophone:
		m.toggles.Microphone = enabled
	}
	return nil
}

// Revoke switches c off after its permission was withdrawn. The mirror is cleared even
// when the engine fails: an ungranted capability never reads as enabled.
func (m *MediaControl) Revoke(ctx context.Context, c domain.Capability) error {
	if !m.Enabled(c) {
		return nil
	}
	err := m.Set(ctx, c, false)
	switch c {
	case domain.CapabilityCamera:
		m.toggles.Camera = false
	case domain.CapabilityMicrophone:
		m.toggles.Microphone = false
	}
	return err
}

// beginShare reserves the screen share slot. It returns false when sharing is already on or pending.
func (m *MediaControl) beginShare() bool {
	if m.toggles.ScreenShare || m.sharePending {
		return false
	}
	m.sharePending = true
	return true
}

func (m *MediaControl) finishShare(started bool) {
	m.sharePending = false
	m.toggles.ScreenShare = started
}

func (m *MediaControl) StopScreenShare(ctx context.Context) error {
	if !m.toggles.ScreenShare {
		return nil
	}
	if err := m.engine.StopScreenShare(ctx); err != nil {
		return &domain.EngineError{Op: "stop screen share", Err: err}
	}
	m.toggles.ScreenShare = false
	return nil
}

// Reset forgets every switch without touching the engine; used once the call is gone.
func (m *MediaControl) Reset() {
	m.toggles = domain.MediaToggles{}
	m.sharePending = false
}
