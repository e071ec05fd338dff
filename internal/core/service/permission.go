package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/port"
	"github.com/looplab/fsm"
	"github.com/rs/zerolog"
)

const (
	permEvGrant           = "grant"
	permEvDeny            = "deny"
	permEvDenyPermanently = "deny_permanently"
	permEvForget          = "forget"
)

func newPermissionFSM(onChange func(from, to domain.PermissionState)) *fsm.FSM {
	unknown := string(domain.PermissionUnknown)
	granted := string(domain.PermissionGranted)
	denied := string(domain.PermissionDenied)
	permanent := string(domain.PermissionPermanentlyDenied)

	return fsm.NewFSM(
		unknown,
		fsm.Events{
			{Name: permEvGrant, Src: []string{unknown, denied, permanent}, Dst: granted},
			{Name: permEvDeny, Src: []string{unknown, granted}, Dst: denied},
			{Name: permEvDenyPermanently, Src: []string{unknown, granted, denied}, Dst: permanent},
			{Name: permEvForget, Src: []string{granted, denied, permanent}, Dst: unknown},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				onChange(domain.PermissionState(e.Src), domain.PermissionState(e.Dst))
			},
		},
	)
}

var permissionEvents = map[domain.PermissionState]string{
	domain.PermissionGranted:           permEvGrant,
	domain.PermissionDenied:            permEvDeny,
	domain.PermissionPermanentlyDenied: permEvDenyPermanently,
	domain.PermissionUnknown:           permEvForget,
}

// PermissionChange is one applied transition.
type PermissionChange struct {
	Capability domain.Capability
	From       domain.PermissionState
	To         domain.PermissionState
}

type promptResult struct {
	granted   bool
	rationale bool
}

// osReading is a raw status read taken off the executor.
type osReading map[domain.Capability]domain.AuthorizationStatus

// PermissionCoordinator owns the per-capability permission state.
// Probe calls that block (prompts, status reads) are made by the bridge off the executor;
// the methods that mutate state must run on it.
type PermissionCoordinator struct {
	probe         port.PermissionProbe
	machines      map[domain.Capability]*fsm.FSM
	settingsShown map[domain.Capability]bool
	notify        func(domain.Notice)
	metrics       port.Metrics
	log           zerolog.Logger
}

func NewPermissionCoordinator(probe port.PermissionProbe, notify func(domain.Notice), metrics port.Metrics, l zerolog.Logger) *PermissionCoordinator {
	p := &PermissionCoordinator{
		probe:         probe,
		machines:      make(map[domain.Capability]*fsm.FSM),
		settingsShown: make(map[domain.Capability]bool),
		notify:        notify,
		metrics:       metrics,
		log:           l,
	}
	for _, c := range domain.Capabilities {
		p.machines[c] = newPermissionFSM(func(from, to domain.PermissionState) {
			p.metrics.PermissionTransition(c, from, to)
			p.log.Info().Str("capability", string(c)).Str("from", from.String()).Str("to", to.String()).Msg("Permission changed")
		})
	}
	return p
}

func (p *PermissionCoordinator) State(c domain.Capability) domain.PermissionState {
	m, ok := p.machines[c]
	if !ok {
		return domain.PermissionUnknown
	}
	return domain.PermissionState(m.Current())
}

func (p *PermissionCoordinator) States() map[domain.Capability]domain.PermissionState {
	out := make(map[domain.Capability]domain.PermissionState, len(p.machines))
	for c := range p.machines {
		out[c] = p.State(c)
	}
	return out
}

// SettingsShown reports whether the user was already sent to settings for c.
func (p *PermissionCoordinator) SettingsShown(c domain.Capability) bool {
	return p.settingsShown[c]
}

// Decide routes an enable request for c.
func (p *PermissionCoordinator) Decide(c domain.Capability) domain.Redirect {
	switch p.State(c) {
	case domain.PermissionGranted:
		return domain.RedirectNone
	case domain.PermissionPermanentlyDenied:
		return domain.RedirectSettings
	default:
		return domain.RedirectPrompt
	}
}

func (p *PermissionCoordinator) transition(c domain.Capability, to domain.PermissionState) (PermissionChange, bool) {
	m, ok := p.machines[c]
	if !ok {
		return PermissionChange{}, false
	}
	from := domain.PermissionState(m.Current())
	event := permissionEvents[to]
	if from == to || !m.Can(event) {
		return PermissionChange{}, false
	}
	if err := m.Event(context.Background(), event); err != nil {
		p.log.Error().Err(err).Str("capability", string(c)).Msg("Permission transition rejected")
		return PermissionChange{}, false
	}
	if to == domain.PermissionGranted {
		p.settingsShown[c] = false
	}
	return PermissionChange{Capability: c, From: from, To: to}, true
}

// Prompt shows the OS prompt and, on refusal, asks whether the platform would prompt again.
// Safe to call off the executor.
func (p *PermissionCoordinator) Prompt(ctx context.Context, c domain.Capability) (promptResult, error) {
	granted, err := p.probe.Request(ctx, c)
	if err != nil {
		return promptResult{}, fmt.Errorf("request %s permission: %w", c, err)
	}
	if granted {
		return promptResult{granted: true}, nil
	}
	rationale, err := p.probe.ShouldShowRationale(ctx, c)
	if err != nil {
		return promptResult{}, fmt.Errorf("%s rationale check: %w", c, err)
	}
	return promptResult{rationale: rationale}, nil
}

// ApplyPrompt records a prompt answer. A refusal the platform will not ask about again is permanent.
func (p *PermissionCoordinator) ApplyPrompt(c domain.Capability, res promptResult) []PermissionChange {
	var changes []PermissionChange
	if res.granted {
		if ch, ok := p.transition(c, domain.PermissionGranted); ok {
			changes = append(changes, ch)
		}
		return changes
	}

	if ch, ok := p.transition(c, domain.PermissionDenied); ok {
		changes = append(changes, ch)
	}
	if !res.rationale {
		if ch, ok := p.transition(c, domain.PermissionPermanentlyDenied); ok {
			changes = append(changes, ch)
		}
		p.notify(domain.Notice{
			Kind:       domain.NoticePermissionPermanentlyDenied,
			Capability: c,
			Message:    fmt.Sprintf("%s permission denied. Please enable in settings.", capabilityLabel(c)),
		})
		return changes
	}
	p.notify(domain.Notice{
		Kind:       domain.NoticePermissionDenied,
		Capability: c,
		Message:    fmt.Sprintf("%s permission denied.", capabilityLabel(c)),
	})
	return changes
}

// OpenSettings routes the user to the OS settings surface for c.
func (p *PermissionCoordinator) OpenSettings(ctx context.Context, c domain.Capability) error {
	if err := p.probe.OpenSettings(ctx, c); err != nil {
		if errors.Is(err, domain.ErrNoSettings) {
			return &domain.PermissionError{Capability: c, Err: err}
		}
		return fmt.Errorf("open %s settings: %w", c, err)
	}
	p.settingsShown[c] = true
	p.notify(domain.Notice{
		Kind:       domain.NoticeSettingsOpened,
		Capability: c,
		Message:    "Please enable permissions in Settings to use this feature",
	})
	return nil
}

// Read takes a raw status reading for every capability. Safe to call off the executor.
func (p *PermissionCoordinator) Read(ctx context.Context) (osReading, error) {
	reading := make(osReading, len(domain.Capabilities))
	for _, c := range domain.Capabilities {
		status, err := p.probe.Status(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("read %s status: %w", c, err)
		}
		reading[c] = status
	}
	return reading, nil
}

// ApplyReading reconciles state with a raw OS reading. This is the only path that clears
// PermanentlyDenied. A raw denial never classifies permanence on its own: that needs a prompt answer.
func (p *PermissionCoordinator) ApplyReading(reading osReading) []PermissionChange {
	var changes []PermissionChange
	for _, c := range domain.Capabilities {
		status, ok := reading[c]
		if !ok {
			continue
		}
		var target domain.PermissionState
		switch status {
		case domain.AuthorizationAuthorized:
			target = domain.PermissionGranted
		case domain.AuthorizationRestricted:
			target = domain.PermissionPermanentlyDenied
		case domain.AuthorizationNotDetermined:
			target = domain.PermissionUnknown
		case domain.AuthorizationDenied:
			if p.State(c) == domain.PermissionPermanentlyDenied {
				continue
			}
			target = domain.PermissionDenied
		default:
			continue
		}
		if ch, ok := p.transition(c, target); ok {
			changes = append(changes, ch)
		}
	}
	return changes
}

func capabilityLabel(c domain.Capability) string {
	switch c {
	case domain.CapabilityCamera:
		return "Camera"
	case domain.CapabilityMicrophone:
		return "Microphone"
	default:
		return string(c)
	}
}
