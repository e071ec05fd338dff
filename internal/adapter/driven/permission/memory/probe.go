package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
)

// Answer is what the simulated user picks on a permission prompt.
type Answer int

const (
	Allow Answer = iota
	Deny
	DenyDontAskAgain
)

// Presets accepted by NewPresetProbe.
const (
	PresetAsk     = "ask"
	PresetGranted = "granted"
	PresetDenied  = "denied"
)

// Probe simulates the OS permission surface: authorization values, prompts that
// stop showing once the user opted out, a settings page and a capture picker.
type Probe struct {
	mu       sync.Mutex
	status   map[domain.Capability]domain.AuthorizationStatus
	canAsk   map[domain.Capability]bool
	answers  map[domain.Capability][]Answer
	fallback Answer

	settingsAvailable bool
	captureAllowed    bool

	prompts      map[domain.Capability]int
	settingsOpen map[domain.Capability]int
	captures     int
}

func NewProbe() *Probe {
	p := &Probe{
		status:            make(map[domain.Capability]domain.AuthorizationStatus),
		canAsk:            make(map[domain.Capability]bool),
		answers:           make(map[domain.Capability][]Answer),
		prompts:           make(map[domain.Capability]int),
		settingsOpen:      make(map[domain.Capability]int),
		fallback:          Allow,
		settingsAvailable: true,
		captureAllowed:    true,
	}
	for _, c := range domain.Capabilities {
		p.status[c] = domain.AuthorizationNotDetermined
		p.canAsk[c] = true
	}
	return p
}

func NewPresetProbe(preset string) (*Probe, error) {
	p := NewProbe()
	switch preset {
	case PresetAsk, "":
	case PresetGranted:
		for _, c := range domain.Capabilities {
			p.status[c] = domain.AuthorizationAuthorized
		}
	case PresetDenied:
		for _, c := range domain.Capabilities {
			p.status[c] = domain.AuthorizationDenied
			p.canAsk[c] = false
		}
		p.fallback = Deny
	default:
		return nil, fmt.Errorf("unknown permission preset %q", preset)
	}
	return p, nil
}

// Answer queues the user's replies to the next prompts for c.
func (p *Probe) Answer(c domain.Capability, answers ...Answer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.answers[c] = append(p.answers[c], answers...)
}

// SetStatus changes the OS value directly, the way the settings app does.
func (p *Probe) SetStatus(c domain.Capability, s domain.AuthorizationStatus) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.status[c] = s
	if s != domain.AuthorizationDenied {
		p.canAsk[c] = true
	}
}

func (p *Probe) SetSettingsAvailable(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.settingsAvailable = ok
}

func (p *Probe) SetCaptureAllowed(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captureAllowed = ok
}

func (p *Probe) Status(ctx context.Context, c domain.Capability) (domain.AuthorizationStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[c], nil
}

func (p *Probe) Request(ctx context.Context, c domain.Capability) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	switch p.status[c] {
	case domain.AuthorizationAuthorized:
		return true, nil
	case domain.AuthorizationRestricted:
		return false, nil
	case domain.AuthorizationDenied:
		if !p.canAsk[c] {
			return false, nil
		}
	}

	p.prompts[c]++
	answer := p.fallback
	if queued := p.answers[c]; len(queued) > 0 {
		answer = queued[0]
		p.answers[c] = queued[1:]
	}
	switch answer {
	case Allow:
		p.status[c] = domain.AuthorizationAuthorized
		return true, nil
	case DenyDontAskAgain:
		p.canAsk[c] = false
	}
	p.status[c] = domain.AuthorizationDenied
	return false, nil
}

func (p *Probe) ShouldShowRationale(ctx context.Context, c domain.Capability) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status[c] == domain.AuthorizationDenied && p.canAsk[c], nil
}

func (p *Probe) OpenSettings(ctx context.Context, c domain.Capability) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.settingsAvailable {
		return domain.ErrNoSettings
	}
	p.settingsOpen[c]++
	return nil
}

func (p *Probe) RequestCaptureGrant(ctx context.Context, preferredExtension string) (domain.CaptureToken, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.captures++
	if !p.captureAllowed {
		return "", domain.ErrCaptureRefused
	}
	return domain.NewCaptureToken(), nil
}

// Prompts reports how many OS prompts were shown for c.
func (p *Probe) Prompts(c domain.Capability) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.prompts[c]
}

func (p *Probe) SettingsOpened(c domain.Capability) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.settingsOpen[c]
}

func (p *Probe) CaptureRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.captures
}
