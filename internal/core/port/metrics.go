package port

import "github.com/Wyydra/callbridge/internal/core/domain"

type Metrics interface {
	SessionTransition(from, to domain.LifecycleState)
	PermissionTransition(c domain.Capability, from, to domain.PermissionState)
	EventEmitted(kind domain.EventKind)
	StaleResultDiscarded(source string)
	CommandFailed(command string, code domain.Code)
}

type NopMetrics struct{}

func (NopMetrics) SessionTransition(domain.LifecycleState, domain.LifecycleState) {}

func (NopMetrics) PermissionTransition(domain.Capability, domain.PermissionState, domain.PermissionState) {
}

func (NopMetrics) EventEmitted(domain.EventKind) {}

func (NopMetrics) StaleResultDiscarded(string) {}

func (NopMetrics) CommandFailed(string, domain.Code) {}
