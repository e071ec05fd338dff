package service

import (
	"context"
	"fmt"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/looplab/fsm"
)

const (
	evJoin       = "join"
	evJoined     = "joined"
	evJoinFailed = "join_failed"
	evLeave      = "leave"
)

func newLifecycleFSM(onChange func(from, to domain.LifecycleState)) *fsm.FSM {
	initialized := string(domain.StateInitialized)
	joining := string(domain.StateJoining)
	active := string(domain.StateActive)

	return fsm.NewFSM(
		initialized,
		fsm.Events{
			{Name: evJoin, Src: []string{initialized}, Dst: joining},
			{Name: evJoined, Src: []string{joining}, Dst: active},
			{Name: evJoinFailed, Src: []string{joining}, Dst: initialized},
			{Name: evLeave, Src: []string{joining, active}, Dst: string(domain.StateEnded)},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				onChange(domain.LifecycleState(e.Src), domain.LifecycleState(e.Dst))
			},
		},
	)
}

// sessionStore is the single call slot. It is only touched from the executor.
type sessionStore struct {
	session  *domain.CallSession
	machine  *fsm.FSM
	onChange func(from, to domain.LifecycleState)
}

func newSessionStore(onChange func(from, to domain.LifecycleState)) *sessionStore {
	return &sessionStore{onChange: onChange}
}

func (s *sessionStore) Current() *domain.CallSession {
	return s.session
}

// Replace installs a fresh Initialized session and returns the one it displaced.
func (s *sessionStore) Replace(next *domain.CallSession) *domain.CallSession {
	prev := s.session
	next.State = domain.StateInitialized
	s.session = next
	s.machine = newLifecycleFSM(s.onChange)
	return prev
}

func (s *sessionStore) State() domain.LifecycleState {
	if s.session == nil {
		return ""
	}
	return s.session.State
}

func (s *sessionStore) Fire(event string) error {
	if s.session == nil {
		return fmt.Errorf("%s: no session", event)
	}
	if err := s.machine.Event(context.Background(), event); err != nil {
		return fmt.Errorf("%s from %s: %w", event, s.session.State, err)
	}
	s.session.State = domain.LifecycleState(s.machine.Current())
	return nil
}

func (s *sessionStore) Live() bool {
	return s.session != nil && s.session.State.Live()
}

func (s *sessionStore) Active() bool {
	return s.session != nil && s.session.State == domain.StateActive
}
