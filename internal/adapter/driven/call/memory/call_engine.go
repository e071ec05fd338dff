package memory

import (
	"context"
	"errors"
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Operation names accepted by FailNext and recorded by Calls.
const (
	OpJoin       = "join"
	OpLeave      = "leave"
	OpCamera     = "camera"
	OpMicrophone = "microphone"
	OpStartShare = "start_share"
	OpStopShare  = "stop_share"
)

var ErrNotInCall = errors.New("engine is not in a call")

// PendingJoin is a join held open in manual mode until Resolve is called.
type PendingJoin struct {
	Creds  domain.Credentials
	result chan error
}

func (p *PendingJoin) Resolve(err error) {
	select {
	case p.result <- err:
	default:
	}
}

// Engine is an in-process video engine. It keeps the switches the bridge flips
// so tests and the demo server can observe them.
type Engine struct {
	mu          sync.Mutex
	manual      bool
	joins       chan *PendingJoin
	failures    map[string]error
	onTerminate func(callID string, attempt uint64, reason error)

	callID     string
	attempt    uint64
	inCall     bool
	camera     bool
	microphone bool
	sharing    bool
	token      domain.CaptureToken
	calls      []string
}

func NewEngine() *Engine {
	return &Engine{
		joins:    make(chan *PendingJoin, 16),
		failures: make(map[string]error),
	}
}

// NewManualEngine returns an engine whose joins block until resolved through Joins.
func NewManualEngine() *Engine {
	e := NewEngine()
	e.manual = true
	return e
}

func (e *Engine) Joins() <-chan *PendingJoin {
	return e.joins
}

// FailNext makes the next call of op return err.
func (e *Engine) FailNext(op string, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.failures[op] = err
}

func (e *Engine) record(op string) error {
	e.calls = append(e.calls, op)
	if err, ok := e.failures[op]; ok {
		delete(e.failures, op)
		return err
	}
	return nil
}

func (e *Engine) Join(ctx context.Context, creds domain.Credentials) error {
	e.mu.Lock()
	err := e.record(OpJoin)
	manual := e.manual
	e.mu.Unlock()
	if err != nil {
		return err
	}

	if manual {
		p := &PendingJoin{Creds: creds, result: make(chan error, 1)}
		select {
		case e.joins <- p:
		case <-ctx.Done():
			return ctx.Err()
		}
		select {
		case err := <-p.result:
			if err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	e.mu.Lock()
	if err := ctx.Err(); err != nil {
		e.mu.Unlock()
		return err
	}
	e.callID = creds.CallID
	e.attempt = creds.Attempt
	e.inCall = true
	e.mu.Unlock()
	log.Debug().Str("call_id", creds.CallID).Str("user_id", creds.User.ID).Msg("Engine joined call")
	return nil
}

func (e *Engine) Leave(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(OpLeave); err != nil {
		return err
	}
	e.inCall = false
	e.camera = false
	e.microphone = false
	e.sharing = false
	e.token = ""
	return nil
}

func (e *Engine) SetCameraEnabled(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(OpCamera); err != nil {
		return err
	}
	e.camera = enabled
	return nil
}

func (e *Engine) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(OpMicrophone); err != nil {
		return err
	}
	e.microphone = enabled
	return nil
}

func (e *Engine) StartScreenShare(ctx context.Context, token domain.CaptureToken) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(OpStartShare); err != nil {
		return err
	}
	if !e.inCall {
		return ErrNotInCall
	}
	e.sharing = true
	e.token = token
	return nil
}

func (e *Engine) StopScreenShare(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.record(OpStopShare); err != nil {
		return err
	}
	e.sharing = false
	e.token = ""
	return nil
}

func (e *Engine) SetTerminationCallback(cb func(callID string, attempt uint64, reason error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTerminate = cb
}

// Terminate simulates the remote side ending the current call.
func (e *Engine) Terminate(reason error) {
	e.TerminateCall(e.CallID(), reason)
}

// TerminateCall reports callID as ended. When it is the current call the current attempt is reported.
func (e *Engine) TerminateCall(callID string, reason error) {
	e.mu.Lock()
	attempt := uint64(0)
	if e.callID == callID {
		attempt = e.attempt
	}
	e.mu.Unlock()
	e.TerminateAttempt(callID, attempt, reason)
}

// TerminateAttempt reports one particular join of callID as ended, whether or not it is the current one.
func (e *Engine) TerminateAttempt(callID string, attempt uint64, reason error) {
	e.mu.Lock()
	cb := e.onTerminate
	if e.callID == callID && e.attempt == attempt {
		e.inCall = false
		e.sharing = false
	}
	e.mu.Unlock()
	if cb != nil {
		cb(callID, attempt, reason)
	}
}

func (e *Engine) CallID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.callID
}

// Attempt returns the Credentials.Attempt of the last successful join.
func (e *Engine) Attempt() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.attempt
}

func (e *Engine) InCall() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.inCall
}

func (e *Engine) CameraEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.camera
}

func (e *Engine) MicrophoneEnabled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.microphone
}

func (e *Engine) Sharing() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sharing
}

func (e *Engine) ShareToken() domain.CaptureToken {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.token
}

// Calls returns every operation invoked so far, in order.
func (e *Engine) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.calls))
	copy(out, e.calls)
	return out
}

// Count returns how many times op was invoked.
func (e *Engine) Count(op string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, c := range e.calls {
		if c == op {
			n++
		}
	}
	return n
}
