package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/port"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Bridge is one app shell's call plugin: a single call slot plus the permission and media
// state that goes with it. Every mutation runs on the bridge's executor.
type Bridge struct {
	engine   port.Engine
	exec     *Executor
	emitter  *Emitter
	store    *sessionStore
	perms    *PermissionCoordinator
	media    *MediaControl
	registry *Registry
	metrics  port.Metrics
	log      zerolog.Logger

	gateway          port.NoticeGateway
	promptOnJoin     bool
	autoEnableCamera bool

	// generation and joinCancel are owned by the executor.
	generation uint64
	joinCancel context.CancelFunc

	lifetime  context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once
}

type Option func(*Bridge)

func WithLogger(l zerolog.Logger) Option {
	return func(b *Bridge) { b.log = l }
}

func WithMetrics(m port.Metrics) Option {
	return func(b *Bridge) { b.metrics = m }
}

func WithRegistry(r *Registry) Option {
	return func(b *Bridge) { b.registry = r }
}

// WithNoticeGateway sends every notice to g.
func WithNoticeGateway(g port.NoticeGateway) Option {
	return func(b *Bridge) { b.gateway = g }
}

// WithPromptOnJoin asks for still-undetermined permissions before the engine join.
func WithPromptOnJoin(enabled bool) Option {
	return func(b *Bridge) { b.promptOnJoin = enabled }
}

// WithCameraAutoEnable turns the camera on when its permission comes back granted on resume,
// like the microphone always does.
func WithCameraAutoEnable(enabled bool) Option {
	return func(b *Bridge) { b.autoEnableCamera = enabled }
}

func NewBridge(engine port.Engine, probe port.PermissionProbe, opts ...Option) *Bridge {
	b := &Bridge{
		engine:       engine,
		metrics:      port.NopMetrics{},
		log:          log.Logger,
		promptOnJoin: true,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.log = b.log.With().Str("component", "bridge").Logger()
	b.lifetime, b.cancel = context.WithCancel(context.Background())

	b.exec = NewExecutor(b.log)
	b.emitter = NewEmitter(b.metrics, b.log)
	b.store = newSessionStore(func(from, to domain.LifecycleState) {
		b.metrics.SessionTransition(from, to)
		b.log.Info().Str("from", from.String()).Str("to", to.String()).Msg("Session state changed")
	})
	b.perms = NewPermissionCoordinator(probe, b.emitter.Notify, b.metrics, b.log)
	b.media = NewMediaControl(engine, b.perms.State)

	if b.gateway != nil {
		b.emitter.SetNoticeHandler(b.gateway.BroadcastNotice)
	}
	engine.SetTerminationCallback(b.onEngineTerminated)

	go b.exec.Run()
	go b.emitter.Run()
	return b
}

func (b *Bridge) fail(command string, err error) error {
	if err == nil {
		return nil
	}
	code := domain.CodeOf(err)
	b.metrics.CommandFailed(command, code)
	b.log.Warn().Err(err).Str("command", command).Str("code", string(code)).Msg("Command failed")
	return err
}

// InitializeVideoCall stores credentials in a fresh session and returns its handle.
// A live call in the slot is ended first.
func (b *Bridge) InitializeVideoCall(ctx context.Context, req domain.InitRequest) (domain.SessionHandle, error) {
	if err := req.Validate(); err != nil {
		return "", b.fail("initializeVideoCall", err)
	}

	var (
		handle domain.SessionHandle
		endErr error
	)
	err := b.exec.Do(ctx, func() {
		endErr = b.end(ctx, "reinitialize", true)

		next := domain.NewCallSession(req)
		prev := b.store.Replace(next)
		next.Generation = b.generation
		handle = next.Handle
		b.media.Reset()

		var stale domain.SessionHandle
		if prev != nil {
			stale = prev.Handle
		}
		if b.registry != nil {
			b.registry.swap(stale, handle, b)
		}
		b.log.Info().Str("handle", handle.String()).Str("user_id", req.User.ID).Msg("Video call initialized")
	})
	if err != nil {
		return "", b.fail("initializeVideoCall", err)
	}
	if endErr != nil {
		b.log.Warn().Err(endErr).Msg("Previous call did not leave cleanly")
	}
	return handle, nil
}

// JoinCall starts joining callID and blocks until the outcome for this attempt is known.
// If ctx ends first the caller gets ctx.Err() while the join keeps running.
func (b *Bridge) JoinCall(ctx context.Context, callID string) error {
	var (
		gen     uint64
		creds   domain.Credentials
		joinCtx context.Context
		cancel  context.CancelFunc
		joinErr error
	)
	err := b.exec.Do(ctx, func() {
		s := b.store.Current()
		switch {
		case s == nil || s.State == domain.StateEnded:
			joinErr = &domain.NotInitializedError{Op: "joinCall"}
		case callID == "":
			joinErr = &domain.ValidationError{Field: "callId"}
		case s.State.Live():
			joinErr = domain.ErrCallInProgress
		default:
			b.generation++
			s.CallID = callID
			s.Generation = b.generation
			if joinErr = b.store.Fire(evJoin); joinErr != nil {
				return
			}
			gen = b.generation
			creds = s.Credentials()
			joinCtx, cancel = context.WithCancel(b.lifetime)
			b.joinCancel = cancel
		}
	})
	if err != nil {
		return b.fail("joinCall", err)
	}
	if joinErr != nil {
		return b.fail("joinCall", joinErr)
	}

	b.log.Info().Str("call_id", callID).Uint64("generation", gen).Msg("Joining call")

	result := make(chan error, 1)
	go b.runJoin(joinCtx, cancel, gen, creds, result)

	select {
	case err := <-result:
		return b.fail("joinCall", err)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runJoin drives one join attempt. ctx is cancelled as soon as the attempt goes stale.
func (b *Bridge) runJoin(ctx context.Context, cancel context.CancelFunc, gen uint64, creds domain.Credentials, result chan<- error) {
	defer cancel()
	b.prepareMedia(ctx, gen)

	joinErr := error(domain.ErrJoinAborted)
	var current bool
	if err := b.exec.Do(ctx, func() { current = gen == b.generation }); err == nil && current {
		joinErr = b.engine.Join(ctx, creds)
	}

	var out error
	if err := b.exec.Do(context.Background(), func() {
		out = b.applyJoin(b.lifetime, gen, creds, joinErr)
	}); err != nil {
		out = err
	}
	result <- out
}

// prepareMedia refreshes permission state from the OS and, when enabled, prompts for
// capabilities that were never decided. The join goes ahead whatever the answers are.
func (b *Bridge) prepareMedia(ctx context.Context, gen uint64) {
	reading, err := b.perms.Read(ctx)
	if err != nil {
		b.log.Warn().Err(err).Msg("Permission status read failed before join")
	} else {
		_ = b.exec.Do(ctx, func() { b.perms.ApplyReading(reading) })
	}
	if !b.promptOnJoin {
		return
	}

	for _, c := range domain.Capabilities {
		var ask bool
		if err := b.exec.Do(ctx, func() {
			ask = gen == b.generation && b.perms.State(c) == domain.PermissionUnknown
		}); err != nil || !ask {
			continue
		}
		res, err := b.perms.Prompt(ctx, c)
		if err != nil {
			b.log.Warn().Err(err).Str("capability", string(c)).Msg("Permission prompt failed before join")
			continue
		}
		_ = b.exec.Do(ctx, func() { b.perms.ApplyPrompt(c, res) })
	}
}

func (b *Bridge) applyJoin(ctx context.Context, gen uint64, creds domain.Credentials, joinErr error) error {
	s := b.store.Current()
	if gen != b.generation || s == nil || s.State != domain.StateJoining {
		b.metrics.StaleResultDiscarded("join")
		b.log.Info().Str("call_id", creds.CallID).Uint64("generation", gen).Uint64("current", b.generation).Msg("Discarding stale join result")
		if joinErr == nil && !b.store.Live() {
			if err := b.engine.Leave(ctx); err != nil {
				b.log.Warn().Err(err).Msg("Leaving orphaned engine call failed")
			}
		}
		return domain.ErrJoinAborted
	}

	if joinErr != nil {
		s.CallID = ""
		if err := b.store.Fire(evJoinFailed); err != nil {
			return err
		}
		return &domain.EngineError{Op: "join", Err: joinErr}
	}

	if err := b.store.Fire(evJoined); err != nil {
		return err
	}
	for _, c := range domain.Capabilities {
		if b.perms.State(c) != domain.PermissionGranted {
			continue
		}
		if err := b.media.Set(ctx, c, true); err != nil {
			b.log.Warn().Err(err).Str("capability", string(c)).Msg("Default media state not applied")
		}
	}
	b.emitter.Emit(domain.Event{Kind: domain.EventCallJoined, CallID: s.CallID, UserID: s.User.ID})
	return nil
}

// LeaveCall ends a joining or active call right away. It is a no-op otherwise.
func (b *Bridge) LeaveCall(ctx context.Context) error {
	var leaveErr error
	if err := b.exec.Do(ctx, func() {
		leaveErr = b.end(ctx, "leave", true)
	}); err != nil {
		return b.fail("leaveCall", err)
	}
	return b.fail("leaveCall", leaveErr)
}

// end moves a live session to Ended and emits callEnded. Runs on the executor.
func (b *Bridge) end(ctx context.Context, reason string, leaveEngine bool) error {
	s := b.store.Current()
	if s == nil || !s.State.Live() {
		return nil
	}

	b.generation++
	if b.joinCancel != nil {
		b.joinCancel()
		b.joinCancel = nil
	}
	if err := b.store.Fire(evLeave); err != nil {
		return err
	}

	var errs []error
	if leaveEngine {
		if err := b.media.StopScreenShare(ctx); err != nil {
			errs = append(errs, err)
		}
		if err := b.engine.Leave(ctx); err != nil {
			errs = append(errs, &domain.EngineError{Op: "leave", Err: err})
		}
	}
	b.media.Reset()

	b.log.Info().Str("call_id", s.CallID).Str("reason", reason).Msg("Call ended")
	b.emitter.Emit(domain.Event{Kind: domain.EventCallEnded, CallID: s.CallID})
	return errors.Join(errs...)
}

// onEngineTerminated ends the call only when the report is for the attempt that is live now.
func (b *Bridge) onEngineTerminated(callID string, attempt uint64, reason error) {
	b.exec.Submit(func() {
		if !b.store.Active() || b.store.Current().CallID != callID || attempt != b.generation {
			b.metrics.StaleResultDiscarded("termination")
			return
		}
		if reason != nil {
			b.log.Warn().Err(reason).Str("call_id", callID).Msg("Engine terminated the call")
		}
		_ = b.end(b.lifetime, "engine", false)
	})
}

func (b *Bridge) SetCameraEnabled(ctx context.Context, enabled bool) (domain.ToggleResult, error) {
	return b.setCapability(ctx, "setCameraEnabled", domain.CapabilityCamera, enabled)
}

func (b *Bridge) SetMicrophoneEnabled(ctx context.Context, enabled bool) (domain.ToggleResult, error) {
	return b.setCapability(ctx, "setMicrophoneEnabled", domain.CapabilityMicrophone, enabled)
}

func (b *Bridge) setCapability(ctx context.Context, command string, c domain.Capability, enabled bool) (domain.ToggleResult, error) {
	var (
		res      domain.ToggleResult
		gen      uint64
		prompt   bool
		flowErr  error
		redirect = domain.RedirectNone
	)
	err := b.exec.Do(ctx, func() {
		defer func() { res = b.toggleResult(c, redirect) }()
		if !b.store.Active() {
			flowErr = &domain.NotInitializedError{Op: command}
			return
		}
		if !enabled {
			flowErr = b.media.Set(ctx, c, false)
			return
		}
		redirect = b.perms.Decide(c)
		switch redirect {
		case domain.RedirectNone:
			flowErr = b.media.Set(ctx, c, true)
		case domain.RedirectSettings:
			flowErr = b.perms.OpenSettings(ctx, c)
		case domain.RedirectPrompt:
			prompt = true
			gen = b.generation
		}
	})
	if err != nil {
		return res, b.fail(command, err)
	}
	if flowErr != nil || !prompt {
		return res, b.fail(command, flowErr)
	}

	answer, err := b.perms.Prompt(ctx, c)
	if err != nil {
		return res, b.fail(command, err)
	}
	err = b.exec.Do(ctx, func() {
		b.perms.ApplyPrompt(c, answer)
		if answer.granted && gen == b.generation && b.store.Active() {
			flowErr = b.media.Set(ctx, c, true)
		}
		res = b.toggleResult(c, domain.RedirectPrompt)
	})
	if err != nil {
		return res, b.fail(command, err)
	}
	return res, b.fail(command, flowErr)
}

func (b *Bridge) toggleResult(c domain.Capability, redirect domain.Redirect) domain.ToggleResult {
	return domain.ToggleResult{
		Enabled:    b.media.Enabled(c),
		Redirect:   redirect,
		Permission: b.perms.State(c),
	}
}

// StartScreenShare asks the OS for a capture grant and starts sharing with it.
// A refused grant is not an error: it reports false and raises a notice.
func (b *Bridge) StartScreenShare(ctx context.Context) (bool, error) {
	var (
		gen       uint64
		extension string
		proceed   bool
		started   bool
		stateErr  error
	)
	err := b.exec.Do(ctx, func() {
		if !b.store.Active() {
			stateErr = &domain.NotInitializedError{Op: "startScreenShare"}
			return
		}
		if !b.media.beginShare() {
			started = b.media.Toggles().ScreenShare
			return
		}
		proceed = true
		gen = b.generation
		extension = b.store.Current().PreferredExtension
	})
	if err != nil {
		return false, b.fail("startScreenShare", err)
	}
	if stateErr != nil || !proceed {
		return started, b.fail("startScreenShare", stateErr)
	}

	token, grantErr := b.perms.probe.RequestCaptureGrant(ctx, extension)
	var engineErr error
	if grantErr == nil {
		engineErr = b.engine.StartScreenShare(ctx, token)
	}

	var outErr error
	err = b.exec.Do(context.Background(), func() {
		current := gen == b.generation && b.store.Active()
		switch {
		case errors.Is(grantErr, domain.ErrCaptureRefused):
			b.media.finishShare(false)
			b.emitter.Notify(domain.Notice{
				Kind:    domain.NoticeScreenShareRefused,
				Message: "Screen sharing permission denied",
			})
		case grantErr != nil:
			b.media.finishShare(false)
			outErr = fmt.Errorf("screen capture grant: %w", grantErr)
		case engineErr != nil:
			b.media.finishShare(false)
			outErr = &domain.EngineError{Op: "start screen share", Err: engineErr}
		case !current:
			if !b.store.Live() {
				if err := b.engine.StopScreenShare(ctx); err != nil {
					b.log.Warn().Err(err).Msg("Stopping orphaned screen share failed")
				}
			}
			b.metrics.StaleResultDiscarded("screen_share")
			outErr = &domain.NotInitializedError{Op: "startScreenShare"}
		default:
			b.media.finishShare(true)
			started = true
		}
	})
	if err != nil {
		return false, b.fail("startScreenShare", err)
	}
	return started, b.fail("startScreenShare", outErr)
}

// StopScreenShare is idempotent: stopping a stopped share does nothing.
func (b *Bridge) StopScreenShare(ctx context.Context) error {
	var stopErr error
	if err := b.exec.Do(ctx, func() {
		stopErr = b.media.StopScreenShare(ctx)
	}); err != nil {
		return b.fail("stopScreenShare", err)
	}
	return b.fail("stopScreenShare", stopErr)
}

// AppResumed re-reads the OS authorization values, which is how grants made in the
// settings app are noticed. A microphone that became granted during an active call is
// switched on; the camera only is when camera auto-enable is configured.
func (b *Bridge) AppResumed(ctx context.Context) ([]PermissionChange, error) {
	reading, err := b.perms.Read(ctx)
	if err != nil {
		return nil, b.fail("appResumed", err)
	}

	var (
		changes []PermissionChange
		errs    []error
	)
	if err := b.exec.Do(ctx, func() {
		changes = b.perms.ApplyReading(reading)
		for _, ch := range changes {
			if ch.To != domain.PermissionGranted {
				if err := b.media.Revoke(ctx, ch.Capability); err != nil {
					errs = append(errs, err)
				}
				continue
			}
			if !b.store.Active() || b.media.Enabled(ch.Capability) {
				continue
			}
			if ch.Capability == domain.CapabilityMicrophone || b.autoEnableCamera {
				if err := b.media.Set(ctx, ch.Capability, true); err != nil {
					errs = append(errs, err)
				}
			}
		}
	}); err != nil {
		return nil, b.fail("appResumed", err)
	}
	return changes, b.fail("appResumed", errors.Join(errs...))
}

func (b *Bridge) AddListener(kind domain.EventKind, fn func(domain.Event)) (*ListenerHandle, error) {
	h, err := b.emitter.AddListener(kind, fn)
	if err != nil {
		return nil, b.fail("addListener", err)
	}
	return h, nil
}

func (b *Bridge) RemoveListener(id domain.ListenerID) bool {
	return b.emitter.RemoveListener(id)
}

func (b *Bridge) RemoveAllListeners() {
	b.emitter.RemoveAllListeners()
}

func (b *Bridge) ListenerCount() int {
	return b.emitter.Len()
}

// SetNoticeHandler installs the sink for transient user notices.
func (b *Bridge) SetNoticeHandler(fn func(domain.Notice)) {
	b.emitter.SetNoticeHandler(fn)
}

func (b *Bridge) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	var snap domain.Snapshot
	err := b.exec.Do(ctx, func() {
		if s := b.store.Current(); s != nil {
			cp := *s
			snap.Session = &cp
		}
		snap.Permissions = b.perms.States()
		snap.Toggles = b.media.Toggles()
		snap.Generation = b.generation
	})
	return snap, err
}

// Close ends any live call, unregisters the session handle and stops the bridge's goroutines.
func (b *Bridge) Close(ctx context.Context) error {
	var closeErr error
	b.closeOnce.Do(func() {
		err := b.exec.Do(ctx, func() {
			closeErr = b.end(ctx, "shutdown", true)
			if s := b.store.Current(); s != nil && b.registry != nil {
				b.registry.swap(s.Handle, "", b)
			}
		})
		if err != nil && closeErr == nil {
			closeErr = err
		}
		b.cancel()
		b.exec.Stop()
		b.emitter.Stop()
	})
	return closeErr
}
