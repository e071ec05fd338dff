package service

import (
	"context"
	"errors"
	"testing"
	"time"

	callmem "github.com/Wyydra/callbridge/internal/adapter/driven/call/memory"
	permmem "github.com/Wyydra/callbridge/internal/adapter/driven/permission/memory"
	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const waitFor = 2 * time.Second

type fixture struct {
	bridge   *Bridge
	engine   *callmem.Engine
	probe    *permmem.Probe
	registry *Registry
	notices  chan domain.Notice
}

func newFixture(t *testing.T, engine *callmem.Engine, probe *permmem.Probe, opts ...Option) *fixture {
	t.Helper()
	if engine == nil {
		engine = callmem.NewEngine()
	}
	if probe == nil {
		probe = permmem.NewProbe()
	}
	f := &fixture{
		engine:   engine,
		probe:    probe,
		registry: NewRegistry(),
		notices:  make(chan domain.Notice, 16),
	}
	opts = append([]Option{WithLogger(zerolog.Nop()), WithRegistry(f.registry)}, opts...)
	f.bridge = NewBridge(engine, probe, opts...)
	f.bridge.SetNoticeHandler(func(n domain.Notice) { f.notices <- n })
	t.Cleanup(func() { _ = f.bridge.Close(context.Background()) })
	return f
}

func (f *fixture) listen(t *testing.T, kind domain.EventKind) chan domain.Event {
	t.Helper()
	ch := make(chan domain.Event, 16)
	_, err := f.bridge.AddListener(kind, func(e domain.Event) { ch <- e })
	require.NoError(t, err)
	return ch
}

func (f *fixture) initialize(t *testing.T) domain.SessionHandle {
	t.Helper()
	h, err := f.bridge.InitializeVideoCall(context.Background(), validRequest())
	require.NoError(t, err)
	return h
}

func (f *fixture) join(t *testing.T, callID string) {
	t.Helper()
	f.initialize(t)
	require.NoError(t, f.bridge.JoinCall(context.Background(), callID))
}

func (f *fixture) snapshot(t *testing.T) domain.Snapshot {
	t.Helper()
	snap, err := f.bridge.Snapshot(context.Background())
	require.NoError(t, err)
	return snap
}

func validRequest() domain.InitRequest {
	return domain.InitRequest{
		APIKey: "k1",
		Token:  "t1",
		User:   domain.UserIdentity{ID: "u1", Name: "Alice"},
	}
}

func receive[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for delivery")
	}
	var zero T
	return zero
}

func assertNothing[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	select {
	case v := <-ch:
		t.Fatalf("unexpected delivery: %+v", v)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestInitializeRejectsMissingField(t *testing.T) {
	f := newFixture(t, nil, nil)

	req := validRequest()
	req.APIKey = ""
	_, err := f.bridge.InitializeVideoCall(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	assert.Equal(t, "apiKey", domain.FieldOf(err))
	assert.Nil(t, f.snapshot(t).Session)
}

func TestJoinWithoutSession(t *testing.T) {
	f := newFixture(t, nil, nil)

	err := f.bridge.JoinCall(context.Background(), "c1")
	assert.Equal(t, domain.CodeNotInitialized, domain.CodeOf(err))
	assert.Zero(t, f.engine.Count(callmem.OpJoin))
}

func TestJoinRequiresCallID(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.initialize(t)

	err := f.bridge.JoinCall(context.Background(), "")
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))
	assert.Equal(t, "callId", domain.FieldOf(err))
}

func TestJoinEmitsCallJoined(t *testing.T) {
	f := newFixture(t, nil, nil)
	joined := f.listen(t, domain.EventCallJoined)

	f.join(t, "c1")

	evt := receive(t, joined)
	assert.Equal(t, domain.Event{Kind: domain.EventCallJoined, CallID: "c1", UserID: "u1"}, evt)

	snap := f.snapshot(t)
	require.NotNil(t, snap.Session)
	assert.Equal(t, domain.StateActive, snap.Session.State)
	assert.Equal(t, "c1", snap.Session.CallID)
	assert.True(t, snap.Toggles.Camera)
	assert.True(t, snap.Toggles.Microphone)
	assert.True(t, f.engine.CameraEnabled())
	assert.True(t, f.engine.MicrophoneEnabled())
}

func TestJoinLeavesUngrantedMediaOff(t *testing.T) {
	probe, err := permmem.NewPresetProbe(permmem.PresetDenied)
	require.NoError(t, err)
	f := newFixture(t, nil, probe)

	f.join(t, "c1")

	snap := f.snapshot(t)
	assert.Equal(t, domain.StateActive, snap.Session.State)
	assert.False(t, snap.Toggles.Camera)
	assert.False(t, snap.Toggles.Microphone)
	assert.Zero(t, probe.Prompts(domain.CapabilityCamera))
}

func TestJoinWhileActive(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.join(t, "c1")

	err := f.bridge.JoinCall(context.Background(), "c2")
	assert.ErrorIs(t, err, domain.ErrCallInProgress)
	assert.Equal(t, 1, f.engine.Count(callmem.OpJoin))
}

func TestJoinFailureReturnsToInitialized(t *testing.T) {
	f := newFixture(t, nil, nil)
	joined := f.listen(t, domain.EventCallJoined)
	f.initialize(t)
	f.engine.FailNext(callmem.OpJoin, errors.New("invalid token"))

	err := f.bridge.JoinCall(context.Background(), "c1")
	require.Error(t, err)
	assert.Equal(t, domain.CodeEngine, domain.CodeOf(err))
	assert.Equal(t, "invalid token", err.Error())

	snap := f.snapshot(t)
	assert.Equal(t, domain.StateInitialized, snap.Session.State)
	assert.Empty(t, snap.Session.CallID)
	assertNothing(t, joined)

	require.NoError(t, f.bridge.JoinCall(context.Background(), "c1"))
	assert.Equal(t, domain.EventCallJoined, receive(t, joined).Kind)
}

func TestLeaveDuringJoinDiscardsResult(t *testing.T) {
	f := newFixture(t, callmem.NewManualEngine(), nil)
	joined := f.listen(t, domain.EventCallJoined)
	ended := f.listen(t, domain.EventCallEnded)
	f.initialize(t)

	result := make(chan error, 1)
	go func() { result <- f.bridge.JoinCall(context.Background(), "c1") }()

	pending := receive(t, f.engine.Joins())
	assert.Equal(t, "c1", pending.Creds.CallID)
	assert.Equal(t, domain.StateJoining, f.snapshot(t).Session.State)

	require.NoError(t, f.bridge.LeaveCall(context.Background()))
	assert.Equal(t, "c1", receive(t, ended).CallID)

	pending.Resolve(nil)
	assert.ErrorIs(t, receive(t, result), domain.ErrJoinAborted)

	assertNothing(t, joined)
	assert.Equal(t, domain.StateEnded, f.snapshot(t).Session.State)
	assert.False(t, f.engine.InCall())
	assert.Equal(t, 1, f.engine.Count(callmem.OpLeave))
}

func TestAbandonedJoinCannotReplaceNewerCall(t *testing.T) {
	f := newFixture(t, callmem.NewManualEngine(), nil)
	joined := f.listen(t, domain.EventCallJoined)
	f.initialize(t)

	first := make(chan error, 1)
	go func() { first <- f.bridge.JoinCall(context.Background(), "c1") }()
	p1 := receive(t, f.engine.Joins())

	require.NoError(t, f.bridge.LeaveCall(context.Background()))
	assert.ErrorIs(t, receive(t, first), domain.ErrJoinAborted)

	f.initialize(t)
	second := make(chan error, 1)
	go func() { second <- f.bridge.JoinCall(context.Background(), "c2") }()
	p2 := receive(t, f.engine.Joins())
	assert.Equal(t, "c2", p2.Creds.CallID)
	p2.Resolve(nil)
	require.NoError(t, receive(t, second))
	assert.Equal(t, "c2", receive(t, joined).CallID)

	p1.Resolve(nil)
	assertNothing(t, joined)

	snap := f.snapshot(t)
	assert.Equal(t, domain.StateActive, snap.Session.State)
	assert.Equal(t, "c2", snap.Session.CallID)
	assert.Equal(t, "c2", f.engine.CallID())
	assert.True(t, f.engine.InCall())
	assert.Equal(t, 2, f.engine.Count(callmem.OpJoin))
}

func TestReinitializeDuringJoinDiscardsResult(t *testing.T) {
	f := newFixture(t, callmem.NewManualEngine(), nil)
	joined := f.listen(t, domain.EventCallJoined)
	f.initialize(t)

	result := make(chan error, 1)
	go func() { result <- f.bridge.JoinCall(context.Background(), "c1") }()
	pending := receive(t, f.engine.Joins())

	f.initialize(t)
	pending.Resolve(errors.New("late failure"))

	assert.ErrorIs(t, receive(t, result), domain.ErrJoinAborted)
	assertNothing(t, joined)
	assert.Equal(t, domain.StateInitialized, f.snapshot(t).Session.State)
}

func TestReinitializeWhileActiveEndsCall(t *testing.T) {
	f := newFixture(t, nil, nil)
	ended := f.listen(t, domain.EventCallEnded)
	first := f.initialize(t)
	require.NoError(t, f.bridge.JoinCall(context.Background(), "c1"))

	second := f.initialize(t)
	assert.NotEqual(t, first, second)
	assert.Equal(t, "c1", receive(t, ended).CallID)
	assert.Equal(t, 1, f.engine.Count(callmem.OpLeave))

	snap := f.snapshot(t)
	assert.Equal(t, domain.StateInitialized, snap.Session.State)
	assert.Equal(t, domain.MediaToggles{}, snap.Toggles)

	_, ok := f.registry.Lookup(first)
	assert.False(t, ok)
	b, ok := f.registry.Lookup(second)
	require.True(t, ok)
	assert.Same(t, f.bridge, b)
}

func TestLeaveWithoutCallIsNoop(t *testing.T) {
	f := newFixture(t, nil, nil)
	ended := f.listen(t, domain.EventCallEnded)

	require.NoError(t, f.bridge.LeaveCall(context.Background()))
	f.initialize(t)
	require.NoError(t, f.bridge.LeaveCall(context.Background()))

	assertNothing(t, ended)
	assert.Zero(t, f.engine.Count(callmem.OpLeave))
}

func TestEndedSessionCountsAsNoSession(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.join(t, "c1")
	require.NoError(t, f.bridge.LeaveCall(context.Background()))

	snap := f.snapshot(t)
	require.NotNil(t, snap.Session)
	assert.Equal(t, domain.StateEnded, snap.Session.State)

	err := f.bridge.JoinCall(context.Background(), "c2")
	assert.Equal(t, domain.CodeNotInitialized, domain.CodeOf(err))
}

func TestEngineTermination(t *testing.T) {
	f := newFixture(t, nil, nil)
	ended := f.listen(t, domain.EventCallEnded)
	f.join(t, "c1")

	f.engine.TerminateCall("c0", nil)
	assert.Equal(t, domain.StateActive, f.snapshot(t).Session.State)
	assertNothing(t, ended)

	f.engine.Terminate(errors.New("remote hangup"))
	assert.Equal(t, "c1", receive(t, ended).CallID)
	assert.Equal(t, domain.StateEnded, f.snapshot(t).Session.State)
	assert.Zero(t, f.engine.Count(callmem.OpLeave))

	f.engine.TerminateCall("c1", nil)
	assertNothing(t, ended)
}

func TestEngineTerminationOfEarlierAttemptIgnored(t *testing.T) {
	f := newFixture(t, nil, nil)
	ended := f.listen(t, domain.EventCallEnded)
	f.join(t, "c1")
	earlier := f.engine.Attempt()
	require.NoError(t, f.bridge.LeaveCall(context.Background()))
	assert.Equal(t, "c1", receive(t, ended).CallID)

	f.join(t, "c1")
	require.NotEqual(t, earlier, f.engine.Attempt())

	f.engine.TerminateAttempt("c1", earlier, nil)
	assertNothing(t, ended)
	snap := f.snapshot(t)
	assert.Equal(t, domain.StateActive, snap.Session.State)
	assert.Equal(t, f.engine.Attempt(), snap.Session.Generation)

	f.engine.Terminate(nil)
	assert.Equal(t, "c1", receive(t, ended).CallID)
	assert.Equal(t, domain.StateEnded, f.snapshot(t).Session.State)
}

func TestToggleRequiresActiveCall(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.initialize(t)

	_, err := f.bridge.SetCameraEnabled(context.Background(), true)
	assert.Equal(t, domain.CodeNotInitialized, domain.CodeOf(err))
	_, err = f.bridge.StartScreenShare(context.Background())
	assert.Equal(t, domain.CodeNotInitialized, domain.CodeOf(err))
}

func TestToggleGrantedCapability(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.join(t, "c1")

	res, err := f.bridge.SetCameraEnabled(context.Background(), false)
	require.NoError(t, err)
	assert.False(t, res.Enabled)
	assert.False(t, f.engine.CameraEnabled())

	res, err = f.bridge.SetCameraEnabled(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.ToggleResult{Enabled: true, Redirect: domain.RedirectNone, Permission: domain.PermissionGranted}, res)
	assert.True(t, f.engine.CameraEnabled())
}

func TestToggleEngineErrorKeepsState(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.join(t, "c1")
	f.engine.FailNext(callmem.OpMicrophone, errors.New("device busy"))

	res, err := f.bridge.SetMicrophoneEnabled(context.Background(), false)
	require.Error(t, err)
	assert.Equal(t, domain.CodeEngine, domain.CodeOf(err))
	assert.True(t, res.Enabled)
	assert.True(t, f.snapshot(t).Toggles.Microphone)
}

func TestTogglePromptsThenOpensSettings(t *testing.T) {
	f := newFixture(t, nil, nil, WithPromptOnJoin(false))
	f.join(t, "c1")
	f.probe.Answer(domain.CapabilityCamera, permmem.DenyDontAskAgain)

	res, err := f.bridge.SetCameraEnabled(context.Background(), true)
	require.NoError(t, err)
	assert.False(t, res.Enabled)
	assert.Equal(t, domain.RedirectPrompt, res.Redirect)
	assert.Equal(t, domain.PermissionPermanentlyDenied, res.Permission)
	assert.Equal(t, domain.NoticePermissionPermanentlyDenied, receive(t, f.notices).Kind)

	res, err = f.bridge.SetCameraEnabled(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.RedirectSettings, res.Redirect)
	assert.False(t, res.Enabled)
	assert.Equal(t, domain.NoticeSettingsOpened, receive(t, f.notices).Kind)

	assert.Equal(t, 1, f.probe.Prompts(domain.CapabilityCamera))
	assert.Equal(t, 1, f.probe.SettingsOpened(domain.CapabilityCamera))
	assert.False(t, f.engine.CameraEnabled())
}

func TestToggleSettingsUnavailable(t *testing.T) {
	f := newFixture(t, nil, nil, WithPromptOnJoin(false))
	f.join(t, "c1")
	f.probe.Answer(domain.CapabilityMicrophone, permmem.DenyDontAskAgain)
	f.probe.SetSettingsAvailable(false)

	_, err := f.bridge.SetMicrophoneEnabled(context.Background(), true)
	require.NoError(t, err)

	_, err = f.bridge.SetMicrophoneEnabled(context.Background(), true)
	assert.Equal(t, domain.CodePermission, domain.CodeOf(err))
	assert.ErrorIs(t, err, domain.ErrNoSettings)
}

func TestTogglePromptGrantEnables(t *testing.T) {
	f := newFixture(t, nil, nil, WithPromptOnJoin(false))
	f.join(t, "c1")
	assert.False(t, f.snapshot(t).Toggles.Microphone)

	res, err := f.bridge.SetMicrophoneEnabled(context.Background(), true)
	require.NoError(t, err)
	assert.True(t, res.Enabled)
	assert.Equal(t, domain.PermissionGranted, res.Permission)
	assert.True(t, f.engine.MicrophoneEnabled())
}

func TestToggleDeniedWithRationale(t *testing.T) {
	f := newFixture(t, nil, nil, WithPromptOnJoin(false))
	f.join(t, "c1")
	f.probe.Answer(domain.CapabilityCamera, permmem.Deny)

	res, err := f.bridge.SetCameraEnabled(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.PermissionDenied, res.Permission)
	assert.Equal(t, domain.NoticePermissionDenied, receive(t, f.notices).Kind)

	res, err = f.bridge.SetCameraEnabled(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, domain.RedirectPrompt, res.Redirect)
	assert.True(t, res.Enabled)
	assert.Equal(t, 2, f.probe.Prompts(domain.CapabilityCamera))
}

func TestResumeEnablesMicrophoneOnly(t *testing.T) {
	probe, err := permmem.NewPresetProbe(permmem.PresetDenied)
	require.NoError(t, err)
	f := newFixture(t, nil, probe)
	f.join(t, "c1")

	probe.SetStatus(domain.CapabilityCamera, domain.AuthorizationAuthorized)
	probe.SetStatus(domain.CapabilityMicrophone, domain.AuthorizationAuthorized)

	changes, err := f.bridge.AppResumed(context.Background())
	require.NoError(t, err)
	assert.Len(t, changes, 2)

	snap := f.snapshot(t)
	assert.True(t, snap.Toggles.Microphone)
	assert.False(t, snap.Toggles.Camera)
	assert.Equal(t, domain.PermissionGranted, snap.Permissions[domain.CapabilityCamera])
	assert.True(t, f.engine.MicrophoneEnabled())
	assert.False(t, f.engine.CameraEnabled())
}

func TestResumeCameraAutoEnable(t *testing.T) {
	probe, err := permmem.NewPresetProbe(permmem.PresetDenied)
	require.NoError(t, err)
	f := newFixture(t, nil, probe, WithCameraAutoEnable(true))
	f.join(t, "c1")

	probe.SetStatus(domain.CapabilityCamera, domain.AuthorizationAuthorized)
	_, err = f.bridge.AppResumed(context.Background())
	require.NoError(t, err)

	assert.True(t, f.snapshot(t).Toggles.Camera)
}

func TestResumeRevocationForcesToggleOff(t *testing.T) {
	probe, err := permmem.NewPresetProbe(permmem.PresetGranted)
	require.NoError(t, err)
	f := newFixture(t, nil, probe)
	f.join(t, "c1")
	require.True(t, f.engine.CameraEnabled())

	probe.SetStatus(domain.CapabilityCamera, domain.AuthorizationDenied)
	changes, err := f.bridge.AppResumed(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, PermissionChange{
		Capability: domain.CapabilityCamera,
		From:       domain.PermissionGranted,
		To:         domain.PermissionDenied,
	}, changes[0])

	snap := f.snapshot(t)
	assert.False(t, snap.Toggles.Camera)
	assert.True(t, snap.Toggles.Microphone)
	assert.False(t, f.engine.CameraEnabled())
}

func TestResumeRevocationClearsToggleWhenEngineFails(t *testing.T) {
	probe, err := permmem.NewPresetProbe(permmem.PresetGranted)
	require.NoError(t, err)
	f := newFixture(t, nil, probe)
	f.join(t, "c1")
	require.True(t, f.snapshot(t).Toggles.Camera)

	f.engine.FailNext(callmem.OpCamera, errors.New("camera busy"))
	probe.SetStatus(domain.CapabilityCamera, domain.AuthorizationDenied)
	changes, err := f.bridge.AppResumed(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.CodeEngine, domain.CodeOf(err))
	require.Len(t, changes, 1)

	snap := f.snapshot(t)
	assert.Equal(t, domain.PermissionDenied, snap.Permissions[domain.CapabilityCamera])
	assert.False(t, snap.Toggles.Camera)
	assert.True(t, snap.Toggles.Microphone)
}

func TestResumeWithoutCallOnlyUpdatesPermissions(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.probe.SetStatus(domain.CapabilityMicrophone, domain.AuthorizationAuthorized)

	changes, err := f.bridge.AppResumed(context.Background())
	require.NoError(t, err)
	require.Len(t, changes, 1)
	assert.Equal(t, domain.PermissionGranted, f.snapshot(t).Permissions[domain.CapabilityMicrophone])
	assert.Zero(t, f.engine.Count(callmem.OpMicrophone))
}

func TestScreenShare(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.join(t, "c1")

	started, err := f.bridge.StartScreenShare(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
	assert.True(t, f.engine.Sharing())
	assert.NotEmpty(t, f.engine.ShareToken())

	started, err = f.bridge.StartScreenShare(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
	assert.Equal(t, 1, f.probe.CaptureRequests())

	require.NoError(t, f.bridge.StopScreenShare(context.Background()))
	require.NoError(t, f.bridge.StopScreenShare(context.Background()))
	assert.Equal(t, 1, f.engine.Count(callmem.OpStopShare))
	assert.False(t, f.snapshot(t).Toggles.ScreenShare)
}

func TestScreenShareRefused(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.join(t, "c1")
	f.probe.SetCaptureAllowed(false)

	started, err := f.bridge.StartScreenShare(context.Background())
	require.NoError(t, err)
	assert.False(t, started)
	assert.Equal(t, domain.NoticeScreenShareRefused, receive(t, f.notices).Kind)
	assert.Zero(t, f.engine.Count(callmem.OpStartShare))

	f.probe.SetCaptureAllowed(true)
	started, err = f.bridge.StartScreenShare(context.Background())
	require.NoError(t, err)
	assert.True(t, started)
}

func TestLeaveStopsScreenShare(t *testing.T) {
	f := newFixture(t, nil, nil)
	f.join(t, "c1")
	_, err := f.bridge.StartScreenShare(context.Background())
	require.NoError(t, err)

	require.NoError(t, f.bridge.LeaveCall(context.Background()))
	assert.Equal(t, 1, f.engine.Count(callmem.OpStopShare))
	assert.Equal(t, domain.MediaToggles{}, f.snapshot(t).Toggles)
}

func TestListeners(t *testing.T) {
	f := newFixture(t, nil, nil)

	f.bridge.RemoveAllListeners()

	_, err := f.bridge.AddListener("callRinging", func(domain.Event) {})
	assert.Equal(t, domain.CodeValidation, domain.CodeOf(err))

	joined := make(chan domain.Event, 4)
	h, err := f.bridge.AddListener(domain.EventCallJoined, func(e domain.Event) { joined <- e })
	require.NoError(t, err)
	assert.True(t, f.bridge.RemoveListener(h.ID()))
	assert.False(t, f.bridge.RemoveListener(h.ID()))

	f.join(t, "c1")
	assertNothing(t, joined)
}

func TestCloseEndsCall(t *testing.T) {
	f := newFixture(t, nil, nil)
	ended := f.listen(t, domain.EventCallEnded)
	h := f.initialize(t)
	require.NoError(t, f.bridge.JoinCall(context.Background(), "c1"))

	require.NoError(t, f.bridge.Close(context.Background()))
	assert.Equal(t, "c1", receive(t, ended).CallID)
	assert.False(t, f.engine.InCall())

	_, ok := f.registry.Lookup(h)
	assert.False(t, ok)

	err := f.bridge.LeaveCall(context.Background())
	assert.Equal(t, domain.CodeClosed, domain.CodeOf(err))
	_, err = f.bridge.Snapshot(context.Background())
	assert.ErrorIs(t, err, domain.ErrBridgeClosed)
}

func TestJoinCallerContextCancelled(t *testing.T) {
	f := newFixture(t, callmem.NewManualEngine(), nil)
	joined := f.listen(t, domain.EventCallJoined)
	f.initialize(t)

	ctx, cancel := context.WithCancel(context.Background())
	result := make(chan error, 1)
	go func() { result <- f.bridge.JoinCall(ctx, "c1") }()

	pending := receive(t, f.engine.Joins())
	cancel()
	assert.ErrorIs(t, receive(t, result), context.Canceled)

	pending.Resolve(nil)
	assert.Equal(t, "c1", receive(t, joined).CallID)
	assert.Equal(t, domain.StateActive, f.snapshot(t).Session.State)
}
