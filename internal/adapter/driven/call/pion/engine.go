package pion

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var ErrNoCall = errors.New("no call in progress")

// Signaler carries the offer/answer exchange for a call to whatever sits on the other side.
type Signaler interface {
	Exchange(ctx context.Context, callID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error)
	Hangup(callID string) error
}

type call struct {
	id      string
	attempt uint64
	pc      *webrtc.PeerConnection
	camera  *sender
	mic     *sender
	screen  *sender
}

// sender is a negotiated local track. Capture lives outside the engine and nothing
// writes samples here, so active only records the switch; toggling never renegotiates.
type sender struct {
	track  *webrtc.TrackLocalStaticRTP
	rtp    *webrtc.RTPSender
	active bool
}

// drainRTCP reads the sender's RTCP so interceptors keep running. It returns once the connection closes.
func (s *sender) drainRTCP(l zerolog.Logger) {
	for {
		packets, _, err := s.rtp.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			if pli, ok := p.(*rtcp.PictureLossIndication); ok {
				l.Debug().Str("track", s.track.ID()).Uint32("ssrc", pli.MediaSSRC).Msg("Keyframe requested")
			}
		}
	}
}

// Engine implements port.Engine with one WebRTC peer connection per call.
type Engine struct {
	api      *webrtc.API
	config   webrtc.Configuration
	signaler Signaler
	log      zerolog.Logger

	mu          sync.Mutex
	current     *call
	token       domain.CaptureToken
	onTerminate func(callID string, attempt uint64, reason error)
}

func NewEngine(iceServers []string, signaler Signaler) (*Engine, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &Engine{
		api:      webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config:   configuration(iceServers),
		signaler: signaler,
		log:      log.With().Str("component", "pion_engine").Logger(),
	}, nil
}

func configuration(iceServers []string) webrtc.Configuration {
	if len(iceServers) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: iceServers}},
	}
}

func (e *Engine) SetTerminationCallback(cb func(callID string, attempt uint64, reason error)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.onTerminate = cb
}

func (e *Engine) Join(ctx context.Context, creds domain.Credentials) error {
	pc, err := e.api.NewPeerConnection(e.config)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}
	c, err := e.prepare(pc, creds)
	if err != nil {
		pc.Close()
		return err
	}

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.handleState(pc, s)
	})

	if err := e.negotiate(ctx, c); err != nil {
		pc.Close()
		return err
	}

	e.mu.Lock()
	if err := ctx.Err(); err != nil {
		shared := e.current != nil && e.current.id == c.id
		e.mu.Unlock()
		if shared {
			pc.Close()
		} else {
			e.hangup(c)
		}
		return err
	}
	prev := e.current
	e.current = c
	e.mu.Unlock()
	if prev != nil {
		e.hangup(prev)
	}

	e.log.Info().Str("call_id", creds.CallID).Str("user_id", creds.User.ID).Msg("Peer connection negotiated")
	return nil
}

func (e *Engine) prepare(pc *webrtc.PeerConnection, creds domain.Credentials) (*call, error) {
	stream := "callbridge-" + creds.User.ID
	c := &call{id: creds.CallID, attempt: creds.Attempt, pc: pc}

	var err error
	if c.mic, err = addSender(pc, webrtc.MimeTypeOpus, "audio", stream); err != nil {
		return nil, err
	}
	if c.camera, err = addSender(pc, webrtc.MimeTypeVP8, "camera", stream); err != nil {
		return nil, err
	}
	if c.screen, err = addSender(pc, webrtc.MimeTypeVP8, "screen", stream); err != nil {
		return nil, err
	}
	for _, s := range []*sender{c.mic, c.camera, c.screen} {
		go s.drainRTCP(e.log)
	}
	return c, nil
}

// addSender attaches a track so the offer carries its m-line. It starts inactive.
func addSender(pc *webrtc.PeerConnection, mime, id, stream string) (*sender, error) {
	track, err := webrtc.NewTrackLocalStaticRTP(webrtc.RTPCodecCapability{MimeType: mime}, id, stream)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", id, err)
	}
	rtp, err := pc.AddTrack(track)
	if err != nil {
		return nil, fmt.Errorf("add %s track: %w", id, err)
	}
	return &sender{track: track, rtp: rtp}, nil
}

func (e *Engine) negotiate(ctx context.Context, c *call) error {
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(c.pc)
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return ctx.Err()
	}

	if e.signaler == nil {
		return nil
	}
	answer, err := e.signaler.Exchange(ctx, c.id, *c.pc.LocalDescription())
	if err != nil {
		return fmt.Errorf("signal offer: %w", err)
	}
	if err := c.pc.SetRemoteDescription(answer); err != nil {
		return fmt.Errorf("set remote description: %w", err)
	}
	return nil
}

func (e *Engine) handleState(pc *webrtc.PeerConnection, s webrtc.PeerConnectionState) {
	e.log.Debug().Str("state", s.String()).Msg("Peer connection state changed")
	if s != webrtc.PeerConnectionStateFailed && s != webrtc.PeerConnectionStateDisconnected {
		return
	}

	e.mu.Lock()
	c := e.current
	if c == nil || c.pc != pc {
		e.mu.Unlock()
		return
	}
	e.current = nil
	cb := e.onTerminate
	e.mu.Unlock()

	e.hangup(c)
	if cb != nil {
		cb(c.id, c.attempt, fmt.Errorf("peer connection %s", s))
	}
}

func (e *Engine) hangup(c *call) {
	if e.signaler != nil {
		if err := e.signaler.Hangup(c.id); err != nil {
			e.log.Warn().Err(err).Str("call_id", c.id).Msg("Hangup signal failed")
		}
	}
	if err := c.pc.Close(); err != nil {
		e.log.Warn().Err(err).Str("call_id", c.id).Msg("Closing peer connection failed")
	}
}

func (e *Engine) Leave(ctx context.Context) error {
	e.mu.Lock()
	c := e.current
	e.current = nil
	e.token = ""
	e.mu.Unlock()
	if c == nil {
		return nil
	}
	e.hangup(c)
	return nil
}

func (e *Engine) withCall(fn func(c *call) error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return ErrNoCall
	}
	return fn(e.current)
}

func (e *Engine) SetCameraEnabled(ctx context.Context, enabled bool) error {
	return e.withCall(func(c *call) error {
		c.camera.active = enabled
		return nil
	})
}

func (e *Engine) SetMicrophoneEnabled(ctx context.Context, enabled bool) error {
	return e.withCall(func(c *call) error {
		c.mic.active = enabled
		return nil
	})
}

func (e *Engine) StartScreenShare(ctx context.Context, token domain.CaptureToken) error {
	return e.withCall(func(c *call) error {
		c.screen.active = true
		e.token = token
		return nil
	})
}

func (e *Engine) StopScreenShare(ctx context.Context) error {
	return e.withCall(func(c *call) error {
		c.screen.active = false
		e.token = ""
		return nil
	})
}

// Status reports the current call and which local tracks are attached.
func (e *Engine) Status() (callID string, camera, mic, screen bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.current == nil {
		return "", false, false, false
	}
	c := e.current
	return c.id, c.camera.active, c.mic.active, c.screen.active
}
