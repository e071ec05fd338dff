package pion

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
)

// Loopback answers offers with an in-process peer, standing in for a call server.
type Loopback struct {
	api    *webrtc.API
	config webrtc.Configuration

	mu    sync.Mutex
	peers map[string]*webrtc.PeerConnection
}

func NewLoopback(iceServers []string) (*Loopback, error) {
	m := &webrtc.MediaEngine{}
	if err := m.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}
	return &Loopback{
		api:    webrtc.NewAPI(webrtc.WithMediaEngine(m)),
		config: configuration(iceServers),
		peers:  make(map[string]*webrtc.PeerConnection),
	}, nil
}

func (l *Loopback) Exchange(ctx context.Context, callID string, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	pc, err := l.api.NewPeerConnection(l.config)
	if err != nil {
		return webrtc.SessionDescription{}, err
	}
	answer, err := l.answer(ctx, pc, offer)
	if err != nil {
		pc.Close()
		return webrtc.SessionDescription{}, err
	}

	l.mu.Lock()
	prev := l.peers[callID]
	l.peers[callID] = pc
	l.mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return answer, nil
}

func (l *Loopback) answer(ctx context.Context, pc *webrtc.PeerConnection, offer webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set remote description: %w", err)
	}
	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("create answer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("set local description: %w", err)
	}
	select {
	case <-gathered:
	case <-ctx.Done():
		return webrtc.SessionDescription{}, ctx.Err()
	}
	return *pc.LocalDescription(), nil
}

func (l *Loopback) Hangup(callID string) error {
	l.mu.Lock()
	pc := l.peers[callID]
	delete(l.peers, callID)
	l.mu.Unlock()
	if pc == nil {
		return nil
	}
	return pc.Close()
}

func (l *Loopback) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.peers)
}
