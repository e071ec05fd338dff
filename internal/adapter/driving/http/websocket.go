package http

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/service"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// TODO: restrict to the app shell's origin once it is configurable
	CheckOrigin: func(r *http.Request) bool { return true },
}

type request struct {
	ID     json.RawMessage `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params"`
}

type response struct {
	ID     json.RawMessage `json:"id"`
	Result any             `json:"result,omitempty"`
	Error  *errorDTO       `json:"error,omitempty"`
}

type push struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type WSClient struct {
	id   string
	conn *websocket.Conn

	writeMu sync.Mutex

	mu        sync.Mutex
	listeners map[domain.ListenerID]*service.ListenerHandle
}

func (c *WSClient) ID() string {
	return c.id
}

func (c *WSClient) write(v any) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteJSON(v)
}

func (c *WSClient) SendNotice(n domain.Notice) error {
	return c.write(push{
		Event: "notice",
		Data: noticeDTO{
			Kind:       string(n.Kind),
			Capability: string(n.Capability),
			Message:    n.Message,
		},
	})
}

func (c *WSClient) sendEvent(evt domain.Event) error {
	return c.write(push{
		Event: string(evt.Kind),
		Data:  eventDTO{CallID: evt.CallID, UserID: evt.UserID},
	})
}

func (c *WSClient) Close() error {
	return c.conn.Close()
}

func (c *WSClient) track(h *service.ListenerHandle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners[h.ID()] = h
}

func (c *WSClient) untrack(id domain.ListenerID) (*service.ListenerHandle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	h, ok := c.listeners[id]
	delete(c.listeners, id)
	return h, ok
}

// removeListeners drops every listener this connection registered.
func (c *WSClient) removeListeners() int {
	c.mu.Lock()
	handles := c.listeners
	c.listeners = make(map[domain.ListenerID]*service.ListenerHandle)
	c.mu.Unlock()
	for _, h := range handles {
		h.Remove()
	}
	return len(handles)
}

// HTTP handler
func (h *Handler) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Error while upgrading ws")
		return
	}

	client := &WSClient{
		id:        uuid.NewString(),
		conn:      conn,
		listeners: make(map[domain.ListenerID]*service.ListenerHandle),
	}

	l := log.With().Str("client_id", client.id).Logger()
	l.Info().Msg("New client connected")

	h.Hub.Register(client)

	ctx, cancel := context.WithCancel(context.Background())
	var inflight sync.WaitGroup

	defer func() {
		cancel()
		inflight.Wait()
		n := client.removeListeners()
		l.Info().Int("listeners_removed", n).Msg("Client disconnected")
		h.Hub.Unregister(client)
		conn.Close()
	}()

	for {
		var req request
		if err := conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				l.Error().Err(err).Msg("Unexpected close error")
			}
			break
		}

		inflight.Add(1)
		go func() {
			defer inflight.Done()
			result, err := h.dispatch(ctx, client, req)
			resp := response{ID: req.ID, Result: result}
			if err != nil {
				dto := newErrorDTO(err)
				resp = response{ID: req.ID, Error: &dto}
			}
			if err := client.write(resp); err != nil {
				l.Debug().Err(err).Str("method", req.Method).Msg("Error writing response")
			}
		}()
	}
}

type initParams struct {
	APIKey             string  `json:"apiKey"`
	Token              string  `json:"token"`
	PreferredExtension string  `json:"preferredExtension"`
	User               userDTO `json:"user"`
}

type joinParams struct {
	CallID string `json:"callId"`
}

type listenerParams struct {
	Event      string `json:"event"`
	ListenerID string `json:"listenerId"`
}

type toggleParams struct {
	Enabled *bool `json:"enabled"`
}

func decode(raw json.RawMessage, v any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &domain.ValidationError{Field: "params"}
	}
	return nil
}

func (h *Handler) dispatch(ctx context.Context, c *WSClient, req request) (any, error) {
	b := h.Bridge
	ok := struct{}{}

	switch req.Method {
	case "initializeVideoCall":
		var p initParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		handle, err := b.InitializeVideoCall(ctx, domain.InitRequest{
			APIKey:             p.APIKey,
			Token:              p.Token,
			PreferredExtension: p.PreferredExtension,
			User:               domain.UserIdentity(p.User),
		})
		if err != nil {
			return nil, err
		}
		return map[string]string{"handle": handle.String()}, nil

	case "joinCall":
		var p joinParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		return ok, b.JoinCall(ctx, p.CallID)

	case "leaveCall":
		return ok, b.LeaveCall(ctx)

	case "addListener":
		var p listenerParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		handle, err := b.AddListener(domain.EventKind(p.Event), h.forward(c))
		if err != nil {
			return nil, err
		}
		c.track(handle)
		return map[string]string{"listenerId": handle.ID().String()}, nil

	case "removeListener":
		var p listenerParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		id, err := domain.ParseListenerID(p.ListenerID)
		if err != nil {
			return nil, &domain.ValidationError{Field: "listenerId"}
		}
		handle, found := c.untrack(id)
		if found {
			handle.Remove()
		}
		return map[string]bool{"removed": found}, nil

	case "removeAllListeners":
		return map[string]int{"removed": c.removeListeners()}, nil

	case "setCameraEnabled", "setMicrophoneEnabled":
		var p toggleParams
		if err := decode(req.Params, &p); err != nil {
			return nil, err
		}
		if p.Enabled == nil {
			return nil, &domain.ValidationError{Field: "enabled"}
		}
		set := b.SetCameraEnabled
		if req.Method == "setMicrophoneEnabled" {
			set = b.SetMicrophoneEnabled
		}
		res, err := set(ctx, *p.Enabled)
		if err != nil {
			return nil, err
		}
		return toggleDTO{
			Enabled:    res.Enabled,
			Redirect:   string(res.Redirect),
			Permission: res.Permission.String(),
		}, nil

	case "startScreenShare":
		started, err := b.StartScreenShare(ctx)
		if err != nil {
			return nil, err
		}
		return map[string]bool{"started": started}, nil

	case "stopScreenShare":
		return ok, b.StopScreenShare(ctx)

	case "appResumed":
		changes, err := b.AppResumed(ctx)
		if err != nil {
			return nil, err
		}
		return resumeDTO{Changes: newChangeDTOs(changes)}, nil

	case "snapshot":
		snap, err := b.Snapshot(ctx)
		if err != nil {
			return nil, err
		}
		return newSnapshotDTO(snap), nil

	default:
		return nil, &domain.ValidationError{Field: "method"}
	}
}

func (h *Handler) forward(c *WSClient) func(domain.Event) {
	l := log.With().Str("client_id", c.id).Logger()
	return func(evt domain.Event) {
		if err := c.sendEvent(evt); err != nil {
			l.Debug().Err(err).Str("event", string(evt.Kind)).Msg("Error pushing event")
		}
	}
}
