package service

import (
	"sync"
	"sync/atomic"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/Wyydra/callbridge/internal/core/port"
	"github.com/rs/zerolog"
)

type listener struct {
	id      domain.ListenerID
	kind    domain.EventKind
	fn      func(domain.Event)
	removed atomic.Bool
}

type delivery struct {
	event   *domain.Event
	notice  *domain.Notice
	targets []*listener
}

// Emitter delivers lifecycle events to listeners on its own goroutine, in emission order.
// Emit snapshots the listener set, so late listeners never see earlier events.
type Emitter struct {
	mu        sync.Mutex
	listeners map[domain.ListenerID]*listener
	queue     []delivery
	onNotice  func(domain.Notice)

	wake chan struct{}
	quit chan struct{}
	done chan struct{}
	once sync.Once

	metrics port.Metrics
	log     zerolog.Logger
}

func NewEmitter(metrics port.Metrics, l zerolog.Logger) *Emitter {
	return &Emitter{
		listeners: make(map[domain.ListenerID]*listener),
		wake:      make(chan struct{}, 1),
		quit:      make(chan struct{}),
		done:      make(chan struct{}),
		metrics:   metrics,
		log:       l,
	}
}

// ListenerHandle removes its listener. Remove is idempotent.
type ListenerHandle struct {
	id      domain.ListenerID
	kind    domain.EventKind
	emitter *Emitter
}

func (h *ListenerHandle) ID() domain.ListenerID { return h.id }

func (h *ListenerHandle) Kind() domain.EventKind { return h.kind }

func (h *ListenerHandle) Remove() {
	h.emitter.RemoveListener(h.id)
}

func (e *Emitter) AddListener(kind domain.EventKind, fn func(domain.Event)) (*ListenerHandle, error) {
	if _, err := domain.ParseEventKind(string(kind)); err != nil {
		return nil, err
	}
	if fn == nil {
		return nil, &domain.ValidationError{Field: "handler"}
	}

	l := &listener{id: domain.NewListenerID(), kind: kind, fn: fn}
	e.mu.Lock()
	e.listeners[l.id] = l
	e.mu.Unlock()

	return &ListenerHandle{id: l.id, kind: kind, emitter: e}, nil
}

func (e *Emitter) RemoveListener(id domain.ListenerID) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.listeners[id]
	if !ok {
		return false
	}
	l.removed.Store(true)
	delete(e.listeners, id)
	return true
}

func (e *Emitter) RemoveAllListeners() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, l := range e.listeners {
		l.removed.Store(true)
		delete(e.listeners, id)
	}
}

func (e *Emitter) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.listeners)
}

// SetNoticeHandler installs the sink for transient notices. nil drops them.
func (e *Emitter) SetNoticeHandler(fn func(domain.Notice)) {
	e.mu.Lock()
	e.onNotice = fn
	e.mu.Unlock()
}

func (e *Emitter) Emit(evt domain.Event) {
	e.mu.Lock()
	var targets []*listener
	for _, l := range e.listeners {
		if l.kind == evt.Kind {
			targets = append(targets, l)
		}
	}
	e.queue = append(e.queue, delivery{event: &evt, targets: targets})
	e.mu.Unlock()

	e.metrics.EventEmitted(evt.Kind)
	e.signal()
}

func (e *Emitter) Notify(n domain.Notice) {
	e.mu.Lock()
	e.queue = append(e.queue, delivery{notice: &n})
	e.mu.Unlock()
	e.signal()
}

func (e *Emitter) signal() {
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Emitter) Run() {
	defer close(e.done)
	for {
		select {
		case <-e.wake:
			e.drain()
		case <-e.quit:
			e.drain()
			return
		}
	}
}

func (e *Emitter) drain() {
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		d := e.queue[0]
		e.queue[0] = delivery{}
		e.queue = e.queue[1:]
		onNotice := e.onNotice
		e.mu.Unlock()

		if d.notice != nil {
			if onNotice != nil {
				e.safeCall(func() { onNotice(*d.notice) })
			}
			continue
		}
		for _, l := range d.targets {
			if l.removed.Load() {
				continue
			}
			evt := *d.event
			e.safeCall(func() { l.fn(evt) })
		}
	}
}

func (e *Emitter) safeCall(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error().Interface("panic", r).Msg("Listener panicked")
		}
	}()
	fn()
}

// Stop delivers whatever is queued, then stops the dispatch goroutine.
func (e *Emitter) Stop() {
	e.once.Do(func() {
		close(e.quit)
	})
	<-e.done
}
