package ws

import (
	"sync"

	"github.com/Wyydra/callbridge/internal/core/domain"
	"github.com/rs/zerolog/log"
)

// Hub fans bridge notices out to every connected client.
type Hub struct {
	mu         sync.Mutex
	clients    map[Client]bool
	broadcast  chan domain.Notice
	register   chan Client
	unregister chan Client
	quit       chan struct{}
	done       chan struct{}
	once       sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[Client]bool),
		broadcast:  make(chan domain.Notice, 64),
		register:   make(chan Client),
		unregister: make(chan Client),
		quit:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// BroadcastNotice has the signature of the bridge's notice handler.
func (h *Hub) BroadcastNotice(n domain.Notice) {
	select {
	case h.broadcast <- n:
	default:
		log.Warn().Str("notice", string(n.Kind)).Msg("Broadcast channel full, dropping notice")
	}
}

func (h *Hub) Run() {
	defer close(h.done)
	for {
		select {
		case <-h.quit:
			h.mu.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			log.Info().Str("client_id", client.ID()).Msg("Client registered")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
				log.Info().Str("client_id", client.ID()).Msg("Client unregistered")
			}
			h.mu.Unlock()

		case notice := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				if err := client.SendNotice(notice); err != nil {
					log.Error().Err(err).Str("client_id", client.ID()).Msg("Error sending notice")
					client.Close()
					delete(h.clients, client)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) Register(c Client) {
	select {
	case h.register <- c:
	case <-h.quit:
		c.Close()
	}
}

func (h *Hub) Unregister(c Client) {
	select {
	case h.unregister <- c:
	case <-h.quit:
	}
}

func (h *Hub) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) Stop() {
	h.once.Do(func() {
		close(h.quit)
	})
	<-h.done
}
