package ws

import (
	"encoding/json"
	"log"
	"sync"
)

// Event is the wire shape of a kitchen display push.
type Event struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// channelMessage routes one marshaled message to a channel's room.
type channelMessage struct {
	Channel string
	Message []byte
}

// Hub fans kitchen display events out to the screens watching each routing
// channel. Rooms are keyed by channel name (BAR, KITCHEN, ...).
type Hub struct {
	rooms map[string]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan channelMessage

	mu sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		rooms:      make(map[string]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan channelMessage, 256),
	}
}

// Run drives the hub's event loop. Call as a goroutine: go hub.Run()
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			if h.rooms[client.channel] == nil {
				h.rooms[client.channel] = make(map[*Client]bool)
			}
			h.rooms[client.channel][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			if clients, ok := h.rooms[client.channel]; ok {
				if _, exists := clients[client]; exists {
					delete(clients, client)
					close(client.send)
					if len(clients) == 0 {
						delete(h.rooms, client.channel)
					}
				}
			}
			h.mu.Unlock()

		case msg := <-h.broadcast:
			h.mu.Lock()
			for client := range h.rooms[msg.Channel] {
				select {
				case client.send <- msg.Message:
				default:
					// Slow consumer, drop the connection.
					close(client.send)
					delete(h.rooms[msg.Channel], client)
					if len(h.rooms[msg.Channel]) == 0 {
						delete(h.rooms, msg.Channel)
					}
				}
			}
			h.mu.Unlock()
		}
	}
}

// Broadcast sends an already marshaled message to every client watching the
// channel. Implements the ticket service's Notifier.
func (h *Hub) Broadcast(channel string, message []byte) {
	h.broadcast <- channelMessage{Channel: channel, Message: message}
}

// BroadcastEvent marshals a typed event and broadcasts it.
func (h *Hub) BroadcastEvent(channel string, eventType string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.Printf("ERROR: marshal %s payload: %v", eventType, err)
		return
	}
	message, err := json.Marshal(Event{Type: eventType, Payload: raw})
	if err != nil {
		log.Printf("ERROR: marshal %s event: %v", eventType, err)
		return
	}
	h.Broadcast(channel, message)
}
