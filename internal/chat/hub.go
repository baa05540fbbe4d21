package chat

import (
	"context"
	"log/slog"
)

// Hub owns room membership for every connection on this process. All map access
// happens on the Run goroutine; other goroutines talk to it over channels. Only the
// hub closes a client's send channel.
type Hub struct {
	clients map[*Client]map[string]struct{} // client -> joined rooms
	rooms   map[string]map[*Client]struct{} // conversation id -> clients

	register   chan *Client
	unregister chan *Client
	join       chan joinRequest
	leave      chan roomRequest
	broadcast  chan Broadcast
	direct     chan directMessage

	done    chan struct{}
	metrics *Metrics
	logger  *slog.Logger
}

// Broadcast is one fan-out to a room.
type Broadcast struct {
	Room    string
	Payload []byte

	// ExcludeUser skips every connection of this user.
	ExcludeUser string

	// When Sender is set, the broadcast is delivered only if Sender is in Room.
	Sender *Client
}

type joinRequest struct {
	client *Client
	room   string
	ack    []byte
}

type roomRequest struct {
	client *Client
	room   string
}

type directMessage struct {
	client  *Client
	payload []byte
}

func NewHub(metrics *Metrics, logger *slog.Logger) *Hub {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[*Client]map[string]struct{}),
		rooms:      make(map[string]map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		join:       make(chan joinRequest),
		leave:      make(chan roomRequest),
		broadcast:  make(chan Broadcast),
		direct:     make(chan directMessage),
		done:       make(chan struct{}),
		metrics:    metrics,
		logger:     logger,
	}
}

// Run processes hub operations until ctx is cancelled, then closes every client.
// The channels are unbuffered so operations from one goroutine apply in order.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.remove(client)
			}
			return

		case client := <-h.register:
			h.clients[client] = make(map[string]struct{})
			h.metrics.Connections.Inc()

		case client := <-h.unregister:
			h.remove(client)

		case req := <-h.join:
			joined, ok := h.clients[req.client]
			if !ok {
				continue
			}
			members := h.rooms[req.room]
			if members == nil {
				members = make(map[*Client]struct{})
				h.rooms[req.room] = members
			}
			members[req.client] = struct{}{}
			joined[req.room] = struct{}{}
			if req.ack != nil {
				h.deliver(req.client, req.ack)
			}

		case req := <-h.leave:
			h.leaveRoom(req.client, req.room)

		case msg := <-h.direct:
			if _, ok := h.clients[msg.client]; ok {
				h.deliver(msg.client, msg.payload)
			}

		case b := <-h.broadcast:
			members := h.rooms[b.Room]
			if b.Sender != nil {
				if _, in := members[b.Sender]; !in {
					continue
				}
			}
			for client := range members {
				if b.ExcludeUser != "" && client.UserID() == b.ExcludeUser {
					continue
				}
				h.deliver(client, b.Payload)
			}
		}
	}
}

// deliver enqueues without blocking. A full buffer means the peer is not keeping up;
// the connection is dropped rather than stalling the room.
func (h *Hub) deliver(client *Client, payload []byte) {
	select {
	case client.send <- payload:
	default:
		h.logger.Warn("ws.slow_consumer", "conn_id", client.ID, "user_id", client.UserID())
		h.metrics.SlowConsumers.Inc()
		h.remove(client)
	}
}

func (h *Hub) remove(client *Client) {
	joined, ok := h.clients[client]
	if !ok {
		return
	}
	for room := range joined {
		h.leaveRoom(client, room)
	}
	delete(h.clients, client)
	close(client.send)
	h.metrics.Connections.Dec()
}

func (h *Hub) leaveRoom(client *Client, room string) {
	if members, ok := h.rooms[room]; ok {
		delete(members, client)
		if len(members) == 0 {
			delete(h.rooms, room)
		}
	}
	if joined, ok := h.clients[client]; ok {
		delete(joined, room)
	}
}

// Done is closed once Run has returned and every client send queue is closed.
func (h *Hub) Done() <-chan struct{} { return h.done }

// Register admits client. It reports false once the hub has stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Join adds client to room and then queues ack (if any) to it.
func (h *Hub) Join(client *Client, room string, ack []byte) {
	select {
	case h.join <- joinRequest{client: client, room: room, ack: ack}:
	case <-h.done:
	}
}

func (h *Hub) Leave(client *Client, room string) {
	select {
	case h.leave <- roomRequest{client: client, room: room}:
	case <-h.done:
	}
}

// Send queues a private frame to one connection.
func (h *Hub) Send(client *Client, payload []byte) {
	select {
	case h.direct <- directMessage{client: client, payload: payload}:
	case <-h.done:
	}
}

func (h *Hub) Broadcast(b Broadcast) {
	select {
	case h.broadcast <- b:
	case <-h.done:
	}
}

// Emit encodes event and broadcasts it to room, skipping excludeUser's connections.
// Used by the REST handler so HTTP writes reach connected clients too.
func (h *Hub) Emit(room, event string, data any, excludeUser string) error {
	payload, err := encodeEvent(event, data)
	if err != nil {
		return err
	}
	h.Broadcast(Broadcast{Room: room, Payload: payload, ExcludeUser: excludeUser})
	return nil
}
