// README: Websocket hub: one room per trip, fed by the store subscription.
package position

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GroupeBH/zwanga-sub000/internal/observability"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 32
)

type Hub struct {
	svc *Service

	mu    sync.Mutex
	rooms map[types.ID]*room
}

type room struct {
	clients map[*client]bool
	sub     Subscription
}

type client struct {
	ws     *websocket.Conn
	userID types.ID
	tripID types.ID
	role   Role
	send   chan Message
	done   chan struct{}
	once   sync.Once
}

func NewHub(svc *Service) *Hub {
	return &Hub{svc: svc, rooms: make(map[types.ID]*room)}
}

// Serve runs one websocket connection opened on tripID by userID until the
// peer disconnects or ctx is done.
func (h *Hub) Serve(ctx context.Context, ws *websocket.Conn, tripID, userID types.ID) {
	c := &client{
		ws:     ws,
		userID: userID,
		tripID: tripID,
		send:   make(chan Message, sendBuffer),
		done:   make(chan struct{}),
	}
	observability.LiveConnections.Inc()
	defer observability.LiveConnections.Dec()

	go c.writeLoop()
	defer func() {
		h.leave(c)
		c.close()
		_ = ws.Close()
	}()

	go func() {
		select {
		case <-ctx.Done():
			c.close()
			_ = ws.Close()
		case <-c.done:
		}
	}()

	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		return ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var msg Message
		if err := ws.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.DebugContext(ctx, "live connection closed", "trip_id", tripID, "user_id", userID, "error", err)
			}
			return
		}
		h.handle(ctx, c, msg)
	}
}

func (h *Hub) handle(ctx context.Context, c *client, msg Message) {
	if msg.TripID != "" && msg.TripID != c.tripID {
		c.push(errorMessage("message trip_id does not match the connection"))
		return
	}

	switch msg.Type {
	case MsgJoin:
		role, err := h.svc.Authorize(ctx, c.tripID, c.userID)
		if err != nil {
			c.push(errorMessage(publicError(err)))
			return
		}
		c.role = role
		if err := h.join(ctx, c); err != nil {
			slog.ErrorContext(ctx, "join live room failed", "trip_id", c.tripID, "error", err)
			c.push(errorMessage("internal error"))
		}
	case MsgLeave:
		h.leave(c)
	case MsgUpdatePosition:
		_, err := h.svc.Update(ctx, Update{
			TripID:   c.tripID,
			DriverID: c.userID,
			Position: types.Point{Lat: msg.Lat, Lng: msg.Lng},
			Heading:  msg.Heading,
		})
		if err != nil {
			c.push(errorMessage(publicError(err)))
		}
	case MsgRequestPosition:
		if c.role == "" {
			c.push(errorMessage("join the trip first"))
			return
		}
		l, err := h.svc.Current(ctx, c.tripID)
		if errors.Is(err, ErrNoPosition) {
			return
		}
		if err != nil {
			c.push(errorMessage(publicError(err)))
			return
		}
		c.push(l.Message())
	default:
		c.push(errorMessage("unknown message type"))
	}
}

func (h *Hub) join(ctx context.Context, c *client) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[c.tripID]
	if !ok {
		sub, err := h.svc.Subscribe(context.WithoutCancel(ctx), c.tripID)
		if err != nil {
			return err
		}
		r = &room{clients: make(map[*client]bool), sub: sub}
		h.rooms[c.tripID] = r
		go h.fanOut(c.tripID, r)
	}
	r.clients[c] = true
	return nil
}

// leave removes c from its room and releases the subscription when the room empties.
func (h *Hub) leave(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[c.tripID]
	if !ok || !r.clients[c] {
		return
	}
	delete(r.clients, c)
	if len(r.clients) == 0 {
		delete(h.rooms, c.tripID)
		_ = r.sub.Close()
	}
}

func (h *Hub) fanOut(tripID types.ID, r *room) {
	for l := range r.sub.Positions() {
		msg := l.Message()
		h.mu.Lock()
		for c := range r.clients {
			// The driver is the source of the update.
			if c.userID == l.DriverID {
				continue
			}
			c.push(msg)
		}
		h.mu.Unlock()
	}
}

// Rooms reports the number of trips with at least one joined client.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// push never blocks; a slow client loses messages rather than stalling the room.
func (c *client) push(msg Message) {
	select {
	case <-c.done:
	case c.send <- msg:
	default:
		slog.Debug("drop live message for slow client", "trip_id", c.tripID, "user_id", c.userID, "type", msg.Type)
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.done) })
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteJSON(msg); err != nil {
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				c.close()
				return
			}
		}
	}
}

func errorMessage(text string) Message {
	return Message{Type: MsgError, Message: text}
}

func publicError(err error) string {
	switch {
	case errors.Is(err, ErrTripNotFound),
		errors.Is(err, ErrNotParticipant),
		errors.Is(err, ErrNotDriver),
		errors.Is(err, ErrTripNotLive),
		errors.Is(err, ErrValidation):
		return err.Error()
	default:
		return "internal error"
	}
}
