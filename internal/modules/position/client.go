package position

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/GroupeBH/zwanga-sub000/internal/modules/tracking"
	"github.com/GroupeBH/zwanga-sub000/internal/types"
)

var ErrClientClosed = errors.New("live client closed")

// Client is the session side of the live channel. It satisfies tracking.Channel.
type Client struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	positions chan tracking.RemotePosition
	errs      chan string
	done      chan struct{}
	closeOnce sync.Once
}

var _ tracking.Channel = (*Client)(nil)

// Dial opens the live channel at url (ws:// or wss://) authenticated with an ID token.
func Dial(ctx context.Context, url, idToken string) (*Client, error) {
	header := http.Header{}
	if idToken != "" {
		header.Set("Authorization", "Bearer "+idToken)
	}
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		return nil, err
	}
	c := &Client{
		ws:        ws,
		positions: make(chan tracking.RemotePosition, 16),
		errs:      make(chan string, 4),
		done:      make(chan struct{}),
	}
	go c.readLoop()
	return c, nil
}

func (c *Client) Join(ctx context.Context, tripID types.ID) error {
	return c.write(ctx, Message{Type: MsgJoin, TripID: tripID})
}

func (c *Client) Leave(ctx context.Context, tripID types.ID) error {
	return c.write(ctx, Message{Type: MsgLeave, TripID: tripID})
}

func (c *Client) UpdatePosition(ctx context.Context, tripID types.ID, p tracking.Position) error {
	heading := p.Heading
	return c.write(ctx, Message{
		Type:    MsgUpdatePosition,
		TripID:  tripID,
		Lat:     p.Point.Lat,
		Lng:     p.Point.Lng,
		Heading: &heading,
	})
}

func (c *Client) RequestPosition(ctx context.Context, tripID types.ID) error {
	return c.write(ctx, Message{Type: MsgRequestPosition, TripID: tripID})
}

func (c *Client) Positions() <-chan tracking.RemotePosition {
	return c.positions
}

// Errors carries server error messages; it is lossy when nobody reads it.
func (c *Client) Errors() <-chan string {
	return c.errs
}

func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}

func (c *Client) write(ctx context.Context, msg Message) error {
	select {
	case <-c.done:
		return ErrClientClosed
	default:
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(writeWait)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteJSON(msg)
}

func (c *Client) readLoop() {
	defer close(c.positions)
	for {
		var msg Message
		if err := c.ws.ReadJSON(&msg); err != nil {
			select {
			case <-c.done:
			default:
				slog.Debug("live client read failed", "error", err)
			}
			return
		}
		switch msg.Type {
		case MsgPositionChanged:
			rp := tracking.RemotePosition{
				TripID:  msg.TripID,
				Point:   types.Point{Lat: msg.Lat, Lng: msg.Lng},
				Heading: msg.Heading,
			}
			if msg.Timestamp != nil {
				rp.At = *msg.Timestamp
			}
			select {
			case c.positions <- rp:
			case <-c.done:
				return
			}
		case MsgError:
			select {
			case c.errs <- msg.Message:
			default:
			}
		}
	}
}
