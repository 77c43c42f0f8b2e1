package fanout

import (
	"context"
	"fmt"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"github.com/opunsoars/pitchly/internal/events"
	"github.com/opunsoars/pitchly/internal/telemetry"
)

const (
	minBackoff = 1 * time.Second
	maxBackoff = 30 * time.Second
)

// Client connects to a fanout server and republishes received events onto
// a local in-process bus.
type Client struct {
	addr  string
	types []events.EventType
	bus   *events.Bus
}

// NewClient subscribes to the given event types, or to everything the
// server streams when types is empty.
func NewClient(addr string, bus *events.Bus, types ...events.EventType) *Client {
	return &Client{
		addr:  addr,
		types: types,
		bus:   bus,
	}
}

// URL is the websocket endpoint the client dials.
func (c *Client) URL() string {
	u := url.URL{Scheme: "ws", Host: c.addr, Path: "/ws"}
	if len(c.types) > 0 {
		names := make([]string, len(c.types))
		for i, t := range c.types {
			names[i] = string(t)
		}
		u.RawQuery = url.Values{"types": {strings.Join(names, ",")}}.Encode()
	}
	return u.String()
}

// ConnectWithRetry connects to the fanout server and reconnects on failure
// with exponential backoff. Blocks until ctx is cancelled.
func (c *Client) ConnectWithRetry(ctx context.Context) {
	attempt := 0
	for {
		if ctx.Err() != nil {
			return
		}

		connStart := time.Now()
		err := c.connect(ctx)
		if ctx.Err() != nil {
			return
		}

		if time.Since(connStart) > time.Minute {
			attempt = 0
		}

		attempt++
		backoff := time.Duration(float64(minBackoff) * math.Pow(2, float64(min(attempt-1, 5))))
		if backoff > maxBackoff {
			backoff = maxBackoff
		}

		if err != nil {
			telemetry.Warnf("fanout: connection lost (attempt %d): %v, retrying in %s", attempt, err, backoff)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
	}
}

func (c *Client) connect(ctx context.Context) error {
	target := c.URL()
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, target, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", target, err)
	}
	defer conn.Close()

	// ReadMessage does not watch ctx; closing the conn unblocks it.
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	telemetry.Infof("fanout: connected to %s", target)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("read: %w", err)
		}

		evt, err := UnmarshalEvent(msg)
		if err != nil {
			telemetry.Warnf("fanout: unmarshal error: %v", err)
			continue
		}

		c.bus.Publish(evt)
	}
}
