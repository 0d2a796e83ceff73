package wsbus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/marcus/arcsync/internal/bus"
	"github.com/marcus/arcsync/internal/models"
)

// DefaultRedialDelay is the pause between reconnect attempts.
const DefaultRedialDelay = 2 * time.Second

// Remote is a bus.Bus backed by a Hub.
type Remote struct {
	base        *url.URL
	redialDelay time.Duration
	ctx         context.Context
	log         *slog.Logger
}

// Dial returns a Remote for the hub at baseURL (http, https, ws or wss).
// No connection is made until a channel is opened; channels stay bound
// to ctx.
func Dial(ctx context.Context, baseURL string) (*Remote, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse bus url: %w", err)
	}
	switch u.Scheme {
	case "ws":
		u.Scheme = "http"
	case "wss":
		u.Scheme = "https"
	case "http", "https":
	default:
		return nil, fmt.Errorf("unsupported bus url scheme %q", u.Scheme)
	}
	return &Remote{
		base:        u,
		redialDelay: DefaultRedialDelay,
		ctx:         ctx,
		log:         slog.Default().With("component", "wsbus"),
	}, nil
}

// SetRedialDelay changes the reconnect pause for channels opened later.
func (r *Remote) SetRedialDelay(d time.Duration) {
	r.redialDelay = d
}

// Open starts a channel that keeps one websocket to the hub's topic.
func (r *Remote) Open(topic string) (bus.Channel, error) {
	if topic == "" {
		return nil, fmt.Errorf("empty topic")
	}
	ctx, cancel := context.WithCancel(r.ctx)
	c := &remoteChannel{
		Dispatcher: bus.NewDispatcher(),
		url:        r.base.String() + "/bus/" + url.PathEscape(topic),
		topic:      topic,
		redial:     r.redialDelay,
		ctx:        ctx,
		cancel:     cancel,
		log:        r.log.With("topic", topic),
		stopped:    make(chan struct{}),
	}
	go c.connectLoop()
	return c, nil
}

type remoteChannel struct {
	*bus.Dispatcher
	url    string
	topic  string
	redial time.Duration
	ctx    context.Context
	cancel context.CancelFunc
	log    *slog.Logger

	mu   sync.Mutex
	conn *websocket.Conn
	out  chan models.BusMessage

	stopped chan struct{}
	once    sync.Once
}

// Connected reports whether the channel currently has a live websocket.
func (c *remoteChannel) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}

func (c *remoteChannel) Send(msg models.BusMessage) {
	c.mu.Lock()
	out := c.out
	c.mu.Unlock()
	if out == nil {
		return // not connected: dropped
	}
	select {
	case out <- msg:
	default:
		// Drop if writer is behind
	}
}

func (c *remoteChannel) Close() error {
	c.once.Do(func() {
		c.cancel()
		<-c.stopped
		c.Dispatcher.Close()
	})
	return nil
}

func (c *remoteChannel) connectLoop() {
	defer close(c.stopped)
	for {
		conn, _, err := websocket.Dial(c.ctx, c.url, nil)
		if err == nil {
			c.serve(conn)
		} else if c.ctx.Err() == nil {
			c.log.Debug("dial bus hub", "err", err)
		}

		select {
		case <-c.ctx.Done():
			return
		case <-time.After(c.redial):
		}
	}
}

// serve runs one connection until it fails or the channel closes.
func (c *remoteChannel) serve(conn *websocket.Conn) {
	defer conn.CloseNow()

	out := make(chan models.BusMessage, 64)
	c.mu.Lock()
	c.conn = conn
	c.out = out
	c.mu.Unlock()
	c.log.Debug("connected to bus hub")

	defer func() {
		c.mu.Lock()
		c.conn = nil
		c.out = nil
		c.mu.Unlock()
	}()

	ctx, cancel := context.WithCancel(c.ctx)
	defer cancel()

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg := <-out:
				wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
				err := wsjson.Write(wctx, conn, msg)
				wcancel()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil && websocket.CloseStatus(err) == -1 {
				c.log.Debug("bus read", "err", err)
			}
			return
		}
		if typ != websocket.MessageText {
			continue
		}
		var msg models.BusMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("drop malformed frame", "err", err)
			continue
		}
		c.Deliver(msg)
	}
}
