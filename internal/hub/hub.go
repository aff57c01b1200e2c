package hub

import (
	"context"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/puzpuzpuz/xsync/v3"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/logging"
	"collabcanvas/internal/session"
	"collabcanvas/internal/wire"
)

var ErrClosed = errors.New("hub closed")

type eventKind int

const (
	evRegister eventKind = iota
	evMessage
	evUnregister
)

type event struct {
	kind   eventKind
	client *Client
	raw    []byte
}

type query struct {
	reply chan<- canvas.Snapshot
}

// Hub owns the event loop. Every join, frame and disconnect from every
// connection is queued on one channel and applied in arrival order, so the
// session handler and its store only ever run on the loop goroutine.
type Hub struct {
	handler *session.Handler
	clients *xsync.MapOf[string, *Client]
	events  chan event
	queries chan query
	done    chan struct{}

	upgrader   websocket.Upgrader
	sendBuffer int
	log        logging.Logger
	onDrop     func(id string)
}

type Option func(*Hub)

func WithLogger(l logging.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithSendBuffer sets how many outbound frames may queue per connection
// before the connection is considered stuck and dropped.
func WithSendBuffer(n int) Option {
	return func(h *Hub) {
		if n > 0 {
			h.sendBuffer = n
		}
	}
}

// WithDropHook is called on the loop whenever a slow connection is dropped.
func WithDropHook(fn func(id string)) Option {
	return func(h *Hub) { h.onDrop = fn }
}

func New(handler *session.Handler, opts ...Option) *Hub {
	h := &Hub{
		handler: handler,
		clients: xsync.NewMapOf[string, *Client](),
		events:  make(chan event, 256),
		queries: make(chan query),
		done:    make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sendBuffer: 256,
		log:        logging.Discard(),
		onDrop:     func(string) {},
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes events until ctx is cancelled, then closes every connection.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.clients.Range(func(id string, c *Client) bool {
				h.clients.Delete(id)
				close(c.send)
				return true
			})
			h.log.Info("hub stopped")
			return
		case ev := <-h.events:
			switch ev.kind {
			case evRegister:
				h.register(ev.client)
			case evMessage:
				h.message(ev.client, ev.raw)
			case evUnregister:
				h.unregister(ev.client)
			}
		case q := <-h.queries:
			q.reply <- h.handler.Snapshot()
		}
	}
}

func (h *Hub) register(c *Client) {
	effects, err := h.handler.Join(c.id, c.name)
	if err != nil {
		h.log.Error("join rejected", "id", c.id, "err", err)
		close(c.send)
		return
	}
	h.clients.Store(c.id, c)
	h.log.Info("client registered", "id", c.id, "clients", h.clients.Size())
	h.deliver(effects)
}

func (h *Hub) unregister(c *Client) {
	cur, ok := h.clients.Load(c.id)
	if !ok || cur != c {
		// already dropped, or never joined
		return
	}
	h.clients.Delete(c.id)
	close(c.send)
	h.log.Info("client unregistered", "id", c.id, "clients", h.clients.Size())
	h.deliver(h.handler.Leave(c.id))
}

func (h *Hub) message(c *Client, raw []byte) {
	in, err := wire.Decode(raw)
	if err == nil {
		var effects []session.Effect
		effects, err = h.handler.Dispatch(c.id, in)
		if err == nil {
			h.deliver(effects)
			return
		}
	}
	if errors.Is(err, session.ErrNotActive) {
		h.log.Debug("frame from inactive connection", "id", c.id)
		return
	}
	h.log.Warn("rejected frame", "id", c.id, "err", err)
	h.deliver([]session.Effect{{
		Kind:    session.Unicast,
		Target:  c.id,
		Message: wire.Outbound{Type: wire.TypeError, Data: wire.Error{Message: err.Error()}},
	}})
}

// deliver hands each effect's frame to its audience without blocking. A
// connection whose buffer is full is dropped and its leave notice is
// delivered in turn.
func (h *Hub) deliver(effects []session.Effect) {
	queue := append([]session.Effect(nil), effects...)
	for len(queue) > 0 {
		e := queue[0]
		queue = queue[1:]
		if e.Kind == session.None {
			continue
		}
		data, err := wire.Encode(e.Message)
		if err != nil {
			h.log.Error("encode failed", "type", e.Message.Type, "err", err)
			continue
		}

		var stuck []*Client
		if e.Kind == session.Unicast {
			if c, ok := h.clients.Load(e.Target); ok && !c.enqueue(data) {
				stuck = append(stuck, c)
			}
		} else {
			h.clients.Range(func(id string, c *Client) bool {
				if e.Reaches(id) && !c.enqueue(data) {
					stuck = append(stuck, c)
				}
				return true
			})
		}
		for _, c := range stuck {
			queue = append(queue, h.drop(c)...)
		}
	}
}

func (h *Hub) drop(c *Client) []session.Effect {
	if cur, ok := h.clients.Load(c.id); !ok || cur != c {
		return nil
	}
	h.clients.Delete(c.id)
	close(c.send)
	h.log.Warn("dropping slow client", "id", c.id)
	h.onDrop(c.id)
	return h.handler.Leave(c.id)
}

// Snapshot returns the current canvas state as seen by the event loop.
func (h *Hub) Snapshot(ctx context.Context) (canvas.Snapshot, error) {
	reply := make(chan canvas.Snapshot, 1)
	select {
	case h.queries <- query{reply: reply}:
	case <-h.done:
		return canvas.Snapshot{}, ErrClosed
	case <-ctx.Done():
		return canvas.Snapshot{}, ctx.Err()
	}
	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return canvas.Snapshot{}, ctx.Err()
	}
}

// Connected is the number of active connections.
func (h *Hub) Connected() int {
	return h.clients.Size()
}

// ServeWS upgrades the request and attaches the connection to the hub. The
// display name comes from the "name" query parameter.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", "remote", r.RemoteAddr, "err", err)
		return
	}
	c := &Client{
		id:   uuid.NewString(),
		name: r.URL.Query().Get("name"),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		hub:  h,
	}
	if !h.enqueue(event{kind: evRegister, client: c}) {
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

func (h *Hub) enqueue(ev event) bool {
	select {
	case h.events <- ev:
		return true
	case <-h.done:
		return false
	}
}
