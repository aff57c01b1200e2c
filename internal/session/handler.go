package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/logging"
	"collabcanvas/internal/wire"
)

var (
	ErrNotActive        = errors.New("connection is not active")
	ErrUnknownEvent     = errors.New("unknown event type")
	ErrMalformedPayload = errors.New("malformed payload")
)

type connState int

const (
	connecting connState = iota
	active
)

// route handles one inbound event kind for an active participant.
type route func(id string, payload json.RawMessage) ([]Effect, error)

// Handler decides, for every inbound event, which store call to make and
// who hears about the result. It holds only per-connection metadata; all
// shared state lives in the store.
//
// Handler is not safe for concurrent use. The hub calls it from its single
// event loop.
type Handler struct {
	store  *canvas.Store
	conns  map[string]connState
	routes map[wire.Type]route
	rec    Recorder
	log    logging.Logger
	now    func() time.Time
}

type HandlerOption func(*Handler)

func WithRecorder(r Recorder) HandlerOption {
	return func(h *Handler) { h.rec = r }
}

func WithLogger(l logging.Logger) HandlerOption {
	return func(h *Handler) { h.log = l }
}

func NewHandler(store *canvas.Store, opts ...HandlerOption) *Handler {
	h := &Handler{
		store: store,
		conns: make(map[string]connState),
		rec:   Recorders(nil),
		log:   logging.Discard(),
		now:   time.Now,
	}
	h.routes = map[wire.Type]route{
		wire.TypeDraw:       h.draw,
		wire.TypeCursorMove: h.cursorMove,
		wire.TypeUndo:       h.undo,
		wire.TypeRedo:       h.redo,
		wire.TypeClear:      h.clear,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Join activates a connection: the participant gets the full snapshot and
// everyone else hears that it joined.
func (h *Handler) Join(id, displayName string) ([]Effect, error) {
	if _, exists := h.conns[id]; exists {
		return nil, fmt.Errorf("join %q: %w", id, canvas.ErrDuplicateParticipant)
	}
	h.conns[id] = connecting
	if displayName == "" {
		displayName = defaultName(id)
	}
	p, err := h.store.AddParticipant(id, displayName)
	if err != nil {
		delete(h.conns, id)
		return nil, fmt.Errorf("join: %w", err)
	}
	h.conns[id] = active
	h.record(ChangeJoin, id, nil)
	h.log.Info("participant joined", "id", id, "name", p.DisplayName, "color", p.Color)

	snap := h.store.Snapshot()
	return []Effect{
		unicast(id, wire.TypeInitState, wire.InitState{
			History:      snap.History,
			Participants: snap.Participants,
			SelfID:       id,
			SelfColor:    p.Color,
		}),
		others(id, wire.TypeUserJoined, wire.UserJoined{
			ID:          id,
			DisplayName: p.DisplayName,
			Color:       p.Color,
		}),
	}, nil
}

// Leave tears down an active connection. Only the first call for a given
// connection produces effects.
func (h *Handler) Leave(id string) []Effect {
	if _, exists := h.conns[id]; !exists {
		return nil
	}
	delete(h.conns, id)
	h.store.RemoveParticipant(id)
	h.record(ChangeLeave, id, nil)
	h.log.Info("participant left", "id", id)
	return []Effect{all(wire.TypeUserLeft, wire.UserLeft{ID: id})}
}

// Dispatch applies one inbound event from connection id.
func (h *Handler) Dispatch(id string, in wire.Inbound) ([]Effect, error) {
	if h.conns[id] != active {
		return nil, fmt.Errorf("%s from %q: %w", in.Type, id, ErrNotActive)
	}
	r, ok := h.routes[in.Type]
	if !ok {
		return nil, fmt.Errorf("%q: %w", in.Type, ErrUnknownEvent)
	}
	return r(id, in.Data)
}

// Active reports whether id has joined and not yet left.
func (h *Handler) Active(id string) bool {
	return h.conns[id] == active
}

// Snapshot is a read-only view of the store for out-of-band readers.
func (h *Handler) Snapshot() canvas.Snapshot {
	return h.store.Snapshot()
}

func (h *Handler) Stats() canvas.Stats {
	return h.store.Stats()
}

func (h *Handler) draw(id string, payload json.RawMessage) ([]Effect, error) {
	var d wire.Draw
	if err := decode(payload, &d); err != nil {
		return nil, err
	}
	op, ok := h.store.AppendOperation(canvas.Draft{
		UserID: id,
		Kind:   canvas.KindStroke,
		Points: d.Points,
		Color:  d.Color,
		Size:   d.Size,
	})
	if !ok {
		h.log.Debug("dropped degenerate stroke", "id", id, "points", len(d.Points))
		return nil, nil
	}
	h.record(ChangeAppend, id, &op)
	return []Effect{others(id, wire.TypeNewStroke, op)}, nil
}

func (h *Handler) clear(id string, payload json.RawMessage) ([]Effect, error) {
	op, _ := h.store.AppendOperation(canvas.Draft{UserID: id, Kind: canvas.KindClear})
	h.record(ChangeAppend, id, &op)
	return []Effect{others(id, wire.TypeNewStroke, op)}, nil
}

func (h *Handler) cursorMove(id string, payload json.RawMessage) ([]Effect, error) {
	var c wire.CursorMove
	if err := decode(payload, &c); err != nil {
		return nil, err
	}
	if !h.store.UpdateCursor(id, c.X, c.Y) {
		return nil, nil
	}
	return []Effect{others(id, wire.TypeCursorUpdate, wire.CursorUpdate{ID: id, X: c.X, Y: c.Y})}, nil
}

func (h *Handler) undo(id string, _ json.RawMessage) ([]Effect, error) {
	op, ok := h.store.Undo()
	if !ok {
		return nil, nil
	}
	h.record(ChangeUndo, id, &op)
	return []Effect{all(wire.TypeHistoryUpdate, h.store.History())}, nil
}

func (h *Handler) redo(id string, _ json.RawMessage) ([]Effect, error) {
	op, ok := h.store.Redo()
	if !ok {
		return nil, nil
	}
	h.record(ChangeRedo, id, &op)
	return []Effect{all(wire.TypeHistoryUpdate, h.store.History())}, nil
}

func (h *Handler) record(kind ChangeKind, id string, op *canvas.Operation) {
	h.rec.Record(Change{
		Kind:          kind,
		ParticipantID: id,
		Operation:     op,
		Stats:         h.store.Stats(),
		At:            h.now(),
	})
}

func decode(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	return nil
}

func defaultName(id string) string {
	if len(id) > 4 {
		id = id[:4]
	}
	return "User " + id
}
