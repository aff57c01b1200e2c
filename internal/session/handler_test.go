package session

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/wire"
)

func newTestHandler(opts ...HandlerOption) *Handler {
	n := 0
	store := canvas.NewStore(
		canvas.WithRand(rand.New(rand.NewSource(7))),
		canvas.WithClock(func() time.Time { return time.UnixMilli(42) }),
		canvas.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("op-%d", n)
		}),
	)
	return NewHandler(store, opts...)
}

func frame(t *testing.T, typ wire.Type, payload any) wire.Inbound {
	t.Helper()
	in := wire.Inbound{Type: typ}
	if payload != nil {
		data, err := json.Marshal(payload)
		require.NoError(t, err)
		in.Data = data
	}
	return in
}

func drawFrame(t *testing.T, color string, size float64, pts ...canvas.Point) wire.Inbound {
	return frame(t, wire.TypeDraw, wire.Draw{Points: pts, Color: color, Size: size})
}

// inbox collects, per connection, what each effect would deliver.
func inbox(effects []Effect, conns ...string) map[string][]wire.Outbound {
	out := make(map[string][]wire.Outbound)
	for _, e := range effects {
		for _, c := range conns {
			if e.Reaches(c) {
				out[c] = append(out[c], e.Message)
			}
		}
	}
	return out
}

func mustJoin(t *testing.T, h *Handler, id string) []Effect {
	t.Helper()
	effects, err := h.Join(id, "")
	require.NoError(t, err)
	return effects
}

func TestJoin(t *testing.T) {
	t.Run("snapshot to joiner, notice to others", func(t *testing.T) {
		h := newTestHandler()
		mustJoin(t, h, "p1")
		effects := mustJoin(t, h, "p2")

		got := inbox(effects, "p1", "p2")
		require.Len(t, got["p2"], 1)
		assert.Equal(t, wire.TypeInitState, got["p2"][0].Type)
		init := got["p2"][0].Data.(wire.InitState)
		assert.Equal(t, "p2", init.SelfID)
		assert.NotEmpty(t, init.SelfColor)
		assert.Len(t, init.Participants, 2)

		require.Len(t, got["p1"], 1)
		assert.Equal(t, wire.TypeUserJoined, got["p1"][0].Type)
		joined := got["p1"][0].Data.(wire.UserJoined)
		assert.Equal(t, "p2", joined.ID)
		assert.Equal(t, init.SelfColor, joined.Color)
		assert.Equal(t, "User p2", joined.DisplayName)
	})

	t.Run("explicit display name", func(t *testing.T) {
		h := newTestHandler()
		effects, err := h.Join("0123456789", "Ann")
		require.NoError(t, err)
		assert.Equal(t, "Ann", effects[1].Message.Data.(wire.UserJoined).DisplayName)

		effects, err = h.Join("abcdefgh", "")
		require.NoError(t, err)
		assert.Equal(t, "User abcd", effects[1].Message.Data.(wire.UserJoined).DisplayName)
	})

	t.Run("duplicate join is a fault", func(t *testing.T) {
		h := newTestHandler()
		mustJoin(t, h, "p1")
		_, err := h.Join("p1", "")
		assert.ErrorIs(t, err, canvas.ErrDuplicateParticipant)
		assert.True(t, h.Active("p1"))
		assert.Len(t, h.Snapshot().Participants, 1)
	})

	t.Run("late joiner gets history in order without replays", func(t *testing.T) {
		h := newTestHandler()
		mustJoin(t, h, "p1")
		var want []canvas.Operation
		for i := 0; i < 3; i++ {
			effects, err := h.Dispatch("p1", drawFrame(t, "#000", 1, canvas.Point{X: 0, Y: 0}, canvas.Point{X: float64(i), Y: 1}))
			require.NoError(t, err)
			want = append(want, effects[0].Message.Data.(canvas.Operation))
		}

		effects := mustJoin(t, h, "p2")
		got := inbox(effects, "p2")
		require.Len(t, got["p2"], 1, "only the snapshot, no new-stroke replays")
		assert.Equal(t, want, got["p2"][0].Data.(wire.InitState).History)
	})
}

func TestDrawUndoRedoScenario(t *testing.T) {
	h := newTestHandler()
	mustJoin(t, h, "p1")
	mustJoin(t, h, "p2")
	mustJoin(t, h, "p3")

	pts := []canvas.Point{{X: 1, Y: 1}, {X: 2, Y: 2}, {X: 3, Y: 3}}
	effects, err := h.Dispatch("p1", drawFrame(t, "#ff0000", 5, pts...))
	require.NoError(t, err)

	got := inbox(effects, "p1", "p2", "p3")
	assert.Empty(t, got["p1"], "sender already rendered its stroke")
	for _, c := range []string{"p2", "p3"} {
		require.Len(t, got[c], 1)
		assert.Equal(t, wire.TypeNewStroke, got[c][0].Type)
		op := got[c][0].Data.(canvas.Operation)
		assert.Equal(t, pts, op.Points)
		assert.Equal(t, "#ff0000", op.Color)
		assert.Equal(t, 5.0, op.Size)
		assert.Equal(t, "p1", op.UserID)
		assert.Equal(t, canvas.KindStroke, op.Kind)
	}
	s1 := got["p2"][0].Data.(canvas.Operation)

	effects, err = h.Dispatch("p1", frame(t, wire.TypeUndo, nil))
	require.NoError(t, err)
	got = inbox(effects, "p1", "p2", "p3")
	for _, c := range []string{"p1", "p2", "p3"} {
		require.Len(t, got[c], 1)
		assert.Equal(t, wire.TypeHistoryUpdate, got[c][0].Type)
		assert.Empty(t, got[c][0].Data.([]canvas.Operation))
	}

	effects, err = h.Dispatch("p1", frame(t, wire.TypeRedo, nil))
	require.NoError(t, err)
	got = inbox(effects, "p1", "p2", "p3")
	for _, c := range []string{"p1", "p2", "p3"} {
		require.Len(t, got[c], 1)
		assert.Equal(t, wire.TypeHistoryUpdate, got[c][0].Type)
		assert.Equal(t, []canvas.Operation{s1}, got[c][0].Data.([]canvas.Operation))
	}
}

func TestDegenerateDraw(t *testing.T) {
	h := newTestHandler()
	mustJoin(t, h, "p1")
	mustJoin(t, h, "p2")

	for _, in := range []wire.Inbound{
		drawFrame(t, "#000", 1),
		drawFrame(t, "#000", 1, canvas.Point{X: 1, Y: 1}),
		frame(t, wire.TypeDraw, nil),
	} {
		effects, err := h.Dispatch("p1", in)
		assert.NoError(t, err)
		assert.Empty(t, effects)
	}
	assert.Equal(t, 0, h.Stats().History)
}

func TestUndoRedoOnEmpty(t *testing.T) {
	h := newTestHandler()
	mustJoin(t, h, "p1")

	effects, err := h.Dispatch("p1", frame(t, wire.TypeUndo, nil))
	assert.NoError(t, err)
	assert.Empty(t, effects)

	effects, err = h.Dispatch("p1", frame(t, wire.TypeRedo, struct{}{}))
	assert.NoError(t, err)
	assert.Empty(t, effects)
	assert.Equal(t, canvas.Stats{Participants: 1}, h.Stats())
}

func TestCursorMove(t *testing.T) {
	h := newTestHandler()
	mustJoin(t, h, "p1")
	mustJoin(t, h, "p2")

	effects, err := h.Dispatch("p1", frame(t, wire.TypeCursorMove, wire.CursorMove{X: 10, Y: 20}))
	require.NoError(t, err)
	got := inbox(effects, "p1", "p2")
	assert.Empty(t, got["p1"])
	require.Len(t, got["p2"], 1)
	assert.Equal(t, wire.CursorUpdate{ID: "p1", X: 10, Y: 20}, got["p2"][0].Data)

	snap := h.Snapshot()
	require.NotNil(t, snap.Participants[0].Cursor)
	assert.Equal(t, canvas.Point{X: 10, Y: 20}, *snap.Participants[0].Cursor)
}

func TestLeave(t *testing.T) {
	h := newTestHandler()
	mustJoin(t, h, "p1")
	mustJoin(t, h, "p2")
	mustJoin(t, h, "p3")

	effects := h.Leave("p1")
	got := inbox(effects, "p2", "p3")
	for _, c := range []string{"p2", "p3"} {
		require.Len(t, got[c], 1)
		assert.Equal(t, wire.TypeUserLeft, got[c][0].Type)
		assert.Equal(t, wire.UserLeft{ID: "p1"}, got[c][0].Data)
	}

	assert.Empty(t, h.Leave("p1"), "leave runs once")
	assert.Empty(t, h.Leave("never-joined"))

	for _, p := range h.Snapshot().Participants {
		assert.NotEqual(t, "p1", p.ID)
	}
	assert.False(t, h.Active("p1"))

	_, err := h.Dispatch("p1", frame(t, wire.TypeUndo, nil))
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestDispatchErrors(t *testing.T) {
	h := newTestHandler()
	mustJoin(t, h, "p1")

	_, err := h.Dispatch("p1", frame(t, "paint", nil))
	assert.ErrorIs(t, err, ErrUnknownEvent)

	_, err = h.Dispatch("p1", wire.Inbound{Type: wire.TypeDraw, Data: json.RawMessage(`{"points":"nope"}`)})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = h.Dispatch("p1", wire.Inbound{Type: wire.TypeCursorMove, Data: json.RawMessage(`[1,2]`)})
	assert.ErrorIs(t, err, ErrMalformedPayload)

	_, err = h.Dispatch("stranger", frame(t, wire.TypeUndo, nil))
	assert.ErrorIs(t, err, ErrNotActive)
}

func TestDrawInvalidatesRedo(t *testing.T) {
	h := newTestHandler()
	mustJoin(t, h, "p1")
	line := []canvas.Point{{X: 0, Y: 0}, {X: 1, Y: 1}}

	for i := 0; i < 3; i++ {
		_, err := h.Dispatch("p1", drawFrame(t, "#000", 1, line...))
		require.NoError(t, err)
	}
	_, _ = h.Dispatch("p1", frame(t, wire.TypeUndo, nil))
	_, _ = h.Dispatch("p1", frame(t, wire.TypeUndo, nil))
	require.Equal(t, 2, h.Stats().Redo)

	_, err := h.Dispatch("p1", drawFrame(t, "#000", 1, line...))
	require.NoError(t, err)
	assert.Equal(t, 0, h.Stats().Redo)

	effects, err := h.Dispatch("p1", frame(t, wire.TypeRedo, nil))
	assert.NoError(t, err)
	assert.Empty(t, effects)
}

func TestClear(t *testing.T) {
	h := newTestHandler()
	mustJoin(t, h, "p1")
	mustJoin(t, h, "p2")
	_, _ = h.Dispatch("p1", drawFrame(t, "#000", 1, canvas.Point{}, canvas.Point{X: 1, Y: 1}))

	effects, err := h.Dispatch("p2", frame(t, wire.TypeClear, nil))
	require.NoError(t, err)
	got := inbox(effects, "p1", "p2")
	assert.Empty(t, got["p2"])
	require.Len(t, got["p1"], 1)
	op := got["p1"][0].Data.(canvas.Operation)
	assert.Equal(t, canvas.KindClear, op.Kind)
	assert.Equal(t, "p2", op.UserID)

	history := h.Snapshot().History
	assert.Len(t, history, 2)
	assert.Empty(t, canvas.Visible(history))

	// clear is undoable like any other operation
	effects, err = h.Dispatch("p1", frame(t, wire.TypeUndo, nil))
	require.NoError(t, err)
	assert.Len(t, canvas.Visible(effects[0].Message.Data.([]canvas.Operation)), 1)
}

func TestRecorder(t *testing.T) {
	var changes []Change
	h := newTestHandler(WithRecorder(RecorderFunc(func(c Change) { changes = append(changes, c) })))

	mustJoin(t, h, "p1")
	_, _ = h.Dispatch("p1", drawFrame(t, "#000", 1, canvas.Point{}, canvas.Point{X: 1, Y: 1}))
	_, _ = h.Dispatch("p1", drawFrame(t, "#000", 1)) // dropped
	_, _ = h.Dispatch("p1", frame(t, wire.TypeUndo, nil))
	_, _ = h.Dispatch("p1", frame(t, wire.TypeUndo, nil)) // nothing to undo
	_, _ = h.Dispatch("p1", frame(t, wire.TypeRedo, nil))
	_, _ = h.Dispatch("p1", frame(t, wire.TypeCursorMove, wire.CursorMove{X: 1, Y: 1}))
	h.Leave("p1")

	var kinds []ChangeKind
	for _, c := range changes {
		kinds = append(kinds, c.Kind)
		assert.Equal(t, "p1", c.ParticipantID)
	}
	assert.Equal(t, []ChangeKind{ChangeJoin, ChangeAppend, ChangeUndo, ChangeRedo, ChangeLeave}, kinds)
	require.NotNil(t, changes[1].Operation)
	assert.Equal(t, 1, changes[1].Stats.History)
	assert.Equal(t, 1, changes[2].Stats.Redo)
}

func TestEffectReaches(t *testing.T) {
	tests := []struct {
		effect Effect
		id     string
		want   bool
	}{
		{Effect{Kind: Unicast, Target: "a"}, "a", true},
		{Effect{Kind: Unicast, Target: "a"}, "b", false},
		{Effect{Kind: BroadcastOthers, Target: "a"}, "a", false},
		{Effect{Kind: BroadcastOthers, Target: "a"}, "b", true},
		{Effect{Kind: BroadcastAll}, "a", true},
		{Effect{Kind: None}, "a", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.effect.Reaches(tt.id), "%s -> %s", tt.effect.Kind, tt.id)
	}
}
