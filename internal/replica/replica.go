// Package replica keeps a participant-side copy of the canvas by applying
// the frames the server sends, the same way a rendering client does.
package replica

import (
	"encoding/json"
	"errors"
	"fmt"

	"collabcanvas/internal/canvas"
	"collabcanvas/internal/wire"
)

var ErrServer = errors.New("server reported an error")

// State is what a participant knows about the board.
type State struct {
	SelfID       string               `json:"selfId"`
	SelfColor    string               `json:"selfColor"`
	History      []canvas.Operation   `json:"history"`
	Participants []canvas.Participant `json:"participants"`
}

type Replica struct {
	state State
	local int
}

func New() *Replica {
	return &Replica{}
}

// Restore seeds the replica, e.g. from a saved state.
func (r *Replica) Restore(s State) {
	r.state = s
}

// State returns a copy of the current state.
func (r *Replica) State() State {
	s := r.state
	s.History = append([]canvas.Operation(nil), r.state.History...)
	s.Participants = append([]canvas.Participant(nil), r.state.Participants...)
	return s
}

// Visible is what would be on screen right now.
func (r *Replica) Visible() []canvas.Operation {
	return canvas.Visible(r.state.History)
}

// Apply folds one outbound frame into the replica and returns its type.
func (r *Replica) Apply(raw []byte) (wire.Type, error) {
	var in wire.Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return "", fmt.Errorf("%w: %v", wire.ErrBadFrame, err)
	}
	switch in.Type {
	case wire.TypeInitState:
		var init wire.InitState
		if err := in.Payload(&init); err != nil {
			return in.Type, err
		}
		r.state = State{
			SelfID:       init.SelfID,
			SelfColor:    init.SelfColor,
			History:      init.History,
			Participants: init.Participants,
		}
	case wire.TypeNewStroke:
		var op canvas.Operation
		if err := in.Payload(&op); err != nil {
			return in.Type, err
		}
		r.state.History = append(r.state.History, op)
	case wire.TypeHistoryUpdate:
		var history []canvas.Operation
		if err := in.Payload(&history); err != nil {
			return in.Type, err
		}
		r.state.History = history
	case wire.TypeUserJoined:
		var uj wire.UserJoined
		if err := in.Payload(&uj); err != nil {
			return in.Type, err
		}
		r.state.Participants = append(r.state.Participants, canvas.Participant{
			ID: uj.ID, DisplayName: uj.DisplayName, Color: uj.Color,
		})
	case wire.TypeUserLeft:
		var ul wire.UserLeft
		if err := in.Payload(&ul); err != nil {
			return in.Type, err
		}
		if i := r.participant(ul.ID); i >= 0 {
			r.state.Participants = append(r.state.Participants[:i], r.state.Participants[i+1:]...)
		}
	case wire.TypeCursorUpdate:
		var cu wire.CursorUpdate
		if err := in.Payload(&cu); err != nil {
			return in.Type, err
		}
		if i := r.participant(cu.ID); i >= 0 {
			r.state.Participants[i].Cursor = &canvas.Point{X: cu.X, Y: cu.Y}
		}
	case wire.TypeError:
		var e wire.Error
		_ = in.Payload(&e)
		return in.Type, fmt.Errorf("%w: %s", ErrServer, e.Message)
	default:
		return in.Type, fmt.Errorf("unexpected frame %q", in.Type)
	}
	return in.Type, nil
}

// DrawLocal records a stroke this participant just sent. The server does
// not echo it back; the next history-update replaces it with the
// authoritative copy.
func (r *Replica) DrawLocal(d wire.Draw) {
	if len(d.Points) < 2 {
		return
	}
	r.local++
	r.state.History = append(r.state.History, canvas.Operation{
		ID:     fmt.Sprintf("local-%d", r.local),
		UserID: r.state.SelfID,
		Kind:   canvas.KindStroke,
		Points: d.Points,
		Color:  d.Color,
		Size:   d.Size,
	})
}

// ClearLocal mirrors a clear this participant just sent.
func (r *Replica) ClearLocal() {
	r.local++
	r.state.History = append(r.state.History, canvas.Operation{
		ID:     fmt.Sprintf("local-%d", r.local),
		UserID: r.state.SelfID,
		Kind:   canvas.KindClear,
		Points: []canvas.Point{},
	})
}

func (r *Replica) participant(id string) int {
	for i, p := range r.state.Participants {
		if p.ID == id {
			return i
		}
	}
	return -1
}
