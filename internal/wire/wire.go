// Package wire defines the JSON frames exchanged over a participant's
// websocket. Every frame is an envelope {"type": ..., "data": ...}.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"

	"collabcanvas/internal/canvas"
)

type Type string

// Inbound (participant -> authority).
const (
	TypeDraw       Type = "draw"
	TypeCursorMove Type = "cursor-move"
	TypeUndo       Type = "undo"
	TypeRedo       Type = "redo"
	TypeClear      Type = "clear"
)

// Outbound (authority -> participants).
const (
	TypeInitState     Type = "init-state"
	TypeUserJoined    Type = "user-joined"
	TypeUserLeft      Type = "user-left"
	TypeNewStroke     Type = "new-stroke"
	TypeCursorUpdate  Type = "cursor-update"
	TypeHistoryUpdate Type = "history-update"
	TypeError         Type = "error"
)

var ErrBadFrame = errors.New("bad frame")

// Inbound is a decoded envelope whose payload is decoded later by the
// route that handles its type.
type Inbound struct {
	Type Type            `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// Outbound is an envelope ready to be encoded and sent.
type Outbound struct {
	Type Type `json:"type"`
	Data any  `json:"data"`
}

type Draw struct {
	Points []canvas.Point `json:"points"`
	Color  string         `json:"color"`
	Size   float64        `json:"size"`
}

type CursorMove struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type InitState struct {
	History      []canvas.Operation   `json:"history"`
	Participants []canvas.Participant `json:"participants"`
	SelfID       string               `json:"selfId"`
	SelfColor    string               `json:"selfColor"`
}

type UserJoined struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
}

type UserLeft struct {
	ID string `json:"id"`
}

type CursorUpdate struct {
	ID string  `json:"id"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

type Error struct {
	Message string `json:"message"`
}

// Decode parses a raw frame into its envelope.
func Decode(raw []byte) (Inbound, error) {
	var in Inbound
	if err := json.Unmarshal(raw, &in); err != nil {
		return Inbound{}, fmt.Errorf("%w: %v", ErrBadFrame, err)
	}
	if in.Type == "" {
		return Inbound{}, fmt.Errorf("%w: missing type", ErrBadFrame)
	}
	return in, nil
}

// Payload decodes the envelope's data into v. An absent payload leaves v
// untouched.
func (in Inbound) Payload(v any) error {
	if len(in.Data) == 0 || string(in.Data) == "null" {
		return nil
	}
	return json.Unmarshal(in.Data, v)
}

func Encode(out Outbound) ([]byte, error) {
	return json.Marshal(out)
}

// Message builds an inbound frame. Clients use it to talk to the authority.
func Message(t Type, payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Inbound{Type: t, Data: data})
}
