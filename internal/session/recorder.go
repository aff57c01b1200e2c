package session

import (
	"time"

	"collabcanvas/internal/canvas"
)

type ChangeKind string

const (
	ChangeJoin   ChangeKind = "join"
	ChangeLeave  ChangeKind = "leave"
	ChangeAppend ChangeKind = "append"
	ChangeUndo   ChangeKind = "undo"
	ChangeRedo   ChangeKind = "redo"
)

// Change describes one mutation applied to the store.
type Change struct {
	Kind          ChangeKind        `json:"kind"`
	ParticipantID string            `json:"participantId"`
	Operation     *canvas.Operation `json:"operation,omitempty"`
	Stats         canvas.Stats      `json:"stats"`
	At            time.Time         `json:"at"`
}

// Recorder observes applied changes. Record is called on the event loop
// and must not block.
type Recorder interface {
	Record(Change)
}

// Recorders fans a change out to each recorder in order.
type Recorders []Recorder

func (rs Recorders) Record(c Change) {
	for _, r := range rs {
		r.Record(c)
	}
}

type RecorderFunc func(Change)

func (f RecorderFunc) Record(c Change) { f(c) }
