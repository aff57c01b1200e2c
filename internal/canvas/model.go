package canvas

// Point is a canvas coordinate in pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Kind is the type of a recorded operation.
type Kind string

const (
	KindStroke Kind = "stroke"
	// KindClear wipes everything recorded before it when History is replayed.
	KindClear Kind = "clear"
)

// Operation is one recorded action in the canvas history.
// Operations are never mutated after AppendOperation returns them.
type Operation struct {
	ID        string  `json:"id"`
	UserID    string  `json:"userId"`
	Kind      Kind    `json:"type"`
	Points    []Point `json:"points"`
	Color     string  `json:"color"`
	Size      float64 `json:"size"`
	Timestamp int64   `json:"timestamp"` // unix milliseconds, assigned by the store
}

// Draft is what a participant submits; the store fills in ID and Timestamp.
type Draft struct {
	UserID string
	Kind   Kind
	Points []Point
	Color  string
	Size   float64
}

// Participant is a connected identity. Cursor stays nil until the first
// cursor report.
type Participant struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Color       string `json:"color"`
	Cursor      *Point `json:"cursor,omitempty"`
}

// Snapshot is a point-in-time copy of the store handed to joining participants.
type Snapshot struct {
	History      []Operation   `json:"history"`
	Participants []Participant `json:"participants"`
}

// Stats summarizes the store for metrics and health reporting.
type Stats struct {
	History      int `json:"history"`
	Redo         int `json:"redo"`
	Participants int `json:"participants"`
}

func (o Operation) clone() Operation {
	o.Points = append([]Point(nil), o.Points...)
	return o
}

func (p Participant) clone() Participant {
	if p.Cursor != nil {
		c := *p.Cursor
		p.Cursor = &c
	}
	return p
}

func cloneOps(ops []Operation) []Operation {
	out := make([]Operation, len(ops))
	for i, op := range ops {
		out[i] = op.clone()
	}
	return out
}

// Visible returns the suffix of history that is on screen: everything after
// the last clear operation.
func Visible(history []Operation) []Operation {
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Kind == KindClear {
			return history[i+1:]
		}
	}
	return history
}
