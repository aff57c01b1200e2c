package canvas

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"golang.org/x/exp/slices"
)

var (
	// ErrDuplicateParticipant means a connection tried to join twice under
	// the same id. It points at an identity bug in the transport layer.
	ErrDuplicateParticipant = errors.New("participant already registered")
	ErrInvalidParticipant   = errors.New("participant id is empty")
)

// DefaultPalette is the set of colours handed out to joining participants.
var DefaultPalette = []string{"#FF5733", "#33FF57", "#3357FF", "#F333FF", "#33FFF3", "#F3FF33"}

// Store is the authoritative canvas state: history, redo buffer and roster.
//
// A Store is not safe for concurrent use. It is owned by a single event loop
// and every method is atomic with respect to that loop.
type Store struct {
	history []Operation
	redo    []Operation

	participants map[string]*Participant
	order        []string // join order

	palette []string
	rnd     *rand.Rand
	now     func() time.Time
	newID   func() string
}

type Option func(*Store)

func WithPalette(colors []string) Option {
	return func(s *Store) {
		if len(colors) > 0 {
			s.palette = slices.Clone(colors)
		}
	}
}

// WithRand fixes the source used to pick participant colours.
func WithRand(r *rand.Rand) Option {
	return func(s *Store) { s.rnd = r }
}

func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(s *Store) { s.newID = newID }
}

func NewStore(opts ...Option) *Store {
	s := &Store{
		participants: make(map[string]*Participant),
		palette:      slices.Clone(DefaultPalette),
		rnd:          rand.New(rand.NewSource(time.Now().UnixNano())),
		now:          time.Now,
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddParticipant registers id and assigns it a random colour from the
// palette. Collisions between participants are allowed.
func (s *Store) AddParticipant(id, displayName string) (Participant, error) {
	if id == "" {
		return Participant{}, ErrInvalidParticipant
	}
	if _, exists := s.participants[id]; exists {
		return Participant{}, fmt.Errorf("add %q: %w", id, ErrDuplicateParticipant)
	}
	p := &Participant{
		ID:          id,
		DisplayName: displayName,
		Color:       s.palette[s.rnd.Intn(len(s.palette))],
	}
	s.participants[id] = p
	s.order = append(s.order, id)
	return *p, nil
}

// RemoveParticipant deletes id from the roster. Unknown ids are ignored.
func (s *Store) RemoveParticipant(id string) bool {
	if _, exists := s.participants[id]; !exists {
		return false
	}
	delete(s.participants, id)
	if i := slices.Index(s.order, id); i >= 0 {
		s.order = slices.Delete(s.order, i, i+1)
	}
	return true
}

// UpdateCursor records the last known pointer position of id.
// It returns false when id is not registered.
func (s *Store) UpdateCursor(id string, x, y float64) bool {
	p, exists := s.participants[id]
	if !exists {
		return false
	}
	p.Cursor = &Point{X: x, Y: y}
	return true
}

// Participant returns a copy of the roster entry for id.
func (s *Store) Participant(id string) (Participant, bool) {
	p, exists := s.participants[id]
	if !exists {
		return Participant{}, false
	}
	return p.clone(), true
}

// AppendOperation stamps d with a fresh id and timestamp, appends it to the
// history and empties the redo buffer. Strokes with fewer than two points
// draw nothing and are dropped without touching any state.
func (s *Store) AppendOperation(d Draft) (Operation, bool) {
	if d.Kind == "" {
		d.Kind = KindStroke
	}
	if d.Kind == KindStroke && len(d.Points) < 2 {
		return Operation{}, false
	}
	op := Operation{
		ID:        s.newID(),
		UserID:    d.UserID,
		Kind:      d.Kind,
		Points:    slices.Clone(d.Points),
		Color:     d.Color,
		Size:      d.Size,
		Timestamp: s.now().UnixMilli(),
	}
	if op.Points == nil {
		op.Points = []Point{}
	}
	s.history = append(s.history, op)
	s.redo = nil
	return op.clone(), true
}

// Undo moves the newest operation from history to the redo buffer,
// whoever authored it.
func (s *Store) Undo() (Operation, bool) {
	if len(s.history) == 0 {
		return Operation{}, false
	}
	op := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.redo = append(s.redo, op)
	return op.clone(), true
}

// Redo moves the most recently undone operation back onto history.
func (s *Store) Redo() (Operation, bool) {
	if len(s.redo) == 0 {
		return Operation{}, false
	}
	op := s.redo[len(s.redo)-1]
	s.redo = s.redo[:len(s.redo)-1]
	s.history = append(s.history, op)
	return op.clone(), true
}

// History returns a copy of the current history in application order.
func (s *Store) History() []Operation {
	return cloneOps(s.history)
}

func (s *Store) Participants() []Participant {
	out := make([]Participant, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.participants[id].clone())
	}
	return out
}

func (s *Store) Snapshot() Snapshot {
	return Snapshot{
		History:      s.History(),
		Participants: s.Participants(),
	}
}

func (s *Store) Stats() Stats {
	return Stats{
		History:      len(s.history),
		Redo:         len(s.redo),
		Participants: len(s.participants),
	}
}
