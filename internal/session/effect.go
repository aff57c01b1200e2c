package session

import "collabcanvas/internal/wire"

// EffectKind says who receives an outbound message.
type EffectKind int

const (
	None EffectKind = iota
	// Unicast goes to Target only.
	Unicast
	// BroadcastOthers goes to every active connection except Target.
	BroadcastOthers
	// BroadcastAll goes to every active connection.
	BroadcastAll
)

func (k EffectKind) String() string {
	switch k {
	case Unicast:
		return "unicast"
	case BroadcastOthers:
		return "broadcast-others"
	case BroadcastAll:
		return "broadcast-all"
	default:
		return "none"
	}
}

// Effect is a delivery decision. The transport interprets it; the handler
// never writes to a connection itself.
type Effect struct {
	Kind    EffectKind
	Target  string
	Message wire.Outbound
}

func unicast(to string, t wire.Type, data any) Effect {
	return Effect{Kind: Unicast, Target: to, Message: wire.Outbound{Type: t, Data: data}}
}

func others(sender string, t wire.Type, data any) Effect {
	return Effect{Kind: BroadcastOthers, Target: sender, Message: wire.Outbound{Type: t, Data: data}}
}

func all(t wire.Type, data any) Effect {
	return Effect{Kind: BroadcastAll, Message: wire.Outbound{Type: t, Data: data}}
}

// Reaches reports whether a connection with id receives e.
func (e Effect) Reaches(id string) bool {
	switch e.Kind {
	case Unicast:
		return id == e.Target
	case BroadcastOthers:
		return id != e.Target
	case BroadcastAll:
		return true
	default:
		return false
	}
}
