package tracker

import (
	"time"

	"github.com/jllopis/arbiter/pkg/core"
)

// ExtensionKind tags an entry of the extension bundle.
type ExtensionKind uint8

const (
	KindOwner ExtensionKind = iota + 1
	KindTicking
	KindCreationTimer
	KindRuntimeTimer
	KindTickTimer
)

func (k ExtensionKind) String() string {
	switch k {
	case KindOwner:
		return "owner"
	case KindTicking:
		return "ticking"
	case KindCreationTimer:
		return "creation_timer"
	case KindRuntimeTimer:
		return "runtime_timer"
	case KindTickTimer:
		return "tick_timer"
	default:
		return "unknown"
	}
}

// Extension is one variant of the bundle. The set of variants is closed.
type Extension interface {
	Kind() ExtensionKind
	isExtension()
}

// OwnerLink points back to the agent that picked the action.
type OwnerLink struct {
	Agent core.AgentID
	Pawn  core.PawnID
}

// TickMarker marks a tracker for per-tick dispatch.
type TickMarker struct{}

// CreationTimer records when the tracker was spawned.
type CreationTimer struct {
	At time.Time
}

// RuntimeTimer records the first entry into Running and the entry into a
// terminal state. Zero times mean the edge has not happened yet.
type RuntimeTimer struct {
	Start time.Time
	End   time.Time
}

// Elapsed is End-Start once both are set.
func (r RuntimeTimer) Elapsed() time.Duration {
	if r.Start.IsZero() || r.End.IsZero() {
		return 0
	}
	return r.End.Sub(r.Start)
}

// TickTimer records the last dispatch.
type TickTimer struct {
	Last  time.Time
	Ticks uint64
}

func (OwnerLink) Kind() ExtensionKind     { return KindOwner }
func (TickMarker) Kind() ExtensionKind    { return KindTicking }
func (CreationTimer) Kind() ExtensionKind { return KindCreationTimer }
func (RuntimeTimer) Kind() ExtensionKind  { return KindRuntimeTimer }
func (TickTimer) Kind() ExtensionKind     { return KindTickTimer }

func (OwnerLink) isExtension()     {}
func (TickMarker) isExtension()    {}
func (CreationTimer) isExtension() {}
func (RuntimeTimer) isExtension()  {}
func (TickTimer) isExtension()     {}

// Extensions is the bundle attached to a tracker. Entries are created only
// at spawn; later updates replace an existing entry and never add one.
type Extensions struct {
	items map[ExtensionKind]Extension
}

func newExtensions(cfg SpawnConfig, pick core.Pick, now time.Time) Extensions {
	items := make(map[ExtensionKind]Extension, 5)
	if cfg.OwnerLink {
		items[KindOwner] = OwnerLink{Agent: pick.Agent, Pawn: pick.Pawn}
	}
	if cfg.Ticking {
		items[KindTicking] = TickMarker{}
	}
	if cfg.CreationTimer {
		items[KindCreationTimer] = CreationTimer{At: now}
	}
	if cfg.RuntimeTimer {
		items[KindRuntimeTimer] = RuntimeTimer{}
	}
	if cfg.TickTimer {
		items[KindTickTimer] = TickTimer{}
	}
	return Extensions{items: items}
}

// Has reports whether the bundle carries kind.
func (e Extensions) Has(kind ExtensionKind) bool {
	_, ok := e.items[kind]
	return ok
}

// Get returns the entry for kind.
func (e Extensions) Get(kind ExtensionKind) (Extension, bool) {
	ext, ok := e.items[kind]
	return ext, ok
}

// Kinds lists the present kinds in ascending order.
func (e Extensions) Kinds() []ExtensionKind {
	out := make([]ExtensionKind, 0, len(e.items))
	for k := KindOwner; k <= KindTickTimer; k++ {
		if _, ok := e.items[k]; ok {
			out = append(out, k)
		}
	}
	return out
}

// Owner returns the owner link.
func (e Extensions) Owner() (OwnerLink, bool) {
	ext, ok := e.items[KindOwner].(OwnerLink)
	return ext, ok
}

// Ticking reports whether the tick marker is present.
func (e Extensions) Ticking() bool { return e.Has(KindTicking) }

// CreationTimer returns the creation timer.
func (e Extensions) CreationTimer() (CreationTimer, bool) {
	ext, ok := e.items[KindCreationTimer].(CreationTimer)
	return ext, ok
}

// RuntimeTimer returns the runtime timer.
func (e Extensions) RuntimeTimer() (RuntimeTimer, bool) {
	ext, ok := e.items[KindRuntimeTimer].(RuntimeTimer)
	return ext, ok
}

// TickTimer returns the tick timer.
func (e Extensions) TickTimer() (TickTimer, bool) {
	ext, ok := e.items[KindTickTimer].(TickTimer)
	return ext, ok
}

// replace swaps an existing entry. Absent kinds are left absent.
func (e Extensions) replace(ext Extension) {
	if _, ok := e.items[ext.Kind()]; ok {
		e.items[ext.Kind()] = ext
	}
}

func (e Extensions) clone() Extensions {
	items := make(map[ExtensionKind]Extension, len(e.items))
	for k, v := range e.items {
		items[k] = v
	}
	return Extensions{items: items}
}
