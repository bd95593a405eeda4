// Package selection implements keyboard-driven region selection.
//
// [Machine] is a pure state machine: every input produces a new Machine and
// an [Effect], with no I/O. [Render] draws a Machine as a string. A terminal
// driver (see internal/cli) feeds key presses through a [KeyMap] into the
// machine and redraws after each one. Committed regions can be persisted
// with [Save] and [Load].
package selection

import (
	"slices"

	"github.com/matzehuels/tilestitch/pkg/tiles"
)

// State is the selection phase.
type State int

const (
	// Idle has no corner marked.
	Idle State = iota
	// AnchorSet has the first corner marked.
	AnchorSet
	// Selected has both corners marked and a region derived.
	Selected
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case AnchorSet:
		return "anchor set"
	case Selected:
		return "selected"
	}
	return "unknown"
}

// Action is one user input.
type Action int

const (
	MoveUp Action = iota
	MoveDown
	MoveLeft
	MoveRight
	Mark
	CycleChannel
	Confirm
	Cancel
)

// Effect tells the driver what to do after a transition.
type Effect int

const (
	// EffectNone keeps the interaction running.
	EffectNone Effect = iota
	// EffectConfirm ends the interaction with Machine.Region.
	EffectConfirm
	// EffectCancel ends the interaction with no region.
	EffectCancel
)

// HintNoSelection is shown when Confirm is pressed before a region exists.
const HintNoSelection = "No region selected. Use space to mark corners."

// Point is a grid cell.
type Point struct {
	Y int
	X int
}

// Machine is the selection state. The zero value is not useful; use NewMachine.
type Machine struct {
	state    State
	cursor   Point
	anchor   Point
	corner   Point
	channel  int
	bounds   tiles.GridBounds
	channels []int
	hint     string
}

// NewMachine starts a selection on channel with the cursor on the first
// tile of that channel in row-major order, or the grid origin if none.
func NewMachine(idx *tiles.Index, channel int) Machine {
	m := Machine{
		state:    Idle,
		channel:  channel,
		bounds:   idx.Bounds(),
		channels: idx.Channels(),
	}
	for y := m.bounds.YMin; y < m.bounds.YMax; y++ {
		for x := m.bounds.XMin; x < m.bounds.XMax; x++ {
			if _, ok := idx.Tile(y, x, channel); ok {
				return m.moveTo(y, x)
			}
		}
	}
	return m.moveTo(m.bounds.YMin, m.bounds.XMin)
}

// State returns the selection phase.
func (m Machine) State() State { return m.state }

// Cursor returns the cursor cell.
func (m Machine) Cursor() Point { return m.cursor }

// Channel returns the active channel.
func (m Machine) Channel() int { return m.channel }

// Bounds returns the grid the cursor moves within.
func (m Machine) Bounds() tiles.GridBounds { return m.bounds }

// Hint returns the message produced by the last action, if any.
func (m Machine) Hint() string { return m.hint }

// Anchor returns the first marked corner.
func (m Machine) Anchor() (Point, bool) {
	return m.anchor, m.state != Idle
}

// Corner returns the second marked corner.
func (m Machine) Corner() (Point, bool) {
	return m.corner, m.state == Selected
}

// Region returns the selected region. It is only valid in Selected.
func (m Machine) Region() (tiles.Region, bool) {
	if m.state != Selected {
		return tiles.Region{}, false
	}
	return tiles.Region{
		YStart:  min(m.anchor.Y, m.corner.Y),
		YEnd:    max(m.anchor.Y, m.corner.Y) + 1,
		XStart:  min(m.anchor.X, m.corner.X),
		XEnd:    max(m.anchor.X, m.corner.X) + 1,
		Channel: m.channel,
	}, true
}

// InSelection reports whether (y, x) lies inside the selected rectangle.
func (m Machine) InSelection(y, x int) bool {
	r, ok := m.Region()
	return ok && r.Contains(y, x)
}

// moveTo places the cursor at (y, x), clamped to the grid.
func (m Machine) moveTo(y, x int) Machine {
	m.cursor = m.clamp(Point{Y: y, X: x})
	return m
}

func (m Machine) clamp(p Point) Point {
	b := m.bounds
	if b.Empty() {
		return Point{Y: b.YMin, X: b.XMin}
	}
	p.Y = max(b.YMin, min(p.Y, b.YMax-1))
	p.X = max(b.XMin, min(p.X, b.XMax-1))
	return p
}

// Apply performs one transition.
func (m Machine) Apply(a Action) (Machine, Effect) {
	m.hint = ""
	switch a {
	case MoveUp:
		m.cursor = m.clamp(Point{Y: m.cursor.Y - 1, X: m.cursor.X})
	case MoveDown:
		m.cursor = m.clamp(Point{Y: m.cursor.Y + 1, X: m.cursor.X})
	case MoveLeft:
		m.cursor = m.clamp(Point{Y: m.cursor.Y, X: m.cursor.X - 1})
	case MoveRight:
		m.cursor = m.clamp(Point{Y: m.cursor.Y, X: m.cursor.X + 1})
	case Mark:
		switch m.state {
		case Idle, Selected:
			m.anchor = m.cursor
			m.corner = Point{}
			m.state = AnchorSet
		case AnchorSet:
			m.corner = m.cursor
			m.state = Selected
		}
	case CycleChannel:
		m.channel = m.nextChannel()
		m.anchor, m.corner = Point{}, Point{}
		m.state = Idle
	case Confirm:
		if m.state == Selected {
			return m, EffectConfirm
		}
		m.hint = HintNoSelection
	case Cancel:
		return m, EffectCancel
	}
	return m, EffectNone
}

// nextChannel returns the channel after the current one, wrapping. A
// channel missing from the list advances to the next larger one.
func (m Machine) nextChannel() int {
	if len(m.channels) == 0 {
		return m.channel
	}
	i, found := slices.BinarySearch(m.channels, m.channel)
	if found {
		i++
	}
	return m.channels[i%len(m.channels)]
}
