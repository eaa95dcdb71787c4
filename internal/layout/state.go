package layout

// State is the interaction configuration that selects simulation forces.
type State int

const (
	Initial State = iota
	Connected
	Focused
	Dragging
)

func (s State) String() string {
	switch s {
	case Initial:
		return "initial"
	case Connected:
		return "connected"
	case Focused:
		return "focused"
	case Dragging:
		return "dragging"
	default:
		return "unknown"
	}
}

// Event drives state transitions.
type Event int

const (
	// Loaded fires when query results are merged.
	Loaded Event = iota
	// NeighborsLoaded fires when a bulk expand completes.
	NeighborsLoaded
	Focus
	Unfocus
	DragStart
	DragEnd
	// Reset fires when the store is cleared.
	Reset
)

func (e Event) String() string {
	return [...]string{"loaded", "neighbors_loaded", "focus", "unfocus", "drag_start", "drag_end", "reset"}[e]
}

// Pseudo-targets resolved at transition time.
const (
	toBase  State = -1 // Initial or Connected, whichever the graph has reached
	toPrior State = -2 // the state a drag was layered on
)

// transitions lists the valid moves. Missing entries leave the state as is.
var transitions = map[State]map[Event]State{
	Initial: {
		NeighborsLoaded: Connected,
		Focus:           Focused,
		DragStart:       Dragging,
		Reset:           Initial,
	},
	Connected: {
		NeighborsLoaded: Connected,
		Focus:           Focused,
		DragStart:       Dragging,
		Reset:           Initial,
	},
	Focused: {
		Focus:     Focused,
		Unfocus:   toBase,
		DragStart: Dragging,
		Reset:     Initial,
	},
	Dragging: {
		DragEnd: toPrior,
		Reset:   Initial,
	},
}

// Machine tracks the current state. The zero value starts in Initial.
type Machine struct {
	state State
	// base is the unfocused state the graph has reached.
	base State
	// prior is the state a drag is layered on.
	prior State
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Prior returns the state a drag will revert to. Outside a drag it equals
// the current state.
func (m *Machine) Prior() State {
	if m.state == Dragging {
		return m.prior
	}
	return m.state
}

// Fire applies ev and reports whether the state changed.
func (m *Machine) Fire(ev Event) (State, bool) {
	switch ev {
	case NeighborsLoaded:
		m.base = Connected
	case Reset:
		m.base = Initial
	}

	// Focus changes during a drag apply to the state the drag reverts to.
	if m.state == Dragging {
		switch ev {
		case Focus:
			m.prior = Focused
		case Unfocus:
			if m.prior == Focused {
				m.prior = m.base
			}
		case NeighborsLoaded:
			if m.prior != Focused {
				m.prior = m.base
			}
		}
	}

	next, ok := transitions[m.state][ev]
	if !ok {
		return m.state, false
	}
	switch next {
	case toBase:
		next = m.base
	case toPrior:
		next = m.prior
	}
	if next == Dragging {
		m.prior = m.state
	}
	changed := next != m.state
	m.state = next
	return m.state, changed
}
