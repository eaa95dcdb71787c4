package interact

// ViewState is the transient UI state keyed by entity id: the focused node,
// the cards expanded to show every field, and the hovered node. It belongs
// to one store epoch and is wiped when the store is cleared.
type ViewState struct {
	Focus    string
	Hover    string
	Expanded map[string]bool

	epoch uint64
}

// NewViewState returns an empty state for the given store epoch.
func NewViewState(epoch uint64) *ViewState {
	return &ViewState{Expanded: make(map[string]bool), epoch: epoch}
}

// Sync resets the state if the store moved to another epoch and reports
// whether it did.
func (s *ViewState) Sync(epoch uint64) bool {
	if epoch == s.epoch {
		return false
	}
	s.Reset()
	s.epoch = epoch
	return true
}

// Reset clears focus, hover and every expanded flag.
func (s *ViewState) Reset() {
	s.Focus = ""
	s.Hover = ""
	s.Expanded = make(map[string]bool)
}

// Toggle flips the expanded flag of id and returns the new value.
func (s *ViewState) Toggle(id string) bool {
	if s.Expanded[id] {
		delete(s.Expanded, id)
		return false
	}
	s.Expanded[id] = true
	return true
}

// IsExpanded reports whether id shows every field.
func (s *ViewState) IsExpanded(id string) bool { return s.Expanded[id] }
