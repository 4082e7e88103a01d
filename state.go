package records

// State is the lifecycle of a record expressed as independent flags. The
// flags are jointly constrained by the transition rules in this file rather
// than folded into a single enum.
type State struct {
	New     bool `json:"is_new"`
	Loaded  bool `json:"is_loaded"`
	Dirty   bool `json:"is_dirty"`
	Saving  bool `json:"is_saving"`
	Error   bool `json:"is_error"`
	Deleted bool `json:"is_deleted"`

	ready bool
}

// Ready reports whether change tracking is active.
func (s State) Ready() bool { return s.ready }

// Clean reports whether the record holds no unsaved mutations.
func (s State) Clean() bool { return !s.Dirty && !s.Saving }

// String renders the dominant state, mostly for logs.
func (s State) String() string {
	switch {
	case s.Deleted:
		return "deleted"
	case s.Saving:
		return "saving"
	case s.Error:
		return "error"
	case s.Dirty:
		return "dirty"
	case s.New:
		return "new"
	case s.Loaded:
		return "loaded"
	default:
		return "empty"
	}
}

// Transition names used in TransitionEvent.
const (
	TransitionIdentified = "identified"
	TransitionDirtied    = "dirtied"
	TransitionSaving     = "saving"
	TransitionSaved      = "saved"
	TransitionSaveFailed = "save_failed"
	TransitionDeleted    = "deleted"
	TransitionLoaded     = "loaded"
)

// fieldChanged applies the transition table for a mutation of key. It
// returns the transitions that fired, in order.
//
//  1. new and key is the primary key: New <- false
//  2. ready and (new or loaded): Dirty <- true
func (s *State) fieldChanged(key, primaryKey string) (identified, dirtied bool) {
	if s.New && key == primaryKey {
		s.New = false
		identified = true
	}
	if s.ready && (s.New || s.Loaded) && !s.Dirty {
		s.Dirty = true
		dirtied = true
	}
	return identified, dirtied
}

func (s *State) beginSave() {
	s.Saving = true
	s.Error = false
}

func (s *State) didSave() {
	s.Saving = false
	s.Error = false
	s.Dirty = false
	s.New = false
	s.Loaded = true
}

func (s *State) saveFailed() {
	s.Saving = false
	s.Error = true
}

func (s *State) didDelete() {
	s.Deleted = true
	s.Dirty = false
	s.Saving = false
}

func (s *State) didLoad() {
	s.ready = true
	s.Loaded = true
	s.Dirty = false
}
