package tone

import (
	"fmt"
	"sort"
	"sync"
)

// DefaultWindow is the default number of labels voted on.
const DefaultWindow = 7

// VotePolicy selects how a slot turns a label history into a decision.
type VotePolicy string

const (
	// VoteFixed accumulates exactly Window labels and emits their mode once.
	VoteFixed VotePolicy = "fixed"
	// VoteSliding keeps the last Window labels and emits their mode after
	// every push.
	VoteSliding VotePolicy = "sliding"
)

// State is the stabilization state of a slot.
type State int

const (
	StateEmpty State = iota
	StateAccumulating
	StateStable
)

func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateAccumulating:
		return "accumulating"
	case StateStable:
		return "stable"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// SlotConfig configures a stabilization slot.
type SlotConfig struct {
	Window int
	Policy VotePolicy
	// HoldAfterEmit keeps a fixed-window slot stable after it emits, ignoring
	// further labels until Reset. When false the slot clears and restarts.
	HoldAfterEmit bool
}

// DefaultSlotConfig returns a fixed window of DefaultWindow that holds.
func DefaultSlotConfig() SlotConfig {
	return SlotConfig{Window: DefaultWindow, Policy: VoteFixed, HoldAfterEmit: true}
}

// Validate checks the slot configuration.
func (c SlotConfig) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive, got %d", c.Window)
	}
	switch c.Policy {
	case VoteFixed, VoteSliding:
		return nil
	default:
		return fmt.Errorf("unknown vote policy %q", c.Policy)
	}
}

// Decision is a finalized label produced by a slot.
type Decision struct {
	Label string `json:"label"`
	Votes int    `json:"votes"`
	Total int    `json:"total"`
}

// Slot holds the recent label history of one tracked subject.
// A Slot is not safe for concurrent use; Tracker serializes access.
type Slot struct {
	cfg    SlotConfig
	labels []string
	state  State
	last   Decision
}

// NewSlot creates an empty slot.
func NewSlot(cfg SlotConfig) *Slot {
	if cfg.Window <= 0 {
		cfg.Window = DefaultWindow
	}
	if cfg.Policy == "" {
		cfg.Policy = VoteFixed
	}
	return &Slot{
		cfg:    cfg,
		labels: make([]string, 0, cfg.Window),
	}
}

// Push appends a label and reports a decision when one is available.
func (s *Slot) Push(label string) (Decision, bool) {
	switch s.cfg.Policy {
	case VoteSliding:
		return s.pushSliding(label)
	default:
		return s.pushFixed(label)
	}
}

func (s *Slot) pushFixed(label string) (Decision, bool) {
	if s.state == StateStable && s.cfg.HoldAfterEmit {
		return Decision{}, false
	}

	s.labels = append(s.labels, label)
	s.state = StateAccumulating
	if len(s.labels) < s.cfg.Window {
		return Decision{}, false
	}

	winner, votes := mode(s.labels)
	d := Decision{Label: winner, Votes: votes, Total: len(s.labels)}
	s.last = d

	if s.cfg.HoldAfterEmit {
		s.state = StateStable
	} else {
		s.labels = s.labels[:0]
		s.state = StateEmpty
	}
	return d, true
}

func (s *Slot) pushSliding(label string) (Decision, bool) {
	if len(s.labels) >= s.cfg.Window {
		copy(s.labels, s.labels[1:])
		s.labels = s.labels[:s.cfg.Window-1]
	}
	s.labels = append(s.labels, label)
	s.state = StateStable

	winner, votes := mode(s.labels)
	d := Decision{Label: winner, Votes: votes, Total: len(s.labels)}
	s.last = d
	return d, true
}

// Reset empties the slot.
func (s *Slot) Reset() {
	s.labels = s.labels[:0]
	s.state = StateEmpty
	s.last = Decision{}
}

// State returns the current state.
func (s *Slot) State() State {
	return s.state
}

// Labels returns a copy of the label history, oldest first.
func (s *Slot) Labels() []string {
	out := make([]string, len(s.labels))
	copy(out, s.labels)
	return out
}

// Last returns the most recent decision, if any.
func (s *Slot) Last() (Decision, bool) {
	return s.last, s.last.Label != ""
}

// mode returns the most frequent label. On equal counts the label that
// reached the maximum count first, scanning in insertion order, wins.
func mode(labels []string) (string, int) {
	counts := make(map[string]int, len(labels))
	var winner string
	best := 0
	for _, l := range labels {
		counts[l]++
		if counts[l] > best {
			best = counts[l]
			winner = l
		}
	}
	return winner, best
}

// SlotSnapshot describes a slot for status reporting.
type SlotSnapshot struct {
	Key    string    `json:"key"`
	State  string    `json:"state"`
	Labels []string  `json:"labels"`
	Last   *Decision `json:"last,omitempty"`
}

// Tracker owns the stabilization slots of a pipeline, keyed by slot key.
type Tracker struct {
	cfg   SlotConfig
	mu    sync.Mutex
	slots map[string]*Slot
}

// NewTracker creates a tracker whose slots share one configuration.
func NewTracker(cfg SlotConfig) *Tracker {
	return &Tracker{
		cfg:   cfg,
		slots: make(map[string]*Slot),
	}
}

// Push appends a label to the slot with the given key, creating it if needed.
func (t *Tracker) Push(key, label string) (Decision, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slot, ok := t.slots[key]
	if !ok {
		slot = NewSlot(t.cfg)
		t.slots[key] = slot
	}
	return slot.Push(label)
}

// State returns the state of a slot. Unknown slots are empty.
func (t *Tracker) State(key string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slot, ok := t.slots[key]; ok {
		return slot.State()
	}
	return StateEmpty
}

// ResetSlot empties one slot.
func (t *Tracker) ResetSlot(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if slot, ok := t.slots[key]; ok {
		slot.Reset()
	}
}

// Reset empties every slot.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, slot := range t.slots {
		slot.Reset()
	}
}

// Snapshot returns the state of every slot.
func (t *Tracker) Snapshot() []SlotSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]SlotSnapshot, 0, len(t.slots))
	for key, slot := range t.slots {
		snap := SlotSnapshot{
			Key:    key,
			State:  slot.State().String(),
			Labels: slot.Labels(),
		}
		if d, ok := slot.Last(); ok {
			snap.Last = &d
		}
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
