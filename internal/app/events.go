package app

import (
	"time"

	"github.com/chroma/tonelight/internal/detector"
	"github.com/chroma/tonelight/internal/tone"
)

// EventType names a pipeline event.
type EventType string

const (
	EventClassified     EventType = "classified"
	EventFinalized      EventType = "finalized"
	EventDispatched     EventType = "dispatched"
	EventDispatchFailed EventType = "dispatch_failed"
	EventReset          EventType = "reset"
	EventMode           EventType = "mode"
	EventEnabled        EventType = "enabled"
)

// Event is published to listeners as the pipeline runs.
type Event struct {
	Type     EventType            `json:"type"`
	Slot     string               `json:"slot,omitempty"`
	Label    string               `json:"label,omitempty"`
	Distance float64              `json:"distance,omitempty"`
	Sample   *tone.ColorSample    `json:"sample,omitempty"`
	Region   *detector.FaceRegion `json:"region,omitempty"`
	Decision *tone.Decision       `json:"decision,omitempty"`
	Command  string               `json:"command,omitempty"`
	Sink     string               `json:"sink,omitempty"`
	State    string               `json:"state,omitempty"`
	Error    string               `json:"error,omitempty"`
	Time     time.Time            `json:"time"`
}

// Subscribe registers fn for every event and returns a function that
// removes it. fn is called synchronously from the pipeline and dispatch
// goroutines and must not block.
func (a *App) Subscribe(fn func(Event)) func() {
	a.listenersMu.Lock()
	id := a.nextListener
	a.nextListener++
	a.listeners[id] = fn
	a.listenersMu.Unlock()

	return func() {
		a.listenersMu.Lock()
		delete(a.listeners, id)
		a.listenersMu.Unlock()
	}
}

func (a *App) emit(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}

	a.listenersMu.RLock()
	defer a.listenersMu.RUnlock()
	for _, fn := range a.listeners {
		fn(ev)
	}
}
