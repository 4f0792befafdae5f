// Package eventstest provides an in-memory events.Publisher for tests.
package eventstest

import (
	"context"
	"sync"

	"pharmapos/backend/internal/events"
)

var _ events.Publisher = (*Recorder)(nil)

// Recorder is a Publisher that keeps every published event in memory.
// Setting Err makes Publish fail without recording.
type Recorder struct {
	mu     sync.Mutex
	events []events.Event
	Err    error
}

func (p *Recorder) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.events = append(p.events, event)
	return nil
}

func (p *Recorder) Close() error {
	return nil
}

func (p *Recorder) Events() []events.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]events.Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the recorded event types in publish order.
func (p *Recorder) Types() []events.Type {
	recorded := p.Events()
	out := make([]events.Type, 0, len(recorded))
	for _, event := range recorded {
		out = append(out, event.Type)
	}
	return out
}
