package events

import (
	"context"
	"sync"
)

// Domain event types
const (
	TypePatientRegistered = "patient.registered"
	TypeTestResultCreated = "test_result.created"
	TypeReportGenerated   = "report.generated"
	TypeReportFailed      = "report.failed"
)

// Publisher publishes domain events
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// NopPublisher drops every event. Used when KurrentDB is not configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event Event) error { return nil }

// MemoryPublisher keeps published events in memory
type MemoryPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *MemoryPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

// Events returns a copy of everything published so far
func (p *MemoryPublisher) Events() []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, len(p.events))
	copy(out, p.events)
	return out
}

// Types returns the type of every published event in order
func (p *MemoryPublisher) Types() []string {
	evs := p.Events()
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.Type
	}
	return out
}

// Ensure implementations satisfy Publisher
var (
	_ Publisher = (*Bus)(nil)
	_ Publisher = NopPublisher{}
	_ Publisher = (*MemoryPublisher)(nil)
)
