// Package hub fans transition events out to live subscribers. Delivery is
// best effort: a slow subscriber never blocks the driving loop, events
// past its buffer are dropped and the subscriber re-fetches state to
// resynchronize.
package hub

import (
	"log/slog"
	"sync"

	"github.com/creditflow/creditflow/internal/domain"
)

const DefaultBufferSize = 16

type Hub struct {
	mu      sync.Mutex
	subs    map[string][]*Subscription
	done    map[string]domain.TransitionEvent
	bufSize int
}

func New(bufSize int) *Hub {
	// The buffer must hold the catch-up snapshot plus a replayed terminal
	// event without blocking.
	if bufSize < 2 {
		bufSize = DefaultBufferSize
	}
	return &Hub{
		subs:    make(map[string][]*Subscription),
		done:    make(map[string]domain.TransitionEvent),
		bufSize: bufSize,
	}
}

// Subscription is one observer's handle on a workflow's event stream. Its
// channel yields events in arrival order and closes when the workflow
// reaches a terminal state or the subscription is cancelled.
type Subscription struct {
	WorkflowID string

	hub     *Hub
	ch      chan domain.TransitionEvent
	mu      sync.Mutex
	closed  bool
	dropped int
}

// Events returns the receive side of the subscription.
func (s *Subscription) Events() <-chan domain.TransitionEvent { return s.ch }

// Cancel detaches the subscription and closes its channel. Safe to call
// more than once, including after the hub already closed the channel.
func (s *Subscription) Cancel() {
	s.hub.remove(s)
	s.close()
}

func (s *Subscription) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// trySend enqueues the event unless the buffer is full or the
// subscription is closed. Never blocks.
func (s *Subscription) trySend(ev domain.TransitionEvent) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.ch <- ev:
		return true
	default:
		s.dropped++
		return false
	}
}

// Subscribe registers a live subscriber for the workflow. initial is the
// synthetic catch-up event reflecting the latest durable state; it is
// delivered first so a late subscriber cannot miss history. If initial
// already shows a terminal stage the channel closes right after it.
func (h *Hub) Subscribe(workflowID string, initial domain.TransitionEvent) *Subscription {
	sub := &Subscription{
		WorkflowID: workflowID,
		hub:        h,
		ch:         make(chan domain.TransitionEvent, h.bufSize),
	}
	sub.ch <- initial
	if initial.Stage.IsTerminal() {
		sub.close()
		return sub
	}

	h.mu.Lock()
	// The terminal event may have been published between the caller's
	// snapshot read and this registration. Replay it here so the stream
	// still ends, instead of leaving the channel open forever.
	if final, ok := h.done[workflowID]; ok {
		h.mu.Unlock()
		if final.SequenceNo > initial.SequenceNo {
			sub.ch <- final
		}
		sub.close()
		return sub
	}
	h.subs[workflowID] = append(h.subs[workflowID], sub)
	h.mu.Unlock()
	return sub
}

// Publish delivers the event to every live subscriber of the workflow,
// dropping it for subscribers with a full buffer. Publishing a terminal
// event closes and detaches all subscriptions for the workflow.
func (h *Hub) Publish(ev domain.TransitionEvent) {
	h.mu.Lock()
	subs := h.subs[ev.WorkflowID]
	terminal := ev.Stage.IsTerminal()
	if terminal {
		delete(h.subs, ev.WorkflowID)
		h.done[ev.WorkflowID] = ev
	}
	h.mu.Unlock()

	for _, sub := range subs {
		if !sub.trySend(ev) {
			slog.Warn("Subscriber missed event", "workflow_id", ev.WorkflowID, "sequence_no", ev.SequenceNo, "dropped", sub.dropped)
		}
		if terminal {
			sub.close()
		}
	}
}

func (h *Hub) remove(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	subs := h.subs[sub.WorkflowID]
	for i, s := range subs {
		if s == sub {
			h.subs[sub.WorkflowID] = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(h.subs[sub.WorkflowID]) == 0 {
		delete(h.subs, sub.WorkflowID)
	}
}

// SubscriberCount reports live subscribers for a workflow.
func (h *Hub) SubscriberCount(workflowID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs[workflowID])
}
