package worker

import (
	"github.com/google/uuid"

	"github.com/banshee-data/trackgeometry/internal/track/aggregation"
)

// Event is a progress update for one job, fanned out to every subscriber.
type Event struct {
	JobID    string               `json:"jobId"`
	Kind     Kind                 `json:"kind"`
	Progress aggregation.Progress `json:"progress"`
}

// subscriberBuffer is the per-subscriber backlog before events are dropped.
const subscriberBuffer = 64

// Subscribe creates a new channel for receiving progress events from every
// job. The returned id is used to Unsubscribe. Slow subscribers miss events
// rather than stalling the worker.
func (w *Worker) Subscribe() (string, <-chan Event) {
	id := uuid.NewString()
	ch := make(chan Event, subscriberBuffer)
	w.subscriberMu.Lock()
	defer w.subscriberMu.Unlock()
	w.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (w *Worker) Unsubscribe(id string) {
	w.subscriberMu.Lock()
	defer w.subscriberMu.Unlock()
	if ch, ok := w.subscribers[id]; ok {
		close(ch)
		delete(w.subscribers, id)
	}
}

func (w *Worker) publish(e Event) {
	w.subscriberMu.Lock()
	defer w.subscriberMu.Unlock()
	for _, ch := range w.subscribers {
		select {
		case ch <- e:
		default:
		}
	}
}
