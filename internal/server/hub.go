package server

import (
	"context"
	"sync"

	"threatforge/internal/orchestrator"
)

// ProgressHub fans generation progress events out to websocket
// watchers. Slow subscribers lose intermediate events, never the hub.
type ProgressHub struct {
	mu   sync.Mutex
	subs map[string]map[chan orchestrator.ProgressEvent]struct{}
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subs: make(map[string]map[chan orchestrator.ProgressEvent]struct{})}
}

// Publish delivers ev to every watcher of its threat model. Full
// subscriber buffers drop the oldest event to make room.
func (h *ProgressHub) Publish(ev orchestrator.ProgressEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[ev.ThreatModelID] {
		select {
		case ch <- ev:
			continue
		default:
		}
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe registers a watcher for one threat model; the channel
// closes when ctx ends.
func (h *ProgressHub) Subscribe(ctx context.Context, threatModelID string) <-chan orchestrator.ProgressEvent {
	ch := make(chan orchestrator.ProgressEvent, 32)

	h.mu.Lock()
	if h.subs[threatModelID] == nil {
		h.subs[threatModelID] = make(map[chan orchestrator.ProgressEvent]struct{})
	}
	h.subs[threatModelID][ch] = struct{}{}
	h.mu.Unlock()

	go func() {
		<-ctx.Done()
		h.mu.Lock()
		if set := h.subs[threatModelID]; set != nil {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, threatModelID)
			}
		}
		h.mu.Unlock()
		close(ch)
	}()
	return ch
}
