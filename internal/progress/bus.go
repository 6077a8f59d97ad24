// Package progress implements the Progress Bus (F): a per-installId event
// stream with a 30s heartbeat, where a terminal event closes and removes
// its subscriber (spec.md §5's backpressure rule, SPEC_FULL.md C.3).
// Grounded on the teacher's internal/hooks/registry.go mutex+map
// registration-table shape (here keyed by installId instead of eventKey)
// and internal/status/builder.go's snapshot-then-publish idea, generalized
// from a status-string builder to a typed event channel.
package progress

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/forgehook/forgehostd/pkg/model"
)

// Envelope is one message delivered on an installId's stream: either a
// LifecycleEvent or a synthetic heartbeat.
type Envelope struct {
	Type  string               `json:"type"` // "event" | "heartbeat"
	Event *model.LifecycleEvent `json:"event,omitempty"`
}

const heartbeatInterval = 30 * time.Second

var terminalEventTypes = map[model.LifecycleEventType]bool{
	model.EventInstalled:    true,
	model.EventUninstalled:  true,
	model.EventError:        true,
}

type subscriber struct {
	ch        chan Envelope
	cancel    context.CancelFunc
	closeOnce sync.Once
}

// Bus fans lifecycle events out to subscribers grouped by installId. Each
// installId's subscriber list is protected by its own lock (spec.md §5:
// "no operation holds two locks simultaneously").
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]*subscriber
}

// NewBus constructs an empty Bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]*subscriber)}
}

// Subscribe registers a new buffered-channel subscriber for installId and
// starts its heartbeat ticker. Callers must range over the returned
// channel until it closes and then discard it; Unsubscribe need not be
// called explicitly for the terminal-event case, but callers that stop
// reading early should call the returned cancel func.
func (b *Bus) Subscribe(ctx context.Context, installID string) (<-chan Envelope, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscriber{ch: make(chan Envelope, 16), cancel: cancel}

	b.mu.Lock()
	b.subscribers[installID] = append(b.subscribers[installID], sub)
	b.mu.Unlock()

	go b.heartbeatLoop(ctx, installID, sub)

	go func() {
		<-ctx.Done()
		b.removeSubscriber(installID, sub)
	}()

	return sub.ch, cancel
}

func (b *Bus) heartbeatLoop(ctx context.Context, installID string, sub *subscriber) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			select {
			case sub.ch <- Envelope{Type: "heartbeat"}:
			default:
				slog.Debug("progress: dropping heartbeat for slow subscriber", "installId", installID)
			}
		}
	}
}

// Publish delivers event to every subscriber of event.InstanceID's install
// stream, in call order (spec.md §5: "install progress events for one
// installId are delivered in generation order"). A terminal event closes
// and removes each subscriber after delivery.
func (b *Bus) Publish(installID string, event model.LifecycleEvent) {
	b.mu.Lock()
	subs := append([]*subscriber(nil), b.subscribers[installID]...)
	b.mu.Unlock()

	env := Envelope{Type: "event", Event: &event}
	terminal := terminalEventTypes[event.Type]

	for _, sub := range subs {
		select {
		case sub.ch <- env:
		default:
			if !terminal {
				slog.Debug("progress: dropping non-final event for slow subscriber", "installId", installID)
				continue
			}
		}
		if terminal {
			b.removeSubscriber(installID, sub)
		}
	}
}

func (b *Bus) removeSubscriber(installID string, target *subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[installID]
	for i, s := range subs {
		if s == target {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.subscribers, installID)
	} else {
		b.subscribers[installID] = subs
	}

	target.cancel()
	target.closeOnce.Do(func() { close(target.ch) })
}

// SubscriberCount reports the number of active subscribers across every
// installId, for the progress-subscriber gauge.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	total := 0
	for _, subs := range b.subscribers {
		total += len(subs)
	}
	return total
}
