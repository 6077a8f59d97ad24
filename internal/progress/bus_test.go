package progress

import (
	"context"
	"testing"
	"time"

	"github.com/forgehook/forgehostd/pkg/model"
)

func TestBus_PublishDeliversInOrder(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, _ := b.Subscribe(ctx, "install-1")

	b.Publish("install-1", model.LifecycleEvent{Type: model.EventInstalling, InstanceID: "i1"})
	b.Publish("install-1", model.LifecycleEvent{Type: model.EventInstalled, InstanceID: "i1"})

	first := <-ch
	if first.Event.Type != model.EventInstalling {
		t.Errorf("first event = %v, want installing", first.Event.Type)
	}

	second, ok := <-ch
	if !ok {
		t.Fatal("channel closed before delivering terminal event")
	}
	if second.Event.Type != model.EventInstalled {
		t.Errorf("second event = %v, want installed", second.Event.Type)
	}

	select {
	case _, open := <-ch:
		if open {
			t.Error("channel should be closed after terminal event")
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel to close after terminal event")
	}
}

func TestBus_SubscriberCount(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b.Subscribe(ctx, "install-1")
	b.Subscribe(ctx, "install-2")
	if got := b.SubscriberCount(); got != 2 {
		t.Errorf("SubscriberCount() = %d, want 2", got)
	}
}

func TestBus_UnsubscribeOnCancel(t *testing.T) {
	b := NewBus()
	ctx, cancel := context.WithCancel(context.Background())

	ch, _ := b.Subscribe(ctx, "install-1")
	cancel()

	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for channel to close after context cancel")
	}

	time.Sleep(10 * time.Millisecond)
	if got := b.SubscriberCount(); got != 0 {
		t.Errorf("SubscriberCount() after cancel = %d, want 0", got)
	}
}
