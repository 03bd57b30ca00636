package bus

import (
	"context"
	"testing"
	"time"
)

func TestInputRoundTrip(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	in := InputEvent{Params: InputParams{Text: "hello"}}
	if ok := b.PublishInput(context.Background(), in); !ok {
		t.Fatal("expected input publish to succeed")
	}

	out, ok := b.ConsumeInput(context.Background())
	if !ok {
		t.Fatal("expected input consume to succeed")
	}
	if out.Params.Text != in.Params.Text {
		t.Fatalf("text = %q, want %q", out.Params.Text, in.Params.Text)
	}
}

func TestCloseStopsBusOperations(t *testing.T) {
	b := New()
	b.Close()

	if ok := b.PublishInput(context.Background(), InputEvent{}); ok {
		t.Fatal("expected input publish to fail after close")
	}
	if _, ok := b.ConsumeInput(context.Background()); ok {
		t.Fatal("expected input consume to stop after close")
	}
	if ok := b.PublishEvent(context.Background(), Event{Type: EventThinking}); ok {
		t.Fatal("expected event publish to fail after close")
	}
}

func TestContextCancellation(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ok := b.PublishInput(ctx, InputEvent{}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
	if _, ok := b.ConsumeInput(ctx); ok {
		t.Fatal("expected consume to fail on canceled context")
	}
}

func TestEventFanout(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	first, cancelFirst := b.SubscribeEvents(context.Background(), 4)
	defer cancelFirst()
	second, cancelSecond := b.SubscribeEvents(context.Background(), 4)
	defer cancelSecond()

	if ok := b.PublishEvent(context.Background(), Event{Type: EventOutputDelivered, Driver: "chat"}); !ok {
		t.Fatal("expected event publish to succeed")
	}

	for _, ch := range []<-chan Event{first, second} {
		select {
		case ev := <-ch:
			if ev.Type != EventOutputDelivered {
				t.Fatalf("type = %q, want %q", ev.Type, EventOutputDelivered)
			}
			if ev.At.IsZero() {
				t.Fatal("expected At to be stamped")
			}
		case <-time.After(time.Second):
			t.Fatal("expected event to fan out to every subscriber")
		}
	}
}

func TestSlowSubscriberDropsEvents(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ch, cancel := b.SubscribeEvents(context.Background(), 1)
	defer cancel()

	// Second publish overflows the buffer and must not block.
	b.PublishEvent(context.Background(), Event{Type: EventThinking})
	done := make(chan struct{})
	go func() {
		b.PublishEvent(context.Background(), Event{Type: EventThinking})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("expected publish to a full subscriber to drop, not block")
	}

	<-ch
	select {
	case _, ok := <-ch:
		if ok {
			t.Fatal("expected the overflow event to be dropped")
		}
	default:
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	t.Cleanup(b.Close)

	ch, cancel := b.SubscribeEvents(context.Background(), 1)
	cancel()

	if _, ok := <-ch; ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}

	// A second cancel is a no-op.
	cancel()
}
