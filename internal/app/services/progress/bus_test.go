package progress

import (
	"testing"
	"time"

	"github.com/webpdtool/engine/internal/app/domain/session"
)

func TestSubscribeReceivesPublishedSnapshot(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	b.Publish(session.Snapshot{SessionID: "sess-1", Status: session.StatusRunning})

	select {
	case snap := <-ch:
		if snap.SessionID != "sess-1" {
			t.Fatalf("unexpected snapshot: %+v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published snapshot")
	}
}

func TestPublishFansOutToMultipleSubscribers(t *testing.T) {
	b := New()
	ch1, unsub1 := b.Subscribe()
	defer unsub1()
	ch2, unsub2 := b.Subscribe()
	defer unsub2()

	b.Publish(session.Snapshot{SessionID: "sess-1"})

	for _, ch := range []<-chan session.Snapshot{ch1, ch2} {
		select {
		case <-ch:
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for snapshot on one subscriber")
		}
	}
}

func TestPublishNeverBlocksWhenSubscriberChannelIsFull(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	defer unsubscribe()

	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			b.Publish(session.Snapshot{SessionID: "sess-1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a full subscriber channel")
	}

	select {
	case <-ch:
	default:
		t.Fatal("expected at least one buffered snapshot to remain readable")
	}
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	b := New()
	ch, unsubscribe := b.Subscribe()
	unsubscribe()

	b.Publish(session.Snapshot{SessionID: "sess-1"})

	_, ok := <-ch
	if ok {
		t.Fatal("expected channel to be closed after unsubscribe")
	}
}

func TestPublishWithNoSubscribersIsNoop(t *testing.T) {
	b := New()
	b.Publish(session.Snapshot{SessionID: "sess-1"})
}
