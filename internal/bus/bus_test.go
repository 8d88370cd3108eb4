package bus

import (
	"errors"
	"sync"
	"testing"
	"time"
)

func recv(t *testing.T, sub *Subscription) Envelope {
	t.Helper()
	select {
	case env, ok := <-sub.C():
		if !ok {
			t.Fatal("subscription channel closed")
		}
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope")
	}
	return Envelope{}
}

func TestPublishDeliversInOrderWithSequence(t *testing.T) {
	b := New()
	defer b.Close()

	sub, err := b.Subscribe(StreamTopic("s1"))
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 0; i < 100; i++ {
		seq, ok := b.Publish(StreamTopic("s1"), i)
		if !ok {
			t.Fatalf("publish %d not delivered", i)
		}
		if seq != uint64(i+1) {
			t.Fatalf("publish %d: expected seq %d, got %d", i, i+1, seq)
		}
	}

	for i := 0; i < 100; i++ {
		env := recv(t, sub)
		if env.Payload.(int) != i {
			t.Fatalf("expected payload %d, got %v", i, env.Payload)
		}
		if env.Seq != uint64(i+1) {
			t.Fatalf("expected seq %d, got %d", i+1, env.Seq)
		}
		if env.Topic != StreamTopic("s1") {
			t.Errorf("unexpected topic %q", env.Topic)
		}
	}
}

func TestPublishWithoutSubscriberIsDropped(t *testing.T) {
	b := New()
	defer b.Close()

	seq, ok := b.Publish(ScanTopic("nobody"), "x")
	if ok || seq != 0 {
		t.Errorf("expected (0, false), got (%d, %v)", seq, ok)
	}

	st := b.Stats()
	if st.Published != 1 || st.Dropped != 1 || st.Delivered != 0 {
		t.Errorf("unexpected stats %+v", st)
	}
}

func TestSubscribeTwiceFails(t *testing.T) {
	b := New()
	defer b.Close()

	if _, err := b.Subscribe(ScanTopic("j")); err != nil {
		t.Fatalf("first subscribe: %v", err)
	}
	if _, err := b.Subscribe(ScanTopic("j")); !errors.Is(err, ErrSubscriberExists) {
		t.Errorf("expected ErrSubscriberExists, got %v", err)
	}
}

func TestTopicsAreIndependent(t *testing.T) {
	b := New()
	defer b.Close()

	a, _ := b.Subscribe(StreamTopic("a"))
	c, _ := b.Subscribe(StreamTopic("c"))

	b.Publish(StreamTopic("a"), "a1")
	b.Publish(StreamTopic("c"), "c1")
	b.Publish(StreamTopic("a"), "a2")

	if env := recv(t, a); env.Payload != "a1" || env.Seq != 1 {
		t.Errorf("unexpected %+v", env)
	}
	if env := recv(t, a); env.Payload != "a2" || env.Seq != 2 {
		t.Errorf("unexpected %+v", env)
	}
	if env := recv(t, c); env.Payload != "c1" || env.Seq != 1 {
		t.Errorf("unexpected %+v", env)
	}
}

func TestCloseUnsubscribesAndAllowsResubscribe(t *testing.T) {
	b := New()
	defer b.Close()

	sub, _ := b.Subscribe(ScanTopic("j"))
	sub.Close()
	sub.Close() // idempotent

	if b.Subscribed(ScanTopic("j")) {
		t.Fatal("topic still subscribed after Close")
	}

	// Channel closes after unsubscribe.
	select {
	case _, ok := <-sub.C():
		if ok {
			t.Error("expected closed channel")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed")
	}

	if _, ok := b.Publish(ScanTopic("j"), 1); ok {
		t.Error("publish after unsubscribe should be dropped")
	}

	sub2, err := b.Subscribe(ScanTopic("j"))
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	seq, _ := b.Publish(ScanTopic("j"), 2)
	if seq != 1 {
		t.Errorf("fresh subscription should restart sequence, got %d", seq)
	}
	recv(t, sub2)
}

func TestConcurrentPublishersKeepSequenceOrder(t *testing.T) {
	b := New()
	defer b.Close()

	sub, _ := b.Subscribe(StreamTopic("s"))

	const publishers = 8
	const each = 200
	var wg sync.WaitGroup
	for p := 0; p < publishers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < each; i++ {
				b.Publish(StreamTopic("s"), i)
			}
		}()
	}
	wg.Wait()

	var last uint64
	for i := 0; i < publishers*each; i++ {
		env := recv(t, sub)
		if env.Seq != last+1 {
			t.Fatalf("sequence gap: got %d after %d", env.Seq, last)
		}
		last = env.Seq
	}
}

func TestBusCloseIsIdempotentAndRejectsSubscribe(t *testing.T) {
	b := New()
	sub, _ := b.Subscribe(StreamTopic("s"))
	b.Close()
	b.Close()

	if _, err := b.Subscribe(StreamTopic("t")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if _, ok := b.Publish(StreamTopic("s"), 1); ok {
		t.Error("publish after close should be dropped")
	}
	sub.Close()
}
