package frame

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"math/rand"
	"testing"
)

func ev(id string, order uint64) Event {
	return Event{SessionID: "s", Identity: id, Payload: []byte(id), CaptureLatencyMs: int64(order) * 10, ArrivalOrder: order}
}

func TestDuplicateRedeliveryCommitsTwice(t *testing.T) {
	s := NewSequencer()

	// A at 1, unchanged content A at 2, redelivery of the second arrival,
	// then new content B at 3.
	arrivals := []Event{ev("A", 1), ev("A", 2), ev("A", 2), ev("B", 3)}

	var commits []uint64
	for _, a := range arrivals {
		if d := s.OnArrival(a); d.Commit {
			commits = append(commits, d.Frame.ArrivalOrder)
		}
	}

	if len(commits) != 2 {
		t.Fatalf("expected 2 commits, got %d (%v)", len(commits), commits)
	}
	d, ok := s.Displayed()
	if !ok || d.ArrivalOrder != 3 || d.Identity != "B" {
		t.Errorf("expected displayed B@3, got %+v", d)
	}
	if d.LatencyMs != 30 {
		t.Errorf("expected latency 30, got %d", d.LatencyMs)
	}
}

func TestDuplicateIdentityDiscarded(t *testing.T) {
	s := NewSequencer()
	s.OnArrival(ev("A", 1))

	d := s.OnArrival(ev("A", 2))
	if d.Commit || d.Reason != ReasonDuplicate {
		t.Errorf("expected duplicate discard, got %+v", d)
	}
}

func TestStaleArrivalDiscarded(t *testing.T) {
	s := NewSequencer()
	s.OnArrival(ev("B", 5))

	for _, order := range []uint64{5, 4, 1} {
		d := s.OnArrival(ev("C", order))
		if d.Commit || d.Reason != ReasonStale {
			t.Errorf("order %d: expected stale discard, got %+v", order, d)
		}
	}
	if s.lastOrder != 5 {
		t.Errorf("watermark moved to %d", s.lastOrder)
	}
}

func TestCommittedOrderIsStrictlyIncreasing(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	s := NewSequencer()

	var last uint64
	for i := 0; i < 2000; i++ {
		a := Event{
			Identity:     string(rune('a' + r.Intn(4))),
			ArrivalOrder: uint64(r.Intn(500) + 1),
		}
		d := s.OnArrival(a)
		if !d.Commit {
			continue
		}
		if d.Frame.ArrivalOrder <= last {
			t.Fatalf("commit %d not after %d", d.Frame.ArrivalOrder, last)
		}
		last = d.Frame.ArrivalOrder
	}
}

func TestResolveDiscardsSupersededProbe(t *testing.T) {
	s := NewSequencer()

	old := ev("A", 1)
	newer := ev("B", 2)
	if _, ok := s.Admit(old); !ok {
		t.Fatal("old frame should be admitted")
	}
	if _, ok := s.Admit(newer); !ok {
		t.Fatal("newer frame should be admitted")
	}

	// Newer frame finishes decoding first.
	if d := s.Resolve(newer, nil); !d.Commit {
		t.Fatalf("newer frame should commit, got %+v", d)
	}
	d := s.Resolve(old, nil)
	if d.Commit || d.Reason != ReasonSuperseded {
		t.Errorf("expected superseded discard, got %+v", d)
	}
	if disp, _ := s.Displayed(); disp.Identity != "B" {
		t.Errorf("display regressed to %q", disp.Identity)
	}
}

func TestResolveUndecodable(t *testing.T) {
	s := NewSequencer()
	s.OnArrival(ev("A", 1))

	d := s.Resolve(ev("B", 2), errors.New("bad jpeg"))
	if d.Commit || d.Reason != ReasonUndecodable {
		t.Errorf("expected undecodable discard, got %+v", d)
	}
	if disp, _ := s.Displayed(); disp.Identity != "A" {
		t.Errorf("displayed frame changed to %q", disp.Identity)
	}
}

func TestReset(t *testing.T) {
	s := NewSequencer()
	s.OnArrival(ev("A", 9))
	s.Reset()

	if _, ok := s.Displayed(); ok {
		t.Error("displayed frame should be cleared")
	}
	if d := s.OnArrival(ev("A", 1)); !d.Commit {
		t.Errorf("first frame after reset should commit, got %+v", d)
	}
}

func TestDecodeValidator(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 3))
	img.Set(1, 1, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode: %v", err)
	}

	v := DecodeValidator{}
	if err := v.Validate(buf.Bytes()); err != nil {
		t.Errorf("valid png rejected: %v", err)
	}
	if err := v.Validate(nil); !errors.Is(err, ErrEmptyPayload) {
		t.Errorf("expected ErrEmptyPayload, got %v", err)
	}
	if err := v.Validate(buf.Bytes()[:20]); err == nil {
		t.Error("truncated png accepted")
	}
	if err := v.Validate([]byte("not an image")); err == nil {
		t.Error("garbage accepted")
	}
}
