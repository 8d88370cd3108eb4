package journal

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"
)

func lines(t *testing.T, buf *bytes.Buffer) []string {
	t.Helper()
	s := strings.TrimSpace(buf.String())
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

func TestRecordWritesJSONL(t *testing.T) {
	var buf bytes.Buffer
	j := New(&buf)

	before := time.Now()
	j.Record(Event{Kind: KindScanFound, Job: "job1", Address: "192.168.1.20", Port: 4747, Hint: "IP Camera"})
	j.Close()

	ls := lines(t, &buf)
	if len(ls) != 1 {
		t.Fatalf("expected 1 line, got %d", len(ls))
	}
	var ev Event
	if err := json.Unmarshal([]byte(ls[0]), &ev); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if ev.Kind != KindScanFound || ev.Port != 4747 || ev.Address != "192.168.1.20" {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Level != LevelInfo {
		t.Errorf("expected default level info, got %q", ev.Level)
	}
	if ev.Time.Before(before) {
		t.Errorf("time not stamped: %v", ev.Time)
	}
	if ev.Run != j.Run() || len(ev.Run) != 8 {
		t.Errorf("run id %q, journal %q", ev.Run, j.Run())
	}
}

func TestOmitsEmptyFields(t *testing.T) {
	var buf bytes.Buffer
	j := New(&buf)
	j.Record(Event{Kind: KindStartup})
	j.Close()

	line := strings.TrimSpace(buf.String())
	for _, field := range []string{"stream", "job", "url", "addr", "port", "count", "latency_ms", "err", "msg"} {
		if strings.Contains(line, `"`+field+`"`) {
			t.Errorf("field %q should be omitted: %s", field, line)
		}
	}
}

func TestConcurrentRecord(t *testing.T) {
	var buf bytes.Buffer
	j := New(&buf)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			j.Record(Event{Kind: KindScanProgress, Count: i})
		}(i)
	}
	wg.Wait()
	j.Close()

	ls := lines(t, &buf)
	if len(ls) != 100 {
		t.Fatalf("expected 100 lines, got %d", len(ls))
	}
	for i, l := range ls {
		if !json.Valid([]byte(l)) {
			t.Errorf("line %d invalid: %s", i, l)
		}
	}
}

func TestCloseIsIdempotentAndDropsLateRecords(t *testing.T) {
	var buf bytes.Buffer
	j := New(&buf)
	j.Info(KindStartup, "start")
	j.Close()
	j.Close()

	j.Info(KindShutdown, "late")
	if j.Dropped() != 1 {
		t.Errorf("expected 1 dropped, got %d", j.Dropped())
	}
	if len(lines(t, &buf)) != 1 {
		t.Errorf("late record was written")
	}
}

type stallWriter struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func (w *stallWriter) Write(p []byte) (int, error) {
	w.once.Do(func() {
		close(w.entered)
		<-w.release
	})
	return len(p), nil
}

func TestFullQueueDrops(t *testing.T) {
	w := &stallWriter{entered: make(chan struct{}), release: make(chan struct{})}
	j := New(w)

	j.Record(Event{Kind: KindStreamFrame})
	<-w.entered

	for i := 0; i < queueSize+10; i++ {
		j.Record(Event{Kind: KindStreamFrame})
	}
	if j.Dropped() == 0 {
		t.Error("expected drops with a stalled writer")
	}
	close(w.release)
	j.Close()
}

func TestErrorHelper(t *testing.T) {
	var buf bytes.Buffer
	j := New(&buf)
	j.Error(KindStoreError, errors.New("disk full"))
	j.Error(KindStoreError, nil)
	j.Close()

	ls := lines(t, &buf)
	if len(ls) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(ls))
	}
	var ev Event
	json.Unmarshal([]byte(ls[0]), &ev)
	if ev.Level != LevelError || ev.Err != "disk full" {
		t.Errorf("unexpected %+v", ev)
	}
}

func TestAttachMirrorsIntoRing(t *testing.T) {
	ring := NewRing(4)
	j := Discard()
	j.Attach(ring)

	for i := 0; i < 6; i++ {
		j.Record(Event{Kind: KindScanProgress, Count: i})
	}
	j.Close()

	got := ring.Recent(0)
	if len(got) != 4 {
		t.Fatalf("expected 4 events, got %d", len(got))
	}
	if got[0].Count != 2 || got[3].Count != 5 {
		t.Errorf("expected counts 2..5, got %d..%d", got[0].Count, got[3].Count)
	}
}
