package journal

// The drain goroutine is the only reader of j.ch and the only writer to j.w.
// j.mu guards the ring pointer alone; drain releases it before Ring.Push.

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// queueSize bounds pending writes. Record drops when it is full.
const queueSize = 4096

type entry struct {
	line []byte
	ev   Event
}

// Journal writes events as JSONL in the background. Goroutine-safe.
type Journal struct {
	mu   sync.Mutex
	ring *Ring

	run     string
	w       io.Writer
	ch      chan entry
	done    chan struct{}
	dropped atomic.Uint64
	closed  atomic.Bool
	once    sync.Once
}

// New starts a Journal writing to w. Close flushes and stops it.
func New(w io.Writer) *Journal {
	j := &Journal{
		run:  uuid.NewString()[:8],
		w:    w,
		ch:   make(chan entry, queueSize),
		done: make(chan struct{}),
	}
	go j.drain()
	return j
}

// Discard returns a Journal that writes nowhere.
func Discard() *Journal {
	return New(io.Discard)
}

// Run is the id stamped on every event of this process.
func (j *Journal) Run() string {
	return j.run
}

func (j *Journal) drain() {
	defer close(j.done)
	for e := range j.ch {
		if _, err := j.w.Write(e.line); err != nil {
			j.dropped.Add(1)
		}
		j.mu.Lock()
		ring := j.ring
		j.mu.Unlock()
		if ring != nil {
			ring.Push(e.ev)
		}
	}
}

// Record queues e. It never blocks: when the queue is full or the journal is
// closed the event is counted as dropped.
func (j *Journal) Record(e Event) {
	// Close may win the race between the flag check and the send.
	defer func() {
		if recover() != nil {
			j.dropped.Add(1)
		}
	}()
	if j.closed.Load() {
		j.dropped.Add(1)
		return
	}

	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	if e.Level == "" {
		e.Level = LevelInfo
	}
	e.Run = j.run

	line, err := json.Marshal(e)
	if err != nil {
		j.dropped.Add(1)
		return
	}
	line = append(line, '\n')

	select {
	case j.ch <- entry{line: line, ev: e}:
	default:
		j.dropped.Add(1)
	}
}

// Info records an info event with a message.
func (j *Journal) Info(kind Kind, msg string) {
	j.Record(Event{Level: LevelInfo, Kind: kind, Msg: msg})
}

// Error records err under kind. A nil err records an empty string.
func (j *Journal) Error(kind Kind, err error) {
	var s string
	if err != nil {
		s = err.Error()
	}
	j.Record(Event{Level: LevelError, Kind: kind, Err: s})
}

// Attach mirrors every written event into ring.
func (j *Journal) Attach(ring *Ring) {
	j.mu.Lock()
	j.ring = ring
	j.mu.Unlock()
}

// Dropped counts events lost since New.
func (j *Journal) Dropped() uint64 {
	return j.dropped.Load()
}

// Close drains pending events and stops the writer. Later Record calls are
// dropped.
func (j *Journal) Close() {
	j.once.Do(func() {
		j.closed.Store(true)
		close(j.ch)
		<-j.done
		if n := j.dropped.Load(); n > 0 {
			fmt.Fprintf(os.Stderr, "smartscanner: %d journal events dropped in run %s\n", n, j.run)
		}
	})
}
