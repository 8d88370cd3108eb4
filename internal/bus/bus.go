// Package bus provides ordered per-topic delivery between the capture and
// probe collaborators and the stream and scan components.
//
// Every topic has at most one subscriber. Publishing never blocks: envelopes
// are appended to the subscriber's unbounded mailbox and a pump goroutine
// hands them out in FIFO order. Each envelope is stamped with a per-topic
// arrival sequence that starts at 1 and increases by one per publish.
package bus

import (
	"errors"
	"sync"
	"sync/atomic"
)

var (
	// ErrSubscriberExists is returned when a topic already has a subscriber.
	ErrSubscriberExists = errors.New("bus: topic already has a subscriber")
	// ErrClosed is returned by Subscribe after Close.
	ErrClosed = errors.New("bus: closed")
)

// Topic names a delivery channel.
type Topic string

// StreamTopic is the topic a stream collaborator publishes frames on.
func StreamTopic(sessionID string) Topic {
	return Topic("stream:" + sessionID)
}

// ScanTopic is the topic a probe collaborator publishes results on.
func ScanTopic(jobID string) Topic {
	return Topic("scan:" + jobID)
}

// Envelope is a single delivered event.
type Envelope struct {
	Topic   Topic
	Seq     uint64 // arrival order within the topic
	Payload any
}

// Stats is a snapshot of bus counters.
type Stats struct {
	Published uint64
	Delivered uint64
	Dropped   uint64 // published with no subscriber
}

// Bus routes published payloads to topic subscribers. Goroutine-safe.
type Bus struct {
	mu     sync.Mutex
	subs   map[Topic]*Subscription
	closed bool

	published atomic.Uint64
	delivered atomic.Uint64
	dropped   atomic.Uint64
}

// New creates an empty Bus.
func New() *Bus {
	return &Bus{subs: make(map[Topic]*Subscription)}
}

// Publish stamps payload with the next arrival sequence for topic and
// queues it for the subscriber. It returns the sequence and whether a
// subscriber received it. Events published to a topic nobody listens on
// are counted as dropped and get sequence 0.
func (b *Bus) Publish(topic Topic, payload any) (uint64, bool) {
	b.published.Add(1)

	b.mu.Lock()
	defer b.mu.Unlock()

	sub := b.subs[topic]
	if b.closed || sub == nil {
		b.dropped.Add(1)
		return 0, false
	}

	// Stamping and enqueueing under b.mu keeps mailbox order equal to
	// sequence order across concurrent publishers.
	sub.seq++
	env := Envelope{Topic: topic, Seq: sub.seq, Payload: payload}
	if !sub.push(env) {
		b.dropped.Add(1)
		return 0, false
	}
	b.delivered.Add(1)
	return env.Seq, true
}

// Subscribe registers the single subscriber for topic.
func (b *Bus) Subscribe(topic Topic) (*Subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrClosed
	}
	if _, ok := b.subs[topic]; ok {
		return nil, ErrSubscriberExists
	}

	sub := &Subscription{
		bus:    b,
		topic:  topic,
		signal: make(chan struct{}, 1),
		out:    make(chan Envelope),
		done:   make(chan struct{}),
	}
	b.subs[topic] = sub
	go sub.pump()
	return sub, nil
}

// Subscribed reports whether topic currently has a subscriber.
func (b *Bus) Subscribed(topic Topic) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.subs[topic]
	return ok
}

// Stats returns a snapshot of the bus counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Delivered: b.delivered.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Close unsubscribes every subscriber. Safe to call more than once.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription, 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[Topic]*Subscription)
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

func (b *Bus) remove(s *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.subs[s.topic] == s {
		delete(b.subs, s.topic)
	}
}
