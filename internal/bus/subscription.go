package bus

import "sync"

// Subscription is the receiving end of one topic.
//
// Goroutine safety:
// push is called with Bus.mu held; pump is the only reader of queue besides
// push. Subscription.mu guards queue and stopped only, so no nested lock is
// taken from the pump side.
type Subscription struct {
	bus   *Bus
	topic Topic
	seq   uint64 // guarded by bus.mu

	mu      sync.Mutex
	queue   []Envelope
	stopped bool

	signal   chan struct{} // cap 1, wakes the pump
	out      chan Envelope
	done     chan struct{}
	stopOnce sync.Once
}

// C returns the delivery channel. It is closed after Close.
func (s *Subscription) C() <-chan Envelope {
	return s.out
}

// Close unsubscribes and discards anything still queued. Idempotent.
func (s *Subscription) Close() {
	s.bus.remove(s)
	s.stop()
}

func (s *Subscription) stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.queue = nil
		s.mu.Unlock()
		close(s.done)
	})
}

func (s *Subscription) push(env Envelope) bool {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return false
	}
	s.queue = append(s.queue, env)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

func (s *Subscription) pump() {
	defer close(s.out)
	for {
		s.mu.Lock()
		if len(s.queue) == 0 {
			s.mu.Unlock()
			select {
			case <-s.signal:
				continue
			case <-s.done:
				return
			}
		}
		env := s.queue[0]
		s.queue[0] = Envelope{}
		s.queue = s.queue[1:]
		s.mu.Unlock()

		select {
		case s.out <- env:
		case <-s.done:
			return
		}
	}
}
