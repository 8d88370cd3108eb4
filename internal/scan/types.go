package scan

import (
	"fmt"
	"net"
	"strconv"
	"time"
)

// Candidate is one (address, port) pair to probe.
type Candidate struct {
	Address string
	Port    int
}

func (c Candidate) String() string {
	return net.JoinHostPort(c.Address, strconv.Itoa(c.Port))
}

func (c Candidate) validate() error {
	if c.Address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidInput)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidInput, c.Port)
	}
	return nil
}

// Service is an endpoint found by a probe. Identity is (Address, Port).
type Service struct {
	Address string
	Port    int
	Hint    string
}

// ProbeResult is published by the prober for each probed candidate.
type ProbeResult struct {
	JobID   string
	Address string
	Port    int
	Found   bool
	Hint    string
}

// State is the lifecycle state of a scan job.
type State int

const (
	StateIdle State = iota
	StateRunning
	StateCompleted
	StateCancelled
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateCompleted:
		return "completed"
	case StateCancelled:
		return "cancelled"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further events follow.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateCancelled || s == StateFailed
}

// Job is a snapshot of a scan.
type Job struct {
	ID         string
	Total      int
	Scanned    int
	State      State
	Discovered []Service
	StartedAt  time.Time
}

// Started is sent when a job begins running, before any probe is dispatched.
type Started struct {
	JobID     string
	Total     int
	StartedAt time.Time
}

// Progress is sent each time a candidate resolves for the first time.
type Progress struct {
	JobID   string
	Scanned int
	Total   int
	Current Candidate
}

// ServiceDiscovered is sent once per newly found (address, port).
type ServiceDiscovered struct {
	JobID   string
	Service Service
}

// Completed is the terminal event of a scan that probed every candidate.
type Completed struct {
	JobID      string
	Discovered []Service
}

// Cancelled is the terminal event of a cancelled or superseded scan.
type Cancelled struct {
	JobID string
}

// Failed is the terminal event of a scan that could not start.
type Failed struct {
	JobID string
	Err   error
}
