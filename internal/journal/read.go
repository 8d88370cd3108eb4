package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Filter selects events when reading a journal. Zero fields match all.
type Filter struct {
	Kind     string // prefix, e.g. "scan"
	MinLevel Level
	Job      string
	Stream   string
}

// Match reports whether e passes f.
func (f Filter) Match(e Event) bool {
	if f.Kind != "" && !strings.HasPrefix(string(e.Kind), f.Kind) {
		return false
	}
	if f.MinLevel != "" && e.Level.Rank() < f.MinLevel.Rank() {
		return false
	}
	if f.Job != "" && e.Job != f.Job {
		return false
	}
	if f.Stream != "" && e.Stream != f.Stream {
		return false
	}
	return true
}

// Line is a decoded journal line and its raw JSON.
type Line struct {
	Event Event
	Raw   []byte
}

// Tail returns the last n lines of r passing f. Lines that are not valid
// JSON are skipped.
func Tail(r io.Reader, n int, f Filter) ([]Line, error) {
	if n <= 0 {
		return nil, nil
	}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 256*1024)

	out := make([]Line, 0, n)
	for sc.Scan() {
		l, ok := Decode(sc.Bytes())
		if !ok || !f.Match(l.Event) {
			continue
		}
		if len(out) == n {
			copy(out, out[1:])
			out = out[:n-1]
		}
		out = append(out, l)
	}
	return out, sc.Err()
}

// Decode parses one journal line, copying raw.
func Decode(raw []byte) (Line, bool) {
	raw = []byte(strings.TrimRight(string(raw), "\r\n"))
	if len(raw) == 0 {
		return Line{}, false
	}
	var e Event
	if json.Unmarshal(raw, &e) != nil {
		return Line{}, false
	}
	return Line{Event: e, Raw: raw}, true
}

// Format renders e on one line for terminal output.
func Format(e Event) string {
	lvl := strings.ToUpper(string(e.Level))
	if lvl == "" {
		lvl = "?"
	}
	parts := []string{fmt.Sprintf("%s %-5s %-14s", e.Time.Format("15:04:05.000"), lvl, e.Kind)}

	if e.Job != "" {
		parts = append(parts, "job="+short(e.Job))
	}
	if e.Stream != "" {
		parts = append(parts, "stream="+short(e.Stream))
	}
	if e.State != "" {
		parts = append(parts, "state="+e.State)
	}
	if e.URL != "" {
		parts = append(parts, "url="+e.URL)
	}
	if e.Address != "" {
		parts = append(parts, fmt.Sprintf("%s:%d", e.Address, e.Port))
	}
	if e.Hint != "" {
		parts = append(parts, fmt.Sprintf("(%s)", e.Hint))
	}
	if e.Total > 0 {
		parts = append(parts, fmt.Sprintf("%d/%d", e.Count, e.Total))
	} else if e.Count > 0 {
		parts = append(parts, fmt.Sprintf("n=%d", e.Count))
	}
	if e.LatencyMs > 0 {
		parts = append(parts, fmt.Sprintf("%dms", e.LatencyMs))
	}
	if e.Msg != "" {
		parts = append(parts, e.Msg)
	}
	if e.Err != "" {
		parts = append(parts, "err="+e.Err)
	}
	return strings.Join(parts, " ")
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
