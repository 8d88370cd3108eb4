package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sabry-awad97/smart-scanner/internal/journal"
)

func runEvents() {
	fs := flag.NewFlagSet("events", flag.ExitOnError)
	tail := fs.Int("tail", 50, "Number of recent lines to show")
	follow := fs.Bool("f", false, "Follow mode (like tail -f)")
	kind := fs.String("kind", "", "Filter by event kind prefix (e.g. 'scan')")
	level := fs.String("level", "", "Minimum level: debug, info, warn, error")
	job := fs.String("job", "", "Filter by scan job ID")
	streamID := fs.String("stream", "", "Filter by stream session ID")
	rawJSON := fs.Bool("json", false, "Output raw JSON lines")
	fs.Parse(os.Args[1:])

	logPath := eventLogPath(loadConfig())

	f, err := os.Open(logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		fmt.Fprintf(os.Stderr, "  Event log not found at %s\n", logPath)
		fmt.Fprintf(os.Stderr, "  Run a scan or the TUI first to generate events.\n")
		os.Exit(1)
	}
	defer f.Close()

	filter := journal.Filter{
		Kind:     *kind,
		MinLevel: journal.Level(*level),
		Job:      *job,
		Stream:   *streamID,
	}
	emit := func(l journal.Line) {
		if *rawJSON {
			fmt.Println(string(l.Raw))
			return
		}
		fmt.Println(journal.Format(l.Event))
	}

	lines, err := journal.Tail(f, *tail, filter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, l := range lines {
		emit(l)
	}
	if !*follow {
		return
	}

	// Poll for lines appended after the tail.
	reader := bufio.NewReader(f)
	var partial []byte
	for {
		chunk, err := reader.ReadBytes('\n')
		partial = append(partial, chunk...)
		if err != nil {
			if errors.Is(err, io.EOF) {
				time.Sleep(100 * time.Millisecond)
				continue
			}
			return
		}
		if l, ok := journal.Decode(partial); ok && filter.Match(l.Event) {
			emit(l)
		}
		partial = partial[:0]
	}
}
