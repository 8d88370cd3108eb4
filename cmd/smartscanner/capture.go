package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"
)

func runCapture() {
	fs := flag.NewFlagSet("capture", flag.ExitOnError)
	save := fs.Bool("save", false, "Save the still to the capture directory")
	timeout := fs.Duration("timeout", 10*time.Second, "Request timeout")
	fs.Parse(os.Args[1:])

	s := openSession()
	defer s.Close()

	url := fs.Arg(0)
	if url == "" {
		url = s.cfg.Stream.CameraURL
	}
	if url == "" {
		fmt.Fprintln(os.Stderr, "usage: smartscanner capture [-save] <url>")
		fmt.Fprintln(os.Stderr, "  or set stream.camera_url / SMARTSCANNER_CAMERA_URL")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	msg, err := s.app.Capture(ctx, url)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	fmt.Println(msg)

	if !*save {
		return
	}
	msg, err = s.app.Save()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		return
	}
	fmt.Println(msg)
}
