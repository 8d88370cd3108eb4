// Command smartscanner finds cameras and other services on the local network
// and shows a live camera feed.
//
// Usage:
//
//	smartscanner                 Run the terminal UI
//	smartscanner tui             Run the terminal UI
//	smartscanner scan            Scan the local network and print services
//	smartscanner capture <url>   Capture one still, optionally save it
//	smartscanner history         Recent scans, services and captures
//	smartscanner events          JSONL event journal viewer
package main

import (
	"fmt"
	"os"
)

const usage = `smartscanner - network scanner and camera viewer

Usage:
  smartscanner [command] [flags]

Commands:
  tui         Terminal UI (default)
  scan        Scan the local network and print discovered services
  capture     Capture a still from a camera URL
  history     Recent scans, services and captures
  events      JSONL event journal viewer

Environment:
  SMARTSCANNER_SUBNET      Subnet to scan, e.g. 192.168.1.0/24
  SMARTSCANNER_CAMERA_URL  Camera streamed when none was discovered
  SMARTSCANNER_TRACE       Journal every frame decision when set

Configuration is read from ~/.smartscanner/config.yaml.
Run 'smartscanner <command> -h' for command-specific help.
`

func main() {
	cmd := "tui"
	if len(os.Args) >= 2 {
		cmd = os.Args[1]
		// Strip the program name + subcommand so flag sets see only their flags
		os.Args = os.Args[1:]
	}

	switch cmd {
	case "tui":
		runTUI()
	case "scan":
		runScan()
	case "capture":
		runCapture()
	case "history":
		runHistory()
	case "events":
		runEvents()
	case "-h", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "smartscanner: unknown command %q\n\n", cmd)
		fmt.Print(usage)
		os.Exit(1)
	}
}
