package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/sabry-awad97/smart-scanner/internal/store"
)

func runHistory() {
	fs := flag.NewFlagSet("history", flag.ExitOnError)
	limit := fs.Int("n", 10, "Number of scans and captures to show")
	jobID := fs.String("job", "", "Show every service of one scan")
	fs.Parse(os.Args[1:])

	cfg := loadConfig()
	st := openDB(cfg)
	defer st.Close()

	if *jobID != "" {
		showScan(st, *jobID)
		return
	}

	scans, err := st.RecentScans(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("Recent scans (%d)\n", len(scans))
	fmt.Println("────────────────────────────────────────────────────────────")
	for _, sc := range scans {
		fmt.Printf("  %s  %-10s %5d/%-5d found=%-3d %s\n",
			sc.StartedAt.Local().Format("2006-01-02 15:04"),
			sc.State, sc.Scanned, sc.Total, sc.Found, sc.ID)
		if sc.Error != "" {
			fmt.Printf("      err: %s\n", truncate(sc.Error, 70))
		}
	}

	caps, err := st.RecentCaptures(*limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Printf("\nRecent captures (%d)\n", len(caps))
	fmt.Println("────────────────────────────────────────────────────────────")
	for _, c := range caps {
		fmt.Printf("  %s  %4dx%-4d %-4s %s\n",
			c.SavedAt.Local().Format("2006-01-02 15:04"),
			c.Width, c.Height, c.Format, c.Path)
		fmt.Printf("      from %s\n", truncate(c.URL, 70))
	}
}

func showScan(st *store.Store, id string) {
	sc, err := st.GetScan(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	dur := "running"
	if !sc.FinishedAt.IsZero() {
		dur = sc.FinishedAt.Sub(sc.StartedAt).Round(time.Millisecond).String()
	}
	fmt.Printf("Scan %s: %s, %d/%d scanned, %s\n", sc.ID, sc.State, sc.Scanned, sc.Total, dur)

	svcs, err := st.ServicesForScan(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	for _, s := range svcs {
		fmt.Printf("  %-21s %s\n", fmt.Sprintf("%s:%d", s.Address, s.Port), s.Hint)
	}
}
