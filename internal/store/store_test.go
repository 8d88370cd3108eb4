package store

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openMem(t *testing.T) *Store {
	t.Helper()
	st, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestOpen(t *testing.T) {
	st := openMem(t)

	for _, table := range []string{"scans", "services", "captures"} {
		var name string
		err := st.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Fatalf("%s table not created: %v", table, err)
		}
	}
}

func TestOpenFileUsesWAL(t *testing.T) {
	st, err := Open(filepath.Join(t.TempDir(), "scanner.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	defer st.Close()

	var mode string
	if err := st.db.QueryRow("PRAGMA journal_mode").Scan(&mode); err != nil {
		t.Fatalf("journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("expected wal, got %q", mode)
	}
}

func TestSaveScanUpserts(t *testing.T) {
	st := openMem(t)
	started := time.Now().Add(-time.Minute).Truncate(time.Second)

	if err := st.SaveScan(Scan{ID: "job1", State: "running", Total: 10, StartedAt: started}); err != nil {
		t.Fatalf("SaveScan: %v", err)
	}
	got, err := st.GetScan("job1")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.State != "running" || !got.FinishedAt.IsZero() {
		t.Errorf("unexpected running row %+v", got)
	}

	finished := started.Add(30 * time.Second)
	err = st.SaveScan(Scan{ID: "job1", State: "completed", Total: 10, Scanned: 10, Found: 2, StartedAt: started, FinishedAt: finished})
	if err != nil {
		t.Fatalf("SaveScan update: %v", err)
	}
	got, err = st.GetScan("job1")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.State != "completed" || got.Scanned != 10 || got.Found != 2 {
		t.Errorf("unexpected completed row %+v", got)
	}
	if !got.FinishedAt.Equal(finished) {
		t.Errorf("finished_at: expected %v, got %v", finished, got.FinishedAt)
	}
	if !got.StartedAt.Equal(started) {
		t.Errorf("started_at: expected %v, got %v", started, got.StartedAt)
	}
}

func TestSaveScanKeepsTerminalState(t *testing.T) {
	st := openMem(t)
	now := time.Now()

	st.SaveScan(Scan{ID: "j", State: "completed", Total: 0, StartedAt: now, FinishedAt: now})
	st.SaveScan(Scan{ID: "j", State: "running", Total: 0, StartedAt: now})

	got, err := st.GetScan("j")
	if err != nil {
		t.Fatalf("GetScan: %v", err)
	}
	if got.State != "completed" || got.FinishedAt.IsZero() {
		t.Errorf("terminal row overwritten: %+v", got)
	}
}

func TestGetScanNotFound(t *testing.T) {
	st := openMem(t)
	if _, err := st.GetScan("missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRecentScansNewestFirst(t *testing.T) {
	st := openMem(t)
	base := time.Now()
	for i := 0; i < 5; i++ {
		st.SaveScan(Scan{ID: fmt.Sprintf("job%d", i), State: "completed", StartedAt: base.Add(time.Duration(i) * time.Minute)})
	}

	scans, err := st.RecentScans(3)
	if err != nil {
		t.Fatalf("RecentScans: %v", err)
	}
	if len(scans) != 3 {
		t.Fatalf("expected 3 scans, got %d", len(scans))
	}
	for i, want := range []string{"job4", "job3", "job2"} {
		if scans[i].ID != want {
			t.Errorf("position %d: expected %s, got %s", i, want, scans[i].ID)
		}
	}
}

func TestSaveServiceIgnoresDuplicates(t *testing.T) {
	st := openMem(t)
	now := time.Now()

	svcs := []Service{
		{ScanID: "j", Address: "192.168.1.20", Port: 4747, Hint: "IP Camera", FoundAt: now},
		{ScanID: "j", Address: "192.168.1.5", Port: 22, Hint: "SSH", FoundAt: now},
		{ScanID: "j", Address: "192.168.1.20", Port: 4747, Hint: "IP Camera", FoundAt: now},
		{ScanID: "other", Address: "192.168.1.20", Port: 4747, Hint: "IP Camera", FoundAt: now},
	}
	inserted := 0
	for _, svc := range svcs {
		ok, err := st.SaveService(svc)
		if err != nil {
			t.Fatalf("SaveService: %v", err)
		}
		if ok {
			inserted++
		}
	}
	if inserted != 3 {
		t.Errorf("expected 3 inserts, got %d", inserted)
	}

	got, err := st.ServicesForScan("j")
	if err != nil {
		t.Fatalf("ServicesForScan: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 services, got %d", len(got))
	}
	if got[0].Port != 4747 || got[1].Port != 22 {
		t.Errorf("expected discovery order, got %+v", got)
	}
}

func TestCaptures(t *testing.T) {
	st := openMem(t)
	base := time.Now()

	st.SaveCapture(Capture{Path: "/tmp/a.png", URL: "http://cam/shot.jpg", Width: 640, Height: 480, Format: "jpeg", SavedAt: base})
	st.SaveCapture(Capture{Path: "/tmp/b.png", URL: "http://cam/shot.jpg", Width: 800, Height: 600, Format: "png", SavedAt: base.Add(time.Second)})

	got, err := st.RecentCaptures(10)
	if err != nil {
		t.Fatalf("RecentCaptures: %v", err)
	}
	if len(got) != 2 || got[0].Path != "/tmp/b.png" {
		t.Fatalf("unexpected captures %+v", got)
	}
	if got[0].Width != 800 || got[0].Format != "png" {
		t.Errorf("unexpected capture %+v", got[0])
	}
}

func TestConcurrentWrites(t *testing.T) {
	st := openMem(t)
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for p := 0; p < 20; p++ {
				if _, err := st.SaveService(Service{ScanID: "j", Address: fmt.Sprintf("10.0.0.%d", i), Port: p + 1, FoundAt: now}); err != nil {
					t.Errorf("SaveService: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	got, err := st.ServicesForScan("j")
	if err != nil {
		t.Fatalf("ServicesForScan: %v", err)
	}
	if len(got) != 200 {
		t.Errorf("expected 200 services, got %d", len(got))
	}
}
