package scraper

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"icafetch/pkg/config"
	errs "icafetch/pkg/errors"
	"icafetch/pkg/feeders"
	"icafetch/pkg/logger"
	"icafetch/pkg/storage"
)

// fakeNavigator stands in for the browser session: FetchArchive materializes
// the feeder's archive bytes in the download directory the way Chrome would
type fakeNavigator struct {
	downloadDir string

	// archives maps feeder id to the zip bytes to place on disk; feeders
	// absent from the map get no file at all (download never arrives)
	archives map[string][]byte

	loginErr     error
	loginCalls   int
	fetchCalls   map[string]int
	failFirstWin map[string]bool
}

func newFakeNavigator(downloadDir string) *fakeNavigator {
	return &fakeNavigator{
		downloadDir:  downloadDir,
		archives:     make(map[string][]byte),
		fetchCalls:   make(map[string]int),
		failFirstWin: make(map[string]bool),
	}
}

func (f *fakeNavigator) Login(ctx context.Context) error {
	f.loginCalls++
	return f.loginErr
}

func (f *fakeNavigator) FetchArchive(ctx context.Context, id string) error {
	f.fetchCalls[id]++

	if f.failFirstWin[id] && f.fetchCalls[id] == 1 {
		return errs.New(errs.ErrorTypeWindowClosed, "browser window unavailable")
	}

	data, ok := f.archives[id]
	if !ok {
		return nil
	}
	return os.WriteFile(filepath.Join(f.downloadDir, id+".zip"), data, 0644)
}

// goodZip builds a valid archive containing <id>.csv with two data rows
func goodZip(t *testing.T, id string) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(id + ".csv")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Write([]byte("time,kw\n00:00,1.5\n00:15,1.7\n")); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testSetup(t *testing.T) (*config.Config, *fakeNavigator, *storage.Manager) {
	t.Helper()

	downloadDir := t.TempDir()
	outputDir := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.Paths.Shapefile = "feeders.shp"
	cfg.Paths.DownloadDir = downloadDir
	cfg.Paths.OutputDir = outputDir
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.PollInterval = 2 * time.Millisecond
	cfg.Retry.DownloadTimeout = 50 * time.Millisecond

	store, err := storage.NewManager(outputDir)
	if err != nil {
		t.Fatal(err)
	}

	return cfg, newFakeNavigator(downloadDir), store
}

func run(t *testing.T, cfg *config.Config, nav *fakeNavigator, store *storage.Manager) *Scraper {
	t.Helper()
	return New(cfg, nav, store, logger.GetLogger())
}

func TestRunFreshUniverse(t *testing.T) {
	cfg, nav, store := testSetup(t)
	for _, id := range []string{"A", "B", "C"} {
		nav.archives[id] = goodZip(t, id)
	}

	universe := feeders.NewSet("A", "B", "C")
	rep, err := run(t, cfg, nav, store).Run(context.Background(), universe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if nav.loginCalls != 1 {
		t.Errorf("login called %d times, want 1", nav.loginCalls)
	}
	if rep.Succeeded != 3 || rep.FailedCount != 0 {
		t.Errorf("succeeded=%d failed=%d", rep.Succeeded, rep.FailedCount)
	}
	if len(rep.MissingIDs) != 0 {
		t.Errorf("unexpected missing ids %v", rep.MissingIDs)
	}

	for _, id := range []string{"A", "B", "C"} {
		if !store.IsDownloaded(id) {
			t.Errorf("output file missing for %s", id)
		}
		// The archive is removed once its table is extracted
		if _, err := os.Stat(filepath.Join(cfg.Paths.DownloadDir, id+".zip")); !os.IsNotExist(err) {
			t.Errorf("archive for %s not cleaned up", id)
		}
	}

	if _, err := os.Stat(filepath.Join(cfg.Paths.OutputDir, "report.json")); err != nil {
		t.Errorf("run report not written: %v", err)
	}
}

func TestRunSkipsExistingOutputs(t *testing.T) {
	cfg, nav, store := testSetup(t)
	nav.archives["B"] = goodZip(t, "B")
	nav.archives["C"] = goodZip(t, "C")

	// A already has an output file from an earlier run
	if err := os.WriteFile(store.OutputPath("A"), []byte("time,kw\n00:00,1.0\n"), 0644); err != nil {
		t.Fatal(err)
	}

	universe := feeders.NewSet("A", "B", "C")
	rep, err := run(t, cfg, nav, store).Run(context.Background(), universe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if nav.fetchCalls["A"] != 0 {
		t.Error("feeder with existing output must not be fetched")
	}
	if rep.AlreadyPresent != 1 || rep.Succeeded != 2 {
		t.Errorf("already=%d succeeded=%d", rep.AlreadyPresent, rep.Succeeded)
	}
}

func TestRunNothingToDo(t *testing.T) {
	cfg, nav, store := testSetup(t)
	for _, id := range []string{"A", "B"} {
		if err := os.WriteFile(store.OutputPath(id), []byte("time,kw\n00:00,1.0\n"), 0644); err != nil {
			t.Fatal(err)
		}
	}

	universe := feeders.NewSet("A", "B")
	rep, err := run(t, cfg, nav, store).Run(context.Background(), universe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if len(nav.fetchCalls) != 0 {
		t.Errorf("no fetches expected, got %v", nav.fetchCalls)
	}
	if rep.Attempted != 0 || rep.StillMissing != 0 {
		t.Errorf("attempted=%d missing=%d", rep.Attempted, rep.StillMissing)
	}
}

func TestRunCorruptArchive(t *testing.T) {
	cfg, nav, store := testSetup(t)
	nav.archives["A"] = []byte("this is not a zip archive")
	nav.archives["B"] = goodZip(t, "B")

	universe := feeders.NewSet("A", "B")
	rep, err := run(t, cfg, nav, store).Run(context.Background(), universe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.IsDownloaded("A") {
		t.Error("corrupt archive must not produce an output file")
	}
	if !store.IsDownloaded("B") {
		t.Error("good feeder should still succeed")
	}
	if rep.FailedCount != 1 || rep.Succeeded != 1 {
		t.Errorf("failed=%d succeeded=%d", rep.FailedCount, rep.Succeeded)
	}
	if len(rep.MissingIDs) != 1 || rep.MissingIDs[0] != "A" {
		t.Errorf("missing ids = %v, want [A]", rep.MissingIDs)
	}
	if rep.Failures[0].Class != string(errs.ErrorTypeBadArchive) {
		t.Errorf("failure class = %s, want bad_archive", rep.Failures[0].Class)
	}

	// The corrupt archive must not be retried within the pass
	if nav.fetchCalls["A"] != 1 {
		t.Errorf("corrupt feeder fetched %d times, want 1", nav.fetchCalls["A"])
	}
	// and stays on disk for inspection
	if _, err := os.Stat(filepath.Join(cfg.Paths.DownloadDir, "A.zip")); err != nil {
		t.Errorf("corrupt archive should stay on disk: %v", err)
	}
}

func TestRunDownloadNeverArrives(t *testing.T) {
	cfg, nav, store := testSetup(t)
	// no archives registered: FetchArchive succeeds but no file appears

	universe := feeders.NewSet("A")
	rep, err := run(t, cfg, nav, store).Run(context.Background(), universe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if store.IsDownloaded("A") {
		t.Error("no output file expected")
	}
	if rep.FailedCount != 1 {
		t.Errorf("failed=%d, want 1", rep.FailedCount)
	}
	if rep.Failures[0].Class != string(errs.ErrorTypeDownloadPending) {
		t.Errorf("failure class = %s, want download_pending", rep.Failures[0].Class)
	}
}

func TestRunRetriesClosedWindow(t *testing.T) {
	cfg, nav, store := testSetup(t)
	nav.archives["A"] = goodZip(t, "A")
	nav.failFirstWin["A"] = true

	universe := feeders.NewSet("A")
	rep, err := run(t, cfg, nav, store).Run(context.Background(), universe)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	if nav.fetchCalls["A"] != 2 {
		t.Errorf("fetch called %d times, want 2", nav.fetchCalls["A"])
	}
	if rep.Succeeded != 1 {
		t.Errorf("succeeded=%d, want 1", rep.Succeeded)
	}
}

func TestRunLoginFailureAborts(t *testing.T) {
	cfg, nav, store := testSetup(t)
	nav.loginErr = errs.New(errs.ErrorTypeAuth, "authentication could not be confirmed")
	nav.archives["A"] = goodZip(t, "A")

	universe := feeders.NewSet("A")
	_, err := run(t, cfg, nav, store).Run(context.Background(), universe)
	if err == nil {
		t.Fatal("expected login failure to abort the pass")
	}
	if len(nav.fetchCalls) != 0 {
		t.Errorf("no fetches expected after failed login, got %v", nav.fetchCalls)
	}
}

func TestRunSecondPassPicksUpFailures(t *testing.T) {
	cfg, nav, store := testSetup(t)
	nav.archives["B"] = goodZip(t, "B")
	universe := feeders.NewSet("A", "B")

	// First pass: A's download never arrives
	rep, err := run(t, cfg, nav, store).Run(context.Background(), universe)
	if err != nil {
		t.Fatalf("first pass: %v", err)
	}
	if len(rep.MissingIDs) != 1 || rep.MissingIDs[0] != "A" {
		t.Fatalf("first pass missing = %v, want [A]", rep.MissingIDs)
	}

	// Second pass: A's archive now materializes; B must not be re-fetched
	nav.archives["A"] = goodZip(t, "A")
	bFetches := nav.fetchCalls["B"]

	rep, err = run(t, cfg, nav, store).Run(context.Background(), universe)
	if err != nil {
		t.Fatalf("second pass: %v", err)
	}
	if nav.fetchCalls["B"] != bFetches {
		t.Error("already-downloaded feeder re-fetched on second pass")
	}
	if len(rep.MissingIDs) != 0 {
		t.Errorf("second pass missing = %v, want none", rep.MissingIDs)
	}
}
