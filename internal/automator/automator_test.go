package automator

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lettercast/internal/logging"
)

type fakeDriver struct {
	calls      []string
	failClick  map[string]int // selector -> remaining failures
	neverReady bool
	busyPolls  int
	download   string
	closed     bool
}

func (f *fakeDriver) record(call string) { f.calls = append(f.calls, call) }

func (f *fakeDriver) Navigate(_ context.Context, url string) error {
	f.record("navigate " + url)
	return nil
}

func (f *fakeDriver) Click(_ context.Context, selector string) error {
	f.record("click " + label(selector))
	if f.failClick[selector] > 0 {
		f.failClick[selector]--
		return errors.New("element not found")
	}
	return nil
}

func (f *fakeDriver) Fill(_ context.Context, selector, value string) error {
	f.record("fill " + label(selector) + " " + value)
	return nil
}

func (f *fakeDriver) WaitFor(ctx context.Context, selector string) error {
	f.record("wait " + label(selector))
	if f.neverReady {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (f *fakeDriver) Exists(_ context.Context, selector string) (bool, error) {
	f.record("exists " + label(selector))
	if f.busyPolls > 0 {
		f.busyPolls--
		return true, nil
	}
	return false, nil
}

func (f *fakeDriver) Location(context.Context) (string, error) {
	return "https://notebooklm.google.com/notebook/abc", nil
}

func (f *fakeDriver) Download(_ context.Context, selector, dir string) (string, error) {
	f.record("download " + label(selector) + " " + dir)
	return f.download, nil
}

func (f *fakeDriver) Close() error {
	f.closed = true
	return nil
}

func label(selector string) string {
	switch selector {
	case newNotebookButton:
		return "new-notebook"
	case addSourceButton:
		return "add-source"
	case websiteOption:
		return "website"
	case urlInput:
		return "url-input"
	case insertButton:
		return "insert"
	case busyIndicator:
		return "busy"
	case generateButton:
		return "generate"
	case downloadButton:
		return "download"
	case audioReady:
		return "audio-ready"
	}
	return selector
}

func testTiming() Timing {
	return Timing{
		Generate:   20 * time.Millisecond,
		BusyPolls:  3,
		RetryPause: time.Millisecond,
	}
}

func newTestAutomator(t *testing.T, d *fakeDriver, retries int) *Automator {
	t.Helper()
	a := New(func(context.Context) (Driver, error) { return d, nil }, testTiming(), retries, "data/tmp", logging.Discard())
	a.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	if err := a.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	return a
}

func TestProcessSuccess(t *testing.T) {
	d := &fakeDriver{download: "data/tmp/overview.wav", busyPolls: 1}
	a := newTestAutomator(t, d, 2)

	path, err := a.Process(context.Background(), "https://example.com/a", "Article A")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if diff := cmp.Diff("data/tmp/overview.wav", path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}

	want := []string{
		"navigate " + HomeURL,
		"click new-notebook",
		"click add-source",
		"click website",
		"fill url-input https://example.com/a",
		"click insert",
		"exists busy",
		"exists busy",
		"click generate",
		"wait audio-ready",
		"download download data/tmp",
		"navigate " + HomeURL,
	}
	if diff := cmp.Diff(want, d.calls); diff != "" {
		t.Errorf("calls mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessGenerateTimeout(t *testing.T) {
	d := &fakeDriver{neverReady: true}
	a := newTestAutomator(t, d, 1)

	_, err := a.Process(context.Background(), "https://example.com/slow", "Slow")
	if !errors.Is(err, ErrGenerateTimeout) {
		t.Fatalf("expected ErrGenerateTimeout, got %v", err)
	}

	var attempts, cleanups int
	for _, c := range d.calls {
		if c == "click new-notebook" {
			attempts++
		}
		if c == "navigate "+HomeURL {
			cleanups++
		}
	}
	if diff := cmp.Diff(2, attempts); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
	// one landing navigation plus one cleanup per attempt
	if diff := cmp.Diff(4, cleanups); diff != "" {
		t.Errorf("navigations mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessRetriesThenSucceeds(t *testing.T) {
	d := &fakeDriver{
		download:  "data/tmp/a.wav",
		failClick: map[string]int{insertButton: 1},
	}
	a := newTestAutomator(t, d, 2)

	path, err := a.Process(context.Background(), "https://example.com/a", "A")
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if diff := cmp.Diff("data/tmp/a.wav", path); diff != "" {
		t.Errorf("path mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessExhaustsRetries(t *testing.T) {
	d := &fakeDriver{failClick: map[string]int{newNotebookButton: 10}}
	a := newTestAutomator(t, d, 2)

	_, err := a.Process(context.Background(), "https://example.com/a", "A")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "click new notebook") {
		t.Errorf("error %q does not name the failing step", err)
	}

	var attempts int
	for _, c := range d.calls {
		if c == "click new-notebook" {
			attempts++
		}
	}
	if diff := cmp.Diff(3, attempts); diff != "" {
		t.Errorf("attempts mismatch (-want +got):\n%s", diff)
	}
}

func TestProcessWithoutSession(t *testing.T) {
	a := New(nil, testTiming(), 0, "", logging.Discard())
	if _, err := a.Process(context.Background(), "https://example.com", "x"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession, got %v", err)
	}
}

func TestStartFailure(t *testing.T) {
	boom := errors.New("chrome not found")
	a := New(func(context.Context) (Driver, error) { return nil, boom }, testTiming(), 0, "", logging.Discard())
	if err := a.Start(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("expected launch error, got %v", err)
	}
	if err := a.Close(); err != nil {
		t.Fatalf("close without session: %v", err)
	}
}

func TestCloseReleasesDriver(t *testing.T) {
	d := &fakeDriver{}
	a := newTestAutomator(t, d, 0)
	if err := a.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if !d.closed {
		t.Error("driver was not closed")
	}
	if _, err := a.Process(context.Background(), "https://example.com", "x"); !errors.Is(err, ErrNoSession) {
		t.Fatalf("expected ErrNoSession after close, got %v", err)
	}
}
