// Package automator turns an article URL into an audio overview by driving
// the NotebookLM web UI.
package automator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"
)

var (
	// ErrGenerateTimeout is returned when audio generation does not finish in time.
	ErrGenerateTimeout = errors.New("audio generation timed out")
	// ErrNoSession is returned when Process runs before Start.
	ErrNoSession = errors.New("browser session is not started")
)

// Driver is the browser surface the automator needs.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, selector string) error
	Fill(ctx context.Context, selector, value string) error
	WaitFor(ctx context.Context, selector string) error
	Exists(ctx context.Context, selector string) (bool, error)
	Location(ctx context.Context) (string, error)
	Download(ctx context.Context, selector, dir string) (string, error)
	Close() error
}

// Launcher opens a new browser session.
type Launcher func(ctx context.Context) (Driver, error)

// Timing holds the waits between UI steps.
type Timing struct {
	Navigate    time.Duration
	Element     time.Duration
	Generate    time.Duration
	Download    time.Duration
	Settle      time.Duration
	SourceLoad  time.Duration
	BusyPoll    time.Duration
	BusyPolls   int
	RetryPause  time.Duration
	GenerateBtn time.Duration
}

// DefaultTiming returns production waits with the given generation timeout.
func DefaultTiming(generate time.Duration) Timing {
	return Timing{
		Navigate:    30 * time.Second,
		Element:     15 * time.Second,
		Generate:    generate,
		Download:    60 * time.Second,
		Settle:      2 * time.Second,
		SourceLoad:  10 * time.Second,
		BusyPoll:    5 * time.Second,
		BusyPolls:   10,
		RetryPause:  5 * time.Second,
		GenerateBtn: 30 * time.Second,
	}
}

// Automator runs the notebook workflow for one URL at a time.
type Automator struct {
	launch     Launcher
	timing     Timing
	retryCount int
	saveDir    string
	log        *slog.Logger

	driver Driver
	sleep  func(ctx context.Context, d time.Duration) error
}

// New creates an Automator. retryCount is the number of extra attempts per URL.
func New(launch Launcher, timing Timing, retryCount int, saveDir string, log *slog.Logger) *Automator {
	if retryCount < 0 {
		retryCount = 0
	}
	return &Automator{
		launch:     launch,
		timing:     timing,
		retryCount: retryCount,
		saveDir:    saveDir,
		log:        log,
		sleep:      sleep,
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Start opens the browser session shared by every Process call.
func (a *Automator) Start(ctx context.Context) error {
	if a.driver != nil {
		return nil
	}
	a.log.Info("starting browser session")
	d, err := a.launch(ctx)
	if err != nil {
		return fmt.Errorf("start browser session: %w", err)
	}
	a.driver = d
	return nil
}

// Close releases the browser session. Safe to call when not started.
func (a *Automator) Close() error {
	if a.driver == nil {
		return nil
	}
	err := a.driver.Close()
	a.driver = nil
	a.log.Info("browser session closed")
	if err != nil {
		return fmt.Errorf("close browser session: %w", err)
	}
	return nil
}

// Process creates a notebook for url, generates its audio overview and
// downloads it. Failed attempts are cleaned up and retried.
func (a *Automator) Process(ctx context.Context, url, title string) (string, error) {
	if a.driver == nil {
		return "", ErrNoSession
	}

	attempts := a.retryCount + 1
	pause := a.timing.RetryPause
	if pause <= 0 {
		pause = time.Millisecond
	}
	backoff := retry.WithMaxRetries(uint64(a.retryCount), retry.NewConstant(pause)) //nolint:gosec // retryCount is non-negative

	var (
		attempt int
		path    string
	)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		p, err := a.attempt(ctx, url, title)
		if err == nil {
			path = p
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		a.log.Error("automation attempt failed", "url", url, "attempt", attempt, "of", attempts, "error", err)
		if attempt < attempts {
			a.log.Info("retrying", "url", url, "pause", pause)
		}
		return retry.RetryableError(err)
	})
	if err != nil {
		return "", fmt.Errorf("process %s: %w", url, err)
	}
	return path, nil
}

func (a *Automator) attempt(ctx context.Context, url, title string) (string, error) {
	notebook, err := a.createNotebook(ctx, title)
	if err != nil {
		return "", err
	}
	defer a.cleanup(ctx, notebook)

	if err := a.addSource(ctx, url); err != nil {
		return "", err
	}
	if err := a.generateAudio(ctx); err != nil {
		return "", err
	}
	return a.downloadAudio(ctx)
}

// within runs fn with a deadline of d.
func within(ctx context.Context, d time.Duration, fn func(ctx context.Context) error) error {
	if d <= 0 {
		return fn(ctx)
	}
	stepCtx, cancel := context.WithTimeout(ctx, d)
	defer cancel()
	return fn(stepCtx)
}

func (a *Automator) createNotebook(ctx context.Context, title string) (string, error) {
	a.log.Info("creating notebook", "title", title)
	d := a.driver

	err := within(ctx, a.timing.Navigate, func(ctx context.Context) error {
		return d.Navigate(ctx, HomeURL)
	})
	if err != nil {
		return "", fmt.Errorf("open notebooklm: %w", err)
	}
	if err := a.sleep(ctx, a.timing.Settle); err != nil {
		return "", err
	}

	err = within(ctx, a.timing.Element, func(ctx context.Context) error {
		return d.Click(ctx, newNotebookButton)
	})
	if err != nil {
		return "", fmt.Errorf("click new notebook: %w", err)
	}
	if err := a.sleep(ctx, a.timing.Settle); err != nil {
		return "", err
	}

	loc, err := d.Location(ctx)
	if err != nil {
		return "", fmt.Errorf("read notebook url: %w", err)
	}
	a.log.Info("notebook created", "notebook", loc)
	return loc, nil
}

func (a *Automator) addSource(ctx context.Context, url string) error {
	a.log.Info("adding website source", "url", url)
	d := a.driver

	steps := []struct {
		name string
		fn   func(ctx context.Context) error
	}{
		{"click add source", func(ctx context.Context) error { return d.Click(ctx, addSourceButton) }},
		{"choose website", func(ctx context.Context) error { return d.Click(ctx, websiteOption) }},
		{"enter url", func(ctx context.Context) error { return d.Fill(ctx, urlInput, url) }},
		{"click insert", func(ctx context.Context) error { return d.Click(ctx, insertButton) }},
	}
	for _, step := range steps {
		if err := within(ctx, a.timing.Element, step.fn); err != nil {
			return fmt.Errorf("%s: %w", step.name, err)
		}
	}

	a.log.Info("waiting for source analysis")
	if err := a.sleep(ctx, a.timing.SourceLoad); err != nil {
		return err
	}
	for range a.timing.BusyPolls {
		busy, err := d.Exists(ctx, busyIndicator)
		if err != nil {
			return fmt.Errorf("check source progress: %w", err)
		}
		if !busy {
			break
		}
		if err := a.sleep(ctx, a.timing.BusyPoll); err != nil {
			return err
		}
	}
	return nil
}

func (a *Automator) generateAudio(ctx context.Context) error {
	a.log.Info("starting audio generation")
	d := a.driver

	err := within(ctx, a.timing.GenerateBtn, func(ctx context.Context) error {
		return d.Click(ctx, generateButton)
	})
	if err != nil {
		return fmt.Errorf("click generate: %w", err)
	}

	a.log.Info("waiting for audio", "timeout", a.timing.Generate)
	err = within(ctx, a.timing.Generate, func(ctx context.Context) error {
		return d.WaitFor(ctx, audioReady)
	})
	switch {
	case err == nil:
		a.log.Info("audio generated")
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case errors.Is(err, context.DeadlineExceeded):
		a.log.Warn("audio generation timed out", "timeout", a.timing.Generate)
		return fmt.Errorf("wait %s: %w", a.timing.Generate, ErrGenerateTimeout)
	default:
		return fmt.Errorf("wait for audio: %w", err)
	}
}

func (a *Automator) downloadAudio(ctx context.Context) (string, error) {
	a.log.Info("downloading audio", "dir", a.saveDir)
	var path string
	err := within(ctx, a.timing.Download, func(ctx context.Context) error {
		p, err := a.driver.Download(ctx, downloadButton, a.saveDir)
		path = p
		return err
	})
	if err != nil {
		return "", fmt.Errorf("download audio: %w", err)
	}
	a.log.Info("audio downloaded", "path", path)
	return path, nil
}

// cleanup returns to the landing page. Failures are logged only.
func (a *Automator) cleanup(ctx context.Context, notebook string) {
	a.log.Info("cleaning up notebook", "notebook", notebook)
	err := within(ctx, a.timing.Navigate, func(ctx context.Context) error {
		return a.driver.Navigate(ctx, HomeURL)
	})
	if err != nil {
		a.log.Warn("notebook cleanup failed", "notebook", notebook, "error", err)
	}
}
