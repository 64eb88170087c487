// Package browser drives a local Chrome through the DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
)

const fallbackDownloadName = "audio.wav"

// Options controls how Chrome is launched.
type Options struct {
	UserDataDir string
	Profile     string
	Headless    bool
	// ExecPath overrides Chrome discovery when set.
	ExecPath string
}

func (o Options) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.NoFirstRun,
		chromedp.NoDefaultBrowserCheck,
		chromedp.WindowSize(1280, 800),
	)
	if o.UserDataDir != "" {
		opts = append(opts, chromedp.UserDataDir(o.UserDataDir))
	}
	if o.Profile != "" {
		opts = append(opts, chromedp.Flag("profile-directory", o.Profile))
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	return opts
}

type download struct {
	guid  string
	state cdpbrowser.DownloadProgressState
}

// Session is one Chrome window with a single tab. Selectors are XPath
// expressions or CSS selectors resolved through DOM search.
type Session struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc

	mu        sync.Mutex
	suggested map[string]string
	progress  chan download
}

// Start launches Chrome with the given options and opens a blank tab.
func Start(ctx context.Context, o Options) (*Session, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.WithoutCancel(ctx), o.allocatorOptions()...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	s := &Session{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		suggested:   make(map[string]string),
		progress:    make(chan download, 16),
	}
	chromedp.ListenTarget(tabCtx, s.onEvent)

	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("launch chrome: %w", err)
	}
	return s, nil
}

func (s *Session) onEvent(ev any) {
	switch ev := ev.(type) {
	case *cdpbrowser.EventDownloadWillBegin:
		s.mu.Lock()
		s.suggested[ev.GUID] = ev.SuggestedFilename
		s.mu.Unlock()
	case *cdpbrowser.EventDownloadProgress:
		if ev.State == cdpbrowser.DownloadProgressStateInProgress {
			return
		}
		select {
		case s.progress <- download{guid: ev.GUID, state: ev.State}:
		default:
		}
	}
}

// run executes actions in the session tab, bounded by ctx.
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithCancel(s.ctx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	if err != nil && ctx.Err() != nil {
		return ctx.Err()
	}
	return err
}

// Navigate loads url and waits for the load event.
func (s *Session) Navigate(ctx context.Context, url string) error {
	if err := s.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

// Click waits until selector is visible and clicks it.
func (s *Session) Click(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.Click(selector, chromedp.BySearch, chromedp.NodeVisible))
}

// Fill replaces the value of the input matched by selector.
func (s *Session) Fill(ctx context.Context, selector, value string) error {
	return s.run(ctx,
		chromedp.WaitVisible(selector, chromedp.BySearch),
		chromedp.Clear(selector, chromedp.BySearch),
		chromedp.SendKeys(selector, value, chromedp.BySearch),
	)
}

// WaitFor blocks until selector is present in the DOM or ctx ends.
func (s *Session) WaitFor(ctx context.Context, selector string) error {
	return s.run(ctx, chromedp.WaitReady(selector, chromedp.BySearch))
}

// Exists reports whether selector currently matches any node, without waiting.
func (s *Session) Exists(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := s.run(ctx, chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

// Location returns the current page URL.
func (s *Session) Location(ctx context.Context) (string, error) {
	var loc string
	if err := s.run(ctx, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

// Download clicks selector and waits for the resulting download to land in
// dir. The file is renamed to the name the site suggested.
func (s *Session) Download(ctx context.Context, selector, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create download dir: %w", err)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve download dir: %w", err)
	}

	for len(s.progress) > 0 {
		<-s.progress
	}

	err = s.run(ctx,
		cdpbrowser.SetDownloadBehavior(cdpbrowser.SetDownloadBehaviorBehaviorAllowAndName).
			WithDownloadPath(abs).
			WithEventsEnabled(true),
		chromedp.Click(selector, chromedp.BySearch, chromedp.NodeVisible),
	)
	if err != nil {
		return "", fmt.Errorf("start download: %w", err)
	}

	var done download
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case done = <-s.progress:
	}
	if done.state != cdpbrowser.DownloadProgressStateCompleted {
		return "", fmt.Errorf("download %s: %s", done.guid, done.state)
	}

	s.mu.Lock()
	name := filepath.Base(s.suggested[done.guid])
	delete(s.suggested, done.guid)
	s.mu.Unlock()

	return placeDownload(abs, done.guid, name)
}

// placeDownload renames the GUID-named file chrome wrote into its final name.
func placeDownload(dir, guid, suggested string) (string, error) {
	if suggested == "" || suggested == "." || suggested == string(filepath.Separator) {
		suggested = fallbackDownloadName
	}
	target := filepath.Join(dir, suggested)
	if _, err := os.Stat(target); err == nil {
		target = filepath.Join(dir, guid+"-"+suggested)
	}
	if err := os.Rename(filepath.Join(dir, guid), target); err != nil {
		return "", fmt.Errorf("rename download: %w", err)
	}
	return target, nil
}

// Close shuts the tab and the browser process.
func (s *Session) Close() error {
	if s.cancelTab == nil {
		return errors.New("browser: session already closed")
	}
	s.cancelTab()
	s.cancelAlloc()
	s.cancelTab, s.cancelAlloc = nil, nil
	return nil
}
