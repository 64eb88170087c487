package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const defaultRenderTimeout = 30 * time.Second

// Renderer loads JavaScript-heavy pages in a throwaway headless Chrome.
type Renderer struct {
	opts    Options
	timeout time.Duration
}

// NewRenderer creates a Renderer. A zero timeout uses 30 seconds.
func NewRenderer(execPath string, timeout time.Duration) *Renderer {
	if timeout <= 0 {
		timeout = defaultRenderTimeout
	}
	return &Renderer{
		opts:    Options{Headless: true, ExecPath: execPath},
		timeout: timeout,
	}
}

// LoadHTML navigates to url, waits for selector to be ready when given and
// returns the rendered document.
func (r *Renderer) LoadHTML(ctx context.Context, url, selector string) (string, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, r.opts.allocatorOptions()...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()
	runCtx, cancel := context.WithTimeout(tabCtx, r.timeout)
	defer cancel()

	actions := []chromedp.Action{chromedp.Navigate(url)}
	if selector != "" {
		actions = append(actions, chromedp.WaitReady(selector, chromedp.ByQuery))
	}
	var html string
	actions = append(actions, chromedp.OuterHTML("html", &html, chromedp.ByQuery))

	if err := chromedp.Run(runCtx, actions...); err != nil {
		return "", fmt.Errorf("render %s: %w", url, err)
	}
	return html, nil
}
