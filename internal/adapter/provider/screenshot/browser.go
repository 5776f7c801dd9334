package screenshot

import (
	"context"
	"fmt"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"
)

// Browser renders target and returns a full-page PNG. Every call owns its
// browser session; nothing is reused across calls.
type Browser interface {
	Capture(ctx context.Context, target, downloadDir string) ([]byte, error)
}

// Chrome drives a headless Chrome through the DevTools protocol.
type Chrome struct {
	// ExecPath overrides the Chrome binary lookup when set.
	ExecPath string
}

func (c Chrome) Capture(ctx context.Context, target, downloadDir string) ([]byte, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.WindowSize(1920, 1080),
	)
	if c.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(c.ExecPath))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)
	defer cancelTab()

	var buf []byte
	err := chromedp.Run(tabCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).WithDownloadPath(downloadDir),
		chromedp.Navigate(target),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to capture %s: %w", target, err)
	}
	return buf, nil
}
