package capture

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	appLog "evcal/internal/log"
)

// Default capture parameters. The month page is laid out for a landscape
// A4-ish canvas.
const (
	DefaultWidth   = 1600
	DefaultHeight  = 1100
	DefaultTimeout = 30 * time.Second
)

// ReadySelector matches the element the month page marks once rendered.
const ReadySelector = `[data-ready="true"]`

// Cookie is a cookie set in the browser before navigating, e.g. a session.
type Cookie struct {
	Name  string
	Value string
}

// Options defines parameters for a Chromium-based screenshot capture.
type Options struct {
	// URL to capture, e.g. "http://127.0.0.1:8080/month/2025/3".
	URL string

	// OutputPath is where the PNG screenshot is written.
	OutputPath string

	// Width and Height are the viewport dimensions in pixels. Zero uses the
	// defaults.
	Width  int
	Height int

	// Cookies are installed for URL's origin before navigation.
	Cookies []Cookie

	// Timeout bounds the whole capture. Zero uses DefaultTimeout.
	Timeout time.Duration
}

// PagePNG drives headless Chromium to opts.URL, waits until the page reports
// data-ready="true" and writes a full-page PNG to opts.OutputPath.
func PagePNG(parentCtx context.Context, opts Options) error {
	if opts.URL == "" {
		return fmt.Errorf("capture: URL is required")
	}
	if opts.OutputPath == "" {
		return fmt.Errorf("capture: OutputPath is required")
	}
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}

	ctx, cancel := chromedp.NewContext(parentCtx)
	defer cancel()
	ctx, timeoutCancel := context.WithTimeout(ctx, opts.Timeout)
	defer timeoutCancel()

	var png []byte
	if err := chromedp.Run(ctx, Tasks(opts, &png)); err != nil {
		return fmt.Errorf("capture: chromedp run failed: %w", err)
	}
	if err := os.WriteFile(opts.OutputPath, png, 0o644); err != nil {
		return fmt.Errorf("capture: failed to write PNG: %w", err)
	}
	appLog.Info("capture: page saved", "path", opts.OutputPath, "bytes", len(png))
	return nil
}

// Tasks is the action list PagePNG runs; png receives the screenshot.
func Tasks(opts Options, png *[]byte) chromedp.Tasks {
	tasks := chromedp.Tasks{
		chromedp.EmulateViewport(int64(opts.Width), int64(opts.Height)),
	}
	for _, c := range opts.Cookies {
		tasks = append(tasks, network.SetCookie(c.Name, c.Value).
			WithURL(opts.URL).
			WithPath("/").
			WithHTTPOnly(true))
	}
	return append(tasks,
		chromedp.Navigate(opts.URL),
		chromedp.WaitVisible(ReadySelector, chromedp.ByQuery),
		// Let the final paint land.
		chromedp.Sleep(300*time.Millisecond),
		chromedp.FullScreenshot(png, 100),
	)
}
