package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog"
)

const (
	defaultActionTimeout   = 15 * time.Second
	defaultNavigateTimeout = 60 * time.Second
)

// ChromeLauncher starts Chrome through the DevTools protocol.
type ChromeLauncher struct {
	Headless  bool
	UserAgent string
	// ExecPath overrides the Chrome binary lookup.
	ExecPath string
	Logger   zerolog.Logger
}

// Launch starts an incognito Chrome instance and waits for it to be ready.
func (l ChromeLauncher) Launch(ctx context.Context) (Browser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", l.Headless),
		chromedp.Flag("incognito", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(1366, 900),
	)
	if l.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(l.UserAgent))
	}
	if l.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.ExecPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		l.Logger.Debug().Msgf(format, args...)
	}))

	c := &chromeBrowser{
		ctx: browserCtx,
		cancel: func() {
			browserCancel()
			allocCancel()
		},
	}

	// The first Run allocates the browser; its context must outlive the
	// call, so no timeout is attached here.
	if err := chromedp.Run(browserCtx); err != nil {
		c.cancel()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	return c, nil
}

type chromeBrowser struct {
	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once
}

// run executes actions on the browser context, bounded by timeout and by
// the caller's ctx.
func (c *chromeBrowser) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (c *chromeBrowser) Navigate(ctx context.Context, url string) error {
	return c.run(ctx, defaultNavigateTimeout, chromedp.Navigate(url))
}

func (c *chromeBrowser) Location(ctx context.Context) (string, error) {
	var loc string
	err := c.run(ctx, defaultActionTimeout, chromedp.Location(&loc))
	return loc, err
}

func (c *chromeBrowser) Present(ctx context.Context, selector string) (bool, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, defaultActionTimeout, chromedp.Nodes(selector, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
		return false, err
	}
	return len(nodes) > 0, nil
}

func (c *chromeBrowser) Text(ctx context.Context, selector string) (string, error) {
	ok, err := c.Present(ctx, selector)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrElementNotFound
	}

	var text string
	err = c.run(ctx, defaultActionTimeout, chromedp.TextContent(selector, &text, chromedp.BySearch))
	return text, err
}

func (c *chromeBrowser) SendKeys(ctx context.Context, selector, value string) error {
	return c.run(ctx, defaultActionTimeout, chromedp.SendKeys(selector, value, chromedp.BySearch))
}

func (c *chromeBrowser) Submit(ctx context.Context, selector string) error {
	return c.run(ctx, defaultActionTimeout, chromedp.Submit(selector, chromedp.BySearch))
}

func (c *chromeBrowser) Click(ctx context.Context, selector string) error {
	return c.run(ctx, defaultActionTimeout, chromedp.Click(selector, chromedp.BySearch))
}

func (c *chromeBrowser) Screenshot(ctx context.Context) ([]byte, error) {
	var buf []byte
	err := c.run(ctx, defaultActionTimeout, chromedp.CaptureScreenshot(&buf))
	return buf, err
}

// Close shuts the browser down and releases the process.
func (c *chromeBrowser) Close() error {
	var err error
	c.once.Do(func() {
		err = chromedp.Cancel(c.ctx)
		c.cancel()
	})
	return err
}
