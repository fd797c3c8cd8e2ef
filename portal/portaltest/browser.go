// Package portaltest provides a scriptable in-memory portal.Browser.
package portaltest

import (
	"context"
	"errors"
	"sync"

	"github.com/bobbleheadhobo/Windscribe-Port-Forwarding/portal"
)

// Browser is a fake page. Elements are keyed by selector; a selector is
// present when it has an entry. Hooks mutate the page in response to
// navigation, clicks and submits, and After schedules changes that happen
// once the page has been inspected a number of times.
type Browser struct {
	mu sync.Mutex

	url        string
	elements   map[string]string
	onNavigate map[string]func(*Browser)
	onClick    map[string]func(*Browser)
	onSubmit   map[string]func(*Browser)
	scheduled  []scheduled
	lookups    int

	// ScreenshotData is returned by Screenshot.
	ScreenshotData []byte
	// ScreenshotErr, when set, is returned by Screenshot.
	ScreenshotErr error

	Navigations []string
	Clicks      []string
	Typed       map[string]string
	CloseCalls  int
}

type scheduled struct {
	at int
	fn func(*Browser)
}

// New returns an empty page.
func New() *Browser {
	return &Browser{
		elements:       make(map[string]string),
		onNavigate:     make(map[string]func(*Browser)),
		onClick:        make(map[string]func(*Browser)),
		onSubmit:       make(map[string]func(*Browser)),
		Typed:          make(map[string]string),
		ScreenshotData: []byte("\x89PNG fake"),
	}
}

// Set makes selector present with the given text.
func (b *Browser) Set(selector, text string) { b.elements[selector] = text }

// Remove makes selector absent.
func (b *Browser) Remove(selector string) { delete(b.elements, selector) }

// SetURL changes the current location.
func (b *Browser) SetURL(url string) { b.url = url }

// OnNavigate runs fn after navigating to url.
func (b *Browser) OnNavigate(url string, fn func(*Browser)) { b.onNavigate[url] = fn }

// OnClick runs fn when selector is clicked.
func (b *Browser) OnClick(selector string, fn func(*Browser)) { b.onClick[selector] = fn }

// OnSubmit runs fn when selector's form is submitted.
func (b *Browser) OnSubmit(selector string, fn func(*Browser)) { b.onSubmit[selector] = fn }

// After runs fn once the page has been inspected n more times.
func (b *Browser) After(n int, fn func(*Browser)) {
	b.scheduled = append(b.scheduled, scheduled{at: b.lookups + n, fn: fn})
}

func (b *Browser) lookup() {
	b.lookups++
	var due, rest []scheduled
	for _, s := range b.scheduled {
		if b.lookups >= s.at {
			due = append(due, s)
			continue
		}
		rest = append(rest, s)
	}
	b.scheduled = rest
	for _, s := range due {
		s.fn(b)
	}
}

func (b *Browser) Navigate(ctx context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Navigations = append(b.Navigations, url)
	b.url = url
	if fn, ok := b.onNavigate[url]; ok {
		fn(b)
	}
	return nil
}

func (b *Browser) Location(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.url, nil
}

func (b *Browser) Present(ctx context.Context, selector string) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup()
	_, ok := b.elements[selector]
	return ok, nil
}

func (b *Browser) Text(ctx context.Context, selector string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lookup()
	text, ok := b.elements[selector]
	if !ok {
		return "", portal.ErrElementNotFound
	}
	return text, nil
}

func (b *Browser) SendKeys(ctx context.Context, selector, value string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.elements[selector]; !ok {
		return portal.ErrElementNotFound
	}
	b.Typed[selector] = value
	return nil
}

func (b *Browser) Submit(ctx context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.elements[selector]; !ok {
		return portal.ErrElementNotFound
	}
	if fn, ok := b.onSubmit[selector]; ok {
		fn(b)
	}
	return nil
}

func (b *Browser) Click(ctx context.Context, selector string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.elements[selector]; !ok {
		return portal.ErrElementNotFound
	}
	b.Clicks = append(b.Clicks, selector)
	if fn, ok := b.onClick[selector]; ok {
		fn(b)
	}
	return nil
}

func (b *Browser) Screenshot(ctx context.Context) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.ScreenshotErr != nil {
		return nil, b.ScreenshotErr
	}
	return b.ScreenshotData, nil
}

func (b *Browser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.CloseCalls++
	return nil
}

// Closed reports whether Close was called at least once.
func (b *Browser) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.CloseCalls > 0
}

// Launcher hands out a fixed Browser.
type Launcher struct {
	Browser *Browser
	Err     error
}

func (l Launcher) Launch(ctx context.Context) (portal.Browser, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	if l.Browser == nil {
		return nil, errors.New("no browser configured")
	}
	return l.Browser, nil
}

// LoginPage scripts a portal whose login succeeds: the form is shown on
// loginURL and submitting it lands on the account page.
func LoginPage(b *Browser, loginURL, accountURL string) {
	sel := portal.DefaultSelectors
	b.OnNavigate(loginURL, func(b *Browser) {
		b.Set(sel.Username, "")
		b.Set(sel.Password, "")
	})
	b.OnSubmit(sel.Password, func(b *Browser) {
		b.SetURL(accountURL)
		b.Set(sel.AccountMarker, "My Account")
	})
}

// PortPage scripts a port page that currently holds current (empty for
// none) and shows next after the request button is clicked.
func PortPage(b *Browser, portURL, current, next string) {
	sel := portal.DefaultSelectors
	b.OnNavigate(portURL, func(b *Browser) {
		b.Set(sel.PortContainer, "")
		if current != "" {
			b.Set(sel.PortValue, current)
			b.Set(sel.PortButton, "Delete Port")
			return
		}
		b.Set(sel.PortButton, "Request Matching Port")
		b.Set(sel.RequestButton, "Request Matching Port")
	})
	b.OnClick(sel.PortButton, func(b *Browser) {
		if b.elements[sel.PortButton] != "Delete Port" {
			return
		}
		b.Remove(sel.PortValue)
		b.Set(sel.PortButton, "Request Matching Port")
		b.Set(sel.RequestForm, "")
		b.Set(sel.RequestButton, "Request Matching Port")
	})
	b.OnClick(sel.RequestButton, func(b *Browser) {
		b.After(2, func(b *Browser) {
			b.Set(sel.PortValue, next)
		})
	})
}
