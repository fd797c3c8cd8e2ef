package portal

import "context"

// Browser is the small set of page operations the portal flow needs.
// Selectors are XPath or CSS expressions; implementations decide how to
// resolve them.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	// Location returns the URL of the current page.
	Location(ctx context.Context) (string, error)
	// Present reports whether selector matches at least one element right now.
	Present(ctx context.Context, selector string) (bool, error)
	// Text returns the visible text of the first match or ErrElementNotFound.
	Text(ctx context.Context, selector string) (string, error)
	SendKeys(ctx context.Context, selector, value string) error
	Submit(ctx context.Context, selector string) error
	Click(ctx context.Context, selector string) error
	// Screenshot returns a PNG of the current viewport.
	Screenshot(ctx context.Context) ([]byte, error)
	Close() error
}

// Launcher starts a new Browser.
type Launcher interface {
	Launch(ctx context.Context) (Browser, error)
}

// Selectors locate the portal elements the flow interacts with.
type Selectors struct {
	ChallengeMarker string
	Username        string
	Password        string
	LoginError      string
	AccountMarker   string
	PortContainer   string
	PortButton      string
	RequestForm     string
	RequestButton   string
	PortValue       string
}

// DefaultSelectors match the Windscribe account pages.
var DefaultSelectors = Selectors{
	ChallengeMarker: `//iframe[contains(@src, "challenges.cloudflare.com")] | //*[@id="challenge-form"] | //*[@id="challenge-running"]`,
	Username:        `//*[@id="username"]`,
	Password:        `//*[@id="pass"]`,
	LoginError:      `//*[@id="loginform"]/div/div[1]`,
	AccountMarker:   `//*[@id="menu-account"]`,
	PortContainer:   `//*[@id="request-port-cont"]`,
	PortButton:      `//*[@id="request-port-cont"]/button`,
	RequestForm:     `//*[@id="epf-input"]`,
	RequestButton:   `//button[normalize-space()='Request Matching Port']`,
	PortValue:       `//div[@id="epf-port-info"]//span[1]`,
}
