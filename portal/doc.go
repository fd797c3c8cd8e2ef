// Package portal drives the Windscribe account portal in a real browser to
// obtain a fresh ephemeral forwarded port.
//
// The package is split into two components that share a Session:
//
//   - Agent launches the browser, logs in and waits out anti-bot challenge
//     interstitials within a bounded timeout.
//   - Extractor navigates to the ephemeral port page, releases the current
//     port when one is held, requests a new matching port and parses it.
//
// All page interaction goes through the Browser interface. Production code
// uses ChromeLauncher (chromedp); tests script a fake implementation. Every
// wait is a poll.Until call with an explicit timeout and interval, so the
// flow never relies on implicit browser waits.
//
// # Usage
//
//	agent := portal.NewAgent(portal.ChromeLauncher{Headless: true}, settings, logger)
//	session, err := agent.Launch(ctx)
//	if err != nil {
//	    return err
//	}
//	defer session.Close()
//
//	if err := agent.Login(ctx, session, creds); err != nil {
//	    return err
//	}
//	assignment, err := portal.NewExtractor(settings, logger).RequestNewPort(ctx, session)
package portal
