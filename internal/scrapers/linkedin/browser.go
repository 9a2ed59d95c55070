package linkedin

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"insights-backend/internal/credstore"
	"insights-backend/internal/failure"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

type BrowserConfig struct {
	// Timeout bounds how long the operator has to finish logging in, defaults to 5
	// minutes.
	Timeout      time.Duration
	PollInterval time.Duration
	Headless     bool
	UserAgent    string
}

func browserOptions(config BrowserConfig) []chromedp.ExecAllocatorOption {
	userAgent := config.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", config.Headless),
		// hides navigator.webdriver
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
		chromedp.WindowSize(1280, 900),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-infobars", true),
		chromedp.Flag("no-first-run", true),
		chromedp.Flag("no-default-browser-check", true),
	)
	if config.Headless {
		opts = append(opts, chromedp.Flag("disable-gpu", true))
	}
	return opts
}

func cookiesFromBrowser(cookies []*network.Cookie) []credstore.Cookie {
	out := make([]credstore.Cookie, 0, len(cookies))
	for _, c := range cookies {
		var expires time.Time
		if !c.Session && c.Expires > 0 {
			sec := int64(c.Expires)
			expires = time.Unix(sec, int64((c.Expires-float64(sec))*1e9)).UTC()
		}
		out = append(out, credstore.Cookie{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
		})
	}
	return out
}

func onTarget(cookies []credstore.Cookie) []credstore.Cookie {
	out := make([]credstore.Cookie, 0, len(cookies))
	for _, c := range cookies {
		if credstore.IsTargetDomain(c.Domain) {
			out = append(out, c)
		}
	}
	return out
}

// BrowserLogin opens a browser at the login page and waits for the operator to log in,
// verification challenges included. It returns the browser's cookies once the session
// cookie appears.
func BrowserLogin(ctx context.Context, config Config, browser BrowserConfig) (credstore.Artifact, error) {
	const op = "linkedin.browser-login"

	config = config.withDefaults()
	if browser.Timeout <= 0 {
		browser.Timeout = 5 * time.Minute
	}
	if browser.PollInterval <= 0 {
		browser.PollInterval = 2 * time.Second
	}

	ctx, span := tracer.Start(ctx, "BrowserLogin")
	defer span.End()

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, browserOptions(browser)...)
	defer cancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	err := chromedp.Run(browserCtx, chromedp.Navigate(config.BaseURL+"/login"))
	if err != nil {
		return credstore.Artifact{}, fmt.Errorf("%s: open login page: %w", op, err)
	}
	slog.InfoContext(ctx, "waiting for login in the browser window", "timeout", browser.Timeout)

	timeout := time.NewTimer(browser.Timeout)
	defer timeout.Stop()
	ticker := time.NewTicker(browser.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return credstore.Artifact{}, ctx.Err()
		case <-timeout.C:
			return credstore.Artifact{}, failure.New(failure.KindAuthenticationIncomplete, op, "login was not completed in the browser")
		case <-ticker.C:
			var raw []*network.Cookie
			err := chromedp.Run(browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
				var err error
				raw, err = storage.GetCookies().Do(ctx)
				return err
			}))
			if err != nil {
				slog.DebugContext(ctx, "could not read browser cookies", "err", err)
				continue
			}

			artifact := credstore.Artifact{
				Cookies:    onTarget(cookiesFromBrowser(raw)),
				CapturedAt: time.Now().UTC(),
				Source:     credstore.SourceBrowser,
			}
			if artifact.Validate(artifact.CapturedAt) != nil {
				continue
			}
			return artifact, nil
		}
	}
}
