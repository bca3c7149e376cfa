// Package portal drives a headless Chrome session against the utility's
// ICA map: form login and per-feeder archive downloads. The portal's export
// endpoint requires an authenticated browser session and delivers the zip
// through the browser's download mechanism, so a plain HTTP client cannot
// fetch it.
package portal

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/chromedp"

	"icafetch/pkg/config"
	errs "icafetch/pkg/errors"
	"icafetch/pkg/logger"
	"icafetch/pkg/retry"
)

// Session wraps a Chrome browser context bound to a download directory
type Session struct {
	browserCtx context.Context
	cancels    []context.CancelFunc
	cfg        *config.Config
	logger     logger.Logger
}

// NewSession starts a browser and pins its download directory to the
// configured location so archives land where the extract phase looks
func NewSession(ctx context.Context, cfg *config.Config, log logger.Logger) (*Session, error) {
	opts := append(
		chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Portal.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	s := &Session{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{browserCancel, allocCancel},
		cfg:        cfg,
		logger:     log,
	}

	downloadDir, err := filepath.Abs(cfg.Paths.DownloadDir)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to resolve download directory: %w", err)
	}

	err = chromedp.Run(browserCtx,
		browser.SetDownloadBehavior(browser.SetDownloadBehaviorBehaviorAllow).
			WithDownloadPath(downloadDir).
			WithEventsEnabled(true),
	)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}

	log.DebugWithFields("browser session started", map[string]interface{}{
		"download_dir": downloadDir,
		"headless":     cfg.Portal.Headless,
	})

	return s, nil
}

// Close tears down the browser contexts
func (s *Session) Close() {
	for _, cancel := range s.cancels {
		cancel()
	}
}

// Login navigates to the login page and submits credentials. The form
// controls may not have rendered yet, so locating them is retried up to the
// configured bound; exhausting the bound is a terminal auth error rather
// than a silent give-up, so callers abort instead of proceeding with an
// unauthenticated session.
func (s *Session) Login(ctx context.Context) error {
	p := &s.cfg.Portal

	if err := chromedp.Run(s.browserCtx, chromedp.Navigate(p.LoginURL)); err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, "failed to open login page", err)
	}

	attempt := func() error {
		attemptCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.Retry.PollInterval)
		defer cancel()

		err := chromedp.Run(attemptCtx,
			chromedp.WaitVisible(p.UsernameSelector, chromedp.BySearch),
			chromedp.SendKeys(p.UsernameSelector, p.Username, chromedp.BySearch),
			chromedp.SendKeys(p.PasswordSelector, p.Password, chromedp.BySearch),
			chromedp.Click(p.SubmitSelector, chromedp.BySearch),
		)
		if err != nil {
			// A timed-out attempt means the controls have not rendered yet
			if attemptCtx.Err() == context.DeadlineExceeded {
				return errs.Wrap(errs.ErrorTypeElementNotFound, "login form not ready", err)
			}
			return errs.Wrap(errs.ErrorTypeElementNotFound, "login form lookup failed", err)
		}
		return nil
	}

	err := retry.Do(attempt, &retry.Config{
		MaxAttempts: s.cfg.Retry.MaxAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: s.cfg.Retry.PollInterval},
		RetryIf:     retry.DefaultRetryIf,
		Context:     ctx,
		Logger:      s.logger,
	})
	if err != nil {
		return errs.Wrap(errs.ErrorTypeAuth, "authentication could not be confirmed", err)
	}

	// Let the destination page load before the caller starts navigating
	if err := retry.Wait(ctx, p.PostLoginSettle); err != nil {
		return err
	}

	s.logger.InfoWithFields("logged in to ICA map", map[string]interface{}{
		"login_url": p.LoginURL,
		"username":  p.Username,
	})
	return nil
}

// FetchArchive navigates the browser to the feeder's direct-download URL.
// The navigation itself turning into a download aborts the page load, which
// Chrome reports as an error; that outcome is the success case. Only a
// closed window/target is retryable, and that classification is left to the
// caller's retry predicate.
func (s *Session) FetchArchive(ctx context.Context, id string) error {
	url := s.cfg.Portal.DataURL + id + ".zip"

	navCtx, cancel := context.WithTimeout(s.browserCtx, s.cfg.Retry.DownloadTimeout)
	defer cancel()

	err := chromedp.Run(navCtx, chromedp.Navigate(url))
	if err != nil {
		if isDownloadAbort(err) {
			err = nil
		}
	}
	if err != nil {
		if isWindowGone(err) {
			return errs.Wrap(errs.ErrorTypeWindowClosed, "browser window unavailable", err)
		}
		return errs.Wrap(errs.ErrorTypeNetwork, "navigation to "+url+" failed", err)
	}

	s.logger.DebugWithFields("archive download requested", map[string]interface{}{
		"feeder_id": id,
		"url":       url,
	})
	return nil
}

// isDownloadAbort reports whether a navigation error is Chrome aborting the
// page load because the response became a download
func isDownloadAbort(err error) bool {
	return err != nil && strings.Contains(err.Error(), "net::ERR_ABORTED")
}

// isWindowGone reports whether the error means the browser window/target no
// longer exists
func isWindowGone(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "no such window") ||
		strings.Contains(msg, "websocket: close")
}
