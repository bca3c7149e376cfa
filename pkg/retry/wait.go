package retry

import (
	"context"
	"os"
	"time"

	errs "icafetch/pkg/errors"
)

// WaitFor polls a predicate at the given interval until it returns true or
// the timeout elapses. The timeout and interval are independent knobs, so
// "how long to wait" and "how often to look" can be tuned separately.
func WaitFor(ctx context.Context, pred func() (bool, error), interval, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := pred()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// WaitForFile waits for a file to appear on disk, polling at interval until
// timeout. Used to await the browser's asynchronous download completing.
func WaitForFile(ctx context.Context, path string, interval, timeout time.Duration) error {
	err := WaitFor(ctx, func() (bool, error) {
		info, err := os.Stat(path)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, err
		}
		// A zero-byte file means the browser has created but not yet
		// written the download
		return info.Size() > 0, nil
	}, interval, timeout)

	if err == context.DeadlineExceeded {
		return errs.Wrap(errs.ErrorTypeDownloadPending, "timed out waiting for "+path, err)
	}
	return err
}
