// Package scraper orchestrates one acquisition pass over the feeder ID
// universe: authenticate once, then for every feeder without an output file
// fetch its archive, extract the contained table, clean up the archive, and
// persist the table. The output directory is rescanned at the end to report
// what is still missing.
package scraper

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"icafetch/pkg/archive"
	"icafetch/pkg/config"
	errs "icafetch/pkg/errors"
	"icafetch/pkg/feeders"
	"icafetch/pkg/logger"
	"icafetch/pkg/report"
	"icafetch/pkg/retry"
	"icafetch/pkg/storage"
)

// Scraper runs the sequential download-extract-persist pass
type Scraper struct {
	navigator Navigator
	storage   *storage.Manager
	cfg       *config.Config
	logger    logger.Logger
}

// New creates a Scraper
func New(cfg *config.Config, navigator Navigator, store *storage.Manager, log logger.Logger) *Scraper {
	return &Scraper{
		navigator: navigator,
		storage:   store,
		cfg:       cfg,
		logger:    log,
	}
}

// Run performs one full acquisition pass and returns the run report. The
// returned error is non-nil only for failures that abort the whole pass
// (authentication, unreadable output directory); individual feeder failures
// are recorded in the report and surface in its still-missing list.
func (s *Scraper) Run(ctx context.Context, universe feeders.Set) (*report.Report, error) {
	if err := s.navigator.Login(ctx); err != nil {
		return nil, fmt.Errorf("login failed: %w", err)
	}

	downloaded, err := s.storage.Scan()
	if err != nil {
		return nil, err
	}

	missing := universe.Difference(downloaded)
	rep := report.New(universe.Len(), downloaded.Len())

	s.logger.InfoWithFields("starting acquisition pass", map[string]interface{}{
		"universe":   universe.Len(),
		"downloaded": downloaded.Len(),
		"missing":    missing.Len(),
	})

	// Sorted order keeps runs reproducible and logs diffable
	for _, id := range missing.Sorted() {
		if err := ctx.Err(); err != nil {
			return rep, err
		}

		// A concurrent manual copy into the output dir is unlikely but
		// cheap to honor
		if s.storage.IsDownloaded(id) {
			continue
		}

		if err := s.fetchFeeder(ctx, id); err != nil {
			s.logger.ErrorWithFields("feeder abandoned this pass", map[string]interface{}{
				"feeder_id": id,
				"class":     string(errorClass(err)),
				"error":     err.Error(),
			})
			rep.RecordFailure(id, string(errorClass(err)), err)
			continue
		}
		rep.RecordSuccess()
	}

	final, err := s.storage.Scan()
	if err != nil {
		return rep, err
	}
	stillMissing := universe.Difference(final).Sorted()
	rep.Finish(stillMissing)

	if err := rep.Save(s.storage.OutputDir()); err != nil {
		s.logger.WithError(err).Warn("failed to save run report")
	}

	s.logger.InfoWithFields("acquisition pass finished", map[string]interface{}{
		"succeeded":     rep.Succeeded,
		"failed":        rep.FailedCount,
		"still_missing": len(stillMissing),
	})

	return rep, nil
}

// fetchFeeder performs the download-extract-persist sequence for one feeder.
// Each phase has its own retry bound; a corrupt archive abandons the feeder
// immediately with nothing written.
func (s *Scraper) fetchFeeder(ctx context.Context, id string) error {
	zipPath := filepath.Join(s.cfg.Paths.DownloadDir, id+".zip")
	memberName := id + ".csv"

	// Fetch: only a vanished browser window is worth retrying here; the
	// navigation gives no signal about whether a download actually started,
	// so the extract phase's wait is the real verification
	err := retry.Do(func() error {
		return s.navigator.FetchArchive(ctx, id)
	}, s.retryConfig(ctx, func(err error) bool {
		return errorClass(err) == errs.ErrorTypeWindowClosed
	}))
	if err != nil {
		return err
	}

	// Extract: wait out the asynchronous browser download, then read the
	// single csv member into memory
	if err := retry.WaitForFile(ctx, zipPath, s.cfg.Retry.PollInterval, s.cfg.Retry.DownloadTimeout); err != nil {
		return err
	}

	var table *archive.Table
	err = retry.Do(func() error {
		var exErr error
		table, exErr = archive.ExtractTable(zipPath, memberName)
		return exErr
	}, s.retryConfig(ctx, retry.DefaultRetryIf))
	if err != nil {
		// Bad archives stay on disk for inspection; nothing was written to
		// the output directory
		return err
	}

	// Cleanup: remove the archive before persisting. The filesystem can
	// briefly report the file missing right after the download finishes, so
	// transient stat races are retried; exhausting them is logged and
	// accepted rather than failing the feeder.
	err = retry.Do(func() error {
		if err := os.Remove(zipPath); err != nil {
			if os.IsNotExist(err) {
				return errs.Wrap(errs.ErrorTypeDownloadPending, "archive not found for cleanup", err)
			}
			return err
		}
		return nil
	}, s.retryConfig(ctx, retry.DefaultRetryIf))
	if err != nil {
		s.logger.WarnWithFields("could not remove archive", map[string]interface{}{
			"feeder_id": id,
			"path":      zipPath,
			"error":     err.Error(),
		})
	}

	if err := s.storage.SaveTable(table, id); err != nil {
		return err
	}

	s.logger.InfoWithFields("feeder downloaded", map[string]interface{}{
		"feeder_id": id,
		"rows":      len(table.Rows),
	})
	return nil
}

// retryConfig builds a phase retry config from the run's bounds
func (s *Scraper) retryConfig(ctx context.Context, retryIf func(error) bool) *retry.Config {
	return &retry.Config{
		MaxAttempts: s.cfg.Retry.MaxAttempts,
		Backoff:     &retry.ConstantBackoff{Delay: s.cfg.Retry.PollInterval},
		RetryIf:     retryIf,
		Context:     ctx,
		Logger:      s.logger,
	}
}

// errorClass extracts the failure class from an error chain
func errorClass(err error) errs.ErrorType {
	var typed *errs.Error
	if errors.As(err, &typed) {
		return typed.Type
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.ErrorTypeNetwork
	}
	return errs.ErrorTypeUnknown
}
