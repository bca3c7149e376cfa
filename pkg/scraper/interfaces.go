package scraper

import "context"

// Navigator is the browser-facing surface the driver loop needs: one login,
// then one archive fetch per feeder. portal.Session implements it; tests
// substitute a fake that materializes archives on disk.
type Navigator interface {
	// Login authenticates the browser session against the portal
	Login(ctx context.Context) error

	// FetchArchive asks the browser to download <data_url><id>.zip into
	// the download directory. The download completes asynchronously.
	FetchArchive(ctx context.Context, id string) error
}
