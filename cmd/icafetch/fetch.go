package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"icafetch/pkg/auth"
	"icafetch/pkg/config"
	"icafetch/pkg/feeders"
	"icafetch/pkg/logger"
	"icafetch/pkg/portal"
	"icafetch/pkg/scraper"
	"icafetch/pkg/storage"
	"icafetch/pkg/ui"
)

var (
	fetchShapefile   string
	fetchDownloadDir string
	fetchOutput      string
	fetchMaxAttempts int
	fetchHeadless    bool
	fetchAccount     string
)

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download ICA timeseries csvs for every feeder in the shapefile",
	Long: `Fetch runs one acquisition pass: it reads the feeder ID universe from
the shapefile, logs into the portal with a headless browser, and downloads the
zip export for every feeder that does not already have a csv in the output
directory. Feeders that fail this pass are reported at the end and picked up
by the next run.`,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchShapefile, "shapefile", "s", "", "feeder circuit-segment shapefile (.shp)")
	fetchCmd.Flags().StringVarP(&fetchDownloadDir, "download-dir", "d", "", "directory the browser downloads archives into")
	fetchCmd.Flags().StringVarP(&fetchOutput, "output", "o", "", "output directory for per-feeder csv files")
	fetchCmd.Flags().IntVar(&fetchMaxAttempts, "max-attempts", 0, "retry bound per phase (0 uses config)")
	fetchCmd.Flags().BoolVar(&fetchHeadless, "headless", true, "run the browser headless")
	fetchCmd.Flags().StringVarP(&fetchAccount, "account", "a", "", "stored portal account to use")
}

func runFetch(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"shapefile":    fetchShapefile,
		"download-dir": fetchDownloadDir,
		"output":       fetchOutput,
		"max-attempts": fetchMaxAttempts,
		"log-level":    logLevel,
	}
	if cmd.Flags().Changed("headless") {
		flags["headless"] = fetchHeadless
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Configuration error", err)
		return err
	}

	if err := logger.Initialize(&cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	log := logger.GetLogger()

	if err := resolveCredentials(cfg); err != nil {
		ui.PrintError("Credential error", err)
		fmt.Println()
		fmt.Println("Store credentials with 'icafetch auth login', or set")
		fmt.Println("ICAFETCH_USERNAME and ICAFETCH_PASSWORD.")
		return err
	}

	universe, err := feeders.LoadFromShapefile(cfg.Paths.Shapefile, cfg.Paths.FeederIDField)
	if err != nil {
		ui.PrintError("Failed to read feeder shapefile", err)
		return err
	}
	if universe.Len() == 0 {
		ui.PrintWarning("Shapefile contains no feeder IDs; nothing to do")
		return nil
	}

	if err := os.MkdirAll(cfg.Paths.DownloadDir, 0755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	store, err := storage.NewManager(cfg.Paths.OutputDir)
	if err != nil {
		ui.PrintError("Failed to prepare output directory", err)
		return err
	}

	ui.PrintInfo("Shapefile", cfg.Paths.Shapefile)
	ui.PrintInfo("Feeders", fmt.Sprintf("%d", universe.Len()))
	ui.PrintInfo("Output", cfg.Paths.OutputDir)

	ctx := context.Background()

	session, err := portal.NewSession(ctx, cfg, log)
	if err != nil {
		ui.PrintError("Failed to start browser", err)
		return err
	}
	defer session.Close()

	rep, err := scraper.New(cfg, session, store, log).Run(ctx, universe)
	if err != nil {
		ui.PrintError("Acquisition pass aborted", err)
		return err
	}

	fmt.Println()
	ui.PrintInfo("Already present", fmt.Sprintf("%d", rep.AlreadyPresent))
	ui.PrintInfo("Downloaded this pass", fmt.Sprintf("%d", rep.Succeeded))
	ui.PrintInfo("Failed this pass", fmt.Sprintf("%d", rep.FailedCount))
	ui.PrintMissing(rep.MissingIDs)

	// Per-feeder failures are not a process failure; the next run retries them
	return nil
}

// resolveCredentials fills in portal credentials from the credential stores
// when the config and environment did not supply them
func resolveCredentials(cfg *config.Config) error {
	if cfg.ValidateCredentials() == nil {
		return nil
	}

	manager, err := auth.NewManager()
	if err != nil {
		return err
	}

	var account *auth.Account
	if fetchAccount != "" {
		account, err = manager.Retrieve(fetchAccount)
	} else {
		account, err = manager.RetrieveDefault()
	}
	if err != nil {
		if errors.Is(err, auth.ErrCredentialsNotFound) {
			return errors.New("no portal credentials configured")
		}
		return err
	}

	cfg.Portal.Username = account.Username
	cfg.Portal.Password = account.Password
	return cfg.ValidateCredentials()
}
