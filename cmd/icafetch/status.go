package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"icafetch/pkg/config"
	"icafetch/pkg/feeders"
	"icafetch/pkg/storage"
	"icafetch/pkg/ui"
)

var (
	statusShapefile string
	statusOutput    string
	statusList      bool
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show download progress without touching the portal",
	Long: `Status compares the feeder IDs in the shapefile against the csv files
already present in the output directory. It never opens a browser, so it is
safe to run while a fetch is in progress or before credentials are set up.`,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVarP(&statusShapefile, "shapefile", "s", "", "feeder circuit-segment shapefile (.shp)")
	statusCmd.Flags().StringVarP(&statusOutput, "output", "o", "", "output directory for per-feeder csv files")
	statusCmd.Flags().BoolVarP(&statusList, "list", "l", false, "list the missing feeder IDs")
}

func runStatus(cmd *cobra.Command, args []string) error {
	flags := map[string]interface{}{
		"shapefile": statusShapefile,
		"output":    statusOutput,
		"log-level": logLevel,
	}

	cfg, err := config.Load(configFile, flags)
	if err != nil {
		ui.PrintError("Configuration error", err)
		return err
	}

	universe, err := feeders.LoadFromShapefile(cfg.Paths.Shapefile, cfg.Paths.FeederIDField)
	if err != nil {
		ui.PrintError("Failed to read feeder shapefile", err)
		return err
	}

	store, err := storage.NewManager(cfg.Paths.OutputDir)
	if err != nil {
		ui.PrintError("Failed to read output directory", err)
		return err
	}
	downloaded, err := store.Scan()
	if err != nil {
		ui.PrintError("Failed to scan output directory", err)
		return err
	}

	missing := universe.Difference(downloaded)

	ui.PrintInfo("Shapefile", cfg.Paths.Shapefile)
	ui.PrintInfo("Output", cfg.Paths.OutputDir)
	ui.PrintInfo("Feeders", fmt.Sprintf("%d", universe.Len()))
	ui.PrintInfo("Downloaded", fmt.Sprintf("%d", universe.Len()-missing.Len()))
	ui.PrintInfo("Missing", fmt.Sprintf("%d", missing.Len()))

	if statusList && missing.Len() > 0 {
		fmt.Println()
		for _, id := range missing.Sorted() {
			fmt.Println("  " + ui.Dim(id))
		}
	}

	if missing.Len() == 0 {
		ui.PrintSuccess("All feeders downloaded")
	}
	return nil
}
