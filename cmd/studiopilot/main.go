package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/v0xg/studiopilot/internal/config"
	"github.com/v0xg/studiopilot/internal/locator"
	"github.com/v0xg/studiopilot/internal/observability"
)

type rootFlags struct {
	config     string
	verbose    bool
	headless   bool
	profile    string
	url        string
	controlURL string
	record     string
	advisor    bool
}

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{}
	err := newRootCmd(a).ExecuteContext(ctx)
	a.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func newRootCmd(a *app) *cobra.Command {
	var flags rootFlags

	rootCmd := &cobra.Command{
		Use:   "studiopilot",
		Short: "Drive a NotebookLM notebook from the command line",
		Long: `studiopilot operates a NotebookLM notebook through the browser: it asks
questions, adds sources, and generates and downloads studio materials.

Example:
  studiopilot --profile ~/.studiopilot/chrome generate lecture --materials quiz,flashcards`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.config)
			if err != nil {
				return err
			}
			applyFlags(cmd, &flags, cfg)

			log, err := observability.NewConsoleLogger(cfg.Logger, flags.verbose)
			if err != nil {
				return err
			}
			catalog, err := loadCatalog(cfg.Catalog.File)
			if err != nil {
				return err
			}
			a.setup(cfg, log, catalog)
			return nil
		},
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flags.config, "config", "c", "", "YAML config file")
	pf.BoolVarP(&flags.verbose, "verbose", "v", false, "Show detailed progress")
	pf.BoolVar(&flags.headless, "headless", false, "Run the browser headless")
	pf.StringVar(&flags.profile, "profile", "", "Chrome/Chromium profile directory for an authenticated session (close browser first)")
	pf.StringVar(&flags.url, "url", "", "Notebook URL to open (default: browser.url)")
	pf.StringVar(&flags.controlURL, "control-url", "", "Attach to a running browser's DevTools endpoint instead of launching one")
	pf.StringVar(&flags.record, "record", "", "Record the clicks of this run into a GIF")
	pf.BoolVar(&flags.advisor, "advisor", false, "Ask an AI model for a selector when every catalog strategy fails")

	rootCmd.AddCommand(
		newGenerateCmd(a),
		newAskCmd(a),
		newUploadCmd(a),
		newAddTextCmd(a),
		newAddURLCmd(a),
		newCreateCmd(a),
		newWorkflowCmd(a),
		newSourcesCmd(a),
		newDownloadCmd(a),
		newCatalogCmd(a),
	)
	return rootCmd
}

// applyFlags lays explicitly set flags over the loaded configuration.
func applyFlags(cmd *cobra.Command, f *rootFlags, cfg *config.Config) {
	changed := cmd.Flags().Changed
	if changed("headless") {
		cfg.Browser.Headless = f.headless
	}
	if changed("profile") {
		cfg.Browser.ProfileDir = f.profile
	}
	if changed("url") {
		cfg.Browser.URL = f.url
	}
	if changed("control-url") {
		cfg.Browser.ControlURL = f.controlURL
	}
	if changed("record") {
		cfg.Record.Output = f.record
	}
	if changed("advisor") {
		cfg.Advisor.Enabled = f.advisor
	}
}

func loadCatalog(path string) (*locator.Catalog, error) {
	catalog := locator.Default()
	if path == "" {
		return catalog, nil
	}
	override, err := locator.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return catalog.Merge(override), nil
}

func syncLogger(log *zap.Logger) {
	// Syncing a terminal returns EINVAL on some platforms.
	_ = log.Sync()
}
