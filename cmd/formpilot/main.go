package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/v0xg/formpilot/internal/config"
	"github.com/v0xg/formpilot/internal/logger"
)

var (
	file        string
	profileFile string
	wait        time.Duration
	headful     bool
	verbose     bool
	browserDir  string
	recordPath  string
)

func main() {
	// Load .env file if present (silently ignore if not found)
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "formpilot",
		Short: "Detect and autofill job-application forms",
		Long: `formpilot finds job-application forms on a page, including forms rendered
inside embedded ATS iframes, and fills them from your profile.

Example:
  formpilot scan https://jobs.example.com/apply
  formpilot fill https://jobs.example.com/apply --profile-file me.json`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show detailed progress")
	rootCmd.PersistentFlags().BoolVar(&headful, "headful", false, "Show the browser window")
	rootCmd.PersistentFlags().StringVar(&browserDir, "browser-profile", "", "Chrome/Chromium profile directory for authenticated sessions (close browser first)")
	rootCmd.PersistentFlags().DurationVar(&wait, "wait", 2*time.Second, "Time to let iframe agents report before reading results")

	scanCmd := &cobra.Command{
		Use:   "scan [url]",
		Short: "Scan a page for application form fields",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runScan,
	}
	scanCmd.Flags().StringVarP(&file, "file", "f", "", "Scan a local HTML file instead of a URL")

	fillCmd := &cobra.Command{
		Use:   "fill <url>",
		Short: "Open a page and fill its application form",
		Args:  cobra.ExactArgs(1),
		RunE:  runFill,
	}
	fillCmd.Flags().StringVar(&profileFile, "profile-file", "", "Read the profile from a JSON file instead of the API")
	fillCmd.Flags().StringVarP(&recordPath, "record", "o", "", "Write a before/after GIF of the fill to this path")

	watchCmd := &cobra.Command{
		Use:   "watch <url>",
		Short: "Keep a page open and autofill whenever a form appears",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	watchCmd.Flags().StringVar(&profileFile, "profile-file", "", "Read the profile from a JSON file instead of the API")

	rootCmd.AddCommand(scanCmd, fillCmd, watchCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// setup loads configuration and applies command-line overrides.
func setup() (*config.Config, *logger.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if verbose {
		cfg.LogLevel = "debug"
	}
	if headful {
		cfg.Browser.Headless = false
	}
	if browserDir != "" {
		cfg.Browser.ProfileDir = browserDir
	}
	return cfg, logger.New(cfg.Environment, cfg.LogLevel), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func logVerbose(format string, args ...interface{}) {
	if verbose {
		fmt.Printf(format+"\n", args...)
	}
}
