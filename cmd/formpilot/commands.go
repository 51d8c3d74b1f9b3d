package main

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/go-rod/rod"
	"github.com/spf13/cobra"

	"github.com/v0xg/formpilot/internal/background"
	"github.com/v0xg/formpilot/internal/browser"
	"github.com/v0xg/formpilot/internal/config"
	"github.com/v0xg/formpilot/internal/content"
	"github.com/v0xg/formpilot/internal/dom/htmldom"
	"github.com/v0xg/formpilot/internal/executor"
	"github.com/v0xg/formpilot/internal/extension"
	"github.com/v0xg/formpilot/internal/logger"
	"github.com/v0xg/formpilot/internal/profile"
	"github.com/v0xg/formpilot/internal/protocol"
	"github.com/v0xg/formpilot/internal/record"
	"github.com/v0xg/formpilot/internal/scanner"
	"github.com/v0xg/formpilot/internal/session"
)

func runScan(cmd *cobra.Command, args []string) error {
	if file != "" {
		return scanFile(file)
	}
	if len(args) == 0 {
		return errors.New("scan needs a url or --file")
	}

	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	t, err := openTab(ctx, cfg, log, args[0], nil, false)
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Printf("→ Scanning fields... ")
	reply, err := t.sess.ScanFields(ctx, t.id)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("scan failed: %w", err)
	}
	fmt.Println("done")

	printSummary(reply.Local)
	fmt.Printf("  iframes reporting: %d\n", reply.Frames)
	printDetection(reply.Aggregate)
	return nil
}

func scanFile(path string) error {
	fmt.Printf("→ Parsing %s... ", path)
	f, err := os.Open(path)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	defer f.Close()

	doc, err := htmldom.Parse(f)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("parse failed: %w", err)
	}
	fmt.Printf("done (found %d inputs)\n", scanner.CountInputs(doc))

	printSummary(protocol.Summarize(scanner.Scan(doc)))
	return nil
}

func runFill(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	t, err := openTab(ctx, cfg, log, args[0], profileSource(cfg), false)
	if err != nil {
		return err
	}
	defer t.Close()

	var before image.Image
	if recordPath != "" {
		if before, err = browser.Screenshot(t.page); err != nil {
			log.Warn().Err(err).Msg("capture before frame")
		}
	}

	fmt.Printf("→ Filling form... ")
	reply, err := t.sess.Autofill(ctx, t.id)
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("autofill failed: %w", err)
	}
	fmt.Printf("done (%d filled, %d skipped, %d iframes notified)\n", reply.Filled, reply.Skipped, reply.BroadcastFrames)
	for _, r := range reply.Results {
		if r.Filled {
			fmt.Printf("  ✓ %-12s %s\n", r.Type, fieldRef(r.Name, r.ID))
		} else {
			fmt.Printf("  · %-12s %s (%s)\n", r.Type, fieldRef(r.Name, r.ID), r.Reason)
		}
	}

	// Give iframe agents time to fill and report back
	time.Sleep(wait)
	if script, ok := t.sess.Script(t.id); ok {
		if snap, err := script.Snapshot(ctx); err == nil && snap.IframeFills > 0 {
			fmt.Printf("✓ %d more fields filled inside iframes\n", snap.IframeFills)
		}
	}

	if recordPath != "" && before != nil {
		return writeRecording(t.page, before, reply.Results)
	}
	return nil
}

// writeRecording captures the filled page, outlines the fields the top
// frame touched and writes the before/after GIF.
func writeRecording(page *rod.Page, before image.Image, results []executor.FillResult) error {
	fmt.Printf("→ Recording to %s... ", recordPath)
	after, err := browser.Screenshot(page)
	if err != nil {
		fmt.Println("failed")
		return err
	}
	after = record.Highlight(after, browser.FieldBoxes(page, results))

	size, err := record.Save(recordPath, []image.Image{before, after}, record.Options{})
	if err != nil {
		fmt.Println("failed")
		return fmt.Errorf("write recording: %w", err)
	}
	fmt.Printf("done (%.1f KB)\n", float64(size)/1024)
	return nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	t, err := openTab(ctx, cfg, log, args[0], profileSource(cfg), true)
	if err != nil {
		return err
	}
	defer t.Close()

	fmt.Println("→ Watching (Ctrl+C to stop)")
	var last background.FormDetectionState
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			fmt.Println("✓ Stopped")
			return nil
		case <-ticker.C:
			st, ok, err := t.sess.Store().FormState(ctx, t.id)
			if err != nil || !ok || st == last {
				continue
			}
			last = st
			printDetection(st)
		}
	}
}

// openedTab is a browser page attached to a running session.
type openedTab struct {
	browser *browser.Browser
	page    *rod.Page
	sess    *session.Session
	id      extension.TabID
}

func (t *openedTab) Close() {
	t.sess.Close()
	t.browser.Close()
}

// openTab launches the browser, opens url and attaches a session tab to it.
func openTab(ctx context.Context, cfg *config.Config, log *logger.Logger, url string, profiles profile.Source, autofillOnLoad bool) (*openedTab, error) {
	fmt.Printf("→ Opening %s... ", url)
	b, err := browser.Launch(browser.Options{
		Width:      cfg.Browser.Width,
		Height:     cfg.Browser.Height,
		Timeout:    cfg.Browser.Timeout,
		Headless:   cfg.Browser.Headless,
		ProfileDir: cfg.Browser.ProfileDir,
	})
	if err != nil {
		fmt.Println("failed")
		return nil, err
	}
	page, err := b.Open(url)
	if err != nil {
		fmt.Println("failed")
		b.Close()
		return nil, err
	}
	top, err := browser.Tree(page)
	if err != nil {
		fmt.Println("failed")
		b.Close()
		return nil, err
	}
	fmt.Printf("done (%d frames)\n", len(top.Frames()))

	sess := session.New(ctx, session.Options{
		Timing: content.Timing{
			Debounce:   cfg.Timing.Debounce,
			RetryDelay: cfg.Timing.RetryDelay,
			MaxRetries: cfg.Timing.MaxRetries,
		},
		SettleDelay: cfg.Timing.SettleDelay,
		Settings:    background.Settings{AutofillOnLoad: autofillOnLoad || cfg.Autofill.OnLoad},
		Profiles:    profiles,
		Log:         log,
	})
	tab := sess.Attach(top)
	logVerbose("  tab %d attached", tab)

	// An empty top page keeps retrying before it injects frame agents.
	fmt.Print("→ Waiting for the first scan... ")
	readyCtx, cancel := context.WithTimeout(ctx, cfg.Timing.RetryDelay*time.Duration(cfg.Timing.MaxRetries+1)+cfg.Browser.Timeout)
	err = sess.WaitReady(readyCtx, tab)
	cancel()
	if err != nil {
		fmt.Println("timed out")
		log.Warn().Err(err).Msg("first scan did not finish")
	} else {
		fmt.Println("done")
	}

	fmt.Printf("→ Waiting %s for frames to report... ", wait)
	select {
	case <-time.After(wait):
		fmt.Println("done")
	case <-ctx.Done():
		fmt.Println("cancelled")
	}
	return &openedTab{browser: b, page: page, sess: sess, id: tab}, nil
}

func profileSource(cfg *config.Config) profile.Source {
	if profileFile != "" {
		return profile.File{Path: profileFile}
	}
	return profile.NewClient(cfg.Profile.BaseURL, cfg.Profile.Token, cfg.Profile.Timeout)
}

func printSummary(s protocol.ScanSummary) {
	fmt.Printf("  application form: %t (%d relevant fields)\n", s.HasApplicationForm, s.TotalRelevantFields)
	for _, f := range s.Fields {
		fmt.Printf("  [%3d] %-12s %s\n", f.Score, f.Type, fieldRef(f.Name, f.ID))
	}
}

func printDetection(d protocol.FormDetectionUpdate) {
	fmt.Printf("  page: application form %t, %d fillable fields\n", d.HasApplicationForm, d.FillableFieldCount)
}

func fieldRef(name, id string) string {
	switch {
	case id != "":
		return "#" + id
	case name != "":
		return "[name=" + name + "]"
	default:
		return "(anonymous)"
	}
}
