package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gyaneshwarpardhi/formbeacon/internal/beacon"
	"github.com/gyaneshwarpardhi/formbeacon/internal/config"
	"github.com/gyaneshwarpardhi/formbeacon/internal/dom"
	"github.com/gyaneshwarpardhi/formbeacon/internal/emitter"
	"github.com/gyaneshwarpardhi/formbeacon/internal/schedule"
)

// settle is how long the clock runs after the last step so pending debounces fire.
const settle = 2 * time.Second

type replayOpts struct {
	configPath  string
	pagePath    string
	scriptPath  string
	pageURL     string
	dryRun      bool
	watch       bool
	metricsAddr string
}

func replayCmd() *cobra.Command {
	var o replayOpts
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay a signal script against an HTML page",
		Long: `Replay builds a page from an HTML file, feeds it the signals of a YAML
script and delivers the resulting events to the configured webhook.

Examples:
  beacon replay --config tracker.yaml --page contact.html --script submit.yaml
  beacon replay --config tracker.yaml --page contact.html --script submit.yaml --dry-run
  beacon replay ... --watch --metrics-addr :9090   # re-run on config edits`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}
	cmd.Flags().StringVarP(&o.configPath, "config", "c", "tracker.yaml", "Tracker config file (YAML)")
	cmd.Flags().StringVar(&o.pagePath, "page", "", "HTML page to observe")
	cmd.Flags().StringVar(&o.scriptPath, "script", "", "Signal script (YAML)")
	cmd.Flags().StringVar(&o.pageURL, "url", "", "Page URL (overrides the script's url)")
	cmd.Flags().BoolVar(&o.dryRun, "dry-run", false, "Print envelopes instead of sending them")
	cmd.Flags().BoolVar(&o.watch, "watch", false, "Re-run whenever the config file changes")
	cmd.Flags().StringVar(&o.metricsAddr, "metrics-addr", "", "Expose Prometheus metrics on this address")
	_ = cmd.MarkFlagRequired("page")
	_ = cmd.MarkFlagRequired("script")
	return cmd
}

func runReplay(ctx context.Context, stdout io.Writer, o replayOpts) error {
	if ctx == nil {
		ctx = context.Background()
	}
	loader, err := config.NewLoader(o.configPath)
	if err != nil {
		return err
	}
	script, err := LoadScript(o.scriptPath)
	if err != nil {
		return err
	}

	if o.metricsAddr != "" {
		srv := &http.Server{Addr: o.metricsAddr, Handler: promhttp.Handler(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
		defer srv.Close()
	}

	if err := replayOnce(stdout, loader.Config(), script, o); err != nil {
		return err
	}
	if !o.watch {
		return nil
	}

	loader.OnChange(func(cfg *config.TrackerConfig) {
		slog.Info("config changed, replaying", "path", o.configPath)
		if err := replayOnce(stdout, cfg, script, o); err != nil {
			slog.Warn("replay failed", "err", err)
		}
	})
	stop, err := loader.Watch()
	if err != nil {
		return err
	}
	defer stop()

	ctx, cancel := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer cancel()
	<-ctx.Done()
	return nil
}

// replayOnce runs the whole script against a freshly parsed page.
func replayOnce(stdout io.Writer, cfg *config.TrackerConfig, script *Script, o replayOpts) error {
	f, err := os.Open(o.pagePath)
	if err != nil {
		return fmt.Errorf("open page: %w", err)
	}
	defer f.Close()

	pageURL := o.pageURL
	if pageURL == "" {
		pageURL = script.URL
	}
	if pageURL == "" {
		pageURL = "http://localhost/"
	}
	page, err := dom.ParseHTML(f, pageURL)
	if err != nil {
		return err
	}

	clock := schedule.NewManual(page.NavigationStart)
	opts := []beacon.Option{beacon.WithScheduler(clock)}
	var rec *emitter.Recorder
	if o.dryRun {
		rec = &emitter.Recorder{}
		opts = append(opts, beacon.WithTransport(rec))
		// Inline delivery keeps the printed order equal to the emit order.
		inline := *cfg
		inline.Delivery.SendWorkers = 0
		cfg = &inline
	}

	b, err := beacon.New(cfg, page, opts...)
	if err != nil {
		return err
	}
	for _, st := range script.Steps {
		if st.Wait > 0 {
			clock.Advance(st.Wait)
			continue
		}
		b.Dispatch(st.Signal)
	}
	clock.Advance(settle)
	if err := b.Close(); err != nil {
		return fmt.Errorf("close beacon: %w", err)
	}

	if rec != nil {
		enc := json.NewEncoder(stdout)
		for _, env := range rec.Envelopes() {
			if err := enc.Encode(env); err != nil {
				return err
			}
		}
	}
	return nil
}
