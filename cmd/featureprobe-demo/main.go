// Command featureprobe-demo evaluates toggles against a FeatureProbe server
// and prints the results, optionally watching them change.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	featureprobe "github.com/FeatureProbe/client-sdk-mobile"
	"github.com/FeatureProbe/client-sdk-mobile/connectivity"
	"github.com/FeatureProbe/client-sdk-mobile/user"
)

var (
	configPath  string
	remoteURL   string
	sdkKey      string
	userKey     string
	userAttrs   map[string]string
	toggles     []string
	startWait   time.Duration
	watch       time.Duration
	noRealtime  bool
	metricsAddr string
	verbose     bool

	rootCmd = &cobra.Command{
		Use:   "featureprobe-demo",
		Short: "Evaluate FeatureProbe toggles for one user",
		Long: `featureprobe-demo starts a client, waits for the first sync and prints
the detail of every requested toggle as JSON. With --watch it keeps
printing until interrupted.`,
		SilenceUsage: true,
		RunE:         run,
	}
)

func init() {
	f := rootCmd.Flags()
	f.StringVarP(&configPath, "config", "c", "", "YAML config file")
	f.StringVar(&remoteURL, "remote-url", "", "FeatureProbe server URL (overrides config)")
	f.StringVar(&sdkKey, "sdk-key", os.Getenv("FEATUREPROBE_CLIENT_SDK_KEY"), "client SDK key (overrides config)")
	f.StringVarP(&userKey, "user", "u", "", "user key (random if empty)")
	f.StringToStringVarP(&userAttrs, "attr", "a", nil, "user attribute key=value, repeatable")
	f.StringSliceVarP(&toggles, "toggle", "t", nil, "toggle keys to evaluate")
	f.DurationVar(&startWait, "start-wait", 5*time.Second, "maximum wait for the first sync")
	f.DurationVar(&watch, "watch", 0, "re-evaluate at this period until interrupted")
	f.BoolVar(&noRealtime, "no-realtime", false, "disable the realtime subscription")
	f.StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	f.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	cfg := featureprobe.Config{}
	if configPath != "" {
		var err error
		if cfg, err = featureprobe.LoadConfig(configPath); err != nil {
			return err
		}
	}
	if remoteURL != "" {
		cfg.RemoteURL = remoteURL
	}
	if sdkKey != "" {
		cfg.ClientSDKKey = sdkKey
	}
	if cmd.Flags().Changed("start-wait") || cfg.StartWait == 0 {
		cfg.StartWait = startWait
	}
	if noRealtime {
		cfg.RealtimeDisabled = true
	}
	cfg.Logger = logger

	reg := prometheus.NewRegistry()
	cfg.Registerer = reg

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if metricsAddr != "" {
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("Metrics server failed", "error", err)
			}
		}()
		defer srv.Close()
	}

	client, err := featureprobe.New(ctx, cfg, user.New(userKey).WithAttrs(userAttrs))
	if err != nil {
		return err
	}
	defer func() {
		if err := client.Close(); err != nil {
			logger.Warn("Close failed", "error", err)
		}
	}()

	if err := client.StartError(); err != nil {
		logger.Warn("Serving defaults", "error", err)
	}

	printDetails(client)
	if watch <= 0 {
		return nil
	}

	ticker := time.NewTicker(watch)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			printDetails(client)
		}
	}
}

func printDetails(client *featureprobe.Client) {
	details := make(map[string]featureprobe.Detail[any], len(toggles))
	for _, key := range toggles {
		details[key] = client.JSONDetail(key, nil)
	}
	out := struct {
		Toggles      map[string]featureprobe.Detail[any] `json:"toggles"`
		Connectivity []connectivity.Status               `json:"connectivity"`
	}{details, client.Connectivity()}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(out); err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
}
