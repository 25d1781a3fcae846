package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/shyim/vitals-dashboard/internal/analysis"
	"github.com/shyim/vitals-dashboard/internal/config"
	"github.com/shyim/vitals-dashboard/internal/credential"
	"github.com/shyim/vitals-dashboard/internal/logging"
	"github.com/shyim/vitals-dashboard/internal/models"
	"github.com/shyim/vitals-dashboard/internal/pagespeed"
	"github.com/shyim/vitals-dashboard/internal/report"
	"github.com/shyim/vitals-dashboard/internal/synthetic"
)

func main() {
	var (
		configPath = pflag.String("config", os.Getenv("VITALS_CONFIG"), "path to a YAML config file")
		target     = pflag.StringP("url", "u", "", "page to analyze")
		device     = pflag.StringP("device", "d", "mobile", "mobile or desktop")
		key        = pflag.StringP("key", "k", "", "PageSpeed API key for this run (not persisted)")
		setKey     = pflag.String("set-key", "", "persist a PageSpeed API key (bare key or request URL containing key=) and exit")
		clearKey   = pflag.Bool("clear-key", false, "remove the persisted API key and exit")
		timeout    = pflag.Duration("timeout", 0, "analysis timeout (defaults to the configured value)")
		asJSON     = pflag.Bool("json", false, "print the result as JSON")
		verbose    = pflag.BoolP("verbose", "v", false, "log to stderr")
	)
	pflag.Parse()

	if err := run(*configPath, *target, *device, *key, *setKey, *clearKey, *timeout, *asJSON, *verbose); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(configPath, target, device, key, setKey string, clearKey bool, timeout time.Duration, asJSON, verbose bool) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	logger := zap.NewNop()
	if verbose {
		if logger, err = logging.New("debug", "console"); err != nil {
			return err
		}
		defer logger.Sync()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	backend, err := credential.OpenBackend(cfg.Credential.Backend, cfg.Credential.Path, cfg.Credential.Namespace, cfg.Credential.SecretName)
	if err != nil {
		return err
	}
	store := credential.NewStore(backend)

	switch {
	case setKey != "":
		stored, err := store.Set(ctx, setKey)
		if err != nil {
			return err
		}
		fmt.Printf("API key stored (%d characters)\n", len(stored))
		return nil
	case clearKey:
		if err := store.Clear(ctx); err != nil {
			return err
		}
		fmt.Println("API key removed")
		return nil
	}

	if target == "" {
		pflag.Usage()
		return errors.New("--url is required")
	}
	d, ok := models.ParseDevice(device)
	if !ok {
		return fmt.Errorf("unsupported device type %q", device)
	}

	fallback := cfg.Credential.APIKey
	if key != "" {
		// an explicit key wins over anything persisted
		store = credential.NewStore(credential.NewMemoryBackend(key))
	}
	if err := store.Load(ctx, fallback); err != nil {
		return err
	}

	if timeout <= 0 {
		timeout = cfg.PageSpeed.Timeout
	}

	client := pagespeed.NewClient(pagespeed.Options{
		Endpoint:          cfg.PageSpeed.Endpoint,
		RequestsPerSecond: cfg.PageSpeed.RequestsPerSecond,
		Burst:             cfg.PageSpeed.Burst,
		Retries:           cfg.PageSpeed.Retries,
	})
	analyzer := analysis.NewAnalyzer([]analysis.Source{
		analysis.NewPageSpeedSource(client, store),
		analysis.SyntheticSource{},
	}, analysis.Options{
		Timeout: timeout,
		History: synthetic.NewGenerator(),
		Logger:  logger,
	})

	res, err := analyzer.Analyze(ctx, analysis.Request{URL: target, Device: d})
	if err != nil {
		var aerr *analysis.Error
		if errors.As(err, &aerr) {
			return errors.New(aerr.UserMessage(d))
		}
		return err
	}

	if asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}

	fmt.Println(report.Render(res, time.Now()))
	return nil
}
