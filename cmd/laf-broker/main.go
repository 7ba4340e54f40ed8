// Command laf-broker routes one family's frontend subject to a supervised
// pool of laf-worker processes, admitting requests only to idle workers and
// respawning any worker that dies, per the dispatch fabric described in
// SPEC_FULL.md §5.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/GoCodeAlone/laf/dispatch"
	"github.com/GoCodeAlone/laf/logging"
	"github.com/GoCodeAlone/laf/metrics"
)

var (
	familyID    = flag.String("family", "", "family id this broker routes for (required, or set LAF_FAMILY)")
	home        = flag.String("home", "", "family base directory passed to spawned workers (defaults to LAF_HOME or .)")
	deployment  = flag.String("deployment", "", "deployment label passed to spawned workers (defaults to LAF_DEPLOYMENT)")
	natsURL     = flag.String("nats-url", nats.DefaultURL, "NATS server URL")
	workerBin   = flag.String("worker-bin", "laf-worker", "path to the laf-worker binary to spawn")
	poolSize    = flag.Int("pool-size", 4, "number of worker processes to maintain")
	metricsAddr = flag.String("metrics-addr", "", "HTTP listen address for /metrics; empty disables it")
	debug       = flag.Bool("debug", false, "enable debug logging")
	jsonLogs    = flag.Bool("json-logs", true, "emit structured logs as JSON")
)

func main() {
	flag.Parse()
	logger := logging.New(logging.Options{JSON: *jsonLogs, Debug: *debug})

	family := *familyID
	if family == "" {
		family = os.Getenv("LAF_FAMILY")
	}
	if family == "" {
		logger.Error("missing -family (or LAF_FAMILY)")
		os.Exit(1)
	}

	baseDir := *home
	if baseDir == "" {
		baseDir = envOr("LAF_HOME", ".")
	}
	deploy := *deployment
	if deploy == "" {
		deploy = os.Getenv("LAF_DEPLOYMENT")
	}

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		logger.Error("connecting to nats", "error", err)
		os.Exit(1)
	}
	defer nc.Close()

	baseEnv := []string{
		"LAF_FAMILY=" + family,
		"LAF_HOME=" + baseDir,
		"LAF_DEPLOYMENT=" + deploy,
		"LAF_NATS_URL=" + *natsURL,
	}
	if v := os.Getenv("NOTIFICATION_SOCK"); v != "" {
		baseEnv = append(baseEnv, "NOTIFICATION_SOCK="+v)
	}
	if v := os.Getenv("JOURNAL_SOCK"); v != "" {
		baseEnv = append(baseEnv, "JOURNAL_SOCK="+v)
	}

	spawner := &dispatch.WorkerSpawner{
		Command: func(ctx context.Context, env []string) *exec.Cmd {
			cmd := exec.CommandContext(ctx, *workerBin)
			cmd.Env = append(os.Environ(), env...)
			cmd.Stdout = os.Stdout
			cmd.Stderr = os.Stderr
			return cmd
		},
	}

	broker := dispatch.NewBroker(nc, family, spawner, baseEnv, logger)

	if *metricsAddr != "" {
		collector := metrics.New()
		broker.EnableMetrics(collector)
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", collector.Handler())
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Error("metrics server exited", "error", err)
			}
		}()
	}

	for i := 0; i < *poolSize; i++ {
		broker.Spawn(fmt.Sprintf("%s-w%d", family, i))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("broker running", "family", family, "pool_size", *poolSize, "nats_url", *natsURL)
	if err := broker.Run(ctx); err != nil {
		logger.Error("broker exited", "error", err)
		os.Exit(1)
	}
	logger.Info("broker shut down")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
