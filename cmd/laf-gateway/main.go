// Command laf-gateway hosts a family's HTTP Gateway: it compiles the
// family's OpenAPI documents, watches them for hot reload, and forwards
// every request over the dispatch fabric to the worker pool managed by
// laf-broker.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/GoCodeAlone/laf/authn"
	"github.com/GoCodeAlone/laf/dispatch"
	"github.com/GoCodeAlone/laf/family"
	"github.com/GoCodeAlone/laf/gateway"
	"github.com/GoCodeAlone/laf/logging"
	"github.com/GoCodeAlone/laf/metrics"
	"github.com/GoCodeAlone/laf/policy"
	"github.com/GoCodeAlone/laf/specloader"
)

var (
	addr           = flag.String("addr", ":8080", "HTTP listen address")
	home           = flag.String("home", "", "family base directory (defaults to LAF_HOME or .)")
	deployment     = flag.String("deployment", "", "deployment label (defaults to LAF_DEPLOYMENT)")
	natsURL        = flag.String("nats-url", nats.DefaultURL, "NATS server URL for the dispatch fabric")
	jwtSecret      = flag.String("jwt-secret", "", "HMAC secret for the default JWT identity plug-in (or set LAF_JWT_SECRET); empty disables authentication")
	validationSock = flag.String("validation-sock", "", "unix-domain socket path for the external validation service; empty disables the call")
	debug          = flag.Bool("debug", false, "enable debug logging")
	jsonLogs       = flag.Bool("json-logs", true, "emit structured logs as JSON")
)

func main() {
	flag.Parse()
	logger := logging.New(logging.Options{JSON: *jsonLogs, Debug: *debug})

	if err := run(logger); err != nil {
		logger.Error("gateway exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	baseDir := *home
	if baseDir == "" {
		baseDir = envOr("LAF_HOME", ".")
	}
	deploy := *deployment
	if deploy == "" {
		deploy = os.Getenv("LAF_DEPLOYMENT")
	}

	fam, err := family.Load(baseDir, deploy)
	if err != nil {
		return fmt.Errorf("loading family: %w", err)
	}

	reg, err := specloader.NewRegistry(fam.OpenAPIDir(), logger)
	if err != nil {
		return fmt.Errorf("compiling openapi registry: %w", err)
	}
	watcher, err := specloader.NewWatcher(reg, fam.OpenAPIDir(), logger)
	if err != nil {
		return fmt.Errorf("starting openapi watcher: %w", err)
	}
	defer watcher.Close()

	nc, err := nats.Connect(*natsURL)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer nc.Close()

	dispatchClient := dispatch.NewClient(nc, fam.ID)

	var identity gateway.Identity
	secret := *jwtSecret
	if secret == "" {
		secret = os.Getenv("LAF_JWT_SECRET")
	}
	if secret != "" {
		identity = authn.NewJWTIdentity(secret)
	} else {
		logger.Warn("no jwt secret configured; gateway runs without identity resolution")
	}

	srv := gateway.NewServer(fam, reg, dispatchClient, identity, logger)

	// A long-running task's completion happens inside a separate laf-worker
	// process; subscribing here is what lets this gateway's /status/<rqid>
	// observe it instead of polling its own, never-populated local map.
	statusSub, err := dispatch.SubscribeStatus(nc, fam.ID, srv.Tasks)
	if err != nil {
		return fmt.Errorf("subscribing to status updates: %w", err)
	}
	defer statusSub.Unsubscribe()

	if *validationSock != "" {
		srv.Validation = policy.NewValidationClient(*validationSock)
	}
	srv.EnableMetrics(metrics.New())

	httpServer := &http.Server{
		Addr:              *addr,
		Handler:           srv,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("gateway listening", "addr", *addr, "family", fam.ID, "deployment", fam.Deployment)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down gateway")
	case err := <-errCh:
		return fmt.Errorf("serving http: %w", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
