// Command laf-worker loads one family's lones, registers their resource
// handlers, and serves requests from the dispatch fabric's backend subject
// until its process is asked to stop. Handlers themselves are user-authored
// business logic outside this framework's scope; see package handlers for
// the registration extension point.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/nats-io/nats.go"

	"github.com/GoCodeAlone/laf/cmd/laf-worker/handlers"
	"github.com/GoCodeAlone/laf/dispatch"
	"github.com/GoCodeAlone/laf/family"
	"github.com/GoCodeAlone/laf/lone"
	"github.com/GoCodeAlone/laf/logging"
	"github.com/GoCodeAlone/laf/metrics"
	"github.com/GoCodeAlone/laf/policy"
	"github.com/GoCodeAlone/laf/specloader"
	"github.com/GoCodeAlone/laf/worker"
)

var (
	workerIDFlag   = flag.String("worker-id", "", "this worker's broker-assigned id (or set LAF_WORKER_ID)")
	familyFlag     = flag.String("family", "", "family id to serve (or set LAF_FAMILY)")
	homeFlag       = flag.String("home", "", "family base directory (defaults to LAF_HOME or .)")
	deploymentFlag = flag.String("deployment", "", "deployment label (defaults to LAF_DEPLOYMENT)")
	natsURLFlag    = flag.String("nats-url", nats.DefaultURL, "NATS server URL (or set LAF_NATS_URL)")
	authzSock      = flag.String("authz-sock", "", "unix-domain socket for the authorization service (or set AUTHZ_SOCK); empty disables auth")
	journalSock    = flag.String("journal-sock", "", "unix-domain socket for the journal daemon (or set JOURNAL_SOCK); empty disables journaling")
	notifySock     = flag.String("notify-sock", "", "unix-domain socket for the notification daemon (or set NOTIFICATION_SOCK)")
	kafkaBrokers   = flag.String("kafka-brokers", "", "comma-separated Kafka brokers for notifications, alternate to -notify-sock (or set KAFKA_BROKERS)")
	kafkaTopic     = flag.String("kafka-topic", "laf-notifications", "Kafka topic for notifications (or set KAFKA_TOPIC)")
	authzVersion   = flag.String("authz-version", "v1", "protocol version sent to the authorization service")
	debug          = flag.Bool("debug", false, "enable debug logging")
	jsonLogs       = flag.Bool("json-logs", true, "emit structured logs as JSON")
)

func main() {
	flag.Parse()
	logger := logging.New(logging.Options{JSON: *jsonLogs, Debug: *debug})

	if err := run(logger); err != nil {
		logger.Error("worker exited", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	workerID := *workerIDFlag
	if workerID == "" {
		workerID = os.Getenv("LAF_WORKER_ID")
	}
	if workerID == "" {
		return fmt.Errorf("missing -worker-id (or LAF_WORKER_ID)")
	}

	famID := *familyFlag
	if famID == "" {
		famID = os.Getenv("LAF_FAMILY")
	}
	if famID == "" {
		return fmt.Errorf("missing -family (or LAF_FAMILY)")
	}

	baseDir := *homeFlag
	if baseDir == "" {
		baseDir = envOr("LAF_HOME", ".")
	}
	deploy := *deploymentFlag
	if deploy == "" {
		deploy = os.Getenv("LAF_DEPLOYMENT")
	}
	natsURL := *natsURLFlag
	if natsURL == nats.DefaultURL {
		if v := os.Getenv("LAF_NATS_URL"); v != "" {
			natsURL = v
		}
	}

	famDesc, err := family.Load(baseDir, deploy)
	if err != nil {
		return fmt.Errorf("loading family: %w", err)
	}

	reg, err := specloader.NewRegistry(famDesc.OpenAPIDir(), logger)
	if err != nil {
		return fmt.Errorf("compiling openapi registry: %w", err)
	}

	workerReg := worker.NewRegistry()
	for _, loneName := range famDesc.Server.Lones {
		ops := reg.Operations(loneName)
		descriptor := lone.NewDescriptor(loneName, specloader.Version{}, ops)
		handlers.Register(descriptor, ops)
		workerReg.AddLone(descriptor)
	}

	rt := &worker.Runtime{
		Registry:     workerReg,
		Tasks:        worker.NewTaskStore(),
		FamilyID:     famDesc.ID,
		FamilyDeploy: famDesc.Deployment,
		Logger:       logger,
	}

	authzPath := *authzSock
	if authzPath == "" {
		authzPath = os.Getenv("AUTHZ_SOCK")
	}
	if authzPath == "" {
		if resolved, err := resolveDefaultAuth(); err != nil {
			logger.Debug("no defaultauth credential resolved", "error", err)
		} else {
			authzPath = resolved
		}
	}
	if authzPath != "" {
		rt.Authorizer = policy.NewAuthzClient(authzPath, *authzVersion)
	}

	journalPath := *journalSock
	if journalPath == "" {
		journalPath = os.Getenv("JOURNAL_SOCK")
	}
	if journalPath != "" {
		journalClient := policy.NewJournalClient(journalPath, logger)
		journalClient.EnableMetrics(metrics.New())
		rt.Journal = journalClient
	}

	notifier, closeNotifier, err := buildNotifier(logger)
	if err != nil {
		return fmt.Errorf("building notifier: %w", err)
	}
	if notifier != nil {
		rt.Notify = notifier
		defer closeNotifier()
	}

	nc, err := nats.Connect(natsURL)
	if err != nil {
		return fmt.Errorf("connecting to nats: %w", err)
	}
	defer nc.Close()
	rt.Publisher = dispatch.NewStatusPublisher(nc, famID)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("worker serving", "worker_id", workerID, "family", famID, "lones", famDesc.Server.Lones)
	return rt.RunLoop(ctx, nc, famID, workerID)
}

func buildNotifier(logger *slog.Logger) (worker.Notifier, func(), error) {
	brokers := *kafkaBrokers
	if brokers == "" {
		brokers = os.Getenv("KAFKA_BROKERS")
	}
	if brokers != "" {
		topic := *kafkaTopic
		if v := os.Getenv("KAFKA_TOPIC"); v != "" {
			topic = v
		}
		kn, err := policy.NewKafkaNotifier(strings.Split(brokers, ","), topic, logger)
		if err != nil {
			return nil, nil, err
		}
		return kn, func() { _ = kn.Close() }, nil
	}

	sockPath := *notifySock
	if sockPath == "" {
		sockPath = os.Getenv("NOTIFICATION_SOCK")
	}
	if sockPath != "" {
		return policy.NewStreamNotifier(sockPath, logger), func() {}, nil
	}
	return nil, nil, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// resolveDefaultAuth consults LAF_CONFIG/defaultauth for the authorization
// socket path, resolving a "vault:" reference through Vault when present.
func resolveDefaultAuth() (string, error) {
	configDir := os.Getenv("LAF_CONFIG")
	if configDir == "" {
		return "", fmt.Errorf("LAF_CONFIG not set")
	}
	resolver, err := policy.NewCredentialResolver()
	if err != nil {
		return "", err
	}
	return policy.ResolveDefaultAuth(context.Background(), resolver, configDir)
}
