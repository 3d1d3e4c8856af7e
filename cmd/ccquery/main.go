package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ClusterCockpit/cc-frontend/cmd/ccquery/commands"
	"github.com/ClusterCockpit/cc-frontend/internal/client"
	"github.com/ClusterCockpit/cc-frontend/internal/config"
	"github.com/ClusterCockpit/cc-frontend/internal/constants"
	"github.com/ClusterCockpit/cc-frontend/internal/logging"
	"github.com/ClusterCockpit/cc-frontend/internal/reporting"
	"github.com/ClusterCockpit/cc-frontend/internal/telemetry"
	"github.com/google/uuid"

	_ "golang.org/x/crypto/x509roots/fallback"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instanceID := uuid.New().String()

	cfg, err := config.ConfigFromEnv()
	if err != nil {
		// No logger yet
		_, _ = os.Stderr.WriteString("Failed to load config: " + err.Error() + "\n")
		return 1
	}

	logger, closeLog := logging.NewLogger(&cfg)
	defer func() {
		_ = closeLog()
	}()
	logger = logger.With("instanceID", instanceID)
	ctx = logging.AddToContext(ctx, logger)

	logger.InfoContext(ctx, "Loaded config", "config", cfg.NonSensitiveString())

	flush, err := reporting.NewSentryOrMock(&cfg, "ccquery@"+constants.VERSION)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize Sentry", "error", err.Error())
		return 1
	}
	defer flush()
	ctx = reporting.WithHub(ctx)
	ctx = reporting.SetInstanceIDInContext(ctx, instanceID)

	shutdownOTel, err := telemetry.SetupOTelSDK(ctx, "ccquery", cfg.OTelEnabled())
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize OpenTelemetry", "error", err.Error())
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownOTel(shutdownCtx); err != nil {
			logger.WarnContext(ctx, "Failed to shut down OpenTelemetry", "error", err.Error())
		}
	}()

	c, err := client.New(&cfg)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to initialize client", "error", err.Error())
		return 1
	}
	defer c.Close()

	cli := commands.New(c)
	cli.SetArgs(args)
	if err := cli.Execute(ctx); err != nil {
		logger.ErrorContext(ctx, "Command failed", "error", err.Error())
		return 1
	}
	return 0
}
