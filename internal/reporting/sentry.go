package reporting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"github.com/ClusterCockpit/cc-frontend/internal/logging"
	"github.com/getsentry/sentry-go"
)

var bearerRx = regexp.MustCompile(`Bearer [A-Za-z0-9\-_.=]+`)
var jwtRx = regexp.MustCompile(`eyJ[A-Za-z0-9\-_=]+\.[A-Za-z0-9\-_=]+\.[A-Za-z0-9\-_.+/=]*`)
var jobIDRx = regexp.MustCompile(`/jobs/metrics/\d+`)
var uuidRx = regexp.MustCompile(`[0-9a-f]{8}-?([0-9a-f]{4}-?){3}[0-9a-f]{12}`)
var hostRx = regexp.MustCompile(`\[:{0,2}([0-9a-f]{0,4}:?){1,8}\]:\d+`)
var ipv4HostRx = regexp.MustCompile(`\b(\d{1,3}\.){3}\d{1,3}:\d+\b`)

// sanitizeError strips identifiers from an error message so equivalent
// failures are grouped together
func sanitizeError(err string) string {
	err = bearerRx.ReplaceAllString(err, "Bearer <token>")
	err = jwtRx.ReplaceAllString(err, "<jwt>")
	err = jobIDRx.ReplaceAllString(err, "/jobs/metrics/<id>")
	err = uuidRx.ReplaceAllString(err, "<uuid>")
	err = hostRx.ReplaceAllString(err, "<host>")
	err = ipv4HostRx.ReplaceAllString(err, "<host>")
	return err
}

func Report(ctx context.Context, err error, extras ...map[string]string) {
	logger := logging.FromContext(ctx)
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		logger.WarnContext(ctx, "Sentry not configured, dropping report", slog.Any("error", err), slog.Any("extras", extras))
		return
	}

	if err == nil {
		err = errors.New("No error provided")
	}

	logger.ErrorContext(
		ctx,
		"Reporting error to Sentry",
		slog.String("error", err.Error()),
		slog.Any("extras", extras),
	)

	hub.WithScope(func(scope *sentry.Scope) {
		meta := MetaFromContext(ctx)
		scope.SetTags(meta.tags)
		for key, value := range meta.extras {
			scope.SetExtra(key, value)
		}
		if meta.instanceID != "" {
			scope.SetUser(sentry.User{ID: meta.instanceID})
		}
		if !meta.startedAt.IsZero() {
			scope.SetExtra("secondsSinceStart", time.Since(meta.startedAt).Seconds())
		}

		for _, extra := range extras {
			for key, value := range extra {
				scope.SetExtra(key, value)
			}
		}

		scope.SetFingerprint([]string{"{{ default }}", sanitizeError(err.Error())})
		hub.CaptureException(err)
	})
}

// WithHub binds a hub cloned from the current one to ctx so scope changes do
// not leak between operations
func WithHub(ctx context.Context) context.Context {
	if sentry.HasHubOnContext(ctx) {
		return ctx
	}
	return sentry.SetHubOnContext(ctx, sentry.CurrentHub().Clone())
}

type SentryConfig interface {
	SentryDSN() string
	IsDevelopment() bool
}

func InitSentry(sentryDSN string, release string) (func(), error) {
	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sentryDSN,
		Release:          release,
		EnableTracing:    true,
		TracesSampleRate: 1.0 / 100.0,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize sentry: %w", err)
	}

	flush := func() {
		sentry.Flush(5 * time.Second)
	}

	return flush, nil
}

func NewSentryOrMock(config SentryConfig, release string) (func(), error) {
	if config.SentryDSN() != "" {
		return InitSentry(config.SentryDSN(), release)
	}

	if config.IsDevelopment() {
		return func() {}, nil
	}

	return nil, fmt.Errorf("Missing Sentry DSN in non-development environment")
}
