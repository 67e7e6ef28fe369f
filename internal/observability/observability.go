// Package observability wires Sentry error capture and Datadog APM
// tracing, trimmed from services/go-orchestrator/pkg/observability's
// Manager down to the two integrations this system's failure modes use
// (permanent chunk failures, dispatch-tick spans) — see DESIGN.md for why
// New Relic and the AWS/LocalStack session were dropped.
package observability

import (
	"context"
	"fmt"
	"os"
	"time"

	ddtrace "github.com/DataDog/dd-trace-go/v2/ddtrace/tracer"
	"github.com/getsentry/sentry-go"
	"go.uber.org/zap"
)

// Config holds configuration for the observability integrations.
type Config struct {
	DatadogAPIKey string
	SentryDSN     string
	Environment   string
}

// LoadConfigFromEnv loads Config from environment variables.
func LoadConfigFromEnv() Config {
	return Config{
		DatadogAPIKey: os.Getenv("DD_API_KEY"),
		SentryDSN:     os.Getenv("SENTRY_DSN"),
		Environment:   getEnvOrDefault("COORDINATOR_ENV", "production"),
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// Manager owns the Sentry/Datadog integrations' lifecycle and is the
// concrete type wired as a coordinator.Observer (via the Observer
// adapter in cmd/coordinator).
type Manager struct {
	config        Config
	log           *zap.Logger
	datadogActive bool
	sentryActive  bool
}

// NewManager constructs a Manager. Call Initialize to start integrations.
func NewManager(config Config, log *zap.Logger) *Manager {
	return &Manager{config: config, log: log}
}

// Initialize starts whichever integrations have configuration present.
func (m *Manager) Initialize() error {
	if m.config.DatadogAPIKey != "" {
		ddtrace.Start(
			ddtrace.WithEnv(m.config.Environment),
			ddtrace.WithService("compute-coordinator"),
			ddtrace.WithAgentAddr(getEnvOrDefault("DD_AGENT_HOST", "localhost:8126")),
		)
		m.datadogActive = true
		m.log.Info("observability: Datadog tracing initialized")
	}

	if m.config.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:         m.config.SentryDSN,
			Environment: m.config.Environment,
		}); err != nil {
			return fmt.Errorf("observability: sentry init: %w", err)
		}
		m.sentryActive = true
		m.log.Info("observability: Sentry initialized")
	}

	return nil
}

// Shutdown flushes and stops all active integrations.
func (m *Manager) Shutdown() {
	if m.datadogActive {
		ddtrace.Stop()
	}
	if m.sentryActive {
		sentry.Flush(2 * time.Second)
	}
}

// CaptureFailure reports a permanently failed chunk to Sentry, tagged
// with the job reference it belongs to (§4.5's exhausted-retry path).
func (m *Manager) CaptureFailure(err error, jobRef string) {
	if !m.sentryActive || err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("job_ref", jobRef)
		sentry.CaptureException(err)
	})
}

// StartDispatchSpan starts a Datadog span around one dispatch tick.
func (m *Manager) StartDispatchSpan(ctx context.Context) (context.Context, func()) {
	if !m.datadogActive {
		return ctx, func() {}
	}
	span, spanCtx := ddtrace.StartSpanFromContext(ctx, "coordinator.dispatch_tick")
	return spanCtx, func() { span.Finish() }
}
