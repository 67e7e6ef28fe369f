package observability

import (
	"context"
	"errors"
	"os"
	"testing"

	"go.uber.org/zap"
)

func TestLoadConfigFromEnvDefaultsEnvironment(t *testing.T) {
	os.Unsetenv("COORDINATOR_ENV")
	os.Unsetenv("DD_API_KEY")
	os.Unsetenv("SENTRY_DSN")

	cfg := LoadConfigFromEnv()
	if cfg.Environment != "production" {
		t.Fatalf("expected default environment to be production, got %q", cfg.Environment)
	}
	if cfg.DatadogAPIKey != "" || cfg.SentryDSN != "" {
		t.Fatalf("expected empty integration config when no env vars are set")
	}
}

func TestLoadConfigFromEnvRespectsOverride(t *testing.T) {
	os.Setenv("COORDINATOR_ENV", "staging")
	defer os.Unsetenv("COORDINATOR_ENV")

	cfg := LoadConfigFromEnv()
	if cfg.Environment != "staging" {
		t.Fatalf("expected environment override to take effect, got %q", cfg.Environment)
	}
}

func TestCaptureFailureIsNoOpWithoutSentry(t *testing.T) {
	m := NewManager(Config{}, zap.NewNop())
	// Initialize was never called, so sentryActive stays false; this must
	// not panic even though no Sentry client is configured.
	m.CaptureFailure(errors.New("boom"), "job-1")
}

func TestStartDispatchSpanIsNoOpWithoutDatadog(t *testing.T) {
	m := NewManager(Config{}, zap.NewNop())
	ctx := context.Background()

	spanCtx, finish := m.StartDispatchSpan(ctx)
	if spanCtx != ctx {
		t.Fatalf("expected an inactive manager to return the context unchanged")
	}
	finish()
}

func TestShutdownIsNoOpWhenNothingWasInitialized(t *testing.T) {
	m := NewManager(Config{}, zap.NewNop())
	m.Shutdown()
}
