// Command coordinator runs one server coordinator node: it joins a
// cluster via internal/registry, serves the client protocol via
// internal/clientproto, and schedules chunk computation via
// internal/coordinator. Lifecycle (bring-up, metrics server, graceful
// shutdown on SIGINT/SIGTERM) follows the teacher's orchestrator
// Start/Stop lifecycle, adapted to this system's components.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/pangea-net/compute-coordinator/internal/calculator"
	"github.com/pangea-net/compute-coordinator/internal/capacity"
	"github.com/pangea-net/compute-coordinator/internal/clientproto"
	appconfig "github.com/pangea-net/compute-coordinator/internal/config"
	"github.com/pangea-net/compute-coordinator/internal/coordinator"
	"github.com/pangea-net/compute-coordinator/internal/guard"
	"github.com/pangea-net/compute-coordinator/internal/hooks"
	"github.com/pangea-net/compute-coordinator/internal/metrics"
	"github.com/pangea-net/compute-coordinator/internal/observability"
	"github.com/pangea-net/compute-coordinator/internal/registry"
)

// observer adapts internal/metrics and internal/observability.Manager
// into a single coordinator.Observer, the side-channel the FSM reports
// through without depending on either concrete backend.
type observer struct {
	obs *observability.Manager
}

func (o observer) SetWorkers(active, max int) { metrics.SetWorkers(active, max) }
func (o observer) IncDispatched(n int)        { metrics.DispatchedTotal.Add(float64(n)) }
func (o observer) IncRetried()                { metrics.RetriedTotal.Inc() }
func (o observer) IncPermanentFailures()      { metrics.PermanentFailuresTotal.Inc() }
func (o observer) ObserveHookLatency(kind string, d time.Duration) {
	metrics.ObserveHookLatency(kind, d)
}
func (o observer) CaptureFailure(err error, jobRef string) { o.obs.CaptureFailure(err, jobRef) }
func (o observer) StartDispatchSpan(ctx context.Context) (context.Context, func()) {
	return o.obs.StartDispatchSpan(ctx)
}

func main() {
	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := appconfig.Parse(os.Args[1:])
	if err != nil {
		log.Fatal("config: parse failed", zap.Error(err))
	}

	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = capacity.Probe().CPUCores
	}
	log.Info("coordinator: starting",
		zap.String("cluster", cfg.Cluster),
		zap.Int("max_workers", cfg.MaxWorkers),
		zap.Bool("local_mode", cfg.LocalMode))

	obsManager := observability.NewManager(observability.LoadConfigFromEnv(), log)
	if err := obsManager.Initialize(); err != nil {
		log.Warn("observability: initialization failed", zap.Error(err))
	}
	defer obsManager.Shutdown()

	reg, err := registry.New(registry.Options{LocalMode: cfg.LocalMode, Port: cfg.ListenPort}, log)
	if err != nil {
		log.Fatal("registry: bring-up failed", zap.Error(err))
	}
	defer reg.Close()

	calcRegistry := calculator.NewRegistry()
	calculator.RegisterSamples(calcRegistry)

	hookRegistry := hooks.NewRegistry()

	coord := coordinator.New(
		coordinator.Config{MaxWorkers: cfg.MaxWorkers, NumChunks: cfg.NumChunks},
		nil, // ClientCoordinator late-bound below via SetClient, once the
		// transport (which itself needs coord to dispatch inbound
		// messages) has been constructed.
		reg,
		calcRegistry,
		hookRegistry,
		observer{obs: obsManager},
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go coord.Run(ctx)

	clientGuard := guard.New(guard.DefaultConfig())
	go reapGuardPeriodically(ctx, clientGuard)

	transport := clientproto.New(reg.Host(), coord, clientGuard, log)
	coord.SetClient(ctx, transport)

	if err := reg.RegisterServer(ctx, cfg.Cluster); err != nil {
		log.Fatal("registry: failed to register server", zap.Error(err))
	}

	identityStore := appconfig.NewIdentityStore(cfg.Cluster)
	bootstrapPeers := []string{}
	if cfg.BootstrapPeer != "" {
		bootstrapPeers = append(bootstrapPeers, cfg.BootstrapPeer)
	}
	if cached, err := identityStore.Load(); err != nil {
		log.Warn("config: load identity cache failed", zap.Error(err))
	} else {
		bootstrapPeers = append(bootstrapPeers, cached.BootstrapPeers...)
	}
	for _, addr := range bootstrapPeers {
		if err := reg.ConnectBootstrapPeer(ctx, addr); err != nil {
			log.Warn("registry: bootstrap peer connect failed", zap.String("peer", addr), zap.Error(err))
			continue
		}
		if err := identityStore.AddBootstrapPeer(cfg.Cluster, addr); err != nil {
			log.Warn("config: cache bootstrap peer failed", zap.Error(err))
		}
	}

	// §4.1's mandatory startup sequence: enumerate clients already in the
	// cluster and announce this coordinator's availability and capacity.
	coord.BroadcastServerUp(ctx, cfg.Cluster, reg.LocalPeerID(), capacity.Probe())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	metricsServer := &http.Server{Addr: cfg.MetricsAddr, Handler: mux}
	go func() {
		log.Info("metrics: listening", zap.String("addr", cfg.MetricsAddr))
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics: server error", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info("coordinator: shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdown)
	defer shutdownCancel()
	_ = metricsServer.Shutdown(shutdownCtx)
	cancel()

	log.Info("coordinator: shutdown complete")
}

// reapGuardPeriodically drops the rate-limit guard's tracking for clients
// that have gone idle, bounding its memory use over a long-running
// process (§6 "Persisted state: None" — nothing here needs to survive a
// restart, so an in-memory reap is sufficient).
func reapGuardPeriodically(ctx context.Context, g *guard.Guard) {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			g.Reap()
		}
	}
}
