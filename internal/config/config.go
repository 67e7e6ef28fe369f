// Package config holds the coordinator's startup configuration, loaded
// from flags the way services/go-orchestrator/main.go's flag block does,
// plus the identity bits config.go's ConfigManager persisted for the
// chat node (cluster name, listen port) — trimmed to what a compute
// coordinator actually needs at bring-up.
package config

import (
	"flag"
	"fmt"
	"time"
)

// Config is the coordinator process's startup configuration.
type Config struct {
	Cluster          string
	ListenPort       int
	MetricsAddr      string
	LocalMode        bool
	MaxWorkers       int
	NumChunks        int
	GracefulShutdown time.Duration
	BootstrapPeer    string
}

// Parse parses args (typically os.Args[1:]) into a Config.
func Parse(args []string) (Config, error) {
	fs := flag.NewFlagSet("coordinator", flag.ContinueOnError)

	cluster := fs.String("cluster", "default", "cluster rendezvous name this coordinator joins")
	listenPort := fs.Int("listen-port", 7777, "libp2p listen port (WAN mode only)")
	metricsAddr := fs.String("metrics-addr", ":9090", "Prometheus metrics listen address")
	localMode := fs.Bool("local", false, "bind only to localhost and skip DHT discovery")
	maxWorkers := fs.Int("max-workers", 0, "initial worker pool size (0: probe CPU count)")
	numChunks := fs.Int("num-chunks", 10, "default pull-batch size requested from clients")
	gracefulShutdown := fs.Duration("shutdown-timeout", 10*time.Second, "graceful shutdown timeout")
	bootstrapPeer := fs.String("bootstrap-peer", "", "multiaddr of a known peer to seed WAN-mode DHT rendezvous")

	if err := fs.Parse(args); err != nil {
		return Config{}, fmt.Errorf("config: parse flags: %w", err)
	}

	return Config{
		Cluster:          *cluster,
		ListenPort:       *listenPort,
		MetricsAddr:      *metricsAddr,
		LocalMode:        *localMode,
		MaxWorkers:       *maxWorkers,
		NumChunks:        *numChunks,
		GracefulShutdown: *gracefulShutdown,
		BootstrapPeer:    *bootstrapPeer,
	}, nil
}
