// Package registry implements the cluster registry collaborator (§2.1,
// §6 of spec.md): naming this coordinator inside a cluster and
// enumerating its clients. It is grounded on
// NewLibP2PPangeaNodeWithOptions's local-vs-WAN libp2p bring-up: mDNS
// discovery in local mode, a Kademlia DHT rendezvous in WAN mode.
package registry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/libp2p/go-libp2p"
	dht "github.com/libp2p/go-libp2p-kad-dht"
	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/p2p/discovery/mdns"
	"github.com/libp2p/go-libp2p/p2p/discovery/routing"
	"github.com/libp2p/go-libp2p/p2p/muxer/yamux"
	"github.com/libp2p/go-libp2p/p2p/net/connmgr"
	"github.com/libp2p/go-libp2p/p2p/security/noise"
	"github.com/libp2p/go-libp2p/p2p/transport/tcp"
	"github.com/multiformats/go-multiaddr"
	"go.uber.org/zap"
)

// Options configures a Registry's libp2p bring-up.
type Options struct {
	// LocalMode binds only to localhost and skips DHT — used for the
	// single-host scenarios S1-S6 describe.
	LocalMode bool
	Port      int
}

// Registry is a libp2p-backed ClusterRegistry: RegisterServer announces
// this coordinator under a cluster rendezvous string, GetClients
// enumerates every peer discovered so far (see GetClients).
type Registry struct {
	host host.Host
	dht  *dht.IpfsDHT
	disc *routing.RoutingDiscovery
	mdns mdns.Service
	log  *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	clients map[peer.ID]struct{}
}

// New brings up a libp2p host and its discovery services per opts,
// mirroring NewLibP2PPangeaNodeWithOptions's transport/security/mux
// selection and local-vs-WAN branch.
func New(opts Options, log *zap.Logger) (*Registry, error) {
	ctx, cancel := context.WithCancel(context.Background())

	connMgr, err := connmgr.NewConnManager(100, 400, connmgr.WithGracePeriod(2*time.Second))
	if err != nil {
		cancel()
		return nil, fmt.Errorf("registry: connection manager: %w", err)
	}

	libp2pOpts := []libp2p.Option{
		libp2p.Transport(tcp.NewTCPTransport),
		libp2p.Security(noise.ID, noise.New),
		libp2p.Muxer(yamux.ID, yamux.DefaultTransport),
		libp2p.ConnectionManager(connMgr),
		libp2p.ResourceManager(&network.NullResourceManager{}),
	}

	if opts.LocalMode {
		libp2pOpts = append(libp2pOpts, libp2p.ListenAddrStrings("/ip4/127.0.0.1/tcp/0"))
	} else {
		libp2pOpts = append(libp2pOpts,
			libp2p.ListenAddrStrings(fmt.Sprintf("/ip4/0.0.0.0/tcp/%d", opts.Port)),
			libp2p.EnableNATService(),
			libp2p.EnableHolePunching(),
		)
	}

	h, err := libp2p.New(libp2pOpts...)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("registry: libp2p host: %w", err)
	}

	var kadDHT *dht.IpfsDHT
	var disc *routing.RoutingDiscovery
	if !opts.LocalMode {
		kadDHT, err = dht.New(ctx, h, dht.Mode(dht.ModeServer))
		if err != nil {
			h.Close()
			cancel()
			return nil, fmt.Errorf("registry: DHT: %w", err)
		}
		if err := kadDHT.Bootstrap(ctx); err != nil {
			log.Warn("registry: DHT bootstrap failed, continuing without WAN rendezvous", zap.Error(err))
		}
		disc = routing.NewRoutingDiscovery(kadDHT)
	}

	r := &Registry{
		host:    h,
		dht:     kadDHT,
		disc:    disc,
		log:     log,
		ctx:     ctx,
		cancel:  cancel,
		clients: make(map[peer.ID]struct{}),
	}

	notifee := &discoveryNotifee{registry: r}
	mdnsService := mdns.NewMdnsService(h, mdnsServiceTag, notifee)
	r.mdns = mdnsService

	return r, nil
}

const mdnsServiceTag = "pangea-compute-coordinator"

// RegisterServer implements coordinator.ClusterRegistry: starts mDNS
// discovery and, in WAN mode, advertises this coordinator under the
// cluster's DHT rendezvous string.
func (r *Registry) RegisterServer(ctx context.Context, cluster string) error {
	if r.mdns != nil {
		if err := r.mdns.Start(); err != nil {
			return fmt.Errorf("registry: start mDNS: %w", err)
		}
	}
	if r.disc != nil {
		if _, err := r.disc.Advertise(ctx, rendezvous(cluster)); err != nil {
			return fmt.Errorf("registry: advertise on DHT: %w", err)
		}
		go r.discoverLoop(cluster)
	}
	return nil
}

// GetClients implements coordinator.ClusterRegistry: returns the peer IDs
// of every peer discovered so far — via mDNS, the DHT rendezvous, or
// ConnectBootstrapPeer. The cluster argument is not consulted: mDNS
// discovery uses one service tag for all clusters, and peers are not
// filtered by cluster or by client/server role.
func (r *Registry) GetClients(ctx context.Context, cluster string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	clients := make([]string, 0, len(r.clients))
	for pid := range r.clients {
		clients = append(clients, pid.String())
	}
	return clients, nil
}

// LocalPeerID returns this coordinator's own peer ID string, the `self`
// argument server_up broadcasts (§4.1).
func (r *Registry) LocalPeerID() string {
	return r.host.ID().String()
}

// Host exposes the underlying libp2p host for internal/clientproto.
func (r *Registry) Host() host.Host {
	return r.host
}

// ConnectBootstrapPeer dials a known peer given its full multiaddr (e.g.
// "/ip4/1.2.3.4/tcp/7777/p2p/QmPeer..."), for seeding WAN-mode DHT
// rendezvous without waiting on ambient discovery.
func (r *Registry) ConnectBootstrapPeer(ctx context.Context, addr string) error {
	maddr, err := multiaddr.NewMultiaddr(addr)
	if err != nil {
		return fmt.Errorf("registry: invalid bootstrap multiaddr %q: %w", addr, err)
	}
	pi, err := peer.AddrInfoFromP2pAddr(maddr)
	if err != nil {
		return fmt.Errorf("registry: invalid bootstrap peer info %q: %w", addr, err)
	}
	if err := r.host.Connect(ctx, *pi); err != nil {
		return fmt.Errorf("registry: connect bootstrap peer %q: %w", addr, err)
	}
	r.addClient(*pi)
	return nil
}

// Close shuts down discovery and the libp2p host.
func (r *Registry) Close() error {
	r.cancel()
	if r.mdns != nil {
		_ = r.mdns.Close()
	}
	if r.dht != nil {
		_ = r.dht.Close()
	}
	return r.host.Close()
}

func (r *Registry) discoverLoop(cluster string) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.findPeers(cluster)
		}
	}
}

func (r *Registry) findPeers(cluster string) {
	peerChan, err := r.disc.FindPeers(r.ctx, rendezvous(cluster))
	if err != nil {
		r.log.Warn("registry: find peers failed", zap.Error(err))
		return
	}
	for pi := range peerChan {
		r.addClient(pi)
	}
}

func (r *Registry) addClient(pi peer.AddrInfo) {
	if pi.ID == "" || pi.ID == r.host.ID() {
		return
	}
	if r.host.Network().Connectedness(pi.ID) != network.Connected {
		ctx, cancel := context.WithTimeout(r.ctx, 10*time.Second)
		defer cancel()
		if err := r.host.Connect(ctx, pi); err != nil {
			r.log.Debug("registry: connect failed", zap.String("peer", shortPeerID(pi.ID)), zap.Error(err))
			return
		}
	}
	r.mu.Lock()
	r.clients[pi.ID] = struct{}{}
	r.mu.Unlock()
}

func rendezvous(cluster string) string {
	return mdnsServiceTag + ":" + cluster
}

type discoveryNotifee struct {
	registry *Registry
}

func (n *discoveryNotifee) HandlePeerFound(pi peer.AddrInfo) {
	n.registry.addClient(pi)
}

func shortPeerID(id peer.ID) string {
	s := id.String()
	if len(s) <= 8 {
		return s
	}
	return s[:8]
}
