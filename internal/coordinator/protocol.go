package coordinator

import (
	"context"

	"github.com/pangea-net/compute-coordinator/internal/capacity"
	"github.com/pangea-net/compute-coordinator/internal/chunk"
)

// ClientCoordinator is the external collaborator that holds jobs and
// receives pull requests / completed output (§2.3, §4.2, §6).
type ClientCoordinator interface {
	// SendChunks issues a pull request to client for n more chunks.
	SendChunks(ctx context.Context, client string, n int) error
	// CalcDone delivers a completed (or permanently failed) output chunk.
	CalcDone(ctx context.Context, client string, out chunk.OutputChunk) error
	// ServerUp announces this coordinator's availability and probed
	// capacity to client at startup (§4.1, §12).
	ServerUp(ctx context.Context, client string, self string, caps capacity.Capacity) error
}

// ClusterRegistry is the external cluster registry collaborator (§2.1,
// §6): names coordinators inside a cluster and enumerates clients.
type ClusterRegistry interface {
	RegisterServer(ctx context.Context, cluster string) error
	GetClients(ctx context.Context, cluster string) ([]string, error)
}
