// Package clientproto implements the wire transport for the client
// coordinator protocol (§4.2, §6 of spec.md) as length-prefixed JSON
// frames over dedicated libp2p stream protocols, the same framing
// pkg/communication/communication.go uses for its chat/video/voice
// streams, adapted here to the six coordinator messages instead (three
// inbound, three outbound including server_up).
package clientproto

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/libp2p/go-libp2p/core/host"
	"github.com/libp2p/go-libp2p/core/network"
	"github.com/libp2p/go-libp2p/core/peer"
	"github.com/libp2p/go-libp2p/core/protocol"
	"go.uber.org/zap"

	"github.com/pangea-net/compute-coordinator/internal/capacity"
	"github.com/pangea-net/compute-coordinator/internal/chunk"
	"github.com/pangea-net/compute-coordinator/internal/coordinator"
	"github.com/pangea-net/compute-coordinator/internal/guard"
)

// Protocol IDs for the coordinator<->client wire protocol.
const (
	ClientDataProtocol    protocol.ID = "/pangea/coordinator/client-data/1.0.0"
	ProcessChunksProtocol protocol.ID = "/pangea/coordinator/process-chunks/1.0.0"
	JobCleanupProtocol    protocol.ID = "/pangea/coordinator/job-cleanup/1.0.0"
	SendChunksProtocol    protocol.ID = "/pangea/coordinator/send-chunks/1.0.0"
	CalcDoneProtocol      protocol.ID = "/pangea/coordinator/calc-done/1.0.0"
	ServerUpProtocol      protocol.ID = "/pangea/coordinator/server-up/1.0.0"

	// streamReadTimeout bounds each length-prefixed read so a stalled
	// peer cannot pin a handler goroutine forever.
	streamReadTimeout = 30 * time.Second
	// maxFrameBytes caps a single frame, mirroring communication.go's
	// per-protocol size ceilings against a misbehaving peer.
	maxFrameBytes = 16 * 1024 * 1024
)

// wireJobCleanup is job_cleanup's frame payload.
type wireJobCleanup struct {
	Client string              `json:"client"`
	Ref    string              `json:"ref"`
	Post   chunk.HookDescriptor `json:"post"`
}

// wireSendChunks is send_chunks' frame payload.
type wireSendChunks struct {
	N int `json:"n"`
}

// wireServerUp is server_up's frame payload — identity plus the probed
// capacity this coordinator is advertising (§12: "server_up carries
// capacity, not just identity").
type wireServerUp struct {
	Self     string            `json:"self"`
	Capacity capacity.Capacity `json:"capacity"`
}

// Transport wires a libp2p host's stream handlers to a Coordinator's
// inbound methods, and implements coordinator.ClientCoordinator for the
// outbound direction (send_chunks, calc_done, server_up).
type Transport struct {
	host  host.Host
	log   *zap.Logger
	guard *guard.Guard
}

// New wires stream handlers for the three inbound coordinator messages
// onto host, dispatching them to coord, and returns a Transport usable
// as coord's ClientCoordinator for the outbound three. Inbound
// client_data/process_chunks are rate-limited per client via g, the
// assumed-upstream limiter spec.md §9 calls for.
func New(h host.Host, coord *coordinator.Coordinator, g *guard.Guard, log *zap.Logger) *Transport {
	t := &Transport{host: h, log: log, guard: g}

	h.SetStreamHandler(ClientDataProtocol, func(s network.Stream) {
		defer s.Close()
		client := shortPeer(s.Conn().RemotePeer())
		if err := t.guard.Allow(client); err != nil {
			t.log.Debug("clientproto: client_data rejected by guard", zap.String("client", client), zap.Error(err))
			return
		}
		coord.ClientData(context.Background(), client)
	})

	h.SetStreamHandler(ProcessChunksProtocol, func(s network.Stream) {
		defer s.Close()
		client := shortPeer(s.Conn().RemotePeer())
		if err := t.guard.Allow(client); err != nil {
			t.log.Debug("clientproto: process_chunks rejected by guard", zap.String("client", client), zap.Error(err))
			return
		}
		var b chunk.Batch
		if err := readFrame(s, &b); err != nil {
			t.log.Warn("clientproto: process_chunks read failed", zap.Error(err))
			return
		}
		coord.ProcessChunks(context.Background(), b)
	})

	h.SetStreamHandler(JobCleanupProtocol, func(s network.Stream) {
		defer s.Close()
		var w wireJobCleanup
		if err := readFrame(s, &w); err != nil {
			t.log.Warn("clientproto: job_cleanup read failed", zap.Error(err))
			return
		}
		key := chunk.JobKey{Client: w.Client, Ref: w.Ref}
		coord.JobCleanup(context.Background(), key, w.Post)
	})

	return t
}

// SendChunks implements coordinator.ClientCoordinator.
func (t *Transport) SendChunks(ctx context.Context, client string, n int) error {
	s, err := t.openStream(ctx, client, SendChunksProtocol)
	if err != nil {
		return err
	}
	defer s.Close()
	return writeFrame(s, wireSendChunks{N: n})
}

// CalcDone implements coordinator.ClientCoordinator.
func (t *Transport) CalcDone(ctx context.Context, client string, out chunk.OutputChunk) error {
	s, err := t.openStream(ctx, client, CalcDoneProtocol)
	if err != nil {
		return err
	}
	defer s.Close()
	return writeFrame(s, out)
}

// ServerUp implements coordinator.ClientCoordinator.
func (t *Transport) ServerUp(ctx context.Context, client string, self string, caps capacity.Capacity) error {
	s, err := t.openStream(ctx, client, ServerUpProtocol)
	if err != nil {
		return err
	}
	defer s.Close()
	return writeFrame(s, wireServerUp{Self: self, Capacity: caps})
}

func (t *Transport) openStream(ctx context.Context, client string, kind protocol.ID) (network.Stream, error) {
	pid, err := peer.Decode(client)
	if err != nil {
		return nil, fmt.Errorf("clientproto: invalid client peer id %q: %w", client, err)
	}
	return t.host.NewStream(ctx, pid, kind)
}

func shortPeer(id peer.ID) string {
	return id.String()
}

// writeFrame writes v as a 4-byte big-endian length prefix followed by its
// JSON encoding, the exact framing communication.go's SendChatMessage uses.
func writeFrame(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("clientproto: marshal frame: %w", err)
	}
	lengthBuf := make([]byte, 4)
	binary.BigEndian.PutUint32(lengthBuf, uint32(len(data)))
	if _, err := w.Write(lengthBuf); err != nil {
		return fmt.Errorf("clientproto: write frame length: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("clientproto: write frame body: %w", err)
	}
	return nil
}

// readFrame reads one length-prefixed JSON frame from s into v, applying a
// read deadline the way handleChatStream does.
func readFrame(s network.Stream, v any) error {
	if deadliner, ok := any(s).(interface{ SetReadDeadline(time.Time) error }); ok {
		_ = deadliner.SetReadDeadline(time.Now().Add(streamReadTimeout))
	}
	reader := bufio.NewReader(s)

	lengthBuf := make([]byte, 4)
	if _, err := io.ReadFull(reader, lengthBuf); err != nil {
		return fmt.Errorf("clientproto: read frame length: %w", err)
	}
	length := binary.BigEndian.Uint32(lengthBuf)
	if length > maxFrameBytes {
		return fmt.Errorf("clientproto: frame too large: %d bytes", length)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(reader, body); err != nil {
		return fmt.Errorf("clientproto: read frame body: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("clientproto: unmarshal frame: %w", err)
	}
	return nil
}
