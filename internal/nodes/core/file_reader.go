package core

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// FileReaderConfig points a FileReader at a path and chunk size.
type FileReaderConfig struct {
	Path        string `json:"path"`
	ChunkBytes  int    `json:"chunk_bytes"`
	ContentType string `json:"content_type"`
}

func (c *FileReaderConfig) setDefaults() {
	if c.ChunkBytes == 0 {
		c.ChunkBytes = 64 * 1024
	}
}

// FileReader is a source node (no input pins) that streams a file's
// contents out as a sequence of Binary packets, closing its output once the
// file is fully read.
type FileReader struct {
	node.BaseNode
	cfg FileReaderConfig
}

// NewFileReader constructs a FileReader node from raw JSON params.
func NewFileReader(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg FileReaderConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("file_reader: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("file_reader: path is required")
	}
	return &FileReader{cfg: cfg}, nil
}

func (r *FileReader) InputPins() []pin.InputPin { return nil }

func (r *FileReader) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{Name: "out", ProducesType: packet.BinaryType(), Cardinality: pin.Broadcast()}}
}

func (r *FileReader) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	f, err := os.Open(r.cfg.Path)
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "open input file", err)
	}
	defer f.Close()

	if !node.AwaitStart(ctx, nctx, nil) {
		return nil
	}

	node.EmitState(nctx.StateTx, nodeName, node.Running())
	slog.Info("file_reader starting", "node", nodeName, "path", r.cfg.Path)

	var contentType *string
	if r.cfg.ContentType != "" {
		contentType = &r.cfg.ContentType
	}

	reader := bufio.NewReaderSize(f, r.cfg.ChunkBytes)
	buf := make([]byte, r.cfg.ChunkBytes)
	var sent, bytesSent uint64
	for {
		select {
		case <-ctx.Done():
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
			return nil
		default:
		}

		n, readErr := reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			if err := nctx.Output.Send(ctx, "out", packet.NewBinaryPacket(chunk, contentType, nil)); err != nil {
				node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
				return nil
			}
			sent++
			bytesSent += uint64(n)
			if sent%64 == 0 {
				node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent, BytesOut: bytesSent})
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Failed(readErr.Error()))
			return node.NewRuntimeError(nodeName, "read input file", readErr)
		}
	}

	node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent, BytesOut: bytesSent})
	node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopCompleted))
	return nil
}
