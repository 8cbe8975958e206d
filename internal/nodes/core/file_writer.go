package core

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// FileWriterConfig points a FileWriter at a destination path.
type FileWriterConfig struct {
	Path string `json:"path"`
}

// FileWriter is a sink node (no output pins) that writes every Binary
// packet it receives to a file, using a temp-file-then-rename so a reader
// never observes a partially-written file: output goes to os.CreateTemp in
// the target directory and is os.Rename'd into place only after a
// successful flush.
type FileWriter struct {
	node.BaseNode
	cfg FileWriterConfig
}

// NewFileWriter constructs a FileWriter node from raw JSON params.
func NewFileWriter(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg FileWriterConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("file_writer: invalid params: %w", err)
		}
	}
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, fmt.Errorf("file_writer: path is required")
	}
	return &FileWriter{cfg: cfg}, nil
}

func (w *FileWriter) InputPins() []pin.InputPin {
	return []pin.InputPin{{Name: "in", AcceptsTypes: []packet.PacketType{packet.BinaryType()}, Cardinality: pin.One()}}
}

func (w *FileWriter) OutputPins() []pin.OutputPin { return nil }

// ContentType reports application/octet-stream: a FileWriter produces a
// self-contained file, so the engine surfaces it as a ContentType-bearing
// terminal node.
func (w *FileWriter) ContentType() string { return "application/octet-stream" }

func (w *FileWriter) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}

	dir := filepath.Dir(w.cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "create output directory", err)
	}
	tempFile, err := os.CreateTemp(dir, ".file-writer-*")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "create temp output file", err)
	}
	tempPath := tempFile.Name()
	succeeded := false
	defer func() {
		if !succeeded {
			_ = os.Remove(tempPath)
		}
	}()

	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var received, bytesReceived uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			break
		}
		data, _, _, isBinary := pkt.Binary()
		if !isBinary {
			continue
		}
		if _, err := tempFile.Write(data); err != nil {
			_ = tempFile.Close()
			node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
			return node.NewRuntimeError(nodeName, "write output file", err)
		}
		received++
		bytesReceived += uint64(len(data))
		if received%64 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsIn: received, BytesIn: bytesReceived})
		}
	}

	if err := tempFile.Sync(); err != nil && err != io.ErrClosedPipe {
		_ = tempFile.Close()
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "sync output file", err)
	}
	if err := tempFile.Close(); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "close output file", err)
	}
	if err := os.Rename(tempPath, w.cfg.Path); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "move output file into place", err)
	}
	succeeded = true

	slog.Info("file_writer wrote output", "node", nodeName, "path", w.cfg.Path, "bytes", bytesReceived)
	node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsIn: received, BytesIn: bytesReceived})
	node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopCompleted))
	return nil
}
