package audio

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gordonklaus/portaudio"

	"streamkit/internal/node"
	"streamkit/internal/packet"
	"streamkit/internal/pin"
)

// resolveDevice returns the device at idx if valid, otherwise calls fallback.
func resolveDevice(devices []*portaudio.DeviceInfo, idx int, fallback func() (*portaudio.DeviceInfo, error)) (*portaudio.DeviceInfo, error) {
	if idx >= 0 && idx < len(devices) {
		return devices[idx], nil
	}
	return fallback()
}

// DeviceConfig selects the PortAudio device and frame size a capture or
// playback node uses. DeviceID of -1 (the default) resolves to the system
// default input or output device.
type DeviceConfig struct {
	DeviceID   int `json:"device_id"`
	SampleRate int `json:"sample_rate"`
	Channels   int `json:"channels"`
	FrameSize  int `json:"frame_size"`
}

func (c *DeviceConfig) setDefaults() {
	if c.DeviceID == 0 {
		c.DeviceID = -1
	}
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}
	if c.Channels == 0 {
		c.Channels = 1
	}
	if c.FrameSize == 0 {
		c.FrameSize = 960 // 20ms @ 48kHz
	}
}

// MicInput is a source node (no input pins) that captures raw f32 audio
// frames from a PortAudio input device and emits one Audio packet per
// FrameSize-sample buffer. Capture is deliberately bare: AGC, gating, and
// VAD live as their own nodes downstream rather than inside the capture
// loop.
type MicInput struct {
	node.BaseNode
	cfg DeviceConfig
}

// NewMicInput constructs a MicInput node from raw JSON params.
func NewMicInput(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg DeviceConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("mic_input: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	return &MicInput{cfg: cfg}, nil
}

func (n *MicInput) InputPins() []pin.InputPin { return nil }

func (n *MicInput) OutputPins() []pin.OutputPin {
	return []pin.OutputPin{{
		Name:         "out",
		ProducesType: packet.RawAudioType(uint32(n.cfg.SampleRate), uint16(n.cfg.Channels), packet.SampleFormatF32),
		Cardinality:  pin.Broadcast(),
	}}
}

func (n *MicInput) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	// Initialize/Terminate pairs are refcounted by PortAudio, so each device
	// node manages its own rather than requiring the host process to.
	if err := portaudio.Initialize(); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "initialize portaudio", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "list audio devices", err)
	}
	dev, err := resolveDevice(devices, n.cfg.DeviceID, portaudio.DefaultInputDevice)
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "resolve input device", err)
	}

	buf := make([]float32, n.cfg.FrameSize*n.cfg.Channels)
	params := portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: n.cfg.Channels,
			Latency:  dev.DefaultLowInputLatency,
		},
		SampleRate:      float64(n.cfg.SampleRate),
		FramesPerBuffer: n.cfg.FrameSize,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "open capture stream", err)
	}
	defer stream.Close()

	if !node.AwaitStart(ctx, nctx, nil) {
		return nil
	}

	if err := stream.Start(); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "start capture stream", err)
	}
	defer stream.Stop()

	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var sent uint64
	for {
		select {
		case <-ctx.Done():
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopShutdown))
			return nil
		default:
		}

		if err := stream.Read(); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
			return node.NewRuntimeError(nodeName, "capture read", err)
		}

		frameSamples := make([]float32, len(buf))
		copy(frameSamples, buf)
		frame := packet.NewAudioFrame(uint32(n.cfg.SampleRate), uint16(n.cfg.Channels), frameSamples)
		if err := nctx.Output.Send(ctx, "out", packet.NewAudioPacket(frame)); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopOutputClosed))
			return nil
		}
		sent++
		if sent%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsOut: sent})
		}
	}
}

// SpeakerOutput is a terminal node (no output pins) that writes raw f32
// Audio packets to a PortAudio output device, zero-filling the tail of a
// frame shorter than the device buffer. Nothing is written to the device
// while it waits for the next packet.
type SpeakerOutput struct {
	node.BaseNode
	cfg DeviceConfig
}

// NewSpeakerOutput constructs a SpeakerOutput node from raw JSON params.
func NewSpeakerOutput(params json.RawMessage) (node.ProcessorNode, error) {
	var cfg DeviceConfig
	if len(params) > 0 {
		if err := json.Unmarshal(params, &cfg); err != nil {
			return nil, fmt.Errorf("speaker_output: invalid params: %w", err)
		}
	}
	cfg.setDefaults()
	return &SpeakerOutput{cfg: cfg}, nil
}

func (n *SpeakerOutput) InputPins() []pin.InputPin {
	return []pin.InputPin{{
		Name:         "in",
		AcceptsTypes: []packet.PacketType{packet.RawAudioType(uint32(n.cfg.SampleRate), uint16(n.cfg.Channels), packet.SampleFormatF32)},
		Cardinality:  pin.One(),
	}}
}

func (n *SpeakerOutput) OutputPins() []pin.OutputPin { return nil }

func (n *SpeakerOutput) Run(ctx context.Context, nctx *node.Context) error {
	nodeName := nctx.Output.NodeName()
	node.EmitState(nctx.StateTx, nodeName, node.Initializing())

	if err := portaudio.Initialize(); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "initialize portaudio", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "list audio devices", err)
	}
	dev, err := resolveDevice(devices, n.cfg.DeviceID, portaudio.DefaultOutputDevice)
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "resolve output device", err)
	}

	buf := make([]float32, n.cfg.FrameSize*n.cfg.Channels)
	params := portaudio.StreamParameters{
		Output: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: n.cfg.Channels,
			Latency:  dev.DefaultLowOutputLatency,
		},
		SampleRate:      float64(n.cfg.SampleRate),
		FramesPerBuffer: n.cfg.FrameSize,
	}
	stream, err := portaudio.OpenStream(params, buf)
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "open playback stream", err)
	}
	defer stream.Close()

	if err := stream.Start(); err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "start playback stream", err)
	}
	defer stream.Stop()

	in, err := nctx.TakeInput("in")
	if err != nil {
		node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
		return node.NewRuntimeError(nodeName, "missing input pin", err)
	}
	node.EmitState(nctx.StateTx, nodeName, node.Running())

	var received uint64
	for {
		pkt, ok := nctx.RecvWithCancellation(in)
		if !ok {
			node.EmitState(nctx.StateTx, nodeName, node.Stopped(node.StopInputClosed))
			return nil
		}
		frame, isAudio := pkt.Audio()
		if !isAudio {
			continue
		}

		samples := frame.Samples()
		n2 := copy(buf, samples)
		for i := n2; i < len(buf); i++ {
			buf[i] = 0 // silence-fill a short frame
		}
		frame.Release()

		if err := stream.Write(); err != nil {
			node.EmitState(nctx.StateTx, nodeName, node.Failed(err.Error()))
			return node.NewRuntimeError(nodeName, "playback write", err)
		}
		received++
		if received%256 == 0 {
			node.EmitStats(nctx.StatsTx, node.StatsUpdate{NodeID: nodeName, PacketsIn: received})
		}
	}
}
