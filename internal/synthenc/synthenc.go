// Package synthenc implements a synthetic software encoder that satisfies
// the coordinator's Encoder contract without a real codec: each Encode call
// fabricates a payload sized from the current target bitrate and frame rate
// and hands it to a sink. Useful for wiring tests, load generation, and the
// demo sender.
package synthenc

import (
	"errors"
	"sync"

	"go.uber.org/atomic"

	"encoding-coordinator/internal/coordinator"
)

// keyFrameGain is how much larger a fabricated keyframe is than a delta
// frame at the same budget.
const keyFrameGain = 4

// minFrameSize keeps fabricated frames non-empty even at tiny targets.
const minFrameSize = 64

// ErrNoInternalSource is returned by RequestFrame; this encoder is fed
// through the normal submission path.
var ErrNoInternalSource = errors.New("synthetic encoder has no internal source")

// EncodedFrame is one fabricated output frame.
type EncodedFrame struct {
	StreamIndex int
	Type        coordinator.FrameType
	Timestamp   uint32
	Data        []byte
}

// Sink receives fabricated frames synchronously from Encode.
type Sink func(EncodedFrame)

// Encoder implements coordinator.Encoder.
type Encoder struct {
	mu     sync.Mutex
	params coordinator.EncoderParameters

	maxFramerate uint32
	streams      int
	sink         Sink

	framesEncoded atomic.Uint64
	framesDropped atomic.Uint64
}

// New returns an encoder configured for the given codec. sink may be nil to
// discard output.
func New(codec *coordinator.VideoCodec, sink Sink) *Encoder {
	streams := 1
	if codec != nil && codec.NumberOfSimulcastStreams > 1 {
		streams = codec.NumberOfSimulcastStreams
	}
	var maxFramerate uint32 = 30
	if codec != nil && codec.MaxFramerate > 0 {
		maxFramerate = codec.MaxFramerate
	}
	return &Encoder{maxFramerate: maxFramerate, streams: streams, sink: sink}
}

// Encode implements coordinator.Encoder.
func (e *Encoder) Encode(frame coordinator.VideoFrame, _ *coordinator.CodecSpecificInfo, frameTypes []coordinator.FrameType) error {
	e.mu.Lock()
	params := e.params
	sink := e.sink
	e.mu.Unlock()

	for i := 0; i < e.streams && i < len(frameTypes); i++ {
		size := e.frameSize(params, frameTypes[i])
		if sink != nil {
			sink(EncodedFrame{
				StreamIndex: i,
				Type:        frameTypes[i],
				Timestamp:   frame.Timestamp,
				Data:        make([]byte, size),
			})
		}
	}
	e.framesEncoded.Inc()
	return nil
}

// SetParameters implements coordinator.Encoder.
func (e *Encoder) SetParameters(params coordinator.EncoderParameters) {
	e.mu.Lock()
	e.params = params
	e.mu.Unlock()
}

// Parameters implements coordinator.Encoder.
func (e *Encoder) Parameters() coordinator.EncoderParameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// InternalSource implements coordinator.Encoder.
func (e *Encoder) InternalSource() bool { return false }

// SupportsNativeHandle implements coordinator.Encoder; only software buffers
// are consumed.
func (e *Encoder) SupportsNativeHandle() bool { return false }

// RequestFrame implements coordinator.Encoder.
func (e *Encoder) RequestFrame([]coordinator.FrameType) error {
	return ErrNoInternalSource
}

// OnDroppedFrame implements coordinator.Encoder.
func (e *Encoder) OnDroppedFrame() {
	e.framesDropped.Inc()
}

// FramesEncoded returns how many Encode calls completed.
func (e *Encoder) FramesEncoded() uint64 { return e.framesEncoded.Load() }

// FramesDropped returns how many dropped-frame notifications arrived.
func (e *Encoder) FramesDropped() uint64 { return e.framesDropped.Load() }

// frameSize fabricates an encoded size from the per-frame bit budget.
func (e *Encoder) frameSize(params coordinator.EncoderParameters, t coordinator.FrameType) int {
	fps := params.InputFrameRate
	if fps == 0 {
		fps = e.maxFramerate
	}
	size := minFrameSize
	if params.TargetBitrate > 0 && fps > 0 {
		if budget := int(params.TargetBitrate / 8 / fps); budget > size {
			size = budget
		}
	}
	if t == coordinator.FrameKey {
		size *= keyFrameGain
	}
	return size
}
