package coordinator

import "time"

// Encoder is the contract the coordinator requires from a codec
// implementation. The coordinator owns the active encoder exclusively and
// serializes every call through its encoder lock, so implementations do not
// need to be safe for concurrent use by the coordinator itself (an encoder
// with an internal capture source still runs its own producer).
//
// Encode may block for the duration of one frame's encode; all other
// methods must return promptly.
type Encoder interface {
	// Encode compresses one frame. frameTypes carries the requested frame
	// type per simulcast stream; the slice is owned by the caller and must
	// not be retained. Any error is surfaced verbatim to the submitter.
	Encode(frame VideoFrame, info *CodecSpecificInfo, frameTypes []FrameType) error

	// SetParameters updates the rate-control parameters the encoder uses
	// for subsequent frames.
	SetParameters(params EncoderParameters)

	// Parameters returns the most recently applied parameters.
	Parameters() EncoderParameters

	// InternalSource reports whether the encoder produces frames from its
	// own capture source. Such encoders never receive frames through
	// AddVideoFrame, so parameter updates and keyframe requests are pushed
	// to them directly.
	InternalSource() bool

	// SupportsNativeHandle reports whether Encode accepts buffers with a
	// producer-opaque native handle. When false, such buffers are converted
	// to I420 before encoding.
	SupportsNativeHandle() bool

	// RequestFrame asks an internal-source encoder to produce frames of the
	// given types on its own schedule.
	RequestFrame(frameTypes []FrameType) error

	// OnDroppedFrame tells the encoder a frame destined for it was dropped
	// by rate control, for its internal rate bookkeeping.
	OnDroppedFrame()
}

// Registry instantiates and tears down encoder instances and tracks which
// one backs the current send codec. Implementations are NOT required to be
// safe for concurrent use: the coordinator only calls into the registry
// while holding its encoder lock.
type Registry interface {
	// SetSendCodec makes codec the active send codec, constructing or
	// selecting an encoder for it. On failure the previous encoder is
	// released and Encoder() returns nil.
	SetSendCodec(codec *VideoCodec, numberOfCores, maxPayloadSize int) error

	// Encoder returns the encoder backing the current send codec, or nil.
	Encoder() Encoder

	// MatchesCurrentResolution reports whether the given frame dimensions
	// match the currently configured send codec.
	MatchesCurrentResolution(width, height int) bool

	// RegisterExternalEncoder makes an externally owned encoder available
	// for the given payload type.
	RegisterExternalEncoder(enc Encoder, payloadType uint8, internalSource bool)

	// DeregisterExternalEncoder removes the external encoder for the given
	// payload type. wasSendCodec reports whether that encoder was backing
	// the active send codec (in which case Encoder() now returns nil); ok
	// is false if no encoder was registered for payloadType.
	DeregisterExternalEncoder(payloadType uint8) (wasSendCodec, ok bool)
}

// RateController decides target rates and frame-drop policy. Implementations
// must be safe for concurrent use; the coordinator calls it from the
// feedback, capture and ticker paths simultaneously.
type RateController interface {
	// SetTargetRates feeds back the estimated channel state and returns the
	// (possibly smoothed or clamped) bitrate the encoder should target.
	SetTargetRates(targetBitrate uint32, lossRate uint8, rtt time.Duration) uint32

	// InputFrameRate returns the current estimate of the capture frame rate.
	InputFrameRate() uint32

	// DropFrame reports whether the next submitted frame should be dropped
	// to honor the target rate.
	DropFrame() bool

	// EnableFrameDropper toggles the frame-drop policy.
	EnableFrameDropper(enable bool)

	// SentBitRate returns the recent outgoing bitrate in bit/s.
	SentBitRate() uint32

	// SentFrameRate returns the recent outgoing frame rate in frames/s.
	SentFrameRate() uint32

	// SetEncodingData forwards the static encoding configuration whenever a
	// send codec is registered. Bitrates are in bit/s.
	SetEncodingData(maxBitrate, startBitrate uint32, width, height int,
		maxFramerate uint32, numTemporalLayers, maxPayloadSize int)
}

// StatsSink consumes the periodic send-side statistics report.
type StatsSink interface {
	SendStatistics(bitrate, framerate uint32)
}
