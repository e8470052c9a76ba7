// Package coordinator implements the real-time video encoding coordinator:
// the component between a capture goroutine, a network-feedback goroutine, a
// periodic stats ticker, and a pluggable encoder. It keeps encoder
// configuration, rate-control parameters, and keyframe scheduling consistent
// across all of them without blocking the capture path behind the feedback
// path or vice versa.
//
// Locking discipline: two locks with a fixed order.
//
//   - encoderMu (coarse) protects the active encoder handle and all registry
//     interaction, and may be held across a blocking Encode call.
//   - paramsMu (fine) protects the cached EncoderParameters, the pending
//     per-stream frame-type requests, and the internal-source flag. Critical
//     sections under it are bounded snapshot/update operations; it is never
//     held across a call that can block.
//
// When both are needed, encoderMu is acquired first. Frame submission
// instead snapshots under paramsMu, releases it, and only then takes
// encoderMu, so the two are never held together during an encode.
package coordinator

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Coordinator owns the active encoder and mediates between the capture,
// feedback, configuration, and ticker paths. All methods are safe for
// concurrent use except RegisterSendCodec, RegisterExternalEncoder,
// Bitrate, FrameRate and Codec, which must be serialized by the caller
// (single configuration goroutine contract; violations panic).
type Coordinator struct {
	log      *slog.Logger
	rateCtrl RateController
	registry Registry
	sink     StatsSink

	configSeq  sequenceGuard
	statsTimer *intervalTimer

	encoderMu sync.Mutex
	// encoder is the active handle; nil when no send codec is registered.
	// Replaced wholesale on (de)registration, re-checked for nil under
	// encoderMu on every path.
	encoder Encoder
	// currentCodec is a snapshot of the registered codec. Written only by
	// the configuration goroutine under encoderMu; read by that goroutine
	// without the lock, and by others under encoderMu.
	currentCodec VideoCodec
	// frameDropperEnabled remembers the last externally requested dropper
	// state so it can be restored on codec re-registration.
	frameDropperEnabled bool

	paramsMu sync.Mutex
	// encoderParams, nextFrameTypes and hasInternalSource form the
	// cross-goroutine parameter store; all three are guarded by paramsMu.
	encoderParams     EncoderParameters
	nextFrameTypes    []FrameType
	hasInternalSource bool
}

// New returns a coordinator wired to the given collaborators. sink may be
// nil to disable statistics reporting; log may be nil for a default logger.
func New(registry Registry, rateCtrl RateController, sink StatsSink, log *slog.Logger) *Coordinator {
	return newWithClock(registry, rateCtrl, sink, log, time.Now)
}

// newWithClock lets tests drive the stats timer with a fake clock.
func newWithClock(registry Registry, rateCtrl RateController, sink StatsSink, log *slog.Logger, now func() time.Time) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{
		log:        log,
		rateCtrl:   rateCtrl,
		registry:   registry,
		sink:       sink,
		statsTimer: newIntervalTimer(DefaultStatsInterval, now),
		// A single key request until a codec declares its stream count, so
		// the first frame of a fresh coordinator is always a keyframe.
		nextFrameTypes: []FrameType{FrameKey},
	}
}

// RegisterSendCodec makes codec the active send codec. Must be called from
// the single configuration goroutine. Regardless of registry success the
// encoder handle is refreshed, so a stale pointer to a torn-down encoder is
// never retained.
func (c *Coordinator) RegisterSendCodec(codec *VideoCodec, numberOfCores, maxPayloadSize int) error {
	c.configSeq.enter("RegisterSendCodec")
	defer c.configSeq.exit()

	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()

	if codec == nil {
		return fmt.Errorf("%w: nil codec", ErrParameter)
	}

	err := c.registry.SetSendCodec(codec, numberOfCores, maxPayloadSize)

	// Refresh the handle even on failure so we are not holding on to a
	// destroyed instance.
	c.encoder = c.registry.Encoder()
	c.currentCodec = *codec

	if err != nil {
		c.log.Error("failed to set send codec",
			slog.String("payload_name", codec.PayloadName),
			slog.String("error", err.Error()))
		return fmt.Errorf("%w: %v", ErrCodec, err)
	}

	numLayers := codec.numberOfTemporalLayers()

	// Layered screensharing overrides the externally requested dropper
	// state; layers starve the dropper's rate model.
	if numLayers > 1 && codec.Mode == ModeScreensharing {
		c.rateCtrl.EnableFrameDropper(false)
	} else if c.frameDropperEnabled {
		c.rateCtrl.EnableFrameDropper(true)
	}

	c.paramsMu.Lock()
	c.nextFrameTypes = make([]FrameType, codec.simulcastStreamCount())
	for i := range c.nextFrameTypes {
		c.nextFrameTypes[i] = FrameKey
	}
	// Cache InternalSource so the feedback path can read it without
	// acquiring encoderMu (and without blocking on an in-flight encode).
	c.hasInternalSource = c.encoder != nil && c.encoder.InternalSource()
	c.paramsMu.Unlock()

	c.log.Debug("send codec registered",
		slog.String("payload_name", codec.PayloadName),
		slog.Int("simulcast_streams", codec.simulcastStreamCount()),
		slog.Int("temporal_layers", numLayers),
		slog.Uint64("max_bitrate_kbps", uint64(codec.MaxBitrate)),
		slog.Uint64("start_bitrate_kbps", uint64(codec.StartBitrate)),
		slog.Uint64("max_framerate", uint64(codec.MaxFramerate)),
		slog.Int("max_payload_size", maxPayloadSize))

	c.rateCtrl.SetEncodingData(codec.MaxBitrate*1000, codec.StartBitrate*1000,
		codec.Width, codec.Height, codec.MaxFramerate, numLayers, maxPayloadSize)
	return nil
}

// RegisterExternalEncoder registers an externally owned encoder for the
// given payload type, or deregisters it when enc is nil. Must be called from
// the single configuration goroutine. Deregistering the encoder that backs
// the active send codec clears the active handle and the internal-source
// flag, so the capture path sees ErrUninitialized instead of a dead encoder.
func (c *Coordinator) RegisterExternalEncoder(enc Encoder, payloadType uint8, internalSource bool) {
	c.configSeq.enter("RegisterExternalEncoder")
	defer c.configSeq.exit()

	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()

	if enc == nil {
		wasSendCodec, ok := c.registry.DeregisterExternalEncoder(payloadType)
		if !ok {
			c.log.Error("deregister of unknown external encoder",
				slog.Int("payload_type", int(payloadType)))
			return
		}
		if wasSendCodec {
			c.paramsMu.Lock()
			c.encoder = nil
			c.hasInternalSource = false
			c.paramsMu.Unlock()
		}
		return
	}
	c.registry.RegisterExternalEncoder(enc, payloadType, internalSource)
}

// SetChannelParameters feeds the latest channel estimate from the
// network-feedback path into rate control and caches the resulting encoder
// parameters. Safe to call concurrently with everything else at arbitrary
// frequency. Encoders with an internal source get the parameters pushed
// immediately, since they never pass through AddVideoFrame.
func (c *Coordinator) SetChannelParameters(targetBitrate uint32, lossRate uint8, rtt time.Duration) error {
	target := c.rateCtrl.SetTargetRates(targetBitrate, lossRate, rtt)
	inputFrameRate := c.rateCtrl.InputFrameRate()

	params := EncoderParameters{
		TargetBitrate:  target,
		LossRate:       lossRate,
		RTT:            rtt,
		InputFrameRate: inputFrameRate,
	}

	c.paramsMu.Lock()
	c.encoderParams = params
	hasInternalSource := c.hasInternalSource
	c.paramsMu.Unlock()

	if hasInternalSource {
		c.encoderMu.Lock()
		if c.encoder != nil {
			c.setEncoderParametersLocked(params, true)
		}
		c.encoderMu.Unlock()
	}
	return nil
}

// setEncoderParametersLocked pushes params into the active encoder. Caller
// must hold encoderMu.
//
// A zero target bitrate means the network is down or the pacer is drained.
// For encoders without an internal source nothing upstream will submit
// frames at zero rate anyway, and encoder behavior on a zero target is
// unspecified, so the push is suppressed; internal-source encoders must
// still be told so they stop producing.
func (c *Coordinator) setEncoderParametersLocked(params EncoderParameters, hasInternalSource bool) {
	if !hasInternalSource && params.TargetBitrate == 0 {
		return
	}
	if params.InputFrameRate == 0 {
		// No frame rate estimate yet; fall back to the codec maximum.
		params.InputFrameRate = c.currentCodec.MaxFramerate
	}
	if c.encoder != nil {
		c.encoder.SetParameters(params)
	}
}

// AddVideoFrame submits one raw frame from the capture path, blocking for
// the duration of the encode. A nil return covers both an encoded frame and
// a rate-control drop; drops are a normal outcome, not an error.
func (c *Coordinator) AddVideoFrame(frame VideoFrame, info *CodecSpecificInfo) error {
	// Snapshot the parameter store, then release paramsMu before touching
	// the encoder so a feedback-path write is never blocked behind the
	// encode below.
	c.paramsMu.Lock()
	params := c.encoderParams
	frameTypes := make([]FrameType, len(c.nextFrameTypes))
	copy(frameTypes, c.nextFrameTypes)
	hasInternalSource := c.hasInternalSource
	c.paramsMu.Unlock()

	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()

	if c.encoder == nil {
		return ErrUninitialized
	}
	c.setEncoderParametersLocked(params, hasInternalSource)

	if c.rateCtrl.DropFrame() {
		c.log.Debug("dropping frame",
			slog.Uint64("target_bitrate", uint64(params.TargetBitrate)),
			slog.Uint64("loss_rate", uint64(params.LossRate)),
			slog.Duration("rtt", params.RTT),
			slog.Uint64("input_frame_rate", uint64(params.InputFrameRate)))
		c.encoder.OnDroppedFrame()
		return nil
	}

	// A codec re-registration can race an in-flight frame; a stale size is
	// expected and the frame is discarded rather than encoded wrong.
	if !c.registry.MatchesCurrentResolution(frame.Width(), frame.Height()) {
		c.log.Error("frame resolution does not match configured codec, dropping",
			slog.Int("width", frame.Width()),
			slog.Int("height", frame.Height()))
		return fmt.Errorf("%w: frame size %dx%d does not match codec", ErrParameter, frame.Width(), frame.Height())
	}

	if frame.Buffer.NativeHandle() != nil && !c.encoder.SupportsNativeHandle() {
		converted, err := frame.Buffer.ToI420()
		if err != nil {
			c.log.Error("frame conversion failed, dropping", slog.String("error", err.Error()))
			return fmt.Errorf("%w: %v", ErrParameter, err)
		}
		frame.Buffer = converted
	}

	if err := c.encoder.Encode(frame, info, frameTypes); err != nil {
		c.log.Error("failed to encode frame", slog.String("error", err.Error()))
		return err
	}

	c.paramsMu.Lock()
	// Downgrade serviced keyframe requests to delta. Only entries that
	// still hold the value observed at snapshot time are cleared, so a
	// request that arrived during the encode survives. The loop is bounded
	// by the current slice, which may have been resized by a concurrent
	// re-registration.
	for i := 0; i < len(frameTypes) && i < len(c.nextFrameTypes); i++ {
		if frameTypes[i] == c.nextFrameTypes[i] {
			c.nextFrameTypes[i] = FrameDelta
		}
	}
	c.paramsMu.Unlock()
	return nil
}

// IntraFrameRequest marks streamIndex as needing a keyframe on its next
// encode. Safe to call from any goroutine. Returns ErrOutOfRange when the
// index does not exist under the current codec; the stream count can change
// concurrently, so the bounds check is repeated after every lock
// acquisition that could observe a resize.
func (c *Coordinator) IntraFrameRequest(streamIndex int) error {
	c.paramsMu.Lock()
	if streamIndex < 0 || streamIndex >= len(c.nextFrameTypes) {
		c.paramsMu.Unlock()
		return ErrOutOfRange
	}
	c.nextFrameTypes[streamIndex] = FrameKey
	if !c.hasInternalSource {
		c.paramsMu.Unlock()
		return nil
	}
	c.paramsMu.Unlock()

	// Internal-source encoders never reach AddVideoFrame, so the request is
	// pushed directly. Both locks are required for consistency (the encoder
	// can be removed while paramsMu is dropped), acquired in encoderMu →
	// paramsMu order; the bounds must be re-verified after reacquisition.
	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()
	c.paramsMu.Lock()
	defer c.paramsMu.Unlock()
	if streamIndex >= len(c.nextFrameTypes) {
		return ErrOutOfRange
	}
	if c.encoder != nil && c.encoder.InternalSource() {
		frameTypes := make([]FrameType, len(c.nextFrameTypes))
		copy(frameTypes, c.nextFrameTypes)
		if err := c.encoder.RequestFrame(frameTypes); err == nil {
			// Already serviced; clear the pending flag. On failure it stays
			// pending so a later submission or request can retry.
			c.nextFrameTypes[streamIndex] = FrameDelta
		}
	}
	return nil
}

// EnableFrameDropper sets the externally requested frame-dropper state and
// forwards it to rate control. The state is remembered and restored on codec
// re-registration unless layered screensharing overrides it.
func (c *Coordinator) EnableFrameDropper(enable bool) {
	c.encoderMu.Lock()
	defer c.encoderMu.Unlock()
	c.frameDropperEnabled = enable
	c.rateCtrl.EnableFrameDropper(enable)
}

// Bitrate returns the target bitrate the active encoder currently runs at.
// Must be called from the configuration goroutine: that goroutine is the
// only writer of the encoder handle, so reading it here needs no lock.
func (c *Coordinator) Bitrate() (uint32, error) {
	c.configSeq.enter("Bitrate")
	defer c.configSeq.exit()
	if c.encoder == nil {
		return 0, ErrUninitialized
	}
	return c.encoder.Parameters().TargetBitrate, nil
}

// FrameRate returns the input frame rate the active encoder currently runs
// at. Same calling contract as Bitrate.
func (c *Coordinator) FrameRate() (uint32, error) {
	c.configSeq.enter("FrameRate")
	defer c.configSeq.exit()
	if c.encoder == nil {
		return 0, ErrUninitialized
	}
	return c.encoder.Parameters().InputFrameRate, nil
}

// Codec returns the snapshot of the most recently registered send codec.
// Same calling contract as Bitrate.
func (c *Coordinator) Codec() VideoCodec {
	c.configSeq.enter("Codec")
	defer c.configSeq.exit()
	return c.currentCodec
}

// Parameters returns the currently cached encoder parameters.
func (c *Coordinator) Parameters() EncoderParameters {
	c.paramsMu.Lock()
	defer c.paramsMu.Unlock()
	return c.encoderParams
}

// PendingFrameTypes returns a copy of the per-stream pending frame-type
// requests.
func (c *Coordinator) PendingFrameTypes() []FrameType {
	c.paramsMu.Lock()
	defer c.paramsMu.Unlock()
	out := make([]FrameType, len(c.nextFrameTypes))
	copy(out, c.nextFrameTypes)
	return out
}

// TimeUntilNextProcess reports how long the external scheduler should wait
// before the next Process call.
func (c *Coordinator) TimeUntilNextProcess() time.Duration {
	return c.statsTimer.timeUntilProcess()
}

// Process is driven periodically by a single external scheduler goroutine.
// Each elapsed interval it reports sent bitrate/frame rate to the stats sink
// and refreshes the cached input frame rate, so a capture-rate change is
// visible to the encoder even when bandwidth has not changed.
func (c *Coordinator) Process() {
	if c.statsTimer.timeUntilProcess() == 0 {
		// Always consume the interval, sink or not; otherwise the scheduler
		// calls back at zero delay forever.
		c.statsTimer.processed()
		if c.sink != nil {
			c.sink.SendStatistics(c.rateCtrl.SentBitRate(), c.rateCtrl.SentFrameRate())
		}
	}

	c.paramsMu.Lock()
	c.encoderParams.InputFrameRate = c.rateCtrl.InputFrameRate()
	c.paramsMu.Unlock()
}
