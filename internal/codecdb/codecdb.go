// Package codecdb implements the encoder registry the coordinator delegates
// codec lifecycle to: a payload-type keyed table of externally owned
// encoders plus an optional factory for software encoders.
package codecdb

import (
	"errors"
	"fmt"
	"log/slog"

	"encoding-coordinator/internal/coordinator"
)

// ErrNoEncoder is returned by SetSendCodec when neither an external encoder
// nor the factory can provide an encoder for the codec's payload type.
var ErrNoEncoder = errors.New("no encoder available for payload type")

// Factory constructs software encoders for codecs that have no external
// encoder registered. Implementations can be plugged in for testing or for
// different codec backends.
type Factory interface {
	Create(codec *coordinator.VideoCodec) (coordinator.Encoder, error)
}

// FactoryFunc adapts a function to the Factory interface.
type FactoryFunc func(codec *coordinator.VideoCodec) (coordinator.Encoder, error)

// Create implements Factory.
func (f FactoryFunc) Create(codec *coordinator.VideoCodec) (coordinator.Encoder, error) {
	return f(codec)
}

type externalEntry struct {
	enc            coordinator.Encoder
	internalSource bool
}

// externalEncoder wraps an externally owned encoder so the internal-source
// property declared at registration time wins over whatever the encoder
// itself reports.
type externalEncoder struct {
	coordinator.Encoder
	internalSource bool
}

func (e *externalEncoder) InternalSource() bool { return e.internalSource }

// Database implements coordinator.Registry. It is NOT safe for concurrent
// use on its own; the coordinator serializes all access through its encoder
// lock, which is the same contract the coordinator applies to its own
// encoder handle.
type Database struct {
	log     *slog.Logger
	factory Factory

	external map[uint8]externalEntry

	sendCodec       *coordinator.VideoCodec
	encoder         coordinator.Encoder
	encoderExternal bool
}

// New returns an empty database. factory may be nil if only external
// encoders will be used; log may be nil for a default logger.
func New(factory Factory, log *slog.Logger) *Database {
	if log == nil {
		log = slog.Default()
	}
	return &Database{
		log:      log,
		factory:  factory,
		external: make(map[uint8]externalEntry),
	}
}

// SetSendCodec implements coordinator.Registry. On failure the previous
// encoder is dropped so Encoder() never returns a stale instance.
func (d *Database) SetSendCodec(codec *coordinator.VideoCodec, numberOfCores, maxPayloadSize int) error {
	if codec == nil {
		return errors.New("nil codec")
	}

	// The previous encoder is torn down regardless of outcome; a failed
	// registration must not leave the old instance reachable.
	d.encoder = nil
	d.encoderExternal = false
	d.sendCodec = nil

	if entry, ok := d.external[codec.PayloadType]; ok {
		d.encoder = &externalEncoder{Encoder: entry.enc, internalSource: entry.internalSource}
		d.encoderExternal = true
	} else if d.factory != nil {
		enc, err := d.factory.Create(codec)
		if err != nil {
			d.log.Error("encoder factory failed",
				slog.String("payload_name", codec.PayloadName),
				slog.String("error", err.Error()))
			return err
		}
		d.encoder = enc
	} else {
		return fmt.Errorf("%w %d (%s)", ErrNoEncoder, codec.PayloadType, codec.PayloadName)
	}

	snapshot := *codec
	d.sendCodec = &snapshot
	return nil
}

// Encoder implements coordinator.Registry.
func (d *Database) Encoder() coordinator.Encoder {
	return d.encoder
}

// SendCodec returns the currently registered send codec, or nil.
func (d *Database) SendCodec() *coordinator.VideoCodec {
	return d.sendCodec
}

// MatchesCurrentResolution implements coordinator.Registry.
func (d *Database) MatchesCurrentResolution(width, height int) bool {
	return d.sendCodec != nil && d.sendCodec.Width == width && d.sendCodec.Height == height
}

// RegisterExternalEncoder implements coordinator.Registry.
func (d *Database) RegisterExternalEncoder(enc coordinator.Encoder, payloadType uint8, internalSource bool) {
	d.external[payloadType] = externalEntry{enc: enc, internalSource: internalSource}
}

// DeregisterExternalEncoder implements coordinator.Registry. When the
// deregistered encoder backs the active send codec, the active handle is
// dropped as well and wasSendCodec is true.
func (d *Database) DeregisterExternalEncoder(payloadType uint8) (wasSendCodec, ok bool) {
	if _, ok = d.external[payloadType]; !ok {
		return false, false
	}
	delete(d.external, payloadType)

	if d.encoderExternal && d.sendCodec != nil && d.sendCodec.PayloadType == payloadType {
		d.encoder = nil
		d.encoderExternal = false
		d.sendCodec = nil
		return true, true
	}
	return false, true
}
