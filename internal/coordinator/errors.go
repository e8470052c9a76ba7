package coordinator

import "errors"

var (
	// ErrUninitialized is returned when an operation needs an active
	// encoder and none is registered. The capture path should simply stop
	// submitting frames until a codec is registered.
	ErrUninitialized = errors.New("no encoder registered")

	// ErrParameter is returned for malformed or mismatched input: a nil
	// codec, a frame whose resolution does not match the configured codec,
	// or a frame buffer that cannot be converted for a software encoder.
	// The offending input is discarded without corrupting state.
	ErrParameter = errors.New("invalid parameter")

	// ErrCodec is returned when the registry fails to produce an encoder
	// for a send codec; the registration is rejected.
	ErrCodec = errors.New("codec registration failed")

	// ErrOutOfRange is returned by IntraFrameRequest when the stream index
	// does not exist under the currently registered codec. Distinct from
	// ErrParameter: it signals a caller/codec mismatch rather than bad data.
	ErrOutOfRange = errors.New("stream index out of range")
)
