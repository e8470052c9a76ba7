package coordinator

import "time"

// EncoderParameters is the rate-control state pushed into the encoder before
// every encode. It is produced on the network-feedback path, cached by the
// coordinator, and snapshotted on the capture path. TargetBitrate is in
// bit/s; InputFrameRate in frames/s.
type EncoderParameters struct {
	TargetBitrate  uint32
	LossRate       uint8
	RTT            time.Duration
	InputFrameRate uint32
}
