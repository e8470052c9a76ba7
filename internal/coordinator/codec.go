package coordinator

// CodecType identifies the compression format of a send codec.
type CodecType string

// Codec types understood by the coordinator. The coordinator itself is
// codec-agnostic; the type is only consulted to derive temporal-layer counts.
const (
	CodecVP8     CodecType = "VP8"
	CodecVP9     CodecType = "VP9"
	CodecH264    CodecType = "H264"
	CodecGeneric CodecType = "generic"
)

// VideoCodecMode describes the kind of content the codec is configured for.
type VideoCodecMode int

const (
	// ModeRealtimeVideo is the default camera-style content mode.
	ModeRealtimeVideo VideoCodecMode = iota
	// ModeScreensharing is low-motion screen content; combined with
	// temporal layers it disables the frame dropper.
	ModeScreensharing
)

// VP8Settings holds the VP8-specific parts of a codec configuration.
type VP8Settings struct {
	NumberOfTemporalLayers int
	Denoising              bool
	AutomaticResizeOn      bool
}

// VP9Settings holds the VP9-specific parts of a codec configuration.
type VP9Settings struct {
	NumberOfTemporalLayers int
	NumberOfSpatialLayers  int
	Denoising              bool
}

// VideoCodec is the static configuration of a send codec. It is handed to
// RegisterSendCodec and cached by the coordinator as an immutable snapshot
// for the lifetime of the registration. Bitrates are in kbit/s.
type VideoCodec struct {
	Type        CodecType
	PayloadType uint8
	PayloadName string

	Width  int
	Height int

	StartBitrate uint32
	MinBitrate   uint32
	MaxBitrate   uint32
	MaxFramerate uint32

	Mode                     VideoCodecMode
	NumberOfSimulcastStreams int

	VP8 *VP8Settings
	VP9 *VP9Settings
}

// numberOfTemporalLayers derives the temporal layer count from the
// codec-specific settings; codecs without layer settings count as one layer.
func (c *VideoCodec) numberOfTemporalLayers() int {
	switch {
	case c.Type == CodecVP8 && c.VP8 != nil && c.VP8.NumberOfTemporalLayers > 0:
		return c.VP8.NumberOfTemporalLayers
	case c.Type == CodecVP9 && c.VP9 != nil && c.VP9.NumberOfTemporalLayers > 0:
		return c.VP9.NumberOfTemporalLayers
	default:
		return 1
	}
}

// simulcastStreamCount returns the number of simulcast streams the codec
// declares, never less than one.
func (c *VideoCodec) simulcastStreamCount() int {
	if c.NumberOfSimulcastStreams > 1 {
		return c.NumberOfSimulcastStreams
	}
	return 1
}

// CodecSpecificInfo is passed through to the encoder untouched alongside
// each frame. The coordinator never inspects it beyond the codec type.
type CodecSpecificInfo struct {
	CodecType CodecType
}
