package coordinator

import (
	"errors"
	"image"
	"time"
)

// FrameType is the encode type requested for (or produced by) one stream.
type FrameType uint8

const (
	// FrameDelta is a regular inter-predicted frame.
	FrameDelta FrameType = iota
	// FrameKey is an intra-coded frame that can be decoded standalone.
	FrameKey
)

// String implements fmt.Stringer.
func (t FrameType) String() string {
	if t == FrameKey {
		return "key"
	}
	return "delta"
}

// ErrBufferNotConvertible is returned by FrameBuffer.ToI420 when the buffer
// holds an opaque handle that cannot be mapped into CPU memory.
var ErrBufferNotConvertible = errors.New("frame buffer cannot be converted to I420")

// FrameBuffer is the pixel storage behind a VideoFrame. Buffers backed by a
// producer-opaque handle (GPU surface, DMA buffer) report it via
// NativeHandle; software encoders need ToI420 to obtain CPU-accessible
// planes before encoding.
type FrameBuffer interface {
	Width() int
	Height() int

	// NativeHandle returns the opaque producer handle, or nil for buffers
	// whose pixel data is directly accessible.
	NativeHandle() any

	// ToI420 returns a software buffer with the same content in 4:2:0
	// planar form. Buffers that already are software buffers return
	// themselves.
	ToI420() (FrameBuffer, error)
}

// I420Buffer is a software frame buffer in 4:2:0 planar YUV, backed by a
// standard image.YCbCr.
type I420Buffer struct {
	img *image.YCbCr
}

// NewI420Buffer allocates a zeroed software buffer of the given dimensions.
func NewI420Buffer(width, height int) *I420Buffer {
	return &I420Buffer{
		img: image.NewYCbCr(image.Rect(0, 0, width, height), image.YCbCrSubsampleRatio420),
	}
}

// WrapYCbCr adapts an existing image into a frame buffer without copying.
func WrapYCbCr(img *image.YCbCr) *I420Buffer {
	return &I420Buffer{img: img}
}

// Width implements FrameBuffer.
func (b *I420Buffer) Width() int { return b.img.Rect.Dx() }

// Height implements FrameBuffer.
func (b *I420Buffer) Height() int { return b.img.Rect.Dy() }

// NativeHandle implements FrameBuffer; software buffers have no handle.
func (b *I420Buffer) NativeHandle() any { return nil }

// ToI420 implements FrameBuffer.
func (b *I420Buffer) ToI420() (FrameBuffer, error) { return b, nil }

// Image exposes the underlying planes for encoders that consume image.Image.
func (b *I420Buffer) Image() *image.YCbCr { return b.img }

// VideoFrame is one raw frame handed to AddVideoFrame by the capture path.
// Timestamp is the 90kHz media timestamp; RenderTime is the wall-clock
// presentation time.
type VideoFrame struct {
	Buffer     FrameBuffer
	Timestamp  uint32
	RenderTime time.Time
}

// Width returns the pixel width of the frame's buffer.
func (f *VideoFrame) Width() int { return f.Buffer.Width() }

// Height returns the pixel height of the frame's buffer.
func (f *VideoFrame) Height() int { return f.Buffer.Height() }
