package coordinator

import "testing"

func TestI420Buffer(t *testing.T) {
	buf := NewI420Buffer(640, 480)
	if buf.Width() != 640 || buf.Height() != 480 {
		t.Errorf("unexpected dimensions %dx%d", buf.Width(), buf.Height())
	}
	if buf.NativeHandle() != nil {
		t.Error("software buffer must not report a native handle")
	}

	converted, err := buf.ToI420()
	if err != nil {
		t.Fatalf("ToI420: %v", err)
	}
	if converted != FrameBuffer(buf) {
		t.Error("software buffer should convert to itself")
	}
}

func TestFrameTypeString(t *testing.T) {
	if FrameKey.String() != "key" || FrameDelta.String() != "delta" {
		t.Errorf("unexpected strings: %s, %s", FrameKey, FrameDelta)
	}
}
