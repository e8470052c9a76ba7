package ratecontrol

import (
	"sync"
	"testing"
	"time"
)

func newTestOptimizer() (*MediaOptimizer, *time.Time) {
	now := time.Unix(1000, 0)
	m := newWithClock(func() time.Time { return now })
	return m, &now
}

func TestSetTargetRates(t *testing.T) {
	t.Run("passthrough_at_low_loss", func(t *testing.T) {
		m := New()
		if got := m.SetTargetRates(1_000_000, 0, 50*time.Millisecond); got != 1_000_000 {
			t.Errorf("expected 1000000, got %d", got)
		}
	})

	t.Run("scaled_down_at_high_loss", func(t *testing.T) {
		m := New()
		got := m.SetTargetRates(1_000_000, 128, 50*time.Millisecond)
		if got >= 1_000_000 {
			t.Errorf("expected loss-scaled rate below 1000000, got %d", got)
		}
		// ~50% loss halves the target.
		want := uint32(uint64(1_000_000) * (255 - 128) / 255)
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	})

	t.Run("clamped_to_max_bitrate", func(t *testing.T) {
		m := New()
		m.SetEncodingData(2_000_000, 500_000, 640, 480, 30, 1, 1200)
		if got := m.SetTargetRates(9_000_000, 0, 0); got != 2_000_000 {
			t.Errorf("expected clamp to 2000000, got %d", got)
		}
	})
}

func TestSetEncodingData(t *testing.T) {
	m := New()
	m.SetEncodingData(2_000_000, 500_000, 640, 480, 30, 1, 1200)
	if got := m.TargetBitRate(); got != 500_000 {
		t.Errorf("start bitrate should seed the target, got %d", got)
	}
}

func TestInputFrameRate(t *testing.T) {
	m, now := newTestOptimizer()

	if got := m.InputFrameRate(); got != 0 {
		t.Errorf("expected 0 before any frames, got %d", got)
	}
	for i := 0; i < 30; i++ {
		m.RecordInputFrame(*now)
		*now = now.Add(33 * time.Millisecond)
	}
	if got := m.InputFrameRate(); got < 28 || got > 31 {
		t.Errorf("expected ~30 fps, got %d", got)
	}

	// Old samples fall out of the window.
	*now = now.Add(2 * time.Second)
	if got := m.InputFrameRate(); got != 0 {
		t.Errorf("expected 0 after idle window, got %d", got)
	}
}

func TestSentRates(t *testing.T) {
	m, now := newTestOptimizer()
	m.SetEncodingData(2_000_000, 1_000_000, 640, 480, 30, 1, 1200)

	for i := 0; i < 10; i++ {
		m.RecordSentFrame(1250, *now) // 10 kbit each
		*now = now.Add(100 * time.Millisecond)
	}
	*now = now.Add(-100 * time.Millisecond) // stay inside the window

	if got := m.SentFrameRate(); got != 10 {
		t.Errorf("expected 10 fps, got %d", got)
	}
	if got := m.SentBitRate(); got != 10*1250*8 {
		t.Errorf("expected %d bps, got %d", 10*1250*8, got)
	}
}

func TestDropFrame(t *testing.T) {
	t.Run("disabled_dropper_never_drops", func(t *testing.T) {
		m, now := newTestOptimizer()
		m.SetEncodingData(2_000_000, 100_000, 640, 480, 30, 1, 1200)
		m.EnableFrameDropper(false)

		// Massive overshoot: 100x the per-frame budget.
		for i := 0; i < 10; i++ {
			m.RecordInputFrame(*now)
			m.RecordSentFrame(50_000, *now)
			*now = now.Add(33 * time.Millisecond)
		}
		if m.DropFrame() {
			t.Error("disabled dropper must not drop")
		}
	})

	t.Run("drops_after_sustained_overshoot", func(t *testing.T) {
		m, now := newTestOptimizer()
		m.SetEncodingData(2_000_000, 100_000, 640, 480, 30, 1, 1200)

		for i := 0; i < 10; i++ {
			m.RecordInputFrame(*now)
			m.RecordSentFrame(50_000, *now)
			*now = now.Add(33 * time.Millisecond)
		}
		if !m.DropFrame() {
			t.Error("expected drop after sustained overshoot")
		}
	})

	t.Run("on_budget_stream_not_dropped", func(t *testing.T) {
		m, now := newTestOptimizer()
		m.SetEncodingData(2_000_000, 1_000_000, 640, 480, 30, 1, 1200)

		// 30 fps at ~1 Mbit/s is ~4167 bytes per frame.
		for i := 0; i < 30; i++ {
			m.RecordInputFrame(*now)
			m.RecordSentFrame(4100, *now)
			*now = now.Add(33 * time.Millisecond)
		}
		if m.DropFrame() {
			t.Error("on-budget stream should not be dropped")
		}
	})

	t.Run("drop_repays_debt", func(t *testing.T) {
		m, now := newTestOptimizer()
		m.SetEncodingData(2_000_000, 100_000, 640, 480, 30, 1, 1200)

		for i := 0; i < 5; i++ {
			m.RecordInputFrame(*now)
			m.RecordSentFrame(20_000, *now)
			*now = now.Add(33 * time.Millisecond)
		}
		drops := 0
		for i := 0; i < 1000 && m.DropFrame(); i++ {
			drops++
		}
		if drops == 0 {
			t.Fatal("expected at least one drop")
		}
		if drops == 1000 {
			t.Error("dropper never recovered; debt not repaid by drops")
		}
	})
}

func TestMediaOptimizerConcurrency(t *testing.T) {
	m := New()
	m.SetEncodingData(2_000_000, 500_000, 640, 480, 30, 1, 1200)

	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				m.SetTargetRates(800_000, 10, 40*time.Millisecond)
				m.RecordInputFrame(time.Now())
				m.RecordSentFrame(3000, time.Now())
				m.DropFrame()
				m.InputFrameRate()
				m.SentBitRate()
				m.SentFrameRate()
			}
		}()
	}
	wg.Wait()

	if got := m.TargetBitRate(); got != 800_000 {
		t.Errorf("expected final target 800000, got %d", got)
	}
}
