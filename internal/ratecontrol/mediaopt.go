// Package ratecontrol implements the rate-control collaborator of the
// encoding coordinator: target-rate adjustment from channel feedback, a
// debt-based frame dropper, and sliding-window estimates of input and sent
// rates.
package ratecontrol

import (
	"sync"
	"time"
)

const (
	// rateWindow is the sliding window over which input/sent rates are
	// estimated.
	rateWindow = time.Second

	// lossScaleThreshold is the loss fraction (of 255) above which the
	// target rate is scaled down proportionally to the reported loss.
	lossScaleThreshold = 26 // ~10%

	// dropDebtFrames is how many frame budgets of overshoot the dropper
	// tolerates before it starts dropping.
	dropDebtFrames = 2.0
)

type sentSample struct {
	at   time.Time
	bits uint64
}

// MediaOptimizer implements coordinator.RateController. Safe for concurrent
// use; all state sits behind one mutex with bounded critical sections.
type MediaOptimizer struct {
	mu  sync.Mutex
	now func() time.Time

	frameDropperEnabled bool

	targetBitrate uint32 // bit/s, possibly loss-adjusted
	maxBitrate    uint32 // bit/s, 0 until SetEncodingData
	maxFramerate  uint32

	// dropDebtBits accumulates how far recent frames overshot the
	// per-frame budget; the dropper fires when the debt exceeds
	// dropDebtFrames budgets.
	dropDebtBits float64

	inputTimes []time.Time
	sent       []sentSample
}

// New returns a media optimizer with the frame dropper enabled.
func New() *MediaOptimizer {
	return newWithClock(time.Now)
}

func newWithClock(now func() time.Time) *MediaOptimizer {
	return &MediaOptimizer{now: now, frameDropperEnabled: true}
}

// SetTargetRates implements coordinator.RateController. Reported loss above
// the threshold scales the target down; the result is clamped to the codec's
// maximum bitrate.
func (m *MediaOptimizer) SetTargetRates(targetBitrate uint32, lossRate uint8, _ time.Duration) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()

	adjusted := targetBitrate
	if lossRate > lossScaleThreshold {
		adjusted = uint32(uint64(targetBitrate) * uint64(255-lossRate) / 255)
	}
	if m.maxBitrate > 0 && adjusted > m.maxBitrate {
		adjusted = m.maxBitrate
	}
	m.targetBitrate = adjusted
	return adjusted
}

// SetEncodingData implements coordinator.RateController.
func (m *MediaOptimizer) SetEncodingData(maxBitrate, startBitrate uint32, _, _ int,
	maxFramerate uint32, _, _ int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.maxBitrate = maxBitrate
	m.maxFramerate = maxFramerate
	if startBitrate > 0 {
		m.targetBitrate = startBitrate
	}
	if m.maxBitrate > 0 && m.targetBitrate > m.maxBitrate {
		m.targetBitrate = m.maxBitrate
	}
	m.dropDebtBits = 0
}

// EnableFrameDropper implements coordinator.RateController.
func (m *MediaOptimizer) EnableFrameDropper(enable bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.frameDropperEnabled = enable
	if !enable {
		m.dropDebtBits = 0
	}
}

// DropFrame implements coordinator.RateController. Dropping a frame repays
// one frame budget of debt, so a single oversized frame causes at most a
// short burst of drops.
func (m *MediaOptimizer) DropFrame() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.frameDropperEnabled {
		return false
	}
	budget := m.frameBudgetBitsLocked()
	if budget <= 0 {
		return false
	}
	if m.dropDebtBits > dropDebtFrames*budget {
		m.dropDebtBits -= budget
		return true
	}
	return false
}

// RecordInputFrame notes the arrival of one raw frame from the capture
// pipeline; it feeds the InputFrameRate estimate.
func (m *MediaOptimizer) RecordInputFrame(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inputTimes = append(m.inputTimes, at)
	m.pruneLocked(at)
}

// RecordSentFrame notes one encoded frame leaving the encoder; it feeds the
// sent-rate estimates and the dropper debt.
func (m *MediaOptimizer) RecordSentFrame(sizeBytes int, at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	bits := uint64(sizeBytes) * 8
	m.sent = append(m.sent, sentSample{at: at, bits: bits})
	m.pruneLocked(at)

	if budget := m.frameBudgetBitsLocked(); budget > 0 {
		m.dropDebtBits += float64(bits) - budget
		if m.dropDebtBits < 0 {
			m.dropDebtBits = 0
		}
	}
}

// InputFrameRate implements coordinator.RateController.
func (m *MediaOptimizer) InputFrameRate() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(m.now())
	return uint32(len(m.inputTimes))
}

// SentBitRate implements coordinator.RateController.
func (m *MediaOptimizer) SentBitRate() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(m.now())
	var total uint64
	for _, s := range m.sent {
		total += s.bits
	}
	return uint32(total)
}

// SentFrameRate implements coordinator.RateController.
func (m *MediaOptimizer) SentFrameRate() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pruneLocked(m.now())
	return uint32(len(m.sent))
}

// TargetBitRate returns the current (possibly loss-adjusted) target.
func (m *MediaOptimizer) TargetBitRate() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targetBitrate
}

// frameBudgetBitsLocked returns the per-frame bit budget at the current
// target and estimated input rate. Caller must hold m.mu.
func (m *MediaOptimizer) frameBudgetBitsLocked() float64 {
	fps := uint32(len(m.inputTimes))
	if fps == 0 {
		fps = m.maxFramerate
	}
	if fps == 0 || m.targetBitrate == 0 {
		return 0
	}
	return float64(m.targetBitrate) / float64(fps)
}

// pruneLocked discards samples older than the rate window. Caller must hold
// m.mu.
func (m *MediaOptimizer) pruneLocked(now time.Time) {
	cutoff := now.Add(-rateWindow)
	for len(m.inputTimes) > 0 && m.inputTimes[0].Before(cutoff) {
		m.inputTimes = m.inputTimes[1:]
	}
	for len(m.sent) > 0 && m.sent[0].at.Before(cutoff) {
		m.sent = m.sent[1:]
	}
}
