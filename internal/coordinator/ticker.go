package coordinator

import "time"

// DefaultStatsInterval is how often the stats ticker reports send statistics.
const DefaultStatsInterval = time.Second

// intervalTimer implements the fixed-interval timer contract behind
// Process/TimeUntilNextProcess. It is driven by a single scheduler goroutine
// and is not internally synchronized.
type intervalTimer struct {
	period time.Duration
	last   time.Time
	now    func() time.Time
}

func newIntervalTimer(period time.Duration, now func() time.Time) *intervalTimer {
	if now == nil {
		now = time.Now
	}
	return &intervalTimer{period: period, last: now(), now: now}
}

// timeUntilProcess returns zero when the interval has elapsed.
func (t *intervalTimer) timeUntilProcess() time.Duration {
	elapsed := t.now().Sub(t.last)
	if elapsed >= t.period {
		return 0
	}
	return t.period - elapsed
}

// processed marks the current interval as consumed. Callers of Process must
// always invoke this once timeUntilProcess reaches zero, or the external
// scheduler will spin at zero delay.
func (t *intervalTimer) processed() {
	t.last = t.now()
}
