package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the encoding coordinator.
// It also implements the coordinator's StatsSink contract, so the periodic
// stats ticker feeds the sent-rate gauges directly.
type Metrics struct {
	registry              *prometheus.Registry
	requestsTotal         prometheus.Counter
	errorsTotal           prometheus.Counter
	framesEncodedTotal    prometheus.Counter
	framesDroppedTotal    prometheus.Counter
	keyframeRequestsTotal prometheus.Counter
	sentBitrate           prometheus.Gauge
	sentFramerate         prometheus.Gauge
	inputFramerate        prometheus.Gauge
}

// New creates and registers Prometheus metrics for the coordinator.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_http_requests_total",
		Help: "Total number of control-plane HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_http_errors_total",
		Help: "Total number of control-plane HTTP responses with error status (4xx or 5xx)",
	})
	framesEncodedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_frames_encoded_total",
		Help: "Total number of frames successfully encoded",
	})
	framesDroppedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_frames_dropped_total",
		Help: "Total number of frames dropped by rate control",
	})
	keyframeRequestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "coordinator_keyframe_requests_total",
		Help: "Total number of accepted keyframe requests",
	})
	sentBitrate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_sent_bitrate_bps",
		Help: "Sent bitrate over the last stats interval, bits per second",
	})
	sentFramerate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_sent_framerate",
		Help: "Sent frame rate over the last stats interval, frames per second",
	})
	inputFramerate := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "coordinator_input_framerate",
		Help: "Estimated capture frame rate, frames per second",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		framesEncodedTotal,
		framesDroppedTotal,
		keyframeRequestsTotal,
		sentBitrate,
		sentFramerate,
		inputFramerate,
	)

	return &Metrics{
		registry:              registry,
		requestsTotal:         requestsTotal,
		errorsTotal:           errorsTotal,
		framesEncodedTotal:    framesEncodedTotal,
		framesDroppedTotal:    framesDroppedTotal,
		keyframeRequestsTotal: keyframeRequestsTotal,
		sentBitrate:           sentBitrate,
		sentFramerate:         sentFramerate,
		inputFramerate:        inputFramerate,
	}
}

// SendStatistics implements the coordinator's StatsSink contract.
func (m *Metrics) SendStatistics(bitrate, framerate uint32) {
	m.sentBitrate.Set(float64(bitrate))
	m.sentFramerate.Set(float64(framerate))
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncFramesEncoded increments the encoded frames counter.
func (m *Metrics) IncFramesEncoded() {
	m.framesEncodedTotal.Inc()
}

// IncFramesDropped increments the dropped frames counter.
func (m *Metrics) IncFramesDropped() {
	m.framesDroppedTotal.Inc()
}

// IncKeyframeRequests increments the keyframe request counter.
func (m *Metrics) IncKeyframeRequests() {
	m.keyframeRequestsTotal.Inc()
}

// SetInputFramerate sets the capture frame rate gauge.
func (m *Metrics) SetInputFramerate(fps uint32) {
	m.inputFramerate.Set(float64(fps))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values (e.g.
// the input frame rate).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
