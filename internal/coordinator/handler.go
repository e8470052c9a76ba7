package coordinator

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"encoding-coordinator/internal/platform/metrics"

	"github.com/go-chi/chi/v5"
)

// Handler exposes the coordinator's feedback-path operations over HTTP using
// go-chi, for out-of-process rate controllers and debugging.
type Handler struct {
	coord   *Coordinator
	log     *slog.Logger
	metrics *metrics.Metrics
}

// NewHandler returns a Handler for the given coordinator. Metrics may be nil
// to disable metric recording (e.g. in tests).
func NewHandler(coord *Coordinator, log *slog.Logger, m *metrics.Metrics) *Handler {
	return &Handler{coord: coord, log: log, metrics: m}
}

// channelParametersRequest is the body of POST /channel-parameters.
type channelParametersRequest struct {
	TargetBitrateBps uint32 `json:"target_bitrate_bps"`
	LossRate         uint8  `json:"loss_rate"`
	RTTMs            int64  `json:"rtt_ms"`
}

// SetChannelParameters handles POST /channel-parameters.
// Body: { "target_bitrate_bps": 1500000, "loss_rate": 3, "rtt_ms": 80 }.
func (h *Handler) SetChannelParameters(w http.ResponseWriter, r *http.Request) {
	var req channelParametersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid channel parameters body", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.coord.SetChannelParameters(req.TargetBitrateBps, req.LossRate,
		time.Duration(req.RTTMs)*time.Millisecond); err != nil {
		h.log.Error("set channel parameters failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Debug("channel parameters updated",
		slog.Uint64("target_bitrate_bps", uint64(req.TargetBitrateBps)),
		slog.Uint64("loss_rate", uint64(req.LossRate)),
		slog.Int64("rtt_ms", req.RTTMs))
	w.WriteHeader(http.StatusAccepted)
}

// IntraFrameRequest handles POST /streams/{stream_index}/keyframe.
func (h *Handler) IntraFrameRequest(w http.ResponseWriter, r *http.Request) {
	idx, err := strconv.Atoi(chi.URLParam(r, "stream_index"))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	if err := h.coord.IntraFrameRequest(idx); err != nil {
		if errors.Is(err, ErrOutOfRange) {
			h.log.Info("keyframe request for unknown stream", slog.Int("stream_index", idx))
			w.WriteHeader(http.StatusNotFound)
			return
		}
		h.log.Error("keyframe request failed", slog.Int("stream_index", idx), slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	h.log.Debug("keyframe requested", slog.Int("stream_index", idx))
	w.WriteHeader(http.StatusAccepted)
	if h.metrics != nil {
		h.metrics.IncKeyframeRequests()
	}
}

// parametersResponse is the body of GET /parameters.
type parametersResponse struct {
	TargetBitrateBps uint32 `json:"target_bitrate_bps"`
	LossRate         uint8  `json:"loss_rate"`
	RTTMs            int64  `json:"rtt_ms"`
	InputFrameRate   uint32 `json:"input_frame_rate"`
}

// GetParameters handles GET /parameters.
func (h *Handler) GetParameters(w http.ResponseWriter, r *http.Request) {
	p := h.coord.Parameters()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(parametersResponse{
		TargetBitrateBps: p.TargetBitrate,
		LossRate:         p.LossRate,
		RTTMs:            p.RTT.Milliseconds(),
		InputFrameRate:   p.InputFrameRate,
	})
}
