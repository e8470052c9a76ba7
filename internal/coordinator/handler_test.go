package coordinator

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
)

func newTestHandler(t *testing.T) (*Handler, *Coordinator) {
	t.Helper()
	c, _, _ := newTestCoordinator(&fakeEncoder{})
	mustRegister(t, c, testCodec(2))
	return NewHandler(c, testLogger(), nil), c
}

func newTestRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()
	r.Post("/channel-parameters", h.SetChannelParameters)
	r.Get("/parameters", h.GetParameters)
	r.Post("/streams/{stream_index}/keyframe", h.IntraFrameRequest)
	return r
}

func TestHandler_SetChannelParameters(t *testing.T) {
	h, c := newTestHandler(t)
	r := newTestRouter(h)

	body, _ := json.Marshal(map[string]any{
		"target_bitrate_bps": 1_500_000,
		"loss_rate":          3,
		"rtt_ms":             80,
	})
	req := httptest.NewRequest(http.MethodPost, "/channel-parameters", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	p := c.Parameters()
	if p.TargetBitrate != 1_500_000 || p.LossRate != 3 || p.RTT != 80*time.Millisecond {
		t.Errorf("parameters not applied: %+v", p)
	}
}

func TestHandler_SetChannelParameters_bad_request(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/channel-parameters", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_IntraFrameRequest(t *testing.T) {
	h, c := newTestHandler(t)
	r := newTestRouter(h)

	// Clear the registration keyframes so the requested one stands out.
	if err := c.AddVideoFrame(testFrame(), nil); err != nil {
		t.Fatalf("AddVideoFrame: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/streams/1/keyframe", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if got := c.PendingFrameTypes(); got[0] != FrameDelta || got[1] != FrameKey {
		t.Errorf("expected [delta key], got %v", got)
	}
}

func TestHandler_IntraFrameRequest_out_of_range(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/streams/5/keyframe", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestHandler_IntraFrameRequest_bad_index(t *testing.T) {
	h, _ := newTestHandler(t)
	r := newTestRouter(h)

	req := httptest.NewRequest(http.MethodPost, "/streams/first/keyframe", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}
}

func TestHandler_GetParameters(t *testing.T) {
	h, c := newTestHandler(t)
	r := newTestRouter(h)

	if err := c.SetChannelParameters(750_000, 5, 120*time.Millisecond); err != nil {
		t.Fatalf("SetChannelParameters: %v", err)
	}

	req := httptest.NewRequest(http.MethodGet, "/parameters", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("expected application/json, got %s", ct)
	}

	var got parametersResponse
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	want := parametersResponse{TargetBitrateBps: 750_000, LossRate: 5, RTTMs: 120, InputFrameRate: 30}
	if got != want {
		t.Errorf("expected %+v, got %+v", want, got)
	}
}
