package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"encoding-coordinator/internal/codecdb"
	"encoding-coordinator/internal/coordinator"
	"encoding-coordinator/internal/platform/config"
	"encoding-coordinator/internal/platform/logger"
	"encoding-coordinator/internal/platform/metrics"
	"encoding-coordinator/internal/platform/scheduler"
	"encoding-coordinator/internal/ratecontrol"
	"encoding-coordinator/internal/synthenc"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

// rtpClockRate is the 90kHz video media clock.
const rtpClockRate = 90000

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	width := config.GetEnvInt("FRAME_WIDTH", 1280)
	height := config.GetEnvInt("FRAME_HEIGHT", 720)
	maxFramerate := config.GetEnvInt("MAX_FRAMERATE", 30)
	startBitrate := config.GetEnvInt("START_BITRATE_KBPS", 1000)
	maxBitrate := config.GetEnvInt("MAX_BITRATE_KBPS", 4000)
	simulcastStreams := config.GetEnvInt("SIMULCAST_STREAMS", 1)
	maxPayloadSize := config.GetEnvInt("MAX_PAYLOAD_SIZE", 1200)
	frameInterval := config.GetEnvDuration("FRAME_INTERVAL", 33*time.Millisecond)

	log := logger.New(logLevel, logFormat)

	met := metrics.New()
	opt := ratecontrol.New()

	// The synthetic encoder's output feeds the sent-rate estimator and the
	// frame counters; a real deployment would hand the payload to the
	// packetizer here instead.
	var enc *synthenc.Encoder
	db := codecdb.New(codecdb.FactoryFunc(func(codec *coordinator.VideoCodec) (coordinator.Encoder, error) {
		enc = synthenc.New(codec, func(f synthenc.EncodedFrame) {
			opt.RecordSentFrame(len(f.Data), time.Now())
			met.IncFramesEncoded()
		})
		return enc, nil
	}), log)

	coord := coordinator.New(db, opt, met, logger.WithComponent(log, "coordinator"))

	codec := &coordinator.VideoCodec{
		Type:                     coordinator.CodecVP8,
		PayloadType:              96,
		PayloadName:              "VP8",
		Width:                    width,
		Height:                   height,
		StartBitrate:             uint32(startBitrate),
		MaxBitrate:               uint32(maxBitrate),
		MaxFramerate:             uint32(maxFramerate),
		NumberOfSimulcastStreams: simulcastStreams,
		VP8:                      &coordinator.VP8Settings{NumberOfTemporalLayers: 1},
	}
	if err := coord.RegisterSendCodec(codec, runtime.NumCPU(), maxPayloadSize); err != nil {
		log.Error("register send codec", "error", err)
		os.Exit(1)
	}
	// Seed the parameter store so frames flow before the first real
	// feedback report arrives.
	_ = coord.SetChannelParameters(uint32(startBitrate)*1000, 0, 0)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	runner := scheduler.New(coord)
	if err := runner.Start(ctx); err != nil {
		log.Error("start scheduler", "error", err)
		os.Exit(1)
	}
	defer runner.Stop()

	go captureLoop(ctx, coord, opt, met, enc, width, height, frameInterval,
		logger.WithComponent(log, "capture"))

	h := coordinator.NewHandler(coord, log, met)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() { met.SetInputFramerate(opt.InputFrameRate()) }).ServeHTTP(w, req)
	})
	r.Post("/channel-parameters", h.SetChannelParameters)
	r.Get("/parameters", h.GetParameters)
	r.Post("/streams/{stream_index}/keyframe", h.IntraFrameRequest)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("sender starting",
		"port", port,
		"resolution", map[string]int{"width": width, "height": height},
		"start_bitrate_kbps", startBitrate,
		"frame_interval", frameInterval.String(),
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("sender stopped")
}

// captureLoop fabricates raw frames at the capture cadence and submits them,
// standing in for a camera or screen-capture pipeline.
func captureLoop(ctx context.Context, coord *coordinator.Coordinator, opt *ratecontrol.MediaOptimizer,
	met *metrics.Metrics, enc *synthenc.Encoder, width, height int, interval time.Duration, log *slog.Logger,
) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var timestamp uint32
	var lastDropped uint64
	timestampStep := uint32(rtpClockRate * interval.Seconds())
	buf := coordinator.NewI420Buffer(width, height)

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			opt.RecordInputFrame(now)
			frame := coordinator.VideoFrame{Buffer: buf, Timestamp: timestamp, RenderTime: now}
			timestamp += timestampStep

			err := coord.AddVideoFrame(frame, &coordinator.CodecSpecificInfo{CodecType: coordinator.CodecVP8})
			switch {
			case err == nil:
			case errors.Is(err, coordinator.ErrUninitialized):
				log.Debug("no encoder registered, frame skipped")
			default:
				log.Error("frame submission failed", "error", err)
			}

			if enc != nil {
				for d := enc.FramesDropped(); lastDropped < d; lastDropped++ {
					met.IncFramesDropped()
				}
			}
		}
	}
}
