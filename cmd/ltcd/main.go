package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/satindergrewal/ltcd/internal/audio"
	"github.com/satindergrewal/ltcd/internal/config"
	"github.com/satindergrewal/ltcd/internal/libltc"
	"github.com/satindergrewal/ltcd/internal/ltc"
	"github.com/satindergrewal/ltcd/internal/notify"
	"github.com/satindergrewal/ltcd/internal/stream"
	"github.com/satindergrewal/ltcd/internal/timecode"
)

var version = "dev"

func main() {
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx, cfg, slog.Default()); err != nil {
		slog.Error("ltcd exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	factory := libltc.Factory{}
	af := audio.Format{SampleRate: cfg.SampleRate, BlockSize: cfg.BlockSize}

	start, err := cfg.StartTimecode()
	if err != nil {
		return err
	}
	enc := ltc.NewEncoder(factory, ltc.EncoderConfig{
		FrameRate: timecode.DefaultFrameRate.Spec(),
		Start:     &start,
		Logger:    logger,
	})
	defer func() {
		if err := enc.Close(); err != nil {
			logger.Warn("encoder close", "error", err)
		}
	}()
	spec, err := enc.SetFrameRateValue(cfg.FrameRateValue())
	if err != nil {
		return fmt.Errorf("encoder framerate: %w", err)
	}
	if err := enc.Prepare(float64(cfg.SampleRate)); err != nil {
		return fmt.Errorf("encoder prepare: %w", err)
	}

	format, err := timecode.ParseOutputFormat(cfg.Format)
	if err != nil {
		logger.Warn("invalid output format, using raw", "value", cfg.Format, "error", err)
	}
	notifier := ltc.NewNotifier(cfg.Queue, spec, format, logger)
	latest := &notify.Latest{}
	notifier.AddSink(latest)
	notifier.AddSink(notify.NewLogSink(logger))

	if cfg.MQTT.Broker != "" {
		opts := notify.MQTTOptions{
			Broker:     cfg.MQTT.Broker,
			Topic:      cfg.MQTT.Topic,
			Encoding:   cfg.MQTT.Encoding,
			InstanceID: cfg.InstanceID,
		}
		client, err := notify.Dial(ctx, opts, logger)
		if err != nil {
			logger.Warn("mqtt unavailable, readouts stay local", "error", err)
		} else {
			defer client.Disconnect(250)
			sink, err := notify.NewMQTTSink(client, opts)
			if err != nil {
				return err
			}
			notifier.AddSink(sink)
			logger.Info("publishing readouts", "topic", sink.Topic(), "encoding", opts.Encoding)
		}
	}

	ramp := audio.NewRamp(cfg.Level, int(cfg.Fade.Seconds()*float64(cfg.SampleRate)))
	clock := audio.NewClock(enc, af, ramp, logger)
	bc := stream.NewBroadcaster()

	var dec *ltc.Decoder
	if cfg.DecodeInput != config.DecodeOff {
		dec, err = ltc.NewDecoder(factory, notifier, ltc.DecoderConfig{
			SampleRate: float64(cfg.SampleRate),
			FrameRate:  spec,
			Logger:     logger,
		})
		if err != nil {
			return fmt.Errorf("decoder: %w", err)
		}
		defer func() {
			if err := dec.Close(); err != nil {
				logger.Warn("decoder close", "error", err)
			}
		}()
	}

	rtc, err := stream.NewWebRTCHandler(bc, af, logger)
	if err != nil {
		logger.Warn("webrtc monitor disabled", "error", err)
	} else {
		defer rtc.Close()
	}

	a := &api{
		log:        logger.With("component", "api"),
		instanceID: cfg.InstanceID,
		started:    time.Now(),
		enc:        enc,
		dec:        dec,
		notifier:   notifier,
		latest:     latest,
		clock:      clock,
		ramp:       ramp,
		bc:         bc,
		webrtc:     rtc,
	}
	mux := http.NewServeMux()
	a.routes(mux)
	mux.Handle("/stream", stream.NewHTTPHandler(bc, af, logger))
	if rtc != nil {
		mux.Handle("/offer", rtc)
	}
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: mux,
	}

	logger.Info("ltcd starting",
		"version", version,
		"instance", cfg.InstanceID,
		"port", cfg.Port,
		"framerate", spec.String(),
		"start", start.String(),
		"decode_input", cfg.DecodeInput,
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		clock.Run(ctx)
		return nil
	})
	g.Go(func() error {
		bc.Run(ctx, clock.Frames())
		return nil
	})
	g.Go(func() error {
		return notifier.Run(ctx)
	})

	if dec != nil {
		in := decodeInput{log: logger.With("component", "decode-input"), dec: dec, format: af}
		g.Go(func() error {
			if cfg.DecodeInput == config.DecodeLoopback {
				in.loopback(ctx, bc)
				return nil
			}
			return in.file(ctx, cfg.DecodeInput)
		})
	}

	g.Go(func() error {
		logger.Info("HTTP server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	if dec != nil {
		logger.Info("decoder stopped", "frames", dec.Stats().FramesDecoded, "notify_dropped", notifier.Dropped())
	}
	return err
}
