package stream

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/satindergrewal/ltcd/internal/audio"
)

// HTTPHandler serves the LTC monitor signal as a chunked FLAC stream. FLAC
// keeps the square-wave edges intact so the stream can be decoded as LTC
// again downstream. Each connection spawns an FFmpeg encoder.
type HTTPHandler struct {
	broadcaster *Broadcaster
	format      audio.Format
	log         *slog.Logger
}

// NewHTTPHandler creates an HTTP stream handler.
func NewHTTPHandler(b *Broadcaster, f audio.Format, logger *slog.Logger) *HTTPHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPHandler{broadcaster: b, format: f, log: logger.With("component", "http-stream")}
}

func (h *HTTPHandler) ffmpegArgs() []string {
	return []string{
		"-f", "s16le",
		"-ar", strconv.Itoa(h.format.SampleRate),
		"-ac", strconv.Itoa(audio.Channels),
		"-i", "pipe:0",
		"-codec:a", "flac",
		"-f", "flac",
		"-fflags", "nobuffer",
		"-flush_packets", "1",
		"-loglevel", "error",
		"pipe:1",
	}
}

func (h *HTTPHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "audio/flac")
	w.Header().Set("Cache-Control", "no-cache, no-store")
	w.Header().Set("Connection", "close")
	w.Header().Set("Access-Control-Allow-Origin", "*")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", h.ffmpegArgs()...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		h.log.Error("stdin pipe", "error", err)
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		h.log.Error("stdout pipe", "error", err)
		return
	}

	if err := cmd.Start(); err != nil {
		h.log.Error("ffmpeg start", "error", err)
		http.Error(w, "encoder unavailable", http.StatusServiceUnavailable)
		return
	}

	listener := h.broadcaster.Subscribe()
	defer h.broadcaster.Unsubscribe(listener)

	h.log.Info("listener connected", "remote", r.RemoteAddr, "listeners", h.broadcaster.ListenerCount())
	defer func() {
		h.log.Info("listener disconnected", "remote", r.RemoteAddr, "dropped", listener.Dropped())
	}()

	// Feed PCM blocks to FFmpeg
	go func() {
		defer stdin.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case <-listener.Done():
				return
			case frame, ok := <-listener.C:
				if !ok {
					return
				}
				if _, err := stdin.Write(audio.SamplesToBytes(frame)); err != nil {
					return
				}
			}
		}
	}()

	buf := make([]byte, 4096)
	for {
		n, err := stdout.Read(buf)
		if n > 0 {
			if _, writeErr := w.Write(buf[:n]); writeErr != nil {
				break
			}
			flusher.Flush()
		}
		if err != nil {
			if err != io.EOF {
				h.log.Warn("ffmpeg read", "error", err)
			}
			break
		}
	}

	cancel()
	cmd.Wait()
}
