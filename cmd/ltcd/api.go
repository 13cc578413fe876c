package main

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/satindergrewal/ltcd/internal/audio"
	"github.com/satindergrewal/ltcd/internal/ltc"
	"github.com/satindergrewal/ltcd/internal/notify"
	"github.com/satindergrewal/ltcd/internal/stream"
	"github.com/satindergrewal/ltcd/internal/timecode"
)

// api serves the control and status endpoints. dec, clock, and webrtc may be
// nil when the matching component is disabled.
type api struct {
	log        *slog.Logger
	instanceID string
	started    time.Time

	enc      *ltc.Encoder
	dec      *ltc.Decoder
	notifier *ltc.Notifier
	latest   *notify.Latest
	clock    *audio.Clock
	ramp     *audio.Ramp
	bc       *stream.Broadcaster
	webrtc   *stream.WebRTCHandler
}

func (a *api) routes(mux *http.ServeMux) {
	mux.HandleFunc("/api/status", a.handleStatus)
	mux.HandleFunc("/api/config", a.handleConfig)
	mux.HandleFunc("/api/locate", a.handleLocate)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (a *api) handleStatus(w http.ResponseWriter, r *http.Request) {
	spec := a.enc.FrameRate()
	encoder := map[string]any{
		"framerate": spec.Rate.String(),
		"fps":       spec.FPS,
		"standard":  spec.Standard.String(),
		"stats":     a.enc.Stats(),
	}
	if tc, err := a.enc.Timecode(); err == nil {
		encoder["timecode"] = tc.String()
	}
	if err := a.enc.Err(); err != nil {
		encoder["error"] = err.Error()
	}

	decoder := map[string]any{
		"enabled": a.dec != nil,
		"format":  a.notifier.Format().String(),
	}
	if a.dec != nil {
		decoder["stats"] = a.dec.Stats()
		if v, ok := a.dec.Last(); ok {
			decoder["last"] = v.String()
			decoder["direction"] = v.Direction.String()
		}
	}
	if n, count, ok := a.latest.Get(); ok {
		decoder["readout"] = n.Readout
		decoder["delivered"] = count
	}

	resp := map[string]any{
		"instance_id": a.instanceID,
		"uptime":      time.Since(a.started).Round(time.Second).Seconds(),
		"encoder":     encoder,
		"decoder":     decoder,
		"listeners": map[string]int{
			"http":   a.bc.ListenerCount(),
			"webrtc": a.peerCount(),
		},
	}
	if a.clock != nil {
		blocks, pos := a.clock.Status()
		resp["clock"] = map[string]any{
			"blocks":      blocks,
			"position_ms": pos.Milliseconds(),
			"published":   a.bc.Published(),
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) peerCount() int {
	if a.webrtc == nil {
		return 0
	}
	return a.webrtc.PeerCount()
}

type configRequest struct {
	FrameRate *timecode.ConfigValue `json:"framerate"`
	Format    *int                  `json:"format"`
	Level     *float64              `json:"level"`
}

// handleConfig applies frame rate, output format, and output level. Invalid
// frame rates and formats fall back to defaults with a warning rather than
// failing the request.
func (a *api) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req configRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	if req.FrameRate != nil {
		spec, err := a.enc.SetFrameRateValue(*req.FrameRate)
		if err != nil {
			a.log.Error("apply framerate", "error", err)
			http.Error(w, "encoder unavailable", http.StatusInternalServerError)
			return
		}
		a.notifier.SetFrameRate(spec)
	}
	if req.Format != nil {
		if a.dec != nil {
			a.dec.SetFormat(*req.Format)
		} else {
			f, err := timecode.ParseOutputFormat(*req.Format)
			if err != nil {
				a.log.Warn("invalid output format, using raw", "value", *req.Format, "error", err)
			}
			a.notifier.SetFormat(f)
		}
	}

	if req.Level != nil && a.ramp != nil {
		a.ramp.SetLevel(*req.Level)
	}

	spec := a.enc.FrameRate()
	resp := map[string]any{
		"ok":        true,
		"framerate": spec.Rate.String(),
		"fps":       spec.FPS,
		"format":    a.notifier.Format().String(),
	}
	if a.ramp != nil {
		resp["level"] = a.ramp.Level()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *api) handleLocate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}
	var req struct {
		Timecode string `json:"timecode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	v, _, err := timecode.Parse(req.Timecode)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	switch err := a.enc.Locate(v); {
	case err == nil:
	case errors.Is(err, timecode.ErrInvalidTimecode):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case errors.Is(err, ltc.ErrClosed):
		http.Error(w, err.Error(), http.StatusConflict)
		return
	default:
		a.log.Error("locate", "timecode", v.String(), "error", err)
		http.Error(w, "encoder unavailable", http.StatusInternalServerError)
		return
	}

	a.log.Info("encoder located", "timecode", v.String())
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "timecode": v.String()})
}
