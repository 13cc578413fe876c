package stream

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"gopkg.in/hraban/opus.v2"

	"github.com/satindergrewal/ltcd/internal/audio"
)

var (
	opusRates     = []int{8000, 12000, 16000, 24000, 48000}
	opusDurations = []time.Duration{
		2500 * time.Microsecond, 5 * time.Millisecond, 10 * time.Millisecond,
		20 * time.Millisecond, 40 * time.Millisecond, 60 * time.Millisecond,
	}
)

// CheckOpusFormat reports whether f can be Opus-encoded block by block.
func CheckOpusFormat(f audio.Format) error {
	if !slices.Contains(opusRates, f.SampleRate) {
		return fmt.Errorf("opus: unsupported sample rate %d", f.SampleRate)
	}
	if d := f.BlockDuration(); !slices.Contains(opusDurations, d) ||
		time.Duration(f.BlockSize)*time.Second != d*time.Duration(f.SampleRate) {
		return fmt.Errorf("opus: block of %d samples at %d Hz is not a valid frame size", f.BlockSize, f.SampleRate)
	}
	return nil
}

// WebRTCHandler serves WebRTC SDP negotiation for low-latency Opus monitoring
// of the generated signal. Opus is lossy, so this output is for listening,
// not for re-decoding.
type WebRTCHandler struct {
	broadcaster *Broadcaster
	format      audio.Format
	log         *slog.Logger

	mu    sync.Mutex
	peers []*webrtc.PeerConnection
}

// NewWebRTCHandler creates a WebRTC stream handler for blocks in format f.
func NewWebRTCHandler(b *Broadcaster, f audio.Format, logger *slog.Logger) (*WebRTCHandler, error) {
	if err := CheckOpusFormat(f); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &WebRTCHandler{
		broadcaster: b,
		format:      f,
		log:         logger.With("component", "webrtc"),
	}, nil
}

// PeerCount returns the number of active WebRTC peers.
func (h *WebRTCHandler) PeerCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.peers)
}

func (h *WebRTCHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		w.WriteHeader(http.StatusOK)
		return
	}

	if r.Method != http.MethodPost {
		http.Error(w, "POST required", http.StatusMethodNotAllowed)
		return
	}

	var offer webrtc.SessionDescription
	if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
		http.Error(w, "invalid SDP offer", http.StatusBadRequest)
		return
	}

	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	if err != nil {
		http.Error(w, "create peer connection failed", http.StatusInternalServerError)
		return
	}

	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: audio.Channels},
		"audio",
		"ltcd-monitor",
	)
	if err != nil {
		pc.Close()
		http.Error(w, "create audio track failed", http.StatusInternalServerError)
		return
	}

	if _, err := pc.AddTrack(track); err != nil {
		pc.Close()
		http.Error(w, "add track failed", http.StatusInternalServerError)
		return
	}

	if err := pc.SetRemoteDescription(offer); err != nil {
		pc.Close()
		http.Error(w, "set remote description failed", http.StatusBadRequest)
		return
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		pc.Close()
		http.Error(w, "create answer failed", http.StatusInternalServerError)
		return
	}

	gatherComplete := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		pc.Close()
		http.Error(w, "set local description failed", http.StatusInternalServerError)
		return
	}

	select {
	case <-gatherComplete:
	case <-r.Context().Done():
		pc.Close()
		return
	}

	h.mu.Lock()
	h.peers = append(h.peers, pc)
	h.mu.Unlock()

	h.log.Info("peer connected", "remote", r.RemoteAddr, "peers", h.PeerCount())

	listener := h.broadcaster.Subscribe()
	go h.streamToPeer(listener, track)

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		switch s {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			h.broadcaster.Unsubscribe(listener)
			if h.removePeer(pc) {
				pc.Close()
				h.log.Info("peer disconnected", "state", s.String(), "peers", h.PeerCount())
			}
		}
	})

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	json.NewEncoder(w).Encode(pc.LocalDescription())
}

// Close hangs up every peer.
func (h *WebRTCHandler) Close() error {
	h.mu.Lock()
	peers := h.peers
	h.peers = nil
	h.mu.Unlock()

	var errs []error
	for _, pc := range peers {
		errs = append(errs, pc.Close())
	}
	return errors.Join(errs...)
}

func (h *WebRTCHandler) streamToPeer(listener *Listener, track *webrtc.TrackLocalStaticSample) {
	defer h.broadcaster.Unsubscribe(listener)

	enc, err := opus.NewEncoder(h.format.SampleRate, audio.Channels, opus.AppAudio)
	if err != nil {
		h.log.Error("opus encoder", "error", err)
		return
	}
	if err := enc.SetBitrate(128000); err != nil {
		h.log.Warn("opus bitrate", "error", err)
	}

	opusBuf := make([]byte, 4000)
	dur := h.format.BlockDuration()

	for {
		select {
		case <-listener.Done():
			return
		case frame, ok := <-listener.C:
			if !ok {
				return
			}
			n, err := enc.Encode(frame, opusBuf)
			if err != nil {
				h.log.Warn("opus encode", "error", err)
				continue
			}
			if err := track.WriteSample(media.Sample{Data: opusBuf[:n], Duration: dur}); err != nil {
				return
			}
		}
	}
}

func (h *WebRTCHandler) removePeer(pc *webrtc.PeerConnection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i, p := range h.peers {
		if p == pc {
			h.peers = slices.Delete(h.peers, i, i+1)
			return true
		}
	}
	return false
}
