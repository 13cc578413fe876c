package main

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/satindergrewal/ltcd/internal/audio"
	"github.com/satindergrewal/ltcd/internal/ltc"
	"github.com/satindergrewal/ltcd/internal/notify"
	"github.com/satindergrewal/ltcd/internal/stream"
	"github.com/satindergrewal/ltcd/internal/timecode"
)

type stubEncoder struct {
	tc timecode.Value
}

func (s *stubEncoder) BufferSize() int              { return 8 }
func (s *stubEncoder) SetDropFrame(bool)            {}
func (s *stubEncoder) SetTimecode(v timecode.Value) { s.tc = v }
func (s *stubEncoder) Timecode() timecode.Value     { return s.tc }
func (s *stubEncoder) IncrementTimecode()           { s.tc.Frames++ }
func (s *stubEncoder) EncodeFrame()                 {}
func (s *stubEncoder) Close() error                 { return nil }

func (s *stubEncoder) CopyBuffer(dst []byte) int {
	for i := range 8 {
		dst[i] = 128
	}
	return 8
}

type stubDecoder struct{}

func (stubDecoder) Write([]float64, int64) {}
func (stubDecoder) Read(*ltc.Frame) bool   { return false }
func (stubDecoder) Close() error           { return nil }

type stubFactory struct{}

func (stubFactory) NewEncoder(float64, timecode.FrameRateSpec) (ltc.EncoderEngine, error) {
	return &stubEncoder{}, nil
}

func (stubFactory) NewDecoder(int, int) (ltc.DecoderEngine, error) {
	return stubDecoder{}, nil
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(t *testing.T, withDecoder bool) *api {
	t.Helper()
	logger := quietLogger()
	spec := timecode.Rate25.Spec()

	enc := ltc.NewEncoder(stubFactory{}, ltc.EncoderConfig{FrameRate: spec, Logger: logger})
	require.NoError(t, enc.Prepare(48000))
	t.Cleanup(func() { enc.Close() })

	n := ltc.NewNotifier(8, spec, timecode.FormatRaw, logger)
	a := &api{
		log:      logger,
		started:  time.Now(),
		enc:      enc,
		notifier: n,
		latest:   &notify.Latest{},
		ramp:     audio.NewRamp(0.5, 0),
		bc:       stream.NewBroadcaster(),
	}
	if withDecoder {
		dec, err := ltc.NewDecoder(stubFactory{}, n, ltc.DecoderConfig{SampleRate: 48000, FrameRate: spec, Logger: logger})
		require.NoError(t, err)
		t.Cleanup(func() { dec.Close() })
		a.dec = dec
	}
	return a
}

func serve(a *api, method, path, body string) *httptest.ResponseRecorder {
	mux := http.NewServeMux()
	a.routes(mux)
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(method, path, strings.NewReader(body)))
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &m))
	return m
}

func TestStatus(t *testing.T) {
	a := newTestAPI(t, true)
	// One buffer's worth: the starting frame is emitted without a refill.
	a.enc.Process(make([]float64, 8), nil)

	w := serve(a, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	m := decodeBody(t, w)
	enc := m["encoder"].(map[string]any)
	assert.Equal(t, "25", enc["framerate"])
	assert.Equal(t, "01:00:00:00", enc["timecode"])
	assert.NotContains(t, enc, "error")

	dec := m["decoder"].(map[string]any)
	assert.Equal(t, true, dec["enabled"])
	assert.Equal(t, "raw", dec["format"])
	assert.NotContains(t, dec, "last")
	assert.NotContains(t, m, "clock")
}

func TestStatusShowsLatestReadout(t *testing.T) {
	a := newTestAPI(t, false)
	v := timecode.Value{Hours: 1, Seconds: 2, Frames: 3}
	n := ltc.Notification{
		Event:   ltc.Event{Timecode: v},
		Spec:    timecode.Rate25.Spec(),
		Readout: timecode.Format(v, timecode.Rate25.Spec(), timecode.FormatRaw),
	}
	require.NoError(t, a.latest.Deliver(t.Context(), n))

	m := decodeBody(t, serve(a, http.MethodGet, "/api/status", ""))
	dec := m["decoder"].(map[string]any)
	assert.Equal(t, false, dec["enabled"])
	assert.Equal(t, []any{1.0, 0.0, 2.0, 3.0}, dec["readout"])
	assert.Equal(t, 1.0, dec["delivered"])
}

func TestConfigFrameRate(t *testing.T) {
	a := newTestAPI(t, true)

	w := serve(a, http.MethodPost, "/api/config", `{"framerate": "30df"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "30df", decodeBody(t, w)["framerate"])
	assert.Equal(t, timecode.Rate30DropFrame, a.enc.FrameRate().Rate)
	assert.Equal(t, timecode.Rate30DropFrame, a.notifier.FrameRate().Rate)
}

func TestConfigInvalidFrameRateFallsBack(t *testing.T) {
	a := newTestAPI(t, true)

	w := serve(a, http.MethodPost, "/api/config", `{"framerate": 17}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, timecode.DefaultFrameRate, a.enc.FrameRate().Rate)
	assert.Equal(t, timecode.DefaultFrameRate, a.notifier.FrameRate().Rate)
}

func TestConfigFormat(t *testing.T) {
	for _, withDecoder := range []bool{true, false} {
		a := newTestAPI(t, withDecoder)

		w := serve(a, http.MethodPost, "/api/config", `{"format": 3}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, timecode.FormatMilliseconds, a.notifier.Format())

		w = serve(a, http.MethodPost, "/api/config", `{"format": 9}`)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, timecode.FormatRaw, a.notifier.Format(), "decoder=%v", withDecoder)
	}
}

func TestConfigLevel(t *testing.T) {
	a := newTestAPI(t, false)

	w := serve(a, http.MethodPost, "/api/config", `{"level": 2}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, a.ramp.Level())
	assert.Equal(t, 1.0, decodeBody(t, w)["level"])
}

func TestConfigRejects(t *testing.T) {
	a := newTestAPI(t, false)

	assert.Equal(t, http.StatusMethodNotAllowed, serve(a, http.MethodGet, "/api/config", "").Code)
	assert.Equal(t, http.StatusBadRequest, serve(a, http.MethodPost, "/api/config", "{").Code)
}

func TestLocate(t *testing.T) {
	a := newTestAPI(t, false)

	w := serve(a, http.MethodPost, "/api/locate", `{"timecode": "10:00:00:00"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "10:00:00:00", decodeBody(t, w)["timecode"])

	a.enc.Process(make([]float64, 16), nil)
	tc, err := a.enc.Timecode()
	require.NoError(t, err)
	assert.Equal(t, 10, tc.Hours)
}

func TestLocateErrors(t *testing.T) {
	a := newTestAPI(t, false)

	tests := []struct {
		name   string
		method string
		body   string
		want   int
	}{
		{"get", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"bad json", http.MethodPost, "{", http.StatusBadRequest},
		{"unparseable", http.MethodPost, `{"timecode": "ten"}`, http.StatusBadRequest},
		{"frames out of range", http.MethodPost, `{"timecode": "00:00:00:25"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serve(a, tt.method, "/api/locate", tt.body).Code)
		})
	}

	require.NoError(t, a.enc.Close())
	assert.Equal(t, http.StatusConflict,
		serve(a, http.MethodPost, "/api/locate", `{"timecode": "00:00:01:00"}`).Code)
}
