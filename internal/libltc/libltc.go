// Package libltc binds the libltc codec engine (x42/libltc) for the ltc
// pipelines. The library must be installed with its pkg-config file.
package libltc

/*
#cgo pkg-config: ltc
#include <stdlib.h>
#include <string.h>
#include <ltc.h>

typedef struct {
	int hours, mins, secs, frame, reverse;
	long long start, end;
} ltcd_frame;

static void ltcd_set_dropframe(LTCEncoder *e, int df) {
	LTCFrame f;
	ltc_encoder_get_frame(e, &f);
	f.dfbit = df ? 1 : 0;
	ltc_encoder_set_frame(e, &f);
}

static void ltcd_set_timecode(LTCEncoder *e, int h, int m, int s, int fr) {
	SMPTETimecode t;
	memset(&t, 0, sizeof(t));
	strcpy(t.timezone, "+0100");
	t.years = 17;
	t.months = 4;
	t.days = 1;
	t.hours = h;
	t.mins = m;
	t.secs = s;
	t.frame = fr;
	ltc_encoder_set_timecode(e, &t);
}

static unsigned long ltcd_get_timecode(LTCEncoder *e) {
	SMPTETimecode t;
	ltc_encoder_get_timecode(e, &t);
	return ((unsigned long)t.hours << 24) | ((unsigned long)t.mins << 16) |
		((unsigned long)t.secs << 8) | (unsigned long)t.frame;
}

static int ltcd_read(LTCDecoder *d, ltcd_frame *out) {
	LTCFrameExt f;
	SMPTETimecode t;
	if (!ltc_decoder_read(d, &f)) {
		return 0;
	}
	ltc_frame_to_time(&t, &f.ltc, LTC_USE_DATE);
	out->hours = t.hours;
	out->mins = t.mins;
	out->secs = t.secs;
	out->frame = t.frame;
	out->reverse = f.reverse;
	out->start = f.off_start;
	out->end = f.off_end;
	return 1;
}
*/
import "C"

import (
	"errors"
	"fmt"
	"unsafe"

	"github.com/satindergrewal/ltcd/internal/ltc"
	"github.com/satindergrewal/ltcd/internal/timecode"
)

// Factory creates libltc engines. The zero value is ready to use.
type Factory struct{}

var _ ltc.Factory = Factory{}

func (Factory) NewEncoder(sampleRate float64, spec timecode.FrameRateSpec) (ltc.EncoderEngine, error) {
	if sampleRate <= 0 || spec.FPS <= 0 {
		return nil, fmt.Errorf("libltc: invalid encoder parameters %v Hz, %v fps", sampleRate, spec.FPS)
	}
	e := C.ltc_encoder_create(C.double(sampleRate), C.double(spec.FPS),
		C.enum_LTC_TV_STANDARD(spec.Standard), C.int(C.LTC_USE_DATE))
	if e == nil {
		return nil, errors.New("libltc: ltc_encoder_create failed")
	}
	return &encoder{e: e}, nil
}

func (Factory) NewDecoder(samplesPerFrame, queueSize int) (ltc.DecoderEngine, error) {
	d := C.ltc_decoder_create(C.int(samplesPerFrame), C.int(queueSize))
	if d == nil {
		return nil, errors.New("libltc: ltc_decoder_create failed")
	}
	scratch := (*C.ltcd_frame)(C.calloc(1, C.size_t(unsafe.Sizeof(C.ltcd_frame{}))))
	if scratch == nil {
		C.ltc_decoder_free(d)
		return nil, errors.New("libltc: out of memory")
	}
	return &decoder{d: d, scratch: scratch}, nil
}

type encoder struct {
	e *C.LTCEncoder
}

func (x *encoder) BufferSize() int {
	return int(C.ltc_encoder_get_buffersize(x.e))
}

func (x *encoder) SetDropFrame(df bool) {
	v := 0
	if df {
		v = 1
	}
	C.ltcd_set_dropframe(x.e, C.int(v))
}

func (x *encoder) SetTimecode(v timecode.Value) {
	C.ltcd_set_timecode(x.e, C.int(v.Hours), C.int(v.Minutes), C.int(v.Seconds), C.int(v.Frames))
}

func (x *encoder) Timecode() timecode.Value {
	w := uint64(C.ltcd_get_timecode(x.e))
	return timecode.Value{
		Hours:   int(w >> 24 & 0xff),
		Minutes: int(w >> 16 & 0xff),
		Seconds: int(w >> 8 & 0xff),
		Frames:  int(w & 0xff),
	}
}

func (x *encoder) IncrementTimecode() { C.ltc_encoder_inc_timecode(x.e) }
func (x *encoder) EncodeFrame()       { C.ltc_encoder_encode_frame(x.e) }

// CopyBuffer moves the encoded samples into dst and flushes the engine's
// buffer. dst must hold at least BufferSize bytes.
func (x *encoder) CopyBuffer(dst []byte) int {
	if len(dst) == 0 || len(dst) < x.BufferSize() {
		return 0
	}
	n := C.ltc_encoder_copy_buffer(x.e, (*C.ltcsnd_sample_t)(unsafe.Pointer(&dst[0])))
	return int(n)
}

func (x *encoder) Close() error {
	if x.e != nil {
		C.ltc_encoder_free(x.e)
		x.e = nil
	}
	return nil
}

type decoder struct {
	d       *C.LTCDecoder
	scratch *C.ltcd_frame
}

func (x *decoder) Write(samples []float64, offset int64) {
	if len(samples) == 0 {
		return
	}
	C.ltc_decoder_write_double(x.d, (*C.double)(unsafe.Pointer(&samples[0])),
		C.size_t(len(samples)), C.ltc_off_t(offset))
}

func (x *decoder) Read(f *ltc.Frame) bool {
	if C.ltcd_read(x.d, x.scratch) == 0 {
		return false
	}
	s := x.scratch
	dir := timecode.Forward
	if s.reverse != 0 {
		dir = timecode.Reverse
	}
	*f = ltc.Frame{
		Timecode: timecode.Value{
			Hours:     int(s.hours),
			Minutes:   int(s.mins),
			Seconds:   int(s.secs),
			Frames:    int(s.frame),
			Direction: dir,
		},
		Start: int64(s.start),
		End:   int64(s.end),
	}
	return true
}

func (x *decoder) Close() error {
	if x.d == nil {
		return nil
	}
	C.free(unsafe.Pointer(x.scratch))
	x.scratch = nil
	if C.ltc_decoder_free(x.d) != 0 {
		x.d = nil
		return errors.New("libltc: ltc_decoder_free failed")
	}
	x.d = nil
	return nil
}
