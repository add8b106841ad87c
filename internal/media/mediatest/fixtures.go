// Package mediatest provides encoded media fixtures for tests.
package mediatest

import (
	"time"

	"github.com/babelcloud/screenrec/internal/media"
)

// H.264 parameter sets and slices of a 1920x1080 baseline stream.
var (
	SPS = []byte{
		0x67, 0x42, 0xc0, 0x28, 0xd9, 0x00, 0x78, 0x02,
		0x27, 0xe5, 0x84, 0x00, 0x00, 0x03, 0x00, 0x04,
		0x00, 0x00, 0x03, 0x00, 0xf0, 0x3c, 0x60, 0xc9,
		0x20,
	}
	PPS   = []byte{0x68, 0xce, 0x38, 0x80}
	IDR   = []byte{0x65, 0x88, 0x84, 0x00, 0x10}
	Slice = []byte{0x41, 0x9a, 0x24, 0x8c, 0x09}
)

// AACFrame is a raw AAC-LC access unit.
var AACFrame = []byte{0x21, 0x10, 0x05, 0x00, 0xa0, 0x19, 0x33, 0x87}

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for _, n := range nalus {
		out = append(out, 0x00, 0x00, 0x00, 0x01)
		out = append(out, n...)
	}
	return out
}

// KeyFrame returns an Annex-B access unit carrying SPS, PPS and an IDR slice.
func KeyFrame() []byte {
	return annexB(SPS, PPS, IDR)
}

// DeltaFrame returns an Annex-B access unit carrying a non-IDR slice.
func DeltaFrame() []byte {
	return annexB(Slice)
}

// VideoSample returns an Annex-B video sample at pts.
func VideoSample(pts time.Duration, key bool) *media.SampleBuffer {
	data := DeltaFrame()
	if key {
		data = KeyFrame()
	}
	return &media.SampleBuffer{PTS: pts, Data: data, IsKeyFrame: key}
}

// AudioSample returns an AAC sample at pts.
func AudioSample(pts time.Duration) *media.SampleBuffer {
	data := make([]byte, len(AACFrame))
	copy(data, AACFrame)
	return &media.SampleBuffer{PTS: pts, Data: data}
}

// ADTS wraps a raw AAC frame into an ADTS packet without CRC.
// The header describes AAC-LC at 44100 Hz stereo.
func ADTS(frame []byte) []byte {
	size := len(frame) + 7
	return append([]byte{
		0xff, 0xf1,
		0x50, 0x80 | byte(size>>11),
		byte(size >> 3), byte(size<<5) | 0x1f,
		0xfc,
	}, frame...)
}
