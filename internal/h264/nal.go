package h264

import (
	"bytes"

	mch264 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

var (
	// Standard Annex-B start codes
	StartCode3 = []byte{0x00, 0x00, 0x01}
	StartCode4 = []byte{0x00, 0x00, 0x00, 0x01}
)

// NALUnitType represents H.264 NAL unit types
type NALUnitType uint8

const (
	NALUnitTypeSlice     NALUnitType = 1
	NALUnitTypeDPA       NALUnitType = 2
	NALUnitTypeDPB       NALUnitType = 3
	NALUnitTypeDPC       NALUnitType = 4
	NALUnitTypeIDR       NALUnitType = 5
	NALUnitTypeSEI       NALUnitType = 6
	NALUnitTypeSPS       NALUnitType = 7
	NALUnitTypePPS       NALUnitType = 8
	NALUnitTypeAUD       NALUnitType = 9
	NALUnitTypeEndSeq    NALUnitType = 10
	NALUnitTypeEndStream NALUnitType = 11
	NALUnitTypeFiller    NALUnitType = 12
)

// TypeOf returns the type of a NAL unit without start code.
func TypeOf(nalu []byte) NALUnitType {
	if len(nalu) == 0 {
		return 0
	}
	return NALUnitType(nalu[0] & 0x1F)
}

// IsVCL reports whether the type carries slice data.
func (t NALUnitType) IsVCL() bool {
	return t >= NALUnitTypeSlice && t <= NALUnitTypeIDR
}

// HasStartCode checks if data begins with a start code
func HasStartCode(data []byte) bool {
	return bytes.HasPrefix(data, StartCode4) || bytes.HasPrefix(data, StartCode3)
}

// findStartCode finds the position of the next start code in the data.
// Returns -1 if no start code is found.
func findStartCode(data []byte) int {
	for i := 0; i+2 < len(data); i++ {
		if data[i] == 0x00 && data[i+1] == 0x00 {
			if data[i+2] == 0x01 {
				return i
			}
			if i+3 < len(data) && data[i+2] == 0x00 && data[i+3] == 0x01 {
				return i
			}
		}
	}
	return -1
}

// startCodeLength returns the length of the start code at the beginning of data.
func startCodeLength(data []byte) int {
	if bytes.HasPrefix(data, StartCode4) {
		return 4
	}
	if bytes.HasPrefix(data, StartCode3) {
		return 3
	}
	return 0
}

// SplitAnnexB splits Annex-B data into NAL units without start codes.
// Trailing zero bytes belonging to the next start code are trimmed.
func SplitAnnexB(data []byte) [][]byte {
	var nalus [][]byte

	pos := findStartCode(data)
	if pos == -1 {
		if len(data) > 0 {
			return [][]byte{data}
		}
		return nil
	}

	for pos != -1 {
		start := pos + startCodeLength(data[pos:])
		next := findStartCode(data[start:])
		end := len(data)
		if next != -1 {
			end = start + next
		}

		nalu := bytes.TrimRight(data[start:end], "\x00")
		if len(nalu) > 0 {
			nalus = append(nalus, nalu)
		}

		if next == -1 {
			break
		}
		pos = start + next
	}

	return nalus
}

// IsKeyFrame checks if the NAL units contain an IDR slice
func IsKeyFrame(nalus [][]byte) bool {
	return mch264.IsRandomAccess(nalus)
}
