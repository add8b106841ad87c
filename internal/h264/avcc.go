package h264

import (
	"fmt"

	mch264 "github.com/bluenviron/mediacommon/v2/pkg/codecs/h264"
)

// MarshalAVCC encodes NAL units with 4-byte big-endian length prefixes.
func MarshalAVCC(nalus [][]byte) ([]byte, error) {
	out, err := mch264.AVCC(nalus).Marshal()
	if err != nil {
		return nil, fmt.Errorf("marshal AVCC: %w", err)
	}
	return out, nil
}

// UnmarshalAVCC splits length-prefixed data into NAL units.
func UnmarshalAVCC(data []byte) ([][]byte, error) {
	var avcc mch264.AVCC
	if err := avcc.Unmarshal(data); err != nil {
		return nil, fmt.Errorf("unmarshal AVCC: %w", err)
	}
	return avcc, nil
}
