package h264

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testSPS = []byte{0x67, 0x42, 0x00, 0x1e, 0x96, 0x54, 0x05, 0x01, 0xed, 0x80}
	testPPS = []byte{0x68, 0xce, 0x38, 0x80}
	testIDR = []byte{0x65, 0x88, 0x84, 0x00, 0x10}
	testP   = []byte{0x41, 0x9a, 0x24, 0x8c, 0x09}
	testAUD = []byte{0x09, 0x10}
)

func annexB(nalus ...[]byte) []byte {
	var out []byte
	for i, nalu := range nalus {
		if i%2 == 0 {
			out = append(out, StartCode4...)
		} else {
			out = append(out, StartCode3...)
		}
		out = append(out, nalu...)
	}
	return out
}

func TestSplitAnnexB(t *testing.T) {
	nalus := SplitAnnexB(annexB(testSPS, testPPS, testIDR))
	require.Len(t, nalus, 3)
	assert.Equal(t, testSPS, nalus[0])
	assert.Equal(t, testPPS, nalus[1])
	assert.Equal(t, testIDR, nalus[2])

	assert.Nil(t, SplitAnnexB(nil))
}

func TestMarshalAVCC(t *testing.T) {
	avcData, err := MarshalAVCC(SplitAnnexB(annexB(testSPS, testPPS)))
	require.NoError(t, err)

	// First NAL unit length (SPS)
	spsLength := uint32(avcData[0])<<24 | uint32(avcData[1])<<16 | uint32(avcData[2])<<8 | uint32(avcData[3])
	assert.Equal(t, uint32(10), spsLength)

	// Second NAL unit length (PPS)
	ppsOffset := 4 + int(spsLength)
	ppsLength := uint32(avcData[ppsOffset])<<24 | uint32(avcData[ppsOffset+1])<<16 | uint32(avcData[ppsOffset+2])<<8 | uint32(avcData[ppsOffset+3])
	assert.Equal(t, uint32(4), ppsLength)

	nalus, err := UnmarshalAVCC(avcData)
	require.NoError(t, err)
	assert.Equal(t, [][]byte{testSPS, testPPS}, nalus)
}

func TestUnmarshalAVCCRejectsTruncatedData(t *testing.T) {
	_, err := UnmarshalAVCC([]byte{0x00, 0x00, 0x00, 0x09, 0x65})
	require.Error(t, err)

	_, err = UnmarshalAVCC([]byte{0x00, 0x00})
	require.Error(t, err)
}

func TestParameterSets(t *testing.T) {
	var ps ParameterSets
	assert.False(t, ps.Complete())

	changed := ps.Observe([][]byte{testSPS, testPPS, testIDR})
	assert.False(t, changed)
	assert.True(t, ps.Complete())
	assert.Equal(t, testSPS, ps.SPS)

	assert.False(t, ps.Observe([][]byte{testSPS}))

	other := append([]byte{}, testSPS...)
	other[3] = 0x1f
	assert.True(t, ps.Observe([][]byte{other}))
}

func TestStripNonVCL(t *testing.T) {
	out := StripNonVCL([][]byte{testAUD, testSPS, testPPS, testIDR})
	require.Len(t, out, 1)
	assert.Equal(t, testIDR, out[0])
	assert.True(t, IsKeyFrame(out))
	assert.False(t, IsKeyFrame([][]byte{testP}))
}

func TestSplitAccessUnits(t *testing.T) {
	t.Run("without AUD", func(t *testing.T) {
		units := SplitAccessUnits(annexB(testSPS, testPPS, testIDR, testP, testP))
		require.Len(t, units, 3)
		assert.Len(t, units[0], 3)
		assert.Equal(t, [][]byte{testP}, units[1])
	})

	t.Run("with AUD", func(t *testing.T) {
		units := SplitAccessUnits(annexB(testAUD, testSPS, testPPS, testIDR, testIDR, testAUD, testP))
		require.Len(t, units, 2)
		assert.Len(t, units[0], 5)
		assert.Equal(t, [][]byte{testAUD, testP}, units[1])
	})
}
