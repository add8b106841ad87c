package h264

// ParameterSets holds the latest SPS and PPS seen in a stream.
type ParameterSets struct {
	SPS []byte
	PPS []byte
}

// Complete reports whether both parameter sets are known.
func (p *ParameterSets) Complete() bool {
	return len(p.SPS) > 0 && len(p.PPS) > 0
}

// Observe records any SPS/PPS among nalus. It returns true when a parameter
// set differs from the stored one.
func (p *ParameterSets) Observe(nalus [][]byte) bool {
	changed := false
	for _, nalu := range nalus {
		switch TypeOf(nalu) {
		case NALUnitTypeSPS:
			if string(p.SPS) != string(nalu) {
				changed = changed || len(p.SPS) > 0
				p.SPS = append([]byte(nil), nalu...)
			}
		case NALUnitTypePPS:
			if string(p.PPS) != string(nalu) {
				changed = changed || len(p.PPS) > 0
				p.PPS = append([]byte(nil), nalu...)
			}
		}
	}
	return changed
}

// StripNonVCL drops NAL units that do not belong in an MP4 sample:
// parameter sets (carried in the avcC box) and access unit delimiters.
func StripNonVCL(nalus [][]byte) [][]byte {
	out := nalus[:0:0]
	for _, nalu := range nalus {
		switch TypeOf(nalu) {
		case NALUnitTypeSPS, NALUnitTypePPS, NALUnitTypeAUD, NALUnitTypeFiller:
			continue
		}
		out = append(out, nalu)
	}
	return out
}

// SplitAccessUnits groups the NAL units of an elementary stream into access
// units. A new access unit starts at an AUD. Until the first AUD is seen,
// any unit that follows a VCL unit starts a new access unit, so streams with
// multiple slices per picture must carry AUDs.
func SplitAccessUnits(stream []byte) [][][]byte {
	var (
		units   [][][]byte
		cur     [][]byte
		sawVCL  bool
		usesAUD bool
	)

	flush := func() {
		if len(cur) > 0 {
			units = append(units, cur)
		}
		cur = nil
		sawVCL = false
	}

	for _, nalu := range SplitAnnexB(stream) {
		typ := TypeOf(nalu)

		switch {
		case typ == NALUnitTypeAUD:
			usesAUD = true
			flush()
		case sawVCL && !usesAUD:
			flush()
		}

		cur = append(cur, nalu)
		if typ.IsVCL() {
			sawVCL = true
		}
	}
	flush()

	return units
}
