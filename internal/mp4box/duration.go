// Package mp4box contains ISO-BMFF helpers shared by the writer and the merger.
package mp4box

import "time"

// DurationGoToMp4 converts a Go duration into track timescale units.
func DurationGoToMp4(v time.Duration, timeScale uint32) int64 {
	timeScale64 := int64(timeScale)
	secs := v / time.Second
	dec := v % time.Second
	return int64(secs)*timeScale64 + int64(dec)*timeScale64/int64(time.Second)
}

// DurationMp4ToGo converts track timescale units into a Go duration.
func DurationMp4ToGo(v int64, timeScale uint32) time.Duration {
	timeScale64 := int64(timeScale)
	secs := v / timeScale64
	dec := v % timeScale64
	return time.Duration(secs)*time.Second + time.Duration(dec)*time.Second/time.Duration(timeScale64)
}
