package mp4box

import (
	"bytes"
	"fmt"
	"io"

	gomp4 "github.com/abema/go-mp4"

	"github.com/babelcloud/screenrec/internal/media"
)

// ReadSeekWriterAt is satisfied by *os.File.
type ReadSeekWriterAt interface {
	io.ReadSeeker
	io.WriterAt
}

var tkhdPath = gomp4.BoxPath{gomp4.BoxTypeMoov(), gomp4.BoxTypeTrak(), gomp4.BoxTypeTkhd()}

// ReadTrackMatrices returns the display matrix of every track, keyed by track ID.
func ReadTrackMatrices(r io.ReadSeeker) (map[int]media.Transform, error) {
	_, err := r.Seek(0, io.SeekStart)
	if err != nil {
		return nil, err
	}

	boxes, err := gomp4.ExtractBoxWithPayload(r, nil, tkhdPath)
	if err != nil {
		return nil, err
	}

	out := make(map[int]media.Transform, len(boxes))
	for _, b := range boxes {
		tkhd, ok := b.Payload.(*gomp4.Tkhd)
		if !ok {
			continue
		}
		out[int(tkhd.TrackID)] = media.Transform(tkhd.Matrix)
	}
	return out, nil
}

// PatchTrackMatrix rewrites the tkhd matrix of the given track in place.
// The box keeps its size, so chunk offsets stay valid.
func PatchTrackMatrix(f ReadSeekWriterAt, trackID int, m media.Transform) error {
	_, err := f.Seek(0, io.SeekStart)
	if err != nil {
		return err
	}

	boxes, err := gomp4.ExtractBoxWithPayload(f, nil, tkhdPath)
	if err != nil {
		return err
	}

	for _, b := range boxes {
		tkhd, ok := b.Payload.(*gomp4.Tkhd)
		if !ok || int(tkhd.TrackID) != trackID {
			continue
		}

		tkhd.Matrix = m

		var buf bytes.Buffer
		_, err = gomp4.Marshal(&buf, tkhd, b.Info.Context)
		if err != nil {
			return err
		}

		if uint64(buf.Len()) != b.Info.Size-b.Info.HeaderSize {
			return fmt.Errorf("tkhd size changed from %d to %d", b.Info.Size-b.Info.HeaderSize, buf.Len())
		}

		_, err = f.WriteAt(buf.Bytes(), int64(b.Info.Offset+b.Info.HeaderSize))
		return err
	}

	return fmt.Errorf("track %d not found", trackID)
}
