package mp4box

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/bluenviron/mediacommon/v2/pkg/formats/fmp4"
)

func readBoxHeader(r io.Reader) (uint32, [4]byte, error) {
	var buf [8]byte
	var typ [4]byte

	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, typ, err
	}

	copy(typ[:], buf[4:])
	size := uint32(buf[0])<<24 | uint32(buf[1])<<16 | uint32(buf[2])<<8 | uint32(buf[3])
	return size, typ, nil
}

// ReadInit reads the ftyp and moov boxes at the start of r and decodes them.
// It returns the offset of the first byte after moov.
func ReadInit(r io.ReadSeeker) (*fmp4.Init, int64, error) {
	// find ftyp

	ftypSize, typ, err := readBoxHeader(r)
	if err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(typ[:], []byte{'f', 't', 'y', 'p'}) {
		return nil, 0, fmt.Errorf("ftyp box not found")
	}

	_, err = r.Seek(int64(ftypSize), io.SeekStart)
	if err != nil {
		return nil, 0, err
	}

	// find moov

	moovSize, typ, err := readBoxHeader(r)
	if err != nil {
		return nil, 0, err
	}
	if !bytes.Equal(typ[:], []byte{'m', 'o', 'o', 'v'}) {
		return nil, 0, fmt.Errorf("moov box not found")
	}

	_, err = r.Seek(0, io.SeekStart)
	if err != nil {
		return nil, 0, err
	}

	buf := make([]byte, int64(ftypSize)+int64(moovSize))
	_, err = io.ReadFull(r, buf)
	if err != nil {
		return nil, 0, err
	}

	var init fmp4.Init
	err = init.Unmarshal(bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}

	return &init, int64(len(buf)), nil
}

// ReadFragmented decodes a fragmented MP4 file made of an init section
// followed by zero or more moof/mdat pairs.
func ReadFragmented(path string) (*fmp4.Init, fmp4.Parts, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	init, end, err := ReadInit(f)
	if err != nil {
		return nil, nil, fmt.Errorf("read init: %w", err)
	}

	_, err = f.Seek(end, io.SeekStart)
	if err != nil {
		return nil, nil, err
	}

	rest, err := io.ReadAll(f)
	if err != nil {
		return nil, nil, err
	}

	if len(rest) == 0 {
		return init, nil, nil
	}

	var parts fmp4.Parts
	err = parts.Unmarshal(rest)
	if err != nil {
		return nil, nil, fmt.Errorf("read parts: %w", err)
	}

	return init, parts, nil
}
