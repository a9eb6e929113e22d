package scanner

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

// StreamInfo is the subset of a FLAC file's STREAMINFO block the scanner
// needs. Parsed directly from the first 42 bytes of the file rather than
// through a full meta.Block decode, matching cmd/ingest's readFLACInfo —
// the scanner touches tens of thousands of files per run and a full parse
// of every metadata block would be wasted work when only streaminfo is
// wanted.
type StreamInfo struct {
	SampleRate    uint32
	BitsPerSample uint8
	Channels      uint8
	NumSamples    uint64
}

// readStreamInfo reads and validates the STREAMINFO block from an
// already-open FLAC file positioned at the start.
func readStreamInfo(f *os.File) (StreamInfo, error) {
	var si StreamInfo
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return si, fmt.Errorf("seek: %w", err)
	}
	// 4-byte "fLaC" marker + 4-byte block header + 34-byte STREAMINFO body.
	buf := make([]byte, 42)
	if _, err := io.ReadFull(f, buf); err != nil {
		return si, fmt.Errorf("read header: %w", err)
	}
	if string(buf[0:4]) != "fLaC" {
		return si, fmt.Errorf("missing fLaC signature")
	}
	blockType := buf[4] & 0x7f
	if blockType != 0 {
		return si, fmt.Errorf("first metadata block is not STREAMINFO (type %d)", blockType)
	}
	length := binary.BigEndian.Uint32([]byte{0, buf[5], buf[6], buf[7]})
	if length != 34 {
		return si, fmt.Errorf("unexpected STREAMINFO length %d", length)
	}
	body := buf[8:42]
	// body[0:2] min block size, [2:4] max block size, [4:7] min frame size,
	// [7:10] max frame size, then a packed 64-bit field:
	// 20 bits sample rate | 3 bits channels-1 | 5 bits bits-1 | 36 bits sample count.
	packed := binary.BigEndian.Uint64(body[10:18])
	si.SampleRate = uint32(packed >> 44)
	si.Channels = uint8((packed>>41)&0x7) + 1
	si.BitsPerSample = uint8((packed>>36)&0x1f) + 1
	si.NumSamples = packed & 0xf_ffff_ffff
	if si.SampleRate == 0 {
		return si, fmt.Errorf("invalid sample rate 0")
	}
	return si, nil
}
