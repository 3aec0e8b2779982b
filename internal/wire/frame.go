package wire

import (
	"encoding/binary"
	"fmt"
	"io"
)

// FrameHeaderLen is the size of the length prefix placed before every frame
// payload on the wire: a little-endian u32 byte count.
const FrameHeaderLen = 4

// ReadFrame reads one length-prefixed frame from src into a freshly allocated
// buffer, rejecting payloads larger than MaxFrameLength.
func ReadFrame(src io.Reader) ([]byte, error) {
	var hdr [FrameHeaderLen]byte
	if _, err := io.ReadFull(src, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.LittleEndian.Uint32(hdr[:])
	if n > MaxFrameLength {
		return nil, protoErr("frame", fmt.Errorf("frame length %d exceeds cap %d", n, MaxFrameLength))
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(src, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteFrame writes payload to dst prefixed with its little-endian u32
// length.
func WriteFrame(dst io.Writer, payload []byte) error {
	if len(payload) > MaxFrameLength {
		return protoErr("frame", fmt.Errorf("frame length %d exceeds cap %d", len(payload), MaxFrameLength))
	}
	var hdr [FrameHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[:], uint32(len(payload)))
	if _, err := dst.Write(hdr[:]); err != nil {
		return err
	}
	_, err := dst.Write(payload)
	return err
}
