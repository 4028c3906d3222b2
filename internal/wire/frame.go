// Package wire holds the byte-level formats of both channels: length-prefixed
// control frames, the message envelope and its encodings, and media datagrams.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	FrameHeaderSize = 4
	// MaxFrameSize is the hard cap on a control payload (10 MiB).
	MaxFrameSize = 10 * 1024 * 1024
)

var ErrFrameTooLarge = errors.New("frame exceeds size limit")

// ReadFrame reads one [4-byte big-endian length][payload] frame. A length
// above limit is rejected before any payload byte is read; limit <= 0 or
// above MaxFrameSize means MaxFrameSize.
func ReadFrame(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 || limit > MaxFrameSize {
		limit = MaxFrameSize
	}
	var hdr [FrameHeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	n := binary.BigEndian.Uint32(hdr[:])
	if uint64(n) > uint64(limit) {
		return nil, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, limit)
	}
	payload := make([]byte, n)
	if _, err := io.ReadFull(r, payload); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return payload, nil
}

// AppendFrame appends the framed payload to dst.
func AppendFrame(dst, payload []byte) ([]byte, error) {
	if len(payload) > MaxFrameSize {
		return dst, fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, len(payload), MaxFrameSize)
	}
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(payload)))
	return append(dst, payload...), nil
}

// WriteFrame writes header and payload with a single Write so concurrent
// writers on an unsynchronised stream cannot interleave halves of frames.
func WriteFrame(w io.Writer, payload []byte) error {
	buf, err := AppendFrame(make([]byte, 0, FrameHeaderSize+len(payload)), payload)
	if err != nil {
		return err
	}
	_, err = w.Write(buf)
	return err
}
