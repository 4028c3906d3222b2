package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/dkeye/meetrelay/internal/domain"
)

// Datagram kinds.
const (
	KindVideo byte = 'V'
	KindAudio byte = 'A'
	KindInit  byte = 'I'
)

const (
	DatagramHeaderSize = 3
	MaxSenderIDLen     = 255
	// MaxDatagramSize is the largest UDP payload over IPv4.
	MaxDatagramSize = 65507
)

var (
	ErrShortDatagram    = errors.New("datagram too short")
	ErrBadSenderID      = errors.New("bad sender id")
	ErrUnknownKind      = errors.New("unknown datagram kind")
	ErrDatagramTooLarge = errors.New("datagram exceeds size limit")
	ErrOddPCM           = errors.New("pcm payload has odd length")
)

// Datagram is one parsed media packet. Payload aliases the read buffer.
type Datagram struct {
	Kind    byte
	Sender  domain.PeerID
	Payload []byte
}

// ParseDatagram splits [kind][2-byte BE id length][id][payload].
func ParseDatagram(b []byte) (Datagram, error) {
	if len(b) < DatagramHeaderSize {
		return Datagram{}, fmt.Errorf("%w: %d bytes", ErrShortDatagram, len(b))
	}
	d := Datagram{Kind: b[0]}
	switch d.Kind {
	case KindVideo, KindAudio, KindInit:
	default:
		return Datagram{}, fmt.Errorf("%w: 0x%02x", ErrUnknownKind, d.Kind)
	}
	n := int(binary.BigEndian.Uint16(b[1:3]))
	if n == 0 || n > MaxSenderIDLen || DatagramHeaderSize+n > len(b) {
		return Datagram{}, fmt.Errorf("%w: length %d of %d", ErrBadSenderID, n, len(b))
	}
	id := b[DatagramHeaderSize : DatagramHeaderSize+n]
	if !utf8.Valid(id) {
		return Datagram{}, fmt.Errorf("%w: not utf-8", ErrBadSenderID)
	}
	d.Sender = domain.PeerID(id)
	d.Payload = b[DatagramHeaderSize+n:]
	return d, nil
}

// AppendDatagram appends a datagram carrying sender to dst. The result must
// fit in one UDP payload; nothing is fragmented.
func AppendDatagram(dst []byte, kind byte, sender domain.PeerID, payload []byte) ([]byte, error) {
	if len(sender) > MaxSenderIDLen {
		return dst, fmt.Errorf("%w: id length %d", ErrBadSenderID, len(sender))
	}
	size := DatagramHeaderSize + len(sender) + len(payload)
	if size > MaxDatagramSize {
		return dst, fmt.Errorf("%w: %d > %d", ErrDatagramTooLarge, size, MaxDatagramSize)
	}
	dst = append(dst, kind)
	dst = binary.BigEndian.AppendUint16(dst, uint16(len(sender)))
	dst = append(dst, sender...)
	return append(dst, payload...), nil
}

// AppendMixedAudio appends a personalised mix: an 'A' header with an empty
// sender id followed by little-endian PCM.
func AppendMixedAudio(dst []byte, samples []int16) ([]byte, error) {
	size := DatagramHeaderSize + 2*len(samples)
	if size > MaxDatagramSize {
		return dst, fmt.Errorf("%w: %d > %d", ErrDatagramTooLarge, size, MaxDatagramSize)
	}
	dst = append(dst, KindAudio, 0, 0)
	for _, s := range samples {
		dst = binary.LittleEndian.AppendUint16(dst, uint16(s))
	}
	return dst, nil
}

// DecodePCM reads little-endian 16-bit samples. Empty or odd-length payloads
// are rejected.
func DecodePCM(b []byte) ([]int16, error) {
	if len(b) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrShortDatagram)
	}
	if len(b)%2 != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrOddPCM, len(b))
	}
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(binary.LittleEndian.Uint16(b[2*i:]))
	}
	return out, nil
}
