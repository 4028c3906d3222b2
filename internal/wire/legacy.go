package wire

import (
	"bufio"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"
)

// MaxUnframedSize bounds a handshake sent without a length prefix.
const MaxUnframedSize = 64 * 1024

var ErrNotUnframed = errors.New("not an unframed message")

// IsUnframedStart reports whether b opens a bare JSON object or msgpack
// map. Neither can begin a legal length prefix: as the top byte of a
// 4-byte length both exceed MaxFrameSize.
func IsUnframedStart(b byte) bool {
	return b == '{' || (b >= 0x80 && b <= 0x8f) || b == 0xde || b == 0xdf
}

// ReadUnframed reads exactly one bare JSON object or msgpack map from r.
// Older peers send their create/join request this way.
func ReadUnframed(r *bufio.Reader) ([]byte, error) {
	first, err := r.Peek(1)
	if err != nil {
		return nil, err
	}
	switch {
	case first[0] == '{':
		return readJSONObject(r)
	case IsUnframedStart(first[0]):
		var m Message
		lr := &limitedByteReader{r: r, n: MaxUnframedSize}
		if err := codec.NewDecoder(lr, Msgpack.(msgpackCodec).h).Decode(&m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return Msgpack.Marshal(&m)
	}
	return nil, ErrNotUnframed
}

func readJSONObject(r *bufio.Reader) ([]byte, error) {
	var (
		out      []byte
		depth    int
		inString bool
		escaped  bool
	)
	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		out = append(out, b)
		if len(out) > MaxUnframedSize {
			return nil, fmt.Errorf("%w: unframed message over %d bytes", ErrFrameTooLarge, MaxUnframedSize)
		}
		switch {
		case escaped:
			escaped = false
		case inString && b == '\\':
			escaped = true
		case b == '"':
			inString = !inString
		case inString:
		case b == '{' || b == '[':
			depth++
		case b == '}' || b == ']':
			depth--
			if depth == 0 {
				return out, nil
			}
		}
	}
}

type limitedByteReader struct {
	r *bufio.Reader
	n int
}

func (l *limitedByteReader) Read(p []byte) (int, error) {
	if l.n <= 0 {
		return 0, ErrFrameTooLarge
	}
	if len(p) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= n
	return n, err
}

func (l *limitedByteReader) ReadByte() (byte, error) {
	if l.n <= 0 {
		return 0, ErrFrameTooLarge
	}
	b, err := l.r.ReadByte()
	if err == nil {
		l.n--
	}
	return b, err
}

func (l *limitedByteReader) UnreadByte() error {
	if err := l.r.UnreadByte(); err != nil {
		return err
	}
	l.n++
	return nil
}
