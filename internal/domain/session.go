package domain

import (
	"errors"
	"strings"
)

const (
	CodeLength   = 6
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

var ErrUnknownSession = errors.New("unknown session")

// SessionCode is the short meeting identifier peers type to join.
type SessionCode string

// CodeSource returns a uniformly distributed integer in [0, n).
type CodeSource func(n int) int

// NewSessionCode draws CodeLength symbols from CodeAlphabet. Callers check
// the result against the active sessions and draw again on collision.
func NewSessionCode(src CodeSource) SessionCode {
	var b [CodeLength]byte
	for i := range b {
		b[i] = CodeAlphabet[src(len(CodeAlphabet))]
	}
	return SessionCode(b[:])
}

// NormalizeCode upper-cases user input so "ab12cd" finds "AB12CD".
func NormalizeCode(s string) SessionCode {
	return SessionCode(strings.ToUpper(strings.TrimSpace(s)))
}

func (c SessionCode) Valid() bool {
	if len(c) != CodeLength {
		return false
	}
	for i := 0; i < len(c); i++ {
		if !strings.ContainsRune(CodeAlphabet, rune(c[i])) {
			return false
		}
	}
	return true
}
