// Package domain contains entities without logic, just meta-data
package domain

import (
	"errors"
	"net"
	"strings"
)

const MaxUsernameLen = 64

var (
	ErrUsernameTooLong = errors.New("username too long")
	ErrUsernameEmpty   = errors.New("username empty")
)

// PeerID identifies one connected participant for the lifetime of its
// reliable connection. It is unique process-wide.
type PeerID string

// Participant is one roster entry as peers see it.
type Participant struct {
	ID       PeerID `json:"client_id"`
	Username string `json:"username"`
	IsHost   bool   `json:"is_host"`
}

// NormalizeUsername trims the display name and enforces its bounds.
func NormalizeUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if len(username) == 0 {
		return "", ErrUsernameEmpty
	}
	if len(username) > MaxUsernameLen {
		return "", ErrUsernameTooLong
	}
	return username, nil
}

// NewPeerID derives the identifier from the display name and the remote
// address of the reliable connection, e.g. "alice_10.0.0.7_53122".
func NewPeerID(username string, remote net.Addr) PeerID {
	if remote == nil {
		return PeerID(username)
	}
	host, port, err := net.SplitHostPort(remote.String())
	if err != nil {
		return PeerID(username + "_" + remote.String())
	}
	return PeerID(username + "_" + host + "_" + port)
}
