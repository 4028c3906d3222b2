package app

type BackpressureAction int

const (
	DropFrame BackpressureAction = iota
	KickMember
)

// Policy decides what happens to a peer whose send queue is full.
type Policy interface {
	OnBackPressure(p Peer) BackpressureAction
}

// SimplePolicy drops the message for the slow peer, or closes its
// connection when Kick is set.
type SimplePolicy struct {
	Kick bool
}

func (s SimplePolicy) OnBackPressure(Peer) BackpressureAction {
	if s.Kick {
		return KickMember
	}
	return DropFrame
}
