package orch

import (
	"github.com/dkeye/meetrelay/internal/domain"
	"github.com/dkeye/meetrelay/internal/wire"
)

// File relay: offers fan out, everything else is forwarded to one peer of
// the same session. Nothing is buffered or validated.

func (o *Orchestrator) FileOffer(id domain.PeerID, m *wire.Message) {
	p, s, ok := o.member(id)
	if !ok {
		return
	}
	o.broadcast(s, &wire.Message{
		Type:     wire.TypeFileOffer,
		SenderID: id,
		Username: p.Username,
		FileID:   m.FileID,
		Filename: m.Filename,
		Filesize: m.Filesize,
	}, id)
}

// FileRequest asks the offering peer (m.SenderID) to start streaming.
func (o *Orchestrator) FileRequest(id domain.PeerID, m *wire.Message) {
	p, s, ok := o.member(id)
	if !ok {
		return
	}
	o.unicast(s, m.SenderID, &wire.Message{
		Type:         wire.TypeFileRequest,
		DownloaderID: id,
		Username:     p.Username,
		FileID:       m.FileID,
	})
}

// FileChunk and FileEnd go to m.RecipientID, stamped with the true sender.
func (o *Orchestrator) FileChunk(id domain.PeerID, m *wire.Message) {
	o.forwardFile(id, m)
}

func (o *Orchestrator) FileEnd(id domain.PeerID, m *wire.Message) {
	o.forwardFile(id, m)
}

func (o *Orchestrator) forwardFile(id domain.PeerID, m *wire.Message) {
	_, s, ok := o.member(id)
	if !ok {
		return
	}
	o.unicast(s, m.RecipientID, &wire.Message{
		Type:        m.Type,
		SenderID:    id,
		RecipientID: m.RecipientID,
		FileID:      m.FileID,
		Data:        m.Data,
	})
}
