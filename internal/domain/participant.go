// Package domain contains entity without logic, just meta-data
package domain

import (
	"errors"

	"github.com/google/uuid"
)

const MaxNameLen = 36

var (
	ErrNameTooLong = errors.New("name too long")
	ErrNameEmpty   = errors.New("name empty")
)

// PeerID identifies one live signaling connection. It is never reused.
type PeerID string

func NewPeerID() PeerID {
	return PeerID(uuid.NewString())
}

// Participant is what other members of a room see about a peer.
type Participant struct {
	ID         PeerID `json:"peerId"`
	Name       string `json:"name"`
	IsTrainer  bool   `json:"isTrainer"`
	ProfilePic string `json:"profilePic,omitempty"`
}

// NewParticipant is a tiny helper to avoid ad-hoc struct literals in adapters.
func NewParticipant(id PeerID, name string, isTrainer bool, profilePic string) (*Participant, error) {
	p := &Participant{ID: id, IsTrainer: isTrainer, ProfilePic: profilePic}
	if err := p.SetName(name); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Participant) SetName(name string) error {
	if len(name) == 0 {
		return ErrNameEmpty
	}
	if len(name) > MaxNameLen {
		return ErrNameTooLong
	}
	p.Name = name
	return nil
}
