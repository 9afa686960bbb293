package nats

import (
	"fmt"
	"time"

	"github.com/brojonat/txexplorer/service/explorer"
)

// FeedMessage is a live feed update published to NATS. It is published to
// the subject "feed.{network}.{type}" in JetStream. Exactly one of
// Transaction and Block is set.
type FeedMessage struct {
	Type    string           `json:"type"`
	Network explorer.Network `json:"network"`

	Transaction *explorer.LiveTransaction `json:"transaction,omitempty"`
	Block       *explorer.LiveBlock       `json:"block,omitempty"`

	// Metadata
	PublishedAt time.Time `json:"published_at"`
}

// FromUpdate converts an applied feed update to a FeedMessage.
func FromUpdate(u explorer.FeedUpdate) *FeedMessage {
	return &FeedMessage{
		Type:        u.Type,
		Network:     u.Network(),
		Transaction: u.Transaction,
		Block:       u.Block,
		PublishedAt: time.Now().UTC(),
	}
}

// Subject returns the subject the message is published to.
func (m *FeedMessage) Subject() string {
	return Subject(m.Network, m.Type)
}

// ID identifies the carried entry, used as the JetStream message id.
func (m *FeedMessage) ID() string {
	switch {
	case m.Transaction != nil:
		return fmt.Sprintf("%s-tx-%s", m.Network, m.Transaction.TxID)
	case m.Block != nil:
		return fmt.Sprintf("%s-block-%s", m.Network, m.Block.Hash)
	default:
		return ""
	}
}

// Subject builds "feed.{network}.{type}". An empty network or type becomes
// the "*" wildcard, which is how subscribers filter.
func Subject(network explorer.Network, eventType string) string {
	n, t := string(network), eventType
	if n == "" {
		n = "*"
	}
	if t == "" {
		t = "*"
	}
	return fmt.Sprintf("feed.%s.%s", n, t)
}
