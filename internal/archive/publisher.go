// Package archive carries terminal bid events over NATS into the audit
// table. Publishing is best-effort on the write path; the consumer absorbs
// duplicate deliveries via the event ID.
package archive

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"

	"github.com/goodbids/auction-server/pkg/types"
)

const subjectPrefix = "bid.events."

// Publisher sends bid events to NATS, one subject per auction.
type Publisher struct {
	conn *nats.Conn
}

func NewPublisher(natsURL string) (*Publisher, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

func (p *Publisher) PublishBidEvent(_ context.Context, event types.BidEvent) error {
	raw, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("error marshalling bid event: %w", err)
	}
	if err := p.conn.Publish(subjectPrefix+event.AuctionID, raw); err != nil {
		return fmt.Errorf("error publishing bid event: %w", err)
	}
	return nil
}

func (p *Publisher) Close() {
	p.conn.Close()
}
