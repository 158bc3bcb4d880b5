package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/nats-io/nats.go"

	"github.com/goodbids/auction-server/internal/database"
	"github.com/goodbids/auction-server/pkg/types"
)

// Consumer subscribes to bid events and persists them to the audit table.
type Consumer struct {
	conn *nats.Conn
	sub  *nats.Subscription
	db   database.Service
}

func NewConsumer(natsURL string, db database.Service) (*Consumer, error) {
	conn, err := nats.Connect(natsURL)
	if err != nil {
		return nil, fmt.Errorf("error connecting to NATS: %w", err)
	}
	return &Consumer{conn: conn, db: db}, nil
}

// Start subscribes to all auction subjects and blocks until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	sub, err := c.conn.Subscribe(subjectPrefix+"*", func(msg *nats.Msg) {
		c.handleMessage(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("error subscribing to bid events: %w", err)
	}
	c.sub = sub
	log.Infof("Archiver subscribed to %s*", subjectPrefix)

	<-ctx.Done()
	return nil
}

func (c *Consumer) handleMessage(ctx context.Context, msg *nats.Msg) {
	var event types.BidEvent
	if err := json.Unmarshal(msg.Data, &event); err != nil {
		log.Errorf("Discarding malformed bid event: %v", err)
		return
	}

	dbCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := c.db.InsertBidEvent(dbCtx, event); err != nil {
		log.Errorf("Could not persist bid event %s: %v", event.EventID, err)
		return
	}
	log.Debugf("Archived bid event %s (auction %s, bid %s, %s)",
		event.EventID, event.AuctionID, event.BidID, event.Status)
}

func (c *Consumer) Close() error {
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.conn.Close()
	return nil
}
