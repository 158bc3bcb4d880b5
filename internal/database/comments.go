package database

import (
	"context"
	"fmt"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

func (s *service) CreateComment(ctx context.Context, comment types.Comment) (types.Comment, error) {
	query := `
        INSERT INTO comments (auction_id, user_id, user_name, body)
        VALUES ($1, $2, $3, $4)
        RETURNING id, auction_id, user_id, user_name, body, created_at`
	var created types.Comment
	err := s.db.QueryRowContext(ctx, query,
		comment.AuctionID, comment.UserID, comment.UserName, comment.Body).
		Scan(&created.ID, &created.AuctionID, &created.UserID, &created.UserName, &created.Body, &created.CreatedAt)
	if err != nil {
		return types.Comment{}, apperrors.Wrap(err, "error creating comment")
	}
	return created, nil
}

func (s *service) CommentsForAuction(ctx context.Context, auctionID string) ([]types.Comment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, auction_id, user_id, user_name, body, created_at
         FROM comments WHERE auction_id = $1 ORDER BY created_at ASC`,
		auctionID)
	if err != nil {
		return nil, fmt.Errorf("error getting comments for auction: %w", err)
	}
	defer rows.Close()

	var comments []types.Comment
	for rows.Next() {
		var c types.Comment
		if err := rows.Scan(&c.ID, &c.AuctionID, &c.UserID, &c.UserName, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// InsertBidEvent appends to the audit table. The archiver calls this when it
// consumes bid events off the queue; duplicate deliveries are absorbed by the
// primary key on event_id.
func (s *service) InsertBidEvent(ctx context.Context, event types.BidEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bid_events (event_id, auction_id, bid_id, bidder_id, amount, status, ts)
         VALUES ($1, $2, $3, $4, $5, $6, $7)
         ON CONFLICT (event_id) DO NOTHING`,
		event.EventID, event.AuctionID, event.BidID, event.BidderID, event.Amount, event.Status, event.Timestamp)
	if err != nil {
		return fmt.Errorf("error inserting bid event: %w", err)
	}
	return nil
}
