package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

// AcquireLock inserts the per-auction lock row. The primary key on
// auction_id makes the insert the mutex: a second acquirer gets a unique
// violation, surfaced as ErrLockHeld.
func (s *service) AcquireLock(ctx context.Context, lock types.BidLock) error {
	query := `
        INSERT INTO bid_locks (auction_id, bidder_id, bid_id, locked_at, expires_at)
        VALUES ($1, $2, $3, now(), $4)`
	_, err := s.db.ExecContext(ctx, query, lock.AuctionID, lock.BidderID, lock.BidID, lock.ExpiresAt)
	if isUniqueViolation(err) {
		return apperrors.ErrLockHeld
	}
	if err != nil {
		return fmt.Errorf("error acquiring bid lock: %w", err)
	}
	log.Debugf("Lock acquired for auction %s by bidder %s", lock.AuctionID, lock.BidderID)
	return nil
}

// ReleaseLock deletes the lock row. Releasing a lock that does not exist is
// a no-op, so compensation paths can call it unconditionally.
func (s *service) ReleaseLock(ctx context.Context, auctionID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bid_locks WHERE auction_id = $1`, auctionID)
	if err != nil {
		return fmt.Errorf("error releasing bid lock: %w", err)
	}
	log.Debugf("Lock released for auction %s", auctionID)
	return nil
}

func (s *service) GetLock(ctx context.Context, auctionID string) (types.BidLock, error) {
	var lock types.BidLock
	err := s.db.QueryRowContext(ctx,
		`SELECT auction_id, bidder_id, bid_id, locked_at, expires_at
         FROM bid_locks WHERE auction_id = $1`, auctionID).
		Scan(&lock.AuctionID, &lock.BidderID, &lock.BidID, &lock.LockedAt, &lock.ExpiresAt)
	if err == sql.ErrNoRows {
		return types.BidLock{}, apperrors.ErrNotFound
	}
	if err != nil {
		return types.BidLock{}, fmt.Errorf("error getting bid lock: %w", err)
	}
	return lock, nil
}

// ExpiredLocks returns locks whose TTL has elapsed. The sweeper cancels the
// associated bid and releases each one.
func (s *service) ExpiredLocks(ctx context.Context, now time.Time) ([]types.BidLock, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT auction_id, bidder_id, bid_id, locked_at, expires_at
         FROM bid_locks WHERE expires_at <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("error querying expired locks: %w", err)
	}
	defer rows.Close()

	var locks []types.BidLock
	for rows.Next() {
		var lock types.BidLock
		if err := rows.Scan(&lock.AuctionID, &lock.BidderID, &lock.BidID, &lock.LockedAt, &lock.ExpiresAt); err != nil {
			return nil, fmt.Errorf("error scanning bid lock: %w", err)
		}
		locks = append(locks, lock)
	}
	return locks, rows.Err()
}
