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

const auctionColumns = `
    id, charity_id, item_id, name, description,
    opening_bid_value, high_bid_value, bid_increment, currency, status,
    top_bid_duration, latest_bidder_id, latest_bid_timestamptz,
    bidders_count, fee_percent, created_at, updated_at`

func scanAuction(row interface{ Scan(...any) error }) (types.Auction, error) {
	var a types.Auction
	err := row.Scan(
		&a.ID,
		&a.CharityID,
		&a.ItemID,
		&a.Name,
		&a.Description,
		&a.OpeningBidValue,
		&a.HighBidValue,
		&a.BidIncrement,
		&a.Currency,
		&a.Status,
		&a.TopBidDuration,
		&a.LatestBidderID,
		&a.LatestBidTimestamp,
		&a.BiddersCount,
		&a.FeePercent,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	return a, err
}

func (s *service) CreateAuction(ctx context.Context, auction types.Auction) (types.Auction, error) {
	query := `
        INSERT INTO auctions
            (charity_id, item_id, name, description, opening_bid_value,
             bid_increment, currency, status, top_bid_duration, fee_percent)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
        RETURNING ` + auctionColumns
	row := s.db.QueryRowContext(ctx, query,
		auction.CharityID,
		auction.ItemID,
		auction.Name,
		auction.Description,
		auction.OpeningBidValue,
		auction.BidIncrement,
		auction.Currency,
		auction.Status,
		auction.TopBidDuration,
		auction.FeePercent,
	)
	created, err := scanAuction(row)
	if err != nil {
		return types.Auction{}, apperrors.Wrap(err, "error creating auction")
	}
	return created, nil
}

func (s *service) GetAuctionByID(ctx context.Context, auctionID string) (types.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1`
	auction, err := scanAuction(s.db.QueryRowContext(ctx, query, auctionID))
	if err == sql.ErrNoRows {
		return types.Auction{}, apperrors.ErrNotFound
	}
	if err != nil {
		return types.Auction{}, fmt.Errorf("error getting auction by id: %w", err)
	}
	return auction, nil
}

func (s *service) ListAuctions(ctx context.Context, status string) ([]types.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1`
		args = append(args, status)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("error listing auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating over auctions: %w", err)
	}
	return auctions, nil
}

// UpdateAuction writes the admin-editable fields. Bid state is never touched
// here; that path goes through ApplyBidTx.
func (s *service) UpdateAuction(ctx context.Context, auction types.Auction) (types.Auction, error) {
	query := `
        UPDATE auctions
        SET name = $1, description = $2, opening_bid_value = $3, bid_increment = $4,
            currency = $5, top_bid_duration = $6, fee_percent = $7, updated_at = now()
        WHERE id = $8
        RETURNING ` + auctionColumns
	row := s.db.QueryRowContext(ctx, query,
		auction.Name,
		auction.Description,
		auction.OpeningBidValue,
		auction.BidIncrement,
		auction.Currency,
		auction.TopBidDuration,
		auction.FeePercent,
		auction.ID,
	)
	updated, err := scanAuction(row)
	if err == sql.ErrNoRows {
		return types.Auction{}, apperrors.ErrNotFound
	}
	if err != nil {
		return types.Auction{}, apperrors.Wrap(err, "error updating auction")
	}
	return updated, nil
}

func (s *service) SetAuctionStatus(ctx context.Context, auctionID, status string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE auctions SET status = $1, updated_at = now() WHERE id = $2`,
		status, auctionID)
	if err != nil {
		return fmt.Errorf("error setting auction status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrNotFound
	}
	log.Debugf("Auction %s status set to %s", auctionID, status)
	return nil
}

// UnchallengedAuctions returns active auctions whose high bid has stood
// unchallenged for top_bid_duration. These are due to be ended.
func (s *service) UnchallengedAuctions(ctx context.Context, now time.Time) ([]types.Auction, error) {
	query := `SELECT ` + auctionColumns + `
        FROM auctions
        WHERE status = 'ACTIVE'
          AND latest_bid_timestamptz IS NOT NULL
          AND latest_bid_timestamptz + make_interval(secs => top_bid_duration) <= $1`
	rows, err := s.db.QueryContext(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("error querying unchallenged auctions: %w", err)
	}
	defer rows.Close()

	var auctions []types.Auction
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning auction: %w", err)
		}
		auctions = append(auctions, auction)
	}
	return auctions, rows.Err()
}

// GetAuctionByIDTx retrieves an auction by its ID within a transaction,
// locking the row for the duration.
func (s *service) GetAuctionByIDTx(ctx context.Context, tx *sql.Tx, auctionID string) (types.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = $1 FOR UPDATE`
	auction, err := scanAuction(tx.QueryRowContext(ctx, query, auctionID))
	if err == sql.ErrNoRows {
		return types.Auction{}, apperrors.ErrNotFound
	}
	if err != nil {
		return types.Auction{}, fmt.Errorf("error getting auction by id in tx: %w", err)
	}
	return auction, nil
}

// ApplyBidTx writes the accepted bid onto the auction row. The update is
// guarded by the high bid the validator checked against; if another writer
// got there first the guard fails and the caller must re-validate.
func (s *service) ApplyBidTx(ctx context.Context, tx *sql.Tx, auctionID string, amount int, bidderID string, ts time.Time, expectedHighBid int) error {
	query := `
        UPDATE auctions
        SET high_bid_value = $1,
            latest_bidder_id = $2,
            latest_bid_timestamptz = $3,
            bidders_count = bidders_count + 1,
            updated_at = now()
        WHERE id = $4 AND high_bid_value = $5`
	res, err := tx.ExecContext(ctx, query, amount, bidderID, ts, auctionID, expectedHighBid)
	if err != nil {
		return fmt.Errorf("error applying bid to auction in tx: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.ErrStaleAuction
	}
	log.Debugf("Auction %s updated with new high bid: %d", auctionID, amount)
	return nil
}
