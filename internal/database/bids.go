package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

const bidColumns = `id, auction_id, bidder_id, charity_id, amount, status, order_id, created_at, updated_at`

func scanBid(row interface{ Scan(...any) error }) (types.Bid, error) {
	var b types.Bid
	err := row.Scan(
		&b.ID,
		&b.AuctionID,
		&b.BidderID,
		&b.CharityID,
		&b.Amount,
		&b.Status,
		&b.OrderID,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	return b, err
}

// CreateBid appends a PENDING bid to the ledger. The partial unique index on
// (auction_id) WHERE status = 'PENDING' rejects a second in-flight bid. The
// caller supplies the ID so the lock row can reference it.
func (s *service) CreateBid(ctx context.Context, bid types.Bid) (types.Bid, error) {
	if bid.ID == "" {
		bid.ID = uuid.NewString()
	}
	query := `
        INSERT INTO bids (id, auction_id, bidder_id, charity_id, amount, status)
        VALUES ($1, $2, $3, $4, $5, 'PENDING')
        RETURNING ` + bidColumns
	created, err := scanBid(s.db.QueryRowContext(ctx, query,
		bid.ID, bid.AuctionID, bid.BidderID, bid.CharityID, bid.Amount))
	if isUniqueViolation(err) {
		return types.Bid{}, apperrors.ErrLockHeld
	}
	if err != nil {
		return types.Bid{}, apperrors.Wrap(err, "error creating bid")
	}
	return created, nil
}

func (s *service) GetBidByID(ctx context.Context, bidID string) (types.Bid, error) {
	bid, err := scanBid(s.db.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE id = $1`, bidID))
	if err == sql.ErrNoRows {
		return types.Bid{}, apperrors.ErrNotFound
	}
	if err != nil {
		return types.Bid{}, fmt.Errorf("error getting bid by id: %w", err)
	}
	return bid, nil
}

// LatestBid returns the most recent bid on the auction regardless of status.
func (s *service) LatestBid(ctx context.Context, auctionID string) (types.Bid, error) {
	bid, err := scanBid(s.db.QueryRowContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY created_at DESC LIMIT 1`,
		auctionID))
	if err == sql.ErrNoRows {
		return types.Bid{}, apperrors.ErrNotFound
	}
	if err != nil {
		return types.Bid{}, fmt.Errorf("error getting latest bid: %w", err)
	}
	return bid, nil
}

func (s *service) BidsForAuction(ctx context.Context, auctionID string) ([]types.Bid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+bidColumns+` FROM bids WHERE auction_id = $1 ORDER BY created_at ASC`,
		auctionID)
	if err != nil {
		return nil, fmt.Errorf("error getting bids for auction: %w", err)
	}
	defer rows.Close()

	var bids []types.Bid
	for rows.Next() {
		bid, err := scanBid(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning bid: %w", err)
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

func (s *service) SetBidOrderID(ctx context.Context, bidID, orderID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE bids SET order_id = $1, updated_at = now() WHERE id = $2 AND status = 'PENDING'`,
		orderID, bidID)
	if err != nil {
		return fmt.Errorf("error setting bid order id: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperrors.ErrBidFinalized
	}
	return nil
}

// CancelBid moves a PENDING bid to CANCELLED. Terminal states are guarded in
// SQL: a bid that already completed or cancelled is left untouched.
func (s *service) CancelBid(ctx context.Context, bidID string) (types.Bid, error) {
	bid, err := scanBid(s.db.QueryRowContext(ctx,
		`UPDATE bids SET status = 'CANCELLED', updated_at = now()
         WHERE id = $1 AND status = 'PENDING'
         RETURNING `+bidColumns, bidID))
	if err == sql.ErrNoRows {
		return types.Bid{}, apperrors.ErrBidFinalized
	}
	if err != nil {
		return types.Bid{}, fmt.Errorf("error cancelling bid: %w", err)
	}
	return bid, nil
}

// CompleteBidTx moves a PENDING bid to COMPLETE inside the finalization
// transaction, so the ledger and the auction row commit or roll back together.
func (s *service) CompleteBidTx(ctx context.Context, tx *sql.Tx, bidID string) (types.Bid, error) {
	bid, err := scanBid(tx.QueryRowContext(ctx,
		`UPDATE bids SET status = 'COMPLETE', updated_at = now()
         WHERE id = $1 AND status = 'PENDING'
         RETURNING `+bidColumns, bidID))
	if err == sql.ErrNoRows {
		return types.Bid{}, apperrors.ErrBidFinalized
	}
	if err != nil {
		return types.Bid{}, fmt.Errorf("error completing bid in tx: %w", err)
	}
	return bid, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
