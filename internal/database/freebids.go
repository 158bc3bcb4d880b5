package database

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

const freeBidColumns = `id, user_id, auction_id, status, granted_by, redeemed_at, created_at`

func scanFreeBid(row interface{ Scan(...any) error }) (types.FreeBid, error) {
	var fb types.FreeBid
	err := row.Scan(&fb.ID, &fb.UserID, &fb.AuctionID, &fb.Status, &fb.GrantedBy, &fb.RedeemedAt, &fb.CreatedAt)
	return fb, err
}

func (s *service) GrantFreeBid(ctx context.Context, freeBid types.FreeBid) (types.FreeBid, error) {
	query := `
        INSERT INTO free_bids (user_id, auction_id, status, granted_by)
        VALUES ($1, $2, 'AVAILABLE', $3)
        RETURNING ` + freeBidColumns
	granted, err := scanFreeBid(s.db.QueryRowContext(ctx, query,
		freeBid.UserID, freeBid.AuctionID, freeBid.GrantedBy))
	if err != nil {
		return types.FreeBid{}, apperrors.Wrap(err, "error granting free bid")
	}
	return granted, nil
}

func (s *service) FreeBidsForUser(ctx context.Context, userID string) ([]types.FreeBid, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+freeBidColumns+` FROM free_bids WHERE user_id = $1 ORDER BY created_at ASC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("error getting free bids for user: %w", err)
	}
	defer rows.Close()

	var freeBids []types.FreeBid
	for rows.Next() {
		fb, err := scanFreeBid(rows)
		if err != nil {
			return nil, fmt.Errorf("error scanning free bid: %w", err)
		}
		freeBids = append(freeBids, fb)
	}
	return freeBids, rows.Err()
}

// RedeemFreeBidTx consumes a credit exactly once. The status guard in the
// WHERE clause makes a double redemption fail with ErrFreeBidRedeemed no
// matter how many requests race.
func (s *service) RedeemFreeBidTx(ctx context.Context, tx *sql.Tx, freeBidID, userID string) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE free_bids SET status = 'REDEEMED', redeemed_at = now()
         WHERE id = $1 AND user_id = $2 AND status = 'AVAILABLE'`,
		freeBidID, userID)
	if err != nil {
		return fmt.Errorf("error redeeming free bid in tx: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("error reading rows affected: %w", err)
	}
	if n == 0 {
		return apperrors.ErrFreeBidRedeemed
	}
	return nil
}
