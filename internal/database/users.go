package database

import (
	"context"
	"database/sql"
	"fmt"

	apperrors "github.com/goodbids/auction-server/pkg/errors"
	"github.com/goodbids/auction-server/pkg/types"
)

func (s *service) GetUserByEmail(ctx context.Context, email string) (types.User, error) {
	var user types.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, charity_id, created_at FROM users WHERE email = $1`,
		email).Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.CharityID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return types.User{}, apperrors.ErrNotFound
	}
	if err != nil {
		return types.User{}, fmt.Errorf("error getting user by email: %w", err)
	}
	return user, nil
}

func (s *service) GetUserByID(ctx context.Context, id string) (types.User, error) {
	var user types.User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, email, role, charity_id, created_at FROM users WHERE id = $1`,
		id).Scan(&user.ID, &user.Name, &user.Email, &user.Role, &user.CharityID, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return types.User{}, apperrors.ErrNotFound
	}
	if err != nil {
		return types.User{}, fmt.Errorf("error getting user by id: %w", err)
	}
	return user, nil
}
