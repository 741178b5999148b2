package repository

import (
	"context"
	"errors"
	"fmt"

	"group_chat_service/internal/chat/domain"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// UserRepository resolve identity for a user id
type UserRepository interface {
	FindByID(ctx context.Context, userID int64) (*domain.Identity, error)
}

type userRepository struct {
	db *pgxpool.Pool
}

// NewUserRepository create a UserRepository
func NewUserRepository(db *pgxpool.Pool) UserRepository {
	return &userRepository{db: db}
}

func (r *userRepository) FindByID(ctx context.Context, userID int64) (*domain.Identity, error) {
	var u domain.Identity
	err := r.db.QueryRow(ctx, "SELECT id, name, email FROM users WHERE id = $1", userID).
		Scan(&u.ID, &u.Name, &u.Email)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrAuthRejected
	}
	if err != nil {
		return nil, fmt.Errorf("find user %d: %w", userID, err)
	}
	return &u, nil
}
