package repositories

import (
	"context"

	"github.com/jmoiron/sqlx"

	"dm-service/internal/models"
)

// UserRepo is a sqlx implementation of UserRepository.
type UserRepo struct {
	db *sqlx.DB
}

// NewUserRepo constructs a UserRepo.
func NewUserRepo(db *sqlx.DB) *UserRepo {
	return &UserRepo{db: db}
}

// CreateUser inserts a user; a taken username is a conflict.
func (r *UserRepo) CreateUser(ctx context.Context, username string, passwordHash string) (models.User, error) {
	var u models.User
	err := r.db.QueryRowxContext(ctx, `INSERT INTO users (username, password_hash) VALUES ($1, $2)
        RETURNING id, username, password_hash, created_at, last_seen_at`, username, passwordHash).StructScan(&u)
	if err != nil {
		return models.User{}, translate(err, ErrUserNotFound)
	}
	return u, nil
}

// GetUser fetches a user by id.
func (r *UserRepo) GetUser(ctx context.Context, userID int) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT id, username, password_hash, created_at, last_seen_at FROM users WHERE id=$1`, userID)
	if err != nil {
		return models.User{}, translate(err, ErrUserNotFound)
	}
	return u, nil
}

// GetByUsername fetches a user by username.
func (r *UserRepo) GetByUsername(ctx context.Context, username string) (models.User, error) {
	var u models.User
	err := r.db.GetContext(ctx, &u, `SELECT id, username, password_hash, created_at, last_seen_at FROM users WHERE username=$1`, username)
	if err != nil {
		return models.User{}, translate(err, ErrUserNotFound)
	}
	return u, nil
}
