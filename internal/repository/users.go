package repository

import (
	"context"
	"database/sql"

	"tixgate/internal/database"
	"tixgate/internal/models"
)

type UserRepository struct {
	db *database.DB
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	user := &models.User{}
	query := `
		SELECT id, email, full_name, created_at
		FROM users
		WHERE id = $1`

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&user.ID,
		&user.Email,
		&user.FullName,
		&user.CreatedAt,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}

	return user, err
}

// Upsert records a user seen in an identity token. The identity provider
// owns the profile, so the stored name follows the latest token.
func (r *UserRepository) Upsert(ctx context.Context, user *models.User) error {
	query := `
		INSERT INTO users (id, email, full_name)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO UPDATE SET full_name = EXCLUDED.full_name
		RETURNING created_at`

	return r.db.QueryRowContext(ctx, query, user.ID, user.Email, user.FullName).Scan(&user.CreatedAt)
}
