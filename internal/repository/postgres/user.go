package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bizboard/auth-server/internal/model"
)

var _ model.UserStore = (*UserRepository)(nil)

type UserRepository struct {
	db *Connection
}

func NewUserRepository(db *Connection) *UserRepository {
	return &UserRepository{
		db: db,
	}
}

const userColumns = `id, email, idp_subject, display_name, role, is_active, created_at, updated_at`

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.getOne(ctx, query, email)
}

func (r *UserRepository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.getOne(ctx, query, id)
}

func (r *UserRepository) GetBySubject(ctx context.Context, subject string) (model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE idp_subject = $1`
	return r.getOne(ctx, query, subject)
}

// Upsert provisions the user on first login and refreshes profile fields on
// later ones, keyed by the identity provider subject.
func (r *UserRepository) Upsert(ctx context.Context, user model.User) (model.User, error) {
	query := `INSERT INTO users (id, email, idp_subject, display_name, role, is_active, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, TRUE, NOW(), NOW())
			  ON CONFLICT (idp_subject) DO UPDATE
			  SET email = EXCLUDED.email, display_name = EXCLUDED.display_name, updated_at = NOW()
			  RETURNING ` + userColumns

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	if user.Role == "" {
		user.Role = "user"
	}

	var saved model.User
	err := r.db.QueryRow(ctx, query,
		user.ID, user.Email, user.IdpSubject, user.DisplayName, user.Role,
	).Scan(
		&saved.ID, &saved.Email, &saved.IdpSubject, &saved.DisplayName,
		&saved.Role, &saved.IsActive, &saved.CreatedAt, &saved.UpdatedAt,
	)
	if err != nil {
		return model.User{}, fmt.Errorf("failed to upsert user: %w", err)
	}

	return saved, nil
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg any) (model.User, error) {
	var user model.User
	err := r.db.QueryRow(ctx, query, arg).Scan(
		&user.ID, &user.Email, &user.IdpSubject, &user.DisplayName,
		&user.Role, &user.IsActive, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.User{}, model.ErrNotFound
		}
		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	return user, nil
}
