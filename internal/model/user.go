package model

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// UserStore defines persistence operations for users.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id uuid.UUID) (User, error)
	GetBySubject(ctx context.Context, subject string) (User, error)
	// Upsert creates the user on first login or refreshes mutable profile
	// fields on subsequent ones, keyed by the identity provider subject.
	Upsert(ctx context.Context, user User) (User, error)
}

// User represents a provisioned user. The identity provider owns
// authentication; this record only carries profile and role data.
type User struct {
	ID          uuid.UUID
	Email       string
	IdpSubject  string
	DisplayName string
	Role        string
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
