package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/wb-go/wbf/dbpg"

	"github.com/adilzhm/notification-pipeline/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

// Repository provides read access to the users table. The pipeline only
// consults users for addresses and channel preferences.
type Repository struct {
	db *dbpg.DB
}

// NewRepository creates a new user repository.
func NewRepository(db *dbpg.DB) *Repository {
	return &Repository{db: db}
}

// GetByID retrieves a user by its ID.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (model.User, error) {
	query := `
		SELECT id, email, phone, pref_email, pref_sms, pref_in_app, created_at, updated_at
		FROM users
		WHERE id = $1;
    `

	var (
		u     model.User
		phone sql.NullString
	)

	err := r.db.Master.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &phone,
		&u.Preferences.Email, &u.Preferences.SMS, &u.Preferences.InApp,
		&u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.User{}, ErrUserNotFound
		}

		return model.User{}, fmt.Errorf("failed to get user: %w", err)
	}

	if phone.Valid {
		u.Phone = &phone.String
	}

	return u, nil
}
