package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/target/storefront/internal/core"
	"github.com/target/storefront/internal/data/pgxutil"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
)

const userColumns = `id::text, email, password_hash, metadata, created_at`

// UserRepo stores directory users for the local authenticator.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUserRepo creates a UserRepo using the real clock.
func NewUserRepo(db *sql.DB) *UserRepo {
	return NewUserRepoWithTimeProvider(db, &RealTimeProvider{})
}

// NewUserRepoWithTimeProvider creates a UserRepo with a custom time provider.
func NewUserRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRepo {
	return &UserRepo{DB: db, timeProvider: tp}
}

var _ core.UserRepository = (*UserRepo)(nil)

// Create inserts a user. Emails are stored normalized; a duplicate email is a Conflict.
func (r *UserRepo) Create(ctx context.Context, req core.CreateUserRequest) (domainauth.UserRecord, error) {
	email := domainauth.NormalizeEmail(req.Email)
	if email == "" {
		return domainauth.UserRecord{}, apperrors.ValidationField("email", "Email is required")
	}
	if req.PasswordHash == "" {
		return domainauth.UserRecord{}, apperrors.ValidationField("password", "Password is required")
	}
	meta := req.Metadata
	if meta == nil {
		meta = map[string]string{}
	}

	now := r.timeProvider.Now()
	var out domainauth.UserRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`INSERT INTO users (email, password_hash, metadata, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $4)
			 RETURNING `+userColumns,
			email, req.PasswordHash, meta, now,
		)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scanUser)
		return err
	})
	if err != nil {
		return domainauth.UserRecord{}, fmt.Errorf("create user: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// GetByEmail looks a user up case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (domainauth.UserRecord, error) {
	email = domainauth.NormalizeEmail(email)
	if email == "" {
		return domainauth.UserRecord{}, apperrors.NotFound("User not found")
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE lower(email) = $1`, email)
}

// GetByID looks a user up by id. Ids that are not UUIDs cannot exist.
func (r *UserRepo) GetByID(ctx context.Context, id string) (domainauth.UserRecord, error) {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return domainauth.UserRecord{}, apperrors.NotFound("User not found")
	}
	return r.getOne(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

// UpdatePasswordHash replaces the stored credential.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id, hash string) error {
	if _, err := uuid.Parse(strings.TrimSpace(id)); err != nil {
		return apperrors.NotFound("User not found")
	}
	if hash == "" {
		return apperrors.ValidationField("password", "Password is required")
	}
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`UPDATE users SET password_hash = $2, updated_at = $3 WHERE id = $1`,
			id, hash, r.timeProvider.Now(),
		)
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("update password: %w", apperrors.MapDBError(err))
	}
	if affected == 0 {
		return apperrors.NotFound("User not found")
	}
	return nil
}

func (r *UserRepo) getOne(ctx context.Context, query string, arg any) (domainauth.UserRecord, error) {
	var out domainauth.UserRecord
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, arg)
		if err != nil {
			return err
		}
		out, err = pgx.CollectExactlyOneRow(rows, scanUser)
		return err
	})
	if err != nil {
		mapped := apperrors.MapDBError(err)
		if apperrors.IsNotFound(mapped) {
			return domainauth.UserRecord{}, apperrors.NotFound("User not found")
		}
		return domainauth.UserRecord{}, fmt.Errorf("get user: %w", mapped)
	}
	return out, nil
}

func scanUser(row pgx.CollectableRow) (domainauth.UserRecord, error) {
	var u domainauth.UserRecord
	err := row.Scan(&u.ID, &u.Email, &u.PasswordHash, &u.Metadata, &u.CreatedAt)
	return u, err
}
