package data

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/target/storefront/internal/core"
	"github.com/target/storefront/internal/data/database"
	"github.com/target/storefront/internal/data/pgxutil"
	domainauth "github.com/target/storefront/internal/domain/auth"
	apperrors "github.com/target/storefront/internal/errors"
)

// RoleRepo persists user role rows in Postgres.
type RoleRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewRoleRepo creates a RoleRepo using the real clock.
func NewRoleRepo(db *sql.DB) *RoleRepo {
	return NewRoleRepoWithTimeProvider(db, &RealTimeProvider{})
}

// NewRoleRepoWithTimeProvider creates a RoleRepo with a custom time provider.
func NewRoleRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *RoleRepo {
	return &RoleRepo{DB: db, timeProvider: tp}
}

var _ core.RoleStore = (*RoleRepo)(nil)

// RolesForUser returns every role row stored for userID.
func (r *RoleRepo) RolesForUser(ctx context.Context, userID string) ([]domainauth.Role, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserIDRequired
	}
	var out []domainauth.Role
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `SELECT role FROM user_roles WHERE user_id = $1`, userID)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (domainauth.Role, error) {
			var role string
			scanErr := row.Scan(&role)
			return domainauth.Role(role), scanErr
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("query roles for %s: %w", userID, apperrors.MapDBError(err))
	}
	return out, nil
}

// InsertRole writes a single (userID, role) row. A duplicate yields a Conflict error.
func (r *RoleRepo) InsertRole(ctx context.Context, userID string, role domainauth.Role) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserIDRequired
	}
	if !role.Valid() {
		return apperrors.ValidationField("role", fmt.Sprintf("unknown role %q", role))
	}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx,
			`INSERT INTO user_roles (user_id, role, created_at) VALUES ($1, $2, $3)`,
			userID, string(role), r.timeProvider.Now(),
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("insert role: %w", apperrors.MapDBError(err))
	}
	return nil
}

// AssignClientRole calls the assign_client_role procedure, which inserts the
// client row unless it already exists.
func (r *RoleRepo) AssignClientRole(ctx context.Context, userID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserIDRequired
	}
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		_, err := conn.Exec(ctx, `SELECT assign_client_role($1)`, userID)
		return err
	})
	if err != nil {
		return fmt.Errorf("assign client role: %w", apperrors.MapDBError(err))
	}
	return nil
}

// RevokeRole deletes a row and reports whether one existed.
func (r *RoleRepo) RevokeRole(ctx context.Context, userID string, role domainauth.Role) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, ErrUserIDRequired
	}
	var affected int64
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		tag, err := conn.Exec(ctx,
			`DELETE FROM user_roles WHERE user_id = $1 AND role = $2`, userID, string(role))
		if err != nil {
			return err
		}
		affected = tag.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("revoke role: %w", apperrors.MapDBError(err))
	}
	return affected > 0, nil
}

// ListAssignments lists role rows joined with user emails where known.
func (r *RoleRepo) ListAssignments(
	ctx context.Context,
	opts core.ListAssignmentsOptions,
) ([]domainauth.RoleAssignment, error) {
	qopts := []database.ListQueryOption{
		database.WithColumns("user_id", "email", "role", "created_at"),
		database.WithOrderBy("ASC", "user_id", "role"),
		database.WithLimit(opts.Limit),
		database.WithOffset(opts.Offset),
	}
	if opts.UserID != "" {
		qopts = append(qopts, database.WithCondition(database.WhereCond("user_id", database.Equal, opts.UserID)))
	}
	query, args := database.BuildListQuery(database.NewListQueryOptions("role_assignments", qopts...))

	var out []domainauth.RoleAssignment
	err := pgxutil.WithPgxConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		out, err = pgx.CollectRows(rows, scanAssignment)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("list role assignments: %w", apperrors.MapDBError(err))
	}
	return out, nil
}

// SeedAssignments inserts every assignment in one transaction, skipping rows
// that already exist. It returns how many rows were written.
func (r *RoleRepo) SeedAssignments(ctx context.Context, assignments []domainauth.RoleAssignment) (int, error) {
	for i, a := range assignments {
		if strings.TrimSpace(a.UserID) == "" {
			return 0, apperrors.ValidationField("user_id", fmt.Sprintf("assignment %d: user id is required", i))
		}
		if !a.Role.Valid() {
			return 0, apperrors.ValidationField("role", fmt.Sprintf("assignment %d: unknown role %q", i, a.Role))
		}
	}

	var written int
	now := r.timeProvider.Now()
	err := pgxutil.WithPgxTx(ctx, r.DB, pgxutil.TxConfig{Fn: func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, a := range assignments {
			batch.Queue(
				`INSERT INTO user_roles (user_id, role, created_at) VALUES ($1, $2, $3)
				 ON CONFLICT (user_id, role) DO NOTHING`,
				a.UserID, string(a.Role), now,
			)
		}
		br := tx.SendBatch(ctx, batch)
		for range assignments {
			tag, err := br.Exec()
			if err != nil {
				_ = br.Close()
				return err
			}
			written += int(tag.RowsAffected())
		}
		return br.Close()
	}})
	if err != nil {
		return 0, fmt.Errorf("seed role assignments: %w", apperrors.MapDBError(err))
	}
	return written, nil
}

func scanAssignment(row pgx.CollectableRow) (domainauth.RoleAssignment, error) {
	var (
		a    domainauth.RoleAssignment
		role string
	)
	if err := row.Scan(&a.UserID, &a.Email, &role, &a.CreatedAt); err != nil {
		return a, err
	}
	a.Role = domainauth.Role(role)
	return a, nil
}
