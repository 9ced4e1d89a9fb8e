package core

import (
	"context"

	domainauth "github.com/target/storefront/internal/domain/auth"
)

// This file contains repository interface definitions (ports in hexagonal architecture).
// These interfaces define the contracts between the service layer and data layer.
// Service implementations should depend on these interfaces, not concrete implementations.

// RoleStore is the persisted mapping from user id to roles.
type RoleStore interface {
	// RolesForUser returns the role rows for userID. Order is not significant.
	RolesForUser(ctx context.Context, userID string) ([]domainauth.Role, error)
	// InsertRole writes a (userID, role) row. A duplicate row yields a Conflict error.
	InsertRole(ctx context.Context, userID string, role domainauth.Role) error
	// AssignClientRole invokes the idempotent default-role procedure.
	AssignClientRole(ctx context.Context, userID string) error
	// RevokeRole removes a row; it reports whether one existed.
	RevokeRole(ctx context.Context, userID string, role domainauth.Role) (bool, error)
	// ListAssignments lists role rows, optionally filtered by user id.
	ListAssignments(ctx context.Context, opts ListAssignmentsOptions) ([]domainauth.RoleAssignment, error)
}

// ListAssignmentsOptions filters ListAssignments. Zero Limit means no limit.
type ListAssignmentsOptions struct {
	UserID string
	Limit  int
	Offset int
}

// UserRepository stores directory users for the local authenticator.
type UserRepository interface {
	Create(ctx context.Context, req CreateUserRequest) (domainauth.UserRecord, error)
	GetByEmail(ctx context.Context, email string) (domainauth.UserRecord, error)
	GetByID(ctx context.Context, id string) (domainauth.UserRecord, error)
	UpdatePasswordHash(ctx context.Context, id, hash string) error
}

// CreateUserRequest groups parameters for UserRepository.Create.
type CreateUserRequest struct {
	Email        string
	PasswordHash string
	Metadata     map[string]string
}
