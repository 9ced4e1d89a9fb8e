package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestMapDBError_NilError(t *testing.T) {
	err := MapDBError(nil)
	if err != nil {
		t.Errorf("MapDBError(nil) = %v, want nil", err)
	}
}

func TestMapDBError_ContextErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{
			name:     "deadline exceeded",
			err:      context.DeadlineExceeded,
			wantCode: ErrCodeTimeout,
		},
		{
			name:     "canceled",
			err:      context.Canceled,
			wantCode: ErrCodeCanceled,
		},
		{
			name:     "wrapped deadline",
			err:      fmt.Errorf("query roles: %w", context.DeadlineExceeded),
			wantCode: ErrCodeTimeout,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.err)
			if !IsAppError(err, tt.wantCode) {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
		})
	}
}

func TestMapDBError_NoRows(t *testing.T) {
	err := MapDBError(pgx.ErrNoRows)
	if !IsNotFound(err) {
		t.Errorf("MapDBError(pgx.ErrNoRows) should be NotFound, got %v", GetCode(err))
	}
}

func TestMapDBError_UniqueViolation(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantField string
		wantMsg   string
	}{
		{
			name: "user_roles with detail",
			pgErr: &pgconn.PgError{
				Code:      pgerrcode.UniqueViolation,
				TableName: "user_roles",
				Detail:    "Key (user_id, role)=(3f1c, client) already exists.",
			},
			wantField: "user_id, role",
			wantMsg:   "Role already assigned",
		},
		{
			name: "users with column",
			pgErr: &pgconn.PgError{
				Code:       pgerrcode.UniqueViolation,
				TableName:  "users",
				ColumnName: "email",
			},
			wantField: "email",
			wantMsg:   "User already registered",
		},
		{
			name: "unknown table",
			pgErr: &pgconn.PgError{
				Code: pgerrcode.UniqueViolation,
			},
			wantMsg: "This value already exists. Please choose a different one.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := MapDBError(tt.pgErr)
			if !IsConflict(err) {
				t.Fatalf("MapDBError() code = %v, want conflict", GetCode(err))
			}
			if got := GetField(err); got != tt.wantField {
				t.Errorf("field = %q, want %q", got, tt.wantField)
			}
			if got := UserMessage(err, ""); got != tt.wantMsg {
				t.Errorf("message = %q, want %q", got, tt.wantMsg)
			}
		})
	}
}

func TestMapDBError_PgCodes(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		wantCode ErrorCode
	}{
		{name: "check violation", code: pgerrcode.CheckViolation, wantCode: ErrCodeValidation},
		{name: "invalid uuid", code: pgerrcode.InvalidTextRepresentation, wantCode: ErrCodeValidation},
		{name: "not null", code: pgerrcode.NotNullViolation, wantCode: ErrCodeValidation},
		{name: "foreign key", code: pgerrcode.ForeignKeyViolation, wantCode: ErrCodeNotFound},
		{name: "connection failure", code: pgerrcode.ConnectionFailure, wantCode: ErrCodeNetwork},
		{name: "admin shutdown", code: pgerrcode.AdminShutdown, wantCode: ErrCodeNetwork},
		{name: "unknown", code: pgerrcode.DiskFull, wantCode: ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pgErr := &pgconn.PgError{Code: tt.code, ColumnName: "role"}
			err := MapDBError(pgErr)
			if !IsAppError(err, tt.wantCode) {
				t.Errorf("MapDBError() code = %v, want %v", GetCode(err), tt.wantCode)
			}
			if !errors.Is(err, pgErr) {
				t.Error("mapped error should wrap the pg error")
			}
		})
	}
}

func TestMapDBError_StandardError(t *testing.T) {
	orig := errors.New("some error")
	if got := MapDBError(orig); !errors.Is(got, orig) || GetCode(got) != "" {
		t.Errorf("MapDBError() = %v, want original error", got)
	}
}
