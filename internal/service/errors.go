package service

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

var (
	ErrUserAlreadyExists  = errors.New("user with this email already exists")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrUserNotFound       = errors.New("user not found")

	ErrResetTokenInvalid = errors.New("invalid or expired token")
	ErrResetTokenExpired = errors.New("token has expired")

	ErrChatNotFound      = errors.New("chat not found")
	ErrChatForbidden     = errors.New("chat belongs to another user")
	ErrMessageNotFound   = errors.New("message not found")
	ErrInvalidVote       = errors.New("vote must be up or down")
	ErrInvalidVisibility = errors.New("visibility must be private or public")

	ErrNoUserMessage = errors.New("no user message found")
	ErrUnknownModel  = errors.New("model not found")
)

// pgUniqueViolation is the SQLSTATE for unique_violation
const pgUniqueViolation = "23505"

// isUniqueViolation recognises duplicate-key errors from postgres and sqlite
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
