package service

import (
	"context"
	"testing"
	"time"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/pkg/jwt"
	"persona-chat/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegisterAndLogin(t *testing.T) {
	db := newTestDB(t)
	users := newTestUsers(t, db)
	ctx := context.Background()

	user, token, err := users.Register(ctx, &models.CredentialsRequest{Email: " Ada@Example.com ", Password: "password123"})
	require.NoError(t, err)
	assert.NotEmpty(t, user.ID)
	assert.Equal(t, "ada@example.com", user.Email)
	assert.NotEqual(t, "password123", user.Password)
	assert.NotEmpty(t, token)

	logged, token, err := users.Login(ctx, &models.CredentialsRequest{Email: "ada@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, user.ID, logged.ID)

	claims, err := jwt.NewService("test-secret", time.Hour).ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	db := newTestDB(t)
	users := newTestUsers(t, db)
	createUser(t, users, "ada@example.com")

	_, _, err := users.Register(context.Background(), &models.CredentialsRequest{Email: "ada@example.com", Password: "another-pass"})
	assert.ErrorIs(t, err, ErrUserAlreadyExists)
}

func TestLoginInvalidCredentials(t *testing.T) {
	db := newTestDB(t)
	users := newTestUsers(t, db)
	createUser(t, users, "ada@example.com")
	ctx := context.Background()

	_, _, err := users.Login(ctx, &models.CredentialsRequest{Email: "ada@example.com", Password: "wrong-password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, _, err = users.Login(ctx, &models.CredentialsRequest{Email: "nobody@example.com", Password: "password123"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

type recordingMailer struct {
	email, link string
}

func (m *recordingMailer) SendPasswordReset(_ context.Context, email, link string) error {
	m.email, m.link = email, link
	return nil
}

func TestPasswordResetFlow(t *testing.T) {
	db := newTestDB(t)
	users := newTestUsers(t, db)
	user := createUser(t, users, "ada@example.com")
	mailer := &recordingMailer{}
	svc := NewPasswordService(db, users, mailer, "http://app.test", time.Hour)
	ctx := context.Background()

	require.NoError(t, svc.RequestReset(ctx, "ada@example.com"))
	assert.Equal(t, "ada@example.com", mailer.email)
	require.Contains(t, mailer.link, "http://app.test/reset-password?token=")

	var record models.PasswordResetToken
	require.NoError(t, db.Where("user_id = ?", user.ID).First(&record).Error)
	assert.Len(t, record.Token, 64)

	require.NoError(t, svc.ResetPassword(ctx, record.Token, "new-password-1"))

	_, _, err := users.Login(ctx, &models.CredentialsRequest{Email: "ada@example.com", Password: "new-password-1"})
	assert.NoError(t, err)

	// Tokens are single use
	assert.ErrorIs(t, svc.ResetPassword(ctx, record.Token, "another-pass"), ErrResetTokenInvalid)
}

func TestPasswordResetErrors(t *testing.T) {
	db := newTestDB(t)
	users := newTestUsers(t, db)
	user := createUser(t, users, "ada@example.com")
	svc := NewPasswordService(db, users, LogMailer{Logger: logger.Discard()}, "http://app.test", time.Hour)
	ctx := context.Background()

	assert.ErrorIs(t, svc.RequestReset(ctx, "nobody@example.com"), ErrUserNotFound)
	assert.ErrorIs(t, svc.ResetPassword(ctx, "unknown", "new-password-1"), ErrResetTokenInvalid)

	expired := models.PasswordResetToken{Token: "expired-token", UserID: user.ID, ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, db.Create(&expired).Error)

	assert.ErrorIs(t, svc.ResetPassword(ctx, "expired-token", "new-password-1"), ErrResetTokenExpired)

	var count int64
	db.Model(&models.PasswordResetToken{}).Where("token = ?", "expired-token").Count(&count)
	assert.Zero(t, count)
}
