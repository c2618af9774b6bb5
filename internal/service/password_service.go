package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"time"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/pkg/logger"

	"gorm.io/gorm"
)

// Mailer delivers password reset links
type Mailer interface {
	SendPasswordReset(ctx context.Context, email, link string) error
}

// LogMailer writes reset links to the log instead of sending email
type LogMailer struct {
	Logger *logger.Logger
}

func (m LogMailer) SendPasswordReset(ctx context.Context, email, link string) error {
	log := m.Logger
	if log == nil {
		log = logger.FromContext(ctx)
	}
	log.Info("Password reset requested", "email", email, "reset_link", link)
	return nil
}

// PasswordService runs the forgot/reset password flow
type PasswordService struct {
	db     *gorm.DB
	users  *UserService
	mailer Mailer
	appURL string
	ttl    time.Duration
	now    func() time.Time
}

// NewPasswordService creates a password reset service. Links point at appURL.
func NewPasswordService(db *gorm.DB, users *UserService, mailer Mailer, appURL string, ttl time.Duration) *PasswordService {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &PasswordService{
		db:     db,
		users:  users,
		mailer: mailer,
		appURL: appURL,
		ttl:    ttl,
		now:    time.Now,
	}
}

// RequestReset stores a fresh token for the user with this email and mails the link
func (s *PasswordService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	token, err := newResetToken()
	if err != nil {
		return err
	}

	record := models.PasswordResetToken{
		Token:     token,
		UserID:    user.ID,
		ExpiresAt: s.now().Add(s.ttl),
	}
	if err := s.db.WithContext(ctx).Create(&record).Error; err != nil {
		return fmt.Errorf("store reset token: %w", err)
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.appURL, url.QueryEscape(token))
	if err := s.mailer.SendPasswordReset(ctx, user.Email, link); err != nil {
		return fmt.Errorf("send reset email: %w", err)
	}

	return nil
}

// ResetPassword consumes token and sets the new password.
// An expired token is deleted and reported as ErrResetTokenExpired.
func (s *PasswordService) ResetPassword(ctx context.Context, token, password string) error {
	db := s.db.WithContext(ctx)

	var record models.PasswordResetToken
	if err := db.Where("token = ?", token).First(&record).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrResetTokenInvalid
		}
		return err
	}

	if s.now().After(record.ExpiresAt) {
		if err := db.Delete(&record).Error; err != nil {
			return err
		}
		return ErrResetTokenExpired
	}

	return db.Transaction(func(tx *gorm.DB) error {
		// Deleting first makes a concurrent reset with the same token lose
		res := tx.Where("token = ?", record.Token).Delete(&models.PasswordResetToken{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrResetTokenInvalid
		}

		return setPassword(tx, record.UserID, password)
	})
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
