package service

import (
	"context"
	"errors"
	"strings"

	"persona-chat/backend/internal/models"
	"persona-chat/backend/pkg/jwt"

	"gorm.io/gorm"
)

// UserService handles user-related operations
type UserService struct {
	db  *gorm.DB
	jwt *jwt.Service
}

// NewUserService creates a new user service
func NewUserService(db *gorm.DB, jwtService *jwt.Service) *UserService {
	return &UserService{db: db, jwt: jwtService}
}

// Register creates a new user and issues a session token
func (s *UserService) Register(ctx context.Context, req *models.CredentialsRequest) (*models.User, string, error) {
	email := normalizeEmail(req.Email)

	var count int64
	if err := s.db.WithContext(ctx).Model(&models.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, "", err
	}
	if count > 0 {
		return nil, "", ErrUserAlreadyExists
	}

	user := models.User{
		Email:    email,
		Name:     strings.TrimSpace(req.Name),
		Password: req.Password,
	}

	// A concurrent registration can still win the race on the unique index
	if err := s.db.WithContext(ctx).Create(&user).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, "", ErrUserAlreadyExists
		}
		return nil, "", err
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	return &user, token, nil
}

// Login authenticates a user and returns a session token
func (s *UserService) Login(ctx context.Context, req *models.CredentialsRequest) (*models.User, string, error) {
	user, err := s.GetUserByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", err
	}

	if !models.CheckPasswordHash(req.Password, user.Password) {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.jwt.GenerateToken(user.ID, user.Email)
	if err != nil {
		return nil, "", err
	}

	return user, token, nil
}

// GetUserByID retrieves a user by ID
func (s *UserService) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// GetUserByEmail retrieves a user by email
func (s *UserService) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// setPassword stores a new password hash for a user inside tx
func setPassword(tx *gorm.DB, userID, password string) error {
	hash, err := models.HashPassword(password)
	if err != nil {
		return err
	}
	res := tx.Model(&models.User{}).Where("id = ?", userID).Update("password", hash)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
