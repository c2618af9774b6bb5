package models

import (
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// User represents an account that signs in with email and password
type User struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	Email     string    `gorm:"uniqueIndex;size:64;not null" json:"email"`
	Name      string    `json:"name,omitempty"`
	Password  string    `gorm:"size:64" json:"-"` // Never return password in JSON
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UserResponse is the public view of a user
type UserResponse struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// CredentialsRequest is the request structure for register and login
type CredentialsRequest struct {
	Email    string `json:"email" form:"email" binding:"required,email"`
	Password string `json:"password" form:"password" binding:"required,min=8"`
	Name     string `json:"name,omitempty" form:"name"`
}

// AuthStatus is the outcome reported by register and login
type AuthStatus string

const (
	AuthSuccess            AuthStatus = "success"
	AuthFailed             AuthStatus = "failed"
	AuthInvalidData        AuthStatus = "invalid_data"
	AuthInvalidCredentials AuthStatus = "invalid_credentials"
	AuthUserExists         AuthStatus = "user_exists"
)

// AuthResponse is returned by register and login
type AuthResponse struct {
	Status AuthStatus    `json:"status"`
	Token  string        `json:"token,omitempty"`
	User   *UserResponse `json:"user,omitempty"`
}

// HashPassword hashes a password for storage
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

// CheckPasswordHash compares a password with a hash
func CheckPasswordHash(password, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// BeforeCreate assigns an id and hashes the plain-text password before insert
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}

	hashedPassword, err := HashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hashedPassword

	return nil
}

// ToResponse converts a User model to a UserResponse
func (u *User) ToResponse() *UserResponse {
	return &UserResponse{
		ID:    u.ID,
		Email: u.Email,
		Name:  u.Name,
	}
}

// PasswordResetToken is a single-use token for the forgot-password flow
type PasswordResetToken struct {
	Token     string    `gorm:"primaryKey;size:64" json:"-"`
	UserID    string    `gorm:"index;type:varchar(36);not null" json:"userId"`
	ExpiresAt time.Time `gorm:"not null" json:"expiresAt"`
	CreatedAt time.Time `json:"createdAt"`
}

// ForgotPasswordRequest starts a password reset
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// ResetPasswordRequest completes a password reset
type ResetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}
