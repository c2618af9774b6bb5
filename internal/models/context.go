package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// UserProfile holds the personal details the assistant may use
type UserProfile struct {
	ID         string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID     string    `gorm:"uniqueIndex;type:varchar(36);not null" json:"userId"`
	Name       string    `json:"name"`
	Age        *int      `json:"age,omitempty"`
	Location   string    `json:"location,omitempty"`
	Language   string    `json:"language,omitempty"`
	Occupation string    `json:"occupation,omitempty"`
	Background string    `gorm:"type:text" json:"background,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// UserInterest is one declared interest
type UserInterest struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"index;type:varchar(36);not null" json:"userId"`
	Interest  string    `gorm:"not null" json:"interest"`
	CreatedAt time.Time `json:"createdAt"`
}

// UserGoal is one declared goal
type UserGoal struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"index;type:varchar(36);not null" json:"userId"`
	Goal      string    `gorm:"not null" json:"goal"`
	Completed bool      `gorm:"not null;default:false" json:"completed"`
	CreatedAt time.Time `json:"createdAt"`
}

// PersonalityTrait is one self-described trait
type PersonalityTrait struct {
	ID        string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID    string    `gorm:"index;type:varchar(36);not null" json:"userId"`
	Trait     string    `gorm:"not null" json:"trait"`
	CreatedAt time.Time `json:"createdAt"`
}

// ConnectionDetails is the free-form part of a social connection
type ConnectionDetails struct {
	Notes     string   `json:"notes,omitempty"`
	Interests []string `json:"interests,omitempty"`
	Birthday  string   `json:"birthday,omitempty"`
}

// SocialConnection is a person in the user's life
type SocialConnection struct {
	ID           string                                `gorm:"primaryKey;type:varchar(36)" json:"id"`
	UserID       string                                `gorm:"index;type:varchar(36);not null" json:"userId"`
	Name         string                                `gorm:"not null" json:"name"`
	Relationship string                                `json:"relationship"`
	Details      datatypes.JSONType[ConnectionDetails] `json:"details"`
	CreatedAt    time.Time                             `json:"createdAt"`
}

func (p *UserProfile) BeforeCreate(tx *gorm.DB) error { return ensureID(&p.ID) }
func (i *UserInterest) BeforeCreate(tx *gorm.DB) error { return ensureID(&i.ID) }
func (g *UserGoal) BeforeCreate(tx *gorm.DB) error { return ensureID(&g.ID) }
func (t *PersonalityTrait) BeforeCreate(tx *gorm.DB) error { return ensureID(&t.ID) }
func (s *SocialConnection) BeforeCreate(tx *gorm.DB) error { return ensureID(&s.ID) }

func ensureID(id *string) error {
	if *id == "" {
		*id = uuid.NewString()
	}
	return nil
}

// UserContext is everything the user has told the assistant about themselves
type UserContext struct {
	Profile     *UserProfile       `json:"profile"`
	Interests   []UserInterest     `json:"interests"`
	Goals       []UserGoal         `json:"goals"`
	Traits      []PersonalityTrait `json:"traits"`
	Connections []SocialConnection `json:"connections"`
}

// ProfileInput is the editable part of a profile. Nil fields were not sent
// and are left as stored.
type ProfileInput struct {
	Name       *string `json:"name"`
	Age        *int    `json:"age"`
	Location   *string `json:"location"`
	Language   *string `json:"language"`
	Occupation *string `json:"occupation"`
	Background *string `json:"background"`
}

// Apply copies the present fields onto p and returns their column names
func (in *ProfileInput) Apply(p *UserProfile) []string {
	var columns []string
	setString := func(column string, dst *string, src *string) {
		if src != nil {
			*dst = *src
			columns = append(columns, column)
		}
	}
	setString("name", &p.Name, in.Name)
	if in.Age != nil {
		p.Age = in.Age
		columns = append(columns, "age")
	}
	setString("location", &p.Location, in.Location)
	setString("language", &p.Language, in.Language)
	setString("occupation", &p.Occupation, in.Occupation)
	setString("background", &p.Background, in.Background)
	return columns
}

// ConnectionInput describes a social connection to store
type ConnectionInput struct {
	Name         string            `json:"name" binding:"required"`
	Relationship string            `json:"relationship"`
	Details      ConnectionDetails `json:"details"`
}

// ContextUpdate is the body of POST /api/context. A nil field leaves that part untouched.
type ContextUpdate struct {
	Profile     *ProfileInput      `json:"profile"`
	Interests   *[]string          `json:"interests"`
	Goals       *[]string          `json:"goals"`
	Traits      *[]string          `json:"traits"`
	Connections *[]ConnectionInput `json:"connections"`
}

// AllModels lists every table for auto-migration
func AllModels() []any {
	return []any{
		&User{},
		&PasswordResetToken{},
		&Chat{},
		&Message{},
		&Vote{},
		&UserProfile{},
		&UserInterest{},
		&UserGoal{},
		&PersonalityTrait{},
		&SocialConnection{},
	}
}
