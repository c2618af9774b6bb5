package service

import (
	"context"
	"errors"
	"strings"

	"persona-chat/backend/internal/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ContextService manages what the user has told the assistant about themselves
type ContextService struct {
	db *gorm.DB
}

// NewContextService creates a new context service
func NewContextService(db *gorm.DB) *ContextService {
	return &ContextService{db: db}
}

// GetContext returns the full user context. A missing profile is nil; missing lists are empty.
func (s *ContextService) GetContext(ctx context.Context, userID string) (*models.UserContext, error) {
	db := s.db.WithContext(ctx)
	out := &models.UserContext{
		Interests:   []models.UserInterest{},
		Goals:       []models.UserGoal{},
		Traits:      []models.PersonalityTrait{},
		Connections: []models.SocialConnection{},
	}

	var profile models.UserProfile
	err := db.Where("user_id = ?", userID).First(&profile).Error
	switch {
	case err == nil:
		out.Profile = &profile
	case !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	if err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&out.Interests).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&out.Goals).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&out.Traits).Error; err != nil {
		return nil, err
	}
	if err := db.Where("user_id = ?", userID).Order("created_at ASC").Find(&out.Connections).Error; err != nil {
		return nil, err
	}

	return out, nil
}

// UpdateContext applies the parts of update that are present, all or nothing.
// A present list replaces the stored one; an empty list clears it.
func (s *ContextService) UpdateContext(ctx context.Context, userID string, update *models.ContextUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if update.Profile != nil {
			if err := upsertProfile(tx, userID, update.Profile); err != nil {
				return err
			}
		}

		if update.Interests != nil {
			rows := make([]models.UserInterest, 0, len(*update.Interests))
			for _, v := range nonEmpty(*update.Interests) {
				rows = append(rows, models.UserInterest{UserID: userID, Interest: v})
			}
			if err := replaceAll(tx, userID, &models.UserInterest{}, rows); err != nil {
				return err
			}
		}

		if update.Goals != nil {
			rows := make([]models.UserGoal, 0, len(*update.Goals))
			for _, v := range nonEmpty(*update.Goals) {
				rows = append(rows, models.UserGoal{UserID: userID, Goal: v})
			}
			if err := replaceAll(tx, userID, &models.UserGoal{}, rows); err != nil {
				return err
			}
		}

		if update.Traits != nil {
			rows := make([]models.PersonalityTrait, 0, len(*update.Traits))
			for _, v := range nonEmpty(*update.Traits) {
				rows = append(rows, models.PersonalityTrait{UserID: userID, Trait: v})
			}
			if err := replaceAll(tx, userID, &models.PersonalityTrait{}, rows); err != nil {
				return err
			}
		}

		if update.Connections != nil {
			rows := make([]models.SocialConnection, 0, len(*update.Connections))
			for _, c := range *update.Connections {
				if strings.TrimSpace(c.Name) == "" {
					continue
				}
				rows = append(rows, models.SocialConnection{
					UserID:       userID,
					Name:         strings.TrimSpace(c.Name),
					Relationship: c.Relationship,
					Details:      datatypes.NewJSONType(c.Details),
				})
			}
			if err := replaceAll(tx, userID, &models.SocialConnection{}, rows); err != nil {
				return err
			}
		}

		return nil
	})
}

// upsertProfile inserts the profile or updates only the columns present in in
func upsertProfile(tx *gorm.DB, userID string, in *models.ProfileInput) error {
	profile := models.UserProfile{UserID: userID}
	columns := append(in.Apply(&profile), "updated_at")

	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoUpdates: clause.AssignmentColumns(columns),
	}).Create(&profile).Error
}

// replaceAll deletes every row of model's table for userID and inserts rows
func replaceAll[T any](tx *gorm.DB, userID string, model *T, rows []T) error {
	if err := tx.Where("user_id = ?", userID).Delete(model).Error; err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	return tx.Create(&rows).Error
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
