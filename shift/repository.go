package shift

import (
	"context"
	"errors"

	"timekeeping/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Repository interface {
	FindShiftForUser(ctx context.Context, userID uuid.UUID) (*models.Shift, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindShiftForUser returns nil, nil when the user exists but has no shift.
func (r *repository) FindShiftForUser(ctx context.Context, userID uuid.UUID) (*models.Shift, error) {
	var user models.User
	err := r.db.WithContext(ctx).
		Preload("Shift.WorkLocation").
		First(&user, "id = ?", userID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return user.Shift, nil
}
