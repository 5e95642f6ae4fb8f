package correction

import (
	"context"

	"timekeeping/attendance"
	"timekeeping/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type Repository interface {
	Transaction(ctx context.Context, fn func(tx Repository) error) error

	Create(ctx context.Context, c *models.CorrectionRequest) error
	FindByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CorrectionRequest, error)
	Update(ctx context.Context, c *models.CorrectionRequest) error
	Delete(ctx context.Context, id uuid.UUID) error
	ListByOrg(ctx context.Context, orgID uuid.UUID, status string) ([]models.CorrectionRequest, error)
	ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CorrectionRequest, error)

	// Sessions exposes the attendance store on the same connection, so a
	// correction and the sessions it rewrites share one transaction.
	Sessions() attendance.Repository
}

type repository struct {
	db   *gorm.DB
	inTx bool
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Transaction(ctx context.Context, fn func(tx Repository) error) error {
	if r.inTx {
		return fn(r)
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&repository{db: tx, inTx: true})
	})
}

func (r *repository) Sessions() attendance.Repository {
	if r.inTx {
		return attendance.NewTxRepository(r.db)
	}
	return attendance.NewRepository(r.db)
}

func (r *repository) Create(ctx context.Context, c *models.CorrectionRequest) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID, forUpdate bool) (*models.CorrectionRequest, error) {
	q := r.db.WithContext(ctx)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var c models.CorrectionRequest
	if err := q.First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) Update(ctx context.Context, c *models.CorrectionRequest) error {
	return r.db.WithContext(ctx).Save(c).Error
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Delete(&models.CorrectionRequest{}, "id = ?", id).Error
}

func (r *repository) ListByOrg(ctx context.Context, orgID uuid.UUID, status string) ([]models.CorrectionRequest, error) {
	q := r.db.WithContext(ctx).Where("org_id = ?", orgID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var rows []models.CorrectionRequest
	err := q.Order("created_at DESC").Find(&rows).Error
	return rows, err
}

func (r *repository) ListByUser(ctx context.Context, userID uuid.UUID) ([]models.CorrectionRequest, error) {
	var rows []models.CorrectionRequest
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}
