package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"letsvida.com/guestsos/internal/model"
)

type AlertRepository interface {
	Create(ctx context.Context, alert *model.Alert) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Alert, error)
	FindAll(ctx context.Context, statuses []model.AlertStatus, limit, offset int) ([]model.Alert, error)
	// UpdateStatusFrom applies updates only while the row's status is one of
	// allowed. Returns the number of rows touched: 0 means another responder
	// won the race and the caller should reconcile silently.
	UpdateStatusFrom(ctx context.Context, id uuid.UUID, allowed []model.AlertStatus, updates map[string]interface{}) (int64, error)
	SetEvidenceURL(ctx context.Context, id uuid.UUID, url string) error
}

type alertRepository struct {
	db *gorm.DB
}

func NewAlertRepository(db *gorm.DB) AlertRepository {
	return &alertRepository{db: db}
}

func (r *alertRepository) Create(ctx context.Context, alert *model.Alert) error {
	return r.db.WithContext(ctx).Create(alert).Error
}

func (r *alertRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Alert, error) {
	var alert model.Alert
	err := r.db.WithContext(ctx).
		Preload("Subject", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "phone", "role_id")
		}).
		First(&alert, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &alert, nil
}

func (r *alertRepository) FindAll(ctx context.Context, statuses []model.AlertStatus, limit, offset int) ([]model.Alert, error) {
	var alerts []model.Alert
	query := r.db.WithContext(ctx).Model(&model.Alert{})
	if len(statuses) > 0 {
		query = query.Where("status IN ?", statuses)
	}
	err := query.
		Order("created_at desc").
		Limit(limit).
		Offset(offset).
		Preload("Subject", func(db *gorm.DB) *gorm.DB {
			return db.Select("id", "username", "phone", "role_id")
		}).
		Find(&alerts).Error
	return alerts, err
}

func (r *alertRepository) UpdateStatusFrom(ctx context.Context, id uuid.UUID, allowed []model.AlertStatus, updates map[string]interface{}) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ? AND status IN ?", id, allowed).
		Updates(updates)
	return res.RowsAffected, res.Error
}

func (r *alertRepository) SetEvidenceURL(ctx context.Context, id uuid.UUID, url string) error {
	return r.db.WithContext(ctx).
		Model(&model.Alert{}).
		Where("id = ?", id).
		Update("evidence_url", url).Error
}
