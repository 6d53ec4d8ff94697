package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/noah-isme/gema-judge/internal/models"
)

// ActivityLogFilter narrows audit trail queries. Zero values match everything.
type ActivityLogFilter struct {
	Offset     int
	Limit      int
	ActorID    *uint
	Action     string
	EntityType string
	EntityID   *uint
	Since      time.Time
}

func (f ActivityLogFilter) scope(db *gorm.DB) *gorm.DB {
	if f.ActorID != nil {
		db = db.Where("actor_id = ?", *f.ActorID)
	}
	if f.Action != "" {
		db = db.Where("action = ?", f.Action)
	}
	if f.EntityType != "" {
		db = db.Where("entity_type = ?", f.EntityType)
	}
	if f.EntityID != nil {
		db = db.Where("entity_id = ?", *f.EntityID)
	}
	if !f.Since.IsZero() {
		db = db.Where("created_at >= ?", f.Since)
	}
	return db
}

// ActivityLogRepository persists the audit trail of staff actions on problems
// and auto-submission sweeps.
type ActivityLogRepository interface {
	Create(ctx context.Context, entry *models.ActivityLog) error
	List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error)
}

type activityLogRepository struct {
	db *gorm.DB
}

// NewActivityLogRepository constructs the activity log repository.
func NewActivityLogRepository(db *gorm.DB) ActivityLogRepository {
	return &activityLogRepository{db: db}
}

func (r *activityLogRepository) Create(ctx context.Context, entry *models.ActivityLog) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// List returns one page, newest first, with the total of matching rows.
func (r *activityLogRepository) List(ctx context.Context, filter ActivityLogFilter) ([]models.ActivityLog, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).
		Model(&models.ActivityLog{}).
		Scopes(filter.scope).
		Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []models.ActivityLog{}, 0, nil
	}

	page := r.db.WithContext(ctx).Scopes(filter.scope)
	if filter.Limit > 0 {
		page = page.Offset(filter.Offset).Limit(filter.Limit)
	}

	var entries []models.ActivityLog
	if err := page.Order("created_at DESC").Order("id DESC").Find(&entries).Error; err != nil {
		return nil, 0, err
	}

	return entries, total, nil
}
