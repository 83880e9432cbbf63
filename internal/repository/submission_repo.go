package repository

import (
	"context"

	"backoffice/internal/model"

	"gorm.io/gorm"
)

type SubmissionListFilter struct {
	DocumentKind string
	Status       string
	SessionID    string
	Page         int
	Limit        int
}

type SubmissionRepository interface {
	Log(ctx context.Context, entry *model.SubmissionLog) error
	List(ctx context.Context, filter SubmissionListFilter) ([]model.SubmissionLog, int64, error)
}

type submissionRepository struct {
	db *gorm.DB
}

func NewSubmissionRepository(db *gorm.DB) SubmissionRepository {
	return &submissionRepository{db: db}
}

func (r *submissionRepository) Log(ctx context.Context, entry *model.SubmissionLog) error {
	return GetDB(ctx, r.db).Create(entry).Error
}

func (r *submissionRepository) List(ctx context.Context, filter SubmissionListFilter) ([]model.SubmissionLog, int64, error) {
	var logs []model.SubmissionLog
	var total int64

	db := GetDB(ctx, r.db)
	if err := db.Model(&model.SubmissionLog{}).Scopes(filter.scope).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (filter.Page - 1) * filter.Limit
	if err := db.Scopes(filter.scope).Order("created_at desc").Offset(offset).Limit(filter.Limit).Find(&logs).Error; err != nil {
		return nil, 0, err
	}

	return logs, total, nil
}

func (f SubmissionListFilter) scope(db *gorm.DB) *gorm.DB {
	if f.DocumentKind != "" {
		db = db.Where("document_kind = ?", f.DocumentKind)
	}
	if f.Status != "" {
		db = db.Where("status = ?", f.Status)
	}
	if f.SessionID != "" {
		db = db.Where("session_id = ?", f.SessionID)
	}
	return db
}
