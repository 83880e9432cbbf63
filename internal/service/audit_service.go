package service

import (
	"context"

	ierr "backoffice/internal/errors"
	"backoffice/internal/model"
	"backoffice/internal/repository"

	"github.com/samber/lo"
)

type SubmissionLogFilter struct {
	DocumentKind string // purchase_invoice, inbound_delivery or empty for all
	Status       string // SUCCEEDED, FAILED or empty for all
	SessionID    string
	Page         int
	Limit        int
}

type SubmissionLogResponse struct {
	ID             string `json:"id"`
	SessionID      string `json:"session_id"`
	UserID         string `json:"user_id"`
	DocumentKind   string `json:"document_kind"`
	DocumentID     *int64 `json:"document_id"`
	Action         string `json:"action"`
	Status         string `json:"status"`
	ActiveLines    int    `json:"active_lines"`
	DestroyedLines int    `json:"destroyed_lines"`
	Payload        string `json:"payload"`
	Error          string `json:"error,omitempty"`
	CreatedAt      string `json:"created_at"`
}

type AuditService interface {
	ListSubmissions(ctx context.Context, filter SubmissionLogFilter) ([]SubmissionLogResponse, int64, error)
}

type auditService struct {
	repo      repository.SubmissionRepository
	txManager repository.TransactionManager
}

func NewAuditService(repo repository.SubmissionRepository, txManager repository.TransactionManager) AuditService {
	return &auditService{repo: repo, txManager: txManager}
}

func (s *auditService) ListSubmissions(ctx context.Context, filter SubmissionLogFilter) ([]SubmissionLogResponse, int64, error) {
	var logs []model.SubmissionLog
	var total int64

	// Count and page share one transaction so the total matches the rows.
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		logs, total, err = s.repo.List(txCtx, repository.SubmissionListFilter{
			DocumentKind: filter.DocumentKind,
			Status:       filter.Status,
			SessionID:    filter.SessionID,
			Page:         filter.Page,
			Limit:        filter.Limit,
		})
		return err
	})
	if err != nil {
		return nil, 0, ierr.WithError(err).
			WithHint("Could not load submission history").
			Mark(ierr.ErrDatabase)
	}

	return lo.Map(logs, func(l model.SubmissionLog, _ int) SubmissionLogResponse {
		return SubmissionLogResponse{
			ID:             l.ID.String(),
			SessionID:      l.SessionID,
			UserID:         l.UserID,
			DocumentKind:   l.DocumentKind,
			DocumentID:     l.DocumentID,
			Action:         l.Action,
			Status:         l.Status,
			ActiveLines:    l.ActiveLines,
			DestroyedLines: l.DestroyedLines,
			Payload:        l.Payload,
			Error:          l.Error,
			CreatedAt:      l.CreatedAt.Format("2006-01-02 15:04:05"),
		}
	}), total, nil
}
