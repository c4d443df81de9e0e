// Package notification implements the user-visible alert repository and
// service (C9): create on analysis completion, list unread, mark read.
// Grounded on original_source threat-service/app/notification/* and
// built on sqlx (declared but never imported in the teacher's own source,
// first real use here) for its named-query convenience over plain
// database/sql.
package notification

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// Notification is one user-visible alert tied to a completed analysis.
type Notification struct {
	ID         uuid.UUID `db:"id"`
	AnalysisID uuid.UUID `db:"analysis_id"`
	Title      string    `db:"title"`
	Message    string    `db:"message"`
	IsRead     bool      `db:"is_read"`
	Link       string    `db:"link"`
	CreatedAt  time.Time `db:"created_at"`
}

// Repository is the sqlx-backed persistence layer.
type Repository struct {
	db  *sqlx.DB
	log *logger.Logger
}

// NewRepository wraps an already-opened *sqlx.DB.
func NewRepository(db *sqlx.DB, log *logger.Logger) *Repository {
	return &Repository{db: db, log: log}
}

// Create inserts a new unread notification for analysisID.
func (r *Repository) Create(ctx context.Context, analysisID uuid.UUID, title, message, link string) (*Notification, error) {
	n := &Notification{
		ID:         uuid.New(),
		AnalysisID: analysisID,
		Title:      title,
		Message:    message,
		IsRead:     false,
		Link:       link,
		CreatedAt:  time.Now().UTC(),
	}
	_, err := r.db.NamedExecContext(ctx, `
		INSERT INTO notifications (id, analysis_id, title, message, is_read, link, created_at)
		VALUES (:id, :analysis_id, :title, :message, :is_read, :link, :created_at)`, n)
	if err != nil {
		return nil, err
	}
	return n, nil
}

// ListUnread returns up to limit unread notifications, newest first.
func (r *Repository) ListUnread(ctx context.Context, limit int) ([]Notification, error) {
	if limit <= 0 {
		limit = 20
	}
	var out []Notification
	err := r.db.SelectContext(ctx, &out, `
		SELECT id, analysis_id, title, message, is_read, link, created_at
		FROM notifications WHERE is_read = false
		ORDER BY created_at DESC LIMIT $1`, limit)
	return out, err
}

// MarkRead flips one notification's is_read to true, returning false (not
// an error) if the id is unknown.
func (r *Repository) MarkRead(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE notifications SET is_read = true WHERE id = $1 AND is_read = false`, id)
	if err != nil {
		return false, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if rows == 1 {
		return true, nil
	}
	// Distinguish "already read" from "unknown id" for the HTTP layer's
	// 204-vs-404 decision.
	var exists bool
	if err := r.db.GetContext(ctx, &exists, `SELECT EXISTS(SELECT 1 FROM notifications WHERE id = $1)`, id); err != nil {
		return false, err
	}
	return exists, nil
}

// Service wraps Repository with the logging the worker's completion path
// expects, matching the original's thin NotificationRepository usage
// directly from AnalysisProcessingService without an extra service layer
// — kept here as a distinct type only because C9 names it as one.
type Service struct {
	repo *Repository
	log  *logger.Logger
}

// NewService builds a Service over repo.
func NewService(repo *Repository, log *logger.Logger) *Service {
	return &Service{repo: repo, log: log}
}

// NotifyAnalysisComplete creates the "Análise Concluída" notification the
// worker emits on every successful analysis, matching the original
// message template exactly.
func (s *Service) NotifyAnalysisComplete(ctx context.Context, analysisID uuid.UUID, code, riskLevel string, threatCount int) error {
	title := "Análise Concluída"
	message := formatCompletionMessage(code, riskLevel, threatCount)
	link := "/analyses/" + analysisID.String()
	_, err := s.repo.Create(ctx, analysisID, title, message, link)
	if err != nil {
		s.log.WithError(err).WithField("analysis_id", analysisID).Warn("failed to create completion notification")
		return err
	}
	return nil
}

func formatCompletionMessage(code, riskLevel string, threatCount int) string {
	return "Análise " + code + " concluída. Risco: " + riskLevel + ". " + strconv.Itoa(threatCount) + " ameaças identificadas."
}
