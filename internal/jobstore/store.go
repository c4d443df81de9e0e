package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"

	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

// ErrNotFound is returned by GetByID/GetImagePath when no row matches.
var ErrNotFound = errors.New("analysis not found")

// Store is the Postgres-backed Analysis repository over a single *sql.DB,
// adapted from the teacher's BaseStore and trimmed to exactly what this
// module needs.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// NewStore wraps an already-opened *sql.DB.
func NewStore(db *sql.DB, log *logger.Logger) *Store {
	return &Store{db: db, log: log}
}

// Create inserts a new Open analysis with the next monotonic code, counted
// under the same transaction as the insert. The count takes no lock, so two
// concurrent creates can compute the same code; the unique index on `code`
// then rejects the second insert.
func (s *Store) Create(ctx context.Context, imagePath, contentType string) (*Analysis, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM analyses`).Scan(&count); err != nil {
		return nil, fmt.Errorf("count analyses: %w", err)
	}
	code := fmt.Sprintf("TMA-%03d", count+1)

	a := &Analysis{
		ID:          uuid.New(),
		Code:        code,
		ImagePath:   imagePath,
		ContentType: contentType,
		Status:      StatusOpen,
		CreatedAt:   time.Now().UTC(),
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO analyses (id, code, image_path, content_type, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		a.ID, a.Code, a.ImagePath, a.ContentType, a.Status, a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert analysis: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit create: %w", err)
	}
	return a, nil
}

// GetByID loads one Analysis, returning ErrNotFound if absent.
func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, image_path, content_type, status, created_at, started_at,
		       finished_at, result, processing_logs, error_message
		FROM analyses WHERE id = $1`, id)
	return scanAnalysis(row)
}

// GetImagePath returns just the stored image path, for the worker's blob
// read and the HTTP image-serving endpoint.
func (s *Store) GetImagePath(ctx context.Context, id uuid.UUID) (string, error) {
	var path string
	err := s.db.QueryRowContext(ctx, `SELECT image_path FROM analyses WHERE id = $1`, id).Scan(&path)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("get image path: %w", err)
	}
	return path, nil
}

// ListAll returns analyses matching filter, newest-first, within page.
func (s *Store) ListAll(ctx context.Context, filter Filter, page Page) ([]*Analysis, error) {
	query := `
		SELECT id, code, image_path, content_type, status, created_at, started_at,
		       finished_at, result, processing_logs, error_message
		FROM analyses WHERE 1=1`
	var args []interface{}
	argN := 0

	next := func(v interface{}) string {
		argN++
		args = append(args, v)
		return fmt.Sprintf("$%d", argN)
	}

	if filter.CodeSubstring != "" {
		query += " AND code ILIKE " + next("%"+filter.CodeSubstring+"%")
	}
	if filter.Status != "" {
		query += " AND status = " + next(filter.Status)
	}
	if filter.CreatedAtFrom != nil {
		query += " AND created_at >= " + next(*filter.CreatedAtFrom)
	}
	if filter.CreatedAtTo != nil {
		query += " AND created_at <= " + next(*filter.CreatedAtTo)
	}

	query += " ORDER BY created_at DESC"
	if page.Limit > 0 {
		query += " LIMIT " + next(page.Limit)
	}
	if page.Offset > 0 {
		query += " OFFSET " + next(page.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list analyses: %w", err)
	}
	defer rows.Close()

	var out []*Analysis
	for rows.Next() {
		a, err := scanAnalysisRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// MarkProcessing attempts the Open -> Processing compare-and-set claim.
// It returns (true, nil) only if this call actually performed the
// transition; false means another worker already claimed it (or it was
// never Open), and is not an error.
func (s *Store) MarkProcessing(ctx context.Context, id uuid.UUID, startedAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET status = $1, started_at = $2
		WHERE id = $3 AND status = $4`,
		StatusProcessing, startedAt, id, StatusOpen)
	if err != nil {
		return false, fmt.Errorf("claim analysis: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim rows affected: %w", err)
	}
	return rows == 1, nil
}

// MarkAnalysed transitions Processing -> Done, storing the result payload.
func (s *Store) MarkAnalysed(ctx context.Context, id uuid.UUID, finishedAt time.Time, result []byte) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET status = $1, finished_at = $2, result = $3
		WHERE id = $4 AND status = $5`,
		StatusDone, finishedAt, result, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark analysed: %w", err)
	}
	return checkOneRow(res, "mark analysed")
}

// MarkFailed transitions Processing -> Failed, storing the error message.
func (s *Store) MarkFailed(ctx context.Context, id uuid.UUID, finishedAt time.Time, errorMessage string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET status = $1, finished_at = $2, error_message = $3
		WHERE id = $4 AND status = $5`,
		StatusFailed, finishedAt, errorMessage, id, StatusProcessing)
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return checkOneRow(res, "mark failed")
}

// AppendProcessingLog appends one "[<ISO-8601>] <message>" line, matching
// the original service's log format exactly.
func (s *Store) AppendProcessingLog(ctx context.Context, id uuid.UUID, message string) error {
	line := fmt.Sprintf("[%s] %s\n", time.Now().UTC().Format(time.RFC3339), message)
	_, err := s.db.ExecContext(ctx, `
		UPDATE analyses SET processing_logs = COALESCE(processing_logs, '') || $1
		WHERE id = $2`, line, id)
	if err != nil {
		return fmt.Errorf("append processing log: %w", err)
	}
	return nil
}

// GetPending returns the oldest Open analysis, or nil if none.
func (s *Store) GetPending(ctx context.Context) (*Analysis, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, code, image_path, content_type, status, created_at, started_at,
		       finished_at, result, processing_logs, error_message
		FROM analyses WHERE status = $1 ORDER BY created_at ASC LIMIT 1`, StatusOpen)
	a, err := scanAnalysis(row)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return a, err
}

func checkOneRow(res sql.Result, op string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", op, err)
	}
	if rows != 1 {
		return fmt.Errorf("%s: precondition failed, no row transitioned", op)
	}
	return nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row *sql.Row) (*Analysis, error) {
	a, err := scanInto(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return a, err
}

func scanAnalysisRows(rows *sql.Rows) (*Analysis, error) {
	return scanInto(rows)
}

func scanInto(s scanner) (*Analysis, error) {
	var a Analysis
	var startedAt, finishedAt sql.NullTime
	var result sql.NullString
	var processingLogs, errorMessage sql.NullString

	if err := s.Scan(&a.ID, &a.Code, &a.ImagePath, &a.ContentType, &a.Status, &a.CreatedAt,
		&startedAt, &finishedAt, &result, &processingLogs, &errorMessage); err != nil {
		return nil, err
	}
	if startedAt.Valid {
		a.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		a.FinishedAt = &finishedAt.Time
	}
	if result.Valid {
		a.Result = []byte(result.String)
	}
	a.ProcessingLogs = processingLogs.String
	a.ErrorMessage = errorMessage.String
	return &a, nil
}
