package worker

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucasBiason/threat-modeling-ai/internal/jobstore"
	"github.com/LucasBiason/threat-modeling-ai/internal/notification"
	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

func testLog() *logger.Logger {
	return logger.New(logger.Config{Level: "INFO", Format: "text"})
}

func newAnalysisRows(id uuid.UUID, status jobstore.Status, imagePath string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "code", "image_path", "content_type", "status", "created_at",
		"started_at", "finished_at", "result", "processing_logs", "error_message",
	}).AddRow(id, "TMA-001", imagePath, "image/png", status, time.Now().UTC(), nil, nil, nil, "", "")
}

func TestProcessSkipsAlreadyDoneAnalysis(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := jobstore.NewStore(db, testLog())

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, code, image_path`).
		WithArgs(id).
		WillReturnRows(newAnalysisRows(id, jobstore.StatusDone, "/tmp/does-not-matter.png"))

	p := New(store, nil, NewAnalyzerClient("http://unused"), testLog())
	outcome := p.Process(context.Background(), id)

	assert.True(t, outcome.Skipped)
	assert.Equal(t, string(jobstore.StatusDone), outcome.Status)
}

func TestProcessReturnsNotFoundForUnknownID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := jobstore.NewStore(db, testLog())

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, code, image_path`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "image_path", "content_type", "status", "created_at",
			"started_at", "finished_at", "result", "processing_logs", "error_message",
		}))

	p := New(store, nil, NewAnalyzerClient("http://unused"), testLog())
	outcome := p.Process(context.Background(), id)

	assert.Equal(t, "Analysis not found", outcome.Error)
}

func TestProcessFailsWhenImageFileMissing(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := jobstore.NewStore(db, testLog())

	id := uuid.New()
	missingPath := "/tmp/threat-modeling-ai-test-missing-image.png"
	_ = os.Remove(missingPath)

	mock.ExpectQuery(`SELECT id, code, image_path`).
		WithArgs(id).
		WillReturnRows(newAnalysisRows(id, jobstore.StatusOpen, missingPath))
	mock.ExpectExec(`UPDATE analyses SET status = \$1, started_at = \$2`).
		WithArgs(string(jobstore.StatusProcessing), sqlmock.AnyArg(), id, string(jobstore.StatusOpen)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE analyses SET processing_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT image_path FROM analyses WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"image_path"}).AddRow(missingPath))
	mock.ExpectExec(`UPDATE analyses SET processing_logs`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE analyses SET status = \$1, finished_at = \$2, error_message = \$3`).
		WithArgs(string(jobstore.StatusFailed), sqlmock.AnyArg(), "Image file not found", id, string(jobstore.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	p := New(store, nil, NewAnalyzerClient("http://unused"), testLog())
	outcome := p.Process(context.Background(), id)

	assert.Equal(t, string(jobstore.StatusFailed), outcome.Status)
	assert.Equal(t, "Image file not found", outcome.Error)
}

func TestProcessSucceedsEndToEnd(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	store := jobstore.NewStore(db, testLog())

	notifDB, notifMock, err := sqlmock.New()
	require.NoError(t, err)
	defer notifDB.Close()
	notifRepo := notification.NewRepository(sqlx.NewDb(notifDB, "postgres"), testLog())
	notifSvc := notification.NewService(notifRepo, testLog())

	imgFile, err := os.CreateTemp(t.TempDir(), "diagram-*.png")
	require.NoError(t, err)
	_, err = imgFile.Write([]byte("fake-image-bytes"))
	require.NoError(t, err)
	require.NoError(t, imgFile.Close())

	analyzer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"risk_level": "High", "threats": [{"category": "Spoofing"}, {"category": "Tampering"}]}`))
	}))
	defer analyzer.Close()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, code, image_path`).
		WithArgs(id).
		WillReturnRows(newAnalysisRows(id, jobstore.StatusOpen, imgFile.Name()))
	mock.ExpectExec(`UPDATE analyses SET status = \$1, started_at = \$2`).
		WithArgs(string(jobstore.StatusProcessing), sqlmock.AnyArg(), id, string(jobstore.StatusOpen)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE analyses SET processing_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT image_path FROM analyses WHERE id = \$1`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{"image_path"}).AddRow(imgFile.Name()))
	mock.ExpectExec(`UPDATE analyses SET processing_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE analyses SET processing_logs`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE analyses SET status = \$1, finished_at = \$2, result = \$3`).
		WithArgs(string(jobstore.StatusDone), sqlmock.AnyArg(), sqlmock.AnyArg(), id, string(jobstore.StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	notifMock.ExpectExec(`INSERT INTO notifications`).WillReturnResult(sqlmock.NewResult(1, 1))

	analyzerClient := NewAnalyzerClient(analyzer.URL)
	p := New(store, notifSvc, analyzerClient, testLog())
	outcome := p.Process(context.Background(), id)

	assert.Equal(t, string(jobstore.StatusDone), outcome.Status)
	assert.Equal(t, 2, outcome.ThreatCount)
	assert.Equal(t, "High", outcome.RiskLevel)
	assert.NoError(t, mock.ExpectationsWereMet())
	assert.NoError(t, notifMock.ExpectationsWereMet())
}
