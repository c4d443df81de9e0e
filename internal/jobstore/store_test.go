package jobstore

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/LucasBiason/threat-modeling-ai/pkg/logger"
)

func newTestStore(t *testing.T) (*Store, sqlmock.Sqlmock, func()) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	log := logger.New(logger.Config{Level: "INFO", Format: "text"})
	return NewStore(db, log), mock, func() { db.Close() }
}

func TestStoreCreateGeneratesMonotonicCode(t *testing.T) {
	store, mock, closeFn := newTestStore(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM analyses`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))
	mock.ExpectExec(`INSERT INTO analyses`).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	a, err := store.Create(context.Background(), "/tmp/image.png", "image/png")
	require.NoError(t, err)
	assert.Equal(t, "TMA-005", a.Code)
	assert.Equal(t, StatusOpen, a.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreCreateRollsBackOnInsertError(t *testing.T) {
	store, mock, closeFn := newTestStore(t)
	defer closeFn()

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM analyses`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectExec(`INSERT INTO analyses`).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := store.Create(context.Background(), "/tmp/image.png", "image/png")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMarkProcessingClaimsWhenOpen(t *testing.T) {
	store, mock, closeFn := newTestStore(t)
	defer closeFn()

	id := uuid.New()
	mock.ExpectExec(`UPDATE analyses SET status = \$1, started_at = \$2`).
		WithArgs(string(StatusProcessing), sqlmock.AnyArg(), id, string(StatusOpen)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	claimed, err := store.MarkProcessing(context.Background(), id, time.Now().UTC())
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreMarkProcessingLosesRaceWhenAlreadyClaimed(t *testing.T) {
	store, mock, closeFn := newTestStore(t)
	defer closeFn()

	id := uuid.New()
	mock.ExpectExec(`UPDATE analyses SET status = \$1, started_at = \$2`).
		WithArgs(string(StatusProcessing), sqlmock.AnyArg(), id, string(StatusOpen)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	claimed, err := store.MarkProcessing(context.Background(), id, time.Now().UTC())
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestStoreMarkAnalysedFailsPreconditionWhenNotProcessing(t *testing.T) {
	store, mock, closeFn := newTestStore(t)
	defer closeFn()

	id := uuid.New()
	mock.ExpectExec(`UPDATE analyses SET status = \$1, finished_at = \$2, result = \$3`).
		WithArgs(string(StatusDone), sqlmock.AnyArg(), []byte(`{}`), id, string(StatusProcessing)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := store.MarkAnalysed(context.Background(), id, time.Now().UTC(), []byte(`{}`))
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "precondition failed")
}

func TestStoreGetByIDNotFound(t *testing.T) {
	store, mock, closeFn := newTestStore(t)
	defer closeFn()

	id := uuid.New()
	mock.ExpectQuery(`SELECT id, code, image_path`).
		WithArgs(id).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "image_path", "content_type", "status", "created_at",
			"started_at", "finished_at", "result", "processing_logs", "error_message",
		}))

	_, err := store.GetByID(context.Background(), id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreListAllAppliesFilterAndPaginationArgs(t *testing.T) {
	store, mock, closeFn := newTestStore(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT id, code, image_path`).
		WithArgs("%TMA%", string(StatusDone), 10, 5).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "image_path", "content_type", "status", "created_at",
			"started_at", "finished_at", "result", "processing_logs", "error_message",
		}))

	_, err := store.ListAll(context.Background(), Filter{CodeSubstring: "TMA", Status: StatusDone}, Page{Offset: 5, Limit: 10})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreGetPendingReturnsNilWhenEmpty(t *testing.T) {
	store, mock, closeFn := newTestStore(t)
	defer closeFn()

	mock.ExpectQuery(`SELECT id, code, image_path`).
		WithArgs(string(StatusOpen)).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "code", "image_path", "content_type", "status", "created_at",
			"started_at", "finished_at", "result", "processing_logs", "error_message",
		}))

	a, err := store.GetPending(context.Background())
	require.NoError(t, err)
	assert.Nil(t, a)
}
