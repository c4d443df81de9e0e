package dbconn

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "github.com/lib/pq"
)

func TestOpenRejectsBlankDSN(t *testing.T) {
	_, err := Open(context.Background(), "   ")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DSN is required")
}

func TestConfigurePoolAppliesLimitsWhenPositive(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://unused/db")
	require.NoError(t, err)
	defer db.Close()

	ConfigurePool(db, 10, 5, time.Hour)
	stats := db.Stats()
	assert.Equal(t, 10, stats.MaxOpenConnections)
}

func TestConfigurePoolIgnoresNonPositiveValues(t *testing.T) {
	db, err := sql.Open("postgres", "postgres://unused/db")
	require.NoError(t, err)
	defer db.Close()

	ConfigurePool(db, 0, 0, 0)
	stats := db.Stats()
	assert.Equal(t, 0, stats.MaxOpenConnections)
}
