package storage

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestColumnExistsPostgresScopesToCurrentSchema(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM information_schema.columns WHERE table_schema = current_schema\(\) AND table_name = \$1 AND column_name = \$2`).
		WithArgs("offers", "publish_attempts").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	ok, err := columnExists(context.Background(), db, Postgres, "offers", "publish_attempts")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}
