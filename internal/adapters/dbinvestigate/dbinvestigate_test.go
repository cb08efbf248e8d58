package dbinvestigate

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInvestigate_RejectsInvalidIdentifiers(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	a := NewFromDB(db, time.Second, zerolog.Nop())
	_, err = a.Investigate(t.Context(), Request{Tables: []string{"users; DROP TABLE users"}})
	require.Error(t, err)
}

func TestInvestigate_SchemaAndIndexFindings(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("email"))
	mock.ExpectQuery("information_schema.columns").
		WillReturnRows(sqlmock.NewRows([]string{"column_name"}).AddRow("account_id"))

	a := NewFromDB(db, 5*time.Second, zerolog.Nop())
	result, err := a.Investigate(t.Context(), Request{Tables: []string{"orders"}})
	require.NoError(t, err)

	require.Len(t, result.SchemaFindings, 1)
	assert.Contains(t, result.SchemaFindings[0].Detail, "email")
	require.Len(t, result.PerformanceFindings, 1)
	assert.Contains(t, result.PerformanceFindings[0].Detail, "account_id")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInvestigate_ToleratesPerTableQueryFailure(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery("information_schema.columns").WillReturnError(assert.AnError)
	mock.ExpectQuery("information_schema.columns").WillReturnError(assert.AnError)

	a := NewFromDB(db, 5*time.Second, zerolog.Nop())
	result, err := a.Investigate(t.Context(), Request{Tables: []string{"orders"}})
	require.NoError(t, err)
	assert.Empty(t, result.SchemaFindings)
	assert.Empty(t, result.PerformanceFindings)
}
