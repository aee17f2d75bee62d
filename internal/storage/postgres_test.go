package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/gpsjus-scraper/internal/dataset"
)

func TestPostgresStoreSave(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "tjrn_dataset")
	require.NoError(t, err)

	d := sampleDataset()
	payload, err := dataset.Marshal(d)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO tjrn_dataset").
		WithArgs(string(payload), 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), d))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreLoad(t *testing.T) {
	t.Parallel()

	payload, err := dataset.Marshal(sampleDataset())
	require.NoError(t, err)

	tests := []struct {
		name    string
		expect  func(pgxmock.PgxPoolIface)
		wantErr error
		units   int
	}{
		{
			name: "row present",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT payload::text FROM gpsjus_dataset").
					WillReturnRows(pgxmock.NewRows([]string{"payload"}).AddRow(string(payload)))
			},
			units: 2,
		},
		{
			name: "no row",
			expect: func(m pgxmock.PgxPoolIface) {
				m.ExpectQuery("SELECT payload::text FROM gpsjus_dataset").WillReturnError(pgx.ErrNoRows)
			},
			wantErr: ErrNoDataset,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			mock, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mock.Close()

			store, err := NewPostgresStoreWithPool(mock, "")
			require.NoError(t, err)
			tc.expect(mock)

			got, err := store.Load(context.Background())
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
			} else {
				require.NoError(t, err)
				assert.Len(t, got, tc.units)
			}
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStoreMigrate(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewPostgresStoreWithPool(mock, "")
	require.NoError(t, err)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS gpsjus_dataset").
		WillReturnError(errors.New("permission denied"))
	require.ErrorContains(t, store.Migrate(context.Background()), "permission denied")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStoreRejectsBadTable(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewPostgresStoreWithPool(mock, "data; DROP TABLE users")
	require.Error(t, err)
	_, err = NewPostgresStoreWithPool(nil, "x")
	require.Error(t, err)
}
