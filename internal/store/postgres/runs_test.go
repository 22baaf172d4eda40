package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

func TestRecordRun(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	run := harvester.RunRecord{
		ChannelID:    77,
		FromDate:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		UpperBound:   time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC),
		ScrapeDate:   time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		PostsScraped: 300,
		ExecTime:     12.5,
	}

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(run.ChannelID, run.FromDate, run.UpperBound, run.ScrapeDate, run.PostsScraped, run.ExecTime).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBounds(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	earliest := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	latest := time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery("SELECT min\\(from_date\\), max\\(upper_bound\\) FROM runs").
		WithArgs(int64(77)).
		WillReturnRows(pgxmock.NewRows([]string{"min", "max"}).AddRow(&earliest, &latest))

	bounds, err := store.RunBounds(context.Background(), 77)
	require.NoError(t, err)
	require.Equal(t, &harvester.RunBounds{EarliestFrom: earliest, LatestUpper: latest}, bounds)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunBoundsNoRuns(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT min\\(from_date\\), max\\(upper_bound\\) FROM runs").
		WithArgs(int64(77)).
		WillReturnRows(pgxmock.NewRows([]string{"min", "max"}).AddRow(nil, nil))

	bounds, err := store.RunBounds(context.Background(), 77)
	require.NoError(t, err)
	require.Nil(t, bounds)
	require.NoError(t, mock.ExpectationsWereMet())
}
