package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

func i64(v int64) *int64 { return &v }

// anyArgs builds n wildcard argument matchers; pgxmock requires the
// expected argument count to match even when values are unconstrained.
func anyArgs(n int) []interface{} {
	args := make([]interface{}, n)
	for i := range args {
		args[i] = pgxmock.AnyArg()
	}
	return args
}

func samplePost(postID int64) harvester.Post {
	return harvester.Post{
		Meta: harvester.PostMeta{
			ChannelID:  77,
			PostID:     postID,
			PostDate:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			ScrapeDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		Flags: harvester.PostFlags{IsPost: true, Photo: true},
		Metrics: harvester.PostMetrics{
			Views:             i64(1200),
			PaidReactions:     3,
			StandardReactions: map[string]int64{"👍": 10},
		},
		Content: harvester.PostContent{
			RawText: strp("hello"),
			URLs:    []string{"https://example.com"},
		},
	}
}

func TestUpsertBatchWritesAllTables(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	post := samplePost(501)
	post.Forward = &harvester.ForwardOrigin{FromChannelID: 900, FromPostID: i64(42)}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO posts_metadata").
		WithArgs(anyArgs(5)...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "channel_id", "post_id"}).
			AddRow(int64(1), int64(77), int64(501)))
	mock.ExpectExec("INSERT INTO posts_flags").
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO posts_metrics").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO posts_content").
		WithArgs(anyArgs(8)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO forwards").
		WithArgs(anyArgs(3)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertBatch(context.Background(), []harvester.Post{post}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchSkipsSparseRows(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	// Nothing to store beyond metadata, flags, and metrics: no content row,
	// no forward edge.
	post := harvester.Post{
		Meta: harvester.PostMeta{
			ChannelID:  77,
			PostID:     502,
			PostDate:   time.Date(2024, 3, 2, 12, 0, 0, 0, time.UTC),
			ScrapeDate: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC),
		},
		Flags: harvester.PostFlags{IsPost: true},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO posts_metadata").
		WithArgs(anyArgs(5)...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "channel_id", "post_id"}).
			AddRow(int64(2), int64(77), int64(502)))
	mock.ExpectExec("INSERT INTO posts_flags").
		WithArgs(anyArgs(13)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO posts_metrics").
		WithArgs(anyArgs(7)...).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	require.NoError(t, store.UpsertBatch(context.Background(), []harvester.Post{post}))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchEmptyIsNoop(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	require.NoError(t, store.UpsertBatch(context.Background(), nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO posts_metadata").
		WithArgs(anyArgs(5)...).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := store.UpsertBatch(context.Background(), []harvester.Post{samplePost(501)})
	require.Error(t, err)
	require.Equal(t, harvester.Retry, harvester.Classify(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertBatchMissingSurrogateKeyFails(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectBegin()
	// Metadata returns keys for a different post than the one submitted.
	mock.ExpectQuery("INSERT INTO posts_metadata").
		WithArgs(anyArgs(5)...).
		WillReturnRows(pgxmock.NewRows([]string{"id", "channel_id", "post_id"}).
			AddRow(int64(1), int64(77), int64(999)))
	mock.ExpectRollback()

	err := store.UpsertBatch(context.Background(), []harvester.Post{samplePost(501)})
	require.Error(t, err)
	require.Contains(t, err.Error(), "no surrogate key")
}
