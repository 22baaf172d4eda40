package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

func strp(s string) *string { return &s }

func TestUpsertChannel(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	pinned := int64(501)
	ch := harvester.ChannelDescriptor{
		ID:           77,
		Name:         "newschannel",
		Title:        "News",
		Participants: 1500,
		PinnedPostID: &pinned,
		About:        strp("daily news"),
	}

	mock.ExpectExec("INSERT INTO channels").
		WithArgs(ch.ID, ch.Name, ch.Title, ch.Participants, ch.PinnedPostID, ch.About).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.UpsertChannel(context.Background(), ch))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSimilars(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	similars := []harvester.SimilarChannel{
		{ID: 88, Name: strp("other"), Title: strp("Other")},
		{ID: 99},
	}

	mock.ExpectExec("INSERT INTO similars").
		WithArgs(
			int64(77), int64(88), similars[0].Name, similars[0].Title,
			int64(77), int64(99), (*string)(nil), (*string)(nil),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 2))

	require.NoError(t, store.UpsertSimilars(context.Background(), 77, similars))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSimilarsEmptyListIsNoop(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	require.NoError(t, store.UpsertSimilars(context.Background(), 77, nil))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertChannelFailure(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)

	mock.ExpectExec("INSERT INTO channels").
		WillReturnError(errors.New("connection refused"))

	err := store.UpsertChannel(context.Background(), harvester.ChannelDescriptor{ID: 77})
	require.Error(t, err)
	require.Equal(t, harvester.Retry, harvester.Classify(err))
}
