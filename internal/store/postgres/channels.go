package postgres

import (
	"context"
	"fmt"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

const upsertChannelSQL = `INSERT INTO channels (id, name, title, participants, pinned_post_id, about)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (id) DO UPDATE SET
	name = EXCLUDED.name,
	title = EXCLUDED.title,
	participants = EXCLUDED.participants,
	pinned_post_id = EXCLUDED.pinned_post_id,
	about = EXCLUDED.about`

// UpsertChannel writes a channel descriptor, overwriting every mutable
// field on repeat sightings.
func (s *Store) UpsertChannel(ctx context.Context, ch harvester.ChannelDescriptor) error {
	_, err := s.db.Exec(ctx, upsertChannelSQL,
		ch.ID, ch.Name, ch.Title, ch.Participants, ch.PinnedPostID, ch.About)
	if err != nil {
		return fmt.Errorf("upsert channel %d: %w", ch.ID, err)
	}
	return nil
}

// UpsertSimilars refreshes recommendation edges for one base channel.
// Existing edges have only the similar side's name and title refreshed;
// edges are never deleted when a channel drops out of the list.
func (s *Store) UpsertSimilars(ctx context.Context, baseID int64, similars []harvester.SimilarChannel) error {
	if len(similars) == 0 {
		return nil
	}
	args := make([]any, 0, len(similars)*4)
	for _, sim := range similars {
		args = append(args, baseID, sim.ID, sim.Name, sim.Title)
	}
	sql := fmt.Sprintf(`INSERT INTO similars (base_channel_id, similar_channel_id, name, title)
VALUES %s
ON CONFLICT ON CONSTRAINT uq_base_similar DO UPDATE SET
	name = EXCLUDED.name,
	title = EXCLUDED.title`, valuesPlaceholders(len(similars), 4))
	if _, err := s.db.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert %d similar channels for %d: %w", len(similars), baseID, err)
	}
	return nil
}
