package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

// postKey is the natural key of a post within the platform.
type postKey struct {
	channelID int64
	postID    int64
}

// UpsertBatch writes one batch of posts across the normalized post tables
// inside a single transaction. Metadata rows go first and return the
// surrogate key per natural key; dependent flag/metric/content/forward rows
// are written against those keys. A failure anywhere rolls back the whole
// batch, which is then safe to retry wholesale.
func (s *Store) UpsertBatch(ctx context.Context, posts []harvester.Post) error {
	if len(posts) == 0 {
		return nil
	}
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin batch transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	ids, err := upsertMetadata(ctx, tx, posts)
	if err != nil {
		return err
	}
	if err := upsertFlags(ctx, tx, posts, ids); err != nil {
		return err
	}
	if err := upsertMetrics(ctx, tx, posts, ids); err != nil {
		return err
	}
	if err := upsertContent(ctx, tx, posts, ids); err != nil {
		return err
	}
	if err := upsertForwards(ctx, tx, posts, ids); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit batch of %d posts: %w", len(posts), err)
	}
	return nil
}

func upsertMetadata(ctx context.Context, tx pgx.Tx, posts []harvester.Post) (map[postKey]int64, error) {
	args := make([]any, 0, len(posts)*5)
	for _, p := range posts {
		args = append(args, p.Meta.ChannelID, p.Meta.PostID, p.Meta.GroupID, p.Meta.PostDate, p.Meta.ScrapeDate)
	}
	sql := fmt.Sprintf(`INSERT INTO posts_metadata (channel_id, post_id, group_id, post_date, scrape_date)
VALUES %s
ON CONFLICT ON CONSTRAINT uq_channel_post DO UPDATE SET
	group_id = EXCLUDED.group_id,
	post_date = EXCLUDED.post_date,
	scrape_date = EXCLUDED.scrape_date
RETURNING id, channel_id, post_id`, valuesPlaceholders(len(posts), 5))

	rows, err := tx.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("upsert post metadata: %w", err)
	}
	defer rows.Close()

	ids := make(map[postKey]int64, len(posts))
	for rows.Next() {
		var id int64
		var key postKey
		if err := rows.Scan(&id, &key.channelID, &key.postID); err != nil {
			return nil, fmt.Errorf("scan post metadata key: %w", err)
		}
		ids[key] = id
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read post metadata keys: %w", err)
	}
	if len(ids) != len(posts) {
		return nil, fmt.Errorf("post metadata upsert returned %d keys for %d posts", len(ids), len(posts))
	}
	return ids, nil
}

func postID(ids map[postKey]int64, p harvester.Post) (int64, error) {
	id, ok := ids[postKey{channelID: p.Meta.ChannelID, postID: p.Meta.PostID}]
	if !ok {
		return 0, fmt.Errorf("no surrogate key for post (%d, %d)", p.Meta.ChannelID, p.Meta.PostID)
	}
	return id, nil
}

func upsertFlags(ctx context.Context, tx pgx.Tx, posts []harvester.Post, ids map[postKey]int64) error {
	args := make([]any, 0, len(posts)*13)
	for _, p := range posts {
		id, err := postID(ids, p)
		if err != nil {
			return err
		}
		f := p.Flags
		args = append(args, id,
			f.IsPost, f.Silent, f.NoForwards, f.Pinned, f.Forwarded,
			f.Photo, f.Document, f.Web, f.Audio, f.Voice, f.Video, f.GIF)
	}
	sql := fmt.Sprintf(`INSERT INTO posts_flags (id, is_post, silent, noforwards, pinned, forwarded, photo, document, web, audio, voice, video, gif)
VALUES %s
ON CONFLICT (id) DO UPDATE SET
	is_post = EXCLUDED.is_post,
	silent = EXCLUDED.silent,
	noforwards = EXCLUDED.noforwards,
	pinned = EXCLUDED.pinned,
	forwarded = EXCLUDED.forwarded,
	photo = EXCLUDED.photo,
	document = EXCLUDED.document,
	web = EXCLUDED.web,
	audio = EXCLUDED.audio,
	voice = EXCLUDED.voice,
	video = EXCLUDED.video,
	gif = EXCLUDED.gif`, valuesPlaceholders(len(posts), 13))
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert post flags: %w", err)
	}
	return nil
}

func upsertMetrics(ctx context.Context, tx pgx.Tx, posts []harvester.Post, ids map[postKey]int64) error {
	args := make([]any, 0, len(posts)*7)
	for _, p := range posts {
		id, err := postID(ids, p)
		if err != nil {
			return err
		}
		standard, err := marshalMap(p.Metrics.StandardReactions)
		if err != nil {
			return fmt.Errorf("encode standard reactions for post %d: %w", p.Meta.PostID, err)
		}
		custom, err := marshalMap(p.Metrics.CustomReactions)
		if err != nil {
			return fmt.Errorf("encode custom reactions for post %d: %w", p.Meta.PostID, err)
		}
		args = append(args, id,
			p.Metrics.Views, p.Metrics.Forwards, p.Metrics.Comments,
			p.Metrics.PaidReactions, standard, custom)
	}
	sql := fmt.Sprintf(`INSERT INTO posts_metrics (id, views, forwards, comments, paid_reactions, standard_reactions, custom_reactions)
VALUES %s
ON CONFLICT (id) DO UPDATE SET
	views = EXCLUDED.views,
	forwards = EXCLUDED.forwards,
	comments = EXCLUDED.comments,
	paid_reactions = EXCLUDED.paid_reactions,
	standard_reactions = EXCLUDED.standard_reactions,
	custom_reactions = EXCLUDED.custom_reactions`, valuesPlaceholders(len(posts), 7))
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert post metrics: %w", err)
	}
	return nil
}

// upsertContent writes content rows only for posts that carry content;
// posts with nothing to store get no row at all.
func upsertContent(ctx context.Context, tx pgx.Tx, posts []harvester.Post, ids map[postKey]int64) error {
	var args []any
	var count int
	for _, p := range posts {
		if p.Content.Empty() {
			continue
		}
		id, err := postID(ids, p)
		if err != nil {
			return err
		}
		var geoLong, geoLat *float64
		if p.Content.Geo != nil {
			geoLong, geoLat = &p.Content.Geo.Long, &p.Content.Geo.Lat
		}
		var poll []byte
		if p.Content.Poll != nil {
			poll, err = json.Marshal(p.Content.Poll)
			if err != nil {
				return fmt.Errorf("encode poll for post %d: %w", p.Meta.PostID, err)
			}
		}
		args = append(args, id,
			p.Content.RawText, p.Content.URLs, geoLong, geoLat, poll,
			p.Content.ViaBotID, p.Content.ViaBusinessBotID)
		count++
	}
	if count == 0 {
		return nil
	}
	sql := fmt.Sprintf(`INSERT INTO posts_content (id, raw_text, urls, geo_long, geo_lat, poll, via_bot_id, via_business_bot_id)
VALUES %s
ON CONFLICT (id) DO UPDATE SET
	raw_text = EXCLUDED.raw_text,
	urls = EXCLUDED.urls,
	geo_long = EXCLUDED.geo_long,
	geo_lat = EXCLUDED.geo_lat,
	poll = EXCLUDED.poll,
	via_bot_id = EXCLUDED.via_bot_id,
	via_business_bot_id = EXCLUDED.via_business_bot_id`, valuesPlaceholders(count, 8))
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert post content: %w", err)
	}
	return nil
}

// upsertForwards writes forward edges for forwarded posts. Edges are facts
// about the origin and never change, so conflicts are ignored.
func upsertForwards(ctx context.Context, tx pgx.Tx, posts []harvester.Post, ids map[postKey]int64) error {
	var args []any
	var count int
	for _, p := range posts {
		if p.Forward == nil {
			continue
		}
		id, err := postID(ids, p)
		if err != nil {
			return err
		}
		args = append(args, id, p.Forward.FromChannelID, p.Forward.FromPostID)
		count++
	}
	if count == 0 {
		return nil
	}
	sql := fmt.Sprintf(`INSERT INTO forwards (id, from_channel_id, from_post_id)
VALUES %s
ON CONFLICT (id) DO NOTHING`, valuesPlaceholders(count, 3))
	if _, err := tx.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("upsert forward origins: %w", err)
	}
	return nil
}

// marshalMap encodes a reaction map as JSON, mapping an absent map to SQL
// NULL rather than the string "null".
func marshalMap[K comparable](m map[K]int64) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}
