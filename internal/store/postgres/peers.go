package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

const getPeerSQL = `SELECT channel_id, access_hash FROM peers
WHERE channel_name = $1 AND scraper_id = $2`

const putPeerSQL = `INSERT INTO peers (scraper_id, channel_name, channel_id, access_hash)
VALUES ($1, $2, $3, $4)
ON CONFLICT ON CONSTRAINT uq_peer_scraper DO NOTHING`

// GetPeer returns the cached resolution for (name, scraperID), or nil when
// the pair has never been resolved.
func (s *Store) GetPeer(ctx context.Context, name string, scraperID int64) (*harvester.Peer, error) {
	p := harvester.Peer{ScraperID: scraperID, ChannelName: name}
	err := s.db.QueryRow(ctx, getPeerSQL, name, scraperID).Scan(&p.ChannelID, &p.AccessHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get peer %q: %w", name, err)
	}
	return &p, nil
}

// PutPeer stores a freshly resolved peer. An existing row for the same
// (name, scraper) pair is left untouched; access hashes are only valid for
// the session that produced them, so the first write wins.
func (s *Store) PutPeer(ctx context.Context, peer harvester.Peer) error {
	_, err := s.db.Exec(ctx, putPeerSQL,
		peer.ScraperID, peer.ChannelName, peer.ChannelID, peer.AccessHash)
	if err != nil {
		return fmt.Errorf("put peer %q: %w", peer.ChannelName, err)
	}
	return nil
}
