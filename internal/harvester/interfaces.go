package harvester

import (
	"context"
	"time"
)

// Resolution is the platform identity returned for a channel handle.
type Resolution struct {
	ChannelID  int64
	AccessHash int64
}

// MessageStream is a lazy, finite sequence of history messages in
// non-decreasing publish-time order. Next returns ErrEndOfHistory when the
// stream is exhausted. Streams are not restartable; re-issue StreamMessages
// with a new lower bound instead.
type MessageStream interface {
	Next(ctx context.Context) (Message, error)
}

// Source is the channel data source capability the pipeline consumes. One
// Source session serves one worker and is not safe for concurrent
// high-level use.
type Source interface {
	ResolveHandle(ctx context.Context, name string) (Resolution, error)
	FetchChannel(ctx context.Context, peer Peer) (ChannelDescriptor, error)
	FetchSimilar(ctx context.Context, peer Peer) ([]SimilarChannel, error)
	StreamMessages(ctx context.Context, peer Peer, from time.Time) (MessageStream, error)
}

// PeerStore persists resolved channel identities per worker.
type PeerStore interface {
	// GetPeer returns nil with no error when the pair was never resolved.
	GetPeer(ctx context.Context, name string, scraperID int64) (*Peer, error)
	// PutPeer inserts a new peer row; an existing row is left untouched.
	PutPeer(ctx context.Context, peer Peer) error
}

// ChannelStore persists channel descriptors and recommendation edges.
type ChannelStore interface {
	UpsertChannel(ctx context.Context, ch ChannelDescriptor) error
	UpsertSimilars(ctx context.Context, baseID int64, similars []SimilarChannel) error
}

// PostStore persists post batches. UpsertBatch writes the whole batch in
// one transaction; a failure rolls the batch back entirely.
type PostStore interface {
	UpsertBatch(ctx context.Context, posts []Post) error
}

// RunStore persists the append-only run ledger.
type RunStore interface {
	RecordRun(ctx context.Context, run RunRecord) error
	// RunBounds returns nil with no error when the channel has no runs.
	RunBounds(ctx context.Context, channelID int64) (*RunBounds, error)
}

// Clock abstracts time.Now for deterministic tests.
type Clock interface {
	Now() time.Time
}
