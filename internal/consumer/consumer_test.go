package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tgstats/channel-harvester/internal/floodguard"
	"github.com/tgstats/channel-harvester/internal/harvester"
	"github.com/tgstats/channel-harvester/internal/ledger"
	"github.com/tgstats/channel-harvester/internal/peers"
	"github.com/tgstats/channel-harvester/internal/queue"
	"github.com/tgstats/channel-harvester/internal/queue/memory"
	"github.com/tgstats/channel-harvester/internal/scraper"
)

type memSource struct {
	resolveErr error
	msgs       []harvester.Message
}

func (s *memSource) ResolveHandle(context.Context, string) (harvester.Resolution, error) {
	if s.resolveErr != nil {
		return harvester.Resolution{}, s.resolveErr
	}
	return harvester.Resolution{ChannelID: 77, AccessHash: 5}, nil
}

func (s *memSource) FetchChannel(_ context.Context, peer harvester.Peer) (harvester.ChannelDescriptor, error) {
	return harvester.ChannelDescriptor{ID: peer.ChannelID, Name: peer.ChannelName, Title: "News"}, nil
}

func (s *memSource) FetchSimilar(context.Context, harvester.Peer) ([]harvester.SimilarChannel, error) {
	return nil, nil
}

func (s *memSource) StreamMessages(_ context.Context, _ harvester.Peer, from time.Time) (harvester.MessageStream, error) {
	var window []harvester.Message
	for _, m := range s.msgs {
		if !m.Date.Before(from) {
			window = append(window, m)
		}
	}
	return &sliceStream{msgs: window}, nil
}

type sliceStream struct {
	msgs []harvester.Message
	pos  int
}

func (s *sliceStream) Next(context.Context) (harvester.Message, error) {
	if s.pos >= len(s.msgs) {
		return harvester.Message{}, harvester.ErrEndOfHistory
	}
	msg := s.msgs[s.pos]
	s.pos++
	return msg, nil
}

// memStore is an in-memory stand-in for every persistence interface,
// with an optional one-shot batch failure to simulate a storage outage.
type memStore struct {
	mu         sync.Mutex
	peers      map[string]harvester.Peer
	channels   map[int64]harvester.ChannelDescriptor
	posts      map[[2]int64]harvester.Post
	runs       []harvester.RunRecord
	failBatch  bool
	peerWrites int
}

func newMemStore() *memStore {
	return &memStore{
		peers:    map[string]harvester.Peer{},
		channels: map[int64]harvester.ChannelDescriptor{},
		posts:    map[[2]int64]harvester.Post{},
	}
}

func (s *memStore) GetPeer(_ context.Context, name string, scraperID int64) (*harvester.Peer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.peers[fmt.Sprintf("%s/%d", name, scraperID)]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (s *memStore) PutPeer(_ context.Context, p harvester.Peer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s/%d", p.ChannelName, p.ScraperID)
	if _, ok := s.peers[key]; !ok {
		s.peers[key] = p
		s.peerWrites++
	}
	return nil
}

func (s *memStore) UpsertChannel(_ context.Context, ch harvester.ChannelDescriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels[ch.ID] = ch
	return nil
}

func (s *memStore) UpsertSimilars(context.Context, int64, []harvester.SimilarChannel) error {
	return nil
}

func (s *memStore) UpsertBatch(_ context.Context, posts []harvester.Post) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failBatch {
		s.failBatch = false
		return errors.New("storage unavailable")
	}
	for _, p := range posts {
		s.posts[[2]int64{p.Meta.ChannelID, p.Meta.PostID}] = p
	}
	return nil
}

func (s *memStore) RecordRun(_ context.Context, run harvester.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

func (s *memStore) RunBounds(_ context.Context, channelID int64) (*harvester.RunBounds, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var bounds *harvester.RunBounds
	for _, r := range s.runs {
		if r.ChannelID != channelID {
			continue
		}
		if bounds == nil {
			bounds = &harvester.RunBounds{EarliestFrom: r.FromDate, LatestUpper: r.UpperBound}
			continue
		}
		if r.FromDate.Before(bounds.EarliestFrom) {
			bounds.EarliestFrom = r.FromDate
		}
		if r.UpperBound.After(bounds.LatestUpper) {
			bounds.LatestUpper = r.UpperBound
		}
	}
	return bounds, nil
}

func (s *memStore) runCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.runs)
}

func (s *memStore) postCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.posts)
}

type fixedClock struct{ now time.Time }

func (c *fixedClock) Now() time.Time {
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

func newConsumer(src harvester.Source, store *memStore, tasks *memory.Queue) *Consumer {
	logger := zap.NewNop()
	clock := &fixedClock{now: time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)}
	guard := floodguard.New(clock, 0, logger)
	resolver := peers.New(store, src, guard, 1, logger)
	metadata := scraper.NewMetadataScraper(src, store, logger)
	posts := scraper.NewPostScraper(src, store, ledger.New(store, logger), clock,
		scraper.PostScraperConfig{BatchSize: 250, MaxPosts: 20000}, logger)
	return New(tasks, resolver, metadata, posts, logger)
}

func messages(n int, start time.Time) []harvester.Message {
	msgs := make([]harvester.Message, 0, n)
	for i := range n {
		msgs = append(msgs, harvester.Message{
			ID:     int64(i + 1),
			Date:   start.Add(time.Duration(i) * time.Hour),
			IsPost: true,
		})
	}
	return msgs
}

type stubDelivery struct {
	body    []byte
	acked   bool
	nacked  bool
	requeue bool
}

func (d *stubDelivery) Body() []byte { return d.body }

func (d *stubDelivery) Ack() error {
	d.acked = true
	return nil
}

func (d *stubDelivery) Nack(requeue bool) error {
	d.nacked = true
	d.requeue = requeue
	return nil
}

func TestHandleSuccessfulScrape(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memSource{msgs: messages(10, start)}
	store := newMemStore()
	c := newConsumer(src, store, nil)

	outcome := c.Handle(context.Background(), harvester.Task{
		Type:        harvester.TaskTypeScrape,
		ChannelName: "@newschannel",
		FromDate:    "01-01-2024",
	})
	require.Equal(t, harvester.Success, outcome)
	require.Len(t, store.posts, 10)
	require.Len(t, store.runs, 1)
	require.Equal(t, int64(10), store.runs[0].PostsScraped)
	require.Contains(t, store.channels, int64(77))
}

func TestHandleUnknownTaskTypeDropped(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	c := newConsumer(&memSource{}, store, nil)

	outcome := c.Handle(context.Background(), harvester.Task{Type: "reindex", ChannelName: "x"})
	require.Equal(t, harvester.Drop, outcome)
	require.Empty(t, store.posts)
	require.Empty(t, store.channels)
}

func TestHandleInvalidHandleDroppedWithoutStoreWrites(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	c := newConsumer(&memSource{}, store, nil)

	outcome := c.Handle(context.Background(), harvester.Task{
		Type:        harvester.TaskTypeScrape,
		ChannelName: "not a handle!",
	})
	require.Equal(t, harvester.Drop, outcome)
	require.Empty(t, store.peers)
	require.Empty(t, store.posts)
	require.Empty(t, store.runs)
}

func TestHandleMalformedDateDropped(t *testing.T) {
	t.Parallel()

	c := newConsumer(&memSource{}, newMemStore(), nil)

	outcome := c.Handle(context.Background(), harvester.Task{
		Type:        harvester.TaskTypeScrape,
		ChannelName: "newschannel",
		FromDate:    "2024-01-01",
	})
	require.Equal(t, harvester.Drop, outcome)
}

func TestHandleChannelNotFoundDropped(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	c := newConsumer(&memSource{resolveErr: harvester.ErrChannelNotFound}, store, nil)

	outcome := c.Handle(context.Background(), harvester.Task{
		Type:        harvester.TaskTypeScrape,
		ChannelName: "ghostchannel",
	})
	require.Equal(t, harvester.Drop, outcome)
	require.Empty(t, store.posts)
}

func TestHandleStorageOutageRetriesToSameState(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memSource{msgs: messages(10, start)}
	store := newMemStore()
	store.failBatch = true
	c := newConsumer(src, store, nil)

	task := harvester.Task{
		Type:        harvester.TaskTypeScrape,
		ChannelName: "newschannel",
		FromDate:    "01-01-2024",
	}

	outcome := c.Handle(context.Background(), task)
	require.Equal(t, harvester.Retry, outcome)
	require.Empty(t, store.posts)
	require.Empty(t, store.runs)

	// Redelivery with the store restored succeeds and produces the same
	// state as a single clean run; the peer row is not written twice.
	outcome = c.Handle(context.Background(), task)
	require.Equal(t, harvester.Success, outcome)
	require.Len(t, store.posts, 10)
	require.Len(t, store.runs, 1)
	require.Equal(t, 1, store.peerWrites)
}

func TestProcessAcksMalformedPayload(t *testing.T) {
	t.Parallel()

	c := newConsumer(&memSource{}, newMemStore(), nil)

	d := &stubDelivery{body: []byte(`{not json`)}
	c.process(context.Background(), d)
	require.True(t, d.acked)
	require.False(t, d.nacked)
}

func TestProcessNacksRetryableFailure(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	store.failBatch = true
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newConsumer(&memSource{msgs: messages(3, start)}, store, nil)

	body, err := queue.EncodeTask(harvester.Task{
		Type:        harvester.TaskTypeScrape,
		ChannelName: "newschannel",
	})
	require.NoError(t, err)

	d := &stubDelivery{body: body}
	c.process(context.Background(), d)
	require.True(t, d.nacked)
	require.True(t, d.requeue)
	require.False(t, d.acked)
}

func TestRunProcessesUntilCanceled(t *testing.T) {
	t.Parallel()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	src := &memSource{msgs: messages(3, start)}
	store := newMemStore()
	q := memory.NewQueue(4)
	c := newConsumer(src, store, q)

	require.NoError(t, q.Publish(context.Background(), harvester.Task{
		Type:        harvester.TaskTypeScrape,
		ChannelName: "newschannel",
	}))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		return q.Len() == 0 && store.runCount() == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("consumer did not stop on cancellation")
	}
	require.Equal(t, 3, store.postCount())
}
