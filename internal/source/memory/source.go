// Package memory provides a fixture-backed channel data source for local
// development and tests, standing in for a live platform session.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

// Channel is one fixture channel definition.
type Channel struct {
	Handle       string    `json:"handle"`
	ChannelID    int64     `json:"channel_id"`
	AccessHash   int64     `json:"access_hash"`
	Title        string    `json:"title"`
	Participants int64     `json:"participants"`
	About        *string   `json:"about,omitempty"`
	PinnedPostID *int64    `json:"pinned_post_id,omitempty"`
	Similars     []Similar `json:"similars,omitempty"`
	Messages     []Message `json:"messages,omitempty"`
}

// Similar is one fixture recommendation edge.
type Similar struct {
	ChannelID int64   `json:"channel_id"`
	Handle    *string `json:"handle,omitempty"`
	Title     *string `json:"title,omitempty"`
}

// Message is one fixture history item.
type Message struct {
	ID       int64     `json:"id"`
	Date     time.Time `json:"date"`
	Text     string    `json:"text,omitempty"`
	IsPost   bool      `json:"is_post"`
	Views    *int64    `json:"views,omitempty"`
	Forwards *int64    `json:"forwards,omitempty"`
	Replies  *int64    `json:"replies,omitempty"`
}

// Source serves fixture data through the channel data source capability.
type Source struct {
	channels map[string]Channel
}

// New loads a fixture file of channel definitions.
func New(path string) (*Source, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read fixture: %w", err)
	}
	var channels []Channel
	if err := json.Unmarshal(raw, &channels); err != nil {
		return nil, fmt.Errorf("parse fixture: %w", err)
	}
	return NewFromChannels(channels), nil
}

// NewFromChannels constructs a Source directly from definitions.
func NewFromChannels(channels []Channel) *Source {
	byHandle := make(map[string]Channel, len(channels))
	for _, ch := range channels {
		sort.Slice(ch.Messages, func(i, j int) bool {
			return ch.Messages[i].Date.Before(ch.Messages[j].Date)
		})
		byHandle[ch.Handle] = ch
	}
	return &Source{channels: byHandle}
}

// ResolveHandle looks a handle up in the fixture set.
func (s *Source) ResolveHandle(_ context.Context, name string) (harvester.Resolution, error) {
	ch, ok := s.channels[name]
	if !ok {
		return harvester.Resolution{}, harvester.ErrChannelNotFound
	}
	return harvester.Resolution{ChannelID: ch.ChannelID, AccessHash: ch.AccessHash}, nil
}

// FetchChannel returns the fixture descriptor.
func (s *Source) FetchChannel(_ context.Context, peer harvester.Peer) (harvester.ChannelDescriptor, error) {
	ch, ok := s.byID(peer.ChannelID)
	if !ok {
		return harvester.ChannelDescriptor{}, harvester.ErrChannelNotFound
	}
	return harvester.ChannelDescriptor{
		ID:           ch.ChannelID,
		Name:         ch.Handle,
		Title:        ch.Title,
		Participants: ch.Participants,
		PinnedPostID: ch.PinnedPostID,
		About:        ch.About,
	}, nil
}

// FetchSimilar returns the fixture recommendation list.
func (s *Source) FetchSimilar(_ context.Context, peer harvester.Peer) ([]harvester.SimilarChannel, error) {
	ch, ok := s.byID(peer.ChannelID)
	if !ok {
		return nil, harvester.ErrChannelNotFound
	}
	similars := make([]harvester.SimilarChannel, 0, len(ch.Similars))
	for _, sim := range ch.Similars {
		similars = append(similars, harvester.SimilarChannel{
			ID:    sim.ChannelID,
			Name:  sim.Handle,
			Title: sim.Title,
		})
	}
	return similars, nil
}

// StreamMessages streams fixture history in chronological order from the
// lower bound.
func (s *Source) StreamMessages(_ context.Context, peer harvester.Peer, from time.Time) (harvester.MessageStream, error) {
	ch, ok := s.byID(peer.ChannelID)
	if !ok {
		return nil, harvester.ErrChannelNotFound
	}
	var window []harvester.Message
	for _, m := range ch.Messages {
		if m.Date.Before(from) {
			continue
		}
		window = append(window, harvester.Message{
			ID:       m.ID,
			Date:     m.Date,
			RawText:  m.Text,
			IsPost:   m.IsPost,
			Views:    m.Views,
			Forwards: m.Forwards,
			Replies:  m.Replies,
		})
	}
	return &stream{msgs: window}, nil
}

func (s *Source) byID(channelID int64) (Channel, bool) {
	for _, ch := range s.channels {
		if ch.ChannelID == channelID {
			return ch, true
		}
	}
	return Channel{}, false
}

type stream struct {
	msgs []harvester.Message
	pos  int
}

func (st *stream) Next(context.Context) (harvester.Message, error) {
	if st.pos >= len(st.msgs) {
		return harvester.Message{}, harvester.ErrEndOfHistory
	}
	msg := st.msgs[st.pos]
	st.pos++
	return msg, nil
}
