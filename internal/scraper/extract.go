package scraper

import (
	"fmt"
	"time"

	"github.com/tgstats/channel-harvester/internal/harvester"
)

// ExtractPost maps one source message to the store-ready Post shape. It is
// pure: no I/O, no shared state. An extraction failure aborts only this
// message, never the batch it belongs to.
func ExtractPost(channelID int64, msg harvester.Message, scrapedAt time.Time) (harvester.Post, error) {
	paid, standard, custom, err := extractReactions(msg.Reactions)
	if err != nil {
		return harvester.Post{}, fmt.Errorf("post %d: %w", msg.ID, err)
	}

	flags := harvester.PostFlags{
		IsPost:     msg.IsPost,
		Silent:     msg.Silent,
		NoForwards: msg.NoForwards,
		Pinned:     msg.Pinned,
		Forwarded:  msg.FwdFrom != nil,
	}
	applyMediaFlags(&flags, msg.Media)

	var rawText *string
	if msg.RawText != "" {
		text := msg.RawText
		rawText = &text
	}

	post := harvester.Post{
		Meta: harvester.PostMeta{
			ChannelID:  channelID,
			PostID:     msg.ID,
			GroupID:    msg.GroupID,
			PostDate:   msg.Date,
			ScrapeDate: scrapedAt,
		},
		Flags: flags,
		Metrics: harvester.PostMetrics{
			Views:             msg.Views,
			Forwards:          msg.Forwards,
			Comments:          msg.Replies,
			PaidReactions:     paid,
			StandardReactions: standard,
			CustomReactions:   custom,
		},
		Content: harvester.PostContent{
			RawText:          rawText,
			URLs:             extractURLs(msg),
			Geo:              extractGeo(msg),
			Poll:             msg.Poll,
			ViaBotID:         msg.ViaBotID,
			ViaBusinessBotID: msg.ViaBusinessBotID,
		},
		Forward: extractForward(channelID, msg),
	}
	return post, nil
}

func extractReactions(reactions []harvester.Reaction) (int64, map[string]int64, map[int64]int64, error) {
	var paid int64
	var standard map[string]int64
	var custom map[int64]int64

	for _, r := range reactions {
		switch r.Kind {
		case harvester.ReactionPaid:
			paid = r.Count
		case harvester.ReactionEmoji:
			if standard == nil {
				standard = make(map[string]int64)
			}
			standard[r.Emoticon] = r.Count
		case harvester.ReactionCustomEmoji:
			if custom == nil {
				custom = make(map[int64]int64)
			}
			custom[r.DocumentID] = r.Count
		default:
			return 0, nil, nil, fmt.Errorf("unrecognized reaction kind %d", r.Kind)
		}
	}
	return paid, standard, custom, nil
}

func applyMediaFlags(flags *harvester.PostFlags, media []harvester.MediaKind) {
	for _, kind := range media {
		switch kind {
		case harvester.MediaPhoto:
			flags.Photo = true
		case harvester.MediaDocument:
			flags.Document = true
		case harvester.MediaWebPage:
			flags.Web = true
		case harvester.MediaAudio:
			flags.Audio = true
		case harvester.MediaVoice:
			flags.Voice = true
		case harvester.MediaVideo:
			flags.Video = true
		case harvester.MediaGIF:
			flags.GIF = true
		}
	}
}

// extractURLs gathers link targets from text entities. Literal URL entities
// slice the raw text by the entity span; hyperlink entities carry the target
// directly.
func extractURLs(msg harvester.Message) []string {
	var urls []string
	runes := []rune(msg.RawText)
	for _, ent := range msg.Entities {
		switch ent.Kind {
		case harvester.EntityTextURL:
			if ent.URL != "" {
				urls = append(urls, ent.URL)
			}
		case harvester.EntityURL:
			end := ent.Offset + ent.Length
			if ent.Offset >= 0 && end <= len(runes) {
				urls = append(urls, string(runes[ent.Offset:end]))
			}
		}
	}
	return urls
}

func extractGeo(msg harvester.Message) *harvester.GeoPoint {
	if msg.Geo != nil {
		return msg.Geo
	}
	return msg.VenueGeo
}

// extractForward materializes a forward edge only when the origin is a
// channel different from the one being fetched; self-forwards carry no
// attribution value.
func extractForward(channelID int64, msg harvester.Message) *harvester.ForwardOrigin {
	if msg.FwdFrom == nil || msg.FwdFrom.FromChannelID == 0 || msg.FwdFrom.FromChannelID == channelID {
		return nil
	}
	return &harvester.ForwardOrigin{
		FromChannelID: msg.FwdFrom.FromChannelID,
		FromPostID:    msg.FwdFrom.ChannelPost,
	}
}
