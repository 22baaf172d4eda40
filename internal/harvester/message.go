package harvester

import "time"

// ReactionKind discriminates the reaction union. The zero value is
// deliberately invalid so unmapped platform variants fail extraction
// instead of being miscounted.
type ReactionKind int

const (
	ReactionUnknown ReactionKind = iota
	ReactionPaid
	ReactionEmoji
	ReactionCustomEmoji
)

// Reaction is one aggregated reaction counter on a message. Emoticon is set
// for ReactionEmoji, DocumentID for ReactionCustomEmoji.
type Reaction struct {
	Kind       ReactionKind
	Emoticon   string
	DocumentID int64
	Count      int64
}

// MediaKind discriminates attached media variants.
type MediaKind int

const (
	MediaPhoto MediaKind = iota + 1
	MediaDocument
	MediaWebPage
	MediaAudio
	MediaVoice
	MediaVideo
	MediaGIF
)

// EntityKind discriminates text entity variants that carry links.
type EntityKind int

const (
	// EntityURL marks a literal URL in the raw text; the target is the
	// entity's span of the text itself.
	EntityURL EntityKind = iota + 1
	// EntityTextURL is a hyperlink whose target lives on the entity.
	EntityTextURL
)

// Entity is one text entity span. Offset and Length are in runes, matching
// the platform's UTF-16-agnostic span convention after decoding.
type Entity struct {
	Kind   EntityKind
	Offset int
	Length int
	URL    string
}

// GeoPoint is a longitude/latitude pair.
type GeoPoint struct {
	Long float64 `json:"long"`
	Lat  float64 `json:"lat"`
}

// Poll is the stored summary of a poll attachment.
type Poll struct {
	Question    string   `json:"question"`
	Answers     []string `json:"answers"`
	TotalVoters int64    `json:"total_voters"`
}

// ForwardHeader is the forward attribution carried by a forwarded message.
// ChannelPost is nil when the origin post id is not resolvable.
type ForwardHeader struct {
	FromChannelID int64
	ChannelPost   *int64
}

// Message is one raw history item as produced by a Source, before
// extraction into the store-ready Post shape.
type Message struct {
	ID      int64
	Date    time.Time
	GroupID *int64
	RawText string

	IsPost     bool
	Silent     bool
	NoForwards bool
	Pinned     bool

	Views    *int64
	Forwards *int64
	Replies  *int64

	Reactions []Reaction
	Media     []MediaKind
	Entities  []Entity

	Geo      *GeoPoint
	VenueGeo *GeoPoint
	Poll     *Poll

	ViaBotID         *int64
	ViaBusinessBotID *int64

	FwdFrom *ForwardHeader
}

// PostMeta is the natural-key row of a post. The surrogate id generated for
// it keys every dependent sub-row.
type PostMeta struct {
	ChannelID  int64
	PostID     int64
	GroupID    *int64
	PostDate   time.Time
	ScrapeDate time.Time
}

// PostFlags are the boolean facets of a post.
type PostFlags struct {
	IsPost     bool
	Silent     bool
	NoForwards bool
	Pinned     bool
	Forwarded  bool
	Photo      bool
	Document   bool
	Web        bool
	Audio      bool
	Voice      bool
	Video      bool
	GIF        bool
}

// PostMetrics are the numeric counters of a post. Nil pointer fields mean
// the platform withheld the counter, as distinct from zero.
type PostMetrics struct {
	Views             *int64
	Forwards          *int64
	Comments          *int64
	PaidReactions     int64
	StandardReactions map[string]int64
	CustomReactions   map[int64]int64
}

// PostContent is the sparse content row of a post.
type PostContent struct {
	RawText          *string
	URLs             []string
	Geo              *GeoPoint
	Poll             *Poll
	ViaBotID         *int64
	ViaBusinessBotID *int64
}

// Empty reports whether the content row carries nothing worth storing.
func (c PostContent) Empty() bool {
	return c.RawText == nil && len(c.URLs) == 0 && c.Geo == nil &&
		c.Poll == nil && c.ViaBotID == nil && c.ViaBusinessBotID == nil
}

// ForwardOrigin records where a forwarded post came from. Only materialized
// when the origin is a channel other than the one being fetched.
type ForwardOrigin struct {
	FromChannelID int64
	FromPostID    *int64
}

// Post is the store-ready shape of one extracted message.
type Post struct {
	Meta    PostMeta
	Flags   PostFlags
	Metrics PostMetrics
	Content PostContent
	Forward *ForwardOrigin
}
