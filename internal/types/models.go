// internal/types/models.go
package types

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Source is one registered feed together with its persisted progress.
type Source struct {
	RowID       int64  `json:"id"`
	ChannelID   int64  `json:"channel_id"`
	Name        string `json:"channel_name"`
	SubStreamID *int64 `json:"thread_id,omitempty"`
	Cursor      int64  `json:"last_processed_message_id"`
	Tag         string `json:"city"`
}

// Label identifies the source in logs.
func (s Source) Label() string {
	if s.Name != "" {
		return s.Name
	}
	return strconv.FormatInt(s.ChannelID, 10)
}

// TagValue returns the tag in the form it is written to destination rows:
// numeric tags as integers, empty tags as nil.
func (s Source) TagValue() any {
	return tagValue(s.Tag)
}

func tagValue(tag string) any {
	if tag == "" {
		return nil
	}
	if n, err := strconv.ParseInt(tag, 10, 64); err == nil {
		return n
	}
	return tag
}

// Handle is a resolved, fetchable feed.
type Handle struct {
	// ID is the platform chat id; channels and supergroups carry the -100 prefix.
	ID       int64
	Username string
	Title    string
	IsForum  bool
}

// BareID strips the -100 channel prefix and the sign from the chat id.
func (h Handle) BareID() int64 {
	id := h.ID
	if id >= 0 {
		return id
	}
	s := strconv.FormatInt(-id, 10)
	if len(s) > 3 && strings.HasPrefix(s, "100") {
		if bare, err := strconv.ParseInt(s[3:], 10, 64); err == nil {
			return bare
		}
	}
	return -id
}

// ChannelName is "@username" for public feeds and "channel_<id>" otherwise.
func (h Handle) ChannelName() string {
	if h.Username != "" {
		return "@" + h.Username
	}
	return fmt.Sprintf("channel_%d", h.BareID())
}

// PostLink returns the public link of a message. The general topic (1) and the
// implicit stream produce the short form.
func (h Handle) PostLink(subStream *int64, messageID int64) string {
	base := fmt.Sprintf("https://t.me/c/%d", h.BareID())
	if h.Username != "" {
		base = "https://t.me/" + h.Username
	}
	if subStream != nil && *subStream != GeneralTopic {
		return fmt.Sprintf("%s/%d/%d", base, *subStream, messageID)
	}
	return fmt.Sprintf("%s/%d", base, messageID)
}

// GeneralTopic is the id of the default topic of a forum.
const GeneralTopic int64 = 1

// RawMessage is one fetched message reduced to what the pipeline needs.
type RawMessage struct {
	ID             int64
	Text           string
	Timestamp      time.Time
	HasImage       bool
	AuthorUsername string
	AuthorID       int64
}

// AuthorHandle returns the sender username, "user_<id>" when only an id is
// known, or "".
func (m RawMessage) AuthorHandle() string {
	if m.AuthorUsername != "" {
		return m.AuthorUsername
	}
	if m.AuthorID != 0 {
		return fmt.Sprintf("user_%d", m.AuthorID)
	}
	return ""
}

// AuthorLink is the profile link of a sender with a public username.
func (m RawMessage) AuthorLink() string {
	if m.AuthorUsername == "" {
		return ""
	}
	return "https://t.me/" + m.AuthorUsername
}

// EventCandidate is one sanitized classification result. Empty WhenDay and
// WhenTime mean "unknown" and are persisted as null.
type EventCandidate struct {
	IsEvent     bool
	Title       string
	TitleDop    string
	WhenDay     string
	WhenTime    string
	Where       string
	Price       *int64
	IsPriceFrom bool
	Currency    string
	IsOnline    bool
	Category    int64
	LinkContact string
	LinkMap     string
	LinkSite    string
	Description string
}

// Recordable reports whether the candidate describes an event at all: either
// flagged so by the classifier or carrying both a title and a date.
func (c EventCandidate) Recordable() bool {
	return c.IsEvent || (c.Title != "" && c.WhenDay != "")
}

// PostRecord is the raw-log shape written to the posts table.
type PostRecord struct {
	Candidate      EventCandidate
	ChannelName    string
	MessageID      int64
	Content        string
	PostedAt       time.Time
	PostLink       string
	RawChannelID   int64
	AuthorUsername string
	AuthorLink     string
	ImageURL       string
	Tag            string
}

// IsEventFiltered is true only for candidates with a concrete date.
func (p PostRecord) IsEventFiltered() bool {
	return p.Candidate.WhenDay != ""
}

// Row renders the record with every column the posts table may accept.
// Columns outside a table's allow-list are dropped by the writer.
func (p PostRecord) Row() Row {
	c := p.Candidate
	description := p.Content
	if description == "" {
		description = c.Description
	}
	contact := c.LinkContact
	if contact == "" {
		contact = p.AuthorUsername
	}

	r := Row{
		"title":             c.Title,
		"title_dop":         c.TitleDop,
		"description":       description,
		"whenDay":           nullable(c.WhenDay),
		"whenTime":          nullable(c.WhenTime),
		"where":             c.Where,
		"price":             nil,
		"isPriceFrom":       c.IsPriceFrom,
		"currency":          c.Currency,
		"isOnline":          c.IsOnline,
		"category":          c.Category,
		"link_contact":      contact,
		"link_map":          c.LinkMap,
		"link_site":         c.LinkSite,
		"is_event":          p.IsEventFiltered(),
		"is_event_filtered": p.IsEventFiltered(),
		"channel_name":      p.ChannelName,
		"message_id":        p.MessageID,
		"content":           p.Content,
		"posted_at":         p.PostedAt.UTC().Format(time.RFC3339),
		"post_link":         p.PostLink,
		"raw_channel_id":    p.RawChannelID,
		"author_username":   p.AuthorUsername,
		"author_link":       p.AuthorLink,
		"city":              tagValue(p.Tag),
	}
	if c.Price != nil {
		r["price"] = *c.Price
	}
	if p.ImageURL != "" {
		r["image"] = p.ImageURL
		r["image_url"] = p.ImageURL
	}
	return r
}

// EventRecord is the normalized event derived from a dated PostRecord.
type EventRecord struct {
	Post   PostRecord
	Author AuthorID
}

func (e EventRecord) Title() string   { return e.Post.Candidate.Title }
func (e EventRecord) WhenDay() string { return e.Post.Candidate.WhenDay }

// Row renders the event on top of the post row.
func (e EventRecord) Row() Row {
	r := e.Post.Row()
	r["isAuto"] = true
	r["author"] = string(e.Author)
	r["created_at"] = r["posted_at"]
	if e.Post.PostLink != "" {
		r["link_site"] = e.Post.PostLink
	}
	return r
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
