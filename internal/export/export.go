// Package export reads Telegram Desktop JSON exports as a message source.
// Each source lives in <dir>/<name>/result.json, where name is the channel
// username without "@" or the numeric channel id.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

type chat struct {
	Name     string    `json:"name"`
	Type     string    `json:"type"`
	ID       int64     `json:"id"`
	Messages []message `json:"messages"`

	dir string
	// topics are the forum topic ids, from topic_created service messages.
	topics  []int64
	topicOf map[int64]int64
}

type message struct {
	ID       int64           `json:"id"`
	Type     string          `json:"type"`
	Action   string          `json:"action"`
	Date     string          `json:"date"`
	DateUnix string          `json:"date_unixtime"`
	FromID   string          `json:"from_id"`
	Text     json.RawMessage `json:"text"`
	Photo    string          `json:"photo"`
	ReplyTo  int64           `json:"reply_to_message_id"`
	MimeType string          `json:"mime_type"`
	File     string          `json:"file"`
}

// Source implements types.MessageSource over an export directory.
type Source struct {
	dir string

	mu    sync.Mutex
	chats map[int64]*chat
}

func New(dir string) *Source {
	return &Source{dir: dir, chats: make(map[int64]*chat)}
}

func (s *Source) Resolve(_ context.Context, src types.Source) (types.Handle, error) {
	name := strings.TrimPrefix(strings.TrimSpace(src.Name), "@")
	if name == "" {
		name = strconv.FormatInt(src.ChannelID, 10)
	}
	dir := filepath.Join(s.dir, name)

	data, err := os.ReadFile(filepath.Join(dir, "result.json"))
	if errors.Is(err, fs.ErrNotExist) {
		return types.Handle{}, fmt.Errorf("%w: no export for %s", types.ErrNotFound, name)
	}
	if err != nil {
		return types.Handle{}, fmt.Errorf("read export %s: %w", name, err)
	}
	var c chat
	if err := json.Unmarshal(data, &c); err != nil {
		return types.Handle{}, fmt.Errorf("parse export %s: %w", name, err)
	}
	c.dir = dir
	c.indexTopics()

	h := types.Handle{ID: platformID(c.Type, c.ID), Title: c.Name, IsForum: len(c.topics) > 0}
	if strings.HasPrefix(c.Type, "public_") && src.Name != "" && !isNumeric(name) {
		h.Username = name
	}

	s.mu.Lock()
	s.chats[h.ID] = &c
	s.mu.Unlock()
	return h, nil
}

// ListSubStreams returns the general topic followed by every created topic
// for a forum export, and nil otherwise.
func (s *Source) ListSubStreams(_ context.Context, h types.Handle) ([]int64, error) {
	c, err := s.chat(h)
	if err != nil {
		return nil, err
	}
	if len(c.topics) == 0 {
		return nil, nil
	}
	return append([]int64{types.GeneralTopic}, c.topics...), nil
}

func (s *Source) FetchMessages(_ context.Context, h types.Handle, subStream *int64, minID int64, limit int) ([]types.RawMessage, error) {
	c, err := s.chat(h)
	if err != nil {
		return nil, err
	}

	var out []types.RawMessage
	for _, m := range c.Messages {
		if m.Type != "message" || m.ID <= minID {
			continue
		}
		if subStream != nil && !c.inTopic(m, *subStream) {
			continue
		}
		out = append(out, m.raw())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Source) DownloadImage(_ context.Context, h types.Handle, messageID int64) ([]byte, error) {
	c, err := s.chat(h)
	if err != nil {
		return nil, err
	}
	for _, m := range c.Messages {
		if m.ID != messageID {
			continue
		}
		path := m.imagePath()
		if path == "" {
			return nil, nil
		}
		data, err := os.ReadFile(filepath.Join(c.dir, filepath.FromSlash(path)))
		if err != nil {
			return nil, fmt.Errorf("read photo of message %d: %w", messageID, err)
		}
		return data, nil
	}
	return nil, nil
}

func (s *Source) chat(h types.Handle) (*chat, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chats[h.ID]
	if !ok {
		return nil, fmt.Errorf("export for %d not resolved", h.ID)
	}
	return c, nil
}

// indexTopics finds the forum topics and assigns every message to one by
// following its reply chain up to a topic root. Messages that reach no root
// belong to the general topic.
func (c *chat) indexTopics() {
	replyTo := make(map[int64]int64, len(c.Messages))
	roots := make(map[int64]bool)
	for _, m := range c.Messages {
		if m.Type == "service" && m.Action == "topic_created" && m.ID != types.GeneralTopic {
			roots[m.ID] = true
			c.topics = append(c.topics, m.ID)
		}
		if m.ReplyTo != 0 {
			replyTo[m.ID] = m.ReplyTo
		}
	}
	if len(roots) == 0 {
		return
	}
	sort.Slice(c.topics, func(i, j int) bool { return c.topics[i] < c.topics[j] })

	c.topicOf = make(map[int64]int64, len(c.Messages))
	for _, m := range c.Messages {
		topic := types.GeneralTopic
		// the hop bound guards against reply cycles in a damaged export
		for id, hops := m.ID, 0; hops <= len(c.Messages); hops++ {
			if roots[id] {
				topic = id
				break
			}
			next, ok := replyTo[id]
			if !ok {
				break
			}
			id = next
		}
		c.topicOf[m.ID] = topic
	}
}

func (c *chat) inTopic(m message, topic int64) bool {
	if c.topicOf != nil {
		return c.topicOf[m.ID] == topic
	}
	// not a forum: a pinned thread is its root and the replies to it
	return topic == types.GeneralTopic || m.ID == topic || m.ReplyTo == topic
}

func (m message) raw() types.RawMessage {
	raw := types.RawMessage{
		ID:        m.ID,
		Text:      flattenText(m.Text),
		Timestamp: m.timestamp(),
		HasImage:  m.imagePath() != "",
	}
	if id, ok := strings.CutPrefix(m.FromID, "user"); ok {
		raw.AuthorID, _ = strconv.ParseInt(id, 10, 64)
	}
	return raw
}

func (m message) timestamp() time.Time {
	if n, err := strconv.ParseInt(m.DateUnix, 10, 64); err == nil {
		return time.Unix(n, 0).UTC()
	}
	t, _ := time.ParseInLocation("2006-01-02T15:04:05", m.Date, time.Local)
	return t.UTC()
}

func (m message) imagePath() string {
	if m.Photo != "" {
		return m.Photo
	}
	if m.File != "" && strings.HasPrefix(m.MimeType, "image/") {
		return m.File
	}
	return ""
}

// flattenText joins the plain and formatted fragments of an exported text,
// which is either a string or an array of strings and entity objects.
func flattenText(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var parts []json.RawMessage
	if err := json.Unmarshal(raw, &parts); err != nil {
		return ""
	}
	var b strings.Builder
	for _, p := range parts {
		var frag string
		if err := json.Unmarshal(p, &frag); err == nil {
			b.WriteString(frag)
			continue
		}
		var ent struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(p, &ent); err == nil {
			b.WriteString(ent.Text)
		}
	}
	return b.String()
}

// platformID converts an export id to the Bot API form, which prefixes
// channels and supergroups with -100.
func platformID(kind string, id int64) int64 {
	if strings.HasSuffix(kind, "_channel") || strings.HasSuffix(kind, "_supergroup") {
		n, _ := strconv.ParseInt("-100"+strconv.FormatInt(id, 10), 10, 64)
		return n
	}
	if kind == "private_group" {
		return -id
	}
	return id
}

func isNumeric(s string) bool {
	_, err := strconv.ParseInt(s, 10, 64)
	return err == nil
}
