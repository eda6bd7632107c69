package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// Source implements types.MessageSource on top of the Bot API. Bots cannot
// read chat history, so posts are collected from getUpdates into a per-chat
// buffer and served from there. A message leaves the buffer once a fetch
// asks only for newer ids.
//
// Telegram drops updates once a later offset is requested, so without a
// spool (see LoadSpool) anything buffered but not yet imported is lost when
// the process exits.
type Source struct {
	bot          *tgbotapi.BotAPI
	fileEndpoint string
	logger       *slog.Logger

	mu        sync.Mutex
	offset    int
	chats     map[int64]map[int64]*tgbotapi.Message
	spoolPath string

	// Set by Retain; a nil filter buffers every chat.
	keepIDs   map[int64]bool
	keepNames map[string]bool
}

// NewSource wraps bot. fileEndpoint is a format taking the token and the file
// path; empty selects the public file endpoint.
func NewSource(bot *tgbotapi.BotAPI, fileEndpoint string, logger *slog.Logger) *Source {
	if fileEndpoint == "" {
		fileEndpoint = tgbotapi.FileEndpoint
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Source{
		bot:          bot,
		fileEndpoint: fileEndpoint,
		logger:       logger,
		chats:        make(map[int64]map[int64]*tgbotapi.Message),
	}
}

// LoadSpool restores the buffer and update offset kept at path and keeps the
// file current from then on. Updates are acknowledged to Telegram only after
// the spool holding them has been written.
func (s *Source) LoadSpool(path string) error {
	sp, err := readSpool(path)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.spoolPath = path
	if sp.Offset > s.offset {
		s.offset = sp.Offset
	}
	for _, m := range sp.Messages {
		s.buffer(m)
	}
	s.logger.Debug("spool loaded", "path", path, "messages", len(sp.Messages), "offset", s.offset)
	return nil
}

// Retain restricts buffering to the chats of sources, matched by channel id
// or public username, and drops what is buffered for any other chat.
func (s *Source) Retain(_ context.Context, sources []types.Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.keepIDs = make(map[int64]bool)
	s.keepNames = make(map[string]bool)
	for _, src := range sources {
		if src.ChannelID != 0 {
			s.keepIDs[src.ChannelID] = true
		}
		if name := usernameKey(src.Name); name != "" {
			s.keepNames[name] = true
		}
	}

	dropped := 0
	for id, buf := range s.chats {
		var chat *tgbotapi.Chat
		for _, m := range buf {
			chat = m.Chat
			break
		}
		if chat == nil || !s.keeps(chat) {
			dropped += len(buf)
			delete(s.chats, id)
		}
	}
	if dropped == 0 {
		return nil
	}
	s.logger.Debug("dropped messages of unregistered chats", "count", dropped)
	return s.save()
}

func (s *Source) Resolve(_ context.Context, src types.Source) (types.Handle, error) {
	cfg := tgbotapi.ChatInfoConfig{ChatConfig: tgbotapi.ChatConfig{ChatID: src.ChannelID}}
	if src.ChannelID == 0 {
		name := strings.TrimSpace(src.Name)
		if name == "" {
			return types.Handle{}, types.ErrNotFound
		}
		if !strings.HasPrefix(name, "@") {
			name = "@" + name
		}
		cfg.SuperGroupUsername = name
	}

	chat, err := s.bot.GetChat(cfg)
	if err != nil {
		var apiErr *tgbotapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusBadRequest {
			return types.Handle{}, fmt.Errorf("%w: %s", types.ErrNotFound, apiErr.Message)
		}
		return types.Handle{}, fmt.Errorf("get chat %s: %w", src.Label(), err)
	}

	s.mu.Lock()
	if s.keepIDs != nil {
		s.keepIDs[chat.ID] = true
	}
	s.mu.Unlock()
	return types.Handle{ID: chat.ID, Username: chat.UserName, Title: chat.Title}, nil
}

// ListSubStreams always reports a single stream: the Bot API version in use
// exposes no topic list.
func (s *Source) ListSubStreams(context.Context, types.Handle) ([]int64, error) {
	return nil, nil
}

// FetchMessages drains pending updates and returns buffered messages of the
// chat newer than minID. A non-general subStream keeps only replies to the
// topic's root message.
func (s *Source) FetchMessages(ctx context.Context, h types.Handle, subStream *int64, minID int64, limit int) ([]types.RawMessage, error) {
	if err := s.poll(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	buf := s.chats[h.ID]
	var out []types.RawMessage
	pruned := false
	for id, m := range buf {
		if id <= minID {
			delete(buf, id)
			pruned = true
			continue
		}
		if subStream != nil && *subStream != types.GeneralTopic && !inTopic(m, *subStream) {
			continue
		}
		out = append(out, rawMessage(m))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	if pruned {
		if err := s.save(); err != nil {
			s.logger.Warn("spool not pruned", "error", err)
		}
	}
	return out, nil
}

func (s *Source) DownloadImage(ctx context.Context, h types.Handle, messageID int64) ([]byte, error) {
	s.mu.Lock()
	m := s.chats[h.ID][messageID]
	s.mu.Unlock()
	if m == nil || len(m.Photo) == 0 {
		return nil, nil
	}

	largest := m.Photo[len(m.Photo)-1]
	file, err := s.bot.GetFile(tgbotapi.FileConfig{FileID: largest.FileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(s.fileEndpoint, s.bot.Token, file.FilePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.bot.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download photo: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download photo: status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// poll moves every pending update into the buffer. Each batch is spooled
// before the next request acknowledges it.
func (s *Source) poll(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cfg := tgbotapi.NewUpdate(s.offset)
		cfg.Limit = 100
		cfg.AllowedUpdates = []string{"message", "channel_post"}
		updates, err := s.bot.GetUpdates(cfg)
		if err != nil {
			return fmt.Errorf("get updates: %w", err)
		}
		if len(updates) == 0 {
			return nil
		}
		for _, u := range updates {
			s.offset = u.UpdateID + 1
			m := u.ChannelPost
			if m == nil {
				m = u.Message
			}
			if m == nil || m.Chat == nil || !s.keeps(m.Chat) {
				continue
			}
			s.buffer(m)
		}
		if err := s.save(); err != nil {
			return err
		}
		s.logger.Debug("buffered updates", "count", len(updates), "offset", s.offset)
	}
}

func (s *Source) buffer(m *tgbotapi.Message) {
	if m == nil || m.Chat == nil {
		return
	}
	buf := s.chats[m.Chat.ID]
	if buf == nil {
		buf = make(map[int64]*tgbotapi.Message)
		s.chats[m.Chat.ID] = buf
	}
	buf[int64(m.MessageID)] = m
}

// keeps reports whether messages of chat are buffered. Callers hold mu.
func (s *Source) keeps(chat *tgbotapi.Chat) bool {
	if s.keepIDs == nil {
		return true
	}
	return s.keepIDs[chat.ID] || s.keepNames[usernameKey(chat.UserName)]
}

// save writes the buffer to the spool file, if any. Callers hold mu.
func (s *Source) save() error {
	if s.spoolPath == "" {
		return nil
	}
	sp := spool{Offset: s.offset}
	for _, buf := range s.chats {
		for _, m := range buf {
			sp.Messages = append(sp.Messages, m)
		}
	}
	return writeSpool(s.spoolPath, sp)
}

func usernameKey(name string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(name), "@"))
}

func inTopic(m *tgbotapi.Message, topic int64) bool {
	if int64(m.MessageID) == topic {
		return true
	}
	return m.ReplyToMessage != nil && int64(m.ReplyToMessage.MessageID) == topic
}

func rawMessage(m *tgbotapi.Message) types.RawMessage {
	raw := types.RawMessage{
		ID:        int64(m.MessageID),
		Text:      m.Text,
		Timestamp: m.Time().UTC(),
		HasImage:  len(m.Photo) > 0,
	}
	if raw.Text == "" {
		raw.Text = m.Caption
	}
	if m.From != nil {
		raw.AuthorUsername = m.From.UserName
		raw.AuthorID = m.From.ID
	}
	return raw
}
