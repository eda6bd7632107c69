package pipeline

import (
	"time"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// Run status values.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"
	StatusFailed  = "failed"
)

// Summary is the end-of-run report.
type Summary struct {
	RunID             types.RunID    `json:"run_id"`
	Status            string         `json:"status"`
	ChannelsSynced    int            `json:"channels_synced"`
	TotalChannels     int            `json:"total_channels"`
	FailedChannels    int            `json:"failed_channels"`
	MessagesProcessed int            `json:"messages_processed"`
	EventsImported    int            `json:"events_imported"`
	PostsLogged       int            `json:"posts_logged"`
	DuplicatesSkipped int            `json:"duplicates_skipped"`
	StartedAt         time.Time      `json:"started_at"`
	Timestamp         time.Time      `json:"timestamp"`
	Sources           []SourceResult `json:"sources"`
}

// SourceResult is the outcome of one source within a run.
type SourceResult struct {
	Source           string `json:"source"`
	State            State  `json:"state"`
	Error            string `json:"error,omitempty"`
	SubStreams       int    `json:"substreams"`
	FailedSubStreams int    `json:"failed_substreams"`
	Messages         int    `json:"messages"`
	Events           int    `json:"events"`
	Posts            int    `json:"posts"`
	Duplicates       int    `json:"duplicates"`
	CursorFrom       int64  `json:"cursor_from"`
	CursorTo         int64  `json:"cursor_to"`
}

func (s *Summary) add(r SourceResult) {
	s.Sources = append(s.Sources, r)
	s.MessagesProcessed += r.Messages
	s.EventsImported += r.Events
	s.PostsLogged += r.Posts
	s.DuplicatesSkipped += r.Duplicates
	if r.State == Errored {
		s.FailedChannels++
	} else {
		s.ChannelsSynced++
	}
}

func (s *Summary) finish(now time.Time) {
	s.Timestamp = now
	switch {
	case s.Status == StatusFailed:
	case s.FailedChannels > 0:
		s.Status = StatusPartial
	default:
		s.Status = StatusSuccess
	}
}
