// Package pipeline drives a sync run: for every registered source it fetches
// new messages, classifies them, writes posts and events, and advances the
// source's cursor.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/falcorrus/bao-tg-importer/internal/batch"
	"github.com/falcorrus/bao-tg-importer/internal/classify"
	"github.com/falcorrus/bao-tg-importer/internal/cursor"
	"github.com/falcorrus/bao-tg-importer/internal/dedup"
	"github.com/falcorrus/bao-tg-importer/internal/metrics"
	"github.com/falcorrus/bao-tg-importer/internal/normalize"
	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// State is the position of a source in its run.
type State string

const (
	Resolving   State = "RESOLVING"
	Enumerating State = "ENUMERATING_SUBSTREAMS"
	Fetching    State = "FETCHING"
	Classifying State = "CLASSIFYING"
	Flushing    State = "FLUSHING"
	Advancing   State = "ADVANCING_CURSOR"
	Done        State = "DONE"
	Errored     State = "ERRORED"
)

// DefaultPageSize bounds one fetch per substream.
const DefaultPageSize = 50

// Classifier returns raw event objects for a message text.
type Classifier interface {
	Classify(ctx context.Context, text string, posted time.Time) ([]map[string]any, error)
}

// Deps are the collaborators of an Orchestrator.
type Deps struct {
	Source     types.MessageSource
	Store      types.Store
	Cursors    *cursor.Store
	Classifier Classifier
	Dedup      *dedup.Checker
	Writer     *batch.Writer
	Metrics    *metrics.Metrics
	Logger     *slog.Logger
}

// Config holds per-run settings.
type Config struct {
	PageSize    int
	ImageBucket string
	Author      types.AuthorID
	// Now defaults to time.Now.
	Now func() time.Time
}

type Orchestrator struct {
	Deps
	cfg Config
}

func New(deps Deps, cfg Config) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{Deps: deps, cfg: cfg}
}

// run is the state shared by every source of one run.
type run struct {
	id     types.RunID
	date   string
	logger *slog.Logger
	// seen holds the events stored so far, for the local duplicate check.
	// Events of a failed insert stay out so a later copy can still be written.
	seen []types.EventRecord
}

// Run processes every registered source sequentially. It returns an error
// only when the source list cannot be read; per-source failures are logged
// and reflected in the summary.
func (o *Orchestrator) Run(ctx context.Context) (Summary, error) {
	started := o.cfg.Now()
	r := &run{id: types.NewRunID(), date: started.Format(time.DateOnly)}
	r.logger = o.Logger.With("run_id", r.id)

	sum := Summary{RunID: r.id, StartedAt: started}
	sources, err := o.Cursors.Sources(ctx)
	if err != nil {
		sum.Status = StatusFailed
		sum.finish(o.cfg.Now())
		return sum, err
	}
	sum.TotalChannels = len(sources)
	r.logger.Info("sync started", "sources", len(sources))

	if ret, ok := o.Source.(types.Retainer); ok {
		if err := ret.Retain(ctx, sources); err != nil {
			r.logger.Warn("retain sources failed", "error", err)
		}
	}

	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}
		res := o.syncSource(ctx, r, src)
		sum.add(res)
	}

	finished := o.cfg.Now()
	sum.finish(finished)
	o.Metrics.RunFinished(finished.Sub(started), finished)
	r.logger.Info("sync finished",
		"status", sum.Status,
		"channels_synced", sum.ChannelsSynced,
		"total_channels", sum.TotalChannels,
		"messages_processed", sum.MessagesProcessed,
		"events_imported", sum.EventsImported,
		"posts_logged", sum.PostsLogged,
		"duplicates_skipped", sum.DuplicatesSkipped)
	return sum, ctx.Err()
}

func (o *Orchestrator) syncSource(ctx context.Context, r *run, src types.Source) SourceResult {
	res := SourceResult{Source: src.Label()}
	logger := r.logger.With("source", src.Label())
	enter := func(s State) {
		res.State = s
		logger.Debug("source state", "state", s)
	}
	fail := func(err error) SourceResult {
		enter(Errored)
		res.Error = err.Error()
		logger.Error("source failed", "error", err)
		o.Metrics.SourceDone(metrics.SourceFailed)
		return res
	}

	enter(Resolving)
	h, err := o.Source.Resolve(ctx, src)
	if err != nil {
		return fail(fmt.Errorf("resolve: %w", err))
	}
	if src.ChannelID == 0 && h.ID != 0 {
		if err := o.Cursors.RecordChannelID(ctx, src, h.ID); err != nil {
			logger.Warn("channel id backfill failed", "error", err)
		}
	}
	from, err := o.Cursors.Load(ctx, src)
	if err != nil {
		return fail(err)
	}
	res.CursorFrom, res.CursorTo = from, from

	enter(Enumerating)
	streams, err := o.subStreams(ctx, src, h)
	if err != nil {
		return fail(fmt.Errorf("list substreams: %w", err))
	}
	res.SubStreams = len(streams)

	maxSeen := from
	for _, ss := range streams {
		ssLogger := logger.With("substream", label(ss))

		enter(Fetching)
		msgs, err := o.Source.FetchMessages(ctx, h, ss, from, o.cfg.PageSize)
		if err != nil {
			res.FailedSubStreams++
			ssLogger.Warn("fetch failed, skipping substream", "error", err)
			continue
		}
		sort.Slice(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })

		enter(Classifying)
		var pg page
		for _, m := range msgs {
			if err := ctx.Err(); err != nil {
				return fail(err)
			}
			res.Messages++
			o.Metrics.MessageProcessed()
			if m.ID > maxSeen {
				maxSeen = m.ID
			}
			if strings.TrimSpace(m.Text) == "" {
				continue
			}
			o.processMessage(ctx, r, ssLogger, src, h, ss, m, &pg)
		}
		res.Duplicates += pg.duplicates

		enter(Flushing)
		posts := o.Writer.WritePosts(ctx, pg.posts)
		events, stored := o.Writer.WriteEvents(ctx, pg.events)
		r.seen = append(r.seen, stored...)
		res.Posts += posts.Written
		res.Events += events.Written
		if err := errors.Join(posts.Err, events.Err); err != nil {
			ssLogger.Warn("flush incomplete", "error", err)
		}
		ssLogger.Info("substream synced", "messages", len(msgs), "events", events.Written, "posts", posts.Written)
	}

	enter(Advancing)
	if maxSeen > from {
		advanced, err := o.Cursors.Advance(ctx, src, maxSeen)
		switch {
		case err != nil:
			logger.Error("cursor not persisted", "cursor", maxSeen, "error", err)
		case advanced:
			res.CursorTo = maxSeen
		}
	}

	enter(Done)
	if res.CursorTo > res.CursorFrom {
		o.Metrics.SourceDone(metrics.SourceSynced)
	} else {
		o.Metrics.SourceDone(metrics.SourceUnchanged)
	}
	return res
}

// subStreams returns the pinned substream, the discovered ones, or a single
// nil entry for the implicit stream.
func (o *Orchestrator) subStreams(ctx context.Context, src types.Source, h types.Handle) ([]*int64, error) {
	if src.SubStreamID != nil {
		return []*int64{src.SubStreamID}, nil
	}
	ids, err := o.Source.ListSubStreams(ctx, h)
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*int64{nil}, nil
	}
	out := make([]*int64, len(ids))
	for i := range ids {
		out[i] = &ids[i]
	}
	return out, nil
}

// page collects the records of one fetched substream page.
type page struct {
	posts      []types.PostRecord
	events     []types.EventRecord
	duplicates int
}

func (o *Orchestrator) processMessage(ctx context.Context, r *run, logger *slog.Logger, src types.Source, h types.Handle, ss *int64, m types.RawMessage, pg *page) {
	logger = logger.With("message_id", m.ID)

	items, err := o.Classifier.Classify(ctx, normalize.NormalizeText(m.Text), m.Timestamp)
	if err != nil {
		if !errors.Is(err, classify.ErrNoResult) {
			logger.Warn("classification failed, skipping message", "error", err)
		}
		return
	}

	var candidates []types.EventCandidate
	for _, item := range items {
		if c := normalize.Sanitize(item); c.Recordable() {
			candidates = append(candidates, c)
		}
	}
	if len(candidates) == 0 {
		return
	}

	content := normalize.CleanMarkup(m.Text)
	image, fetched := "", false
	for _, c := range candidates {
		post := types.PostRecord{
			Candidate:      c,
			ChannelName:    h.ChannelName(),
			MessageID:      m.ID,
			Content:        content,
			PostedAt:       m.Timestamp,
			PostLink:       h.PostLink(ss, m.ID),
			RawChannelID:   h.ID,
			AuthorUsername: m.AuthorHandle(),
			AuthorLink:     m.AuthorLink(),
			Tag:            src.Tag,
		}
		ev := types.EventRecord{Post: post, Author: o.cfg.Author}

		if v := o.Dedup.Check(ctx, ev, r.seen, pg.events); v.Duplicate() {
			pg.duplicates++
			o.Metrics.Duplicate(v.String())
			logger.Debug("duplicate event skipped", "title", c.Title, "when_day", c.WhenDay, "check", v)
			continue
		}

		if m.HasImage && !fetched {
			image, fetched = o.uploadImage(ctx, r, logger, h, m.ID), true
		}
		post.ImageURL = image
		ev.Post = post

		pg.posts = append(pg.posts, post)
		pg.events = append(pg.events, ev)
	}
}

// uploadImage stores the message photo and returns its public URL, or ""
// when there is no photo or the transfer failed.
func (o *Orchestrator) uploadImage(ctx context.Context, r *run, logger *slog.Logger, h types.Handle, messageID int64) string {
	data, err := o.Source.DownloadImage(ctx, h, messageID)
	if err != nil {
		logger.Warn("image download failed", "error", err)
		return ""
	}
	if len(data) == 0 {
		return ""
	}
	path := fmt.Sprintf("%s/%d/%d.jpg", r.date, h.BareID(), messageID)
	url, err := o.Store.PutBlob(ctx, o.cfg.ImageBucket, path, data, "image/jpeg")
	if err != nil {
		logger.Warn("image upload failed", "path", path, "error", err)
		return ""
	}
	return url
}

func label(ss *int64) string {
	if ss == nil {
		return "main"
	}
	return fmt.Sprintf("%d", *ss)
}
