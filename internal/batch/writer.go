// Package batch writes records to destination tables in bulk, keeping every
// request's rows on one column set.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/falcorrus/bao-tg-importer/internal/metrics"
	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// Result counts rows written and rows lost to failed sub-batches.
type Result struct {
	Written int
	Failed  int
	Err     error
}

type Writer struct {
	store       types.Store
	posts       Schema
	events      Schema
	suppressTag string
	metrics     *metrics.Metrics
	logger      *slog.Logger
}

// New creates a Writer. Posts from sources tagged suppressTag are never
// written to the posts table; an empty suppressTag disables this.
func New(store types.Store, posts, events Schema, suppressTag string, m *metrics.Metrics, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{store: store, posts: posts, events: events, suppressTag: suppressTag, metrics: m, logger: logger}
}

func (w *Writer) WritePosts(ctx context.Context, posts []types.PostRecord) Result {
	rows := make([]types.Row, 0, len(posts))
	for _, p := range posts {
		if w.suppressTag != "" && p.Tag == w.suppressTag {
			continue
		}
		rows = append(rows, p.Row())
	}
	res := w.Write(ctx, w.posts, rows)
	w.metrics.PostsWritten(res.Written)
	return res
}

// WriteEvents also returns the events that were stored, so callers can tell
// them from the ones lost to a failed group.
func (w *Writer) WriteEvents(ctx context.Context, events []types.EventRecord) (Result, []types.EventRecord) {
	var withImage, without []types.EventRecord
	for _, e := range events {
		if e.Post.ImageURL != "" {
			withImage = append(withImage, e)
		} else {
			without = append(without, e)
		}
	}

	var res Result
	var stored []types.EventRecord
	var errs []error
	for _, group := range [][]types.EventRecord{withImage, without} {
		if len(group) == 0 {
			continue
		}
		rows := make([]types.Row, len(group))
		for i, e := range group {
			rows[i] = e.Row()
		}
		r := w.Write(ctx, w.events, rows)
		res.Written += r.Written
		res.Failed += r.Failed
		if r.Err != nil {
			errs = append(errs, r.Err)
			continue
		}
		stored = append(stored, group...)
	}
	res.Err = errors.Join(errs...)
	w.metrics.EventsWritten(res.Written)
	return res, stored
}

// Write allow-lists rows against schema, splits them by presence of an image
// and inserts each group in one request. A failed group does not stop the
// other.
func (w *Writer) Write(ctx context.Context, schema Schema, rows []types.Row) Result {
	var res Result
	var errs []error
	for _, group := range Partition(schema, rows) {
		if err := w.store.InsertRows(ctx, schema.Table, group); err != nil {
			w.logger.Error("bulk insert failed", "table", schema.Table, "rows", len(group), "error", err)
			w.metrics.WriteFailed(schema.Table)
			res.Failed += len(group)
			errs = append(errs, fmt.Errorf("insert %d rows into %s: %w", len(group), schema.Table, err))
			continue
		}
		res.Written += len(group)
	}
	res.Err = errors.Join(errs...)
	return res
}

// Partition returns at most two non-empty groups, rows with an image first.
// Within a group every row carries the union of the group's keys, missing
// ones set to nil.
func Partition(schema Schema, rows []types.Row) [][]types.Row {
	var withImage, without []types.Row
	for _, r := range rows {
		clean := make(types.Row, len(r))
		for k, v := range r {
			if schema.Allowed[k] {
				clean[k] = v
			}
		}
		if hasImage(clean) {
			withImage = append(withImage, clean)
		} else {
			without = append(without, clean)
		}
	}

	var groups [][]types.Row
	for _, g := range [][]types.Row{withImage, without} {
		if len(g) > 0 {
			groups = append(groups, fillUnion(g))
		}
	}
	return groups
}

func hasImage(r types.Row) bool {
	v, ok := r["image"]
	if !ok || v == nil {
		return false
	}
	s, isString := v.(string)
	return !isString || s != ""
}

func fillUnion(rows []types.Row) []types.Row {
	keys := make(map[string]bool)
	for _, r := range rows {
		for k := range r {
			keys[k] = true
		}
	}
	for _, r := range rows {
		for k := range keys {
			if _, ok := r[k]; !ok {
				r[k] = nil
			}
		}
	}
	return rows
}
