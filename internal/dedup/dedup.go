// Package dedup decides whether an event is already recorded, first against
// the in-flight batch and then against the events table.
package dedup

import (
	"context"
	"log/slog"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// Verdict is the outcome of a duplicate check.
type Verdict int

const (
	Unique Verdict = iota
	LocalDuplicate
	RemoteDuplicate
)

func (v Verdict) String() string {
	switch v {
	case LocalDuplicate:
		return "local"
	case RemoteDuplicate:
		return "remote"
	default:
		return "unique"
	}
}

// Duplicate reports whether the verdict rejects the event.
func (v Verdict) Duplicate() bool { return v != Unique }

type Checker struct {
	store  types.Store
	table  string
	logger *slog.Logger
}

func New(store types.Store, table string, logger *slog.Logger) *Checker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Checker{store: store, table: table, logger: logger}
}

// Check compares ev's (title, whenDay) with the given batches, then with
// stored events. Events missing either half of the identity are always
// Unique. A failed remote lookup counts as Unique.
func (c *Checker) Check(ctx context.Context, ev types.EventRecord, batches ...[]types.EventRecord) Verdict {
	title, day := ev.Title(), ev.WhenDay()
	if title == "" || day == "" {
		return Unique
	}

	for _, batch := range batches {
		for _, b := range batch {
			if b.Title() == title && b.WhenDay() == day {
				return LocalDuplicate
			}
		}
	}

	rows, err := c.store.SelectRows(ctx, c.table, types.Where("whenDay", day, "title", title).Select("id").Take(1))
	if err != nil {
		c.logger.Warn("remote duplicate check failed, keeping event", "title", title, "when_day", day, "error", err)
		return Unique
	}
	if len(rows) > 0 {
		return RemoteDuplicate
	}
	return Unique
}
