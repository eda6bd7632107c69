// Package cursor reads and advances per-source high-water marks kept in the
// sources table.
package cursor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sort"
	"strconv"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// Column names of the sources table.
const (
	ColID        = "id"
	ColChannelID = "channel_id"
	ColName      = "channel_name"
	ColThread    = "thread_id"
	ColCursor    = "last_processed_message_id"
	ColTag       = "City"
)

type Store struct {
	store  types.Store
	table  string
	logger *slog.Logger
}

func New(store types.Store, table string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{store: store, table: table, logger: logger}
}

// Sources lists every registered source ordered by row id.
func (s *Store) Sources(ctx context.Context) ([]types.Source, error) {
	rows, err := s.store.SelectRows(ctx, s.table, types.Filter{})
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	out := make([]types.Source, 0, len(rows))
	for _, r := range rows {
		out = append(out, parseSource(r))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })
	return out, nil
}

// Load returns the persisted cursor of src, 0 when none is stored.
func (s *Store) Load(ctx context.Context, src types.Source) (int64, error) {
	rows, err := s.store.SelectRows(ctx, s.table, key(src).Select(ColCursor).Take(1))
	if err != nil {
		return 0, fmt.Errorf("load cursor for %s: %w", src.Label(), err)
	}
	if len(rows) == 0 {
		return 0, nil
	}
	n, _ := toInt64(rows[0][ColCursor])
	return n, nil
}

// Advance persists newMax when it exceeds the stored cursor and reports
// whether a write happened.
func (s *Store) Advance(ctx context.Context, src types.Source, newMax int64) (bool, error) {
	current, err := s.Load(ctx, src)
	if err != nil {
		return false, err
	}
	if newMax <= current {
		return false, nil
	}
	if err := s.store.UpdateRows(ctx, s.table, key(src), types.Row{ColCursor: newMax}); err != nil {
		return false, fmt.Errorf("advance cursor for %s: %w", src.Label(), err)
	}
	s.logger.Debug("cursor advanced", "source", src.Label(), "from", current, "to", newMax)
	return true, nil
}

// RecordChannelID stores the platform id of a source that was registered by
// name only, so later runs resolve it directly.
func (s *Store) RecordChannelID(ctx context.Context, src types.Source, channelID int64) error {
	if err := s.store.UpdateRows(ctx, s.table, key(src), types.Row{ColChannelID: channelID}); err != nil {
		return fmt.Errorf("record channel id for %s: %w", src.Label(), err)
	}
	return nil
}

func key(src types.Source) types.Filter {
	if src.RowID != 0 {
		return types.Where(ColID, src.RowID)
	}
	return types.Where(ColName, src.Name)
}

func parseSource(r types.Row) types.Source {
	src := types.Source{
		Name: asString(r[ColName]),
		Tag:  asString(r[ColTag]),
	}
	src.RowID, _ = toInt64(r[ColID])
	src.ChannelID, _ = toInt64(r[ColChannelID])
	src.Cursor, _ = toInt64(r[ColCursor])
	if thread, ok := toInt64(r[ColThread]); ok {
		src.SubStreamID = &thread
	}
	return src
}

// toInt64 accepts the numeric shapes drivers and JSON decoders produce.
func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int64:
		return x, true
	case int:
		return int64(x), true
	case int32:
		return int64(x), true
	case float64:
		return int64(x), true
	case json.Number:
		n, err := x.Int64()
		return n, err == nil
	case string:
		n, err := strconv.ParseInt(x, 10, 64)
		return n, err == nil
	case []byte:
		n, err := strconv.ParseInt(string(x), 10, 64)
		return n, err == nil
	}
	return 0, false
}

func asString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case []byte:
		return string(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	default:
		return fmt.Sprint(x)
	}
}
