package cursor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// Seed is one source entry of a YAML seed file:
//
//	sources:
//	  - channel_name: "@bao_events"
//	    city: 3
//	  - channel_id: -1001234567890
//	    thread_id: 12
type Seed struct {
	Name      string `yaml:"channel_name"`
	ChannelID int64  `yaml:"channel_id"`
	ThreadID  *int64 `yaml:"thread_id"`
	Tag       string `yaml:"city"`
}

type seedFile struct {
	Sources []Seed `yaml:"sources"`
}

var ErrEmptySeed = errors.New("seed entry needs channel_name or channel_id")

// LoadSeed parses a YAML seed file.
func LoadSeed(path string) ([]Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	var f seedFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse seed file: %w", err)
	}
	for i, s := range f.Sources {
		if strings.TrimSpace(s.Name) == "" && s.ChannelID == 0 {
			return nil, fmt.Errorf("source %d: %w", i+1, ErrEmptySeed)
		}
	}
	return f.Sources, nil
}

// Import registers seeds. Entries whose channel_name already exists are
// patched with the non-empty seed fields; cursors are never touched.
func (s *Store) Import(ctx context.Context, seeds []Seed) (added, updated int, err error) {
	existing, err := s.Sources(ctx)
	if err != nil {
		return 0, 0, err
	}
	byName := make(map[string]types.Source, len(existing))
	for _, src := range existing {
		if src.Name != "" {
			byName[src.Name] = src
		}
	}

	for _, seed := range seeds {
		if src, ok := byName[seed.Name]; ok && seed.Name != "" {
			patch := types.Row{}
			if seed.ChannelID != 0 {
				patch[ColChannelID] = seed.ChannelID
			}
			if seed.ThreadID != nil {
				patch[ColThread] = *seed.ThreadID
			}
			if seed.Tag != "" {
				patch[ColTag] = types.Source{Tag: seed.Tag}.TagValue()
			}
			if len(patch) == 0 {
				continue
			}
			if err := s.store.UpdateRows(ctx, s.table, key(src), patch); err != nil {
				return added, updated, fmt.Errorf("update source %s: %w", seed.Name, err)
			}
			updated++
			continue
		}

		row := types.Row{
			ColName:   seed.Name,
			ColCursor: int64(0),
			ColTag:    types.Source{Tag: seed.Tag}.TagValue(),
		}
		if seed.ChannelID != 0 {
			row[ColChannelID] = seed.ChannelID
		} else {
			row[ColChannelID] = nil
		}
		if seed.ThreadID != nil {
			row[ColThread] = *seed.ThreadID
		} else {
			row[ColThread] = nil
		}
		if err := s.store.InsertRows(ctx, s.table, []types.Row{row}); err != nil {
			return added, updated, fmt.Errorf("insert source %s: %w", seed.Name, err)
		}
		added++
	}
	return added, updated, nil
}
