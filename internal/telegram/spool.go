package telegram

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// spool is the on-disk copy of the update buffer. Offset is the next update
// id to ask for; everything below it is already in Messages.
type spool struct {
	Offset   int                 `json:"offset"`
	Messages []*tgbotapi.Message `json:"messages"`
}

func readSpool(path string) (spool, error) {
	var sp spool
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return sp, nil
	}
	if err != nil {
		return sp, fmt.Errorf("read spool: %w", err)
	}
	if err := json.Unmarshal(data, &sp); err != nil {
		return sp, fmt.Errorf("parse spool %s: %w", path, err)
	}
	return sp, nil
}

func writeSpool(path string, sp spool) error {
	sort.Slice(sp.Messages, func(i, j int) bool {
		a, b := sp.Messages[i], sp.Messages[j]
		if a.Chat.ID != b.Chat.ID {
			return a.Chat.ID < b.Chat.ID
		}
		return a.MessageID < b.MessageID
	})
	data, err := json.Marshal(sp)
	if err != nil {
		return fmt.Errorf("marshal spool: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create spool directory: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("write spool: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename spool: %w", err)
	}
	return nil
}
