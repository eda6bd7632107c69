// Package report renders run summaries for the terminal, the run log and
// Telegram.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mattn/go-runewidth"

	"github.com/falcorrus/bao-tg-importer/internal/pipeline"
)

// Table renders one row per source followed by the run totals. Columns are
// padded by display width so Cyrillic and emoji names stay aligned.
func Table(sum pipeline.Summary) string {
	rows := [][]string{{"SOURCE", "STATE", "MESSAGES", "EVENTS", "POSTS", "DUPLICATES", "CURSOR"}}
	for _, r := range sum.Sources {
		cursor := strconv.FormatInt(r.CursorTo, 10)
		if r.CursorTo != r.CursorFrom {
			cursor = fmt.Sprintf("%d -> %d", r.CursorFrom, r.CursorTo)
		}
		rows = append(rows, []string{
			r.Source,
			string(r.State),
			strconv.Itoa(r.Messages),
			strconv.Itoa(r.Events),
			strconv.Itoa(r.Posts),
			strconv.Itoa(r.Duplicates),
			cursor,
		})
	}

	widths := make([]int, len(rows[0]))
	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], runewidth.StringWidth(cell))
		}
	}

	var b strings.Builder
	for _, row := range rows {
		for i, cell := range row {
			b.WriteString(cell)
			if i < len(row)-1 {
				b.WriteString(strings.Repeat(" ", widths[i]-runewidth.StringWidth(cell)+2))
			}
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nstatus: %s\nchannels_synced: %d/%d\nmessages_processed: %d\nevents_imported: %d\nposts_logged: %d\nduplicates_skipped: %d\n",
		sum.Status, sum.ChannelsSynced, sum.TotalChannels, sum.MessagesProcessed,
		sum.EventsImported, sum.PostsLogged, sum.DuplicatesSkipped)
	return b.String()
}

// Message is the Telegram notification for a run.
func Message(sum pipeline.Summary) string {
	return fmt.Sprintf("*Sync %s* (%s)\n```\n%s```", sum.Status, sum.Timestamp.Local().Format("2006-01-02 15:04"), Table(sum))
}

// RunLogLine is the single line appended to the run log.
func RunLogLine(sum pipeline.Summary) string {
	return fmt.Sprintf("%s events_imported: %d", sum.Timestamp.Local().Format("2006-01-02 15:04"), sum.EventsImported)
}

// AppendRunLog appends the run log line to path, creating the file and its
// directory when needed.
func AppendRunLog(path string, sum pipeline.Summary) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create run log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open run log: %w", err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, RunLogLine(sum)); err != nil {
		return fmt.Errorf("write run log: %w", err)
	}
	return nil
}
