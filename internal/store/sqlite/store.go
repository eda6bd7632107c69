// Package sqlite implements types.Store on a local SQLite database, for
// offline runs and development without a hosted backend.
package sqlite

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/falcorrus/bao-tg-importer/internal/types"
)

// Tables names the three tables the importer uses.
type Tables struct {
	Sources string
	Posts   string
	Events  string
}

type Store struct {
	db       *gorm.DB
	blobBase string
}

// Open opens (creating if needed) the database at dsn and migrates the tables.
// Blob URLs are formed as <blobBase>/<bucket>/<path>.
func Open(dsn string, tables Tables, blobBase string) (*Store, error) {
	if err := ensureDir(dsn); err != nil {
		return nil, err
	}
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	migrations := []struct {
		table string
		model any
	}{
		{tables.Sources, &syncState{}},
		{tables.Posts, &post{}},
		{tables.Events, &event{}},
	}
	for _, m := range migrations {
		if err := db.Table(m.table).AutoMigrate(m.model); err != nil {
			return nil, fmt.Errorf("migrate %s: %w", m.table, err)
		}
	}
	if err := db.AutoMigrate(&blob{}); err != nil {
		return nil, fmt.Errorf("migrate blobs: %w", err)
	}
	if blobBase == "" {
		blobBase = "sqlite://blobs"
	}
	return &Store{db: db, blobBase: strings.TrimRight(blobBase, "/")}, nil
}

func ensureDir(dsn string) error {
	path := strings.TrimPrefix(strings.TrimSpace(dsn), "file:")
	if i := strings.Index(path, "?"); i >= 0 {
		path = path[:i]
	}
	if path == "" || path == ":memory:" {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create sqlite directory: %w", err)
	}
	return nil
}

// Close releases the underlying connection pool.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) SelectRows(ctx context.Context, table string, filter types.Filter) ([]types.Row, error) {
	q := where(s.db.WithContext(ctx).Table(table), filter)
	if len(filter.Columns) > 0 {
		q = q.Select(filter.Columns)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	var found []map[string]any
	if err := q.Find(&found).Error; err != nil {
		return nil, fmt.Errorf("select %s: %w", table, err)
	}
	rows := make([]types.Row, len(found))
	for i, r := range found {
		rows[i] = types.Row(r)
	}
	return rows, nil
}

func (s *Store) InsertRows(ctx context.Context, table string, rows []types.Row) error {
	if len(rows) == 0 {
		return nil
	}
	values := make([]map[string]any, len(rows))
	for i, r := range rows {
		values[i] = map[string]any(r)
	}
	if err := s.db.WithContext(ctx).Table(table).Create(values).Error; err != nil {
		return fmt.Errorf("insert %s: %w", table, err)
	}
	return nil
}

func (s *Store) UpdateRows(ctx context.Context, table string, filter types.Filter, patch types.Row) error {
	err := where(s.db.WithContext(ctx).Table(table), filter).Updates(map[string]any(patch)).Error
	if err != nil {
		return fmt.Errorf("update %s: %w", table, err)
	}
	return nil
}

func (s *Store) PutBlob(ctx context.Context, bucket, path string, data []byte, contentType string) (string, error) {
	row := blob{Bucket: bucket, Path: path, ContentType: contentType, Data: data}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "bucket"}, {Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"content_type", "data"}),
	}).Create(&row).Error
	if err != nil {
		return "", fmt.Errorf("put blob %s/%s: %w", bucket, path, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.blobBase, bucket, path), nil
}

// Blob returns a stored blob.
func (s *Store) Blob(ctx context.Context, bucket, path string) ([]byte, error) {
	var b blob
	if err := s.db.WithContext(ctx).Where("bucket = ? AND path = ?", bucket, path).Take(&b).Error; err != nil {
		return nil, fmt.Errorf("get blob %s/%s: %w", bucket, path, err)
	}
	return b.Data, nil
}

func where(q *gorm.DB, f types.Filter) *gorm.DB {
	for _, c := range f.Conds {
		col := clause.Column{Name: c.Column}
		switch c.Op {
		case types.OpIsNull:
			q = q.Where(clause.Eq{Column: col, Value: nil})
		case types.OpNotNull:
			q = q.Where(clause.Neq{Column: col, Value: nil})
		default:
			q = q.Where(clause.Eq{Column: col, Value: c.Value})
		}
	}
	return q
}
