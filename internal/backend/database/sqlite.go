package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"
)

type SQLiteGalleryStore struct {
	db         *sql.DB
	maxEntries int
}

func NewSQLiteGalleryStore(ctx context.Context, connectionString string, maxEntries int) (GalleryStore, error) {
	if connectionString == "" {
		connectionString = ":memory:"
	}
	db, err := sql.Open("sqlite", connectionString)
	if err != nil {
		return nil, err
	}
	// a single connection keeps :memory: databases shared and serializes writers
	db.SetMaxOpenConns(1)

	s := &SQLiteGalleryStore{db: db, maxEntries: maxEntries}
	if err := s.createSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteGalleryStore) createSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS gallery_images (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		data TEXT NOT NULL,
		upload_time TEXT NOT NULL,
		rank TEXT NOT NULL
	)`)
	if err != nil {
		return fmt.Errorf("failed to create gallery_images table: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `CREATE INDEX IF NOT EXISTS idx_gallery_images_rank ON gallery_images(rank)`)
	if err != nil {
		return fmt.Errorf("failed to create rank index: %w", err)
	}
	return nil
}

func (s *SQLiteGalleryStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func (s *SQLiteGalleryStore) Add(ctx context.Context, image *GalleryImage) (*GalleryImage, error) {
	stored := *image
	if stored.ID == "" {
		id, err := generateID()
		if err != nil {
			return nil, err
		}
		stored.ID = id
	}
	if stored.UploadTime.IsZero() {
		stored.UploadTime = time.Now().UTC()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = tx.Rollback() // no-op after commit
	}()

	var head string
	err = tx.QueryRowContext(ctx, "SELECT rank FROM gallery_images ORDER BY rank ASC LIMIT 1").Scan(&head)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("failed to read head rank: %w", err)
	}

	stored.Rank = Before(head)
	if len(stored.Rank) > maxRankLength {
		if stored.Rank, err = rebalance(ctx, tx); err != nil {
			return nil, err
		}
	}

	_, err = tx.ExecContext(ctx,
		"INSERT INTO gallery_images (id, name, data, upload_time, rank) VALUES (?, ?, ?, ?, ?)",
		stored.ID, stored.Name, stored.Data, stored.UploadTime.Format(time.RFC3339Nano), stored.Rank)
	if err != nil {
		return nil, fmt.Errorf("failed to insert gallery image: %w", err)
	}

	_, err = tx.ExecContext(ctx,
		"DELETE FROM gallery_images WHERE id NOT IN (SELECT id FROM gallery_images ORDER BY rank ASC LIMIT ?)",
		s.maxEntries)
	if err != nil {
		return nil, fmt.Errorf("failed to trim gallery: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return &stored, nil
}

// rebalance respaces all ranks and returns a free rank before the new head
func rebalance(ctx context.Context, tx *sql.Tx) (string, error) {
	rows, err := tx.QueryContext(ctx, "SELECT id FROM gallery_images ORDER BY rank ASC")
	if err != nil {
		return "", err
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			_ = rows.Close()
			return "", err
		}
		ids = append(ids, id)
	}
	_ = rows.Close()
	if err := rows.Err(); err != nil {
		return "", err
	}

	ranks := Spread(len(ids) + 1)
	for i, id := range ids {
		if _, err := tx.ExecContext(ctx, "UPDATE gallery_images SET rank = ? WHERE id = ?", ranks[i+1], id); err != nil {
			return "", fmt.Errorf("failed to rebalance rank of %s: %w", id, err)
		}
	}
	slog.Debug("rebalanced gallery ranks", "entries", len(ids))
	return ranks[0], nil
}

func (s *SQLiteGalleryStore) List(ctx context.Context) ([]*GalleryImage, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, name, data, upload_time, rank FROM gallery_images ORDER BY rank ASC")
	if err != nil {
		return nil, err
	}
	defer func() {
		_ = rows.Close()
	}()

	images := []*GalleryImage{}
	for rows.Next() {
		img, err := scanImage(rows)
		if err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanImage(row rowScanner) (*GalleryImage, error) {
	var img GalleryImage
	var uploaded string
	if err := row.Scan(&img.ID, &img.Name, &img.Data, &uploaded, &img.Rank); err != nil {
		return nil, err
	}
	t, err := time.Parse(time.RFC3339Nano, uploaded)
	if err != nil {
		return nil, fmt.Errorf("invalid upload_time for %s: %w", img.ID, err)
	}
	img.UploadTime = t
	return &img, nil
}

func (s *SQLiteGalleryStore) Get(ctx context.Context, id string) (*GalleryImage, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, name, data, upload_time, rank FROM gallery_images WHERE id = ?", id)
	img, err := scanImage(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return img, err
}

func (s *SQLiteGalleryStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM gallery_images WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *SQLiteGalleryStore) Move(ctx context.Context, id string, direction Direction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback()
	}()

	rows, err := tx.QueryContext(ctx, "SELECT id, rank FROM gallery_images ORDER BY rank ASC")
	if err != nil {
		return err
	}
	var ids, ranks []string
	for rows.Next() {
		var rid, rank string
		if err := rows.Scan(&rid, &rank); err != nil {
			_ = rows.Close()
			return err
		}
		ids = append(ids, rid)
		ranks = append(ranks, rank)
	}
	_ = rows.Close()

	idx := -1
	for i, rid := range ids {
		if rid == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	rankAt := func(i int) string {
		if i < 0 || i >= len(ranks) {
			return ""
		}
		return ranks[i]
	}

	var lower, upper string
	switch {
	case direction == MoveUp && idx > 0:
		lower, upper = rankAt(idx-2), ranks[idx-1]
	case direction == MoveDown && idx < len(ids)-1:
		lower, upper = ranks[idx+1], rankAt(idx+2)
	default:
		return nil
	}
	newRank := Between(lower, upper)
	if !IsBetween(lower, newRank, upper) {
		return fmt.Errorf("no rank between %q and %q for gallery image %s", lower, upper, id)
	}

	if _, err := tx.ExecContext(ctx, "UPDATE gallery_images SET rank = ? WHERE id = ?", newRank, id); err != nil {
		return fmt.Errorf("failed to move gallery image %s: %w", id, err)
	}
	return tx.Commit()
}

func (s *SQLiteGalleryStore) Clear(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM gallery_images")
	return err
}
