// Package postgres implements photopipe.RecordStore on a relational
// table. Useful where the pipeline runs against Postgres instead of a
// managed key-value table.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mediakeep/photo-pipeline/pkg/photopipe"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store implements photopipe.RecordStore using PostgreSQL.
//
// Expected schema:
//
//	CREATE TABLE image_record (
//	    file_name    TEXT PRIMARY KEY,
//	    caption      TEXT NOT NULL DEFAULT '',
//	    date         TEXT NOT NULL DEFAULT '',
//	    photographer TEXT NOT NULL DEFAULT ''
//	);
type Store struct {
	db DBTX
}

// New creates a new PostgreSQL record store.
func New(db DBTX) *Store {
	return &Store{db: db}
}

// NewWithPool creates a new PostgreSQL record store with connection pool.
func NewWithPool(pool *pgxpool.Pool) *Store {
	return &Store{db: pool}
}

// attributeColumns maps updatable attribute names to their columns. The
// update statement interpolates the column name, so it must come from
// this map, never from message input.
var attributeColumns = map[string]string{
	photopipe.AttrCaption:      "caption",
	photopipe.AttrDate:         "date",
	photopipe.AttrPhotographer: "photographer",
}

func (s *Store) PutRecord(ctx context.Context, rec photopipe.ImageRecord) error {
	query := `
		INSERT INTO image_record (file_name, caption, date, photographer)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (file_name) DO NOTHING`

	_, err := s.db.Exec(ctx, query, rec.FileName, rec.Caption, rec.Date, rec.Photographer)
	if err != nil {
		return fmt.Errorf("inserting record for %s: %w", rec.FileName, err)
	}
	return nil
}

func (s *Store) UpdateAttribute(ctx context.Context, fileName, attr, value string) error {
	column, ok := attributeColumns[attr]
	if !ok {
		return photopipe.ErrUnknownAttribute
	}

	query := fmt.Sprintf(`
		INSERT INTO image_record (file_name, %s)
		VALUES ($1, $2)
		ON CONFLICT (file_name) DO UPDATE SET %s = EXCLUDED.%s`,
		column, column, column)

	_, err := s.db.Exec(ctx, query, fileName, value)
	if err != nil {
		return fmt.Errorf("updating %s for %s: %w", attr, fileName, err)
	}
	return nil
}

func (s *Store) GetRecord(ctx context.Context, fileName string) (*photopipe.ImageRecord, error) {
	query := `
		SELECT file_name, caption, date, photographer
		FROM image_record
		WHERE file_name = $1`

	var rec photopipe.ImageRecord
	err := s.db.QueryRow(ctx, query, fileName).Scan(
		&rec.FileName, &rec.Caption, &rec.Date, &rec.Photographer)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, photopipe.ErrRecordNotFound
		}
		return nil, fmt.Errorf("getting record for %s: %w", fileName, err)
	}
	return &rec, nil
}
