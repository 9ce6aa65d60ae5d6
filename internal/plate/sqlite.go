package plate

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "modernc.org/sqlite"

	"platereduce/internal/tile"
)

// Store is the SQLite-backed Plate. One database file is one plate; the
// plate URL handed to the CLI is the file path.
type Store struct {
	db *sql.DB

	format   tile.PixelFormat
	ctype    tile.ChannelType
	tileSize int
	levels   int

	pending *sql.Tx // open write transaction, nil outside the write protocol
}

// Options describe a plate being created.
type Options struct {
	PixelFormat tile.PixelFormat
	ChannelType tile.ChannelType
	TileSize    int
	NumLevels   int
}

// Open opens an existing plate file and loads its metadata.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.loadMeta(); err != nil {
		db.Close()
		return nil, fmt.Errorf("open plate %s: %w", path, err)
	}
	return s, nil
}

// Create creates a new plate file with the given layout. It fails if the
// file already holds a plate.
func Create(path string, opts Options) (*Store, error) {
	if opts.PixelFormat.Channels() == 0 {
		return nil, fmt.Errorf("create plate: bad pixel format")
	}
	if opts.ChannelType.Size() == 0 {
		return nil, fmt.Errorf("create plate: bad channel type")
	}
	if opts.TileSize <= 0 || opts.NumLevels <= 0 {
		return nil, fmt.Errorf("create plate: tile size and level count must be positive")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &Store{
		db:       db,
		format:   opts.PixelFormat,
		ctype:    opts.ChannelType,
		tileSize: opts.TileSize,
		levels:   opts.NumLevels,
	}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	if err := s.writeMeta(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS plate_meta (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        );`,
		`CREATE TABLE IF NOT EXISTS tiles (
            col INTEGER NOT NULL,
            row INTEGER NOT NULL,
            level INTEGER NOT NULL,
            transaction_id INTEGER NOT NULL,
            data BLOB NOT NULL,
            filed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
            PRIMARY KEY (col, row, level, transaction_id)
        );`,
		`CREATE INDEX IF NOT EXISTS idx_tiles_location ON tiles(level, col, row);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) writeMeta() error {
	meta := map[string]string{
		"pixel_format": s.format.String(),
		"channel_type": s.ctype.String(),
		"tile_size":    strconv.Itoa(s.tileSize),
		"num_levels":   strconv.Itoa(s.levels),
	}
	for k, v := range meta {
		if _, err := s.db.Exec(
			`INSERT INTO plate_meta(key, value) VALUES(?, ?)
             ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v,
		); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) loadMeta() error {
	get := func(key string) (string, error) {
		var v string
		err := s.db.QueryRow(`SELECT value FROM plate_meta WHERE key = ?`, key).Scan(&v)
		if errors.Is(err, sql.ErrNoRows) || (err != nil && strings.Contains(err.Error(), "no such table")) {
			return "", fmt.Errorf("not a plate file (missing %s)", key)
		}
		return v, err
	}

	raw, err := get("pixel_format")
	if err != nil {
		return err
	}
	if s.format, err = tile.ParsePixelFormat(raw); err != nil {
		return err
	}
	if raw, err = get("channel_type"); err != nil {
		return err
	}
	if s.ctype, err = tile.ParseChannelType(raw); err != nil {
		return err
	}
	if raw, err = get("tile_size"); err != nil {
		return err
	}
	if s.tileSize, err = strconv.Atoi(raw); err != nil {
		return fmt.Errorf("bad tile_size %q", raw)
	}
	if raw, err = get("num_levels"); err != nil {
		return err
	}
	if s.levels, err = strconv.Atoi(raw); err != nil {
		return fmt.Errorf("bad num_levels %q", raw)
	}
	return nil
}

func (s *Store) NumLevels() int                { return s.levels }
func (s *Store) PixelFormat() tile.PixelFormat { return s.format }
func (s *Store) ChannelType() tile.ChannelType { return s.ctype }
func (s *Store) TileSize() int                 { return s.tileSize }

// SearchByLocation implements the range query. Results come back ordered by
// transaction id, oldest first.
func (s *Store) SearchByLocation(col, row, level, startT, endT int, latestInRange bool) ([]TileRef, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	if endT < 0 {
		if !latestInRange {
			return nil, fmt.Errorf("plate: open-ended search requires latest-in-range")
		}
		var latest sql.NullInt64
		if err := s.db.QueryRow(`SELECT MAX(transaction_id) FROM tiles`).Scan(&latest); err != nil {
			return nil, err
		}
		if !latest.Valid {
			return nil, nil
		}
		endT = int(latest.Int64)
	}

	rows, err := s.db.Query(
		`SELECT col, row, level, transaction_id, filed_at FROM tiles
         WHERE col = ? AND row = ? AND level = ? AND transaction_id BETWEEN ? AND ?
         ORDER BY transaction_id`,
		col, row, level, startT, endT,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var refs []TileRef
	for rows.Next() {
		var r TileRef
		var filed string
		if err := rows.Scan(&r.Col, &r.Row, &r.Level, &r.TransactionID, &filed); err != nil {
			return nil, err
		}
		if t, err := time.Parse("2006-01-02 15:04:05", filed); err == nil {
			r.FiledAt = t
		}
		refs = append(refs, r)
	}
	return refs, rows.Err()
}

// Read loads one version's raw sample data.
func (s *Store) Read(col, row, level, transactionID int, exact bool) ([]byte, error) {
	if s.db == nil {
		return nil, ErrClosed
	}
	var (
		data []byte
		err  error
	)
	if exact {
		err = s.db.QueryRow(
			`SELECT data FROM tiles
             WHERE col = ? AND row = ? AND level = ? AND transaction_id = ?`,
			col, row, level, transactionID,
		).Scan(&data)
	} else {
		err = s.db.QueryRow(
			`SELECT data FROM tiles
             WHERE col = ? AND row = ? AND level = ? AND transaction_id <= ?
             ORDER BY transaction_id DESC LIMIT 1`,
			col, row, level, transactionID,
		).Scan(&data)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("read tile (%d,%d)@%d t=%d: %w",
			col, row, level, transactionID, ErrTileNotFound)
	}
	return data, err
}

// WriteRequest begins a write transaction. Concurrent workers can hold the
// database briefly locked, so acquiring the transaction retries with
// exponential backoff while SQLite reports busy.
func (s *Store) WriteRequest() error {
	if s.db == nil {
		return ErrClosed
	}
	if s.pending != nil {
		return fmt.Errorf("plate: write transaction already open")
	}
	op := func() error {
		tx, err := s.db.Begin()
		if err != nil {
			if isBusy(err) {
				return err
			}
			return backoff.Permanent(err)
		}
		s.pending = tx
		return nil
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	return backoff.Retry(op, bo)
}

// WriteUpdate stages one tile under the open write transaction. Writing the
// same (location, transaction) twice replaces the earlier raster.
func (s *Store) WriteUpdate(data []byte, col, row, level, transactionID int) error {
	if s.pending == nil {
		return fmt.Errorf("plate: write_update outside write transaction")
	}
	want := s.tileSize * s.tileSize * s.format.Channels() * s.ctype.Size()
	if len(data) != want {
		return fmt.Errorf("plate: tile data is %d bytes, plate layout needs %d", len(data), want)
	}
	_, err := s.pending.Exec(
		`INSERT INTO tiles(col, row, level, transaction_id, data) VALUES(?, ?, ?, ?, ?)
         ON CONFLICT(col, row, level, transaction_id) DO UPDATE SET data = excluded.data`,
		col, row, level, transactionID, data,
	)
	return err
}

// WriteComplete commits the open write transaction.
func (s *Store) WriteComplete() error {
	if s.pending == nil {
		return fmt.Errorf("plate: write_complete outside write transaction")
	}
	err := s.pending.Commit()
	s.pending = nil
	return err
}

// Close rolls back any open write transaction and closes the database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	if s.pending != nil {
		s.pending.Rollback()
		s.pending = nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}
