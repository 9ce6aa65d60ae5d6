// Package plate defines the contract for a tiled, multi-resolution,
// transaction-versioned raster store and provides the SQLite-backed
// implementation used by the platereduce binary.
package plate

import (
	"errors"
	"time"

	"platereduce/internal/tile"
)

// ErrTileNotFound reports that no tile exists for a requested location or
// transaction. It is distinct from I/O errors: a search that matches nothing
// returns an empty slice and no error at all, while a read of a version that
// should exist but does not returns this sentinel.
var ErrTileNotFound = errors.New("plate: tile not found")

// ErrClosed reports use of a plate after Close.
var ErrClosed = errors.New("plate: store is closed")

// TileRef identifies one stored tile version. Immutable once returned by a
// search.
type TileRef struct {
	Col           int
	Row           int
	Level         int
	TransactionID int
	FiledAt       time.Time
}

// Coordinate returns the tile address the ref points at.
func (r TileRef) Coordinate() tile.Coordinate {
	return tile.Coordinate{Col: r.Col, Row: r.Row, Level: r.Level}
}

// Plate is the abstract store contract. Implementations must provide atomic
// per-tile write-transaction semantics; the reduction relies on that, not on
// any coordination between worker processes.
type Plate interface {
	// NumLevels returns the number of pyramid levels the plate holds.
	NumLevels() int

	// PixelFormat and ChannelType declare the plate's fixed raster layout.
	// One format per plate; every stored tile conforms to it.
	PixelFormat() tile.PixelFormat
	ChannelType() tile.ChannelType

	// TileSize returns the edge length in pixels of every tile.
	TileSize() int

	// SearchByLocation returns all tile versions at (col, row, level) whose
	// transaction id falls in [startT, endT]. endT < 0 means the range is
	// open-ended; with latestInRange set the open end is clamped to the
	// newest transaction present in the plate. No matches is an empty slice,
	// not an error.
	SearchByLocation(col, row, level, startT, endT int, latestInRange bool) ([]TileRef, error)

	// Read loads the raw sample data for one version. With exact set the
	// transaction id must match exactly; otherwise the newest version at or
	// below it is read. Returns ErrTileNotFound if no such version exists.
	Read(col, row, level, transactionID int, exact bool) ([]byte, error)

	// WriteRequest, WriteUpdate and WriteComplete form the write-transaction
	// protocol: begin, stage one or more tiles, then commit atomically.
	WriteRequest() error
	WriteUpdate(data []byte, col, row, level, transactionID int) error
	WriteComplete() error

	Close() error
}
