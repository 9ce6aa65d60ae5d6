package reduce

import (
	"fmt"

	"platereduce/internal/plate"
	"platereduce/internal/tile"
)

// Input is the material handed to a reduction strategy: every tile version
// found at one coordinate within the queried transaction range, with its
// ref. Tiles and Refs are index-aligned.
type Input[T tile.Sample] struct {
	Coord tile.Coordinate
	Refs  []plate.TileRef
	Tiles []*tile.Tile[T]
}

// Empty reports whether the coordinate had no matching versions.
func (in Input[T]) Empty() bool { return len(in.Tiles) == 0 }

// Gather queries p for every version of coord in [startT, endT] and loads
// their rasters. No versions is not an error: the caller skips the
// coordinate. A version that exists but fails to load is an error; that is
// how "nothing there" stays distinguishable from "something there but
// unreadable".
func Gather[T tile.Sample](p plate.Plate, coord tile.Coordinate, startT, endT int) (Input[T], error) {
	in := Input[T]{Coord: coord}

	refs, err := p.SearchByLocation(coord.Col, coord.Row, coord.Level, startT, endT, true)
	if err != nil {
		return in, fmt.Errorf("search tile %s: %w", coord, err)
	}
	if len(refs) == 0 {
		return in, nil
	}

	size := p.TileSize()
	bands := p.PixelFormat().Channels()
	in.Refs = refs
	in.Tiles = make([]*tile.Tile[T], 0, len(refs))
	for _, ref := range refs {
		raw, err := p.Read(ref.Col, ref.Row, ref.Level, ref.TransactionID, true)
		if err != nil {
			return Input[T]{Coord: coord}, fmt.Errorf("load tile %s t=%d: %w", coord, ref.TransactionID, err)
		}
		t, err := tile.Decode[T](raw, size, size, bands)
		if err != nil {
			return Input[T]{Coord: coord}, fmt.Errorf("decode tile %s t=%d: %w", coord, ref.TransactionID, err)
		}
		in.Tiles = append(in.Tiles, t)
	}
	return in, nil
}
