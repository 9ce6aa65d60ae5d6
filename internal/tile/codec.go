package tile

import (
	"encoding/binary"
	"fmt"
	"math"
)

// Encode serializes the tile's samples as little-endian raw data, the form
// the plate store persists.
func (t *Tile[T]) Encode() []byte {
	switch d := any(t.Data).(type) {
	case []uint8:
		out := make([]byte, len(d))
		copy(out, d)
		return out
	case []int16:
		out := make([]byte, 2*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint16(out[2*i:], uint16(v))
		}
		return out
	case []float32:
		out := make([]byte, 4*len(d))
		for i, v := range d {
			binary.LittleEndian.PutUint32(out[4*i:], math.Float32bits(v))
		}
		return out
	}
	panic("tile: unreachable sample type")
}

// Decode deserializes raw little-endian sample data into a tile of the given
// shape. The data length must match the shape exactly; a mismatch means the
// stored blob is truncated or was written under a different layout.
func Decode[T Sample](data []byte, cols, rows, bands int) (*Tile[T], error) {
	t := New[T](cols, rows, bands)
	switch d := any(t.Data).(type) {
	case []uint8:
		if len(data) != len(d) {
			return nil, fmt.Errorf("tile data is %d bytes, want %d", len(data), len(d))
		}
		copy(d, data)
	case []int16:
		if len(data) != 2*len(d) {
			return nil, fmt.Errorf("tile data is %d bytes, want %d", len(data), 2*len(d))
		}
		for i := range d {
			d[i] = int16(binary.LittleEndian.Uint16(data[2*i:]))
		}
	case []float32:
		if len(data) != 4*len(d) {
			return nil, fmt.Errorf("tile data is %d bytes, want %d", len(data), 4*len(d))
		}
		for i := range d {
			d[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[4*i:]))
		}
	}
	return t, nil
}

// Range returns the legal value range of the sample type. Float channels use
// the conventional [0, 1] range; integer channels use the full type range.
func Range[T Sample]() (lo, hi float64) {
	var zero T
	switch any(zero).(type) {
	case uint8:
		return 0, math.MaxUint8
	case int16:
		return math.MinInt16, math.MaxInt16
	default:
		return 0, 1
	}
}

// Cast converts an accumulated float value back to the sample type, rounding
// half away from zero and saturating for integer types.
func Cast[T Sample](v float64) T {
	lo, hi := Range[T]()
	var zero T
	switch any(zero).(type) {
	case float32:
		return T(v)
	default:
		return T(math.Round(math.Min(math.Max(v, lo), hi)))
	}
}
