// Package tile defines the raster model shared by the plate store and the
// reduction pipeline: tile coordinates, pixel format and channel type tags,
// and a typed in-memory tile raster.
package tile

import (
	"fmt"
	"strings"
)

// Coordinate addresses one tile within a pyramid level. Level L has a
// 2^L x 2^L tile grid.
type Coordinate struct {
	Col   int
	Row   int
	Level int
}

func (c Coordinate) String() string {
	return fmt.Sprintf("(%d,%d)@%d", c.Col, c.Row, c.Level)
}

// PixelFormat declares the channel layout of a plate. The last channel is
// always the alpha/weight channel.
type PixelFormat int

const (
	FormatUnknown PixelFormat = iota
	FormatGrayA               // gray + alpha
	FormatRGBA                // red, green, blue + alpha
)

// Channels returns the number of channels per pixel, alpha included.
func (f PixelFormat) Channels() int {
	switch f {
	case FormatGrayA:
		return 2
	case FormatRGBA:
		return 4
	}
	return 0
}

func (f PixelFormat) String() string {
	switch f {
	case FormatGrayA:
		return "graya"
	case FormatRGBA:
		return "rgba"
	}
	return "unknown"
}

// ParsePixelFormat maps a stored format tag back to its PixelFormat.
func ParsePixelFormat(s string) (PixelFormat, error) {
	switch strings.ToLower(s) {
	case "graya":
		return FormatGrayA, nil
	case "rgba":
		return FormatRGBA, nil
	}
	return FormatUnknown, fmt.Errorf("unknown pixel format %q", s)
}

// ChannelType declares the numeric type of every channel in a plate.
type ChannelType int

const (
	ChannelUnknown ChannelType = iota
	ChannelUint8
	ChannelInt16
	ChannelFloat32
)

// Size returns the encoded size of one sample in bytes.
func (t ChannelType) Size() int {
	switch t {
	case ChannelUint8:
		return 1
	case ChannelInt16:
		return 2
	case ChannelFloat32:
		return 4
	}
	return 0
}

func (t ChannelType) String() string {
	switch t {
	case ChannelUint8:
		return "uint8"
	case ChannelInt16:
		return "int16"
	case ChannelFloat32:
		return "float32"
	}
	return "unknown"
}

// ParseChannelType maps a stored channel type tag back to its ChannelType.
func ParseChannelType(s string) (ChannelType, error) {
	switch strings.ToLower(s) {
	case "uint8":
		return ChannelUint8, nil
	case "int16":
		return ChannelInt16, nil
	case "float32":
		return ChannelFloat32, nil
	}
	return ChannelUnknown, fmt.Errorf("unknown channel type %q", s)
}

// Sample is the set of channel types a plate can store.
type Sample interface {
	~uint8 | ~int16 | ~float32
}

// Tile is a decoded raster: Cols x Rows pixels, Bands interleaved channels
// per pixel in row-major order. Channel Bands-1 is the alpha/weight channel.
type Tile[T Sample] struct {
	Cols  int
	Rows  int
	Bands int
	Data  []T
}

// New allocates a zero-filled tile.
func New[T Sample](cols, rows, bands int) *Tile[T] {
	return &Tile[T]{
		Cols:  cols,
		Rows:  rows,
		Bands: bands,
		Data:  make([]T, cols*rows*bands),
	}
}

// Pixels returns the number of pixels in the tile.
func (t *Tile[T]) Pixels() int { return t.Cols * t.Rows }

// At returns the sample for channel band of the pixel at (x, y).
func (t *Tile[T]) At(x, y, band int) T {
	return t.Data[(y*t.Cols+x)*t.Bands+band]
}

// Set stores the sample for channel band of the pixel at (x, y).
func (t *Tile[T]) Set(x, y, band int, v T) {
	t.Data[(y*t.Cols+x)*t.Bands+band] = v
}

// SameShape reports whether o has identical dimensions and channel count.
func (t *Tile[T]) SameShape(o *Tile[T]) bool {
	return t.Cols == o.Cols && t.Rows == o.Rows && t.Bands == o.Bands
}
