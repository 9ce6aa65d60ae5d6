package reduce

import (
	"errors"
	"fmt"

	"platereduce/internal/tile"
)

// WeightedAverage combines tile versions by alpha-weighted averaging.
// Accumulation happens in floating point regardless of the channel type so
// integer inputs neither overflow nor quantize during summation. The output
// alpha is the accumulated weight sum clamped to the channel range, not a
// renormalized fraction: one fully opaque contributor already saturates an
// 8-bit alpha, and several partial ones can add up to saturation.
type WeightedAverage[T tile.Sample] struct{}

func (WeightedAverage[T]) Name() string { return "WeightedAvg" }

func (WeightedAverage[T]) Reduce(in Input[T]) (*tile.Tile[T], error) {
	if len(in.Tiles) == 0 {
		return nil, errors.New("weighted average needs at least one tile")
	}
	first := in.Tiles[0]
	if first.Bands < 2 {
		return nil, fmt.Errorf("tile has %d channels, need data plus alpha", first.Bands)
	}
	for i, t := range in.Tiles[1:] {
		if !first.SameShape(t) {
			return nil, fmt.Errorf("tile %d shape %dx%dx%d differs from %dx%dx%d",
				i+1, t.Cols, t.Rows, t.Bands, first.Cols, first.Rows, first.Bands)
		}
	}

	bands := first.Bands
	pixels := first.Pixels()
	acc := make([][]float64, bands-1)
	for c := range acc {
		acc[c] = make([]float64, pixels)
	}
	weights := make([]float64, pixels)

	// Alpha-weighted sums. Order of tiles does not affect the result beyond
	// float rounding.
	for _, t := range in.Tiles {
		for i := 0; i < pixels; i++ {
			a := float64(t.Data[i*bands+bands-1])
			weights[i] += a
			for c := 0; c < bands-1; c++ {
				acc[c][i] += a * float64(t.Data[i*bands+c])
			}
		}
	}

	out := tile.New[T](first.Cols, first.Rows, bands)
	lo, hi := tile.Range[T]()
	for i := 0; i < pixels; i++ {
		w := weights[i]
		for c := 0; c < bands-1; c++ {
			// Zero total weight means no contributor covered this pixel;
			// write zero rather than letting NaN through.
			v := 0.0
			if w > 0 {
				v = acc[c][i] / w
			}
			out.Data[i*bands+c] = tile.Cast[T](v)
		}
		a := w
		if a < lo {
			a = lo
		}
		if a > hi {
			a = hi
		}
		out.Data[i*bands+bands-1] = tile.Cast[T](a)
	}
	return out, nil
}
