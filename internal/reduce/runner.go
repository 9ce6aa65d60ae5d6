package reduce

import (
	"context"
	"fmt"
	"log/slog"

	"platereduce/internal/config"
	"platereduce/internal/plate"
	"platereduce/internal/server"
	"platereduce/internal/tile"
)

// Runner drives one job's work units for a single channel type: gather the
// versions at each coordinate, reduce the non-empty ones, and commit each
// result under its own write transaction. A commit failure aborts the run
// but never rolls back coordinates already committed; those are durable.
type Runner[T tile.Sample] struct {
	plate    plate.Plate
	job      *config.Job
	strategy Strategy[T]
	log      *slog.Logger
	progress *server.Progress
}

// NewRunner builds a runner. progress may be nil.
func NewRunner[T tile.Sample](p plate.Plate, job *config.Job, strategy Strategy[T], log *slog.Logger, progress *server.Progress) *Runner[T] {
	return &Runner[T]{plate: p, job: job, strategy: strategy, log: log, progress: progress}
}

// Run processes every coordinate in units. Cancellation is only observed
// between coordinates; a tile's read-reduce-write sequence always runs to
// completion once begun.
func (r *Runner[T]) Run(ctx context.Context, units []WorkUnit) error {
	for n, unit := range units {
		if err := r.runUnit(ctx, unit); err != nil {
			return err
		}
		if r.progress != nil {
			r.progress.UnitDone()
		}
		r.log.Debug("work unit done",
			"unit", n+1,
			"of", len(units),
			"min_col", unit.MinCol,
			"min_row", unit.MinRow,
		)
	}
	return nil
}

func (r *Runner[T]) runUnit(ctx context.Context, unit WorkUnit) error {
	for col := unit.MinCol; col < unit.MaxCol; col++ {
		for row := unit.MinRow; row < unit.MaxRow; row++ {
			if err := ctx.Err(); err != nil {
				return err
			}
			coord := tile.Coordinate{Col: col, Row: row, Level: r.job.Level}
			if err := r.runTile(coord); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Runner[T]) runTile(coord tile.Coordinate) error {
	in, err := Gather[T](r.plate, coord, r.job.StartTransaction, r.job.EndTransaction)
	if err != nil {
		return err
	}
	if in.Empty() {
		// No versions in range. Not an error, nothing to write.
		if r.progress != nil {
			r.progress.TileSkipped()
		}
		return nil
	}

	out, err := r.strategy.Reduce(in)
	if err != nil {
		return fmt.Errorf("reduce tile %s: %w", coord, err)
	}

	if err := r.plate.WriteRequest(); err != nil {
		return fmt.Errorf("begin write for tile %s: %w", coord, err)
	}
	if err := r.plate.WriteUpdate(out.Encode(), coord.Col, coord.Row, coord.Level, r.job.OutputTransaction); err != nil {
		return fmt.Errorf("write tile %s t=%d: %w", coord, r.job.OutputTransaction, err)
	}
	if err := r.plate.WriteComplete(); err != nil {
		return fmt.Errorf("commit tile %s t=%d: %w", coord, r.job.OutputTransaction, err)
	}
	if r.progress != nil {
		r.progress.TileReduced()
	}
	return nil
}
