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

// Run is the driver for one reduction job: validate the level against the
// plate, resolve the strategy, partition the grid, then dispatch to the
// typed pipeline matching the plate's pixel format and channel type.
// Unsupported layout combinations fail here, before any tile is touched.
func Run(ctx context.Context, p plate.Plate, job *config.Job, log *slog.Logger, progress *server.Progress) error {
	if job.Level < 0 || job.Level >= p.NumLevels() {
		return fmt.Errorf("invalid level %d: plate %s has %d levels (pixel format %s, channel type %s)",
			job.Level, job.URL, p.NumLevels(), p.PixelFormat(), p.ChannelType())
	}

	function, err := ResolveStrategy(job.Function)
	if err != nil {
		return err
	}

	units, err := Partition(job.Level, job.NumJobs, job.JobID)
	if err != nil {
		return err
	}
	if progress != nil {
		progress.SetUnitsTotal(len(units))
	}
	log.Info("work units assigned",
		"job_id", job.JobID,
		"num_jobs", job.NumJobs,
		"work_units", len(units),
	)

	switch p.PixelFormat() {
	case tile.FormatGrayA:
		switch p.ChannelType() {
		case tile.ChannelUint8:
			return runTyped[uint8](ctx, p, job, function, units, log, progress)
		case tile.ChannelInt16:
			return runTyped[int16](ctx, p, job, function, units, log, progress)
		case tile.ChannelFloat32:
			return runTyped[float32](ctx, p, job, function, units, log, progress)
		}
	case tile.FormatRGBA:
		switch p.ChannelType() {
		case tile.ChannelUint8:
			return runTyped[uint8](ctx, p, job, function, units, log, progress)
		}
	}
	return fmt.Errorf("unsupported plate layout: pixel format %s with channel type %s",
		p.PixelFormat(), p.ChannelType())
}

func runTyped[T tile.Sample](ctx context.Context, p plate.Plate, job *config.Job, function string, units []WorkUnit, log *slog.Logger, progress *server.Progress) error {
	strategy, err := newStrategy[T](function)
	if err != nil {
		return err
	}
	return NewRunner(p, job, strategy, log, progress).Run(ctx, units)
}
