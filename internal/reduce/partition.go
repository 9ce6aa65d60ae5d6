// Package reduce implements the sharded tile reduction: partitioning the
// tile grid into work units, gathering tile versions, combining them with a
// reduction strategy, and committing the results.
package reduce

import (
	"fmt"
)

// blockSize is the edge length in tiles of one work unit block. It only
// chunks work for sharding granularity and progress reporting; it is not
// user-configurable.
const blockSize = 4

// WorkUnit is a rectangular batch of tile coordinates. Min bounds are
// inclusive, Max bounds exclusive.
type WorkUnit struct {
	MinCol, MinRow int
	MaxCol, MaxRow int
}

// Width returns the number of columns the unit spans.
func (w WorkUnit) Width() int { return w.MaxCol - w.MinCol }

// Height returns the number of rows the unit spans.
func (w WorkUnit) Height() int { return w.MaxRow - w.MinRow }

// Partition splits the 2^level x 2^level tile grid into blockSize-square
// blocks, enumerates them row-major, and returns those assigned to jobID by
// round-robin (block i goes to job i mod numJobs). Every block lands on
// exactly one job and the union over all jobs covers the grid, so
// independent workers sharing (level, numJobs) never touch the same
// coordinate. A job whose modulo class matches no block legitimately gets an
// empty slice.
func Partition(level, numJobs, jobID int) ([]WorkUnit, error) {
	if level < 0 {
		return nil, fmt.Errorf("negative level %d", level)
	}
	if numJobs < 1 {
		return nil, fmt.Errorf("num_jobs must be at least 1, got %d", numJobs)
	}
	if jobID < 0 || jobID >= numJobs {
		return nil, fmt.Errorf("job_id %d out of range [0, %d)", jobID, numJobs)
	}

	grid := 1 << level
	var units []WorkUnit
	i := 0
	for row := 0; row < grid; row += blockSize {
		for col := 0; col < grid; col += blockSize {
			if i%numJobs == jobID {
				units = append(units, WorkUnit{
					MinCol: col,
					MinRow: row,
					MaxCol: min(col+blockSize, grid),
					MaxRow: min(row+blockSize, grid),
				})
			}
			i++
		}
	}
	return units, nil
}
