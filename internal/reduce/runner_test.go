package reduce

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"

	"platereduce/internal/config"
	"platereduce/internal/plate"
	"platereduce/internal/tile"
)

type tileKey struct {
	col, row, level, tid int
}

type fakeWrite struct {
	col, row, level, tid int
	data                 []byte
}

// fakePlate is an in-memory plate for runner and driver tests.
type fakePlate struct {
	format tile.PixelFormat
	ctype  tile.ChannelType
	size   int
	levels int

	tiles map[tileKey][]byte

	readErr error // injected load failure

	inTx    bool
	staged  []fakeWrite
	commits []fakeWrite
}

func newFakePlate(format tile.PixelFormat, ctype tile.ChannelType, size, levels int) *fakePlate {
	return &fakePlate{
		format: format,
		ctype:  ctype,
		size:   size,
		levels: levels,
		tiles:  make(map[tileKey][]byte),
	}
}

func (f *fakePlate) put(col, row, level, tid int, data []byte) {
	f.tiles[tileKey{col, row, level, tid}] = data
}

func (f *fakePlate) NumLevels() int                { return f.levels }
func (f *fakePlate) PixelFormat() tile.PixelFormat { return f.format }
func (f *fakePlate) ChannelType() tile.ChannelType { return f.ctype }
func (f *fakePlate) TileSize() int                 { return f.size }

func (f *fakePlate) SearchByLocation(col, row, level, startT, endT int, latestInRange bool) ([]plate.TileRef, error) {
	if endT < 0 {
		for k := range f.tiles {
			if k.tid > endT {
				endT = k.tid
			}
		}
	}
	var refs []plate.TileRef
	for tid := startT; tid <= endT; tid++ {
		if _, ok := f.tiles[tileKey{col, row, level, tid}]; ok {
			refs = append(refs, plate.TileRef{Col: col, Row: row, Level: level, TransactionID: tid})
		}
	}
	return refs, nil
}

func (f *fakePlate) Read(col, row, level, tid int, exact bool) ([]byte, error) {
	if f.readErr != nil {
		return nil, f.readErr
	}
	data, ok := f.tiles[tileKey{col, row, level, tid}]
	if !ok {
		return nil, plate.ErrTileNotFound
	}
	return data, nil
}

func (f *fakePlate) WriteRequest() error {
	f.inTx = true
	return nil
}

func (f *fakePlate) WriteUpdate(data []byte, col, row, level, tid int) error {
	if !f.inTx {
		return errors.New("write outside transaction")
	}
	f.staged = append(f.staged, fakeWrite{col, row, level, tid, data})
	return nil
}

func (f *fakePlate) WriteComplete() error {
	if !f.inTx {
		return errors.New("commit outside transaction")
	}
	f.commits = append(f.commits, f.staged...)
	f.staged = nil
	f.inTx = false
	return nil
}

func (f *fakePlate) Close() error { return nil }

func discardLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func encodedGraya(size int, value, alpha uint8) []byte {
	return grayaTile[uint8](size, size, value, alpha).Encode()
}

func testJob(level, startT, endT int) *config.Job {
	return &config.Job{
		URL:               "fake.plate",
		Level:             level,
		StartTransaction:  startT,
		EndTransaction:    endT,
		Function:          "WeightedAvg",
		OutputTransaction: 2000,
		JobID:             0,
		NumJobs:           1,
	}
}

func TestRunSkipsCoordinatesWithoutVersions(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)

	err := Run(context.Background(), p, testJob(2, 0, config.OpenEnd), discardLogger(), nil)
	require.NoError(t, err)
	require.Empty(t, p.commits, "no versions anywhere, no writes issued")
	require.False(t, p.inTx)
}

func TestRunCombinesVersionsInRange(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)
	p.put(3, 3, 2, 10, encodedGraya(4, 10, 100))
	p.put(3, 3, 2, 20, encodedGraya(4, 30, 50))

	err := Run(context.Background(), p, testJob(2, 0, 20), discardLogger(), nil)
	require.NoError(t, err)

	require.Len(t, p.commits, 1, "exactly one coordinate written")
	w := p.commits[0]
	require.Equal(t, fakeWrite{3, 3, 2, 2000, w.data}, w)

	out, err := tile.Decode[uint8](w.data, 4, 4, 2)
	require.NoError(t, err)
	require.EqualValues(t, 17, out.At(0, 0, 0), "both versions combined")
	require.EqualValues(t, 150, out.At(0, 0, 1))
}

func TestRunHonorsStartBound(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)
	p.put(3, 3, 2, 10, encodedGraya(4, 10, 100))
	p.put(3, 3, 2, 20, encodedGraya(4, 30, 50))

	err := Run(context.Background(), p, testJob(2, 15, 20), discardLogger(), nil)
	require.NoError(t, err)

	require.Len(t, p.commits, 1)
	out, err := tile.Decode[uint8](p.commits[0].data, 4, 4, 2)
	require.NoError(t, err)
	require.EqualValues(t, 30, out.At(0, 0, 0), "transaction 10 is outside the range")
	require.EqualValues(t, 50, out.At(0, 0, 1))
}

func TestRunOpenEndedRangeReachesLatest(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)
	p.put(1, 2, 2, 500, encodedGraya(4, 30, 50))

	err := Run(context.Background(), p, testJob(2, 0, config.OpenEnd), discardLogger(), nil)
	require.NoError(t, err)
	require.Len(t, p.commits, 1)
}

func TestRunPropagatesLoadFailures(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)
	p.put(0, 0, 2, 10, encodedGraya(4, 10, 100))
	p.readErr = errors.New("checksum mismatch")

	err := Run(context.Background(), p, testJob(2, 0, config.OpenEnd), discardLogger(), nil)
	require.Error(t, err, "a version that exists but cannot load is fatal")
	require.ErrorContains(t, err, "checksum mismatch")
	require.Empty(t, p.commits)
}

func TestRunRejectsInvalidLevel(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)

	err := Run(context.Background(), p, testJob(-1, 0, config.OpenEnd), discardLogger(), nil)
	require.Error(t, err)
	require.ErrorContains(t, err, "has 3 levels", "error reports the plate's level count")

	err = Run(context.Background(), p, testJob(3, 0, config.OpenEnd), discardLogger(), nil)
	require.Error(t, err)
}

func TestRunRejectsUnsupportedLayout(t *testing.T) {
	p := newFakePlate(tile.FormatRGBA, tile.ChannelFloat32, 4, 3)

	err := Run(context.Background(), p, testJob(2, 0, config.OpenEnd), discardLogger(), nil)
	require.Error(t, err)
	require.ErrorContains(t, err, "unsupported plate layout")
	require.Empty(t, p.commits, "no partial processing before the layout check")
}

func TestRunRejectsUnknownFunction(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)
	job := testJob(2, 0, config.OpenEnd)
	job.Function = "median"

	err := Run(context.Background(), p, job, discardLogger(), nil)
	require.Error(t, err)
	require.ErrorContains(t, err, "WeightedAvg", "error lists available functions")
}

func TestRunFunctionNameIsCaseInsensitive(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)
	p.put(0, 0, 2, 10, encodedGraya(4, 10, 100))
	job := testJob(2, 0, config.OpenEnd)
	job.Function = "weightedAVG"

	require.NoError(t, Run(context.Background(), p, job, discardLogger(), nil))
	require.Len(t, p.commits, 1)
}

func TestRunStopsBetweenTilesOnCancel(t *testing.T) {
	p := newFakePlate(tile.FormatGrayA, tile.ChannelUint8, 4, 3)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Run(ctx, p, testJob(2, 0, config.OpenEnd), discardLogger(), nil)
	require.ErrorIs(t, err, context.Canceled)
}
