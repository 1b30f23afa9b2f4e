package ddf_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shadowmesh/admitcore/clock"
	"github.com/shadowmesh/admitcore/ddf"
)

func TestAddReportsDuplicate(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	dup := f.AddLong(42)
	assert.False(t, dup)

	dup = f.AddLong(42)
	assert.True(t, dup)
}

func TestIsKnownDoesNotInsert(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	assert.False(t, f.IsKnown(7))
	assert.False(t, f.IsKnown(7))

	f.AddLong(7)
	assert.True(t, f.IsKnown(7))
}

func TestEntryStaysKnownAcrossOneRotation(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	f.AddLong(99)

	v.Advance(1000) // one rotation: entry moves from current to previous

	assert.True(t, f.IsKnown(99))
	dup := f.AddLong(99)
	assert.True(t, dup)
}

func TestEntryExpiresAfterTwoRotations(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	f.AddLong(99)

	v.Advance(1000)
	v.Advance(1000)

	assert.False(t, f.IsKnown(99))
}

func TestAddRejectsWrongLength(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 4)
	require.NoError(t, err)

	_, err = f.Add([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestEncodeLongLittleEndianTruncation(t *testing.T) {
	buf := ddf.EncodeLong(0x0102030405060708, 4)
	assert.Equal(t, []byte{0x08, 0x07, 0x06, 0x05}, buf)
}

func TestEncodeLongNegativeTwosComplement(t *testing.T) {
	buf := ddf.EncodeLong(-1, 3)
	assert.Equal(t, []byte{0xff, 0xff, 0xff}, buf)
}

func TestClearResetsState(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	f.AddLong(1)
	f.Clear()

	assert.False(t, f.IsKnown(1))
	assert.Equal(t, uint64(0), f.Size())
}

func TestStopDecayingHaltsRotation(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	f.StopDecaying()
	f.AddLong(5)

	v.Advance(10000)

	assert.True(t, f.IsKnown(5))
}

func TestRotateHookReceivesWindowStats(t *testing.T) {
	v := clock.NewVirtual()

	var gotStats ddf.RotationStats
	calls := 0

	f, err := ddf.New(v, 1000, 8, ddf.WithRotateHook(func(s ddf.RotationStats) {
		gotStats = s
		calls++
	}))
	require.NoError(t, err)

	f.AddLong(1)
	f.AddLong(1)
	f.AddLong(2)

	v.Advance(1000)

	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(3), gotStats.InsertedInWindow)
	assert.Equal(t, uint64(1), gotStats.DuplicatesInWindow)
}

func TestFalsePositiveRateIsZeroWhenEmpty(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	assert.Equal(t, float64(0), f.FalsePositiveRate())
}

func TestFalsePositiveRateIncreasesWithLoad(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8, ddf.WithMK(1<<10, 4))
	require.NoError(t, err)

	for i := int64(0); i < 2000; i++ {
		f.AddLong(i)
	}

	assert.Greater(t, f.FalsePositiveRate(), float64(0))
}

func TestNewRejectsNonPositiveEntryBytes(t *testing.T) {
	v := clock.NewVirtual()

	_, err := ddf.New(v, 1000, 0)
	assert.Error(t, err)
}

// Basic decay: duplicate detection, then decay after two rotations.
func TestDDFBasicScenario(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	assert.False(t, f.AddLong(42))
	assert.True(t, f.AddLong(42))

	v.Advance(1001) // one rotation
	assert.True(t, f.IsKnown(42))

	v.Advance(1001) // second rotation: entry falls out of both generations
	assert.False(t, f.IsKnown(42))
}

// Window edge: membership right at and just after each rotation boundary.
func TestDDFWindowEdgeScenario(t *testing.T) {
	v := clock.NewVirtual()
	f, err := ddf.New(v, 1000, 8)
	require.NoError(t, err)

	assert.False(t, f.AddLong(7)) // inserted at t=0

	v.Advance(999) // t = duration_ms - 1
	assert.True(t, f.AddLong(7))

	v.Advance(2) // t = duration_ms + 1, immediately after rotation
	assert.True(t, f.AddLong(7))

	v.Advance(1000) // t = 2*duration_ms + 1
	assert.False(t, f.AddLong(7))
}
