package bayer

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func roundTripBNZP16(t *testing.T, row []uint16) {
	t.Helper()

	dst := make([]byte, 2*len(row)+1)
	n, err := EncodeBNZP16(dst, row)
	require.NoError(t, err)
	require.LessOrEqual(t, n, 2*len(row)+1)

	got, consumed, err := DecodeBNZP16(dst[:n], len(row))
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, row, got)
}

func TestBNZP16RoundTripRandom(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for _, width := range []int{1, 2, 16, 256, 4096} {
		row := make([]uint16, width)
		for i := range row {
			row[i] = uint16(r.Intn(1024))
		}
		roundTripBNZP16(t, row)
	}
}

func TestBNZP16RoundTripAllZero(t *testing.T) {
	roundTripBNZP16(t, make([]uint16, 512))
}

func TestBNZP16RoundTripAllMax(t *testing.T) {
	row := make([]uint16, 512)
	for i := range row {
		row[i] = 0xFFFF
	}
	roundTripBNZP16(t, row)
}

func TestBNZP16RoundTripMonotonic(t *testing.T) {
	row := make([]uint16, 1024)
	for i := range row {
		row[i] = uint16(i)
	}
	roundTripBNZP16(t, row)
}

func TestBNZP16RoundTripHighNoise(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	row := make([]uint16, 1024)
	for i := range row {
		row[i] = uint16(r.Intn(65536))
	}
	roundTripBNZP16(t, row)
}

func TestBNZP16CapacityExceeded(t *testing.T) {
	row := make([]uint16, 16)
	dst := make([]byte, 4)
	_, err := EncodeBNZP16(dst, row)
	require.ErrorIs(t, err, ErrCapacityExceeded)
}

func TestBNZP16EmptyRow(t *testing.T) {
	roundTripBNZP16(t, []uint16{})
}

func TestBNZP16UsesRawFallbackWhenSmaller(t *testing.T) {
	row := make([]uint16, 64)
	r := rand.New(rand.NewSource(9))
	for i := range row {
		row[i] = uint16(r.Intn(65536))
	}

	dst := make([]byte, 2*len(row)+1)
	n, err := EncodeBNZP16(dst, row)
	require.NoError(t, err)
	require.LessOrEqual(t, n, 2*len(row)+1)

	got, consumed, err := DecodeBNZP16(dst[:n], len(row))
	require.NoError(t, err)
	require.Equal(t, n, consumed)
	require.Equal(t, row, got)
}
