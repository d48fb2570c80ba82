package data

import (
	"fmt"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeProvider(samples, inSize, outSize int) FlatProvider {
	x := make([]float32, samples*inSize)
	y := make([]float32, samples*outSize)
	for i := range x {
		x[i] = float32(i)
	}
	for i := range y {
		y[i] = float32(i) + 0.5
	}
	return FlatProvider{X: x, Y: y, InputSize: inSize, OutputSize: outSize}
}

func TestNewCollectionPartitions(t *testing.T) {
	c, err := NewCollection(makeProvider(10, 3, 2), 4)
	require.NoError(t, err)

	require.Equal(t, 3, c.Count())
	assert.Equal(t, 4, c.Batches()[0].Size())
	assert.Equal(t, 4, c.Batches()[1].Size())
	assert.Equal(t, 2, c.Batches()[2].Size(), "last batch holds the remainder")
	assert.Equal(t, 10, c.Samples())
}

func TestNewCollectionAcceptsBatchSizeOne(t *testing.T) {
	c, err := NewCollection(makeProvider(3, 2, 1), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, c.Count())
}

func TestNewCollectionRejectsBadInput(t *testing.T) {
	_, err := NewCollection(makeProvider(4, 2, 1), 0)
	assert.Error(t, err)

	_, err = NewCollection(FlatProvider{X: []float32{1}, Y: []float32{1}, InputSize: 2, OutputSize: 1}, 2)
	assert.Error(t, err)
}

// rowKeys renders each (X, Y) row pair so multisets can be compared.
func rowKeys(c *Collection) []string {
	var keys []string
	for _, b := range c.Batches() {
		for i := 0; i < b.Size(); i++ {
			keys = append(keys, fmt.Sprint(b.X.Sample(i), b.Y.Sample(i)))
		}
	}
	sort.Strings(keys)
	return keys
}

func TestCrossShufflePreservesRowMultiset(t *testing.T) {
	c, err := NewCollection(makeProvider(23, 4, 2), 5)
	require.NoError(t, err)

	before := rowKeys(c)
	for i := 0; i < 5; i++ {
		c.CrossShuffle()
	}
	after := rowKeys(c)

	assert.Equal(t, before, after, "cross-shuffle must re-permute rows, never lose or duplicate them")
}

func TestCrossShuffleMovesRowsAcrossBatches(t *testing.T) {
	c, err := NewCollection(makeProvider(40, 2, 1), 10)
	require.NoError(t, err)

	firstBefore := append([]float32(nil), c.Batches()[0].X.Data...)

	moved := false
	for attempt := 0; attempt < 10 && !moved; attempt++ {
		c.CrossShuffle()
		for _, b := range c.Batches() {
			if b.Size() == 10 {
				for i := range firstBefore {
					if b.X.Data[i] != firstBefore[i] {
						moved = true
						break
					}
				}
			}
		}
	}
	assert.True(t, moved, "repeated shuffles must eventually mix rows")
}

func TestSliceProvider(t *testing.T) {
	p := SliceProvider{
		{X: []float32{1, 2}, Y: []float32{1}},
		{X: []float32{3, 4}, Y: []float32{0}},
	}
	x, y, in, out, err := p.Samples()
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 2, 3, 4}, x)
	assert.Equal(t, []float32{1, 0}, y)
	assert.Equal(t, 2, in)
	assert.Equal(t, 1, out)

	bad := SliceProvider{
		{X: []float32{1, 2}, Y: []float32{1}},
		{X: []float32{3}, Y: []float32{0}},
	}
	_, _, _, _, err = bad.Samples()
	assert.Error(t, err)
}

func TestFlatProviderValidation(t *testing.T) {
	p := FlatProvider{X: []float32{1, 2, 3}, Y: []float32{1}, InputSize: 2, OutputSize: 1}
	_, _, _, _, err := p.Samples()
	assert.Error(t, err)
}
