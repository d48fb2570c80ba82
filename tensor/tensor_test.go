package tensor

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewShapeAndStride(t *testing.T) {
	x := New(2, 3, 4, 5)
	assert.Equal(t, 120, x.Size())
	assert.Equal(t, 2, x.Entities())
	assert.Equal(t, 60, x.EntityLen())
	assert.Equal(t, 20, x.SliceLen())

	x.SetAt(7, 1, 2, 3, 4)
	assert.Equal(t, float32(7), x.Data[1*60+2*20+3*5+4])
	assert.Equal(t, float32(7), x.At(1, 2, 3, 4))
}

func TestNewRejectsInvalidShape(t *testing.T) {
	assert.Panics(t, func() { New(0, 1, 1, 1) })
	assert.Panics(t, func() { New(1, -1, 1, 1) })
}

func TestFromCopies(t *testing.T) {
	src := []float32{1, 2, 3, 4}
	x := From(src, 1, 1, 2, 2)
	src[0] = 99
	assert.Equal(t, float32(1), x.Data[0])

	assert.Panics(t, func() { From(src, 1, 1, 3, 3) })
}

func TestReshapePreservesBuffer(t *testing.T) {
	x := From([]float32{1, 2, 3, 4, 5, 6}, 1, 1, 2, 3)
	x.Reshape(1, 3, 2, 1)
	assert.Equal(t, []float32{1, 2, 3, 4, 5, 6}, x.Data)
	assert.Equal(t, 3, x.C)

	assert.Panics(t, func() { x.Reshape(1, 1, 4, 4) })
}

func TestOverwrite(t *testing.T) {
	x := NewMatrix(2, 3)
	y := From([]float32{1, 2, 3, 4, 5, 6}, 2, 1, 1, 3)

	x.Overwrite(y)
	assert.Equal(t, y.Data, x.Data)
	assert.Equal(t, 2, x.N)
	assert.Equal(t, 3, x.W)

	z := NewMatrix(3, 2)
	assert.Panics(t, func() { x.Overwrite(z) })
}

func TestCloneIsDeep(t *testing.T) {
	x := From([]float32{1, 2}, 1, 1, 1, 2)
	c := x.Clone()
	c.Data[0] = 9
	assert.Equal(t, float32(1), x.Data[0])
	assert.True(t, x.SameShape(c))
}

func TestChannelView(t *testing.T) {
	x := New(2, 3, 2, 2)
	for i := range x.Data {
		x.Data[i] = float32(i)
	}
	ch := x.Channel(1, 2)
	require.Len(t, ch, 4)
	assert.Equal(t, float32(1*12+2*4), ch[0])
}

func TestEqual(t *testing.T) {
	x := From([]float32{1, 2}, 1, 1, 1, 2)
	y := From([]float32{1, 2}, 1, 1, 1, 2)
	z := From([]float32{1, 3}, 1, 1, 1, 2)
	assert.True(t, x.Equal(y))
	assert.False(t, x.Equal(z))

	w := From([]float32{1, 2}, 1, 2, 1, 1)
	assert.False(t, x.Equal(w))
}

func TestPoolReusesShapes(t *testing.T) {
	p := NewPool()
	a := p.Get(1, 2, 3, 4)
	a.Fill(5)
	p.Put(a)

	b := p.Get(1, 2, 3, 4)
	for _, v := range b.Data {
		assert.Equal(t, float32(0), v)
	}
	assert.True(t, a.SameShape(b))
}

func TestPoolPanicsOnDoubleRelease(t *testing.T) {
	p := NewPool()
	a := p.Get(1, 1, 2, 2)
	p.Put(a)
	assert.Panics(t, func() { p.Put(a) })
}

func TestPoolReleaseAfterReacquire(t *testing.T) {
	p := NewPool()
	a := p.Get(1, 1, 2, 2)
	p.Put(a)

	b := p.Get(1, 1, 2, 2)
	assert.NotPanics(t, func() { p.Put(b) }, "a reacquired tensor is live again and may be released once")
}

func TestShape(t *testing.T) {
	s := Linear(10)
	assert.Equal(t, Shape{C: 10, H: 1, W: 1}, s)
	assert.Equal(t, 10, s.Size())

	v := Volume(3, 4, 5)
	assert.Equal(t, 60, v.Size())

	b := v.NewBatch(2)
	assert.True(t, v.Matches(b))
	assert.False(t, s.Matches(b))
}
