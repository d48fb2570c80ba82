package tensor

import "fmt"

// Shape describes the per-sample extent of a layer input or output. Linear
// data is carried as (C=size, H=1, W=1).
type Shape struct {
	C int
	H int
	W int
}

// Linear builds the shape of a flat vector of the given size.
func Linear(size int) Shape {
	return Shape{C: size, H: 1, W: 1}
}

// Volume builds a full (C, H, W) shape.
func Volume(c, h, w int) Shape {
	return Shape{C: c, H: h, W: w}
}

// Size returns C*H*W.
func (s Shape) Size() int {
	return s.C * s.H * s.W
}

func (s Shape) String() string {
	return fmt.Sprintf("(%d,%d,%d)", s.C, s.H, s.W)
}

// NewBatch allocates a tensor holding n samples of shape s.
func (s Shape) NewBatch(n int) *Tensor {
	return New(n, s.C, s.H, s.W)
}

// Matches reports whether t's per-sample dims equal s.
func (s Shape) Matches(t *Tensor) bool {
	return t.C == s.C && t.H == s.H && t.W == s.W
}
