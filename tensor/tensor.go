package tensor

import (
	"fmt"
)

// Tensor is a dense float32 tensor with a fixed 4D NCHW shape.
// Element (n, c, h, w) lives at offset n*C*H*W + c*H*W + h*W + w.
type Tensor struct {
	Data []float32
	N    int // samples
	C    int // channels
	H    int // height
	W    int // width
}

// New allocates an uninitialized tensor of shape (n, c, h, w).
// In Go "uninitialized" still means zeroed memory, so New and NewZeroed
// return identical tensors.
func New(n, c, h, w int) *Tensor {
	checkShape(n, c, h, w)
	return &Tensor{
		Data: make([]float32, n*c*h*w),
		N:    n,
		C:    c,
		H:    h,
		W:    w,
	}
}

// NewZeroed allocates a zero-filled tensor of shape (n, c, h, w).
func NewZeroed(n, c, h, w int) *Tensor {
	return New(n, c, h, w)
}

// NewMatrix allocates a tensor viewed as a rows x cols matrix.
func NewMatrix(rows, cols int) *Tensor {
	return New(rows, 1, 1, cols)
}

// From copies data into a fresh tensor of shape (n, c, h, w).
func From(data []float32, n, c, h, w int) *Tensor {
	t := New(n, c, h, w)
	if len(data) != len(t.Data) {
		panic(fmt.Sprintf("tensor: data length %d does not match shape (%d,%d,%d,%d)", len(data), n, c, h, w))
	}
	copy(t.Data, data)
	return t
}

// FromMatrix copies data into a fresh rows x cols matrix tensor.
func FromMatrix(data []float32, rows, cols int) *Tensor {
	return From(data, rows, 1, 1, cols)
}

// Like allocates a new zeroed tensor with the same shape as t.
func Like(t *Tensor) *Tensor {
	return New(t.N, t.C, t.H, t.W)
}

func checkShape(n, c, h, w int) {
	if n < 1 || c < 1 || h < 1 || w < 1 {
		panic(fmt.Sprintf("tensor: invalid shape (%d,%d,%d,%d), all dims must be positive", n, c, h, w))
	}
}

// Size returns the total element count N*C*H*W.
func (t *Tensor) Size() int {
	return len(t.Data)
}

// Entities returns the sample count of the entities x length matrix view.
func (t *Tensor) Entities() int {
	return t.N
}

// EntityLen returns the per-sample length C*H*W of the matrix view.
func (t *Tensor) EntityLen() int {
	return t.C * t.H * t.W
}

// Rows is an alias of Entities for tensors used as plain matrices.
func (t *Tensor) Rows() int { return t.N }

// Cols is an alias of EntityLen for tensors used as plain matrices.
func (t *Tensor) Cols() int { return t.C * t.H * t.W }

// SliceLen returns the channel-slice length H*W.
func (t *Tensor) SliceLen() int {
	return t.H * t.W
}

// SameShape reports whether t and o have identical NCHW shapes.
func (t *Tensor) SameShape(o *Tensor) bool {
	return t.N == o.N && t.C == o.C && t.H == o.H && t.W == o.W
}

// SameSize reports whether t and o hold the same number of elements.
func (t *Tensor) SameSize(o *Tensor) bool {
	return len(t.Data) == len(o.Data)
}

// ShapeString renders the shape for error messages and summaries.
func (t *Tensor) ShapeString() string {
	return fmt.Sprintf("(%d,%d,%d,%d)", t.N, t.C, t.H, t.W)
}

// At returns the element at (n, c, h, w).
func (t *Tensor) At(n, c, h, w int) float32 {
	return t.Data[t.index(n, c, h, w)]
}

// SetAt stores v at (n, c, h, w).
func (t *Tensor) SetAt(v float32, n, c, h, w int) {
	t.Data[t.index(n, c, h, w)] = v
}

func (t *Tensor) index(n, c, h, w int) int {
	if n < 0 || n >= t.N || c < 0 || c >= t.C || h < 0 || h >= t.H || w < 0 || w >= t.W {
		panic(fmt.Sprintf("tensor: index (%d,%d,%d,%d) out of bounds for shape %s", n, c, h, w, t.ShapeString()))
	}
	return ((n*t.C+c)*t.H+h)*t.W + w
}

// Sample returns the sub-slice holding sample n (length C*H*W).
func (t *Tensor) Sample(n int) []float32 {
	l := t.EntityLen()
	return t.Data[n*l : (n+1)*l]
}

// Channel returns the sub-slice holding channel c of sample n (length H*W).
func (t *Tensor) Channel(n, c int) []float32 {
	hw := t.H * t.W
	off := (n*t.C + c) * hw
	return t.Data[off : off+hw]
}

// Reshape changes the shape in place. The element count must be preserved;
// the buffer is untouched.
func (t *Tensor) Reshape(n, c, h, w int) {
	checkShape(n, c, h, w)
	if n*c*h*w != len(t.Data) {
		panic(fmt.Sprintf("tensor: cannot reshape %s (%d elements) to (%d,%d,%d,%d)", t.ShapeString(), len(t.Data), n, c, h, w))
	}
	t.N, t.C, t.H, t.W = n, c, h, w
}

// Overwrite copies src's data into t. Shapes must match exactly.
func (t *Tensor) Overwrite(src *Tensor) {
	if !t.SameShape(src) {
		panic(fmt.Sprintf("tensor: overwrite shape mismatch, dst %s src %s", t.ShapeString(), src.ShapeString()))
	}
	copy(t.Data, src.Data)
}

// MatrixView returns a (N, 1, 1, C*H*W) view sharing t's buffer, the
// entities x length layout the matrix kernels consume.
func (t *Tensor) MatrixView() *Tensor {
	return &Tensor{Data: t.Data, N: t.N, C: 1, H: 1, W: t.C * t.H * t.W}
}

// Clone returns a deep copy of t.
func (t *Tensor) Clone() *Tensor {
	c := Like(t)
	copy(c.Data, t.Data)
	return c
}

// Zero clears the buffer in place.
func (t *Tensor) Zero() {
	for i := range t.Data {
		t.Data[i] = 0
	}
}

// Fill sets every element to v.
func (t *Tensor) Fill(v float32) {
	for i := range t.Data {
		t.Data[i] = v
	}
}

// Equal reports exact element-wise equality of shape and data.
func (t *Tensor) Equal(o *Tensor) bool {
	if !t.SameShape(o) {
		return false
	}
	for i, v := range t.Data {
		if o.Data[i] != v {
			return false
		}
	}
	return true
}
