// Package kernels holds the numerical primitives every layer is built from.
//
// Each kernel is a pure function over tensors: it validates argument shapes
// before touching memory, writes into a caller-supplied output, and frees
// any internal temporaries before returning. Kernels parallelize across the
// outermost dimension (samples, or channels for the channel reductions) and
// are deterministic for identical input. An alternate implementation (SIMD,
// GPU) replaces these functions while preserving the shape contracts and
// numeric semantics to within floating-point rounding.
package kernels
