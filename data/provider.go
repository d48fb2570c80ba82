package data

import (
	"fmt"
)

// Sample is one labelled example: a flat input vector and its flat target.
type Sample struct {
	X []float32
	Y []float32
}

// Provider abstracts the dataset source. Implementations yield flat,
// equally-sized sample pairs; the batch collection consumes them without
// knowing where they came from.
type Provider interface {
	// Samples returns the full dataset as flat row-major matrices plus the
	// per-sample column counts.
	Samples() (x, y []float32, inputSize, outputSize int, err error)
}

// FlatProvider serves a dataset already held as two flat matrices.
type FlatProvider struct {
	X          []float32
	Y          []float32
	InputSize  int
	OutputSize int
}

func (p FlatProvider) Samples() ([]float32, []float32, int, int, error) {
	if p.InputSize < 1 || p.OutputSize < 1 {
		return nil, nil, 0, 0, fmt.Errorf("data: non-positive sample sizes %d/%d", p.InputSize, p.OutputSize)
	}
	if len(p.X)%p.InputSize != 0 || len(p.Y)%p.OutputSize != 0 {
		return nil, nil, 0, 0, fmt.Errorf("data: flat data length %d/%d not divisible by sample sizes %d/%d",
			len(p.X), len(p.Y), p.InputSize, p.OutputSize)
	}
	if len(p.X)/p.InputSize != len(p.Y)/p.OutputSize {
		return nil, nil, 0, 0, fmt.Errorf("data: input and target sample counts differ, %d vs %d",
			len(p.X)/p.InputSize, len(p.Y)/p.OutputSize)
	}
	return p.X, p.Y, p.InputSize, p.OutputSize, nil
}

// SliceProvider serves an in-memory list of per-sample pairs.
type SliceProvider []Sample

func (p SliceProvider) Samples() ([]float32, []float32, int, int, error) {
	if len(p) == 0 {
		return nil, nil, 0, 0, fmt.Errorf("data: empty sample list")
	}
	inSize, outSize := len(p[0].X), len(p[0].Y)

	x := make([]float32, 0, len(p)*inSize)
	y := make([]float32, 0, len(p)*outSize)
	for i, s := range p {
		if len(s.X) != inSize || len(s.Y) != outSize {
			return nil, nil, 0, 0, fmt.Errorf("data: sample %d has sizes %d/%d, want %d/%d",
				i, len(s.X), len(s.Y), inSize, outSize)
		}
		x = append(x, s.X...)
		y = append(y, s.Y...)
	}
	return x, y, inSize, outSize, nil
}
