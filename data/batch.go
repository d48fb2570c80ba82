package data

import (
	"fmt"
	"math/rand"

	"github.com/muchq/synapse/tensor"
)

// Batch is one mini-batch: inputs X (N x inputSize) and targets Y
// (N x outputSize), both owned by the collection.
type Batch struct {
	X *tensor.Tensor
	Y *tensor.Tensor
}

// Size returns the number of samples in the batch.
func (b *Batch) Size() int {
	return b.X.Entities()
}

func (b *Batch) swapRow(i int, other *Batch, j int) {
	swapSlices(b.X.Sample(i), other.X.Sample(j))
	swapSlices(b.Y.Sample(i), other.Y.Sample(j))
}

func swapSlices(a, b []float32) {
	for i := range a {
		a[i], b[i] = b[i], a[i]
	}
}

// Collection partitions a dataset into fixed-size mini-batches; the last
// batch may be smaller. Cross-shuffling between epochs re-permutes rows
// across batch boundaries without a global copy.
type Collection struct {
	batches    []*Batch
	inputSize  int
	outputSize int
	samples    int
	rng        *rand.Rand
}

// NewCollection partitions the provider's dataset into batches of batchSize.
// Any batchSize >= 1 is accepted.
func NewCollection(p Provider, batchSize int) (*Collection, error) {
	if batchSize < 1 {
		return nil, fmt.Errorf("data: batch size must be at least 1, got %d", batchSize)
	}
	x, y, inSize, outSize, err := p.Samples()
	if err != nil {
		return nil, err
	}
	samples := len(x) / inSize
	if samples == 0 {
		return nil, fmt.Errorf("data: provider yielded no samples")
	}

	count := (samples + batchSize - 1) / batchSize
	batches := make([]*Batch, count)
	for i := 0; i < count; i++ {
		lo := i * batchSize
		hi := lo + batchSize
		if hi > samples {
			hi = samples
		}
		n := hi - lo
		batches[i] = &Batch{
			X: tensor.FromMatrix(x[lo*inSize:hi*inSize], n, inSize),
			Y: tensor.FromMatrix(y[lo*outSize:hi*outSize], n, outSize),
		}
	}

	return &Collection{
		batches:    batches,
		inputSize:  inSize,
		outputSize: outSize,
		samples:    samples,
		rng:        rand.New(rand.NewSource(rand.Int63())),
	}, nil
}

func (c *Collection) Batches() []*Batch { return c.batches }
func (c *Collection) Count() int        { return len(c.batches) }
func (c *Collection) Samples() int      { return c.samples }
func (c *Collection) InputSize() int    { return c.inputSize }
func (c *Collection) OutputSize() int   { return c.outputSize }

// CrossShuffle re-permutes rows across batches in place: consecutive pairs
// of a shuffled batch ordering exchange rows in one sweep, then the batch
// array itself is shuffled. Each pair works from its own derived RNG, so the
// sweeps need no coordination.
func (c *Collection) CrossShuffle() {
	order := c.rng.Perm(len(c.batches))

	for p := 0; p+1 < len(order); p += 2 {
		a, b := c.batches[order[p]], c.batches[order[p+1]]
		pairRng := rand.New(rand.NewSource(c.rng.Int63()))
		mixPair(a, b, pairRng)
	}

	c.rng.Shuffle(len(c.batches), func(i, j int) {
		c.batches[i], c.batches[j] = c.batches[j], c.batches[i]
	})
}

// mixPair swaps rows between a and b: at each step a random row below the
// shrinking bound moves to the bound's end position in a randomly chosen
// side, so every row crosses the boundary with equal probability.
func mixPair(a, b *Batch, rng *rand.Rand) {
	bound := a.Size()
	if s := b.Size(); s < bound {
		bound = s
	}

	for bound > 0 {
		k := rng.Intn(bound)
		src, dst := a, b
		if rng.Intn(2) == 0 {
			src, dst = b, a
		}
		src.swapRow(k, dst, bound-1)
		bound--
	}
}
