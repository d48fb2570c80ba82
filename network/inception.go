package network

import (
	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/layers"
)

// InceptionConfig sizes the three branches of an inception block: a 1x1
// reduction branch, a 1x1 -> 3x3 branch and a 1x1 -> 5x5 branch. The 3x3 and
// 5x5 convolutions run behind zero padding so every branch preserves spatial
// extent and the depth concatenation lines up.
type InceptionConfig struct {
	Conv1x1    int // kernels on the direct 1x1 branch
	Reduce3x3  int // 1x1 kernels feeding the 3x3 branch
	Conv3x3    int // kernels on the 3x3 branch
	Reduce5x5  int // 1x1 kernels feeding the 5x5 branch
	Conv5x5    int // kernels on the 5x5 branch
	Activation activations.Function
}

// OutputChannels returns the channel count the block emits.
func (c InceptionConfig) OutputChannels() int {
	return c.Conv1x1 + c.Conv3x3 + c.Conv5x5
}

// Inception appends an inception block under parent and returns its depth
// concatenation node.
func (g *GraphBuilder) Inception(parent *Node, cfg InceptionConfig) *Node {
	in := parent.Shape()

	b1 := g.Layer(parent, layers.NewConv2D(in, cfg.Conv1x1, 1, 1, cfg.Activation))

	r3 := g.Layer(parent, layers.NewConv2D(in, cfg.Reduce3x3, 1, 1, cfg.Activation))
	p3 := g.Layer(r3, layers.NewPad(r3.Shape(), 1))
	b3 := g.Layer(p3, layers.NewConv2D(p3.Shape(), cfg.Conv3x3, 3, 3, cfg.Activation))

	r5 := g.Layer(parent, layers.NewConv2D(in, cfg.Reduce5x5, 1, 1, cfg.Activation))
	p5 := g.Layer(r5, layers.NewPad(r5.Shape(), 2))
	b5 := g.Layer(p5, layers.NewConv2D(p5.Shape(), cfg.Conv5x5, 5, 5, cfg.Activation))

	return g.DepthConcat(activations.Identity, b1, b3, b5)
}
