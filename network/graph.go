package network

import (
	"fmt"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/cost"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/layers"
	"github.com/muchq/synapse/tensor"
)

// NodeKind discriminates the DAG node variants.
type NodeKind byte

const (
	InputNode NodeKind = iota
	ProcessingNode
	SumNode
	DepthConcatNode
	TrainingBranchNode
	OutputNode
)

func (k NodeKind) String() string {
	switch k {
	case InputNode:
		return "Input"
	case ProcessingNode:
		return "Processing"
	case SumNode:
		return "Sum"
	case DepthConcatNode:
		return "DepthConcat"
	case TrainingBranchNode:
		return "TrainingBranch"
	case OutputNode:
		return "Output"
	}
	return fmt.Sprintf("NodeKind(%d)", byte(k))
}

// Node is one vertex of the computation graph. Processing and output nodes
// wrap a layer; merge nodes carry their own activation instead.
type Node struct {
	id         int
	kind       NodeKind
	layer      layers.Layer
	activation activations.Function
	shape      tensor.Shape
	parents    []*Node
	children   []*Node
	auxiliary  bool // downstream of a training branch
}

func (n *Node) Kind() NodeKind           { return n.kind }
func (n *Node) Layer() layers.Layer      { return n.layer }
func (n *Node) Shape() tensor.Shape      { return n.shape }

func (n *Node) activationFn() activations.Function {
	if n.layer != nil {
		return n.layer.Activation()
	}
	return n.activation
}

// GraphBuilder accumulates nodes; parents must be created before children,
// which keeps the node list in topological order by construction.
type GraphBuilder struct {
	nodes []*Node
	input *Node
}

func NewGraphBuilder(input tensor.Shape) *GraphBuilder {
	in := &Node{id: 0, kind: InputNode, shape: input, activation: activations.Identity}
	return &GraphBuilder{nodes: []*Node{in}, input: in}
}

// Input returns the entry node.
func (g *GraphBuilder) Input() *Node { return g.input }

func (g *GraphBuilder) add(n *Node) *Node {
	n.id = len(g.nodes)
	for _, p := range n.parents {
		p.children = append(p.children, n)
		if p.auxiliary {
			n.auxiliary = true
		}
	}
	if n.kind == TrainingBranchNode {
		n.auxiliary = true
	}
	g.nodes = append(g.nodes, n)
	return n
}

// Layer appends a processing node wrapping l under parent.
func (g *GraphBuilder) Layer(parent *Node, l layers.Layer) *Node {
	if l.InputShape().Size() != parent.shape.Size() {
		panic(fmt.Sprintf("network: node layer %s expects input %s, parent produces %s", l.Type(), l.InputShape(), parent.shape))
	}
	kind := ProcessingNode
	if _, ok := l.(outputLayer); ok {
		kind = OutputNode
	}
	return g.add(&Node{kind: kind, layer: l, shape: l.OutputShape(), parents: []*Node{parent}})
}

// Sum appends a merge node adding the parents element-wise, then applying f.
func (g *GraphBuilder) Sum(f activations.Function, parents ...*Node) *Node {
	if len(parents) < 2 {
		panic(fmt.Sprintf("network: sum node needs at least 2 parents, got %d", len(parents)))
	}
	shape := parents[0].shape
	for _, p := range parents[1:] {
		if p.shape != shape {
			panic(fmt.Sprintf("network: sum node parents disagree on shape, %s vs %s", shape, p.shape))
		}
	}
	return g.add(&Node{kind: SumNode, activation: f, shape: shape, parents: parents})
}

// DepthConcat appends a merge node stacking the parents along the channel
// axis, then applying f. Parents must share spatial dims.
func (g *GraphBuilder) DepthConcat(f activations.Function, parents ...*Node) *Node {
	if len(parents) < 2 {
		panic(fmt.Sprintf("network: depth concat node needs at least 2 parents, got %d", len(parents)))
	}
	h, w := parents[0].shape.H, parents[0].shape.W
	channels := 0
	for _, p := range parents {
		if p.shape.H != h || p.shape.W != w {
			panic(fmt.Sprintf("network: depth concat parents disagree on spatial dims, %s vs (%d,%d)", p.shape, h, w))
		}
		channels += p.shape.C
	}
	return g.add(&Node{kind: DepthConcatNode, activation: f, shape: tensor.Volume(channels, h, w), parents: parents})
}

// TrainingBranch roots an auxiliary loss tail under parent. The branch and
// everything below it runs only during training; its output node contributes
// gradients but not predictions.
func (g *GraphBuilder) TrainingBranch(parent *Node) *Node {
	return g.add(&Node{kind: TrainingBranchNode, activation: activations.Identity, shape: parent.shape, parents: []*Node{parent}})
}

// Build validates the graph: exactly one non-auxiliary output node, every
// node reaching an output, every auxiliary tail ending in an output node.
func (g *GraphBuilder) Build() (*Graph, error) {
	var main *Node
	costByOutput := map[int]cost.Function{}
	for _, n := range g.nodes {
		if n.kind != OutputNode {
			if len(n.children) == 0 && n.kind != InputNode {
				return nil, fmt.Errorf("network: node %d (%s) is a dead end", n.id, n.kind)
			}
			continue
		}
		costByOutput[n.id] = n.layer.(outputLayer).Cost()
		if !n.auxiliary {
			if main != nil {
				return nil, fmt.Errorf("network: graph has more than one main output (nodes %d and %d)", main.id, n.id)
			}
			main = n
		}
	}
	if main == nil {
		return nil, fmt.Errorf("network: graph has no main output node")
	}
	if len(g.input.children) == 0 {
		return nil, fmt.Errorf("network: input node has no children")
	}

	gr := &Graph{nodes: g.nodes, input: g.input, main: main, costFn: costByOutput[main.id]}
	for _, n := range g.nodes {
		if n.layer == nil {
			continue
		}
		if w, ok := n.layer.(layers.Weighted); ok {
			gr.weightedNodes = append(gr.weightedNodes, n)
			gr.weightedLayers = append(gr.weightedLayers, w)
		}
	}
	return gr, nil
}

// Graph is a DAG network: nodes in topological order, one input, one main
// output, optional auxiliary training branches.
type Graph struct {
	nodes          []*Node
	input          *Node
	main           *Node
	costFn         cost.Function
	weightedNodes  []*Node
	weightedLayers []layers.Weighted
}

func (g *Graph) InputShape() tensor.Shape    { return g.input.shape }
func (g *Graph) OutputShape() tensor.Shape   { return g.main.shape }
func (g *Graph) CostFunction() cost.Function { return g.costFn }
func (g *Graph) Nodes() []*Node              { return g.nodes }

func (g *Graph) WeightedLayers() []layers.Weighted { return g.weightedLayers }

// Forward visits nodes in topological order, keeping per-node z and a
// stacks. During inference, auxiliary subtrees are skipped.
func (g *Graph) Forward(x *tensor.Tensor, training bool) (zs, as []*tensor.Tensor) {
	zs = make([]*tensor.Tensor, len(g.nodes))
	as = make([]*tensor.Tensor, len(g.nodes))

	for _, n := range g.nodes {
		if n.auxiliary && !training {
			continue
		}
		switch n.kind {
		case InputNode:
			as[n.id] = viewAs(x, n.shape)
		case TrainingBranchNode:
			as[n.id] = as[n.parents[0].id]
		case ProcessingNode, OutputNode:
			in := viewAs(as[n.parents[0].id], n.layer.InputShape())
			zs[n.id], as[n.id] = n.layer.Forward(in, training)
		case SumNode, DepthConcatNode:
			inputs := make([]*tensor.Tensor, len(n.parents))
			for i, p := range n.parents {
				inputs[i] = as[p.id]
			}
			z := n.shape.NewBatch(x.N)
			if n.kind == SumNode {
				kernels.SumForward(inputs, z)
			} else {
				kernels.DepthConcatForward(inputs, z)
			}
			a := tensor.Like(z)
			kernels.Activate(n.activation, z, a)
			zs[n.id], as[n.id] = z, a
		}
	}
	return zs, as
}

// Backward visits nodes in reverse topological order. accum collects dJ/da
// per node; deltas form by folding in each node's activation derivative.
// Auxiliary outputs contribute gradients alongside the main output.
func (g *Graph) Backward(x *tensor.Tensor, zs, as []*tensor.Tensor, y *tensor.Tensor) []Gradients {
	accum := make([]*tensor.Tensor, len(g.nodes))
	gradsByLayer := make([]*Gradients, len(g.weightedLayers))

	weightedIndexOf := map[*Node]int{}
	for i, n := range g.weightedNodes {
		weightedIndexOf[n] = i
	}

	for i := len(g.nodes) - 1; i >= 0; i-- {
		n := g.nodes[i]
		if n.kind == InputNode || as[n.id] == nil {
			continue
		}

		// form this node's delta (dJ/dz)
		var delta *tensor.Tensor
		if n.kind == OutputNode {
			out := n.layer.(outputLayer)
			delta = tensor.Like(zs[n.id])
			out.Cost().Prime(as[n.id], y, zs[n.id], out.Activation(), delta)
		} else {
			if accum[n.id] == nil {
				continue // no child needed this node this pass
			}
			delta = accum[n.id]
			if n.kind != TrainingBranchNode {
				kernels.ActivateBack(n.activationFn(), zs[n.id], delta, delta)
			}
		}

		// propagate delta to parents as dJ/da contributions
		switch n.kind {
		case TrainingBranchNode:
			addAccum(accum, n.parents[0], delta)
		case ProcessingNode, OutputNode:
			parent := n.parents[0]
			in := viewAs(as[parent.id], n.layer.InputShape())
			needDx := parent.kind != InputNode
			var dx *tensor.Tensor
			switch l := n.layer.(type) {
			case layers.Weighted:
				var dw, db *tensor.Tensor
				dx, dw, db = l.Backward(in, delta, needDx)
				idx := weightedIndexOf[n]
				gradsByLayer[idx] = &Gradients{LayerIndex: idx, DW: dw, DB: db}
			case layers.Constant:
				if needDx {
					// constant backward may alias its input (pooling); a
					// fan-out parent's activation is still needed by its
					// other children, so give the kernel its own copy
					if len(parent.children) > 1 {
						in = in.Clone()
					}
					dx = l.Backward(in, delta)
				}
			default:
				panic(fmt.Sprintf("network: node %d (%s) implements neither backward contract", n.id, n.kind))
			}
			if needDx {
				addAccum(accum, parent, viewAs(dx, parent.shape))
			}
		case SumNode:
			for _, p := range n.parents {
				addAccum(accum, p, delta.Clone())
			}
		case DepthConcatNode:
			slices := make([]*tensor.Tensor, len(n.parents))
			for k, p := range n.parents {
				slices[k] = p.shape.NewBatch(delta.N)
			}
			kernels.DepthConcatBackward(delta, slices)
			for k, p := range n.parents {
				addAccum(accum, p, slices[k])
			}
		}
	}

	var grads []Gradients
	for _, gr := range gradsByLayer {
		if gr != nil {
			grads = append(grads, *gr)
		}
	}
	return grads
}

// addAccum accumulates a dJ/da contribution into the parent's slot.
func addAccum(accum []*tensor.Tensor, parent *Node, contribution *tensor.Tensor) {
	c := viewAs(contribution, parent.shape)
	if accum[parent.id] == nil {
		accum[parent.id] = c
		return
	}
	dst := accum[parent.id]
	for i, v := range c.Data {
		dst.Data[i] += v
	}
}

func (g *Graph) TrainStep(x, y *tensor.Tensor) []Gradients {
	zs, as := g.Forward(x, true)
	return g.Backward(x, zs, as, y)
}

func (g *Graph) Predict(x *tensor.Tensor) *tensor.Tensor {
	_, as := g.Forward(x, false)
	return as[g.main.id]
}

func (g *Graph) Clone() Network {
	b := NewGraphBuilder(g.input.shape)
	mapping := map[*Node]*Node{g.input: b.input}
	for _, n := range g.nodes[1:] {
		parents := make([]*Node, len(n.parents))
		for i, p := range n.parents {
			parents[i] = mapping[p]
		}
		var nn *Node
		switch n.kind {
		case ProcessingNode, OutputNode:
			nn = b.Layer(parents[0], n.layer.Clone())
		case SumNode:
			nn = b.Sum(n.activation, parents...)
		case DepthConcatNode:
			nn = b.DepthConcat(n.activation, parents...)
		case TrainingBranchNode:
			nn = b.TrainingBranch(parents[0])
		}
		mapping[n] = nn
	}
	cloned, err := b.Build()
	if err != nil {
		panic(fmt.Sprintf("network: clone produced invalid graph: %v", err))
	}
	return cloned
}

func (g *Graph) Equals(other Network) bool {
	o, ok := other.(*Graph)
	if !ok || len(g.nodes) != len(o.nodes) {
		return false
	}
	for i, n := range g.nodes {
		on := o.nodes[i]
		if n.kind != on.kind || n.shape != on.shape || len(n.parents) != len(on.parents) {
			return false
		}
		for j, p := range n.parents {
			if p.id != on.parents[j].id {
				return false
			}
		}
		if n.layer != nil && !n.layer.Equals(on.layer) {
			return false
		}
	}
	return true
}
