package optimizers

import (
	"fmt"
	"math"

	"github.com/muchq/synapse/layers"
	"github.com/muchq/synapse/tensor"
)

// Optimizer applies weight updates from batch gradients. Bind allocates the
// per-layer state before training starts; Update mutates the layer's
// parameters in place. Updates for one batch arrive in layer-index order and
// batches never overlap, so no locking is needed.
type Optimizer interface {
	Bind(ls []layers.Weighted)
	Update(layerIndex int, dw, db *tensor.Tensor, batchSize int, layer layers.Weighted)
	Name() string
}

// layerState holds up to two moment accumulators per parameter array plus a
// per-layer step counter.
type layerState struct {
	w1, b1 *tensor.Tensor
	w2, b2 *tensor.Tensor
	t      int
}

func allocStates(ls []layers.Weighted, second bool) []layerState {
	states := make([]layerState, len(ls))
	for i, l := range ls {
		states[i].w1 = tensor.Like(l.Weights())
		states[i].b1 = tensor.Like(l.Biases())
		if second {
			states[i].w2 = tensor.Like(l.Weights())
			states[i].b2 = tensor.Like(l.Biases())
		}
	}
	return states
}

func checkBound(states []layerState, layerIndex int, name string) {
	if states == nil {
		panic(fmt.Sprintf("optimizers: %s used before Bind", name))
	}
	if layerIndex < 0 || layerIndex >= len(states) {
		panic(fmt.Sprintf("optimizers: %s layer index %d out of range [0,%d)", name, layerIndex, len(states)))
	}
}

func sqrt32(x float32) float32 {
	return float32(math.Sqrt(float64(x)))
}

// SGD is plain stochastic gradient descent with optional L2 decay:
// w <- w - (eta/N)*dW - (eta*lambda/N)*w.
type SGD struct {
	Eta    float32
	Lambda float32
}

func NewSGD(eta, lambda float32) *SGD {
	return &SGD{Eta: eta, Lambda: lambda}
}

// Bind is a no-op: SGD carries no per-layer state.
func (s *SGD) Bind(ls []layers.Weighted) {}
func (s *SGD) Name() string              { return "SGD" }

func (s *SGD) Update(layerIndex int, dw, db *tensor.Tensor, batchSize int, layer layers.Weighted) {
	alpha := s.Eta / float32(batchSize)
	decay := s.Eta * s.Lambda / float32(batchSize)

	w := layer.Weights()
	for i := range w.Data {
		w.Data[i] -= alpha*dw.Data[i] + decay*w.Data[i]
	}
	b := layer.Biases()
	for i := range b.Data {
		b.Data[i] -= alpha*db.Data[i] + decay*b.Data[i]
	}
}

// Momentum keeps a velocity per parameter: v <- mu*v + dW, then the SGD
// step uses v in place of dW.
type Momentum struct {
	Eta    float32
	Lambda float32
	Mu     float32
	states []layerState
}

func NewMomentum(eta, lambda, mu float32) *Momentum {
	return &Momentum{Eta: eta, Lambda: lambda, Mu: mu}
}

func (m *Momentum) Bind(ls []layers.Weighted) { m.states = allocStates(ls, false) }
func (m *Momentum) Name() string              { return "Momentum" }

func (m *Momentum) Update(layerIndex int, dw, db *tensor.Tensor, batchSize int, layer layers.Weighted) {
	checkBound(m.states, layerIndex, "momentum")
	st := &m.states[layerIndex]
	alpha := m.Eta / float32(batchSize)
	decay := m.Eta * m.Lambda / float32(batchSize)

	w := layer.Weights()
	for i := range w.Data {
		st.w1.Data[i] = m.Mu*st.w1.Data[i] + dw.Data[i]
		w.Data[i] -= alpha*st.w1.Data[i] + decay*w.Data[i]
	}
	b := layer.Biases()
	for i := range b.Data {
		st.b1.Data[i] = m.Mu*st.b1.Data[i] + db.Data[i]
		b.Data[i] -= alpha*st.b1.Data[i] + decay*b.Data[i]
	}
}

// AdaGrad accumulates squared gradients and scales each step by their
// inverse square root.
type AdaGrad struct {
	Eta     float32
	Epsilon float32
	states  []layerState
}

func NewAdaGrad(eta float32) *AdaGrad {
	return &AdaGrad{Eta: eta, Epsilon: 1e-8}
}

func (a *AdaGrad) Bind(ls []layers.Weighted) { a.states = allocStates(ls, false) }
func (a *AdaGrad) Name() string              { return "AdaGrad" }

func (a *AdaGrad) Update(layerIndex int, dw, db *tensor.Tensor, batchSize int, layer layers.Weighted) {
	checkBound(a.states, layerIndex, "adagrad")
	st := &a.states[layerIndex]

	w := layer.Weights()
	for i := range w.Data {
		g := dw.Data[i]
		st.w1.Data[i] += g * g
		w.Data[i] -= a.Eta / (sqrt32(st.w1.Data[i]) + a.Epsilon) * g
	}
	b := layer.Biases()
	for i := range b.Data {
		g := db.Data[i]
		st.b1.Data[i] += g * g
		b.Data[i] -= a.Eta / (sqrt32(st.b1.Data[i]) + a.Epsilon) * g
	}
}

// AdaDelta keeps running averages of squared gradients and squared steps
// with decay rho; the ratio of their roots sizes each step, no learning rate
// needed.
type AdaDelta struct {
	Rho     float32
	Epsilon float32
	states  []layerState
}

func NewAdaDelta(rho float32) *AdaDelta {
	return &AdaDelta{Rho: rho, Epsilon: 1e-6}
}

func (a *AdaDelta) Bind(ls []layers.Weighted) { a.states = allocStates(ls, true) }
func (a *AdaDelta) Name() string              { return "AdaDelta" }

func (a *AdaDelta) Update(layerIndex int, dw, db *tensor.Tensor, batchSize int, layer layers.Weighted) {
	checkBound(a.states, layerIndex, "adadelta")
	st := &a.states[layerIndex]

	step := func(params *tensor.Tensor, grads *tensor.Tensor, eg2, ex2 *tensor.Tensor) {
		for i := range params.Data {
			g := grads.Data[i]
			eg2.Data[i] = a.Rho*eg2.Data[i] + (1-a.Rho)*g*g
			dx := -sqrt32(ex2.Data[i]+a.Epsilon) / sqrt32(eg2.Data[i]+a.Epsilon) * g
			ex2.Data[i] = a.Rho*ex2.Data[i] + (1-a.Rho)*dx*dx
			params.Data[i] += dx
		}
	}
	step(layer.Weights(), dw, st.w1, st.w2)
	step(layer.Biases(), db, st.b1, st.b2)
}

// RMSProp keeps a decayed average of squared gradients.
type RMSProp struct {
	Eta     float32
	Rho     float32
	Epsilon float32
	states  []layerState
}

func NewRMSProp(eta, rho float32) *RMSProp {
	return &RMSProp{Eta: eta, Rho: rho, Epsilon: 1e-8}
}

func (r *RMSProp) Bind(ls []layers.Weighted) { r.states = allocStates(ls, false) }
func (r *RMSProp) Name() string              { return "RMSProp" }

func (r *RMSProp) Update(layerIndex int, dw, db *tensor.Tensor, batchSize int, layer layers.Weighted) {
	checkBound(r.states, layerIndex, "rmsprop")
	st := &r.states[layerIndex]

	step := func(params *tensor.Tensor, grads *tensor.Tensor, eg2 *tensor.Tensor) {
		for i := range params.Data {
			g := grads.Data[i]
			eg2.Data[i] = r.Rho*eg2.Data[i] + (1-r.Rho)*g*g
			params.Data[i] -= r.Eta / (sqrt32(eg2.Data[i]) + r.Epsilon) * g
		}
	}
	step(layer.Weights(), dw, st.w1)
	step(layer.Biases(), db, st.b1)
}

// Adam keeps bias-corrected first and second moments per parameter.
type Adam struct {
	Eta     float32
	Beta1   float32
	Beta2   float32
	Epsilon float32
	states  []layerState
}

func NewAdam(eta float32) *Adam {
	return &Adam{Eta: eta, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

func (a *Adam) Bind(ls []layers.Weighted) { a.states = allocStates(ls, true) }
func (a *Adam) Name() string              { return "Adam" }

func (a *Adam) Update(layerIndex int, dw, db *tensor.Tensor, batchSize int, layer layers.Weighted) {
	checkBound(a.states, layerIndex, "adam")
	st := &a.states[layerIndex]
	st.t++
	c1 := 1 - float32(math.Pow(float64(a.Beta1), float64(st.t)))
	c2 := 1 - float32(math.Pow(float64(a.Beta2), float64(st.t)))

	step := func(params *tensor.Tensor, grads *tensor.Tensor, m, v *tensor.Tensor) {
		for i := range params.Data {
			g := grads.Data[i]
			m.Data[i] = a.Beta1*m.Data[i] + (1-a.Beta1)*g
			v.Data[i] = a.Beta2*v.Data[i] + (1-a.Beta2)*g*g
			mHat := m.Data[i] / c1
			vHat := v.Data[i] / c2
			params.Data[i] -= a.Eta * mHat / (sqrt32(vHat) + a.Epsilon)
		}
	}
	step(layer.Weights(), dw, st.w1, st.w2)
	step(layer.Biases(), db, st.b1, st.b2)
}

// AdaMax is the infinity-norm variant of Adam: the second moment becomes a
// decayed running max of gradient magnitudes.
type AdaMax struct {
	Eta     float32
	Beta1   float32
	Beta2   float32
	Epsilon float32
	states  []layerState
}

func NewAdaMax(eta float32) *AdaMax {
	return &AdaMax{Eta: eta, Beta1: 0.9, Beta2: 0.999, Epsilon: 1e-8}
}

func (a *AdaMax) Bind(ls []layers.Weighted) { a.states = allocStates(ls, true) }
func (a *AdaMax) Name() string              { return "AdaMax" }

func (a *AdaMax) Update(layerIndex int, dw, db *tensor.Tensor, batchSize int, layer layers.Weighted) {
	checkBound(a.states, layerIndex, "adamax")
	st := &a.states[layerIndex]
	st.t++
	c1 := 1 - float32(math.Pow(float64(a.Beta1), float64(st.t)))

	step := func(params *tensor.Tensor, grads *tensor.Tensor, m, u *tensor.Tensor) {
		for i := range params.Data {
			g := grads.Data[i]
			m.Data[i] = a.Beta1*m.Data[i] + (1-a.Beta1)*g
			mag := g
			if mag < 0 {
				mag = -mag
			}
			decayed := a.Beta2 * u.Data[i]
			if mag > decayed {
				u.Data[i] = mag
			} else {
				u.Data[i] = decayed
			}
			if u.Data[i] > 0 {
				params.Data[i] -= a.Eta / c1 * m.Data[i] / (u.Data[i] + a.Epsilon)
			}
		}
	}
	step(layer.Weights(), dw, st.w1, st.w2)
	step(layer.Biases(), db, st.b1, st.b2)
}
