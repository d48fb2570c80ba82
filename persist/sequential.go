package persist

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/muchq/synapse/activations"
	"github.com/muchq/synapse/cost"
	"github.com/muchq/synapse/kernels"
	"github.com/muchq/synapse/layers"
	"github.com/muchq/synapse/network"
)

// Save writes a sequential network to w in forward layer order.
func Save(w io.Writer, net *network.Sequential) error {
	if err := writeU32(w, Magic); err != nil {
		return err
	}

	for _, l := range net.Layers() {
		if err := writeByte(w, byte(l.Type())); err != nil {
			return err
		}
		if err := writeShape(w, l.InputShape()); err != nil {
			return err
		}
		if err := writeShape(w, l.OutputShape()); err != nil {
			return err
		}
		if err := writeByte(w, byte(l.Activation())); err != nil {
			return err
		}
		if err := writePayload(w, l); err != nil {
			return err
		}
	}
	return nil
}

func writePayload(w io.Writer, l layers.Layer) error {
	if wl, ok := l.(layers.Weighted); ok {
		if err := writeFloats(w, wl.Weights().Data); err != nil {
			return err
		}
		if err := writeFloats(w, wl.Biases().Data); err != nil {
			return err
		}
	}

	switch t := l.(type) {
	case *layers.Conv2D:
		kH, kW, c := t.KernelSize()
		for _, v := range []int{kH, kW, c} {
			if err := writeI32(w, v); err != nil {
				return err
			}
		}
	case *layers.Output:
		return writeByte(w, byte(t.Cost()))
	case *layers.SoftmaxOutput:
		return writeByte(w, byte(t.Cost()))
	case *layers.BatchNorm:
		if err := writeByte(w, byte(t.Mode())); err != nil {
			return err
		}
		mu, sigma2 := t.RunningStats()
		if err := writeFloats(w, mu.Data); err != nil {
			return err
		}
		return writeFloats(w, sigma2.Data)
	case *layers.Pad:
		return writeI32(w, t.Padding())
	}
	return nil
}

// Load reads a sequential network back. Malformed streams surface as
// errors; the loader never panics.
func Load(r io.Reader) (*network.Sequential, error) {
	magic, err := readU32(r)
	if err != nil {
		return nil, fmt.Errorf("%w: missing header", ErrBadStream)
	}
	if magic != Magic {
		return nil, fmt.Errorf("%w: bad magic %08x", ErrBadStream, magic)
	}

	var ls []layers.Layer
	for {
		tag, err := readByte(r)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: truncated layer header", ErrBadStream)
		}

		l, err := readLayer(r, layers.Type(tag))
		if err != nil {
			if !errors.Is(err, ErrBadStream) {
				err = fmt.Errorf("%w: %v", ErrBadStream, err)
			}
			return nil, err
		}
		ls = append(ls, l)
	}

	return assemble(ls)
}

func readLayer(r io.Reader, tag layers.Type) (layers.Layer, error) {
	inShape, err := readShape(r)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated input shape", ErrBadStream)
	}
	outShape, err := readShape(r)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated output shape", ErrBadStream)
	}
	actTag, err := readByte(r)
	if err != nil {
		return nil, fmt.Errorf("%w: truncated activation tag", ErrBadStream)
	}
	act, err := activations.Parse(actTag)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadStream, err)
	}

	readWB := func() ([]float32, []float32, error) {
		wData, err := readFloats(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: truncated weights", ErrBadStream)
		}
		bData, err := readFloats(r)
		if err != nil {
			return nil, nil, fmt.Errorf("%w: truncated biases", ErrBadStream)
		}
		return wData, bData, nil
	}

	switch tag {
	case layers.FullyConnectedType:
		wData, bData, err := readWB()
		if err != nil {
			return nil, err
		}
		return layers.RestoreDense(inShape.Size(), outShape.Size(), act, wData, bData)

	case layers.OutputType, layers.SoftmaxType:
		wData, bData, err := readWB()
		if err != nil {
			return nil, err
		}
		costTag, err := readByte(r)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated cost tag", ErrBadStream)
		}
		costFn, err := cost.Parse(costTag)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBadStream, err)
		}
		if tag == layers.SoftmaxType {
			if costFn != cost.LogLikelihood {
				return nil, fmt.Errorf("%w: softmax output stored with %s cost", ErrBadStream, costFn)
			}
			return layers.RestoreSoftmaxOutput(inShape.Size(), outShape.Size(), wData, bData)
		}
		return layers.RestoreOutput(inShape.Size(), outShape.Size(), act, costFn, wData, bData)

	case layers.ConvolutionalType:
		wData, bData, err := readWB()
		if err != nil {
			return nil, err
		}
		var dims [3]int
		for i := range dims {
			if dims[i], err = readI32(r); err != nil {
				return nil, fmt.Errorf("%w: truncated kernel info", ErrBadStream)
			}
		}
		if dims[2] != inShape.C {
			return nil, fmt.Errorf("%w: kernel channel count %d disagrees with input %s", ErrBadStream, dims[2], inShape)
		}
		return layers.RestoreConv2D(inShape, outShape.C, dims[0], dims[1], act, wData, bData)

	case layers.PoolingType:
		return layers.NewMaxPool2D(inShape, act), nil

	case layers.ActivationType:
		return layers.NewActivation(inShape, act), nil

	case layers.PaddingType:
		pad, err := readI32(r)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated padding info", ErrBadStream)
		}
		if pad < 1 {
			return nil, fmt.Errorf("%w: non-positive padding %d", ErrBadStream, pad)
		}
		return layers.NewPad(inShape, pad), nil

	case layers.BatchNormType:
		gamma, beta, err := readWB()
		if err != nil {
			return nil, err
		}
		modeTag, err := readByte(r)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated batch norm mode", ErrBadStream)
		}
		if modeTag > byte(kernels.PerActivation) {
			return nil, fmt.Errorf("%w: unknown batch norm mode %d", ErrBadStream, modeTag)
		}
		mu, err := readFloats(r)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated batch norm mean", ErrBadStream)
		}
		sigma2, err := readFloats(r)
		if err != nil {
			return nil, fmt.Errorf("%w: truncated batch norm variance", ErrBadStream)
		}
		return layers.RestoreBatchNorm(inShape, kernels.NormMode(modeTag), act, gamma, beta, mu, sigma2)
	}

	return nil, fmt.Errorf("%w: unrecognized layer tag %d", ErrBadStream, byte(tag))
}

// assemble validates the chain before handing it to NewSequential, which
// panics on programmer errors; a stream problem must stay an error.
func assemble(ls []layers.Layer) (*network.Sequential, error) {
	if len(ls) == 0 {
		return nil, fmt.Errorf("%w: stream holds no layers", ErrBadStream)
	}

	prev := ls[0].InputShape()
	for i, l := range ls {
		if l.InputShape().Size() != prev.Size() {
			return nil, fmt.Errorf("%w: layer %d expects input %s, previous produces %s", ErrBadStream, i, l.InputShape(), prev)
		}
		prev = l.OutputShape()
	}
	last := ls[len(ls)-1].Type()
	if last != layers.OutputType && last != layers.SoftmaxType {
		return nil, fmt.Errorf("%w: stream ends with %s, want an output layer", ErrBadStream, last)
	}

	return network.NewSequential(ls[0].InputShape(), ls...), nil
}

// SaveNetworkFile persists net to path.
func SaveNetworkFile(path string, net *network.Sequential) error {
	return SaveFile(path, func(w io.Writer) error {
		return Save(w, net)
	})
}

// LoadNetworkFile reads a network from path.
func LoadNetworkFile(path string) (*network.Sequential, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("persist: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f)
}
