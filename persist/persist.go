// Package persist reads and writes trained networks as a single binary
// stream: a magic word, then per layer a type tag, shape tuples and
// activation tag, then the layer-specific payload. Parameter floats are
// written byte-reversed relative to the stream's integer endianness so a
// byte-flip corruption cannot masquerade as a plausible weight.
package persist

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/muchq/synapse/tensor"
)

// Magic is the stream header word: "SYN1".
const Magic uint32 = 0x53594e31

var byteOrder = binary.LittleEndian

// ErrBadStream wraps every malformed-stream condition the loader can hit.
var ErrBadStream = errors.New("persist: malformed stream")

func writeU32(w io.Writer, v uint32) error {
	return binary.Write(w, byteOrder, v)
}

func writeI32(w io.Writer, v int) error {
	return binary.Write(w, byteOrder, int32(v))
}

func writeByte(w io.Writer, v byte) error {
	_, err := w.Write([]byte{v})
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var v uint32
	err := binary.Read(r, byteOrder, &v)
	return v, err
}

func readI32(r io.Reader) (int, error) {
	var v int32
	err := binary.Read(r, byteOrder, &v)
	return int(v), err
}

func readByte(r io.Reader) (byte, error) {
	var buf [1]byte
	_, err := io.ReadFull(r, buf[:])
	return buf[0], err
}

// writeShape writes a shape tuple in (H, W, C) order.
func writeShape(w io.Writer, s tensor.Shape) error {
	for _, v := range []int{s.H, s.W, s.C} {
		if err := writeI32(w, v); err != nil {
			return err
		}
	}
	return nil
}

func readShape(r io.Reader) (tensor.Shape, error) {
	var dims [3]int
	for i := range dims {
		v, err := readI32(r)
		if err != nil {
			return tensor.Shape{}, err
		}
		if v < 1 {
			return tensor.Shape{}, fmt.Errorf("%w: non-positive shape dim %d", ErrBadStream, v)
		}
		dims[i] = v
	}
	return tensor.Shape{H: dims[0], W: dims[1], C: dims[2]}, nil
}

// writeFloats writes a length header then each float's bits byte-reversed.
func writeFloats(w io.Writer, data []float32) error {
	if err := writeI32(w, len(data)); err != nil {
		return err
	}
	buf := make([]byte, 4*len(data))
	for i, v := range data {
		binary.BigEndian.PutUint32(buf[4*i:], math.Float32bits(v))
	}
	_, err := w.Write(buf)
	return err
}

func readFloats(r io.Reader) ([]float32, error) {
	n, err := readI32(r)
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, fmt.Errorf("%w: negative float array length %d", ErrBadStream, n)
	}
	buf := make([]byte, 4*n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	data := make([]float32, n)
	for i := range data {
		data[i] = math.Float32frombits(binary.BigEndian.Uint32(buf[4*i:]))
	}
	return data, nil
}

// SaveFile creates the file at path, replacing any existing content, and
// runs save against it.
func SaveFile(path string, save func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("persist: create %s: %w", path, err)
	}
	defer f.Close()
	if err := save(f); err != nil {
		return fmt.Errorf("persist: write %s: %w", path, err)
	}
	return nil
}
