package data

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
)

// CSVProvider reads labelled samples from a CSV file: the first inputSize
// columns are the input vector, the remaining outputSize columns the target.
type CSVProvider struct {
	Path       string
	InputSize  int
	OutputSize int
}

func (p CSVProvider) Samples() ([]float32, []float32, int, int, error) {
	if p.InputSize < 1 || p.OutputSize < 1 {
		return nil, nil, 0, 0, fmt.Errorf("data: non-positive sample sizes %d/%d", p.InputSize, p.OutputSize)
	}

	f, err := os.Open(p.Path)
	if err != nil {
		return nil, nil, 0, 0, fmt.Errorf("data: open %s: %w", p.Path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = p.InputSize + p.OutputSize

	var x, y []float32
	line := 0
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, 0, 0, fmt.Errorf("data: read %s: %w", p.Path, err)
		}
		line++
		for i, field := range record {
			v, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, nil, 0, 0, fmt.Errorf("data: %s line %d column %d: %w", p.Path, line, i+1, err)
			}
			if i < p.InputSize {
				x = append(x, float32(v))
			} else {
				y = append(y, float32(v))
			}
		}
	}
	if line == 0 {
		return nil, nil, 0, 0, fmt.Errorf("data: %s holds no samples", p.Path)
	}

	return x, y, p.InputSize, p.OutputSize, nil
}
