package inference

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LinearModel is a linear classifier over average-pooled image features.
// The input is pooled to a Grid x Grid map per channel, flattened channel
// first, and scored as Weights · features + Bias.
type LinearModel struct {
	info    ModelInfo
	grid    int
	weights [][]float32
	bias    []float32
}

// linearFile is the on-disk layout. JSON files parse as well since JSON is a
// subset of YAML.
type linearFile struct {
	Version   string      `yaml:"version"`
	Backbone  string      `yaml:"backbone"`
	Labels    []string    `yaml:"labels"`
	InputSize int         `yaml:"input_size"`
	Grid      int         `yaml:"grid"`
	Weights   [][]float32 `yaml:"weights"`
	Bias      []float32   `yaml:"bias"`
}

// LoadLinearModel reads a weights file from disk.
func LoadLinearModel(path string) (*LinearModel, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	m, err := ParseLinearModel(data)
	if err != nil {
		return nil, fmt.Errorf("parse model file %s: %w", path, err)
	}
	return m, nil
}

// ParseLinearModel decodes a YAML or JSON weights document.
func ParseLinearModel(data []byte) (*LinearModel, error) {
	var f linearFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}
	if f.Grid == 0 {
		f.Grid = 1
	}

	m := &LinearModel{
		info: ModelInfo{
			Version:   f.Version,
			Backbone:  f.Backbone,
			Labels:    f.Labels,
			InputSize: f.InputSize,
		},
		grid:    f.Grid,
		weights: f.Weights,
		bias:    f.Bias,
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *LinearModel) validate() error {
	if err := m.info.Validate(); err != nil {
		return err
	}
	if m.grid < 1 || m.grid > m.info.InputSize {
		return fmt.Errorf("grid must be in [1, %d], got %d", m.info.InputSize, m.grid)
	}
	if len(m.weights) != len(m.info.Labels) {
		return fmt.Errorf("weights has %d rows, want %d", len(m.weights), len(m.info.Labels))
	}
	features := m.Features()
	for i, row := range m.weights {
		if len(row) != features {
			return fmt.Errorf("weights row %d has %d columns, want %d", i, len(row), features)
		}
	}
	if len(m.bias) == 0 {
		m.bias = make([]float32, len(m.info.Labels))
	}
	if len(m.bias) != len(m.info.Labels) {
		return fmt.Errorf("bias has %d entries, want %d", len(m.bias), len(m.info.Labels))
	}
	return nil
}

// Info implements Model.
func (m *LinearModel) Info() ModelInfo {
	return m.info
}

// Features returns the length of the pooled feature vector.
func (m *LinearModel) Features() int {
	return Channels * m.grid * m.grid
}

// Reentrant implements Reentrant; the model holds no mutable state.
func (m *LinearModel) Reentrant() bool {
	return true
}

// Forward implements Model.
func (m *LinearModel) Forward(ctx context.Context, input *Tensor) ([][]float32, error) {
	size := m.info.InputSize
	if len(input.Shape) != 4 || input.Shape[1] != Channels || input.Shape[2] != size || input.Shape[3] != size {
		return nil, fmt.Errorf("input shape %v, want [N %d %d %d]", input.Shape, Channels, size, size)
	}

	out := make([][]float32, input.Rows())
	features := make([]float32, m.Features())
	for n := range out {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m.pool(input.Row(n), features)

		logits := make([]float32, len(m.weights))
		for k, row := range m.weights {
			sum := m.bias[k]
			for j, w := range row {
				sum += w * features[j]
			}
			logits[k] = sum
		}
		out[n] = logits
	}
	return out, nil
}

// pool averages each channel of a CHW image over a grid x grid partition.
func (m *LinearModel) pool(chw []float32, dst []float32) {
	size := m.info.InputSize
	plane := size * size
	for c := 0; c < Channels; c++ {
		for gy := 0; gy < m.grid; gy++ {
			y0, y1 := gy*size/m.grid, (gy+1)*size/m.grid
			for gx := 0; gx < m.grid; gx++ {
				x0, x1 := gx*size/m.grid, (gx+1)*size/m.grid
				var sum float32
				for y := y0; y < y1; y++ {
					row := chw[c*plane+y*size:]
					for x := x0; x < x1; x++ {
						sum += row[x]
					}
				}
				dst[(c*m.grid+gy)*m.grid+gx] = sum / float32((y1-y0)*(x1-x0))
			}
		}
	}
}
