package inference

import (
	"context"
	"fmt"
)

// Tensor is a dense float32 array in row-major order. Image batches use the
// NCHW layout.
type Tensor struct {
	Shape []int
	Data  []float32
}

// NewTensor allocates a zeroed tensor of the given shape.
func NewTensor(shape ...int) *Tensor {
	n := 1
	for _, d := range shape {
		n *= d
	}
	return &Tensor{Shape: append([]int(nil), shape...), Data: make([]float32, n)}
}

// Rows returns the size of the leading dimension.
func (t *Tensor) Rows() int {
	if t == nil || len(t.Shape) == 0 {
		return 0
	}
	return t.Shape[0]
}

// Row returns the slice backing row i of the leading dimension.
func (t *Tensor) Row(i int) []float32 {
	stride := len(t.Data) / t.Shape[0]
	return t.Data[i*stride : (i+1)*stride]
}

// ModelInfo describes a loaded model.
type ModelInfo struct {
	Version   string   `json:"version"`
	Backbone  string   `json:"backbone"`
	Labels    []string `json:"labels"`
	InputSize int      `json:"input_size"`
}

// Validate checks that the info can drive preprocessing and postprocessing.
func (i ModelInfo) Validate() error {
	if len(i.Labels) == 0 {
		return fmt.Errorf("model has no labels")
	}
	seen := make(map[string]struct{}, len(i.Labels))
	for _, l := range i.Labels {
		if l == "" {
			return fmt.Errorf("model has an empty label")
		}
		if _, dup := seen[l]; dup {
			return fmt.Errorf("duplicate label %q", l)
		}
		seen[l] = struct{}{}
	}
	if i.InputSize <= 0 {
		return fmt.Errorf("input_size must be positive, got %d", i.InputSize)
	}
	return nil
}

// Model maps an NCHW batch to one logit row per image, each row ordered like
// Info().Labels. Implementations are read-only after loading.
type Model interface {
	Info() ModelInfo
	Forward(ctx context.Context, input *Tensor) ([][]float32, error)
}

// Reentrant is implemented by models whose Forward may run concurrently.
// Models that do not implement it are called one batch at a time.
type Reentrant interface {
	Reentrant() bool
}

func isReentrant(m Model) bool {
	r, ok := m.(Reentrant)
	return ok && r.Reentrant()
}
