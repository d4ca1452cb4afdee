package inference

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSoftmax(t *testing.T) {
	p := Softmax([]float32{0, 0})
	assert.InDelta(t, 0.5, p[0], 1e-12)
	assert.InDelta(t, 0.5, p[1], 1e-12)

	p = Softmax([]float32{1000, 0})
	assert.False(t, math.IsNaN(p[0]))
	assert.InDelta(t, 1.0, p[0], 1e-12)

	assert.Nil(t, Softmax(nil))
}

func TestArgmax_FirstOnTie(t *testing.T) {
	assert.Equal(t, 1, Argmax([]float64{0.1, 0.4, 0.4, 0.1}))
	assert.Equal(t, 0, Argmax([]float64{0.7}))
}

func TestRound4(t *testing.T) {
	assert.Equal(t, 0.1235, Round4(0.12345678))
	assert.Equal(t, 1.0, Round4(0.99999))
	assert.Equal(t, 0.0, Round4(0.00004))
}

func TestPredict_CoversEveryLabel(t *testing.T) {
	labels := []string{"A0", "A1", "B0", "B1"}
	p := Predict(labels, []float32{0.1, 2.5, 0.3, -1})

	assert.Equal(t, "A1", p.Label)
	require.Len(t, p.Confidences, len(labels))
	for _, l := range labels {
		assert.Contains(t, p.Confidences, l)
	}
	assert.Equal(t, p.Confidences["A1"], p.Confidence)
}

// Softmax output is a probability distribution whose arg-max matches the
// arg-max of the logits.
func TestProperty_SoftmaxDistribution(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("probabilities sum to one and keep the arg-max", prop.ForAll(
		func(logits []float32) bool {
			probs := Softmax(logits)
			if len(probs) != len(logits) {
				return false
			}
			sum := 0.0
			for _, p := range probs {
				if p < 0 || p > 1 || math.IsNaN(p) {
					t.Logf("probability out of range: %v", p)
					return false
				}
				sum += p
			}
			if math.Abs(sum-1) > 1e-9 {
				t.Logf("sum = %v", sum)
				return false
			}

			best := 0
			for i, v := range logits {
				if v > logits[best] {
					best = i
				}
			}
			return probs[Argmax(probs)] == probs[best]
		},
		gen.SliceOfN(8, gen.Float32Range(-50, 50)),
	))

	properties.Property("rounded confidences stay within rounding error of one", prop.ForAll(
		func(logits []float32) bool {
			labels := []string{"A0", "A1", "B0", "B1", "C0", "C1", "D0", "D1"}
			p := Predict(labels, logits)
			sum := 0.0
			for _, v := range p.Confidences {
				sum += v
			}
			return len(p.Confidences) == len(labels) && math.Abs(sum-1) <= 0.0005*float64(len(labels))
		},
		gen.SliceOfN(8, gen.Float32Range(-20, 20)),
	))

	properties.TestingRun(t)
}

func TestFinite(t *testing.T) {
	assert.True(t, Finite([]float32{0, -3.5, 1e30}))
	assert.True(t, Finite(nil))
	assert.False(t, Finite([]float32{1, float32(math.Inf(1))}))
	assert.False(t, Finite([]float32{float32(math.Inf(-1))}))
	assert.False(t, Finite([]float32{float32(math.NaN()), 0}))
}
