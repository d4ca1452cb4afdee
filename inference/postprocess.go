package inference

import "math"

// Softmax converts logits to probabilities. The max logit is subtracted
// first so large inputs do not overflow.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}
	hi := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > hi {
			hi = float64(v)
		}
	}
	out := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - hi)
		out[i] = e
		sum += e
	}
	for i := range out {
		out[i] /= sum
	}
	return out
}

// Argmax returns the index of the largest value, the first on ties.
func Argmax(values []float64) int {
	best := 0
	for i, v := range values {
		if v > values[best] {
			best = i
		}
	}
	return best
}

// Round4 rounds to four decimal places.
func Round4(v float64) float64 {
	return math.Round(v*1e4) / 1e4
}

// Prediction is the decoded output for one image.
type Prediction struct {
	Label       string
	Confidence  float64
	Confidences map[string]float64
}

// Finite reports whether every logit is a real number.
func Finite(logits []float32) bool {
	for _, v := range logits {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return false
		}
	}
	return true
}

// Predict turns one logit row into a prediction covering every label.
func Predict(labels []string, logits []float32) Prediction {
	probs := Softmax(logits)
	top := Argmax(probs)
	confs := make(map[string]float64, len(labels))
	for i, l := range labels {
		confs[l] = Round4(probs[i])
	}
	return Prediction{
		Label:       labels[top],
		Confidence:  Round4(probs[top]),
		Confidences: confs,
	}
}
