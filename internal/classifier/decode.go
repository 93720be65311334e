package classifier

import (
	"fmt"
	"math"
)

// Softmax converts raw scores to probabilities. The maximum is subtracted
// before exponentiating so large logits do not overflow.
func Softmax(logits []float32) []float64 {
	if len(logits) == 0 {
		return nil
	}

	max := float64(logits[0])
	for _, v := range logits[1:] {
		if float64(v) > max {
			max = float64(v)
		}
	}

	probs := make([]float64, len(logits))
	var sum float64
	for i, v := range logits {
		e := math.Exp(float64(v) - max)
		probs[i] = e
		sum += e
	}
	for i := range probs {
		probs[i] /= sum
	}
	return probs
}

// Decode picks the most probable class. Ties resolve to the lowest index.
func Decode(logits []float32, catalog Catalog) (Outcome, error) {
	if len(logits) == 0 {
		return Outcome{}, fmt.Errorf("%w: no scores", ErrInferenceFailed)
	}
	if err := catalog.Validate(len(logits)); err != nil {
		return Outcome{}, err
	}

	probs := Softmax(logits)
	best := 0
	for i := 1; i < len(probs); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	return Outcome{
		Label:         catalog.Label(best),
		Confidence:    probs[best],
		Probabilities: probs,
	}, nil
}
