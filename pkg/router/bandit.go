package router

import "math"

// featureDim is the default dimension of the shared linear scorer's
// context vector: normalized semantic/hybrid score, tag overlap, decayed
// recency, domain match, server load, breaker state, and an intercept.
const featureDim = 7

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

// banditScore wraps the linear scorer's dot product in a logistic so its
// contribution to rerank is bounded to (-1, 1).
func banditScore(weights, features []float64) float64 {
	if len(weights) == 0 {
		return 0
	}
	var dot float64
	for i := 0; i < len(weights) && i < len(features); i++ {
		dot += weights[i] * features[i]
	}
	return 2*sigmoid(dot) - 1
}

// sgdStep applies one gradient step of logistic regression with L2
// regularization, treating reward (rescaled from [-1,1] to [0,1]) as the
// target. Returns a new slice; callers swap it in atomically rather than
// mutate in place, matching the single-writer/copy-on-read discipline.
func sgdStep(weights, features []float64, reward, lr, l2reg float64) []float64 {
	next := make([]float64, len(weights))
	copy(next, weights)
	if len(features) == 0 {
		return next
	}
	target := (reward + 1) / 2
	pred := sigmoid(dotProduct(weights, features))
	errTerm := target - pred
	for i := range next {
		if i >= len(features) {
			break
		}
		grad := errTerm*features[i] - l2reg*weights[i]
		next[i] = weights[i] + lr*grad
	}
	return next
}

func dotProduct(a, b []float64) float64 {
	var sum float64
	for i := 0; i < len(a) && i < len(b); i++ {
		sum += a[i] * b[i]
	}
	return sum
}
