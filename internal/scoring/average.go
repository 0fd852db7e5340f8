package scoring

import "math"

// WeightedScore pairs an answer score with the current weight of its question.
type WeightedScore struct {
	Score  float64
	Weight float64
}

// WeightedAverage returns Σ score·w / Σ w, or 0 when there is nothing to
// average or the weights cancel out to zero.
func WeightedAverage(scores []WeightedScore) float64 {
	var num, den float64
	for _, s := range scores {
		num += s.Score * s.Weight
		den += s.Weight
	}
	if len(scores) == 0 || den == 0 {
		return 0
	}
	return num / den
}

// Mean is the unweighted average, 0 for an empty slice.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func MeanInts(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0
	for _, v := range values {
		sum += v
	}
	return float64(sum) / float64(len(values))
}

// Round2 rounds half away from zero to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
