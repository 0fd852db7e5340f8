// Package scoring holds the pure arithmetic of KPI scoring: weight-set
// validation and weighted averages. Nothing here touches the database.
package scoring

import (
	"math"

	"github.com/huangang/perfsentry/internal/domain"
)

// Tolerance is the allowed deviation of the active weight sum from 1.0.
const Tolerance = 0.001

// Weighted is anything that carries a KPI weight and an active flag.
type Weighted interface {
	GetWeight() float64
	GetActive() bool
}

// Item is a plain weight entry, used when validating a proposed question set
// that has not been persisted yet.
type Item struct {
	Weight float64
	Active bool
}

func (i Item) GetWeight() float64 { return i.Weight }
func (i Item) GetActive() bool    { return i.Active }

// TotalActiveWeight sums the weights of active entries only.
func TotalActiveWeight[T Weighted](items []T) float64 {
	var sum float64
	for _, it := range items {
		if it.GetActive() {
			sum += it.GetWeight()
		}
	}
	return sum
}

// IsValid reports whether the active weights sum to 1.0 within Tolerance.
func IsValid[T Weighted](items []T) bool {
	return math.Abs(TotalActiveWeight(items)-1.0) <= Tolerance
}

// ValidateWeights is IsValid with a reason. An empty active set is invalid.
func ValidateWeights[T Weighted](items []T) error {
	for _, it := range items {
		w := it.GetWeight()
		if math.IsNaN(w) || w < 0 || w > 1 {
			return domain.Validation("weight %.3f is outside [0, 1]", w)
		}
	}
	sum := TotalActiveWeight(items)
	if math.Abs(sum-1.0) > Tolerance {
		return domain.Validation("active question weights sum to %.3f, expected 1.000", sum)
	}
	return nil
}

// WeightStatus is a snapshot of the active weight set for display.
type WeightStatus struct {
	Total       float64 `json:"total"`
	Valid       bool    `json:"valid"`
	ActiveCount int     `json:"active_count"`
}

func Status[T Weighted](items []T) WeightStatus {
	st := WeightStatus{Total: Round2(TotalActiveWeight(items))}
	for _, it := range items {
		if it.GetActive() {
			st.ActiveCount++
		}
	}
	st.Valid = IsValid(items)
	return st
}
