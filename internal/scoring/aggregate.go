package scoring

import (
	"fmt"
	"math"
	"strconv"
)

// SumPoints adds integer sub-scores.
func SumPoints(points ...int) int {
	total := 0
	for _, p := range points {
		total += p
	}
	return total
}

// Percent is a fixed-point percentage in hundredths (1350 == 13.50%).
type Percent int64

// PercentFromFloat rounds f to the nearest hundredth.
func PercentFromFloat(f float64) Percent {
	return Percent(math.Round(f * 100))
}

func (p Percent) Float64() float64 {
	return float64(p) / 100
}

func (p Percent) String() string {
	return strconv.FormatFloat(p.Float64(), 'f', 2, 64)
}

// MarshalJSON emits a JSON number with two decimals.
func (p Percent) MarshalJSON() ([]byte, error) {
	return []byte(p.String()), nil
}

func (p *Percent) UnmarshalJSON(data []byte) error {
	f, err := strconv.ParseFloat(string(data), 64)
	if err != nil {
		return fmt.Errorf("percent: %w", err)
	}
	*p = PercentFromFloat(f)
	return nil
}

// SumWeights adds the weight of every item whose flag is set.
func SumWeights(items []WorkloadItem, flags map[string]bool) Percent {
	var total Percent
	for _, it := range items {
		if flags[it.Key] {
			total += it.Weight
		}
	}
	return total
}
