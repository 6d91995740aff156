// Package scoring implements the ICU clinical scoring engine: range tables
// for the severity score, the weighted workload score, the five-axis
// categorization and the classifiers that map totals to risk and complexity
// buckets. Everything here is pure; callers persist the results.
package scoring

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Bucket is one inclusive range of a RangeScoreTable. A nil bound is open.
type Bucket struct {
	ID     string   `json:"id"`
	Min    *float64 `json:"min,omitempty"`
	Max    *float64 `json:"max,omitempty"`
	Points int      `json:"points"`
}

func (b Bucket) contains(v float64) bool {
	if b.Min != nil && v < *b.Min {
		return false
	}
	if b.Max != nil && v > *b.Max {
		return false
	}
	return true
}

// RangeScoreTable maps a raw measurement to points. Buckets are declared from
// the extremes toward the normal band and the first match wins, so a value on
// a shared breakpoint lands in the extreme bucket.
type RangeScoreTable struct {
	Variable string `json:"variable"`
	Unit     string `json:"unit,omitempty"`
	// Precision is the number of decimals the value is rounded to before
	// lookup; it matches the resolution the bedside form captures.
	Precision int      `json:"precision"`
	DomainMin *float64 `json:"domainMin,omitempty"`
	DomainMax *float64 `json:"domainMax,omitempty"`
	Buckets   []Bucket `json:"buckets"`
}

// Classify returns the bucket a value falls in.
func (t *RangeScoreTable) Classify(value float64) (Bucket, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return Bucket{}, t.reject("is not a finite number")
	}
	v := roundTo(value, t.Precision)
	if t.DomainMin != nil && v < *t.DomainMin {
		return Bucket{}, t.reject("%s is below the minimum %s", fmtNum(v), fmtNum(*t.DomainMin))
	}
	if t.DomainMax != nil && v > *t.DomainMax {
		return Bucket{}, t.reject("%s is above the maximum %s", fmtNum(v), fmtNum(*t.DomainMax))
	}
	for _, b := range t.Buckets {
		if b.contains(v) {
			return b, nil
		}
	}
	return Bucket{}, t.reject("%s matches no range", fmtNum(v))
}

// Points returns the distinct point values the table can produce, ascending.
func (t *RangeScoreTable) Points() []int {
	seen := make(map[int]bool, len(t.Buckets))
	var pts []int
	for _, b := range t.Buckets {
		if !seen[b.Points] {
			seen[b.Points] = true
			pts = append(pts, b.Points)
		}
	}
	sort.Ints(pts)
	return pts
}

// Allows reports whether points is a value some bucket produces.
func (t *RangeScoreTable) Allows(points int) bool {
	for _, b := range t.Buckets {
		if b.Points == points {
			return true
		}
	}
	return false
}

func (t *RangeScoreTable) reject(format string, args ...interface{}) error {
	return validationError([]Violation{outOfRange(t.Variable, format, args...)})
}

func roundTo(v float64, decimals int) float64 {
	scale := math.Pow10(decimals)
	return math.Round(v*scale) / scale
}

func fmtNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func num(v float64) *float64 { return &v }

func atLeast(min float64, points int) Bucket {
	return Bucket{ID: ">=" + fmtNum(min), Min: num(min), Points: points}
}

func atMost(max float64, points int) Bucket {
	return Bucket{ID: "<=" + fmtNum(max), Max: num(max), Points: points}
}

func between(min, max float64, points int) Bucket {
	return Bucket{ID: fmt.Sprintf("%s-%s", fmtNum(min), fmtNum(max)), Min: num(min), Max: num(max), Points: points}
}
