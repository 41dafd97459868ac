// Package history turns a raw detection log into a per-date confidence trend.
package history

import (
	"github.com/rotisserie/eris"

	"github.com/sells-group/lost-item-finder/pkg/finder"
)

// ConfidencePoint is the aggregated confidence for one calendar date.
type ConfidencePoint struct {
	Date       string  `json:"date" yaml:"date"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
}

// Aggregator reduces a history log to a confidence series.
type Aggregator func(records []finder.HistoryRecord) []ConfidencePoint

// Aggregation methods accepted by ForMethod.
const (
	MethodPairwise = "pairwise"
	MethodMean     = "mean"
)

// Aggregate folds records into one point per distinct date, in order of
// first appearance. A repeated date replaces the stored value with the
// average of the stored value and the new confidence, so later records
// weigh more than earlier ones and the result depends on input order.
// Confidences are not clamped.
func Aggregate(records []finder.HistoryRecord) []ConfidencePoint {
	points := make([]ConfidencePoint, 0, len(records))
	index := make(map[string]int, len(records))

	for _, r := range records {
		date := r.Date()
		if i, ok := index[date]; ok {
			points[i].Confidence = (points[i].Confidence + r.Confidence) / 2
			continue
		}
		index[date] = len(points)
		points = append(points, ConfidencePoint{Date: date, Confidence: r.Confidence})
	}
	return points
}

// AggregateMean is Aggregate with the arithmetic mean of every record on a
// date instead of the pairwise fold.
func AggregateMean(records []finder.HistoryRecord) []ConfidencePoint {
	points := make([]ConfidencePoint, 0, len(records))
	index := make(map[string]int, len(records))
	sums := make([]float64, 0, len(records))
	counts := make([]int, 0, len(records))

	for _, r := range records {
		date := r.Date()
		i, ok := index[date]
		if !ok {
			i = len(points)
			index[date] = i
			points = append(points, ConfidencePoint{Date: date})
			sums = append(sums, 0)
			counts = append(counts, 0)
		}
		sums[i] += r.Confidence
		counts[i]++
	}

	for i := range points {
		points[i].Confidence = sums[i] / float64(counts[i])
	}
	return points
}

// ForMethod returns the aggregator registered under name. An empty name
// selects the pairwise fold.
func ForMethod(name string) (Aggregator, error) {
	switch name {
	case "", MethodPairwise:
		return Aggregate, nil
	case MethodMean:
		return AggregateMean, nil
	default:
		return nil, eris.Errorf("history: unknown aggregation method %q", name)
	}
}
