package history

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lost-item-finder/pkg/finder"
)

func rec(ts string, conf float64) finder.HistoryRecord {
	return finder.HistoryRecord{Timestamp: ts, ClassName: "keys", Confidence: conf}
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		name    string
		records []finder.HistoryRecord
		want    []ConfidencePoint
	}{
		{
			name:    "empty",
			records: nil,
			want:    []ConfidencePoint{},
		},
		{
			name:    "single_passthrough",
			records: []finder.HistoryRecord{rec("D1", 0.5)},
			want:    []ConfidencePoint{{Date: "D1", Confidence: 0.5}},
		},
		{
			name:    "two_way_average",
			records: []finder.HistoryRecord{rec("D1", 0.4), rec("D1", 0.8)},
			want:    []ConfidencePoint{{Date: "D1", Confidence: 0.6}},
		},
		{
			name:    "order_dependent_fold",
			records: []finder.HistoryRecord{rec("D1", 1.0), rec("D1", 0.5), rec("D1", 0.5)},
			want:    []ConfidencePoint{{Date: "D1", Confidence: 0.625}},
		},
		{
			name: "first_seen_order_not_sorted",
			records: []finder.HistoryRecord{
				rec("2024-03-02 10:00:00", 0.9),
				rec("2024-03-01 09:00:00", 0.7),
				rec("2024-03-02 08:00:00", 0.5),
			},
			want: []ConfidencePoint{
				{Date: "2024-03-02", Confidence: 0.7},
				{Date: "2024-03-01", Confidence: 0.7},
			},
		},
		{
			name:    "timestamp_without_space",
			records: []finder.HistoryRecord{rec("20240301T100000", 0.3)},
			want:    []ConfidencePoint{{Date: "20240301T100000", Confidence: 0.3}},
		},
		{
			name:    "out_of_range_not_clamped",
			records: []finder.HistoryRecord{rec("D1", 1.5), rec("D2", -0.2)},
			want:    []ConfidencePoint{{Date: "D1", Confidence: 1.5}, {Date: "D2", Confidence: -0.2}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Aggregate(tt.records)
			require.NotNil(t, got)
			require.Len(t, got, len(tt.want))
			for i := range tt.want {
				assert.Equal(t, tt.want[i].Date, got[i].Date)
				assert.InDelta(t, tt.want[i].Confidence, got[i].Confidence, 1e-9)
			}
		})
	}
}

func TestAggregate_OnePointPerDistinctDate(t *testing.T) {
	var records []finder.HistoryRecord
	dates := []string{"2024-01-03", "2024-01-01", "2024-01-03", "2024-01-02", "2024-01-01", "2024-01-04"}
	for i, d := range dates {
		records = append(records, rec(fmt.Sprintf("%s %02d:00:00", d, i), 0.5))
	}

	got := Aggregate(records)

	var gotDates []string
	for _, p := range got {
		gotDates = append(gotDates, p.Date)
	}
	assert.Equal(t, []string{"2024-01-03", "2024-01-01", "2024-01-02", "2024-01-04"}, gotDates)
}

func TestAggregate_DoesNotMutateInput(t *testing.T) {
	records := []finder.HistoryRecord{rec("D1 x", 0.2), rec("D1 y", 0.6)}
	_ = Aggregate(records)
	assert.InDelta(t, 0.2, records[0].Confidence, 1e-9)
	assert.Equal(t, "D1 x", records[0].Timestamp)
}

func TestAggregateMean(t *testing.T) {
	got := AggregateMean([]finder.HistoryRecord{
		rec("D1", 1.0), rec("D2", 0.2), rec("D1", 0.5), rec("D1", 0.5),
	})
	require.Len(t, got, 2)
	assert.Equal(t, "D1", got[0].Date)
	assert.InDelta(t, 2.0/3.0, got[0].Confidence, 1e-9)
	assert.Equal(t, "D2", got[1].Date)
	assert.InDelta(t, 0.2, got[1].Confidence, 1e-9)

	assert.Empty(t, AggregateMean(nil))
}

func TestForMethod(t *testing.T) {
	records := []finder.HistoryRecord{rec("D1", 1.0), rec("D1", 0.5), rec("D1", 0.5)}

	for _, name := range []string{"", MethodPairwise} {
		agg, err := ForMethod(name)
		require.NoError(t, err)
		assert.InDelta(t, 0.625, agg(records)[0].Confidence, 1e-9)
	}

	agg, err := ForMethod(MethodMean)
	require.NoError(t, err)
	assert.InDelta(t, 2.0/3.0, agg(records)[0].Confidence, 1e-9)

	_, err = ForMethod("median")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown aggregation method")
}
