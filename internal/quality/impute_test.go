package quality

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/congestion.audit/internal/config"
	"github.com/banshee-data/congestion.audit/internal/testutil"
	"github.com/banshee-data/congestion.audit/internal/trips"
)

func TestMode(t *testing.T) {
	tests := []struct {
		name string
		in   []float64
		want float64
	}{
		{"single", []float64{3}, 3},
		{"clear winner", []float64{1, 2, 2, 2, 5}, 2},
		{"tie goes to smallest", []float64{1, 1, 4, 4}, 1},
		{"all distinct", []float64{2, 3, 4}, 2},
		{"winner at end", []float64{1, 6, 6}, 6},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, mode(tt.in))
		})
	}
}

func TestFillValue(t *testing.T) {
	tests := []struct {
		name   string
		policy config.ImputationPolicy
		sorted []float64
		want   float64
	}{
		{"median odd", config.ImputationPolicy{Strategy: config.StrategyMedian}, []float64{1, 5, 9}, 5},
		{"median even is lower", config.ImputationPolicy{Strategy: config.StrategyMedian}, []float64{1, 5, 9, 12}, 5},
		{"mode", config.ImputationPolicy{Strategy: config.StrategyMode}, []float64{1, 2, 2}, 2},
		{"constant ignores data", config.ImputationPolicy{Strategy: config.StrategyConstant, Value: ptr(0.0)}, []float64{3, 3}, 0},
		{"median without data uses value", config.ImputationPolicy{Strategy: config.StrategyMedian, Value: ptr(7.5)}, nil, 7.5},
		{"mode without data or value", config.ImputationPolicy{Strategy: config.StrategyMode}, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, fillValue(tt.policy, tt.sorted))
		})
	}
}

func parseBatch(t *testing.T, b *testutil.Batch) []trips.Record {
	t.Helper()
	s, err := trips.CheckSchema(b.Columns())
	require.NoError(t, err)
	recs := make([]trips.Record, b.Len())
	for i := range recs {
		recs[i], err = trips.ParseRow(s, i, b.Row(i), trips.DefaultParseOptions())
		require.NoError(t, err)
	}
	return recs
}

func TestImpute_MedianFare(t *testing.T) {
	b := testutil.TripBatch(5)
	b.Set(0, trips.ColFare, "10")
	b.Set(1, trips.ColFare, "30")
	b.Set(2, trips.ColFare, "")
	b.Set(3, trips.ColFare, "20")
	b.Set(4, trips.ColFare, "40")

	cfg := &config.AuditConfig{Imputation: map[string]config.ImputationPolicy{
		trips.ColFare: {Strategy: config.StrategyMedian},
	}}
	f := newFilter(t, cfg, nil)

	kept, excluded, fills := f.Impute(parseBatch(t, b))
	assert.Empty(t, excluded)
	require.Len(t, kept, 5)
	// Observed {10, 20, 30, 40}: lower median 20.
	assert.Equal(t, 20.0, *kept[2].Fare)
	assert.Equal(t, ColumnImputation{Strategy: config.StrategyMedian, Value: 20, Observed: 4, Count: 1}, fills[trips.ColFare])
	assert.Equal(t, 2.5, *kept[2].Surcharge)
}

func TestImpute_DoesNotMutateInput(t *testing.T) {
	b := testutil.TripBatch(2)
	b.Set(0, trips.ColPassengerCount, "")
	recs := parseBatch(t, b)

	kept, _, _ := newFilter(t, nil, nil).Impute(recs)
	assert.Nil(t, recs[0].PassengerCount)
	assert.NotNil(t, kept[0].PassengerCount)
}

func TestImpute_FallbackWhenNothingObserved(t *testing.T) {
	b := testutil.TripBatch(3)
	for i := 0; i < 3; i++ {
		b.Set(i, trips.ColPassengerCount, "")
	}
	kept, excluded, fills := newFilter(t, nil, nil).Impute(parseBatch(t, b))
	assert.Empty(t, excluded)
	assert.Equal(t, 3, fills[trips.ColPassengerCount].Count)
	assert.Equal(t, 0, fills[trips.ColPassengerCount].Observed)
	for _, r := range kept {
		assert.Equal(t, 1.0, *r.PassengerCount)
	}
}

func TestImpute_AllImputableMissingIsKept(t *testing.T) {
	b := testutil.TripBatch(3)
	for _, col := range trips.ImputableColumns {
		b.Set(1, col, "")
	}
	cfg := &config.AuditConfig{Imputation: map[string]config.ImputationPolicy{
		trips.ColDistance:       {Strategy: config.StrategyMedian},
		trips.ColFare:           {Strategy: config.StrategyMedian},
		trips.ColSurcharge:      {Strategy: config.StrategyConstant, Value: ptr(0.0)},
		trips.ColPassengerCount: {Strategy: config.StrategyMode},
	}}
	res := run(t, newFilter(t, cfg, nil), b)
	assert.Len(t, res.Kept, 3)
	for _, col := range trips.ImputableColumns {
		assert.Equal(t, 1, res.Report.ImputedCount(col), col)
	}
}

func TestImpute_DropAndIdentity(t *testing.T) {
	b := testutil.TripBatch(3)
	b.Set(0, trips.ColDistance, "")
	b.Set(1, trips.ColDropoffTS, "")

	kept, excluded, _ := newFilter(t, nil, nil).Impute(parseBatch(t, b))
	require.Len(t, kept, 1)
	require.Len(t, excluded, 2)
	assert.Equal(t, Exclusion{Record: excluded[0].Record, Reason: ReasonMissingRequired, Detail: "distance is null"}, excluded[0])
	assert.Equal(t, "dropoff_ts is null", excluded[1].Detail)
}
