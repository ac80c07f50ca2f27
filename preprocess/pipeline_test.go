package preprocess

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loiht2/getaround-pricing/backend/schema"
)

func fixtureRecords() []schema.FeatureRecord {
	a := schema.Defaults()

	b := schema.Defaults()
	b.ModelKey = "Renault"
	b.Mileage = 100000
	b.EnginePower = 90
	b.Fuel = "petrol"
	b.PaintColor = "grey"
	b.HasGPS = false

	c := schema.Defaults()
	c.ModelKey = "BMW"
	c.Mileage = 20000
	c.EnginePower = 200
	c.CarType = "suv"
	c.AutomaticCar = true

	return []schema.FeatureRecord{a, b, c}
}

func TestStandardScalerMatchesPopulationStatistics(t *testing.T) {
	var s StandardScaler
	require.NoError(t, s.Fit([][]float64{{1, 5}, {3, 5}}))
	assert.Equal(t, []float64{2, 5}, s.Mean)
	assert.Equal(t, []float64{1, 0}, s.Variance)
	assert.Equal(t, []float64{1, 1}, s.Scale)

	dst := make([]float64, 2)
	require.NoError(t, s.TransformRow(dst, []float64{3, 5}))
	assert.Equal(t, []float64{1, 0}, dst)
}

func TestScalerRejectsUnfittedUse(t *testing.T) {
	var s StandardScaler
	assert.ErrorIs(t, s.TransformRow(make([]float64, 1), []float64{1}), ErrNotFitted)
	assert.Error(t, s.Fit(nil))
}

func TestOneHotDropsFirstSortedCategory(t *testing.T) {
	var e OneHotEncoder
	require.NoError(t, e.Fit([][]string{{"petrol"}, {"diesel"}, {"electro"}}))
	assert.Equal(t, []string{"diesel", "electro", "petrol"}, e.Categories[0])
	assert.Equal(t, "diesel", e.Dropped[0])
	assert.Equal(t, 2, e.Width())
	assert.Equal(t, []string{"fuel_electro", "fuel_petrol"}, e.FeatureNames([]string{"fuel"}))

	dst := make([]float64, e.Width())
	require.NoError(t, e.TransformRow(dst, []string{"petrol"}))
	assert.Equal(t, []float64{0, 1}, dst)

	require.NoError(t, e.TransformRow(dst, []string{"diesel"}))
	assert.Equal(t, []float64{0, 0}, dst)
}

func TestOneHotUnknownCategoryIsZeroVector(t *testing.T) {
	var e OneHotEncoder
	require.NoError(t, e.Fit([][]string{{"petrol", "a"}, {"diesel", "b"}}))

	dst := []float64{9, 9}
	require.NoError(t, e.TransformRow(dst, []string{"hydrogen", "b"}))
	assert.Equal(t, []float64{0, 1}, dst)
}

func TestOneHotRoundTripKeepsIndex(t *testing.T) {
	var e OneHotEncoder
	require.NoError(t, e.Fit([][]string{{"x"}, {"y"}}))
	b, err := json.Marshal(&e)
	require.NoError(t, err)

	var restored OneHotEncoder
	require.NoError(t, json.Unmarshal(b, &restored))
	dst := make([]float64, 1)
	require.NoError(t, restored.TransformRow(dst, []string{"y"}))
	assert.Equal(t, []float64{1}, dst)

	assert.Error(t, json.Unmarshal([]byte(`{"categories":[["b","a"]],"dropped":["a"]}`), &restored))
}

func TestPipelineTransformIsIdempotent(t *testing.T) {
	p := NewPipeline()
	records := fixtureRecords()
	require.NoError(t, p.Fit(records))

	first, err := p.Transform(records)
	require.NoError(t, err)
	second, err := p.Transform(records)
	require.NoError(t, err)
	assert.Equal(t, first, second)

	for _, row := range first {
		assert.Len(t, row, p.Width())
		for _, v := range row {
			assert.False(t, math.IsNaN(v))
		}
	}
	assert.Len(t, p.FeatureNames(), p.Width())
}

func TestPipelineNumericColumnsAreStandardized(t *testing.T) {
	p := NewPipeline()
	records := fixtureRecords()
	require.NoError(t, p.Fit(records))
	rows, err := p.Transform(records)
	require.NoError(t, err)

	for j := range p.NumericColumns {
		var sum, sq float64
		for _, row := range rows {
			sum += row[j]
			sq += row[j] * row[j]
		}
		n := float64(len(rows))
		assert.InDelta(t, 0, sum/n, 1e-12)
		assert.InDelta(t, 1, sq/n, 1e-12)
	}
}

func TestPipelineUnknownCategoryMatchesDroppedCategory(t *testing.T) {
	p := NewPipeline()
	require.NoError(t, p.Fit(fixtureRecords()))

	unknown := schema.Defaults()
	unknown.Fuel = "hydrogen"
	dropped := schema.Defaults()
	dropped.Fuel = p.Encoder.Dropped[1]

	a, err := p.TransformOne(unknown)
	require.NoError(t, err)
	b, err := p.TransformOne(dropped)
	require.NoError(t, err)
	assert.Equal(t, b, a)
}

func TestPipelineSurvivesJSONRoundTrip(t *testing.T) {
	p := NewPipeline()
	require.NoError(t, p.Fit(fixtureRecords()))
	want, err := p.TransformOne(schema.Defaults())
	require.NoError(t, err)

	b, err := json.Marshal(p)
	require.NoError(t, err)
	var restored Pipeline
	require.NoError(t, json.Unmarshal(b, &restored))
	got, err := restored.TransformOne(schema.Defaults())
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestPipelineRequiresFit(t *testing.T) {
	p := NewPipeline()
	_, err := p.TransformOne(schema.Defaults())
	assert.ErrorIs(t, err, ErrNotFitted)
	assert.Error(t, p.Fit(nil))
}
