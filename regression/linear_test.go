package regression

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFitRecoversExactLine(t *testing.T) {
	// y = 3 + 2*x1 - x2
	X := [][]float64{{0, 0}, {1, 0}, {0, 1}, {2, 3}, {5, 1}}
	y := make([]float64, len(X))
	for i, r := range X {
		y[i] = 3 + 2*r[0] - r[1]
	}

	m, err := Fit(X, y)
	require.NoError(t, err)
	assert.InDelta(t, 3, m.Intercept, 1e-9)
	assert.InDelta(t, 2, m.Coefficients[0], 1e-9)
	assert.InDelta(t, -1, m.Coefficients[1], 1e-9)
	assert.Equal(t, 2, m.Rank)

	pred, err := m.Predict(X)
	require.NoError(t, err)
	for i := range y {
		assert.InDelta(t, y[i], pred[i], 1e-9)
	}
}

func TestFitHandlesDuplicateColumns(t *testing.T) {
	// The second column duplicates the first; the minimum-norm solution splits
	// the weight evenly.
	X := [][]float64{{1, 1}, {2, 2}, {3, 3}, {4, 4}}
	y := []float64{2, 4, 6, 8}

	m, err := Fit(X, y)
	require.NoError(t, err)
	assert.Equal(t, 1, m.Rank)
	assert.InDelta(t, 1, m.Coefficients[0], 1e-9)
	assert.InDelta(t, 1, m.Coefficients[1], 1e-9)
	assert.InDelta(t, 0, m.Intercept, 1e-9)
}

func TestFitIsDeterministic(t *testing.T) {
	X := [][]float64{{0.5, 1}, {1.5, 0}, {2.5, 1}, {3.5, 0}, {4, 1}}
	y := []float64{1.2, 2.9, 5.1, 7.2, 8.4}

	a, err := Fit(X, y)
	require.NoError(t, err)
	b, err := Fit(X, y)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestFitConstantColumnsFallBackToMean(t *testing.T) {
	m, err := Fit([][]float64{{1}, {1}, {1}}, []float64{3, 4, 5})
	require.NoError(t, err)
	assert.Equal(t, 0, m.Rank)
	assert.InDelta(t, 4, m.Intercept, 1e-12)
	assert.Equal(t, []float64{0}, m.Coefficients)
}

func TestFitRejectsBadInput(t *testing.T) {
	_, err := Fit(nil, nil)
	assert.Error(t, err)
	_, err = Fit([][]float64{{1}}, []float64{1, 2})
	assert.Error(t, err)
	_, err = Fit([][]float64{{1, 2}, {1}}, []float64{1, 2})
	assert.Error(t, err)
	_, err = Fit([][]float64{{math.NaN()}, {1}}, []float64{1, 2})
	assert.Error(t, err)
}

func TestPredictOneChecksWidth(t *testing.T) {
	m := &LinearModel{Coefficients: []float64{1, 2}, Intercept: 0.5}
	v, err := m.PredictOne([]float64{1, 1})
	require.NoError(t, err)
	assert.Equal(t, 3.5, v)

	_, err = m.PredictOne([]float64{1})
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	m, err := Evaluate([]float64{1, 2, 3}, []float64{1, 2, 4})
	require.NoError(t, err)
	assert.InDelta(t, 1.0/3, m.MSE, 1e-12)
	assert.InDelta(t, math.Sqrt(1.0/3), m.RMSE, 1e-12)
	assert.InDelta(t, 1.0/3, m.MAE, 1e-12)
	assert.InDelta(t, 0.5, m.R2, 1e-12)

	perfect, err := Evaluate([]float64{2, 2}, []float64{2, 2})
	require.NoError(t, err)
	assert.Equal(t, 1.0, perfect.R2)

	keys := m.Map("test_")
	assert.Contains(t, keys, "test_rmse")

	_, err = Evaluate(nil, nil)
	assert.Error(t, err)
}
