package preprocess

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// ErrNotFitted is returned when a transformer is used before Fit.
var ErrNotFitted = errors.New("transformer is not fitted")

// StandardScaler standardizes columns to zero mean and unit variance using
// statistics learned at fit time.
type StandardScaler struct {
	Mean     []float64 `json:"mean"`
	Variance []float64 `json:"variance"`
	Scale    []float64 `json:"scale"`
}

// Fit learns the per-column mean and population variance of X.
// A constant column gets scale 1 so it maps to zero instead of dividing by zero.
func (s *StandardScaler) Fit(X [][]float64) error {
	if len(X) == 0 {
		return errors.New("scaler: cannot fit on zero rows")
	}
	cols := len(X[0])
	s.Mean = make([]float64, cols)
	s.Variance = make([]float64, cols)
	s.Scale = make([]float64, cols)
	col := make([]float64, len(X))
	for j := 0; j < cols; j++ {
		for i, row := range X {
			if len(row) != cols {
				return fmt.Errorf("scaler: row %d has %d columns, want %d", i, len(row), cols)
			}
			col[i] = row[j]
		}
		mean, variance := stat.PopMeanVariance(col, nil)
		s.Mean[j] = mean
		s.Variance[j] = variance
		s.Scale[j] = math.Sqrt(variance)
		if s.Scale[j] == 0 {
			s.Scale[j] = 1
		}
	}
	return nil
}

func (s *StandardScaler) fitted() bool { return len(s.Scale) > 0 }

// TransformRow writes the scaled values of row into dst.
func (s *StandardScaler) TransformRow(dst, row []float64) error {
	if !s.fitted() {
		return ErrNotFitted
	}
	if len(row) != len(s.Scale) || len(dst) != len(s.Scale) {
		return fmt.Errorf("scaler: got %d columns, fitted on %d", len(row), len(s.Scale))
	}
	for j, v := range row {
		dst[j] = (v - s.Mean[j]) / s.Scale[j]
	}
	return nil
}
