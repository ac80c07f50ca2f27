package regression

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// LinearModel is an ordinary least squares model with an intercept.
type LinearModel struct {
	Coefficients []float64 `json:"coefficients"`
	Intercept    float64   `json:"intercept"`
	// Rank is the effective rank of the centered design matrix at fit time.
	Rank int `json:"rank"`
}

// Fit computes the least-squares coefficients of y on X.
//
// X and y are centered so the intercept can be recovered as ȳ − x̄·β, and the
// centered system is solved through a thin SVD. That yields the minimum-norm
// solution when the design is rank deficient, which happens whenever two
// indicator columns are identical on the training split.
func Fit(X [][]float64, y []float64) (*LinearModel, error) {
	n := len(X)
	if n == 0 {
		return nil, errors.New("regression: no training rows")
	}
	if len(y) != n {
		return nil, fmt.Errorf("regression: %d rows but %d targets", n, len(y))
	}
	p := len(X[0])
	if p == 0 {
		return &LinearModel{Coefficients: []float64{}, Intercept: mean(y)}, nil
	}

	xMean := make([]float64, p)
	for i, row := range X {
		if len(row) != p {
			return nil, fmt.Errorf("regression: row %d has %d columns, want %d", i, len(row), p)
		}
		for j, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("regression: non-finite value at row %d column %d", i, j)
			}
			xMean[j] += v
		}
	}
	for j := range xMean {
		xMean[j] /= float64(n)
	}
	yMean := mean(y)

	xc := mat.NewDense(n, p, nil)
	yc := mat.NewVecDense(n, nil)
	for i, row := range X {
		for j, v := range row {
			xc.Set(i, j, v-xMean[j])
		}
		yc.SetVec(i, y[i]-yMean)
	}

	var svd mat.SVD
	if ok := svd.Factorize(xc, mat.SVDThin); !ok {
		return nil, errors.New("regression: SVD factorization failed")
	}
	rcond := 1e-12 * float64(max(n, p))
	rank := svd.Rank(rcond)
	if rank == 0 {
		return &LinearModel{Coefficients: make([]float64, p), Intercept: yMean}, nil
	}
	var beta mat.VecDense
	svd.SolveVecTo(&beta, yc, rank)

	coef := make([]float64, p)
	intercept := yMean
	for j := range coef {
		coef[j] = beta.AtVec(j)
		intercept -= xMean[j] * coef[j]
	}
	return &LinearModel{Coefficients: coef, Intercept: intercept, Rank: rank}, nil
}

// Predict scores every row of X.
func (m *LinearModel) Predict(X [][]float64) ([]float64, error) {
	out := make([]float64, len(X))
	for i, row := range X {
		v, err := m.PredictOne(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

// PredictOne scores a single design row.
func (m *LinearModel) PredictOne(row []float64) (float64, error) {
	if len(row) != len(m.Coefficients) {
		return 0, fmt.Errorf("regression: got %d features, model has %d", len(row), len(m.Coefficients))
	}
	sum := m.Intercept
	for j, v := range row {
		sum += m.Coefficients[j] * v
	}
	return sum, nil
}

func mean(v []float64) float64 {
	s := 0.0
	for _, x := range v {
		s += x
	}
	return s / float64(len(v))
}
