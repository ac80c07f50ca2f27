package regression

import (
	"fmt"
	"math"
)

// Metrics summarizes regression quality on one partition.
type Metrics struct {
	R2   float64 `json:"r2"`
	MSE  float64 `json:"mse"`
	RMSE float64 `json:"rmse"`
	MAE  float64 `json:"mae"`
}

// Evaluate compares predictions against the true targets.
func Evaluate(yTrue, yPred []float64) (Metrics, error) {
	if len(yTrue) == 0 {
		return Metrics{}, fmt.Errorf("evaluate: no samples")
	}
	if len(yTrue) != len(yPred) {
		return Metrics{}, fmt.Errorf("evaluate: %d targets but %d predictions", len(yTrue), len(yPred))
	}
	n := float64(len(yTrue))
	yMean := mean(yTrue)
	var ssRes, ssTot, absErr float64
	for i, y := range yTrue {
		d := y - yPred[i]
		ssRes += d * d
		absErr += math.Abs(d)
		t := y - yMean
		ssTot += t * t
	}
	m := Metrics{
		MSE: ssRes / n,
		MAE: absErr / n,
	}
	m.RMSE = math.Sqrt(m.MSE)
	switch {
	case ssTot != 0:
		m.R2 = 1 - ssRes/ssTot
	case ssRes == 0:
		m.R2 = 1
	}
	return m, nil
}

// Map flattens the metrics with a key prefix, e.g. "test_rmse".
func (m Metrics) Map(prefix string) map[string]float64 {
	return map[string]float64{
		prefix + "r2":   m.R2,
		prefix + "mse":  m.MSE,
		prefix + "rmse": m.RMSE,
		prefix + "mae":  m.MAE,
	}
}
