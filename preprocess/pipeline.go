package preprocess

import (
	"errors"
	"fmt"

	"github.com/loiht2/getaround-pricing/backend/schema"
)

// Pipeline is the column transformer applied to raw feature records: the
// numeric columns go through a StandardScaler, the categorical columns through
// a OneHotEncoder, and the results are concatenated in that order.
//
// A fitted Pipeline is read-only; Transform may be called concurrently.
type Pipeline struct {
	NumericColumns     []string       `json:"numeric_columns"`
	CategoricalColumns []string       `json:"categorical_columns"`
	Scaler             StandardScaler `json:"scaler"`
	Encoder            OneHotEncoder  `json:"encoder"`
}

// NewPipeline returns an unfitted pipeline over the schema's feature columns.
func NewPipeline() *Pipeline {
	return &Pipeline{
		NumericColumns:     append([]string(nil), schema.NumericFeatures...),
		CategoricalColumns: append([]string(nil), schema.CategoricalFeatures...),
	}
}

// Fit learns scaler statistics and the category vocabulary from records.
// It must only ever see the training split.
func (p *Pipeline) Fit(records []schema.FeatureRecord) error {
	if len(records) == 0 {
		return errors.New("pipeline: cannot fit on an empty dataset")
	}
	numeric, categorical, err := p.split(records)
	if err != nil {
		return err
	}
	if err := p.Scaler.Fit(numeric); err != nil {
		return fmt.Errorf("fit numeric columns: %w", err)
	}
	if err := p.Encoder.Fit(categorical); err != nil {
		return fmt.Errorf("fit categorical columns: %w", err)
	}
	return nil
}

// Width is the number of columns of the design matrix.
func (p *Pipeline) Width() int {
	return len(p.NumericColumns) + p.Encoder.Width()
}

// FeatureNames names the design matrix columns.
func (p *Pipeline) FeatureNames() []string {
	names := append([]string(nil), p.NumericColumns...)
	return append(names, p.Encoder.FeatureNames(p.CategoricalColumns)...)
}

// Transform maps records to design matrix rows using the fitted state.
func (p *Pipeline) Transform(records []schema.FeatureRecord) ([][]float64, error) {
	if !p.Scaler.fitted() || !p.Encoder.fitted() {
		return nil, ErrNotFitted
	}
	numeric, categorical, err := p.split(records)
	if err != nil {
		return nil, err
	}
	nNum := len(p.NumericColumns)
	out := make([][]float64, len(records))
	for i := range records {
		row := make([]float64, p.Width())
		if err := p.Scaler.TransformRow(row[:nNum], numeric[i]); err != nil {
			return nil, err
		}
		if err := p.Encoder.TransformRow(row[nNum:], categorical[i]); err != nil {
			return nil, err
		}
		out[i] = row
	}
	return out, nil
}

// TransformOne is Transform for a single record.
func (p *Pipeline) TransformOne(record schema.FeatureRecord) ([]float64, error) {
	rows, err := p.Transform([]schema.FeatureRecord{record})
	if err != nil {
		return nil, err
	}
	return rows[0], nil
}

func (p *Pipeline) split(records []schema.FeatureRecord) ([][]float64, [][]string, error) {
	numeric := make([][]float64, len(records))
	categorical := make([][]string, len(records))
	for i, r := range records {
		nums := make([]float64, len(p.NumericColumns))
		for j, c := range p.NumericColumns {
			v, err := r.Numeric(c)
			if err != nil {
				return nil, nil, err
			}
			nums[j] = v
		}
		cats := make([]string, len(p.CategoricalColumns))
		for j, c := range p.CategoricalColumns {
			v, err := r.Category(c)
			if err != nil {
				return nil, nil, err
			}
			cats[j] = v
		}
		numeric[i] = nums
		categorical[i] = cats
	}
	return numeric, categorical, nil
}
