package preprocess

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// OneHotEncoder encodes categorical columns as indicator vectors.
//
// Categories of each column are sorted, and the first one is dropped so the
// remaining indicators are not collinear with the intercept. A value not seen
// during Fit encodes as all zeros.
type OneHotEncoder struct {
	// Categories holds the full sorted vocabulary of each column.
	Categories [][]string `json:"categories"`
	// Dropped holds the category removed from each column's output.
	Dropped []string `json:"dropped"`

	index []map[string]int
}

// Fit learns the vocabulary of every column of X.
func (e *OneHotEncoder) Fit(X [][]string) error {
	if len(X) == 0 {
		return errors.New("encoder: cannot fit on zero rows")
	}
	cols := len(X[0])
	e.Categories = make([][]string, cols)
	e.Dropped = make([]string, cols)
	for j := 0; j < cols; j++ {
		seen := make(map[string]struct{})
		for i, row := range X {
			if len(row) != cols {
				return fmt.Errorf("encoder: row %d has %d columns, want %d", i, len(row), cols)
			}
			seen[row[j]] = struct{}{}
		}
		cats := make([]string, 0, len(seen))
		for c := range seen {
			cats = append(cats, c)
		}
		sort.Strings(cats)
		e.Categories[j] = cats
		e.Dropped[j] = cats[0]
	}
	e.buildIndex()
	return nil
}

// UnmarshalJSON restores a persisted encoder, including its lookup index.
func (e *OneHotEncoder) UnmarshalJSON(b []byte) error {
	type plain OneHotEncoder
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return err
	}
	if len(p.Categories) != len(p.Dropped) {
		return fmt.Errorf("encoder: %d category lists but %d dropped values", len(p.Categories), len(p.Dropped))
	}
	for j, cats := range p.Categories {
		if len(cats) == 0 || cats[0] != p.Dropped[j] {
			return fmt.Errorf("encoder: column %d has an inconsistent vocabulary", j)
		}
	}
	*e = OneHotEncoder(p)
	e.buildIndex()
	return nil
}

// buildIndex maps each kept category to its offset within its column block.
func (e *OneHotEncoder) buildIndex() {
	e.index = make([]map[string]int, len(e.Categories))
	for j, cats := range e.Categories {
		m := make(map[string]int, len(cats))
		for k, c := range cats {
			if k == 0 {
				continue
			}
			m[c] = k - 1
		}
		e.index[j] = m
	}
}

func (e *OneHotEncoder) fitted() bool { return len(e.Categories) > 0 && e.index != nil }

// Width is the number of output columns.
func (e *OneHotEncoder) Width() int {
	n := 0
	for _, cats := range e.Categories {
		n += len(cats) - 1
	}
	return n
}

// TransformRow writes the indicator encoding of row into dst, which must be
// Width() long.
func (e *OneHotEncoder) TransformRow(dst []float64, row []string) error {
	if !e.fitted() {
		return ErrNotFitted
	}
	if len(row) != len(e.Categories) {
		return fmt.Errorf("encoder: got %d columns, fitted on %d", len(row), len(e.Categories))
	}
	for i := range dst {
		dst[i] = 0
	}
	offset := 0
	for j, v := range row {
		if k, ok := e.index[j][v]; ok {
			dst[offset+k] = 1
		}
		offset += len(e.Categories[j]) - 1
	}
	return nil
}

// FeatureNames returns the output column names, "<column>_<category>".
func (e *OneHotEncoder) FeatureNames(columns []string) []string {
	names := make([]string, 0, e.Width())
	for j, cats := range e.Categories {
		for _, c := range cats[1:] {
			names = append(names, columns[j]+"_"+c)
		}
	}
	return names
}
