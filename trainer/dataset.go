package trainer

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/loiht2/getaround-pricing/backend/schema"
	"github.com/loiht2/getaround-pricing/backend/storage"
)

// Dataset is the labelled training data of one run. It is not modified
// after loading.
type Dataset struct {
	Source  string
	Records []schema.FeatureRecord
	Targets []float64
}

// Len returns the number of rows
func (d *Dataset) Len() int { return len(d.Records) }

// LoadDataset opens uri (path, http(s) URL or s3://bucket/key) and parses it as CSV
func LoadDataset(ctx context.Context, uri string, objects storage.ObjectOpener) (*Dataset, error) {
	rc, err := storage.OpenURI(ctx, uri, objects)
	if err != nil {
		return nil, fmt.Errorf("open dataset: %w", err)
	}
	defer rc.Close()

	ds, err := ReadCSV(rc)
	if err != nil {
		return nil, fmt.Errorf("read dataset %s: %w", uri, err)
	}
	ds.Source = uri
	return ds, nil
}

// ReadCSV parses the pricing dataset. The header names the columns; an
// unnamed leading column is treated as the row index and ignored.
func ReadCSV(r io.Reader) (*Dataset, error) {
	reader := csv.NewReader(r)
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))] = i
	}
	target, ok := index[schema.Target]
	if !ok {
		return nil, fmt.Errorf("missing target column %q", schema.Target)
	}
	positions := make([]int, len(schema.Columns))
	for i, col := range schema.Columns {
		p, ok := index[col]
		if !ok {
			return nil, fmt.Errorf("missing feature column %q", col)
		}
		positions[i] = p
	}

	ds := &Dataset{}
	line := 1
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		var rec schema.FeatureRecord
		for i, col := range schema.Columns {
			if err := rec.Set(col, strings.TrimSpace(row[positions[i]])); err != nil {
				return nil, fmt.Errorf("line %d: %w", line, err)
			}
		}
		if err := rec.Validate(); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(row[target]), 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid %s: %w", line, schema.Target, err)
		}
		ds.Records = append(ds.Records, rec)
		ds.Targets = append(ds.Targets, y)
	}
	if ds.Len() == 0 {
		return nil, errors.New("dataset has no rows")
	}
	return ds, nil
}

// Subset returns the rows at idx in that order
func (d *Dataset) Subset(idx []int) ([]schema.FeatureRecord, []float64) {
	records := make([]schema.FeatureRecord, len(idx))
	targets := make([]float64, len(idx))
	for i, j := range idx {
		records[i] = d.Records[j]
		targets[i] = d.Targets[j]
	}
	return records, targets
}
