package dashboard

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/loiht2/getaround-pricing/backend/storage"
)

// Column names of the delay analysis dataset
const (
	colRentalID       = "rental_id"
	colCarID          = "car_id"
	colCheckinType    = "checkin_type"
	colState          = "state"
	colDelay          = "delay_at_checkout_in_minutes"
	colPreviousRental = "previous_ended_rental_id"
	colTimeDelta      = "time_delta_with_previous_rental_in_minutes"
)

var requiredColumns = []string{colRentalID, colCarID, colCheckinType, colState, colDelay, colPreviousRental, colTimeDelta}

// Rental is one row of the delay analysis dataset. Pointer fields are
// empty cells in the source.
type Rental struct {
	RentalID         int64    `json:"rental_id"`
	CarID            int64    `json:"car_id"`
	CheckinType      string   `json:"checkin_type"`
	State            string   `json:"state"`
	Delay            *float64 `json:"delay_at_checkout_in_minutes"`
	PreviousRentalID *int64   `json:"previous_ended_rental_id"`
	TimeDelta        *float64 `json:"time_delta_with_previous_rental_in_minutes"`
}

// LoadRentals reads the dataset at uri. Files ending in .csv are parsed as
// CSV, anything else as an Excel workbook (first sheet).
func LoadRentals(ctx context.Context, uri string, objects storage.ObjectOpener) ([]Rental, error) {
	rc, err := storage.OpenURI(ctx, uri, objects)
	if err != nil {
		return nil, fmt.Errorf("open rentals: %w", err)
	}
	defer rc.Close()

	var rows [][]string
	if strings.HasSuffix(strings.ToLower(uri), ".csv") {
		rows, err = csv.NewReader(rc).ReadAll()
	} else {
		rows, err = readWorkbook(rc)
	}
	if err != nil {
		return nil, fmt.Errorf("read rentals %s: %w", uri, err)
	}
	return parseRows(rows)
}

// ReadWorkbook parses rentals from xlsx bytes
func ReadWorkbook(data []byte) ([]Rental, error) {
	rows, err := readWorkbook(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return parseRows(rows)
}

func readWorkbook(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}
	return f.GetRows(sheets[0])
}

func parseRows(rows [][]string) ([]Rental, error) {
	if len(rows) == 0 {
		return nil, errors.New("no header row")
	}
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.TrimSpace(name)] = i
	}
	for _, col := range requiredColumns {
		if _, ok := index[col]; !ok {
			return nil, fmt.Errorf("missing column %q", col)
		}
	}

	rentals := make([]Rental, 0, len(rows)-1)
	for n, row := range rows[1:] {
		// excelize drops trailing empty cells
		cell := func(col string) string {
			if i := index[col]; i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		var r Rental
		var err error
		if r.RentalID, err = parseID(cell(colRentalID)); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", n+2, colRentalID, err)
		}
		if r.CarID, err = parseID(cell(colCarID)); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", n+2, colCarID, err)
		}
		r.CheckinType = cell(colCheckinType)
		r.State = cell(colState)
		if r.Delay, err = optionalFloat(cell(colDelay)); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", n+2, colDelay, err)
		}
		if s := cell(colPreviousRental); s != "" && !isNaN(s) {
			id, err := parseID(s)
			if err != nil {
				return nil, fmt.Errorf("row %d: %s: %w", n+2, colPreviousRental, err)
			}
			r.PreviousRentalID = &id
		}
		if r.TimeDelta, err = optionalFloat(cell(colTimeDelta)); err != nil {
			return nil, fmt.Errorf("row %d: %s: %w", n+2, colTimeDelta, err)
		}
		rentals = append(rentals, r)
	}
	return rentals, nil
}

func isNaN(s string) bool { return strings.EqualFold(s, "nan") }

func parseID(s string) (int64, error) {
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != float64(int64(f)) {
		return 0, fmt.Errorf("invalid id %q", s)
	}
	return int64(f), nil
}

func optionalFloat(s string) (*float64, error) {
	if s == "" || isNaN(s) {
		return nil, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}
