package dashboard

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixtureRows = [][]interface{}{
	{"rental_id", "car_id", "checkin_type", "state", "delay_at_checkout_in_minutes", "previous_ended_rental_id", "time_delta_with_previous_rental_in_minutes"},
	{1, 10, "mobile", "ended", 30, "", ""},
	{2, 10, "mobile", "canceled", "", 1, 60},
	{3, 11, "connect", "ended", -10, "", ""},
	{4, 11, "connect", "ended", 5, 3, 0},
	{5, 12, "mobile", "ended", 800, 99, 300},
}

func fixtureCSV() string {
	return "rental_id,car_id,checkin_type,state,delay_at_checkout_in_minutes,previous_ended_rental_id,time_delta_with_previous_rental_in_minutes\n" +
		"1,10,mobile,ended,30,,\n" +
		"2,10,mobile,canceled,,1.0,60.0\n" +
		"3,11,connect,ended,-10,,\n" +
		"4,11,connect,ended,5,3.0,0.0\n" +
		"5,12,mobile,ended,800,99.0,300.0\n"
}

func fixtureWorkbook(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range fixtureRows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		r := row
		require.NoError(t, f.SetSheetRow("Sheet1", cell, &r))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func fixture(t *testing.T) *Analysis {
	t.Helper()
	rentals, err := ReadWorkbook(fixtureWorkbook(t))
	require.NoError(t, err)
	require.Len(t, rentals, 5)
	return NewAnalysis(rentals)
}

func TestLoadRentalsFromFiles(t *testing.T) {
	dir := t.TempDir()
	xlsx := filepath.Join(dir, "get_around_delay_analysis.xlsx")
	require.NoError(t, os.WriteFile(xlsx, fixtureWorkbook(t), 0o644))
	csvPath := filepath.Join(dir, "delays.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(fixtureCSV()), 0o644))

	fromXLSX, err := LoadRentals(context.Background(), xlsx, nil)
	require.NoError(t, err)
	fromCSV, err := LoadRentals(context.Background(), csvPath, nil)
	require.NoError(t, err)
	assert.Equal(t, fromCSV, fromXLSX)

	assert.Nil(t, fromCSV[0].PreviousRentalID)
	assert.Nil(t, fromCSV[1].Delay)
	require.NotNil(t, fromCSV[1].PreviousRentalID)
	assert.Equal(t, int64(1), *fromCSV[1].PreviousRentalID)
}

func TestLoadRentalsRejectsMissingColumns(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("rental_id,car_id\n1,2\n"), 0o644))
	_, err := LoadRentals(context.Background(), path, nil)
	assert.Error(t, err)
}

func TestEnrichment(t *testing.T) {
	rows := fixture(t).Rows()

	assert.Equal(t, LabelLate, rows[0].Checkout)
	assert.Equal(t, LabelNoPrevious, rows[0].PreviousCheckout)
	assert.Equal(t, float64(DefaultTimeDelta), rows[0].TimeDeltaMinutes)
	assert.Nil(t, rows[0].RealTimeDelta)

	// missing delay counts as on time
	assert.Equal(t, 0.0, rows[1].DelayMinutes)
	assert.Equal(t, LabelOnTime, rows[1].Checkout)
	assert.Equal(t, "mobile", rows[1].PreviousCheckinType)
	assert.Equal(t, LabelLate, rows[1].PreviousCheckout)
	require.NotNil(t, rows[1].RealTimeDelta)
	assert.Equal(t, 30.0, *rows[1].RealTimeDelta)

	assert.Equal(t, LabelOnTime, rows[3].PreviousCheckout)
	assert.Equal(t, 10.0, *rows[3].RealTimeDelta)

	// previous rental outside the dataset
	assert.Equal(t, LabelNoPrevious, rows[4].PreviousCheckout)
	assert.Nil(t, rows[4].RealTimeDelta)
}

func TestSummaryAndShares(t *testing.T) {
	a := fixture(t)
	assert.Equal(t, Summary{Cars: 3, Rentals: 5}, a.Summary())

	s, err := a.Shares(CheckinAll)
	require.NoError(t, err)
	assert.Equal(t, 5, s.Total)
	assert.Equal(t, []Share{{"connect", 2, 0.4}, {"mobile", 3, 0.6}}, s.Checkin)
	assert.Equal(t, []Share{{LabelOnTime, 2, 0.4}, {LabelLate, 3, 0.6}}, s.Checkout)
	assert.Equal(t, []Share{{"canceled", 1, 0.2}, {"ended", 4, 0.8}}, s.State)
	require.Len(t, s.StateWithPrev, 2)
	assert.Equal(t, 1, s.StateWithPrev[0].Count)
	assert.Equal(t, 2, s.StateWithPrev[1].Count)

	m, err := a.Shares(CheckinMobile)
	require.NoError(t, err)
	assert.Equal(t, 3, m.Total)
	assert.Equal(t, s.Checkin, m.Checkin)

	_, err = a.Shares("bus")
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestDelaysRejectsTooManyBins(t *testing.T) {
	a := fixture(t)
	_, err := a.Delays(CheckinAll, MaxBins+1)
	assert.ErrorIs(t, err, ErrInvalidFilter)

	d, err := a.Delays(CheckinAll, MaxBins)
	require.NoError(t, err)
	assert.Len(t, d.Delay.Bins, MaxBins)
}

func TestDelays(t *testing.T) {
	d, err := fixture(t).Delays(CheckinAll, 48)
	require.NoError(t, err)
	require.Len(t, d.Delay.Bins, 48)
	assert.Equal(t, 2, d.Delay.Bins[0].Count)
	assert.Equal(t, 1, d.Delay.Bins[2].Count)
	total := 0
	for _, b := range d.Delay.Bins {
		total += b.Count
	}
	assert.Equal(t, 3, total)

	assert.Equal(t, 1, d.PlannedDelta.Bins[0].Count)
	assert.Equal(t, 1, d.PlannedDelta.Bins[4].Count)
	assert.Equal(t, 1, d.PlannedDelta.Bins[20].Count)
	assert.Equal(t, 3, d.LateCheckouts)
	assert.Equal(t, 30.0, d.MedianLateDelay)
}

func TestSimulate(t *testing.T) {
	a := fixture(t)
	tests := []struct {
		threshold int
		checkin   string
		want      Simulation
	}{
		{0, CheckinAll, Simulation{Studied: 5}},
		{120, CheckinAll, Simulation{Studied: 5, PotentialLoss: 2, ActualLoss: 1, ActualConnect: 1}},
		{400, CheckinAll, Simulation{Studied: 5, PotentialLoss: 3, ActualLoss: 2, ActualConnect: 1, ActualMobile: 1}},
		{400, CheckinMobile, Simulation{Studied: 3, PotentialLoss: 2, ActualLoss: 1, ActualMobile: 1}},
		{720, CheckinConnect, Simulation{Studied: 2, PotentialLoss: 1, ActualLoss: 1, ActualConnect: 1}},
	}
	for _, tt := range tests {
		got, err := a.Simulate(tt.threshold, tt.checkin)
		require.NoError(t, err)
		tt.want.ThresholdMinutes = tt.threshold
		tt.want.CheckinType = tt.checkin
		assert.Equal(t, tt.want, got)
	}

	_, err := a.Simulate(721, CheckinAll)
	assert.ErrorIs(t, err, ErrInvalidFilter)
	_, err = a.Simulate(-1, CheckinAll)
	assert.ErrorIs(t, err, ErrInvalidFilter)
}

func TestChart(t *testing.T) {
	a := fixture(t)
	png, err := a.Chart(ChartDelays, CheckinAll)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(png, []byte("\x89PNG")))

	_, err = a.Chart("pie", CheckinAll)
	assert.ErrorIs(t, err, ErrUnknownChart)
}
