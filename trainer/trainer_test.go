package trainer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loiht2/getaround-pricing/backend/artifact"
	"github.com/loiht2/getaround-pricing/backend/registry"
	"github.com/loiht2/getaround-pricing/backend/schema"
	"github.com/loiht2/getaround-pricing/backend/tracking"
)

type fakeTracker struct {
	params  map[string]string
	metrics map[string]float64
	status  string
	runs    int
}

func (f *fakeTracker) StartRun(context.Context, string, string) (string, error) {
	f.runs++
	return fmt.Sprintf("run-%d", f.runs), nil
}

func (f *fakeTracker) LogParams(_ context.Context, _ string, p map[string]string) error {
	f.params = p
	return nil
}

func (f *fakeTracker) LogMetrics(_ context.Context, _ string, m map[string]float64) error {
	f.metrics = m
	return nil
}

func (f *fakeTracker) EndRun(_ context.Context, _ string, status string) error {
	f.status = status
	return nil
}

type fakeRegistrar struct {
	registered []*artifact.Artifact
	err        error
}

func (f *fakeRegistrar) Register(_ context.Context, name, runID string, art *artifact.Artifact) (registry.Entry, error) {
	if f.err != nil {
		return registry.Entry{}, f.err
	}
	f.registered = append(f.registered, art)
	return registry.Entry{Name: name, Version: len(f.registered), RunID: runID}, nil
}

var (
	brands = []string{"Citroën", "Renault", "Peugeot", "BMW"}
	fuels  = []string{"diesel", "petrol", "hybrid_petrol"}
	colors = []string{"black", "grey", "white", "red"}
	types  = []string{"estate", "sedan", "suv", "convertible"}
)

// pricingCSV builds a dataset where the price is a noisy linear function of
// mileage, power and fuel.
func pricingCSV(n int) string {
	var b strings.Builder
	b.WriteString("," + strings.Join(schema.Columns, ",") + "," + schema.Target + "\n")
	for i := 0; i < n; i++ {
		mileage := 20000 + (i*7919)%200000
		power := 90 + (i*31)%150
		fuel := fuels[i%len(fuels)]
		price := 150 - float64(mileage)/4000 + float64(power)/5
		if fuel == "petrol" {
			price -= 8
		}
		price += float64((i*13)%7) - 3
		fmt.Fprintf(&b, "%d,%s,%d,%d,%s,%s,%s,%t,%t,%t,%t,%t,%t,%t,%.0f\n",
			i, brands[i%len(brands)], mileage, power, fuel, colors[(i/2)%len(colors)], types[(i/3)%len(types)],
			i%2 == 0, i%3 == 0, i%5 == 0, i%7 == 0, i%4 == 0, i%6 == 0, i%2 == 1, price)
	}
	return b.String()
}

func TestReadCSV(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(pricingCSV(10)))
	require.NoError(t, err)
	assert.Equal(t, 10, ds.Len())
	assert.Equal(t, "Citroën", ds.Records[0].ModelKey)
	assert.True(t, ds.Records[0].PrivateParkingAvailable)

	_, err = ReadCSV(strings.NewReader("a,b\n1,2\n"))
	assert.Error(t, err)

	bad := strings.Replace(pricingCSV(2), ",20000,", ",-5,", 1)
	_, err = ReadCSV(strings.NewReader(bad))
	assert.ErrorIs(t, err, schema.ErrValidation)
}

func TestTrainTestSplit(t *testing.T) {
	train, test, err := TrainTestSplit(10, 0.2, 0)
	require.NoError(t, err)
	assert.Len(t, test, 2)
	assert.Len(t, train, 8)

	_, test11, err := TrainTestSplit(11, 0.2, 0)
	require.NoError(t, err)
	assert.Len(t, test11, 3)

	train2, test2, err := TrainTestSplit(10, 0.2, 0)
	require.NoError(t, err)
	assert.Equal(t, train, train2)
	assert.Equal(t, test, test2)

	seen := map[int]bool{}
	for _, i := range append(append([]int{}, train...), test...) {
		seen[i] = true
	}
	assert.Len(t, seen, 10)

	_, _, err = TrainTestSplit(1, 0.2, 0)
	assert.Error(t, err)
	_, _, err = TrainTestSplit(10, 1.5, 0)
	assert.Error(t, err)
}

func TestTrainRegistersArtifact(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(pricingCSV(60)))
	require.NoError(t, err)
	tracker := &fakeTracker{}
	reg := &fakeRegistrar{}

	res, err := New(tracker, reg, nil).Train(context.Background(), ds, Options{})
	require.NoError(t, err)
	assert.Equal(t, "run-1", res.RunID)
	assert.Equal(t, DefaultModelName, res.Entry.Name)
	assert.Equal(t, tracking.StatusFinished, tracker.status)
	require.Len(t, reg.registered, 1)

	assert.Equal(t, "0.2", tracker.params["test_size"])
	assert.Equal(t, "48", tracker.params["training_rows"])
	assert.Equal(t, "12", tracker.params["test_rows"])
	for _, k := range []string{"train_r2", "test_r2", "test_rmse", "test_mae", "train_mse", "training_time_seconds"} {
		assert.Contains(t, tracker.metrics, k)
	}
	assert.Greater(t, tracker.metrics["train_r2"], 0.5)

	v, err := res.Artifact.Predict(schema.Defaults())
	require.NoError(t, err)
	assert.Greater(t, v, 0.0)
}

func TestTrainIsDeterministic(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(pricingCSV(40)))
	require.NoError(t, err)

	encode := func() []byte {
		res, err := New(&fakeTracker{}, &fakeRegistrar{}, nil).Train(context.Background(), ds, Options{Seed: 0})
		require.NoError(t, err)
		art := *res.Artifact
		art.Metadata = artifact.Metadata{}
		data, err := artifact.Encode(&art)
		require.NoError(t, err)
		return data
	}
	assert.True(t, bytes.Equal(encode(), encode()))
}

func TestTrainMarksRunFailed(t *testing.T) {
	ds, err := ReadCSV(strings.NewReader(pricingCSV(20)))
	require.NoError(t, err)
	tracker := &fakeTracker{}

	_, err = New(tracker, &fakeRegistrar{err: errors.New("registry down")}, nil).Train(context.Background(), ds, Options{})
	assert.ErrorIs(t, err, ErrTrainingFailed)
	assert.Equal(t, tracking.StatusFailed, tracker.status)

	tiny, err := ReadCSV(strings.NewReader(pricingCSV(1)))
	require.NoError(t, err)
	reg := &fakeRegistrar{}
	_, err = New(tracker, reg, nil).Train(context.Background(), tiny, Options{})
	assert.ErrorIs(t, err, ErrTrainingFailed)
	assert.Empty(t, reg.registered)
}
