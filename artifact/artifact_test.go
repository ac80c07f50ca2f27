package artifact

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loiht2/getaround-pricing/backend/preprocess"
	"github.com/loiht2/getaround-pricing/backend/regression"
	"github.com/loiht2/getaround-pricing/backend/schema"
)

func buildArtifact(t *testing.T) *Artifact {
	t.Helper()
	a := schema.Defaults()
	b := schema.Defaults()
	b.Mileage, b.EnginePower, b.Fuel = 50000, 100, "petrol"
	c := schema.Defaults()
	c.Mileage, c.EnginePower, c.ModelKey = 200000, 150, "Renault"
	records := []schema.FeatureRecord{a, b, c}
	y := []float64{110, 130, 95}

	p := preprocess.NewPipeline()
	require.NoError(t, p.Fit(records))
	X, err := p.Transform(records)
	require.NoError(t, err)
	m, err := regression.Fit(X, y)
	require.NoError(t, err)
	sig, err := schema.InferSignature(records, y)
	require.NoError(t, err)

	art, err := New(p, m, sig, Metadata{RunID: "run-1", TrainedAt: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	return art
}

func TestNewRejectsMismatchedModel(t *testing.T) {
	p := preprocess.NewPipeline()
	require.NoError(t, p.Fit([]schema.FeatureRecord{schema.Defaults()}))
	_, err := New(p, &regression.LinearModel{Coefficients: []float64{1, 2, 3, 4, 5}}, schema.Signature{}, Metadata{})
	assert.Error(t, err)
	_, err = New(nil, nil, schema.Signature{}, Metadata{})
	assert.Error(t, err)
}

func TestPredictFiniteForKnownAndUnknownCategories(t *testing.T) {
	art := buildArtifact(t)

	v, err := art.Predict(schema.Defaults())
	require.NoError(t, err)
	assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))

	r := schema.Defaults()
	r.Fuel = "hydrogen"
	r.PaintColor = "ultraviolet"
	v, err = art.Predict(r)
	require.NoError(t, err)
	assert.False(t, math.IsNaN(v) || math.IsInf(v, 0))
}

func TestEncodeDecodeKeepsPredictions(t *testing.T) {
	art := buildArtifact(t)
	data, err := Encode(art)
	require.NoError(t, err)

	restored, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, art.Features, restored.Features)

	want, err := art.Predict(schema.Defaults())
	require.NoError(t, err)
	got, err := restored.Predict(schema.Defaults())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	again, err := Encode(restored)
	require.NoError(t, err)
	assert.Equal(t, Digest(data), Digest(again))
}

func TestDecodeRejectsGarbage(t *testing.T) {
	_, err := Decode([]byte("not json"))
	assert.Error(t, err)
	_, err = Decode([]byte(`{"format":99}`))
	assert.Error(t, err)
}

func TestPredictRejectsNonFinite(t *testing.T) {
	art := buildArtifact(t)
	art.Model = &regression.LinearModel{Coefficients: art.Model.Coefficients, Intercept: math.Inf(1)}
	_, err := art.Predict(schema.Defaults())
	assert.ErrorIs(t, err, ErrNonFinite)
}
