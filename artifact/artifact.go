package artifact

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/loiht2/getaround-pricing/backend/preprocess"
	"github.com/loiht2/getaround-pricing/backend/regression"
	"github.com/loiht2/getaround-pricing/backend/schema"
)

// FormatVersion identifies the serialized layout of an Artifact.
const FormatVersion = 1

// ContentType of encoded artifacts.
const ContentType = "application/json"

// ErrNonFinite is returned when a prediction is NaN or infinite.
var ErrNonFinite = errors.New("prediction is not finite")

// Metadata describes how an artifact was produced.
type Metadata struct {
	RunID        string             `json:"run_id"`
	TrainedAt    time.Time          `json:"trained_at"`
	TrainingRows int                `json:"training_rows"`
	TestRows     int                `json:"test_rows"`
	Seed         int64              `json:"seed"`
	Metrics      map[string]float64 `json:"metrics,omitempty"`
}

// Artifact bundles a fitted preprocessing pipeline with the fitted estimator
// trained on its output. An Artifact is never modified once built; retraining
// produces a new one.
type Artifact struct {
	Format    int                     `json:"format"`
	Pipeline  *preprocess.Pipeline    `json:"pipeline"`
	Model     *regression.LinearModel `json:"model"`
	Features  []string                `json:"features"`
	Signature schema.Signature        `json:"signature"`
	Metadata  Metadata                `json:"metadata"`
}

// New validates that pipeline and model agree and assembles an artifact.
func New(pipeline *preprocess.Pipeline, model *regression.LinearModel, sig schema.Signature, meta Metadata) (*Artifact, error) {
	a := &Artifact{
		Format:    FormatVersion,
		Pipeline:  pipeline,
		Model:     model,
		Signature: sig,
		Metadata:  meta,
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	a.Features = pipeline.FeatureNames()
	return a, nil
}

func (a *Artifact) check() error {
	if a.Format != FormatVersion {
		return fmt.Errorf("artifact: unsupported format %d", a.Format)
	}
	if a.Pipeline == nil || a.Model == nil {
		return errors.New("artifact: pipeline and model are required")
	}
	if w := a.Pipeline.Width(); w != len(a.Model.Coefficients) {
		return fmt.Errorf("artifact: pipeline produces %d features but model expects %d", w, len(a.Model.Coefficients))
	}
	return nil
}

// Predict applies the bundled pipeline and estimator to one record.
func (a *Artifact) Predict(record schema.FeatureRecord) (float64, error) {
	row, err := a.Pipeline.TransformOne(record)
	if err != nil {
		return 0, fmt.Errorf("transform: %w", err)
	}
	v, err := a.Model.PredictOne(row)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, ErrNonFinite
	}
	return v, nil
}

// Encode serializes the artifact.
func Encode(a *Artifact) ([]byte, error) {
	if err := a.check(); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(a); err != nil {
		return nil, fmt.Errorf("encode artifact: %w", err)
	}
	return buf.Bytes(), nil
}

// Decode parses bytes produced by Encode.
func Decode(data []byte) (*Artifact, error) {
	var a Artifact
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("decode artifact: %w", err)
	}
	if err := a.check(); err != nil {
		return nil, err
	}
	return &a, nil
}

// Digest is the hex SHA-256 of encoded artifact bytes.
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
