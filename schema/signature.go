package schema

import (
	"fmt"
	"math"
	"strings"
)

// Column types used in signatures.
const (
	TypeString  = "string"
	TypeLong    = "long"
	TypeBoolean = "boolean"
	TypeDouble  = "double"
)

// ColumnSpec is one named, typed column of a signature.
type ColumnSpec struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Signature records the expected inputs and outputs of a registered model.
// It documents compatibility; inference does not enforce it strictly.
type Signature struct {
	Inputs  []ColumnSpec `json:"inputs"`
	Outputs []ColumnSpec `json:"outputs"`
}

// InputSpecs returns the typed input columns of a FeatureRecord.
func InputSpecs() []ColumnSpec {
	specs := make([]ColumnSpec, 0, len(Columns))
	for _, c := range Columns {
		specs = append(specs, ColumnSpec{Name: c, Type: columnType(c)})
	}
	return specs
}

func columnType(column string) string {
	switch column {
	case Mileage, EnginePower:
		return TypeLong
	case ModelKey, Fuel, PaintColor, CarType:
		return TypeString
	default:
		return TypeBoolean
	}
}

// InferSignature derives a signature from training inputs and the
// predictions made on them.
func InferSignature(inputs []FeatureRecord, predictions []float64) (Signature, error) {
	if len(inputs) == 0 {
		return Signature{}, fmt.Errorf("cannot infer signature from an empty input set")
	}
	if len(inputs) != len(predictions) {
		return Signature{}, fmt.Errorf("signature: %d inputs but %d predictions", len(inputs), len(predictions))
	}
	for i, p := range predictions {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return Signature{}, fmt.Errorf("signature: prediction %d is not finite", i)
		}
	}
	return Signature{
		Inputs:  InputSpecs(),
		Outputs: []ColumnSpec{{Type: TypeDouble}},
	}, nil
}

// Compatible reports the input columns of other that this signature is
// missing or types differently. An empty result means compatible.
func (s Signature) Compatible(other Signature) []string {
	want := make(map[string]string, len(s.Inputs))
	for _, c := range s.Inputs {
		want[c.Name] = c.Type
	}
	var problems []string
	for _, c := range other.Inputs {
		t, ok := want[c.Name]
		switch {
		case !ok:
			problems = append(problems, fmt.Sprintf("unexpected column %s", c.Name))
		case t != c.Type:
			problems = append(problems, fmt.Sprintf("column %s is %s, want %s", c.Name, c.Type, t))
		}
	}
	return problems
}

func (s Signature) String() string {
	parts := make([]string, 0, len(s.Inputs))
	for _, c := range s.Inputs {
		parts = append(parts, c.Name+":"+c.Type)
	}
	return "(" + strings.Join(parts, ", ") + ") -> double"
}
