package schema

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/hashicorp/go-multierror"
)

// Column names of the raw feature record, in the order they appear in the
// training dataset.
const (
	ModelKey                = "model_key"
	Mileage                 = "mileage"
	EnginePower             = "engine_power"
	Fuel                    = "fuel"
	PaintColor              = "paint_color"
	CarType                 = "car_type"
	PrivateParkingAvailable = "private_parking_available"
	HasGPS                  = "has_gps"
	HasAirConditioning      = "has_air_conditioning"
	AutomaticCar            = "automatic_car"
	HasGetaroundConnect     = "has_getaround_connect"
	HasSpeedRegulator       = "has_speed_regulator"
	WinterTires             = "winter_tires"

	// Target is the label column of the training dataset.
	Target = "rental_price_per_day"
)

// NumericFeatures are standardized by the preprocessing pipeline.
var NumericFeatures = []string{Mileage, EnginePower}

// CategoricalFeatures are one-hot encoded by the preprocessing pipeline.
var CategoricalFeatures = []string{
	ModelKey, Fuel, PaintColor, CarType,
	PrivateParkingAvailable, HasGPS, HasAirConditioning, AutomaticCar,
	HasGetaroundConnect, HasSpeedRegulator, WinterTires,
}

// Columns lists every raw input column in dataset order.
var Columns = []string{
	ModelKey, Mileage, EnginePower, Fuel, PaintColor, CarType,
	PrivateParkingAvailable, HasGPS, HasAirConditioning, AutomaticCar,
	HasGetaroundConnect, HasSpeedRegulator, WinterTires,
}

// ErrValidation is wrapped by every ValidationError.
var ErrValidation = errors.New("invalid feature record")

// ValidationError describes one field that failed validation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// FeatureRecord is one car described by the 13 raw features.
type FeatureRecord struct {
	ModelKey                string `json:"model_key"`
	Mileage                 int    `json:"mileage"`
	EnginePower             int    `json:"engine_power"`
	Fuel                    string `json:"fuel"`
	PaintColor              string `json:"paint_color"`
	CarType                 string `json:"car_type"`
	PrivateParkingAvailable bool   `json:"private_parking_available"`
	HasGPS                  bool   `json:"has_gps"`
	HasAirConditioning      bool   `json:"has_air_conditioning"`
	AutomaticCar            bool   `json:"automatic_car"`
	HasGetaroundConnect     bool   `json:"has_getaround_connect"`
	HasSpeedRegulator       bool   `json:"has_speed_regulator"`
	WinterTires             bool   `json:"winter_tires"`
}

// Defaults returns the fallback record used when a caller omits fields.
// The values are the most common (or mean) values of the pricing dataset.
func Defaults() FeatureRecord {
	return FeatureRecord{
		ModelKey:                "Citroën",
		Mileage:                 140962,
		EnginePower:             129,
		Fuel:                    "diesel",
		PaintColor:              "black",
		CarType:                 "estate",
		PrivateParkingAvailable: true,
		HasGPS:                  true,
		HasAirConditioning:      false,
		AutomaticCar:            false,
		HasGetaroundConnect:     false,
		HasSpeedRegulator:       false,
		WinterTires:             true,
	}
}

// Validate checks the invariants of a complete record. All field errors are
// reported together.
func (r FeatureRecord) Validate() error {
	var result *multierror.Error
	if r.Mileage < 0 {
		result = multierror.Append(result, &ValidationError{Field: Mileage, Reason: "must be non-negative"})
	}
	if r.EnginePower < 0 {
		result = multierror.Append(result, &ValidationError{Field: EnginePower, Reason: "must be non-negative"})
	}
	return result.ErrorOrNil()
}

// Numeric returns the value of a numeric column.
func (r FeatureRecord) Numeric(column string) (float64, error) {
	switch column {
	case Mileage:
		return float64(r.Mileage), nil
	case EnginePower:
		return float64(r.EnginePower), nil
	}
	return 0, fmt.Errorf("%q is not a numeric column", column)
}

// Category returns the value of a categorical column as the string the
// one-hot encoder sees. Booleans become "true" or "false".
func (r FeatureRecord) Category(column string) (string, error) {
	switch column {
	case ModelKey:
		return r.ModelKey, nil
	case Fuel:
		return r.Fuel, nil
	case PaintColor:
		return r.PaintColor, nil
	case CarType:
		return r.CarType, nil
	case PrivateParkingAvailable:
		return strconv.FormatBool(r.PrivateParkingAvailable), nil
	case HasGPS:
		return strconv.FormatBool(r.HasGPS), nil
	case HasAirConditioning:
		return strconv.FormatBool(r.HasAirConditioning), nil
	case AutomaticCar:
		return strconv.FormatBool(r.AutomaticCar), nil
	case HasGetaroundConnect:
		return strconv.FormatBool(r.HasGetaroundConnect), nil
	case HasSpeedRegulator:
		return strconv.FormatBool(r.HasSpeedRegulator), nil
	case WinterTires:
		return strconv.FormatBool(r.WinterTires), nil
	}
	return "", fmt.Errorf("%q is not a categorical column", column)
}

// Set assigns a column from its textual form, as read from a CSV cell.
func (r *FeatureRecord) Set(column, value string) error {
	switch column {
	case ModelKey:
		r.ModelKey = value
	case Fuel:
		r.Fuel = value
	case PaintColor:
		r.PaintColor = value
	case CarType:
		r.CarType = value
	case Mileage, EnginePower:
		n, err := parseCount(value)
		if err != nil {
			return &ValidationError{Field: column, Reason: err.Error()}
		}
		if column == Mileage {
			r.Mileage = n
		} else {
			r.EnginePower = n
		}
	default:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return &ValidationError{Field: column, Reason: fmt.Sprintf("expected a boolean, got %q", value)}
		}
		switch column {
		case PrivateParkingAvailable:
			r.PrivateParkingAvailable = b
		case HasGPS:
			r.HasGPS = b
		case HasAirConditioning:
			r.HasAirConditioning = b
		case AutomaticCar:
			r.AutomaticCar = b
		case HasGetaroundConnect:
			r.HasGetaroundConnect = b
		case HasSpeedRegulator:
			r.HasSpeedRegulator = b
		case WinterTires:
			r.WinterTires = b
		default:
			return fmt.Errorf("unknown column %q", column)
		}
	}
	return nil
}

// parseCount accepts integers and integral floats ("129.0"), which is how
// numeric columns come out of spreadsheet exports.
func parseCount(value string) (int, error) {
	if n, err := strconv.Atoi(value); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != float64(int(f)) {
		return 0, fmt.Errorf("expected an integer, got %q", value)
	}
	return int(f), nil
}
