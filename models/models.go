package models

import (
	"time"

	"github.com/loiht2/getaround-pricing/backend/schema"
)

// PredictionFeatures is the POST /predict payload.
// Fields are pointers so an omitted field can be told apart from a zero value.
type PredictionFeatures struct {
	ModelKey                *string `json:"model_key" binding:"required"`
	Mileage                 *int    `json:"mileage" binding:"required,min=0"`
	EnginePower             *int    `json:"engine_power" binding:"required,min=0"`
	Fuel                    *string `json:"fuel" binding:"required"`
	PaintColor              *string `json:"paint_color" binding:"required"`
	CarType                 *string `json:"car_type" binding:"required"`
	PrivateParkingAvailable *bool   `json:"private_parking_available" binding:"required"`
	HasGPS                  *bool   `json:"has_gps" binding:"required"`
	HasAirConditioning      *bool   `json:"has_air_conditioning" binding:"required"`
	AutomaticCar            *bool   `json:"automatic_car" binding:"required"`
	HasGetaroundConnect     *bool   `json:"has_getaround_connect" binding:"required"`
	HasSpeedRegulator       *bool   `json:"has_speed_regulator" binding:"required"`
	WinterTires             *bool   `json:"winter_tires" binding:"required"`
}

// DefaultPredictionFeatures returns a payload pre-filled with the schema
// defaults, so that decoding a partial body over it keeps the defaults for
// omitted fields.
func DefaultPredictionFeatures() PredictionFeatures {
	d := schema.Defaults()
	return PredictionFeatures{
		ModelKey:                &d.ModelKey,
		Mileage:                 &d.Mileage,
		EnginePower:             &d.EnginePower,
		Fuel:                    &d.Fuel,
		PaintColor:              &d.PaintColor,
		CarType:                 &d.CarType,
		PrivateParkingAvailable: &d.PrivateParkingAvailable,
		HasGPS:                  &d.HasGPS,
		HasAirConditioning:      &d.HasAirConditioning,
		AutomaticCar:            &d.AutomaticCar,
		HasGetaroundConnect:     &d.HasGetaroundConnect,
		HasSpeedRegulator:       &d.HasSpeedRegulator,
		WinterTires:             &d.WinterTires,
	}
}

// Record converts a validated payload to a feature record. Binding has
// already guaranteed that every pointer is set.
func (p PredictionFeatures) Record() schema.FeatureRecord {
	return schema.FeatureRecord{
		ModelKey:                *p.ModelKey,
		Mileage:                 *p.Mileage,
		EnginePower:             *p.EnginePower,
		Fuel:                    *p.Fuel,
		PaintColor:              *p.PaintColor,
		CarType:                 *p.CarType,
		PrivateParkingAvailable: *p.PrivateParkingAvailable,
		HasGPS:                  *p.HasGPS,
		HasAirConditioning:      *p.HasAirConditioning,
		AutomaticCar:            *p.AutomaticCar,
		HasGetaroundConnect:     *p.HasGetaroundConnect,
		HasSpeedRegulator:       *p.HasSpeedRegulator,
		WinterTires:             *p.WinterTires,
	}
}

// PredictionResponse is the POST /predict response
type PredictionResponse struct {
	Prediction float64 `json:"prediction"`
}

// ModelVersionResponse describes one registered model version
type ModelVersionResponse struct {
	Name      string            `json:"name"`
	Version   int               `json:"version"`
	RunID     string            `json:"runId"`
	Source    string            `json:"source"`
	Digest    string            `json:"digest"`
	SizeBytes int64             `json:"sizeBytes"`
	Signature *schema.Signature `json:"signature,omitempty"`
	Status    string            `json:"status"`
	CreatedAt time.Time         `json:"createdAt"`
}

// RegisteredModelResponse describes a registered model and its newest version
type RegisteredModelResponse struct {
	Name          string    `json:"name"`
	LatestVersion int       `json:"latestVersion"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// RunResponse describes a tracked training run
type RunResponse struct {
	ID         string             `json:"id"`
	Experiment string             `json:"experiment"`
	Name       string             `json:"name"`
	Status     string             `json:"status"`
	StartTime  time.Time          `json:"startTime"`
	EndTime    *time.Time         `json:"endTime,omitempty"`
	Params     map[string]string  `json:"params"`
	Metrics    map[string]float64 `json:"metrics"`
}

// TrainingRunRequest asks for a training run to be launched on the cluster
type TrainingRunRequest struct {
	RunName    string    `json:"runName" binding:"required"`
	ModelName  string    `json:"modelName" binding:"required"`
	DatasetURI string    `json:"datasetUri" binding:"required"`
	Experiment string    `json:"experiment"`
	Seed       int64     `json:"seed"`
	TestSize   float64   `json:"testSize" binding:"omitempty,gt=0,lt=1"`
	Namespace  string    `json:"namespace"` // Optional override
	Image      string    `json:"image"`     // Optional override
	Resources  Resources `json:"resources"`
}

// Resources requested for the training container
type Resources struct {
	CPUCores  int `json:"cpuCores"`
	MemoryGiB int `json:"memoryGiB"`
}

// TrainingRunResponse represents a launched training run
type TrainingRunResponse struct {
	ID        string              `json:"id"`
	JobName   string              `json:"jobName"`
	Namespace string              `json:"namespace"`
	ModelName string              `json:"modelName"`
	Request   *TrainingRunRequest `json:"request,omitempty"` // Full original request
	Status    string              `json:"status"`
	Message   string              `json:"message"`
	CreatedAt time.Time           `json:"createdAt"`
	UpdatedAt time.Time           `json:"updatedAt"`
}

// JobStatus represents the status of a training job
type JobStatus struct {
	Phase          string     `json:"phase"`
	Message        string     `json:"message"`
	Active         int32      `json:"active"`
	Succeeded      int32      `json:"succeeded"`
	Failed         int32      `json:"failed"`
	StartTime      *time.Time `json:"startTime,omitempty"`
	CompletionTime *time.Time `json:"completionTime,omitempty"`
}

// PodLogs holds the tail of one training pod's output
type PodLogs struct {
	Pod   string `json:"pod"`
	Phase string `json:"phase"`
	Logs  string `json:"logs"`
}
