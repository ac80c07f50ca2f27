package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Prediction error reasons
const (
	ReasonUnavailable = "artifact_unavailable"
	ReasonInvalid     = "invalid_input"
	ReasonNonFinite   = "non_finite"
)

type Registry struct {
	reg *prometheus.Registry

	HTTPRequests       *prometheus.CounterVec
	HTTPDuration       *prometheus.HistogramVec
	Predictions        prometheus.Counter
	PredictionErrors   *prometheus.CounterVec
	ModelLoads         prometheus.Counter
	ModelLoadDuration  prometheus.Histogram
	ServedModelVersion *prometheus.GaugeVec
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	requests := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by route, method and status.",
	}, []string{"route", "method", "status"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency.",
		Buckets: prometheus.DefBuckets,
	}, []string{"route", "method"})
	predictions := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "predictions_total",
		Help: "Successful predictions.",
	})
	predictionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "prediction_errors_total",
		Help: "Failed predictions by reason.",
	}, []string{"reason"})
	loads := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "model_loads_total",
		Help: "Artifacts fetched from the registry.",
	})
	loadDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "model_load_duration_seconds",
		Help:    "Time to fetch and decode an artifact.",
		Buckets: prometheus.DefBuckets,
	})
	served := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "served_model_version",
		Help: "Version of the model last used for predictions.",
	}, []string{"name"})

	r.MustRegister(requests, duration, predictions, predictionErrors, loads, loadDuration, served,
		collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return &Registry{
		reg:                r,
		HTTPRequests:       requests,
		HTTPDuration:       duration,
		Predictions:        predictions,
		PredictionErrors:   predictionErrors,
		ModelLoads:         loads,
		ModelLoadDuration:  loadDuration,
		ServedModelVersion: served,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
