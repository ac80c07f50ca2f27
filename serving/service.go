package serving

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/loiht2/getaround-pricing/backend/artifact"
	"github.com/loiht2/getaround-pricing/backend/metrics"
	"github.com/loiht2/getaround-pricing/backend/registry"
	"github.com/loiht2/getaround-pricing/backend/schema"
)

// ErrArtifactUnavailable is returned when the configured model cannot be
// resolved or fetched. No fallback prediction is made in that case.
var ErrArtifactUnavailable = errors.New("model artifact unavailable")

// ArtifactSource resolves and fetches registered artifacts. *registry.Registry implements it.
type ArtifactSource interface {
	Resolve(ctx context.Context, ref registry.Reference) (registry.Entry, error)
	Fetch(ctx context.Context, e registry.Entry) (*artifact.Artifact, error)
}

// requestSignature describes the records Predict sends to an artifact
var requestSignature = schema.Signature{Inputs: schema.InputSpecs()}

type versionKey struct {
	name    string
	version int
}

// Service predicts rental prices with the artifact named by a reference.
// Fetched artifacts are cached by concrete version; a pinned reference is
// resolved once, "latest" is resolved on every call.
type Service struct {
	source  ArtifactSource
	ref     registry.Reference
	metrics *metrics.Registry
	logger  *slog.Logger

	mu      sync.RWMutex
	cache   map[versionKey]*artifact.Artifact
	pinned  *registry.Entry
	current registry.Entry
}

// New creates a prediction service. m may be nil.
func New(source ArtifactSource, ref registry.Reference, m *metrics.Registry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		source:  source,
		ref:     ref,
		metrics: m,
		logger:  logger,
		cache:   make(map[versionKey]*artifact.Artifact),
	}
}

// Reference returns the configured model reference
func (s *Service) Reference() registry.Reference { return s.ref }

// Current returns the entry used by the last successful load
func (s *Service) Current() (registry.Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current, s.current.Version != 0
}

// Predict returns the predicted daily price for record
func (s *Service) Predict(ctx context.Context, record schema.FeatureRecord) (float64, error) {
	if err := record.Validate(); err != nil {
		s.countError(metrics.ReasonInvalid)
		return 0, err
	}
	art, _, err := s.load(ctx)
	if err != nil {
		s.countError(metrics.ReasonUnavailable)
		return 0, err
	}
	v, err := art.Predict(record)
	if err != nil {
		if errors.Is(err, artifact.ErrNonFinite) {
			s.countError(metrics.ReasonNonFinite)
		}
		return 0, err
	}
	if s.metrics != nil {
		s.metrics.Predictions.Inc()
	}
	return v, nil
}

// Warm resolves the reference and loads its artifact into the cache
func (s *Service) Warm(ctx context.Context) (registry.Entry, error) {
	_, e, err := s.load(ctx)
	return e, err
}

func (s *Service) load(ctx context.Context) (*artifact.Artifact, registry.Entry, error) {
	entry, err := s.resolve(ctx)
	if err != nil {
		return nil, registry.Entry{}, fmt.Errorf("%w: %w", ErrArtifactUnavailable, err)
	}
	key := versionKey{entry.Name, entry.Version}

	s.mu.RLock()
	art, ok := s.cache[key]
	s.mu.RUnlock()
	if !ok {
		start := time.Now()
		art, err = s.source.Fetch(ctx, entry)
		if err != nil {
			return nil, registry.Entry{}, fmt.Errorf("%w: %w", ErrArtifactUnavailable, err)
		}
		if s.metrics != nil {
			s.metrics.ModelLoads.Inc()
			s.metrics.ModelLoadDuration.Observe(time.Since(start).Seconds())
		}
		s.logger.Info("model artifact loaded", "name", entry.Name, "version", entry.Version, "digest", entry.Digest)
		if problems := art.Signature.Compatible(requestSignature); len(problems) > 0 {
			s.logger.Warn("model signature does not match request schema",
				"name", entry.Name, "version", entry.Version, "problems", problems)
		}

		s.mu.Lock()
		if cached, ok := s.cache[key]; ok {
			art = cached
		} else {
			s.cache[key] = art
		}
		s.mu.Unlock()
	}

	s.mu.Lock()
	if s.current.Version != entry.Version || s.current.Name != entry.Name {
		s.current = entry
		if s.metrics != nil {
			s.metrics.ServedModelVersion.WithLabelValues(entry.Name).Set(float64(entry.Version))
		}
	}
	s.mu.Unlock()
	return art, entry, nil
}

func (s *Service) resolve(ctx context.Context) (registry.Entry, error) {
	if s.ref.Pinned() {
		s.mu.RLock()
		pinned := s.pinned
		s.mu.RUnlock()
		if pinned != nil {
			return *pinned, nil
		}
	}
	entry, err := s.source.Resolve(ctx, s.ref)
	if err != nil {
		return registry.Entry{}, err
	}
	if s.ref.Pinned() {
		s.mu.Lock()
		s.pinned = &entry
		s.mu.Unlock()
	}
	return entry, nil
}

func (s *Service) countError(reason string) {
	if s.metrics != nil {
		s.metrics.PredictionErrors.WithLabelValues(reason).Inc()
	}
}
