package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/go-multierror"

	"github.com/loiht2/getaround-pricing/backend/artifact"
	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/events"
	"github.com/loiht2/getaround-pricing/backend/repository"
	"github.com/loiht2/getaround-pricing/backend/schema"
	"github.com/loiht2/getaround-pricing/backend/storage"
)

// ArtifactFile is the object name of an artifact inside its version prefix.
const ArtifactFile = "artifact.json"

// maxTakenKeys bounds how many versions Register skips over when their blob
// key is already occupied by bytes left behind by an earlier failed attempt.
const maxTakenKeys = 8

// StatusReady marks a version whose bytes and metadata are both written.
const StatusReady = "READY"

var (
	ErrNotFound         = errors.New("model version not found")
	ErrDigestMismatch   = errors.New("artifact digest mismatch")
	ErrInvalidReference = errors.New("invalid model reference")
)

// MetadataStore persists model version rows. *repository.Repository implements it.
type MetadataStore interface {
	RegisterModelVersion(ctx context.Context, mv *config.ModelVersion, upload func(version int) (int, error)) error
	GetModelVersion(ctx context.Context, name string, version int) (*config.ModelVersion, error)
	GetLatestModelVersion(ctx context.Context, name string) (*config.ModelVersion, error)
	GetModelVersionByRun(ctx context.Context, runID string) (*config.ModelVersion, error)
	ListModelVersions(ctx context.Context, name string) ([]config.ModelVersion, error)
	ListRegisteredModels(ctx context.Context) ([]config.RegisteredModel, error)
}

// BlobStore persists artifact bytes. Put must refuse to replace an object.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// Entry is a resolved registry entry.
type Entry struct {
	Name      string
	Version   int
	RunID     string
	Source    string
	Digest    string
	SizeBytes int64
	Signature schema.Signature
	CreatedAt time.Time
}

// Reference returns the pinned reference of the entry.
func (e Entry) Reference() Reference { return Reference{Name: e.Name, Version: e.Version} }

// Registry registers and loads versioned artifacts.
type Registry struct {
	meta      MetadataStore
	blobs     BlobStore
	publisher events.Publisher
	logger    *slog.Logger
}

// New creates a registry. publisher may be nil.
func New(meta MetadataStore, blobs BlobStore, publisher events.Publisher, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{meta: meta, blobs: blobs, publisher: publisher, logger: logger}
}

func blobKey(name string, version int) string {
	return fmt.Sprintf("models/%s/%d/%s", name, version, ArtifactFile)
}

// Register stores art as the next version of name. A version whose blob key is
// already occupied is skipped. On any failure no version is created, and bytes
// already uploaded for the attempt are removed; a failed removal is part of the
// returned error.
func (r *Registry) Register(ctx context.Context, name, runID string, art *artifact.Artifact) (Entry, error) {
	if name == "" {
		return Entry{}, errors.New("model name is required")
	}
	data, err := artifact.Encode(art)
	if err != nil {
		return Entry{}, err
	}
	sig, err := json.Marshal(art.Signature)
	if err != nil {
		return Entry{}, fmt.Errorf("marshal signature: %w", err)
	}

	mv := &config.ModelVersion{
		Name:      name,
		RunID:     runID,
		Digest:    artifact.Digest(data),
		SizeBytes: int64(len(data)),
		Signature: string(sig),
		Status:    StatusReady,
	}
	uploaded := ""
	err = r.meta.RegisterModelVersion(ctx, mv, func(version int) (int, error) {
		for v := version; ; v++ {
			key := blobKey(name, v)
			err := r.blobs.Put(ctx, key, data, artifact.ContentType)
			if err == nil {
				uploaded = key
				mv.Source = key
				return v, nil
			}
			if !errors.Is(err, storage.ErrExists) || v-version >= maxTakenKeys {
				return 0, fmt.Errorf("upload artifact: %w", err)
			}
			r.logger.Warn("artifact key already taken, skipping version", "key", key)
		}
	})
	if err != nil {
		err = fmt.Errorf("register %s: %w", name, err)
		if uploaded != "" {
			if derr := r.blobs.Delete(context.WithoutCancel(ctx), uploaded); derr != nil {
				r.logger.Error("failed to remove orphaned artifact", "key", uploaded, "error", derr)
				err = multierror.Append(err, fmt.Errorf("remove orphaned artifact %s: %w", uploaded, derr))
			}
		}
		return Entry{}, err
	}

	entry := toEntry(mv, art.Signature)
	r.logger.Info("model version registered", "name", entry.Name, "version", entry.Version, "run_id", runID, "digest", entry.Digest)

	if r.publisher != nil {
		ev := events.ModelVersionRegistered{
			Name:         entry.Name,
			Version:      entry.Version,
			RunID:        entry.RunID,
			Digest:       entry.Digest,
			RegisteredAt: entry.CreatedAt,
		}
		if err := r.publisher.PublishModelVersion(ctx, ev); err != nil {
			r.logger.Warn("failed to publish registration event", "name", entry.Name, "version", entry.Version, "error", err)
		}
	}
	return entry, nil
}

// Resolve maps a reference to its registry entry without loading the bytes.
func (r *Registry) Resolve(ctx context.Context, ref Reference) (Entry, error) {
	var (
		mv  *config.ModelVersion
		err error
	)
	switch {
	case ref.RunID != "":
		mv, err = r.meta.GetModelVersionByRun(ctx, ref.RunID)
	case ref.Version == 0:
		mv, err = r.meta.GetLatestModelVersion(ctx, ref.Name)
	default:
		mv, err = r.meta.GetModelVersion(ctx, ref.Name, ref.Version)
	}
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return Entry{}, fmt.Errorf("%s: %w", ref, ErrNotFound)
		}
		return Entry{}, fmt.Errorf("resolve %s: %w", ref, err)
	}
	return decodeEntry(mv)
}

// Fetch loads and verifies the artifact of an entry.
func (r *Registry) Fetch(ctx context.Context, e Entry) (*artifact.Artifact, error) {
	data, err := r.blobs.Get(ctx, e.Source)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%s: artifact bytes missing: %w", e.Reference(), ErrNotFound)
		}
		return nil, fmt.Errorf("fetch %s: %w", e.Reference(), err)
	}
	if got := artifact.Digest(data); got != e.Digest {
		return nil, fmt.Errorf("%s: got %s want %s: %w", e.Reference(), got, e.Digest, ErrDigestMismatch)
	}
	return artifact.Decode(data)
}

// Load resolves ref and fetches its artifact.
func (r *Registry) Load(ctx context.Context, ref Reference) (*artifact.Artifact, Entry, error) {
	e, err := r.Resolve(ctx, ref)
	if err != nil {
		return nil, Entry{}, err
	}
	a, err := r.Fetch(ctx, e)
	if err != nil {
		return nil, Entry{}, err
	}
	return a, e, nil
}

// ListVersions lists the versions of a model, newest first.
func (r *Registry) ListVersions(ctx context.Context, name string) ([]Entry, error) {
	rows, err := r.meta.ListModelVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(rows))
	for i := range rows {
		e, err := decodeEntry(&rows[i])
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// ListModels lists registered models.
func (r *Registry) ListModels(ctx context.Context) ([]config.RegisteredModel, error) {
	return r.meta.ListRegisteredModels(ctx)
}

func decodeEntry(mv *config.ModelVersion) (Entry, error) {
	var sig schema.Signature
	if mv.Signature != "" {
		if err := json.Unmarshal([]byte(mv.Signature), &sig); err != nil {
			return Entry{}, fmt.Errorf("decode signature of %s v%d: %w", mv.Name, mv.Version, err)
		}
	}
	return toEntry(mv, sig), nil
}

func toEntry(mv *config.ModelVersion, sig schema.Signature) Entry {
	return Entry{
		Name:      mv.Name,
		Version:   mv.Version,
		RunID:     mv.RunID,
		Source:    mv.Source,
		Digest:    mv.Digest,
		SizeBytes: mv.SizeBytes,
		Signature: sig,
		CreatedAt: mv.CreatedAt,
	}
}
