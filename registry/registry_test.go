package registry

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/loiht2/getaround-pricing/backend/artifact"
	"github.com/loiht2/getaround-pricing/backend/config"
	"github.com/loiht2/getaround-pricing/backend/events"
	"github.com/loiht2/getaround-pricing/backend/preprocess"
	"github.com/loiht2/getaround-pricing/backend/regression"
	"github.com/loiht2/getaround-pricing/backend/repository"
	"github.com/loiht2/getaround-pricing/backend/schema"
	"github.com/loiht2/getaround-pricing/backend/storage"
)

type recordingPublisher struct {
	events []events.ModelVersionRegistered
	err    error
}

func (p *recordingPublisher) PublishModelVersion(_ context.Context, ev events.ModelVersionRegistered) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

// failingMeta runs the upload and then fails the row insert.
type failingMeta struct {
	MetadataStore
}

func (f failingMeta) RegisterModelVersion(_ context.Context, mv *config.ModelVersion, upload func(int) (int, error)) error {
	if _, err := upload(1); err != nil {
		return err
	}
	return errors.New("insert failed")
}

// stuckBlobs refuses to delete objects.
type stuckBlobs struct {
	BlobStore
}

func (stuckBlobs) Delete(context.Context, string) error { return errors.New("permission denied") }

type env struct {
	repo  *repository.Repository
	blobs *storage.LocalStore
	root  string
}

func newEnv(t *testing.T) env {
	t.Helper()
	dir := t.TempDir()
	db, err := gorm.Open(sqlite.Open(filepath.Join(dir, "registry.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(config.Tables()...))
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	root := filepath.Join(dir, "blobs")
	blobs, err := storage.NewLocalStore(root)
	require.NoError(t, err)
	return env{repo: repository.NewRepository(db), blobs: blobs, root: root}
}

func trainedArtifact(t *testing.T, price float64) *artifact.Artifact {
	t.Helper()
	a := schema.Defaults()
	b := schema.Defaults()
	b.Mileage, b.Fuel = 40000, "petrol"
	records := []schema.FeatureRecord{a, b}
	y := []float64{price, price + 20}

	p := preprocess.NewPipeline()
	require.NoError(t, p.Fit(records))
	X, err := p.Transform(records)
	require.NoError(t, err)
	m, err := regression.Fit(X, y)
	require.NoError(t, err)
	sig, err := schema.InferSignature(records, y)
	require.NoError(t, err)
	art, err := artifact.New(p, m, sig, artifact.Metadata{TrainedAt: time.Unix(0, 0).UTC()})
	require.NoError(t, err)
	return art
}

func TestParseReference(t *testing.T) {
	tests := []struct {
		in   string
		want Reference
		err  bool
	}{
		{in: "models:/price/3", want: Reference{Name: "price", Version: 3}},
		{in: "models:/price/latest", want: Reference{Name: "price"}},
		{in: "runs:/abc123/Car_Rental_Price_Predictor", want: Reference{RunID: "abc123", Path: "Car_Rental_Price_Predictor"}},
		{in: "models:/price", err: true},
		{in: "models:/price/0", err: true},
		{in: "models:/price/v2", err: true},
		{in: "runs:/abc", err: true},
		{in: "s3://bucket/key", err: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseReference(tt.in)
			if tt.err {
				assert.ErrorIs(t, err, ErrInvalidReference)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.in, got.String())
		})
	}

	ref, _ := ParseReference("models:/price/latest")
	assert.True(t, ref.Latest())
	assert.False(t, ref.Pinned())
	ref, _ = ParseReference("runs:/abc/model")
	assert.True(t, ref.Pinned())
}

func TestRegisterAndLoad(t *testing.T) {
	e := newEnv(t)
	pub := &recordingPublisher{}
	reg := New(e.repo, e.blobs, pub, nil)
	ctx := context.Background()

	first, err := reg.Register(ctx, "price", "run-1", trainedArtifact(t, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, first.Version)
	second, err := reg.Register(ctx, "price", "run-2", trainedArtifact(t, 200))
	require.NoError(t, err)
	assert.Equal(t, 2, second.Version)
	require.Len(t, pub.events, 2)
	assert.Equal(t, 2, pub.events[1].Version)

	latest, entry, err := reg.Load(ctx, Reference{Name: "price"})
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Version)
	assert.Equal(t, schema.InputSpecs(), entry.Signature.Inputs)
	got, err := latest.Predict(schema.Defaults())
	require.NoError(t, err)
	assert.InDelta(t, 200, got, 1e-6)

	// Version 1 is unchanged by the later registration.
	pinned, entry, err := reg.Load(ctx, Reference{Name: "price", Version: 1})
	require.NoError(t, err)
	assert.Equal(t, first.Digest, entry.Digest)
	got, err = pinned.Predict(schema.Defaults())
	require.NoError(t, err)
	assert.InDelta(t, 100, got, 1e-6)

	byRun, err := reg.Resolve(ctx, Reference{RunID: "run-1", Path: "model"})
	require.NoError(t, err)
	assert.Equal(t, 1, byRun.Version)

	versions, err := reg.ListVersions(ctx, "price")
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.Equal(t, 2, versions[0].Version)

	models, err := reg.ListModels(ctx)
	require.NoError(t, err)
	require.Len(t, models, 1)
}

func TestResolveMissing(t *testing.T) {
	e := newEnv(t)
	reg := New(e.repo, e.blobs, nil, nil)
	ctx := context.Background()

	_, err := reg.Resolve(ctx, Reference{Name: "price"})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Resolve(ctx, Reference{Name: "price", Version: 7})
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = reg.Resolve(ctx, Reference{RunID: "nope", Path: "model"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPublishFailureDoesNotFailRegistration(t *testing.T) {
	e := newEnv(t)
	reg := New(e.repo, e.blobs, &recordingPublisher{err: errors.New("broker down")}, nil)

	entry, err := reg.Register(context.Background(), "price", "run-1", trainedArtifact(t, 100))
	require.NoError(t, err)
	assert.Equal(t, 1, entry.Version)
}

func TestRegisterRemovesBlobWhenRowInsertFails(t *testing.T) {
	e := newEnv(t)
	reg := New(failingMeta{MetadataStore: e.repo}, e.blobs, nil, nil)
	ctx := context.Background()

	_, err := reg.Register(ctx, "price", "run-1", trainedArtifact(t, 100))
	require.Error(t, err)

	_, err = e.blobs.Get(ctx, blobKey("price", 1))
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = New(e.repo, e.blobs, nil, nil).Resolve(ctx, Reference{Name: "price"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRegisterReportsFailedCleanup(t *testing.T) {
	e := newEnv(t)
	reg := New(failingMeta{MetadataStore: e.repo}, stuckBlobs{BlobStore: e.blobs}, nil, nil)

	_, err := reg.Register(context.Background(), "price", "run-1", trainedArtifact(t, 100))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insert failed")
	assert.Contains(t, err.Error(), "remove orphaned artifact models/price/1/artifact.json")
}

func TestRegisterSkipsOrphanedBlob(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	require.NoError(t, e.blobs.Put(ctx, blobKey("price", 1), []byte("left over"), artifact.ContentType))

	reg := New(e.repo, e.blobs, nil, nil)
	entry, err := reg.Register(ctx, "price", "run-1", trainedArtifact(t, 100))
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Version)
	assert.Equal(t, blobKey("price", 2), entry.Source)

	_, loaded, err := reg.Load(ctx, Reference{Name: "price"})
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Version)

	next, err := reg.Register(ctx, "price", "run-2", trainedArtifact(t, 120))
	require.NoError(t, err)
	assert.Equal(t, 3, next.Version)
}

func TestFetchDetectsTamperedBytes(t *testing.T) {
	e := newEnv(t)
	reg := New(e.repo, e.blobs, nil, nil)
	ctx := context.Background()

	entry, err := reg.Register(ctx, "price", "run-1", trainedArtifact(t, 100))
	require.NoError(t, err)

	path := filepath.Join(e.root, filepath.FromSlash(entry.Source))
	require.NoError(t, os.Remove(path))
	require.NoError(t, os.WriteFile(path, []byte(`{"format":1}`), 0o644))

	_, _, err = reg.Load(ctx, entry.Reference())
	assert.ErrorIs(t, err, ErrDigestMismatch)

	require.NoError(t, os.Remove(path))
	_, _, err = reg.Load(ctx, entry.Reference())
	assert.ErrorIs(t, err, ErrNotFound)
}
