package service

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/motorlot/motorlot-server/internal/domain"
	apperrors "github.com/motorlot/motorlot-server/internal/errors"
	"github.com/motorlot/motorlot-server/internal/search"
	"github.com/motorlot/motorlot-server/internal/store"
	"github.com/motorlot/motorlot-server/internal/uploads"
)

type testEnv struct {
	svc        *CarService
	store      *store.Store
	uploadsDir string
}

func setupTestService(t *testing.T) (*testEnv, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "car-service-test-*")
	require.NoError(t, err)

	st, err := store.New(filepath.Join(tmpDir, "db"), nil)
	require.NoError(t, err)

	uploadsDir := filepath.Join(tmpDir, "uploads")
	up, err := uploads.NewStorage(uploadsDir)
	require.NoError(t, err)

	idx, err := search.NewSearchIndex(search.Options{DataPath: filepath.Join(tmpDir, "search")})
	require.NoError(t, err)
	st.SetSearchIndexer(idx)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewCarService(st, up, idx, logger)

	cleanup := func() {
		_ = st.Close()
		_ = idx.Close()
		_ = os.RemoveAll(tmpDir)
	}

	return &testEnv{svc: svc, store: st, uploadsDir: uploadsDir}, cleanup
}

func strPtr(s string) *string { return &s }

func TestCreate(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	car, err := env.svc.Create(ctx, "user-1", CreateCarInput{
		Title:       "2014 Honda Civic",
		Description: "daily driver",
		Tags:        []string{"sedan"},
		Files: []uploads.File{
			{Name: "front.jpg", Data: []byte("front")},
			{Name: "rear.png", Data: []byte("rear")},
		},
	})
	require.NoError(t, err)
	assert.NotEmpty(t, car.ID)
	assert.Equal(t, "user-1", car.OwnerID)
	require.Len(t, car.Images, 2)
	assert.Contains(t, car.Images[0], ".jpg")
	assert.Contains(t, car.Images[1], ".png")

	// Record is persisted and owned.
	cars, err := env.svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, car.ID, cars[0].ID)
}

func TestCreate_NoFiles(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	car, err := env.svc.Create(context.Background(), "user-1", CreateCarInput{Title: "Civic"})
	require.NoError(t, err)
	assert.NotNil(t, car.Images)
	assert.Empty(t, car.Images)
	assert.NotNil(t, car.Tags)
}

func TestCreate_IngestionFailureLeavesNoRecord(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	// A regular file at the owner's namespace path makes ingestion fail.
	require.NoError(t, os.WriteFile(filepath.Join(env.uploadsDir, "user-1"), []byte("x"), 0o644))

	_, err := env.svc.Create(ctx, "user-1", CreateCarInput{
		Title: "Civic",
		Files: []uploads.File{{Name: "front.jpg", Data: []byte("front")}},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIngestion)

	cars, err := env.svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cars)
}

func TestCreate_PartialIngestionLeavesNoFiles(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	// Second file has no data, so the batch fails after the first write.
	_, err := env.svc.Create(ctx, "user-1", CreateCarInput{
		Title: "Civic",
		Files: []uploads.File{
			{Name: "front.jpg", Data: []byte("front")},
			{Name: "rear.jpg", Data: nil},
		},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIngestion)

	// The file written before the failure must not stick around.
	entries, readErr := os.ReadDir(filepath.Join(env.uploadsDir, "user-1"))
	if readErr == nil {
		assert.Empty(t, entries)
	}

	cars, err := env.svc.List(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, cars)
}

func TestGet_NotFound(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	_, err := env.svc.Get(context.Background(), "car-missing")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestGet_AnyCallerCanRead(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{Title: "Civic"})
	require.NoError(t, err)

	// Reads are not owner-scoped.
	got, err := env.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.ID, got.ID)
}

func TestList_OwnerScoped(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	_, err := env.svc.Create(ctx, "user-1", CreateCarInput{Title: "Civic"})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, "user-2", CreateCarInput{Title: "Golf"})
	require.NoError(t, err)

	cars, err := env.svc.List(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "Civic", cars[0].Title)
}

func TestUpdate_PartialFieldsRetained(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{
		Title:       "Civic",
		Description: "one owner",
		Tags:        []string{"sedan"},
	})
	require.NoError(t, err)

	updated, err := env.svc.Update(ctx, "user-1", created.ID, domain.CarUpdate{
		Title: strPtr("Civic Type R"),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "Civic Type R", updated.Title)
	assert.Equal(t, "one owner", updated.Description)
	assert.Equal(t, []string{"sedan"}, updated.Tags)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt) || updated.UpdatedAt.Equal(created.UpdatedAt))
}

func TestUpdate_AppendsImages(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{
		Title: "Civic",
		Files: []uploads.File{{Name: "front.jpg", Data: []byte("front")}},
	})
	require.NoError(t, err)
	require.Len(t, created.Images, 1)

	updated, err := env.svc.Update(ctx, "user-1", created.ID, domain.CarUpdate{}, []uploads.File{
		{Name: "interior.jpg", Data: []byte("interior")},
	})
	require.NoError(t, err)

	require.Len(t, updated.Images, 2)
	assert.Equal(t, created.Images[0], updated.Images[0])
}

func TestUpdate_NotOwner(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{Title: "Civic"})
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, "user-2", created.ID, domain.CarUpdate{
		Title: strPtr("stolen"),
	}, nil)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	// Record untouched.
	got, err := env.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "Civic", got.Title)
}

func TestUpdate_NotFound(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	_, err := env.svc.Update(context.Background(), "user-1", "car-missing", domain.CarUpdate{}, nil)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestUpdate_OwnerCheckBeforeIngestion(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{Title: "Civic"})
	require.NoError(t, err)

	// The non-owner's files must never be ingested.
	_, err = env.svc.Update(ctx, "user-2", created.ID, domain.CarUpdate{}, []uploads.File{
		{Name: "front.jpg", Data: []byte("front")},
	})
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, statErr := os.Stat(filepath.Join(env.uploadsDir, "user-2"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestUpdate_PartialIngestionLeavesNoFiles(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{
		Title: "Civic",
		Files: []uploads.File{{Name: "front.jpg", Data: []byte("front")}},
	})
	require.NoError(t, err)
	require.Len(t, created.Images, 1)

	_, err = env.svc.Update(ctx, "user-1", created.ID, domain.CarUpdate{}, []uploads.File{
		{Name: "interior.jpg", Data: []byte("interior")},
		{Name: "trunk.jpg", Data: nil},
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrIngestion)

	// Only the original image survives, the half-ingested batch is gone.
	entries, err := os.ReadDir(filepath.Join(env.uploadsDir, "user-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	got, err := env.svc.Get(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, created.Images, got.Images)
}

func TestDelete(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{
		Title: "Civic",
		Files: []uploads.File{{Name: "front.jpg", Data: []byte("front")}},
	})
	require.NoError(t, err)

	require.NoError(t, env.svc.Delete(ctx, "user-1", created.ID))

	_, err = env.svc.Get(ctx, created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	// Deletion is terminal.
	err = env.svc.Delete(ctx, "user-1", created.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestDelete_NotOwner(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{Title: "Civic"})
	require.NoError(t, err)

	err = env.svc.Delete(ctx, "user-2", created.ID)
	assert.ErrorIs(t, err, apperrors.ErrUnauthorized)

	_, err = env.svc.Get(ctx, created.ID)
	require.NoError(t, err)
}

func TestSearch(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	_, err := env.svc.Create(ctx, "user-1", CreateCarInput{
		Title:       "2018 Chevrolet Camaro",
		Description: "garage kept",
		Tags:        []string{"coupe"},
	})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, "user-1", CreateCarInput{
		Title: "2014 Honda Civic",
		Tags:  []string{"sedan"},
	})
	require.NoError(t, err)
	_, err = env.svc.Create(ctx, "user-2", CreateCarInput{Title: "Chevrolet Impala"})
	require.NoError(t, err)

	// Case-insensitive substring on title.
	cars, err := env.svc.Search(ctx, "user-1", "CAMARO")
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "2018 Chevrolet Camaro", cars[0].Title)

	// Substring on description.
	cars, err = env.svc.Search(ctx, "user-1", "garage")
	require.NoError(t, err)
	require.Len(t, cars, 1)

	// Exact tag.
	cars, err = env.svc.Search(ctx, "user-1", "sedan")
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "2014 Honda Civic", cars[0].Title)

	// Other owners' cars never leak in.
	cars, err = env.svc.Search(ctx, "user-1", "chevrolet")
	require.NoError(t, err)
	require.Len(t, cars, 1)
	assert.Equal(t, "user-1", cars[0].OwnerID)
}

func TestSearch_ReflectsUpdates(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{Title: "Honda Civic"})
	require.NoError(t, err)

	_, err = env.svc.Update(ctx, "user-1", created.ID, domain.CarUpdate{
		Title: strPtr("Honda Accord"),
	}, nil)
	require.NoError(t, err)

	cars, err := env.svc.Search(ctx, "user-1", "civic")
	require.NoError(t, err)
	assert.Empty(t, cars)

	cars, err = env.svc.Search(ctx, "user-1", "accord")
	require.NoError(t, err)
	require.Len(t, cars, 1)
}

func TestSearch_ReflectsDeletes(t *testing.T) {
	env, cleanup := setupTestService(t)
	defer cleanup()

	ctx := context.Background()

	created, err := env.svc.Create(ctx, "user-1", CreateCarInput{Title: "Honda Civic"})
	require.NoError(t, err)
	require.NoError(t, env.svc.Delete(ctx, "user-1", created.ID))

	cars, err := env.svc.Search(ctx, "user-1", "civic")
	require.NoError(t, err)
	assert.Empty(t, cars)
}
