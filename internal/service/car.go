// Package service orchestrates car listing operations across the store,
// upload storage, and search index.
package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/motorlot/motorlot-server/internal/domain"
	apperrors "github.com/motorlot/motorlot-server/internal/errors"
	"github.com/motorlot/motorlot-server/internal/id"
	"github.com/motorlot/motorlot-server/internal/store"
	"github.com/motorlot/motorlot-server/internal/uploads"
)

// Searcher resolves a keyword to matching car IDs for one owner.
type Searcher interface {
	Search(ctx context.Context, ownerID, keyword string) ([]string, error)
}

// CarService orchestrates car listing operations.
// All mutations are owner-checked before anything is written.
type CarService struct {
	store   *store.Store
	uploads *uploads.Storage
	search  Searcher
	logger  *slog.Logger
}

// NewCarService creates a new car service.
func NewCarService(store *store.Store, uploads *uploads.Storage, search Searcher, logger *slog.Logger) *CarService {
	return &CarService{
		store:   store,
		uploads: uploads,
		search:  search,
		logger:  logger,
	}
}

// CreateCarInput holds everything needed to create a listing.
type CreateCarInput struct {
	Title       string
	Description string
	Tags        []string
	Files       []uploads.File
}

// Create ingests the attached files and persists a new listing for the
// owner. Files are ingested before the record is written, so a failed
// ingestion leaves no record behind. If the record write itself fails,
// the just-ingested files are cleaned up best-effort.
func (s *CarService) Create(ctx context.Context, ownerID string, input CreateCarInput) (*domain.Car, error) {
	refs, err := s.uploads.SaveAll(ownerID, input.Files)
	if err != nil {
		// A failed batch may still have written some files, drop them.
		s.removeRefs(refs)
		return nil, apperrors.Ingestion("failed to store attached images").WithCause(err)
	}

	carID, err := id.Generate("car")
	if err != nil {
		s.removeRefs(refs)
		return nil, apperrors.Internal("failed to generate listing ID").WithCause(err)
	}

	now := time.Now().UTC()
	car := &domain.Car{
		ID:          carID,
		OwnerID:     ownerID,
		Title:       input.Title,
		Description: input.Description,
		Tags:        input.Tags,
		Images:      refs,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if car.Tags == nil {
		car.Tags = []string{}
	}
	if car.Images == nil {
		car.Images = []string{}
	}

	if err := s.store.CreateCar(ctx, car); err != nil {
		s.removeRefs(refs)
		return nil, apperrors.Internal("failed to save listing").WithCause(err)
	}

	s.logger.Info("Created car listing", "car_id", car.ID, "owner_id", ownerID, "images", len(refs))
	return car, nil
}

// List returns all listings owned by the given user.
func (s *CarService) List(ctx context.Context, ownerID string) ([]*domain.Car, error) {
	cars, err := s.store.ListCarsByOwner(ctx, ownerID)
	if err != nil {
		return nil, apperrors.Internal("failed to list cars").WithCause(err)
	}
	return cars, nil
}

// Get returns a single listing by ID. Any caller who knows the ID may
// read it, reads are not owner-checked.
func (s *CarService) Get(ctx context.Context, carID string) (*domain.Car, error) {
	car, err := s.store.GetCar(ctx, carID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	return car, nil
}

// Update applies a partial update to an owned listing, appending any
// newly attached images. The listing is fetched and owner-checked before
// any file is ingested or any field is changed. Nil update fields keep
// their current values, and existing images are never removed.
func (s *CarService) Update(ctx context.Context, ownerID, carID string, update domain.CarUpdate, files []uploads.File) (*domain.Car, error) {
	car, err := s.store.GetCar(ctx, carID)
	if err != nil {
		return nil, mapStoreErr(err)
	}
	if car.OwnerID != ownerID {
		return nil, apperrors.Unauthorized("not authorized to modify this listing")
	}

	refs, err := s.uploads.SaveAll(ownerID, files)
	if err != nil {
		// A failed batch may still have written some files, drop them.
		s.removeRefs(refs)
		return nil, apperrors.Ingestion("failed to store attached images").WithCause(err)
	}

	update.Apply(car)
	car.AppendImages(refs)
	car.UpdatedAt = time.Now().UTC()

	if err := s.store.UpdateCar(ctx, car); err != nil {
		s.removeRefs(refs)
		return nil, mapStoreErr(err)
	}

	s.logger.Info("Updated car listing", "car_id", carID, "owner_id", ownerID, "new_images", len(refs))
	return car, nil
}

// Delete removes an owned listing and its stored images. Once deleted
// the ID is gone for good, a second delete reports not found.
func (s *CarService) Delete(ctx context.Context, ownerID, carID string) error {
	car, err := s.store.GetCar(ctx, carID)
	if err != nil {
		return mapStoreErr(err)
	}
	if car.OwnerID != ownerID {
		return apperrors.Unauthorized("not authorized to modify this listing")
	}

	if err := s.store.DeleteCar(ctx, carID); err != nil {
		return mapStoreErr(err)
	}

	s.removeRefs(car.Images)

	s.logger.Info("Deleted car listing", "car_id", carID, "owner_id", ownerID)
	return nil
}

// Search returns the owner's listings matching the keyword. A listing
// matches when the keyword is a case-insensitive substring of its title
// or description, or exactly equals one of its tags. An empty keyword
// returns everything the owner has.
func (s *CarService) Search(ctx context.Context, ownerID, keyword string) ([]*domain.Car, error) {
	ids, err := s.search.Search(ctx, ownerID, keyword)
	if err != nil {
		return nil, apperrors.Internal("search failed").WithCause(err)
	}

	cars := make([]*domain.Car, 0, len(ids))
	for _, carID := range ids {
		car, err := s.store.GetCar(ctx, carID)
		if err != nil {
			// Index can briefly lag the store, skip stale hits.
			if apperrors.Is(err, store.ErrCarNotFound) {
				continue
			}
			return nil, apperrors.Internal("failed to load search result").WithCause(err)
		}
		cars = append(cars, car)
	}
	return cars, nil
}

// removeRefs deletes ingested files best-effort after a failed or
// destructive operation.
func (s *CarService) removeRefs(refs []string) {
	for _, ref := range refs {
		if err := s.uploads.Remove(ref); err != nil {
			s.logger.Warn("Failed to remove uploaded file", "ref", ref, "error", err)
		}
	}
}

func mapStoreErr(err error) error {
	if apperrors.Is(err, store.ErrCarNotFound) {
		return apperrors.NotFound("car not found")
	}
	return apperrors.Internal("storage operation failed").WithCause(err)
}
