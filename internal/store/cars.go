package store

import (
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/motorlot/motorlot-server/internal/domain"
)

// Key prefixes for car records.
const (
	carPrefix         = "car:"             // car:{carID} -> Car JSON
	carOwnerIdxPrefix = "idx:owners:cars:" // idx:owners:cars:{ownerID}:{carID} -> empty
)

// ErrCarNotFound is returned when a car does not exist in the store.
var ErrCarNotFound = errors.New("car not found")

func carKey(carID string) []byte {
	return []byte(carPrefix + carID)
}

func carOwnerIdxKey(ownerID, carID string) []byte {
	return []byte(carOwnerIdxPrefix + ownerID + ":" + carID)
}

// CreateCar persists a new car record and its owner index entry atomically.
func (s *Store) CreateCar(ctx context.Context, car *domain.Car) error {
	data, err := json.Marshal(car)
	if err != nil {
		return fmt.Errorf("failed to marshal car: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(carKey(car.ID), data); err != nil {
			return err
		}
		return txn.Set(carOwnerIdxKey(car.OwnerID, car.ID), nil)
	})
	if err != nil {
		return fmt.Errorf("failed to store car: %w", err)
	}

	if err := s.searchIndexer.IndexCar(ctx, car); err != nil {
		s.warn("Failed to index car", "car_id", car.ID, "error", err)
	}

	return nil
}

// GetCar retrieves a car by ID. Returns ErrCarNotFound if it does not exist.
func (s *Store) GetCar(ctx context.Context, carID string) (*domain.Car, error) {
	var car domain.Car
	err := s.get(carKey(carID), &car)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCarNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get car: %w", err)
	}
	return &car, nil
}

// ListCarsByOwner returns all cars belonging to the given owner, in index
// key order. Owners with no cars get an empty slice, not an error.
func (s *Store) ListCarsByOwner(ctx context.Context, ownerID string) ([]*domain.Car, error) {
	var cars []*domain.Car

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(carOwnerIdxPrefix + ownerID + ":")
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			carID := string(it.Item().Key()[len(prefix):])

			item, err := txn.Get(carKey(carID))
			if errors.Is(err, badger.ErrKeyNotFound) {
				// Dangling index entry, skip it.
				continue
			}
			if err != nil {
				return err
			}

			var car domain.Car
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &car)
			}); err != nil {
				return err
			}
			cars = append(cars, &car)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cars for owner %s: %w", ownerID, err)
	}

	if cars == nil {
		cars = []*domain.Car{}
	}
	return cars, nil
}

// ListAllCars returns every car record in the store. Used for full search
// reindexing at startup.
func (s *Store) ListAllCars(ctx context.Context) ([]*domain.Car, error) {
	var cars []*domain.Car

	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefix := []byte(carPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var car domain.Car
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &car)
			}); err != nil {
				return err
			}
			cars = append(cars, &car)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list cars: %w", err)
	}

	return cars, nil
}

// UpdateCar overwrites an existing car record. The owner never changes on
// update, so the owner index entry is left as is. Returns ErrCarNotFound
// if the car does not exist.
func (s *Store) UpdateCar(ctx context.Context, car *domain.Car) error {
	data, err := json.Marshal(car)
	if err != nil {
		return fmt.Errorf("failed to marshal car: %w", err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(carKey(car.ID)); err != nil {
			return err
		}
		return txn.Set(carKey(car.ID), data)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrCarNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to update car: %w", err)
	}

	if err := s.searchIndexer.IndexCar(ctx, car); err != nil {
		s.warn("Failed to index car", "car_id", car.ID, "error", err)
	}

	return nil
}

// DeleteCar removes a car record and its owner index entry atomically.
// Returns ErrCarNotFound if the car does not exist, which also makes a
// second delete of the same car fail the same way as any other missing car.
func (s *Store) DeleteCar(ctx context.Context, carID string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get(carKey(carID))
		if err != nil {
			return err
		}

		var car domain.Car
		if err := item.Value(func(val []byte) error {
			return json.Unmarshal(val, &car)
		}); err != nil {
			return err
		}

		if err := txn.Delete(carKey(carID)); err != nil {
			return err
		}
		return txn.Delete(carOwnerIdxKey(car.OwnerID, carID))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrCarNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to delete car: %w", err)
	}

	if err := s.searchIndexer.DeleteCar(ctx, carID); err != nil {
		s.warn("Failed to remove car from index", "car_id", carID, "error", err)
	}

	return nil
}

// CarExists reports whether a car record is present.
func (s *Store) CarExists(carID string) (bool, error) {
	return s.exists(carKey(carID))
}
