package parking

import (
	"context"
	"errors"
	"fmt"
)

var eligibleSpotCategories = map[VehicleCategory][]SpotCategory{
	VehicleCar:   {SpotCompact, SpotLarge},
	VehicleBike:  {SpotBike},
	VehicleTruck: {SpotLarge},
}

// EligibleSpotCategories lists the spot categories a vehicle category may occupy.
// Handicapped spots are never allocated automatically.
func EligibleSpotCategories(category VehicleCategory) ([]SpotCategory, error) {
	categories, ok := eligibleSpotCategories[category]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVehicleCategory, category)
	}
	return append([]SpotCategory(nil), categories...), nil
}

// SpotAllocator selects and locks the first free eligible spot in floor, then
// code order. Contended candidates are skipped instead of waited on. It never
// changes spot status.
type SpotAllocator struct {
	batchSize int
}

// NewSpotAllocator builds an allocator reading batchSize candidates per page.
func NewSpotAllocator(batchSize int) SpotAllocator {
	if batchSize <= 0 {
		batchSize = defaultCandidateBatchSize
	}
	return SpotAllocator{batchSize: batchSize}
}

// Allocate returns a spot locked within txStore's transaction.
func (allocator SpotAllocator) Allocate(ctx context.Context, txStore Store, category VehicleCategory) (Spot, error) {
	categories, err := EligibleSpotCategories(category)
	if err != nil {
		return Spot{}, err
	}
	batchSize := allocator.batchSize
	if batchSize <= 0 {
		batchSize = defaultCandidateBatchSize
	}
	query := SpotCandidateQuery{Categories: categories, Limit: batchSize}
	for {
		candidates, err := txStore.ListSpotCandidates(ctx, query)
		if err != nil {
			return Spot{}, err
		}
		for _, candidate := range candidates {
			locked, err := txStore.LockSpot(ctx, candidate.ID, LockModeSkipLocked)
			if errors.Is(err, ErrSpotLocked) || errors.Is(err, ErrSpotNotFound) {
				continue
			}
			if err != nil {
				return Spot{}, err
			}
			if locked.Status != SpotAvailable {
				continue
			}
			return locked, nil
		}
		if len(candidates) < batchSize {
			return Spot{}, ErrNoSpotAvailable
		}
		last := candidates[len(candidates)-1]
		query.After = &SpotCursor{FloorNumber: last.FloorNumber, Code: last.Code}
	}
}
