package services

import (
	"context"
	"log/slog"

	"feeledger/internal/cache"
	"feeledger/internal/core"
	"feeledger/internal/storage"
)

const feeTypesCacheKey = "fee_types:all"

// FeeTypeService manages the fee catalog. The full list is small and read
// on every fee form, so it is served from cache until the next create.
type FeeTypeService struct {
	repo  *storage.Repository
	cache cache.Cache[[]core.FeeType]
	now   Clock
}

// NewFeeTypeService accepts a nil cache, in which case every List hits the
// database.
func NewFeeTypeService(repo *storage.Repository, c cache.Cache[[]core.FeeType]) *FeeTypeService {
	return &FeeTypeService{repo: repo, cache: c, now: utcNow}
}

func (s *FeeTypeService) List(ctx context.Context) ([]core.FeeType, error) {
	if s.cache != nil {
		if cached, ok := s.cache.Get(feeTypesCacheKey); ok {
			return cloneFeeTypes(cached), nil
		}
	}

	types, err := s.repo.ListFeeTypes(ctx)
	if err != nil {
		return nil, translate(err, "", "")
	}
	if s.cache != nil {
		s.cache.Set(feeTypesCacheKey, cloneFeeTypes(types))
	}
	return cloneFeeTypes(types), nil
}

// cloneFeeTypes copies so callers never share the cached slice. The copy is
// never nil, which keeps an empty catalog encoded as [].
func cloneFeeTypes(types []core.FeeType) []core.FeeType {
	out := make([]core.FeeType, len(types))
	copy(out, types)
	return out
}

func (s *FeeTypeService) Create(ctx context.Context, in core.FeeTypeInput) (core.FeeType, error) {
	in = in.Normalize()
	if err := core.Validate(in); err != nil {
		return core.FeeType{}, err
	}

	var created core.FeeType
	err := s.repo.WithTx(ctx, func(q *storage.Queries) error {
		var err error
		created, err = q.CreateFeeType(ctx, in, s.now())
		return err
	})
	if err != nil {
		return core.FeeType{}, translate(err, "", msgDuplicateType)
	}
	if s.cache != nil {
		s.cache.Delete(feeTypesCacheKey)
	}

	slog.InfoContext(ctx, "Fee type created", "fee_type_id", created.ID, "name", created.Name)
	return created, nil
}
