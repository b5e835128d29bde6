package cache

import (
	"context"
	"time"

	"github.com/CzarCx/qr-brain/internal/models"
	"github.com/CzarCx/qr-brain/internal/repository"

	"github.com/rs/zerolog/log"
)

// LabelRepository wraps a repository.LabelRepository with a cache-aside layer.
// Label definitions are cached; cut records are only cached once set, since an
// unset corte can change at any moment.
type LabelRepository struct {
	next  repository.LabelRepository
	cache Cache
	ttl   time.Duration
}

// NewLabelRepository decorates next with cache
func NewLabelRepository(next repository.LabelRepository, cache Cache, ttl time.Duration) *LabelRepository {
	return &LabelRepository{next: next, cache: cache, ttl: ttl}
}

func (r *LabelRepository) GetByCode(ctx context.Context, code string) (*models.Label, error) {
	key := LabelKey(code)

	var cached models.Label
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	} else if !IsMiss(err) && err != ErrDisabled {
		log.Warn().Err(err).Str("key", key).Msg("Label cache read failed")
	}

	label, err := r.next.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}

	r.store(ctx, key, label)
	return label, nil
}

func (r *LabelRepository) GetCut(ctx context.Context, codeI string) (*models.CutRecord, error) {
	key := CutKey(codeI)

	var cached models.CutRecord
	if err := r.cache.Get(ctx, key, &cached); err == nil {
		return &cached, nil
	}

	cut, err := r.next.GetCut(ctx, codeI)
	if err != nil {
		return nil, err
	}

	if cut.CorteEtiquetas != nil {
		r.store(ctx, key, cut)
	}
	return cut, nil
}

func (r *LabelRepository) MarkCut(ctx context.Context, codeI, operator string, at time.Time) (int64, error) {
	rows, err := r.next.MarkCut(ctx, codeI, operator, at)
	r.evict(ctx, CutKey(codeI))
	return rows, err
}

func (r *LabelRepository) TouchPrintDate(ctx context.Context, code string, at time.Time) (int64, error) {
	rows, err := r.next.TouchPrintDate(ctx, code, at)
	r.evict(ctx, LabelKey(code))
	return rows, err
}

func (r *LabelRepository) store(ctx context.Context, key string, value interface{}) {
	if err := r.cache.Set(ctx, key, value, r.ttl); err != nil && err != ErrDisabled {
		log.Warn().Err(err).Str("key", key).Msg("Label cache write failed")
	}
}

func (r *LabelRepository) evict(ctx context.Context, key string) {
	if err := r.cache.Delete(ctx, key); err != nil && err != ErrDisabled {
		log.Warn().Err(err).Str("key", key).Msg("Label cache eviction failed")
	}
}
