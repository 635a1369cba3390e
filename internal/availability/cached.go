package availability

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/romiteld/eva-assistant-sub006/internal/cache"
	"github.com/romiteld/eva-assistant-sub006/internal/scheduling"
)

// CachedSource wraps a Source with a redis-backed cache keyed by party
// and horizon. Cache failures degrade to the upstream source; they are
// logged, never surfaced.
type CachedSource struct {
	src    Source
	cache  *cache.JSONCache
	logger *zap.Logger
}

func NewCachedSource(src Source, c *cache.JSONCache, logger *zap.Logger) *CachedSource {
	return &CachedSource{src: src, cache: c, logger: logger}
}

func (s *CachedSource) Windows(ctx context.Context, partyID string, horizonDays int) ([]scheduling.Window, error) {
	key := fmt.Sprintf("availability:%s:%d", partyID, horizonDays)

	var cached []scheduling.Window
	err := s.cache.Get(ctx, key, &cached)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, cache.ErrMiss) {
		s.logger.Warn("availability cache read failed", zap.String("party_id", partyID), zap.Error(err))
	}

	windows, err := s.src.Windows(ctx, partyID, horizonDays)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, key, windows); err != nil {
		s.logger.Warn("availability cache write failed", zap.String("party_id", partyID), zap.Error(err))
	}
	return windows, nil
}
