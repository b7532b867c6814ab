package feed

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"ewarn/internal/logger"
	"ewarn/internal/metrics"
	"ewarn/internal/models"
	"ewarn/internal/state"
)

// CachedSource serves records from a StateStore and falls through to the
// wrapped source on a miss. Cache failures never fail a read.
type CachedSource struct {
	next  Source
	store state.StateStore
	ttl   time.Duration
}

// NewCachedSource wraps next with a cache entry per disease
func NewCachedSource(next Source, store state.StateStore, ttl time.Duration) *CachedSource {
	return &CachedSource{next: next, store: store, ttl: ttl}
}

func recordsKey(d models.Disease) string { return "records:" + string(d) }
func latestKey(d models.Disease) string  { return "latest:" + string(d) }

// Records returns cached records or fetches and caches them
func (s *CachedSource) Records(ctx context.Context, disease models.Disease) ([]models.MonthlyRecord, error) {
	var records []models.MonthlyRecord
	if s.lookup(ctx, recordsKey(disease), &records) {
		return records, nil
	}

	records, err := s.next.Records(ctx, disease)
	if err != nil {
		return nil, err
	}
	s.save(ctx, recordsKey(disease), records)
	return records, nil
}

// LatestActual returns the cached reference period or fetches and caches it
func (s *CachedSource) LatestActual(ctx context.Context, disease models.Disease) (*models.Period, error) {
	var period *models.Period
	if s.lookup(ctx, latestKey(disease), &period) {
		return period, nil
	}

	period, err := s.next.LatestActual(ctx, disease)
	if err != nil {
		return nil, err
	}
	s.save(ctx, latestKey(disease), period)
	return period, nil
}

// Invalidate drops the cached entries of one disease
func (s *CachedSource) Invalidate(ctx context.Context, disease models.Disease) error {
	return s.store.Delete(ctx, recordsKey(disease), latestKey(disease))
}

func (s *CachedSource) lookup(ctx context.Context, key string, out any) bool {
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, state.ErrNotFound) {
		metrics.CacheLookups.WithLabelValues("miss").Inc()
		return false
	}
	if err == nil {
		err = json.Unmarshal(data, out)
	}
	if err != nil {
		metrics.CacheLookups.WithLabelValues("error").Inc()
		log := logger.WithComponent("feed_cache")
		log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		return false
	}
	metrics.CacheLookups.WithLabelValues("hit").Inc()
	return true
}

func (s *CachedSource) save(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err == nil {
		err = s.store.Set(ctx, key, data, s.ttl)
	}
	if err != nil {
		log := logger.WithComponent("feed_cache")
		log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
