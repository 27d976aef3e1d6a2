package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"shopsense/internal/models"
)

// StatsService maintains per-subject activity counters in a Redis hash.
// Counters reflect activity volume (appends), not current cache contents:
// eviction from the bounded history list never decrements them.
type StatsService struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewStatsService creates a stats aggregator with the given retention window.
func NewStatsService(rdb *redis.Client, ttl time.Duration) *StatsService {
	return &StatsService{redis: rdb, ttl: ttl}
}

// Record increments the total counter and the per-action counter in one
// pipeline, stamps last_active and refreshes the sliding TTL. Both increments
// go through the same Exec, so either both land or the call fails cleanly.
func (s *StatsService) Record(ctx context.Context, statsKey, action string) error {
	pipe := s.redis.TxPipeline()
	pipe.HIncrBy(ctx, statsKey, "total_behaviors", 1)
	pipe.HIncrBy(ctx, statsKey, "total_"+action+"s", 1)
	pipe.HSet(ctx, statsKey, "last_active", time.Now().Format(time.RFC3339))
	pipe.Expire(ctx, statsKey, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record stats: %w", err)
	}
	return nil
}

// Get returns the subject's counters. A missing key yields zero-value stats,
// not an error.
func (s *StatsService) Get(ctx context.Context, statsKey string) (models.SubjectStats, error) {
	stats := models.SubjectStats{Actions: map[string]int64{}}

	fields, err := s.redis.HGetAll(ctx, statsKey).Result()
	if err != nil {
		return stats, fmt.Errorf("failed to read stats: %w", err)
	}

	for field, value := range fields {
		switch {
		case field == "total_behaviors":
			stats.TotalBehaviors, _ = strconv.ParseInt(value, 10, 64)
		case field == "last_active":
			stats.LastActive = value
		case strings.HasPrefix(field, "total_") && strings.HasSuffix(field, "s"):
			action := strings.TrimSuffix(strings.TrimPrefix(field, "total_"), "s")
			count, _ := strconv.ParseInt(value, 10, 64)
			stats.Actions[action] = count
		}
	}
	return stats, nil
}
