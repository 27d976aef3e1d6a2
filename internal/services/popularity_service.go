package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"shopsense/internal/models"
)

// PopularityService keeps a global leaderboard of the most frequent free-text
// inputs in a Redis sorted set scored by frequency. The cap makes it an
// approximate top-K: when trimming, ties at the boundary are evicted in
// whatever order the set holds them.
type PopularityService struct {
	redis     *redis.Client
	key       string
	cap       int
	prefixLen int
	ttl       time.Duration
}

// NewPopularityService creates a leaderboard over a single key, keeping at
// most cap entries and normalizing inputs to prefixLen runes.
func NewPopularityService(rdb *redis.Client, key string, cap, prefixLen int, ttl time.Duration) *PopularityService {
	return &PopularityService{redis: rdb, key: key, cap: cap, prefixLen: prefixLen, ttl: ttl}
}

// Normalize maps case/whitespace variants of the same text onto one entry:
// trim, lowercase, truncate to the configured rune prefix.
func (p *PopularityService) Normalize(text string) string {
	normalized := strings.ToLower(strings.TrimSpace(text))
	runes := []rune(normalized)
	if len(runes) > p.prefixLen {
		normalized = string(runes[:p.prefixLen])
	}
	return normalized
}

// Bump increments the normalized text's frequency and trims the leaderboard
// to the cap by evicting the lowest-frequency entries.
func (p *PopularityService) Bump(ctx context.Context, text string) error {
	normalized := p.Normalize(text)
	if normalized == "" {
		return nil
	}

	pipe := p.redis.TxPipeline()
	pipe.ZIncrBy(ctx, p.key, 1, normalized)
	pipe.ZRemRangeByRank(ctx, p.key, 0, int64(-(p.cap + 1)))
	pipe.Expire(ctx, p.key, p.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to bump popularity: %w", err)
	}
	return nil
}

// Top returns up to limit entries in descending frequency order. Ties order
// arbitrarily.
func (p *PopularityService) Top(ctx context.Context, limit int) ([]models.PopularEntry, error) {
	if limit <= 0 {
		limit = p.cap
	}

	rows, err := p.redis.ZRevRangeWithScores(ctx, p.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read popularity leaderboard: %w", err)
	}

	out := make([]models.PopularEntry, 0, len(rows))
	for _, row := range rows {
		text, ok := row.Member.(string)
		if !ok {
			continue
		}
		out = append(out, models.PopularEntry{Text: text, Count: int64(row.Score)})
	}
	return out, nil
}
