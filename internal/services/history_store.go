package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"shopsense/internal/models"
)

// Keyspace names the Redis keys one HistoryStore instance owns. Each
// instantiation (recommendations, conversations, recent views) gets its own
// prefixes so the namespaces never cross-contaminate.
type Keyspace struct {
	ListPrefix   string
	DetailPrefix string
	StatsPrefix  string
	PrefsPrefix  string // optional; empty disables preference storage
	EntryPrefix  string // entry ID prefix, e.g. "rec", "conv", "view"
	Action       string // default action type recorded in stats
	MaxRetained  int
	TTL          time.Duration
}

// HistoryStore is a bounded, time-ordered per-subject cache. It keeps a small
// sorted-set index of summaries (scored by creation time, trimmed by rank) and
// stores the full detail record under a separate key with its own expiry, so
// a detail can outlive or expire independently of its index entry.
//
// There is no transaction spanning the detail write and the index update. A
// crash between the two leaves an index entry whose detail is gone; GetDetail
// treats that as a normal miss.
type HistoryStore struct {
	redis      *redis.Client
	ks         Keyspace
	stats      *StatsService
	popularity *PopularityService // nil when this store feeds no leaderboard
	seq        atomic.Uint64
}

// NewHistoryStore creates a store over the given keyspace. popularity may be
// nil for stores whose payloads carry no free-text field.
func NewHistoryStore(rdb *redis.Client, ks Keyspace, stats *StatsService, popularity *PopularityService) *HistoryStore {
	return &HistoryStore{redis: rdb, ks: ks, stats: stats, popularity: popularity}
}

// NewRecommendationStore builds the store behind user_recommendations:*.
func NewRecommendationStore(rdb *redis.Client, maxRetained int, ttl time.Duration, stats *StatsService, popularity *PopularityService) *HistoryStore {
	return NewHistoryStore(rdb, Keyspace{
		ListPrefix:   "user_recommendations:",
		DetailPrefix: "recommendation_detail:",
		StatsPrefix:  "recommendation_stats:",
		PrefsPrefix:  "user_preferences:",
		EntryPrefix:  "rec",
		Action:       "recommendation",
		MaxRetained:  maxRetained,
		TTL:          ttl,
	}, stats, popularity)
}

// NewConversationStore builds the store behind user_conversations:*.
func NewConversationStore(rdb *redis.Client, maxRetained int, ttl time.Duration, stats *StatsService, popularity *PopularityService) *HistoryStore {
	return NewHistoryStore(rdb, Keyspace{
		ListPrefix:   "user_conversations:",
		DetailPrefix: "conversation_detail:",
		StatsPrefix:  "conversation_stats:",
		EntryPrefix:  "conv",
		Action:       "conversation",
		MaxRetained:  maxRetained,
		TTL:          ttl,
	}, stats, popularity)
}

// NewBehaviorStore builds the store behind user_recent_views:*.
func NewBehaviorStore(rdb *redis.Client, maxRetained int, ttl time.Duration, stats *StatsService) *HistoryStore {
	return NewHistoryStore(rdb, Keyspace{
		ListPrefix:   "user_recent_views:",
		DetailPrefix: "view_detail:",
		StatsPrefix:  "user_behavior_stats:",
		EntryPrefix:  "view",
		Action:       "view",
		MaxRetained:  maxRetained,
		TTL:          ttl,
	}, stats, nil)
}

// nextEntryID derives an ID from creation time plus a process-local sequence.
// The zero-padded sequence keeps IDs within the same millisecond ordered, which
// is what breaks score ties in the sorted set (members with equal scores sort
// lexicographically, and entry_id is the first summary field).
func (s *HistoryStore) nextEntryID(now time.Time) string {
	return fmt.Sprintf("%s_%d_%05d", s.ks.EntryPrefix, now.UnixMilli(), s.seq.Add(1)%100000)
}

// Append writes the detail record, adds the summary to the subject's ordered
// index, trims the index to MaxRetained, refreshes the sliding TTL and updates
// stats and (when freeText is non-empty) the popularity leaderboard.
//
// It returns the new entry ID, or an empty ID and an error when the backing
// store is unreachable. Callers treat that as non-fatal and continue without
// history.
func (s *HistoryStore) Append(ctx context.Context, subject string, sum models.Summary, detail any, freeText string) (string, error) {
	if subject == "" {
		subject = models.AnonymousSubject
	}

	now := time.Now()
	entryID := s.nextEntryID(now)

	sum.EntryID = entryID
	sum.Timestamp = now.Unix()
	sum.CreatedAt = now.Format(time.RFC3339)
	if sum.Action == "" {
		sum.Action = s.ks.Action
	}

	// Detail first: losing the detail while keeping the index entry is the
	// worse inconsistency, and GetDetail already tolerates the other order.
	if detail != nil {
		detailJSON, err := marshalDetail(detail, entryID, subject, now)
		if err != nil {
			return "", fmt.Errorf("failed to encode detail record: %w", err)
		}
		if err := s.redis.Set(ctx, s.ks.DetailPrefix+entryID, detailJSON, s.ks.TTL).Err(); err != nil {
			return "", fmt.Errorf("failed to write detail record: %w", err)
		}
	}

	member, err := json.Marshal(sum)
	if err != nil {
		return "", fmt.Errorf("failed to encode summary: %w", err)
	}

	listKey := s.ks.ListPrefix + subject
	pipe := s.redis.TxPipeline()
	pipe.ZAdd(ctx, listKey, redis.Z{Score: float64(sum.Timestamp), Member: string(member)})
	// Trim immediately after insert using the server-side rank operation, so
	// concurrent appends cannot race a read-modify-write window.
	pipe.ZRemRangeByRank(ctx, listKey, 0, int64(-(s.ks.MaxRetained + 1)))
	pipe.Expire(ctx, listKey, s.ks.TTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to update history index: %w", err)
	}

	if s.stats != nil {
		if err := s.stats.Record(ctx, s.ks.StatsPrefix+subject, sum.Action); err != nil {
			log.Printf("⚠️ [HISTORY] Failed to update stats for %s: %v", subject, err)
		}
	}
	if s.popularity != nil && freeText != "" {
		if err := s.popularity.Bump(ctx, freeText); err != nil {
			log.Printf("⚠️ [HISTORY] Failed to bump popularity: %v", err)
		}
	}

	return entryID, nil
}

// List returns up to limit summaries, most recent first. A missing subject
// yields an empty slice. A summary that fails to parse is skipped; one bad
// record never aborts the whole read.
func (s *HistoryStore) List(ctx context.Context, subject string, limit int) ([]models.Summary, error) {
	if subject == "" {
		subject = models.AnonymousSubject
	}
	if limit <= 0 {
		limit = s.ks.MaxRetained
	}

	members, err := s.redis.ZRevRange(ctx, s.ks.ListPrefix+subject, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history index: %w", err)
	}

	out := make([]models.Summary, 0, len(members))
	for _, m := range members {
		var sum models.Summary
		if err := json.Unmarshal([]byte(m), &sum); err != nil {
			log.Printf("⚠️ [HISTORY] Skipping malformed summary in %s: %v", s.ks.ListPrefix+subject, err)
			continue
		}
		out = append(out, sum)
	}
	return out, nil
}

// GetDetail fetches the full record for an entry. It is independent of the
// bounded index: a nil result with nil error means the detail has expired or
// never existed, which callers treat as a normal miss.
func (s *HistoryStore) GetDetail(ctx context.Context, entryID string) (json.RawMessage, error) {
	data, err := s.redis.Get(ctx, s.ks.DetailPrefix+entryID).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read detail record: %w", err)
	}
	return json.RawMessage(data), nil
}

// Delete removes an entry's detail record and scans the subject's index for
// the matching summary. Deleting an entry that does not exist is a no-op.
func (s *HistoryStore) Delete(ctx context.Context, entryID, subject string) error {
	if subject == "" {
		subject = models.AnonymousSubject
	}

	if err := s.redis.Del(ctx, s.ks.DetailPrefix+entryID).Err(); err != nil {
		return fmt.Errorf("failed to delete detail record: %w", err)
	}

	listKey := s.ks.ListPrefix + subject
	members, err := s.redis.ZRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to scan history index: %w", err)
	}
	for _, m := range members {
		var sum models.Summary
		if err := json.Unmarshal([]byte(m), &sum); err != nil {
			continue
		}
		if sum.EntryID == entryID {
			if err := s.redis.ZRem(ctx, listKey, m).Err(); err != nil {
				return fmt.Errorf("failed to remove summary: %w", err)
			}
			break
		}
	}
	return nil
}

// Clear removes all of a subject's entries, their detail records and the
// subject's stats and preference data. Idempotent.
func (s *HistoryStore) Clear(ctx context.Context, subject string) error {
	if subject == "" {
		subject = models.AnonymousSubject
	}

	listKey := s.ks.ListPrefix + subject
	members, err := s.redis.ZRange(ctx, listKey, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to scan history index: %w", err)
	}

	keys := make([]string, 0, len(members)+3)
	for _, m := range members {
		var sum models.Summary
		if err := json.Unmarshal([]byte(m), &sum); err != nil {
			continue
		}
		if sum.EntryID != "" {
			keys = append(keys, s.ks.DetailPrefix+sum.EntryID)
		}
	}
	keys = append(keys, listKey, s.ks.StatsPrefix+subject)
	if s.ks.PrefsPrefix != "" {
		keys = append(keys, s.ks.PrefsPrefix+subject)
	}

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// Search does a linear substring match over the bounded in-memory summaries.
// It never touches detail records; full-text search belongs to the search
// engine.
func (s *HistoryStore) Search(ctx context.Context, subject, keyword string, limit int) ([]models.Summary, error) {
	summaries, err := s.List(ctx, subject, s.ks.MaxRetained)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = len(summaries)
	}
	if keyword == "" {
		if len(summaries) > limit {
			summaries = summaries[:limit]
		}
		return summaries, nil
	}

	needle := strings.ToLower(keyword)
	matched := make([]models.Summary, 0, limit)
	for _, sum := range summaries {
		if len(matched) >= limit {
			break
		}
		if strings.Contains(strings.ToLower(sum.Text), needle) ||
			strings.Contains(strings.ToLower(sum.ProductName), needle) {
			matched = append(matched, sum)
		}
	}
	return matched, nil
}

// Stats returns the subject's aggregate counters.
func (s *HistoryStore) Stats(ctx context.Context, subject string) (models.SubjectStats, error) {
	if subject == "" {
		subject = models.AnonymousSubject
	}
	return s.stats.Get(ctx, s.ks.StatsPrefix+subject)
}

// SetPreferences stores the subject's preference blob with the store's TTL.
// A nil blob clears the preferences to an empty record.
func (s *HistoryStore) SetPreferences(ctx context.Context, subject string, prefs map[string]any) error {
	if s.ks.PrefsPrefix == "" {
		return fmt.Errorf("preference storage not enabled for this store")
	}
	if subject == "" {
		subject = models.AnonymousSubject
	}
	// Copy so the update timestamp never leaks into the caller's map, and a
	// nil map (JSON null bodies parse to one) stays a valid input.
	record := make(map[string]any, len(prefs)+1)
	for k, v := range prefs {
		record[k] = v
	}
	record["updated_at"] = time.Now().Format(time.RFC3339)
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode preferences: %w", err)
	}
	if err := s.redis.Set(ctx, s.ks.PrefsPrefix+subject, data, s.ks.TTL).Err(); err != nil {
		return fmt.Errorf("failed to write preferences: %w", err)
	}
	return nil
}

// Preferences returns the subject's preference blob, or nil when absent.
func (s *HistoryStore) Preferences(ctx context.Context, subject string) (map[string]any, error) {
	if s.ks.PrefsPrefix == "" {
		return nil, nil
	}
	if subject == "" {
		subject = models.AnonymousSubject
	}
	data, err := s.redis.Get(ctx, s.ks.PrefsPrefix+subject).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preferences: %w", err)
	}
	var prefs map[string]any
	if err := json.Unmarshal([]byte(data), &prefs); err != nil {
		return nil, fmt.Errorf("failed to decode preferences: %w", err)
	}
	return prefs, nil
}

// marshalDetail stamps the entry identity and server timestamps into the
// caller's detail value. The round-trip through a map keeps the store generic
// over the three payload schemas.
func marshalDetail(detail any, entryID, subject string, now time.Time) ([]byte, error) {
	raw, err := json.Marshal(detail)
	if err != nil {
		return nil, err
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	fields["entry_id"] = entryID
	fields["subject"] = subject
	fields["timestamp"] = now.Unix()
	fields["created_at"] = now.Format(time.RFC3339)
	return json.Marshal(fields)
}
