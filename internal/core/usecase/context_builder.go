package usecase

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/kirillkom/knowledge-fusion-engine/internal/core/domain"
	"github.com/kirillkom/knowledge-fusion-engine/internal/core/ports"
)

// ContextBuilder assembles the per-request user context from the history
// store, fronted by a best-effort cache. It never fails the request: a store
// or cache outage yields an unpersonalized context with empty history.
type ContextBuilder struct {
	store  ports.ContextStore
	cache  ports.CacheService
	logger *slog.Logger

	historyWindow   int
	preferenceLimit int
	maxQueryLength  int
	cacheTTL        time.Duration
}

func NewContextBuilder(
	store ports.ContextStore,
	cache ports.CacheService,
	logger *slog.Logger,
	historyWindow, preferenceLimit, maxQueryLength int,
	cacheTTL time.Duration,
) *ContextBuilder {
	if historyWindow <= 0 {
		historyWindow = 10
	}
	if preferenceLimit <= 0 {
		preferenceLimit = 5
	}
	if maxQueryLength <= 0 {
		maxQueryLength = 2000
	}
	return &ContextBuilder{
		store:           store,
		cache:           cache,
		logger:          logger,
		historyWindow:   historyWindow,
		preferenceLimit: preferenceLimit,
		maxQueryLength:  maxQueryLength,
		cacheTTL:        cacheTTL,
	}
}

// TruncateQuery caps over-long queries at the configured maximum instead of
// rejecting them. The truncated query is what flows through the rest of the
// pipeline.
func (b *ContextBuilder) TruncateQuery(query string) string {
	runes := []rune(query)
	if len(runes) <= b.maxQueryLength {
		return query
	}
	return string(runes[:b.maxQueryLength])
}

// Build is read-only: the history append for this request happens after the
// response is returned, on a separate path.
func (b *ContextBuilder) Build(ctx context.Context, userID, sessionID, query string) domain.UserContext {
	history, personalized := b.loadHistory(ctx, userID)

	now := time.Now().UTC()
	uctx := domain.UserContext{
		UserID:            userID,
		SessionID:         sessionID,
		History:           history,
		DomainPreferences: derivePreferences(history, b.preferenceLimit),
		Personalized:      personalized,
		Metadata: map[string]string{
			"timestamp":         now.Format(time.RFC3339),
			"query_fingerprint": QueryFingerprint(userID, query, nil),
			"session_start":     sessionStart(history, sessionID, now).Format(time.RFC3339),
			"interaction_count": strconv.Itoa(len(history)),
		},
	}
	return uctx
}

func (b *ContextBuilder) loadHistory(ctx context.Context, userID string) ([]domain.InteractionRecord, bool) {
	cacheKey := "ctx:" + userID

	if b.cache != nil {
		raw, ok, err := b.cache.Get(ctx, cacheKey)
		if err != nil {
			b.logger.Warn("context_cache_read_failed", "user_id", userID, "error", err)
		} else if ok {
			var cached []domain.InteractionRecord
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, true
			}
			b.logger.Warn("context_cache_decode_failed", "user_id", userID, "error", err)
		}
	}

	history, err := b.store.ListRecentInteractions(ctx, userID, b.historyWindow)
	if err != nil {
		b.logger.Warn("context_store_unavailable", "user_id", userID, "error", err)
		return nil, false
	}

	if b.cache != nil && len(history) > 0 {
		if raw, err := json.Marshal(history); err == nil {
			if err := b.cache.Set(ctx, cacheKey, raw, b.cacheTTL); err != nil {
				b.logger.Warn("context_cache_write_failed", "user_id", userID, "error", err)
			}
		}
	}
	return history, true
}

// derivePreferences counts domain tags across history and returns the top
// preferenceLimit by frequency. Ties break by most-recent occurrence, which
// for newest-first history means the lower index wins.
func derivePreferences(history []domain.InteractionRecord, limit int) []string {
	if len(history) == 0 {
		return nil
	}

	counts := make(map[string]int)
	firstSeen := make(map[string]int)
	for i, record := range history {
		for _, dom := range record.Domains {
			counts[dom]++
			if _, ok := firstSeen[dom]; !ok {
				firstSeen[dom] = i
			}
		}
	}

	out := make([]string, 0, len(counts))
	for dom := range counts {
		out = append(out, dom)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if counts[out[i]] != counts[out[j]] {
			return counts[out[i]] > counts[out[j]]
		}
		return firstSeen[out[i]] < firstSeen[out[j]]
	})

	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

func sessionStart(history []domain.InteractionRecord, sessionID string, fallback time.Time) time.Time {
	start := fallback
	for _, record := range history {
		if record.SessionID == sessionID && record.CreatedAt.Before(start) {
			start = record.CreatedAt
		}
	}
	return start
}

// QueryFingerprint is the cache identity of a query. It is user-scoped:
// domain routing depends on the user's preference history, so two users
// asking the same question may get differently targeted answers and must
// never share a cache entry. Override domains enter the hash sorted, so
// permutations of the same override resolve to one entry.
func QueryFingerprint(userID, query string, domains []string) string {
	h := md5.New()
	h.Write([]byte(userID))
	h.Write([]byte("|"))
	h.Write([]byte(query))
	if len(domains) > 0 {
		ordered := append([]string(nil), domains...)
		sort.Strings(ordered)
		for _, dom := range ordered {
			h.Write([]byte("|"))
			h.Write([]byte(dom))
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
