package cache

import (
	"sync"
	"time"

	"github.com/wonny/arena/internal/contracts"
	"github.com/wonny/arena/pkg/logger"
)

// sourcePriority ranks valuation sources (higher = better)
func sourcePriority(source string) int {
	switch source {
	case contracts.ValuationSourcePush:
		return 2
	case contracts.ValuationSourceSync:
		return 1
	default:
		return 0
	}
}

type accepted struct {
	reportedAt time.Time
	source     string
	seenAt     time.Time
}

// ValuationCache remembers the last accepted valuation per participant and
// rejects reports that arrive out of order.
// ⭐ SSOT: 평가 보고 순서 검증은 이 캐시에서만
type ValuationCache struct {
	mu     sync.Mutex
	last   map[string]accepted // competitionID/userID
	ttl    time.Duration
	now    func() time.Time
	logger *logger.Logger
}

// NewValuationCache creates a cache. Entries idle longer than ttl are dropped by CleanStale.
func NewValuationCache(ttl time.Duration, log *logger.Logger) *ValuationCache {
	return &ValuationCache{
		last:   make(map[string]accepted),
		ttl:    ttl,
		now:    time.Now,
		logger: log.Component("valuation_cache"),
	}
}

func key(competitionID, userID string) string {
	return competitionID + "/" + userID
}

// IsStale reports whether v is older than the last accepted valuation.
// A report without a timestamp is never stale. Equal timestamps are stale
// unless they come from a higher priority source.
func (c *ValuationCache) IsStale(v contracts.Valuation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.isStale(v)
}

// Accept records v unless it is stale and reports whether it was recorded
func (c *ValuationCache) Accept(v contracts.Valuation) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isStale(v) {
		c.logger.WithFields(map[string]interface{}{
			"competition_id": v.CompetitionID,
			"user_id":        v.UserID,
			"reported_at":    v.ReportedAt,
			"source":         v.Source,
		}).Debug("Rejected stale valuation")
		return false
	}

	k := key(v.CompetitionID, v.UserID)
	reportedAt := v.ReportedAt
	if existing, exists := c.last[k]; exists && reportedAt.IsZero() {
		reportedAt = existing.reportedAt
	}
	c.last[k] = accepted{reportedAt: reportedAt, source: v.Source, seenAt: c.now()}
	return true
}

// isStale expects mu to be held
func (c *ValuationCache) isStale(v contracts.Valuation) bool {
	existing, exists := c.last[key(v.CompetitionID, v.UserID)]
	if !exists || v.ReportedAt.IsZero() {
		return false
	}
	if v.ReportedAt.Before(existing.reportedAt) {
		return true
	}
	return v.ReportedAt.Equal(existing.reportedAt) && sourcePriority(v.Source) <= sourcePriority(existing.source)
}

// Forget drops the entry of one participant
func (c *ValuationCache) Forget(competitionID, userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.last, key(competitionID, userID))
}

// Len returns the number of tracked participants
func (c *ValuationCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}

// CleanStale removes entries not updated within ttl
func (c *ValuationCache) CleanStale() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	count := 0
	for k, a := range c.last {
		if now.Sub(a.seenAt) > c.ttl {
			delete(c.last, k)
			count++
		}
	}

	if count > 0 {
		c.logger.WithField("count", count).Info("Cleaned stale valuation entries")
	}
	return count
}
