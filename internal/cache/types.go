package cache

import (
	"time"

	"github.com/raaihank/care-redactor/internal/redaction"
)

// CachedOutcome is a stored redaction outcome
type CachedOutcome struct {
	Outcome  redaction.Outcome `json:"outcome"`
	CachedAt time.Time         `json:"cached_at"`
	TTL      int64             `json:"ttl"`
}

// CacheStats represents cache performance statistics
type CacheStats struct {
	Hits        int64   `json:"hits"`
	Misses      int64   `json:"misses"`
	HitRate     float64 `json:"hit_rate"`
	TotalKeys   int64   `json:"total_keys"`
	MemoryUsage int64   `json:"memory_usage_bytes"`
}
