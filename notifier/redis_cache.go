package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/datalith/dq-check-workflow/report"
)

// LatestScoreCache keeps the most recent quality outcome per table in
// Redis so dashboards can read current state without listing the report
// bucket.
type LatestScoreCache struct {
	client    *redis.Client
	keyPrefix string
}

type RedisConfig struct {
	Address   string
	Password  string
	DB        int
	KeyPrefix string
}

func NewLatestScoreCache(cfg RedisConfig) (*LatestScoreCache, error) {
	if cfg.Address == "" {
		return nil, fmt.Errorf("missing redis address in config")
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = "dq:latest:"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %v", err)
	}

	return &LatestScoreCache{client: client, keyPrefix: cfg.KeyPrefix}, nil
}

// Publish stores the outcome under dq:latest:{database}.{table} and keeps
// a score history in a sorted set keyed by run timestamp.
func (c *LatestScoreCache) Publish(ctx context.Context, rep *report.QualityReport, location string) error {
	key := fmt.Sprintf("%s%s.%s", c.keyPrefix, rep.Database, rep.Table)

	pipe := c.client.Pipeline()
	pipe.HSet(ctx, key, map[string]interface{}{
		"status":        string(rep.Status),
		"quality_score": rep.ExecutionSummary.QualityScore,
		"checks_failed": rep.ExecutionSummary.ChecksFailed,
		"location":      location,
		"updated_at":    time.Now().UTC().Format(time.RFC3339),
	})

	historyKey := key + ":history"
	pipe.ZAdd(ctx, historyKey, &redis.Z{
		Score:  float64(rep.Timestamp.Unix()),
		Member: fmt.Sprintf("%.2f", rep.ExecutionSummary.QualityScore),
	})
	pipe.ZRemRangeByRank(ctx, historyKey, 0, -101)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("error caching latest score: %w", err)
	}
	return nil
}

func (c *LatestScoreCache) Close() error {
	return c.client.Close()
}
