package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/ring-scanner/internal/types"
)

const redisReportsKey = "ring:reports"

// RedisStorage keeps the newest reports at the head of a list
type RedisStorage struct {
	client       *redis.Client
	key          string
	historyLimit int
}

func NewRedisStorage(addr string, historyLimit int) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     "",
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &RedisStorage{
		client:       client,
		key:          redisReportsKey,
		historyLimit: historyLimit,
	}, nil
}

func (r *RedisStorage) Save(report *types.ScanReport) error {
	data, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	if r.historyLimit > 0 {
		pipe.LTrim(ctx, r.key, 0, int64(r.historyLimit-1))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis push: %w", err)
	}

	return nil
}

func (r *RedisStorage) Latest() (*types.ScanReport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	data, err := r.client.LIndex(ctx, r.key, 0).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("redis lindex: %w", err)
	}

	var report types.ScanReport
	if err := json.Unmarshal([]byte(data), &report); err != nil {
		return nil, fmt.Errorf("unmarshal JSON: %w", err)
	}

	return &report, nil
}

func (r *RedisStorage) History(limit int) ([]*types.ScanReport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}

	items, err := r.client.LRange(ctx, r.key, 0, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lrange: %w", err)
	}

	reports := make([]*types.ScanReport, 0, len(items))
	for _, item := range items {
		var report types.ScanReport
		if err := json.Unmarshal([]byte(item), &report); err != nil {
			return nil, fmt.Errorf("unmarshal JSON: %w", err)
		}
		reports = append(reports, &report)
	}

	return reports, nil
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}
