package correlation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const mirrorKeyPrefix = "correlation:"

// RedisMirror keeps a TTL-bound JSON copy of each entry in Redis.
type RedisMirror struct {
	redis  *redis.Client
	ttl    time.Duration
	now    func() time.Time
	tracer trace.Tracer
}

// NewRedisMirror creates a mirror whose keys expire ttl after the record was created.
func NewRedisMirror(client *redis.Client, ttl time.Duration) *RedisMirror {
	if client == nil {
		panic("correlation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisMirror{
		redis:  client,
		ttl:    ttl,
		now:    time.Now,
		tracer: otel.Tracer("robo.internal.correlation.mirror"),
	}
}

func (m *RedisMirror) Save(ctx context.Context, entry Entry) error {
	ctx, span := m.tracer.Start(ctx, "correlation.mirror_save")
	defer span.End()

	ttl := m.ttl - m.now().Sub(entry.Record.CreatedAt)
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(entry)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("correlation: marshal entry: %w", err)
	}
	if err := m.redis.Set(ctx, mirrorKey(entry.Digits), data, ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("correlation: mirror set: %w", err)
	}
	return nil
}

func (m *RedisMirror) Delete(ctx context.Context, digits string) error {
	ctx, span := m.tracer.Start(ctx, "correlation.mirror_delete")
	defer span.End()

	if err := m.redis.Del(ctx, mirrorKey(digits)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("correlation: mirror del: %w", err)
	}
	return nil
}

func (m *RedisMirror) LoadAll(ctx context.Context) ([]Entry, error) {
	ctx, span := m.tracer.Start(ctx, "correlation.mirror_load")
	defer span.End()

	var entries []Entry
	iter := m.redis.Scan(ctx, 0, mirrorKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := m.redis.Get(ctx, iter.Val()).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			span.RecordError(err)
			return nil, fmt.Errorf("correlation: mirror get: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal(data, &entry); err != nil {
			// A corrupt key must not block the rest of the restore.
			continue
		}
		entries = append(entries, entry)
	}
	if err := iter.Err(); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("correlation: mirror scan: %w", err)
	}
	return entries, nil
}

func mirrorKey(digits string) string {
	return mirrorKeyPrefix + digits
}
