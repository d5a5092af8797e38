package repository

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"download-gate-service/domain"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

const (
	allowedField = "allowed"
)

// AdmissionStats keeps per-minute and cumulative admission counters in redis hashes.
// It is statistics only, rate limiting never reads it.
type AdmissionStats struct {
	cli    redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewAdmissionStats(cli redis.UniversalClient, prefix string, ttl time.Duration) AdmissionStats {
	return AdmissionStats{
		cli:    cli,
		prefix: prefix,
		ttl:    ttl,
	}
}

func (r AdmissionStats) Record(ctx context.Context, event domain.AdmissionEvent) error {
	field := statsField(event)
	minuteKey := r.minuteKey(event.At)
	totalKey := r.totalKey()

	_, err := r.cli.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.HIncrBy(ctx, minuteKey, field, 1)
		p.Expire(ctx, minuteKey, r.ttl)
		p.HIncrBy(ctx, totalKey, field, 1)
		return nil
	})
	if err != nil {
		return errors.WithMessage(err, "tx pipelined")
	}
	return nil
}

func (r AdmissionStats) Minute(ctx context.Context, at time.Time) (map[string]int64, error) {
	return r.readHash(ctx, r.minuteKey(at))
}

func (r AdmissionStats) Total(ctx context.Context) (map[string]int64, error) {
	return r.readHash(ctx, r.totalKey())
}

func (r AdmissionStats) readHash(ctx context.Context, key string) (map[string]int64, error) {
	values, err := r.cli.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, errors.WithMessagef(err, "hgetall %s", key)
	}

	result := make(map[string]int64, len(values))
	for field, value := range values {
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return nil, errors.WithMessagef(err, "parse field %s", field)
		}
		result[field] = n
	}
	return result, nil
}

func (r AdmissionStats) minuteKey(at time.Time) string {
	return fmt.Sprintf("%s:minute:%s", r.prefix, at.UTC().Format("200601021504"))
}

func (r AdmissionStats) totalKey() string {
	return fmt.Sprintf("%s:total", r.prefix)
}

func statsField(event domain.AdmissionEvent) string {
	if event.Allow {
		return allowedField
	}
	return strings.ToLower(string(event.Reason))
}
