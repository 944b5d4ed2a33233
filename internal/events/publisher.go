package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/segyhp/loan-aggregator/internal/domain"
)

const (
	RewardEarnedType  = "referral.reward_earned"
	DefaultStream     = "referral-rewards"
	DefaultStreamSize = 100000

	// A claim only outlives a crashed publisher by claimTTL; once the event
	// is in the stream the marker is kept for dedupeTTL.
	claimTTL     = time.Minute
	dedupeTTL    = 7 * 24 * time.Hour
	claimPending = "pending"
)

// RewardPublisher delivers RewardEvents to downstream payout processing.
type RewardPublisher interface {
	PublishReward(ctx context.Context, event domain.RewardEvent) error
}

// RedisPublisher appends reward events to a Redis stream. A per-link marker
// keeps a retried publish from adding the same reward twice.
type RedisPublisher struct {
	client redis.Cmdable
	stream string
	maxLen int64
	log    *logrus.Logger
}

func NewRedisPublisher(client redis.Cmdable, stream string, maxLen int64, log *logrus.Logger) *RedisPublisher {
	if stream == "" {
		stream = DefaultStream
	}
	if maxLen <= 0 {
		maxLen = DefaultStreamSize
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &RedisPublisher{client: client, stream: stream, maxLen: maxLen, log: log}
}

func (p *RedisPublisher) dedupeKey(event domain.RewardEvent) string {
	return fmt.Sprintf("%s:published:%s", p.stream, event.LinkID)
}

func (p *RedisPublisher) PublishReward(ctx context.Context, event domain.RewardEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode reward event: %w", err)
	}

	key := p.dedupeKey(event)
	fresh, err := p.client.SetNX(ctx, key, claimPending, claimTTL).Result()
	if err != nil {
		return fmt.Errorf("claim reward event: %w", err)
	}
	if !fresh {
		return nil
	}

	err = p.client.XAdd(ctx, &redis.XAddArgs{
		Stream: p.stream,
		MaxLen: p.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"event_id": event.ID.String(),
			"type":     RewardEarnedType,
			"payload":  string(payload),
		},
	}).Err()
	if err != nil {
		if delErr := p.client.Del(context.WithoutCancel(ctx), key).Err(); delErr != nil {
			p.log.WithError(delErr).WithField("link_id", event.LinkID).
				Error("Failed to release reward publish claim")
		}
		return fmt.Errorf("append reward event: %w", err)
	}

	// The event is delivered; a failure here only shortens deduplication.
	if err := p.client.Set(context.WithoutCancel(ctx), key, event.ID.String(), dedupeTTL).Err(); err != nil {
		p.log.WithError(err).WithField("link_id", event.LinkID).
			Warn("Failed to extend reward publish marker")
	}

	return nil
}

// LogPublisher only logs events; used when no Redis is configured.
type LogPublisher struct {
	log *logrus.Logger
}

func NewLogPublisher(log *logrus.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) PublishReward(_ context.Context, event domain.RewardEvent) error {
	p.log.WithFields(logrus.Fields{
		"event_id":    event.ID,
		"referrer_id": event.ReferrerID,
		"referee_id":  event.RefereeID,
		"amount":      event.Amount.String(),
	}).Info("reward earned")
	return nil
}
