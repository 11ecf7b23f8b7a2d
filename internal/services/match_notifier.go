package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/homeswap-backend/internal/platform/logger"
)

const (
	EventMatchCreated    = "match.created"
	EventMatchesArchived = "matches.archived"
)

// MatchNotifier receives match lifecycle signals after the writing transaction
// has committed. Delivery is best effort: implementations log failures and
// never block matching on them.
type MatchNotifier interface {
	OnMatchCreated(ctx context.Context, matchID uuid.UUID)
	OnMatchesArchived(ctx context.Context, matchIDs []uuid.UUID)
}

// MatchEvent is the wire payload published by the broker-backed notifiers.
type MatchEvent struct {
	Event      string      `json:"event"`
	MatchIDs   []uuid.UUID `json:"match_ids"`
	OccurredAt time.Time   `json:"occurred_at"`
}

func newMatchEvent(event string, ids []uuid.UUID) MatchEvent {
	return MatchEvent{Event: event, MatchIDs: ids, OccurredAt: time.Now().UTC()}
}

const notifyTimeout = 5 * time.Second

type noopMatchNotifier struct{}

func NewNoopMatchNotifier() MatchNotifier { return noopMatchNotifier{} }

func (noopMatchNotifier) OnMatchCreated(context.Context, uuid.UUID)      {}
func (noopMatchNotifier) OnMatchesArchived(context.Context, []uuid.UUID) {}

type fanoutMatchNotifier struct {
	sinks []MatchNotifier
}

// NewFanoutMatchNotifier forwards every signal to each non-nil sink in order.
func NewFanoutMatchNotifier(sinks ...MatchNotifier) MatchNotifier {
	out := make([]MatchNotifier, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			out = append(out, s)
		}
	}
	return &fanoutMatchNotifier{sinks: out}
}

func (f *fanoutMatchNotifier) OnMatchCreated(ctx context.Context, matchID uuid.UUID) {
	for _, s := range f.sinks {
		s.OnMatchCreated(ctx, matchID)
	}
}

func (f *fanoutMatchNotifier) OnMatchesArchived(ctx context.Context, matchIDs []uuid.UUID) {
	for _, s := range f.sinks {
		s.OnMatchesArchived(ctx, matchIDs)
	}
}

// AMQPPublisher is satisfied by clients/amqp.Publisher.
type AMQPPublisher interface {
	Publish(ctx context.Context, routingKey string, msg amqp.Publishing) error
}

type amqpMatchNotifier struct {
	pub AMQPPublisher
	log *logger.Logger
}

// NewAMQPMatchNotifier publishes match events for the email-on-match consumer.
// The routing key is the event name.
func NewAMQPMatchNotifier(pub AMQPPublisher, log *logger.Logger) MatchNotifier {
	return &amqpMatchNotifier{pub: pub, log: log.With("service", "AMQPMatchNotifier")}
}

func (n *amqpMatchNotifier) OnMatchCreated(ctx context.Context, matchID uuid.UUID) {
	n.publish(ctx, newMatchEvent(EventMatchCreated, []uuid.UUID{matchID}))
}

func (n *amqpMatchNotifier) OnMatchesArchived(ctx context.Context, matchIDs []uuid.UUID) {
	if len(matchIDs) == 0 {
		return
	}
	n.publish(ctx, newMatchEvent(EventMatchesArchived, matchIDs))
}

func (n *amqpMatchNotifier) publish(ctx context.Context, ev MatchEvent) {
	if n == nil || n.pub == nil {
		return
	}
	body, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("marshal match event failed", "event", ev.Event, "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	err = n.pub.Publish(pubCtx, ev.Event, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
	if err != nil {
		n.log.Warn("publish match event failed", "event", ev.Event, "count", len(ev.MatchIDs), "error", err)
	}
}

// RedisPublisher is satisfied by *goredis.Client.
type RedisPublisher interface {
	Publish(ctx context.Context, channel string, message interface{}) *goredis.IntCmd
}

type redisMatchNotifier struct {
	rdb     RedisPublisher
	channel string
	log     *logger.Logger
}

// NewRedisMatchNotifier publishes match events on a pub/sub channel for live UIs.
func NewRedisMatchNotifier(rdb RedisPublisher, channel string, log *logger.Logger) MatchNotifier {
	if channel == "" {
		channel = "homeswap:matches"
	}
	return &redisMatchNotifier{rdb: rdb, channel: channel, log: log.With("service", "RedisMatchNotifier")}
}

func (n *redisMatchNotifier) OnMatchCreated(ctx context.Context, matchID uuid.UUID) {
	n.publish(ctx, newMatchEvent(EventMatchCreated, []uuid.UUID{matchID}))
}

func (n *redisMatchNotifier) OnMatchesArchived(ctx context.Context, matchIDs []uuid.UUID) {
	if len(matchIDs) == 0 {
		return
	}
	n.publish(ctx, newMatchEvent(EventMatchesArchived, matchIDs))
}

func (n *redisMatchNotifier) publish(ctx context.Context, ev MatchEvent) {
	if n == nil || n.rdb == nil {
		return
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		n.log.Error("marshal match event failed", "event", ev.Event, "error", err)
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	defer cancel()
	if err := n.rdb.Publish(pubCtx, n.channel, raw).Err(); err != nil {
		n.log.Warn("redis publish match event failed", "event", ev.Event, "error", err)
	}
}
