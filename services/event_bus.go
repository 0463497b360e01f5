package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
	"vesselwatch/interfaces"
	"vesselwatch/models"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var ErrBusBacklogFull = errors.New("event bus backlog full")

// EventDispatcher is the single commit point for domain events. Appending
// to the log and handing events to the hub and ordered publishers happen
// under one lock, so live traffic leaves the process in sequence order.
// Handlers and plain publishers run afterwards on the caller's goroutine.
type EventDispatcher struct {
	eventLog    interfaces.EventLog
	broadcaster interfaces.WebSocketBroadcaster

	ordered    []interfaces.EventPublisher
	publishers []interfaces.EventPublisher
	handlers   []interfaces.EventHandler

	mutex sync.Mutex

	recorded      atomic.Int64
	handlerErrors atomic.Int64
}

type DispatcherStats struct {
	Recorded      int64 `json:"recorded"`
	HandlerErrors int64 `json:"handlerErrors"`
}

func NewEventDispatcher(eventLog interfaces.EventLog, broadcaster interfaces.WebSocketBroadcaster) *EventDispatcher {
	return &EventDispatcher{
		eventLog:    eventLog,
		broadcaster: broadcaster,
	}
}

// AddHandler registers a consumer. Handlers see one tracker's events in order.
func (d *EventDispatcher) AddHandler(h interfaces.EventHandler) {
	d.handlers = append(d.handlers, h)
}

// AddOrderedPublisher registers a publisher called inside the commit lock.
// It must not block.
func (d *EventDispatcher) AddOrderedPublisher(p interfaces.EventPublisher) {
	d.ordered = append(d.ordered, p)
}

func (d *EventDispatcher) AddPublisher(p interfaces.EventPublisher) {
	d.publishers = append(d.publishers, p)
}

func (d *EventDispatcher) Record(ctx context.Context, events []models.DomainEvent) ([]models.DomainEvent, error) {
	if len(events) == 0 {
		return nil, nil
	}

	d.mutex.Lock()
	stored, err := d.eventLog.Append(ctx, events...)
	if err != nil {
		d.mutex.Unlock()
		return nil, fmt.Errorf("failed to append events: %w", err)
	}
	if d.broadcaster != nil {
		for _, event := range stored {
			d.broadcaster.BroadcastDomainEvent(event)
		}
	}
	for _, p := range d.ordered {
		if err := p.PublishEvents(ctx, stored); err != nil {
			logrus.Warnf("Ordered publish failed: %v", err)
		}
	}
	d.mutex.Unlock()

	d.recorded.Add(int64(len(stored)))

	for _, event := range stored {
		d.handle(ctx, event)
	}
	for _, p := range d.publishers {
		if err := p.PublishEvents(ctx, stored); err != nil {
			logrus.Warnf("Event publish failed: %v", err)
		}
	}

	return stored, nil
}

func (d *EventDispatcher) handle(ctx context.Context, event models.DomainEvent) {
	for _, h := range d.handlers {
		if err := h.HandleEvent(ctx, event); err != nil {
			d.handlerErrors.Add(1)
			logrus.WithFields(logrus.Fields{
				"event_id":   event.ID,
				"sequence":   event.Sequence,
				"tracker_id": event.TrackerID,
				"type":       event.Type,
			}).Errorf("Event handler failed: %v", err)
		}
	}
}

func (d *EventDispatcher) Stats() DispatcherStats {
	return DispatcherStats{
		Recorded:      d.recorded.Load(),
		HandlerErrors: d.handlerErrors.Load(),
	}
}

const (
	DefaultBusChannel = "vesselwatch:events"
	busOutboxSize     = 1024
	busPublishTimeout = 5 * time.Second
)

// RedisEventBus mirrors committed events to other instances over Redis
// pub/sub. A single goroutine drains the outbox, so one instance's events
// arrive in the order they were committed. Sequence order across
// instances holds only while one instance ingests positions.
type RedisEventBus struct {
	client  *redis.Client
	channel string
	origin  string
	outbox  chan busEnvelope

	published atomic.Int64
	relayed   atomic.Int64
	dropped   atomic.Int64
}

type busEnvelope struct {
	Origin string               `json:"origin"`
	Events []models.DomainEvent `json:"events"`
}

type BusStats struct {
	Origin    string `json:"origin"`
	Published int64  `json:"published"`
	Relayed   int64  `json:"relayed"`
	Dropped   int64  `json:"dropped"`
}

func NewRedisEventBus(client *redis.Client, channel string) *RedisEventBus {
	if channel == "" {
		channel = DefaultBusChannel
	}
	return &RedisEventBus{
		client:  client,
		channel: channel,
		origin:  uuid.New().String(),
		outbox:  make(chan busEnvelope, busOutboxSize),
	}
}

// PublishEvents queues the batch without blocking
func (b *RedisEventBus) PublishEvents(ctx context.Context, events []models.DomainEvent) error {
	select {
	case b.outbox <- busEnvelope{Origin: b.origin, Events: events}:
		return nil
	default:
		b.dropped.Add(int64(len(events)))
		return ErrBusBacklogFull
	}
}

// Run publishes queued batches until ctx is done
func (b *RedisEventBus) Run(ctx context.Context) {
	for {
		select {
		case env := <-b.outbox:
			b.send(ctx, env)
		case <-ctx.Done():
			return
		}
	}
}

func (b *RedisEventBus) send(ctx context.Context, env busEnvelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		logrus.Errorf("Failed to encode event batch: %v", err)
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, busPublishTimeout)
	defer cancel()

	if err := b.client.Publish(pubCtx, b.channel, payload).Err(); err != nil {
		b.dropped.Add(int64(len(env.Events)))
		logrus.Warnf("Failed to publish %d events to %s: %v", len(env.Events), b.channel, err)
		return
	}
	b.published.Add(int64(len(env.Events)))
}

// Relay forwards events committed by other instances to the local hub and
// handlers. Batches from this instance are skipped.
func (b *RedisEventBus) Relay(ctx context.Context, broadcaster interfaces.WebSocketBroadcaster, handlers ...interfaces.EventHandler) error {
	pubsub := b.client.Subscribe(ctx, b.channel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", b.channel, err)
	}
	logrus.Infof("Relaying events from %s", b.channel)

	messages := pubsub.Channel()
	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return nil
			}
			b.relay(ctx, msg.Payload, broadcaster, handlers)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (b *RedisEventBus) relay(ctx context.Context, payload string, broadcaster interfaces.WebSocketBroadcaster, handlers []interfaces.EventHandler) {
	var env busEnvelope
	if err := json.Unmarshal([]byte(payload), &env); err != nil {
		logrus.Warnf("Discarding malformed event batch: %v", err)
		return
	}
	if env.Origin == b.origin {
		return
	}

	for _, event := range env.Events {
		if broadcaster != nil {
			broadcaster.BroadcastDomainEvent(event)
		}
		for _, h := range handlers {
			if err := h.HandleEvent(ctx, event); err != nil {
				logrus.Errorf("Relayed event %s handler failed: %v", event.ID, err)
			}
		}
	}
	b.relayed.Add(int64(len(env.Events)))
}

func (b *RedisEventBus) Stats() BusStats {
	return BusStats{
		Origin:    b.origin,
		Published: b.published.Load(),
		Relayed:   b.relayed.Load(),
		Dropped:   b.dropped.Load(),
	}
}
