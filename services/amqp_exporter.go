package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"vesselwatch/models"
	"vesselwatch/utils"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/sirupsen/logrus"
)

const (
	ViolationExchange = "vesselwatch.violations"
	ViolationQueue    = "boundary_violations"
)

// AMQPViolationExporter copies violation events to a RabbitMQ fanout
// exchange for downstream case management. The episode key is used as the
// message ID so consumers can drop redelivered duplicates.
type AMQPViolationExporter struct {
	ch    *amqp.Channel
	mutex sync.Mutex
}

type violationExport struct {
	EventID      string    `json:"event_id"`
	Sequence     int64     `json:"sequence"`
	TrackerID    string    `json:"tracker_id"`
	Geofence     string    `json:"geofence"`
	FromArea     string    `json:"from_area"`
	ToArea       string    `json:"to_area"`
	DwellSeconds float64   `json:"dwell_seconds"`
	Location     *location `json:"location,omitempty"`
	Timestamp    int64     `json:"timestamp"`
}

type location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func NewAMQPViolationExporter(conn *amqp.Connection) (*AMQPViolationExporter, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("rabbitmq channel: %w", err)
	}

	if err := ch.ExchangeDeclare(ViolationExchange, "fanout", true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare exchange: %w", err)
	}

	if _, err := ch.QueueDeclare(ViolationQueue, true, false, false, false, nil); err != nil {
		return nil, fmt.Errorf("declare queue: %w", err)
	}

	if err := ch.QueueBind(ViolationQueue, "", ViolationExchange, false, nil); err != nil {
		return nil, fmt.Errorf("bind queue: %w", err)
	}

	return &AMQPViolationExporter{ch: ch}, nil
}

func (e *AMQPViolationExporter) PublishEvents(ctx context.Context, events []models.DomainEvent) error {
	for _, event := range events {
		if !event.IsViolation() {
			continue
		}
		if err := e.publish(ctx, event); err != nil {
			return err
		}
	}
	return nil
}

func newViolationExport(event models.DomainEvent) violationExport {
	msg := violationExport{
		EventID:      event.ID,
		Sequence:     event.Sequence,
		TrackerID:    event.TrackerID,
		Geofence:     event.Fields.Geofence,
		FromArea:     event.Fields.FromArea,
		ToArea:       event.Fields.ToArea,
		DwellSeconds: event.Fields.DwellSeconds,
		Timestamp:    event.Timestamp.Unix(),
	}
	if p := event.Fields.Position; p != nil {
		msg.Location = &location{Latitude: p.Latitude, Longitude: p.Longitude}
	}
	return msg
}

func (e *AMQPViolationExporter) publish(ctx context.Context, event models.DomainEvent) error {
	msg := newViolationExport(event)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal violation: %w", err)
	}

	e.mutex.Lock()
	defer e.mutex.Unlock()

	err = e.ch.PublishWithContext(ctx, ViolationExchange, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    utils.EpisodeKey(event.TrackerID, event.Fields.Geofence, event.Fields.IdleSince),
		Timestamp:    event.Timestamp,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish violation: %w", err)
	}

	logrus.Debugf("Exported violation %s for tracker %s", event.ID, event.TrackerID)
	return nil
}

func (e *AMQPViolationExporter) Close() error {
	return e.ch.Close()
}
