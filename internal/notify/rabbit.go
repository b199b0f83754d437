// Package notify publishes outbound events for external collaborators. The
// engine only emits AlertCreated and DeliveryIntent; transports and retries
// beyond this boundary are the notification service's concern.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/chevastian666/sistrau-sub000/internal/domain"
)

const exchange = "engine.events"

type RabbitNotifier struct {
	conn *amqp.Connection
	ch   *amqp.Channel
	log  *slog.Logger
}

func NewRabbitNotifier(url string, log *slog.Logger) (*RabbitNotifier, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	if err := ch.ExchangeDeclare(exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare exchange: %w", err)
	}
	return &RabbitNotifier{conn: conn, ch: ch, log: log}, nil
}

func (n *RabbitNotifier) Close() error {
	n.ch.Close()
	return n.conn.Close()
}

func (n *RabbitNotifier) PublishAlertCreated(ctx context.Context, alert *domain.Alert) error {
	body, err := json.Marshal(map[string]any{
		"alert_id":   alert.ID,
		"type":       string(alert.Type),
		"severity":   string(alert.Severity),
		"vehicle_id": alert.VehicleID,
		"trip_id":    alert.TripID,
		"title":      alert.Title,
		"lat":        alert.Latitude,
		"lng":        alert.Longitude,
		"created_at": alert.CreatedAt.Format(time.RFC3339),
	})
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	return n.publish(ctx, "alert.created."+string(alert.Type), body)
}

func (n *RabbitNotifier) PublishDeliveryIntent(ctx context.Context, intent domain.DeliveryIntent) error {
	body, err := json.Marshal(intent)
	if err != nil {
		return fmt.Errorf("marshal intent: %w", err)
	}
	return n.publish(ctx, "alert.delivery_intent", body)
}

func (n *RabbitNotifier) publish(ctx context.Context, routingKey string, body []byte) error {
	err := n.ch.PublishWithContext(ctx,
		exchange,
		routingKey,
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish %s: %w", routingKey, err)
	}
	return nil
}
