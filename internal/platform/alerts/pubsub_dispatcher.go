package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	"github.com/oklog/ulid/v2"

	"github.com/swagbox/api/internal/services"
)

// LowMarginMessage is the JSON payload published for a low-margin order.
// AlertID is a fresh ULID so consumers can deduplicate redeliveries.
type LowMarginMessage struct {
	AlertID          string    `json:"alertId"`
	OrderID          string    `json:"orderId"`
	OrderNumber      string    `json:"orderNumber"`
	MarginPercentage float64   `json:"marginPercentage"`
	Threshold        float64   `json:"threshold"`
	DetectedAt       time.Time `json:"detectedAt"`
}

// PubSubDispatcher publishes low-margin alerts to a Pub/Sub topic.
type PubSubDispatcher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
	now     func() time.Time
}

var _ services.AlertDispatcher = (*PubSubDispatcher)(nil)

// NewPubSubDispatcher constructs a Pub/Sub backed alert dispatcher.
func NewPubSubDispatcher(topic *pubsub.Topic) (*PubSubDispatcher, error) {
	if topic == nil {
		return nil, errors.New("pubsub alert dispatcher: topic is required")
	}
	return &PubSubDispatcher{
		topic:   topic,
		marshal: json.Marshal,
		now:     time.Now,
	}, nil
}

// SendLowMarginAlert publishes the alert on the configured topic.
func (d *PubSubDispatcher) SendLowMarginAlert(ctx context.Context, alert services.LowMarginAlert) error {
	if d == nil || d.topic == nil {
		return errors.New("pubsub alert dispatcher: not initialised")
	}

	message := LowMarginMessage{
		AlertID:          ulid.Make().String(),
		OrderID:          alert.OrderID,
		OrderNumber:      alert.OrderNumber,
		MarginPercentage: alert.MarginPercentage,
		Threshold:        alert.Threshold,
		DetectedAt:       d.now().UTC(),
	}

	data, err := d.marshal(message)
	if err != nil {
		return fmt.Errorf("marshal low margin alert: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "orderId", alert.OrderID)
	setAttr(attrs, "orderNumber", alert.OrderNumber)
	attrs["marginPercentage"] = strconv.FormatFloat(alert.MarginPercentage, 'f', 2, 64)

	result := d.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})

	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish low margin alert: %w", err)
	}
	return nil
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
