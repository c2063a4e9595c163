// Package events publishes domain events about products onto the broker.
//
// Publishing is best effort: by the time an event is sent the mutation it
// describes has already been committed, so a failure is logged and dropped.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	// ProductExchange carries product-scoped events, routed as product.<eventType>.
	ProductExchange = "product.events"
	// MarketplaceExchange carries marketplace-wide events, routed as <eventType>.
	MarketplaceExchange = "marketplace.events"

	// Source identifies this service in every envelope.
	Source = "products-service"
)

// Product event types.
const (
	ProductCreated      = "created"
	ProductUpdated      = "updated"
	ProductDeleted      = "deleted"
	ProductStockUpdated = "stock.updated"
)

// TopicClass selects the exchange an event goes to.
type TopicClass int

const (
	TopicProduct TopicClass = iota
	TopicMarketplace
)

// Exchanges lists every exchange the service publishes to.
func Exchanges() []string {
	return []string{ProductExchange, MarketplaceExchange}
}

// Route returns the exchange and routing key for an event.
func Route(class TopicClass, eventType string) (exchange, routingKey string) {
	if class == TopicMarketplace {
		return MarketplaceExchange, eventType
	}
	return ProductExchange, "product." + eventType
}

// Envelope is the JSON body of every published message.
type Envelope struct {
	EventType string      `json:"eventType"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
	Source    string      `json:"source"`
}

// Publisher sends a raw message to the broker. *rabbitmq.Client satisfies it.
type Publisher interface {
	Publish(exchange, routingKey string, body []byte) error
}

// Notifier wraps a Publisher with the envelope format and the
// log-and-swallow failure policy. A Notifier without a Publisher drops
// every event.
type Notifier struct {
	publisher Publisher
	log       logrus.FieldLogger
	now       func() time.Time
}

// NewNotifier creates a Notifier. publisher may be nil when the broker is disabled.
func NewNotifier(publisher Publisher, log logrus.FieldLogger) *Notifier {
	return &Notifier{
		publisher: publisher,
		log:       log.WithField("component", "events"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Publish sends one event. It never returns an error to the caller; the
// result is only logged.
func (n *Notifier) Publish(_ context.Context, class TopicClass, eventType string, data interface{}) {
	exchange, routingKey := Route(class, eventType)
	entry := n.log.WithFields(logrus.Fields{
		"exchange":    exchange,
		"routing_key": routingKey,
	})

	if n.publisher == nil {
		entry.Debug("Broker disabled, skipping event")
		return
	}
	if err := n.send(exchange, routingKey, eventType, data); err != nil {
		entry.WithError(err).Warn("Failed to publish event")
		return
	}
	entry.Debug("Published event")
}

// ProductEvent publishes on the product exchange.
func (n *Notifier) ProductEvent(ctx context.Context, eventType string, data interface{}) {
	n.Publish(ctx, TopicProduct, eventType, data)
}

// MarketplaceEvent publishes on the marketplace exchange.
func (n *Notifier) MarketplaceEvent(ctx context.Context, eventType string, data interface{}) {
	n.Publish(ctx, TopicMarketplace, eventType, data)
}

// Emit publishes a marketplace event and reports failures to the caller.
// It backs operator tooling, where silently dropping an event is not wanted.
func (n *Notifier) Emit(eventType string, data interface{}) error {
	if n.publisher == nil {
		return errors.New("broker is disabled")
	}
	exchange, routingKey := Route(TopicMarketplace, eventType)
	return n.send(exchange, routingKey, eventType, data)
}

func (n *Notifier) send(exchange, routingKey, eventType string, data interface{}) error {
	body, err := json.Marshal(Envelope{
		EventType: eventType,
		Data:      data,
		Timestamp: n.now(),
		Source:    Source,
	})
	if err != nil {
		return errors.Wrapf(err, "failed to marshal %s event", eventType)
	}
	return n.publisher.Publish(exchange, routingKey, body)
}
