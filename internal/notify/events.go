package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	lentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/lead/entity"
	pentity "github.com/ovaphlow/pitchfork/service-directory-go/internal/provider/entity"
)

const (
	ExchangeName       = "ex.directory"
	QueueRouted        = "q.lead.routed"
	QueueUnserved      = "q.lead.unserved"
	RoutingKeyRouted   = "lead.routed"
	RoutingKeyUnserved = "lead.unserved"
)

// AMQPURLFromEnv returns AMQP_URL; empty disables event publishing.
func AMQPURLFromEnv() string { return os.Getenv("AMQP_URL") }

// Channel is the subset of *amqp.Channel the publisher uses.
type Channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	QueueDeclare(name string, durable, autoDelete, exclusive, noWait bool, args amqp.Table) (amqp.Queue, error)
	QueueBind(name, key, exchange string, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// LeadEvent is the JSON body of lead.routed and lead.unserved messages.
type LeadEvent struct {
	Event      string    `json:"event"`
	LeadID     string    `json:"lead_id"`
	ProviderID string    `json:"provider_id,omitempty"`
	Zip        string    `json:"zip"`
	City       string    `json:"city"`
	State      string    `json:"state"`
	Urgency    string    `json:"urgency"`
	PriceCents int       `json:"price_cents"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Publisher emits lead events to the directory exchange.
type Publisher struct {
	conn *amqp.Connection
	ch   Channel
}

// DialPublisher connects, opens a channel and declares the topology.
func DialPublisher(url string) (*Publisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("amqp dial: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("amqp channel: %w", err)
	}
	p, err := NewPublisher(ch)
	if err != nil {
		conn.Close()
		return nil, err
	}
	p.conn = conn
	return p, nil
}

// NewPublisher declares the exchange and queues on ch.
func NewPublisher(ch Channel) (*Publisher, error) {
	if err := setupTopology(ch); err != nil {
		return nil, fmt.Errorf("amqp topology: %w", err)
	}
	return &Publisher{ch: ch}, nil
}

func setupTopology(ch Channel) error {
	if err := ch.ExchangeDeclare(ExchangeName, "topic", true, false, false, false, nil); err != nil {
		return err
	}
	for q, key := range map[string]string{QueueRouted: RoutingKeyRouted, QueueUnserved: RoutingKeyUnserved} {
		if _, err := ch.QueueDeclare(q, true, false, false, false, nil); err != nil {
			return err
		}
		if err := ch.QueueBind(q, key, ExchangeName, false, nil); err != nil {
			return err
		}
	}
	return nil
}

func (p *Publisher) publish(ctx context.Context, key string, ev LeadEvent) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return p.ch.PublishWithContext(ctx, ExchangeName, key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    ev.LeadID + ":" + ev.Event,
		Timestamp:    ev.OccurredAt,
		Body:         body,
	})
}

func leadEvent(name string, l *lentity.Lead) LeadEvent {
	return LeadEvent{
		Event:      name,
		LeadID:     l.ID,
		Zip:        l.Zip,
		City:       l.City,
		State:      l.State,
		Urgency:    string(l.Urgency),
		PriceCents: l.PriceCents,
		OccurredAt: time.Now().UTC(),
	}
}

func (p *Publisher) LeadRouted(ctx context.Context, l *lentity.Lead, prov *pentity.Provider, to string) error {
	ev := leadEvent(RoutingKeyRouted, l)
	ev.ProviderID = prov.ID
	return p.publish(ctx, RoutingKeyRouted, ev)
}

func (p *Publisher) LeadUnserved(ctx context.Context, l *lentity.Lead) error {
	return p.publish(ctx, RoutingKeyUnserved, leadEvent(RoutingKeyUnserved, l))
}

func (p *Publisher) Close() error {
	err := p.ch.Close()
	if p.conn != nil {
		if cerr := p.conn.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
