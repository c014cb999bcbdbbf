package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/example/resy-swiper/internal/obs"
	"github.com/example/resy-swiper/internal/swipe"
)

// channel is the part of *amqp.Channel the publisher uses.
type channel interface {
	ExchangeDeclare(name, kind string, durable, autoDelete, internal, noWait bool, args amqp.Table) error
	PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error
	Close() error
}

// Publisher sends SwipedMessages to a durable topic exchange. It satisfies
// swipe.Notifier.
type Publisher struct {
	mu       sync.Mutex
	url      string
	conn     *amqp.Connection
	ch       channel
	exchange string
	key      string
	timeout  time.Duration
	log      *obs.Logger
}

func Dial(url, exchange, routingKey string, log *obs.Logger) (*Publisher, error) {
	if routingKey == "" {
		routingKey = TopicReservationSwiped
	}
	p := &Publisher{url: url, exchange: exchange, key: routingKey, timeout: 5 * time.Second, log: log}
	if err := p.ensureConnection(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureConnection() error {
	if p.ch != nil && (p.conn == nil || !p.conn.IsClosed()) {
		return nil
	}
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return fmt.Errorf("connect to rabbitmq: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("open channel: %w", err)
	}
	if err := ch.ExchangeDeclare(p.exchange, "topic", true, false, false, false, nil); err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("declare exchange %s: %w", p.exchange, err)
	}
	p.conn = conn
	p.ch = ch
	return nil
}

// Notify publishes the run's bookings. Runs that booked nothing are skipped.
func (p *Publisher) Notify(ctx context.Context, req swipe.Request, res swipe.Result) error {
	if !res.Booked() {
		return nil
	}
	msg := NewSwipedMessage(req, res)
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.ensureConnection(); err != nil {
		return err
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	err = p.ch.PublishWithContext(ctx, p.exchange, p.key, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.RunID,
		Timestamp:    time.Unix(msg.SwipedAt, 0),
		Type:         TopicReservationSwiped,
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("publish %s: %w", p.key, err)
	}
	p.log.Info(map[string]interface{}{
		"event":        "notified",
		"run_id":       msg.RunID,
		"exchange":     p.exchange,
		"routing_key":  p.key,
		"reservations": len(msg.Reservations),
	})
	return nil
}

func (p *Publisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ch != nil {
		if err := p.ch.Close(); err != nil {
			return err
		}
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}
