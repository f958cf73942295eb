package mq

import (
	"fmt"

	"github.com/rabbitmq/amqp091-go"
)

const (
	DLQExchangeName = "notify.deliver.dlq"
)

// DeclareDLQExchange declares the dead letter exchange holding jobs that
// exhausted their retries. Nothing consumes it automatically; it is the
// failed-jobs set for manual triage.
func DeclareDLQExchange(ch *amqp091.Channel) error {
	return ch.ExchangeDeclare(
		DLQExchangeName,
		"topic",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
}

// DeclareDLQQueue declares a dead letter queue for a specific routing key.
func DeclareDLQQueue(ch *amqp091.Channel, routingKey string) (amqp091.Queue, error) {
	queueName := fmt.Sprintf("%s.dlq", routingKey)

	q, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to declare DLQ queue: %w", err)
	}

	err = ch.QueueBind(
		q.Name,
		routingKey,
		DLQExchangeName,
		false,
		nil,
	)
	if err != nil {
		return amqp091.Queue{}, fmt.Errorf("failed to bind DLQ queue: %w", err)
	}

	return q, nil
}

// SetupDLQ declares the dead letter exchange and the queue for one routing
// key, so PublishToDLQ never races queue creation.
func (p *Publisher) SetupDLQ(routingKey string) error {
	if err := DeclareDLQExchange(p.channel); err != nil {
		return fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}
	if _, err := DeclareDLQQueue(p.channel, routingKey); err != nil {
		return err
	}
	return nil
}

// PublishToDLQ publishes a failed job to the dead letter queue.
func (p *Publisher) PublishToDLQ(routingKey, messageID string, payload []byte, originalError string) error {
	headers := amqp091.Table{
		"x-original-error": originalError,
		"x-failed-at":      "delivery-worker",
	}

	return p.channel.Publish(
		DLQExchangeName,
		routingKey,
		false,
		false,
		amqp091.Publishing{
			ContentType:  "application/json",
			MessageId:    messageID,
			Body:         payload,
			DeliveryMode: amqp091.Persistent,
			Headers:      headers,
		},
	)
}

// FailedJob is one entry read back from a DLQ for inspection.
type FailedJob struct {
	MessageID string `json:"message_id"`
	Error     string `json:"error"`
	Body      string `json:"body"`
}

// DLQInspector reads failed jobs off a dead letter queue without consuming
// them, for the admin triage endpoint.
type DLQInspector struct {
	url string
}

func NewDLQInspector(url string) *DLQInspector {
	return &DLQInspector{url: url}
}

// Peek returns up to max failed jobs from the DLQ for routingKey. Messages
// are requeued after reading so inspection does not drain the set.
func (i *DLQInspector) Peek(routingKey string, max int) ([]FailedJob, error) {
	conn, err := NewConnection(i.url)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := DeclareDLQExchange(ch); err != nil {
		return nil, fmt.Errorf("failed to declare DLQ exchange: %w", err)
	}
	q, err := DeclareDLQQueue(ch, routingKey)
	if err != nil {
		return nil, err
	}

	var jobs []FailedJob
	var tags []uint64
	for len(jobs) < max {
		msg, ok, err := ch.Get(q.Name, false)
		if err != nil {
			return nil, fmt.Errorf("failed to read DLQ: %w", err)
		}
		if !ok {
			break
		}
		origErr, _ := msg.Headers["x-original-error"].(string)
		jobs = append(jobs, FailedJob{
			MessageID: msg.MessageId,
			Error:     origErr,
			Body:      string(msg.Body),
		})
		tags = append(tags, msg.DeliveryTag)
	}

	// Requeue everything we read.
	for _, tag := range tags {
		if err := ch.Nack(tag, false, true); err != nil {
			return jobs, fmt.Errorf("failed to requeue DLQ message: %w", err)
		}
	}

	return jobs, nil
}
