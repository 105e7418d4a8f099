package messaging

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hardware-store/payment-gateway/internal/core"
	"github.com/hardware-store/payment-gateway/internal/port/output"
	amqp "github.com/rabbitmq/amqp091-go"
)

const (
	ExchangeName  = "payments"
	QueueName     = "payment_notifications"
	RoutingKey    = "payment.completed"
	PrefetchCount = 1 // Process one message at a time per worker
)

// PaymentCompletedMessage announces a settled payment to the notification
// worker.
type PaymentCompletedMessage struct {
	OrderID       uuid.UUID `json:"order_id"`
	TransactionID string    `json:"transaction_id"`
	Provider      string    `json:"provider"`
	Amount        float64   `json:"amount"`
	Currency      string    `json:"currency"`
	CustomerEmail string    `json:"customer_email"`
	PaidAt        time.Time `json:"paid_at"`
	Timestamp     time.Time `json:"timestamp"`
}

// RabbitMQClient is a secondary adapter that implements the PaymentNotifier
// output port.
type RabbitMQClient struct {
	conn    *amqp.Connection
	channel *amqp.Channel
}

// NewRabbitMQClient creates a new RabbitMQ client (returns interface for ports)
func NewRabbitMQClient(amqpURL string) (output.PaymentNotifier, error) {
	return NewRabbitMQClientConcrete(amqpURL)
}

// NewRabbitMQClientConcrete creates a new RabbitMQ client (returns concrete type for workers)
func NewRabbitMQClientConcrete(amqpURL string) (*RabbitMQClient, error) {
	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}

	// Declare exchange
	err = channel.ExchangeDeclare(
		ExchangeName,
		"direct",
		true,  // durable
		false, // auto-deleted
		false, // internal
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Declare queue
	_, err = channel.QueueDeclare(
		QueueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	// Bind queue to exchange
	err = channel.QueueBind(
		QueueName,
		RoutingKey,
		ExchangeName,
		false,
		nil,
	)
	if err != nil {
		channel.Close()
		conn.Close()
		return nil, fmt.Errorf("failed to bind queue: %w", err)
	}

	return &RabbitMQClient{
		conn:    conn,
		channel: channel,
	}, nil
}

// PaymentCompleted publishes the completion event. Callers treat this as
// fire and forget; a failed publish never unwinds the payment transition.
func (c *RabbitMQClient) PaymentCompleted(order *core.Order) error {
	message := PaymentCompletedMessage{
		OrderID:       order.ID,
		TransactionID: order.Payment.TransactionID,
		Provider:      string(order.Payment.Provider),
		Amount:        order.Amount,
		Currency:      string(order.Currency),
		CustomerEmail: order.CustomerEmail,
		Timestamp:     time.Now(),
	}
	if order.Payment.PaidAt != nil {
		message.PaidAt = *order.Payment.PaidAt
	}

	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	err = c.channel.Publish(
		ExchangeName,
		RoutingKey,
		false, // mandatory
		false, // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent, // Make message persistent
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
	if err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}

	log.Printf("Published payment completed event for order: %s", order.ID)
	return nil
}

// ConsumePaymentCompleted starts consuming completion events
func (c *RabbitMQClient) ConsumePaymentCompleted(handler func(PaymentCompletedMessage) error) error {
	// Set QoS to process one message at a time
	err := c.channel.Qos(
		PrefetchCount,
		0,     // prefetch size
		false, // global
	)
	if err != nil {
		return fmt.Errorf("failed to set QoS: %w", err)
	}

	msgs, err := c.channel.Consume(
		QueueName,
		"",    // consumer tag
		false, // auto-ack (we'll manually ack after processing)
		false, // exclusive
		false, // no-local
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("failed to register consumer: %w", err)
	}

	log.Println("Started consuming payment completed events...")

	go func() {
		for msg := range msgs {
			var event PaymentCompletedMessage
			if err := json.Unmarshal(msg.Body, &event); err != nil {
				log.Printf("Error unmarshaling message: %v", err)
				msg.Nack(false, false) // Malformed, drop it
				continue
			}

			if err := handler(event); err != nil {
				log.Printf("Error handling completion for order %s: %v", event.OrderID, err)
				// Duplicate notifications are not worth a retry loop
				if isTerminalError(err) {
					msg.Ack(false)
				} else {
					msg.Nack(false, true) // Requeue for retry
				}
				continue
			}

			msg.Ack(false)
		}
	}()

	return nil
}

// Close closes the RabbitMQ connection
func (c *RabbitMQClient) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// isTerminalError checks if an error indicates the event can never be
// handled (e.g. the order disappeared)
func isTerminalError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "already notified") || strings.Contains(errStr, "order not found")
}
