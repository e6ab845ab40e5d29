// internal/consumer/consumer.go
package consumer

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/streadway/amqp"

	"rentledger/internal/messaging"
)

// Submitter is the part of worker.Pool the consumer needs.
type Submitter interface {
	Submit(name string, job func(ctx context.Context) error) error
}

// Consumer reads the event queue and processes each delivery on a worker pool
type Consumer struct {
	QueueName   string
	Channel     *amqp.Channel
	StopChan    chan struct{}
	DoneChan    chan struct{}
	Handler     messaging.HandlerFunc
	ConsumerTag string
	Pool        Submitter
	log         logrus.FieldLogger
}

// StartConsumer starts a goroutine that consumes the event queue
func StartConsumer(conn *amqp.Connection, queueName string, handler messaging.HandlerFunc, pool Submitter, log logrus.FieldLogger) (*Consumer, error) {
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("queue %s: failed to open channel: %w", queueName, err)
	}

	consumerTag := fmt.Sprintf("consumer-%s", queueName)

	msgs, err := ch.Consume(
		queueName,
		consumerTag,
		false, // autoAck: false to handle manually
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("queue %s: failed to start consuming: %w", queueName, err)
	}

	c := &Consumer{
		QueueName:   queueName,
		Channel:     ch,
		StopChan:    make(chan struct{}),
		DoneChan:    make(chan struct{}),
		Handler:     handler,
		ConsumerTag: consumerTag,
		Pool:        pool,
		log:         log.WithField("queue", queueName),
	}

	go c.consumeLoop(msgs)

	c.log.Info("started event consumer")
	return c, nil
}

// Acknowledger is the subset of amqp.Delivery used to settle a message.
type Acknowledger interface {
	Ack(multiple bool) error
	Reject(requeue bool) error
}

// consumeLoop processes messages until StopChan is closed
func (c *Consumer) consumeLoop(msgs <-chan amqp.Delivery) {
	defer func() {
		close(c.DoneChan)
	}()

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				c.log.Warn("delivery channel closed")
				return
			}
			c.Dispatch(msg.Body, msg)

		case <-c.StopChan:
			c.log.Info("stopping consumer")
			_ = c.Channel.Cancel(c.ConsumerTag, false)
			return
		}
	}
}

// Dispatch decodes one delivery and hands it to the pool. Undecodable
// messages and failed handlers go to the dead letter queue.
func (c *Consumer) Dispatch(body []byte, ack Acknowledger) {
	var ev messaging.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		c.log.WithError(err).Warn("failed to parse event")
		_ = ack.Reject(false)
		return
	}

	err := c.Pool.Submit(ev.Type, func(ctx context.Context) error {
		if err := c.Handler(ctx, ev); err != nil {
			_ = ack.Reject(false) // send to DLQ
			return err
		}
		return ack.Ack(false)
	})
	if err != nil {
		c.log.WithError(err).WithField("event", ev.ID).Warn("pool rejected event, requeueing")
		_ = ack.Reject(true)
	}
}

// Stop signals the consumer to stop and waits for cleanup
func (c *Consumer) Stop() {
	close(c.StopChan)
	<-c.DoneChan
	_ = c.Channel.Close()
	c.log.Info("stopped event consumer")
}
