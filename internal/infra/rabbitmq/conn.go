package rabbitmq

import (
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Conn is a broker connection with one channel for consuming and one for
// publishing, so a publish blocked by flow control never stalls acks.
type Conn struct {
	conn    *amqp.Connection
	Consume *amqp.Channel
	Publish *amqp.Channel
}

// Dial connects to url and opens both channels.
func Dial(url string) (*Conn, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial amqp: %w", err)
	}
	consume, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open consume channel: %w", err)
	}
	publish, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open publish channel: %w", err)
	}
	return &Conn{conn: conn, Consume: consume, Publish: publish}, nil
}

// NotifyClose reports when the connection drops.
func (c *Conn) NotifyClose() <-chan *amqp.Error {
	return c.conn.NotifyClose(make(chan *amqp.Error, 1))
}

// Close closes both channels and the connection.
func (c *Conn) Close() error {
	c.Publish.Close()
	c.Consume.Close()
	return c.conn.Close()
}
