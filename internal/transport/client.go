package transport

import (
	"bufio"
	"fmt"
	"net"
	"time"

	"emp/internal/message"
)

// Client is one interface connection from the CLI side: dial, exchange a
// handful of messages, close.
type Client struct {
	conn net.Conn
	r    *bufio.Reader
	id   string
}

// Dial connects to the daemon and waits for the greeting that carries the
// assigned routing id.
func Dial(addr string, timeout time.Duration) (*Client, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", addr, err)
	}
	c := &Client{conn: conn, r: bufio.NewReader(conn)}

	greeting, err := c.Recv(timeout)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("await greeting: %w", err)
	}
	c.id = greeting.Dest()
	if c.id == "" {
		_ = conn.Close()
		return nil, fmt.Errorf("greeting carried no routing id")
	}
	return c, nil
}

// ID returns the routing id the daemon assigned this connection.
func (c *Client) ID() string { return c.id }

// Send writes one message as a JSON line.
func (c *Client) Send(msg message.Message) error {
	data, err := message.Encode(msg)
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("send message: %w", err)
	}
	return nil
}

// Recv reads the next message, failing once the timeout elapses. A zero
// timeout waits indefinitely.
func (c *Client) Recv(timeout time.Duration) (message.Message, error) {
	if timeout > 0 {
		if err := c.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, err
		}
		defer c.conn.SetReadDeadline(time.Time{})
	}
	line, err := c.r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("recv message: %w", err)
	}
	return message.Decode(line[:len(line)-1])
}

// Close tears the connection down.
func (c *Client) Close() error {
	return c.conn.Close()
}
