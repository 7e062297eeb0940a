package mq

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/judgeserver/config"
	"github.com/nats-io/nats.go"
)

const natsMsgIDHeader = "Nats-Msg-Id"

// NATSClient publishes and subscribes over core NATS subjects.
type NATSClient struct {
	conn       *nats.Conn
	queueGroup string
}

// NewNATSClient connects to the NATS server in cfg.URL.
func NewNATSClient(cfg config.NATSConfig) (*NATSClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("nats url is required")
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("judgeserver"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(5),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, err
	}
	return NewNATSClientFromConn(conn, cfg.QueueGroup), nil
}

// NewNATSClientFromConn wraps an existing connection. The client takes
// ownership of conn.
func NewNATSClientFromConn(conn *nats.Conn, queueGroup string) *NATSClient {
	return &NATSClient{conn: conn, queueGroup: queueGroup}
}

// Publish sends a message on the subject named by channel.
func (n *NATSClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("nats channel is required")
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	messageID := uuid.NewString()
	msg := nats.NewMsg(channel)
	msg.Data = data
	msg.Header.Set(natsMsgIDHeader, messageID)
	for key, value := range attrs {
		msg.Header.Set(key, value)
	}
	if err := n.conn.PublishMsg(msg); err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe delivers messages on channel to handler until ctx is done.
// Core NATS has no redelivery, so handler errors are dropped.
func (n *NATSClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("nats channel is required")
	}

	callback := func(msg *nats.Msg) {
		message := Message{
			ID:         msg.Header.Get(natsMsgIDHeader),
			Data:       msg.Data,
			Attributes: natsHeaderToAttributes(msg.Header),
		}
		_ = handler(ctx, message)
	}

	var (
		sub *nats.Subscription
		err error
	)
	if n.queueGroup != "" {
		sub, err = n.conn.QueueSubscribe(channel, n.queueGroup, callback)
	} else {
		sub, err = n.conn.Subscribe(channel, callback)
	}
	if err != nil {
		return err
	}
	defer func() {
		_ = sub.Unsubscribe()
	}()
	if err := n.conn.Flush(); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

// Close drains the connection.
func (n *NATSClient) Close() error {
	if n.conn == nil {
		return nil
	}
	return n.conn.Drain()
}

func natsHeaderToAttributes(header nats.Header) map[string]string {
	if len(header) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(header))
	for key := range header {
		if key == natsMsgIDHeader {
			continue
		}
		attrs[key] = header.Get(key)
	}
	return attrs
}
