package mq

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jjudge-oj/judgeserver/config"
	"github.com/momentohq/client-sdk-go/auth"
	momentoconfig "github.com/momentohq/client-sdk-go/config"
	"github.com/momentohq/client-sdk-go/momento"
)

// momentoEnvelope carries the message id and attributes, which Momento
// topics have no native slot for.
type momentoEnvelope struct {
	ID         string            `json:"id"`
	Attributes map[string]string `json:"attributes,omitempty"`
	Data       []byte            `json:"data"`
}

// MomentoClient publishes and subscribes over Momento topics.
type MomentoClient struct {
	client    momento.TopicClient
	cacheName string
}

// NewMomentoClient builds a topic client. The API key is read from the
// environment variable named by cfg.TokenEnv.
func NewMomentoClient(cfg config.MomentoConfig) (*MomentoClient, error) {
	if strings.TrimSpace(cfg.CacheName) == "" {
		return nil, errors.New("momento cache name is required")
	}
	tokenEnv := cfg.TokenEnv
	if tokenEnv == "" {
		tokenEnv = "MOMENTO_API_KEY"
	}

	credentialProvider, err := auth.NewEnvMomentoTokenProvider(tokenEnv)
	if err != nil {
		return nil, fmt.Errorf("load momento api key: %w", err)
	}

	client, err := momento.NewTopicClient(momentoconfig.TopicsDefault(), credentialProvider)
	if err != nil {
		return nil, err
	}
	return &MomentoClient{client: client, cacheName: cfg.CacheName}, nil
}

// Publish sends a message to the topic named by channel.
func (m *MomentoClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("momento channel is required")
	}

	envelope := momentoEnvelope{ID: uuid.NewString(), Attributes: attrs, Data: data}
	payload, err := json.Marshal(envelope)
	if err != nil {
		return "", err
	}
	if _, err := m.client.Publish(ctx, &momento.TopicPublishRequest{
		CacheName: m.cacheName,
		TopicName: channel,
		Value:     momento.Bytes(payload),
	}); err != nil {
		return "", fmt.Errorf("publish to topic %s: %w", channel, err)
	}
	return envelope.ID, nil
}

// Subscribe streams topic items to handler until ctx is done. Heartbeats
// and discontinuities are skipped.
func (m *MomentoClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("momento channel is required")
	}

	subscription, err := m.client.Subscribe(ctx, &momento.TopicSubscribeRequest{
		CacheName: m.cacheName,
		TopicName: channel,
	})
	if err != nil {
		return fmt.Errorf("subscribe to topic %s: %w", channel, err)
	}

	for {
		event, err := subscription.Event(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		item, ok := event.(momento.TopicItem)
		if !ok {
			continue
		}
		message, err := decodeMomentoItem(item)
		if err != nil {
			continue
		}
		_ = handler(ctx, message)
	}
}

// Close releases the topic client.
func (m *MomentoClient) Close() error {
	m.client.Close()
	return nil
}

func decodeMomentoItem(item momento.TopicItem) (Message, error) {
	var raw []byte
	switch value := item.GetValue().(type) {
	case momento.Bytes:
		raw = value
	case momento.String:
		raw = []byte(value)
	default:
		return Message{}, fmt.Errorf("unexpected topic value %T", value)
	}

	var envelope momentoEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return Message{}, err
	}
	return Message{ID: envelope.ID, Data: envelope.Data, Attributes: envelope.Attributes}, nil
}
