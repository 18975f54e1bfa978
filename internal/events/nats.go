// Punchsync - Biometric Attendance Terminal Polling and Sync
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/punchsync

package events

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"
	natsgo "github.com/nats-io/nats.go"

	"github.com/tomtom215/punchsync/internal/config"
	"github.com/tomtom215/punchsync/internal/logging"
	"github.com/tomtom215/punchsync/internal/metrics"
)

// NATSPublisher publishes events through a Watermill NATS publisher.
type NATSPublisher struct {
	publisher message.Publisher
	prefix    string
	logger    watermill.LoggerAdapter

	mu     sync.RWMutex
	closed bool
}

// NewNATSPublisher connects to cfg.URL. With cfg.JetStream the stream is
// auto-provisioned and message ids are tracked for server-side dedup;
// otherwise plain core NATS subjects are used.
func NewNATSPublisher(cfg config.EventsConfig) (*NATSPublisher, error) {
	logger := logging.NewWatermillAdapter(logging.WithComponent("events"))

	reconnectWait := cfg.ReconnectWait
	if reconnectWait <= 0 {
		reconnectWait = 2 * time.Second
	}

	natsOpts := []natsgo.Option{
		natsgo.Name("punchsync"),
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(cfg.MaxReconnects),
		natsgo.ReconnectWait(reconnectWait),
		natsgo.DisconnectErrHandler(func(_ *natsgo.Conn, err error) {
			if err != nil {
				logger.Error("NATS disconnected", err, nil)
			}
		}),
		natsgo.ReconnectHandler(func(nc *natsgo.Conn) {
			logger.Info("NATS reconnected", watermill.LogFields{"url": nc.ConnectedUrl()})
		}),
	}

	wmConfig := wmNats.PublisherConfig{
		URL:         cfg.URL,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			Disabled:      !cfg.JetStream,
			AutoProvision: cfg.JetStream,
			TrackMsgId:    cfg.JetStream,
		},
	}

	pub, err := wmNats.NewPublisher(wmConfig, logger)
	if err != nil {
		return nil, fmt.Errorf("create watermill publisher: %w", err)
	}

	logging.Info().
		Str("url", cfg.URL).
		Bool("jetstream", cfg.JetStream).
		Str("prefix", cfg.TopicPrefix).
		Msg("Event publisher connected")

	return &NATSPublisher{
		publisher: pub,
		prefix:    cfg.TopicPrefix,
		logger:    logger,
	}, nil
}

// Topic returns the full subject for suffix.
func (p *NATSPublisher) Topic(suffix string) string {
	if p.prefix == "" {
		return suffix
	}
	return p.prefix + "." + suffix
}

// PublishPunchesSynced publishes ev on "<prefix>.punches.synced".
func (p *NATSPublisher) PublishPunchesSynced(ctx context.Context, ev *PunchesSynced) error {
	msg, err := newMessage(ev.EventID, ev)
	if err != nil {
		return err
	}
	msg.Metadata.Set("device", ev.Device)
	msg.Metadata.Set("synced", strconv.Itoa(ev.Synced))
	return p.publish(ctx, p.Topic(TopicPunchesSynced), msg)
}

// PublishDeviceOffline publishes ev on "<prefix>.device.offline".
func (p *NATSPublisher) PublishDeviceOffline(ctx context.Context, ev *DeviceOffline) error {
	msg, err := newMessage(ev.EventID, ev)
	if err != nil {
		return err
	}
	msg.Metadata.Set("device", ev.Device)
	return p.publish(ctx, p.Topic(TopicDeviceOffline), msg)
}

func newMessage(id string, payload any) (*message.Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("serialize event: %w", err)
	}
	return message.NewMessage(id, data), nil
}

func (p *NATSPublisher) publish(ctx context.Context, topic string, msg *message.Message) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return fmt.Errorf("publisher is closed")
	}

	msg.SetContext(ctx)
	if msg.Metadata.Get(natsgo.MsgIdHdr) == "" {
		msg.Metadata.Set(natsgo.MsgIdHdr, msg.UUID)
	}

	if err := p.publisher.Publish(topic, msg); err != nil {
		metrics.EventsPublished.WithLabelValues(topic, "error").Inc()
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	metrics.EventsPublished.WithLabelValues(topic, "ok").Inc()
	return nil
}

// Close shuts the publisher down. Safe to call more than once.
func (p *NATSPublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.publisher.Close()
}

// NewFromConfig returns a NATS publisher when events are enabled and a
// NoopPublisher otherwise.
func NewFromConfig(cfg config.EventsConfig) (Publisher, error) {
	if !cfg.Enabled {
		return NoopPublisher{}, nil
	}
	return NewNATSPublisher(cfg)
}
