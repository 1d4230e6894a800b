// Emberfeed - Social Content Platform Core
// Copyright 2026 Emberfeed Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/emberfeed/emberfeed

package retry

import (
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	wmNats "github.com/ThreeDotsLabs/watermill-nats/v2/pkg/nats"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/nats-io/nats-server/v2/server"
	natsgo "github.com/nats-io/nats.go"
)

// Transport bundles the two ends of a queue transport with its cleanup.
type Transport struct {
	Publisher  message.Publisher
	Subscriber message.Subscriber

	closeFn func() error
}

// Close releases transport resources.
func (t *Transport) Close() error {
	if t.closeFn == nil {
		return nil
	}
	return t.closeFn()
}

// NewChannelTransport creates an in-process transport. Retries do not
// survive a restart; deployments wanting durability use NATS JetStream.
func NewChannelTransport() *Transport {
	ch := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: 256,
	}, watermill.NewStdLogger(false, false))
	return &Transport{
		Publisher:  ch,
		Subscriber: ch,
		closeFn:    ch.Close,
	}
}

// NATSConfig holds the JetStream transport configuration.
type NATSConfig struct {
	// Embedded runs a NATS server inside this process.
	Embedded bool `koanf:"embedded"`

	// URL of an external server. Ignored when Embedded is true.
	URL string `koanf:"url"`

	// StoreDir is the embedded server's JetStream storage location.
	StoreDir string `koanf:"store_dir"`

	// MaxMemory / MaxStore bound embedded JetStream usage.
	MaxMemory int64 `koanf:"max_memory"`
	MaxStore  int64 `koanf:"max_store"`

	// DurableName is the worker's durable consumer prefix.
	DurableName string `koanf:"durable_name"`

	// QueueGroup load-balances workers across instances.
	QueueGroup string `koanf:"queue_group"`

	// AckWait is how long the server waits before redelivering an
	// unacked job. Default: 2 minutes.
	AckWait time.Duration `koanf:"ack_wait"`
}

func (c *NATSConfig) applyDefaults() {
	if c.URL == "" {
		c.URL = "nats://127.0.0.1:4222"
	}
	if c.DurableName == "" {
		c.DurableName = "score-retry"
	}
	if c.QueueGroup == "" {
		c.QueueGroup = "retry-workers"
	}
	if c.AckWait <= 0 {
		c.AckWait = 2 * time.Minute
	}
	if c.MaxMemory <= 0 {
		c.MaxMemory = 256 << 20
	}
	if c.MaxStore <= 0 {
		c.MaxStore = 2 << 30
	}
}

// NewNATSTransport creates the durable JetStream transport, optionally
// starting an embedded server first.
func NewNATSTransport(cfg NATSConfig) (*Transport, error) {
	cfg.applyDefaults()
	wmLogger := watermill.NewStdLogger(false, false)

	var embedded *server.Server
	url := cfg.URL
	if cfg.Embedded {
		ns, err := startEmbeddedServer(cfg)
		if err != nil {
			return nil, err
		}
		embedded = ns
		url = ns.ClientURL()
	}

	natsOpts := []natsgo.Option{
		natsgo.RetryOnFailedConnect(true),
		natsgo.MaxReconnects(-1),
		natsgo.ReconnectWait(2 * time.Second),
	}

	pub, err := wmNats.NewPublisher(wmNats.PublisherConfig{
		URL:         url,
		NatsOptions: natsOpts,
		Marshaler:   &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			PublishOptions: []natsgo.PubOpt{
				natsgo.RetryAttempts(3),
				natsgo.RetryWait(100 * time.Millisecond),
			},
		},
	}, wmLogger)
	if err != nil {
		shutdownEmbedded(embedded)
		return nil, fmt.Errorf("create retry publisher: %w", err)
	}

	sub, err := wmNats.NewSubscriber(wmNats.SubscriberConfig{
		URL:              url,
		QueueGroupPrefix: cfg.QueueGroup,
		AckWaitTimeout:   cfg.AckWait,
		NatsOptions:      natsOpts,
		Unmarshaler:      &wmNats.NATSMarshaler{},
		JetStream: wmNats.JetStreamConfig{
			AutoProvision: true,
			DurablePrefix: cfg.DurableName,
			SubscribeOptions: []natsgo.SubOpt{
				natsgo.AckWait(cfg.AckWait),
			},
		},
	}, wmLogger)
	if err != nil {
		_ = pub.Close()
		shutdownEmbedded(embedded)
		return nil, fmt.Errorf("create retry subscriber: %w", err)
	}

	return &Transport{
		Publisher:  pub,
		Subscriber: sub,
		closeFn: func() error {
			perr := pub.Close()
			serr := sub.Close()
			shutdownEmbedded(embedded)
			if perr != nil {
				return perr
			}
			return serr
		},
	}, nil
}

// startEmbeddedServer boots an in-process NATS server with JetStream and
// waits for it to accept connections.
func startEmbeddedServer(cfg NATSConfig) (*server.Server, error) {
	opts := &server.Options{
		ServerName:         "emberfeed-retry",
		Host:               "127.0.0.1",
		Port:               -1, // random free port
		JetStream:          true,
		StoreDir:           cfg.StoreDir,
		JetStreamMaxMemory: cfg.MaxMemory,
		JetStreamMaxStore:  cfg.MaxStore,
		NoLog:              true,
	}

	ns, err := server.NewServer(opts)
	if err != nil {
		return nil, fmt.Errorf("create embedded nats server: %w", err)
	}
	go ns.Start()
	if !ns.ReadyForConnections(30 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("embedded nats server not ready within timeout")
	}
	return ns, nil
}

func shutdownEmbedded(ns *server.Server) {
	if ns == nil {
		return
	}
	ns.Shutdown()
	ns.WaitForShutdown()
}
