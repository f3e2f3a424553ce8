// Package mqtt wraps the paho client behind the small transport surface the
// shadow engine needs: QoS 1 publish/subscribe with acknowledgment deadlines
// and connection lifecycle callbacks. Reconnect policy lives entirely in the
// underlying client; consumers only observe connect/disconnect events.
package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
)

// ErrAckTimeout is returned when the broker does not acknowledge a request
// within the configured deadline.
var ErrAckTimeout = errors.New("acknowledgment deadline exceeded")

// At-least-once delivery for every shadow and telemetry exchange.
const qosAtLeastOnce = 1

// Config contains the broker connection settings.
type Config struct {
	BrokerURL string
	ClientID  string

	// mTLS material; all three empty means plain TCP (development only).
	CAFile   string
	CertFile string
	KeyFile  string

	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	AckTimeout     time.Duration
}

// Handler receives messages delivered on a subscribed topic.
type Handler = func(topic string, payload []byte)

// Client is a thin wrapper around one long-lived MQTT connection.
type Client struct {
	cli        paho.Client
	ackTimeout time.Duration
}

// NewClient builds the client. onConnect fires on every successful
// (re)connection, onConnectionLost on every drop; both run on the client's
// own goroutines.
func NewClient(cfg Config, onConnect func(), onConnectionLost func(error)) (*Client, error) {
	opts := paho.NewClientOptions().
		AddBroker(cfg.BrokerURL).
		SetClientID(cfg.ClientID).
		SetKeepAlive(cfg.KeepAlive).
		SetConnectTimeout(cfg.ConnectTimeout).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true)

	if cfg.CAFile != "" || cfg.CertFile != "" || cfg.KeyFile != "" {
		tlsCfg, err := newTLSConfig(cfg.CAFile, cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}

	opts.SetOnConnectHandler(func(paho.Client) {
		log.Info().Str("broker", cfg.BrokerURL).Msg("Connected to broker")
		if onConnect != nil {
			onConnect()
		}
	})
	opts.SetConnectionLostHandler(func(_ paho.Client, err error) {
		log.Warn().Err(err).Msg("Connection to broker lost")
		if onConnectionLost != nil {
			onConnectionLost(err)
		}
	})

	return &Client{
		cli:        paho.NewClient(opts),
		ackTimeout: cfg.AckTimeout,
	}, nil
}

// Connect starts the connection attempt. With connect retry enabled the
// client keeps trying in the background, so a timeout here is logged by the
// caller and is not fatal.
func (c *Client) Connect(ctx context.Context) error {
	token := c.cli.Connect()

	done := make(chan struct{})
	go func() {
		token.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return token.Error()
	}
}

// Disconnect closes the connection, allowing a short drain for in-flight
// messages.
func (c *Client) Disconnect() {
	c.cli.Disconnect(250)
}

// IsConnected reports whether the connection is currently up.
func (c *Client) IsConnected() bool {
	return c.cli.IsConnected()
}

// Publish sends a message with at-least-once delivery and waits for the
// broker acknowledgment up to the configured deadline.
func (c *Client) Publish(topic string, payload []byte) error {
	token := c.cli.Publish(topic, qosAtLeastOnce, false, payload)
	return c.await(token, "publish", topic)
}

// Subscribe registers a handler for a topic with at-least-once delivery and
// waits for the subscription acknowledgment up to the configured deadline.
func (c *Client) Subscribe(topic string, handler Handler) error {
	token := c.cli.Subscribe(topic, qosAtLeastOnce, func(_ paho.Client, msg paho.Message) {
		handler(msg.Topic(), msg.Payload())
	})
	return c.await(token, "subscribe", topic)
}

func (c *Client) await(token paho.Token, op, topic string) error {
	if !token.WaitTimeout(c.ackTimeout) {
		return fmt.Errorf("%s %s: %w", op, topic, ErrAckTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s %s: %w", op, topic, err)
	}
	return nil
}

// newTLSConfig loads the CA and client keypair for mutual TLS.
func newTLSConfig(caFile, certFile, keyFile string) (*tls.Config, error) {
	caPEM, err := os.ReadFile(caFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA file: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no certificates found in CA file %s", caFile)
	}

	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client keypair: %w", err)
	}

	return &tls.Config{
		RootCAs:      pool,
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}
