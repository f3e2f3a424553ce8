// Package heartbeat periodically reports device liveness and equipment state
// over the broker.
package heartbeat

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/anshulkhare7/shadowd/internal/equipment"
)

// Transport is the slice of the broker client the publisher needs.
type Transport interface {
	Publish(topic string, payload []byte) error
	IsConnected() bool
}

// payload is the heartbeat wire shape.
type payload struct {
	DeviceID  string                                 `json:"deviceId"`
	Timestamp int64                                  `json:"timestamp"`
	Status    string                                 `json:"status"`
	Equipment map[equipment.Kind]equipmentStateEntry `json:"equipment"`
}

type equipmentStateEntry struct {
	IsActive bool `json:"isActive"`
}

// Publisher sends heartbeats on a fixed interval until its context is
// cancelled. Shutdown is honored between publishes, not mid-publish.
type Publisher struct {
	deviceID  string
	topic     string
	interval  time.Duration
	transport Transport
	equip     *equipment.Controller
}

// New creates a heartbeat publisher.
func New(deviceID, topic string, interval time.Duration, transport Transport, equip *equipment.Controller) *Publisher {
	if interval == 0 {
		interval = 60 * time.Second
	}
	return &Publisher{
		deviceID:  deviceID,
		topic:     topic,
		interval:  interval,
		transport: transport,
		equip:     equip,
	}
}

// Run publishes heartbeats until the context is cancelled. The first
// heartbeat goes out immediately.
func (p *Publisher) Run(ctx context.Context) error {
	log.Info().Dur("interval", p.interval).Str("topic", p.topic).Msg("Heartbeat publisher started")

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.publish()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Heartbeat publisher stopping")
			return nil
		case <-ticker.C:
			p.publish()
		}
	}
}

func (p *Publisher) publish() {
	if !p.transport.IsConnected() {
		log.Debug().Msg("Skipping heartbeat, not connected")
		return
	}

	body, err := p.build()
	if err != nil {
		log.Error().Err(err).Msg("Failed to build heartbeat")
		return
	}

	if err := p.transport.Publish(p.topic, body); err != nil {
		log.Error().Err(err).Msg("Failed to publish heartbeat")
		return
	}
	log.Debug().Msg("Heartbeat published")
}

func (p *Publisher) build() ([]byte, error) {
	states, err := p.equip.AllStates()
	if err != nil {
		return nil, fmt.Errorf("failed to read equipment states: %w", err)
	}

	hb := payload{
		DeviceID:  p.deviceID,
		Timestamp: time.Now().Unix(),
		Status:    "online",
		Equipment: make(map[equipment.Kind]equipmentStateEntry, len(states)),
	}
	for kind, active := range states {
		hb.Equipment[kind] = equipmentStateEntry{IsActive: active}
	}

	return json.Marshal(hb)
}
