package shadow

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Transport is the slice of the broker client the engine depends on. Publish
// and Subscribe carry at-least-once delivery and block until the broker
// acknowledgment or a fixed deadline, whichever comes first.
type Transport interface {
	Publish(topic string, payload []byte) error
	Subscribe(topic string, handler func(topic string, payload []byte)) error
}

// Publisher sends reported-state updates to the shadow update topic. Updates
// are rate limited so a burst of deltas cannot flood the broker.
type Publisher struct {
	transport Transport
	topic     string
	limiter   *rate.Limiter
}

// NewPublisher creates a Publisher for the given update topic.
func NewPublisher(transport Transport, topic string, rps float64) *Publisher {
	if rps == 0 {
		rps = 5.0
	}
	burst := int(rps)
	if burst < 1 {
		burst = 1
	}
	return &Publisher{
		transport: transport,
		topic:     topic,
		limiter:   rate.NewLimiter(rate.Limit(rps), burst),
	}
}

// PublishReported publishes the verified states as the new reported state in
// a single update. An empty map publishes nothing.
func (p *Publisher) PublishReported(ctx context.Context, states StateMap) error {
	if len(states) == 0 {
		return nil
	}

	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	var env updateEnvelope
	env.State.Reported = states
	env.ClientToken = uuid.NewString()

	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to encode reported state: %w", err)
	}

	return p.transport.Publish(p.topic, payload)
}
