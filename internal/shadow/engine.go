package shadow

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/anshulkhare7/shadowd/internal/equipment"
)

// Reconciliation sources, recorded with every outcome.
const (
	sourceDelta    = "delta"
	sourceDocument = "document"
	sourceControl  = "control"
)

const (
	defaultQueueSize  = 16
	defaultGetTimeout = 10 * time.Second
)

// Recorder receives the outcome of every write+verify cycle for auditing.
type Recorder interface {
	Record(kind string, desired, verified bool, source string)
}

type eventType int

const (
	evConnected eventType = iota
	evDisconnected
	evDelta
	evDocument
)

func (t eventType) String() string {
	switch t {
	case evConnected:
		return "connected"
	case evDisconnected:
		return "disconnected"
	case evDelta:
		return "delta"
	case evDocument:
		return "document"
	}
	return "unknown"
}

// event is one unit of work for the reconciliation loop.
type event struct {
	typ   eventType
	state StateMap  // evDelta
	doc   *Document // evDocument
	err   error     // evDisconnected
}

// pendingRequest correlates one outstanding get-shadow request with its
// deadline. It lives for a single request/response exchange.
type pendingRequest struct {
	token string
	timer *time.Timer
}

// Engine closes the loop between cloud-declared desired state and verified
// hardware state. Transport callbacks enqueue typed events; a single loop
// goroutine consumes them, so reconciliation never runs concurrently with
// itself. The control path runs on caller goroutines and relies on the
// equipment controller's per-kind serialization.
type Engine struct {
	thing     string
	topics    Topics
	transport Transport
	equip     *equipment.Controller
	publisher *Publisher
	recorder  Recorder

	getTimeout time.Duration

	ready  atomic.Bool
	events chan event

	mu         sync.Mutex
	pendingGet *pendingRequest
}

// NewEngine creates the engine. recorder may be nil to disable auditing.
func NewEngine(thing string, transport Transport, equip *equipment.Controller, publisher *Publisher, recorder Recorder) *Engine {
	return &Engine{
		thing:      thing,
		topics:     TopicsFor(thing),
		transport:  transport,
		equip:      equip,
		publisher:  publisher,
		recorder:   recorder,
		getTimeout: defaultGetTimeout,
		events:     make(chan event, defaultQueueSize),
	}
}

// OnConnect is invoked by the transport on every successful connection. It
// runs on the transport's goroutine and only enqueues work.
func (e *Engine) OnConnect() {
	e.enqueue(event{typ: evConnected})
}

// OnConnectionLost is invoked by the transport when the connection drops.
func (e *Engine) OnConnectionLost(err error) {
	e.enqueue(event{typ: evDisconnected, err: err})
}

func (e *Engine) enqueue(ev event) {
	select {
	case e.events <- ev:
	default:
		log.Warn().Stringer("event", ev.typ).Msg("Engine queue full, dropping event")
	}
}

// Run consumes engine events until the context is cancelled. An in-flight
// batch always completes before shutdown is honored; aborting a physical
// actuator mid-write is unsafe.
func (e *Engine) Run(ctx context.Context) error {
	log.Info().Str("thing", e.thing).Msg("Shadow engine started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("Shadow engine stopping")
			return nil
		case ev := <-e.events:
			e.handle(ctx, ev)
		}
	}
}

func (e *Engine) handle(ctx context.Context, ev event) {
	switch ev.typ {
	case evConnected:
		e.subscribeAll()
		e.syncStartup(ctx)
	case evDisconnected:
		log.Warn().Err(ev.err).Msg("Engine not ready until reconnected")
		e.ready.Store(false)
		e.cancelPendingGet("connection lost")
	case evDelta:
		e.reconcile(ctx, ev.state, sourceDelta)
	case evDocument:
		if pending := ev.doc.PendingDelta(); len(pending) > 0 {
			log.Info().Int("kinds", len(pending)).Msg("Shadow document holds pending desired state, reconciling")
			e.reconcile(ctx, pending, sourceDocument)
		}
	}
}

// subscribeAll subscribes to the delta, get-accepted and update-accepted
// topics. A failed subscription is logged and left as a visible availability
// gap: messages on that topic simply never arrive until the next reconnect.
func (e *Engine) subscribeAll() {
	subs := []struct {
		topic   string
		handler func(string, []byte)
	}{
		{e.topics.UpdateDelta, e.handleDelta},
		{e.topics.GetAccepted, e.handleGetAccepted},
		{e.topics.UpdateAccepted, e.handleUpdateAccepted},
	}

	for _, s := range subs {
		if err := e.transport.Subscribe(s.topic, s.handler); err != nil {
			log.Error().Err(err).Str("topic", s.topic).Msg("Failed to subscribe to shadow topic")
			continue
		}
		log.Debug().Str("topic", s.topic).Msg("Subscribed to shadow topic")
	}
}

// syncStartup publishes current hardware state as reported, then requests
// the full shadow document. The fetch deliberately overlaps with the live
// delta subscription: a desired change persisted while the device was
// offline never fires a delta event, so the same change may be processed
// twice but would otherwise be processed zero times.
func (e *Engine) syncStartup(ctx context.Context) {
	states, err := e.equip.AllStates()
	if err != nil {
		log.Error().Err(err).Msg("Failed to read hardware state for startup sync")
		return
	}

	reported := make(StateMap, len(states))
	for kind, active := range states {
		reported[kind] = EquipmentState{IsActive: active}
	}

	if err := e.publisher.PublishReported(ctx, reported); err != nil {
		log.Error().Err(err).Msg("Failed to publish startup reported state")
		return
	}

	e.ready.Store(true)
	log.Info().Interface("states", states).Msg("Published hardware state as reported")

	e.requestDocument()
}

// requestDocument publishes a get-shadow request correlated by client token.
func (e *Engine) requestDocument() {
	token := uuid.NewString()

	e.mu.Lock()
	if e.pendingGet != nil {
		e.pendingGet.timer.Stop()
	}
	e.pendingGet = &pendingRequest{
		token: token,
		timer: time.AfterFunc(e.getTimeout, func() { e.expireGet(token) }),
	}
	e.mu.Unlock()

	payload, _ := json.Marshal(map[string]string{"clientToken": token})
	if err := e.transport.Publish(e.topics.Get, payload); err != nil {
		log.Error().Err(err).Msg("Failed to request shadow document")
		e.clearPendingGet(token)
		return
	}

	log.Debug().Str("client_token", token).Msg("Requested shadow document")
}

func (e *Engine) expireGet(token string) {
	if e.clearPendingGet(token) {
		log.Error().Str("client_token", token).Dur("timeout", e.getTimeout).Msg("Shadow document request timed out")
	}
}

// clearPendingGet drops the pending request if it still carries the given
// token. Reports whether it was cleared.
func (e *Engine) clearPendingGet(token string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pendingGet == nil || e.pendingGet.token != token {
		return false
	}
	e.pendingGet.timer.Stop()
	e.pendingGet = nil
	return true
}

// cancelPendingGet drops any pending request without retry. The transport
// owns reconnection; a fresh request is issued on the next connect.
func (e *Engine) cancelPendingGet(reason string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.pendingGet == nil {
		return
	}
	e.pendingGet.timer.Stop()
	e.pendingGet = nil
	log.Debug().Str("reason", reason).Msg("Discarded pending shadow request")
}

// handleDelta runs on the transport goroutine.
func (e *Engine) handleDelta(topic string, payload []byte) {
	states, err := ParseDelta(payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to parse shadow delta")
		return
	}
	if len(states) == 0 {
		return
	}

	log.Info().Int("kinds", len(states)).Msg("Received shadow delta")
	e.enqueue(event{typ: evDelta, state: states})
}

// handleGetAccepted runs on the transport goroutine.
func (e *Engine) handleGetAccepted(topic string, payload []byte) {
	doc, token, err := ParseDocument(payload)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Failed to parse shadow document")
		return
	}

	if token == "" {
		// Shadow services that do not echo tokens still answer exactly one
		// outstanding request.
		e.cancelPendingGet("untokenized response")
	} else if !e.clearPendingGet(token) {
		// Duplicate delivery, or a request abandoned on disconnect.
		log.Debug().Str("client_token", token).Msg("Ignoring stale shadow document response")
		return
	}

	log.Info().Msg("Received shadow document")
	e.enqueue(event{typ: evDocument, doc: doc})
}

func (e *Engine) handleUpdateAccepted(_ string, payload []byte) {
	log.Debug().RawJSON("response", payload).Msg("Shadow update accepted")
}

// reconcile applies one desired-state batch to hardware and publishes the
// verified result as a single reported-state update. Keys failing hardware
// I/O are excluded without aborting their siblings. A verified value
// differing from the desired one is reported as-is: the shadow always learns
// the true state.
func (e *Engine) reconcile(ctx context.Context, desired StateMap, source string) {
	results := make(StateMap, len(desired))

	for _, kind := range equipment.Kinds() {
		want, ok := desired[kind]
		if !ok {
			continue
		}

		verified, err := e.equip.SetState(kind, want.IsActive)
		if err != nil {
			log.Error().Err(err).Str("kind", string(kind)).Str("source", source).Msg("Failed to apply desired state")
			continue
		}

		if verified != want.IsActive {
			log.Warn().Str("kind", string(kind)).Bool("desired", want.IsActive).Bool("actual", verified).Msg("Hardware did not reach desired state")
		} else {
			log.Info().Str("kind", string(kind)).Bool("active", verified).Str("source", source).Msg("Equipment state reconciled")
		}

		results[kind] = EquipmentState{IsActive: verified}
		e.record(kind, want.IsActive, verified, source)
	}

	if len(results) == 0 {
		return
	}
	if err := e.publisher.PublishReported(ctx, results); err != nil {
		log.Error().Err(err).Str("source", source).Msg("Failed to publish reported state")
	}
}

func (e *Engine) record(kind equipment.Kind, desired, verified bool, source string) {
	if e.recorder == nil {
		return
	}
	e.recorder.Record(string(kind), desired, verified, source)
}

// SetAndReport applies one state change from the control API, publishes the
// verified result for that single kind, and returns the verified value. The
// caller's contract is hardware truth: a failed shadow publish is logged but
// does not fail the call.
func (e *Engine) SetAndReport(ctx context.Context, kind equipment.Kind, desired bool) (bool, error) {
	verified, err := e.equip.SetState(kind, desired)
	if err != nil {
		return false, err
	}

	if verified != desired {
		log.Warn().Str("kind", string(kind)).Bool("desired", desired).Bool("actual", verified).Msg("Hardware did not reach desired state")
	}
	e.record(kind, desired, verified, sourceControl)

	if err := e.publisher.PublishReported(ctx, StateMap{kind: {IsActive: verified}}); err != nil {
		log.Error().Err(err).Str("kind", string(kind)).Msg("Failed to publish reported state for control update")
	}

	return verified, nil
}

// EquipmentStates returns the current hardware state of all equipment.
func (e *Engine) EquipmentStates() (map[equipment.Kind]bool, error) {
	return e.equip.AllStates()
}

// Ready reports whether startup synchronization has published hardware state
// on the current connection at least once.
func (e *Engine) Ready() bool {
	return e.ready.Load()
}
