package shadow

import (
	"encoding/json"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/anshulkhare7/shadowd/internal/equipment"
)

// EquipmentState is the per-kind state object used on every shadow topic.
type EquipmentState struct {
	IsActive bool `json:"isActive"`
}

// StateMap maps equipment kinds to their state. Only valid kinds appear as
// keys; parsing drops everything else.
type StateMap map[equipment.Kind]EquipmentState

// Document is one get-shadow snapshot. It is inspected once and discarded,
// never cached.
type Document struct {
	Desired  StateMap
	Reported StateMap
}

// deltaEnvelope is the wire shape of a shadow delta event.
type deltaEnvelope struct {
	State       map[string]json.RawMessage `json:"state"`
	Version     int64                      `json:"version"`
	ClientToken string                     `json:"clientToken"`
}

// documentEnvelope is the wire shape of a get-accepted response.
type documentEnvelope struct {
	State struct {
		Desired  map[string]json.RawMessage `json:"desired"`
		Reported map[string]json.RawMessage `json:"reported"`
	} `json:"state"`
	ClientToken string `json:"clientToken"`
}

// updateEnvelope is the wire shape of a reported-state publish.
type updateEnvelope struct {
	State struct {
		Reported StateMap `json:"reported"`
	} `json:"state"`
	ClientToken string `json:"clientToken,omitempty"`
}

// parseStateMap decodes a raw shadow state object. Unknown equipment kinds
// are skipped individually; a missing or malformed isActive reads as false.
func parseStateMap(raw map[string]json.RawMessage) StateMap {
	if len(raw) == 0 {
		return nil
	}

	states := make(StateMap, len(raw))
	for key, value := range raw {
		kind, err := equipment.ParseKind(key)
		if err != nil {
			log.Warn().Str("key", key).Msg("Skipping unknown equipment kind in shadow state")
			continue
		}

		var st EquipmentState
		if err := json.Unmarshal(value, &st); err != nil {
			log.Warn().Err(err).Str("kind", key).Msg("Malformed equipment state in shadow payload, treating as inactive")
			st = EquipmentState{}
		}
		states[kind] = st
	}
	return states
}

// ParseDelta decodes a delta event payload into the valid subset of its
// state map.
func ParseDelta(payload []byte) (StateMap, error) {
	var env deltaEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("failed to decode delta payload: %w", err)
	}
	return parseStateMap(env.State), nil
}

// ParseDocument decodes a get-accepted payload. The second return value is
// the client token echoed by the shadow service, if any.
func ParseDocument(payload []byte) (*Document, string, error) {
	var env documentEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, "", fmt.Errorf("failed to decode shadow document: %w", err)
	}
	doc := &Document{
		Desired:  parseStateMap(env.State.Desired),
		Reported: parseStateMap(env.State.Reported),
	}
	return doc, env.ClientToken, nil
}

// PendingDelta returns the implicit delta held in a shadow document: every
// kind present in both desired and reported whose isActive values differ.
// These are desired changes persisted while the device was offline, which
// never produce a live delta event.
func (d *Document) PendingDelta() StateMap {
	var pending StateMap
	for kind, desired := range d.Desired {
		reported, ok := d.Reported[kind]
		if !ok {
			continue
		}
		if desired.IsActive != reported.IsActive {
			if pending == nil {
				pending = make(StateMap)
			}
			pending[kind] = desired
		}
	}
	return pending
}
