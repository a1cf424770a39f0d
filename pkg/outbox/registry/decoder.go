package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/payloads"
)

// ErrNoDecoder is returned for an event type or payload version no decoder
// was registered for.
var ErrNoDecoder = errors.New("registry: no decoder")

// Decoder turns an envelope's data field into a typed payload pointer.
type Decoder func(json.RawMessage) (any, error)

type decoderKey struct {
	eventType enums.OutboxEventType
	version   int
}

// DecoderRegistry is the consumer-side counterpart of EventRegistry: it
// maps (event type, payload version) to a decoder.
type DecoderRegistry struct {
	mu       sync.RWMutex
	decoders map[decoderKey]Decoder
}

func NewDecoderRegistry() *DecoderRegistry {
	return &DecoderRegistry{decoders: map[decoderKey]Decoder{}}
}

// PayloadDecoders covers every payload version the publisher emits today.
func PayloadDecoders() *DecoderRegistry {
	r := NewDecoderRegistry()
	r.Register(enums.EventOrderPaid, 1, decodeInto[payloads.OrderPaidEvent])
	r.Register(enums.EventOrderShipped, 1, decodeInto[payloads.OrderShippedEvent])
	return r
}

func decodeInto[T any](raw json.RawMessage) (any, error) {
	v := new(T)
	if err := json.Unmarshal(raw, v); err != nil {
		return nil, err
	}
	return v, nil
}

func (r *DecoderRegistry) Register(eventType enums.OutboxEventType, version int, decode Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[decoderKey{eventType, version}] = decode
}

// Handles reports whether any version of eventType can be decoded.
func (r *DecoderRegistry) Handles(eventType enums.OutboxEventType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for key := range r.decoders {
		if key.eventType == eventType {
			return true
		}
	}
	return false
}

// Decode treats version 0 as 1, since early envelopes omitted it.
func (r *DecoderRegistry) Decode(eventType enums.OutboxEventType, version int, raw json.RawMessage) (any, error) {
	if version == 0 {
		version = 1
	}
	r.mu.RLock()
	decode, ok := r.decoders[decoderKey{eventType, version}]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for %s v%d", ErrNoDecoder, eventType, version)
	}
	payload, err := decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s v%d: %w", eventType, version, err)
	}
	return payload, nil
}
