package registry

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/payloads"
)

func wrap(t *testing.T, version int, data any) json.RawMessage {
	t.Helper()
	raw, ok := data.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(data)
		require.NoError(t, err)
	}
	env, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    version,
		EventID:    uuid.NewString(),
		OccurredAt: time.Date(2026, 4, 2, 15, 4, 5, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return env
}

func ordersRegistry(t *testing.T) *EventRegistry {
	t.Helper()
	reg, err := NewEventRegistry(config.PubSubConfig{OrdersTopic: "kiggyshop-orders"})
	require.NoError(t, err)
	return reg
}

func TestResolveRoutesOrderEvents(t *testing.T) {
	reg := ordersRegistry(t)
	orderID := uuid.New()

	paid, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload: wrap(t, 1, payloads.OrderPaidEvent{
			OrderID:    orderID,
			Email:      "ada@example.com",
			Lines:      []payloads.OrderLine{{ItemID: 7, Title: "Harbor", Kind: enums.ItemKindBigPrint, UnitPriceCents: 2000, Quantity: 1, LineTotalCents: 2000}},
			TotalCents: 3000,
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, "kiggyshop-orders", paid.Descriptor.Topic)
	assert.NotEmpty(t, paid.Envelope.EventID)
	assert.False(t, paid.Envelope.OccurredAt.IsZero())
	require.IsType(t, &payloads.OrderPaidEvent{}, paid.Payload)
	assert.Equal(t, int64(7), paid.Payload.(*payloads.OrderPaidEvent).Lines[0].ItemID)

	shipped, err := reg.Resolve(models.OutboxEvent{
		EventType:     enums.EventOrderShipped,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       wrap(t, 1, []byte(`{"tracking_number":"9400100000000000000000","email":"a@b.c"}`)),
	})
	require.NoError(t, err)
	assert.Equal(t, "9400100000000000000000", shipped.Payload.(*payloads.OrderShippedEvent).TrackingNumber)
}

func TestResolveDeadLettersBrokenRows(t *testing.T) {
	reg := ordersRegistry(t)
	empty := []byte(`{}`)

	cases := map[string]models.OutboxEvent{
		"unknown event":        {EventType: "order_refunded", AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: wrap(t, 1, empty)},
		"aggregate mismatch":   {EventType: enums.EventOrderPaid, AggregateType: "checkout_session", AggregateID: uuid.New(), Payload: wrap(t, 1, empty)},
		"missing aggregate id": {EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, Payload: wrap(t, 1, empty)},
		"null data":            {EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: wrap(t, 1, []byte("null"))},
		"future version":       {EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: wrap(t, 9, empty)},
		"broken envelope":      {EventType: enums.EventOrderPaid, AggregateType: enums.AggregateOrder, AggregateID: uuid.New(), Payload: json.RawMessage(`{"data":`)},
	}
	for name, event := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := reg.Resolve(event)
			require.Error(t, err)
			assert.True(t, IsNonRetryable(err), "got %v", err)
		})
	}
}

func TestNewEventRegistryRequiresOrdersTopic(t *testing.T) {
	_, err := NewEventRegistry(config.PubSubConfig{})
	assert.Error(t, err)
}
