package fulfillment

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/kiggyshop-backend/internal/address"
	"github.com/angelmondragon/kiggyshop-backend/internal/checkout"
	"github.com/angelmondragon/kiggyshop-backend/internal/orders"
	"github.com/angelmondragon/kiggyshop-backend/internal/stock"
	dbpkg "github.com/angelmondragon/kiggyshop-backend/pkg/db"
	"github.com/angelmondragon/kiggyshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/payloads"
)

type countingMetrics struct {
	outcomes map[string]int
	oversold int
}

func (m *countingMetrics) Fulfillment(outcome string) { m.outcomes[outcome]++ }
func (m *countingMetrics) Oversold(units int)         { m.oversold += units }

type failingOutbox struct{}

func (failingOutbox) EmitIfNotExists(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

type fixture struct {
	db      *gorm.DB
	metrics *countingMetrics
	coord   *Coordinator
	now     time.Time
}

func newFixture(t *testing.T, publisher outboxPublisher) *fixture {
	t.Helper()
	conn := dbtest.Open(t)
	for _, item := range []models.Item{
		{ID: 3, Title: "Harbor at Dusk", Kind: enums.ItemKindBigPrint, Quantity: 1},
		{ID: 7, Title: "Fern Study", Kind: enums.ItemKindSmallPrint, Quantity: 10},
	} {
		item := item
		require.NoError(t, conn.Create(&item).Error)
	}

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	if publisher == nil {
		publisher = outbox.NewService(outbox.NewRepository(conn), logg)
	}
	f := &fixture{
		db:      conn,
		metrics: &countingMetrics{outcomes: map[string]int{}},
		now:     time.Date(2026, 3, 2, 16, 0, 0, 0, time.UTC),
	}
	coord, err := NewCoordinator(Params{
		Tx:       dbpkg.NewFromGorm(conn),
		Sessions: checkout.NewRepository(conn),
		Orders:   orders.NewRepository(conn),
		Stock:    stock.NewRepository(conn),
		Outbox:   publisher,
		Logger:   logg,
		Metrics:  f.metrics,
		Now:      func() time.Time { return f.now },
	})
	require.NoError(t, err)
	f.coord = coord
	return f
}

func (f *fixture) seedSession(t *testing.T, lines ...models.CheckoutLine) *models.CheckoutSession {
	t.Helper()
	var subtotal int64
	for _, l := range lines {
		subtotal += l.LineTotalCents
	}
	providerID := "cs_test_" + uuid.NewString()
	session := &models.CheckoutSession{
		ProviderSessionID: &providerID,
		Lines:             lines,
		SubtotalCents:     subtotal,
		ShippingCents:     1000,
		TotalCents:        subtotal + 1000,
		Currency:          "usd",
		ExpiresAt:         f.now.Add(time.Hour),
	}
	require.NoError(t, checkout.NewRepository(f.db).Create(context.Background(), session))
	return session
}

func completed(session *models.CheckoutSession) CheckoutCompleted {
	return CheckoutCompleted{
		EventID:           "evt_" + uuid.NewString(),
		ProviderSessionID: *session.ProviderSessionID,
		CheckoutSessionID: session.ID,
		Name:              "Ada Park",
		Email:             "Ada@Example.com",
		Address: address.Shipping{
			Name: "Ada Park", Number: "1208", Street: "Juniper Hollow Rd",
			City: "Springfield", State: "IL", Zipcode: "62701",
		},
		AmountTotalCents: session.TotalCents,
		Currency:         "usd",
	}
}

func smallPrints(qty int) models.CheckoutLine {
	return models.CheckoutLine{ItemID: 7, Title: "Fern Study", Kind: enums.ItemKindSmallPrint, UnitPriceCents: 700, Quantity: qty, LineTotalCents: 700 * int64(qty)}
}

func bigPrints(qty int) models.CheckoutLine {
	return models.CheckoutLine{ItemID: 3, Title: "Harbor at Dusk", Kind: enums.ItemKindBigPrint, UnitPriceCents: 2500, Quantity: qty, LineTotalCents: 2500 * int64(qty)}
}

func stockOf(t *testing.T, conn *gorm.DB, id int64) int {
	t.Helper()
	var item models.Item
	require.NoError(t, conn.First(&item, id).Error)
	return item.Quantity
}

func TestFulfillRecordsOrderAndDecrementsStock(t *testing.T) {
	f := newFixture(t, nil)
	session := f.seedSession(t, smallPrints(2))

	res, err := f.coord.Fulfill(context.Background(), completed(session))
	require.NoError(t, err)
	assert.False(t, res.NeedsReconciliation)
	assert.Equal(t, int64(2400), res.TotalCents)
	require.Len(t, res.Lines, 1)
	assert.Equal(t, 8, res.Lines[0].StockAfter)
	assert.Equal(t, 8, stockOf(t, f.db, 7))

	order, err := orders.NewRepository(f.db).FindByCheckoutSessionID(context.Background(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.Equal(t, res.OrderID, order.ID)
	assert.Equal(t, "ada@example.com", order.Email)
	assert.False(t, order.Shipped)
	require.Len(t, order.Items, 1)
	assert.Equal(t, 2, order.Items[0].Quantity)
	require.NotNil(t, order.Address)
	assert.Equal(t, "1208", order.Address.Number)

	stored, err := checkout.NewRepository(f.db).FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutSessionFulfilled, stored.Status)
	require.NotNil(t, stored.OrderID)
	assert.Equal(t, res.OrderID, *stored.OrderID)

	var events []models.OutboxEvent
	require.NoError(t, f.db.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderPaid, events[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var paid payloads.OrderPaidEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &paid))
	assert.Equal(t, "1208 Juniper Hollow Rd Springfield, IL, US 62701", paid.Address)
	assert.Equal(t, int64(2400), paid.TotalCents)
	require.Len(t, paid.Lines, 1)

	assert.Equal(t, 1, f.metrics.outcomes["fulfilled"])
}

func TestFulfillTwiceIsNoOp(t *testing.T) {
	f := newFixture(t, nil)
	session := f.seedSession(t, smallPrints(3))
	event := completed(session)

	_, err := f.coord.Fulfill(context.Background(), event)
	require.NoError(t, err)

	event.EventID = "evt_redelivered"
	_, err = f.coord.Fulfill(context.Background(), event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDuplicateFulfillment))

	assert.Equal(t, 7, stockOf(t, f.db, 7), "stock decremented once")

	var orderCount, eventCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	require.NoError(t, f.db.Model(&models.OutboxEvent{}).Count(&eventCount).Error)
	assert.Equal(t, int64(1), orderCount)
	assert.Equal(t, int64(1), eventCount)
	assert.Equal(t, 1, f.metrics.outcomes["duplicate"])
}

func TestFulfillClampsOversellAndFlagsOrder(t *testing.T) {
	f := newFixture(t, nil)
	session := f.seedSession(t, bigPrints(3), smallPrints(1))

	res, err := f.coord.Fulfill(context.Background(), completed(session))
	require.NoError(t, err)
	assert.True(t, res.NeedsReconciliation)
	assert.Equal(t, 2, res.OversoldUnits)
	assert.Equal(t, 0, stockOf(t, f.db, 3))
	assert.Equal(t, 9, stockOf(t, f.db, 7))
	assert.Equal(t, 2, f.metrics.oversold)

	order, err := orders.NewRepository(f.db).FindByID(context.Background(), res.OrderID)
	require.NoError(t, err)
	require.NotNil(t, order)
	assert.True(t, order.NeedsReconciliation)
	require.Len(t, order.Items, 2)
	assert.Equal(t, int64(3), order.Items[0].ItemID)
	assert.Equal(t, 2, order.Items[0].OversoldBy)
	assert.Zero(t, order.Items[1].OversoldBy)
}

func TestFulfillDeletedItemCountsAsShortfall(t *testing.T) {
	f := newFixture(t, nil)
	session := f.seedSession(t, models.CheckoutLine{ItemID: 99, Title: "Retired", Kind: enums.ItemKindButton, UnitPriceCents: 200, Quantity: 2, LineTotalCents: 400})

	res, err := f.coord.Fulfill(context.Background(), completed(session))
	require.NoError(t, err)
	assert.True(t, res.NeedsReconciliation)
	assert.Equal(t, 2, res.Lines[0].OversoldBy)
}

func TestFulfillFlagsAmountMismatch(t *testing.T) {
	f := newFixture(t, nil)
	session := f.seedSession(t, smallPrints(1))
	event := completed(session)
	event.AmountTotalCents = 100

	res, err := f.coord.Fulfill(context.Background(), event)
	require.NoError(t, err)
	assert.True(t, res.NeedsReconciliation)
	assert.Zero(t, res.OversoldUnits)
}

func TestFulfillUnknownSession(t *testing.T) {
	f := newFixture(t, nil)
	event := completed(&models.CheckoutSession{ID: uuid.New(), ProviderSessionID: new(string)})

	_, err := f.coord.Fulfill(context.Background(), event)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownSession))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformedPayload))
	assert.Equal(t, 1, f.metrics.outcomes["unknown_session"])
}

func TestFulfillClaimsExpiredSession(t *testing.T) {
	f := newFixture(t, nil)
	session := f.seedSession(t, smallPrints(1))
	_, err := checkout.NewRepository(f.db).MarkExpired(context.Background(), session.ID, f.now)
	require.NoError(t, err)

	res, err := f.coord.Fulfill(context.Background(), completed(session))
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, res.OrderID)
}

func TestFulfillRollsBackWhenOutboxFails(t *testing.T) {
	f := newFixture(t, failingOutbox{})
	session := f.seedSession(t, smallPrints(2))

	_, err := f.coord.Fulfill(context.Background(), completed(session))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	assert.Equal(t, 10, stockOf(t, f.db, 7))
	var orderCount int64
	require.NoError(t, f.db.Model(&models.Order{}).Count(&orderCount).Error)
	assert.Zero(t, orderCount)

	stored, err := checkout.NewRepository(f.db).FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.CheckoutSessionPending, stored.Status)
	assert.Equal(t, 1, f.metrics.outcomes["error"])
}

func TestFlagUnshippableMarksSession(t *testing.T) {
	f := newFixture(t, nil)
	session := f.seedSession(t, smallPrints(1))

	err := f.coord.FlagUnshippable(context.Background(), &UnshippableError{
		CheckoutSessionID: session.ID,
		ProviderSessionID: *session.ProviderSessionID,
		Err:               &address.FieldError{Fields: map[string]string{"state": "unsupported"}},
	})
	require.NoError(t, err)

	stored, err := checkout.NewRepository(f.db).FindByID(context.Background(), session.ID)
	require.NoError(t, err)
	assert.True(t, stored.NeedsAttention)
	require.NotNil(t, stored.AttentionReason)
	assert.Contains(t, *stored.AttentionReason, "state")
	assert.Equal(t, enums.CheckoutSessionPending, stored.Status)
	assert.Equal(t, 10, stockOf(t, f.db, 7))
	assert.Equal(t, 1, f.metrics.outcomes["needs_attention"])

	err = f.coord.FlagUnshippable(context.Background(), &UnshippableError{CheckoutSessionID: uuid.New(), Err: errors.New("bad zip")})
	require.NoError(t, err)
	assert.Equal(t, 1, f.metrics.outcomes["needs_attention"])

	err = f.coord.FlagUnshippable(context.Background(), nil)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeMalformedPayload))
}

func TestNewCoordinatorRequiresDependencies(t *testing.T) {
	if _, err := NewCoordinator(Params{}); err == nil {
		t.Fatalf("expected error for empty params")
	}
}
