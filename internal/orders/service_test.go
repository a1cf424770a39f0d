package orders

import (
	"context"
	"encoding/json"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	dbpkg "github.com/angelmondragon/kiggyshop-backend/pkg/db"
	"github.com/angelmondragon/kiggyshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kiggyshop-backend/pkg/db/models"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox"
	"github.com/angelmondragon/kiggyshop-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/kiggyshop-backend/pkg/pagination"
)

func seedOrder(t *testing.T, conn *gorm.DB, createdAt time.Time) *models.Order {
	t.Helper()
	order := &models.Order{
		CheckoutSessionID: uuid.New(),
		ProviderSessionID: "cs_" + uuid.NewString(),
		Name:              "Ada Park",
		Email:             "ada@example.com",
		SubtotalCents:     1400,
		ShippingCents:     1000,
		TotalCents:        2400,
		Currency:          "usd",
		Items: []models.OrderLineItem{
			{ItemID: 7, Title: "Fern Study", Kind: enums.ItemKindSmallPrint, UnitPriceCents: 700, Quantity: 2, LineTotalCents: 1400},
		},
		Address: &models.OrderAddress{
			Name: "Ada Park", Number: "1208", Street: "Juniper Hollow Rd", City: "Springfield", State: "IL", Zipcode: "62701",
		},
		CreatedAt: createdAt,
	}
	require.NoError(t, NewRepository(conn).Create(context.Background(), order))
	return order
}

func newTestService(t *testing.T) (Service, *gorm.DB) {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	svc, err := NewService(NewRepository(conn), dbpkg.NewFromGorm(conn), outbox.NewService(outbox.NewRepository(conn), logg), logg)
	require.NoError(t, err)
	return svc, conn
}

func TestMarkShippedOnceEmitsEvent(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, conn, time.Now())

	dto, err := svc.MarkShipped(ctx, order.ID, " 9400111899223100001234 ")
	require.NoError(t, err)
	assert.True(t, dto.Shipped)
	require.NotNil(t, dto.TrackingNumber)
	assert.Equal(t, "9400111899223100001234", *dto.TrackingNumber)

	var events []models.OutboxEvent
	require.NoError(t, conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderShipped, events[0].EventType)

	var envelope outbox.PayloadEnvelope
	require.NoError(t, json.Unmarshal(events[0].Payload, &envelope))
	var shipped payloads.OrderShippedEvent
	require.NoError(t, json.Unmarshal(envelope.Data, &shipped))
	assert.Equal(t, order.ID, shipped.OrderID)
	assert.Equal(t, "ada@example.com", shipped.Email)

	_, err = svc.MarkShipped(ctx, order.ID, "OTHER")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	got, err := svc.Get(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, "9400111899223100001234", *got.TrackingNumber, "tracking number unchanged")

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestMarkShippedUnknownOrder(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.MarkShipped(context.Background(), uuid.New(), "1Z999")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestMarkShippedValidatesTrackingNumber(t *testing.T) {
	svc, conn := newTestService(t)
	order := seedOrder(t, conn, time.Now())

	_, err := svc.MarkShipped(context.Background(), order.ID, "   ")
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestListFiltersAndPaginates(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var ids []uuid.UUID
	for i := 0; i < 3; i++ {
		ids = append(ids, seedOrder(t, conn, base.Add(time.Duration(i)*time.Minute)).ID)
	}
	_, err := svc.MarkShipped(ctx, ids[0], "1Z1")
	require.NoError(t, err)

	all, err := svc.List(ctx, enums.OrderFilterAll, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, all.Orders, 3)
	assert.Equal(t, ids[2], all.Orders[0].ID, "newest first")

	shipped, err := svc.List(ctx, enums.OrderFilterShipped, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, shipped.Orders, 1)
	assert.Equal(t, ids[0], shipped.Orders[0].ID)

	unshipped, err := svc.List(ctx, enums.OrderFilterUnshipped, pagination.Params{})
	require.NoError(t, err)
	assert.Len(t, unshipped.Orders, 2)

	page, err := svc.List(ctx, enums.OrderFilterAll, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Orders, 2)
	require.NotEmpty(t, page.NextCursor)

	next, err := svc.List(ctx, enums.OrderFilterAll, pagination.Params{Limit: 2, Cursor: page.NextCursor})
	require.NoError(t, err)
	require.Len(t, next.Orders, 1)
	assert.Equal(t, ids[0], next.Orders[0].ID)
	assert.Empty(t, next.NextCursor)

	_, err = svc.List(ctx, enums.OrderFilter("pending"), pagination.Params{})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestDeleteRemovesChildren(t *testing.T) {
	svc, conn := newTestService(t)
	ctx := context.Background()
	order := seedOrder(t, conn, time.Now())

	require.NoError(t, svc.Delete(ctx, order.ID))

	var items, addresses int64
	require.NoError(t, conn.Model(&models.OrderLineItem{}).Where("order_id = ?", order.ID).Count(&items).Error)
	require.NoError(t, conn.Model(&models.OrderAddress{}).Where("order_id = ?", order.ID).Count(&addresses).Error)
	assert.Zero(t, items)
	assert.Zero(t, addresses)

	err := svc.Delete(ctx, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = svc.Get(ctx, order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
