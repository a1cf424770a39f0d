package stock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kiggyshop-backend/pkg/db/dbtest"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
)

func newTestService(t *testing.T) Service {
	t.Helper()
	svc, err := NewService(NewRepository(dbtest.Open(t)), "usd")
	require.NoError(t, err)
	return svc
}

func TestServiceUpsertCreatesThenUpdates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	created, isNew, err := svc.Upsert(ctx, UpsertInput{Title: " Harbor at Dusk ", Kind: "SmallPrint", Quantity: 5})
	require.NoError(t, err)
	assert.True(t, isNew)
	assert.Equal(t, "Harbor at Dusk", created.Title)
	assert.Equal(t, enums.ItemKindSmallPrint, created.Kind)
	assert.Equal(t, int64(700), created.UnitPriceCents)
	assert.Equal(t, "$7.00", created.UnitPrice)

	id := created.ID
	updated, isNew, err := svc.Upsert(ctx, UpsertInput{ID: &id, Title: "Harbor at Dusk", Kind: "big_print", Quantity: 2})
	require.NoError(t, err)
	assert.False(t, isNew)
	assert.Equal(t, int64(2000), updated.UnitPriceCents)

	got, err := svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, got.Quantity)
}

func TestServiceUpsertCollectsValidationErrors(t *testing.T) {
	svc := newTestService(t)

	_, _, err := svc.Upsert(context.Background(), UpsertInput{Title: "", Kind: "poster", Quantity: -1})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	details, ok := pkgerrors.As(err).Details().(map[string]string)
	require.True(t, ok)
	assert.Contains(t, details, "title")
	assert.Contains(t, details, "kind")
	assert.Contains(t, details, "quantity")
}

func TestServiceUpsertUnknownIDIsNotFound(t *testing.T) {
	svc := newTestService(t)
	id := int64(404)
	_, _, err := svc.Upsert(context.Background(), UpsertInput{ID: &id, Title: "Ghost", Kind: "button"})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestServiceGetAndDeleteMissing(t *testing.T) {
	svc := newTestService(t)
	_, err := svc.Get(context.Background(), 1)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
	assert.True(t, pkgerrors.IsCode(svc.Delete(context.Background(), 1), pkgerrors.CodeNotFound))
}

func TestServiceListOrdersByID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	for _, title := range []string{"One", "Two", "Three"} {
		_, _, err := svc.Upsert(ctx, UpsertInput{Title: title, Kind: "button", Quantity: 1})
		require.NoError(t, err)
	}
	items, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, items, 3)
	assert.Equal(t, "One", items[0].Title)
	assert.Equal(t, "Button", items[0].KindName)
}
