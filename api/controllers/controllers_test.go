package controllers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/kiggyshop-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/kiggyshop-backend/internal/checkout"
	internalorders "github.com/angelmondragon/kiggyshop-backend/internal/orders"
	"github.com/angelmondragon/kiggyshop-backend/internal/stock"
	"github.com/angelmondragon/kiggyshop-backend/pkg/config"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/pagination"
)

type stubCheckout struct {
	got cart.Cart
	err error
}

func (s *stubCheckout) CreateSession(_ context.Context, c cart.Cart) (*checkoutsvc.SessionResult, error) {
	s.got = c
	if s.err != nil {
		return nil, s.err
	}
	return &checkoutsvc.SessionResult{CheckoutSessionID: uuid.New(), PaymentURL: "https://pay.example/cs_1", TotalCents: 2400}, nil
}

type stubOrders struct {
	listFilter enums.OrderFilter
	listParams pagination.Params
	shipErr    error
	shipped    string
	deleted    uuid.UUID
}

func (s *stubOrders) List(_ context.Context, filter enums.OrderFilter, params pagination.Params) (*internalorders.OrderList, error) {
	s.listFilter = filter
	s.listParams = params
	return &internalorders.OrderList{Orders: []internalorders.OrderDTO{}}, nil
}

func (s *stubOrders) Get(_ context.Context, id uuid.UUID) (*internalorders.OrderDTO, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
}

func (s *stubOrders) Delete(_ context.Context, id uuid.UUID) error {
	s.deleted = id
	return nil
}

func (s *stubOrders) MarkShipped(_ context.Context, id uuid.UUID, tracking string) (*internalorders.OrderDTO, error) {
	if s.shipErr != nil {
		return nil, s.shipErr
	}
	s.shipped = tracking
	return &internalorders.OrderDTO{ID: id, Shipped: true, TrackingNumber: &tracking}, nil
}

type stubStock struct {
	upsertCreated bool
	upsertInput   stock.UpsertInput
}

func (s *stubStock) List(context.Context) ([]stock.ItemDTO, error) {
	return []stock.ItemDTO{{ID: 7, Title: "Fern Study", Kind: enums.ItemKindSmallPrint, Quantity: 10}}, nil
}

func (s *stubStock) Get(_ context.Context, id int64) (*stock.ItemDTO, error) {
	if id != 7 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
	}
	return &stock.ItemDTO{ID: 7, Title: "Fern Study"}, nil
}

func (s *stubStock) Upsert(_ context.Context, input stock.UpsertInput) (*stock.ItemDTO, bool, error) {
	s.upsertInput = input
	return &stock.ItemDTO{ID: 9, Title: input.Title}, s.upsertCreated, nil
}

func (s *stubStock) Delete(context.Context, int64) error { return nil }

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

func serve(method, pattern, target, body string, h http.HandlerFunc) *httptest.ResponseRecorder {
	router := chi.NewRouter()
	router.Method(method, pattern, h)
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestCheckoutParsesItemMap(t *testing.T) {
	svc := &stubCheckout{}
	rec := serve(http.MethodPost, "/checkout", "/checkout", `{"items":{"7":2,"3":1}}`, Checkout(svc, nil))

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, cart.Cart{7: 2, 3: 1}, svc.got)

	var body struct {
		Data checkoutsvc.SessionResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "https://pay.example/cs_1", body.Data.PaymentURL)
}

func TestCheckoutRejectsBadCarts(t *testing.T) {
	cases := map[string]string{
		"empty":         `{"items":{}}`,
		"missing":       `{}`,
		"zero quantity": `{"items":{"7":0}}`,
		"bad id":        `{"items":{"seven":1}}`,
		"unknown field": `{"items":{"7":1},"coupon":"x"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			svc := &stubCheckout{}
			rec := serve(http.MethodPost, "/checkout", "/checkout", body, Checkout(svc, nil))
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Nil(t, svc.got)
		})
	}
}

func TestCheckoutSurfacesUnknownItems(t *testing.T) {
	svc := &stubCheckout{err: pkgerrors.Wrap(pkgerrors.CodeUnknownItem, &cart.UnknownItemError{IDs: []int64{99}}, "unknown item ids").
		WithDetails(map[string]any{"item_ids": []int64{99}})}
	rec := serve(http.MethodPost, "/checkout", "/checkout", `{"items":{"99":1}}`, Checkout(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), string(pkgerrors.CodeUnknownItem))
}

func TestAdminOrdersPassesFilterAndCursor(t *testing.T) {
	svc := &stubOrders{}
	rec := serve(http.MethodGet, "/orders", "/orders?filter=unshipped&limit=5&cursor=abc", "", AdminOrders(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, enums.OrderFilterUnshipped, svc.listFilter)
	assert.Equal(t, pagination.Params{Limit: 5, Cursor: "abc"}, svc.listParams)

	rec = serve(http.MethodGet, "/orders", "/orders?filter=late", "", AdminOrders(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminOrderShip(t *testing.T) {
	id := uuid.New()
	svc := &stubOrders{}
	rec := serve(http.MethodPut, "/orders/{orderID}/ship", "/orders/"+id.String()+"/ship", `{"tracking_number":"9400111899223"}`, AdminOrderShip(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "9400111899223", svc.shipped)

	svc.shipErr = pkgerrors.New(pkgerrors.CodeStateConflict, "order already shipped")
	rec = serve(http.MethodPut, "/orders/{orderID}/ship", "/orders/"+id.String()+"/ship", `{"tracking_number":"other"}`, AdminOrderShip(svc, nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = serve(http.MethodPut, "/orders/{orderID}/ship", "/orders/"+id.String()+"/ship", `{"tracking_number":""}`, AdminOrderShip(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminOrderDetailAndDelete(t *testing.T) {
	id := uuid.New()
	svc := &stubOrders{}

	rec := serve(http.MethodGet, "/orders/{orderID}", "/orders/"+id.String(), "", AdminOrderDetail(svc, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(http.MethodGet, "/orders/{orderID}", "/orders/nope", "", AdminOrderDetail(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(http.MethodDelete, "/orders/{orderID}", "/orders/"+id.String(), "", AdminOrderDelete(svc, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, id, svc.deleted)
}

func TestOrderRouteOutcomes(t *testing.T) {
	id := uuid.New()
	cases := []struct {
		name   string
		svc    internalorders.Service
		target string
		want   int
	}{
		{name: "missing service", svc: nil, target: "/orders/" + id.String(), want: http.StatusInternalServerError},
		{name: "bad id", svc: &stubOrders{}, target: "/orders/42", want: http.StatusBadRequest},
		{name: "handled", svc: &stubOrders{}, target: "/orders/" + id.String(), want: http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serve(http.MethodDelete, "/orders/{orderID}", tc.target, "", AdminOrderDelete(tc.svc, nil))
			assert.Equal(t, tc.want, rec.Code)
			if tc.want == http.StatusNoContent {
				assert.Empty(t, rec.Body.String())
			}
		})
	}
}

func TestStockRoutes(t *testing.T) {
	svc := &stubStock{}

	rec := serve(http.MethodGet, "/stock", "/stock", "", StockList(svc, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Fern Study")

	rec = serve(http.MethodGet, "/stock/{itemID}", "/stock/8", "", StockGet(svc, nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	svc.upsertCreated = true
	rec = serve(http.MethodPut, "/stock", "/stock", `{"title":"  Moth Button ","kind":"button","quantity":40}`, AdminStockUpsert(svc, nil))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "Moth Button", svc.upsertInput.Title)
	assert.Nil(t, svc.upsertInput.ID)

	rec = serve(http.MethodPut, "/stock", "/stock", `{"title":"Moth","kind":"sticker","quantity":1}`, AdminStockUpsert(svc, nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(http.MethodDelete, "/stock/{itemID}", "/stock/7", "", AdminStockDelete(svc, nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestHealthReadyReportsFailingDependency(t *testing.T) {
	cfg := &config.Config{}
	ok := pingFunc(func(context.Context) error { return nil })
	down := pingFunc(func(context.Context) error { return errors.New("dial tcp: refused") })

	rec := serve(http.MethodGet, "/ready", "/ready", "", HealthReady(cfg, nil, map[string]Pinger{"db": ok, "redis": ok}))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = serve(http.MethodGet, "/ready", "/ready", "", HealthReady(cfg, nil, map[string]Pinger{"db": ok, "redis": down}))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "redis")
}
