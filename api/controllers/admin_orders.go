package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/kiggyshop-backend/api/responses"
	"github.com/angelmondragon/kiggyshop-backend/api/validators"
	internalorders "github.com/angelmondragon/kiggyshop-backend/internal/orders"
	"github.com/angelmondragon/kiggyshop-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
	"github.com/angelmondragon/kiggyshop-backend/pkg/pagination"
)

type shipOrderRequest struct {
	TrackingNumber string `json:"tracking_number" validate:"required,max=64"`
}

var errOrdersUnavailable = pkgerrors.New(pkgerrors.CodeInternal, "orders service unavailable")

// orderRoute resolves {orderID} and hands it to fn. fn writes the success
// response; a returned error is rendered as the error envelope.
func orderRoute(svc internalorders.Service, logg *logger.Logger, fn func(w http.ResponseWriter, r *http.Request, id uuid.UUID) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var err error = errOrdersUnavailable
		if svc != nil {
			var id uuid.UUID
			if id, err = validators.ParsePathUUID(r, "orderID"); err == nil {
				err = fn(w, r, id)
			}
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
		}
	}
}

// AdminOrders pages through orders newest first. ?filter narrows by shipment
// state; ?cursor continues from the previous page.
func AdminOrders(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, errOrdersUnavailable)
			return
		}
		q := r.URL.Query()
		filter, err := enums.ParseOrderFilter(q.Get("filter"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order filter").
				WithDetails(map[string]string{"filter": "must be one of all, shipped, unshipped"}))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		page, err := svc.List(r.Context(), filter, pagination.Params{Limit: limit, Cursor: strings.TrimSpace(q.Get("cursor"))})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, page)
	}
}

func AdminOrderDetail(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderRoute(svc, logg, func(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
		order, err := svc.Get(r.Context(), id)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, order)
		return nil
	})
}

func AdminOrderDelete(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderRoute(svc, logg, func(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
		if err := svc.Delete(r.Context(), id); err != nil {
			return err
		}
		w.WriteHeader(http.StatusNoContent)
		return nil
	})
}

// AdminOrderShip stores the tracking number. Shipping twice is a 422.
func AdminOrderShip(svc internalorders.Service, logg *logger.Logger) http.HandlerFunc {
	return orderRoute(svc, logg, func(w http.ResponseWriter, r *http.Request, id uuid.UUID) error {
		var req shipOrderRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			return err
		}
		order, err := svc.MarkShipped(r.Context(), id, req.TrackingNumber)
		if err != nil {
			return err
		}
		responses.WriteSuccess(w, order)
		return nil
	})
}
