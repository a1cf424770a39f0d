package controllers

import (
	"net/http"

	"github.com/angelmondragon/kiggyshop-backend/api/responses"
	"github.com/angelmondragon/kiggyshop-backend/api/validators"
	"github.com/angelmondragon/kiggyshop-backend/internal/stock"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

type stockUpsertRequest struct {
	ID          *int64 `json:"id" validate:"omitempty,gt=0"`
	Title       string `json:"title" validate:"required,max=200"`
	Kind        string `json:"kind" validate:"required,oneof=big_print small_print button"`
	Description string `json:"description" validate:"max=2000"`
	Quantity    int    `json:"quantity" validate:"min=0"`
}

// StockList returns every catalog item with its current quantity.
func StockList(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		items, err := svc.List(r.Context())
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, items)
	}
}

func StockGet(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		id, err := validators.ParsePathInt64(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, err := svc.Get(r.Context(), id)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, item)
	}
}

// AdminStockUpsert creates an item when the body has no id and replaces it otherwise.
func AdminStockUpsert(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		var payload stockUpsertRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		item, created, err := svc.Upsert(r.Context(), stock.UpsertInput{
			ID:          payload.ID,
			Title:       validators.Clean(payload.Title, 200),
			Kind:        payload.Kind,
			Description: validators.Clean(payload.Description, 2000),
			Quantity:    payload.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, item)
	}
}

func AdminStockDelete(svc stock.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "stock service unavailable"))
			return
		}
		id, err := validators.ParsePathInt64(r, "itemID")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		if err := svc.Delete(r.Context(), id); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
