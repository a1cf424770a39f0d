package controllers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/angelmondragon/kiggyshop-backend/api/responses"
	"github.com/angelmondragon/kiggyshop-backend/api/validators"
	"github.com/angelmondragon/kiggyshop-backend/internal/cart"
	checkoutsvc "github.com/angelmondragon/kiggyshop-backend/internal/checkout"
	pkgerrors "github.com/angelmondragon/kiggyshop-backend/pkg/errors"
	"github.com/angelmondragon/kiggyshop-backend/pkg/logger"
)

// checkoutRequest maps item ids (JSON object keys) to quantities.
type checkoutRequest struct {
	Items map[string]int `json:"items" validate:"required,min=1"`
}

// Checkout prices the submitted cart and opens a hosted payment session.
func Checkout(svc checkoutsvc.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "checkout service unavailable"))
			return
		}

		var payload checkoutRequest
		if err := validators.DecodeJSONBody(r, &payload); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		c, err := toCart(payload.Items)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.CreateSession(r.Context(), c)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

func toCart(items map[string]int) (cart.Cart, error) {
	details := map[string]string{}
	c := make(cart.Cart, len(items))
	for rawID, qty := range items {
		id, err := strconv.ParseInt(strings.TrimSpace(rawID), 10, 64)
		if err != nil || id <= 0 {
			details[rawID] = "item id must be a positive integer"
			continue
		}
		if qty <= 0 {
			details[rawID] = "quantity must be greater than 0"
			continue
		}
		c[id] += qty
	}
	if len(details) > 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid cart").WithDetails(details)
	}
	return c, nil
}
