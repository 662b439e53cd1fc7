package controller

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pratama/storefront/internal/cart"
	"github.com/pratama/storefront/internal/engine"
	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
	"github.com/pratama/storefront/internal/inventory"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

type addItemRequest struct {
	ProductID uuid.UUID       `validate:"required"       json:"product_id"`
	Name      string          `validate:"required"       json:"name"`
	UnitPrice decimal.Decimal `validate:"required"       json:"unit_price"`
	Quantity  int32           `validate:"required,gte=1" json:"quantity"`
	Variant   cart.Variant    `                          json:"variant"`
}

type updateQuantityRequest struct {
	Quantity int32 `json:"quantity"`
}

type CartController struct {
	engine   *engine.Engine
	fetcher  *inventory.Fetcher
	validate *validator.Validate
}

func AttachCartController(router *mux.Router, eng *engine.Engine, fetcher *inventory.Fetcher) {
	controller := CartController{
		engine:   eng,
		fetcher:  fetcher,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	sub := router.PathPrefix("/carts").Subrouter()
	sub.HandleFunc("", controller.View).Methods(http.MethodGet)
	sub.HandleFunc("", controller.Clear).Methods(http.MethodDelete)
	sub.HandleFunc("/items", controller.AddItem).Methods(http.MethodPost)
	sub.HandleFunc("/items/{itemKey}", controller.UpdateQuantity).Methods(http.MethodPut)
	sub.HandleFunc("/items/{itemKey}", controller.RemoveItem).Methods(http.MethodDelete)
}

// View revalidates price and stock for cart contents opportunistically, then
// returns lines, recomputed subtotal and outstanding warnings.
func (t CartController) View(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController View")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController View").
		Logger()
	c = logger.WithContext(c)

	err := t.engine.Revalidate(c, t.fetcher)
	if err != nil {
		// Revalidation is best-effort; the cart view renders from the last
		// known data.
		logger.Warn().Err(err).Msg("cart revalidation incomplete")
	}

	var items []cart.LineItem
	var subtotal decimal.Decimal
	var warnings []inventory.Warning
	err = t.engine.Do(c, func(context.Context) {
		items = t.engine.Ledger().Items()
		subtotal = t.engine.Ledger().Subtotal()
		warnings = t.engine.Book().Outstanding()
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"data": map[string]interface{}{
			"items":    items,
			"subtotal": subtotal,
			"warnings": warnings,
		},
	})
}

func (t CartController) AddItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController AddItem")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController AddItem").
		Logger()
	c = logger.WithContext(c)

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	reqBody := addItemRequest{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w: %w", err, inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "validating request body").Logger()
	if err := t.validate.StructCtx(c, reqBody); err != nil {
		err = fmt.Errorf("failed validating request body with error=%w: %w", err, inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().
		Str(log.KeyProductID, reqBody.ProductID.String()).
		Int32(log.KeyQuantity, reqBody.Quantity).
		Logger()
	c = logger.WithContext(c)

	var item cart.LineItem
	var addErr error
	err := t.engine.Do(c, func(cc context.Context) {
		item, addErr = t.engine.Ledger().AddItem(cc, cart.Product{
			ID:        reqBody.ProductID,
			Name:      reqBody.Name,
			UnitPrice: reqBody.UnitPrice,
		}, reqBody.Quantity, reqBody.Variant)
		if addErr == nil {
			t.engine.Book().Reconcile(cc, t.engine.Ledger().Items())
		}
	})
	if err == nil {
		err = addErr
	}
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger.Info().Str(log.KeyItemKey, item.Key).Msg("added item to cart")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusCreated,
		"data":       map[string]interface{}{"item": item},
	})
}

func (t CartController) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController UpdateQuantity")
	defer span.End()

	itemKey := mux.Vars(r)["itemKey"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController UpdateQuantity").
		Str(log.KeyItemKey, itemKey).
		Logger()
	c = logger.WithContext(c)

	reqBody := updateQuantityRequest{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w: %w", err, inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	var opErr error
	err := t.engine.Do(c, func(cc context.Context) {
		opErr = t.engine.Ledger().UpdateQuantity(cc, itemKey, reqBody.Quantity)
		if opErr == nil {
			t.engine.Book().Reconcile(cc, t.engine.Ledger().Items())
		}
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger.Info().Int32(log.KeyQuantity, reqBody.Quantity).Msg("updated item quantity")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
	})
}

func (t CartController) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController RemoveItem")
	defer span.End()

	itemKey := mux.Vars(r)["itemKey"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController RemoveItem").
		Str(log.KeyItemKey, itemKey).
		Logger()
	c = logger.WithContext(c)

	var opErr error
	err := t.engine.Do(c, func(cc context.Context) {
		opErr = t.engine.Ledger().RemoveItem(cc, itemKey)
		if opErr == nil {
			t.engine.Book().Reconcile(cc, t.engine.Ledger().Items())
		}
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger.Info().Msg("removed item from cart")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
	})
}

func (t CartController) Clear(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CartController Clear")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CartController Clear").
		Logger()
	c = logger.WithContext(c)

	var opErr error
	err := t.engine.Do(c, func(cc context.Context) {
		opErr = t.engine.Ledger().Clear(cc)
		if opErr == nil {
			t.engine.Book().Reconcile(cc, t.engine.Ledger().Items())
		}
	})
	if err == nil {
		err = opErr
	}
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger.Info().Msg("cleared cart")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
	})
}
