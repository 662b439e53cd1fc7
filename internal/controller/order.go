package controller

import (
	"context"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/pratama/storefront/internal/engine"
	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/order"
	"github.com/pratama/storefront/internal/otel"
)

type OrderController struct {
	engine *engine.Engine
	client *order.Client
}

func AttachOrderController(router *mux.Router, eng *engine.Engine, client *order.Client) {
	controller := OrderController{engine: eng, client: client}

	sub := router.PathPrefix("/orders").Subrouter()
	sub.HandleFunc("", controller.FindOrders).Methods(http.MethodGet)
	sub.HandleFunc("/{orderId}", controller.FindOrderById).Methods(http.MethodGet)
	sub.HandleFunc("/{orderId}/cancel", controller.Cancel).Methods(http.MethodPost)
}

func (t OrderController) FindOrders(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController FindOrders")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController FindOrders").
		Logger()
	c = logger.WithContext(c)

	var orders []order.Order
	cancelling := map[string]bool{}
	err := t.engine.Do(c, func(context.Context) {
		orders = t.engine.Tracker().Orders()
		for _, o := range orders {
			if t.engine.Tracker().Cancelling(o.ID) {
				cancelling[o.ID.String()] = true
			}
		}
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
			"orders":     orders,
			"cancelling": cancelling,
		},
	})
}

func (t OrderController) FindOrderById(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController FindOrderById")
	defer span.End()

	rawID := mux.Vars(r)["orderId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController FindOrderById").
		Str(log.KeyOrderID, rawID).
		Logger()
	c = logger.WithContext(c)

	orderID, err := uuid.Parse(rawID)
	if err != nil {
		err = fmt.Errorf("invalid orderId=%s with error=%w: %w", rawID, err, inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	var o order.Order
	var found bool
	err = t.engine.Do(c, func(context.Context) {
		o, found = t.engine.Tracker().Get(orderID)
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	// Fall through to the authoritative store for orders not yet tracked in
	// this session, then adopt the result.
	if !found {
		logger = logger.With().Str(log.KeyProcess, "fetching untracked order").Logger()
		fetched, fetchErr := t.client.Fetch(c, orderID)
		if fetchErr != nil {
			otel.RecordError(fetchErr, span)
			logger.Error().Err(fetchErr).Msg(fetchErr.Error())
			writeError(c, w, fetchErr)
			return
		}
		o = fetched
		err = t.engine.Do(c, func(cc context.Context) {
			t.engine.Tracker().Adopt(cc, fetched)
		})
		if err != nil {
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			writeError(c, w, err)
			return
		}
	}

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"data":       map[string]interface{}{"order": o},
	})
}

// Cancel optimistically flags the order, asks the server to cancel, and adopts
// whatever state the server actually returns. A refused cancellation rolls the
// optimistic flag back without touching the tracked state.
func (t OrderController) Cancel(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "OrderController Cancel")
	defer span.End()

	rawID := mux.Vars(r)["orderId"]
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "OrderController Cancel").
		Str(log.KeyOrderID, rawID).
		Logger()
	c = logger.WithContext(c)

	orderID, err := uuid.Parse(rawID)
	if err != nil {
		err = fmt.Errorf("invalid orderId=%s with error=%w: %w", rawID, err, inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "marking order as cancelling").Logger()
	var markErr error
	err = t.engine.Do(c, func(cc context.Context) {
		markErr = t.engine.Tracker().MarkCancelling(cc, orderID)
	})
	if err == nil {
		err = markErr
	}
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	// Like a submission, a dispatched cancel request outlives the view that
	// issued it.
	logger = logger.With().Str(log.KeyProcess, "cancelling order").Logger()
	cancelCtx := logger.WithContext(context.WithoutCancel(c))
	o, cancelErr := t.client.Cancel(cancelCtx, orderID)

	err = t.engine.Do(cancelCtx, func(cc context.Context) {
		if cancelErr != nil {
			t.engine.Tracker().UnmarkCancelling(orderID)
			return
		}
		t.engine.Tracker().Adopt(cc, o)
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	if cancelErr != nil {
		otel.RecordError(cancelErr, span)
		logger.Error().Err(cancelErr).Msg(cancelErr.Error())
		writeError(c, w, cancelErr)
		return
	}

	logger.Info().Str(log.KeyOrderStatus, string(o.Status)).Msg("cancelled order")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"data":       map[string]interface{}{"order": o},
	})
}
