package controller

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pratama/storefront/internal/checkout"
	"github.com/pratama/storefront/internal/engine"
	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
	"github.com/pratama/storefront/internal/inventory"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/order"
	"github.com/pratama/storefront/internal/otel"
)

type CheckoutController struct {
	engine       *engine.Engine
	fetcher      *inventory.Fetcher
	orchestrator *checkout.Orchestrator
	orderClient  *order.Client
}

func AttachCheckoutController(
	router *mux.Router,
	eng *engine.Engine,
	fetcher *inventory.Fetcher,
	orchestrator *checkout.Orchestrator,
	orderClient *order.Client,
) {
	controller := CheckoutController{
		engine:       eng,
		fetcher:      fetcher,
		orchestrator: orchestrator,
		orderClient:  orderClient,
	}

	sub := router.PathPrefix("/checkouts").Subrouter()
	sub.HandleFunc("", controller.Submit).Methods(http.MethodPost)
	sub.HandleFunc("", controller.Status).Methods(http.MethodGet)
	sub.HandleFunc("/quote", controller.Quote).Methods(http.MethodGet)
	sub.HandleFunc("/return", controller.Return).Methods(http.MethodGet)
	sub.HandleFunc("/reset", controller.Reset).Methods(http.MethodPost)
}

// Submit drives one full checkout attempt. State transitions run on the
// engine loop; the upstream submission runs outside it so push events keep
// flowing while the request is in flight. The dispatched submission is
// deliberately detached from the request context: a shopper navigating away
// must not cancel a payment that may already be processing.
func (t CheckoutController) Submit(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CheckoutController Submit")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CheckoutController Submit").
		Logger()
	c = logger.WithContext(c)

	logger = logger.With().Str(log.KeyProcess, "decoding request body").Logger()
	reqBody := checkout.Request{}
	if err := json.NewDecoder(r.Body).Decode(&reqBody); err != nil {
		err = fmt.Errorf("failed decoding request body with error=%w: %w", err, inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	// Opportunistic revalidation so the stock-warning gate sees fresh data.
	logger = logger.With().Str(log.KeyProcess, "revalidating cart").Logger()
	if err := t.engine.Revalidate(c, t.fetcher); err != nil {
		logger.Warn().Err(err).Msg("cart revalidation incomplete before checkout")
	}

	logger = logger.With().Str(log.KeyProcess, "beginning checkout").Logger()
	var sub checkout.Submission
	var beginErr error
	err := t.engine.Do(c, func(cc context.Context) {
		sub, beginErr = t.orchestrator.Begin(cc, reqBody)
	})
	if err == nil {
		err = beginErr
	}
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().
		Str(log.KeyProcess, "executing submission").
		Str(log.KeyAttemptID, sub.AttemptID.String()).
		Logger()
	submitCtx := logger.WithContext(context.WithoutCancel(c))
	outcome, submitErr := t.orchestrator.Execute(submitCtx, sub)

	var rejection *checkout.RejectionError
	errors.As(submitErr, &rejection)

	err = t.engine.Do(submitCtx, func(cc context.Context) {
		t.orchestrator.Complete(cc, outcome, submitErr)
		if rejection != nil && len(rejection.Stock) > 0 {
			// The server told us the stock it refused on; adopt it so the
			// warnings surface before any resubmission.
			for _, update := range rejection.Stock {
				t.engine.Book().Apply(cc, update, t.engine.Ledger().Items())
			}
		}
		if submitErr == nil && outcome.Family == checkout.FamilyDirect {
			now := time.Now()
			t.engine.Tracker().Track(cc, order.Order{
				ID:              outcome.OrderID,
				Items:           sub.Items,
				Status:          order.Status(outcome.Status),
				PaymentStatus:   "unpaid",
				ShippingAddress: sub.Address,
				Total:           sub.Charge.Total,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	if submitErr != nil {
		if errors.Is(submitErr, inErrors.ErrServerRejection) &&
			(rejection == nil || len(rejection.Stock) == 0) {
			// Rejection without stock details; re-fetch so the refusal cause
			// becomes visible locally.
			if err := t.engine.Revalidate(submitCtx, t.fetcher); err != nil {
				logger.Warn().Err(err).Msg("cart revalidation incomplete after rejection")
			}
		}
		otel.RecordError(submitErr, span)
		logger.Error().Err(submitErr).Msg(submitErr.Error())
		writeError(c, w, submitErr)
		return
	}

	logger.Info().Str("family", string(outcome.Family)).Msg("checkout submitted")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusCreated,
		"data":       map[string]interface{}{"outcome": outcome},
	})
}

func (t CheckoutController) Status(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CheckoutController Status")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CheckoutController Status").
		Logger()
	c = logger.WithContext(c)

	var status checkout.Status
	var pendingTx string
	err := t.engine.Do(c, func(context.Context) {
		status = t.orchestrator.Status()
		pendingTx = t.orchestrator.PendingTransaction()
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	data := map[string]interface{}{"checkout_status": status}
	if pendingTx != "" {
		data["pending_transaction_id"] = pendingTx
	}
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"data":       data,
	})
}

// Quote returns the charge breakdown for the current cart without starting a
// checkout.
func (t CheckoutController) Quote(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CheckoutController Quote")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CheckoutController Quote").
		Logger()
	c = logger.WithContext(c)

	discount := decimal.Zero
	if raw := r.URL.Query().Get("discount"); raw != "" {
		parsed, err := decimal.NewFromString(raw)
		if err != nil {
			err = fmt.Errorf("invalid discount=%s with error=%w: %w", raw, err, inErrors.ErrValidation)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			writeError(c, w, err)
			return
		}
		discount = parsed
	}

	var charge checkout.Charge
	var quoteErr error
	err := t.engine.Do(c, func(context.Context) {
		charge, quoteErr = t.orchestrator.Quote(discount)
	})
	if err == nil {
		err = quoteErr
	}
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"data":       map[string]interface{}{"charge": charge},
	})
}

// Return handles the gateway return page. The transaction id identifies the
// attempt, but the payment result is resolved exclusively from the
// authoritative order record, never from redirect query parameters.
func (t CheckoutController) Return(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CheckoutController Return")
	defer span.End()

	transactionID := r.URL.Query().Get("transaction_id")
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CheckoutController Return").
		Str("transactionId", transactionID).
		Logger()
	c = logger.WithContext(c)

	if transactionID == "" {
		err := fmt.Errorf("transaction_id is required: %w", inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger = logger.With().Str(log.KeyProcess, "fetching authoritative order").Logger()
	o, err := t.orderClient.FetchByTransaction(c, transactionID)
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	paid := o.PaymentStatus == "paid"
	logger = logger.With().
		Str(log.KeyProcess, "finishing redirect").
		Str(log.KeyOrderID, o.ID.String()).
		Bool("paid", paid).
		Logger()
	err = t.engine.Do(c, func(cc context.Context) {
		t.engine.Tracker().Adopt(cc, o)
		t.orchestrator.FinishRedirect(cc, paid)
	})
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger.Info().Msg("resolved gateway return")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"data": map[string]interface{}{
			"order": o,
			"paid":  paid,
		},
	})
}

func (t CheckoutController) Reset(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CheckoutController Reset")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CheckoutController Reset").
		Logger()
	c = logger.WithContext(c)

	var resetErr error
	err := t.engine.Do(c, func(context.Context) {
		resetErr = t.orchestrator.Reset()
	})
	if err == nil {
		err = resetErr
	}
	if err != nil {
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger.Info().Msg("checkout session reset")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
	})
}
