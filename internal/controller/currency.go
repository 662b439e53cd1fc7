package controller

import (
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/pratama/storefront/internal/currency"
	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

type CurrencyController struct {
	normalizer *currency.Normalizer
}

func AttachCurrencyController(router *mux.Router, normalizer *currency.Normalizer) {
	controller := CurrencyController{normalizer: normalizer}

	sub := router.PathPrefix("/currencies").Subrouter()
	sub.HandleFunc("/rates", controller.Rates).Methods(http.MethodGet)
	sub.HandleFunc("/display", controller.Display).Methods(http.MethodGet)
}

func (t CurrencyController) Rates(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CurrencyController Rates")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CurrencyController Rates").
		Logger()
	c = logger.WithContext(c)

	table := t.normalizer.Table()
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"data": map[string]interface{}{
			"table": table,
			"stale": t.normalizer.Stale(),
		},
	})
}

// Display converts an amount for presentation. A stale table is flagged in the
// response but never blocks the conversion.
func (t CurrencyController) Display(w http.ResponseWriter, r *http.Request) {
	c, span := otel.Tracer.Start(r.Context(), "CurrencyController Display")
	defer span.End()

	query := r.URL.Query()
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "CurrencyController Display").
		Str(log.KeyCurrency, query.Get("to")).
		Logger()
	c = logger.WithContext(c)

	amount, err := decimal.NewFromString(query.Get("amount"))
	if err != nil {
		err = fmt.Errorf(
			"invalid amount=%s with error=%w: %w",
			query.Get("amount"),
			err,
			inErrors.ErrValidation,
		)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}
	from := query.Get("from")
	to := query.Get("to")
	if from == "" || to == "" {
		err = fmt.Errorf("from and to currencies are required: %w", inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	converted, err := t.normalizer.DisplayAmount(amount, from, to)
	if err != nil {
		err = fmt.Errorf("failed converting amount with error=%w: %w", err, inErrors.ErrValidation)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		writeError(c, w, err)
		return
	}

	logger.Info().
		Str(log.KeyAmount, converted.String()).
		Msg("converted display amount")
	inHttp.WriteJsonResponse(c, w, map[string]string{}, map[string]interface{}{
		"status":     "success",
		"statusCode": http.StatusOK,
		"data": map[string]interface{}{
			"amount":    converted,
			"formatted": currency.Format(converted, to),
			"currency":  to,
			"stale":     t.normalizer.Stale(),
		},
	})
}
