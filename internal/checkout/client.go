package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
	"github.com/pratama/storefront/internal/inventory"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

// RejectionError is a definitive server refusal, surfaced verbatim. Servers
// may include current stock levels for the offending products; callers adopt
// them so the shopper sees why the attempt was refused before resubmitting.
type RejectionError struct {
	Message string                  `json:"message"`
	Stock   []inventory.StockUpdate `json:"stock"`
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("checkout rejected with message=%s", e.Message)
}

func (e *RejectionError) Unwrap() error {
	return inErrors.ErrServerRejection
}

// Client submits checkouts upstream. Submission-class calls are never
// auto-retried: an ambiguous failure is surfaced as recoverable and resolution
// happens against authoritative order status only. Each attempt carries an
// Idempotency-Key so a server may dedupe a resubmission, best-effort.
type Client struct {
	client     *http.Client
	paymentURL string
	orderURL   string
}

func NewClient(client *http.Client, paymentURL, orderURL string) *Client {
	return &Client{client: client, paymentURL: paymentURL, orderURL: orderURL}
}

func (cl *Client) post(
	c context.Context,
	url string,
	sub Submission,
	out interface{},
) error {
	logger := zerolog.Ctx(c)

	body, err := json.Marshal(sub)
	if err != nil {
		return fmt.Errorf("failed marshaling submission with error=%w", err)
	}
	req, err := http.NewRequestWithContext(c, http.MethodPost, url, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed creating submission request with error=%w", err)
	}
	req.Header.Add(inHttp.KeyHeaderContentType, inHttp.ValueHeaderJson)
	req.Header.Add(inHttp.KeyHeaderRequestID, log.RequestIDFromContext(c))
	req.Header.Add(inHttp.KeyHeaderIdempotency, sub.AttemptID.String())

	// A transport failure here is ambiguous: the request may have reached the
	// server. Never auto-retried; resolution goes through authoritative order
	// status.
	resp, err := cl.client.Do(req)
	if err != nil {
		return fmt.Errorf(
			"failed submitting checkout with error=%w: %w",
			err,
			inErrors.ErrGatewayAmbiguous,
		)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return fmt.Errorf(
			"checkout endpoint returned status code=%d: %w",
			resp.StatusCode,
			inErrors.ErrTransient,
		)
	case resp.StatusCode >= http.StatusBadRequest:
		rejection := RejectionError{}
		if err := json.NewDecoder(resp.Body).Decode(&rejection); err != nil ||
			rejection.Message == "" {
			rejection.Message = fmt.Sprintf("status code=%d", resp.StatusCode)
		}
		logger.Error().
			Str("rejection", rejection.Message).
			Int("stockCount", len(rejection.Stock)).
			Msg("checkout submission rejected by server")
		return &rejection
	}

	err = json.NewDecoder(resp.Body).Decode(out)
	if err != nil {
		return fmt.Errorf("failed decoding submission response with error=%w", err)
	}
	return nil
}

// CreatePaymentSession asks the server to mint the signed payment-initiation
// payload for a redirect-gateway submission.
func (cl *Client) CreatePaymentSession(c context.Context, sub Submission) (PaymentSession, error) {
	c, span := otel.Tracer.Start(c, "checkout.Client CreatePaymentSession")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "checkout.Client CreatePaymentSession").
		Str(log.KeyAttemptID, sub.AttemptID.String()).
		Logger()

	logger.Info().Msg("requesting payment session")
	session := PaymentSession{}
	err := cl.post(c, cl.paymentURL, sub, &session)
	if err != nil {
		err = fmt.Errorf("failed creating payment session with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return PaymentSession{}, err
	}
	if session.TransactionID == "" || session.Action == "" {
		err = fmt.Errorf("payment session payload is incomplete: %w", inErrors.ErrServerRejection)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return PaymentSession{}, err
	}
	logger.Info().
		Str("transactionId", session.TransactionID).
		Msg("received payment session")
	return session, nil
}

type createOrderResponse struct {
	OrderID uuid.UUID `json:"order_id"`
	Status  string    `json:"status"`
}

// CreateOrder creates the order directly for deferred-payment methods. A
// response without a valid order id is treated as a failed attempt; the cart
// is never cleared on it.
func (cl *Client) CreateOrder(c context.Context, sub Submission) (uuid.UUID, string, error) {
	c, span := otel.Tracer.Start(c, "checkout.Client CreateOrder")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "checkout.Client CreateOrder").
		Str(log.KeyAttemptID, sub.AttemptID.String()).
		Logger()

	logger.Info().Msg("creating order")
	resp := createOrderResponse{}
	err := cl.post(c, cl.orderURL, sub, &resp)
	if err != nil {
		err = fmt.Errorf("failed creating order with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return uuid.Nil, "", err
	}
	if resp.OrderID == uuid.Nil {
		err = fmt.Errorf("order creation returned no order id: %w", inErrors.ErrServerRejection)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return uuid.Nil, "", err
	}
	logger.Info().Str(log.KeyOrderID, resp.OrderID.String()).Msg("created order")
	return resp.OrderID, resp.Status, nil
}
