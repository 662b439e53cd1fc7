package order

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

// Client queries the server-authoritative order collaborator. The gateway
// return page and ambiguous submission outcomes are resolved exclusively
// through it, never from client-visible redirect parameters.
type Client struct {
	client   *http.Client
	orderURL string
}

func NewClient(client *http.Client, orderURL string) *Client {
	return &Client{client: client, orderURL: orderURL}
}

func (cl *Client) do(c context.Context, method, url string) (Order, error) {
	logger := zerolog.Ctx(c)

	req, err := http.NewRequestWithContext(c, method, url, nil)
	if err != nil {
		return Order{}, fmt.Errorf("failed creating order request with error=%w", err)
	}
	req.Header.Add(inHttp.KeyHeaderRequestID, log.RequestIDFromContext(c))
	resp, err := cl.client.Do(req)
	if err != nil {
		return Order{}, fmt.Errorf(
			"failed calling order endpoint with error=%w: %w",
			err,
			inErrors.ErrTransient,
		)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Order{}, fmt.Errorf("order endpoint: %w", inErrors.ErrOrderNotFound)
	case resp.StatusCode >= http.StatusInternalServerError:
		return Order{}, fmt.Errorf(
			"order endpoint returned status code=%d: %w",
			resp.StatusCode,
			inErrors.ErrTransient,
		)
	case resp.StatusCode >= http.StatusBadRequest:
		rejection := struct {
			Message string `json:"message"`
		}{}
		if err := json.NewDecoder(resp.Body).Decode(&rejection); err != nil ||
			rejection.Message == "" {
			rejection.Message = fmt.Sprintf("status code=%d", resp.StatusCode)
		}
		return Order{}, fmt.Errorf(
			"order endpoint rejected request with message=%s: %w",
			rejection.Message,
			inErrors.ErrServerRejection,
		)
	}

	o := Order{}
	err = json.NewDecoder(resp.Body).Decode(&o)
	if err != nil {
		return Order{}, fmt.Errorf("failed decoding order with error=%w", err)
	}
	logger.Info().
		Str(log.KeyOrderID, o.ID.String()).
		Str(log.KeyOrderStatus, string(o.Status)).
		Msg("fetched authoritative order state")
	return o, nil
}

// Fetch re-queries the authoritative order state.
func (cl *Client) Fetch(c context.Context, id uuid.UUID) (Order, error) {
	c, span := otel.Tracer.Start(c, "order.Client Fetch")
	defer span.End()

	o, err := cl.do(c, http.MethodGet, cl.orderURL+"/"+id.String())
	if err != nil {
		otel.RecordError(err, span)
		zerolog.Ctx(c).Error().Err(err).Msg(err.Error())
		return Order{}, err
	}
	return o, nil
}

// FetchByTransaction resolves a redirect-gateway return: the server maps the
// payment transaction id to its order.
func (cl *Client) FetchByTransaction(c context.Context, transactionID string) (Order, error) {
	c, span := otel.Tracer.Start(c, "order.Client FetchByTransaction")
	defer span.End()

	o, err := cl.do(c, http.MethodGet, cl.orderURL+"?transaction_id="+transactionID)
	if err != nil {
		otel.RecordError(err, span)
		zerolog.Ctx(c).Error().Err(err).Msg(err.Error())
		return Order{}, err
	}
	return o, nil
}

// Cancel requests cancellation of a pending order and returns the server's
// actual resulting state.
func (cl *Client) Cancel(c context.Context, id uuid.UUID) (Order, error) {
	c, span := otel.Tracer.Start(c, "order.Client Cancel")
	defer span.End()

	o, err := cl.do(c, http.MethodPost, cl.orderURL+"/"+id.String()+"/cancel")
	if err != nil {
		otel.RecordError(err, span)
		zerolog.Ctx(c).Error().Err(err).Msg(err.Error())
		return Order{}, err
	}
	return o, nil
}
