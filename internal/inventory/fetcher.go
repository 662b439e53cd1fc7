package inventory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	inErrors "github.com/pratama/storefront/internal/errors"
	inHttp "github.com/pratama/storefront/internal/http"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

// ProductState is the server's current truth for a product, fetched on demand
// for reconciliation after a channel loss and for opportunistic cart
// revalidation.
type ProductState struct {
	ProductID         uuid.UUID       `json:"product_id"`
	AvailableQuantity int32           `json:"available_quantity"`
	UnitPrice         decimal.Decimal `json:"unit_price"`
}

type Fetcher struct {
	client       *http.Client
	inventoryURL string
}

func NewFetcher(client *http.Client, inventoryURL string) *Fetcher {
	return &Fetcher{client: client, inventoryURL: inventoryURL}
}

func (f *Fetcher) Fetch(c context.Context, productID uuid.UUID) (ProductState, error) {
	c, span := otel.Tracer.Start(c, "Fetcher Fetch")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Fetcher Fetch").
		Str(log.KeyProductID, productID.String()).
		Logger()

	logger.Info().Msg("fetching product state")
	req, err := http.NewRequestWithContext(
		c,
		http.MethodGet,
		f.inventoryURL+"/"+productID.String(),
		nil,
	)
	if err != nil {
		err = fmt.Errorf("failed creating product state request with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return ProductState{}, err
	}
	req.Header.Add(inHttp.KeyHeaderRequestID, log.RequestIDFromContext(c))
	resp, err := f.client.Do(req)
	if err != nil {
		err = fmt.Errorf(
			"failed fetching product state with error=%w: %w",
			err,
			inErrors.ErrTransient,
		)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return ProductState{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf(
			"inventory endpoint returned status code=%d: %w",
			resp.StatusCode,
			inErrors.ErrTransient,
		)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return ProductState{}, err
	}

	state := ProductState{}
	err = json.NewDecoder(resp.Body).Decode(&state)
	if err != nil {
		err = fmt.Errorf("failed decoding product state with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return ProductState{}, err
	}
	logger.Info().Int32(log.KeyAvailable, state.AvailableQuantity).Msg("fetched product state")
	return state, nil
}

// FetchAll fetches the current state of every listed product. Partial results
// are returned alongside the joined error so a reconciliation pass can apply
// whatever truth it managed to obtain.
func (f *Fetcher) FetchAll(
	c context.Context,
	productIDs []uuid.UUID,
) ([]ProductState, error) {
	c, span := otel.Tracer.Start(c, "Fetcher FetchAll")
	defer span.End()

	states := make([]ProductState, 0, len(productIDs))
	var joined error
	for _, id := range productIDs {
		state, err := f.Fetch(c, id)
		if err != nil {
			joined = errors.Join(joined, err)
			continue
		}
		states = append(states, state)
	}
	if joined != nil {
		otel.RecordError(joined, span)
	}
	return states, joined
}
