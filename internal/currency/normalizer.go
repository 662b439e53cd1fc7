package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	inErrors "github.com/pratama/storefront/internal/errors"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

// Table is an exchange rate table keyed to a fixed base currency. Rates are
// expressed relative to the base.
type Table struct {
	Base      string                     `json:"base"`
	Rates     map[string]decimal.Decimal `json:"rates"`
	FetchedAt time.Time                  `json:"fetched_at"`
}

// Normalizer converts base-currency amounts into a display currency. The
// conversion is presentation only; the authoritative charge is always computed
// and verified in base currency and never passes through here.
type Normalizer struct {
	client     *http.Client
	ratesURL   string
	staleAfter time.Duration

	mu    sync.RWMutex
	table Table
}

func NewNormalizer(
	client *http.Client,
	ratesURL string,
	base string,
	staleAfter time.Duration,
) *Normalizer {
	return &Normalizer{
		client:     client,
		ratesURL:   ratesURL,
		staleAfter: staleAfter,
		table: Table{
			Base:  base,
			Rates: map[string]decimal.Decimal{base: decimal.NewFromInt(1)},
		},
	}
}

// Table returns a snapshot of the current rate table.
func (n *Normalizer) Table() Table {
	n.mu.RLock()
	defer n.mu.RUnlock()
	rates := make(map[string]decimal.Decimal, len(n.table.Rates))
	for code, rate := range n.table.Rates {
		rates[code] = rate
	}
	return Table{Base: n.table.Base, Rates: rates, FetchedAt: n.table.FetchedAt}
}

// Stale reports whether the table is older than the configured freshness
// window. Staleness never blocks display; callers only flag it.
func (n *Normalizer) Stale() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return time.Since(n.table.FetchedAt) > n.staleAfter
}

// DisplayAmount converts amount from one currency to another through the
// table's base. When source and target are the same currency the amount is
// returned untouched so no precision is lost on the identity path.
func (n *Normalizer) DisplayAmount(
	amount decimal.Decimal,
	from string,
	to string,
) (decimal.Decimal, error) {
	if from == to {
		return amount, nil
	}

	table := n.Table()
	converted := amount
	if from != table.Base {
		rate, ok := table.Rates[from]
		if !ok || rate.IsZero() {
			return decimal.Zero, fmt.Errorf(
				"no rate for currency=%s: %w",
				from,
				inErrors.ErrUnknownCurrency,
			)
		}
		converted = converted.Div(rate)
	}
	if to != table.Base {
		rate, ok := table.Rates[to]
		if !ok {
			return decimal.Zero, fmt.Errorf(
				"no rate for currency=%s: %w",
				to,
				inErrors.ErrUnknownCurrency,
			)
		}
		converted = converted.Mul(rate)
	}
	return converted, nil
}

type rateTableResponse struct {
	Rates     map[string]decimal.Decimal `json:"rates"`
	Base      string                     `json:"base"`
	Timestamp int64                      `json:"timestamp"`
}

// Refresh fetches a new rate table. On any failure the last-known table is
// retained and the table simply ages into staleness; rendering is never
// blocked.
func (n *Normalizer) Refresh(c context.Context) error {
	c, span := otel.Tracer.Start(c, "Normalizer Refresh")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Normalizer Refresh").
		Str(log.KeyProcess, "fetching rate table").
		Logger()

	logger.Info().Msg("fetching rate table")
	req, err := http.NewRequestWithContext(c, http.MethodGet, n.ratesURL, nil)
	if err != nil {
		err = fmt.Errorf("failed creating rate table request with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	resp, err := n.client.Do(req)
	if err != nil {
		err = fmt.Errorf(
			"failed fetching rate table with error=%w: %w",
			err,
			inErrors.ErrTransient,
		)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		err = fmt.Errorf(
			"rate endpoint returned status code=%d: %w",
			resp.StatusCode,
			inErrors.ErrTransient,
		)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("fetched rate table")

	logger = logger.With().Str(log.KeyProcess, "decoding rate table").Logger()
	logger.Info().Msg("decoding rate table")
	body := rateTableResponse{}
	err = json.NewDecoder(resp.Body).Decode(&body)
	if err != nil {
		err = fmt.Errorf("failed decoding rate table with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	if body.Base == "" || len(body.Rates) == 0 {
		err = fmt.Errorf("rate table is missing base or rates: %w", inErrors.ErrTransient)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return err
	}
	logger.Info().Msg("decoded rate table")

	fetchedAt := time.Now()
	if body.Timestamp > 0 {
		fetchedAt = time.Unix(body.Timestamp, 0)
	}
	if _, ok := body.Rates[body.Base]; !ok {
		body.Rates[body.Base] = decimal.NewFromInt(1)
	}

	n.mu.Lock()
	n.table = Table{Base: body.Base, Rates: body.Rates, FetchedAt: fetchedAt}
	n.mu.Unlock()

	logger.Info().
		Str(log.KeyCurrency, body.Base).
		Int("rateCount", len(body.Rates)).
		Msg("adopted rate table")
	return nil
}

// RefreshLoop keeps the table fresh for the lifetime of the session. Failed
// refreshes retry with bounded exponential backoff; the loop never exits on
// error.
func (n *Normalizer) RefreshLoop(c context.Context, interval time.Duration) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Normalizer RefreshLoop").
		Logger()

	retry := backoff.NewExponentialBackOff()
	retry.InitialInterval = time.Second
	retry.MaxInterval = interval
	retry.MaxElapsedTime = 0

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		err := n.Refresh(c)
		if err != nil {
			wait := retry.NextBackOff()
			logger.Warn().
				Err(err).
				Dur("retryIn", wait).
				Bool("stale", n.Stale()).
				Msg("rate refresh failed, retaining last-known table")
			select {
			case <-c.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		retry.Reset()
		select {
		case <-c.Done():
			return
		case <-ticker.C:
		}
	}
}
