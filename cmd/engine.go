package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gorilla/mux/otelmux"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/pratama/storefront/internal/cart"
	"github.com/pratama/storefront/internal/checkout"
	"github.com/pratama/storefront/internal/common"
	"github.com/pratama/storefront/internal/config"
	"github.com/pratama/storefront/internal/controller"
	"github.com/pratama/storefront/internal/currency"
	"github.com/pratama/storefront/internal/engine"
	"github.com/pratama/storefront/internal/infra"
	"github.com/pratama/storefront/internal/inventory"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/middleware"
	"github.com/pratama/storefront/internal/order"
	"github.com/pratama/storefront/internal/otel"
)

// RunStorefrontEngine wires and runs the session engine: the event loop owning
// cart, inventory and order state, the push listener feeding it, the rate
// refresher, and the HTTP surface the storefront talks to.
func RunStorefrontEngine(c context.Context) {
	c, span := otel.Tracer.Start(c, "RunStorefrontEngine")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyAppName, common.AppStorefrontEngine).
		Str(log.KeyTag, "main RunStorefrontEngine").
		Logger()

	logger = logger.With().Str(log.KeyProcess, "init config").Logger()
	logger.Info().Msg("initializing config")
	c = logger.WithContext(c)
	cfg := config.Get(c, common.AppStorefrontEngine)
	logger = logger.With().Any(log.KeyConfig, cfg).Logger()
	logger.Info().Msg("initialized config")

	logger = logger.With().Str(log.KeyProcess, "initializing otel sdk").Logger()
	logger.Info().Msg("initializing otel sdk")
	c = logger.WithContext(c)
	otelShutdowns, err := otel.InitOtelSdk(c, common.AppStorefrontEngine, cfg.Otel)
	if err != nil {
		err = fmt.Errorf("failed initializing otel sdk with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	defer func() {
		logger.Info().Msg("shutting down otel")
		c = logger.WithContext(c)
		err = otel.ShutdownOtel(c, otelShutdowns)
		if err != nil {
			err = fmt.Errorf("failed shutting down otel with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown otel")
	}()
	logger.Info().Msg("initialized otel sdk")

	logger = logger.With().Str(log.KeyProcess, "initializing cache").Logger()
	logger.Info().Msg("initializing cache")
	c = logger.WithContext(c)
	cache := infra.NewCacheClient(c, cfg.Cache)
	defer func() {
		logger = logger.With().Str(log.KeyProcess, "shutting down cache").Logger()
		logger.Info().Msg("shutting down cache")
		err = cache.Close()
		if err != nil {
			err = fmt.Errorf("failed shutting down cache with error=%w", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())
			return
		}
		logger.Info().Msg("shutdown cache")
	}()
	logger.Info().Msg("initialized cache")

	sessionID := cfg.Push.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	logger = logger.With().Str(log.KeySessionID, sessionID).Logger()
	c = logger.WithContext(c)

	logger = logger.With().Str(log.KeyProcess, "initializing currency normalizer").Logger()
	logger.Info().Msg("initializing currency normalizer")
	upstreamClient := &http.Client{
		Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}
	staleAfter := time.Duration(cfg.Pricing.RateStalenessMinutes) * time.Minute
	normalizer := currency.NewNormalizer(
		upstreamClient,
		cfg.Upstream.RatesURL,
		cfg.Pricing.BaseCurrency,
		staleAfter,
	)
	logger.Info().Msg("initialized currency normalizer")

	logger = logger.With().Str(log.KeyProcess, "initializing engine state").Logger()
	logger.Info().Msg("initializing engine state")
	book := inventory.NewBook()
	store := cart.NewSnapshotStore(cache)
	ledger := cart.NewLedger(sessionID, book, store)
	if err := ledger.Restore(c); err != nil {
		logger.Warn().Err(err).Msg("failed restoring persisted cart, starting empty")
	}
	tracker := order.NewTracker()
	eng := engine.New(ledger, book, tracker)
	logger.Info().Msg("initialized engine state")

	logger = logger.With().Str(log.KeyProcess, "initializing upstream clients").Logger()
	logger.Info().Msg("initializing upstream clients")
	fetcher := inventory.NewFetcher(upstreamClient, cfg.Upstream.InventoryURL)
	orderClient := order.NewClient(upstreamClient, cfg.Upstream.OrderURL)
	checkoutClient := checkout.NewClient(
		upstreamClient,
		cfg.Upstream.PaymentURL,
		cfg.Upstream.OrderURL,
	)
	logger.Info().Msg("initialized upstream clients")

	logger = logger.With().Str(log.KeyProcess, "initializing checkout orchestrator").Logger()
	logger.Info().Msg("initializing checkout orchestrator")
	policy := checkout.Policy{
		BaseCurrency:          cfg.Pricing.BaseCurrency,
		TaxRate:               decimal.RequireFromString(cfg.Pricing.TaxRate),
		FreeShippingThreshold: decimal.RequireFromString(cfg.Pricing.FreeShippingThreshold),
		FlatShippingFee:       decimal.RequireFromString(cfg.Pricing.FlatShippingFee),
	}
	orchestrator := checkout.NewOrchestrator(policy, ledger, book, checkoutClient)
	logger.Info().Msg("initialized checkout orchestrator")

	logger = logger.With().Str(log.KeyProcess, "starting background loops").Logger()
	logger.Info().Msg("starting background loops")
	go eng.Run(c)
	go store.Run(c)
	go normalizer.RefreshLoop(c, staleAfter)
	listener := engine.NewListener(cache, eng, fetcher, cfg.Push.ChannelPrefix+sessionID)
	go listener.Listen(c)
	logger.Info().Msg("started background loops")

	logger = logger.With().Str(log.KeyProcess, "initializing router").Logger()
	logger.Info().Msg("initializing router")
	router := mux.NewRouter()
	router.Use(
		otelmux.Middleware(common.AppStorefrontEngine),
		middleware.Logging,
		middleware.RecoverPanic,
	)
	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	api := router.PathPrefix("/").Subrouter()
	api.Use(middleware.Auth(cfg.Application.SecretKey))
	controller.AttachCartController(api, eng, fetcher)
	controller.AttachCheckoutController(api, eng, fetcher, orchestrator, orderClient)
	controller.AttachOrderController(api, eng, orderClient)
	controller.AttachCurrencyController(api, normalizer)
	logger.Info().Msg("initialized router")

	logger = logger.With().Str(log.KeyProcess, "initializing server").Logger()
	logger.Info().Msg("initializing server")
	httpServer := http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Application.Host, cfg.Application.Port),
		BaseContext:  func(net.Listener) context.Context { return c },
		Handler:      router,
		ReadTimeout:  45 * time.Second,
		WriteTimeout: 45 * time.Second,
	}
	logger.Info().Msg("initialized server")

	go func() {
		logger = logger.With().Str(log.KeyProcess, "start server").Logger()
		logger.Info().Msgf("start listening request at %s", httpServer.Addr)

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			err = fmt.Errorf("error=%w occured while server is running", err)
			otel.RecordError(err, span)
			logger.Error().Err(err).Msg(err.Error())

			c = logger.WithContext(c)
			if err := otel.ShutdownOtel(c, otelShutdowns); err != nil {
				err = fmt.Errorf("failed shutting down otel with error=%w", err)
				otel.RecordError(err, span)
				logger.Error().Err(err).Msg(err.Error())
				return
			}
			return
		}
		logger.Info().Msg("shutdown server")
	}()

	<-c.Done()
	logger = logger.With().Str(log.KeyProcess, "shutting down http server").Logger()
	logger.Info().Msg("received interuption signal shutting down")
	err = httpServer.Shutdown(c)
	if err != nil {
		err = fmt.Errorf("failed shutting down http server with error=%w", err)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return
	}
	logger.Info().Msg("shutdown http server")
}
