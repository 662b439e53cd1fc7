package checkout

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/pratama/storefront/internal/cart"
	inErrors "github.com/pratama/storefront/internal/errors"
	"github.com/pratama/storefront/internal/inventory"
	"github.com/pratama/storefront/internal/log"
	"github.com/pratama/storefront/internal/otel"
)

// WarningSource exposes the unresolved stock warnings gating checkout.
type WarningSource interface {
	Outstanding() []inventory.Warning
}

// Orchestrator drives the checkout state machine
// Idle → Validating → Submitting → {Redirected | Succeeded | Failed}.
//
// Its state is owned by the engine event loop: Begin and Complete are pure
// state transitions executed inside the loop, Execute performs the network
// call outside it. This split means an in-flight submission never blocks
// delivery of push events, and a stock warning can still surface while
// Submitting.
type Orchestrator struct {
	validate *validator.Validate
	policy   Policy
	ledger   *cart.Ledger
	warnings WarningSource
	client   *Client

	status    Status
	current   *Submission
	pendingTx string
}

func NewOrchestrator(
	policy Policy,
	ledger *cart.Ledger,
	warnings WarningSource,
	client *Client,
) *Orchestrator {
	return &Orchestrator{
		validate: validator.New(validator.WithRequiredStructEnabled()),
		policy:   policy,
		ledger:   ledger,
		warnings: warnings,
		client:   client,
		status:   StatusIdle,
	}
}

func (o *Orchestrator) Status() Status {
	return o.status
}

// PendingTransaction returns the transaction id of an unresolved redirect, if
// any.
func (o *Orchestrator) PendingTransaction() string {
	return o.pendingTx
}

// Quote computes the charge breakdown for the current cart without touching
// the state machine, for on-screen display before submission.
func (o *Orchestrator) Quote(discount decimal.Decimal) (Charge, error) {
	return ComputeCharge(o.policy, o.ledger.Items(), discount)
}

// Begin validates the checkout request and, on success, snapshots the cart
// and enters Submitting. Validation runs entirely locally and issues no
// network call. Resubmission while Submitting is refused.
func (o *Orchestrator) Begin(c context.Context, req Request) (Submission, error) {
	c, span := otel.Tracer.Start(c, "Orchestrator Begin")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator Begin").
		Str("method", string(req.Method)).
		Logger()

	if o.status == StatusSubmitting {
		err := fmt.Errorf("checkout: %w", inErrors.ErrSubmissionInFlight)
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Submission{}, err
	}

	// A fresh attempt supersedes an abandoned redirect; its transaction id
	// must not leak into the new session.
	o.pendingTx = ""

	o.status = StatusValidating
	logger = logger.With().Str(log.KeyProcess, "validating checkout").Logger()
	logger.Info().Msg("validating checkout")
	err := o.runValidation(c, req)
	if err != nil {
		o.status = StatusIdle
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Submission{}, err
	}
	logger.Info().Msg("validated checkout")

	logger = logger.With().Str(log.KeyProcess, "computing charge").Logger()
	logger.Info().Msg("computing charge")
	items := o.ledger.Items()
	charge, err := ComputeCharge(o.policy, items, req.Discount)
	if err != nil {
		o.status = StatusIdle
		otel.RecordError(err, span)
		logger.Error().Err(err).Msg(err.Error())
		return Submission{}, err
	}
	logger = logger.With().Any(log.KeyCharge, charge).Logger()
	logger.Info().Msg("computed charge")

	sub := Submission{
		AttemptID: uuid.New(),
		Method:    req.Method,
		Address:   req.Address,
		Items:     items,
		Charge:    charge,
	}
	o.current = &sub
	o.status = StatusSubmitting
	span.SetAttributes(attribute.String(log.KeyAttemptID, sub.AttemptID.String()))
	logger.Info().
		Str(log.KeyAttemptID, sub.AttemptID.String()).
		Msg("entered submitting state")
	return sub, nil
}

func (o *Orchestrator) runValidation(c context.Context, req Request) error {
	if o.ledger.Empty() {
		return fmt.Errorf("%w: %w", inErrors.ErrEmptyCart, inErrors.ErrValidation)
	}
	if !req.Method.Valid() {
		return fmt.Errorf(
			"unknown payment method=%s: %w",
			req.Method,
			inErrors.ErrValidation,
		)
	}
	if err := o.validate.StructCtx(c, req.Address); err != nil {
		return fmt.Errorf(
			"invalid shipping address with error=%w: %w",
			err,
			inErrors.ErrValidation,
		)
	}
	if req.Method.RequiresPhone() && req.Address.Phone == "" {
		return fmt.Errorf(
			"payment method=%s requires a phone number: %w",
			req.Method,
			inErrors.ErrValidation,
		)
	}
	if req.Discount.IsNegative() {
		return fmt.Errorf("discount is negative: %w", inErrors.ErrValidation)
	}
	// Hard gate: unresolved stock conflicts block submission outright.
	if outstanding := o.warnings.Outstanding(); len(outstanding) > 0 {
		return fmt.Errorf(
			"%d unresolved stock warnings: %w: %w",
			len(outstanding),
			inErrors.ErrStockConflict,
			inErrors.ErrValidation,
		)
	}
	return nil
}

// Execute performs the upstream submission for a prepared snapshot. It runs
// outside the engine loop. An ambiguous failure is returned as-is: the
// orchestrator never auto-retries a submission-class call.
func (o *Orchestrator) Execute(c context.Context, sub Submission) (Outcome, error) {
	attrs := trace.WithAttributes(attribute.String(log.KeyAttemptID, sub.AttemptID.String()))
	c, span := otel.Tracer.Start(c, "Orchestrator Execute", attrs)
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator Execute").
		Str(log.KeyAttemptID, sub.AttemptID.String()).
		Logger()

	switch sub.Method.Family() {
	case FamilyRedirect:
		logger.Info().Msg("submitting redirect-gateway checkout")
		session, err := o.client.CreatePaymentSession(c, sub)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{Family: FamilyRedirect, Payment: &session, Submission: sub}, nil
	default:
		logger.Info().Msg("submitting direct checkout")
		orderID, status, err := o.client.CreateOrder(c, sub)
		if err != nil {
			return Outcome{}, err
		}
		return Outcome{
			Family:     FamilyDirect,
			OrderID:    orderID,
			Status:     status,
			Submission: sub,
		}, nil
	}
}

// Complete resolves the state machine after Execute. On a direct-family
// success the cart is cleared, and only then: an ambiguous or failed request
// never loses cart contents.
func (o *Orchestrator) Complete(c context.Context, outcome Outcome, submitErr error) {
	c, span := otel.Tracer.Start(c, "Orchestrator Complete")
	defer span.End()

	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator Complete").
		Logger()

	o.current = nil
	if submitErr != nil {
		o.status = StatusFailed
		otel.RecordError(submitErr, span)
		logger.Error().Err(submitErr).Msg("checkout submission failed")
		return
	}

	switch outcome.Family {
	case FamilyRedirect:
		o.status = StatusRedirected
		o.pendingTx = outcome.Payment.TransactionID
		logger.Info().
			Str("transactionId", o.pendingTx).
			Msg("handed off to payment gateway")
	default:
		if err := o.ledger.Clear(c); err != nil {
			// The order exists server-side; a snapshot persistence failure
			// must not fail the checkout.
			logger.Warn().Err(err).Msg("failed clearing persisted cart after order creation")
		}
		o.status = StatusSucceeded
		logger.Info().
			Str(log.KeyOrderID, outcome.OrderID.String()).
			Msg("checkout succeeded, cart cleared")
	}
}

// FinishRedirect resolves a redirect submission from the authoritative order
// state the callback obtained. Client-visible redirect parameters are never
// trusted.
func (o *Orchestrator) FinishRedirect(c context.Context, paid bool) {
	logger := zerolog.Ctx(c).
		With().
		Str(log.KeyTag, "Orchestrator FinishRedirect").
		Bool("paid", paid).
		Logger()

	o.pendingTx = ""
	if !paid {
		o.status = StatusFailed
		logger.Info().Msg("gateway payment failed")
		return
	}
	if err := o.ledger.Clear(c); err != nil {
		logger.Warn().Err(err).Msg("failed clearing persisted cart after gateway payment")
	}
	o.status = StatusSucceeded
	logger.Info().Msg("gateway payment confirmed, cart cleared")
}

// Reset returns a resolved session to Idle so the shopper can start over.
func (o *Orchestrator) Reset() error {
	if o.status == StatusSubmitting {
		return fmt.Errorf("checkout: %w", inErrors.ErrSubmissionInFlight)
	}
	o.status = StatusIdle
	o.current = nil
	o.pendingTx = ""
	return nil
}
