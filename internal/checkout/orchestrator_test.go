package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratama/storefront/internal/cart"
	inErrors "github.com/pratama/storefront/internal/errors"
	"github.com/pratama/storefront/internal/inventory"
)

type warningsStub []inventory.Warning

func (w warningsStub) Outstanding() []inventory.Warning { return w }

func validAddress() Address {
	return Address{
		Name:       "Pratama",
		Street:     "Jl. Sudirman 1",
		City:       "Jakarta",
		Region:     "DKI Jakarta",
		PostalCode: "10210",
		Country:    "ID",
	}
}

func seededLedger(t *testing.T) *cart.Ledger {
	t.Helper()
	ledger := cart.NewLedger("session-test", nil, nil)
	_, err := ledger.AddItem(context.Background(), cart.Product{
		ID:        uuid.New(),
		Name:      "sneaker",
		UnitPrice: decimal.RequireFromString("49.99"),
	}, 2, cart.Variant{})
	require.NoError(t, err)
	return ledger
}

func TestBeginValidation(t *testing.T) {
	tests := []struct {
		name     string
		ledger   func(*testing.T) *cart.Ledger
		warnings warningsStub
		request  Request
		err      error
	}{
		{
			name:     "given empty cart should refuse",
			ledger:   func(t *testing.T) *cart.Ledger { return cart.NewLedger("session-test", nil, nil) },
			warnings: warningsStub{},
			request:  Request{Address: validAddress(), Method: MethodCard},
			err:      inErrors.ErrEmptyCart,
		},
		{
			name:     "given unknown payment method should refuse",
			ledger:   seededLedger,
			warnings: warningsStub{},
			request:  Request{Address: validAddress(), Method: "gift-card"},
			err:      inErrors.ErrValidation,
		},
		{
			name:     "given incomplete address should refuse",
			ledger:   seededLedger,
			warnings: warningsStub{},
			request:  Request{Address: Address{Name: "Pratama"}, Method: MethodCard},
			err:      inErrors.ErrValidation,
		},
		{
			name:     "given pay-on-delivery without phone should refuse",
			ledger:   seededLedger,
			warnings: warningsStub{},
			request:  Request{Address: validAddress(), Method: MethodPayOnDelivery},
			err:      inErrors.ErrValidation,
		},
		{
			name:     "given negative discount should refuse",
			ledger:   seededLedger,
			warnings: warningsStub{},
			request: Request{
				Address:  validAddress(),
				Method:   MethodCard,
				Discount: decimal.RequireFromString("-1"),
			},
			err: inErrors.ErrValidation,
		},
		{
			name:   "given outstanding stock warning should refuse",
			ledger: seededLedger,
			warnings: warningsStub{
				{ItemKey: "abc", ProductID: uuid.New(), Available: 1},
			},
			request: Request{Address: validAddress(), Method: MethodCard},
			err:     inErrors.ErrStockConflict,
		},
		{
			name:     "given valid request should enter submitting",
			ledger:   seededLedger,
			warnings: warningsStub{},
			request:  Request{Address: validAddress(), Method: MethodCard},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := context.Background()
			var requests atomic.Int32
			server := httptest.NewServer(
				http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					requests.Add(1)
				}),
			)
			defer server.Close()

			client := NewClient(server.Client(), server.URL+"/payments", server.URL+"/orders")
			orchestrator := NewOrchestrator(testPolicy(), tt.ledger(t), tt.warnings, client)

			sub, err := orchestrator.Begin(c, tt.request)
			// Validation and charge computation are local; nothing may reach
			// the network before Execute.
			assert.Equal(t, int32(0), requests.Load())

			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				assert.ErrorIs(t, err, inErrors.ErrValidation)
				assert.Equal(t, StatusIdle, orchestrator.Status())
				return
			}
			require.NoError(t, err)
			assert.Equal(t, StatusSubmitting, orchestrator.Status())
			assert.NotEqual(t, uuid.Nil, sub.AttemptID)
			assert.Len(t, sub.Items, 1)
		})
	}
}

func TestBeginRefusedWhileSubmitting(t *testing.T) {
	c := context.Background()
	ledger := seededLedger(t)
	orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, nil)

	req := Request{Address: validAddress(), Method: MethodCard}
	first, err := orchestrator.Begin(c, req)
	require.NoError(t, err)

	_, err = orchestrator.Begin(c, req)
	assert.ErrorIs(t, err, inErrors.ErrSubmissionInFlight)
	assert.Equal(t, StatusSubmitting, orchestrator.Status())

	// Distinct attempts get distinct idempotency identities.
	orchestrator.Complete(c, Outcome{}, assert.AnError)
	second, err := orchestrator.Begin(c, req)
	require.NoError(t, err)
	assert.NotEqual(t, first.AttemptID, second.AttemptID)
}

func TestSubmissionSnapshotImmutable(t *testing.T) {
	c := context.Background()
	ledger := seededLedger(t)
	orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, nil)

	sub, err := orchestrator.Begin(c, Request{Address: validAddress(), Method: MethodCard})
	require.NoError(t, err)

	// A cart mutation after Begin must not leak into the snapshot.
	_, err = ledger.AddItem(c, cart.Product{
		ID:        uuid.New(),
		Name:      "socks",
		UnitPrice: decimal.RequireFromString("5"),
	}, 1, cart.Variant{})
	require.NoError(t, err)

	assert.Len(t, sub.Items, 1)
	assert.True(t, sub.Charge.Subtotal.Equal(decimal.RequireFromString("99.98")))
}

func TestExecuteDirectAndComplete(t *testing.T) {
	c := context.Background()
	orderID := uuid.New()
	var idempotencyKey atomic.Value
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			idempotencyKey.Store(r.Header.Get("Idempotency-Key"))
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{"order_id":"` + orderID.String() + `","status":"pending"}`))
		}),
	)
	defer server.Close()

	ledger := seededLedger(t)
	client := NewClient(server.Client(), server.URL+"/payments", server.URL+"/orders")
	orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, client)

	sub, err := orchestrator.Begin(c, Request{
		Address: Address{
			Name:       "Pratama",
			Street:     "Jl. Sudirman 1",
			City:       "Jakarta",
			Region:     "DKI Jakarta",
			PostalCode: "10210",
			Country:    "ID",
			Phone:      "+628123456789",
		},
		Method: MethodPayOnDelivery,
	})
	require.NoError(t, err)
	assert.False(t, ledger.Empty())

	outcome, err := orchestrator.Execute(c, sub)
	require.NoError(t, err)
	assert.Equal(t, FamilyDirect, outcome.Family)
	assert.Equal(t, orderID, outcome.OrderID)
	assert.Equal(t, sub.AttemptID.String(), idempotencyKey.Load())

	// Confirm-then-commit: the cart clears only after a confirmed order id.
	orchestrator.Complete(c, outcome, nil)
	assert.Equal(t, StatusSucceeded, orchestrator.Status())
	assert.True(t, ledger.Empty())
}

func TestExecuteRedirectAndComplete(t *testing.T) {
	c := context.Background()
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(`{
				"action": "https://gateway.example/pay",
				"form_fields": {"signature": "opaque"},
				"transaction_id": "trx-123"
			}`))
		}),
	)
	defer server.Close()

	ledger := seededLedger(t)
	client := NewClient(server.Client(), server.URL+"/payments", server.URL+"/orders")
	orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, client)

	sub, err := orchestrator.Begin(c, Request{Address: validAddress(), Method: MethodCard})
	require.NoError(t, err)

	outcome, err := orchestrator.Execute(c, sub)
	require.NoError(t, err)
	require.Equal(t, FamilyRedirect, outcome.Family)
	require.NotNil(t, outcome.Payment)
	assert.Equal(t, "trx-123", outcome.Payment.TransactionID)

	// Redirect handoff keeps the cart; payment has not been confirmed yet.
	orchestrator.Complete(c, outcome, nil)
	assert.Equal(t, StatusRedirected, orchestrator.Status())
	assert.Equal(t, "trx-123", orchestrator.PendingTransaction())
	assert.False(t, ledger.Empty())

	orchestrator.FinishRedirect(c, true)
	assert.Equal(t, StatusSucceeded, orchestrator.Status())
	assert.Empty(t, orchestrator.PendingTransaction())
	assert.True(t, ledger.Empty())
}

func TestFinishRedirectFailureKeepsCart(t *testing.T) {
	c := context.Background()
	ledger := seededLedger(t)
	orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, nil)

	_, err := orchestrator.Begin(c, Request{Address: validAddress(), Method: MethodCard})
	require.NoError(t, err)
	orchestrator.Complete(c, Outcome{
		Family:  FamilyRedirect,
		Payment: &PaymentSession{TransactionID: "trx-123", Action: "https://gateway.example"},
	}, nil)

	orchestrator.FinishRedirect(c, false)
	assert.Equal(t, StatusFailed, orchestrator.Status())
	assert.False(t, ledger.Empty())
}

// A shopper who abandoned a gateway redirect can start over; the stale
// transaction id must not leak into the new attempt.
func TestBeginSupersedesAbandonedRedirect(t *testing.T) {
	c := context.Background()
	ledger := seededLedger(t)
	orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, nil)

	_, err := orchestrator.Begin(c, Request{Address: validAddress(), Method: MethodCard})
	require.NoError(t, err)
	orchestrator.Complete(c, Outcome{
		Family:  FamilyRedirect,
		Payment: &PaymentSession{TransactionID: "trx-123", Action: "https://gateway.example"},
	}, nil)
	require.Equal(t, StatusRedirected, orchestrator.Status())
	require.Equal(t, "trx-123", orchestrator.PendingTransaction())

	_, err = orchestrator.Begin(c, Request{Address: validAddress(), Method: MethodCard})
	require.NoError(t, err)
	assert.Equal(t, StatusSubmitting, orchestrator.Status())
	assert.Empty(t, orchestrator.PendingTransaction())
}

func TestCompleteFailureKeepsCart(t *testing.T) {
	tests := []struct {
		name    string
		handler http.HandlerFunc
		err     error
	}{
		{
			name: "given upstream 5xx should fail transiently and keep cart",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusBadGateway)
			},
			err: inErrors.ErrTransient,
		},
		{
			name: "given server rejection should fail and keep cart",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(`{"message":"charge mismatch"}`))
			},
			err: inErrors.ErrServerRejection,
		},
		{
			name: "given response without order id should fail and keep cart",
			handler: func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(`{"status":"pending"}`))
			},
			err: inErrors.ErrServerRejection,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := context.Background()
			server := httptest.NewServer(tt.handler)
			defer server.Close()

			ledger := seededLedger(t)
			client := NewClient(server.Client(), server.URL+"/payments", server.URL+"/orders")
			orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, client)

			sub, err := orchestrator.Begin(c, Request{
				Address: Address{
					Name:       "Pratama",
					Street:     "Jl. Sudirman 1",
					City:       "Jakarta",
					Region:     "DKI Jakarta",
					PostalCode: "10210",
					Country:    "ID",
					Phone:      "+628123456789",
				},
				Method: MethodPayOnDelivery,
			})
			require.NoError(t, err)

			outcome, submitErr := orchestrator.Execute(c, sub)
			assert.ErrorIs(t, submitErr, tt.err)

			orchestrator.Complete(c, outcome, submitErr)
			assert.Equal(t, StatusFailed, orchestrator.Status())
			assert.False(t, ledger.Empty())

			require.NoError(t, orchestrator.Reset())
			assert.Equal(t, StatusIdle, orchestrator.Status())
		})
	}
}

// A dropped connection may or may not have reached the server; the attempt is
// ambiguous, the cart is kept, and no retry happens on its own.
func TestExecuteAmbiguousFailure(t *testing.T) {
	c := context.Background()
	server := httptest.NewServer(http.NotFoundHandler())
	client := NewClient(server.Client(), server.URL+"/payments", server.URL+"/orders")
	server.Close()

	ledger := seededLedger(t)
	orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, client)

	sub, err := orchestrator.Begin(c, Request{Address: validAddress(), Method: MethodCard})
	require.NoError(t, err)

	outcome, submitErr := orchestrator.Execute(c, sub)
	assert.ErrorIs(t, submitErr, inErrors.ErrGatewayAmbiguous)

	orchestrator.Complete(c, outcome, submitErr)
	assert.Equal(t, StatusFailed, orchestrator.Status())
	assert.False(t, ledger.Empty())
}

func TestQuote(t *testing.T) {
	ledger := seededLedger(t)
	orchestrator := NewOrchestrator(testPolicy(), ledger, warningsStub{}, nil)

	charge, err := orchestrator.Quote(decimal.Zero)
	require.NoError(t, err)
	assert.True(t, charge.Subtotal.Equal(decimal.RequireFromString("99.98")))
	assert.Equal(t, StatusIdle, orchestrator.Status())
}
