package checkout

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pratama/storefront/internal/cart"
	inErrors "github.com/pratama/storefront/internal/errors"
	"github.com/pratama/storefront/internal/inventory"
)

// Stock vanishing at commit time comes back as a rejection carrying the
// server's current levels; adopting them raises the warning the shopper must
// resolve before resubmitting.
func TestRejectionCarriesStockData(t *testing.T) {
	c := context.Background()
	productID := uuid.New()
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusConflict)
			w.Write([]byte(`{
				"message": "insufficient stock",
				"stock": [{"product_id": "` + productID.String() + `", "available_quantity": 1}]
			}`))
		}),
	)
	defer server.Close()

	client := NewClient(server.Client(), server.URL+"/payments", server.URL+"/orders")
	line := cart.LineItem{
		Key:       cart.ItemKey(productID, cart.Variant{}),
		ProductID: productID,
		Name:      "sneaker",
		UnitPrice: decimal.RequireFromString("49.99"),
		Quantity:  3,
	}
	sub := Submission{
		AttemptID: uuid.New(),
		Method:    MethodPayOnDelivery,
		Items:     []cart.LineItem{line},
	}

	_, _, err := client.CreateOrder(c, sub)
	require.ErrorIs(t, err, inErrors.ErrServerRejection)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Equal(t, "insufficient stock", rejection.Message)
	require.Len(t, rejection.Stock, 1)
	assert.Equal(t, productID, rejection.Stock[0].ProductID)

	book := inventory.NewBook()
	for _, update := range rejection.Stock {
		book.Apply(c, update, sub.Items)
	}
	outstanding := book.Outstanding()
	require.Len(t, outstanding, 1)
	assert.Equal(t, line.Key, outstanding[0].ItemKey)
	assert.Equal(t, int32(1), outstanding[0].Available)

	available, ok := book.Available(productID)
	require.True(t, ok)
	assert.Equal(t, int32(1), available)
}

func TestRejectionMalformedBodyFallsBackToStatusCode(t *testing.T) {
	c := context.Background()
	server := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusUnprocessableEntity)
			w.Write([]byte("<html>rejected</html>"))
		}),
	)
	defer server.Close()

	client := NewClient(server.Client(), server.URL+"/payments", server.URL+"/orders")
	sub := Submission{AttemptID: uuid.New(), Method: MethodCard}

	_, err := client.CreatePaymentSession(c, sub)
	require.ErrorIs(t, err, inErrors.ErrServerRejection)

	var rejection *RejectionError
	require.ErrorAs(t, err, &rejection)
	assert.Contains(t, rejection.Message, "status code=422")
	assert.Empty(t, rejection.Stock)
}
