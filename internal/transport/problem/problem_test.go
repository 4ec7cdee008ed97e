package problem

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
)

func TestDescribe_ProductsNotFoundEnumeratesEveryID(t *testing.T) {
	p := Describe(&domain.ProductsNotFoundError{IDs: []string{"B", "C"}})

	require.Equal(t, KindNotFound, p.Kind)
	require.Equal(t, CodeProductsNotFound, p.Code)
	require.Equal(t, "Could not find the product(s): B; C;", p.Message)
	require.Equal(t, []string{"B", "C"}, p.ProductIDs)
}

func TestDescribe_InsufficientStock(t *testing.T) {
	err := fmt.Errorf("place: %w", &domain.InsufficientStockError{Items: []domain.StockShortage{
		{ProductID: "A", Requested: 5, Available: 3},
		{ProductID: "B", Requested: 2, Available: 0},
	}})
	p := Describe(err)

	require.Equal(t, KindFailedPrecondition, p.Kind)
	require.Equal(t, "Insufficient quantities in the inventory per product(s): A:5; B:2;", p.Message)
	require.Equal(t, []string{"A", "B"}, p.ProductIDs)
	require.Equal(t, []Shortage{{"A", 5, 3}, {"B", 2, 0}}, p.Shortages)
}

func TestDescribe_Kinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
		code string
	}{
		{"customer not found", domain.ErrCustomerNotFound, KindNotFound, CodeCustomerNotFound},
		{"no products", domain.ErrNoProductsFound, KindNotFound, CodeNoProductsFound},
		{"order not found", domain.ErrOrderNotFound, KindNotFound, CodeOrderNotFound},
		{"product not found", domain.ErrProductNotFound, KindNotFound, CodeProductNotFound},
		{"customer required", domain.ErrCustomerRequired, KindInvalidArgument, CodeInvalidRequest},
		{"items required", domain.ErrItemsRequired, KindInvalidArgument, CodeInvalidRequest},
		{"invalid quantity", &domain.InvalidQuantityError{IDs: []string{"A"}}, KindInvalidArgument, CodeInvalidRequest},
		{"duplicates", &domain.DuplicateProductsError{IDs: []string{"A"}}, KindInvalidArgument, CodeInvalidRequest},
		{"email used", domain.ErrEmailAlreadyUsed, KindAlreadyExists, CodeEmailAlreadyUsed},
		{"idempotency mismatch", domain.ErrIdempotencyHashMismatch, KindAlreadyExists, CodeIdempotencyMismatch},
		{"idempotency in flight", idempotency.ErrRequestInProgress, KindConflict, CodeIdempotencyInFlight},
		{"stock conflict", domain.ErrStockConflict, KindUnavailable, CodeStoreUnavailable},
		{"store error", domain.Unavailable("find customer", errors.New("dial tcp")), KindUnavailable, CodeStoreUnavailable},
		{"deadline", context.DeadlineExceeded, KindDeadlineExceeded, CodeDeadlineExceeded},
		{"store deadline", domain.Unavailable("commit order", context.DeadlineExceeded), KindDeadlineExceeded, CodeDeadlineExceeded},
		{"canceled", context.Canceled, KindCanceled, CodeCanceled},
		{"store canceled", domain.Unavailable("find products", context.Canceled), KindCanceled, CodeCanceled},
		{"unknown", errors.New("boom"), KindInternal, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := Describe(tt.err)
			require.Equal(t, tt.kind, p.Kind)
			require.Equal(t, tt.code, p.Code)
			require.NotEmpty(t, p.Message)
		})
	}
}

func TestDescribe_InternalDoesNotLeakDetails(t *testing.T) {
	p := Describe(errors.New("pq: password authentication failed"))
	require.NotContains(t, p.Message, "password")
}

func TestProblem_Retryable(t *testing.T) {
	require.True(t, Describe(domain.ErrStockConflict).Retryable())
	require.True(t, Describe(context.DeadlineExceeded).Retryable())
	require.True(t, Describe(domain.Unavailable("commit order", context.DeadlineExceeded)).Retryable())
	require.True(t, Describe(context.Canceled).Retryable())
	require.False(t, Describe(domain.ErrCustomerNotFound).Retryable())
	require.False(t, Describe(errors.New("boom")).Retryable())
}

func TestDescribe_JoinedValidation(t *testing.T) {
	p := Describe(errors.Join(domain.ErrCustomerNameRequired, domain.ErrCustomerEmailRequired))
	require.Equal(t, KindInvalidArgument, p.Kind)
	require.Equal(t, "Customer name is required; customer email is required.", p.Message)
}
