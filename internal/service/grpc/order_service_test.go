package grpcsvc_test

import (
	"context"
	"net"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	grpcsvc "github.com/vladislavdragonenkov/storefront/internal/service/grpc"
	"github.com/vladislavdragonenkov/storefront/internal/service/customer"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/service/ordering"
	"github.com/vladislavdragonenkov/storefront/internal/storage/memory"
)

const bufSize = 1024 * 1024

type testEnv struct {
	store  *memory.Store
	client *grpcsvc.OrderServiceClient
}

func idemCtx(key string) context.Context {
	return metadata.AppendToOutgoingContext(context.Background(), "idempotency-key", key)
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := loggerForTests()
	store := memory.NewStore()
	orders := ordering.NewService(store.Customers(), store.Products(), store.Orders(), store, ordering.WithLogger(logger))
	customers := customer.NewService(store.Customers(), logger)
	guard := idempotency.NewGuard(memory.NewIdempotencyRepository(), 0, logger)

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer()
	grpcsvc.RegisterOrderServiceServer(server, grpcsvc.NewOrderService(orders, customers, guard, logger))
	go func() {
		_ = server.Serve(listener)
	}()

	dialer := func(context.Context, string) (net.Conn, error) {
		return listener.Dial()
	}
	conn, err := grpc.NewClient("passthrough:///bufnet", grpc.WithContextDialer(dialer), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = conn.Close()
		server.Stop()
	})

	return &testEnv{store: store, client: grpcsvc.NewOrderServiceClient(conn)}
}

func loggerForTests() *logrus.Entry {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	logger.SetLevel(logrus.DebugLevel)
	return logger.WithField("component", "test")
}

func (e *testEnv) addProduct(t *testing.T, id string, price, qty int64) {
	t.Helper()
	_, err := e.store.Products().Create(context.Background(), domain.Product{ID: id, Name: id, PriceMinor: price, Quantity: qty})
	require.NoError(t, err)
}

func (e *testEnv) quantity(t *testing.T, id string) int64 {
	t.Helper()
	products, err := e.store.Products().FindAllByID(context.Background(), []string{id})
	require.NoError(t, err)
	require.Len(t, products, 1)
	return products[0].Quantity
}

func (e *testEnv) createCustomer(t *testing.T, email string) *grpcsvc.Customer {
	t.Helper()
	resp, err := e.client.CreateCustomer(context.Background(), &grpcsvc.CreateCustomerRequest{Name: "Ann", Email: email})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Customer.ID)
	return resp.Customer
}

func errorInfo(t *testing.T, err error) *errdetails.ErrorInfo {
	t.Helper()
	st, ok := status.FromError(err)
	require.True(t, ok)
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			return info
		}
	}
	t.Fatalf("status %v has no ErrorInfo", st)
	return nil
}

func TestPlaceOrder_Success(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "P1", 250, 5)
	env.addProduct(t, "P2", 100, 1)
	customer := env.createCustomer(t, "ann@example.com")

	resp, err := env.client.PlaceOrder(context.Background(), &grpcsvc.PlaceOrderRequest{
		CustomerID: customer.ID,
		Items: []grpcsvc.OrderItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 1},
		},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Order.ID)
	require.Equal(t, customer.ID, resp.Order.CustomerID)
	require.Len(t, resp.Order.Lines, 2)
	require.EqualValues(t, 600, resp.Order.TotalMinor)

	require.EqualValues(t, 3, env.quantity(t, "P1"))
	require.EqualValues(t, 0, env.quantity(t, "P2"))

	got, err := env.client.GetOrder(context.Background(), &grpcsvc.GetOrderRequest{OrderID: resp.Order.ID})
	require.NoError(t, err)
	require.Equal(t, resp.Order.ID, got.Order.ID)

	list, err := env.client.ListOrders(context.Background(), &grpcsvc.ListOrdersRequest{CustomerID: customer.ID})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
}

func TestPlaceOrder_ErrorCodes(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "P1", 100, 1)
	customer := env.createCustomer(t, "bob@example.com")

	cases := []struct {
		name   string
		req    *grpcsvc.PlaceOrderRequest
		code   codes.Code
		reason string
	}{
		{
			name:   "empty items",
			req:    &grpcsvc.PlaceOrderRequest{CustomerID: customer.ID},
			code:   codes.InvalidArgument,
			reason: "INVALID_REQUEST",
		},
		{
			name:   "unknown customer",
			req:    &grpcsvc.PlaceOrderRequest{CustomerID: "nobody", Items: []grpcsvc.OrderItem{{ProductID: "P1", Quantity: 1}}},
			code:   codes.NotFound,
			reason: "CUSTOMER_NOT_FOUND",
		},
		{
			name:   "no products",
			req:    &grpcsvc.PlaceOrderRequest{CustomerID: customer.ID, Items: []grpcsvc.OrderItem{{ProductID: "X", Quantity: 1}}},
			code:   codes.NotFound,
			reason: "NO_PRODUCTS_FOUND",
		},
		{
			name: "some products missing",
			req: &grpcsvc.PlaceOrderRequest{CustomerID: customer.ID, Items: []grpcsvc.OrderItem{
				{ProductID: "P1", Quantity: 1},
				{ProductID: "X", Quantity: 1},
			}},
			code:   codes.NotFound,
			reason: "PRODUCTS_NOT_FOUND",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.client.PlaceOrder(context.Background(), tc.req)
			require.Error(t, err)
			require.Equal(t, tc.code, status.Code(err))
			info := errorInfo(t, err)
			require.Equal(t, tc.reason, info.Reason)
			require.Equal(t, "storefront", info.Domain)
		})
	}

	require.EqualValues(t, 1, env.quantity(t, "P1"))
}

func TestPlaceOrder_InsufficientStockDetails(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "P1", 100, 1)
	env.addProduct(t, "P2", 100, 0)
	customer := env.createCustomer(t, "cid@example.com")

	_, err := env.client.PlaceOrder(context.Background(), &grpcsvc.PlaceOrderRequest{
		CustomerID: customer.ID,
		Items: []grpcsvc.OrderItem{
			{ProductID: "P1", Quantity: 2},
			{ProductID: "P2", Quantity: 1},
		},
	})
	require.Error(t, err)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	st := status.Convert(err)
	require.Equal(t, "Insufficient quantities in the inventory per product(s): P1:2; P2:1;", st.Message())

	info := errorInfo(t, err)
	require.Equal(t, "INSUFFICIENT_STOCK", info.Reason)
	require.Equal(t, "P1,P2", info.Metadata["product_ids"])
	require.Equal(t, "2", info.Metadata["requested.P1"])
	require.Equal(t, "1", info.Metadata["available.P1"])
	require.Equal(t, "1", info.Metadata["requested.P2"])
	require.Equal(t, "0", info.Metadata["available.P2"])

	var subjects, descriptions []string
	for _, detail := range st.Details() {
		if failure, ok := detail.(*errdetails.PreconditionFailure); ok {
			for _, v := range failure.Violations {
				subjects = append(subjects, v.Subject)
				descriptions = append(descriptions, v.Description)
			}
		}
	}
	require.Equal(t, []string{"P1", "P2"}, subjects)
	require.Equal(t, []string{"requested=2 available=1", "requested=1 available=0"}, descriptions)
}

func TestPlaceOrder_IdempotentReplay(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "P1", 100, 10)
	customer := env.createCustomer(t, "dan@example.com")

	req := &grpcsvc.PlaceOrderRequest{CustomerID: customer.ID, Items: []grpcsvc.OrderItem{{ProductID: "P1", Quantity: 3}}}

	first, err := env.client.PlaceOrder(idemCtx("order-1"), req)
	require.NoError(t, err)

	second, err := env.client.PlaceOrder(idemCtx("order-1"), req)
	require.NoError(t, err)
	require.Equal(t, first.Order.ID, second.Order.ID)
	require.EqualValues(t, 7, env.quantity(t, "P1"))

	list, err := env.client.ListOrders(context.Background(), &grpcsvc.ListOrdersRequest{CustomerID: customer.ID})
	require.NoError(t, err)
	require.Len(t, list.Orders, 1)
}

func TestPlaceOrder_IdempotencyKeyReusedWithDifferentRequest(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "P1", 100, 10)
	customer := env.createCustomer(t, "eve@example.com")

	_, err := env.client.PlaceOrder(idemCtx("order-2"), &grpcsvc.PlaceOrderRequest{
		CustomerID: customer.ID,
		Items:      []grpcsvc.OrderItem{{ProductID: "P1", Quantity: 1}},
	})
	require.NoError(t, err)

	_, err = env.client.PlaceOrder(idemCtx("order-2"), &grpcsvc.PlaceOrderRequest{
		CustomerID: customer.ID,
		Items:      []grpcsvc.OrderItem{{ProductID: "P1", Quantity: 2}},
	})
	require.Equal(t, codes.AlreadyExists, status.Code(err))
	require.Equal(t, "IDEMPOTENCY_KEY_REUSED", errorInfo(t, err).Reason)
	require.EqualValues(t, 9, env.quantity(t, "P1"))
}

func TestPlaceOrder_FailedResponseIsReplayed(t *testing.T) {
	env := newTestEnv(t)
	env.addProduct(t, "P1", 100, 1)
	customer := env.createCustomer(t, "fay@example.com")

	req := &grpcsvc.PlaceOrderRequest{CustomerID: customer.ID, Items: []grpcsvc.OrderItem{{ProductID: "P1", Quantity: 5}}}

	_, err := env.client.PlaceOrder(idemCtx("order-3"), req)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	// Остаток пополнен, но ответ под тем же ключом не меняется.
	err = env.store.Products().UpdateQuantities(context.Background(), []domain.QuantityUpdate{{ProductID: "P1", Expected: 1, Quantity: 10}})
	require.NoError(t, err)

	_, err = env.client.PlaceOrder(idemCtx("order-3"), req)
	require.Equal(t, codes.FailedPrecondition, status.Code(err))
	info := errorInfo(t, err)
	require.Equal(t, "INSUFFICIENT_STOCK", info.Reason)
	require.Equal(t, "P1", info.Metadata["product_ids"])
	require.Equal(t, "5", info.Metadata["requested.P1"])
	require.Equal(t, "1", info.Metadata["available.P1"])
}

func TestCreateCustomer_DuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.createCustomer(t, "gil@example.com")

	_, err := env.client.CreateCustomer(context.Background(), &grpcsvc.CreateCustomerRequest{Name: "Gil", Email: "GIL@example.com"})
	require.Equal(t, codes.AlreadyExists, status.Code(err))
	require.Equal(t, "EMAIL_ALREADY_USED", errorInfo(t, err).Reason)
}

func TestGetOrder_NotFound(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.GetOrder(context.Background(), &grpcsvc.GetOrderRequest{OrderID: "missing"})
	require.Equal(t, codes.NotFound, status.Code(err))
	require.Equal(t, "ORDER_NOT_FOUND", errorInfo(t, err).Reason)
}
