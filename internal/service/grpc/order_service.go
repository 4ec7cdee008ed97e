// Package grpcsvc реализует gRPC API storefront.v1.OrderService.
package grpcsvc

import (
	"context"
	"encoding/json"
	"strings"

	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/transport/problem"
)

const idempotencyKeyHeader = "idempotency-key"

// Orders — операции с заказами, которые публикует сервис.
type Orders interface {
	PlaceOrder(ctx context.Context, customerID string, items []domain.OrderItemRequest) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
}

// Customers регистрирует клиентов.
type Customers interface {
	CreateCustomer(ctx context.Context, name, email string) (domain.Customer, error)
}

// OrderService реализует OrderServiceServer поверх сервисов оформления и клиентов.
type OrderService struct {
	orders    Orders
	customers Customers
	guard     *idempotency.Guard
	logger    *log.Entry
}

// NewOrderService конструирует сервис. guard может быть nil: тогда idempotency-key игнорируется.
func NewOrderService(orders Orders, customers Customers, guard *idempotency.Guard, logger *log.Entry) *OrderService {
	if logger == nil {
		logger = log.WithField("component", "grpc-order-service")
	}
	return &OrderService{
		orders:    orders,
		customers: customers,
		guard:     guard,
		logger:    logger,
	}
}

// PlaceOrder оформляет заказ.
func (s *OrderService) PlaceOrder(ctx context.Context, req *PlaceOrderRequest) (*PlaceOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return withIdempotency(s, ctx, MethodPlaceOrder, req, func(ctx context.Context) (*PlaceOrderResponse, error) {
		order, err := s.orders.PlaceOrder(ctx, req.CustomerID, toItemRequests(req.Items))
		if err != nil {
			return nil, err
		}
		return &PlaceOrderResponse{Order: toOrderMessage(order)}, nil
	})
}

// GetOrder возвращает заказ по id.
func (s *OrderService) GetOrder(ctx context.Context, req *GetOrderRequest) (*GetOrderResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	order, err := s.orders.GetOrder(ctx, req.OrderID)
	if err != nil {
		return nil, s.statusError(MethodGetOrder, err)
	}
	return &GetOrderResponse{Order: toOrderMessage(order)}, nil
}

// ListOrders возвращает заказы клиента, новые первыми.
func (s *OrderService) ListOrders(ctx context.Context, req *ListOrdersRequest) (*ListOrdersResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	orders, err := s.orders.ListOrders(ctx, req.CustomerID, int(req.Limit))
	if err != nil {
		return nil, s.statusError(MethodListOrders, err)
	}
	resp := &ListOrdersResponse{Orders: make([]*Order, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, toOrderMessage(order))
	}
	return resp, nil
}

// CreateCustomer регистрирует клиента.
func (s *OrderService) CreateCustomer(ctx context.Context, req *CreateCustomerRequest) (*CreateCustomerResponse, error) {
	if req == nil {
		return nil, status.Error(codes.InvalidArgument, "request is required")
	}
	return withIdempotency(s, ctx, MethodCreateCustomer, req, func(ctx context.Context) (*CreateCustomerResponse, error) {
		customer, err := s.customers.CreateCustomer(ctx, req.Name, req.Email)
		if err != nil {
			return nil, err
		}
		return &CreateCustomerResponse{Customer: toCustomerMessage(customer)}, nil
	})
}

// statusError переводит ошибку в status; внутренние ошибки логируются целиком, клиенту уходит общий текст.
func (s *OrderService) statusError(method string, err error) error {
	st := toStatus(err)
	entry := s.logger.WithError(err).WithFields(log.Fields{
		"method": method,
		"code":   st.Code().String(),
	})
	switch st.Code() {
	case codes.Internal, codes.Unavailable:
		entry.Error("request failed")
	default:
		entry.Debug("request rejected")
	}
	return st.Err()
}

// withIdempotency выполняет handler под ключом из метаданных idempotency-key.
// handler возвращает доменную ошибку; в status она переводится здесь.
func withIdempotency[T any](
	s *OrderService,
	ctx context.Context,
	method string,
	req any,
	handler func(context.Context) (*T, error),
) (*T, error) {
	key := readIdempotencyKey(ctx)
	if key == "" || s.guard == nil {
		resp, err := handler(ctx)
		if err != nil {
			return nil, s.statusError(method, err)
		}
		return resp, nil
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, status.Error(codes.Internal, "failed to initialize idempotency request")
	}

	var (
		resp   *T
		runErr error
	)
	out, err := s.guard.Do(ctx, key, idempotency.RequestHash(method, body), func(ctx context.Context) idempotency.Outcome {
		resp, runErr = handler(ctx)
		if runErr != nil {
			st := toStatus(runErr)
			return idempotency.Outcome{
				StatusCode: int(st.Code()),
				Body:       encodeFailure(st, runErr),
				Failed:     true,
				Retryable:  problem.Describe(runErr).Retryable(),
			}
		}
		data, marshalErr := json.Marshal(resp)
		if marshalErr != nil {
			return idempotency.Outcome{StatusCode: int(codes.Internal), Failed: true, Retryable: true}
		}
		return idempotency.Outcome{StatusCode: int(codes.OK), Body: data}
	})
	if err != nil {
		return nil, s.statusError(method, err)
	}
	if !out.Replayed {
		if runErr != nil {
			return nil, s.statusError(method, runErr)
		}
		return resp, nil
	}

	s.logger.WithFields(log.Fields{
		"method":          method,
		"idempotency_key": key,
		"failed":          out.Failed,
	}).Info("replaying stored response")

	if out.Failed {
		return nil, decodeFailure(out.Body, out.StatusCode)
	}
	replayed := new(T)
	if err := json.Unmarshal(out.Body, replayed); err != nil {
		return nil, status.Error(codes.Internal, "failed to decode cached idempotency response")
	}
	return replayed, nil
}

func readIdempotencyKey(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get(idempotencyKeyHeader)
	if len(values) == 0 {
		return ""
	}
	return strings.TrimSpace(values[0])
}

var _ OrderServiceServer = (*OrderService)(nil)
