// Package http реализует REST API сервиса на chi.
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/service/idempotency"
	"github.com/vladislavdragonenkov/storefront/internal/transport/problem"
)

const (
	// IdempotencyKeyHeader: необязательный заголовок для безопасного повтора POST-запросов.
	IdempotencyKeyHeader = "Idempotency-Key"
	// ReplayedHeader выставляется, когда ответ взят из idempotency-хранилища.
	ReplayedHeader = "Idempotent-Replayed"

	maxBodyBytes   = 1 << 20
	requestTimeout = 30 * time.Second
)

// Orders — оформление и чтение заказов.
type Orders interface {
	PlaceOrder(ctx context.Context, customerID string, items []domain.OrderItemRequest) (domain.Order, error)
	GetOrder(ctx context.Context, id string) (domain.Order, error)
	ListOrders(ctx context.Context, customerID string, limit int) ([]domain.Order, error)
}

// Customers — регистрация и чтение клиентов.
type Customers interface {
	CreateCustomer(ctx context.Context, name, email string) (domain.Customer, error)
	GetCustomer(ctx context.Context, id string) (domain.Customer, error)
}

// Catalog — заведение и чтение товаров.
type Catalog interface {
	CreateProduct(ctx context.Context, name string, priceMinor, quantity int64) (domain.Product, error)
	GetProduct(ctx context.Context, id string) (domain.Product, error)
}

// Handler обслуживает REST API.
type Handler struct {
	orders    Orders
	customers Customers
	catalog   Catalog
	guard     *idempotency.Guard
	logger    *log.Entry
}

// NewHandler создаёт Handler. guard может быть nil.
func NewHandler(orders Orders, customers Customers, catalog Catalog, guard *idempotency.Guard, logger *log.Entry) *Handler {
	if logger == nil {
		logger = log.WithField("component", "http-api")
	}
	return &Handler{
		orders:    orders,
		customers: customers,
		catalog:   catalog,
		guard:     guard,
		logger:    logger,
	}
}

// Routes возвращает router со всеми маршрутами API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(h.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Post("/customers", h.createCustomer)
	r.Get("/customers/{id}", h.getCustomer)
	r.Get("/customers/{id}/orders", h.listOrders)

	r.Post("/products", h.createProduct)
	r.Get("/products/{id}", h.getProduct)

	r.Post("/orders", h.placeOrder)
	r.Get("/orders/{id}", h.getOrder)

	return r
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderRequest
	raw, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	h.execute(w, r, "POST /orders", raw, func(ctx context.Context) (int, any, error) {
		order, err := h.orders.PlaceOrder(ctx, req.CustomerID, req.items())
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, newOrderResponse(order), nil
	})
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.orders.GetOrder(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newOrderResponse(order))
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, errorResponse{Code: problem.CodeInvalidRequest, Message: "Limit must be a non-negative integer."})
			return
		}
		limit = n
	}

	orders, err := h.orders.ListOrders(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		h.writeProblem(w, r, err)
		return
	}
	resp := ordersResponse{Orders: make([]orderResponse, 0, len(orders))}
	for _, order := range orders {
		resp.Orders = append(resp.Orders, newOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req createCustomerRequest
	raw, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	h.execute(w, r, "POST /customers", raw, func(ctx context.Context) (int, any, error) {
		customer, err := h.customers.CreateCustomer(ctx, req.Name, req.Email)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, newCustomerResponse(customer), nil
	})
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	customer, err := h.customers.GetCustomer(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newCustomerResponse(customer))
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var req createProductRequest
	raw, ok := h.decode(w, r, &req)
	if !ok {
		return
	}
	h.execute(w, r, "POST /products", raw, func(ctx context.Context) (int, any, error) {
		product, err := h.catalog.CreateProduct(ctx, req.Name, req.PriceMinor, req.Quantity)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, newProductResponse(product), nil
	})
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := h.catalog.GetProduct(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeProblem(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newProductResponse(product))
}

// decode читает тело целиком (оно же входит в отпечаток idempotency) и разбирает JSON.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) ([]byte, bool) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, errorResponse{Code: problem.CodeInvalidRequest, Message: "Request body is too large."})
		return nil, false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Code: problem.CodeInvalidRequest, Message: "Request body must be valid JSON."})
		return nil, false
	}
	return raw, true
}

// execute выполняет мутирующую операцию; с заголовком Idempotency-Key ответ сохраняется
// и повторный запрос с тем же ключом получает его без повторного выполнения.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, route string, raw []byte, run func(context.Context) (int, any, error)) {
	key := strings.TrimSpace(r.Header.Get(IdempotencyKeyHeader))
	if key == "" || h.guard == nil {
		status, payload, err := run(r.Context())
		if err != nil {
			h.writeProblem(w, r, err)
			return
		}
		writeJSON(w, status, payload)
		return
	}

	out, err := h.guard.Do(r.Context(), key, idempotency.RequestHash(route, raw), func(ctx context.Context) idempotency.Outcome {
		status, payload, err := run(ctx)
		if err != nil {
			h.logProblem(r, err)
			p := problem.Describe(err)
			body, _ := json.Marshal(newErrorResponse(p))
			return idempotency.Outcome{
				StatusCode: StatusFor(p.Kind),
				Body:       body,
				Failed:     true,
				Retryable:  p.Retryable(),
			}
		}
		body, marshalErr := json.Marshal(payload)
		if marshalErr != nil {
			h.logger.WithError(marshalErr).Error("failed to encode response")
			body, _ = json.Marshal(newErrorResponse(problem.Describe(marshalErr)))
			return idempotency.Outcome{StatusCode: http.StatusInternalServerError, Body: body, Failed: true, Retryable: true}
		}
		return idempotency.Outcome{StatusCode: status, Body: body}
	})
	if err != nil {
		h.writeProblem(w, r, err)
		return
	}
	if out.Replayed {
		w.Header().Set(ReplayedHeader, "true")
	}
	writeRaw(w, out.StatusCode, out.Body)
}

func (h *Handler) writeProblem(w http.ResponseWriter, r *http.Request, err error) {
	h.logProblem(r, err)
	p := problem.Describe(err)
	writeJSON(w, StatusFor(p.Kind), newErrorResponse(p))
}

func (h *Handler) logProblem(r *http.Request, err error) {
	p := problem.Describe(err)
	entry := h.logger.WithError(err).WithFields(log.Fields{
		"route":      r.Method + " " + r.URL.Path,
		"code":       p.Code,
		"request_id": middleware.GetReqID(r.Context()),
	})
	switch p.Kind {
	case problem.KindInternal, problem.KindUnavailable:
		entry.Error("request failed")
	default:
		entry.Debug("request rejected")
	}
}

// StatusFor возвращает HTTP-статус для класса ошибки.
func StatusFor(kind problem.Kind) int {
	switch kind {
	case problem.KindInvalidArgument:
		return http.StatusBadRequest
	case problem.KindNotFound:
		return http.StatusNotFound
	case problem.KindAlreadyExists, problem.KindConflict:
		return http.StatusConflict
	case problem.KindFailedPrecondition:
		return http.StatusUnprocessableEntity
	case problem.KindUnavailable:
		return http.StatusServiceUnavailable
	case problem.KindDeadlineExceeded:
		return http.StatusGatewayTimeout
	case problem.KindCanceled:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		status = http.StatusInternalServerError
		body = []byte(fmt.Sprintf(`{"code":%q,"message":"Internal error."}`, problem.CodeInternal))
	}
	writeRaw(w, status, body)
}

func writeRaw(w http.ResponseWriter, status int, body []byte) {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if len(body) > 0 {
		_, _ = w.Write(body)
	}
}

// logRequests пишет одну запись logrus на запрос.
func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		h.logger.WithFields(log.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     ww.Status(),
			"bytes":      ww.BytesWritten(),
			"duration":   time.Since(start),
			"request_id": middleware.GetReqID(r.Context()),
		}).Debug("http request")
	})
}
