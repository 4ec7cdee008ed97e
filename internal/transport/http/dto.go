package http

import (
	"time"

	"github.com/vladislavdragonenkov/storefront/internal/domain"
	"github.com/vladislavdragonenkov/storefront/internal/transport/problem"
)

type placeOrderRequest struct {
	CustomerID string             `json:"customer_id"`
	Products   []orderItemRequest `json:"products"`
}

type orderItemRequest struct {
	ID       string `json:"id"`
	Quantity int64  `json:"quantity"`
}

type createCustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type createProductRequest struct {
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Quantity   int64  `json:"quantity"`
}

type orderLineResponse struct {
	ID         string `json:"id"`
	ProductID  string `json:"product_id"`
	Quantity   int64  `json:"quantity"`
	PriceMinor int64  `json:"price_minor"`
}

type orderResponse struct {
	ID         string              `json:"id"`
	CustomerID string              `json:"customer_id"`
	Products   []orderLineResponse `json:"order_products"`
	TotalMinor int64               `json:"total_minor"`
	CreatedAt  time.Time           `json:"created_at"`
}

type ordersResponse struct {
	Orders []orderResponse `json:"orders"`
}

type customerResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type productResponse struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	PriceMinor int64     `json:"price_minor"`
	Quantity   int64     `json:"quantity"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// errorResponse — тело ответа с ошибкой.
type errorResponse struct {
	Code       string             `json:"code"`
	Message    string             `json:"message"`
	ProductIDs []string           `json:"product_ids,omitempty"`
	Shortages  []problem.Shortage `json:"shortages,omitempty"`
}

func (r placeOrderRequest) items() []domain.OrderItemRequest {
	items := make([]domain.OrderItemRequest, 0, len(r.Products))
	for _, p := range r.Products {
		items = append(items, domain.OrderItemRequest{ProductID: p.ID, Quantity: p.Quantity})
	}
	return items
}

func newOrderResponse(order domain.Order) orderResponse {
	lines := make([]orderLineResponse, 0, len(order.Lines))
	for _, line := range order.Lines {
		lines = append(lines, orderLineResponse{
			ID:         line.ID,
			ProductID:  line.ProductID,
			Quantity:   line.Quantity,
			PriceMinor: line.PriceMinor,
		})
	}
	return orderResponse{
		ID:         order.ID,
		CustomerID: order.CustomerID,
		Products:   lines,
		TotalMinor: order.TotalMinor(),
		CreatedAt:  order.CreatedAt,
	}
}

func newCustomerResponse(c domain.Customer) customerResponse {
	return customerResponse{ID: c.ID, Name: c.Name, Email: c.Email, CreatedAt: c.CreatedAt}
}

func newProductResponse(p domain.Product) productResponse {
	return productResponse{
		ID:         p.ID,
		Name:       p.Name,
		PriceMinor: p.PriceMinor,
		Quantity:   p.Quantity,
		CreatedAt:  p.CreatedAt,
		UpdatedAt:  p.UpdatedAt,
	}
}

func newErrorResponse(p problem.Problem) errorResponse {
	return errorResponse{
		Code:       p.Code,
		Message:    p.Message,
		ProductIDs: p.ProductIDs,
		Shortages:  p.Shortages,
	}
}
