package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sakashimaa/cart-service/pkg/metrics"
	"github.com/sakashimaa/cart-service/services/cart/internal/domain"
	"github.com/sakashimaa/cart-service/services/cart/internal/service"
	"github.com/sakashimaa/cart-service/services/cart/internal/transport/http/handler"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"
)

// memoryService is an in-process cart store used to drive the routes.
type memoryService struct {
	mu    sync.Mutex
	carts map[string]*domain.Cart
	now   time.Time
	err   error
	calls []string
}

func newMemoryService() *memoryService {
	return &memoryService{
		carts: make(map[string]*domain.Cart),
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func (m *memoryService) record(op string) error {
	m.calls = append(m.calls, op)
	return m.err
}

func (m *memoryService) cart(userID string) *domain.Cart {
	if c, ok := m.carts[userID]; ok {
		return c
	}
	return domain.NewCart(userID, m.now)
}

func (m *memoryService) GetCart(_ context.Context, userID string) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("get"); err != nil {
		return nil, err
	}
	return m.cart(userID), nil
}

func (m *memoryService) mutate(op, userID string, fn func(c *domain.Cart)) (*domain.Cart, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record(op); err != nil {
		return nil, err
	}
	c := m.cart(userID)
	fn(c)
	m.carts[userID] = c
	return c, nil
}

func (m *memoryService) AddItem(_ context.Context, userID string, item domain.LineItem) (*domain.Cart, error) {
	return m.mutate("add", userID, func(c *domain.Cart) { c.AddItem(item, m.now) })
}

func (m *memoryService) RemoveItem(_ context.Context, userID, productID string) (*domain.Cart, error) {
	return m.mutate("remove", userID, func(c *domain.Cart) { c.RemoveItem(productID, m.now) })
}

func (m *memoryService) UpdateItemQuantity(_ context.Context, userID, productID string, quantity int) (*domain.Cart, error) {
	return m.mutate("update", userID, func(c *domain.Cart) { c.UpdateItemQuantity(productID, quantity, m.now) })
}

func (m *memoryService) ClearCart(_ context.Context, userID string) (*domain.Cart, error) {
	return m.mutate("clear", userID, func(c *domain.Cart) { c.Clear(m.now) })
}

func (m *memoryService) DeleteCart(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("delete"); err != nil {
		return err
	}
	delete(m.carts, userID)
	return nil
}

func (m *memoryService) Summary(_ context.Context, userID string) (domain.Summary, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.record("summary"); err != nil {
		return domain.Summary{}, err
	}
	return m.cart(userID).Summary(), nil
}

var _ service.CartService = (*memoryService)(nil)

type RouterSuite struct {
	suite.Suite
	svc *memoryService
	app *fiber.App
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.svc = newMemoryService()
	s.app = NewApp(LimiterConfig{})
	h := handler.NewCartHandler(s.svc, zap.NewNop(), time.Second)
	RegisterRoutes(s.app, h, metrics.New("cart").Handler())
}

type cartBody struct {
	UserID string `json:"userId"`
	Items  map[string]struct {
		ProductID   string          `json:"productId"`
		ProductName string          `json:"productName"`
		Price       decimal.Decimal `json:"price"`
		Quantity    int             `json:"quantity"`
	} `json:"items"`
	TotalItems int             `json:"totalItems"`
	TotalPrice decimal.Decimal `json:"totalPrice"`
}

func (s *RouterSuite) do(method, path, body string) (int, []byte) {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.app.Test(req, -1)
	s.Require().NoError(err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	s.Require().NoError(err)
	return resp.StatusCode, raw
}

func (s *RouterSuite) decodeCart(raw []byte) cartBody {
	var out cartBody
	s.Require().NoError(json.Unmarshal(raw, &out))
	return out
}

func (s *RouterSuite) TestGetCart_Empty() {
	status, raw := s.do("GET", "/api/cart/u1", "")
	s.Equal(fiber.StatusOK, status)

	cart := s.decodeCart(raw)
	s.Equal("u1", cart.UserID)
	s.Empty(cart.Items)
	s.Equal(0, cart.TotalItems)
	s.True(cart.TotalPrice.IsZero())
}

func (s *RouterSuite) TestAddItem_ScenarioTotals() {
	status, raw := s.do("POST", "/api/cart/u1/add", `{"productId":"p1","productName":"Widget","price":9.99,"quantity":2}`)
	s.Require().Equal(fiber.StatusOK, status, string(raw))
	cart := s.decodeCart(raw)
	s.Equal(2, cart.TotalItems)
	s.Equal("19.98", cart.TotalPrice.String())

	status, raw = s.do("POST", "/api/cart/u1/add", `{"productId":"p1","productName":"Widget","price":9.99,"quantity":3}`)
	s.Require().Equal(fiber.StatusOK, status)
	cart = s.decodeCart(raw)
	s.Equal(5, cart.Items["p1"].Quantity)
	s.Equal("49.95", cart.TotalPrice.String())

	status, raw = s.do("PUT", "/api/cart/u1/item/p1/quantity", `{"quantity":0}`)
	s.Require().Equal(fiber.StatusOK, status)
	cart = s.decodeCart(raw)
	s.Empty(cart.Items)
}

func (s *RouterSuite) TestAddItem_RejectsNonPositiveQuantity() {
	for _, body := range []string{
		`{"productId":"p1","price":1,"quantity":0}`,
		`{"productId":"p1","price":1,"quantity":-2}`,
		`{"productId":"p1","price":1}`,
	} {
		status, raw := s.do("POST", "/api/cart/u1/add", body)
		s.Equal(fiber.StatusBadRequest, status, body)
		s.Contains(string(raw), "quantity must be greater than 0")
	}
	s.Empty(s.svc.calls)
}

func (s *RouterSuite) TestAddItem_RejectsMissingProductAndNegativePrice() {
	status, raw := s.do("POST", "/api/cart/u1/add", `{"price":-1,"quantity":1}`)
	s.Equal(fiber.StatusBadRequest, status)
	s.Contains(string(raw), "productId is required")
	s.Contains(string(raw), "price must be greater than or equal to 0")
	s.Empty(s.svc.calls)
}

func (s *RouterSuite) TestAddItem_MalformedBody() {
	status, _ := s.do("POST", "/api/cart/u1/add", `{"productId":`)
	s.Equal(fiber.StatusBadRequest, status)
	s.Empty(s.svc.calls)
}

func (s *RouterSuite) TestUpdateQuantity_RejectsMissingAndNegative() {
	status, raw := s.do("PUT", "/api/cart/u1/item/p1/quantity", `{}`)
	s.Equal(fiber.StatusBadRequest, status)
	s.Contains(string(raw), "quantity is required")

	status, _ = s.do("PUT", "/api/cart/u1/item/p1/quantity", `{"quantity":-1}`)
	s.Equal(fiber.StatusBadRequest, status)
	s.Empty(s.svc.calls)
}

func (s *RouterSuite) TestQuantity_RejectsAboveMax() {
	status, raw := s.do("POST", "/api/cart/u1/add", `{"productId":"p1","price":1,"quantity":1000001}`)
	s.Equal(fiber.StatusBadRequest, status)
	s.Contains(string(raw), "quantity must be at most 1000000")

	status, raw = s.do("PUT", "/api/cart/u1/item/p1/quantity", `{"quantity":1000001}`)
	s.Equal(fiber.StatusBadRequest, status)
	s.Contains(string(raw), "quantity must be at most 1000000")

	status, _ = s.do("POST", "/api/cart/u1/add", `{"productId":"p1","price":1,"quantity":9223372036854775807}`)
	s.Equal(fiber.StatusBadRequest, status)
	s.Empty(s.svc.calls)

	status, _ = s.do("POST", "/api/cart/u1/add", `{"productId":"p1","price":1,"quantity":1000000}`)
	s.Equal(fiber.StatusOK, status)
}

func (s *RouterSuite) TestRemoveItem() {
	_, _ = s.do("POST", "/api/cart/u1/add", `{"productId":"p1","price":1,"quantity":1}`)

	status, raw := s.do("DELETE", "/api/cart/u1/item/p1", "")
	s.Equal(fiber.StatusOK, status)
	s.Empty(s.decodeCart(raw).Items)
}

func (s *RouterSuite) TestClearAndDelete_ReturnMessages() {
	status, raw := s.do("DELETE", "/api/cart/u1/clear", "")
	s.Equal(fiber.StatusOK, status)
	s.JSONEq(`{"message":"Cart cleared successfully"}`, string(raw))

	status, raw = s.do("DELETE", "/api/cart/u1", "")
	s.Equal(fiber.StatusOK, status)
	s.JSONEq(`{"message":"Cart deleted successfully"}`, string(raw))
	s.Equal([]string{"clear", "delete"}, s.svc.calls)
}

func (s *RouterSuite) TestSummary() {
	_, _ = s.do("POST", "/api/cart/u1/add", `{"productId":"p1","price":"9.99","quantity":2}`)
	_, _ = s.do("POST", "/api/cart/u1/add", `{"productId":"p2","price":1,"quantity":1}`)

	status, raw := s.do("GET", "/api/cart/u1/summary", "")
	s.Require().Equal(fiber.StatusOK, status)

	var sum struct {
		TotalItems int             `json:"totalItems"`
		TotalPrice decimal.Decimal `json:"totalPrice"`
		ItemCount  int             `json:"itemCount"`
	}
	s.Require().NoError(json.Unmarshal(raw, &sum))
	s.Equal(3, sum.TotalItems)
	s.Equal(2, sum.ItemCount)
	s.Equal("20.98", sum.TotalPrice.String())
}

func (s *RouterSuite) TestInvalidUserID() {
	status, _ := s.do("GET", "/api/cart/a%20b", "")
	s.Equal(fiber.StatusBadRequest, status)
	s.Empty(s.svc.calls)
}

func (s *RouterSuite) TestStoreFailure_HidesCause() {
	s.svc.err = errors.New("dial tcp 10.0.0.1:6379: connection refused")

	status, raw := s.do("GET", "/api/cart/u1", "")
	s.Equal(fiber.StatusInternalServerError, status)
	s.JSONEq(`{"error":"internal error"}`, string(raw))
}

func (s *RouterSuite) TestStoreFailure_OpensBreaker() {
	s.svc.err = errors.New("connection refused")

	for i := 0; i < 5; i++ {
		status, _ := s.do("GET", "/api/cart/u1", "")
		s.Equal(fiber.StatusInternalServerError, status)
	}

	status, _ := s.do("GET", "/api/cart/u1", "")
	s.Equal(fiber.StatusServiceUnavailable, status)
}

func (s *RouterSuite) TestDeadline_MapsToGatewayTimeout() {
	s.svc.err = context.DeadlineExceeded

	status, _ := s.do("DELETE", "/api/cart/u1", "")
	s.Equal(fiber.StatusGatewayTimeout, status)
}

func (s *RouterSuite) TestHealthAndMetrics() {
	status, raw := s.do("GET", "/health", "")
	s.Equal(fiber.StatusOK, status)
	s.Contains(string(raw), "alive")

	status, _ = s.do("GET", "/metrics", "")
	s.Equal(fiber.StatusOK, status)
}

func TestLimiter_RejectsBurst(t *testing.T) {
	app := NewApp(LimiterConfig{Max: 1, Expiration: time.Minute})
	RegisterRoutes(app, handler.NewCartHandler(newMemoryService(), zap.NewNop(), time.Second), nil)

	resp, err := app.Test(httptest.NewRequest("GET", "/api/cart/u1", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/api/cart/u1", nil), -1)
	require.NoError(t, err)
	require.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)
}
