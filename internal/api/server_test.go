package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/vaidashi/marketplace-orders/internal/lifecycle"
	"github.com/vaidashi/marketplace-orders/internal/models"
	"github.com/vaidashi/marketplace-orders/internal/repository"
	"github.com/vaidashi/marketplace-orders/internal/service"
	"github.com/vaidashi/marketplace-orders/pkg/circuitbreaker"
	"github.com/vaidashi/marketplace-orders/pkg/logger"
)

type fakeOrders struct {
	created         *service.NewOrderInput
	transitionErrs  []error
	transitionCalls int
	getErr          error
}

func (f *fakeOrders) CreateOrder(ctx context.Context, in service.NewOrderInput) (*models.Order, error) {
	f.created = &in
	return &models.Order{ID: "ord-1", BuyerID: in.BuyerID, Status: models.OrderStatusPending}, nil
}

func (f *fakeOrders) Transition(ctx context.Context, orderID, target, actorID, note string) (*models.OrderAggregate, error) {
	f.transitionCalls++
	if len(f.transitionErrs) > 0 {
		err := f.transitionErrs[0]
		f.transitionErrs = f.transitionErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &models.OrderAggregate{Order: &models.Order{ID: orderID, Status: models.OrderStatus(target)}}, nil
}

func (f *fakeOrders) GetOrder(ctx context.Context, id string) (*models.OrderAggregate, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return &models.OrderAggregate{Order: &models.Order{ID: id, Status: models.OrderStatusInTransit}}, nil
}

func (f *fakeOrders) PayoutView(ctx context.Context, id string) (lifecycle.PayoutView, error) {
	return lifecycle.PayoutView{Status: models.PayoutStatusPending}, nil
}

func (f *fakeOrders) MarkPaid(ctx context.Context, id, reference string) (*models.Order, error) {
	return &models.Order{ID: id, PaymentStatus: models.PaymentStatusPaid, PaymentReference: &reference}, nil
}

func (f *fakeOrders) SellerPayoutSummary(ctx context.Context, sellerID string) (*service.PayoutSummary, error) {
	return &service.PayoutSummary{SellerID: sellerID}, nil
}

type fakeReviews struct {
	createErr error
}

func (f *fakeReviews) CanReview(ctx context.Context, buyerID, productID, orderID string) (lifecycle.Eligibility, error) {
	return lifecycle.Eligibility{Eligible: false, Reason: lifecycle.ReasonNotDelivered}, nil
}

func (f *fakeReviews) CreateReview(ctx context.Context, in service.ReviewInput) (*models.Review, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return &models.Review{ID: "rev-1", Rating: in.Rating}, nil
}

func (f *fakeReviews) UpdateReview(ctx context.Context, id, buyerID string, rating int, title, comment string) (*models.Review, error) {
	return nil, service.ErrReviewNotFound
}

func (f *fakeReviews) DeleteReview(ctx context.Context, id, buyerID string) error {
	return nil
}

func (f *fakeReviews) RespondToReview(ctx context.Context, id, sellerID, response string) (*models.Review, error) {
	return &models.Review{ID: id, SellerResponse: &response}, nil
}

func (f *fakeReviews) ToggleHelpful(ctx context.Context, id, userID string) (service.HelpfulResult, error) {
	return service.HelpfulResult{Marked: true, Count: 1}, nil
}

type fakeOutboxAdmin struct{}

func (fakeOutboxAdmin) CountByStatus(ctx context.Context) (map[models.OutboxStatus]int, error) {
	return map[models.OutboxStatus]int{models.OutboxStatusPending: 2}, nil
}

func (fakeOutboxAdmin) ListFailed(ctx context.Context, limit, offset int) ([]*models.OutboxMessage, error) {
	return []*models.OutboxMessage{{ID: 9, Status: models.OutboxStatusFailed}}, nil
}

func (fakeOutboxAdmin) Requeue(ctx context.Context, id int64) error {
	if id != 9 {
		return repository.ErrNotFound
	}
	return nil
}

type pinger struct{ err error }

func (p pinger) Ping(ctx context.Context) error { return p.err }

type testEnv struct {
	server  *Server
	orders  *fakeOrders
	reviews *fakeReviews
}

func newTestEnv(checks map[string]Pinger) *testEnv {
	env := &testEnv{orders: &fakeOrders{}, reviews: &fakeReviews{}}
	env.server = NewServer(0, Dependencies{
		Orders:  env.orders,
		Reviews: env.reviews,
		Outbox:  fakeOutboxAdmin{},
		Checks:  checks,
		Breaker: circuitbreaker.NewCircuitBreaker(circuitbreaker.CircuitBreakerConfig{}),
	}, logger.NewNop())
	return env
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, ApiResponse) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if s, ok := body.(string); ok {
			buf.WriteString(s)
		} else if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)

	var resp ApiResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return rec, resp
}

func validOrderBody() map[string]interface{} {
	return map[string]interface{}{
		"buyer_id":     "buyer-1",
		"seller_id":    "seller-1",
		"shop_name":    "Ada's Fabrics",
		"seller_phone": "08011112222",
		"delivery": map[string]string{
			"name":    "Bola Ade",
			"phone":   "08033334444",
			"address": "12 Allen Avenue, Ikeja",
		},
		"items": []map[string]interface{}{
			{"product_id": "prod-1", "product_name": "Ankara", "unit_price": 250000, "quantity": 2},
		},
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(map[string]Pinger{"database": pinger{}, "redis": pinger{}})

	rec, resp := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusOK || !resp.Success {
		t.Fatalf("expected healthy, got %d %+v", rec.Code, resp)
	}

	data := resp.Data.(map[string]interface{})
	if data["outbox"].(map[string]interface{})["pending"].(float64) != 2 {
		t.Fatalf("expected outbox counts, got %v", data["outbox"])
	}
}

func TestHealthDegraded(t *testing.T) {
	env := newTestEnv(map[string]Pinger{"database": pinger{err: errors.New("connection refused")}})

	rec, _ := env.do(t, http.MethodGet, "/api/v1/health", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestCreateOrder(t *testing.T) {
	env := newTestEnv(nil)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/orders", validOrderBody())
	if rec.Code != http.StatusCreated || !resp.Success {
		t.Fatalf("expected 201, got %d %+v", rec.Code, resp)
	}

	in := env.orders.created
	if in == nil || in.Items[0].UnitPrice != 250000 || in.Items[0].Quantity != 2 {
		t.Fatalf("unexpected service input %+v", in)
	}
	if in.Delivery.Notes != nil {
		t.Fatal("empty notes should map to nil")
	}
}

func TestCreateOrderValidation(t *testing.T) {
	cases := map[string]func(map[string]interface{}){
		"no items":      func(b map[string]interface{}) { b["items"] = []interface{}{} },
		"own shop":      func(b map[string]interface{}) { b["seller_id"] = "buyer-1" },
		"zero quantity": func(b map[string]interface{}) { b["items"].([]map[string]interface{})[0]["quantity"] = 0 },
		"duplicate product": func(b map[string]interface{}) {
			item := b["items"].([]map[string]interface{})[0]
			b["items"] = []map[string]interface{}{item, item}
		},
		"unknown field":    func(b map[string]interface{}) { b["total"] = 1 },
		"missing delivery": func(b map[string]interface{}) { delete(b, "delivery") },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(nil)
			body := validOrderBody()
			mutate(body)

			rec, resp := env.do(t, http.MethodPost, "/api/v1/orders", body)
			if rec.Code != http.StatusBadRequest || resp.Success {
				t.Fatalf("expected 400, got %d %+v", rec.Code, resp)
			}
			if env.orders.created != nil {
				t.Fatal("service must not be called for invalid input")
			}
		})
	}
}

func TestCreateOrderMalformedJSON(t *testing.T) {
	env := newTestEnv(nil)

	rec, resp := env.do(t, http.MethodPost, "/api/v1/orders", "{not json")
	if rec.Code != http.StatusBadRequest || resp.Code != "invalid_request_body" {
		t.Fatalf("expected invalid_request_body, got %d %+v", rec.Code, resp)
	}
}

func TestUpdateStatus(t *testing.T) {
	env := newTestEnv(nil)

	rec, resp := env.do(t, http.MethodPatch, "/api/v1/orders/ord-1/status", map[string]string{"status": "in_transit"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %+v", rec.Code, resp)
	}
	if resp.Data.(map[string]interface{})["display_status"] != "shipped" {
		t.Fatalf("expected shipped display status, got %v", resp.Data)
	}
}

func TestUpdateStatusErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
		kind string
	}{
		{"invalid transition", &lifecycle.InvalidTransitionError{From: models.OrderStatusPending, To: models.OrderStatusDelivered}, http.StatusConflict, "invalid_transition"},
		{"unknown status", fmt.Errorf("%w: shipped", lifecycle.ErrUnknownStatus), http.StatusBadRequest, ""},
		{"missing order", lifecycle.ErrOrderNotFound, http.StatusNotFound, ""},
		{"unexpected", errors.New("disk full"), http.StatusInternalServerError, ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(nil)
			env.orders.transitionErrs = []error{tc.err}

			rec, resp := env.do(t, http.MethodPatch, "/api/v1/orders/ord-1/status", map[string]string{"status": "delivered"})
			if rec.Code != tc.code {
				t.Fatalf("expected %d, got %d %+v", tc.code, rec.Code, resp)
			}
			if resp.Code != tc.kind {
				t.Fatalf("expected code %q, got %q", tc.kind, resp.Code)
			}
			if env.orders.transitionCalls != 1 {
				t.Fatalf("non-conflict errors must not be retried, got %d calls", env.orders.transitionCalls)
			}
		})
	}
}

func TestUpdateStatusRetriesConflictOnce(t *testing.T) {
	conflict := fmt.Errorf("%w: %w", lifecycle.ErrConcurrencyConflict, repository.ErrConflict)

	env := newTestEnv(nil)
	env.orders.transitionErrs = []error{conflict}

	start := time.Now()
	rec, _ := env.do(t, http.MethodPatch, "/api/v1/orders/ord-1/status", map[string]string{"status": "processing"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d", rec.Code)
	}
	if env.orders.transitionCalls != 2 {
		t.Fatalf("expected 2 calls, got %d", env.orders.transitionCalls)
	}
	if time.Since(start) > 5*time.Second {
		t.Fatal("retry took too long")
	}

	env = newTestEnv(nil)
	env.orders.transitionErrs = []error{conflict, conflict}

	rec, resp := env.do(t, http.MethodPatch, "/api/v1/orders/ord-1/status", map[string]string{"status": "processing"})
	if rec.Code != http.StatusConflict || resp.Code != "concurrency_conflict" {
		t.Fatalf("expected retryable 409, got %d %+v", rec.Code, resp)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header")
	}
}

func TestGetOrderNotFound(t *testing.T) {
	env := newTestEnv(nil)
	env.orders.getErr = lifecycle.ErrOrderNotFound

	rec, _ := env.do(t, http.MethodGet, "/api/v1/orders/missing", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestCreateReviewRefusals(t *testing.T) {
	body := map[string]interface{}{"buyer_id": "b", "product_id": "p", "order_id": "o", "rating": 5}

	cases := []struct {
		reason lifecycle.Reason
		code   int
	}{
		{lifecycle.ReasonNotPurchased, http.StatusForbidden},
		{lifecycle.ReasonNotDelivered, http.StatusForbidden},
		{lifecycle.ReasonAlreadyReviewed, http.StatusConflict},
	}

	for _, tc := range cases {
		env := newTestEnv(nil)
		env.reviews.createErr = &lifecycle.EligibilityError{Reason: tc.reason}

		rec, resp := env.do(t, http.MethodPost, "/api/v1/reviews", body)
		if rec.Code != tc.code || resp.Code != string(tc.reason) {
			t.Fatalf("%s: expected %d, got %d %+v", tc.reason, tc.code, rec.Code, resp)
		}
	}
}

func TestCreateReviewRatingValidation(t *testing.T) {
	env := newTestEnv(nil)

	rec, _ := env.do(t, http.MethodPost, "/api/v1/reviews", map[string]interface{}{
		"buyer_id": "b", "product_id": "p", "order_id": "o", "rating": 6,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestReviewEligibility(t *testing.T) {
	env := newTestEnv(nil)

	rec, _ := env.do(t, http.MethodGet, "/api/v1/reviews/eligibility?buyer_id=b", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without all ids, got %d", rec.Code)
	}

	rec, resp := env.do(t, http.MethodGet, "/api/v1/reviews/eligibility?buyer_id=b&product_id=p&order_id=o", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if resp.Data.(map[string]interface{})["reason"] != "not_delivered" {
		t.Fatalf("unexpected eligibility %v", resp.Data)
	}
}

func TestUpdateReviewNotOwner(t *testing.T) {
	env := newTestEnv(nil)

	rec, _ := env.do(t, http.MethodPut, "/api/v1/reviews/rev-1", map[string]interface{}{"buyer_id": "x", "rating": 3})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestRequeueFailedMessage(t *testing.T) {
	env := newTestEnv(nil)

	if rec, _ := env.do(t, http.MethodPost, "/api/v1/admin/outbox/failed/9/retry", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec, _ := env.do(t, http.MethodPost, "/api/v1/admin/outbox/failed/10/retry", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec, _ := env.do(t, http.MethodPost, "/api/v1/admin/outbox/failed/abc/retry", nil); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestCircuitBreakerAdmin(t *testing.T) {
	env := newTestEnv(nil)

	rec, resp := env.do(t, http.MethodGet, "/api/v1/admin/notifier/circuit-breaker", nil)
	if rec.Code != http.StatusOK || resp.Data.(map[string]interface{})["state"] != "closed" {
		t.Fatalf("unexpected breaker status %d %+v", rec.Code, resp)
	}

	if rec, _ := env.do(t, http.MethodPost, "/api/v1/admin/notifier/circuit-breaker/reset", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}
