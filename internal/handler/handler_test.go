package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/grocermart-system/internal/expense"
	"github.com/mmeshcher/grocermart-system/internal/geo"
	"github.com/mmeshcher/grocermart-system/internal/middleware"
	"github.com/mmeshcher/grocermart-system/internal/model"
	"github.com/mmeshcher/grocermart-system/internal/pantry"
	"github.com/mmeshcher/grocermart-system/internal/payment"
	"github.com/mmeshcher/grocermart-system/internal/service"
)

type stubService struct {
	registerUserID int64
	registerErr    error

	authUserID int64
	authErr    error

	userResp *model.User
	userErr  error

	fcmErr  error
	subsErr error

	createShopID  int64
	createShopErr error

	shopsResp []model.Shop
	shopsErr  error

	matchesResp []geo.Match
	matchesErr  error

	createProductID  int64
	createProductErr error
	productsResp     []model.Product
	productsErr      error
	updateProductErr error
	deleteProductErr error

	addPantryItemID  int64
	addPantryItemErr error
	pantryResp       []model.PantryItem
	pantryErr        error
	updateStockErr   error
	refillErr        error
	deleteItemErr    error
	queueResp        []model.PantryItem
	queueErr         error
	advanceErr       error

	createdOrders   []model.Order
	createOrdersErr error
	ordersResp      []model.Order
	ordersErr       error
	orderStatusErr  error

	reportResp *expense.Report
	reportErr  error

	notificationsResp []model.Notification
	notificationsErr  error
	unreadCount       int64
	unreadErr         error
	markReadErr       error
	deleteNotifErr    error

	paymentOrder     *payment.GatewayOrder
	paymentOrderErr  error
	verifyPaymentRes bool
}

func (s *stubService) RegisterUser(ctx context.Context, login, password string, role model.Role, phone string) (int64, error) {
	return s.registerUserID, s.registerErr
}

func (s *stubService) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	return s.authUserID, s.authErr
}

func (s *stubService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.userResp, s.userErr
}

func (s *stubService) SetFCMToken(ctx context.Context, userID int64, token string) error {
	return s.fcmErr
}

func (s *stubService) UpdateSubscriptions(ctx context.Context, userID int64, shopIDs []int64) error {
	return s.subsErr
}

func (s *stubService) CreateShop(ctx context.Context, ownerID int64, shop model.Shop, pay service.PaymentConfirmation) (int64, error) {
	return s.createShopID, s.createShopErr
}

func (s *stubService) GetShops(ctx context.Context) ([]model.Shop, error) {
	return s.shopsResp, s.shopsErr
}

func (s *stubService) GetNearbyShops(ctx context.Context, consumer model.Coordinates) ([]geo.Match, error) {
	return s.matchesResp, s.matchesErr
}

func (s *stubService) CreateProduct(ctx context.Context, ownerID int64, p model.Product) (int64, error) {
	return s.createProductID, s.createProductErr
}

func (s *stubService) GetProducts(ctx context.Context, shopID int64) ([]model.Product, error) {
	return s.productsResp, s.productsErr
}

func (s *stubService) UpdateProduct(ctx context.Context, ownerID int64, p model.Product) error {
	return s.updateProductErr
}

func (s *stubService) DeleteProduct(ctx context.Context, ownerID, productID int64) error {
	return s.deleteProductErr
}

func (s *stubService) AddPantryItem(ctx context.Context, userID, productID int64, packsOwned int) (int64, error) {
	return s.addPantryItemID, s.addPantryItemErr
}

func (s *stubService) GetPantry(ctx context.Context, userID int64) ([]model.PantryItem, error) {
	return s.pantryResp, s.pantryErr
}

func (s *stubService) UpdateStock(ctx context.Context, userID, itemID int64, packs int) error {
	return s.updateStockErr
}

func (s *stubService) RequestRefill(ctx context.Context, userID, itemID int64, currentPacks int) error {
	return s.refillErr
}

func (s *stubService) DeletePantryItem(ctx context.Context, userID, itemID int64) error {
	return s.deleteItemErr
}

func (s *stubService) GetRefillQueue(ctx context.Context, ownerID, shopID int64, filter pantry.QueueFilter) ([]model.PantryItem, error) {
	return s.queueResp, s.queueErr
}

func (s *stubService) AdvanceRefill(ctx context.Context, ownerID, itemID int64, to model.PantryStatus) error {
	return s.advanceErr
}

func (s *stubService) CreateOrders(ctx context.Context, customerID int64, lines []service.CartLine, addr model.DeliveryAddress, contact string) ([]model.Order, error) {
	return s.createdOrders, s.createOrdersErr
}

func (s *stubService) GetOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) UpdateOrderStatus(ctx context.Context, actorID, orderID int64, to model.OrderStatus) error {
	return s.orderStatusErr
}

func (s *stubService) GetExpenseReport(ctx context.Context, userID int64, tf expense.Timeframe, now time.Time) (*expense.Report, error) {
	return s.reportResp, s.reportErr
}

func (s *stubService) GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.notificationsResp, s.notificationsErr
}

func (s *stubService) CountUnreadNotifications(ctx context.Context, userID int64) (int64, error) {
	return s.unreadCount, s.unreadErr
}

func (s *stubService) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	return s.markReadErr
}

func (s *stubService) DeleteNotification(ctx context.Context, userID, notificationID int64) error {
	return s.deleteNotifErr
}

func (s *stubService) CreatePaymentOrder(ctx context.Context, amount float64, receipt string) (*payment.GatewayOrder, error) {
	return s.paymentOrder, s.paymentOrderErr
}

func (s *stubService) VerifyPayment(orderID, paymentID, signature string) bool {
	return s.verifyPaymentRes
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

// authedRequest создаёт запрос с валидной cookie аутентификации.
func authedRequest(t *testing.T, h *Handler, method, target string, body []byte) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)

	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, 1)
	req.AddCookie(rec.Result().Cookies()[0])

	return req
}

func TestRegister_Success(t *testing.T) {
	svc := &stubService{
		registerUserID: 42,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(registerRequest{
		Login:    "user",
		Password: "pass",
		Role:     "consumer",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if len(res.Cookies()) == 0 {
		t.Fatalf("auth cookie not set")
	}
}

func TestRegister_InvalidPhone(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	body, _ := json.Marshal(registerRequest{
		Login:    "user",
		Password: "pass",
		Phone:    "abc",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Register(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestLogin_UnauthorizedOnInvalidCredentials(t *testing.T) {
	svc := &stubService{
		authErr: service.ErrInvalidCredentials,
	}
	h := newTestHandler(t, svc)

	body, _ := json.Marshal(credentialsRequest{
		Login:    "user",
		Password: "wrong",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	h.Login(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestCreateShop_PaymentRequired(t *testing.T) {
	svc := &stubService{
		createShopErr: service.ErrPaymentNotVerified,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createShopRequest{
		Name:  "Corner Grocery",
		Phone: "+79991234567",
		Location: model.Location{
			Address: "1 Main St",
			City:    "Springfield",
			Pincode: "560001",
		},
	})

	req := authedRequest(t, h, http.MethodPost, "/api/shops", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusPaymentRequired {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusPaymentRequired)
	}
}

func TestCreateShop_InvalidPincode(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	body, _ := json.Marshal(createShopRequest{
		Name:  "Corner Grocery",
		Phone: "+79991234567",
		Location: model.Location{
			Pincode: "12",
		},
	})

	req := authedRequest(t, h, http.MethodPost, "/api/shops", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnprocessableEntity)
	}
}

func TestGetNearbyShops_BadCoordinates(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodGet, "/api/shops/nearby?lng=37.6&lat=95", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestGetNearbyShops_JSONResponse(t *testing.T) {
	svc := &stubService{
		matchesResp: []geo.Match{
			{
				Shop:       model.Shop{ID: 7, Name: "Corner Grocery"},
				DistanceKm: 1.25,
			},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodGet, "/api/shops/nearby?lng=37.6&lat=55.7", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var resp []nearbyShopResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 1 || resp[0].ID != 7 || resp[0].DistanceKm != 1.25 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetPantry_ForbiddenForOtherUser(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodGet, "/api/pantry/user/2", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusForbidden)
	}
}

func TestRequestRefill_ConflictWhileInFlight(t *testing.T) {
	svc := &stubService{
		refillErr: pantry.ErrRefillInFlight,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(refillRequest{CurrentPacks: 1})
	req := authedRequest(t, h, http.MethodPost, "/api/pantry/5/refill", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestAdvanceRefill_RouteMapsStatus(t *testing.T) {
	svc := &stubService{
		advanceErr: pantry.ErrInvalidTransition,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodPut, "/api/pantry/request/5/deliver", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestCreateOrders_Created(t *testing.T) {
	svc := &stubService{
		createdOrders: []model.Order{
			{ID: 1, ShopID: 10, TotalAmount: 25, Status: model.OrderStatusPending},
			{ID: 2, ShopID: 20, TotalAmount: 7, Status: model.OrderStatusPending},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(createOrdersRequest{
		Items: []service.CartLine{
			{ProductID: 1, ShopID: 10, Name: "Milk", Price: 2.5, Quantity: 10},
		},
		DeliveryAddress: model.DeliveryAddress{Pincode: "560001"},
	})

	req := authedRequest(t, h, http.MethodPost, "/api/orders", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusCreated)
	}

	var resp []createdOrderResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp) != 2 || resp[0].ShopID != 10 || resp[1].ShopID != 20 {
		t.Fatalf("unexpected response: %+v", resp)
	}
}

func TestGetOrders_NoContent(t *testing.T) {
	svc := &stubService{
		ordersResp: []model.Order{},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusNoContent)
	}
}

func TestUpdateOrderStatus_Conflict(t *testing.T) {
	svc := &stubService{
		orderStatusErr: service.ErrInvalidOrderTransition,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(updateOrderRequest{Status: "DELIVERED"})
	req := authedRequest(t, h, http.MethodPut, "/api/orders/3", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusConflict {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusConflict)
	}
}

func TestGetExpenses_JSONResponse(t *testing.T) {
	svc := &stubService{
		reportResp: &expense.Report{
			TotalSpent: 85,
			ShopWise:   []expense.ShopSpend{{ShopID: 10, ShopName: "Corner Grocery", Total: 85, Orders: 1}},
			Monthly:    []expense.MonthSpend{{Label: "March 2026", Total: 85}},
			Recent:     []expense.Transaction{},
		},
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodGet, "/api/expenses?timeframe=month", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp expense.Report
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.TotalSpent != 85 || len(resp.Monthly) != 1 || resp.Monthly[0].Label != "March 2026" {
		t.Fatalf("unexpected report: %+v", resp)
	}
}

func TestCountUnreadNotifications(t *testing.T) {
	svc := &stubService{
		unreadCount: 3,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	req := authedRequest(t, h, http.MethodGet, "/api/notifications/unread-count", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	res := rec.Result()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var resp map[string]int64
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp["count"] != 3 {
		t.Fatalf("count = %d, want 3", resp["count"])
	}
}

func TestVerifyPayment(t *testing.T) {
	svc := &stubService{
		verifyPaymentRes: true,
	}
	h := newTestHandler(t, svc)
	router := h.SetupRouter()

	body, _ := json.Marshal(service.PaymentConfirmation{
		OrderID:   "order_1",
		PaymentID: "pay_1",
		Signature: "sig",
	})

	req := authedRequest(t, h, http.MethodPost, "/api/payments/verify", body)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	var resp map[string]bool
	if err := json.NewDecoder(rec.Result().Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp["verified"] {
		t.Fatalf("verified = false, want true")
	}
}

func TestProtectedRoute_Unauthorized(t *testing.T) {
	h := newTestHandler(t, &stubService{})
	router := h.SetupRouter()

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	if rec.Result().StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want %d", rec.Result().StatusCode, http.StatusUnauthorized)
	}
}
