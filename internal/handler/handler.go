// Package handler содержит HTTP-обработчики API сервиса гросермарт.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/grocermart-system/internal/expense"
	"github.com/mmeshcher/grocermart-system/internal/geo"
	"github.com/mmeshcher/grocermart-system/internal/middleware"
	"github.com/mmeshcher/grocermart-system/internal/model"
	"github.com/mmeshcher/grocermart-system/internal/pantry"
	"github.com/mmeshcher/grocermart-system/internal/payment"
	"github.com/mmeshcher/grocermart-system/internal/repository"
	"github.com/mmeshcher/grocermart-system/internal/service"
	"github.com/mmeshcher/grocermart-system/internal/validation"
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	RegisterUser(ctx context.Context, login, password string, role model.Role, phone string) (int64, error)
	AuthenticateUser(ctx context.Context, login, password string) (int64, error)
	GetUser(ctx context.Context, id int64) (*model.User, error)
	SetFCMToken(ctx context.Context, userID int64, token string) error
	UpdateSubscriptions(ctx context.Context, userID int64, shopIDs []int64) error

	CreateShop(ctx context.Context, ownerID int64, shop model.Shop, pay service.PaymentConfirmation) (int64, error)
	GetShops(ctx context.Context) ([]model.Shop, error)
	GetNearbyShops(ctx context.Context, consumer model.Coordinates) ([]geo.Match, error)

	CreateProduct(ctx context.Context, ownerID int64, p model.Product) (int64, error)
	GetProducts(ctx context.Context, shopID int64) ([]model.Product, error)
	UpdateProduct(ctx context.Context, ownerID int64, p model.Product) error
	DeleteProduct(ctx context.Context, ownerID, productID int64) error

	AddPantryItem(ctx context.Context, userID, productID int64, packsOwned int) (int64, error)
	GetPantry(ctx context.Context, userID int64) ([]model.PantryItem, error)
	UpdateStock(ctx context.Context, userID, itemID int64, packs int) error
	RequestRefill(ctx context.Context, userID, itemID int64, currentPacks int) error
	DeletePantryItem(ctx context.Context, userID, itemID int64) error
	GetRefillQueue(ctx context.Context, ownerID, shopID int64, filter pantry.QueueFilter) ([]model.PantryItem, error)
	AdvanceRefill(ctx context.Context, ownerID, itemID int64, to model.PantryStatus) error

	CreateOrders(ctx context.Context, customerID int64, lines []service.CartLine, addr model.DeliveryAddress, contact string) ([]model.Order, error)
	GetOrders(ctx context.Context, userID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, actorID, orderID int64, to model.OrderStatus) error

	GetExpenseReport(ctx context.Context, userID int64, tf expense.Timeframe, now time.Time) (*expense.Report, error)

	GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int64, error)
	MarkNotificationRead(ctx context.Context, userID, notificationID int64) error
	DeleteNotification(ctx context.Context, userID, notificationID int64) error

	CreatePaymentOrder(ctx context.Context, amount float64, receipt string) (*payment.GatewayOrder, error)
	VerifyPayment(orderID, paymentID, signature string) bool
}

// Handler реализует HTTP-обработчики API сервиса гросермарт.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// statusForError переводит доменные ошибки в HTTP-статусы.
// Ноль означает неизвестную ошибку, ответ за вызывающим.
func statusForError(err error) int {
	switch {
	case errors.Is(err, repository.ErrShopNotFound),
		errors.Is(err, repository.ErrProductNotFound),
		errors.Is(err, repository.ErrPantryItemNotFound),
		errors.Is(err, repository.ErrOrderNotFound),
		errors.Is(err, repository.ErrNotificationNotFound),
		errors.Is(err, repository.ErrUserNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrNotOwner), errors.Is(err, service.ErrNotShopkeeper):
		return http.StatusForbidden
	case errors.Is(err, service.ErrPaymentNotVerified):
		return http.StatusPaymentRequired
	case errors.Is(err, pantry.ErrInvalidTransition),
		errors.Is(err, pantry.ErrRefillInFlight),
		errors.Is(err, service.ErrInvalidOrderTransition),
		errors.Is(err, repository.ErrUserExists):
		return http.StatusConflict
	default:
		return 0
	}
}

func (h *Handler) respondError(w http.ResponseWriter, err error, msg string, fields ...zap.Field) {
	if status := statusForError(err); status != 0 {
		http.Error(w, http.StatusText(status), status)
		return
	}
	h.logger.Error(msg, append(fields, zap.Error(err))...)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

func (h *Handler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (h *Handler) writeJSONStatus(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("encode response error", zap.Error(err))
	}
}

func userIDOrAbort(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.GetUserIDFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return userID, ok
}

func pathID(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, name), 10, 64)
}

type registerRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Role     string `json:"role"`
	Phone    string `json:"phone"`
}

// Register обрабатывает регистрацию нового пользователя.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Phone != "" && !validation.IsValidPhone(req.Phone) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	userID, err := h.service.RegisterUser(r.Context(), req.Login, req.Password, model.Role(req.Role), req.Phone)
	if err != nil {
		h.respondError(w, err, "register user error")
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type credentialsRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// Login выполняет аутентификацию пользователя и установку cookie.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Login == "" || req.Password == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	userID, err := h.service.AuthenticateUser(r.Context(), req.Login, req.Password)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) || errors.Is(err, service.ErrInvalidCredentials) {
			http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
			return
		}
		h.logger.Error("login user error", zap.Error(err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}

	h.authMiddleware.SetAuthCookie(w, userID)
	w.WriteHeader(http.StatusOK)
}

type userResponse struct {
	ID            int64   `json:"id"`
	Login         string  `json:"login"`
	Role          string  `json:"role"`
	Phone         string  `json:"phone,omitempty"`
	Subscriptions []int64 `json:"subscriptions"`
}

// GetUser возвращает профиль текущего пользователя. Чужие профили недоступны.
func (h *Handler) GetUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	requested, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if requested != userID {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	user, err := h.service.GetUser(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "get user error", zap.Int64("userID", userID))
		return
	}

	subs := user.Subscriptions
	if subs == nil {
		subs = []int64{}
	}
	h.writeJSON(w, userResponse{
		ID:            user.ID,
		Login:         user.Login,
		Role:          string(user.Role),
		Phone:         user.Phone,
		Subscriptions: subs,
	})
}

type updateUserRequest struct {
	Subscriptions []int64 `json:"subscriptions"`
}

// UpdateUser обновляет подписки текущего пользователя на магазины.
func (h *Handler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	requested, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if requested != userID {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	var req updateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateSubscriptions(r.Context(), userID, req.Subscriptions); err != nil {
		h.respondError(w, err, "update subscriptions error", zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type fcmTokenRequest struct {
	Token string `json:"token"`
}

// SetFCMToken сохраняет push-токен устройства текущего пользователя.
func (h *Handler) SetFCMToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	var req fcmTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.SetFCMToken(r.Context(), userID, req.Token); err != nil {
		h.respondError(w, err, "set fcm token error", zap.Int64("userID", userID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type shopResponse struct {
	ID               int64          `json:"id"`
	OwnerID          int64          `json:"owner_id"`
	Name             string         `json:"name"`
	Phone            string         `json:"phone"`
	Location         model.Location `json:"location"`
	DeliveryRadiusKm float64        `json:"delivery_radius_km"`
	CreatedAt        string         `json:"created_at"`
}

func toShopResponse(s model.Shop) shopResponse {
	return shopResponse{
		ID:               s.ID,
		OwnerID:          s.OwnerID,
		Name:             s.Name,
		Phone:            s.Phone,
		Location:         s.Location,
		DeliveryRadiusKm: s.DeliveryRadiusKm,
		CreatedAt:        s.CreatedAt.Format(time.RFC3339),
	}
}

type createShopRequest struct {
	Name             string                      `json:"name"`
	Phone            string                      `json:"phone"`
	Location         model.Location              `json:"location"`
	DeliveryRadiusKm float64                     `json:"delivery_radius_km"`
	Payment          service.PaymentConfirmation `json:"payment"`
}

// CreateShop регистрирует магазин текущего пользователя после оплаты подписки.
func (h *Handler) CreateShop(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	var req createShopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Phone == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !validation.IsValidPhone(req.Phone) || !validation.IsValidPincode(req.Location.Pincode) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}
	if c := req.Location.Coordinates; c != nil && !validation.ValidCoordinates(c.Longitude, c.Latitude) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	shopID, err := h.service.CreateShop(r.Context(), userID, model.Shop{
		Name:             req.Name,
		Phone:            req.Phone,
		Location:         req.Location,
		DeliveryRadiusKm: req.DeliveryRadiusKm,
	}, req.Payment)
	if err != nil {
		h.respondError(w, err, "create shop error", zap.Int64("userID", userID))
		return
	}

	h.writeJSONStatus(w, http.StatusCreated, map[string]int64{"id": shopID})
}

// GetShops возвращает список всех магазинов.
func (h *Handler) GetShops(w http.ResponseWriter, r *http.Request) {
	shops, err := h.service.GetShops(r.Context())
	if err != nil {
		h.respondError(w, err, "get shops error")
		return
	}

	resp := make([]shopResponse, 0, len(shops))
	for _, s := range shops {
		resp = append(resp, toShopResponse(s))
	}
	h.writeJSON(w, resp)
}

type nearbyShopResponse struct {
	shopResponse
	DistanceKm float64 `json:"distance_km"`
}

// GetNearbyShops возвращает магазины, доставляющие по координатам покупателя,
// отсортированные по возрастанию расстояния.
func (h *Handler) GetNearbyShops(w http.ResponseWriter, r *http.Request) {
	lng, errLng := strconv.ParseFloat(r.URL.Query().Get("lng"), 64)
	lat, errLat := strconv.ParseFloat(r.URL.Query().Get("lat"), 64)
	if errLng != nil || errLat != nil || !validation.ValidCoordinates(lng, lat) {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	matches, err := h.service.GetNearbyShops(r.Context(), model.Coordinates{Longitude: lng, Latitude: lat})
	if err != nil {
		h.respondError(w, err, "get nearby shops error")
		return
	}

	resp := make([]nearbyShopResponse, 0, len(matches))
	for _, m := range matches {
		resp = append(resp, nearbyShopResponse{
			shopResponse: toShopResponse(m.Shop),
			DistanceKm:   m.DistanceKm,
		})
	}
	h.writeJSON(w, resp)
}

type productRequest struct {
	ShopID          int64   `json:"shop_id"`
	Name            string  `json:"name"`
	Brand           string  `json:"brand"`
	QuantityPerPack float64 `json:"quantity_per_pack"`
	Unit            string  `json:"unit"`
	Price           float64 `json:"price"`
}

type productResponse struct {
	ID              int64   `json:"id"`
	ShopID          int64   `json:"shop_id"`
	Name            string  `json:"name"`
	Brand           string  `json:"brand"`
	QuantityPerPack float64 `json:"quantity_per_pack"`
	Unit            string  `json:"unit"`
	Price           float64 `json:"price"`
}

// CreateProduct добавляет товар в ассортимент магазина текущего владельца.
func (h *Handler) CreateProduct(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ShopID <= 0 || req.Name == "" || req.Price <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	productID, err := h.service.CreateProduct(r.Context(), userID, model.Product{
		ShopID:          req.ShopID,
		Name:            req.Name,
		Brand:           req.Brand,
		QuantityPerPack: req.QuantityPerPack,
		Unit:            req.Unit,
		Price:           req.Price,
	})
	if err != nil {
		h.respondError(w, err, "create product error", zap.Int64("shopID", req.ShopID))
		return
	}

	h.writeJSONStatus(w, http.StatusCreated, map[string]int64{"id": productID})
}

// GetProducts возвращает товары магазина из query-параметра shop_id
// либо все товары, если параметр не задан.
func (h *Handler) GetProducts(w http.ResponseWriter, r *http.Request) {
	var shopID int64
	if raw := r.URL.Query().Get("shop_id"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}
		shopID = parsed
	}

	products, err := h.service.GetProducts(r.Context(), shopID)
	if err != nil {
		h.respondError(w, err, "get products error", zap.Int64("shopID", shopID))
		return
	}

	resp := make([]productResponse, 0, len(products))
	for _, p := range products {
		resp = append(resp, productResponse{
			ID:              p.ID,
			ShopID:          p.ShopID,
			Name:            p.Name,
			Brand:           p.Brand,
			QuantityPerPack: p.QuantityPerPack,
			Unit:            p.Unit,
			Price:           p.Price,
		})
	}
	h.writeJSON(w, resp)
}

// UpdateProduct изменяет товар в ассортименте магазина текущего владельца.
func (h *Handler) UpdateProduct(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	productID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Name == "" || req.Price <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	err = h.service.UpdateProduct(r.Context(), userID, model.Product{
		ID:              productID,
		Name:            req.Name,
		Brand:           req.Brand,
		QuantityPerPack: req.QuantityPerPack,
		Unit:            req.Unit,
		Price:           req.Price,
	})
	if err != nil {
		h.respondError(w, err, "update product error", zap.Int64("productID", productID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteProduct удаляет товар из ассортимента магазина текущего владельца.
func (h *Handler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	productID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteProduct(r.Context(), userID, productID); err != nil {
		h.respondError(w, err, "delete product error", zap.Int64("productID", productID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type pantryItemResponse struct {
	ID              int64   `json:"id"`
	UserID          int64   `json:"user_id"`
	ShopID          int64   `json:"shop_id"`
	ProductID       int64   `json:"product_id"`
	ProductName     string  `json:"product_name"`
	BrandName       string  `json:"brand_name,omitempty"`
	QuantityPerPack float64 `json:"quantity_per_pack"`
	Unit            string  `json:"unit"`
	PacksOwned      int     `json:"packs_owned"`
	Price           float64 `json:"price"`
	Status          string  `json:"status"`
	LastRefilled    *string `json:"last_refilled,omitempty"`
}

func toPantryItemResponse(it model.PantryItem) pantryItemResponse {
	resp := pantryItemResponse{
		ID:              it.ID,
		UserID:          it.UserID,
		ShopID:          it.ShopID,
		ProductID:       it.ProductID,
		ProductName:     it.ProductName,
		BrandName:       it.BrandName,
		QuantityPerPack: it.QuantityPerPack,
		Unit:            it.Unit,
		PacksOwned:      it.PacksOwned,
		Price:           it.Price,
		Status:          string(it.Status),
	}
	if it.LastRefilled != nil {
		formatted := it.LastRefilled.Format(time.RFC3339)
		resp.LastRefilled = &formatted
	}
	return resp
}

type addPantryItemRequest struct {
	ProductID  int64 `json:"product_id"`
	PacksOwned int   `json:"packs_owned"`
}

// AddPantryItem добавляет товар в кладовую текущего пользователя.
func (h *Handler) AddPantryItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	var req addPantryItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.ProductID <= 0 || req.PacksOwned < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	itemID, err := h.service.AddPantryItem(r.Context(), userID, req.ProductID, req.PacksOwned)
	if err != nil {
		h.respondError(w, err, "add pantry item error", zap.Int64("productID", req.ProductID))
		return
	}

	h.writeJSONStatus(w, http.StatusCreated, map[string]int64{"id": itemID})
}

// GetPantry возвращает кладовую пользователя. Чужая кладовая недоступна.
func (h *Handler) GetPantry(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	requested, err := pathID(r, "userID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if requested != userID {
		http.Error(w, http.StatusText(http.StatusForbidden), http.StatusForbidden)
		return
	}

	items, err := h.service.GetPantry(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "get pantry error", zap.Int64("userID", userID))
		return
	}

	resp := make([]pantryItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, toPantryItemResponse(it))
	}
	h.writeJSON(w, resp)
}

type updateStockRequest struct {
	PacksOwned int `json:"packs_owned"`
}

// UpdateStock корректирует запас позиции кладовой вне цикла пополнения.
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	itemID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateStock(r.Context(), userID, itemID, req.PacksOwned); err != nil {
		h.respondError(w, err, "update stock error", zap.Int64("itemID", itemID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type refillRequest struct {
	CurrentPacks int `json:"current_packs"`
}

// RequestRefill создаёт заявку на пополнение позиции кладовой.
func (h *Handler) RequestRefill(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	itemID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req refillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.CurrentPacks < 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.RequestRefill(r.Context(), userID, itemID, req.CurrentPacks); err != nil {
		h.respondError(w, err, "request refill error", zap.Int64("itemID", itemID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeletePantryItem удаляет позицию из кладовой текущего пользователя.
func (h *Handler) DeletePantryItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	itemID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeletePantryItem(r.Context(), userID, itemID); err != nil {
		h.respondError(w, err, "delete pantry item error", zap.Int64("itemID", itemID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetRefillQueue возвращает заявки на пополнение для магазина текущего владельца.
func (h *Handler) GetRefillQueue(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	shopID, err := pathID(r, "shopID")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	filter := pantry.QueueFilter(r.URL.Query().Get("filter"))
	items, err := h.service.GetRefillQueue(r.Context(), userID, shopID, filter)
	if err != nil {
		h.respondError(w, err, "get refill queue error", zap.Int64("shopID", shopID))
		return
	}

	resp := make([]pantryItemResponse, 0, len(items))
	for _, it := range items {
		resp = append(resp, toPantryItemResponse(it))
	}
	h.writeJSON(w, resp)
}

// advanceRefillHandler строит обработчик перевода заявки в следующий статус.
func (h *Handler) advanceRefillHandler(to model.PantryStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := userIDOrAbort(w, r)
		if !ok {
			return
		}

		itemID, err := pathID(r, "id")
		if err != nil {
			http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
			return
		}

		if err := h.service.AdvanceRefill(r.Context(), userID, itemID, to); err != nil {
			h.respondError(w, err, "advance refill error",
				zap.Int64("itemID", itemID), zap.String("to", string(to)))
			return
		}

		w.WriteHeader(http.StatusOK)
	}
}

type createOrdersRequest struct {
	Items           []service.CartLine    `json:"items"`
	DeliveryAddress model.DeliveryAddress `json:"delivery_address"`
	Contact         string                `json:"contact"`
}

type createdOrderResponse struct {
	ID          int64   `json:"id"`
	ShopID      int64   `json:"shop_id"`
	TotalAmount float64 `json:"total_amount"`
	Status      string  `json:"status"`
}

// CreateOrders оформляет корзину: позиции группируются по магазинам,
// каждая группа становится отдельным заказом.
func (h *Handler) CreateOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	var req createOrdersRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if len(req.Items) == 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	if !validation.IsValidPincode(req.DeliveryAddress.Pincode) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}
	if req.Contact != "" && !validation.IsValidPhone(req.Contact) {
		http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
		return
	}

	orders, err := h.service.CreateOrders(r.Context(), userID, req.Items, req.DeliveryAddress, req.Contact)
	if err != nil {
		if errors.Is(err, repository.ErrProductNotFound) || errors.Is(err, repository.ErrShopNotFound) {
			http.Error(w, http.StatusText(http.StatusUnprocessableEntity), http.StatusUnprocessableEntity)
			return
		}
		h.respondError(w, err, "create orders error", zap.Int64("userID", userID))
		return
	}

	resp := make([]createdOrderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, createdOrderResponse{
			ID:          o.ID,
			ShopID:      o.ShopID,
			TotalAmount: o.TotalAmount,
			Status:      string(o.Status),
		})
	}

	h.writeJSONStatus(w, http.StatusCreated, resp)
}

type orderResponse struct {
	ID              int64                 `json:"id"`
	CustomerID      int64                 `json:"customer_id"`
	ShopID          int64                 `json:"shop_id"`
	Items           []model.OrderItem     `json:"items"`
	TotalAmount     float64               `json:"total_amount"`
	Status          string                `json:"status"`
	DeliveryAddress model.DeliveryAddress `json:"delivery_address"`
	CustomerContact string                `json:"customer_contact,omitempty"`
	OrderDate       string                `json:"order_date"`
	DeliveryDate    *string               `json:"delivery_date,omitempty"`
}

// GetOrders возвращает заказы текущего пользователя: покупателю его покупки,
// владельцу магазина заказы его магазина.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	orders, err := h.service.GetOrders(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "get orders error", zap.Int64("userID", userID))
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		item := orderResponse{
			ID:              o.ID,
			CustomerID:      o.CustomerID,
			ShopID:          o.ShopID,
			Items:           o.Items,
			TotalAmount:     o.TotalAmount,
			Status:          string(o.Status),
			DeliveryAddress: o.DeliveryAddress,
			CustomerContact: o.CustomerContact,
			OrderDate:       o.OrderDate.Format(time.RFC3339),
		}
		if o.DeliveryDate != nil {
			formatted := o.DeliveryDate.Format(time.RFC3339)
			item.DeliveryDate = &formatted
		}
		resp = append(resp, item)
	}
	h.writeJSON(w, resp)
}

type updateOrderRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus переводит заказ в следующий статус обработки.
func (h *Handler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	orderID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.UpdateOrderStatus(r.Context(), userID, orderID, model.OrderStatus(req.Status)); err != nil {
		h.respondError(w, err, "update order status error",
			zap.Int64("orderID", orderID), zap.String("status", req.Status))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// GetExpenses возвращает сводку расходов текущего пользователя за выбранное окно.
func (h *Handler) GetExpenses(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	tf := expense.ParseTimeframe(r.URL.Query().Get("timeframe"))
	report, err := h.service.GetExpenseReport(r.Context(), userID, tf, time.Now())
	if err != nil {
		h.respondError(w, err, "get expenses error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, report)
}

type notificationResponse struct {
	ID        int64             `json:"id"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	IsRead    bool              `json:"is_read"`
	Metadata  map[string]string `json:"metadata,omitempty"`
	CreatedAt string            `json:"created_at"`
}

// GetNotifications возвращает уведомления текущего пользователя.
func (h *Handler) GetNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	notifications, err := h.service.GetNotifications(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "get notifications error", zap.Int64("userID", userID))
		return
	}

	resp := make([]notificationResponse, 0, len(notifications))
	for _, n := range notifications {
		resp = append(resp, notificationResponse{
			ID:        n.ID,
			Title:     n.Title,
			Message:   n.Message,
			IsRead:    n.IsRead,
			Metadata:  n.Metadata,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		})
	}
	h.writeJSON(w, resp)
}

// CountUnreadNotifications возвращает число непрочитанных уведомлений.
func (h *Handler) CountUnreadNotifications(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	count, err := h.service.CountUnreadNotifications(r.Context(), userID)
	if err != nil {
		h.respondError(w, err, "count unread notifications error", zap.Int64("userID", userID))
		return
	}

	h.writeJSON(w, map[string]int64{"count": count})
}

// MarkNotificationRead помечает уведомление прочитанным.
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	notificationID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.MarkNotificationRead(r.Context(), userID, notificationID); err != nil {
		h.respondError(w, err, "mark notification read error", zap.Int64("notificationID", notificationID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

// DeleteNotification удаляет уведомление текущего пользователя.
func (h *Handler) DeleteNotification(w http.ResponseWriter, r *http.Request) {
	userID, ok := userIDOrAbort(w, r)
	if !ok {
		return
	}

	notificationID, err := pathID(r, "id")
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if err := h.service.DeleteNotification(r.Context(), userID, notificationID); err != nil {
		h.respondError(w, err, "delete notification error", zap.Int64("notificationID", notificationID))
		return
	}

	w.WriteHeader(http.StatusOK)
}

type createPaymentOrderRequest struct {
	Amount  float64 `json:"amount"`
	Receipt string  `json:"receipt"`
}

// CreatePaymentOrder создаёт заказ в платёжном шлюзе для оплаты подписки магазина.
func (h *Handler) CreatePaymentOrder(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDOrAbort(w, r); !ok {
		return
	}

	var req createPaymentOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	if req.Amount <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	order, err := h.service.CreatePaymentOrder(r.Context(), req.Amount, req.Receipt)
	if err != nil {
		h.respondError(w, err, "create payment order error")
		return
	}

	h.writeJSON(w, order)
}

// VerifyPayment проверяет подпись платежа, полученную от шлюза.
func (h *Handler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	if _, ok := userIDOrAbort(w, r); !ok {
		return
	}

	var req service.PaymentConfirmation
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	verified := h.service.VerifyPayment(req.OrderID, req.PaymentID, req.Signature)
	h.writeJSON(w, map[string]bool{"verified": verified})
}
