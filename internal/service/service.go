// Package service реализует бизнес-логику сервиса гросермарт.
package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"

	"github.com/mmeshcher/grocermart-system/internal/expense"
	"github.com/mmeshcher/grocermart-system/internal/geo"
	"github.com/mmeshcher/grocermart-system/internal/model"
	"github.com/mmeshcher/grocermart-system/internal/pantry"
	"github.com/mmeshcher/grocermart-system/internal/payment"
	"github.com/mmeshcher/grocermart-system/internal/push"
	"github.com/mmeshcher/grocermart-system/internal/repository"
)

// ErrInvalidCredentials возвращается при неверной паре логин/пароль.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotShopkeeper возвращается, когда операция магазина запрошена покупателем.
	ErrNotShopkeeper = errors.New("user is not a shopkeeper")
	// ErrNotOwner возвращается при попытке управлять чужим ресурсом.
	ErrNotOwner = errors.New("resource belongs to another user")
	// ErrPaymentNotVerified возвращается, если подпись платежа за регистрацию магазина не прошла проверку.
	ErrPaymentNotVerified = errors.New("payment not verified")
	// ErrInvalidOrderTransition возвращается при недопустимой смене статуса заказа.
	ErrInvalidOrderTransition = errors.New("invalid order status transition")
)

// Repository описывает контракт доступа к данным, используемый сервисом.
type Repository interface {
	Close() error

	CreateUser(ctx context.Context, login string, passwordHash []byte, role model.Role, phone string) (int64, error)
	GetUserByLogin(ctx context.Context, login string) (*model.User, error)
	GetUserByID(ctx context.Context, id int64) (*model.User, error)
	SetFCMToken(ctx context.Context, userID int64, token string) error
	UpdateSubscriptions(ctx context.Context, userID int64, shopIDs []int64) error

	CreateShop(ctx context.Context, shop model.Shop) (int64, error)
	GetShops(ctx context.Context) ([]model.Shop, error)
	GetShopByID(ctx context.Context, id int64) (*model.Shop, error)
	GetShopByOwner(ctx context.Context, ownerID int64) (*model.Shop, error)

	CreateProduct(ctx context.Context, p model.Product) (int64, error)
	GetProductByID(ctx context.Context, id int64) (*model.Product, error)
	GetProducts(ctx context.Context, shopID int64) ([]model.Product, error)
	UpdateProduct(ctx context.Context, p model.Product) error
	DeleteProduct(ctx context.Context, id int64) error

	CreatePantryItem(ctx context.Context, item model.PantryItem) (int64, error)
	GetPantryItemByID(ctx context.Context, id int64) (*model.PantryItem, error)
	GetPantryByUser(ctx context.Context, userID int64) ([]model.PantryItem, error)
	UpdatePantryState(ctx context.Context, id int64, status model.PantryStatus, packsOwned *int, lastRefilled *time.Time) error
	DeletePantryItem(ctx context.Context, id int64) error
	GetRefillRequestsByShop(ctx context.Context, shopID int64, statuses []model.PantryStatus) ([]model.PantryItem, error)

	CreateOrders(ctx context.Context, orders []model.Order) ([]model.Order, error)
	GetOrderByID(ctx context.Context, id int64) (*model.Order, error)
	GetOrdersByCustomer(ctx context.Context, customerID int64) ([]model.Order, error)
	GetOrdersByShop(ctx context.Context, shopID int64) ([]model.Order, error)
	UpdateOrderStatus(ctx context.Context, id int64, status model.OrderStatus, deliveryDate *time.Time) error

	CreateNotification(ctx context.Context, n model.Notification) (int64, error)
	GetNotificationsByUser(ctx context.Context, userID int64) ([]model.Notification, error)
	CountUnreadNotifications(ctx context.Context, userID int64) (int64, error)
	MarkNotificationRead(ctx context.Context, id, userID int64) error
	DeleteNotification(ctx context.Context, id, userID int64) error
	GetUndispatchedNotifications(ctx context.Context, afterID int64, limit int) ([]repository.UndispatchedNotification, error)
	MarkNotificationsDispatched(ctx context.Context, ids []int64) error
}

// Service содержит бизнес-логику сервиса гросермарт.
type Service struct {
	repo          Repository
	pushClient    *push.Client
	paymentClient *payment.Client
	logger        *zap.Logger

	// Монотонный курсор отправки: идентификатор последнего уведомления,
	// помеченного отправленным. Читается и пишется только из цикла отправки.
	dispatchCursor int64
}

// NewService создаёт новый сервис с указанным репозиторием и клиентами внешних шлюзов.
func NewService(repo Repository, pushClient *push.Client, paymentClient *payment.Client, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		repo:          repo,
		pushClient:    pushClient,
		paymentClient: paymentClient,
		logger:        logger,
	}
}

// notify сохраняет уведомление. Отказ записи не прерывает основную операцию,
// но фиксируется в логе.
func (s *Service) notify(ctx context.Context, n model.Notification) {
	if _, err := s.repo.CreateNotification(ctx, n); err != nil {
		s.logger.Warn("create notification failed",
			zap.Int64("userID", n.UserID), zap.String("title", n.Title), zap.Error(err))
	}
}

// Close закрывает ресурсы сервиса.
func (s *Service) Close() error {
	if s.repo != nil {
		return s.repo.Close()
	}
	return nil
}

// RegisterUser регистрирует нового пользователя с указанной ролью.
func (s *Service) RegisterUser(ctx context.Context, login, password string, role model.Role, phone string) (int64, error) {
	if role != model.RoleShopkeeper {
		role = model.RoleConsumer
	}

	hashed := hashPassword(login, password)
	id, err := s.repo.CreateUser(ctx, login, hashed, role, phone)
	if err != nil {
		return 0, err
	}
	return id, nil
}

// AuthenticateUser проверяет логин и пароль пользователя и возвращает его идентификатор.
func (s *Service) AuthenticateUser(ctx context.Context, login, password string) (int64, error) {
	u, err := s.repo.GetUserByLogin(ctx, login)
	if err != nil {
		return 0, err
	}

	hashed := hashPassword(login, password)
	if hex.EncodeToString(hashed) != hex.EncodeToString(u.PasswordHash) {
		return 0, ErrInvalidCredentials
	}

	return u.ID, nil
}

func hashPassword(login, password string) []byte {
	sum := sha256.Sum256([]byte(login + ":" + password))
	return sum[:]
}

// GetUser возвращает пользователя с его подписками.
func (s *Service) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// SetFCMToken сохраняет push-токен устройства пользователя.
func (s *Service) SetFCMToken(ctx context.Context, userID int64, token string) error {
	return s.repo.SetFCMToken(ctx, userID, token)
}

// UpdateSubscriptions заменяет список подписок пользователя на магазины.
func (s *Service) UpdateSubscriptions(ctx context.Context, userID int64, shopIDs []int64) error {
	return s.repo.UpdateSubscriptions(ctx, userID, shopIDs)
}

// PaymentConfirmation содержит данные завершённого платежа за регистрацию магазина.
type PaymentConfirmation struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
	Signature string `json:"signature"`
}

// CreateShop создаёт магазин. Создание доступно только пользователю с ролью
// shopkeeper и только после подтверждения платежа за регистрацию.
func (s *Service) CreateShop(ctx context.Context, ownerID int64, shop model.Shop, pay PaymentConfirmation) (int64, error) {
	u, err := s.repo.GetUserByID(ctx, ownerID)
	if err != nil {
		return 0, err
	}
	if u.Role != model.RoleShopkeeper {
		return 0, ErrNotShopkeeper
	}

	if s.paymentClient != nil {
		if !s.paymentClient.VerifySignature(pay.OrderID, pay.PaymentID, pay.Signature) {
			return 0, ErrPaymentNotVerified
		}
	}

	shop.OwnerID = ownerID
	if shop.DeliveryRadiusKm <= 0 {
		shop.DeliveryRadiusKm = geo.DefaultDeliveryRadiusKm
	}

	return s.repo.CreateShop(ctx, shop)
}

// GetShops возвращает полный список магазинов.
func (s *Service) GetShops(ctx context.Context) ([]model.Shop, error) {
	return s.repo.GetShops(ctx)
}

// GetNearbyShops возвращает магазины, доставляющие по координатам покупателя,
// ближайшие первыми.
func (s *Service) GetNearbyShops(ctx context.Context, consumer model.Coordinates) ([]geo.Match, error) {
	shops, err := s.repo.GetShops(ctx)
	if err != nil {
		return nil, err
	}
	return geo.MatchShops(consumer, shops), nil
}

// CreatePaymentOrder создаёт платёжный ордер в платёжном шлюзе.
func (s *Service) CreatePaymentOrder(ctx context.Context, amount float64, receipt string) (*payment.GatewayOrder, error) {
	if s.paymentClient == nil {
		return nil, fmt.Errorf("payment gateway not configured")
	}
	return s.paymentClient.CreateOrder(ctx, amount, receipt)
}

// VerifyPayment проверяет подпись завершённого платежа.
func (s *Service) VerifyPayment(orderID, paymentID, signature string) bool {
	if s.paymentClient == nil {
		return false
	}
	return s.paymentClient.VerifySignature(orderID, paymentID, signature)
}

// ownShop возвращает магазин и проверяет, что он принадлежит пользователю.
func (s *Service) ownShop(ctx context.Context, ownerID, shopID int64) (*model.Shop, error) {
	shop, err := s.repo.GetShopByID(ctx, shopID)
	if err != nil {
		return nil, err
	}
	if shop.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return shop, nil
}

// CreateProduct добавляет товар в ассортимент магазина владельца.
func (s *Service) CreateProduct(ctx context.Context, ownerID int64, p model.Product) (int64, error) {
	if _, err := s.ownShop(ctx, ownerID, p.ShopID); err != nil {
		return 0, err
	}
	return s.repo.CreateProduct(ctx, p)
}

// GetProducts возвращает товары магазина либо всех магазинов при shopID = 0.
func (s *Service) GetProducts(ctx context.Context, shopID int64) ([]model.Product, error) {
	return s.repo.GetProducts(ctx, shopID)
}

// UpdateProduct обновляет товар в ассортименте магазина владельца.
func (s *Service) UpdateProduct(ctx context.Context, ownerID int64, p model.Product) error {
	existing, err := s.repo.GetProductByID(ctx, p.ID)
	if err != nil {
		return err
	}
	if _, err := s.ownShop(ctx, ownerID, existing.ShopID); err != nil {
		return err
	}
	p.ShopID = existing.ShopID
	return s.repo.UpdateProduct(ctx, p)
}

// DeleteProduct удаляет товар из ассортимента магазина владельца.
func (s *Service) DeleteProduct(ctx context.Context, ownerID, productID int64) error {
	existing, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return err
	}
	if _, err := s.ownShop(ctx, ownerID, existing.ShopID); err != nil {
		return err
	}
	return s.repo.DeleteProduct(ctx, productID)
}

// AddPantryItem начинает отслеживание товара в запасах покупателя.
// Характеристики товара снимаются с текущего состояния ассортимента.
func (s *Service) AddPantryItem(ctx context.Context, userID, productID int64, packsOwned int) (int64, error) {
	if packsOwned < 0 {
		packsOwned = 0
	}

	p, err := s.repo.GetProductByID(ctx, productID)
	if err != nil {
		return 0, err
	}

	return s.repo.CreatePantryItem(ctx, model.PantryItem{
		UserID:          userID,
		ShopID:          p.ShopID,
		ProductID:       p.ID,
		ProductName:     p.Name,
		BrandName:       p.Brand,
		QuantityPerPack: p.QuantityPerPack,
		Unit:            p.Unit,
		PacksOwned:      packsOwned,
		Price:           p.Price,
		Status:          model.PantryStatusStocked,
	})
}

// GetPantry возвращает запасы пользователя.
func (s *Service) GetPantry(ctx context.Context, userID int64) ([]model.PantryItem, error) {
	return s.repo.GetPantryByUser(ctx, userID)
}

func (s *Service) ownPantryItem(ctx context.Context, userID, itemID int64) (*model.PantryItem, error) {
	item, err := s.repo.GetPantryItemByID(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if item.UserID != userID {
		return nil, ErrNotOwner
	}
	return item, nil
}

// UpdateStock обновляет количество упаковок на руках. После получения доставки
// это действие явно возвращает запись в состояние STOCKED: автоматического
// сброса статуса нет.
func (s *Service) UpdateStock(ctx context.Context, userID, itemID int64, packs int) error {
	item, err := s.ownPantryItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if packs < 0 {
		packs = 0
	}

	status := item.Status
	if item.Status == model.PantryStatusDelivered {
		if err := pantry.Validate(pantry.ActorConsumer, item.Status, model.PantryStatusStocked); err != nil {
			return err
		}
		status = model.PantryStatusStocked
	} else if item.Status != model.PantryStatusStocked {
		return pantry.ErrInvalidTransition
	}

	return s.repo.UpdatePantryState(ctx, itemID, status, &packs, nil)
}

// RequestRefill создаёт заявку на пополнение запаса. Переданное количество
// упаковок на руках сохраняется как текущий запас.
func (s *Service) RequestRefill(ctx context.Context, userID, itemID int64, currentPacks int) error {
	item, err := s.ownPantryItem(ctx, userID, itemID)
	if err != nil {
		return err
	}
	if currentPacks < 0 {
		currentPacks = 0
	}

	if err := pantry.Validate(pantry.ActorConsumer, item.Status, model.PantryStatusRefillRequested); err != nil {
		return err
	}

	if err := s.repo.UpdatePantryState(ctx, itemID, model.PantryStatusRefillRequested, &currentPacks, nil); err != nil {
		return err
	}

	if shop, err := s.repo.GetShopByID(ctx, item.ShopID); err == nil {
		s.notify(ctx, model.Notification{
			UserID:  shop.OwnerID,
			Title:   "Заявка на пополнение",
			Message: fmt.Sprintf("Покупатель запросил пополнение: %s", item.ProductName),
			Metadata: map[string]string{
				"pantry_item_id": fmt.Sprintf("%d", item.ID),
				"product_name":   item.ProductName,
			},
		})
	}

	return nil
}

// DeletePantryItem навсегда удаляет запись запаса. Допустимо в любом статусе.
func (s *Service) DeletePantryItem(ctx context.Context, userID, itemID int64) error {
	if _, err := s.ownPantryItem(ctx, userID, itemID); err != nil {
		return err
	}
	return s.repo.DeletePantryItem(ctx, itemID)
}

// GetRefillQueue возвращает очередь заявок магазина с учётом фильтра.
func (s *Service) GetRefillQueue(ctx context.Context, ownerID, shopID int64, filter pantry.QueueFilter) ([]model.PantryItem, error) {
	if _, err := s.ownShop(ctx, ownerID, shopID); err != nil {
		return nil, err
	}
	return s.repo.GetRefillRequestsByShop(ctx, shopID, pantry.FilterStatuses(filter))
}

var refillNotificationTitles = map[model.PantryStatus]string{
	model.PantryStatusConfirmed:      "Заявка подтверждена",
	model.PantryStatusOutForDelivery: "Пополнение в пути",
	model.PantryStatusDelivered:      "Пополнение доставлено",
}

// AdvanceRefill переводит заявку на пополнение в следующий статус от имени
// магазина. Пропуск статусов запрещён.
func (s *Service) AdvanceRefill(ctx context.Context, ownerID, itemID int64, to model.PantryStatus) error {
	item, err := s.repo.GetPantryItemByID(ctx, itemID)
	if err != nil {
		return err
	}
	if _, err := s.ownShop(ctx, ownerID, item.ShopID); err != nil {
		return err
	}

	if err := pantry.Validate(pantry.ActorShop, item.Status, to); err != nil {
		return err
	}

	var lastRefilled *time.Time
	if to == model.PantryStatusDelivered {
		now := time.Now()
		lastRefilled = &now
	}

	if err := s.repo.UpdatePantryState(ctx, itemID, to, nil, lastRefilled); err != nil {
		return err
	}

	s.notify(ctx, model.Notification{
		UserID:  item.UserID,
		Title:   refillNotificationTitles[to],
		Message: fmt.Sprintf("%s: %s", refillNotificationTitles[to], item.ProductName),
		Metadata: map[string]string{
			"pantry_item_id": fmt.Sprintf("%d", item.ID),
			"status":         string(to),
		},
	})

	return nil
}

// CartLine — одна позиция корзины при оформлении заказа.
type CartLine struct {
	ProductID int64   `json:"product_id"`
	ShopID    int64   `json:"shop_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// CreateOrders оформляет корзину: позиции группируются по магазинам, и на
// каждый магазин создаётся отдельный заказ. Сумма заказа фиксируется в момент
// создания и далее не пересчитывается.
func (s *Service) CreateOrders(ctx context.Context, customerID int64, lines []CartLine, addr model.DeliveryAddress, contact string) ([]model.Order, error) {
	if len(lines) == 0 {
		return nil, fmt.Errorf("empty cart")
	}

	byShop := make(map[int64]*model.Order)
	var shopOrder []int64

	for _, line := range lines {
		if line.Quantity <= 0 {
			return nil, fmt.Errorf("quantity must be positive for product %d", line.ProductID)
		}
		if line.Price < 0 {
			return nil, fmt.Errorf("price must be non-negative for product %d", line.ProductID)
		}

		o, ok := byShop[line.ShopID]
		if !ok {
			o = &model.Order{
				CustomerID:      customerID,
				ShopID:          line.ShopID,
				Status:          model.OrderStatusPending,
				DeliveryAddress: addr,
				CustomerContact: contact,
			}
			byShop[line.ShopID] = o
			shopOrder = append(shopOrder, line.ShopID)
		}

		o.Items = append(o.Items, model.OrderItem{
			ProductID: line.ProductID,
			Name:      line.Name,
			Price:     line.Price,
			Quantity:  line.Quantity,
		})
		o.TotalAmount += line.Price * float64(line.Quantity)
	}

	orders := make([]model.Order, 0, len(shopOrder))
	for _, shopID := range shopOrder {
		orders = append(orders, *byShop[shopID])
	}

	created, err := s.repo.CreateOrders(ctx, orders)
	if err != nil {
		return nil, err
	}

	for _, o := range created {
		if shop, err := s.repo.GetShopByID(ctx, o.ShopID); err == nil {
			s.notify(ctx, model.Notification{
				UserID:  shop.OwnerID,
				Title:   "Новый заказ",
				Message: fmt.Sprintf("Заказ №%d на сумму %.2f", o.ID, o.TotalAmount),
				Metadata: map[string]string{
					"order_id": fmt.Sprintf("%d", o.ID),
					"status":   string(o.Status),
				},
			})
		}
	}

	return created, nil
}

// GetOrders возвращает заказы пользователя: покупателю — его покупки,
// владельцу магазина — заказы его магазина.
func (s *Service) GetOrders(ctx context.Context, userID int64) ([]model.Order, error) {
	u, err := s.repo.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if u.Role == model.RoleShopkeeper {
		shop, err := s.repo.GetShopByOwner(ctx, userID)
		if err != nil {
			if errors.Is(err, repository.ErrShopNotFound) {
				return nil, nil
			}
			return nil, err
		}
		return s.repo.GetOrdersByShop(ctx, shop.ID)
	}

	return s.repo.GetOrdersByCustomer(ctx, userID)
}

// orderNext задаёт прямой порядок статусов заказа. Отмена допустима только из PENDING.
var orderNext = map[model.OrderStatus]model.OrderStatus{
	model.OrderStatusPending:   model.OrderStatusConfirmed,
	model.OrderStatusConfirmed: model.OrderStatusShipped,
	model.OrderStatusShipped:   model.OrderStatusDelivered,
}

var orderNotificationTitles = map[model.OrderStatus]string{
	model.OrderStatusConfirmed: "Заказ подтверждён",
	model.OrderStatusShipped:   "Заказ отправлен",
	model.OrderStatusDelivered: "Заказ доставлен",
	model.OrderStatusCancelled: "Заказ отменён",
}

// UpdateOrderStatus продвигает заказ по статусам от имени владельца магазина.
func (s *Service) UpdateOrderStatus(ctx context.Context, actorID, orderID int64, to model.OrderStatus) error {
	o, err := s.repo.GetOrderByID(ctx, orderID)
	if err != nil {
		return err
	}
	if _, err := s.ownShop(ctx, actorID, o.ShopID); err != nil {
		return err
	}

	if to == model.OrderStatusCancelled {
		if o.Status != model.OrderStatusPending {
			return ErrInvalidOrderTransition
		}
	} else if orderNext[o.Status] != to {
		return ErrInvalidOrderTransition
	}

	var deliveryDate *time.Time
	if to == model.OrderStatusDelivered {
		now := time.Now()
		deliveryDate = &now
	}

	if err := s.repo.UpdateOrderStatus(ctx, orderID, to, deliveryDate); err != nil {
		return err
	}

	s.notify(ctx, model.Notification{
		UserID:  o.CustomerID,
		Title:   orderNotificationTitles[to],
		Message: fmt.Sprintf("Заказ №%d: %s", o.ID, orderNotificationTitles[to]),
		Metadata: map[string]string{
			"order_id": fmt.Sprintf("%d", o.ID),
			"status":   string(to),
		},
	})

	return nil
}

// GetExpenseReport возвращает сводку расходов покупателя за выбранное окно.
func (s *Service) GetExpenseReport(ctx context.Context, userID int64, tf expense.Timeframe, now time.Time) (*expense.Report, error) {
	orders, err := s.repo.GetOrdersByCustomer(ctx, userID)
	if err != nil {
		return nil, err
	}

	refills, err := s.repo.GetPantryByUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	shops, err := s.repo.GetShops(ctx)
	if err != nil {
		return nil, err
	}
	shopNames := make(map[int64]string, len(shops))
	for _, sh := range shops {
		shopNames[sh.ID] = sh.Name
	}

	report := expense.Aggregate(orders, refills, shopNames, tf, now)
	return &report, nil
}

// GetNotifications возвращает уведомления пользователя.
func (s *Service) GetNotifications(ctx context.Context, userID int64) ([]model.Notification, error) {
	return s.repo.GetNotificationsByUser(ctx, userID)
}

// CountUnreadNotifications возвращает число непрочитанных уведомлений.
func (s *Service) CountUnreadNotifications(ctx context.Context, userID int64) (int64, error) {
	return s.repo.CountUnreadNotifications(ctx, userID)
}

// MarkNotificationRead помечает уведомление пользователя прочитанным.
func (s *Service) MarkNotificationRead(ctx context.Context, userID, notificationID int64) error {
	return s.repo.MarkNotificationRead(ctx, notificationID, userID)
}

// DeleteNotification удаляет уведомление пользователя.
func (s *Service) DeleteNotification(ctx context.Context, userID, notificationID int64) error {
	return s.repo.DeleteNotification(ctx, notificationID, userID)
}

// StartNotificationDispatch запускает фоновый процесс отправки уведомлений
// через push-шлюз.
func (s *Service) StartNotificationDispatch(ctx context.Context) {
	if s.pushClient == nil {
		return
	}

	go func() {
		ticker := time.NewTicker(1 * time.Second)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.processDispatchBatch(ctx)
			}
		}
	}()
}

func (s *Service) processDispatchBatch(ctx context.Context) {
	var batch []repository.UndispatchedNotification

	backoff := retry.WithMaxRetries(3, retry.NewFibonacci(100*time.Millisecond))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		batch, err = s.repo.GetUndispatchedNotifications(ctx, s.dispatchCursor, 100)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return
	}

	var sent []int64
	for _, un := range batch {
		// Пользователь без токена push не получает; помечаем, чтобы не возвращаться.
		if un.FCMToken == "" {
			sent = append(sent, un.Notification.ID)
			continue
		}

		retryAfter, err := s.pushClient.Send(ctx, push.Message{
			Token:    un.FCMToken,
			Title:    un.Notification.Title,
			Body:     un.Notification.Message,
			Metadata: un.Notification.Metadata,
		})
		if err != nil {
			break
		}

		if retryAfter > 0 {
			timer := time.NewTimer(retryAfter)
			select {
			case <-ctx.Done():
				timer.Stop()
			case <-timer.C:
			}
			break
		}

		sent = append(sent, un.Notification.ID)
	}

	if len(sent) == 0 {
		return
	}

	if err := s.repo.MarkNotificationsDispatched(ctx, sent); err != nil {
		return
	}

	// Курсор двигается только вперёд и только после успешной пометки:
	// пересекающиеся циклы не перезапишут свежее состояние устаревшим.
	if last := sent[len(sent)-1]; last > s.dispatchCursor {
		s.dispatchCursor = last
	}
}
