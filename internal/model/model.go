// Package model содержит доменные сущности сервиса гросермарт.
package model

import "time"

// Role определяет роль пользователя в системе.
type Role string

const (
	RoleConsumer   Role = "consumer"
	RoleShopkeeper Role = "shopkeeper"
)

// User представляет зарегистрированного пользователя: покупателя или владельца магазина.
type User struct {
	ID            int64
	Login         string
	PasswordHash  []byte
	Role          Role
	Phone         string
	FCMToken      string
	Subscriptions []int64
	CreatedAt     time.Time
}

// Coordinates задаёт географическую точку в десятичных градусах.
type Coordinates struct {
	Longitude float64 `json:"lng"`
	Latitude  float64 `json:"lat"`
}

// Location описывает адрес магазина. Координаты могут отсутствовать,
// если магазин не указал GPS-данные.
type Location struct {
	Address     string       `json:"address"`
	Coordinates *Coordinates `json:"coordinates,omitempty"`
	City        string       `json:"city"`
	Pincode     string       `json:"pincode"`
}

// Shop представляет магазин, принадлежащий пользователю с ролью shopkeeper.
type Shop struct {
	ID               int64
	OwnerID          int64
	Name             string
	Phone            string
	Location         Location
	DeliveryRadiusKm float64
	CreatedAt        time.Time
}

// Product описывает товар в ассортименте магазина.
type Product struct {
	ID              int64
	ShopID          int64
	Name            string
	Brand           string
	QuantityPerPack float64
	Unit            string
	Price           float64
	CreatedAt       time.Time
}

// PantryStatus описывает состояние запаса в жизненном цикле пополнения.
type PantryStatus string

const (
	PantryStatusStocked         PantryStatus = "STOCKED"
	PantryStatusRefillRequested PantryStatus = "REFILL_REQUESTED"
	PantryStatusConfirmed       PantryStatus = "CONFIRMED"
	PantryStatusOutForDelivery  PantryStatus = "OUT_FOR_DELIVERY"
	PantryStatusDelivered       PantryStatus = "DELIVERED"
)

// PantryItem представляет отслеживаемый покупателем товар с текущим запасом.
// Магазин видит запись только в рамках обработки заявки на пополнение.
type PantryItem struct {
	ID              int64
	UserID          int64
	ShopID          int64
	ProductID       int64
	ProductName     string
	BrandName       string
	QuantityPerPack float64
	Unit            string
	PacksOwned      int
	Price           float64
	Status          PantryStatus
	LastRefilled    *time.Time
	CreatedAt       time.Time
}

// OrderStatus описывает статус обработки заказа.
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusShipped   OrderStatus = "SHIPPED"
	OrderStatusDelivered OrderStatus = "DELIVERED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

// OrderItem описывает одну позицию заказа.
type OrderItem struct {
	ProductID int64   `json:"product_id"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// DeliveryAddress — снимок адреса доставки на момент оформления заказа,
// не живая ссылка на сохранённый адрес покупателя.
type DeliveryAddress struct {
	Flat             string       `json:"flat"`
	Building         string       `json:"building"`
	Street           string       `json:"street"`
	Area             string       `json:"area"`
	Landmark         string       `json:"landmark,omitempty"`
	City             string       `json:"city"`
	Pincode          string       `json:"pincode"`
	Coordinates      *Coordinates `json:"coordinates,omitempty"`
	FormattedAddress string       `json:"formatted_address"`
}

// Order описывает заказ покупателя в одном магазине. Корзина с товарами
// нескольких магазинов разбивается на отдельные заказы при оформлении.
type Order struct {
	ID              int64
	CustomerID      int64
	ShopID          int64
	Items           []OrderItem
	TotalAmount     float64
	Status          OrderStatus
	DeliveryAddress DeliveryAddress
	CustomerContact string
	OrderDate       time.Time
	DeliveryDate    *time.Time
}

// Notification представляет уведомление пользователю о событии заказа или пополнения.
type Notification struct {
	ID         int64
	UserID     int64
	Title      string
	Message    string
	IsRead     bool
	Metadata   map[string]string
	Dispatched bool
	CreatedAt  time.Time
}
