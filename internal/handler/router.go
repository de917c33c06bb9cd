package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	custommiddleware "github.com/mmeshcher/grocermart-system/internal/middleware"
	"github.com/mmeshcher/grocermart-system/internal/model"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса гросермарт.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Route("/api", func(r chi.Router) {
		r.Post("/auth/register", h.Register)
		r.Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(h.authMiddleware.Middleware)

			r.Route("/users", func(r chi.Router) {
				r.Post("/fcm-token", h.SetFCMToken)
				r.Get("/{id}", h.GetUser)
				r.Put("/{id}", h.UpdateUser)
			})

			r.Route("/shops", func(r chi.Router) {
				r.Get("/", h.GetShops)
				r.Post("/", h.CreateShop)
				r.Get("/nearby", h.GetNearbyShops)
			})

			r.Route("/products", func(r chi.Router) {
				r.Get("/", h.GetProducts)
				r.Post("/", h.CreateProduct)
				r.Put("/{id}", h.UpdateProduct)
				r.Delete("/{id}", h.DeleteProduct)
			})

			r.Route("/pantry", func(r chi.Router) {
				r.Post("/", h.AddPantryItem)
				r.Get("/user/{userID}", h.GetPantry)
				r.Put("/{id}", h.UpdateStock)
				r.Delete("/{id}", h.DeletePantryItem)
				r.Post("/{id}/refill", h.RequestRefill)

				r.Get("/shop/{shopID}/requests", h.GetRefillQueue)
				r.Put("/request/{id}/confirm", h.advanceRefillHandler(model.PantryStatusConfirmed))
				r.Put("/request/{id}/dispatch", h.advanceRefillHandler(model.PantryStatusOutForDelivery))
				r.Put("/request/{id}/deliver", h.advanceRefillHandler(model.PantryStatusDelivered))
			})

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", h.GetOrders)
				r.Post("/", h.CreateOrders)
				r.Put("/{id}", h.UpdateOrderStatus)
			})

			r.Get("/expenses", h.GetExpenses)

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", h.GetNotifications)
				r.Get("/unread-count", h.CountUnreadNotifications)
				r.Put("/{id}/read", h.MarkNotificationRead)
				r.Delete("/{id}", h.DeleteNotification)
			})

			r.Route("/payments", func(r chi.Router) {
				r.Post("/create-order", h.CreatePaymentOrder)
				r.Post("/verify", h.VerifyPayment)
			})
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
