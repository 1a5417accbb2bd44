package httpx

import (
	"github.com/ariefcatur/go-order-planning/internal/catalog"
	"github.com/ariefcatur/go-order-planning/internal/fulfillment"
	"github.com/ariefcatur/go-order-planning/internal/inventory"
	"github.com/ariefcatur/go-order-planning/internal/orders"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Handler struct {
	Catalog   *catalog.Service
	Inventory *inventory.Service
	Planner   *fulfillment.Planner
	// Requests carries asynchronous order requests; nil disables the endpoint.
	Requests    orders.Publisher
	Log         *zap.Logger
	ServiceName string
}

func (h *Handler) Register(r chi.Router) {
	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/customers", func(r chi.Router) {
			r.Post("/", h.createCustomer)
			r.Get("/", h.listCustomers)
			r.Get("/{id}", h.getCustomer)
			r.Put("/{id}", h.renameCustomer)
			r.Delete("/{id}", h.deleteCustomer)
			r.Get("/{id}/distances", h.customerDistances)
		})
		r.Route("/warehouses", func(r chi.Router) {
			r.Post("/", h.createWarehouse)
			r.Get("/", h.listWarehouses)
			r.Get("/{id}", h.getWarehouse)
			r.Put("/{id}", h.renameWarehouse)
			r.Put("/{id}/item", h.adjustStock)
			r.Delete("/{id}", h.deleteWarehouse)
		})
		r.Route("/items", func(r chi.Router) {
			r.Post("/", h.createItem)
			r.Get("/", h.listItems)
			r.Get("/{id}", h.getItem)
			r.Put("/{id}", h.renameItem)
			r.Delete("/{id}", h.deleteItem)
		})
		r.Route("/orders", func(r chi.Router) {
			r.Post("/", h.placeOrder)
			r.Post("/requests", h.requestOrder)
			r.Get("/", h.listOrders)
			r.Get("/{id}", h.getOrder)
			r.Delete("/{id}", h.deleteOrder)
		})
		r.Get("/distances/{id}", h.getDistance)
	})
}
