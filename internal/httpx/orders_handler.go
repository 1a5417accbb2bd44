package httpx

import (
	"net/http"
	"strings"

	"github.com/ariefcatur/go-order-planning/internal/fulfillment"
	"github.com/ariefcatur/go-order-planning/internal/orders"
	"github.com/go-chi/chi/v5/middleware"
)

type placeOrderReq struct {
	ExternalID string  `json:"external_id"`
	CustomerID int64   `json:"customerId"`
	Amount     float64 `json:"amount"`
	Item       itemRef `json:"item"`
}

type orderRequestedResp struct {
	EventID    string `json:"event_id"`
	ExternalID string `json:"external_id,omitempty"`
}

func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req placeOrderReq
	if !decode(w, r, &req) {
		return
	}
	o, err := h.Planner.Place(r.Context(), fulfillment.Request{
		ExternalID: strings.TrimSpace(req.ExternalID),
		CustomerID: req.CustomerID,
		ItemName:   req.Item.Name,
		Amount:     req.Amount,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

// requestOrder queues the order for the worker and answers before it is
// planned. Only the shape of the request is checked here.
func (h *Handler) requestOrder(w http.ResponseWriter, r *http.Request) {
	if h.Requests == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{
			Error:  http.StatusText(http.StatusServiceUnavailable),
			Detail: "asynchronous order requests are disabled",
		})
		return
	}
	var req placeOrderReq
	if !decode(w, r, &req) {
		return
	}
	if req.CustomerID <= 0 || strings.TrimSpace(req.Item.Name) == "" || !orders.ValidAmount(req.Amount) {
		badRequest(w, "customerId, item.name and a positive amount are required")
		return
	}

	payload := orders.OrderRequestedPayload{
		ExternalID: strings.TrimSpace(req.ExternalID),
		CustomerID: req.CustomerID,
		ItemName:   req.Item.Name,
		Amount:     req.Amount,
	}
	ev, err := orders.NewEnvelope(orders.EventOrderRequested, h.ServiceName, req.CustomerID, payload)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	ev.TraceID = middleware.GetReqID(r.Context())
	if err := h.Requests.Publish(r.Context(), orders.TopicOrderRequested, orders.PartitionKey(req.CustomerID), ev); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, orderRequestedResp{EventID: ev.EventID, ExternalID: payload.ExternalID})
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	p, ok := pageOf(w, r)
	if !ok {
		return
	}
	list, err := h.Catalog.ListOrders(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	o, err := h.Catalog.GetOrder(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeleteOrder(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
