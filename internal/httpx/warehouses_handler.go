package httpx

import (
	"net/http"

	"github.com/ariefcatur/go-order-planning/internal/geo"
	"github.com/ariefcatur/go-order-planning/internal/inventory"
	"github.com/ariefcatur/go-order-planning/internal/orders"
)

// itemRef is the {"name": ...} item reference used on the wire.
type itemRef struct {
	Name string `json:"name"`
}

type lineReq struct {
	Amount float64 `json:"amount"`
	Item   itemRef `json:"item"`
}

type createWarehouseReq struct {
	Name     string    `json:"name"`
	Location geo.Point `json:"location"`
	Items    []lineReq `json:"items"`
}

func (h *Handler) createWarehouse(w http.ResponseWriter, r *http.Request) {
	var req createWarehouseReq
	if !decode(w, r, &req) {
		return
	}
	lines := make([]orders.LineInput, 0, len(req.Items))
	for _, it := range req.Items {
		lines = append(lines, orders.LineInput{ItemName: it.Item.Name, Amount: it.Amount})
	}
	wh, err := h.Catalog.CreateWarehouse(r.Context(), req.Name, req.Location, lines)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, wh)
}

func (h *Handler) listWarehouses(w http.ResponseWriter, r *http.Request) {
	p, ok := pageOf(w, r)
	if !ok {
		return
	}
	ws, err := h.Catalog.ListWarehouses(r.Context(), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (h *Handler) getWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wh, err := h.Catalog.GetWarehouse(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) renameWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	wh, err := h.Catalog.RenameWarehouse(r.Context(), id, r.URL.Query().Get("newName"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) adjustStock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	op, err := inventory.ParseOperation(r.URL.Query().Get("operation"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req lineReq
	if !decode(w, r, &req) {
		return
	}
	wh, err := h.Inventory.Adjust(r.Context(), inventory.AdjustInput{
		WarehouseID: id,
		ItemName:    req.Item.Name,
		Amount:      req.Amount,
		Op:          op,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, wh)
}

func (h *Handler) deleteWarehouse(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.Catalog.DeleteWarehouse(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
