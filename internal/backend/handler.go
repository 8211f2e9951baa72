package backend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/unkn0wn-root/querysync"
	"github.com/unkn0wn-root/querysync/internal/coffee"
)

const maxBody = 1 << 16

type createOrderRequest struct {
	MenuItemName string `json:"menuItemName" validate:"required,max=64"`
}

type updateOrderRequest struct {
	Status coffee.Status `json:"status" validate:"required"`
}

// Handler serves the order REST API.
type Handler struct {
	api      coffee.API
	log      querysync.Logger
	mux      *http.ServeMux
	validate *validator.Validate
}

func NewHandler(api coffee.API, log querysync.Logger) *Handler {
	if log == nil {
		log = querysync.NopLogger{}
	}
	h := &Handler{
		api:      api,
		log:      log,
		mux:      http.NewServeMux(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP applies CORS and answers preflight requests before routing.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	hdr := w.Header()
	hdr.Set("Access-Control-Allow-Origin", "*")
	hdr.Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
	hdr.Set("Access-Control-Allow-Headers", "Content-Type, X-Request-Id")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /api/menu", h.getMenu)
	h.mux.HandleFunc("GET /api/orders", h.listOrders)
	h.mux.HandleFunc("POST /api/orders", h.createOrder)
	h.mux.HandleFunc("GET /api/orders/{id}", h.getOrder)
	h.mux.HandleFunc("PATCH /api/orders/{id}", h.updateOrder)
	h.mux.HandleFunc("DELETE /api/orders/{id}", h.deleteOrder)
}

func (h *Handler) getMenu(w http.ResponseWriter, r *http.Request) {
	menu, err := h.api.GetMenu(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, menu)
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.api.ListOrders(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if orders == nil {
		orders = []coffee.Order{}
	}
	h.respondJSON(w, http.StatusOK, orders)
}

func (h *Handler) createOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.api.CreateOrder(r.Context(), req.MenuItemName)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusCreated, res)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	o, err := h.api.GetOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, o)
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if !h.decode(w, r, &req) {
		return
	}
	o, err := h.api.UpdateOrderStatus(r.Context(), r.PathValue("id"), req.Status)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, o)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	res, err := h.api.DeleteOrder(r.Context(), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.respondJSON(w, http.StatusOK, res)
}

// decode reads a JSON body into dst and validates it. On failure it has
// already answered 400.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBody))
	if err := dec.Decode(dst); err != nil {
		h.respondError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			h.respondError(w, http.StatusBadRequest, verrs[0].Field()+" is "+verrs[0].Tag())
			return false
		}
		h.respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var ce *coffee.Error
	if !errors.As(err, &ce) {
		ce = coffee.Internal("backend", err)
	}
	switch ce.Kind {
	case coffee.KindValidation:
		h.respondError(w, http.StatusBadRequest, ce.Message)
	case coffee.KindNotFound:
		h.respondError(w, http.StatusNotFound, ce.Message)
	default:
		h.log.Error("request failed", querysync.Fields{
			"method": r.Method, "path": r.URL.Path, "request_id": r.Header.Get("X-Request-Id"), "err": err,
		})
		h.respondError(w, http.StatusInternalServerError, "internal server error")
	}
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.log.Error("failed to marshal JSON response", querysync.Fields{"err": err})
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error": "internal server error"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(response)
}

func (h *Handler) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, map[string]string{"error": message})
}
