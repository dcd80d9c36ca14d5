// invoice/handler.go
package invoice

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/auth"
	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/internal/respond"
)

// Handler provides HTTP handlers for invoices
type Handler struct {
	service *Service
	logger  *logrus.Logger
}

// NewHandler creates a new invoice handler
func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// CreateHandler handles POST /api/invoices
func (h *Handler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	companyID := auth.CompanyID(r)

	var req *CreateRequest
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	inv, created, err := h.service.Create(r.Context(), companyID, req)
	if err != nil {
		h.fail(w, r, companyID, err)
		return
	}

	if !created {
		respond.OKWithMessage(w, inv, "An invoice with the same customer, document number and date already exists")
		return
	}
	respond.Created(w, "/api/invoices/"+inv.Id, inv, "Invoice created")
}

// GetHandler handles GET /api/invoices/{invoiceId}
func (h *Handler) GetHandler(w http.ResponseWriter, r *http.Request) {
	companyID := auth.CompanyID(r)

	inv, err := h.service.Get(r.Context(), companyID, mux.Vars(r)["invoiceId"])
	if err != nil {
		h.fail(w, r, companyID, err)
		return
	}
	respond.OK(w, inv)
}

// ListHandler handles GET /api/invoices
func (h *Handler) ListHandler(w http.ResponseWriter, r *http.Request) {
	companyID := auth.CompanyID(r)

	maxResults := 0
	if raw := r.URL.Query().Get("maxResults"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			respond.Fail(w, http.StatusBadRequest, "maxResults must be a non-negative integer")
			return
		}
		maxResults = n
	}

	list, err := h.service.List(r.Context(), companyID, maxResults)
	if err != nil {
		h.fail(w, r, companyID, err)
		return
	}
	respond.OK(w, list)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, companyID string, err error) {
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		respond.AuthRequired(w, companyID)
	case errors.Is(err, ErrValidation):
		respond.Fail(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context(), h.logger).WithError(err).Warn("Invoice request failed")
		respond.Upstream(w, err)
	}
}
