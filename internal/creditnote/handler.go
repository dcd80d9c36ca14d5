// creditnote/handler.go
package creditnote

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

// Handler provides HTTP handlers for credit notes
type Handler struct {
	service *Service
	logger  *logrus.Logger
}

// NewHandler creates a new credit note handler
func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// CreateHandler handles POST /api/invoices/{invoiceId}/credit-note
func (h *Handler) CreateHandler(w http.ResponseWriter, r *http.Request) {
	companyID := auth.CompanyID(r)

	memo, err := h.service.CreateForInvoice(r.Context(), companyID, mux.Vars(r)["invoiceId"])
	if err != nil {
		h.fail(w, r, companyID, err)
		return
	}
	respond.Created(w, "/api/credit-notes/"+memo.Id, memo, "Credit note created")
}

// GetHandler handles GET /api/credit-notes/{creditNoteId}
func (h *Handler) GetHandler(w http.ResponseWriter, r *http.Request) {
	companyID := auth.CompanyID(r)

	memo, err := h.service.Get(r.Context(), companyID, mux.Vars(r)["creditNoteId"])
	if err != nil {
		h.fail(w, r, companyID, err)
		return
	}
	respond.OK(w, memo)
}

// ListHandler handles GET /api/credit-notes
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
	case errors.Is(err, ErrInvoiceNotFound):
		respond.Fail(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrNothingToCredit):
		respond.Fail(w, http.StatusBadRequest, err.Error())
	default:
		logging.FromContext(r.Context(), h.logger).WithError(err).Warn("Credit note request failed")
		respond.Upstream(w, err)
	}
}
