// settlement/handler.go
package settlement

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/auth"
	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/internal/respond"
)

// Handler exposes settlement over HTTP
type Handler struct {
	service *Service
	logger  *logrus.Logger
}

// NewHandler creates a settlement handler
func NewHandler(service *Service, logger *logrus.Logger) *Handler {
	return &Handler{service: service, logger: logger}
}

// SettleHandler handles POST /api/invoices/{invoiceId}/settle
func (h *Handler) SettleHandler(w http.ResponseWriter, r *http.Request) {
	companyID := auth.CompanyID(r)
	invoiceID := mux.Vars(r)["invoiceId"]

	var req Request
	if err := respond.DecodeJSON(r, &req); err != nil {
		respond.Fail(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.Settle(r.Context(), companyID, invoiceID, req)
	if err != nil {
		h.fail(w, r, companyID, err)
		return
	}

	if result.BalanceConfirmed {
		respond.OKWithMessage(w, result, fmt.Sprintf(
			"Invoice %s settled: credit memo %s and payment %s created, balance is now %s",
			invoiceID, result.CreditMemo.Id, result.Payment.Id, result.FinalBalance.StringFixed(2)))
		return
	}
	respond.OKWithMessage(w, result, fmt.Sprintf(
		"Credit memo %s and payment %s created; invoice %s balance not yet updated (last observed %s)",
		result.CreditMemo.Id, result.Payment.Id, invoiceID, result.FinalBalance.StringFixed(2)))
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, companyID string, err error) {
	var incomplete *IncompleteError
	switch {
	case errors.Is(err, auth.ErrAuthRequired):
		respond.AuthRequired(w, companyID)
	case errors.As(err, &incomplete):
		respond.Fail(w, http.StatusBadGateway, incomplete.Error())
	case errors.Is(err, ErrValidation):
		respond.Fail(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrInvoiceNotFound):
		respond.Fail(w, http.StatusNotFound, err.Error())
	default:
		logging.FromContext(r.Context(), h.logger).WithError(err).Error("Settlement failed")
		respond.Upstream(w, err)
	}
}
