// routes/routes.go
package routes

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/auth"
	"github.com/eGGnogSC/qbinvoice/internal/creditnote"
	"github.com/eGGnogSC/qbinvoice/internal/health"
	"github.com/eGGnogSC/qbinvoice/internal/invoice"
	"github.com/eGGnogSC/qbinvoice/internal/metrics"
	"github.com/eGGnogSC/qbinvoice/internal/middleware"
	"github.com/eGGnogSC/qbinvoice/internal/settlement"
)

// Handlers groups the HTTP handlers of every component
type Handlers struct {
	Auth       *auth.Handler
	Invoice    *invoice.Handler
	Settlement *settlement.Handler
	CreditNote *creditnote.Handler
	Health     *health.Handler
}

// SetupRoutes configures all routes. Every /api route requires a companyId
// with stored tokens.
func SetupRoutes(
	router *mux.Router,
	handlers Handlers,
	tokenStore auth.TokenStore,
	collector *metrics.Collector,
	logger *logrus.Logger,
) {
	router.Use(middleware.CorrelationID(logger))
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(collector.Middleware)

	RegisterAuthRoutes(router, handlers.Auth)
	RegisterHealthRoutes(router, handlers.Health, collector)

	apiRouter := router.PathPrefix("/api").Subrouter()
	apiRouter.Use(auth.RequireCompany(tokenStore, logger))

	RegisterInvoiceRoutes(apiRouter, handlers.Invoice, handlers.Settlement, handlers.CreditNote)
	RegisterCreditNoteRoutes(apiRouter, handlers.CreditNote)
}

// RegisterInvoiceRoutes registers invoice, settlement and credit-from-invoice routes
func RegisterInvoiceRoutes(router *mux.Router, invoiceHandler *invoice.Handler, settlementHandler *settlement.Handler, creditNoteHandler *creditnote.Handler) {
	router.HandleFunc("/invoices", invoiceHandler.CreateHandler).Methods(http.MethodPost)
	router.HandleFunc("/invoices", invoiceHandler.ListHandler).Methods(http.MethodGet)
	router.HandleFunc("/invoices/{invoiceId}", invoiceHandler.GetHandler).Methods(http.MethodGet)
	router.HandleFunc("/invoices/{invoiceId}/settle", settlementHandler.SettleHandler).Methods(http.MethodPost)
	router.HandleFunc("/invoices/{invoiceId}/credit-note", creditNoteHandler.CreateHandler).Methods(http.MethodPost)
}

// RegisterCreditNoteRoutes registers credit note reads
func RegisterCreditNoteRoutes(router *mux.Router, creditNoteHandler *creditnote.Handler) {
	router.HandleFunc("/credit-notes", creditNoteHandler.ListHandler).Methods(http.MethodGet)
	router.HandleFunc("/credit-notes/{creditNoteId}", creditNoteHandler.GetHandler).Methods(http.MethodGet)
}

// RegisterHealthRoutes registers health and metrics endpoints
func RegisterHealthRoutes(router *mux.Router, healthHandler *health.Handler, collector *metrics.Collector) {
	router.HandleFunc("/health", healthHandler.HealthHandler).Methods(http.MethodGet)
	router.HandleFunc("/health/quickbooks", healthHandler.QuickBooksHandler).Methods(http.MethodGet)
	if collector != nil {
		router.Handle("/metrics", collector.Handler()).Methods(http.MethodGet)
	}
}
