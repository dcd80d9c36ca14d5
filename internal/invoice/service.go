// invoice/service.go
package invoice

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/eGGnogSC/qbinvoice/internal/logging"
	"github.com/eGGnogSC/qbinvoice/pkg/qbclient"
)

// ErrValidation covers invoice requests that can never succeed as sent
var ErrValidation = errors.New("invalid invoice request")

// CredentialSource hands out QuickBooks credentials for a company
type CredentialSource interface {
	Credentials(ctx context.Context, companyID string) (qbclient.Credentials, error)
}

// QuickBooks is the part of the API client invoices need
type QuickBooks interface {
	CreateInvoice(ctx context.Context, creds qbclient.Credentials, req *qbclient.InvoiceRequest) (*qbclient.Invoice, error)
	GetInvoice(ctx context.Context, creds qbclient.Credentials, invoiceID string) (*qbclient.Invoice, error)
	QueryInvoices(ctx context.Context, creds qbclient.Credentials, maxResults int) ([]qbclient.Invoice, error)
	FindDuplicateInvoice(ctx context.Context, creds qbclient.Credentials, customerID, docNumber, txnDate string) (*qbclient.Invoice, error)
	FindCustomerByName(ctx context.Context, creds qbclient.Credentials, name string) (*qbclient.Customer, error)
	CreateCustomer(ctx context.Context, creds qbclient.Credentials, req *qbclient.CustomerRequest) (*qbclient.Customer, error)
}

// CreateRequest is an invoice create. CustomerName may stand in for
// CustomerRef; the customer is looked up or created by display name.
type CreateRequest struct {
	qbclient.InvoiceRequest
	CustomerName string `json:"customerName,omitempty"`
}

// Summary aggregates a list of invoices
type Summary struct {
	TotalAmount  decimal.Decimal `json:"totalAmount"`
	TotalBalance decimal.Decimal `json:"totalBalance"`
	PaidAmount   decimal.Decimal `json:"paidAmount"`
	PaidCount    int             `json:"paidCount"`
	UnpaidCount  int             `json:"unpaidCount"`
}

// List is the invoice list response
type List struct {
	Invoices []qbclient.Invoice `json:"invoices"`
	Count    int                `json:"count"`
	Summary  Summary            `json:"summary"`
}

// Service provides invoice operations
type Service struct {
	credentials CredentialSource
	qb          QuickBooks
	customers   *customerCache
	logger      *logrus.Logger
}

// NewService creates an invoice service
func NewService(credentials CredentialSource, qb QuickBooks, logger *logrus.Logger) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Service{
		credentials: credentials,
		qb:          qb,
		customers:   newCustomerCache(customerCacheSize, customerCacheTTL),
		logger:      logger,
	}
}

// Create creates an invoice. When an invoice with the same customer,
// document number and date already exists it is returned instead and
// created is false.
func (s *Service) Create(ctx context.Context, companyID string, req *CreateRequest) (inv *qbclient.Invoice, created bool, err error) {
	if req == nil {
		return nil, false, fmt.Errorf("%w: request body is required", ErrValidation)
	}
	if len(req.Line) == 0 {
		return nil, false, fmt.Errorf("%w: at least one line is required", ErrValidation)
	}
	if (req.CustomerRef == nil || req.CustomerRef.Value == "") && req.CustomerName == "" {
		return nil, false, fmt.Errorf("%w: CustomerRef or customerName is required", ErrValidation)
	}

	log := logging.FromContext(ctx, s.logger).WithField("company_id", companyID)

	creds, err := s.credentials.Credentials(ctx, companyID)
	if err != nil {
		return nil, false, err
	}

	if req.CustomerRef == nil || req.CustomerRef.Value == "" {
		customer, err := s.resolveCustomer(ctx, creds, req.CustomerName)
		if err != nil {
			return nil, false, err
		}
		req.CustomerRef = &qbclient.Reference{Value: customer.Id, Name: customer.DisplayName}
	}

	if req.DocNumber != "" || req.TxnDate != "" {
		existing, err := s.qb.FindDuplicateInvoice(ctx, creds, req.CustomerRef.Value, req.DocNumber, req.TxnDate)
		switch {
		case err != nil:
			log.WithError(err).Warn("Duplicate invoice check failed, creating anyway")
		case existing != nil:
			log.WithField("invoice_id", existing.Id).Info("Returning existing invoice for duplicate request")
			return existing, false, nil
		}
	}

	inv, err = s.qb.CreateInvoice(ctx, creds, &req.InvoiceRequest)
	if err != nil {
		return nil, false, fmt.Errorf("failed to create invoice: %w", err)
	}

	log.WithFields(logrus.Fields{
		"invoice_id": inv.Id,
		"total":      inv.TotalAmt.String(),
	}).Info("Created invoice")
	return inv, true, nil
}

// Get fetches an invoice by id
func (s *Service) Get(ctx context.Context, companyID, invoiceID string) (*qbclient.Invoice, error) {
	creds, err := s.credentials.Credentials(ctx, companyID)
	if err != nil {
		return nil, err
	}
	return s.qb.GetInvoice(ctx, creds, invoiceID)
}

// List returns up to maxResults invoices (all when not positive) with totals
func (s *Service) List(ctx context.Context, companyID string, maxResults int) (*List, error) {
	creds, err := s.credentials.Credentials(ctx, companyID)
	if err != nil {
		return nil, err
	}

	invoices, err := s.qb.QueryInvoices(ctx, creds, maxResults)
	if err != nil {
		return nil, fmt.Errorf("failed to list invoices: %w", err)
	}
	if invoices == nil {
		invoices = []qbclient.Invoice{}
	}

	return &List{
		Invoices: invoices,
		Count:    len(invoices),
		Summary:  Summarize(invoices),
	}, nil
}

// Summarize totals invoices. An invoice with no balance left counts as paid.
func Summarize(invoices []qbclient.Invoice) Summary {
	var sum Summary
	for _, inv := range invoices {
		sum.TotalAmount = sum.TotalAmount.Add(inv.TotalAmt)
		sum.TotalBalance = sum.TotalBalance.Add(inv.Balance)
		sum.PaidAmount = sum.PaidAmount.Add(inv.TotalAmt.Sub(inv.Balance))
		if inv.Balance.IsZero() {
			sum.PaidCount++
		} else {
			sum.UnpaidCount++
		}
	}
	return sum
}

func (s *Service) resolveCustomer(ctx context.Context, creds qbclient.Credentials, name string) (*qbclient.Customer, error) {
	if customer, ok := s.customers.get(creds.RealmID, name); ok {
		return customer, nil
	}

	customer, err := s.qb.FindCustomerByName(ctx, creds, name)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	if customer == nil {
		customer, err = s.qb.CreateCustomer(ctx, creds, &qbclient.CustomerRequest{DisplayName: name})
		if err != nil {
			return nil, fmt.Errorf("failed to create customer: %w", err)
		}
		logging.FromContext(ctx, s.logger).WithField("customer_id", customer.Id).Info("Created customer")
	}

	s.customers.add(creds.RealmID, name, customer)
	return customer, nil
}
